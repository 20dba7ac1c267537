package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL   = "https://api.hubapi.com"
	defaultUserAgent = "PersonaFlow/1.0.0"
)

// Config controls how the HubSpot client behaves.
type Config struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
	HTTPClient  *http.Client
	UserAgent   string
}

// Client wraps the HubSpot CRM endpoints the relay uses.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	userAgent   string
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("crm: access token is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: cfg.AccessToken,
		httpClient:  httpClient,
		userAgent:   userAgent,
	}, nil
}

var _ API = (*Client)(nil)

type searchFilter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

type searchFilterGroup struct {
	Filters []searchFilter `json:"filters"`
}

type searchBody struct {
	FilterGroups []searchFilterGroup `json:"filterGroups"`
	Properties   []string            `json:"properties,omitempty"`
	Limit        int                 `json:"limit,omitempty"`
}

type objectResponse struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

// SearchContacts runs an equality search on a single contact property.
func (c *Client) SearchContacts(ctx context.Context, req SearchRequest) ([]Contact, error) {
	if strings.TrimSpace(req.Property) == "" {
		return nil, errors.New("crm: search property required")
	}
	body := searchBody{
		FilterGroups: []searchFilterGroup{{
			Filters: []searchFilter{{PropertyName: req.Property, Operator: "EQ", Value: req.Value}},
		}},
		Properties: req.Properties,
		Limit:      req.Limit,
	}
	data, err := c.invoke(ctx, http.MethodPost, "/crm/v3/objects/contacts/search", body)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Results []objectResponse `json:"results"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("crm: decode search response: %w", err)
	}
	contacts := make([]Contact, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		contacts = append(contacts, Contact{ID: r.ID, Properties: r.Properties})
	}
	return contacts, nil
}

// CreateNote creates a note object and returns its id.
func (c *Client) CreateNote(ctx context.Context, note Note) (string, error) {
	if strings.TrimSpace(note.Body) == "" {
		return "", errors.New("crm: note body required")
	}
	ts := note.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	body := map[string]any{
		"properties": map[string]string{
			"hs_note_body": note.Body,
			"hs_timestamp": ts.UTC().Format(time.RFC3339Nano),
		},
	}
	data, err := c.invoke(ctx, http.MethodPost, "/crm/v3/objects/notes", body)
	if err != nil {
		return "", err
	}
	var parsed objectResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("crm: decode note response: %w", err)
	}
	if parsed.ID == "" {
		return "", errors.New("crm: note response missing id")
	}
	return parsed.ID, nil
}

// AssociateNoteWithContact links an existing note to a contact.
func (c *Client) AssociateNoteWithContact(ctx context.Context, noteID, contactID string) error {
	if strings.TrimSpace(noteID) == "" || strings.TrimSpace(contactID) == "" {
		return errors.New("crm: note id and contact id required")
	}
	type ref struct {
		ID string `json:"id"`
	}
	body := map[string]any{
		"inputs": []map[string]any{{
			"from": ref{ID: noteID},
			"to":   ref{ID: contactID},
			"type": "note_to_contact",
		}},
	}
	_, err := c.invoke(ctx, http.MethodPost, "/crm/v3/associations/notes/contacts/batch/create", body)
	return err
}

// UpdateContact patches contact properties.
func (c *Client) UpdateContact(ctx context.Context, contactID string, properties map[string]string) error {
	if strings.TrimSpace(contactID) == "" {
		return errors.New("crm: contact id required")
	}
	body := map[string]any{"properties": properties}
	_, err := c.invoke(ctx, http.MethodPatch, "/crm/v3/objects/contacts/"+url.PathEscape(contactID), body)
	return err
}

func (c *Client) invoke(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("crm: marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("crm: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crm: http error: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("crm: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp.StatusCode, data)
	}
	return data, nil
}

// APIError is a non-2xx HubSpot response.
type APIError struct {
	Status        int    `json:"-"`
	Category      string `json:"category,omitempty"`
	Message       string `json:"message,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("crm: %s (status=%d category=%s)", e.Message, e.Status, e.Category)
	}
	return fmt.Sprintf("crm: http status %d", e.Status)
}

// StatusCode exposes the HTTP status for retry classification.
func (e *APIError) StatusCode() int {
	return e.Status
}

func decodeAPIError(status int, body []byte) error {
	var parsed APIError
	if err := json.Unmarshal(body, &parsed); err != nil {
		return &APIError{Status: status, Message: strings.TrimSpace(string(body))}
	}
	parsed.Status = status
	return &parsed
}
