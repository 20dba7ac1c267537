package messaging

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/personaflow/whatsapp-relay/internal/conversation"
	"github.com/personaflow/whatsapp-relay/internal/crm"
)

const testAuthToken = "test_token"

type noContacts struct{}

func (noContacts) FindByPhone(context.Context, string) *crm.Contact { return nil }

type fixedLLM struct {
	reply string
	seen  []conversation.LLMRequest
}

func (f *fixedLLM) Complete(_ context.Context, req conversation.LLMRequest) (conversation.LLMResponse, error) {
	f.seen = append(f.seen, req)
	return conversation.LLMResponse{Text: f.reply}, nil
}

type recordingSender struct {
	scriptedSender
	to, from, body string
}

func (s *recordingSender) SendMessage(ctx context.Context, to, from, body string) (string, error) {
	s.to, s.from, s.body = to, from, body
	return s.scriptedSender.SendMessage(ctx, to, from, body)
}

type webhookOutcomes struct{ outcomes []string }

func (w *webhookOutcomes) ObserveWebhook(outcome string, _ time.Duration) {
	w.outcomes = append(w.outcomes, outcome)
}

type relayFixture struct {
	handler *Handler
	store   *conversation.MemoryStore
	llm     *fixedLLM
	sender  *recordingSender
	obs     *webhookOutcomes
}

func newRelayFixture(t *testing.T, prefix string, sendErrs ...error) *relayFixture {
	t.Helper()
	store := conversation.NewMemoryStore()
	llm := &fixedLLM{reply: "Hi! How can I help you today?"}
	sender := &recordingSender{scriptedSender: scriptedSender{errs: sendErrs}}
	dispatcher := NewDispatcher(sender, prefix, nil, WithDispatchSleep(func(context.Context, time.Duration) error { return nil }))
	processor, err := conversation.NewProcessor(conversation.ProcessorConfig{
		Store:         store,
		Contacts:      noContacts{},
		Generator:     conversation.NewGenerator(llm, ""),
		Sender:        dispatcher,
		ChannelPrefix: prefix,
	})
	require.NoError(t, err)

	obs := &webhookOutcomes{}
	handler := NewHandler(HandlerConfig{
		Validator: NewSignatureValidator(testAuthToken),
		Parser:    NewParser(prefix),
		Processor: processor,
		Observer:  obs,
	})
	return &relayFixture{handler: handler, store: store, llm: llm, sender: sender, obs: obs}
}

func signedRequest(form url.Values) *http.Request {
	target := "http://relay.example.com/channel/webhook"
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(SignatureHeader, ComputeSignature(testAuthToken, target, form))
	return req
}

func errorBody(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body["error"]
}

func TestChannelWebhookHelloEndToEnd(t *testing.T) {
	f := newRelayFixture(t, "channel:")
	form := url.Values{
		"From":       {"channel:+15550001111"},
		"To":         {"channel:+15559990000"},
		"Body":       {"Hello"},
		"MessageSid": {"SM100"},
	}
	rr := httptest.NewRecorder()
	f.handler.ChannelWebhook(rr, signedRequest(form))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())

	require.Len(t, f.llm.seen, 1)
	assert.Contains(t, f.llm.seen[0].System[0], "Your persona is: default persona.")

	messages, err := f.store.FetchFullConversation(context.Background(), "channel:+15550001111")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "SM100", messages[0].MessageSid)
	assert.Equal(t, conversation.RoleUser, messages[0].Role)
	assert.Equal(t, "SM100-ai", messages[1].MessageSid)
	assert.Equal(t, conversation.RoleAssistant, messages[1].Role)

	assert.Equal(t, "channel:+15550001111", f.sender.to)
	assert.Equal(t, "channel:+15559990000", f.sender.from)
	assert.Equal(t, "Hi! How can I help you today?", f.sender.body)
	assert.Equal(t, []string{OutcomeProcessed}, f.obs.outcomes)
}

func TestChannelWebhookRejectsMissingSignature(t *testing.T) {
	f := newRelayFixture(t, "")
	req := signedRequest(validParams())
	req.Header.Del(SignatureHeader)
	rr := httptest.NewRecorder()
	f.handler.ChannelWebhook(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "No Twilio signature provided", errorBody(t, rr))
}

func TestChannelWebhookRejectsTamperedSignature(t *testing.T) {
	f := newRelayFixture(t, "")
	req := signedRequest(validParams())
	req.Header.Set(SignatureHeader, "bm90LWEtc2lnbmF0dXJl")
	rr := httptest.NewRecorder()
	f.handler.ChannelWebhook(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Invalid Twilio signature", errorBody(t, rr))
	assert.Empty(t, f.llm.seen)
}

func TestChannelWebhookAcknowledgesDiagnostics(t *testing.T) {
	f := newRelayFixture(t, "")
	rr := httptest.NewRecorder()
	f.handler.ChannelWebhook(rr, signedRequest(url.Values{"Payload": {`{"error_code":"11200"}`}, "Level": {"ERROR"}}))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
	assert.Equal(t, []string{OutcomeDiagnostic}, f.obs.outcomes)
}

func TestChannelWebhookRejectsInvalidPayload(t *testing.T) {
	f := newRelayFixture(t, "")
	form := validParams()
	form.Set("From", "+15550001111")
	rr := httptest.NewRecorder()
	f.handler.ChannelWebhook(rr, signedRequest(form))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid message payload", errorBody(t, rr))
}

func TestChannelWebhookDispatchFailure(t *testing.T) {
	f := newRelayFixture(t, "", errors.New("1"), errors.New("2"), errors.New("3"))
	rr := httptest.NewRecorder()
	f.handler.ChannelWebhook(rr, signedRequest(validParams()))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Failed to send reply", errorBody(t, rr))
	assert.Equal(t, 3, f.sender.calls)
}

type panickingProcessor struct{}

func (panickingProcessor) Process(context.Context, conversation.Message) (conversation.Result, error) {
	panic("nil map")
}

func TestChannelWebhookRecoversPanics(t *testing.T) {
	h := NewHandler(HandlerConfig{SkipSignature: true, Processor: panickingProcessor{}})
	rr := httptest.NewRecorder()
	h.ChannelWebhook(rr, signedRequest(validParams()))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Internal server error", errorBody(t, rr))
}

func TestChannelWebhookPublicBaseURL(t *testing.T) {
	f := newRelayFixture(t, "")
	f.handler.cfg.PublicBaseURL = "https://public.example.com/"

	form := validParams()
	req := httptest.NewRequest(http.MethodPost, "http://10.0.0.5:3000/channel/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(SignatureHeader, ComputeSignature(testAuthToken, "https://public.example.com/channel/webhook", form))
	rr := httptest.NewRecorder()
	f.handler.ChannelWebhook(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestBuildAbsoluteURL(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/channel/webhook?x=1", nil)
	req.Host = "relay.internal"
	assert.Equal(t, "http://relay.internal/channel/webhook?x=1", buildAbsoluteURL(req))

	req.TLS = &tls.ConnectionState{}
	assert.Equal(t, "https://relay.internal/channel/webhook?x=1", buildAbsoluteURL(req))

	req.Header.Set("X-Forwarded-Proto", "http")
	req.Header.Set("X-Forwarded-Host", "edge.example.com")
	assert.Equal(t, "http://edge.example.com/channel/webhook?x=1", buildAbsoluteURL(req))
}

func TestHealthCheck(t *testing.T) {
	h := NewHandler(HandlerConfig{SkipSignature: true, Processor: panickingProcessor{}})
	rr := httptest.NewRecorder()
	h.HealthCheck(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestChannelWebhookRejectsUnsignedMalformedBody(t *testing.T) {
	f := newRelayFixture(t, "")
	req := httptest.NewRequest(http.MethodPost, "http://relay.example.com/channel/webhook", strings.NewReader("From=%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	f.handler.ChannelWebhook(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "No Twilio signature provided", errorBody(t, rr))
	assert.Equal(t, []string{OutcomeUnauthorized}, f.obs.outcomes)
}

func TestChannelWebhookRejectsSignedMalformedBody(t *testing.T) {
	f := newRelayFixture(t, "")
	req := httptest.NewRequest(http.MethodPost, "http://relay.example.com/channel/webhook", strings.NewReader("From=%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(SignatureHeader, "bm90LWEtc2lnbmF0dXJl")
	rr := httptest.NewRecorder()
	f.handler.ChannelWebhook(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Invalid Twilio signature", errorBody(t, rr))
	assert.Empty(t, f.llm.seen)
}

func TestChannelWebhookMalformedBodyWithoutValidation(t *testing.T) {
	h := NewHandler(HandlerConfig{SkipSignature: true, Processor: panickingProcessor{}})
	req := httptest.NewRequest(http.MethodPost, "/channel/webhook", strings.NewReader("From=%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ChannelWebhook(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid message payload", errorBody(t, rr))
}

func TestChannelWebhookReusesRouterRequestID(t *testing.T) {
	f := newRelayFixture(t, "")
	req := signedRequest(validParams())
	req = req.WithContext(context.WithValue(req.Context(), chimiddleware.RequestIDKey, "relay/abc-000001"))
	rr := httptest.NewRecorder()
	f.handler.ChannelWebhook(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "relay/abc-000001", rr.Header().Get(RequestIDHeader))
}

func TestChannelWebhookGeneratesRequestID(t *testing.T) {
	f := newRelayFixture(t, "")
	rr := httptest.NewRecorder()
	f.handler.ChannelWebhook(rr, signedRequest(validParams()))

	_, err := uuid.Parse(rr.Header().Get(RequestIDHeader))
	assert.NoError(t, err)
}
