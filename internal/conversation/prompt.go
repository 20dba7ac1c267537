package conversation

import (
	"fmt"
	"strings"
)

// DefaultBusinessContext is used when no business context is configured.
const DefaultBusinessContext = "a general helpful assistant"

// ApologyMessage is sent when no reply could be generated.
const ApologyMessage = "I apologize, but I'm having trouble processing your request right now. Please try again in a moment."

var behaviorInstructions = []string{
	"If you are asked for real-time information you cannot access (like current weather), politely explain your limitation and suggest a reliable source.",
	"If the user seems disengaged or low-energy, respond with empathy and encouragement, not just a generic offer of help.",
	"If the user shares personal information (like their age), remember it for the duration of the conversation and use it to answer related questions.",
	"You have access to the full chat history above. Use it to answer questions about previous messages.",
}

// SystemPrompt renders the system turn for persona and businessContext.
func SystemPrompt(persona, businessContext string) string {
	if strings.TrimSpace(businessContext) == "" {
		businessContext = DefaultBusinessContext
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are a helpful, emotionally intelligent assistant for a company that is %s. Your persona is: %s.", businessContext, persona)
	for _, line := range behaviorInstructions {
		b.WriteString("\n- ")
		b.WriteString(line)
	}
	return b.String()
}

// BuildPrompt assembles the turns sent to the model: system prompt, prior
// history, then the inbound body. The inbound body is not repeated when the
// last history turn already carries it.
func BuildPrompt(persona, businessContext string, history []HistoryTurn, inboundBody string) []ChatMessage {
	turns := make([]ChatMessage, 0, len(history)+2)
	turns = append(turns, ChatMessage{Role: ChatRoleSystem, Content: SystemPrompt(persona, businessContext)})
	for _, h := range history {
		turns = append(turns, ChatMessage{Role: string(h.Role), Content: h.Body})
	}
	if len(history) == 0 || history[len(history)-1].Body != inboundBody {
		turns = append(turns, ChatMessage{Role: ChatRoleUser, Content: inboundBody})
	}
	return turns
}
