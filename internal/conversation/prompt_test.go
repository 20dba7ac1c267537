package conversation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemPrompt(t *testing.T) {
	prompt := SystemPrompt("Ada Lovelace, tone: formal", "a dental clinic")
	assert.True(t, strings.HasPrefix(prompt, "You are a helpful, emotionally intelligent assistant for a company that is a dental clinic. Your persona is: Ada Lovelace, tone: formal."))
	assert.Equal(t, 4, strings.Count(prompt, "\n- "))

	assert.Contains(t, SystemPrompt("default persona", ""), "a company that is a general helpful assistant.")
}

func TestBuildPromptAppendsInbound(t *testing.T) {
	history := []HistoryTurn{{Role: RoleUser, Body: "hi"}, {Role: RoleAssistant, Body: "hello!"}}
	turns := BuildPrompt("default persona", "", history, "how are you?")

	require.Len(t, turns, 4)
	assert.Equal(t, ChatRoleSystem, turns[0].Role)
	assert.Equal(t, ChatMessage{Role: ChatRoleUser, Content: "hi"}, turns[1])
	assert.Equal(t, ChatMessage{Role: ChatRoleAssistant, Content: "hello!"}, turns[2])
	assert.Equal(t, ChatMessage{Role: ChatRoleUser, Content: "how are you?"}, turns[3])
}

func TestBuildPromptSkipsRepeatedInbound(t *testing.T) {
	history := []HistoryTurn{{Role: RoleUser, Body: "same"}}
	turns := BuildPrompt("p", "b", history, "same")
	require.Len(t, turns, 2)
	assert.Equal(t, "same", turns[1].Content)
}

func TestBuildPromptEmptyHistory(t *testing.T) {
	turns := BuildPrompt("p", "b", nil, "Hello")
	require.Len(t, turns, 2)
	assert.Equal(t, ChatMessage{Role: ChatRoleUser, Content: "Hello"}, turns[1])
}

func TestReplyToSwapsAddresses(t *testing.T) {
	inbound := Message{From: "whatsapp:+1555", To: "whatsapp:+1666", MessageSid: "SM1", Role: RoleUser}
	reply := ReplyTo(inbound, "hey", "7", inbound.Timestamp)
	assert.Equal(t, "whatsapp:+1666", reply.From)
	assert.Equal(t, "whatsapp:+1555", reply.To)
	assert.Equal(t, "SM1-ai", reply.MessageSid)
	assert.Equal(t, RoleAssistant, reply.Role)
	assert.Equal(t, "7", reply.ContactID)
}
