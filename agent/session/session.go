// Package session owns conversation boundaries and per-session memory
// isolation. A session is one (user_id, session_id) pair; session ids are
// coarse time buckets used only to delimit conversations, never as security
// tokens.
package session

import (
	"strings"
	"time"
	"unicode"

	contractx "github.com/vbfalcao/finassist/agent/contract"
)

// NewID derives the session id from the current hour bucket. Requests from the
// same user within the same hour share one memory namespace, so short
// follow-up replies land in the conversation they belong to.
func NewID(now time.Time) string {
	return now.UTC().Format("20060102_15")
}

// continuationTokens are short replies that keep the current conversation.
var continuationTokens = map[string]bool{
	"sim":       true,
	"não":       true,
	"nao":       true,
	"confirmar": true,
	"cancelar":  true,
	"ok":        true,
	"certo":     true,
}

// newConversationKeywords signal a fresh request: financial actions, asset
// questions, greetings and chart asks.
var newConversationKeywords = []string{
	"gastei", "recebi", "investi", "preço", "cotação", "valor", "quanto",
	"quero", "oi", "olá", "gráfico", "grafico",
}

// IsNewConversation classifies raw question text as the start of a new
// conversation (memory clear) or a continuation (memory preserved).
func IsNewConversation(question string) bool {
	q := strings.ToLower(strings.TrimSpace(question))
	if continuationTokens[q] || isDigits(q) {
		return false
	}
	for _, kw := range newConversationKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return len(strings.Fields(q)) > 1
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Factory builds the isolated memory handle for one session. Implementations
// must guarantee that handles for distinct (user, session) pairs never observe
// each other's entries.
type Factory interface {
	Memory(userID, sessionID string) contractx.Memory
}
