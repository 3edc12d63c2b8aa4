// Package llm defines the pluggable LLM capability used by the Mood
// Analysis Engine and the Anchor Selector (spec §4.6, §4.7, §9
// "LLM calls as pluggable interface"). Production adapters (a real
// model backend) are out of scope; the only implementation shipped
// here is a deterministic stub so the rule-based fallback paths that
// depend on LLM failure/unavailability stay exercised.
package llm

import "context"

// Message is one turn in a chat-style completion request.
type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Client is the capability every LLM-backed component depends on.
// Callers never reach for a concrete provider type — only this
// interface — so swapping providers never touches app-layer code.
type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// StubClient is a deterministic Client used in tests and as the
// default when no provider is configured (config.LLMConfig.Provider
// == "stub"). It never calls out to a network and its Responses map
// lets a caller script fixed replies keyed by the last user message.
type StubClient struct {
	// Responses maps a user message's content to the reply Complete
	// returns for it. Unmatched content falls through to Default.
	Responses map[string]string
	// Default is returned when Responses has no entry for the request.
	Default string
	// Err, if set, is returned instead of a response — used to
	// exercise the LLM-failure fallback paths.
	Err error
}

// NewStub builds a StubClient that always returns reply.
func NewStub(reply string) *StubClient {
	return &StubClient{Default: reply}
}

// Complete returns the scripted response for the last user message in
// messages, or Default if none matches.
func (s *StubClient) Complete(_ context.Context, messages []Message) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}

	var last string
	for _, m := range messages {
		if m.Role == RoleUser {
			last = m.Content
		}
	}

	if s.Responses != nil {
		if reply, ok := s.Responses[last]; ok {
			return reply, nil
		}
	}
	return s.Default, nil
}
