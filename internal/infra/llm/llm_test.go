package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubClient_ReturnsDefault(t *testing.T) {
	c := NewStub("fallback reply")
	reply, err := c.Complete(t.Context(), []Message{{Role: RoleUser, Content: "anything"}})
	require.NoError(t, err)
	assert.Equal(t, "fallback reply", reply)
}

func TestStubClient_ScriptedResponseWinsOverDefault(t *testing.T) {
	c := &StubClient{
		Responses: map[string]string{"mood: happy": `{"mood":"happy"}`},
		Default:   "unscripted",
	}
	reply, err := c.Complete(t.Context(), []Message{
		{Role: RoleSystem, Content: "you are a mood classifier"},
		{Role: RoleUser, Content: "mood: happy"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"mood":"happy"}`, reply)
}

func TestStubClient_ReturnsConfiguredError(t *testing.T) {
	c := &StubClient{Err: errors.New("llm unavailable")}
	_, err := c.Complete(t.Context(), nil)
	assert.Error(t, err)
}

func TestStubClient_UsesLastUserMessage(t *testing.T) {
	c := &StubClient{
		Responses: map[string]string{"second": "matched"},
		Default:   "unmatched",
	}
	reply, err := c.Complete(t.Context(), []Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleUser, Content: "second"},
	})
	require.NoError(t, err)
	assert.Equal(t, "matched", reply)
}
