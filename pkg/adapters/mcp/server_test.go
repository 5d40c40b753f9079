package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/troupe/pkg/adapters/memory"
	"github.com/aretw0/troupe/pkg/machine"
	"github.com/aretw0/troupe/pkg/registry"
	"github.com/aretw0/troupe/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lampYAML = `
id: lamp
initial: off
context:
  brightness: 0
states:
  off:
    on:
      TOGGLE: lit
  lit:
    on:
      TOGGLE: off
`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := registry.New()
	_, err := reg.Load(memory.NewLoader("yaml", map[string]string{"lamp": lampYAML}), machine.Implementations{})
	require.NoError(t, err)
	return NewServer(reg, session.NewManager(memory.NewStore()))
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestSendEvents_CreatesThenResumes(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	args := map[string]any{
		"machine": "lamp",
		"session": "s1",
		"events":  `[{"type":"TOGGLE"}]`,
		"input":   `{"brightness": 7}`,
	}
	res, err := s.handleSendEvents(ctx, callRequest(args), args)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "lit", res.Snapshot.Value)
	assert.EqualValues(t, 7, res.Snapshot.Context["brightness"], "input overlays the initial context")

	res, err = s.handleSendEvents(ctx, callRequest(args), args)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, "off", res.Snapshot.Value)
}

func TestSendEvents_RejectsBadArguments(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	args := map[string]any{"machine": "ghost", "session": "s1"}
	_, err := s.handleSendEvents(ctx, callRequest(args), args)
	assert.ErrorIs(t, err, registry.ErrNotFound)

	args = map[string]any{"machine": "lamp", "session": "s1", "events": `{"type":`}
	_, err = s.handleSendEvents(ctx, callRequest(args), args)
	assert.ErrorContains(t, err, "invalid events")
}

func TestDescribeAndGetSession(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	res, err := s.handleDescribe(ctx, callRequest(map[string]any{"machine": "lamp"}))
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &info))
	assert.Equal(t, "lamp", info["id"])
	assert.Equal(t, []any{"TOGGLE"}, info["events"])

	res, err = s.handleDescribe(ctx, callRequest(map[string]any{"machine": "ghost"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleGetSession(ctx, callRequest(map[string]any{"session": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	args := map[string]any{"machine": "lamp", "session": "s2"}
	_, err = s.handleSendEvents(ctx, callRequest(args), args)
	require.NoError(t, err)

	res, err = s.handleGetSession(ctx, callRequest(map[string]any{"session": "s2"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, textOf(t, res), `"value":"off"`)
}
