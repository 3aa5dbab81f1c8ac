package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/agentcore/core"
)

type stubTool struct {
	name     string
	category string
	params   []core.ToolParameter
}

func (s stubTool) Name() string                  { return s.name }
func (s stubTool) Category() string              { return s.category }
func (s stubTool) Description() string           { return "stub tool " + s.name }
func (s stubTool) Parameters() []core.ToolParameter { return s.params }
func (s stubTool) Capabilities() []core.ToolCapability {
	return []core.ToolCapability{core.CapabilityReadOnly}
}
func (s stubTool) Execute(ctx context.Context, params map[string]interface{}, tctx core.ToolContext) (core.ToolResult, error) {
	return core.ToolResult{Success: true}, nil
}

func TestRegisterAndGet(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(stubTool{name: "weather", category: "data"}))

	tool, err := r.Get("weather")
	require.NoError(t, err)
	assert.Equal(t, "weather", tool.Name())
}

func TestGetUnknownTool(t *testing.T) {
	r := New(nil)
	_, err := r.Get("missing")
	assert.ErrorIs(t, err, core.ErrToolUnavailable)
}

func TestListSortedByName(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(stubTool{name: "zeta", category: "data"}))
	require.NoError(t, r.Register(stubTool{name: "alpha", category: "data"}))

	names := []string{}
	for _, tool := range r.List() {
		names = append(names, tool.Name())
	}
	assert.Equal(t, []string{"alpha", "zeta"}, names)
}

func TestUnregisterRemovesFromCategory(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(stubTool{name: "weather", category: "data"}))
	r.Unregister("weather")

	assert.False(t, r.Has("weather"))
	assert.NotContains(t, r.Categories(), "data")
}

func TestValidateStepsRejectsUnknownTool(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(stubTool{name: "weather", category: "data"}))

	err := r.ValidateSteps([]core.ExecutionStep{
		{ID: "s1", ToolName: "weather"},
		{ID: "s2", ToolName: "unknown"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrToolUnavailable)
}

func TestRenderCatalogIncludesParameters(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(stubTool{
		name:     "weather",
		category: "data",
		params:   []core.ToolParameter{{Name: "city", Type: "string", Required: true, Description: "city name"}},
	}))

	catalog := r.RenderCatalog()
	assert.Contains(t, catalog, "weather")
	assert.Contains(t, catalog, "city")
	assert.Contains(t, catalog, "required")
}
