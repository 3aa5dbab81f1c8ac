package routing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/agentcore/oracle"
)

type stubOracle struct {
	calls   int
	results []oracle.ClassifyResult
}

func (s *stubOracle) Classify(ctx context.Context, message string, validToolNames []string) (oracle.ClassifyResult, error) {
	r := s.results[s.calls%len(s.results)]
	s.calls++
	return r, nil
}

type stubTools struct{ names []string }

func (s stubTools) Names() []string { return s.names }

func TestClassifyExactCacheHit(t *testing.T) {
	o := &stubOracle{results: []oracle.ClassifyResult{{Tool: "weather", Confidence: 0.9}}}
	r := New(o, stubTools{names: []string{"weather"}}, time.Minute)
	defer r.Close()

	d1, err := r.Classify(context.Background(), "what's the weather")
	require.NoError(t, err)
	assert.False(t, d1.FromCache)

	d2, err := r.Classify(context.Background(), "what's the weather")
	require.NoError(t, err)
	assert.True(t, d2.FromCache)
	assert.Equal(t, d1.Tool, d2.Tool)
	assert.Equal(t, d1.Confidence, d2.Confidence)
	assert.Equal(t, 1, o.calls, "second call should be served from cache, not hit the oracle")
}

func TestClassifySubstitutesConversationalOnInvalidTool(t *testing.T) {
	o := &stubOracle{results: []oracle.ClassifyResult{{Tool: "not_a_real_tool", Confidence: 0.99}}}
	r := New(o, stubTools{names: []string{"weather"}}, time.Minute)
	defer r.Close()

	d, err := r.Classify(context.Background(), "do something weird")
	require.NoError(t, err)
	assert.Equal(t, SyntheticConversational, d.Tool)
	assert.Equal(t, 0.5, d.Confidence)
}

func TestClassifyClampsConfidence(t *testing.T) {
	o := &stubOracle{results: []oracle.ClassifyResult{{Tool: "weather", Confidence: 1.5}}}
	r := New(o, stubTools{names: []string{"weather"}}, time.Minute)
	defer r.Close()

	d, err := r.Classify(context.Background(), "what's the weather")
	require.NoError(t, err)
	assert.Equal(t, 1.0, d.Confidence)
}

func TestShouldRouteDirectlyThreshold(t *testing.T) {
	o := &stubOracle{results: []oracle.ClassifyResult{{Tool: "weather", Confidence: 0.9}}}
	r := New(o, stubTools{names: []string{"weather"}}, time.Minute)
	defer r.Close()

	assert.True(t, r.ShouldRouteDirectly(Decision{Confidence: 0.7}))
	assert.False(t, r.ShouldRouteDirectly(Decision{Confidence: 0.69}))
}

func TestSimilarMatchReusesHighConfidenceDecision(t *testing.T) {
	o := &stubOracle{results: []oracle.ClassifyResult{{Tool: "weather", Confidence: 0.95}}}
	r := New(o, stubTools{names: []string{"weather"}}, time.Minute)
	defer r.Close()

	_, err := r.Classify(context.Background(), "current weather forecast boston update detailed outlook morning")
	require.NoError(t, err)

	d, err := r.Classify(context.Background(), "current weather forecast boston update detailed outlook afternoon")
	require.NoError(t, err)
	assert.Equal(t, "weather", d.Tool)
	assert.InDelta(t, 0.95*similarityDecay, d.Confidence, 0.001)
	assert.Equal(t, 1, o.calls, "similar message should reuse cached decision, not call the oracle again")
}
