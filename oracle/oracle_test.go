package oracle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/agentcore/core"
	"github.com/itsneelabh/agentcore/oracle/providers/mock"
)

func TestClassifyParsesJSON(t *testing.T) {
	p := &mock.Provider{Responses: []string{`{"tool": "weather", "confidence": 0.92, "reasoning": "matches weather lookup"}`}}
	o := New(p, nil)

	result, err := o.Classify(context.Background(), "what's the weather", []string{"weather", "conversational"})
	require.NoError(t, err)
	assert.Equal(t, "weather", result.Tool)
	assert.InDelta(t, 0.92, result.Confidence, 0.001)
}

func TestClassifyParsesFencedJSON(t *testing.T) {
	p := &mock.Provider{Responses: []string{"```json\n{\"tool\": \"conversational\", \"confidence\": 0.5}\n```"}}
	o := New(p, nil)

	result, err := o.Classify(context.Background(), "hi there", []string{"conversational"})
	require.NoError(t, err)
	assert.Equal(t, "conversational", result.Tool)
}

func TestClassifyPropagatesProviderError(t *testing.T) {
	p := &mock.Provider{Err: assertError{}}
	o := New(p, nil)

	_, err := o.Classify(context.Background(), "msg", []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrOracle)
}

func TestSynthesizeIncludesSuccessesAndFailures(t *testing.T) {
	p := &mock.Provider{Responses: []string{"It is sunny."}}
	o := New(p, nil)

	text, err := o.Synthesize(context.Background(), "what's the weather", map[string]core.ToolResult{
		"weather": {Success: true, Data: map[string]interface{}{"formatted": "sunny"}},
	}, map[string]core.ToolResult{
		"news": {Success: false, Error: "timeout"},
	})
	require.NoError(t, err)
	assert.Equal(t, "It is sunny.", text)
	assert.Contains(t, p.LastPrompt, "weather succeeded")
	assert.Contains(t, p.LastPrompt, "news failed")
}

func TestStreamEmitsFragmentsInOrder(t *testing.T) {
	p := &mock.Provider{StreamParts: []string{"Hello", " world", "."}}
	o := New(p, nil)

	frag, errc := o.Stream(context.Background(), "hi", nil)
	var got []string
	for f := range frag {
		got = append(got, f)
	}
	require.NoError(t, <-errc)
	assert.Equal(t, []string{"Hello", " world", "."}, got)
}

func TestExtractJSONBareObject(t *testing.T) {
	assert.Equal(t, `{"a":1}`, ExtractJSON(`here is the answer: {"a":1} thanks`))
}

func TestExtractJSONFencedBlock(t *testing.T) {
	assert.Equal(t, `{"a":1}`, ExtractJSON("```json\n{\"a\":1}\n```"))
}

type assertError struct{}

func (assertError) Error() string { return "provider failure" }
