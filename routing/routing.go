// Package routing implements the RoutingClassifier fast-path decider,
// generalizing pkg/routing/autonomous.go's LLM-backed classification
// with functional options and pkg/routing/cache.go's SimpleCache (a
// mutex-guarded map with a background cleanup goroutine) into a
// classifier backed by the generic cache.TTLCache.
package routing

import (
	"context"
	"sync"
	"time"

	"github.com/itsneelabh/agentcore/cache"
	"github.com/itsneelabh/agentcore/core"
	"github.com/itsneelabh/agentcore/oracle"
)

const (
	// SyntheticConversational is the synthetic tool name for chitchat.
	SyntheticConversational = "conversational"
	// SyntheticGeneralSearch is the synthetic tool name for factual lookups
	// that don't match a registered tool.
	SyntheticGeneralSearch = "general_search"

	similarityThreshold       = 0.75
	similarityConfidenceFloor = 0.85
	similarityDecay           = 0.95
)

// Decision is the result of Classify: a tool name, a confidence score,
// and whether it was served from cache.
type Decision struct {
	Tool       string
	Confidence float64
	FromCache  bool
}

// OracleClassifier is the minimal LanguageOracle slice the routing
// package depends on, kept narrow so the classifier needs only Classify
// rather than a whole *oracle.Oracle.
type OracleClassifier interface {
	Classify(ctx context.Context, message string, validToolNames []string) (oracle.ClassifyResult, error)
}

// ToolLister supplies the current set of registered tool names, used to
// both build the oracle prompt and validate its answer.
type ToolLister interface {
	Names() []string
}

// similarEntry is what gets cached for the lexical-similarity pass: the
// original message text alongside the decision it produced, so later
// messages can be compared to it.
type similarEntry struct {
	message string
	tool    string
	conf    float64
}

// RoutingClassifier implements classify/should_route_directly.
type RoutingClassifier struct {
	mu         sync.RWMutex
	exact      *cache.TTLCache[Decision]
	history    []similarEntry
	maxHistory int
	oracle     OracleClassifier
	tools      ToolLister
	threshold  float64
	logger     core.Logger
}

// Option configures a RoutingClassifier.
type Option func(*RoutingClassifier)

// WithConfidenceThreshold overrides the default 0.7 direct-routing threshold.
func WithConfidenceThreshold(t float64) Option {
	return func(r *RoutingClassifier) { r.threshold = t }
}

// WithLogger attaches a logger.
func WithLogger(l core.Logger) Option {
	return func(r *RoutingClassifier) { r.logger = l }
}

// WithMaxHistory bounds how many past messages are kept for the
// lexical-similarity pass (default 500).
func WithMaxHistory(n int) Option {
	return func(r *RoutingClassifier) { r.maxHistory = n }
}

// New creates a RoutingClassifier. ttl bounds the exact-match cache's
// entry lifetime.
func New(oracle OracleClassifier, tools ToolLister, ttl time.Duration, opts ...Option) *RoutingClassifier {
	r := &RoutingClassifier{
		exact:      cache.New[Decision](ttl, 10000),
		oracle:     oracle,
		tools:      tools,
		threshold:  0.7,
		maxHistory: 500,
		logger:     core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Classify runs the three-step decision: exact cache hit, then lexical
// similarity over recent history, then an oracle call with result
// validation and caching.
func (r *RoutingClassifier) Classify(ctx context.Context, message string) (Decision, error) {
	if d, ok := r.exact.Get(message); ok {
		d.FromCache = true
		return d, nil
	}

	if d, ok := r.similarMatch(message); ok {
		r.exact.Set(message, d)
		return d, nil
	}

	validNames := append([]string{SyntheticConversational, SyntheticGeneralSearch}, r.tools.Names()...)
	result, err := r.oracle.Classify(ctx, message, validNames)
	if err != nil {
		return Decision{}, err
	}

	tool := result.Tool
	conf := result.Confidence
	if !validSet(validNames)[tool] {
		r.logger.Warn("routing classifier returned unknown tool, substituting conversational", map[string]interface{}{
			"returned_tool": tool,
		})
		tool = SyntheticConversational
		conf = 0.5
	}
	if conf < 0 {
		conf = 0
	} else if conf > 1 {
		conf = 1
	}

	decision := Decision{Tool: tool, Confidence: conf, FromCache: false}
	r.exact.Set(message, decision)
	r.remember(message, decision)
	return decision, nil
}

// similarMatch scans recent history for a message with Jaccard
// similarity ≥ 0.75 whose stored confidence was ≥ 0.85, returning that
// tool at confidence × 0.95, a small decay for not being an exact match.
func (r *RoutingClassifier) similarMatch(message string) (Decision, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.history) - 1; i >= 0; i-- {
		entry := r.history[i]
		if entry.conf < similarityConfidenceFloor {
			continue
		}
		if core.JaccardSimilarity(message, entry.message) >= similarityThreshold {
			return Decision{Tool: entry.tool, Confidence: entry.conf * similarityDecay, FromCache: true}, true
		}
	}
	return Decision{}, false
}

func (r *RoutingClassifier) remember(message string, d Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, similarEntry{message: message, tool: d.Tool, conf: d.Confidence})
	if len(r.history) > r.maxHistory {
		r.history = r.history[len(r.history)-r.maxHistory:]
	}
}

// ShouldRouteDirectly reports whether decision's confidence clears the
// classifier's threshold (default 0.7).
func (r *RoutingClassifier) ShouldRouteDirectly(d Decision) bool {
	return d.Confidence >= r.threshold
}

// Close releases the classifier's background cache-sweep goroutine.
func (r *RoutingClassifier) Close() {
	r.exact.Close()
}

func validSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
