package orchestrator

import (
	"fmt"
	"regexp"
	"strings"
)

// metaQueryPattern matches capability/status/health introspection
// questions.
var metaQueryPattern = regexp.MustCompile(`(?i)\b(what can you do|what tools|list (your )?(tools|capabilities)|are you (ok|okay|healthy|up)|system status|health (check|status)|how are you (feeling|doing))\b`)

func isMetaQuery(message string) bool {
	return metaQueryPattern.MatchString(message)
}

// multiStepConnectors and the verb lists below back the simple-query
// lexical simplicity predicate: a query only streams a bare
// conversational answer if none of these fire.
var (
	multiStepConnectors = []string{" then ", " after that", " and then", " once you", " followed by"}
	commandVerbs        = []string{"send", "delete", "create", "schedule", "book", "cancel", "update", "remove", "set ", "turn on", "turn off", "buy", "order"}
	researchVerbs       = []string{"search", "find", "look up", "research", "compare", "fetch", "download", "summarize the", "analyze"}
)

// isSimpleQuery is the lexical simplicity predicate: no multi-step
// connectors, no multi-tool mentions (approximated here as
// "no command or research verb", since tool names aren't known to this
// purely-lexical pass), no command verbs, no research verbs.
func isSimpleQuery(message string) bool {
	lower := strings.ToLower(message)
	for _, c := range multiStepConnectors {
		if strings.Contains(lower, c) {
			return false
		}
	}
	for _, v := range commandVerbs {
		if strings.Contains(lower, v) {
			return false
		}
	}
	for _, v := range researchVerbs {
		if strings.Contains(lower, v) {
			return false
		}
	}
	return true
}

// isSentenceTerminator reports whether r closes a sentence when followed by
// whitespace, the chunk boundary rule conversational streaming flushes on.
func isSentenceTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// renderMetaResponse synthesizes the capability/health introspection
// text from the registry catalog and the overall health status,
// mirroring orchestration/catalog.go's prompt-section formatting.
func renderMetaResponse(catalog string, health string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I'm currently %s. Here's what I can help with:\n%s", health, catalog)
	return b.String()
}
