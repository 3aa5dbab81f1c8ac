package core

import "strings"

// stopwords are dropped from every tokenization, since their presence
// in two strings says nothing about topical overlap.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "can": true, "for": true, "from": true,
	"had": true, "has": true, "have": true, "how": true, "i": true, "in": true,
	"into": true, "is": true, "it": true, "its": true, "me": true, "my": true,
	"of": true, "on": true, "or": true, "our": true, "please": true, "that": true,
	"the": true, "their": true, "there": true, "this": true, "to": true,
	"was": true, "we": true, "were": true, "what": true, "when": true,
	"where": true, "which": true, "who": true, "will": true, "with": true,
	"would": true, "you": true, "your": true,
}

// Tokenize lowercases and splits s into a deduplicated set of word
// tokens, stripping common punctuation and stopwords. Shared by the
// routing classifier and the task manager's related-task lookup so
// both use the same notion of lexical overlap.
func Tokenize(s string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '\r', '.', ',', '!', '?', ':', ';', '"', '\'', '(', ')', '[', ']', '{', '}':
			return true
		}
		return false
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f != "" && !stopwords[f] {
			set[f] = true
		}
	}
	return set
}

// JaccardSimilarity returns the Jaccard index of the token sets of a
// and b: |intersection| / |union|. Two empty strings are defined as
// dissimilar (0), not 1, since there is nothing to match on.
func JaccardSimilarity(a, b string) float64 {
	setA := Tokenize(a)
	setB := Tokenize(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
