// Package classify decides whether a task's content reads or mutates
// shared state. The heuristic is deliberately simple keyword matching: it
// is a policy choice, not a correctness requirement, and sits behind a
// narrow interface so it can be replaced without touching the broker.
package classify

import (
	"strings"
	"unicode"

	"github.com/phrazzld/taskrelay/internal/domain"
)

// Classifier maps free-form task content to a task type.
type Classifier interface {
	// Classify returns the task type for the given content. It must be
	// pure and deterministic: no side effects, no persistence.
	Classify(content string) domain.TaskType
}

// Default marker lists. Read markers are question words and inspection
// verbs; write markers are action verbs that imply mutation.
var (
	defaultReadMarkers = []string{
		"what", "why", "how", "when", "where", "who", "which",
		"explain", "show", "status", "describe", "list",
		"summarize", "review", "check", "?",
	}

	defaultWriteMarkers = []string{
		"create", "fix", "commit", "delete", "add", "remove",
		"update", "change", "write", "implement", "refactor",
		"install", "deploy", "rename", "move", "merge", "revert",
	}
)

// KeywordClassifier classifies content by case-insensitive keyword scan.
// A read marker with no competing write marker classifies read_only; any
// write marker classifies write; an inconclusive scan falls back to the
// configured default. The shipped default is write — serializing an
// ambiguous task is safer than risking concurrent mutation.
type KeywordClassifier struct {
	readMarkers  []string
	writeMarkers []string
	fallback     domain.TaskType
}

// NewKeywordClassifier creates a classifier with the default marker lists
// and the given fallback for inconclusive content.
func NewKeywordClassifier(fallback domain.TaskType) *KeywordClassifier {
	if !domain.IsValidTaskType(fallback) {
		fallback = domain.TaskTypeWrite
	}
	return &KeywordClassifier{
		readMarkers:  defaultReadMarkers,
		writeMarkers: defaultWriteMarkers,
		fallback:     fallback,
	}
}

// Classify implements Classifier.
func (c *KeywordClassifier) Classify(content string) domain.TaskType {
	lowered := strings.ToLower(content)
	words := tokenize(lowered)

	hasRead := matchesAny(lowered, words, c.readMarkers)
	hasWrite := matchesAny(lowered, words, c.writeMarkers)

	switch {
	case hasRead && !hasWrite:
		return domain.TaskTypeReadOnly
	case hasWrite:
		return domain.TaskTypeWrite
	default:
		return c.fallback
	}
}

// tokenize splits content into its alphanumeric words.
func tokenize(content string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(content, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words[w] = struct{}{}
	}
	return words
}

// matchesAny reports whether any marker appears in the content. Word
// markers must match a whole word, so "add" does not fire inside
// "address"; punctuation markers like "?" match anywhere.
func matchesAny(content string, words map[string]struct{}, markers []string) bool {
	for _, marker := range markers {
		if isWordMarker(marker) {
			if _, ok := words[marker]; ok {
				return true
			}
			continue
		}
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}

func isWordMarker(marker string) bool {
	if marker == "" {
		return false
	}
	for _, r := range marker {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
