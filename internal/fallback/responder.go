// Package fallback provides a deterministic canned-answer responder used when
// the completion collaborator is unavailable or disabled.
package fallback

import (
	"fmt"
	"strings"
)

type entry struct {
	keyword string
	answer  string
}

// Responder answers questions from a fixed keyword table. Matching is a
// lowercase substring check against the question; the first table entry that
// matches wins. It makes no external calls and never fails.
type Responder struct {
	entries []entry
}

// NewResponder returns a responder with the built-in answer table.
func NewResponder() *Responder {
	return &Responder{entries: defaultEntries}
}

// Table iteration order is the match priority, so more specific keywords go
// first.
var defaultEntries = []entry{
	{"photosynthesis", "Photosynthesis is the process by which plants convert light energy into chemical energy, producing oxygen as a byproduct."},
	{"mitochondria", "Mitochondria are organelles that generate most of a cell's supply of ATP, its main source of chemical energy."},
	{"gravity", "Gravity is the force by which objects with mass attract one another; on Earth it gives weight to physical objects."},
	{"water cycle", "The water cycle describes how water moves through evaporation, condensation, precipitation, and collection."},
	{"hello", "Hello! Ask me a question about your uploaded documents."},
	{"thank", "You're welcome. Let me know if you have more questions."},
	{"summary", "I can summarize uploaded documents once they are processed. Upload a document and ask again."},
	{"help", "Upload documents, wait for processing to finish, then ask questions about their content."},
}

// TableSize returns the number of entries in the built-in answer table.
func TableSize() int {
	return len(defaultEntries)
}

// Respond returns a deterministic answer for the question. When no table
// entry matches, a non-empty context produces a context-grounded template and
// an empty context a generic one.
func (r *Responder) Respond(question, context string) string {
	lower := strings.ToLower(question)
	for _, e := range r.entries {
		if strings.Contains(lower, e.keyword) {
			return e.answer
		}
	}
	context = strings.TrimSpace(context)
	if context != "" {
		return fmt.Sprintf("Based on the uploaded documents: %s", context)
	}
	return "I don't have enough information to answer that. Try uploading relevant documents first."
}
