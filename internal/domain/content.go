// Package domain contains pure, dependency-free domain models and types
// for the triage orchestrator.
package domain

import "strings"

// PartRole classifies a content part by how expendable it is when a
// payload must be shrunk to fit a model's context budget.
type PartRole int

const (
	// PartCore marks mandatory content: the document introduction and its
	// primary payload. Core parts are always sent.
	PartCore PartRole = iota

	// PartSupplemental marks optional material that may be dropped when
	// the full payload exceeds the context budget.
	PartSupplemental
)

// String returns a human-readable role name for logging.
func (r PartRole) String() string {
	if r == PartCore {
		return "core"
	}
	return "supplemental"
}

// ContentPart is one piece of a prospective model request payload.
// Parts are ordered; core parts always precede supplemental ones.
type ContentPart struct {
	// Name identifies the part for logging and degradation decisions
	// (e.g. "introduction", "main_document", "appendix_b").
	Name string

	// Text is the part's content.
	Text string

	// Role determines whether the part survives payload degradation.
	Role PartRole
}

// IsBlank reports whether the part carries no usable content.
// Blank parts are filtered out before cost measurement.
func (p ContentPart) IsBlank() bool {
	return strings.TrimSpace(p.Text) == ""
}

// Document is the input to one evaluation run: an identifier plus the
// ordered content parts shared by every classification task.
type Document struct {
	// ID identifies the document in logs, traces, and run results.
	ID string

	// Parts holds the ordered payload for classification calls.
	Parts []ContentPart
}

// CoreParts returns only the mandatory parts of the document, preserving
// order. This is the degraded payload used when the full set of parts
// exceeds a model's context budget.
func CoreParts(parts []ContentPart) []ContentPart {
	core := make([]ContentPart, 0, len(parts))
	for _, p := range parts {
		if p.Role == PartCore {
			core = append(core, p)
		}
	}
	return core
}
