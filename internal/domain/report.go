package domain

import (
	"strings"
	"time"

	"github.com/care-pathway-engine/pkg/fieldpath"
)

// Report is one immutable form submission tied to a contact and an instant.
// Reports are never mutated once created; deletion is a tombstone flag.
type Report struct {
	ID         string          `json:"id" yaml:"id"`
	Form       string          `json:"form" yaml:"form"`
	ReportedAt time.Time       `json:"reported_at" yaml:"reported_at"`
	Fields     *fieldpath.Node `json:"fields,omitempty" yaml:"fields,omitempty"`
	Deleted    bool            `json:"deleted,omitempty" yaml:"deleted,omitempty"`
}

// Get reads a leaf from the report's field tree. A nil report, a missing
// segment or a non-leaf target all yield an absent value.
func (r *Report) Get(path string) fieldpath.Value {
	if r == nil {
		return fieldpath.Absent()
	}
	return fieldpath.Get(r.Fields, path)
}

// Field returns the leaf text at path, or "" when absent.
func (r *Report) Field(path string) string {
	return r.Get(path).String()
}

// Is reports whether the leaf at path is present and equal to want.
func (r *Report) Is(path, want string) bool {
	return r.Get(path).Equals(want)
}

// Int reads the leaf at path as an integer; "" reads as zero and absent as
// not ok.
func (r *Report) Int(path string) (int, bool) {
	return r.Get(path).Int()
}

// Node returns the subtree at path, or nil.
func (r *Report) Node(path string) *fieldpath.Node {
	if r == nil {
		return nil
	}
	return fieldpath.Lookup(r.Fields, path)
}

// IsSkipped reports whether the person was absent or declined service on
// this report, using the form's skip-key table.
func (r *Report) IsSkipped() bool {
	if r == nil {
		return false
	}
	keys, ok := FormSkipKeys[r.Form]
	if !ok {
		return false
	}
	return r.Is(keys.Present, "no") || r.Is(keys.Agrees, "no")
}

// After reports whether r was reported strictly after other. A nil other is
// treated as the beginning of time.
func (r *Report) After(other *Report) bool {
	if r == nil {
		return false
	}
	if other == nil {
		return true
	}
	return r.ReportedAt.After(other.ReportedAt)
}

// Validate checks the report has the attributes every timeline query relies
// on.
func (r *Report) Validate() error {
	if r == nil {
		return NewValidationError("report", "report cannot be nil", nil)
	}
	if strings.TrimSpace(r.Form) == "" {
		return NewValidationError("form", "form identifier is required", r.ID)
	}
	if r.ReportedAt.IsZero() {
		return NewValidationError("reported_at", "reported_at is required", r.ID)
	}
	return nil
}

// IsValid reports whether the report can take part in timeline queries.
func (r *Report) IsValid() bool {
	return r.Validate() == nil
}

// LogFields returns structured logging fields.
func (r *Report) LogFields() map[string]any {
	if r == nil {
		return map[string]any{"report_id": ""}
	}
	return map[string]any{
		"report_id":   r.ID,
		"form":        r.Form,
		"reported_at": r.ReportedAt.UTC().Format(time.RFC3339),
		"deleted":     r.Deleted,
	}
}
