// Package timeline is a small query algebra over a person's report history.
// Every stage, context and task decision is built from these primitives.
//
// Queries are pure: they never reorder or mutate their input, ignore
// tombstoned and malformed reports, and break reportedAt ties by report ID
// and then by position so repeated calls on the same input agree.
package timeline

import (
	"sort"
	"time"

	"github.com/care-pathway-engine/internal/domain"
	"github.com/care-pathway-engine/pkg/fieldpath"
)

// Condition tests a field value read from a report.
type Condition func(v fieldpath.Value) bool

// NotEmpty holds for present, non-empty values.
func NotEmpty(v fieldpath.Value) bool {
	return !v.IsEmpty()
}

// EqualTo holds for values equal to want.
func EqualTo(want string) Condition {
	return func(v fieldpath.Value) bool { return v.Equals(want) }
}

// Option narrows a Newest query.
type Option func(*query)

type query struct {
	notAfter *time.Time
	skip     func(*domain.Report) bool
}

// NotAfter excludes reports dated after t.
func NotAfter(t time.Time) Option {
	return func(q *query) { q.notAfter = &t }
}

// Skip excludes reports matched by pred.
func Skip(pred func(*domain.Report) bool) Option {
	return func(q *query) { q.skip = pred }
}

func usable(r *domain.Report) bool {
	return !r.Deleted && r.IsValid()
}

func formSet(forms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(forms))
	for _, f := range forms {
		set[f] = struct{}{}
	}
	return set
}

// newer reports whether a ranks above b in newest-first order.
func newer(a, b *domain.Report) bool {
	if !a.ReportedAt.Equal(b.ReportedAt) {
		return a.ReportedAt.After(b.ReportedAt)
	}
	return a.ID > b.ID
}

// Newest returns the report with the greatest reportedAt among non-deleted
// reports of the given forms, or nil when none qualifies.
func Newest(reports []domain.Report, forms []string, opts ...Option) *domain.Report {
	var q query
	for _, opt := range opts {
		opt(&q)
	}
	set := formSet(forms)

	var result *domain.Report
	for i := range reports {
		r := &reports[i]
		if !usable(r) {
			continue
		}
		if _, ok := set[r.Form]; !ok {
			continue
		}
		if q.notAfter != nil && r.ReportedAt.After(*q.notAfter) {
			continue
		}
		if q.skip != nil && q.skip(r) {
			continue
		}
		if result == nil || newer(r, result) {
			result = r
		}
	}
	return result
}

// NewestOf is Newest for a single form.
func NewestOf(reports []domain.Report, form string, opts ...Option) *domain.Report {
	return Newest(reports, []string{form}, opts...)
}

// MostRecentUnskipped is Newest for one form, excluding reports where the
// person was absent or declined service.
func MostRecentUnskipped(reports []domain.Report, form string) *domain.Report {
	return NewestOf(reports, form, Skip(func(r *domain.Report) bool { return r.IsSkipped() }))
}

// Between returns the reports of the given forms with after < reportedAt <
// before, oldest first.
func Between(reports []domain.Report, forms []string, after, before time.Time) []domain.Report {
	set := formSet(forms)
	var out []domain.Report
	for i := range reports {
		r := &reports[i]
		if !usable(r) {
			continue
		}
		if _, ok := set[r.Form]; !ok {
			continue
		}
		if r.ReportedAt.After(after) && r.ReportedAt.Before(before) {
			out = append(out, *r)
		}
	}
	SortOldestFirst(out)
	return out
}

// InWindow returns the reports of the given forms with start <= reportedAt <=
// end, oldest first. A nil end leaves the window open.
func InWindow(reports []domain.Report, forms []string, start time.Time, end *time.Time) []domain.Report {
	set := formSet(forms)
	var out []domain.Report
	for i := range reports {
		r := &reports[i]
		if !usable(r) {
			continue
		}
		if _, ok := set[r.Form]; !ok {
			continue
		}
		if r.ReportedAt.Before(start) {
			continue
		}
		if end != nil && r.ReportedAt.After(*end) {
			continue
		}
		out = append(out, *r)
	}
	SortOldestFirst(out)
	return out
}

// SubmittedInWindow reports whether any report of the given forms falls in
// [start, end].
func SubmittedInWindow(reports []domain.Report, forms []string, start time.Time, end *time.Time) bool {
	return len(InWindow(reports, forms, start, end)) > 0
}

// CountInWindow counts the reports of the given forms in [start, end] that
// satisfy cond. A nil cond counts every report.
func CountInWindow(reports []domain.Report, forms []string, start time.Time, end *time.Time, cond func(*domain.Report) bool) int {
	matched := InWindow(reports, forms, start, end)
	n := 0
	for i := range matched {
		if cond == nil || cond(&matched[i]) {
			n++
		}
	}
	return n
}

// Count returns the number of non-deleted reports of form.
func Count(reports []domain.Report, form string) int {
	n := 0
	for i := range reports {
		if usable(&reports[i]) && reports[i].Form == form {
			n++
		}
	}
	return n
}

// CountAfter returns the number of non-deleted reports of form dated strictly
// after t.
func CountAfter(reports []domain.Report, form string, t time.Time) int {
	n := 0
	for i := range reports {
		r := &reports[i]
		if usable(r) && r.Form == form && r.ReportedAt.After(t) {
			n++
		}
	}
	return n
}

// Exists reports whether any non-deleted report of the given forms exists.
func Exists(reports []domain.Report, forms ...string) bool {
	return Newest(reports, forms) != nil
}

// AggregateNumeric sums the integer value of each path across reports;
// absent and empty leaves add zero. It returns nil when reports is empty.
func AggregateNumeric(reports []domain.Report, paths []string) map[string]int {
	if len(reports) == 0 {
		return nil
	}
	agg := make(map[string]int, len(paths))
	for _, p := range paths {
		agg[p] = 0
	}
	for i := range reports {
		for _, p := range paths {
			if n, ok := reports[i].Int(p); ok {
				agg[p] += n
			}
		}
	}
	return agg
}

// FieldRecent returns the value of path from the most recent report of form
// whose value satisfies cond, or absent.
func FieldRecent(reports []domain.Report, form string, path string, cond Condition) fieldpath.Value {
	var best *domain.Report
	var value fieldpath.Value
	for i := range reports {
		r := &reports[i]
		if !usable(r) || r.Form != form {
			continue
		}
		v := r.Get(path)
		if !cond(v) {
			continue
		}
		if best == nil || newer(r, best) {
			best = r
			value = v
		}
	}
	if best == nil {
		return fieldpath.Absent()
	}
	return value
}

// FieldOnce returns the value of path from the oldest report of form whose
// value satisfies cond, or absent. It answers "was this ever recorded"
// questions.
func FieldOnce(reports []domain.Report, form string, path string, cond Condition) fieldpath.Value {
	var first *domain.Report
	var value fieldpath.Value
	for i := range reports {
		r := &reports[i]
		if !usable(r) || r.Form != form {
			continue
		}
		v := r.Get(path)
		if !cond(v) {
			continue
		}
		if first == nil || newer(first, r) {
			first = r
			value = v
		}
	}
	if first == nil {
		return fieldpath.Absent()
	}
	return value
}

// SortOldestFirst orders reports by reportedAt, then ID, in place.
func SortOldestFirst(reports []domain.Report) {
	sort.SliceStable(reports, func(i, j int) bool {
		return newer(&reports[j], &reports[i])
	})
}

// Filter returns the reports satisfying keep, preserving order.
func Filter(reports []domain.Report, keep func(*domain.Report) bool) []domain.Report {
	var out []domain.Report
	for i := range reports {
		if keep(&reports[i]) {
			out = append(out, reports[i])
		}
	}
	return out
}
