package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Interval is a (start, due, end) offset triple in days. Due is measured from
// the anchor instant; Start and End are measured back and forward from the
// due date, so a window is [due-Start, due+End].
type Interval struct {
	Start int `json:"start" yaml:"start"`
	Due   int `json:"due" yaml:"due"`
	End   int `json:"end" yaml:"end"`
}

// Validate rejects offsets that could place the window start after the due
// date or the end before it.
func (i Interval) Validate() error {
	if i.Start < 0 {
		return fmt.Errorf("%w: start offset %d is negative", ErrInvalidInterval, i.Start)
	}
	if i.End < 0 {
		return fmt.Errorf("%w: end offset %d is negative", ErrInvalidInterval, i.End)
	}
	return nil
}

// IsOpenEnded reports whether the interval never expires.
func (i Interval) IsOpenEnded() bool {
	return i.End >= Unbounded
}

// Window bounds when a task is visible, nominally due and still valid. A nil
// End means the window never expires.
type Window struct {
	Start time.Time  `json:"start"`
	Due   time.Time  `json:"due"`
	End   *time.Time `json:"end"`
}

// Contains reports whether t lies within the window, bounds inclusive.
func (w Window) Contains(t time.Time) bool {
	if t.Before(w.Start) {
		return false
	}
	return w.End == nil || !t.After(*w.End)
}

// IsConsistent reports whether start <= due <= end in absolute instants.
func (w Window) IsConsistent() bool {
	if w.Due.Before(w.Start) {
		return false
	}
	return w.End == nil || !w.End.Before(w.Due)
}

// TaskStatus is the actionability of a task instance relative to now.
type TaskStatus string

const (
	TASK_UPCOMING TaskStatus = "upcoming"
	TASK_READY    TaskStatus = "ready"
	TASK_EXPIRED  TaskStatus = "expired"
	TASK_RESOLVED TaskStatus = "resolved"
)

// IsOpen reports whether the task still needs caregiver action.
func (s TaskStatus) IsOpen() bool {
	return s == TASK_UPCOMING || s == TASK_READY
}

// StatusAt derives the task status at now.
func StatusAt(w Window, resolved bool, now time.Time) TaskStatus {
	switch {
	case resolved:
		return TASK_RESOLVED
	case now.Before(w.Start):
		return TASK_UPCOMING
	case w.End != nil && now.After(*w.End):
		return TASK_EXPIRED
	default:
		return TASK_READY
	}
}

// taskNamespace scopes deterministic task UUIDs.
var taskNamespace = uuid.MustParse("6c1d7d1e-8f36-4f0b-9b6e-2f1c0c3a9a51")

// TaskInstance is a computed, unpersisted reminder. It is a pure function of
// its definition, triggering report and the person's history at evaluation
// time.
type TaskInstance struct {
	ID             string            `json:"id"`
	UUID           string            `json:"uuid"`
	Definition     string            `json:"definition"`
	EventID        string            `json:"event_id"`
	Title          string            `json:"title"`
	Icon           string            `json:"icon,omitempty"`
	SourceReportID string            `json:"source_report_id,omitempty"`
	TargetForm     string            `json:"target_form"`
	Window         Window            `json:"window"`
	Resolved       bool              `json:"resolved"`
	Status         TaskStatus        `json:"status"`
	Prefill        map[string]string `json:"prefill,omitempty"`
}

// TaskID composes the stable identity of a task instance.
func TaskID(definition, source, eventID string) string {
	return definition + "~" + source + "~" + eventID
}

// TaskUUID derives a name-based UUID from a task id so repeated evaluations
// of the same history yield the same identifier.
func TaskUUID(id string) string {
	return uuid.NewSHA1(taskNamespace, []byte(id)).String()
}

// LogFields returns structured logging fields.
func (t *TaskInstance) LogFields() map[string]any {
	return map[string]any{
		"task_id":     t.ID,
		"definition":  t.Definition,
		"event_id":    t.EventID,
		"target_form": t.TargetForm,
		"due":         t.Window.Due.Format("2006-01-02"),
		"status":      string(t.Status),
	}
}
