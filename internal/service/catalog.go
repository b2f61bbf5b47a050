package service

import (
	"fmt"
	"time"

	"github.com/care-pathway-engine/internal/domain"
	"github.com/care-pathway-engine/internal/timeline"
)

// Anchors name the instant an event's due offset is measured from.
const (
	AnchorReported     = "reported_at"
	AnchorDelivery     = "delivery_date"
	AnchorRegistration = "registered_at"
)

// ResolutionKind selects how a target-form report resolves a task.
type ResolutionKind int

const (
	// ResolveAfterTrigger counts target reports dated strictly after the
	// triggering report and inside the window.
	ResolveAfterTrigger ResolutionKind = iota
	// ResolveFromTrigger also counts a target report at the trigger instant,
	// except when the target is the pregnancy screening form.
	ResolveFromTrigger
	// ResolveTerminatedOnly resolves only when the pathway is closed.
	ResolveTerminatedOnly
)

// String returns the listing name of the kind.
func (k ResolutionKind) String() string {
	switch k {
	case ResolveFromTrigger:
		return "from_trigger"
	case ResolveTerminatedOnly:
		return "terminated_only"
	default:
		return "after_trigger"
	}
}

// Event is one window generator of a task definition.
type Event struct {
	ID       string
	Interval domain.Interval
	Anchor   string
	// DueDays overrides Interval.Due per triggering report; the trigger is nil
	// for contact-based definitions.
	DueDays func(trigger *domain.Report) int
}

// dueOffset returns the due offset in days for a trigger.
func (e Event) dueOffset(trigger *domain.Report) int {
	if e.DueDays != nil {
		return e.DueDays(trigger)
	}
	return e.Interval.Due
}

// TaskDefinition binds trigger forms, an applicability predicate, window
// generators and a resolution predicate. All functions are pure.
type TaskDefinition struct {
	Name  string
	Title string
	Icon  string

	// TriggerForms lists the report forms evaluated against Applies. A
	// contact-based definition has none and is evaluated once per person.
	TriggerForms []string
	ContactBased bool

	// Applies decides whether the trigger generates the task. The trigger is
	// nil for contact-based definitions.
	Applies func(h *History, trigger *domain.Report) bool

	// SkipCurrencyCheck lets a trigger generate tasks even when a newer
	// report of its form exists.
	SkipCurrencyCheck bool

	Events     []Event
	TargetForm string
	Resolution ResolutionKind

	// ResolvedIf is an extra resolution predicate; nil never resolves.
	ResolvedIf func(h *History, trigger *domain.Report) bool

	// Prefill projects history onto the target form's expected fields.
	Prefill func(remap *RemapTables, h *History, trigger *domain.Report) map[string]string
}

// triggeredBy reports whether form is one of the definition's triggers.
func (d *TaskDefinition) triggeredBy(form string) bool {
	for _, f := range d.TriggerForms {
		if f == form {
			return true
		}
	}
	return false
}

// includesTrigger reports whether a target report at the trigger instant
// resolves the task.
func (d *TaskDefinition) includesTrigger() bool {
	return d.Resolution == ResolveFromTrigger && d.TargetForm != domain.FormPregnancyScreening
}

// Window computes the day-aligned window of ev: due is anchor plus the due
// offset, start and end are measured back and forward from due.
func (d *TaskDefinition) Window(ev Event, anchor time.Time, trigger *domain.Report) domain.Window {
	due := timeline.AddDays(anchor, ev.dueOffset(trigger))
	w := domain.Window{
		Start: timeline.AddDays(due, -ev.Interval.Start),
		Due:   due,
	}
	if !ev.Interval.IsOpenEnded() {
		end := timeline.EndOfDay(timeline.AddDays(due, ev.Interval.End))
		w.End = &end
	}
	return w
}

// IsResolved applies the resolution detector to one task window.
func (d *TaskDefinition) IsResolved(h *History, trigger *domain.Report, w domain.Window) bool {
	if !h.IsActive() {
		return true
	}
	if d.Resolution != ResolveTerminatedOnly {
		from := w.Start
		if trigger != nil {
			earliest := trigger.ReportedAt.Add(time.Millisecond)
			if d.includesTrigger() {
				earliest = trigger.ReportedAt
			}
			if earliest.After(from) {
				from = earliest
			}
		}
		if timeline.SubmittedInWindow(h.Reports, []string{d.TargetForm}, from, w.End) {
			return true
		}
	}
	return d.ResolvedIf != nil && d.ResolvedIf(h, trigger)
}

// Validate checks the definition's structure and rejects definitions whose
// own trigger could resolve the task it generates.
func (d *TaskDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: definition name is required", domain.ErrAmbiguousDefinition)
	}
	if d.TargetForm == "" {
		return fmt.Errorf("%w: %s has no target form", domain.ErrAmbiguousDefinition, d.Name)
	}
	if d.Applies == nil {
		return fmt.Errorf("%w: %s has no applicability predicate", domain.ErrAmbiguousDefinition, d.Name)
	}
	if d.ContactBased == (len(d.TriggerForms) > 0) {
		return fmt.Errorf("%w: %s must be either contact-based or report-triggered", domain.ErrAmbiguousDefinition, d.Name)
	}
	if len(d.Events) == 0 {
		return fmt.Errorf("%w: %s has no events", domain.ErrAmbiguousDefinition, d.Name)
	}

	seen := make(map[string]struct{}, len(d.Events))
	for _, ev := range d.Events {
		if _, dup := seen[ev.ID]; dup {
			return fmt.Errorf("%w: %s repeats event %q", domain.ErrAmbiguousDefinition, d.Name, ev.ID)
		}
		seen[ev.ID] = struct{}{}
		if err := ev.Interval.Validate(); err != nil {
			return fmt.Errorf("%s/%s: %w", d.Name, ev.ID, err)
		}
		if d.includesTrigger() && d.triggeredBy(d.TargetForm) && ev.Interval.Due-ev.Interval.Start <= 0 {
			return fmt.Errorf("%w: %s/%s window opens on its own trigger", domain.ErrAmbiguousDefinition, d.Name, ev.ID)
		}
	}
	return nil
}

// Summary describes the definition for listings.
func (d *TaskDefinition) Summary() domain.DefinitionSummary {
	events := make([]domain.EventDef, len(d.Events))
	for i, ev := range d.Events {
		events[i] = domain.EventDef{ID: ev.ID, Interval: ev.Interval, Anchor: ev.Anchor}
	}
	return domain.DefinitionSummary{
		Name:            d.Name,
		Title:           d.Title,
		TriggerForms:    d.TriggerForms,
		ContactBased:    d.ContactBased,
		CurrencyChecked: !d.ContactBased && !d.SkipCurrencyCheck,
		TargetForm:      d.TargetForm,
		Events:          events,
	}
}

// Catalog is the ordered registry of task definitions.
type Catalog struct {
	definitions []*TaskDefinition
	byName      map[string]*TaskDefinition
}

// NewCatalog creates the perinatal workflow catalog.
func NewCatalog() *Catalog {
	c := &Catalog{byName: make(map[string]*TaskDefinition)}
	c.initializeDefinitions()
	return c
}

// NewCatalogFrom builds a catalog from explicit definitions.
func NewCatalogFrom(defs ...*TaskDefinition) *Catalog {
	c := &Catalog{byName: make(map[string]*TaskDefinition)}
	for _, d := range defs {
		c.addDefinition(d)
	}
	return c
}

func (c *Catalog) addDefinition(d *TaskDefinition) {
	c.definitions = append(c.definitions, d)
	c.byName[d.Name] = d
}

// Definitions returns the definitions in registration order.
func (c *Catalog) Definitions() []*TaskDefinition {
	out := make([]*TaskDefinition, len(c.definitions))
	copy(out, c.definitions)
	return out
}

// Get returns a definition by name.
func (c *Catalog) Get(name string) (*TaskDefinition, error) {
	d, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownDefinition, name)
	}
	return d, nil
}

// DisableCurrencyCheck opts the named definitions out of the currency check.
func (c *Catalog) DisableCurrencyCheck(names ...string) error {
	for _, name := range names {
		d, err := c.Get(name)
		if err != nil {
			return err
		}
		d.SkipCurrencyCheck = true
	}
	return nil
}

// Validate checks every definition and that names are unique.
func (c *Catalog) Validate() error {
	seen := make(map[string]struct{}, len(c.definitions))
	for _, d := range c.definitions {
		if _, dup := seen[d.Name]; dup {
			return fmt.Errorf("%w: duplicate definition %s", domain.ErrAmbiguousDefinition, d.Name)
		}
		seen[d.Name] = struct{}{}
		if err := d.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Summaries lists every definition.
func (c *Catalog) Summaries() []domain.DefinitionSummary {
	out := make([]domain.DefinitionSummary, len(c.definitions))
	for i, d := range c.definitions {
		out[i] = d.Summary()
	}
	return out
}
