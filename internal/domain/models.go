package domain

import (
	"maps"
	"time"
)

// Request/Response Models

// EvaluationRequest carries everything one evaluation needs. Now is optional
// at the outer surfaces; the host fills it before calling the engine.
type EvaluationRequest struct {
	Person  Person     `json:"person" yaml:"person"`
	Reports []Report   `json:"reports" yaml:"reports"`
	Now     *time.Time `json:"now,omitempty" yaml:"now,omitempty"`
}

// BatchEvaluationRequest evaluates several persons independently.
type BatchEvaluationRequest struct {
	Requests []EvaluationRequest `json:"requests"`
}

// StageResult is the output of the stage classifier. Both postnatal flags
// are reported independently of which stage won.
type StageResult struct {
	Stage            Stage      `json:"stage"`
	Rule             string     `json:"rule"`
	LifeStatus       LifeStatus `json:"life_status"`
	AgeYears         *int       `json:"age_years"`
	ANCActive        bool       `json:"anc_active"`
	DeliveryDate     *time.Time `json:"delivery_date"`
	PostpartumDays   *int       `json:"postpartum_days"`
	PostnatalWindow1 bool       `json:"postnatal_window_1"`
	PostnatalWindow2 bool       `json:"postnatal_window_2"`
}

// LogFields returns structured logging fields.
func (r StageResult) LogFields() map[string]any {
	fields := r.Stage.LogFields()
	fields["rule"] = r.Rule
	fields["life_status"] = string(r.LifeStatus)
	fields["pnc1"] = r.PostnatalWindow1
	fields["pnc2"] = r.PostnatalWindow2
	return fields
}

// Evaluation is the full derived state for one person at one instant.
type Evaluation struct {
	PersonID    string         `json:"person_id"`
	EvaluatedAt time.Time      `json:"evaluated_at"`
	Stage       StageResult    `json:"stage"`
	Context     Context        `json:"context"`
	Tasks       []TaskInstance `json:"tasks"`
}

// Clone returns a deep copy of e.
func (e *Evaluation) Clone() *Evaluation {
	if e == nil {
		return nil
	}
	out := *e
	out.Stage.AgeYears = clonePtr(e.Stage.AgeYears)
	out.Stage.DeliveryDate = clonePtr(e.Stage.DeliveryDate)
	out.Stage.PostpartumDays = clonePtr(e.Stage.PostpartumDays)
	out.Context = maps.Clone(e.Context)
	if e.Tasks != nil {
		out.Tasks = make([]TaskInstance, len(e.Tasks))
		for i, t := range e.Tasks {
			t.Window.End = clonePtr(t.Window.End)
			t.Prefill = maps.Clone(t.Prefill)
			out.Tasks[i] = t
		}
	}
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// OpenTasks returns the tasks still needing caregiver action.
func (e *Evaluation) OpenTasks() []TaskInstance {
	var open []TaskInstance
	for _, t := range e.Tasks {
		if t.Status.IsOpen() {
			open = append(open, t)
		}
	}
	return open
}

// BatchItemResult is one entry of a batch evaluation.
type BatchItemResult struct {
	PersonID   string      `json:"person_id"`
	Evaluation *Evaluation `json:"evaluation,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// BatchEvaluationResult aggregates a batch run.
type BatchEvaluationResult struct {
	Results   []BatchItemResult `json:"results"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

// DefinitionSummary describes a catalog entry for listings.
type DefinitionSummary struct {
	Name            string     `json:"name"`
	Title           string     `json:"title"`
	TriggerForms    []string   `json:"trigger_forms,omitempty"`
	ContactBased    bool       `json:"contact_based"`
	CurrencyChecked bool       `json:"currency_checked"`
	TargetForm      string     `json:"target_form"`
	Events          []EventDef `json:"events"`
}

// EventDef summarises one event generator of a catalog entry.
type EventDef struct {
	ID       string   `json:"id"`
	Interval Interval `json:"interval"`
	Anchor   string   `json:"anchor"`
}

// Snapshot is an audit record of one evaluation. It stores derived output
// only; reports are never persisted.
type Snapshot struct {
	ID          int64     `json:"id"`
	PersonID    string    `json:"person_id"`
	EvaluatedAt time.Time `json:"evaluated_at"`
	Stage       Stage     `json:"stage"`
	LifeStatus  string    `json:"life_status"`
	OpenTasks   int       `json:"open_tasks"`
	ContextJSON string    `json:"context_json"`
	TasksJSON   string    `json:"tasks_json"`
	InputDigest string    `json:"input_digest"`
	CreatedAt   time.Time `json:"created_at"`
}
