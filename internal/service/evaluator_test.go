package service

import (
	"context"
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/care-pathway-engine/internal/domain"
)

func TestEvaluate_AntenatalScenario(t *testing.T) {
	now := day(45)
	ev := evaluate(t, woman(), antenatalScenario(), now)

	assert.Equal(t, domain.STAGE_ANTENATAL_CARE, ev.Stage.Stage)
	assert.True(t, ev.Stage.ANCActive)
	assert.Equal(t, "woman-1", ev.PersonID)
	assert.Equal(t, now, ev.EvaluatedAt)

	anc := tasksOf(ev.Tasks, "anc_visit")
	require.Len(t, anc, domain.ANCVisitCount)
	assert.Len(t, ev.Tasks, domain.ANCVisitCount)

	first := findTask(ev.Tasks, "anc_visit~pss-1~anc-visit-1")
	require.NotNil(t, first)
	assert.Equal(t, domain.TASK_EXPIRED, first.Status)

	second := findTask(ev.Tasks, "anc_visit~pss-1~anc-visit-2")
	require.NotNil(t, second)
	assert.True(t, second.Resolved, "the ANC visit falls inside the second window")
	assert.Equal(t, domain.TASK_RESOLVED, second.Status)

	third := findTask(ev.Tasks, "anc_visit~pss-1~anc-visit-3")
	require.NotNil(t, third)
	assert.False(t, third.Resolved)
	assert.Equal(t, domain.TASK_UPCOMING, third.Status)
	assert.Equal(t, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), third.Window.Due, "due 30 days after the ANC visit")
	assert.Equal(t, domain.FormANC, third.TargetForm)
	assert.Equal(t, domain.TaskUUID(third.ID), third.UUID)
}

func TestEvaluate_PostnatalScenario(t *testing.T) {
	ev := evaluate(t, woman(), postnatalScenario(), time.Date(2024, 4, 20, 10, 0, 0, 0, time.UTC))

	assert.Equal(t, domain.STAGE_POSTNATAL_WINDOW_2, ev.Stage.Stage)
	assert.True(t, ev.Stage.PostnatalWindow1)
	assert.True(t, ev.Stage.PostnatalWindow2)
	require.NotNil(t, ev.Stage.PostpartumDays)
	assert.Equal(t, 10, *ev.Stage.PostpartumDays)

	for _, task := range tasksOf(ev.Tasks, "anc_visit") {
		assert.True(t, task.Resolved, "%s should be resolved by the post-delivery report", task.ID)
	}

	pnc := tasksOf(ev.Tasks, "pnc_visit")
	require.Len(t, pnc, len(pncVisitDays))
	delivered := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		event  string
		due    time.Time
		status domain.TaskStatus
	}{
		{"pnc-visit-0-days", delivered, domain.TASK_EXPIRED},
		{"pnc-visit-3-days", delivered.AddDate(0, 0, 3), domain.TASK_EXPIRED},
		{"pnc-visit-7-days", delivered.AddDate(0, 0, 7), domain.TASK_READY},
		{"pnc-visit-28-days", delivered.AddDate(0, 0, 28), domain.TASK_UPCOMING},
		{"pnc-visit-60-days", delivered.AddDate(0, 0, 60), domain.TASK_UPCOMING},
	}
	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			task := findTask(ev.Tasks, domain.TaskID("pnc_visit", "pdf-1", tt.event))
			require.NotNil(t, task)
			assert.Equal(t, tt.due, task.Window.Due)
			assert.Equal(t, tt.status, task.Status)

			second := findTask(ev.Tasks, domain.TaskID("pnc2_visit", "pdf-1", tt.event))
			require.NotNil(t, second)
			assert.Equal(t, domain.FormPNC2, second.TargetForm)
		})
	}

	followup := findTask(ev.Tasks, "pss-followup~pdf-1~pregnancy-screening-followup")
	require.NotNil(t, followup)
	assert.Equal(t, time.Date(2024, 7, 14, 0, 0, 0, 0, time.UTC), followup.Window.Due)
	assert.Nil(t, followup.Window.End)
}

func TestEvaluate_AbsenceShiftsScreeningFollowup(t *testing.T) {
	tests := []struct {
		name   string
		reason string
		days   int
	}{
		{"gone for work", "gone_for_work", 30},
		{"back in a year", "back_in_1_year", 90},
		{"unknown reason keeps nominal", "visiting", 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pss := report("pss-away", domain.FormPregnancyScreening, base, map[string]any{
				"woman_at_home":  "no",
				"reason_absence": tt.reason,
			})
			ev := evaluate(t, woman(), []domain.Report{pss}, day(1))

			assert.Equal(t, domain.STAGE_PREGNANCY_SCREENING, ev.Stage.Stage)
			task := findTask(ev.Tasks, "pss-followup~pss-away~pregnancy-screening-followup")
			require.NotNil(t, task)
			assert.Equal(t, day(tt.days).Truncate(24*time.Hour), task.Window.Due)
		})
	}
}

func TestEvaluate_Terminated(t *testing.T) {
	reports := append(antenatalScenario(), report("life-1", domain.FormLifeEvent, day(40), map[string]any{
		"reason": "permanent_migration",
	}))
	ev := evaluate(t, woman(), reports, day(45))

	assert.Equal(t, domain.STAGE_TERMINATED, ev.Stage.Stage)
	assert.Equal(t, domain.LIFE_MIGRATED, ev.Stage.LifeStatus)
	assert.Equal(t, domain.BoolValue(false), ev.Context.Get("active"))
	assert.Equal(t, domain.TextValue("Migrated"), ev.Context.Get("life_status"))

	for _, name := range []string{"lmp_days_calc", "anc_active", "pp_days", "delivery_date_pdf", "edd"} {
		assert.False(t, ev.Context.Has(name), "terminated context must not carry %s", name)
	}
	for _, task := range ev.Tasks {
		assert.Equal(t, domain.TASK_RESOLVED, task.Status, task.ID)
	}
	assert.Empty(t, ev.OpenTasks())
}

func TestEvaluate_IdempotentAndOrderIndependent(t *testing.T) {
	now := time.Date(2024, 4, 20, 10, 0, 0, 0, time.UTC)
	reports := postnatalScenario()
	reports = append(reports,
		report("pnc-1", domain.FormPNC, time.Date(2024, 4, 12, 9, 0, 0, 0, time.UTC), nil),
		report("pss-old", domain.FormPregnancyScreening, day(-200), map[string]any{"anc": "0"}),
	)

	e := newTestEvaluator(t)
	encode := func(rs []domain.Report) []byte {
		ev, err := e.Evaluate(context.Background(), &domain.EvaluationRequest{Person: woman(), Reports: rs, Now: &now})
		require.NoError(t, err)
		data, err := json.Marshal(ev)
		require.NoError(t, err)
		return data
	}

	want := encode(reports)
	assert.Equal(t, want, encode(reports))

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := append([]domain.Report(nil), reports...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.JSONEq(t, string(want), string(encode(shuffled)))
	}
}

func TestEvaluate_ResolutionIsMonotonic(t *testing.T) {
	at := func(d, h int) time.Time { return time.Date(2024, 4, d, h, 0, 0, 0, time.UTC) }
	dated := func(id string, when time.Time, delivered string) domain.Report {
		fields := map[string]any{"woman_at_home": "yes", "agrees_for_service": "yes"}
		if delivered != "" {
			fields["standard"] = map[string]any{"standard_delivery_date_pdf": delivered}
		}
		return report(id, domain.FormPregnancyScreening, when, fields)
	}
	// The delivery date comes from the screening; the first PNC visit
	// resolves the seven-day postnatal task.
	delivered := []domain.Report{
		dated("pss-1", at(1, 9), "2024-04-10"),
		postDelivery("pdf-1", at(15, 9), "", nil),
		report("pnc-1", domain.FormPNC, at(16, 9), nil),
	}

	tests := []struct {
		name     string
		reports  []domain.Report
		inserted []domain.Report
		now      time.Time
		resolved string
	}{
		{
			name:     "later antenatal visits",
			reports:  antenatalScenario(),
			inserted: []domain.Report{antenatal("anc-2", day(62), nil), antenatal("anc-3", day(95), nil)},
			now:      day(100),
			resolved: "anc_visit~pss-1~anc-visit-2",
		},
		{
			name:     "screening between the post-delivery report and the PNC visit",
			reports:  delivered,
			inserted: []domain.Report{dated("pss-2", at(15, 12), "")},
			now:      at(20, 10),
			resolved: "pnc_visit~pdf-1~pnc-visit-7-days",
		},
		{
			name:     "screening with another delivery date after the trigger",
			reports:  delivered,
			inserted: []domain.Report{dated("pss-2", at(15, 12), "2024-04-14")},
			now:      at(20, 10),
			resolved: "pnc_visit~pdf-1~pnc-visit-7-days",
		},
		{
			name:     "undated screening before the trigger",
			reports:  delivered,
			inserted: []domain.Report{dated("pss-0", at(8, 9), "")},
			now:      at(20, 10),
			resolved: "pnc_visit~pdf-1~pnc-visit-7-days",
		},
		{
			name:     "earlier PNC visit",
			reports:  delivered,
			inserted: []domain.Report{report("pnc-0", domain.FormPNC, at(15, 18), nil)},
			now:      at(20, 10),
			resolved: "pnc_visit~pdf-1~pnc-visit-7-days",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := evaluate(t, woman(), tt.reports, tt.now)
			task := findTask(before.Tasks, tt.resolved)
			require.NotNil(t, task, tt.resolved)
			require.True(t, task.Resolved, "%s must be resolved before the insert", tt.resolved)

			after := evaluate(t, woman(), append(append([]domain.Report(nil), tt.reports...), tt.inserted...), tt.now)
			for _, task := range before.Tasks {
				if !task.Resolved {
					continue
				}
				if later := findTask(after.Tasks, task.ID); later != nil {
					assert.True(t, later.Resolved, "%s must stay resolved", task.ID)
				}
			}

			later := findTask(after.Tasks, tt.resolved)
			require.NotNil(t, later, tt.resolved)
			assert.True(t, later.Resolved)
			assert.Equal(t, task.Window, later.Window)
		})
	}
}

func TestEvaluate_TriggerNeverResolvesItsOwnTasks(t *testing.T) {
	scenarios := map[string][]domain.Report{
		"antenatal": antenatalScenario(),
		"postnatal": postnatalScenario(),
		"under two": {
			report("u2-1", domain.FormU2Registry, day(0), map[string]any{"child_at_home": "yes"}),
			report("u2-2", domain.FormU2Registry, day(20), map[string]any{"child_at_home": "yes"}),
		},
		"depression screening": {
			report("pdf-1", domain.FormPostDelivery, day(0), nil),
			report("epds-1", domain.FormEPDSScreening, day(10), epdsFields("pp_women", "40")),
			report("m2-1", domain.FormEPDSModule2, day(20), map[string]any{"module2": map[string]any{"cond_m2_s": "no_ab"}}),
			report("m2-2", domain.FormEPDSModule2, day(30), map[string]any{"module2": map[string]any{"cond_m2_s": "no_ab"}}),
		},
	}

	scheduler := NewTaskScheduler(NewCatalog(), mustRemap(t), quietLogger())
	for name, reports := range scenarios {
		t.Run(name, func(t *testing.T) {
			person := woman()
			if name == "under two" {
				person = child("2023-12-01")
			}
			for _, trigger := range reports {
				var prefix []domain.Report
				for _, r := range reports {
					if !r.ReportedAt.After(trigger.ReportedAt) {
						prefix = append(prefix, r)
					}
				}
				for _, task := range scheduler.Schedule(&person, prefix, trigger.ReportedAt) {
					if task.SourceReportID != trigger.ID {
						continue
					}
					assert.False(t, task.Resolved, "%s resolved by its own trigger", task.ID)
				}
			}
		})
	}
}

func TestEvaluate_UsesEngineLocation(t *testing.T) {
	kathmandu := time.FixedZone("NPT", 5*3600+45*60)
	e, err := NewDefaultEvaluator(quietLogger(), domain.EngineConfig{}, WithLocation(kathmandu))
	require.NoError(t, err)

	reports := antenatalScenario()
	now := day(45)
	ev, err := e.Evaluate(context.Background(), &domain.EvaluationRequest{Person: woman(), Reports: reports, Now: &now})
	require.NoError(t, err)

	assert.Equal(t, kathmandu, ev.EvaluatedAt.Location())
	for _, task := range ev.Tasks {
		due := task.Window.Due.In(kathmandu)
		assert.Zero(t, due.Hour(), task.ID)
		assert.Zero(t, due.Minute(), task.ID)
	}
	assert.Equal(t, time.UTC, reports[0].ReportedAt.Location(), "caller reports are not modified")
}

func TestEvaluate_UsesClockWhenNowMissing(t *testing.T) {
	fixed := day(45)
	e, err := NewDefaultEvaluator(quietLogger(), domain.EngineConfig{}, WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)

	ev, err := e.Evaluate(context.Background(), &domain.EvaluationRequest{Person: woman(), Reports: antenatalScenario()})
	require.NoError(t, err)
	assert.True(t, fixed.Equal(ev.EvaluatedAt))
}

func TestEvaluate_RejectsInvalidInput(t *testing.T) {
	e := newTestEvaluator(t)

	t.Run("nil request", func(t *testing.T) {
		_, err := e.Evaluate(context.Background(), nil)
		assert.ErrorIs(t, err, domain.ErrInvalidPerson)
	})

	t.Run("missing id", func(t *testing.T) {
		person := woman()
		person.ID = ""
		_, err := e.Evaluate(context.Background(), &domain.EvaluationRequest{Person: person})
		assert.ErrorIs(t, err, domain.ErrInvalidPerson)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := e.Evaluate(ctx, &domain.EvaluationRequest{Person: woman()})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestEvaluate_IgnoresDeletedAndInvalidReports(t *testing.T) {
	reports := antenatalScenario()
	deleted := postDelivery("pdf-deleted", day(45), "2024-04-10", nil)
	deleted.Deleted = true
	undated := postDelivery("pdf-undated", time.Time{}, "2024-04-10", nil)
	reports = append(reports, deleted, undated)

	ev := evaluate(t, woman(), reports, day(46))
	assert.Equal(t, domain.STAGE_ANTENATAL_CARE, ev.Stage.Stage)
	assert.Empty(t, tasksOf(ev.Tasks, "pnc_visit"))
}

func TestClassify(t *testing.T) {
	e := newTestEvaluator(t)
	now := day(45)

	result, err := e.Classify(context.Background(), &domain.EvaluationRequest{Person: woman(), Reports: antenatalScenario(), Now: &now})
	require.NoError(t, err)
	assert.Equal(t, domain.STAGE_ANTENATAL_CARE, result.Stage)
	assert.Equal(t, "anc_active", result.Rule)
}

func TestBatchEvaluate(t *testing.T) {
	e := newTestEvaluator(t)
	now := day(45)

	invalid := woman()
	invalid.ID = ""
	second := woman()
	second.ID = "woman-2"

	reqs := []domain.EvaluationRequest{
		{Person: woman(), Reports: antenatalScenario(), Now: &now},
		{Person: invalid, Now: &now},
		{Person: second, Reports: postnatalScenario(), Now: &now},
	}

	t.Run("keeps order and counts failures", func(t *testing.T) {
		result := e.BatchEvaluate(context.Background(), reqs)
		require.Len(t, result.Results, 3)
		assert.Equal(t, 2, result.Succeeded)
		assert.Equal(t, 1, result.Failed)

		assert.Equal(t, "woman-1", result.Results[0].PersonID)
		require.NotNil(t, result.Results[0].Evaluation)
		assert.Equal(t, domain.STAGE_ANTENATAL_CARE, result.Results[0].Evaluation.Stage.Stage)

		assert.Nil(t, result.Results[1].Evaluation)
		assert.NotEmpty(t, result.Results[1].Error)

		require.NotNil(t, result.Results[2].Evaluation)
		assert.Equal(t, "woman-2", result.Results[2].Evaluation.PersonID)
	})

	t.Run("cancelled context fails every item", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		result := e.BatchEvaluate(ctx, reqs)
		assert.Equal(t, 0, result.Succeeded)
		assert.Equal(t, 3, result.Failed)
	})
}

func TestNewDefaultEvaluator(t *testing.T) {
	t.Run("skip currency check", func(t *testing.T) {
		e, err := NewDefaultEvaluator(quietLogger(), domain.EngineConfig{SkipCurrencyCheckFor: []string{"pss-followup"}})
		require.NoError(t, err)
		def, err := e.Catalog().Get("pss-followup")
		require.NoError(t, err)
		assert.True(t, def.SkipCurrencyCheck)
	})

	t.Run("unknown definition", func(t *testing.T) {
		_, err := NewDefaultEvaluator(quietLogger(), domain.EngineConfig{SkipCurrencyCheckFor: []string{"nope"}})
		assert.ErrorIs(t, err, domain.ErrUnknownDefinition)
	})

	t.Run("bad timezone", func(t *testing.T) {
		_, err := NewDefaultEvaluator(quietLogger(), domain.EngineConfig{Timezone: "Nowhere/Atlantis"})
		assert.Error(t, err)
	})

	t.Run("missing remap file", func(t *testing.T) {
		_, err := NewDefaultEvaluator(quietLogger(), domain.EngineConfig{RemapTablesPath: "/nonexistent/remap.yaml"})
		assert.Error(t, err)
	})
}
