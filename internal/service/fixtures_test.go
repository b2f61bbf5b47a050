package service

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/care-pathway-engine/internal/domain"
	"github.com/care-pathway-engine/pkg/fieldpath"
)

// base is the pregnancy screening instant shared by the scenario fixtures.
var base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return base.AddDate(0, 0, n)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func woman() domain.Person {
	return domain.Person{
		ID:            "woman-1",
		Type:          domain.CONTACT_PERSON,
		DateOfBirth:   "1998-05-10",
		Sex:           "female",
		MaritalStatus: "married",
	}
}

func child(dob string) domain.Person {
	return domain.Person{
		ID:          "child-1",
		Type:        domain.CONTACT_PERSON,
		DateOfBirth: dob,
		Sex:         "male",
	}
}

func report(id, form string, at time.Time, fields map[string]any) domain.Report {
	return domain.Report{
		ID:         id,
		Form:       form,
		ReportedAt: at,
		Fields:     fieldpath.FromMap(fields),
	}
}

// screening is a consenting pregnancy screening that starts antenatal care.
func screening(id string, at time.Time, extra map[string]any) domain.Report {
	fields := map[string]any{
		"anc":                "1",
		"woman_at_home":      "yes",
		"agrees_for_service": "yes",
		"continue_pss": map[string]any{
			"continue_pss_lmp_group": map[string]any{
				"continue_pss_lmp_group_lmp_days_calc": "70",
			},
			"continue_pss_contraceptive_related": map[string]any{
				"continue_pss_contraceptive_related_contraceptive_current": "none",
			},
		},
	}
	for k, v := range extra {
		fields[k] = v
	}
	return report(id, domain.FormPregnancyScreening, at, fields)
}

func antenatal(id string, at time.Time, extra map[string]any) domain.Report {
	fields := map[string]any{
		"visit_type": map[string]any{"woman_at_home": "yes", "agrees_for_service": "yes"},
	}
	for k, v := range extra {
		fields[k] = v
	}
	return report(id, domain.FormANC, at, fields)
}

func postDelivery(id string, at time.Time, delivered string, extra map[string]any) domain.Report {
	fields := map[string]any{
		"post_delivery_assessment": map[string]any{"delivery_date_pdf": delivered},
		"status_pnc1":              "1",
		"status_pnc2":              "1",
		"pp_days":                  "",
	}
	for k, v := range extra {
		fields[k] = v
	}
	return report(id, domain.FormPostDelivery, at, fields)
}

// antenatalScenario: screening with ANC flag, one ANC visit 30 days later.
func antenatalScenario() []domain.Report {
	return []domain.Report{
		screening("pss-1", base, nil),
		antenatal("anc-1", day(30), nil),
	}
}

// postnatalScenario adds a post-delivery report for a delivery ten days
// after the ANC visit.
func postnatalScenario() []domain.Report {
	return append(antenatalScenario(), postDelivery("pdf-1", day(45), "2024-04-10", nil))
}

func newTestEvaluator(t *testing.T) *EvaluatorService {
	t.Helper()
	e, err := NewDefaultEvaluator(quietLogger(), domain.EngineConfig{})
	require.NoError(t, err)
	return e
}

func evaluate(t *testing.T, person domain.Person, reports []domain.Report, now time.Time) *domain.Evaluation {
	t.Helper()
	e := newTestEvaluator(t)
	ev, err := e.Evaluate(t.Context(), &domain.EvaluationRequest{Person: person, Reports: reports, Now: &now})
	require.NoError(t, err)
	return ev
}

func findTask(tasks []domain.TaskInstance, id string) *domain.TaskInstance {
	for i := range tasks {
		if tasks[i].ID == id {
			return &tasks[i]
		}
	}
	return nil
}

func tasksOf(tasks []domain.TaskInstance, definition string) []domain.TaskInstance {
	var out []domain.TaskInstance
	for _, task := range tasks {
		if task.Definition == definition {
			out = append(out, task)
		}
	}
	return out
}

func definitionNames(tasks []domain.TaskInstance) map[string]bool {
	names := map[string]bool{}
	for _, task := range tasks {
		names[task.Definition] = true
	}
	return names
}
