package timeline

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/care-pathway-engine/internal/domain"
	"github.com/care-pathway-engine/pkg/fieldpath"
)

var base = time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

func report(id, form string, day int, fields map[string]any) domain.Report {
	return domain.Report{
		ID:         id,
		Form:       form,
		ReportedAt: base.AddDate(0, 0, day),
		Fields:     fieldpath.FromMap(fields),
	}
}

func TestNewest(t *testing.T) {
	reports := []domain.Report{
		report("a", domain.FormPregnancyScreening, 0, map[string]any{"anc": "1"}),
		report("b", domain.FormPregnancyScreening, 10, map[string]any{"anc": "0"}),
		report("c", domain.FormANC, 20, nil),
		report("d", domain.FormPregnancyScreening, 30, nil),
	}
	reports[3].Deleted = true

	t.Run("skips deleted", func(t *testing.T) {
		got := NewestOf(reports, domain.FormPregnancyScreening)
		require.NotNil(t, got)
		assert.Equal(t, "b", got.ID)
	})

	t.Run("multiple forms", func(t *testing.T) {
		got := Newest(reports, []string{domain.FormPregnancyScreening, domain.FormANC})
		require.NotNil(t, got)
		assert.Equal(t, "c", got.ID)
	})

	t.Run("not after bound", func(t *testing.T) {
		got := NewestOf(reports, domain.FormPregnancyScreening, NotAfter(base.AddDate(0, 0, 5)))
		require.NotNil(t, got)
		assert.Equal(t, "a", got.ID)
	})

	t.Run("not after is inclusive", func(t *testing.T) {
		got := NewestOf(reports, domain.FormPregnancyScreening, NotAfter(base.AddDate(0, 0, 10)))
		require.NotNil(t, got)
		assert.Equal(t, "b", got.ID)
	})

	t.Run("skip predicate", func(t *testing.T) {
		got := NewestOf(reports, domain.FormPregnancyScreening, Skip(func(r *domain.Report) bool {
			return r.Field("anc") != "1"
		}))
		require.NotNil(t, got)
		assert.Equal(t, "a", got.ID)
	})

	t.Run("no qualifying report", func(t *testing.T) {
		assert.Nil(t, NewestOf(reports, domain.FormPostDelivery))
		assert.Nil(t, NewestOf(nil, domain.FormANC))
	})

	t.Run("returns pointer into input", func(t *testing.T) {
		got := NewestOf(reports, domain.FormANC)
		assert.Same(t, &reports[2], got)
	})
}

func TestNewestTieBreakIsStable(t *testing.T) {
	reports := []domain.Report{
		report("x", domain.FormANC, 5, nil),
		report("y", domain.FormANC, 5, nil),
	}
	first := NewestOf(reports, domain.FormANC)
	require.NotNil(t, first)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first.ID, NewestOf(reports, domain.FormANC).ID)
	}

	reversed := []domain.Report{reports[1], reports[0]}
	assert.Equal(t, first.ID, NewestOf(reversed, domain.FormANC).ID)
}

func TestNewestIsMaximal(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	forms := []string{domain.FormANC, domain.FormPregnancyScreening, domain.FormPostDelivery}

	for trial := 0; trial < 200; trial++ {
		n := rng.Intn(12)
		reports := make([]domain.Report, n)
		for i := range reports {
			reports[i] = report(fmt.Sprintf("r%d", i), forms[rng.Intn(len(forms))], rng.Intn(60), nil)
			reports[i].Deleted = rng.Intn(5) == 0
		}

		target := []string{forms[rng.Intn(len(forms))]}
		got := Newest(reports, target)

		for i := range reports {
			r := reports[i]
			if r.Deleted || r.Form != target[0] {
				continue
			}
			require.NotNil(t, got, "trial %d", trial)
			assert.False(t, r.ReportedAt.After(got.ReportedAt), "trial %d: %s newer than %s", trial, r.ID, got.ID)
		}
		if got != nil {
			assert.False(t, got.Deleted)
			assert.Equal(t, target[0], got.Form)
		}
	}
}

func TestMostRecentUnskipped(t *testing.T) {
	reports := []domain.Report{
		report("a", domain.FormPregnancyScreening, 0, map[string]any{"woman_at_home": "yes", "agrees_for_service": "yes"}),
		report("b", domain.FormPregnancyScreening, 10, map[string]any{"woman_at_home": "no"}),
		report("c", domain.FormPregnancyScreening, 20, map[string]any{"woman_at_home": "yes", "agrees_for_service": "no"}),
		report("d", domain.FormPostDelivery, 30, map[string]any{"woman_at_home": "no"}),
	}

	got := MostRecentUnskipped(reports, domain.FormPregnancyScreening)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.ID)

	pdf := MostRecentUnskipped(reports, domain.FormPostDelivery)
	require.NotNil(t, pdf)
	assert.Equal(t, "d", pdf.ID, "forms outside the skip table are never skipped")
}

func TestBetween(t *testing.T) {
	reports := []domain.Report{
		report("a", domain.FormANC, 0, nil),
		report("b", domain.FormANC, 5, nil),
		report("c", domain.FormANC, 3, nil),
		report("d", domain.FormANC, 10, nil),
		report("e", domain.FormPNC, 4, nil),
	}

	got := Between(reports, []string{domain.FormANC}, base, base.AddDate(0, 0, 10))
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "a", reports[0].ID, "input order untouched")
}

func TestInWindow(t *testing.T) {
	reports := []domain.Report{
		report("a", domain.FormANC, 0, nil),
		report("b", domain.FormANC, 7, nil),
		report("c", domain.FormANC, 14, nil),
	}
	end := base.AddDate(0, 0, 7)

	assert.Len(t, InWindow(reports, []string{domain.FormANC}, base, &end), 2, "bounds inclusive")
	assert.Len(t, InWindow(reports, []string{domain.FormANC}, base.Add(time.Millisecond), nil), 2)
	assert.True(t, SubmittedInWindow(reports, []string{domain.FormANC}, base.AddDate(0, 0, 14), nil))
	assert.False(t, SubmittedInWindow(reports, []string{domain.FormPNC}, base, nil))

	count := CountInWindow(reports, []string{domain.FormANC}, base, nil, func(r *domain.Report) bool {
		return r.ID != "b"
	})
	assert.Equal(t, 2, count)
}

func TestCounts(t *testing.T) {
	reports := []domain.Report{
		report("a", domain.FormEPDSModule1, 0, nil),
		report("b", domain.FormEPDSModule1, 5, nil),
		report("c", domain.FormEPDSModule2, 6, nil),
	}
	reports[1].Deleted = true

	assert.Equal(t, 1, Count(reports, domain.FormEPDSModule1))
	assert.Equal(t, 1, CountAfter(reports, domain.FormEPDSModule2, base))
	assert.Equal(t, 0, CountAfter(reports, domain.FormEPDSModule1, base))
	assert.True(t, Exists(reports, domain.FormEPDSModule2))
	assert.False(t, Exists(reports, domain.FormEPDSModule3))
}

func TestAggregateNumeric(t *testing.T) {
	paths := []string{"initial_stock.initial_stock_ors", "initial_stock.initial_stock_zinc10mg"}

	assert.Nil(t, AggregateNumeric(nil, paths))

	reports := []domain.Report{
		report("a", domain.FormStockIn, 0, map[string]any{
			"initial_stock": map[string]any{"initial_stock_ors": "10", "initial_stock_zinc10mg": ""},
		}),
		report("b", domain.FormStockIn, 1, map[string]any{
			"initial_stock": map[string]any{"initial_stock_ors": "5"},
		}),
	}
	got := AggregateNumeric(reports, paths)
	assert.Equal(t, map[string]int{
		"initial_stock.initial_stock_ors":      15,
		"initial_stock.initial_stock_zinc10mg": 0,
	}, got)
}

func TestFieldRecentAndOnce(t *testing.T) {
	reports := []domain.Report{
		report("a", domain.FormANC, 20, map[string]any{"labs": map[string]any{"labs_hb": ""}}),
		report("b", domain.FormANC, 10, map[string]any{"labs": map[string]any{"labs_hb": "11"}}),
		report("c", domain.FormANC, 0, map[string]any{"labs": map[string]any{"labs_hb": "9"}}),
		report("d", domain.FormPNC, 30, map[string]any{"labs": map[string]any{"labs_hb": "13"}}),
	}

	assert.Equal(t, "11", FieldRecent(reports, domain.FormANC, "labs.labs_hb", NotEmpty).String())
	assert.Equal(t, "9", FieldOnce(reports, domain.FormANC, "labs.labs_hb", NotEmpty).String())
	assert.True(t, FieldRecent(reports, domain.FormANC, "labs.labs_missing", NotEmpty).IsAbsent())
	assert.True(t, FieldOnce(reports, domain.FormANC, "labs.labs_hb", EqualTo("12")).IsAbsent())

	v := FieldRecent(reports, domain.FormANC, "labs.labs_hb", func(fieldpath.Value) bool { return true })
	assert.True(t, v.Equals(""), "unconditional read returns newest even when empty")
}

func TestFilter(t *testing.T) {
	reports := []domain.Report{
		report("a", domain.FormANC, 0, nil),
		report("b", domain.FormPNC, 1, nil),
	}
	got := Filter(reports, func(r *domain.Report) bool { return r.Form == domain.FormPNC })
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}
