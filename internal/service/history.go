package service

import (
	"math"
	"strconv"
	"time"

	"github.com/care-pathway-engine/internal/domain"
	"github.com/care-pathway-engine/internal/timeline"
)

// History is the read-only input of every classifier rule, context block and
// catalog predicate: one person, their full report list and the evaluation
// instant. Dates read from fields are interpreted in Now's location.
type History struct {
	Person  *domain.Person
	Reports []domain.Report
	Now     time.Time
}

// NewHistory bundles an evaluation input.
func NewHistory(person *domain.Person, reports []domain.Report, now time.Time) *History {
	if person == nil {
		person = &domain.Person{}
	}
	return &History{Person: person, Reports: reports, Now: now}
}

// Location is the zone in which day boundaries are computed.
func (h *History) Location() *time.Location {
	return h.Now.Location()
}

// Newest returns the newest report of the given forms, or nil.
func (h *History) Newest(forms ...string) *domain.Report {
	return timeline.Newest(h.Reports, forms)
}

// Unskipped returns the newest report of form where the person was present
// and consenting, or nil.
func (h *History) Unskipped(form string) *domain.Report {
	return timeline.MostRecentUnskipped(h.Reports, form)
}

// Exists reports whether any report of the given forms exists.
func (h *History) Exists(forms ...string) bool {
	return timeline.Exists(h.Reports, forms...)
}

// ParseDate reads a date-like field in the evaluation zone.
func (h *History) ParseDate(s string) (time.Time, bool) {
	return timeline.ParseDate(s, h.Location())
}

// LifeEvent returns the newest death-and-migration report, or nil.
func (h *History) LifeEvent() *domain.Report {
	return h.Newest(domain.FormLifeEvent)
}

// IsActive reports whether no life-event report closes the pathway.
func (h *History) IsActive() bool {
	return h.LifeEvent() == nil
}

// LifeStatus derives the display status from the newest life-event report.
func (h *History) LifeStatus() domain.LifeStatus {
	event := h.LifeEvent()
	if event == nil {
		return domain.LIFE_ACTIVE
	}
	return domain.LifeStatusFromReason(event.Field(domain.FieldLifeEventReason))
}

// DateOfBirth parses the person's date of birth. The second result is false
// when it is missing or malformed; age-based rules then do not match.
func (h *History) DateOfBirth() (time.Time, bool) {
	return h.ParseDate(h.Person.DateOfBirth)
}

// AgeYears returns the person's age in whole years, or false when the date
// of birth is unknown.
func (h *History) AgeYears() (int, bool) {
	dob, ok := h.DateOfBirth()
	if !ok {
		return 0, false
	}
	return timeline.AgeInYears(dob, h.Now), true
}

// AgeMonths returns the calendar month difference between the date of birth
// and now, or false when the date of birth is unknown.
func (h *History) AgeMonths() (int, bool) {
	dob, ok := h.DateOfBirth()
	if !ok {
		return 0, false
	}
	return timeline.AgeInMonths(dob, h.Now), true
}

// IsUnder24Months reports whether the person is younger than 24 calendar
// months.
func (h *History) IsUnder24Months() bool {
	months, ok := h.AgeMonths()
	return ok && months < 24
}

// DaysSince returns whole days elapsed from t to now.
func (h *History) DaysSince(t time.Time) int {
	return timeline.DaysBetween(t, h.Now)
}

// Newer reports which of the newest ANC and newest post-delivery report is
// more recent: 1 for ANC (also when only an ANC exists), 2 for post-delivery,
// 0 when neither exists.
func (h *History) Newer() int {
	anc := h.Newest(domain.FormANC)
	pdf := h.Newest(domain.FormPostDelivery)
	switch {
	case anc != nil && pdf != nil:
		if anc.ReportedAt.After(pdf.ReportedAt) {
			return ancNewer
		}
		return pdfNewer
	case anc != nil:
		return ancNewer
	case pdf != nil:
		return pdfNewer
	default:
		return 0
	}
}

const (
	ancNewer = 1
	pdfNewer = 2
)

// WeeksSinceLMPAtLeast reports whether the newest ANC records a last
// menstrual period at least weeks ago. It is false once a post-delivery
// report is newer than every ANC, and when the date is missing or malformed.
func (h *History) WeeksSinceLMPAtLeast(weeks int) bool {
	if h.Newer() == pdfNewer {
		return false
	}
	anc := h.Newest(domain.FormANC)
	if anc == nil {
		return false
	}
	lmp, ok := h.ParseDate(anc.Field(domain.FieldANCLMP))
	if !ok {
		return false
	}
	return h.DaysSince(lmp)/7 >= weeks
}

// MonthsSinceDeliveryBelow reports whether fewer than months (of 30.4 days)
// have passed since the delivery date on the newest post-delivery report. It
// is false while an ANC is newer, and when no date can be read.
func (h *History) MonthsSinceDeliveryBelow(months int) bool {
	if h.Newer() == ancNewer {
		return false
	}
	pdf := h.Newest(domain.FormPostDelivery)
	if pdf == nil {
		return false
	}
	raw := pdf.Field(domain.FieldDeliveryDatePDF)
	if raw == "" {
		raw = pdf.Field(domain.FieldDeliveryDateCtx)
	}
	delivered, ok := h.ParseDate(raw)
	if !ok {
		return false
	}
	elapsed := int(math.Floor(float64(h.DaysSince(delivered)) / 30.4))
	return elapsed < months
}

// ModuleSequence returns the sequence number of the next depression-screening
// module form: the count of form reports plus one. It is false when no
// screening exists yet.
func (h *History) ModuleSequence(form string) (int, bool) {
	if !h.Exists(domain.FormEPDSScreening) {
		return 0, false
	}
	return timeline.Count(h.Reports, form) + 1, true
}

// SessionCaps bounds the psycho-social support visit counters.
type SessionCaps map[string]int

// schedulingSessionCaps bounds counters used by task applicability. The
// weekly cap must admit visit_4, which hands over to home visits.
var schedulingSessionCaps = SessionCaps{
	domain.FormPsuppHomeVisit:   3,
	domain.FormPsuppWeeklyVisit: 4,
	domain.FormPsupp:            1,
}

// contextSessionCaps bounds counters shown in the person context.
var contextSessionCaps = SessionCaps{
	domain.FormPsuppHomeVisit:   5,
	domain.FormPsuppWeeklyVisit: 4,
	domain.FormPsupp:            1,
}

const defaultSessionCap = 5

// SessionLabel returns "visit_N" where N counts form reports after the newest
// psupp_form plus one, capped per form. It is false when no psupp_form
// exists.
func (h *History) SessionLabel(form string, caps SessionCaps) (string, bool) {
	baseline := h.Newest(domain.FormPsupp)
	if baseline == nil {
		return "", false
	}
	limit, ok := caps[form]
	if !ok {
		limit = defaultSessionCap
	}
	n := timeline.CountAfter(h.Reports, form, baseline.ReportedAt) + 1
	if n > limit {
		n = limit
	}
	return "visit_" + strconv.Itoa(n), true
}

var childOrdinals = []string{"one", "two", "three", "four"}

// LiveBirthOutcome reports whether the newest post-delivery report records a
// delivery after 28 weeks with at least one live birth and one living child.
func (h *History) LiveBirthOutcome() bool {
	pdf := h.Newest(domain.FormPostDelivery)
	if pdf == nil || !pdf.Is(domain.FieldPregnancyOutcome, "delivery_28_weeks") {
		return false
	}
	var liveBirth, alive bool
	for i, word := range childOrdinals {
		n := strconv.Itoa(i + 1)
		group := "child_" + word + ".child_" + word
		if pdf.Is(group+"_birth_outcome"+n, "live_birth") {
			liveBirth = true
		}
		if pdf.Is(group+"_child_status"+n, "alive") {
			alive = true
		}
	}
	return liveBirth && alive
}

// ANCLatestWithoutScreening reports whether an ANC is the newest maternal
// report and no depression screening has been recorded.
func (h *History) ANCLatestWithoutScreening() bool {
	return h.Newer() == ancNewer && !h.Exists(domain.FormEPDSScreening)
}
