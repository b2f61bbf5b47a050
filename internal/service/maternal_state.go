package service

import (
	"time"

	"github.com/care-pathway-engine/internal/domain"
	"github.com/care-pathway-engine/internal/timeline"
)

// Delivery date sources, in resolution order.
const (
	DeliveryFromPostDelivery = "post_delivery"
	DeliveryFromScreening    = "screening"
	DeliveryFromANCEstimate  = "anc_edd"
)

const (
	postnatalWindow1Days = 365
	postnatalWindow2Days = 60
)

// maternalState gathers the screening-branch facts shared by the stage
// classifier and the context deriver.
type maternalState struct {
	Screening      *domain.Report
	PostDelivery   *domain.Report
	ANCActive      bool
	DeliveryDate   *time.Time
	DeliverySource string
	PostpartumDays *int
	Window1        bool
	Window2        bool
}

// resolveMaternalState computes the screening-branch facts. It returns the
// zero state when no pregnancy screening exists.
func resolveMaternalState(h *History) maternalState {
	var st maternalState
	st.Screening = h.Newest(domain.FormPregnancyScreening)
	if st.Screening == nil {
		return st
	}
	st.PostDelivery = h.Newest(domain.FormPostDelivery)
	st.ANCActive = isANCActive(h)

	date, source, ok := resolveDeliveryDate(h)
	if !ok {
		return st
	}
	st.DeliveryDate = &date
	st.DeliverySource = source

	days := h.DaysSince(date)
	st.PostpartumDays = &days
	st.Window1 = days < postnatalWindow1Days && st.PostDelivery.Is(domain.FieldStatusPNC1, "1")
	st.Window2 = days < postnatalWindow2Days && st.PostDelivery.Is(domain.FieldStatusPNC2, "1")
	return st
}

// isANCActive reports whether the person is in active antenatal care: the
// newest screening is not skipped, carries the ANC flag and is not
// superseded by a post-delivery report, and the newest ANC dated at or after
// it does not close the pregnancy.
func isANCActive(h *History) bool {
	pss := h.Newest(domain.FormPregnancyScreening)
	if pss == nil || pss.IsSkipped() {
		return false
	}
	if pdf := h.Newest(domain.FormPostDelivery); pdf.After(pss) {
		return false
	}
	if !pss.Is(domain.FieldANCFlag, "1") {
		return false
	}
	anc := timeline.NewestOf(h.Reports, domain.FormANC, timeline.Skip(func(r *domain.Report) bool {
		return r.ReportedAt.Before(pss.ReportedAt)
	}))
	return !closesPregnancy(anc)
}

// closesPregnancy reports whether an ANC report ends the antenatal branch:
// the pregnancy was not confirmed, the woman was found eligible for
// screening again, or delivery already happened.
func closesPregnancy(anc *domain.Report) bool {
	if anc == nil {
		return false
	}
	return anc.Is(domain.FieldANCFlag, "0") ||
		anc.Is(domain.FieldEligibleWoman, "1") ||
		anc.Is(domain.FieldPostDelivery, "1")
}

// resolveDeliveryDate establishes the delivery date in strict order: the
// newest post-delivery report's delivery date; else the delivery date of the
// newest direct-to-delivery screening not after that post-delivery report;
// else the estimated due date of the newest unskipped ANC when it postdates
// the newest screening. A malformed date yields no delivery date.
func resolveDeliveryDate(h *History) (time.Time, string, bool) {
	pdf := h.Newest(domain.FormPostDelivery)
	raw := pdf.Field(domain.FieldDeliveryDatePDF)
	source := DeliveryFromPostDelivery

	if raw == "" {
		opts := []timeline.Option{timeline.Skip(func(r *domain.Report) bool {
			return !r.Is(domain.FieldPDFDirect, "1")
		})}
		if pdf != nil {
			opts = append(opts, timeline.NotAfter(pdf.ReportedAt))
		}
		if pss := timeline.NewestOf(h.Reports, domain.FormPregnancyScreening, opts...); pss != nil {
			raw = pss.Field(domain.FieldPSSDeliveryDate)
			source = DeliveryFromScreening
		}
	}

	if raw == "" {
		anc := h.Unskipped(domain.FormANC)
		if anc.After(h.Newest(domain.FormPregnancyScreening)) {
			raw = anc.Field(domain.FieldANCEDD)
			source = DeliveryFromANCEstimate
		}
	}

	if raw == "" {
		return time.Time{}, "", false
	}
	date, ok := h.ParseDate(raw)
	if !ok {
		return time.Time{}, "", false
	}
	return timeline.StartOfDay(date), source, true
}

// triggerDeliveryDate anchors postnatal visits for one post-delivery report:
// its own delivery date, else the delivery date of the newest screening at or
// before the trigger that records one, else the report's own timestamp.
// Reports dated after the trigger never move the anchor.
func triggerDeliveryDate(h *History, trigger *domain.Report) time.Time {
	if d, ok := h.ParseDate(trigger.Field(domain.FieldDeliveryDatePDF)); ok {
		return d
	}
	pss := timeline.NewestOf(h.Reports, domain.FormPregnancyScreening,
		timeline.NotAfter(trigger.ReportedAt),
		timeline.Skip(func(r *domain.Report) bool {
			_, ok := h.ParseDate(r.Field(domain.FieldPSSDeliveryDate))
			return !ok
		}),
	)
	if pss != nil {
		d, _ := h.ParseDate(pss.Field(domain.FieldPSSDeliveryDate))
		return d
	}
	return trigger.ReportedAt
}

// postpartumDaysField reads pp_days from a post-delivery report; empty or
// missing reads as zero, text that is not a number has no value. Other forms
// have no value.
func postpartumDaysField(r *domain.Report) (int, bool) {
	if r == nil || r.Form != domain.FormPostDelivery {
		return 0, false
	}
	v := r.Get(domain.FieldPPDays)
	if v.IsEmpty() {
		return 0, true
	}
	return v.Int()
}
