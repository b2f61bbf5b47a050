package service

import (
	"strconv"

	"github.com/care-pathway-engine/internal/domain"
)

// Nominal follow-up intervals in days.
var (
	u2Interval  = domain.Interval{Start: 7, Due: 30, End: domain.Unbounded}
	pssInterval = domain.Interval{Start: 14, Due: 90, End: domain.Unbounded}
	pdfInterval = domain.Interval{Start: 0, Due: 0, End: 7}

	ancVisitDays = []int{0, 30, 60, 90, 120, 150, 180, 210, 240, 270}
	pncVisitDays = []int{0, 3, 7, 28, 60}
)

const (
	iconPregnancy  = "icon-pregnancy"
	iconScreening  = "icon-perinatal-screening"
	iconModule     = "icon-perinatal-module"
	iconSupport    = "icon-perinatal-module1"
	defaultEventID = "default"
)

// gapDays shortens or lengthens a nominal follow-up when the trigger
// records the person as away.
func gapDays(trigger *domain.Report, nominal int) int {
	if !trigger.Is(domain.FieldWomanAtHome, "no") && !trigger.Is(domain.FieldChildAtHome, "no") {
		return nominal
	}
	switch trigger.Field(domain.FieldReasonAbsence) {
	case "gone_for_work", "back_6_month", "location_unknown":
		return 30
	case "back_in_1_year":
		return 90
	default:
		return nominal
	}
}

// screeningEvent schedules the next pregnancy screening.
func screeningEvent(nominal int) Event {
	interval := pssInterval
	interval.Due = nominal
	return Event{
		ID:       "pregnancy-screening-followup",
		Interval: interval,
		Anchor:   AnchorReported,
		DueDays: func(trigger *domain.Report) int {
			switch trigger.Form {
			case domain.FormPregnancyScreening:
				if trigger.Get(domain.FieldUrineTest).In("indetermined", "test_malfunctioning", "not_tested") {
					return 15
				}
			case domain.FormPostDelivery:
				if trigger.Is(domain.FieldPNC2Flag, "1") {
					return 60
				}
				return nominal
			}
			return gapDays(trigger, nominal)
		},
	}
}

func underTwoEvent() Event {
	return Event{
		ID:       "u2-followup",
		Interval: u2Interval,
		Anchor:   AnchorReported,
		DueDays: func(trigger *domain.Report) int {
			return gapDays(trigger, u2Interval.Due)
		},
	}
}

func ancEvents() []Event {
	events := make([]Event, len(ancVisitDays))
	for i, days := range ancVisitDays {
		events[i] = Event{
			ID:       "anc-visit-" + strconv.Itoa(days/30+1),
			Interval: domain.Interval{Start: 7, Due: days, End: 7},
			Anchor:   AnchorReported,
		}
	}
	return events
}

// pncEvents anchor on the delivery date; the early visits get one-day
// margins.
func pncEvents() []Event {
	events := make([]Event, len(pncVisitDays))
	for i, days := range pncVisitDays {
		start, end := 7, 7
		if days <= 7 {
			start = 1
		}
		if days < 7 {
			end = 1
		}
		events[i] = Event{
			ID:       "pnc-visit-" + strconv.Itoa(days) + "-days",
			Interval: domain.Interval{Start: start, Due: days, End: end},
			Anchor:   AnchorDelivery,
		}
	}
	return events
}

func singleEvent(start, due, end int) []Event {
	return []Event{{ID: defaultEventID, Interval: domain.Interval{Start: start, Due: due, End: end}, Anchor: AnchorReported}}
}

func (c *Catalog) initializeDefinitions() {
	c.addDefinition(&TaskDefinition{
		Name:         "u2-registry",
		Title:        "task.u2_first.title",
		Icon:         iconPregnancy,
		ContactBased: true,
		Applies: func(h *History, _ *domain.Report) bool {
			return h.IsUnder24Months() && !h.Exists(domain.FormU2Registry)
		},
		Events: []Event{{
			ID:       "u2-registration",
			Interval: domain.Interval{Start: 0, Due: 0, End: 30},
			Anchor:   AnchorRegistration,
		}},
		TargetForm: domain.FormU2Registry,
		Resolution: ResolveTerminatedOnly,
	})

	c.addDefinition(&TaskDefinition{
		Name:         "pss-followup",
		Title:        "task.pss.title",
		Icon:         iconPregnancy,
		TriggerForms: []string{domain.FormPregnancyScreening, domain.FormPostDelivery},
		Applies: func(h *History, r *domain.Report) bool {
			if r.Form != domain.FormPregnancyScreening {
				return true
			}
			if age, ok := h.AgeYears(); ok && age > 49 {
				return false
			}
			return !r.Is(domain.FieldANCFlag, "1") && !r.Is(domain.FieldPDFDirect, "1") && !r.Is(domain.FieldRemoveWoman, "1")
		},
		Events:     []Event{screeningEvent(pssInterval.Due)},
		TargetForm: domain.FormPregnancyScreening,
		Resolution: ResolveFromTrigger,
	})

	c.addDefinition(&TaskDefinition{
		Name:         "u2-registry-followup",
		Title:        "task.u2.title",
		Icon:         iconPregnancy,
		TriggerForms: []string{domain.FormU2Registry},
		Applies: func(h *History, _ *domain.Report) bool {
			return h.IsUnder24Months()
		},
		Events:     []Event{underTwoEvent()},
		TargetForm: domain.FormU2Registry,
		Resolution: ResolveFromTrigger,
	})

	c.addDefinition(&TaskDefinition{
		Name:              "anc_visit",
		Title:             "task.anc.title",
		Icon:              iconPregnancy,
		TriggerForms:      []string{domain.FormPregnancyScreening},
		SkipCurrencyCheck: true,
		Applies: func(_ *History, r *domain.Report) bool {
			return r.Is(domain.FieldANCFlag, "1")
		},
		Events:     ancEvents(),
		TargetForm: domain.FormANC,
		Resolution: ResolveFromTrigger,
		ResolvedIf: pregnancyConcluded,
	})

	c.addDefinition(&TaskDefinition{
		Name:         "post_delivery",
		Title:        "task.pdf.title",
		Icon:         iconPregnancy,
		TriggerForms: []string{domain.FormANC, domain.FormPregnancyScreening},
		Applies: func(_ *History, r *domain.Report) bool {
			if r.Form == domain.FormPregnancyScreening {
				return r.Is(domain.FieldPDFDirect, "1")
			}
			return r.Is(domain.FieldPostDelivery, "1")
		},
		Events:     []Event{{ID: "post-delivery", Interval: pdfInterval, Anchor: AnchorReported}},
		TargetForm: domain.FormPostDelivery,
		Resolution: ResolveFromTrigger,
	})

	c.addDefinition(&TaskDefinition{
		Name:         "pss_false_pregnancy",
		Title:        "task.pss.title",
		Icon:         iconPregnancy,
		TriggerForms: []string{domain.FormANC},
		Applies: func(_ *History, r *domain.Report) bool {
			return r.Is(domain.FieldEligibleWoman, "1")
		},
		Events:     []Event{screeningEvent(0)},
		TargetForm: domain.FormPregnancyScreening,
		Resolution: ResolveFromTrigger,
		Prefill: func(remap *RemapTables, h *History, _ *domain.Report) map[string]string {
			out := remap.Prefill(h.Unskipped(domain.FormPregnancyScreening), "")
			for k, v := range remap.Prefill(h.Newest(domain.FormPostDelivery), domain.FormPregnancyScreening) {
				out[k] = v
			}
			return out
		},
	})

	c.addDefinition(postnatalDefinition("pnc_visit", "task.pnc.title", domain.FieldStatusPNC1, domain.FormPNC))
	c.addDefinition(postnatalDefinition("pnc2_visit", "task.pnc2.title", domain.FieldStatusPNC2, domain.FormPNC2))

	c.addDefinition(&TaskDefinition{
		Name:         "perinatal_screening",
		Title:        "task.perinatal_screening",
		Icon:         iconScreening,
		TriggerForms: []string{domain.FormPostDelivery},
		Applies: func(h *History, _ *domain.Report) bool {
			return h.LiveBirthOutcome() && h.MonthsSinceDeliveryBelow(10)
		},
		Events:     singleEvent(7, 7, 90000),
		TargetForm: domain.FormEPDSScreening,
	})

	c.addDefinition(&TaskDefinition{
		Name:         "perinatal_screening_1",
		Title:        "task.perinatal_screening_1",
		Icon:         iconScreening,
		TriggerForms: []string{domain.FormANC},
		Applies: func(h *History, _ *domain.Report) bool {
			return h.ANCLatestWithoutScreening() && h.WeeksSinceLMPAtLeast(14)
		},
		Events:     singleEvent(7, 7, 90000),
		TargetForm: domain.FormEPDSScreening,
	})

	c.addDefinition(&TaskDefinition{
		Name:         "perinatal_module_1",
		Title:        "task.perinatal_module_1",
		Icon:         iconModule,
		TriggerForms: []string{domain.FormEPDSScreening},
		Applies: func(h *History, r *domain.Report) bool {
			lmpDays, ok := r.Int(domain.FieldEPDSLMPDays)
			return ok && lmpDays >= 14 &&
				screeningEligible(r, "preg_women") &&
				firstModule(h, domain.FormEPDSModule1) &&
				h.Newer() == ancNewer
		},
		Events:     singleEvent(7, 7, 90),
		TargetForm: domain.FormEPDSModule1,
	})

	c.addDefinition(&TaskDefinition{
		Name:         "perinatal_module_1.1",
		Title:        "task.perinatal_module_1.1",
		Icon:         iconModule,
		TriggerForms: []string{domain.FormEPDSModule1},
		Applies: func(h *History, r *domain.Report) bool {
			return sequenceIn(h, domain.FormEPDSModule1, 2, 3, 4, 5) &&
				h.Newer() == ancNewer &&
				r.Get("module1.cond_m_s").In("none_abve", "")
		},
		Events:     singleEvent(2, 7, 90),
		TargetForm: domain.FormEPDSModule1,
	})

	postpartumBands := [][2]int{{7, 34}, {35, 120}, {121, 210}, {211, 299}}
	for i, band := range postpartumBands {
		n := i + 2
		c.addDefinition(postpartumModule(n, band[0], band[1]))
		c.addDefinition(moduleRepeat(n, 1, []int{2, 5}, 2, 7, false))
		if n == 2 {
			c.addDefinition(moduleRepeat(n, 2, []int{3, 4}, 2, 15, true))
		} else {
			c.addDefinition(moduleRepeat(n, 2, []int{3, 4}, 22, 30, true))
		}
	}

	c.addDefinition(&TaskDefinition{
		Name:         "epds_assessment",
		Title:        "task.epds_assessment",
		Icon:         iconModule,
		TriggerForms: []string{domain.FormEPDSScreening},
		Applies: func(_ *History, r *domain.Report) bool {
			return r.Is(domain.FieldEPDSEligibility, "1") && r.Is(domain.FieldEPDSConsent, "yes")
		},
		Events: []Event{
			{ID: "epds_event_1", Interval: domain.Interval{Start: 150, Due: 90, End: 15}, Anchor: AnchorReported},
			{ID: "epds_event_2", Interval: domain.Interval{Start: 15, Due: 180, End: 15}, Anchor: AnchorReported},
			{ID: "epds_event_3", Interval: domain.Interval{Start: 15, Due: 270, End: 15}, Anchor: AnchorReported},
		},
		TargetForm: domain.FormEPDSAssessment,
	})

	c.addDefinition(&TaskDefinition{
		Name:         "psupp_home_visit",
		Title:        "task.psupp_home_visit",
		Icon:         iconSupport,
		TriggerForms: []string{domain.FormPsupp, domain.FormPsuppWeeklyVisit},
		Applies: func(h *History, r *domain.Report) bool {
			if r.Is(domain.FieldPsuppContinueCall, "yes") {
				return true
			}
			label, ok := h.SessionLabel(domain.FormPsuppWeeklyVisit, schedulingSessionCaps)
			return ok && label == "visit_4"
		},
		Events:     singleEvent(30, 30, 90),
		TargetForm: domain.FormPsuppHomeVisit,
	})

	c.addDefinition(&TaskDefinition{
		Name:         "psupp_weekly_visit",
		Title:        "task.psupp_weekly_visit",
		Icon:         iconSupport,
		TriggerForms: []string{domain.FormPsuppHomeVisit, domain.FormPsuppWeeklyVisit},
		Applies: func(_ *History, r *domain.Report) bool {
			switch r.Form {
			case domain.FormPsuppHomeVisit:
				return r.Is(domain.FieldPsuppEndFirstHome, "yes")
			case domain.FormPsuppWeeklyVisit:
				return r.Get(domain.FieldPsuppWeeklyVisit).In("visit_1", "visit_2")
			default:
				return false
			}
		},
		Events:     singleEvent(30, 30, 90),
		TargetForm: domain.FormPsuppWeeklyVisit,
	})
}

// pregnancyConcluded resolves antenatal visits once a later ANC ends the
// pregnancy branch or a post-delivery report follows the screening.
func pregnancyConcluded(h *History, trigger *domain.Report) bool {
	if h.Newest(domain.FormPostDelivery).After(trigger) {
		return true
	}
	anc := h.Newest(domain.FormANC)
	if !anc.After(trigger) {
		return false
	}
	return anc.Is(domain.FieldEligibleWoman, "1") || anc.Is(domain.FieldPostDelivery, "1") || anc.Is(domain.FieldANCFlag, "0")
}

func postnatalDefinition(name, title, statusField, target string) *TaskDefinition {
	return &TaskDefinition{
		Name:         name,
		Title:        title,
		Icon:         iconPregnancy,
		TriggerForms: []string{domain.FormPostDelivery},
		Applies: func(_ *History, r *domain.Report) bool {
			days, ok := postpartumDaysField(r)
			return r.Is(statusField, "1") && ok && days < postnatalWindow2Days
		},
		Events:     pncEvents(),
		TargetForm: target,
		Resolution: ResolveFromTrigger,
		Prefill: func(remap *RemapTables, _ *History, r *domain.Report) map[string]string {
			return remap.Prefill(r, domain.FormPNC)
		},
	}
}

// screeningEligible checks the eligibility, status and consent answers of a
// depression screening and that no child condition excludes the woman.
func screeningEligible(r *domain.Report, status string) bool {
	return r.Is(domain.FieldEPDSEligibility, "1") &&
		r.Is(domain.FieldEPDSWomenStatus, status) &&
		r.Is(domain.FieldEPDSConsent, "yes") &&
		r.Get(domain.FieldEPDSChildStatus).In("none", "")
}

func firstModule(h *History, form string) bool {
	return sequenceIn(h, form, 1)
}

func sequenceIn(h *History, form string, allowed ...int) bool {
	n, ok := h.ModuleSequence(form)
	if !ok {
		return false
	}
	for _, a := range allowed {
		if n == a {
			return true
		}
	}
	return false
}

// daysSinceDelivery reads the screening's updated delivery-days answer,
// falling back to the original one when it is blank or not a number.
func daysSinceDelivery(r *domain.Report) (int, bool) {
	updated := r.Get(domain.FieldEPDSUpdatedDays)
	if !updated.IsEmpty() && !updated.Equals("NaN") {
		return updated.Int()
	}
	return r.Int(domain.FieldEPDSDeliveryDays)
}

// postpartumModule is the first module N task for a postpartum woman whose
// days since delivery fall in [lo, hi).
func postpartumModule(n, lo, hi int) *TaskDefinition {
	form := domain.EPDSModuleForms[n-1]
	suffix := strconv.Itoa(n)
	return &TaskDefinition{
		Name:         "perinatal_module_" + suffix,
		Title:        "task.perinatal_module_" + suffix,
		Icon:         iconModule,
		TriggerForms: []string{domain.FormEPDSScreening},
		Applies: func(h *History, r *domain.Report) bool {
			days, ok := daysSinceDelivery(r)
			return ok && days >= lo && days < hi &&
				screeningEligible(r, "pp_women") &&
				firstModule(h, form)
		},
		Events:     singleEvent(7, 7, 90),
		TargetForm: form,
	}
}

// moduleRepeat schedules a repeat of module N while its sequence number is
// in allowed. strict requires the explicit "no condition" answer; otherwise
// a blank answer also qualifies.
func moduleRepeat(n, step int, allowed []int, start, due int, strict bool) *TaskDefinition {
	form := domain.EPDSModuleForms[n-1]
	suffix := strconv.Itoa(n)
	condition := "module" + suffix + ".cond_m" + suffix + "_s"
	name := "perinatal_module_" + suffix + "." + strconv.Itoa(step)
	return &TaskDefinition{
		Name:         name,
		Title:        "task." + name,
		Icon:         iconModule,
		TriggerForms: []string{form},
		Applies: func(h *History, r *domain.Report) bool {
			if !sequenceIn(h, form, allowed...) {
				return false
			}
			if strict {
				return r.Is(condition, "no_ab")
			}
			return r.Get(condition).In("no_ab", "")
		},
		Events:     singleEvent(start, due, 90),
		TargetForm: form,
	}
}
