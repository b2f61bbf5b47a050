package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/care-pathway-engine/internal/domain"
	"github.com/care-pathway-engine/internal/timeline"
	"github.com/care-pathway-engine/pkg/fieldpath"
)

// contextField binds a context parameter name to a report field path.
type contextField struct {
	name string
	path string
}

const (
	pssLMPDate       = "continue_pss.continue_pss_lmp_group.continue_pss_lmp_group_lmp_date_calc"
	pssLMPDateNepali = "continue_pss.continue_pss_lmp_group.continue_pss_lmp_group_lmp_date_calc_nepali"
	pssLMPDays       = "continue_pss.continue_pss_lmp_group.continue_pss_lmp_group_lmp_days_calc"
	pssContraceptive = "continue_pss.continue_pss_contraceptive_related.continue_pss_contraceptive_related_contraceptive_current"
	pssBCSGroup      = "balanced_counseling.balanced_counseling_bcs_form.balanced_counseling_bcs_form_"

	pncContraceptive  = "group_assessment_contraceptive.year_after_delivery_contraceptive_current"
	pnc2Contraceptive = "pnc_assessment.group_assessment_currentcontraceptive.contraceptive_current"

	pregnancyStatus       = "standard_pregnancy.standard_pregnancy_status"
	pregnancyStatusUpdate = "pregnancy_status_update"

	u2Over2Group = "group_assessment_agreeinservice.over_2_questions.over_2_questions_"
)

var procedureDates = []string{"iud_date", "fem_steralize_date", "male_steralize_date", "implant_date", "implant_date_second"}

var u2FirstYes = []string{"vitamin_a_caps_once", "vitamin_a_caps_twice", "vitamin_a_caps_thrice", "anti_worm_tablet", "anti_worm_tablet_twice"}

// ancLatestFields are read from the newest unskipped ANC of the current
// pregnancy.
var ancLatestFields = []contextField{
	{"visit_anc_month", "reporting_anc_visit_group_visit_anc_month"},
	{"anc_visit_count_counter", "anc_visit_count_counter"},
	{"anc_visit_count", "visit_counts_anc_visit_count"},
	{"muac_counter_anc", "muac_measurement.muac_measurement_muac_counter_anc"},
	{"hypertensive_nonchronic", "hypertension_calculations_hypertensive_nonchronic"},
	{"usg_history", "usg_history"},
	{"referral_immediate_hospital", "referral_followup_referral_immediate_hospital"},
	{"referral_1week_hospital", "referral_followup_referral_1week_hospital"},
	{"usg_complete", "usg.usg_usg_complete"},
	{"previous_pregnancy", "general.general_previous_pregnancy"},
}

var ancHighRiskFlags = []string{
	"hypertension_chronic", "hypertension_new", "diabetes_history", "hiv", "hbsag", "hcv", "vdrl",
	"anemia", "diabetes_new", "rh_negative", "placenta_previa", "fetal_presentation", "no_of_fetus",
	"urine_protein", "urine_sugar", "grandmultiparity",
}

// ancRecentFields are the most recent non-empty values across the current
// pregnancy's ANC reports.
var ancRecentFields = []contextField{
	{"hiv_results", "labs.labs_hiv_results"},
	{"hcv_results", "labs.labs_hcv_results"},
	{"vdrl_results", "labs.labs_vdrl_results"},
	{"hb", "labs.labs_hb"},
	{"hbsag_results", "labs.labs_hbsag_results"},
	{"blood_sugar", "labs.labs_blood_sugar"},
	{"blood_grouping", "labs.labs_blood_grouping"},
	{"rh_negative", "labs.labs_rh_negative"},
	{"urine_protein", "labs.labs_urine_protein"},
	{"urine_sugar", "labs.labs_urine_sugar"},
	{"urine_ph", "labs.labs_urine_ph"},
	{"labs_complete", "labs.labs_labs_complete"},
	{"weeks_pregnant", "lmp_group.lmp_group_weeks_pregnant"},
	{"months_pregnant", "lmp_group.lmp_group_months_pregnant"},
	{"edd", domain.FieldANCEDD},
	{"edd_nepali", "lmp_group.lmp_group_edd_nepali"},
	{"usg_date", "usg.usg_usg_date"},
	{"usg_date_nepali", "usg.usg_usg_date_nepali"},
	{"usg_results", "usg.usg_usg"},
	{"placenta_location_condition", "usg.usg_placenta_location_condition"},
	{"fetal_presentation_condition", "usg.usg_fetal_presentation_condition"},
	{"fetal_presentation_condition_other", "usg.usg_fetal_presentation_condition_other"},
	{"no_of_fetus", "usg.usg_no_of_fetus"},
	{"fetal_heart_rate", "usg.usg_fetal_heart_rate"},
	{"amniotic_fluid", "usg.usg_amniotic_fluid"},
	{"bpd_weeks", "usg.usg_measurements.usg_measurements_bpd_weeks"},
	{"bpd_days", "usg.usg_measurements.usg_measurements_bpd_days"},
	{"bpd_length", "usg.usg_measurements.usg_measurements_bpd_length"},
	{"femur_length_weeks", "usg.usg_measurements.usg_measurements_femur_length_weeks"},
	{"femur_length_days", "usg.usg_measurements.usg_measurements_femur_length_days"},
	{"estimate_fetal_weight", "usg.usg_measurements.usg_measurements_estimate_fetal_weight"},
	{"gestational_age_weeks", "usg.usg_ultrasound_gestational_age.usg_ultrasound_gestational_age_weeks"},
	{"gestational_age_days", "usg.usg_ultrasound_gestational_age.usg_ultrasound_gestational_age_days"},
	{"last_visit", "next_visit_last_visit"},
	{"next_visit_due_anc", "next_visit_next_visit_due_anc"},
}

// ancOnceFields answer "was this ever recorded" across the current
// pregnancy's ANC reports.
var ancOnceFields = []contextField{
	{"desired_pregnancy", "followup.followup_desired_pregnancy"},
	{"fourth_month_complete", "anc_record.anc_record_fourth_month_complete"},
	{"sixth_month_complete", "anc_record.anc_record_sixth_month_complete"},
	{"eighth_month_complete", "anc_record.anc_record_eighth_month_complete"},
	{"ninth_month_complete", "anc_record.anc_record_ninth_month_complete"},
	{"cs_previous_delivery", "previous_delivery.cs_previous_delivery"},
	{"hypertension_history", "history.history_hypertension_history"},
	{"diabetes_history", "history.history_diabetes_history"},
	{"chronic_hypertension_history", "hypertension_calculations_chronic_hypertension"},
	{"td_first_dose", "immun_meds.immun_meds_td_first_dose"},
	{"td_second_dose", "immun_meds.immun_meds_td_second_dose"},
	{"albendazole_taken", "immun_meds.immun_meds_albendazole_taken"},
	{"daily_iron", "immun_meds.immun_meds_daily_iron"},
}

var pnc1ReportingFields = []contextField{
	{"visit_pnc1_month", "reporting_pnc1_visit_group_visit_pnc1_month"},
	{"counseling_month", "reporting_pnc1_counseling_group_counseling_month"},
	{"pp_6weeks_month", "reporting_pp_6weeks_group_pp_6weeks_month"},
	{"pp_6weeks_counsel_month", "reporting_pp_6weeks_counsel_pp_6weeks_counsel_month"},
	{"dangersign_referral_month", "reporting_pp_dangersign_referral_group_dangersign_referral_month"},
	{"dangersign_referral_followup_month", "reporting_pp_dangersign_referral_followup_group_dangersign_referral_followup_month"},
	{"close_form", "until_6_weeks_questions_close_form"},
	{"phq2_refer", "year_after_delivery_phq2_refer"},
}

var pnc2ReportingFields = []contextField{
	{"visit_pnc2_month", "reporting_pnc2_visit_group_visit_pnc2_month"},
	{"counseling_pnc2_month", "reporting_pnc2_counseling_group_counseling_month_pnc2"},
	{"pp_6weeks_month_pnc2", "reporting_pp_6weeks_group_pp_6weeks_month_pnc2"},
	{"pp_6weeks_counsel_month_pnc2", "reporting_pp_6weeks_counsel_pp_6weeks_counsel_month_pnc2"},
	{"dangersign_referral_month_pnc2", "reporting_pp_dangersign_referral_group_dangersign_referral_month_pnc2"},
	{"dangersign_referral_followup_month_pnc2", "reporting_pp_dangersign_referral_followup_group_dangersign_referral_followup_month_pnc2"},
	{"close_form", "until_6_weeks_questions_close_form"},
	{"phq2_refer", "year_after_delivery_phq2_refer"},
}

// stockInFields are summed across stock_in reports; each maps to its
// initial_* context name.
var stockInFields = []contextField{
	{"initial_zinc10mg", "initial_stock.initial_stock_zinc10mg"},
	{"initial_zinc20mg", "initial_stock.initial_stock_zinc20mg"},
	{"initial_ors", "initial_stock.initial_stock_ors"},
	{"initial_condoms_hp", "initial_stock.initial_stock_condoms_hp"},
	{"initial_condoms_phc", "initial_stock.initial_stock_condoms_phc"},
	{"initial_total_condoms", "initial_stock.initial_stock_total_condoms"},
	{"initial_upt_kits", "initial_stock.initial_stock_UPT_kits"},
}

// stockAvailable adds a stock_out remaining count to an aggregated stock_in
// total.
var stockAvailable = []struct {
	name      string
	stockIn   string
	remaining string
}{
	{"available_zinc_10mg", "initial_stock.initial_stock_zinc10mg", "remaining_zinc_10mg"},
	{"available_zinc_20mg", "initial_stock.initial_stock_zinc20mg", "remaining_zinc_20mg"},
	{"available_ors", "initial_stock.initial_stock_ors", "remaining_ors"},
	{"available_condom", "initial_stock.initial_stock_total_condoms", "remaining_condom"},
	{"available_upt_kit", "initial_stock.initial_stock_UPT_kits", "remaining_upt_kit"},
}

// ContextDeriverService projects a person's history into the flat parameter
// mapping shown to caregivers.
type ContextDeriverService struct {
	remap *RemapTables
}

// NewContextDeriver creates a deriver using the given remap tables.
func NewContextDeriver(remap *RemapTables) *ContextDeriverService {
	return &ContextDeriverService{remap: remap}
}

// Derive implements domain.ContextDeriver. The stage result decides which
// branches run; every parameter without a qualifying report is absent.
func (d *ContextDeriverService) Derive(person *domain.Person, reports []domain.Report, stage domain.StageResult, now time.Time) domain.Context {
	h := NewHistory(person, reports, now)
	ctx := domain.NewContext()

	if !h.Person.Type.IsPerson() {
		if h.Person.Type == domain.CONTACT_WARD {
			d.stockContext(h, ctx)
		}
		return ctx
	}

	life := h.LifeStatus()
	if !life.IsActive() {
		ctx.SetBool("muted", false)
		ctx.SetBool("active", false)
		ctx.SetText("life_status", life.String())
		return ctx
	}

	d.screeningModuleContext(h, ctx)
	d.psuppContext(h, ctx)

	ctx.SetBool("muted", false)
	ctx.SetBool("active", true)
	ctx.SetText("life_status", life.String())

	if age, ok := h.AgeYears(); ok {
		ctx.SetNumber("current_age", age)
		ctx.SetBool("eligible_u2", age < 2)
	}

	switch stage.Stage {
	case domain.STAGE_UNDER_TWO:
		d.underTwoContext(h, ctx)
		return ctx
	case domain.STAGE_OUT_OF_PATHWAY:
		return ctx
	}

	history := h.Newest(domain.FormPregnancyHistory)
	ctx.SetBool("has_initialized_ph", history.Is(domain.FieldWomanAtHome, "yes") && history.Is("woman_consent", "1"))

	if h.Newest(domain.FormPregnancyScreening) == nil {
		return ctx
	}
	d.maternalContext(h, ctx)
	return ctx
}

// maternalContext covers the screening branch: screening, antenatal,
// pending post-delivery and postnatal parameters.
func (d *ContextDeriverService) maternalContext(h *History, ctx domain.Context) {
	d.screeningContext(h, ctx)

	state := resolveMaternalState(h)
	pss := state.Screening

	if screeningConsented(pss) {
		ctx.SetField("lmp_days_calc", pss.Get(pssLMPDays))
		ctx.SetField("contraceptive_current", pss.Get(pssContraceptive))
		ctx.SetBool("anc_active", state.ANCActive)

		if state.ANCActive {
			d.ancContext(h, ctx)
			return
		}

		if state.PostDelivery == nil || pss.After(state.PostDelivery) {
			switch {
			case pss.Is(domain.FieldPDFDirect, "1"):
				d.postDeliveryContext(h, ctx, false)
			case pss.Is(domain.FieldANCFlag, "1"):
				d.postDeliveryContext(h, ctx, true)
			}
		}
	}

	if state.DeliveryDate == nil {
		return
	}
	days := *state.PostpartumDays
	ctx.SetDate("delivery_date_pdf", state.DeliveryDate)
	ctx.SetNumber("pp_days", days)
	ctx.SetText("pnc1", flag(state.Window1))
	ctx.SetText("pnc2", flag(state.Window2))

	if state.Window1 {
		if pnc := h.Unskipped(domain.FormPNC); pnc.After(pss) {
			ctx.SetField("contraceptive_current", pnc.Get(pncContraceptive))
		}
	}
	if state.Window2 {
		if pnc2 := h.Unskipped(domain.FormPNC2); pnc2.After(pss) {
			ctx.SetField("contraceptive_current", pnc2.Get(pnc2Contraceptive))
		}
	}

	if days >= postnatalWindow2Days || state.PostDelivery == nil {
		return
	}
	switch {
	case state.Window1:
		d.postnatalContext(h, ctx, domain.FormPNC, pnc1ReportingFields)
	case state.Window2:
		d.postnatalContext(h, ctx, domain.FormPNC2, pnc2ReportingFields)
	}
}

// screeningModuleContext exposes depression-screening counters and the dates
// the module forms need, once any maternal or screening report exists.
func (d *ContextDeriverService) screeningModuleContext(h *History, ctx domain.Context) {
	if !h.Exists(domain.FormANC, domain.FormPostDelivery, domain.FormEPDSScreening) {
		return
	}
	for i, form := range domain.EPDSModuleForms {
		name := "totalforms" + strconv.Itoa(i+1)
		if n, ok := h.ModuleSequence(form); ok {
			ctx.SetNumber(name, n)
		} else {
			ctx.Set(name, domain.AbsentValue())
		}
	}

	epds := h.Newest(domain.FormEPDSScreening)
	ctx.SetField("eligibility", epds.Get(domain.FieldEPDSEligibility))
	ctx.SetField("women_status_ctx", epds.Get(domain.FieldEPDSWomenStatus))

	pdf := h.Newest(domain.FormPostDelivery)
	var delivered *time.Time
	if t, ok := h.ParseDate(pdf.Field(domain.FieldDeliveryDateCtx)); ok {
		delivered = &t
	}
	ctx.SetDate("delivery_date", delivered)
	ctx.SetDate("formated_date", delivered)
	ctx.SetField("updated_dd", pdf.Get(domain.FieldDeliveryDatePDF))
	ctx.SetField("latestlmp", h.Newest(domain.FormANC).Get(domain.FieldANCLMP))
}

// psuppContext exposes the psycho-social support session labels.
func (d *ContextDeriverService) psuppContext(h *History, ctx domain.Context) {
	for name, form := range map[string]string{
		"home_visit":     domain.FormPsuppHomeVisit,
		"weekly_visit":   domain.FormPsuppWeeklyVisit,
		"biweekly_visit": domain.FormPsuppBiWeeklyVisit,
	} {
		if label, ok := h.SessionLabel(form, contextSessionCaps); ok {
			ctx.SetText(name, label)
		}
	}
}

func (d *ContextDeriverService) underTwoContext(h *History, ctx domain.Context) {
	u2 := h.Newest(domain.FormU2Registry)
	ctx.SetBool("has_initialized_u2", u2 != nil && h.DaysSince(u2.ReportedAt) < 38)

	ctx.Merge(d.remap.Map(h.Unskipped(domain.FormU2Registry), ""))

	for _, name := range u2FirstYes {
		ctx.SetField(name, timeline.FieldOnce(h.Reports, domain.FormU2Registry, u2Over2Group+name, timeline.EqualTo("yes")))
	}

	muac := timeline.FieldRecent(h.Reports, domain.FormU2Registry, domain.MUACGroup, timeline.NotEmpty)
	if muac.IsAbsent() {
		muac = timeline.FieldRecent(h.Reports, domain.FormU2Registry, domain.MUACGroupOld, timeline.NotEmpty)
	}
	ctx.SetField("muac_update", muac)
}

func (d *ContextDeriverService) screeningContext(h *History, ctx domain.Context) {
	ctx.Merge(d.remap.Map(h.Unskipped(domain.FormPregnancyScreening), domain.FormPregnancyScreening))
	ctx.Merge(d.remap.Map(h.Newest(domain.FormPostDelivery), domain.FormPregnancyScreening))

	for _, name := range procedureDates {
		ctx.SetField(name, d.recent(h.Reports, domain.FormPregnancyScreening, domain.ProcedureDateGroup+"_"+name))
	}
	ctx.SetField("last_bcs_date", d.recent(h.Reports, domain.FormPregnancyScreening, pssBCSGroup+"last_bcs_date"))
	ctx.SetField("last_bcs_date_nepali", d.recent(h.Reports, domain.FormPregnancyScreening, pssBCSGroup+"last_bcs_date_nepali"))
}

// currentANCReports returns the ANC reports of the current pregnancy: those
// dated after the newest screening, oldest first.
func currentANCReports(h *History) []domain.Report {
	pss := h.Newest(domain.FormPregnancyScreening)
	if pss == nil {
		return nil
	}
	return timeline.Between(h.Reports, []string{domain.FormANC}, pss.ReportedAt, h.Now)
}

func (d *ContextDeriverService) ancContext(h *History, ctx domain.Context) {
	anc := currentANCReports(h)
	latest := timeline.MostRecentUnskipped(anc, domain.FormANC)

	for _, f := range ancLatestFields {
		ctx.SetField(f.name, latest.Get(f.path))
	}
	for _, risk := range ancHighRiskFlags {
		ctx.SetField("high_risk_"+risk, latest.Get("high_risk.high_risk_high_risk_"+risk))
	}
	for _, window := range []string{"4", "6", "8", "9"} {
		group := "govt_windows.govt_windows_anc_gov_window_" + window
		ctx.SetField("start_date_"+window, d.recent(anc, domain.FormANC, group+"_start_date_"+window))
		ctx.SetField("end_date_"+window, d.recent(anc, domain.FormANC, group+"_end_date_"+window))
	}
	for _, f := range ancRecentFields {
		ctx.SetField(f.name, d.recent(anc, domain.FormANC, f.path))
	}
	for _, f := range ancOnceFields {
		ctx.SetField(f.name, timeline.FieldOnce(anc, domain.FormANC, f.path, timeline.NotEmpty))
	}

	ctx.SetField("total_parity", h.Newest(domain.FormPregnancyHistory).Get("group_assessment.total_parity"))
	ctx.SetField("total_parity_update", h.Newest(domain.FormPostDelivery).Get("total_parity_update"))

	lmp := d.recent(anc, domain.FormANC, domain.FieldANCLMP)
	lmpNepali := d.recent(anc, domain.FormANC, "lmp_group.lmp_group_lmp_nepali")
	if lmp.IsAbsent() {
		lmp = d.recent(h.Reports, domain.FormPregnancyScreening, pssLMPDate)
		lmpNepali = d.recent(h.Reports, domain.FormPregnancyScreening, pssLMPDateNepali)
	}
	ctx.SetField("lmp", lmp)
	ctx.SetField("lmp_nepali", lmpNepali)

	ancVisitRecords(anc, ctx)
}

// postDeliveryContext covers a screening that points at delivery follow-up.
// withANC adds the current pregnancy's visit records and risk flag.
func (d *ContextDeriverService) postDeliveryContext(h *History, ctx domain.Context, withANC bool) {
	pss := h.Newest(domain.FormPregnancyScreening)
	ctx.SetField("pregnancy_status", pss.Get(pregnancyStatus))
	ctx.SetField("pregnancy_status_update", pss.Get(pregnancyStatusUpdate))
	if !withANC {
		return
	}
	anc := currentANCReports(h)
	ancVisitRecords(anc, ctx)
	ctx.SetField("high_risk", timeline.NewestOf(anc, domain.FormANC).Get("high_risk.high_risk_high_risk"))
}

// postnatalContext reads the reporting-month fields of the newest unskipped
// postnatal report of form.
func (d *ContextDeriverService) postnatalContext(h *History, ctx domain.Context, form string, fields []contextField) {
	pnc := h.Unskipped(form)
	ctx.SetField("pregnancy_status_update", h.Newest(domain.FormPregnancyScreening).Get(pregnancyStatusUpdate))
	for _, f := range fields {
		ctx.SetField(f.name, pnc.Get(f.path))
	}
}

// ancVisitRecords copies the per-visit records of each ANC, oldest first, so
// later reports overwrite earlier ones.
func ancVisitRecords(anc []domain.Report, ctx domain.Context) {
	for i := 1; i <= domain.ANCVisitCount; i++ {
		n := strconv.Itoa(i)
		prefix := "anc_record.anc_record_visit" + n + ".anc_record_visit" + n + "_anc_visit"
		visit := "anc_visit" + n
		for j := range anc {
			r := &anc[j]
			if !r.Get(prefix + "_type").IsEmpty() {
				ctx.SetField(visit+"_type", r.Get(prefix+"_type"))
				ctx.SetField(visit+"_date_nepali", r.Get(prefix+"_date_nepali"))
				ctx.SetField(visit+"_month", r.Get(prefix+"_month"))
			}
			if complete := r.Get(prefix + n + "_complete"); !complete.IsEmpty() {
				ctx.SetField(visit+"_complete", complete)
			}
		}
	}
}

// stockContext derives the ward-level commodity stock parameters.
func (d *ContextDeriverService) stockContext(h *History, ctx domain.Context) {
	paths := make([]string, len(stockInFields))
	for i, f := range stockInFields {
		paths[i] = f.path
	}

	stockOut := h.Newest(domain.FormStockOut)
	var since time.Time
	if stockOut != nil {
		since = stockOut.ReportedAt
	}
	aggregate := timeline.AggregateNumeric(timeline.Between(h.Reports, []string{domain.FormStockIn}, since, h.Now), paths)
	stockIn := h.Newest(domain.FormStockIn)
	if aggregate == nil {
		if stockIn == nil {
			return
		}
		aggregate = timeline.AggregateNumeric([]domain.Report{*stockIn}, paths)
	}

	for _, f := range stockInFields {
		ctx.SetNumber(f.name, aggregate[f.path])
	}

	if stockOut.After(stockIn) {
		ctx.Merge(d.remap.Map(stockOut, domain.FormStockOut))
		return
	}
	for _, f := range stockAvailable {
		available := aggregate[f.stockIn]
		if stockOut != nil {
			if n, ok := stockOut.Int(f.remaining); ok {
				available += n
			}
		}
		ctx.SetNumber(f.name, available)
	}
}

// recent is FieldRecent for non-empty values with surrounding whitespace
// removed.
func (d *ContextDeriverService) recent(reports []domain.Report, form, path string) fieldpath.Value {
	v := timeline.FieldRecent(reports, form, path, timeline.NotEmpty)
	if text, ok := v.Text(); ok {
		return fieldpath.Present(strings.TrimSpace(text))
	}
	return v
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
