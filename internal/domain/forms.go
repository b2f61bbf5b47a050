package domain

// Form identifiers of the perinatal workflow.
const (
	FormPregnancyScreening = "pregnancy_screening_form"
	FormANC                = "anc_monitoring_form"
	FormPostDelivery       = "post_delivery_form"
	FormPNC                = "post_natal_care_form"
	FormPNC2               = "pnc_2_months"
	FormPregnancyHistory   = "pregnancy_history_form"
	FormU2Registry         = "u2_registry"
	FormLifeEvent          = "death_and_migration_form"

	FormEPDSScreening  = "epds_screening"
	FormEPDSModule1    = "epds_module_1"
	FormEPDSModule2    = "epds_module_2"
	FormEPDSModule3    = "epds_module_3"
	FormEPDSModule4    = "epds_module_4"
	FormEPDSModule5    = "epds_module_5"
	FormEPDSAssessment = "epds_assessment"

	FormPsupp              = "psupp_form"
	FormPsuppHomeVisit     = "psupp_home_visit"
	FormPsuppWeeklyVisit   = "psupp_weekly_visit"
	FormPsuppBiWeeklyVisit = "psupp_bi_weekly_visit"

	FormStockIn  = "stock_in"
	FormStockOut = "stock_out"
)

// EPDSModuleForms lists the five depression-screening module forms in order.
var EPDSModuleForms = []string{FormEPDSModule1, FormEPDSModule2, FormEPDSModule3, FormEPDSModule4, FormEPDSModule5}

// Unbounded is the day offset used for windows that never expire.
const Unbounded = 9999999

// ANCVisitCount is the number of antenatal visit records carried on an ANC
// form.
const ANCVisitCount = 10

// SkipKeys names the two fields that mark a report as skipped: the person
// was not present, or declined service.
type SkipKeys struct {
	Present string
	Agrees  string
}

// FormSkipKeys maps a form to its skip fields. Forms absent from the table
// are never skipped.
var FormSkipKeys = map[string]SkipKeys{
	FormANC: {
		Present: "visit_type.woman_at_home",
		Agrees:  "visit_type.agrees_for_service",
	},
	FormPNC: {
		Present: "patient_information.group_assessment_athome.woman_at_home",
		Agrees:  "group_assessment_agrees.agrees_for_service",
	},
	FormPNC2: {
		Present: "group_assessment_athome.woman_at_home",
		Agrees:  "group_assessment_counselagree.agrees_for_service",
	},
	FormPregnancyScreening: {
		Present: "woman_at_home",
		Agrees:  "agrees_for_service",
	},
	FormU2Registry: {
		Present: "child_at_home",
		Agrees:  "agrees_for_service",
	},
}

// Field paths read by more than one component.
const (
	FieldANCFlag           = "anc"
	FieldPDFDirect         = "pdf_direct"
	FieldPostDelivery      = "post_delivery"
	FieldEligibleWoman     = "eligible_woman"
	FieldRemoveWoman       = "remove_woman"
	FieldStatusPNC1        = "status_pnc1"
	FieldStatusPNC2        = "status_pnc2"
	FieldPPDays            = "pp_days"
	FieldLifeEventReason   = "reason"
	FieldReasonAbsence     = "reason_absence"
	FieldWomanAtHome       = "woman_at_home"
	FieldChildAtHome       = "child_at_home"
	FieldAgreesForService  = "agrees_for_service"
	FieldDeliveryDatePDF   = "post_delivery_assessment.delivery_date_pdf"
	FieldDeliveryDateCtx   = "delivery_date_pdf_ctx"
	FieldPSSDeliveryDate   = "standard.standard_delivery_date_pdf"
	FieldANCEDD            = "lmp_group.lmp_group_edd"
	FieldANCLMP            = "lmp_group.lmp_group_lmp"
	FieldUrineTest         = "continue_pss.continue_pss_test.continue_pss_test_urine_test"
	FieldPNC2Flag          = "pnc2"
	FieldEPDSEligibility   = "epds.postnatal_d_screen.fln_elig"
	FieldEPDSWomenStatus   = "epds.screening.curr_sts"
	FieldEPDSConsent       = "epds.study_cnst.cnst_part"
	FieldEPDSChildStatus   = "epds.condit_bn"
	FieldEPDSLMPDays       = "lmpdays"
	FieldEPDSDeliveryDays  = "ddno"
	FieldEPDSUpdatedDays   = "up_dd"
	FieldPsuppContinueCall = "psupp_form.cont_call"
	FieldPsuppEndFirstHome = "first_home_visit.end_1stvisit"
	FieldPsuppWeeklyVisit  = "weekly_visit"
	FieldPregnancyOutcome  = "post_delivery_assessment.pregnancy_outcome"
)

// ProcedureDateGroup prefixes the contraceptive procedure date fields of a
// pregnancy screening report.
const ProcedureDateGroup = "continue_pss.continue_pss_contraceptive_related.continue_pss_contraceptive_related_procedure_dates.continue_pss_contraceptive_related_procedure_dates"

// MUAC measurement paths on the under-2 registry, current and legacy layout.
const (
	MUACGroup    = "group_assessment_agreeinservice.over_2_questions.over_2_questions_malnutrition_screening.over_2_questions_malnutrition_screening_muac_update.over_2_questions_malnutrition_screening_muac_update_muac_update"
	MUACGroupOld = "group_assessment_agreeinservice.over_2_questions.over_2_questions_malnutrition_screening.over_2_questions_malnutrition_screening_muac_update1.over_2_questions_malnutrition_screening_muac_update_muac_update"
)
