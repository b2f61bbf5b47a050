// Package domain contains the core entities of the care-pathway engine:
// reports, persons, pathway stages, task windows and derived context.
//
// Every type here is a plain value. The report history supplied by the host
// is the only durable state; stages, contexts and task instances are
// recomputed from it on every evaluation.
package domain

import (
	"errors"
)

// Stage is the mutually exclusive pathway phase a person is currently in.
// Stages are produced by an ordered, first-match-wins classifier.
type Stage string

const (
	STAGE_TERMINATED            Stage = "TERMINATED"
	STAGE_UNDER_TWO             Stage = "UNDER_TWO"
	STAGE_OUT_OF_PATHWAY        Stage = "OUT_OF_PATHWAY"
	STAGE_REGISTRATION          Stage = "REGISTRATION"
	STAGE_PREGNANCY_SCREENING   Stage = "PREGNANCY_SCREENING"
	STAGE_ANTENATAL_CARE        Stage = "ANTENATAL_CARE"
	STAGE_POST_DELIVERY_PENDING Stage = "POST_DELIVERY_PENDING"
	STAGE_POSTNATAL_WINDOW_1    Stage = "POSTNATAL_WINDOW_1"
	STAGE_POSTNATAL_WINDOW_2    Stage = "POSTNATAL_WINDOW_2"
	STAGE_NOT_APPLICABLE        Stage = "NOT_APPLICABLE"
)

// AllStages lists every stage in classifier precedence order.
var AllStages = []Stage{
	STAGE_TERMINATED,
	STAGE_UNDER_TWO,
	STAGE_OUT_OF_PATHWAY,
	STAGE_REGISTRATION,
	STAGE_ANTENATAL_CARE,
	STAGE_POSTNATAL_WINDOW_2,
	STAGE_POSTNATAL_WINDOW_1,
	STAGE_POST_DELIVERY_PENDING,
	STAGE_PREGNANCY_SCREENING,
	STAGE_NOT_APPLICABLE,
}

// LifeStatus is the life-event status derived from the newest
// death-and-migration report.
type LifeStatus string

const (
	LIFE_ACTIVE         LifeStatus = "Active"
	LIFE_MIGRATED       LifeStatus = "Migrated"
	LIFE_DECEASED       LifeStatus = "Deceased"
	LIFE_MATERNAL_DEATH LifeStatus = "Maternal Death"
	LIFE_NEONATAL_DEATH LifeStatus = "Neo-natal Death"
	LIFE_TERMINATED     LifeStatus = "Terminated"
)

// ContactType is the hierarchy tag of a contact. Only CONTACT_PERSON drives
// the pathway state machine.
type ContactType string

const (
	CONTACT_PERSON       ContactType = "c82_person"
	CONTACT_FAMILY       ContactType = "c81_family"
	CONTACT_HOUSEHOLD    ContactType = "c80_household"
	CONTACT_WARD         ContactType = "c52_ward_contact"
	CONTACT_CENTER       ContactType = "c12_center_contact"
	CONTACT_PROVINCE     ContactType = "c22_province_contact"
	CONTACT_DISTRICT     ContactType = "c32_district_contact"
	CONTACT_MUNICIPALITY ContactType = "c42_municipality_contact"
	CONTACT_CHN_AREA     ContactType = "c62_chn_area_contact"
	CONTACT_FCHV_AREA    ContactType = "c72_fchv_area_contact"
	PLACE_CENTER         ContactType = "c10_center"
	PLACE_PROVINCE       ContactType = "c20_province"
	PLACE_DISTRICT       ContactType = "c30_district"
	PLACE_MUNICIPALITY   ContactType = "c40_municipality"
	PLACE_WARD           ContactType = "c50_ward"
)

// Validation errors for engine inputs
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidStage        = errors.New("invalid pathway stage")
	ErrInvalidPerson       = errors.New("invalid person")
	ErrInvalidReport       = errors.New("invalid report")
	ErrInvalidInterval     = errors.New("invalid interval")
	ErrAmbiguousDefinition = errors.New("ambiguous task definition")
	ErrUnknownDefinition   = errors.New("unknown task definition")
	ErrInvalidPath         = errors.New("invalid field path")
)

// IsValid reports whether s is one of the known stages.
func (s Stage) IsValid() bool {
	switch s {
	case STAGE_TERMINATED, STAGE_UNDER_TWO, STAGE_OUT_OF_PATHWAY, STAGE_REGISTRATION,
		STAGE_PREGNANCY_SCREENING, STAGE_ANTENATAL_CARE, STAGE_POST_DELIVERY_PENDING,
		STAGE_POSTNATAL_WINDOW_1, STAGE_POSTNATAL_WINDOW_2, STAGE_NOT_APPLICABLE:
		return true
	default:
		return false
	}
}

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// Description returns a short human-readable label for summaries.
func (s Stage) Description() string {
	switch s {
	case STAGE_TERMINATED:
		return "Pathway closed by a life event"
	case STAGE_UNDER_TWO:
		return "Under-2 child registry"
	case STAGE_OUT_OF_PATHWAY:
		return "Outside the maternal pathway"
	case STAGE_REGISTRATION:
		return "Registered, awaiting pregnancy screening"
	case STAGE_PREGNANCY_SCREENING:
		return "Pregnancy screening follow-up"
	case STAGE_ANTENATAL_CARE:
		return "Active antenatal care"
	case STAGE_POST_DELIVERY_PENDING:
		return "Awaiting post-delivery assessment"
	case STAGE_POSTNATAL_WINDOW_1:
		return "Postnatal care, first year"
	case STAGE_POSTNATAL_WINDOW_2:
		return "Postnatal care, first 60 days"
	case STAGE_NOT_APPLICABLE:
		return "Contact type outside the pathway"
	default:
		return "Unknown stage"
	}
}

// IsMaternal reports whether the stage belongs to the pregnancy branch.
func (s Stage) IsMaternal() bool {
	switch s {
	case STAGE_PREGNANCY_SCREENING, STAGE_ANTENATAL_CARE, STAGE_POST_DELIVERY_PENDING,
		STAGE_POSTNATAL_WINDOW_1, STAGE_POSTNATAL_WINDOW_2:
		return true
	default:
		return false
	}
}

// IsPostnatal reports whether the stage is one of the postnatal windows.
func (s Stage) IsPostnatal() bool {
	return s == STAGE_POSTNATAL_WINDOW_1 || s == STAGE_POSTNATAL_WINDOW_2
}

// LogFields returns structured logging fields for audit trails.
func (s Stage) LogFields() map[string]any {
	return map[string]any{
		"stage":       string(s),
		"is_valid":    s.IsValid(),
		"is_maternal": s.IsMaternal(),
	}
}

// LifeStatusFromReason maps the reason code of a life-event report to a
// status. Unknown codes still close the pathway.
func LifeStatusFromReason(reason string) LifeStatus {
	switch reason {
	case "permanent_migration":
		return LIFE_MIGRATED
	case "person_death":
		return LIFE_DECEASED
	case "maternal_death":
		return LIFE_MATERNAL_DEATH
	case "neonatal_death":
		return LIFE_NEONATAL_DEATH
	default:
		return LIFE_TERMINATED
	}
}

// IsActive reports whether no life event has closed the pathway.
func (l LifeStatus) IsActive() bool {
	return l == LIFE_ACTIVE
}

// String returns the display text of the status.
func (l LifeStatus) String() string {
	return string(l)
}

// LogFields returns structured logging fields for audit trails.
func (l LifeStatus) LogFields() map[string]any {
	return map[string]any{
		"life_status": string(l),
		"active":      l.IsActive(),
	}
}

// IsPerson reports whether the contact is an individual registered in the
// pathway.
func (c ContactType) IsPerson() bool {
	return c == CONTACT_PERSON
}

// IsPlace reports whether the contact is an administrative place.
func (c ContactType) IsPlace() bool {
	switch c {
	case PLACE_CENTER, PLACE_PROVINCE, PLACE_DISTRICT, PLACE_MUNICIPALITY, PLACE_WARD,
		CONTACT_HOUSEHOLD, CONTACT_FAMILY:
		return true
	default:
		return false
	}
}

// String returns the contact type tag.
func (c ContactType) String() string {
	return string(c)
}
