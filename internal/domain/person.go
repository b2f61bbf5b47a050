package domain

import (
	"strings"
	"time"
)

// Person is a contact record. Only CONTACT_PERSON contacts are classified;
// other types receive the contact-level context (stock for ward contacts,
// nothing otherwise).
type Person struct {
	ID            string      `json:"id" yaml:"id"`
	Type          ContactType `json:"type" yaml:"type"`
	DateOfBirth   string      `json:"date_of_birth,omitempty" yaml:"date_of_birth,omitempty"`
	Sex           string      `json:"sex,omitempty" yaml:"sex,omitempty"`
	MaritalStatus string      `json:"marital_status,omitempty" yaml:"marital_status,omitempty"`
	RegisteredAt  time.Time   `json:"registered_at,omitempty" yaml:"registered_at,omitempty"`
}

// IsFemale reports whether the recorded sex is female.
func (p *Person) IsFemale() bool {
	return strings.EqualFold(p.Sex, "female")
}

// IsMarried reports whether the recorded marital status is married.
func (p *Person) IsMarried() bool {
	return strings.EqualFold(p.MaritalStatus, "married")
}

// Validate checks the minimum attributes the engine needs.
func (p *Person) Validate() error {
	if p == nil {
		return NewValidationError("person", "person cannot be nil", nil)
	}
	if strings.TrimSpace(p.ID) == "" {
		return NewValidationError("id", "person id is required", p.ID)
	}
	if strings.TrimSpace(string(p.Type)) == "" {
		return NewValidationError("type", "contact type is required", p.ID)
	}
	return nil
}

// LogFields returns structured logging fields. Date of birth is omitted.
func (p *Person) LogFields() map[string]any {
	return map[string]any{
		"person_id":    p.ID,
		"contact_type": string(p.Type),
	}
}
