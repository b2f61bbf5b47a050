package service

import (
	"time"

	"github.com/care-pathway-engine/internal/domain"
)

// StageRule is one entry of the ordered stage classifier.
type StageRule struct {
	Code        string
	Stage       domain.Stage
	Description string
	Matches     func(c *classification) bool
}

// classification carries the facts the rules test, computed once per call.
type classification struct {
	history  *History
	life     domain.LifeStatus
	age      int
	ageKnown bool
	maternal maternalState
}

// StageClassifierService determines the current pathway stage by evaluating
// its rules top-down; the first rule that matches wins.
type StageClassifierService struct {
	rules []*StageRule
}

// NewStageClassifier creates a classifier with the perinatal precedence.
func NewStageClassifier() *StageClassifierService {
	c := &StageClassifierService{}
	c.initializeRules()
	return c
}

// Rules returns the rules in precedence order.
func (c *StageClassifierService) Rules() []*StageRule {
	out := make([]*StageRule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Classify implements domain.StageClassifier.
func (c *StageClassifierService) Classify(person *domain.Person, reports []domain.Report, now time.Time) domain.StageResult {
	h := NewHistory(person, reports, now)
	in := &classification{history: h, life: h.LifeStatus()}
	in.age, in.ageKnown = h.AgeYears()

	result := domain.StageResult{LifeStatus: in.life}
	if in.ageKnown {
		age := in.age
		result.AgeYears = &age
	}

	if !h.Person.Type.IsPerson() {
		result.Stage = domain.STAGE_NOT_APPLICABLE
		result.Rule = "contact_type"
		return result
	}

	if in.life.IsActive() {
		in.maternal = resolveMaternalState(h)
		result.ANCActive = in.maternal.ANCActive
		result.DeliveryDate = in.maternal.DeliveryDate
		result.PostpartumDays = in.maternal.PostpartumDays
		result.PostnatalWindow1 = in.maternal.Window1
		result.PostnatalWindow2 = in.maternal.Window2
	}

	for _, rule := range c.rules {
		if rule.Matches(in) {
			result.Stage = rule.Stage
			result.Rule = rule.Code
			return result
		}
	}

	result.Stage = domain.STAGE_PREGNANCY_SCREENING
	result.Rule = "screening"
	return result
}

func (c *StageClassifierService) initializeRules() {
	c.addRule(&StageRule{
		Code:        "life_event",
		Stage:       domain.STAGE_TERMINATED,
		Description: "A death or migration report closes the pathway",
		Matches: func(in *classification) bool {
			return !in.life.IsActive()
		},
	})

	c.addRule(&StageRule{
		Code:        "under_two",
		Stage:       domain.STAGE_UNDER_TWO,
		Description: "Age under two years; the under-2 registry owns the person",
		Matches: func(in *classification) bool {
			return in.ageKnown && in.age < 2
		},
	})

	c.addRule(&StageRule{
		Code:        "out_of_pathway",
		Stage:       domain.STAGE_OUT_OF_PATHWAY,
		Description: "Not female, outside ages 11-48 and not married",
		Matches: func(in *classification) bool {
			p := in.history.Person
			return in.ageKnown && !p.IsFemale() && (in.age < 11 || in.age > 48) && !p.IsMarried()
		},
	})

	c.addRule(&StageRule{
		Code:        "no_screening",
		Stage:       domain.STAGE_REGISTRATION,
		Description: "No pregnancy screening recorded yet",
		Matches: func(in *classification) bool {
			return in.maternal.Screening == nil
		},
	})

	c.addRule(&StageRule{
		Code:        "anc_active",
		Stage:       domain.STAGE_ANTENATAL_CARE,
		Description: "Newest screening confirms pregnancy and no later report closes it",
		Matches: func(in *classification) bool {
			return in.maternal.ANCActive
		},
	})

	c.addRule(&StageRule{
		Code:        "post_delivery_pending",
		Stage:       domain.STAGE_POST_DELIVERY_PENDING,
		Description: "Screening or antenatal care points at delivery and no post-delivery report follows",
		Matches:     awaitingPostDelivery,
	})

	c.addRule(&StageRule{
		Code:        "postnatal_window_2",
		Stage:       domain.STAGE_POSTNATAL_WINDOW_2,
		Description: "Delivered less than 60 days ago with the second postnatal status set",
		Matches: func(in *classification) bool {
			return in.maternal.Window2
		},
	})

	c.addRule(&StageRule{
		Code:        "postnatal_window_1",
		Stage:       domain.STAGE_POSTNATAL_WINDOW_1,
		Description: "Delivered less than 365 days ago with the first postnatal status set",
		Matches: func(in *classification) bool {
			return in.maternal.Window1
		},
	})

}

func (c *StageClassifierService) addRule(rule *StageRule) {
	c.rules = append(c.rules, rule)
}

// awaitingPostDelivery reports whether a post-delivery visit is the next step:
// the newest screening is present and consenting, no post-delivery report is
// newer, and either the screening sends the woman directly to delivery
// follow-up, the screening started antenatal care that is no longer active,
// or the newest ANC records the delivery.
func awaitingPostDelivery(in *classification) bool {
	pss := in.maternal.Screening
	if pss == nil || !screeningConsented(pss) {
		return false
	}
	if in.maternal.PostDelivery.After(pss) || sameInstant(in.maternal.PostDelivery, pss) {
		return false
	}
	if pss.Is(domain.FieldPDFDirect, "1") || pss.Is(domain.FieldANCFlag, "1") {
		return true
	}
	anc := in.history.Newest(domain.FormANC)
	return anc.After(pss) && anc.Is(domain.FieldPostDelivery, "1")
}

// screeningConsented reports whether the woman was at home and agreed to
// service on a screening report.
func screeningConsented(pss *domain.Report) bool {
	return pss.Is(domain.FieldWomanAtHome, "yes") && pss.Is(domain.FieldAgreesForService, "yes")
}

func sameInstant(a, b *domain.Report) bool {
	return a != nil && b != nil && a.ReportedAt.Equal(b.ReportedAt)
}
