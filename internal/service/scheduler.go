package service

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/care-pathway-engine/internal/domain"
	"github.com/care-pathway-engine/internal/timeline"
)

// TaskSchedulerService generates task instances from the catalog and
// applies the resolution detector to each.
type TaskSchedulerService struct {
	catalog *Catalog
	remap   *RemapTables
	logger  *logrus.Logger
}

// NewTaskScheduler creates a scheduler over catalog.
func NewTaskScheduler(catalog *Catalog, remap *RemapTables, logger *logrus.Logger) *TaskSchedulerService {
	return &TaskSchedulerService{
		catalog: catalog,
		remap:   remap,
		logger:  logger,
	}
}

// Schedule implements domain.TaskScheduler. Resolved and expired instances
// are included with their status; the result is ordered by due date, then
// task id.
func (s *TaskSchedulerService) Schedule(person *domain.Person, reports []domain.Report, now time.Time) []domain.TaskInstance {
	h := NewHistory(person, reports, now)

	triggers := timeline.Filter(h.Reports, func(r *domain.Report) bool {
		return !r.Deleted && r.IsValid()
	})
	timeline.SortOldestFirst(triggers)

	var tasks []domain.TaskInstance
	for _, def := range s.catalog.definitions {
		if def.ContactBased {
			if !h.Person.Type.IsPerson() || !def.Applies(h, nil) {
				continue
			}
			tasks = append(tasks, s.instances(h, def, nil)...)
			continue
		}

		for i := range triggers {
			r := &triggers[i]
			if !def.triggeredBy(r.Form) {
				continue
			}
			if !def.SkipCurrencyCheck && !isCurrent(h, r) {
				continue
			}
			if !def.Applies(h, r) {
				continue
			}
			s.logger.WithFields(logrus.Fields{
				"definition": def.Name,
				"report_id":  r.ID,
				"form":       r.Form,
			}).Debug("Task definition applies")
			tasks = append(tasks, s.instances(h, def, r)...)
		}
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].Window.Due.Equal(tasks[j].Window.Due) {
			return tasks[i].Window.Due.Before(tasks[j].Window.Due)
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks
}

// isCurrent reports whether the person is active and r is the front of its
// own form stream.
func isCurrent(h *History, r *domain.Report) bool {
	if !h.IsActive() {
		return false
	}
	newest := h.Newest(r.Form)
	return newest == nil || !newest.ReportedAt.After(r.ReportedAt)
}

func (s *TaskSchedulerService) instances(h *History, def *TaskDefinition, trigger *domain.Report) []domain.TaskInstance {
	sourceID := h.Person.ID
	if trigger != nil {
		sourceID = trigger.ID
	}

	var prefill map[string]string
	if def.Prefill != nil {
		prefill = def.Prefill(s.remap, h, trigger)
		if len(prefill) == 0 {
			prefill = nil
		}
	}

	out := make([]domain.TaskInstance, 0, len(def.Events))
	for _, ev := range def.Events {
		w := def.Window(ev, s.anchor(h, ev, trigger), trigger)
		resolved := def.IsResolved(h, trigger, w)
		id := domain.TaskID(def.Name, sourceID, ev.ID)
		out = append(out, domain.TaskInstance{
			ID:             id,
			UUID:           domain.TaskUUID(id),
			Definition:     def.Name,
			EventID:        ev.ID,
			Title:          def.Title,
			Icon:           def.Icon,
			SourceReportID: sourceID,
			TargetForm:     def.TargetForm,
			Window:         w,
			Resolved:       resolved,
			Status:         domain.StatusAt(w, resolved, h.Now),
			Prefill:        prefill,
		})
	}
	return out
}

// anchor returns the instant an event's due offset is measured from, in the
// evaluation zone.
func (s *TaskSchedulerService) anchor(h *History, ev Event, trigger *domain.Report) time.Time {
	loc := h.Location()
	switch ev.Anchor {
	case AnchorDelivery:
		return triggerDeliveryDate(h, trigger).In(loc)
	case AnchorRegistration:
		if !h.Person.RegisteredAt.IsZero() {
			return h.Person.RegisteredAt.In(loc)
		}
		if dob, ok := h.DateOfBirth(); ok {
			return dob
		}
		return h.Now
	default:
		if trigger == nil {
			return h.Now
		}
		return trigger.ReportedAt.In(loc)
	}
}
