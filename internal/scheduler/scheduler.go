// Package scheduler raises reminders for checklist templates whose next
// inspection is coming up.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/starford/staykeep/internal/entity"
	"github.com/starford/staykeep/internal/models"
	"github.com/starford/staykeep/internal/notify"
	"github.com/starford/staykeep/internal/realtime"
)

// EventDue is the realtime event name for an upcoming inspection.
const EventDue = "inspection.due"

// DefaultSpec runs the check at the top of every hour.
const DefaultSpec = "@hourly"

// Publisher receives due events; *realtime.Broker implements it.
type Publisher interface {
	Publish(e realtime.Event)
}

// Due describes one upcoming inspection.
type Due struct {
	TemplateID     string    `json:"template_id"`
	Name           string    `json:"name"`
	PropertyID     *string   `json:"property_id"`
	NextOccurrence time.Time `json:"next_occurrence"`
	Method         string    `json:"notification_method"`
	DaysUntil      int       `json:"days_until"`
}

// Scheduler checks templates and publishes each due occurrence once.
type Scheduler struct {
	templates entity.Repository[models.ChecklistTemplate]
	pub       Publisher
	notifier  notify.Notifier
	logger    *slog.Logger
	now       func() time.Time

	mu   sync.Mutex
	sent map[string]struct{}
}

// New creates a scheduler. notifier and logger may be nil.
func New(templates entity.Repository[models.ChecklistTemplate], pub Publisher, notifier notify.Notifier, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		templates: templates,
		pub:       pub,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
		sent:      map[string]struct{}{},
	}
}

func occurrenceKey(t models.ChecklistTemplate) string {
	return t.ID + "@" + t.NextOccurrence.UTC().Format(time.RFC3339)
}

// dueWithin reports whether t should be announced at now.
func dueWithin(t models.ChecklistTemplate, now time.Time) (int, bool) {
	if !t.NotificationsEnabled || t.NextOccurrence == nil {
		return 0, false
	}
	horizon := now.AddDate(0, 0, t.NotificationDaysAhead)
	if t.NextOccurrence.After(horizon) {
		return 0, false
	}
	days := int(t.NextOccurrence.Sub(now).Hours() / 24)
	return days, true
}

// Check publishes an event for every due occurrence not announced before
// and returns them.
func (s *Scheduler) Check(ctx context.Context) ([]Due, error) {
	templates, err := s.templates.List(ctx, entity.Filter{})
	if err != nil {
		return nil, fmt.Errorf("scheduler: list templates: %w", err)
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[string]struct{}, len(s.sent))
	var fresh []Due
	for _, t := range templates {
		days, ok := dueWithin(t, now)
		if !ok {
			continue
		}
		key := occurrenceKey(t)
		current[key] = struct{}{}
		if _, seen := s.sent[key]; seen {
			continue
		}
		fresh = append(fresh, Due{
			TemplateID:     t.ID,
			Name:           t.Name,
			PropertyID:     t.PropertyID,
			NextOccurrence: *t.NextOccurrence,
			Method:         t.NotificationMethod,
			DaysUntil:      days,
		})
	}
	// Forget occurrences that are no longer due so the set stays bounded.
	s.sent = current

	for _, d := range fresh {
		s.pub.Publish(realtime.Event{Name: EventDue, Table: models.TableChecklistTemplates, PropertyID: d.PropertyID, Data: d})
		if s.notifier != nil {
			s.notifier.Info(fmt.Sprintf("Inspection %q due %s", d.Name, d.NextOccurrence.Format("2006-01-02")))
		}
		s.logger.Info("inspection due",
			slog.String("template_id", d.TemplateID),
			slog.String("method", d.Method),
			slog.Int("days_until", d.DaysUntil),
		)
	}
	return fresh, nil
}

// Run schedules Check on spec and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context, spec string) error {
	if spec == "" {
		spec = DefaultSpec
	}
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(spec, func() {
		if _, err := s.Check(ctx); err != nil {
			s.logger.Error("due inspection check failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return fmt.Errorf("scheduler: schedule %q: %w", spec, err)
	}
	c.Start()
	s.logger.Info("scheduler started", slog.String("spec", spec))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
