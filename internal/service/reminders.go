package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/studiobell/dispatch/internal/audit"
	"github.com/studiobell/dispatch/internal/model"
	"github.com/studiobell/dispatch/internal/repo"
)

// Lesson is the slice of upcoming-class data the reminder scheduler needs.
// The full course/class CRUD lives in a collaborating service.
type Lesson struct {
	ID          string
	Subject     string
	StartsAt    time.Time
	Enrollments []Enrollment
}

type Enrollment struct {
	StudentID   string
	StudentName string
	Phone       string
	Active      bool
}

// LessonSource provides lesson/enrollment lookups.
type LessonSource interface {
	UpcomingLessons(ctx context.Context, from, to time.Time) ([]Lesson, error)
}

// ReminderTemplateData is what the message template renders with.
type ReminderTemplateData struct {
	StudentName string
	Subject     string
	StartsAt    string
}

// DefaultReminderTemplate is used when no template is configured.
const DefaultReminderTemplate = "Hi {{.StudentName}}! Reminder: your {{.Subject}} class starts at {{.StartsAt}}."

// ScheduleResult reports what one scheduler run did.
type ScheduleResult struct {
	LessonsScanned    int `json:"lessonsScanned"`
	Enqueued          int `json:"enqueued"`
	SkippedDuplicates int `json:"skippedDuplicates"`
	SkippedInactive   int `json:"skippedInactive"`
}

// ReminderReport backs the reminder history endpoint.
type ReminderReport struct {
	Stats  repo.Stats          `json:"stats"`
	Recent []*model.QueueEntry `json:"recent"`
}

// ReminderConfig tunes a ReminderService. Zero values get defaults.
type ReminderConfig struct {
	// Priority for enqueued reminders, default 3.
	Priority int
	Audit    audit.Sink
	Now      func() time.Time
}

// ReminderService derives queue entries from upcoming lessons. Re-running it
// over the same window is idempotent: a lesson+student pair with a
// non-cancelled entry in the queue is never enqueued again.
type ReminderService struct {
	store    repo.QueueRepository
	settings repo.SettingsRepository
	lessons  LessonSource
	tmpl     *template.Template
	cfg      ReminderConfig
}

func NewReminderService(
	store repo.QueueRepository,
	settings repo.SettingsRepository,
	lessons LessonSource,
	tmpl *template.Template,
	cfg ReminderConfig,
) (*ReminderService, error) {
	if store == nil {
		return nil, errors.New("store must not be nil")
	}
	if settings == nil {
		return nil, errors.New("settings must not be nil")
	}
	if lessons == nil {
		return nil, errors.New("lessons must not be nil")
	}
	if tmpl == nil {
		return nil, errors.New("template must not be nil")
	}
	if cfg.Priority == 0 {
		cfg.Priority = model.DefaultPriority
	}
	if cfg.Priority < model.MinPriority || cfg.Priority > model.MaxPriority {
		return nil, errors.New("reminder priority out of range")
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NopSink{}
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &ReminderService{
		store:    store,
		settings: settings,
		lessons:  lessons,
		tmpl:     tmpl,
		cfg:      cfg,
	}, nil
}

// ScheduleReminders enqueues lesson reminders for every active enrollment of
// every lesson starting within the next hoursBeforeClass hours.
func (s *ReminderService) ScheduleReminders(ctx context.Context, hoursBeforeClass int) (ScheduleResult, error) {
	var res ScheduleResult

	if hoursBeforeClass < 1 || hoursBeforeClass > 168 {
		return res, &model.ValidationError{Field: "hoursBeforeClass", Reason: "must be between 1 and 168"}
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return res, fmt.Errorf("load settings: %w", err)
	}
	if !settings.Enabled {
		return res, model.ErrChannelDisabled
	}

	now := s.cfg.Now()
	lessons, err := s.lessons.UpcomingLessons(ctx, now, now.Add(time.Duration(hoursBeforeClass)*time.Hour))
	if err != nil {
		return res, fmt.Errorf("load lessons: %w", err)
	}
	res.LessonsScanned = len(lessons)

	for _, lesson := range lessons {
		for _, enr := range lesson.Enrollments {
			if !enr.Active {
				res.SkippedInactive++
				continue
			}

			dedupKey := model.ReminderDedupKey(lesson.ID, enr.StudentID)
			exists, err := s.store.HasActiveReminder(ctx, dedupKey)
			if err != nil {
				return res, fmt.Errorf("dedup lookup: %w", err)
			}
			if exists {
				res.SkippedDuplicates++
				continue
			}

			text, err := s.renderText(lesson, enr)
			if err != nil {
				return res, fmt.Errorf("render reminder for lesson %s: %w", lesson.ID, err)
			}

			entry, err := model.NewQueueEntry(model.NewEntryParams{
				Recipient:   enr.Phone,
				Text:        text,
				MessageType: model.MessageTypeLessonReminder,
				Priority:    s.cfg.Priority,
				Metadata: map[string]string{
					model.MetaLessonID:  lesson.ID,
					model.MetaStudentID: enr.StudentID,
					model.MetaDedupKey:  dedupKey,
				},
			}, now)
			if err != nil {
				return res, err
			}

			if err := s.store.Enqueue(ctx, entry); err != nil {
				return res, fmt.Errorf("enqueue reminder: %w", err)
			}
			res.Enqueued++

			s.cfg.Audit.Record(ctx, audit.Event{
				Action:      audit.ActionEnqueued,
				EntryID:     entry.ID,
				Recipient:   entry.Recipient,
				MessageType: entry.MessageType,
				Detail:      dedupKey,
			})
		}
	}

	return res, nil
}

// RecentReminders returns queue statistics plus lesson reminders created in
// the last `days` days.
func (s *ReminderService) RecentReminders(ctx context.Context, days int) (ReminderReport, error) {
	var rep ReminderReport

	if days < 1 || days > 90 {
		return rep, &model.ValidationError{Field: "days", Reason: "must be between 1 and 90"}
	}

	stats, err := s.store.Stats(ctx)
	if err != nil {
		return rep, err
	}
	rep.Stats = stats

	recent, err := s.store.List(ctx, repo.Filter{
		MessageType: model.MessageTypeLessonReminder,
		Since:       s.cfg.Now().AddDate(0, 0, -days),
		Limit:       100,
	})
	if err != nil {
		return rep, err
	}
	rep.Recent = recent
	return rep, nil
}

func (s *ReminderService) renderText(lesson Lesson, enr Enrollment) (string, error) {
	var b strings.Builder
	err := s.tmpl.Execute(&b, ReminderTemplateData{
		StudentName: enr.StudentName,
		Subject:     lesson.Subject,
		StartsAt:    lesson.StartsAt.Format("Mon Jan 2 at 15:04"),
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}
