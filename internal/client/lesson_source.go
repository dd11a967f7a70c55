package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/studiobell/dispatch/internal/service"
)

// LessonAPI fetches upcoming lessons from the collaborating class service.
type LessonAPI struct {
	url    string
	client *http.Client
}

var _ service.LessonSource = (*LessonAPI)(nil)

func NewLessonAPI(baseURL string) *LessonAPI {
	return &LessonAPI{
		url: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type lessonPayload struct {
	ID          string    `json:"id"`
	Subject     string    `json:"subject"`
	StartsAt    time.Time `json:"startsAt"`
	Enrollments []struct {
		StudentID   string `json:"studentId"`
		StudentName string `json:"studentName"`
		Phone       string `json:"phone"`
		Active      bool   `json:"active"`
	} `json:"enrollments"`
}

func (c *LessonAPI) UpcomingLessons(ctx context.Context, from, to time.Time) ([]service.Lesson, error) {
	q := url.Values{}
	q.Set("from", from.UTC().Format(time.RFC3339))
	q.Set("to", to.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lesson service returned status %d", resp.StatusCode)
	}

	var payload []lessonPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode lessons: %w", err)
	}

	lessons := make([]service.Lesson, 0, len(payload))
	for _, lp := range payload {
		lesson := service.Lesson{
			ID:       lp.ID,
			Subject:  lp.Subject,
			StartsAt: lp.StartsAt,
		}
		for _, e := range lp.Enrollments {
			lesson.Enrollments = append(lesson.Enrollments, service.Enrollment{
				StudentID:   e.StudentID,
				StudentName: e.StudentName,
				Phone:       e.Phone,
				Active:      e.Active,
			})
		}
		lessons = append(lessons, lesson)
	}
	return lessons, nil
}

// NoLessons is the source used when no lesson service is configured.
type NoLessons struct{}

var _ service.LessonSource = NoLessons{}

func (NoLessons) UpcomingLessons(context.Context, time.Time, time.Time) ([]service.Lesson, error) {
	return nil, nil
}
