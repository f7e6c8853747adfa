package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/Freeeeeet/mentor_scheduler/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type LessonRequestService interface {
	Create(ctx context.Context, studentID uuid.UUID) (uuid.UUID, error)
	Get(ctx context.Context, userID uuid.UUID) (*model.LessonRequest, error)
	Send(ctx context.Context, requestID, mentorID, subfieldID uuid.UUID, lessonDateTime time.Time) (*model.LessonRequest, error)
	Accept(ctx context.Context, requestID uuid.UUID, params service.AcceptParams) (*model.Lesson, error)
	Reject(ctx context.Context, requestID uuid.UUID, reason string) error
	Cancel(ctx context.Context, requestID uuid.UUID) error
}

type LessonService interface {
	GetNextLesson(ctx context.Context, mentorID uuid.UUID) (*model.Lesson, error)
	GetPreviousLesson(ctx context.Context, mentorID uuid.UUID) (*model.Lesson, error)
	CancelLesson(ctx context.Context, lessonID, cancelerID uuid.UUID, reason string, cancelAll bool) (*model.CancelResult, error)
	SetMeetingURL(ctx context.Context, lessonID uuid.UUID, meetingURL string) error
	SetRecurrence(ctx context.Context, lessonID uuid.UUID, isRecurrent bool, end *time.Time) (*model.Lesson, error)
	AddStudent(ctx context.Context, lessonID, studentID uuid.UUID) (*model.Lesson, error)
	SetMentorPresence(ctx context.Context, lessonID, mentorID uuid.UUID, isPresent bool) (*model.Lesson, error)
}

type UserService interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*service.Profile, error)
	SetTimeZone(ctx context.Context, userID uuid.UUID, name, abbreviation string) (*model.TimeZone, error)
}

// Handler обслуживает HTTP API заявок и занятий
type Handler struct {
	requests LessonRequestService
	lessons  LessonService
	users    UserService
	validate *validator.Validate
	now      func() time.Time
}

func NewHandler(requests LessonRequestService, lessons LessonService, users UserService) *Handler {
	return &Handler{
		requests: requests,
		lessons:  lessons,
		users:    users,
		validate: validator.New(),
		now:      time.Now,
	}
}

type SendLessonRequestRequest struct {
	MentorID       string `json:"mentorId" validate:"required,uuid"`
	SubfieldID     string `json:"subfieldId" validate:"required,uuid"`
	LessonDateTime string `json:"lessonDateTime" validate:"required"`
}

type AcceptLessonRequestRequest struct {
	MeetingURL            string `json:"meetingUrl" validate:"omitempty,url"`
	IsRecurrent           bool   `json:"isRecurrent"`
	EndRecurrenceDateTime string `json:"endRecurrenceDateTime"`
}

type RejectLessonRequestRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

type CancelLessonRequest struct {
	Reason      string `json:"reason" validate:"max=1000"`
	IsCancelAll bool   `json:"isCancelAll"`
}

type MeetingURLRequest struct {
	MeetingURL string `json:"meetingUrl" validate:"required,url"`
}

type RecurrenceRequest struct {
	IsRecurrent           bool   `json:"isRecurrent"`
	EndRecurrenceDateTime string `json:"endRecurrenceDateTime"`
}

type MentorPresenceRequest struct {
	IsMentorPresent *bool `json:"isMentorPresent" validate:"required"`
}

type AddStudentRequest struct {
	StudentID string `json:"studentId" validate:"required,uuid"`
}

type TimeZoneRequest struct {
	Name         string `json:"name" validate:"required,timezone"`
	Abbreviation string `json:"abbreviation" validate:"max=10"`
}

type LessonRequestResponse struct {
	*model.LessonRequest
	Status model.LessonRequestStatus `json:"status"`
}

// fail отвечает 400 с текстом ошибки как есть
func fail(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
}

func (h *Handler) parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return fmt.Errorf("cannot parse JSON: %w", err)
	}
	if err := h.validate.Struct(out); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	return nil
}

func paramID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q", c.Params("id"))
	}
	return id, nil
}

var wallClockLayouts = []string{model.WallClockFormat, "2006-01-02T15:04:05", "2006-01-02T15:04"}

// parseWallClock reads a date-time without zone; any offset is dropped.
func parseWallClock(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range wallClockLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	if t, err := parseInstant(value); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("invalid date-time %q", value)
}

// parseInstant reads an absolute date-time, with its offset.
func parseInstant(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{time.RFC3339Nano, model.DateTimeFormat} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date-time %q, an offset is required", value)
}

func optionalInstant(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := parseInstant(value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateLessonRequest POST /api/v1/lesson_requests
func (h *Handler) CreateLessonRequest(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return fail(c, err)
	}

	id, err := h.requests.Create(c.UserContext(), userID)
	if err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"id": id})
}

// GetLessonRequest GET /api/v1/lesson_request
func (h *Handler) GetLessonRequest(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return fail(c, err)
	}

	req, err := h.requests.Get(c.UserContext(), userID)
	if errors.Is(err, service.ErrNotFound) {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{})
	}
	if err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(LessonRequestResponse{LessonRequest: req, Status: req.Status(h.now())})
}

// SendLessonRequest POST /api/v1/lesson_requests/:id/send
func (h *Handler) SendLessonRequest(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	var body SendLessonRequestRequest
	if err := h.parseBody(c, &body); err != nil {
		return fail(c, err)
	}
	lessonDateTime, err := parseWallClock(body.LessonDateTime)
	if err != nil {
		return fail(c, err)
	}

	req, err := h.requests.Send(c.UserContext(), id, uuid.MustParse(body.MentorID), uuid.MustParse(body.SubfieldID), lessonDateTime)
	if err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(LessonRequestResponse{LessonRequest: req, Status: req.Status(h.now())})
}

// AcceptLessonRequest POST /api/v1/lesson_requests/:id/accept_lesson_request
func (h *Handler) AcceptLessonRequest(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	var body AcceptLessonRequestRequest
	if err := h.parseBody(c, &body); err != nil {
		return fail(c, err)
	}
	end, err := optionalInstant(body.EndRecurrenceDateTime)
	if err != nil {
		return fail(c, err)
	}

	lesson, err := h.requests.Accept(c.UserContext(), id, service.AcceptParams{
		MeetingURL:            body.MeetingURL,
		IsRecurrent:           body.IsRecurrent,
		EndRecurrenceDateTime: end,
	})
	if err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(lesson)
}

// RejectLessonRequest PUT /api/v1/lesson_requests/:id/reject_lesson_request
func (h *Handler) RejectLessonRequest(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	var body RejectLessonRequestRequest
	if len(c.Body()) > 0 {
		if err := h.parseBody(c, &body); err != nil {
			return fail(c, err)
		}
	}

	if err := h.requests.Reject(c.UserContext(), id, body.Reason); err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusOK).SendString(fmt.Sprintf("Lesson request modified with ID: %s", id))
}

// CancelLessonRequest PUT /api/v1/lesson_requests/:id/cancel_lesson_request
func (h *Handler) CancelLessonRequest(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	if err := h.requests.Cancel(c.UserContext(), id); err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusOK).SendString(fmt.Sprintf("Lesson request modified with ID: %s", id))
}

func (h *Handler) nearestLesson(c *fiber.Ctx, get func(ctx context.Context, mentorID uuid.UUID) (*model.Lesson, error)) error {
	userID, err := UserID(c)
	if err != nil {
		return fail(c, err)
	}

	lesson, err := get(c.UserContext(), userID)
	if errors.Is(err, service.ErrNotFound) {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{})
	}
	if err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(lesson)
}

// GetNextLesson GET /api/v1/next_lesson
func (h *Handler) GetNextLesson(c *fiber.Ctx) error {
	return h.nearestLesson(c, h.lessons.GetNextLesson)
}

// GetPreviousLesson GET /api/v1/previous_lesson
func (h *Handler) GetPreviousLesson(c *fiber.Ctx) error {
	return h.nearestLesson(c, h.lessons.GetPreviousLesson)
}

// CancelLesson PUT /api/v1/lessons/:id/cancel_lesson
func (h *Handler) CancelLesson(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return fail(c, err)
	}
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	var body CancelLessonRequest
	if len(c.Body()) > 0 {
		if err := h.parseBody(c, &body); err != nil {
			return fail(c, err)
		}
	}

	result, err := h.lessons.CancelLesson(c.UserContext(), id, userID, body.Reason, body.IsCancelAll)
	if err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

// SetMeetingURL PUT /api/v1/lessons/:id/meeting_url
func (h *Handler) SetMeetingURL(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	var body MeetingURLRequest
	if err := h.parseBody(c, &body); err != nil {
		return fail(c, err)
	}

	if err := h.lessons.SetMeetingURL(c.UserContext(), id, body.MeetingURL); err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusOK).SendString(fmt.Sprintf("Lesson modified with ID: %s", id))
}

// SetRecurrence PUT /api/v1/lessons/:id/recurrence
func (h *Handler) SetRecurrence(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	var body RecurrenceRequest
	if err := h.parseBody(c, &body); err != nil {
		return fail(c, err)
	}
	end, err := optionalInstant(body.EndRecurrenceDateTime)
	if err != nil {
		return fail(c, err)
	}

	lesson, err := h.lessons.SetRecurrence(c.UserContext(), id, body.IsRecurrent, end)
	if err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(lesson)
}

// SetMentorPresence PUT /api/v1/lessons/:id/mentor_presence
func (h *Handler) SetMentorPresence(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}
	mentorID, err := UserID(c)
	if err != nil {
		return fail(c, err)
	}

	var body MentorPresenceRequest
	if err := h.parseBody(c, &body); err != nil {
		return fail(c, err)
	}

	lesson, err := h.lessons.SetMentorPresence(c.UserContext(), id, mentorID, *body.IsMentorPresent)
	if err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(lesson)
}

// AddStudent POST /api/v1/lessons/:id/students
func (h *Handler) AddStudent(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}

	var body AddStudentRequest
	if err := h.parseBody(c, &body); err != nil {
		return fail(c, err)
	}

	lesson, err := h.lessons.AddStudent(c.UserContext(), id, uuid.MustParse(body.StudentID))
	if err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(lesson)
}

// GetMe GET /api/v1/users/me
func (h *Handler) GetMe(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return fail(c, err)
	}

	profile, err := h.users.GetProfile(c.UserContext(), userID)
	if err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(profile)
}

// SetTimeZone PUT /api/v1/users/me/timezone
func (h *Handler) SetTimeZone(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return fail(c, err)
	}

	var body TimeZoneRequest
	if err := h.parseBody(c, &body); err != nil {
		return fail(c, err)
	}

	tz, err := h.users.SetTimeZone(c.UserContext(), userID, body.Name, body.Abbreviation)
	if err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(tz)
}
