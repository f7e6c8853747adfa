package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/mentor_scheduler/internal/metrics"
	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/Freeeeeet/mentor_scheduler/internal/notification"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	// LessonReminderLead is how long before an occurrence its reminder goes out.
	LessonReminderLead = 30 * time.Minute
	// AddLessonsWindow is how long a mentor may extend a finished series.
	AddLessonsWindow = 48 * time.Hour
	// AddLessonsFirstReminder is when, after the last occurrence, the first add-lessons reminder goes out.
	AddLessonsFirstReminder = 24 * time.Hour
)

// NotificationService composes the platform emails. Lifecycle operations call
// its event methods after commit; the periodic driver calls Tick. It keeps no
// state between calls: every trigger is recomputed from stored timestamps and
// fires when its instant falls in (now - interval, now].
type NotificationService struct {
	requests  LessonRequestStore
	lessons   LessonStore
	users     UserStore
	timezones *TimeZoneService
	mailer    Dispatcher
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewNotificationService(
	requests LessonRequestStore,
	lessons LessonStore,
	users UserStore,
	timezones *TimeZoneService,
	mailer Dispatcher,
	interval time.Duration,
	logger *zap.Logger,
) *NotificationService {
	return &NotificationService{
		requests:  requests,
		lessons:   lessons,
		users:     users,
		timezones: timezones,
		mailer:    mailer,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *NotificationService) send(ctx context.Context, kind model.NotificationKind, to *model.User, email model.Email, lessonID, requestID *uuid.UUID) {
	s.mailer.Dispatch(ctx, model.NotificationEvent{
		Kind:            kind,
		Recipient:       to,
		LessonID:        lessonID,
		LessonRequestID: requestID,
		Email:           email,
	})
}

func (s *NotificationService) zoneOf(ctx context.Context, user *model.User) model.TimeZone {
	tz, err := s.timezones.ResolveOrDefault(ctx, user.ID, s.timezones.Default())
	if err != nil {
		s.logger.Warn("Failed to resolve timezone, using default",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
		return s.timezones.Default()
	}
	return tz
}

func (s *NotificationService) lessonDate(tz model.TimeZone, t time.Time) string {
	date, err := tz.FormatLessonDate(t)
	if err != nil {
		return t.UTC().Format(model.LessonDateFormat)
	}
	return date
}

func (s *NotificationService) lessonTime(tz model.TimeZone, t time.Time) string {
	clock, err := tz.FormatLessonTime(t)
	if err != nil {
		return t.UTC().Format(model.LessonTimeFormat) + " UTC"
	}
	return clock
}

// LessonRequestSent письмо ментору о новой заявке
func (s *NotificationService) LessonRequestSent(ctx context.Context, req *model.LessonRequest) {
	if req.Mentor == nil || req.Student == nil {
		s.logger.Warn("Lesson request without participants", zap.String("lesson_request_id", req.ID.String()))
		return
	}

	tz := s.zoneOf(ctx, req.Mentor)
	email := notification.LessonRequestCreated(req.Mentor, req.Student, req.Subfield, s.lessonDate(tz, req.Deadline()))
	s.send(ctx, model.NotificationLessonRequestCreated, req.Mentor, email, nil, &req.ID)
}

func (s *NotificationService) LessonRequestAccepted(ctx context.Context, lesson *model.Lesson, student *model.User) {
	if lesson.Mentor == nil || student == nil {
		s.logger.Warn("Accepted lesson without participants", zap.String("lesson_id", lesson.ID.String()))
		return
	}

	s.send(ctx, model.NotificationLessonRequestAccepted, student,
		notification.LessonRequestAccepted(lesson.Mentor, student, lesson), &lesson.ID, nil)

	tz := s.zoneOf(ctx, lesson.Mentor)
	email := notification.LessonScheduled(lesson.Mentor, student, lesson,
		s.lessonDate(tz, lesson.DateTime), s.lessonTime(tz, lesson.DateTime))
	s.send(ctx, model.NotificationLessonScheduled, lesson.Mentor, email, &lesson.ID, nil)
}

func (s *NotificationService) LessonRequestRejected(ctx context.Context, req *model.LessonRequest, reason string) {
	if req.Mentor == nil || req.Student == nil {
		s.logger.Warn("Lesson request without participants", zap.String("lesson_request_id", req.ID.String()))
		return
	}

	s.send(ctx, model.NotificationLessonRequestRejected, req.Student,
		notification.LessonRequestRejected(req.Mentor, req.Student, reason), nil, &req.ID)
}

// LessonCanceled mails the remaining students when the mentor cancels and
// the mentor when a student does.
func (s *NotificationService) LessonCanceled(ctx context.Context, result *model.CancelResult) {
	lesson := result.Lesson

	if result.ByMentor {
		for _, student := range lesson.Students {
			s.send(ctx, model.NotificationLessonCanceled, student,
				notification.LessonCanceledByMentor(student, lesson, result.CancelAll), &lesson.ID, nil)
		}
		return
	}

	if lesson.Mentor == nil {
		return
	}
	email := notification.LessonCanceledByStudent(lesson.Mentor, result.CanceledBy, lesson, result.CancelAll, result.LessonsCanceled)
	s.send(ctx, model.NotificationLessonCanceled, lesson.Mentor, email, &lesson.ID, nil)
}

func (s *NotificationService) LessonRecurrenceUpdated(ctx context.Context, lesson *model.Lesson) {
	for _, student := range lesson.Students {
		s.send(ctx, model.NotificationRecurrenceUpdated, student,
			notification.LessonRecurrenceUpdated(student), &lesson.ID, nil)
	}
}

func (s *NotificationService) StudentAdded(ctx context.Context, lesson *model.Lesson, student *model.User) {
	if lesson.Mentor == nil {
		return
	}

	toStudent, toMentor := notification.StudentAdded(lesson.Mentor, student, lesson)
	s.send(ctx, model.NotificationStudentAdded, student, toStudent, &lesson.ID, nil)
	s.send(ctx, model.NotificationStudentAdded, lesson.Mentor, toMentor, &lesson.ID, nil)
}

// Tick runs one scheduler pass. Errors of one trigger family do not stop the others.
func (s *NotificationService) Tick(ctx context.Context) error {
	ctx, span := otel.Tracer("mentor_scheduler").Start(ctx, "notifications.tick")
	defer span.End()

	started := time.Now()
	defer func() {
		metrics.SchedulerTickDuration.Observe(time.Since(started).Seconds())
	}()

	now := s.now()
	w := window{from: now.Add(-s.interval), to: now}
	span.SetAttributes(attribute.String("window.to", now.UTC().Format(time.RFC3339)))

	err := errors.Join(
		s.lessonRequestTriggers(ctx, w),
		s.lessonTriggers(ctx, w),
	)
	if err != nil {
		span.RecordError(err)
		s.logger.Error("Notification tick finished with errors", zap.Error(err))
	}

	return err
}

// window is the half open interval (from, to].
type window struct {
	from, to time.Time
}

func (w window) contains(t time.Time) bool {
	return t.After(w.from) && !t.After(w.to)
}

func (s *NotificationService) lessonRequestTriggers(ctx context.Context, w window) error {
	requests, err := s.requests.GetOpenMatched(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	for _, req := range requests {
		mentor, err := s.users.GetByID(ctx, *req.MentorID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
		if mentor == nil {
			continue
		}

		deadline := req.Deadline()
		tz := s.zoneOf(ctx, mentor)
		reminderAt, err := tz.StartOfDay(deadline)
		if err != nil {
			reminderAt, _ = model.UTC.StartOfDay(deadline)
		}

		remind := w.contains(reminderAt) && reminderAt.Before(deadline)
		expire := w.contains(deadline)
		if !remind && !expire {
			continue
		}

		student, err := s.users.GetByID(ctx, req.StudentID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
		if student == nil {
			continue
		}

		if remind {
			s.send(ctx, model.NotificationLessonRequestReminder, mentor,
				notification.LessonRequestReminder(mentor, student), nil, &req.ID)
		}
		if expire {
			s.send(ctx, model.NotificationLessonRequestExpired, student,
				notification.LessonRequestExpired(mentor, student), nil, &req.ID)
		}
	}

	return nil
}

// scheduledLesson is a lesson loaded for one tick with its roster and cancellations.
type scheduledLesson struct {
	lesson     *model.Lesson
	studentIDs []uuid.UUID
	canceled   cancellations
	last       time.Time
	// бессрочная серия не имеет последнего занятия
	openEnded bool
}

func (s *NotificationService) lessonTriggers(ctx context.Context, w window) error {
	lessons, err := s.lessons.GetActiveSince(ctx, w.from.Add(-AddLessonsWindow))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	lessonIDs := make([]uuid.UUID, 0, len(lessons))
	for _, lesson := range lessons {
		lessonIDs = append(lessonIDs, lesson.ID)
	}
	canceled, err := s.lessons.GetCanceledOccurrencesByLessons(ctx, lessonIDs)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	loaded := make([]*scheduledLesson, 0, len(lessons))
	byMentor := make(map[uuid.UUID][]*scheduledLesson)
	for _, lesson := range lessons {
		ids, err := s.lessons.GetStudentIDs(ctx, lesson.ID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
		last, bounded := lesson.Series().Last()
		sl := &scheduledLesson{
			lesson:     lesson,
			studentIDs: ids,
			canceled:   newCancellations(canceled[lesson.ID]),
			last:       last,
			openEnded:  !bounded,
		}
		loaded = append(loaded, sl)
		byMentor[lesson.MentorID] = append(byMentor[lesson.MentorID], sl)
	}

	var errs []error
	for _, sl := range loaded {
		if len(sl.studentIDs) == 0 {
			continue
		}
		if err := s.lessonReminders(ctx, w, sl); err != nil {
			errs = append(errs, err)
		}
		if err := s.addLessonsReminders(ctx, w, sl, byMentor[sl.lesson.MentorID]); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (s *NotificationService) lessonReminders(ctx context.Context, w window, sl *scheduledLesson) error {
	lesson := sl.lesson
	// напоминание в момент t - 30m попадает в (from, to], значит t в (from+30m, to+30m]
	from := w.from.Add(LessonReminderLead).Add(time.Nanosecond)
	to := w.to.Add(LessonReminderLead).Add(time.Nanosecond)

	for _, at := range lesson.Series().Between(from, to) {
		if sl.canceled.canceled(at) {
			continue
		}

		var attending []uuid.UUID
		for _, id := range sl.studentIDs {
			if !sl.canceled.skips(id, at) {
				attending = append(attending, id)
			}
		}
		if len(attending) == 0 {
			continue
		}

		mentor, students, err := s.participants(ctx, lesson.MentorID, attending)
		if err != nil {
			return err
		}
		if mentor == nil || len(students) == 0 {
			continue
		}

		occurrence := *lesson
		occurrence.OccurrenceDateTime = at

		for _, student := range students {
			tz := s.zoneOf(ctx, student)
			s.send(ctx, model.NotificationLessonReminder, student,
				notification.LessonReminderStudent(student, mentor, &occurrence, s.lessonTime(tz, at)), &lesson.ID, nil)
		}

		tz := s.zoneOf(ctx, mentor)
		s.send(ctx, model.NotificationLessonReminder, mentor,
			notification.LessonReminderMentor(mentor, students, &occurrence, s.lessonTime(tz, at)), &lesson.ID, nil)
	}

	return nil
}

// addLessonsReminders drives the 48 hour window after the last occurrence in
// which the mentor may schedule more lessons with the same students.
func (s *NotificationService) addLessonsReminders(ctx context.Context, w window, sl *scheduledLesson, mentorLessons []*scheduledLesson) error {
	if sl.openEnded {
		return nil
	}

	closesAt := sl.last.Add(AddLessonsWindow)
	firstAt := sl.last.Add(AddLessonsFirstReminder)

	// все три напоминания лежат в [firstAt, closesAt]
	if firstAt.After(w.to) || !closesAt.After(w.from) {
		return nil
	}

	var waiting []uuid.UUID
	for _, id := range sl.studentIDs {
		if !hasFollowUp(sl, id, mentorLessons) {
			waiting = append(waiting, id)
		}
	}
	if len(waiting) == 0 {
		return nil
	}

	mentor, students, err := s.participants(ctx, sl.lesson.MentorID, waiting)
	if err != nil {
		return err
	}
	if mentor == nil || len(students) == 0 {
		return nil
	}

	tz := s.zoneOf(ctx, mentor)
	lastDayAt, err := tz.StartOfDay(closesAt)
	if err != nil {
		lastDayAt, _ = model.UTC.StartOfDay(closesAt)
	}

	if w.contains(firstAt) {
		s.send(ctx, model.NotificationAddLessonsReminder, mentor,
			notification.AddLessonsReminder(mentor, students, sl.lesson, s.lessonDate(tz, closesAt)), &sl.lesson.ID, nil)
	}
	if w.contains(lastDayAt) && lastDayAt.After(firstAt) {
		s.send(ctx, model.NotificationAddLessonsLastDay, mentor,
			notification.AddLessonsLastDayReminder(mentor, len(students)), &sl.lesson.ID, nil)
	}
	if w.contains(closesAt) {
		for _, student := range students {
			s.send(ctx, model.NotificationNoMoreLessons, student,
				notification.NoMoreLessons(mentor, student), &sl.lesson.ID, nil)
		}
	}

	return nil
}

// hasFollowUp reports whether the mentor has another lesson with the student
// that runs past the end of this one.
func hasFollowUp(sl *scheduledLesson, studentID uuid.UUID, mentorLessons []*scheduledLesson) bool {
	for _, other := range mentorLessons {
		if other.lesson.ID == sl.lesson.ID || (!other.openEnded && !other.last.After(sl.last)) {
			continue
		}
		for _, id := range other.studentIDs {
			if id == studentID {
				return true
			}
		}
	}
	return false
}

func (s *NotificationService) participants(ctx context.Context, mentorID uuid.UUID, studentIDs []uuid.UUID) (*model.User, []*model.User, error) {
	mentor, err := s.users.GetByID(ctx, mentorID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	students, err := s.users.GetByIDs(ctx, studentIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return mentor, students, nil
}
