package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/mentor_scheduler/internal/events"
	"github.com/Freeeeeet/mentor_scheduler/internal/metrics"
	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AcceptParams параметры занятия, которые ментор выбирает при принятии заявки
type AcceptParams struct {
	MeetingURL            string
	IsRecurrent           bool
	EndRecurrenceDateTime *time.Time
}

// LessonRequestService ведёт жизненный цикл заявки на занятие:
// Pending -> Accepted (заявка удаляется) | Rejected | Canceled | Expired (вычисляется).
type LessonRequestService struct {
	tx        TxManager
	requests  LessonRequestStore
	users     UserStore
	subfields SubfieldStore
	lessons   *LessonService
	timezones *TimeZoneService
	notifier  Notifier
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewLessonRequestService(
	tx TxManager,
	requests LessonRequestStore,
	users UserStore,
	subfields SubfieldStore,
	lessons *LessonService,
	timezones *TimeZoneService,
	notifier Notifier,
	publisher events.Publisher,
	logger *zap.Logger,
) *LessonRequestService {
	return &LessonRequestService{
		tx:        tx,
		requests:  requests,
		users:     users,
		subfields: subfields,
		lessons:   lessons,
		timezones: timezones,
		notifier:  notifier,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Create открывает новую заявку студента
func (s *LessonRequestService) Create(ctx context.Context, studentID uuid.UUID) (uuid.UUID, error) {
	var req *model.LessonRequest

	err := withinTx(ctx, s.tx, func(ctx context.Context) error {
		// Блокируем студента, чтобы две параллельные заявки не прошли проверку
		found, err := s.users.LockByID(ctx, studentID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
		if !found {
			return fmt.Errorf("%w: user %s", ErrNotFound, studentID)
		}

		student, err := s.users.GetByID(ctx, studentID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
		if student == nil {
			return fmt.Errorf("%w: user %s", ErrNotFound, studentID)
		}
		if student.IsMentor {
			return fmt.Errorf("%w: mentors cannot request lessons", ErrValidation)
		}

		open, err := s.requests.GetOpenByStudent(ctx, studentID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
		for _, existing := range open {
			expired, err := s.IsExpired(ctx, existing)
			if err != nil {
				return err
			}
			if !expired {
				return fmt.Errorf("%w: student already has an active lesson request", ErrValidation)
			}
		}

		studentTZ, err := s.timezones.ResolveOrDefault(ctx, studentID, s.timezones.Default())
		if err != nil {
			return err
		}
		sent, err := studentTZ.In(s.now())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}

		req = &model.LessonRequest{StudentID: studentID, SentDateTime: sent}
		if err := s.requests.Create(ctx, req); err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}

		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	s.logger.Info("Lesson request created",
		zap.String("lesson_request_id", req.ID.String()),
		zap.String("student_id", studentID.String()),
	)
	s.transition(ctx, events.LessonRequestCreated, req.ID, studentID)

	return req.ID, nil
}

// Send назначает ментора и время заявке и перезапускает 24-часовой срок
func (s *LessonRequestService) Send(ctx context.Context, requestID, mentorID, subfieldID uuid.UUID, lessonDateTime time.Time) (*model.LessonRequest, error) {
	var req *model.LessonRequest

	err := withinTx(ctx, s.tx, func(ctx context.Context) error {
		var err error
		req, err = s.lockPending(ctx, requestID)
		if err != nil {
			return err
		}

		mentor, err := s.users.GetByID(ctx, mentorID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
		if mentor == nil || !mentor.IsMentor {
			return fmt.Errorf("%w: user %s is not a mentor", ErrValidation, mentorID)
		}

		subfield, err := s.subfields.GetByID(ctx, subfieldID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
		if subfield == nil {
			return fmt.Errorf("%w: subfield %s", ErrValidation, subfieldID)
		}

		student, err := s.users.GetByID(ctx, req.StudentID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}

		wallClock := time.Date(
			lessonDateTime.Year(), lessonDateTime.Month(), lessonDateTime.Day(),
			lessonDateTime.Hour(), lessonDateTime.Minute(), lessonDateTime.Second(), 0, time.UTC,
		)
		sent := s.now()
		if err := s.requests.AssignMentor(ctx, requestID, mentorID, subfieldID, wallClock, sent); err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}

		req.MentorID = &mentorID
		req.SubfieldID = &subfieldID
		req.LessonDateTime = &wallClock
		req.SentDateTime = sent
		req.Mentor = mentor
		req.Student = student
		req.Subfield = subfield
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Lesson request sent to mentor",
		zap.String("lesson_request_id", requestID.String()),
		zap.String("mentor_id", mentorID.String()),
	)
	s.notifier.LessonRequestSent(ctx, req)
	s.transition(ctx, events.LessonRequestSent, requestID, mentorID)

	return req, nil
}

// Accept превращает заявку в занятие.
// Строка заявки заблокирована до конца транзакции, второй параллельный вызов получит ErrState.
func (s *LessonRequestService) Accept(ctx context.Context, requestID uuid.UUID, params AcceptParams) (*model.Lesson, error) {
	var lesson *model.Lesson
	var student *model.User

	err := withinTx(ctx, s.tx, func(ctx context.Context) error {
		req, err := s.requests.GetByIDForUpdate(ctx, requestID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
		if req == nil {
			return fmt.Errorf("%w: lesson request %s is no longer pending", ErrState, requestID)
		}
		if !req.IsMatched() || req.LessonDateTime == nil || req.SubfieldID == nil {
			return fmt.Errorf("%w: lesson request has not been sent to a mentor", ErrState)
		}
		if err := s.ensurePending(ctx, req); err != nil {
			return err
		}

		lesson, err = s.lessons.createLesson(ctx, CreateLessonParams{
			StudentID:             req.StudentID,
			MentorID:              *req.MentorID,
			SubfieldID:            *req.SubfieldID,
			LessonDateTime:        *req.LessonDateTime,
			MeetingURL:            params.MeetingURL,
			IsRecurrent:           params.IsRecurrent,
			EndRecurrenceDateTime: params.EndRecurrenceDateTime,
		})
		if err != nil {
			return err
		}

		// Первый подраздел студента остаётся за ним
		if _, err := s.subfields.AddUserSubfieldIfNone(ctx, req.StudentID, *req.SubfieldID); err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}

		if err := s.requests.Delete(ctx, requestID); err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}

		if err := s.lessons.populate(ctx, lesson); err != nil {
			return err
		}
		student, err = s.users.GetByID(ctx, req.StudentID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Lesson request accepted",
		zap.String("lesson_request_id", requestID.String()),
		zap.String("lesson_id", lesson.ID.String()),
	)
	s.notifier.LessonRequestAccepted(ctx, lesson, student)
	s.transition(ctx, events.LessonRequestAccepted, requestID, lesson.MentorID)

	return s.lessons.nextLessonOrCreated(ctx, lesson)
}

// Reject отклоняет заявку; reason попадает в письмо студенту
func (s *LessonRequestService) Reject(ctx context.Context, requestID uuid.UUID, reason string) error {
	var req *model.LessonRequest

	err := withinTx(ctx, s.tx, func(ctx context.Context) error {
		var err error
		req, err = s.lockPending(ctx, requestID)
		if err != nil {
			return err
		}

		if err := s.requests.SetRejected(ctx, requestID); err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
		req.IsRejected = true

		if req.Student, err = s.users.GetByID(ctx, req.StudentID); err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
		if req.MentorID != nil {
			if req.Mentor, err = s.users.GetByID(ctx, *req.MentorID); err != nil {
				return fmt.Errorf("%w: %v", ErrStore, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Lesson request rejected", zap.String("lesson_request_id", requestID.String()))
	s.notifier.LessonRequestRejected(ctx, req, reason)
	s.transition(ctx, events.LessonRequestRejected, requestID, req.StudentID)

	return nil
}

// Cancel отменяет заявку по инициативе студента
func (s *LessonRequestService) Cancel(ctx context.Context, requestID uuid.UUID) error {
	var req *model.LessonRequest

	err := withinTx(ctx, s.tx, func(ctx context.Context) error {
		var err error
		req, err = s.lockPending(ctx, requestID)
		if err != nil {
			return err
		}

		if err := s.requests.SetCanceled(ctx, requestID); err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Lesson request canceled", zap.String("lesson_request_id", requestID.String()))
	s.transition(ctx, events.LessonRequestCanceled, requestID, req.StudentID)

	return nil
}

// Get возвращает последнюю заявку пользователя как ментора или как студента
func (s *LessonRequestService) Get(ctx context.Context, userID uuid.UUID) (*model.LessonRequest, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}

	req, err := s.requests.GetLatestByUser(ctx, userID, user.IsMentor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: no lesson request", ErrNotFound)
	}

	if user.IsMentor {
		req.Mentor = user
		if req.Student, err = s.users.GetByID(ctx, req.StudentID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
	} else {
		req.Student = user
	}

	return req, nil
}

// IsExpired проверяет, что назначенная заявка пережила срок; в базу ничего не пишет
func (s *LessonRequestService) IsExpired(ctx context.Context, req *model.LessonRequest) (bool, error) {
	if !req.IsMatched() {
		return false, nil
	}

	mentorTZ, err := s.timezones.ResolveOrDefault(ctx, *req.MentorID, s.timezones.Default())
	if err != nil {
		return false, err
	}
	now, err := mentorTZ.In(s.now())
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	return req.IsExpired(now), nil
}

func (s *LessonRequestService) lockPending(ctx context.Context, requestID uuid.UUID) (*model.LessonRequest, error) {
	req, err := s.requests.GetByIDForUpdate(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: lesson request %s", ErrNotFound, requestID)
	}
	if err := s.ensurePending(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *LessonRequestService) ensurePending(ctx context.Context, req *model.LessonRequest) error {
	if req.IsTerminal() {
		return fmt.Errorf("%w: lesson request is %s", ErrState, req.Status(s.now()))
	}

	expired, err := s.IsExpired(ctx, req)
	if err != nil {
		return err
	}
	if expired {
		return fmt.Errorf("%w: lesson request is %s", ErrState, model.LessonRequestStatusExpired)
	}

	return nil
}

func (s *LessonRequestService) transition(ctx context.Context, eventType string, requestID, userID uuid.UUID) {
	metrics.LessonRequestTransitions.WithLabelValues(eventType).Inc()

	err := s.publisher.Publish(ctx, events.Event{
		EventType:  eventType,
		RequestID:  &requestID,
		UserID:     userID,
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("Failed to publish event", zap.String("event", eventType), zap.Error(err))
	}
}
