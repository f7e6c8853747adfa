package service

import (
	"context"
	"time"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/google/uuid"
)

// TxManager runs fn in one transaction carried by the context.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.User, error)
	LockByID(ctx context.Context, id uuid.UUID) (bool, error)
}

type TimeZoneStore interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*model.TimeZone, error)
}

// TimeZoneWriter also stores the zone a user picks.
type TimeZoneWriter interface {
	TimeZoneStore
	Upsert(ctx context.Context, userID uuid.UUID, tz model.TimeZone) error
}

type SubfieldStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Subfield, error)
	AddUserSubfieldIfNone(ctx context.Context, userID, subfieldID uuid.UUID) (bool, error)
}

type LessonRequestStore interface {
	Create(ctx context.Context, req *model.LessonRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.LessonRequest, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.LessonRequest, error)
	GetLatestByUser(ctx context.Context, userID uuid.UUID, asMentor bool) (*model.LessonRequest, error)
	GetOpenByStudent(ctx context.Context, studentID uuid.UUID) ([]*model.LessonRequest, error)
	GetOpenMatched(ctx context.Context) ([]*model.LessonRequest, error)
	AssignMentor(ctx context.Context, id, mentorID, subfieldID uuid.UUID, lessonDateTime time.Time, sentDateTime time.Time) error
	SetRejected(ctx context.Context, id uuid.UUID) error
	SetCanceled(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type LessonStore interface {
	Create(ctx context.Context, lesson *model.Lesson) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Lesson, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Lesson, error)
	GetUpcomingByMentor(ctx context.Context, mentorID uuid.UUID, from time.Time) ([]*model.Lesson, error)
	GetStartedByMentor(ctx context.Context, mentorID uuid.UUID, before time.Time) ([]*model.Lesson, error)
	GetActiveSince(ctx context.Context, since time.Time) ([]*model.Lesson, error)
	SetCanceled(ctx context.Context, id uuid.UUID, reason string) error
	UpdateRecurrence(ctx context.Context, id uuid.UUID, isRecurrent bool, end *time.Time) error
	UpdateMeetingURL(ctx context.Context, id uuid.UUID, meetingURL string) error
	SetMentorPresence(ctx context.Context, id uuid.UUID, isPresent bool, at time.Time) error
	AddStudent(ctx context.Context, lessonID, studentID uuid.UUID) error
	RemoveStudent(ctx context.Context, lessonID, studentID uuid.UUID) error
	GetStudentIDs(ctx context.Context, lessonID uuid.UUID) ([]uuid.UUID, error)
	AddCanceledOccurrence(ctx context.Context, occurrence *model.CanceledOccurrence) error
	GetCanceledOccurrences(ctx context.Context, lessonID uuid.UUID) ([]*model.CanceledOccurrence, error)
	GetCanceledOccurrencesByLessons(ctx context.Context, lessonIDs []uuid.UUID) (map[uuid.UUID][]*model.CanceledOccurrence, error)
}

// Notifier receives lifecycle events after their transaction has committed.
// Implementations must not block on delivery.
type Notifier interface {
	LessonRequestSent(ctx context.Context, req *model.LessonRequest)
	LessonRequestAccepted(ctx context.Context, lesson *model.Lesson, student *model.User)
	LessonRequestRejected(ctx context.Context, req *model.LessonRequest, reason string)
	LessonCanceled(ctx context.Context, result *model.CancelResult)
	LessonRecurrenceUpdated(ctx context.Context, lesson *model.Lesson)
	StudentAdded(ctx context.Context, lesson *model.Lesson, student *model.User)
}

// Dispatcher hands a composed email to the delivery layer.
type Dispatcher interface {
	Dispatch(ctx context.Context, event model.NotificationEvent)
}
