package model

import (
	"time"

	"github.com/google/uuid"
)

// LessonRequestDeadline is how long a mentor has to answer a request.
const LessonRequestDeadline = 24 * time.Hour

type LessonRequestStatus string

const (
	LessonRequestStatusPending  LessonRequestStatus = "pending"
	LessonRequestStatusRejected LessonRequestStatus = "rejected"
	LessonRequestStatusCanceled LessonRequestStatus = "canceled"
	LessonRequestStatusExpired  LessonRequestStatus = "expired"
)

// LessonRequest represents a student's request for a lesson with a mentor.
// Accepted requests are deleted, so there is no accepted status.
type LessonRequest struct {
	ID             uuid.UUID  `json:"id"`
	StudentID      uuid.UUID  `json:"-"`
	MentorID       *uuid.UUID `json:"-"`
	SubfieldID     *uuid.UUID `json:"-"`
	SentDateTime   time.Time  `json:"sentDateTime"`
	LessonDateTime *time.Time `json:"lessonDateTime,omitempty"` // настенное время ментора, без зоны
	IsRejected     bool       `json:"isRejected"`
	IsCanceled     bool       `json:"isCanceled"`

	// Дополнительные поля для удобства (не из БД)
	Subfield *Subfield `json:"subfield,omitempty"`
	Student  *User     `json:"student,omitempty"`
	Mentor   *User     `json:"mentor,omitempty"`
}

// IsTerminal checks if the request was rejected or canceled
func (r *LessonRequest) IsTerminal() bool {
	return r.IsRejected || r.IsCanceled
}

// IsMatched checks if a mentor has been assigned
func (r *LessonRequest) IsMatched() bool {
	return r.MentorID != nil
}

// Deadline возвращает момент, после которого запрос считается просроченным
func (r *LessonRequest) Deadline() time.Time {
	return r.SentDateTime.Add(LessonRequestDeadline)
}

// IsExpired checks if a matched request stayed pending past its deadline.
// now should already be expressed in the mentor's zone.
func (r *LessonRequest) IsExpired(now time.Time) bool {
	if r.IsTerminal() || !r.IsMatched() {
		return false
	}
	return now.After(r.Deadline())
}

// IsPending checks if the request still waits for the mentor
func (r *LessonRequest) IsPending(now time.Time) bool {
	return !r.IsTerminal() && !r.IsExpired(now)
}

// Status derives the lifecycle state at the given moment.
func (r *LessonRequest) Status(now time.Time) LessonRequestStatus {
	switch {
	case r.IsRejected:
		return LessonRequestStatusRejected
	case r.IsCanceled:
		return LessonRequestStatusCanceled
	case r.IsExpired(now):
		return LessonRequestStatusExpired
	default:
		return LessonRequestStatusPending
	}
}
