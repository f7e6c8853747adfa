package model

import (
	"time"

	"github.com/Freeeeeet/mentor_scheduler/internal/recurrence"
	"github.com/google/uuid"
)

type Lesson struct {
	ID                    uuid.UUID  `json:"id"`
	MentorID              uuid.UUID  `json:"-"`
	SubfieldID            uuid.UUID  `json:"-"`
	DateTime              time.Time  `json:"dateTime"`
	MeetingURL            string     `json:"meetingUrl"`
	IsRecurrent           bool       `json:"isRecurrent"`
	EndRecurrenceDateTime *time.Time `json:"endRecurrenceDateTime,omitempty"`
	IsCanceled            bool       `json:"isCanceled"`
	ReasonCanceled        string     `json:"reasonCanceled,omitempty"`
	// nil пока ментор не отметил присутствие
	IsMentorPresent        *bool      `json:"isMentorPresent,omitempty"`
	MentorPresenceDateTime *time.Time `json:"mentorPresenceDateTime,omitempty"`
	CreatedAt              time.Time  `json:"-"`

	// Дополнительные поля для удобства (не из БД)
	OccurrenceDateTime time.Time `json:"occurrenceDateTime"`
	Mentor             *User     `json:"mentor,omitempty"`
	Subfield           *Subfield `json:"subfield,omitempty"`
	Students           []*User   `json:"students,omitempty"`
}

// Series возвращает серию занятия; isRecurrent без даты окончания означает бессрочную серию
func (l *Lesson) Series() recurrence.Series {
	return recurrence.New(l.DateTime, l.IsRecurrent, l.EndRecurrenceDateTime)
}

// CanceledOccurrence отмечает отмену одного занятия серии.
// StudentID == nil означает, что занятие отменено для всех.
type CanceledOccurrence struct {
	LessonID  uuid.UUID  `json:"lessonId"`
	StudentID *uuid.UUID `json:"studentId,omitempty"`
	DateTime  time.Time  `json:"dateTime"`
	Reason    string     `json:"reason,omitempty"`
}

// CancelResult describes what a cancellation removed; it drives the notification copy.
type CancelResult struct {
	Lesson          *Lesson `json:"lesson"`
	CanceledBy      *User   `json:"-"`
	ByMentor        bool    `json:"byMentor"`
	CancelAll       bool    `json:"cancelAll"`
	LessonsCanceled int     `json:"lessonsCanceled"`
}
