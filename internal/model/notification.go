package model

import "github.com/google/uuid"

type NotificationKind string

const (
	NotificationLessonRequestCreated  NotificationKind = "lesson_request_created"
	NotificationLessonRequestReminder NotificationKind = "lesson_request_reminder"
	NotificationLessonRequestExpired  NotificationKind = "lesson_request_expired"
	NotificationLessonRequestAccepted NotificationKind = "lesson_request_accepted"
	NotificationLessonRequestRejected NotificationKind = "lesson_request_rejected"
	NotificationLessonScheduled       NotificationKind = "lesson_scheduled"
	NotificationStudentAdded          NotificationKind = "student_added"
	NotificationLessonCanceled        NotificationKind = "lesson_canceled"
	NotificationRecurrenceUpdated     NotificationKind = "lesson_recurrence_updated"
	NotificationLessonReminder        NotificationKind = "lesson_reminder"
	NotificationAddLessonsReminder    NotificationKind = "add_lessons_reminder"
	NotificationAddLessonsLastDay     NotificationKind = "add_lessons_last_reminder"
	NotificationNoMoreLessons         NotificationKind = "no_more_lessons"
)

type Email struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NotificationEvent is produced by the scheduler and handed straight to the mailer; it is never stored.
type NotificationEvent struct {
	Kind            NotificationKind
	Recipient       *User
	LessonID        *uuid.UUID
	LessonRequestID *uuid.UUID
	Email           Email
}
