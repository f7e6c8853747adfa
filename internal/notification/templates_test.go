package notification

import (
	"testing"
	"time"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestJoinNames(t *testing.T) {
	tests := []struct {
		names []string
		want  string
	}{
		{nil, ""},
		{[]string{"Ann"}, "Ann"},
		{[]string{"Ann", "Bo"}, "Ann and Bo"},
		{[]string{"Ann", "Bo", "Cy"}, "Ann, Bo, and Cy"},
		{[]string{"Ann", "Bo", "Cy", "Di"}, "Ann, Bo, Cy, and Di"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, JoinNames(tt.names))
		})
	}
}

func TestWrapBody(t *testing.T) {
	assert.Equal(t, "Hi Ann,<br><br>Body<br><br>Regards,<br>MWB Support Team", WrapBody("Ann", "Body"))
}

func weeklyLesson(weeks int) *model.Lesson {
	start := time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)
	lesson := &model.Lesson{
		DateTime:   start,
		MeetingURL: "https://meet.example.com/x",
		Subfield:   &model.Subfield{Name: "Web Development"},
	}
	if weeks > 0 {
		end := start.Add(time.Duration(weeks) * 7 * 24 * time.Hour)
		lesson.IsRecurrent = true
		lesson.EndRecurrenceDateTime = &end
	}
	return lesson
}

var (
	mentor  = &model.User{Name: "Bob Stone", Email: "bob@example.com"}
	student = &model.User{
		Name:         "Ann Lee",
		Email:        "ann@example.com",
		PhoneNumber:  "+40123",
		Organization: &model.Organization{Name: "Education for All"},
		Field:        &model.Field{Name: "Programming"},
	}
)

func TestLessonScheduled(t *testing.T) {
	email := LessonScheduled(mentor, student, weeklyLesson(0), "Mar 11, 2026", "10:00 AM UTC")
	assert.Equal(t, "Lesson scheduled", email.Subject)
	assert.Contains(t, email.Body, "Thank you for scheduling a web development lesson on Mar 11, 2026 at 10:00 AM UTC.")
	assert.Contains(t, email.Body, "<li>WhatsApp number: +40123</li>")

	email = LessonScheduled(mentor, student, weeklyLesson(3), "Mar 11, 2026", "10:00 AM UTC")
	assert.Contains(t, email.Body, "a recurring web development lesson starting from Mar 11, 2026")
}

func TestLessonRequestAccepted_UsesStudentField(t *testing.T) {
	email := LessonRequestAccepted(mentor, student, weeklyLesson(2))
	assert.Contains(t, email.Body, "Bob Stone has scheduled a recurring programming lesson with you.")
	assert.Contains(t, email.Body, "Hi Ann,")
}

func TestLessonRequestRejected(t *testing.T) {
	assert.Contains(t, LessonRequestRejected(mentor, student, "").Body, "rejected your lesson request. Please")
	assert.Contains(t, LessonRequestRejected(mentor, student, "busy").Body, `rejected your lesson request with the following message: "busy".`)
}

func TestStudentAdded(t *testing.T) {
	toStudent, toMentor := StudentAdded(mentor, student, weeklyLesson(0))
	assert.Equal(t, "Lesson scheduled", toStudent.Subject)
	assert.Equal(t, "Student added to next lesson", toMentor.Subject)
	assert.Contains(t, toMentor.Body, "Ann Lee from Education for All has been added to the next lesson.")

	_, toMentor = StudentAdded(mentor, student, weeklyLesson(4))
	assert.Equal(t, "Student added to lesson recurrence", toMentor.Subject)
}

func TestLessonCanceledByMentor(t *testing.T) {
	lesson := weeklyLesson(4)
	assert.Equal(t, "Lesson recurrence canceled", LessonCanceledByMentor(student, lesson, true).Subject)
	assert.Equal(t, "Next lesson canceled", LessonCanceledByMentor(student, lesson, false).Subject)
	assert.Equal(t, "Next lesson canceled", LessonCanceledByMentor(student, weeklyLesson(0), true).Subject)
}

func TestLessonCanceledByStudent(t *testing.T) {
	lesson := weeklyLesson(4)
	lesson.ReasonCanceled = "exam"

	email := LessonCanceledByStudent(mentor, student, lesson, true, 0)
	assert.Equal(t, "Next lesson status", email.Subject)
	assert.Contains(t, email.Body, `Ann Lee won't participate in the lesson recurrence for the following reason: "exam".`)

	email = LessonCanceledByStudent(mentor, student, lesson, false, 1)
	assert.Equal(t, "Next lesson canceled", email.Subject)
	assert.Contains(t, email.Body, "canceled by the only participant with the following message")

	email = LessonCanceledByStudent(mentor, student, lesson, true, 4)
	assert.Equal(t, "Next lessons canceled", email.Subject)
	assert.Contains(t, email.Body, "The next 4 lessons")
}

func openEndedLesson() *model.Lesson {
	lesson := weeklyLesson(0)
	lesson.IsRecurrent = true
	return lesson
}

func TestOpenEndedLessonCopy(t *testing.T) {
	lesson := openEndedLesson()

	accepted := LessonRequestAccepted(mentor, student, lesson)
	assert.Contains(t, accepted.Body, "scheduled a recurring programming lesson")

	byMentor := LessonCanceledByMentor(student, lesson, true)
	assert.Equal(t, "Lesson recurrence canceled", byMentor.Subject)

	byStudent := LessonCanceledByStudent(mentor, student, lesson, true, 1)
	assert.Equal(t, "Lesson recurrence canceled", byStudent.Subject)
	assert.Contains(t, byStudent.Body, "The lesson recurrence has been canceled by the only participant.")

	next := LessonCanceledByStudent(mentor, student, lesson, false, 1)
	assert.Equal(t, "Next lesson canceled", next.Subject)
}

func TestLessonReminderMentor_Plural(t *testing.T) {
	other := &model.User{Name: "Bo Wu", Email: "bo@example.com"}

	one := LessonReminderMentor(mentor, []*model.User{student}, weeklyLesson(0), "10:00 AM UTC")
	assert.Contains(t, one.Body, "If the student isn't able to join the session, you can message him/her")
	assert.NotContains(t, one.Body, "bo@example.com")

	two := LessonReminderMentor(mentor, []*model.User{student, other}, weeklyLesson(0), "10:00 AM UTC")
	assert.Contains(t, two.Body, "If the students aren't able to join the session, you can message them")
	assert.Contains(t, two.Body, "<li>Email: bo@example.com</li>")
}

func TestAddLessonsReminder(t *testing.T) {
	other := &model.User{Name: "Bo Wu"}

	email := AddLessonsReminder(mentor, []*model.User{student}, weeklyLesson(0), "Mar 13, 2026")
	assert.Contains(t, email.Body, "Thank you for having done 1 lesson with Ann.")
	assert.Contains(t, email.Body, "add more lessons with him/her")

	email = AddLessonsReminder(mentor, []*model.User{student, other}, weeklyLesson(6), "Apr 24, 2026")
	assert.Contains(t, email.Body, "6 lessons with Ann and Bo.")
	assert.Contains(t, email.Body, "<b>Apr 24, 2026</b>")

	cy := &model.User{Name: "Cy Park"}
	email = AddLessonsReminder(mentor, []*model.User{student, other, cy}, weeklyLesson(4), "Apr 10, 2026")
	assert.Equal(t, "Add more lessons", email.Subject)
	assert.Contains(t, email.Body, "Thank you for having done 4 lessons with Ann, Bo, and Cy.")
	assert.Contains(t, email.Body, "add more lessons with them")

	assert.Contains(t, AddLessonsLastDayReminder(mentor, 1).Body, "previous student in")
	assert.Contains(t, AddLessonsLastDayReminder(mentor, 3).Body, "previous students in")
}
