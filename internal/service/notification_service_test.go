package service

import (
	"context"
	"testing"
	"time"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tickAt runs one scheduler pass with the clock set to at.
func tickAt(t *testing.T, env *testEnv, at time.Time) []model.NotificationEvent {
	t.Helper()
	env.clock.Set(at)
	require.NoError(t, env.notifications.Tick(context.Background()))
	return env.mailer.take()
}

func TestNotificationService_LessonReminderOncePerOccurrence(t *testing.T) {
	env := newTestEnv(t, lessonNow)
	mentor := env.addUser("Bob Stone", true, "")
	ann := env.addUser("Ann Lee", false, "Europe/Bucharest")
	env.addLesson(mentor, seriesStart, 0, ann)

	reminderAt := seriesStart.Add(-LessonReminderLead)
	var sent []model.NotificationEvent
	for at := reminderAt.Add(-5 * testInterval); !at.After(reminderAt.Add(5 * testInterval)); at = at.Add(testInterval) {
		sent = append(sent, tickAt(t, env, at)...)
	}

	require.Len(t, sent, 2)
	assert.Equal(t, []string{"Next lesson in 30 mins", "Next lesson in 30 mins"}, subjects(sent))

	recipients := map[uuid.UUID]string{}
	for _, e := range sent {
		assert.Equal(t, model.NotificationLessonReminder, e.Kind)
		recipients[e.Recipient.ID] = e.Email.Body
	}
	assert.Contains(t, recipients[ann.ID], "12:00 PM EET", "the student gets the local clock")
	assert.Contains(t, recipients[mentor.ID], "10:00 AM UTC")
	assert.Contains(t, recipients[mentor.ID], ann.Email)
}

func TestNotificationService_LessonReminderEveryWeek(t *testing.T) {
	env := newTestEnv(t, lessonNow)
	mentor := env.addUser("Bob Stone", true, "")
	ann := env.addUser("Ann Lee", false, "")
	lesson := env.addLesson(mentor, seriesStart, 4, ann)

	env.lessons.canceled = append(env.lessons.canceled, &model.CanceledOccurrence{
		LessonID: lesson.ID,
		DateTime: seriesStart.Add(7 * 24 * time.Hour),
	})

	var counts []int
	for k := 0; k < 5; k++ {
		at := seriesStart.Add(time.Duration(k) * 7 * 24 * time.Hour).Add(-LessonReminderLead)
		counts = append(counts, len(tickAt(t, env, at)))
	}

	// вторая неделя отменена, пятой недели нет
	assert.Equal(t, []int{2, 0, 2, 2, 0}, counts)
}

func TestNotificationService_LessonReminderSkipsStudent(t *testing.T) {
	env := newTestEnv(t, lessonNow)
	mentor := env.addUser("Bob Stone", true, "")
	ann := env.addUser("Ann Lee", false, "")
	bo := env.addUser("Bo Wu", false, "")
	lesson := env.addLesson(mentor, seriesStart, 4, ann, bo)

	boID := bo.ID
	env.lessons.canceled = append(env.lessons.canceled, &model.CanceledOccurrence{
		LessonID:  lesson.ID,
		StudentID: &boID,
		DateTime:  seriesStart,
	})

	sent := tickAt(t, env, seriesStart.Add(-LessonReminderLead))
	require.Len(t, sent, 2)
	for _, e := range sent {
		assert.NotEqual(t, bo.ID, e.Recipient.ID)
		if e.Recipient.ID == mentor.ID {
			assert.NotContains(t, e.Email.Body, bo.Email)
			assert.Contains(t, e.Email.Body, "If the student isn't able")
		}
	}
}

func TestNotificationService_LessonRequestTriggers(t *testing.T) {
	env := newTestEnv(t, lessonNow)
	mentor := env.addUser("Bob Stone", true, "")
	student := env.addUser("Ann Lee", false, "")
	subfieldID := env.addSubfield("Algebra").ID
	mentorID := mentor.ID
	proposed := time.Date(2026, 3, 12, 14, 0, 0, 0, time.UTC)

	// дедлайн 11 марта в 12:00 UTC, напоминание в полночь того же дня
	req := &model.LessonRequest{
		ID:             uuid.New(),
		StudentID:      student.ID,
		MentorID:       &mentorID,
		SubfieldID:     &subfieldID,
		SentDateTime:   lessonNow,
		LessonDateTime: &proposed,
	}
	env.requests.requests[req.ID] = req
	unmatched := &model.LessonRequest{ID: uuid.New(), StudentID: env.addUser("Bo Wu", false, "").ID, SentDateTime: lessonNow}
	env.requests.requests[unmatched.ID] = unmatched

	midnight := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	assert.Empty(t, tickAt(t, env, midnight.Add(-testInterval)))

	sent := tickAt(t, env, midnight)
	require.Len(t, sent, 1)
	assert.Equal(t, model.NotificationLessonRequestReminder, sent[0].Kind)
	assert.Equal(t, mentor.ID, sent[0].Recipient.ID)
	assert.Equal(t, req.ID, *sent[0].LessonRequestID)

	assert.Empty(t, tickAt(t, env, midnight.Add(testInterval)))

	sent = tickAt(t, env, req.Deadline().Add(30*time.Second))
	require.Len(t, sent, 1)
	assert.Equal(t, model.NotificationLessonRequestExpired, sent[0].Kind)
	assert.Equal(t, student.ID, sent[0].Recipient.ID)

	assert.Empty(t, tickAt(t, env, req.Deadline().Add(testInterval+30*time.Second)))
}

func TestNotificationService_RequestReminderNotAfterDeadline(t *testing.T) {
	env := newTestEnv(t, lessonNow)
	mentor := env.addUser("Bob Stone", true, "")
	student := env.addUser("Ann Lee", false, "")
	mentorID := mentor.ID

	// отправлено ровно в полночь: начало дня совпадает с дедлайном
	sentAt := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	req := &model.LessonRequest{ID: uuid.New(), StudentID: student.ID, MentorID: &mentorID, SentDateTime: sentAt}
	env.requests.requests[req.ID] = req

	sent := tickAt(t, env, req.Deadline())
	require.Len(t, sent, 1)
	assert.Equal(t, model.NotificationLessonRequestExpired, sent[0].Kind)
}

func TestNotificationService_AddLessonsSequence(t *testing.T) {
	env := newTestEnv(t, lessonNow)
	mentor := env.addUser("Bob Stone", true, "")
	ann := env.addUser("Ann Lee", false, "")
	bo := env.addUser("Bo Wu", false, "")
	// Mar 11, 18, 25 and Apr 1
	env.addLesson(mentor, seriesStart, 4, ann, bo)
	last := seriesStart.Add(3 * 7 * 24 * time.Hour)

	first := tickAt(t, env, last.Add(AddLessonsFirstReminder))
	require.Len(t, first, 1)
	assert.Equal(t, model.NotificationAddLessonsReminder, first[0].Kind)
	assert.Equal(t, mentor.ID, first[0].Recipient.ID)
	assert.Contains(t, first[0].Email.Body, "4 lessons with Ann and Bo")
	assert.Contains(t, first[0].Email.Body, "Apr 3, 2026")

	lastDay := tickAt(t, env, time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC))
	require.Len(t, lastDay, 1)
	assert.Equal(t, model.NotificationAddLessonsLastDay, lastDay[0].Kind)
	assert.Contains(t, lastDay[0].Email.Body, "previous students")

	closed := tickAt(t, env, last.Add(AddLessonsWindow))
	assert.Equal(t, []string{"No more lessons added", "No more lessons added"}, subjects(closed))

	assert.Empty(t, tickAt(t, env, last.Add(AddLessonsWindow+testInterval)))
}

func TestNotificationService_AddLessonsSuppressedByFollowUp(t *testing.T) {
	env := newTestEnv(t, lessonNow)
	mentor := env.addUser("Bob Stone", true, "")
	ann := env.addUser("Ann Lee", false, "")
	bo := env.addUser("Bo Wu", false, "")
	env.addLesson(mentor, seriesStart, 0, ann, bo)
	env.addLesson(mentor, seriesStart.Add(7*24*time.Hour), 0, ann)

	first := tickAt(t, env, seriesStart.Add(AddLessonsFirstReminder))
	require.Len(t, first, 1)
	assert.Contains(t, first[0].Email.Body, "1 lesson with Bo.")

	closed := tickAt(t, env, seriesStart.Add(AddLessonsWindow))
	require.Len(t, closed, 1)
	assert.Equal(t, bo.ID, closed[0].Recipient.ID)
}

func TestNotificationService_OpenEndedLesson(t *testing.T) {
	env := newTestEnv(t, lessonNow)
	mentor := env.addUser("Bob Stone", true, "")
	ann := env.addUser("Ann Lee", false, "")
	env.addOpenEndedLesson(mentor, seriesStart, ann)

	far := seriesStart.Add(100 * 7 * 24 * time.Hour)
	reminders := tickAt(t, env, far.Add(-LessonReminderLead))
	assert.Equal(t, []string{"Next lesson in 30 mins", "Next lesson in 30 mins"}, subjects(reminders))

	for _, at := range []time.Time{
		seriesStart.Add(AddLessonsFirstReminder),
		seriesStart.Add(AddLessonsWindow),
		far.Add(AddLessonsFirstReminder),
		far.Add(AddLessonsWindow),
	} {
		assert.Empty(t, tickAt(t, env, at), "no add-lessons emails at %s", at)
	}
}

func TestNotificationService_OpenEndedLessonIsFollowUp(t *testing.T) {
	env := newTestEnv(t, lessonNow)
	mentor := env.addUser("Bob Stone", true, "")
	ann := env.addUser("Ann Lee", false, "")
	env.addLesson(mentor, seriesStart, 0, ann)
	env.addOpenEndedLesson(mentor, seriesStart.Add(-7*24*time.Hour), ann)

	assert.Empty(t, tickAt(t, env, seriesStart.Add(AddLessonsFirstReminder)))
	assert.Empty(t, tickAt(t, env, seriesStart.Add(AddLessonsWindow)))
}

func TestNotificationService_CanceledLessonIsSilent(t *testing.T) {
	env := newTestEnv(t, lessonNow)
	mentor := env.addUser("Bob Stone", true, "")
	ann := env.addUser("Ann Lee", false, "")
	lesson := env.addLesson(mentor, seriesStart, 0, ann)
	env.lessons.lessons[lesson.ID].IsCanceled = true

	assert.Empty(t, tickAt(t, env, seriesStart.Add(-LessonReminderLead)))
	assert.Empty(t, tickAt(t, env, seriesStart.Add(AddLessonsFirstReminder)))
}

func TestNotificationService_LessonCanceled(t *testing.T) {
	env := newTestEnv(t, lessonNow)
	ctx := context.Background()
	mentor := env.addUser("Bob Stone", true, "")
	ann := env.addUser("Ann Lee", false, "")
	bo := env.addUser("Bo Wu", false, "")

	end := seriesStart.Add(4 * 7 * 24 * time.Hour)
	lesson := &model.Lesson{
		ID:                    uuid.New(),
		MentorID:              mentor.ID,
		DateTime:              seriesStart,
		IsRecurrent:           true,
		EndRecurrenceDateTime: &end,
		ReasonCanceled:        "sick",
		Mentor:                mentor,
		Students:              []*model.User{ann, bo},
	}

	env.notifications.LessonCanceled(ctx, &model.CancelResult{Lesson: lesson, CanceledBy: mentor, ByMentor: true, CancelAll: true, LessonsCanceled: 4})
	sent := env.mailer.take()
	assert.Equal(t, []string{"Lesson recurrence canceled", "Lesson recurrence canceled"}, subjects(sent))
	assert.Contains(t, sent[0].Email.Body, `with the following message: "sick"`)

	env.notifications.LessonCanceled(ctx, &model.CancelResult{Lesson: lesson, CanceledBy: bo, LessonsCanceled: 0})
	sent = env.mailer.take()
	require.Len(t, sent, 1)
	assert.Equal(t, mentor.ID, sent[0].Recipient.ID)
	assert.Equal(t, "Next lesson status", sent[0].Email.Subject)
	assert.Contains(t, sent[0].Email.Body, "Bo Wu won't participate in the next lesson")

	lesson.Students = []*model.User{ann}
	env.notifications.LessonCanceled(ctx, &model.CancelResult{Lesson: lesson, CanceledBy: ann, CancelAll: true, LessonsCanceled: 3})
	sent = env.mailer.take()
	require.Len(t, sent, 1)
	assert.Equal(t, "Next lessons canceled", sent[0].Email.Subject)
	assert.Contains(t, sent[0].Email.Body, "The next 3 lessons")
}

func TestNotificationService_RequestLifecycleEmails(t *testing.T) {
	env := newTestEnv(t, requestNow)
	ctx := context.Background()
	mentor := env.addUser("Bob Stone", true, "")
	student := env.addUser("Ann Lee", false, "")
	subfield := env.addSubfield("Algebra")
	mentorID := mentor.ID

	req := &model.LessonRequest{
		ID:           uuid.New(),
		StudentID:    student.ID,
		MentorID:     &mentorID,
		SentDateTime: requestNow,
		Mentor:       mentor,
		Student:      student,
		Subfield:     subfield,
	}

	env.notifications.LessonRequestSent(ctx, req)
	sent := env.mailer.take()
	require.Len(t, sent, 1)
	assert.Equal(t, "New lesson request", sent[0].Email.Subject)
	assert.Contains(t, sent[0].Email.Body, "requesting a algebra lesson")
	assert.Contains(t, sent[0].Email.Body, "<b>Mar 11, 2026</b>")

	env.notifications.LessonRequestRejected(ctx, req, "")
	sent = env.mailer.take()
	require.Len(t, sent, 1)
	assert.Equal(t, student.ID, sent[0].Recipient.ID)

	lesson := &model.Lesson{ID: uuid.New(), MentorID: mentor.ID, DateTime: seriesStart, Mentor: mentor, Subfield: subfield}
	env.notifications.LessonRequestAccepted(ctx, lesson, student)
	assert.Equal(t, []string{"Lesson request accepted", "Lesson scheduled"}, subjects(env.mailer.take()))
}
