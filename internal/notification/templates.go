// Package notification composes the platform emails and delivers them.
package notification

import (
	"fmt"
	"strings"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
)

const signature = "Regards,<br>MWB Support Team"

// WrapBody оборачивает текст письма приветствием и подписью
func WrapBody(firstName, body string) string {
	return fmt.Sprintf("Hi %s,<br><br>%s<br><br>%s", firstName, body, signature)
}

// JoinNames joins names as "A", "A and B" or "A, B, and C".
func JoinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	default:
		return strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1]
	}
}

func firstNames(users []*model.User) []string {
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.FirstName())
	}
	return names
}

func isRecurrent(lesson *model.Lesson) bool {
	return lesson.Series().Repeats()
}

func lowerName(name string) string {
	return strings.ToLower(name)
}

func fieldName(u *model.User) string {
	if u == nil || u.Field == nil {
		return ""
	}
	return lowerName(u.Field.Name)
}

func subfieldName(s *model.Subfield) string {
	if s == nil {
		return ""
	}
	return lowerName(s.Name)
}

func meetingLink(url string) string {
	return fmt.Sprintf(`The meeting link is: <a href="%s" target="_blank">%s</a><br><br>`, url, url)
}

// contactDetails renders the nested contact list used in mentor emails.
func contactDetails(students []*model.User) string {
	var b strings.Builder
	b.WriteString("<ul>")
	for _, s := range students {
		fmt.Fprintf(&b, "<li><b>%s</b></li>", s.Name)
		b.WriteString("<ul>")
		fmt.Fprintf(&b, "<li>Email: %s</li>", s.Email)
		if s.PhoneNumber != "" {
			fmt.Fprintf(&b, "<li>WhatsApp number: %s</li>", s.PhoneNumber)
		}
		b.WriteString("</ul><br>")
	}
	b.WriteString("</ul>")
	return b.String()
}

func reasonMessage(reason string) string {
	if reason == "" {
		return ""
	}
	return fmt.Sprintf(` with the following message: "%s"`, reason)
}

// LessonRequestCreated письмо ментору о новой заявке. deadline уже отформатирован в зоне ментора.
func LessonRequestCreated(mentor, student *model.User, subfield *model.Subfield, deadline string) model.Email {
	body := fmt.Sprintf(
		"%s from %s is requesting a %s lesson with you.<br><br>"+
			"You can find the details of the lesson request in the MWB Connect app and we will kindly ask you "+
			"to accept or reject the request until the end of the day on <b>%s</b> so that the student can "+
			"connect with another mentor if needed.",
		student.Name, student.OrganizationName(), subfieldName(subfield), deadline,
	)
	return model.Email{Subject: "New lesson request", Body: WrapBody(mentor.FirstName(), body)}
}

func LessonRequestReminder(mentor, student *model.User) model.Email {
	body := fmt.Sprintf(
		"Kindly remember to accept or reject %s's lesson request until the end of the day today so that "+
			"the student can connect with another mentor if needed.",
		student.FirstName(),
	)
	return model.Email{Subject: "Lesson request reminder", Body: WrapBody(mentor.FirstName(), body)}
}

func LessonRequestAccepted(mentor, student *model.User, lesson *model.Lesson) model.Email {
	recurring := ""
	if isRecurrent(lesson) {
		recurring = "recurring "
	}
	body := fmt.Sprintf(
		"%s has scheduled a %s%s lesson with you. Please see the details in the MWB Connect app.",
		mentor.Name, recurring, fieldName(student),
	)
	return model.Email{Subject: "Lesson request accepted", Body: WrapBody(student.FirstName(), body)}
}

func LessonRequestRejected(mentor, student *model.User, reason string) model.Email {
	body := fmt.Sprintf(
		"We're sorry but %s has rejected your lesson request%s. Please find a new mentor in the MWB Connect app.",
		mentor.Name, reasonMessage(reason),
	)
	return model.Email{Subject: "Lesson request rejected", Body: WrapBody(student.FirstName(), body)}
}

func LessonRequestExpired(mentor, student *model.User) model.Email {
	body := fmt.Sprintf(
		"We're sorry but your lesson request has expired due to %s's unavailability. "+
			"Please find a new mentor in the MWB Connect app.",
		mentor.FirstName(),
	)
	return model.Email{Subject: "Lesson request expired", Body: WrapBody(student.FirstName(), body)}
}

// LessonScheduled письмо ментору с контактами студента. date и clock в зоне ментора.
func LessonScheduled(mentor, student *model.User, lesson *model.Lesson, date, clock string) model.Email {
	recurring, onOrStartingFrom := "", "on"
	if isRecurrent(lesson) {
		recurring, onOrStartingFrom = "recurring ", "starting from"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,<br><br>", mentor.FirstName())
	fmt.Fprintf(&b, "Thank you for scheduling a %s%s lesson %s %s at %s.<br><br>",
		recurring, subfieldName(lesson.Subfield), onOrStartingFrom, date, clock)
	b.WriteString(meetingLink(lesson.MeetingURL))
	b.WriteString("The student's contact details are as follows:")
	b.WriteString(contactDetails([]*model.User{student}))
	b.WriteString(signature)

	return model.Email{Subject: "Lesson scheduled", Body: b.String()}
}

// StudentAdded returns the email for the added student and the one for the mentor.
func StudentAdded(mentor, student *model.User, lesson *model.Lesson) (toStudent, toMentor model.Email) {
	recurring, lessonRecurrence := "", "next lesson"
	if isRecurrent(lesson) {
		recurring, lessonRecurrence = "recurring ", "lesson recurrence"
	}

	body := fmt.Sprintf(
		"You have been added to a %s%s lesson with %s. Please see the details in the MWB Connect app.",
		recurring, fieldName(student), mentor.Name,
	)
	toStudent = model.Email{Subject: "Lesson scheduled", Body: WrapBody(student.FirstName(), body)}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,<br><br>", mentor.FirstName())
	fmt.Fprintf(&b, "%s from %s has been added to the %s.<br><br>", student.Name, student.OrganizationName(), lessonRecurrence)
	b.WriteString("The student's contact details are as follows:")
	b.WriteString(contactDetails([]*model.User{student}))
	b.WriteString(signature)
	toMentor = model.Email{Subject: "Student added to " + lessonRecurrence, Body: b.String()}

	return toStudent, toMentor
}

// LessonCanceledByMentor письмо каждому оставшемуся студенту
func LessonCanceledByMentor(student *model.User, lesson *model.Lesson, cancelAll bool) model.Email {
	message := reasonMessage(lesson.ReasonCanceled)
	if isRecurrent(lesson) && cancelAll {
		body := fmt.Sprintf(
			"We're sorry but the mentor has canceled the lesson recurrence%s. "+
				"Please feel free to use the MWB Connect app in order to find a new mentor.",
			message,
		)
		return model.Email{Subject: "Lesson recurrence canceled", Body: WrapBody(student.FirstName(), body)}
	}

	body := fmt.Sprintf(
		"We're sorry but the mentor has canceled the next lesson%s. If there aren't any other lessons "+
			"scheduled, please feel free to use the MWB Connect app in order to find a new mentor.",
		message,
	)
	return model.Email{Subject: "Next lesson canceled", Body: WrapBody(student.FirstName(), body)}
}

// LessonCanceledByStudent письмо ментору; lessonsCanceled == 0 значит, что занятие осталось для других студентов
func LessonCanceledByStudent(mentor, student *model.User, lesson *model.Lesson, cancelAll bool, lessonsCanceled int) model.Email {
	reason := lesson.ReasonCanceled

	switch {
	case lessonsCanceled == 0:
		lessonRecurrence := "next lesson"
		if isRecurrent(lesson) && cancelAll {
			lessonRecurrence = "lesson recurrence"
		}
		why := ""
		if reason != "" {
			why = fmt.Sprintf(` for the following reason: "%s"`, reason)
		}
		body := fmt.Sprintf("%s won't participate in the %s%s.", student.Name, lessonRecurrence, why)
		return model.Email{Subject: "Next lesson status", Body: WrapBody(mentor.FirstName(), body)}
	case cancelAll && lesson.Series().OpenEnded():
		body := fmt.Sprintf("The lesson recurrence has been canceled by the only participant%s.", reasonMessage(reason))
		return model.Email{Subject: "Lesson recurrence canceled", Body: WrapBody(mentor.FirstName(), body)}
	case lessonsCanceled == 1:
		body := fmt.Sprintf("The next lesson has been canceled by the only participant%s.", reasonMessage(reason))
		return model.Email{Subject: "Next lesson canceled", Body: WrapBody(mentor.FirstName(), body)}
	default:
		body := fmt.Sprintf("The next %d lessons have been canceled by the only participant%s.", lessonsCanceled, reasonMessage(reason))
		return model.Email{Subject: "Next lessons canceled", Body: WrapBody(mentor.FirstName(), body)}
	}
}

func LessonRecurrenceUpdated(student *model.User) model.Email {
	body := "The mentor has updated the lesson recurrence. Please see the new details in the MWB Connect app."
	return model.Email{Subject: "Lesson recurrence updated", Body: WrapBody(student.FirstName(), body)}
}

// LessonReminderMentor напоминание ментору за 30 минут. clock в зоне ментора.
func LessonReminderMentor(mentor *model.User, students []*model.User, lesson *model.Lesson, clock string) model.Email {
	studentOrStudents, isOrAre, himHerOrThem := "student", "is", "him/her"
	if len(students) > 1 {
		studentOrStudents, isOrAre, himHerOrThem = "students", "are", "them"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,<br><br>", mentor.FirstName())
	fmt.Fprintf(&b, "This is a gentle reminder to conduct the next lesson at %s.<br><br>", clock)
	b.WriteString(meetingLink(lesson.MeetingURL))
	fmt.Fprintf(&b, "If the %s %sn't able to join the session, you can message %s using the following "+
		"contact details (<b>WhatsApp</b> usually works best):", studentOrStudents, isOrAre, himHerOrThem)
	b.WriteString(contactDetails(students))
	b.WriteString(signature)

	return model.Email{Subject: "Next lesson in 30 mins", Body: b.String()}
}

// LessonReminderStudent напоминание студенту за 30 минут. clock в зоне студента.
func LessonReminderStudent(student, mentor *model.User, lesson *model.Lesson, clock string) model.Email {
	body := fmt.Sprintf("This is a gentle reminder to participate in the next lesson at %s.<br><br>", clock) +
		meetingLink(lesson.MeetingURL) +
		fmt.Sprintf("If you aren't able to join the session, please notify your mentor, %s, at: %s", mentor.Name, mentor.Email)
	return model.Email{Subject: "Next lesson in 30 mins", Body: WrapBody(student.FirstName(), body)}
}

// AddLessonsReminder first reminder to extend a finished series. deadline is in the mentor zone.
func AddLessonsReminder(mentor *model.User, students []*model.User, lesson *model.Lesson, deadline string) model.Email {
	lessonsText := "1 lesson"
	if n, bounded := lesson.Series().Occurrences(); bounded && n > 1 {
		lessonsText = fmt.Sprintf("%d lessons", n)
	}
	himHerThem := "them"
	if len(students) == 1 {
		himHerThem = "him/her"
	}
	body := fmt.Sprintf(
		"Thank you for having done %s with %s.<br><br>If you can add more lessons with %s, kindly remember "+
			"to do that in the MWB Connect app until the end of the day on <b>%s</b>.",
		lessonsText, JoinNames(firstNames(students)), himHerThem, deadline,
	)
	return model.Email{Subject: "Add more lessons", Body: WrapBody(mentor.FirstName(), body)}
}

func AddLessonsLastDayReminder(mentor *model.User, studentCount int) model.Email {
	studentsText := "students"
	if studentCount == 1 {
		studentsText = "student"
	}
	body := fmt.Sprintf(
		"Kindly remember to add more lessons (if possible) with your previous %s in the MWB Connect app "+
			"until the end of the day today.",
		studentsText,
	)
	return model.Email{Subject: "Add more lessons - last day reminder", Body: WrapBody(mentor.FirstName(), body)}
}

func NoMoreLessons(mentor, student *model.User) model.Email {
	body := fmt.Sprintf(
		"We're sorry but %s couldn't schedule more lessons. Please find a new mentor in the MWB Connect app.",
		mentor.FirstName(),
	)
	return model.Email{Subject: "No more lessons added", Body: WrapBody(student.FirstName(), body)}
}
