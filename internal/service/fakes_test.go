package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/mentor_scheduler/internal/events"
	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// fakeTx serializes transactions, which is what the row locks give us in Postgres.
type fakeTx struct {
	mu sync.Mutex
}

type inTxKey struct{}

func (f *fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(inTxKey{}) != nil {
		return fn(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(context.WithValue(ctx, inTxKey{}, true))
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*model.User
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.User, error) {
	var out []*model.User
	for _, id := range ids {
		u, _ := f.GetByID(ctx, id)
		if u != nil {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUsers) LockByID(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.users[id]
	return ok, nil
}

type fakeTimeZones struct {
	zones map[uuid.UUID]*model.TimeZone
}

func (f *fakeTimeZones) GetByUserID(_ context.Context, userID uuid.UUID) (*model.TimeZone, error) {
	return f.zones[userID], nil
}

func (f *fakeTimeZones) Upsert(_ context.Context, userID uuid.UUID, tz model.TimeZone) error {
	f.zones[userID] = &tz
	return nil
}

type fakeSubfields struct {
	mu            sync.Mutex
	subfields     map[uuid.UUID]*model.Subfield
	userSubfields map[uuid.UUID]uuid.UUID
}

func (f *fakeSubfields) GetByID(_ context.Context, id uuid.UUID) (*model.Subfield, error) {
	return f.subfields[id], nil
}

func (f *fakeSubfields) AddUserSubfieldIfNone(_ context.Context, userID, subfieldID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.userSubfields[userID]; ok {
		return false, nil
	}
	f.userSubfields[userID] = subfieldID
	return true, nil
}

type fakeRequests struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*model.LessonRequest
	writes   int
}

func (f *fakeRequests) copyOf(id uuid.UUID) *model.LessonRequest {
	r, ok := f.requests[id]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

func (f *fakeRequests) Create(_ context.Context, req *model.LessonRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	req.ID = uuid.New()
	cp := *req
	f.requests[req.ID] = &cp
	return nil
}

func (f *fakeRequests) GetByID(_ context.Context, id uuid.UUID) (*model.LessonRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.copyOf(id), nil
}

func (f *fakeRequests) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.LessonRequest, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeRequests) GetLatestByUser(_ context.Context, userID uuid.UUID, asMentor bool) (*model.LessonRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *model.LessonRequest
	for _, r := range f.requests {
		match := r.StudentID == userID
		if asMentor {
			match = r.MentorID != nil && *r.MentorID == userID
		}
		if match && (latest == nil || r.SentDateTime.After(latest.SentDateTime)) {
			latest = r
		}
	}
	if latest == nil {
		return nil, nil
	}
	return f.copyOf(latest.ID), nil
}

func (f *fakeRequests) GetOpenByStudent(_ context.Context, studentID uuid.UUID) ([]*model.LessonRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.LessonRequest
	for id, r := range f.requests {
		if r.StudentID == studentID && !r.IsTerminal() {
			out = append(out, f.copyOf(id))
		}
	}
	return out, nil
}

func (f *fakeRequests) GetOpenMatched(_ context.Context) ([]*model.LessonRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.LessonRequest
	for id, r := range f.requests {
		if r.IsMatched() && !r.IsTerminal() {
			out = append(out, f.copyOf(id))
		}
	}
	return out, nil
}

func (f *fakeRequests) update(id uuid.UUID, fn func(r *model.LessonRequest)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return errors.New("lesson request not found")
	}
	f.writes++
	fn(r)
	return nil
}

func (f *fakeRequests) AssignMentor(_ context.Context, id, mentorID, subfieldID uuid.UUID, lessonDateTime, sentDateTime time.Time) error {
	return f.update(id, func(r *model.LessonRequest) {
		r.MentorID = &mentorID
		r.SubfieldID = &subfieldID
		r.LessonDateTime = &lessonDateTime
		r.SentDateTime = sentDateTime
	})
}

func (f *fakeRequests) SetRejected(_ context.Context, id uuid.UUID) error {
	return f.update(id, func(r *model.LessonRequest) { r.IsRejected = true })
}

func (f *fakeRequests) SetCanceled(_ context.Context, id uuid.UUID) error {
	return f.update(id, func(r *model.LessonRequest) { r.IsCanceled = true })
}

func (f *fakeRequests) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.requests[id]; !ok {
		return errors.New("lesson request not found")
	}
	f.writes++
	delete(f.requests, id)
	return nil
}

type fakeLessons struct {
	mu       sync.Mutex
	lessons  map[uuid.UUID]*model.Lesson
	roster   map[uuid.UUID][]uuid.UUID
	canceled []*model.CanceledOccurrence

	mentorQueries   int
	canceledQueries int
}

func (f *fakeLessons) copyOf(id uuid.UUID) *model.Lesson {
	l, ok := f.lessons[id]
	if !ok {
		return nil
	}
	cp := *l
	return &cp
}

func (f *fakeLessons) sorted(keep func(l *model.Lesson) bool) []*model.Lesson {
	var out []*model.Lesson
	for id, l := range f.lessons {
		if keep(l) {
			out = append(out, f.copyOf(id))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateTime.Before(out[j].DateTime) })
	return out
}

func (f *fakeLessons) Create(_ context.Context, lesson *model.Lesson) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	lesson.ID = uuid.New()
	cp := *lesson
	f.lessons[lesson.ID] = &cp
	return nil
}

func (f *fakeLessons) GetByID(_ context.Context, id uuid.UUID) (*model.Lesson, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.copyOf(id), nil
}

func (f *fakeLessons) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Lesson, error) {
	return f.GetByID(ctx, id)
}

// mayRunSince mirrors the SQL filter on date_time and end_recurrence_date_time.
func mayRunSince(l *model.Lesson, since time.Time) bool {
	if !l.DateTime.Before(since) {
		return true
	}
	return l.IsRecurrent && (l.EndRecurrenceDateTime == nil || l.EndRecurrenceDateTime.After(since))
}

func (f *fakeLessons) GetUpcomingByMentor(_ context.Context, mentorID uuid.UUID, from time.Time) ([]*model.Lesson, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mentorQueries++
	return f.sorted(func(l *model.Lesson) bool {
		return l.MentorID == mentorID && !l.IsCanceled && mayRunSince(l, from)
	}), nil
}

func (f *fakeLessons) GetStartedByMentor(_ context.Context, mentorID uuid.UUID, before time.Time) ([]*model.Lesson, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mentorQueries++
	return f.sorted(func(l *model.Lesson) bool {
		return l.MentorID == mentorID && !l.IsCanceled && l.DateTime.Before(before)
	}), nil
}

func (f *fakeLessons) GetActiveSince(_ context.Context, since time.Time) ([]*model.Lesson, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sorted(func(l *model.Lesson) bool { return !l.IsCanceled && mayRunSince(l, since) }), nil
}

func (f *fakeLessons) update(id uuid.UUID, fn func(l *model.Lesson)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lessons[id]
	if !ok {
		return errors.New("lesson not found")
	}
	fn(l)
	return nil
}

func (f *fakeLessons) SetCanceled(_ context.Context, id uuid.UUID, reason string) error {
	return f.update(id, func(l *model.Lesson) {
		l.IsCanceled = true
		l.ReasonCanceled = reason
	})
}

func (f *fakeLessons) UpdateRecurrence(_ context.Context, id uuid.UUID, isRecurrent bool, end *time.Time) error {
	return f.update(id, func(l *model.Lesson) {
		l.IsRecurrent = isRecurrent
		l.EndRecurrenceDateTime = end
	})
}

func (f *fakeLessons) SetMentorPresence(_ context.Context, id uuid.UUID, isPresent bool, at time.Time) error {
	return f.update(id, func(l *model.Lesson) {
		l.IsMentorPresent = &isPresent
		l.MentorPresenceDateTime = &at
	})
}

func (f *fakeLessons) UpdateMeetingURL(_ context.Context, id uuid.UUID, meetingURL string) error {
	return f.update(id, func(l *model.Lesson) { l.MeetingURL = meetingURL })
}

func (f *fakeLessons) AddStudent(_ context.Context, lessonID, studentID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.roster[lessonID] {
		if id == studentID {
			return nil
		}
	}
	f.roster[lessonID] = append(f.roster[lessonID], studentID)
	return nil
}

func (f *fakeLessons) RemoveStudent(_ context.Context, lessonID, studentID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.roster[lessonID]
	for i, id := range ids {
		if id == studentID {
			f.roster[lessonID] = append(ids[:i:i], ids[i+1:]...)
			return nil
		}
	}
	return errors.New("student is not in the lesson")
}

func (f *fakeLessons) GetStudentIDs(_ context.Context, lessonID uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.roster[lessonID]...), nil
}

func (f *fakeLessons) AddCanceledOccurrence(_ context.Context, occurrence *model.CanceledOccurrence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *occurrence
	f.canceled = append(f.canceled, &cp)
	return nil
}

func (f *fakeLessons) GetCanceledOccurrences(_ context.Context, lessonID uuid.UUID) ([]*model.CanceledOccurrence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.CanceledOccurrence
	for _, c := range f.canceled {
		if c.LessonID == lessonID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeLessons) GetCanceledOccurrencesByLessons(_ context.Context, lessonIDs []uuid.UUID) (map[uuid.UUID][]*model.CanceledOccurrence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceledQueries++
	out := make(map[uuid.UUID][]*model.CanceledOccurrence, len(lessonIDs))
	for _, id := range lessonIDs {
		for _, c := range f.canceled {
			if c.LessonID == id {
				cp := *c
				out[id] = append(out[id], &cp)
			}
		}
	}
	return out, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	sent     []*model.LessonRequest
	accepted []*model.Lesson
	rejected []string
	canceled []*model.CancelResult
	updated  []*model.Lesson
	added    []*model.User
}

func (n *recordingNotifier) LessonRequestSent(_ context.Context, req *model.LessonRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, req)
}

func (n *recordingNotifier) LessonRequestAccepted(_ context.Context, lesson *model.Lesson, _ *model.User) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.accepted = append(n.accepted, lesson)
}

func (n *recordingNotifier) LessonRequestRejected(_ context.Context, _ *model.LessonRequest, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rejected = append(n.rejected, reason)
}

func (n *recordingNotifier) LessonCanceled(_ context.Context, result *model.CancelResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.canceled = append(n.canceled, result)
}

func (n *recordingNotifier) LessonRecurrenceUpdated(_ context.Context, lesson *model.Lesson) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updated = append(n.updated, lesson)
}

func (n *recordingNotifier) StudentAdded(_ context.Context, _ *model.Lesson, student *model.User) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.added = append(n.added, student)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []model.NotificationEvent
}

func (d *recordingDispatcher) Dispatch(_ context.Context, event model.NotificationEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

func (d *recordingDispatcher) take() []model.NotificationEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.events
	d.events = nil
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	clock     *testClock
	users     *fakeUsers
	zones     *fakeTimeZones
	subfields *fakeSubfields
	requests  *fakeRequests
	lessons   *fakeLessons
	notifier  *recordingNotifier
	mailer    *recordingDispatcher

	timezones     *TimeZoneService
	lessonSvc     *LessonService
	requestSvc    *LessonRequestService
	notifications *NotificationService
}

const testInterval = time.Minute

func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()

	env := &testEnv{
		clock:     &testClock{now: now},
		users:     &fakeUsers{users: map[uuid.UUID]*model.User{}},
		zones:     &fakeTimeZones{zones: map[uuid.UUID]*model.TimeZone{}},
		subfields: &fakeSubfields{subfields: map[uuid.UUID]*model.Subfield{}, userSubfields: map[uuid.UUID]uuid.UUID{}},
		requests:  &fakeRequests{requests: map[uuid.UUID]*model.LessonRequest{}},
		lessons:   &fakeLessons{lessons: map[uuid.UUID]*model.Lesson{}, roster: map[uuid.UUID][]uuid.UUID{}},
		notifier:  &recordingNotifier{},
		mailer:    &recordingDispatcher{},
	}

	logger := zap.NewNop()
	tx := &fakeTx{}
	publisher := events.NopPublisher{}

	env.timezones = NewTimeZoneService(env.zones, model.UTC, logger)
	env.lessonSvc = NewLessonService(tx, env.lessons, env.users, env.subfields, env.timezones, env.notifier, publisher, logger)
	env.lessonSvc.now = env.clock.Now
	env.requestSvc = NewLessonRequestService(tx, env.requests, env.users, env.subfields, env.lessonSvc, env.timezones, env.notifier, publisher, logger)
	env.requestSvc.now = env.clock.Now
	env.notifications = NewNotificationService(env.requests, env.lessons, env.users, env.timezones, env.mailer, testInterval, logger)
	env.notifications.now = env.clock.Now

	return env
}

func (e *testEnv) addUser(name string, isMentor bool, zone string) *model.User {
	u := &model.User{
		ID:       uuid.New(),
		Name:     name,
		Email:    uuid.NewString()[:8] + "@example.com",
		IsMentor: isMentor,
		Field:    &model.Field{ID: uuid.New(), Name: "Programming"},
	}
	e.users.users[u.ID] = u
	if zone != "" {
		e.zones.zones[u.ID] = &model.TimeZone{Name: zone}
	}
	return u
}

func (e *testEnv) addSubfield(name string) *model.Subfield {
	s := &model.Subfield{ID: uuid.New(), Name: name}
	e.subfields.subfields[s.ID] = s
	return s
}

// addLesson stores a lesson directly, bypassing the service.
func (e *testEnv) addLesson(mentor *model.User, start time.Time, weeks int, students ...*model.User) *model.Lesson {
	lesson := &model.Lesson{
		ID:         uuid.New(),
		MentorID:   mentor.ID,
		SubfieldID: e.addSubfield("Go").ID,
		DateTime:   start,
		MeetingURL: "https://meet.example.com/x",
	}
	if weeks > 0 {
		end := start.Add(time.Duration(weeks) * 7 * 24 * time.Hour)
		lesson.IsRecurrent = true
		lesson.EndRecurrenceDateTime = &end
	}
	e.lessons.lessons[lesson.ID] = lesson
	for _, s := range students {
		e.lessons.roster[lesson.ID] = append(e.lessons.roster[lesson.ID], s.ID)
	}
	return lesson
}

// addOpenEndedLesson stores a weekly lesson without an end date.
func (e *testEnv) addOpenEndedLesson(mentor *model.User, start time.Time, students ...*model.User) *model.Lesson {
	lesson := e.addLesson(mentor, start, 0, students...)
	lesson.IsRecurrent = true
	return lesson
}

func subjects(evs []model.NotificationEvent) []string {
	out := make([]string, 0, len(evs))
	for _, e := range evs {
		out = append(out, e.Email.Subject)
	}
	sort.Strings(out)
	return out
}
