package service

import (
	"time"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/google/uuid"
)

// cancellations indexes the canceled occurrences of one lesson.
type cancellations struct {
	all       map[int64]bool
	byStudent map[uuid.UUID]map[int64]bool
}

func newCancellations(rows []*model.CanceledOccurrence) cancellations {
	c := cancellations{
		all:       make(map[int64]bool),
		byStudent: make(map[uuid.UUID]map[int64]bool),
	}
	for _, row := range rows {
		key := row.DateTime.UnixNano()
		if row.StudentID == nil {
			c.all[key] = true
			continue
		}
		if c.byStudent[*row.StudentID] == nil {
			c.byStudent[*row.StudentID] = make(map[int64]bool)
		}
		c.byStudent[*row.StudentID][key] = true
	}
	return c
}

func (c cancellations) canceled(t time.Time) bool {
	return c.all[t.UnixNano()]
}

func (c cancellations) skips(studentID uuid.UUID, t time.Time) bool {
	return c.canceled(t) || c.byStudent[studentID][t.UnixNano()]
}

// upcoming counts the occurrences at or after from that were not canceled for
// everybody; ok is false for an open-ended series.
func upcoming(lesson *model.Lesson, c cancellations, from time.Time) (int, bool) {
	series := lesson.Series()
	last, bounded := series.Last()
	if !bounded {
		return 0, false
	}

	count := 0
	for _, t := range series.Between(from, last.Add(time.Nanosecond)) {
		if !c.canceled(t) {
			count++
		}
	}
	return count, true
}

func nextActive(lesson *model.Lesson, c cancellations, from time.Time) (time.Time, bool) {
	series := lesson.Series()
	for t, ok := series.Next(from); ok; {
		if !c.canceled(t) {
			return t, true
		}
		t, ok = series.Next(t.Add(time.Nanosecond))
	}
	return time.Time{}, false
}

func previousActive(lesson *model.Lesson, c cancellations, before time.Time) (time.Time, bool) {
	series := lesson.Series()
	for t, ok := series.Previous(before); ok; {
		if !c.canceled(t) {
			return t, true
		}
		t, ok = series.Previous(t)
	}
	return time.Time{}, false
}
