// Package recurrence вычисляет еженедельные серии занятий.
//
// Серия с концом через ровно N недель содержит N занятий, сам конец не входит,
// неполные недели отбрасываются. Повторяющаяся серия без конца бессрочна.
package recurrence

import "time"

// Period шаг между занятиями серии
const Period = 7 * 24 * time.Hour

// IsRecurrent проверяет, что конец задан и строго позже начала
func IsRecurrent(start time.Time, end *time.Time) bool {
	return end != nil && end.After(start)
}

// OccurrenceCount число целых недель между началом и концом
func OccurrenceCount(start, end time.Time) int {
	return int(end.Sub(start) / Period)
}

// At возвращает k-е занятие серии
func At(start time.Time, k int) time.Time {
	return start.Add(time.Duration(k) * Period)
}

// Series описывает занятие и его повторение
type Series struct {
	Start time.Time
	// nil у бессрочной серии
	End       *time.Time
	Recurrent bool
}

// New собирает серию из полей занятия
func New(start time.Time, isRecurrent bool, end *time.Time) Series {
	if !isRecurrent {
		end = nil
	}
	return Series{Start: start, End: end, Recurrent: isRecurrent}
}

// OpenEnded серия повторяется без конца
func (s Series) OpenEnded() bool {
	return s.Recurrent && s.End == nil
}

// Repeats серия может содержать больше одного занятия
func (s Series) Repeats() bool {
	return s.OpenEnded() || (s.Recurrent && IsRecurrent(s.Start, s.End))
}

// Occurrences число занятий в серии; ok=false у бессрочной.
// Разовое занятие и серия короче недели содержат одно занятие.
func (s Series) Occurrences() (n int, ok bool) {
	if s.OpenEnded() {
		return 0, false
	}
	if !s.Repeats() {
		return 1, true
	}
	if n := OccurrenceCount(s.Start, *s.End); n > 1 {
		return n, true
	}
	return 1, true
}

// hasIndex k-е занятие входит в серию
func (s Series) hasIndex(k int) bool {
	if k < 0 {
		return false
	}
	n, bounded := s.Occurrences()
	return !bounded || k < n
}

// Next первое занятие не раньше from
func (s Series) Next(from time.Time) (time.Time, bool) {
	if !from.After(s.Start) {
		return s.Start, true
	}
	k := int(from.Sub(s.Start) / Period)
	if At(s.Start, k).Before(from) {
		k++
	}
	if !s.hasIndex(k) {
		return time.Time{}, false
	}
	return At(s.Start, k), true
}

// Previous последнее занятие строго до before
func (s Series) Previous(before time.Time) (time.Time, bool) {
	if !before.After(s.Start) {
		return time.Time{}, false
	}
	k := int(before.Sub(s.Start) / Period)
	if !At(s.Start, k).Before(before) {
		k--
	}
	if n, bounded := s.Occurrences(); bounded && k > n-1 {
		k = n - 1
	}
	return At(s.Start, k), true
}

// Last последнее занятие серии; ok=false у бессрочной
func (s Series) Last() (time.Time, bool) {
	n, bounded := s.Occurrences()
	if !bounded {
		return time.Time{}, false
	}
	return At(s.Start, n-1), true
}

// Remaining число занятий начиная с from; ok=false у бессрочной
func (s Series) Remaining(from time.Time) (int, bool) {
	n, bounded := s.Occurrences()
	if !bounded {
		return 0, false
	}
	next, ok := s.Next(from)
	if !ok {
		return 0, true
	}
	return n - int(next.Sub(s.Start)/Period), true
}

// Between занятия в интервале [from, to)
func (s Series) Between(from, to time.Time) []time.Time {
	var out []time.Time
	next, ok := s.Next(from)
	if !ok {
		return nil
	}
	for k := int(next.Sub(s.Start) / Period); s.hasIndex(k); k++ {
		t := At(s.Start, k)
		if !t.Before(to) {
			break
		}
		out = append(out, t)
	}
	return out
}
