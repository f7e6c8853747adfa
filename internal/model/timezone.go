package model

import (
	"fmt"
	"time"
)

const (
	DateTimeFormat   = "2006-01-02 15:04:05-07:00"
	WallClockFormat  = "2006-01-02 15:04:05"
	LessonDateFormat = "Jan 2, 2006"
	LessonTimeFormat = "3:04 PM"
)

// TimeZone is the zone a user has on file. It is resolved again every time it
// is needed because users may change it at any moment.
type TimeZone struct {
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
}

// UTC is the zone used when a user has none on file and the caller opts into a default.
var UTC = TimeZone{Name: "UTC", Abbreviation: "UTC"}

// Location загружает *time.Location по IANA имени
func (tz TimeZone) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(tz.Name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", tz.Name, err)
	}
	return loc, nil
}

// In переводит момент времени в зону пользователя
func (tz TimeZone) In(t time.Time) (time.Time, error) {
	loc, err := tz.Location()
	if err != nil {
		return time.Time{}, err
	}
	return t.In(loc), nil
}

// FromWallClock interprets the calendar fields of t as a wall clock in this
// zone, ignoring whatever location t carries.
func (tz TimeZone) FromWallClock(t time.Time) (time.Time, error) {
	loc, err := tz.Location()
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc), nil
}

// Format renders t in the zone with its numeric offset.
func (tz TimeZone) Format(t time.Time) (string, error) {
	local, err := tz.In(t)
	if err != nil {
		return "", err
	}
	return local.Format(DateTimeFormat), nil
}

// FormatLessonDate форматирует дату занятия для писем
func (tz TimeZone) FormatLessonDate(t time.Time) (string, error) {
	local, err := tz.In(t)
	if err != nil {
		return "", err
	}
	return local.Format(LessonDateFormat), nil
}

// FormatLessonTime форматирует время занятия для писем, например "2:00 PM EST"
func (tz TimeZone) FormatLessonTime(t time.Time) (string, error) {
	local, err := tz.In(t)
	if err != nil {
		return "", err
	}
	abbreviation := tz.Abbreviation
	if abbreviation == "" {
		abbreviation = local.Format("MST")
	}
	return local.Format(LessonTimeFormat) + " " + abbreviation, nil
}

// StartOfDay возвращает полночь дня, в который попадает t, в зоне пользователя
func (tz TimeZone) StartOfDay(t time.Time) (time.Time, error) {
	local, err := tz.In(t)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location()), nil
}
