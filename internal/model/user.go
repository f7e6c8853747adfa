package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Organization struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type Field struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type User struct {
	ID           uuid.UUID     `json:"id"`
	Name         string        `json:"name"`
	Email        string        `json:"email"`
	PhoneNumber  string        `json:"phoneNumber,omitempty"`
	IsMentor     bool          `json:"isMentor"`
	Organization *Organization `json:"organization,omitempty"`
	Field        *Field        `json:"field,omitempty"`
	CreatedAt    time.Time     `json:"-"`
}

// FirstName возвращает часть имени до первого пробела
func (u *User) FirstName() string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.Name)
	if i := strings.Index(name, " "); i >= 0 {
		return name[:i]
	}
	return name
}

// OrganizationName возвращает название организации или пустую строку
func (u *User) OrganizationName() string {
	if u == nil || u.Organization == nil {
		return ""
	}
	return u.Organization.Name
}
