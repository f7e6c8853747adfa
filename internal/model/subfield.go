package model

import "github.com/google/uuid"

type Subfield struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}
