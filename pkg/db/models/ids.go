package models

import "github.com/google/uuid"

// assignID populates a primary key before insert so rows carry an id on every
// dialect, including the in-memory SQLite used by repository tests.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
