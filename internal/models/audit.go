package models

import (
	"time"
)

// Auditable entities record who created and who last modified them
type Auditable interface {
	StampCreated(by string, at time.Time)
	StampModified(by string, at time.Time)
}

type Audit struct {
	CreatedAt  time.Time
	CreatedBy  string
	ModifiedAt *time.Time
	ModifiedBy *string
}

func (a *Audit) StampCreated(by string, at time.Time) {
	a.CreatedAt = at.UTC()
	a.CreatedBy = by
}

func (a *Audit) StampModified(by string, at time.Time) {
	at = at.UTC()
	a.ModifiedAt = &at
	a.ModifiedBy = &by
}

var _ Auditable = (*User)(nil)
