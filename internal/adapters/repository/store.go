// Package repository persists the enrollment registry document.
package repository

import (
	"context"

	"github.com/okian/boostcalc/internal/domain/model"
)

// Document is the persisted registry: a timestamp plus an ordered list of
// entries, each either a legacy profile URL string or a participant object.
type Document struct {
	LastUpdated       string        `json:"lastUpdated"`
	TotalParticipants int           `json:"totalParticipants,omitempty"`
	Batch             string        `json:"batch,omitempty"`
	Program           string        `json:"program,omitempty"`
	Participants      []model.Entry `json:"participants"`
}

// Store reads and replaces the registry document.
type Store interface {
	// Load returns the stored document. Returns ErrNotFound when nothing is stored yet.
	Load(ctx context.Context) (Document, error)

	// Save replaces the stored document as a whole.
	Save(ctx context.Context, doc Document) error
}
