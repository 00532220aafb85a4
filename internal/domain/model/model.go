// Package model holds the domain types shared across the engine.
package model

import "time"

// Kind tags a completion item as a badge or a game.
type Kind string

const (
	KindBadge Kind = "badge"
	KindGame  Kind = "game"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindBadge || k == KindGame
}

// Difficulty is the tier an item is weighted by.
type Difficulty string

const (
	DifficultyIntroductory Difficulty = "introductory"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// Known reports whether d belongs to the scoring vocabulary.
func (d Difficulty) Known() bool {
	switch d {
	case DifficultyIntroductory, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

// CompletionItem is one badge or game credited to a participant.
type CompletionItem struct {
	Title      string     `json:"title"`
	Category   string     `json:"category"`
	Difficulty Difficulty `json:"difficulty"`
	Kind       Kind       `json:"kind"`
}

// Profile is what an extractor produces from one profile page snapshot.
type Profile struct {
	Name  string           `json:"name"`
	Items []CompletionItem `json:"items"`
}

// Participant is one enrolled cohort member.
type Participant struct {
	ProfileID      string     `json:"profileId,omitempty"`
	ProfileURL     string     `json:"profileUrl,omitempty"`
	Name           string     `json:"name,omitempty"`
	Email          string     `json:"email,omitempty"`
	Batch          string     `json:"batch,omitempty"`
	EnrollmentDate *time.Time `json:"enrollmentDate,omitempty"`
}

// DisplayName falls back to "Unknown" for unnamed participants.
func (p Participant) DisplayName() string {
	if p.Name == "" {
		return "Unknown"
	}
	return p.Name
}

// DisplayBatch falls back to "Unknown" when no batch is recorded.
func (p Participant) DisplayBatch() string {
	if p.Batch == "" {
		return "Unknown"
	}
	return p.Batch
}
