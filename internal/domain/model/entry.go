package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/okian/boostcalc/internal/domain/identity"
)

// Entry errors.
var (
	// ErrMalformedEntry is returned when a registry entry is neither a string, an object nor null.
	ErrMalformedEntry = errors.New("malformed registry entry")

	// ErrInvalidProfileID marks a structured record whose profileId is outside [A-Za-z0-9_-].
	ErrInvalidProfileID = errors.New("invalid profile id")

	// ErrProfileConflict marks a structured record whose profileId differs from the id in its profileUrl.
	ErrProfileConflict = errors.New("profile id does not match profile url")
)

// Entry is one persisted registry record: either a bare legacy profile URL
// or a structured participant. Both resolve through Resolve. A JSON null
// decodes to an empty entry that never resolves.
type Entry struct {
	legacy      string
	participant *Participant
	null        bool
}

// LegacyEntry wraps a bare profile URL.
func LegacyEntry(url string) Entry {
	return Entry{legacy: url}
}

// StructuredEntry wraps a participant record.
func StructuredEntry(p Participant) Entry {
	return Entry{participant: &p}
}

// IsLegacy reports whether the entry is a bare URL.
func (e Entry) IsLegacy() bool {
	return e.participant == nil && !e.null
}

// Raw returns the legacy string or the structured participant as stored.
func (e Entry) Raw() any {
	if e.null {
		return nil
	}
	if e.IsLegacy() {
		return e.legacy
	}
	return *e.participant
}

// IsNull reports whether the entry was decoded from a JSON null.
func (e Entry) IsNull() bool {
	return e.null
}

// Resolve returns the participant the entry describes with profileId and
// profileUrl derived and canonicalized. The id found in profileUrl wins over
// a stored profileId, and a profileId outside the id alphabet is ignored.
// ok is false when the entry carries neither a usable profile reference nor an email.
func (e Entry) Resolve() (Participant, bool) {
	if e.null {
		return Participant{}, false
	}
	if e.IsLegacy() {
		id, ok := identity.ExtractProfileID(e.legacy)
		if !ok {
			return Participant{}, false
		}
		return Participant{ProfileID: id, ProfileURL: identity.ProfileBaseURL + id}, true
	}

	p := *e.participant
	p.Email = strings.TrimSpace(p.Email)
	p.ProfileID = strings.TrimSpace(p.ProfileID)
	if !identity.IsProfileID(p.ProfileID) {
		p.ProfileID = ""
	}
	if id, ok := identity.ExtractProfileID(p.ProfileURL); ok {
		p.ProfileID = id
	}
	p.ProfileURL = ""
	if p.ProfileID != "" {
		p.ProfileURL = identity.ProfileBaseURL + p.ProfileID
	}
	if p.ProfileID == "" && p.Email == "" {
		return Participant{}, false
	}
	return p, true
}

// Check reports data errors in a structured record that Resolve papers over:
// a profileId outside the id alphabet, or one that disagrees with profileUrl.
func (e Entry) Check() error {
	if e.null || e.IsLegacy() {
		return nil
	}
	id := strings.TrimSpace(e.participant.ProfileID)
	if id == "" {
		return nil
	}
	if !identity.IsProfileID(id) {
		return ErrInvalidProfileID
	}
	if urlID, ok := identity.ExtractProfileID(e.participant.ProfileURL); ok && urlID != id {
		return ErrProfileConflict
	}
	return nil
}

// MarshalJSON writes the entry back in the shape it was read in.
func (e Entry) MarshalJSON() ([]byte, error) {
	if e.null {
		return []byte("null"), nil
	}
	if e.IsLegacy() {
		return json.Marshal(e.legacy)
	}
	return json.Marshal(e.participant)
}

// UnmarshalJSON accepts a JSON string (legacy), object (structured) or null.
func (e *Entry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ErrMalformedEntry
	}
	if bytes.Equal(data, []byte("null")) {
		*e = Entry{null: true}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = LegacyEntry(s)
		return nil
	case '{':
		var raw struct {
			ProfileID      string `json:"profileId"`
			ProfileURL     string `json:"profileUrl"`
			Name           string `json:"name"`
			Email          string `json:"email"`
			Batch          string `json:"batch"`
			EnrollmentDate string `json:"enrollmentDate"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*e = StructuredEntry(Participant{
			ProfileID:      raw.ProfileID,
			ProfileURL:     raw.ProfileURL,
			Name:           raw.Name,
			Email:          raw.Email,
			Batch:          raw.Batch,
			EnrollmentDate: parseDate(raw.EnrollmentDate),
		})
		return nil
	default:
		return ErrMalformedEntry
	}
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"}

// parseDate is lenient: unparseable dates are dropped rather than failing the document.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
