// Package types contains the request and response shapes shared by the
// service, the HTTP API and the admin CLI.
package types

import (
	"time"

	"github.com/okian/boostcalc/internal/domain/cohort"
	"github.com/okian/boostcalc/internal/domain/model"
)

// CalculateRequest identifies a participant by email or profile URL.
// Email takes precedence when both are set.
type CalculateRequest struct {
	Email      string `json:"email,omitempty"`
	ProfileURL string `json:"profileUrl,omitempty"`
}

// ParticipantInfo is the registry metadata echoed back with a score.
type ParticipantInfo struct {
	Name           string     `json:"name"`
	Email          *string    `json:"email"`
	Batch          string     `json:"batch"`
	EnrollmentDate *time.Time `json:"enrollmentDate"`
}

// NewParticipantInfo fills display defaults for missing fields.
func NewParticipantInfo(p model.Participant) ParticipantInfo {
	info := ParticipantInfo{
		Name:           p.DisplayName(),
		Batch:          p.DisplayBatch(),
		EnrollmentDate: p.EnrollmentDate,
	}
	if p.Email != "" {
		email := p.Email
		info.Email = &email
	}
	return info
}

// Metadata describes when and for which batch a score was computed.
type Metadata struct {
	CalculatedAt time.Time `json:"calculatedAt"`
	Batch        string    `json:"batch"`
}

// CalculateResponse is the success body of a single-profile score.
type CalculateResponse struct {
	Success         bool                   `json:"success"`
	Enrolled        bool                   `json:"enrolled"`
	Participant     ParticipantInfo        `json:"participant"`
	ProfileURL      string                 `json:"profileUrl"`
	UserName        string                 `json:"userName"`
	TotalPoints     int                    `json:"totalPoints"`
	CompletedBadges []model.CompletionItem `json:"completedBadges"`
	CompletedGames  []model.CompletionItem `json:"completedGames"`
	Progress        model.Progress         `json:"progress"`
	Breakdown       model.Breakdown        `json:"breakdown"`
	Metadata        Metadata               `json:"metadata"`
}

// ParticipantSummary is one row of the cohort listing.
type ParticipantSummary struct {
	Name       string `json:"name"`
	ProfileID  string `json:"profileId"`
	ProfileURL string `json:"profileUrl"`
}

// ParticipantsResponse is the cohort listing body.
type ParticipantsResponse struct {
	Success           bool                 `json:"success"`
	TestMode          bool                 `json:"testMode"`
	TotalParticipants int                  `json:"totalParticipants"`
	Participants      []ParticipantSummary `json:"participants"`
}

// Failure records a participant skipped during a cohort pass.
type Failure struct {
	Name      string `json:"name"`
	ProfileID string `json:"profileId"`
	Reason    string `json:"reason"`
}

// CohortReport is a full analytics pass.
type CohortReport struct {
	ID           string                    `json:"id"`
	GeneratedAt  time.Time                 `json:"generatedAt"`
	TestMode     bool                      `json:"testMode"`
	Summary      cohort.Summary            `json:"summary"`
	Distribution []cohort.BucketReport     `json:"distribution"`
	Leaderboard  []cohort.LeaderboardEntry `json:"leaderboard"`
	Participants []model.CohortSample      `json:"participants"`
	Failures     []Failure                 `json:"failures"`
}
