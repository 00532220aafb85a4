package model

// KindBreakdown groups the items of one kind.
type KindBreakdown struct {
	Count int              `json:"count"`
	Items []CompletionItem `json:"items"`
}

// Breakdown splits a result per kind.
type Breakdown struct {
	Badges KindBreakdown `json:"badges"`
	Games  KindBreakdown `json:"games"`
}

// Ratio is completion against a target.
type Ratio struct {
	Completed  int     `json:"completed"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// Progress reports badge, game and combined completion.
type Progress struct {
	Badges  Ratio `json:"badges"`
	Games   Ratio `json:"games"`
	Overall Ratio `json:"overall"`
}

// ScoreResult is the outcome of scoring one participant's items.
type ScoreResult struct {
	TotalPoints     int              `json:"totalPoints"`
	CompletedBadges []CompletionItem `json:"completedBadges"`
	CompletedGames  []CompletionItem `json:"completedGames"`
	Breakdown       Breakdown        `json:"breakdown"`
	Progress        Progress         `json:"progress"`

	// Unclassified counts items dropped for a missing or unknown kind.
	Unclassified int `json:"unclassified"`
	// Unscored counts classified items that earned no points.
	Unscored int `json:"unscored"`
}

// TotalItems is the number of classified completions.
func (r ScoreResult) TotalItems() int {
	return r.Breakdown.Badges.Count + r.Breakdown.Games.Count
}

// CohortSample is one participant's row in a cohort aggregation pass.
type CohortSample struct {
	Name       string  `json:"name"`
	ProfileID  string  `json:"profileId"`
	Badges     int     `json:"badges"`
	Games      int     `json:"games"`
	TotalItems int     `json:"totalItems"`
	Points     int     `json:"points"`
	Progress   float64 `json:"progress"`
}

// NewCohortSample derives a sample from a score result.
func NewCohortSample(name, profileID string, r ScoreResult) CohortSample {
	return CohortSample{
		Name:       name,
		ProfileID:  profileID,
		Badges:     r.Breakdown.Badges.Count,
		Games:      r.Breakdown.Games.Count,
		TotalItems: r.TotalItems(),
		Points:     r.TotalPoints,
		Progress:   r.Progress.Overall.Percentage,
	}
}
