package scoring

import (
	"errors"
	"fmt"
	"maps"

	"github.com/okian/boostcalc/internal/domain/model"
)

// Default policy values. Targets add up to the 20-item completion baseline.
const (
	DefaultBadgeTarget = 15
	DefaultGameTarget  = 5
)

// ErrInvalidPolicy is returned by Policy.Validate.
var ErrInvalidPolicy = errors.New("invalid scoring policy")

// Policy holds point weights per difficulty for each kind and the completion targets.
type Policy struct {
	PointsPerBadge   map[model.Difficulty]int `json:"pointsPerBadge"`
	PointsPerGame    map[model.Difficulty]int `json:"pointsPerGame"`
	TotalBadgeTarget int                      `json:"totalBadgeTarget"`
	TotalGameTarget  int                      `json:"totalGameTarget"`
}

// DefaultPolicy returns the stock weights.
func DefaultPolicy() Policy {
	return Policy{
		PointsPerBadge: map[model.Difficulty]int{
			model.DifficultyIntroductory: 25,
			model.DifficultyIntermediate: 50,
			model.DifficultyAdvanced:     75,
		},
		PointsPerGame: map[model.Difficulty]int{
			model.DifficultyIntroductory: 100,
			model.DifficultyIntermediate: 100,
			model.DifficultyAdvanced:     100,
		},
		TotalBadgeTarget: DefaultBadgeTarget,
		TotalGameTarget:  DefaultGameTarget,
	}
}

// Validate rejects negative targets and weights.
func (p Policy) Validate() error {
	if p.TotalBadgeTarget < 0 || p.TotalGameTarget < 0 {
		return fmt.Errorf("%w: negative target", ErrInvalidPolicy)
	}
	for d, w := range p.PointsPerBadge {
		if w < 0 {
			return fmt.Errorf("%w: negative badge weight for %q", ErrInvalidPolicy, d)
		}
	}
	for d, w := range p.PointsPerGame {
		if w < 0 {
			return fmt.Errorf("%w: negative game weight for %q", ErrInvalidPolicy, d)
		}
	}
	return nil
}

// Clone returns a deep copy so callers cannot mutate a loaded policy.
func (p Policy) Clone() Policy {
	c := p
	c.PointsPerBadge = maps.Clone(p.PointsPerBadge)
	c.PointsPerGame = maps.Clone(p.PointsPerGame)
	return c
}

// Weight looks up the points for an item. ok is false when the policy has no
// entry for the item's (kind, difficulty) pair.
func (p Policy) Weight(item model.CompletionItem) (int, bool) {
	var table map[model.Difficulty]int
	switch item.Kind {
	case model.KindBadge:
		table = p.PointsPerBadge
	case model.KindGame:
		table = p.PointsPerGame
	default:
		return 0, false
	}
	w, ok := table[item.Difficulty]
	return w, ok
}

// TotalTarget is the combined badge and game target.
func (p Policy) TotalTarget() int {
	return p.TotalBadgeTarget + p.TotalGameTarget
}
