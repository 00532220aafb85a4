// Package profile fetches public learner profile pages and extracts the
// completed badges and games they list.
package profile

import (
	"context"

	"github.com/okian/boostcalc/internal/domain/model"
)

// Fetcher retrieves the raw content of a profile page.
type Fetcher interface {
	Fetch(ctx context.Context, profileURL string) ([]byte, error)
}

// Extractor turns a fetched page into a profile. Implementations must be
// deterministic for identical content.
type Extractor interface {
	Extract(ctx context.Context, content []byte) (model.Profile, error)
}
