package profile

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/okian/boostcalc/internal/domain/model"
	"github.com/okian/boostcalc/pkg/metrics"
)

// Selectors used against the public profile page.
const (
	heroNameSelector = ".public-profile__hero h1"
	cardSelector     = ".profile-badge"
	titleSelector    = ".ql-title-medium"
)

// Category labels assigned when a card does not carry its own.
const (
	CategoryArcade          = "arcade"
	CategoryTrivia          = "trivia"
	CategorySkillBadge      = "skill-badge"
	CategoryCompletionBadge = "completion-badge"
)

var defaultGameKeywords = []string{"arcade", "trivia", "game", "level"} //nolint:gochecknoglobals // keyword table

// HTMLExtractor reads completion cards out of a profile page.
type HTMLExtractor struct {
	gameKeywords []string
}

var _ Extractor = (*HTMLExtractor)(nil)

// ExtractorOption applies a configuration option to the HTMLExtractor.
type ExtractorOption func(*HTMLExtractor)

// WithGameKeywords replaces the title keywords that mark a card as a game.
func WithGameKeywords(keywords ...string) ExtractorOption {
	return func(e *HTMLExtractor) {
		if len(keywords) == 0 {
			return
		}
		e.gameKeywords = make([]string, 0, len(keywords))
		for _, k := range keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				e.gameKeywords = append(e.gameKeywords, k)
			}
		}
	}
}

// NewHTMLExtractor creates an extractor with the default game keywords.
func NewHTMLExtractor(opts ...ExtractorOption) *HTMLExtractor {
	e := &HTMLExtractor{gameKeywords: defaultGameKeywords}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract parses content and returns the profile name and its completed items
// in page order. Cards without a title are skipped.
func (e *HTMLExtractor) Extract(ctx context.Context, content []byte) (model.Profile, error) {
	if err := ctx.Err(); err != nil {
		return model.Profile{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return model.Profile{}, fmt.Errorf("%w: %w", ErrParse, err)
	}

	p := model.Profile{
		Name:  profileName(doc),
		Items: []model.CompletionItem{},
	}

	var badges, games int
	doc.Find(cardSelector).Each(func(_ int, card *goquery.Selection) {
		item, ok := e.item(card)
		if !ok {
			return
		}
		if item.Kind == model.KindGame {
			games++
		} else {
			badges++
		}
		p.Items = append(p.Items, item)
	})

	metrics.RecordItemsExtracted(string(model.KindBadge), badges)
	metrics.RecordItemsExtracted(string(model.KindGame), games)
	return p, nil
}

func profileName(doc *goquery.Document) string {
	if name := clean(doc.Find(heroNameSelector).First().Text()); name != "" {
		return name
	}
	return clean(doc.Find("h1").First().Text())
}

func (e *HTMLExtractor) item(card *goquery.Selection) (model.CompletionItem, bool) {
	title := clean(card.Find(titleSelector).First().Text())
	if title == "" {
		title = clean(card.AttrOr("title", ""))
	}
	if title == "" {
		title = clean(card.Text())
	}
	if title == "" {
		return model.CompletionItem{}, false
	}

	lowerTitle := strings.ToLower(title)
	lowerText := strings.ToLower(title + " " + card.Text())

	kind := model.Kind(strings.ToLower(strings.TrimSpace(card.AttrOr("data-kind", ""))))
	if !kind.Valid() {
		kind = model.KindBadge
		if containsAny(lowerTitle, e.gameKeywords) {
			kind = model.KindGame
		}
	}

	difficulty := model.Difficulty(strings.ToLower(strings.TrimSpace(card.AttrOr("data-difficulty", ""))))
	if difficulty == "" {
		difficulty = difficultyFrom(lowerText)
	}

	category := strings.TrimSpace(card.AttrOr("data-category", ""))
	if category == "" {
		category = categoryFor(kind, lowerText)
	}

	return model.CompletionItem{
		Title:      title,
		Category:   category,
		Difficulty: difficulty,
		Kind:       kind,
	}, true
}

func difficultyFrom(text string) model.Difficulty {
	switch {
	case strings.Contains(text, "advanced"):
		return model.DifficultyAdvanced
	case strings.Contains(text, "intermediate"):
		return model.DifficultyIntermediate
	default:
		return model.DifficultyIntroductory
	}
}

func categoryFor(kind model.Kind, text string) string {
	if kind == model.KindGame {
		if strings.Contains(text, "trivia") {
			return CategoryTrivia
		}
		return CategoryArcade
	}
	if strings.Contains(text, "skill badge") {
		return CategorySkillBadge
	}
	return CategoryCompletionBadge
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// clean collapses runs of whitespace.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
