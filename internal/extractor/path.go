package extractor

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/domain"
)

// Path card selectors, table layout.
const (
	PathCardSelector     = ".pathtraining-card"
	pathAnchorSelector   = "div.pathtraining-anchor"
	pathHeaderSelector   = ".pathtraining-header"
	pathTitleSelector    = ".pathtraining-header-title"
	pathProgressSelector = ".pathtraining-header-progress .pathtraining-table-column-progress-value.text-primarycolor"
	pathScoreSelector    = ".pathtraining-header-progress-score .pathtraining-table-column-progress-value.text-primarycolor"
)

// Path card selectors, subscription layout.
const (
	SubscriptionCardSelector   = ".training-path-subscription-card"
	subscriptionTitleSelector  = ".training-path-subscription-card__title"
	subscriptionValuesSelector = ".progress-bar__value"
)

const pathIDPrefix = "path_"

// ExtractPath reads a Path from a card in either layout.
func ExtractPath(card *goquery.Selection) (domain.Path, error) {
	if isTableCard(card) {
		return extractTablePath(card)
	}
	return extractSubscriptionPath(card)
}

// isTableCard reports whether card uses the table layout.
func isTableCard(card *goquery.Selection) bool {
	return card.Find(pathHeaderSelector).Length() > 0
}

func extractTablePath(card *goquery.Selection) (domain.Path, error) {
	header := card.Find(pathHeaderSelector).First()

	title := text(header.Find(pathTitleSelector).First())
	if title == "" {
		return domain.Path{}, fieldError("path", "title", ErrEmptyTitle)
	}

	progression, err := percentOf(header.Find(pathProgressSelector).First())
	if err != nil {
		return domain.Path{}, fieldError("path", "progression", err)
	}
	score, err := scoreOf(header.Find(pathScoreSelector).First())
	if err != nil {
		return domain.Path{}, fieldError("path", "score", err)
	}

	anchorID, _ := card.PrevFiltered(pathAnchorSelector).Attr("id")
	return newPath(anchorID, title, progression, score), nil
}

func extractSubscriptionPath(card *goquery.Selection) (domain.Path, error) {
	title := text(card.Find(subscriptionTitleSelector).First())
	if title == "" {
		return domain.Path{}, fieldError("path", "title", ErrEmptyTitle)
	}

	values := card.Find(subscriptionValuesSelector)
	progression, err := percentOf(values.Eq(0))
	if err != nil {
		return domain.Path{}, fieldError("path", "progression", err)
	}
	score, err := scoreOf(values.Eq(1))
	if err != nil {
		return domain.Path{}, fieldError("path", "score", err)
	}

	anchorID, _ := card.Attr("id")
	return newPath(anchorID, title, progression, score), nil
}

// newPath keys the Path on the anchor id when the page exposes one.
func newPath(anchorID, title string, progression, score float64) domain.Path {
	id := anchorID
	if id == "" {
		id = pathIDPrefix + Slug(title)
	}
	return domain.Path{
		ID:          id,
		PlatformID:  anchorID,
		Title:       title,
		Progression: progression,
		Score:       score,
	}
}

// percentOf parses a progress value; a missing element reads as 0.
func percentOf(sel *goquery.Selection) (float64, error) {
	if sel.Length() == 0 {
		return 0, nil
	}
	return ParsePercent(sel.Text())
}

// scoreOf parses a score value; a missing element or placeholder reads as 0.
func scoreOf(sel *goquery.Selection) (float64, error) {
	if sel.Length() == 0 {
		return 0, nil
	}
	return ParseScore(sel.Text())
}
