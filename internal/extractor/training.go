package extractor

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/domain"
)

// Training row selectors, table layout.
const (
	tableRowSelector          = ".pathtraining-table-data"
	tableLinkSelector         = ".pathtraining-action-main-button a"
	tableTitleSelector        = ".pathtraining-table-column-trainings-title"
	tableProgressSelector     = ".rup-table-progress .progress-bar-value"
	tableIllustrationSelector = ".illustration"
)

// Training row selectors, subscription layout.
const (
	subscriptionRowSelector      = "tbody tr"
	subscriptionTitleRowSelector = "td:first-child .td-content-text .td-content-data .text-font-semi-bold"
	subscriptionProgressSelector = `td[data-header="Progression"] .progress-bar__value`
	subscriptionScoreSelector    = `td[data-header="Score"] .td-content-data div`
	subscriptionTypeSelector     = "td:first-child .td-content-sub-data .text-size-small"
)

const (
	illustrationPrefix = "illustration-"
	viewSegment        = "/view/"
)

// excludedIllustrations are size modifiers rather than categories.
var excludedIllustrations = []string{"illustration-md"}

// ExtractTrainings reads every training row of a card, choosing the rows by
// the card layout. A row that fails is reported in errs and the remaining
// rows are still extracted.
func ExtractTrainings(card *goquery.Selection, pathID string) (trainings []domain.Training, errs []error) {
	rowSelector := subscriptionRowSelector
	if isTableCard(card) {
		rowSelector = tableRowSelector
	}
	rows := card.Find(rowSelector)

	rows.Each(func(i int, row *goquery.Selection) {
		t, err := ExtractTraining(row, pathID, i)
		if err != nil {
			errs = append(errs, err)
			return
		}
		trainings = append(trainings, t)
	})
	return trainings, errs
}

// ExtractTraining reads one training row. index is the row position in its card.
func ExtractTraining(row *goquery.Selection, pathID string, index int) (domain.Training, error) {
	if row.Is(tableRowSelector) || row.Find(tableTitleSelector).Length() > 0 {
		return extractTableTraining(row, pathID, index)
	}
	return extractSubscriptionTraining(row, pathID, index)
}

func extractTableTraining(row *goquery.Selection, pathID string, index int) (domain.Training, error) {
	title := titleOf(row.Find(tableTitleSelector).First())
	if title == "" {
		return domain.Training{}, fieldError("training", "title", ErrEmptyTitle)
	}

	values := row.Find(tableProgressSelector)
	progression, err := percentOf(values.Eq(0))
	if err != nil {
		return domain.Training{}, fieldError("training", "progression", err)
	}
	score, err := scoreOf(values.Eq(1))
	if err != nil {
		return domain.Training{}, fieldError("training", "score", err)
	}

	trainingType := domain.UnknownTrainingType
	if v, ok := classWithPrefix(row.Find(tableIllustrationSelector).First(), illustrationPrefix, excludedIllustrations...); ok {
		trainingType = v
	}

	href, _ := row.Find(tableLinkSelector).First().Attr("href")
	return newTraining(TrainingIDFromHref(href), pathID, title, trainingType, progression, score, index), nil
}

func extractSubscriptionTraining(row *goquery.Selection, pathID string, index int) (domain.Training, error) {
	title := titleOf(row.Find(subscriptionTitleRowSelector).First())
	if title == "" {
		return domain.Training{}, fieldError("training", "title", ErrEmptyTitle)
	}

	progression, err := percentOf(row.Find(subscriptionProgressSelector).First())
	if err != nil {
		return domain.Training{}, fieldError("training", "progression", err)
	}
	score, err := scoreOf(row.Find(subscriptionScoreSelector).First())
	if err != nil {
		return domain.Training{}, fieldError("training", "score", err)
	}

	trainingType := text(row.Find(subscriptionTypeSelector).First())
	if trainingType == "" {
		trainingType = domain.UnknownTrainingType
	}

	href, _ := row.Find("a[href]").First().Attr("href")
	return newTraining(TrainingIDFromHref(href), pathID, title, trainingType, progression, score, index), nil
}

func newTraining(platformID, pathID, title, trainingType string, progression, score float64, index int) domain.Training {
	id := platformID
	if id == "" {
		id = SyntheticTrainingID(title, pathID, index)
	}
	return domain.Training{
		ID:          id,
		PlatformID:  platformID,
		PathID:      pathID,
		Title:       title,
		Type:        trainingType,
		Progression: progression,
		Score:       score,
	}
}

// TrainingIDFromHref returns the segment following /view/ in href, or "".
func TrainingIDFromHref(href string) string {
	_, rest, ok := strings.Cut(href, viewSegment)
	if !ok {
		return ""
	}
	id, _, _ := strings.Cut(rest, "/")
	id, _, _ = strings.Cut(id, "?")
	return strings.TrimSpace(id)
}

// SyntheticTrainingID identifies a training row that exposes no platform id.
func SyntheticTrainingID(title, pathID string, index int) string {
	return "training_" + Slug(title) + "_" + pathID + "_index_" + strconv.Itoa(index)
}
