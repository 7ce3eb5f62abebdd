package extractor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/domain"
)

// Module item selectors on a training page.
const (
	ModuleItemSelector = ".training-view-module-item"
	stepTitleSelector  = ".training-view-module-item-title"
	stepStateSelector  = ".training-view-module-item-state .state-box"
	stepIconSelector   = ".item-icon-picto i"
)

const (
	stepSegment      = "/step/"
	moduleIconPrefix = "icon-module-"
)

// ExtractStep reads one module item. index is its visual position.
func ExtractStep(item *goquery.Selection, trainingID string, index int) (domain.Step, error) {
	href, ok := item.Attr("href")
	if !ok {
		href, ok = item.Find("a[href]").First().Attr("href")
	}
	if !ok {
		return domain.Step{}, fieldError("step", "href", ErrMissingField)
	}

	id, err := StepIDFromHref(href)
	if err != nil {
		return domain.Step{}, fieldError("step", "id", err)
	}

	title := titleOf(item.Find(stepTitleSelector).First())
	if title == "" {
		return domain.Step{}, fieldError("step", "title", ErrEmptyTitle)
	}

	tag, _ := classWithPrefix(item.Find(stepIconSelector).First(), moduleIconPrefix)
	stateClasses, _ := item.Find(stepStateSelector).First().Attr("class")
	validated, blocked := domain.StepStateFromClasses(stateClasses)

	step := domain.Step{
		ID:          id,
		PlatformID:  id,
		TrainingID:  trainingID,
		Title:       title,
		Type:        domain.ParseStepType(tag),
		IsValidated: validated,
		IsBlocked:   blocked,
		Index:       index,
	}
	if err := step.Validate(); err != nil {
		return domain.Step{}, fieldError("step", "state", err)
	}
	return step, nil
}

// StepIDFromHref parses the integer after /step/ in href, ignoring any query.
func StepIDFromHref(href string) (string, error) {
	idx := strings.LastIndex(href, stepSegment)
	if idx < 0 {
		return "", fmt.Errorf("%w: no step segment in %q", ErrMalformedID, href)
	}
	raw := href[idx+len(stepSegment):]
	raw, _, _ = strings.Cut(raw, "?")
	raw, _, _ = strings.Cut(raw, "#")
	raw = strings.TrimSuffix(raw, "/")

	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: %q in %q", ErrMalformedID, raw, href)
	}
	return strconv.FormatUint(n, 10), nil
}

// UnblockFrontier returns the indices to visit so the platform unlocks gated
// steps: from one before the first blocked step through the last step. With
// no blocked step only the last step is revisited.
func UnblockFrontier(steps []domain.Step) []int {
	first := len(steps)
	for i, s := range steps {
		if s.IsBlocked {
			first = i
			break
		}
	}

	start := max(0, first-1)
	indices := make([]int, 0, len(steps)-start)
	for i := start; i < len(steps); i++ {
		indices = append(indices, i)
	}
	return indices
}
