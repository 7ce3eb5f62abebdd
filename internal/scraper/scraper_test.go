package scraper_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/config"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/content"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/domain"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/logger"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/metrics"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/navigator"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/pagination"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/scraper"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/storage"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/testhelpers"
)

const (
	siteURL     = "https://academy.example.com"
	listingURL  = siteURL + "/Training"
	trainingURL = listingURL + "/view/1234/"
)

var errBoom = errors.New("boom")

func sessionConfig(saveContents bool) scraper.SessionConfig {
	return scraper.SessionConfig{
		Platform: config.PlatformConfig{
			BaseURL:     "https://academy.example.com",
			TrainingURL: listingURL,
		},
		Scrape: config.ScrapeConfig{
			NavigationAttempts: 2,
			NavigationDelay:    time.Millisecond,
			WaitTimeout:        30 * time.Millisecond,
			PaginationTimeout:  30 * time.Millisecond,
			SettleDelay:        0,
			PollInterval:       time.Millisecond,
		},
		SaveContents: saveContents,
	}
}

func newSession(page *testhelpers.FakePage, saveContents bool) *scraper.Session {
	return scraper.NewSession(page, nil, sessionConfig(saveContents), logger.NewNop())
}

// pathCard renders an open subscription card with one training row.
func pathCard(id, title, trainingID string) string {
	return fmt.Sprintf(`<div class="training-path-subscription-card" id="%s">
  <div class="training-path-subscription-card__title">%s</div>
  <span class="deploy deploy--open"></span>
  <span class="progress-bar__value">40%%</span>
  <span class="progress-bar__value">-</span>
  <table><tbody><tr>
    <td><div class="td-content-text"><div class="td-content-data"><span class="text-font-semi-bold">%s training</span></div></div>
        <a href="%s/view/%s/">Open</a></td>
    <td data-header="Progression"><span class="progress-bar__value">10%%</span></td>
  </tr></tbody></table>
</div>`, id, title, title, listingURL, trainingID)
}

// collapsedCard renders a card whose content is hidden behind its toggle.
func collapsedCard(id, title string) string {
	return fmt.Sprintf(`<div class="training-path-subscription-card" id="%s">
  <div class="training-path-subscription-card__title">%s</div>
  <span class="deploy"></span>
</div>`, id, title)
}

func pager(total, active int) string {
	var b strings.Builder
	b.WriteString(`<ul class="pagination">`)
	b.WriteString(`<li class="page-item"><a class="page-link"><i class="fa fa-chevron-left"></i></a></li>`)
	for i := 1; i <= total; i++ {
		class := "page-item"
		if i == active {
			class += " active"
		}
		fmt.Fprintf(&b, `<li class="%s"><a class="page-link">%d</a></li>`, class, i)
	}
	b.WriteString(`<li class="page-item"><a class="page-link"><i class="fa fa-chevron-right"></i></a></li>`)
	b.WriteString(`</ul>`)
	return b.String()
}

func listingPage(total, active int, cards ...string) string {
	return "<html><body>" + strings.Join(cards, "\n") + pager(total, active) + "</body></html>"
}

// twoPageListing serves 3 cards on page 1 and 2 cards on page 2.
func twoPageListing() *testhelpers.FakePage {
	page1 := listingPage(2, 1,
		pathCard("path-1", "Alpha", "101"),
		pathCard("path-2", "Beta", "102"),
		pathCard("path-3", "Gamma", "103"),
	)
	page2 := listingPage(2, 2,
		pathCard("path-4", "Delta", "104"),
		pathCard("path-5", "Epsilon", "105"),
	)

	page := testhelpers.NewFakePage("about:blank", "")
	page.Routes[listingURL] = page1
	page.OnClick = func(p *testhelpers.FakePage, selector string, _ int, _ *goquery.Selection) {
		if selector == pagination.NextSelector {
			p.SetHTML(page2)
		}
	}
	return page
}

func moduleItem(trainingID, stepID, icon, state string) string {
	return fmt.Sprintf(`<a class="training-view-module-item" href="/Training/view/%s/step/%s">
  <span class="item-icon-picto"><i class="icon %s"></i></span>
  <span class="training-view-module-item-title" title="Step %s">Step %s</span>
  <span class="training-view-module-item-state"><span class="state-box %s"></span></span>
</a>`, trainingID, stepID, icon, stepID, stepID, state)
}

func trainingPage(items ...string) string {
	return stepPage(strings.Join(items, "\n"), "")
}

func stepPage(list, body string) string {
	return "<html><body><div class=\"training-view-module\">" + list + "</div>" + body + "</body></html>"
}

// followStepLinks makes a click on a module item land on that step's page
// once reads more page reads have happened. bodies holds the step markup
// shown under the module list, by step id.
func followStepLinks(page *testhelpers.FakePage, reads int, list string, bodies map[string]string) {
	page.OnClick = func(p *testhelpers.FakePage, _ string, _ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		stepID := href[strings.LastIndex(href, "/")+1:]
		p.After(reads, func(p *testhelpers.FakePage) {
			p.SetURL(siteURL + href)
			p.SetHTML(stepPage(list, bodies[stepID]))
		})
	}
}

type fakeContents struct {
	fail map[string]error
	seen []string
}

func (f *fakeContents) Extract(_ context.Context, _ *navigator.Navigator, _ []*http.Cookie, step domain.Step) (*domain.Content, error) {
	f.seen = append(f.seen, step.ID)
	if err := f.fail[step.ID]; err != nil {
		return nil, err
	}
	ct, ok := step.Type.ContentType()
	if !ok {
		return nil, nil
	}
	c := domain.NewContent(step, ct)
	return &c, nil
}

func TestValidateTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from    scraper.State
		to      scraper.State
		wantErr bool
	}{
		{from: scraper.StateIdle, to: scraper.StateNavigatingPaths},
		{from: scraper.StateNavigatingPaths, to: scraper.StateExtractingPathsPage},
		{from: scraper.StateExtractingPathsPage, to: scraper.StateNextPage},
		{from: scraper.StateNextPage, to: scraper.StateExtractingPathsPage},
		{from: scraper.StateDone, to: scraper.StateNavigatingTraining},
		{from: scraper.StateNavigatingStep, to: scraper.StateExtractingContent},
		{from: scraper.StateExtractingContent, to: scraper.StateFailed},
		{from: scraper.StateNextPage, to: scraper.StateCancelled},
		{from: scraper.StateIdle, to: scraper.StateExtractingContent, wantErr: true},
		{from: scraper.StateNavigatingPaths, to: scraper.StateNextPage, wantErr: true},
		{from: scraper.StateFailed, to: scraper.StateIdle, wantErr: true},
		{from: scraper.StateCancelled, to: scraper.StateFailed, wantErr: true},
		{from: scraper.State("bogus"), to: scraper.StateDone, wantErr: true},
	}

	for _, tt := range tests {
		err := scraper.ValidateTransition(tt.from, tt.to)
		if tt.wantErr {
			require.Error(t, err, "%s -> %s", tt.from, tt.to)
		} else {
			require.NoError(t, err, "%s -> %s", tt.from, tt.to)
		}
	}
}

func TestSessionURLs(t *testing.T) {
	t.Parallel()

	sess := newSession(testhelpers.NewFakePage("about:blank", ""), false)

	assert.Equal(t, listingURL, sess.ListingURL())
	assert.Equal(t, trainingURL, sess.TrainingURL("1234"))
	assert.Equal(t, listingURL+"/view/1234/step/987", sess.StepURL("1234", "987"))
	assert.Equal(t, scraper.StateIdle, sess.State())
	assert.NotEqual(t, sess.ID, newSession(testhelpers.NewFakePage("about:blank", ""), false).ID)
}

func TestScrapePathsAndTrainings_TwoPages(t *testing.T) {
	t.Parallel()

	page := twoPageListing()
	sess := newSession(page, false)
	m := metrics.NewMetrics(prometheus.NewRegistry())

	result, err := scraper.New(&fakeContents{}, m).ScrapePathsAndTrainings(context.Background(), sess)
	require.NoError(t, err)

	require.Len(t, result.Paths, 5)
	ids := make([]string, 0, len(result.Paths))
	for _, p := range result.Paths {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"path-1", "path-2", "path-3", "path-4", "path-5"}, ids)

	require.Len(t, result.Trainings, 5)
	assert.Equal(t, "101", result.Trainings[0].ID)
	assert.Equal(t, "path-1", result.Trainings[0].PathID)
	assert.Equal(t, "105", result.Trainings[4].ID)

	assert.Equal(t, 2, result.PageCount)
	assert.Equal(t, 2, result.PagesVisited)
	assert.True(t, result.Complete())
	assert.Empty(t, result.Failures)
	assert.InDelta(t, 2, testutil.ToFloat64(m.PagesVisitedTotal), 1e-9)

	assert.Equal(t, []scraper.State{
		scraper.StateIdle,
		scraper.StateNavigatingPaths,
		scraper.StateExtractingPathsPage,
		scraper.StateNextPage,
		scraper.StateExtractingPathsPage,
		scraper.StateDone,
	}, sess.Trail())
}

func TestScrapePathsAndTrainings_StopsWhenPagerStalls(t *testing.T) {
	t.Parallel()

	page := testhelpers.NewFakePage("about:blank", "")
	page.Routes[listingURL] = listingPage(3, 1, pathCard("path-1", "Alpha", "101"))

	result, err := scraper.New(&fakeContents{}, nil).ScrapePathsAndTrainings(context.Background(), newSession(page, false))
	require.NoError(t, err)

	assert.Len(t, result.Paths, 1)
	assert.Equal(t, 3, result.PageCount)
	assert.Equal(t, 1, result.PagesVisited)
	assert.False(t, result.Complete())
}

func TestScrapePathsAndTrainings_ExpandsCollapsedCard(t *testing.T) {
	t.Parallel()

	page := testhelpers.NewFakePage("about:blank", "")
	page.Routes[listingURL] = listingPage(1, 1, collapsedCard("path-9", "Hidden"))
	page.OnClick = func(p *testhelpers.FakePage, selector string, _ int, _ *goquery.Selection) {
		if selector == scraper.ToggleSelector {
			p.SetHTML(listingPage(1, 1, pathCard("path-9", "Hidden", "909")))
		}
	}

	result, err := scraper.New(&fakeContents{}, nil).ScrapePathsAndTrainings(context.Background(), newSession(page, false))
	require.NoError(t, err)

	require.Len(t, page.Clicks(), 1)
	assert.Equal(t, scraper.ToggleSelector, page.Clicks()[0].Selector)
	require.Len(t, result.Paths, 1)
	assert.Equal(t, "path-9", result.Paths[0].ID)
	require.Len(t, result.Trainings, 1)
	assert.Equal(t, "909", result.Trainings[0].ID)
}

func TestScrapePathsAndTrainings_SkipsBrokenCard(t *testing.T) {
	t.Parallel()

	broken := `<div class="training-path-subscription-card"><span class="deploy--open"></span>` +
		`<div class="training-path-subscription-card__title"> </div></div>`
	page := testhelpers.NewFakePage("about:blank", "")
	page.Routes[listingURL] = listingPage(1, 1, broken, pathCard("path-2", "Beta", "102"))

	result, err := scraper.New(&fakeContents{}, nil).ScrapePathsAndTrainings(context.Background(), newSession(page, false))
	require.NoError(t, err)

	require.Len(t, result.Paths, 1)
	assert.Equal(t, "path-2", result.Paths[0].ID)
	require.Len(t, result.Failures, 1)
	assert.False(t, domain.IsAbort(result.Failures[0]))
	assert.Equal(t, domain.KindExtraction, domain.KindOf(result.Failures[0]))
}

func TestScrapePathsAndTrainings_UnreachableListingAborts(t *testing.T) {
	t.Parallel()

	page := testhelpers.NewFakePage("about:blank", "")
	page.Redirects[listingURL] = "https://academy.example.com/login"
	sess := newSession(page, false)

	_, err := scraper.New(&fakeContents{}, nil).ScrapePathsAndTrainings(context.Background(), sess)
	require.Error(t, err)

	assert.True(t, domain.IsAbort(err))
	require.ErrorIs(t, err, scraper.ErrListingUnreachable)
	assert.Equal(t, scraper.StateFailed, sess.State())
	assert.Len(t, page.Navigations(), 2)
}

func TestScrapeSteps(t *testing.T) {
	t.Parallel()

	page := testhelpers.NewFakePage("about:blank", "")
	page.Routes[trainingURL] = trainingPage(
		moduleItem("1234", "11", "icon-module-text", "state-success"),
		moduleItem("1234", "12", "icon-module-pdf", ""),
		`<a class="training-view-module-item" href="/Training/view/1234/step/oops"></a>`,
		moduleItem("1234", "13", "icon-module-video", "state-locked"),
	)
	sess := newSession(page, false)

	result, err := scraper.New(&fakeContents{}, nil).ScrapeSteps(context.Background(), sess, "1234")
	require.NoError(t, err)

	require.Len(t, result.Steps, 3)
	assert.Equal(t, "11", result.Steps[0].ID)
	assert.Equal(t, 0, result.Steps[0].Index)
	assert.True(t, result.Steps[0].IsValidated)
	assert.Equal(t, "13", result.Steps[2].ID)
	assert.Equal(t, 3, result.Steps[2].Index)
	assert.True(t, result.Steps[2].IsBlocked)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, scraper.StateExtractingSteps, sess.State())
}

func TestScrapeSteps_UnreachableTrainingIsRecoverable(t *testing.T) {
	t.Parallel()

	page := testhelpers.NewFakePage("about:blank", "")
	page.FailURLs[trainingURL] = true
	sess := newSession(page, false)

	result, err := scraper.New(&fakeContents{}, nil).ScrapeSteps(context.Background(), sess, "1234")
	require.Error(t, err)

	assert.False(t, domain.IsAbort(err))
	require.ErrorIs(t, err, scraper.ErrTrainingUnreachable)
	assert.Empty(t, result.Steps)
	assert.Equal(t, scraper.StateDone, sess.State())
}

func threeSteps(page *testhelpers.FakePage) []domain.Step {
	list := strings.Join([]string{
		moduleItem("1234", "11", "icon-module-text", "state-success"),
		moduleItem("1234", "12", "icon-module-document", ""),
		moduleItem("1234", "13", "icon-module-quiz", "state-locked"),
	}, "\n")
	page.Routes[trainingURL] = stepPage(list, "")
	followStepLinks(page, 0, list, nil)
	return []domain.Step{
		{ID: "11", PlatformID: "11", TrainingID: "1234", Title: "Step 11", Type: domain.StepTypeText, Index: 0},
		{ID: "12", PlatformID: "12", TrainingID: "1234", Title: "Step 12", Type: domain.StepTypeDocument, Index: 1},
		{ID: "13", PlatformID: "13", TrainingID: "1234", Title: "Step 13", Type: domain.StepTypeQuiz, Index: 2, IsBlocked: true},
	}
}

func TestScrapeContents(t *testing.T) {
	t.Parallel()

	page := testhelpers.NewFakePage("about:blank", "")
	steps := threeSteps(page)
	page.CookieJar = []*http.Cookie{{Name: "session", Value: "abc"}}
	require.NoError(t, page.Navigate(context.Background(), trainingURL))

	contents := &fakeContents{fail: map[string]error{
		"12": domain.Skip(domain.KindTimeout, "wait for document", "12", errBoom),
	}}
	sess := newSession(page, true)

	result, err := scraper.New(contents, nil).ScrapeContents(context.Background(), sess, "1234", steps)
	require.NoError(t, err)

	assert.True(t, result.Complete)
	assert.Equal(t, 2, result.LastIndex)
	assert.Equal(t, []string{"11", "12", "13"}, contents.seen)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, "11", result.Contents[0].StepID)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, domain.KindTimeout, domain.KindOf(result.Failures[0]))
	assert.Equal(t, page.CookieJar, sess.Cookies)

	// The frontier starts one step before the first blocked one.
	assert.Contains(t, page.Navigations(), sess.StepURL("1234", "12"))
	assert.Contains(t, page.Navigations(), sess.StepURL("1234", "13"))

	clicks := page.Clicks()
	require.Len(t, clicks, 3)
	for i, c := range clicks {
		assert.Equal(t, i, c.Index)
	}
	assert.Equal(t, scraper.StateDone, sess.State())
}

func TestScrapeContents_StopsWhenStepCannotBeOpened(t *testing.T) {
	t.Parallel()

	page := testhelpers.NewFakePage("about:blank", "")
	steps := threeSteps(page)
	require.NoError(t, page.Navigate(context.Background(), trainingURL))
	steps = append(steps, domain.Step{ID: "99", PlatformID: "99", TrainingID: "1234", Title: "Ghost", Index: 7})
	contents := &fakeContents{}

	result, err := scraper.New(contents, nil).ScrapeContents(context.Background(), newSession(page, true), "1234", steps)
	require.NoError(t, err)

	assert.False(t, result.Complete)
	assert.Equal(t, 2, result.LastIndex)
	assert.Equal(t, []string{"11", "12", "13"}, contents.seen)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, domain.KindTimeout, domain.KindOf(result.Failures[0]))
}

func TestScrapeContents_StepThatNeverOpensStopsPass(t *testing.T) {
	t.Parallel()

	page := testhelpers.NewFakePage("about:blank", "")
	steps := threeSteps(page)
	require.NoError(t, page.Navigate(context.Background(), trainingURL))
	page.OnClick = nil
	contents := &fakeContents{}

	result, err := scraper.New(contents, nil).ScrapeContents(context.Background(), newSession(page, true), "1234", steps)
	require.NoError(t, err)

	// The page still shows the last unblocked step, so the first click never lands.
	assert.False(t, result.Complete)
	assert.Equal(t, -1, result.LastIndex)
	assert.Empty(t, contents.seen)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, domain.KindTimeout, domain.KindOf(result.Failures[0]))
}

func TestScrapeContents_WaitsForClickedStepBeforeCapture(t *testing.T) {
	t.Parallel()

	list := strings.Join([]string{
		moduleItem("1234", "11", "icon-module-text", "state-success"),
		moduleItem("1234", "12", "icon-module-text", ""),
	}, "\n")
	page := testhelpers.NewFakePage("about:blank", "")
	page.Routes[trainingURL] = stepPage(list, "")
	followStepLinks(page, 3, list, map[string]string{
		"11": `<div id="textRender"><p>ELEVEN</p></div>`,
		"12": `<div id="textRender"><p>TWELVE</p></div>`,
	})
	require.NoError(t, page.Navigate(context.Background(), trainingURL))

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	capture := content.NewExtractor(content.Config{
		Store:       store,
		WaitTimeout: 30 * time.Millisecond,
		Logger:      logger.NewNop(),
	})
	steps := []domain.Step{
		{ID: "11", PlatformID: "11", TrainingID: "1234", Type: domain.StepTypeText, Index: 0},
		{ID: "12", PlatformID: "12", TrainingID: "1234", Type: domain.StepTypeText, Index: 1},
	}

	result, err := scraper.New(capture, nil).ScrapeContents(context.Background(), newSession(page, true), "1234", steps)
	require.NoError(t, err)
	require.True(t, result.Complete)
	require.Len(t, result.Contents, 2)

	for id, want := range map[string]string{"11": "ELEVEN", "12": "TWELVE"} {
		data, readErr := os.ReadFile(store.Path(domain.ContentFilename(id, domain.ContentTypeText)))
		require.NoError(t, readErr)
		assert.Contains(t, string(data), want, "step %s", id)
	}
}

func TestScrapeContents_AbortStopsPass(t *testing.T) {
	t.Parallel()

	page := testhelpers.NewFakePage("about:blank", "")
	steps := threeSteps(page)
	require.NoError(t, page.Navigate(context.Background(), trainingURL))
	contents := &fakeContents{fail: map[string]error{
		"11": domain.Abort(domain.KindContent, "store content", "11", errBoom),
	}}
	sess := newSession(page, true)

	result, err := scraper.New(contents, nil).ScrapeContents(context.Background(), sess, "1234", steps)
	require.Error(t, err)

	assert.True(t, domain.IsAbort(err))
	assert.False(t, result.Complete)
	assert.Equal(t, scraper.StateFailed, sess.State())
}

func TestScrapeContents_NoSteps(t *testing.T) {
	t.Parallel()

	page := testhelpers.NewFakePage(trainingURL, trainingPage())

	result, err := scraper.New(&fakeContents{}, nil).ScrapeContents(context.Background(), newSession(page, true), "1234", nil)
	require.NoError(t, err)

	assert.True(t, result.Complete)
	assert.Equal(t, -1, result.LastIndex)
	assert.Empty(t, page.Navigations())
}

func TestRun_PathsOnly(t *testing.T) {
	t.Parallel()

	page := twoPageListing()
	sess := newSession(page, true)

	result, err := scraper.New(&fakeContents{}, nil).Run(context.Background(), sess, scraper.RunOptions{PathsOnly: true})
	require.NoError(t, err)

	assert.Equal(t, sess.ID.String(), result.RunID)
	assert.Len(t, result.Paths, 5)
	assert.Len(t, result.Trainings, 5)
	assert.Empty(t, result.Steps)
	assert.True(t, result.Complete)
	assert.False(t, result.FinishedAt.Before(result.StartedAt))
}

func TestRun_SelectedTrainings(t *testing.T) {
	t.Parallel()

	page := testhelpers.NewFakePage("about:blank", "")
	steps := threeSteps(page)
	page.FailURLs[listingURL+"/view/404/"] = true
	contents := &fakeContents{}
	sess := newSession(page, true)

	result, err := scraper.New(contents, nil).Run(context.Background(), sess, scraper.RunOptions{TrainingIDs: []string{"404", "1234"}})
	require.NoError(t, err)

	assert.Empty(t, result.Paths)
	require.Len(t, result.Steps, len(steps))
	assert.Len(t, result.Contents, 2)
	require.Len(t, result.Failures, 1)
	require.ErrorIs(t, result.Failures[0], scraper.ErrTrainingUnreachable)
	assert.True(t, result.Complete)
	assert.Empty(t, result.Incomplete)
	assert.NotContains(t, page.Navigations(), listingURL)
}

func TestRun_WithoutContents(t *testing.T) {
	t.Parallel()

	page := twoPageListing()
	for _, id := range []string{"101", "102", "103", "104", "105"} {
		page.Routes[listingURL+"/view/"+id+"/"] = trainingPage(moduleItem(id, "1"+id, "icon-module-text", ""))
	}
	contents := &fakeContents{}
	sess := newSession(page, false)

	result, err := scraper.New(contents, nil).Run(context.Background(), sess, scraper.RunOptions{})
	require.NoError(t, err)

	assert.Len(t, result.Steps, 5)
	assert.Empty(t, result.Contents)
	assert.Empty(t, contents.seen)
	assert.True(t, result.Complete)
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()

	page := twoPageListing()
	sess := newSession(page, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := scraper.New(&fakeContents{}, nil).Run(ctx, sess, scraper.RunOptions{})
	require.ErrorIs(t, err, context.Canceled)

	assert.False(t, result.Complete)
	assert.Empty(t, result.Paths)
	assert.Equal(t, scraper.StateCancelled, sess.State())
}
