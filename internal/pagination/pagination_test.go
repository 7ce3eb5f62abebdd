package pagination_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/logger"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/navigator"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/pagination"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/testhelpers"
)

const listingURL = "https://academy.example.com/Training"

// pagerHTML renders a pager with total numbered pages and active highlighted.
func pagerHTML(total, active int) string {
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

func newController(page *testhelpers.FakePage) *pagination.Controller {
	nav := navigator.New(page, logger.NewNop(), time.Millisecond)
	return pagination.New(nav, logger.NewNop(),
		pagination.WithWaitTimeout(10*time.Millisecond),
		pagination.WithAdvanceTimeout(20*time.Millisecond),
		pagination.WithSettleDelay(0),
	)
}

func TestPageCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		html string
		want int
	}{
		{name: "numbered pages", html: pagerHTML(4, 1), want: 4},
		{name: "single page", html: pagerHTML(1, 1), want: 1},
		{
			name: "previous and next only",
			html: `<ul><li class="page-item"><a class="page-link">&lt;</a></li>` +
				`<li class="page-item"><a class="page-link">&gt;</a></li></ul>`,
			want: 0,
		},
		{
			name: "data-page fallback",
			html: `<ul><li class="page-item"><a class="page-link" data-page="7">…</a></li>` +
				`<li class="page-item"><a class="page-link">2</a></li>` +
				`<li class="page-item"><a class="page-link">next</a></li></ul>`,
			want: 7,
		},
		{name: "no pager", html: `<div></div>`, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			page := testhelpers.NewFakePage(listingURL, tt.html)
			got, err := newController(page).PageCount(context.Background())

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMaxPageNumber_IgnoresNonNumericLabels(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<li class="page-item"><a class="page-link"> 12 </a></li>` +
			`<li class="page-item"><a class="page-link">...</a></li>` +
			`<li class="page-item"><a class="page-link">3</a></li>`))
	require.NoError(t, err)

	assert.Equal(t, 12, pagination.MaxPageNumber(doc.Selection))
}

func TestAdvance_AtLastPageDoesNotClick(t *testing.T) {
	t.Parallel()

	page := testhelpers.NewFakePage(listingURL, pagerHTML(3, 3))

	assert.False(t, newController(page).Advance(context.Background(), 3, 3))
	assert.Empty(t, page.Clicks())
}

func TestAdvance_WaitsForActivePage(t *testing.T) {
	t.Parallel()

	page := testhelpers.NewFakePage(listingURL, pagerHTML(3, 1))
	page.OnClick = func(p *testhelpers.FakePage, _ string, _ int, _ *goquery.Selection) {
		p.SetHTML(pagerHTML(3, 2))
	}

	ok := newController(page).Advance(context.Background(), 1, 3)

	assert.True(t, ok)
	require.Len(t, page.Clicks(), 1)
	assert.Equal(t, pagination.NextSelector, page.Clicks()[0].Selector)
}

func TestAdvance_ActivePageNeverChanges(t *testing.T) {
	t.Parallel()

	page := testhelpers.NewFakePage(listingURL, pagerHTML(3, 1))

	assert.False(t, newController(page).Advance(context.Background(), 1, 3))
	assert.Len(t, page.Clicks(), 1)
}

func TestAdvance_MissingNextControl(t *testing.T) {
	t.Parallel()

	page := testhelpers.NewFakePage(listingURL,
		`<ul><li class="page-item active"><a class="page-link">1</a></li></ul>`)

	assert.False(t, newController(page).Advance(context.Background(), 1, 2))
	assert.Empty(t, page.Clicks())
}
