package content_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/content"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/domain"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/logger"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/navigator"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/storage"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/testhelpers"
	contentmocks "github.com/jonesrussell/north-cloud/progress-scraper/testutils/mocks/content"
	storagemocks "github.com/jonesrussell/north-cloud/progress-scraper/testutils/mocks/storage"
)

const stepURL = "https://academy.example.com/Training/view/10/step/7"

func newNav(html string) *navigator.Navigator {
	return navigator.New(testhelpers.NewFakePage(stepURL, html), logger.NewNop(), time.Millisecond)
}

func step(id string, t domain.StepType) domain.Step {
	return domain.Step{ID: id, PlatformID: id, TrainingID: "10", Title: "Step " + id, Type: t}
}

func TestExtract_TextWritesInnerMarkup(t *testing.T) {
	t.Parallel()

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ex := content.NewExtractor(content.Config{Store: store, WaitTimeout: 50 * time.Millisecond})

	got, err := ex.Extract(context.Background(),
		newNav(`<div id="textRender"><h1>Knife skills</h1></div>`), nil, step("7", domain.StepTypeText))

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.Content{ID: "7", StepID: "7", Filename: "content_7.html", Type: domain.ContentTypeText}, *got)

	data, err := os.ReadFile(store.Path("content_7.html"))
	require.NoError(t, err)
	assert.Equal(t, "<h1>Knife skills</h1>", string(data))
}

func TestExtract_SkipsAlreadyStoredFile(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := storagemocks.NewMockStore(ctrl)
	store.EXPECT().Exists(gomock.Any(), "content_7.html").Return(true, nil)

	ex := content.NewExtractor(content.Config{Store: store, WaitTimeout: 10 * time.Millisecond})

	got, err := ex.Extract(context.Background(), newNav(`<div></div>`), nil, step("7", domain.StepTypeText))

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "content_7.html", got.Filename)
}

func TestExtract_DocumentDownloadsWithCookies(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := storagemocks.NewMockStore(ctrl)
	fetcher := contentmocks.NewMockFetcher(ctrl)
	cookies := []*http.Cookie{{Name: "PHPSESSID", Value: "abc"}}

	store.EXPECT().Exists(gomock.Any(), "content_8.pdf").Return(false, nil)
	fetcher.EXPECT().
		Fetch(gomock.Any(), "https://cdn.example.com/docs/guide.pdf", cookies).
		Return([]byte("%PDF"), nil)
	store.EXPECT().
		Put(gomock.Any(), "content_8.pdf", gomock.Any(), int64(4), "application/pdf").
		Return(nil)

	ex := content.NewExtractor(content.Config{Store: store, Fetcher: fetcher, WaitTimeout: 50 * time.Millisecond})
	nav := newNav(`<iframe class="pdfrenderer"
		src="/pdfjs/web/viewer.html?file=https%3A%2F%2Fcdn.example.com%2Fdocs%2Fguide.pdf"></iframe>`)

	got, err := ex.Extract(context.Background(), nav, cookies, step("8", domain.StepTypeDocument))

	require.NoError(t, err)
	assert.Equal(t, domain.ContentTypeDocument, got.Type)
}

func TestExtract_VideoStagesThenStores(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	downloader := contentmocks.NewMockVideoDownloader(ctrl)
	downloader.EXPECT().
		Download(gomock.Any(), "https://player.vimeo.com/video/76979871", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, out string) error {
			return os.WriteFile(out, []byte("mp4"), 0o600)
		})

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	workDir := t.TempDir()
	ex := content.NewExtractor(content.Config{
		Store:       store,
		Downloader:  downloader,
		WorkDir:     workDir,
		WaitTimeout: 50 * time.Millisecond,
	})
	nav := newNav(`<iframe src="https://cdn.iframe.ly/api/iframe?url=https%3A%2F%2Fvimeo.com%2F76979871"></iframe>`)

	got, err := ex.Extract(context.Background(), nav, nil, step("9", domain.StepTypeVideo))

	require.NoError(t, err)
	assert.Equal(t, "content_9.mp4", got.Filename)

	exists, err := store.Exists(context.Background(), "content_9.mp4")
	require.NoError(t, err)
	assert.True(t, exists)

	staged, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Empty(t, staged)
}

func TestExtract_DownloaderFailureIsRecoverable(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	downloader := contentmocks.NewMockVideoDownloader(ctrl)
	downloader.EXPECT().Download(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("yt-dlp: exit status 1"))

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ex := content.NewExtractor(content.Config{
		Store:       store,
		Downloader:  downloader,
		WorkDir:     t.TempDir(),
		WaitTimeout: 50 * time.Millisecond,
	})
	nav := newNav(`<iframe src="https://cdn.iframe.ly/api/iframe?url=https%3A%2F%2Fvimeo.com%2F1"></iframe>`)

	got, err := ex.Extract(context.Background(), nav, nil, step("9", domain.StepTypeVideo))

	require.Error(t, err)
	assert.Nil(t, got)
	assert.False(t, domain.IsAbort(err))
	assert.Equal(t, domain.KindContent, domain.KindOf(err))
}

func TestExtract_MissingContainerIsTimeout(t *testing.T) {
	t.Parallel()

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ex := content.NewExtractor(content.Config{Store: store, WaitTimeout: 5 * time.Millisecond})

	_, err = ex.Extract(context.Background(), newNav(`<div></div>`), nil, step("7", domain.StepTypeText))

	require.Error(t, err)
	assert.Equal(t, domain.KindTimeout, domain.KindOf(err))
	assert.True(t, navigator.IsTimeout(err))
}

func TestExtract_TypesWithoutPayload(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	ex := content.NewExtractor(content.Config{Store: storagemocks.NewMockStore(ctrl)})

	for _, st := range []domain.StepType{domain.StepTypeQuiz, domain.StepTypeIframe, domain.StepTypeUnknown} {
		got, err := ex.Extract(context.Background(), newNav(""), nil, step("1", st))
		require.NoError(t, err)
		assert.Nil(t, got)
	}
}

func TestHTTPFetcher(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		switch r.URL.Path {
		case "/flaky.pdf":
			if n == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			c, err := r.Cookie("PHPSESSID")
			if err != nil || c.Value != "abc" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			_, _ = w.Write([]byte("%PDF-1.7"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	f := content.NewHTTPFetcher(time.Second, 3, "")
	cookies := []*http.Cookie{{Name: "PHPSESSID", Value: "abc"}}

	body, err := f.Fetch(context.Background(), srv.URL+"/flaky.pdf", cookies)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(body))
	assert.Equal(t, int32(2), calls.Load())

	calls.Store(0)
	_, err = f.Fetch(context.Background(), srv.URL+"/missing.pdf", cookies)
	require.ErrorIs(t, err, content.ErrHTTPStatus)
	assert.Equal(t, int32(1), calls.Load())
}
