package extractor

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Content selectors on a step page.
const (
	TextRenderSelector  = "#textRender"
	PDFRendererSelector = "iframe.pdfrenderer"
	IframeSelector      = "iframe"
	VideoEmbedMarker    = "iframe.ly"
)

const (
	fileParam       = "file="
	vimeoHost       = "vimeo.com/"
	vimeoPlayerBase = "https://player.vimeo.com/video/"
)

// TextContent returns the inner markup of the rich-text container.
func TextContent(doc *goquery.Document) (string, error) {
	sel := doc.Find(TextRenderSelector).First()
	if sel.Length() == 0 {
		return "", fieldError("content", "text", ErrMissingField)
	}
	html, err := sel.Html()
	if err != nil {
		return "", fmt.Errorf("render text content: %w", err)
	}
	return html, nil
}

// DocumentSource returns the decoded document URL carried by the PDF viewer iframe.
func DocumentSource(doc *goquery.Document) (string, error) {
	src, ok := doc.Find(PDFRendererSelector).First().Attr("src")
	if !ok {
		return "", fieldError("content", "document", ErrMissingField)
	}
	return DocumentURL(src)
}

// DocumentURL extracts and unescapes the file= value of a viewer URL.
func DocumentURL(viewerSrc string) (string, error) {
	_, encoded, ok := strings.Cut(viewerSrc, fileParam)
	if !ok || encoded == "" {
		return "", fieldError("content", "document", fmt.Errorf("%w: no file parameter in %q", ErrMissingField, viewerSrc))
	}
	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		return "", fieldError("content", "document", fmt.Errorf("%w: %w", ErrMalformedValue, err))
	}
	return decoded, nil
}

// VideoSource returns the player URL of the first embedded video iframe.
func VideoSource(doc *goquery.Document) (string, error) {
	var src string
	doc.Find(IframeSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, ok := s.Attr("src"); ok && strings.Contains(v, VideoEmbedMarker) {
			src = v
			return false
		}
		return true
	})
	if src == "" {
		return "", fieldError("content", "video", ErrMissingField)
	}
	return VideoPlayerURL(src)
}

// VideoPlayerURL resolves an embed URL to the canonical Vimeo player URL
// using the origin URL carried in its url query parameter.
func VideoPlayerURL(embedSrc string) (string, error) {
	u, err := url.Parse(embedSrc)
	if err != nil {
		return "", fieldError("content", "video", fmt.Errorf("%w: %w", ErrMalformedValue, err))
	}

	origin := u.Query().Get("url")
	if origin == "" {
		return "", fieldError("content", "video", fmt.Errorf("%w: no url parameter in %q", ErrMissingField, embedSrc))
	}

	// The origin may arrive encoded twice.
	if decoded, err := url.QueryUnescape(origin); err == nil {
		origin = decoded
	}

	idx := strings.LastIndex(origin, vimeoHost)
	if idx < 0 {
		return "", fieldError("content", "video", fmt.Errorf("%w: no video id in %q", ErrMalformedValue, origin))
	}
	videoID := strings.Trim(origin[idx+len(vimeoHost):], "/")
	if videoID == "" {
		return "", fieldError("content", "video", fmt.Errorf("%w: no video id in %q", ErrMalformedValue, origin))
	}
	return vimeoPlayerBase + videoID, nil
}
