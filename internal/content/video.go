package content

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// maxToolOutput bounds the downloader output quoted in errors.
const maxToolOutput = 512

// VideoDownloader saves the video at url to outputPath.
type VideoDownloader interface {
	Download(ctx context.Context, url, outputPath string) error
}

// YtDlp runs the yt-dlp command line tool.
type YtDlp struct {
	path    string
	timeout time.Duration
}

// NewYtDlp returns a downloader invoking the binary at path.
func NewYtDlp(path string, timeout time.Duration) *YtDlp {
	return &YtDlp{path: path, timeout: timeout}
}

// Download implements VideoDownloader.
func (y *YtDlp) Download(ctx context.Context, url, outputPath string) error {
	if y.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, y.timeout)
		defer cancel()
	}

	//nolint:gosec // binary path comes from configuration
	cmd := exec.CommandContext(ctx, y.path,
		"--no-progress",
		"--no-playlist",
		"--force-overwrites",
		"-o", outputPath,
		url,
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("yt-dlp %s: %w: %s", url, err, tail(out.String(), maxToolOutput))
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
