// Package screenshot renders HTML workspaces to PNG images with headless
// Chrome. It is the screenshot collaborator for the run loop: capture
// failures propagate and the loop surfaces them as error events.
package screenshot

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/martinemde/vibeloop/engine"
)

// DefaultTimeout bounds one capture, launch included. A hung renderer must
// not stall the loop longer than this.
const DefaultTimeout = 30 * time.Second

// Chrome captures screenshots through a headless Chrome instance launched
// per capture.
type Chrome struct {
	// Timeout bounds one capture; zero selects DefaultTimeout.
	Timeout time.Duration
}

// NewChrome creates a Chrome capturer with the default timeout.
func NewChrome() *Chrome {
	return &Chrome{Timeout: DefaultTimeout}
}

// Capture navigates to the HTML file, emulates the viewport, and writes a
// PNG screenshot to outPath, creating parent directories as needed.
func (c *Chrome) Capture(ctx context.Context, htmlPath, outPath string, viewport engine.Viewport) error {
	abs, err := filepath.Abs(htmlPath)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", htmlPath, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("workspace entry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create screenshot dir: %w", err)
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	fileURL := url.URL{Scheme: "file", Path: abs}

	var png []byte
	err = chromedp.Run(browserCtx,
		chromedp.EmulateViewport(int64(viewport.Width), int64(viewport.Height)),
		chromedp.Navigate(fileURL.String()),
		chromedp.CaptureScreenshot(&png),
	)
	if err != nil {
		return fmt.Errorf("capture %s: %w", htmlPath, err)
	}

	if err := os.WriteFile(outPath, png, 0o644); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	return nil
}
