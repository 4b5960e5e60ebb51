package report

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Renderer converts an HTML document to PDF.
type Renderer interface {
	PDF(ctx context.Context, html []byte) ([]byte, error)
}

// ChromeRenderer prints through a headless Chromium driven by rod. The
// browser is launched on first use and reused.
type ChromeRenderer struct {
	bin        string
	controlURL string

	mu       sync.Mutex
	launcher cleaner
	browser  *rod.Browser
}

// cleaner is the part of *launcher.Launcher that stops the process.
type cleaner interface {
	Cleanup()
}

// NewChromeRenderer uses bin as the browser binary; empty lets rod find or
// download one. controlURL, when set, connects to a running browser instead.
func NewChromeRenderer(bin, controlURL string) *ChromeRenderer {
	return &ChromeRenderer{bin: bin, controlURL: controlURL}
}

func (c *ChromeRenderer) connect() (*rod.Browser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser != nil {
		if _, err := c.browser.Version(); err == nil {
			return c.browser, nil
		}
	}
	c.shutdownLocked()

	u := c.controlURL
	if u == "" {
		l := launcher.New().Headless(true)
		if c.bin != "" {
			l = l.Bin(c.bin)
		}
		launched, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		c.launcher = l
		u = launched
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		c.shutdownLocked()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	c.browser = b
	return b, nil
}

func (c *ChromeRenderer) PDF(ctx context.Context, html []byte) ([]byte, error) {
	browser, err := c.connect()
	if err != nil {
		return nil, err
	}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	if err := page.SetDocumentContent(string(html)); err != nil {
		return nil, fmt.Errorf("set document: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}

	stream, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground: true,
		PaperWidth:      ptr(8.27), // A4, inches
		PaperHeight:     ptr(11.69),
		MarginTop:       ptr(0.4),
		MarginBottom:    ptr(0.4),
		MarginLeft:      ptr(0.4),
		MarginRight:     ptr(0.4),
	})
	if err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}
	out, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("read pdf stream: %w", err)
	}
	return out, nil
}

// Close shuts the browser down.
func (c *ChromeRenderer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shutdownLocked()
}

// shutdownLocked closes the browser and stops the process this renderer
// launched, if any.
func (c *ChromeRenderer) shutdownLocked() error {
	var err error
	if c.browser != nil {
		err = c.browser.Close()
		c.browser = nil
	}
	if c.launcher != nil {
		c.launcher.Cleanup()
		c.launcher = nil
	}
	return err
}

func ptr[T any](v T) *T { return &v }
