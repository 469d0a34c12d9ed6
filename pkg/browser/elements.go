package browser

import (
	"sync"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"
)

// size is the stored dimensions of an element.
type size struct {
	mu            sync.Mutex
	width, height int
}

func (s *size) set(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height = width, height
}

func (s *size) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// pageElement hosts the main frame of a page created by CreateFrame. Its
// name is the correlation token the page was created for.
type pageElement struct {
	size
	name string
	page playwright.Page
	win  *window
	log  zerolog.Logger
}

func (e *pageElement) Name() string { return e.name }

// SetSource loads url in the page. Navigation runs on its own goroutine:
// the request it starts is routed back through the loop that called us.
func (e *pageElement) SetSource(url string) {
	e.win.expect()
	go func() {
		if _, err := e.page.Goto(url); err != nil {
			e.log.Debug().Err(err).Str("url", url).Msg("page navigation failed")
		}
	}()
}

// SetSize resizes the page viewport.
func (e *pageElement) SetSize(width, height int) {
	e.set(width, height)
	if err := e.page.SetViewportSize(width, height); err != nil {
		e.log.Warn().Err(err).Int("width", width).Int("height", height).Msg("failed to resize viewport")
	}
}

// iframeElement hosts a nested frame.
type iframeElement struct {
	size
	frame playwright.Frame
	win   *window
	log   zerolog.Logger
}

func (e *iframeElement) Name() string { return e.frame.Name() }

func (e *iframeElement) SetSource(url string) {
	e.win.expect()
	go func() {
		if _, err := e.frame.Goto(url); err != nil {
			e.log.Debug().Err(err).Str("url", url).Msg("frame navigation failed")
		}
	}()
}

// SetSize sets the width and height attributes of the iframe element.
func (e *iframeElement) SetSize(width, height int) {
	e.set(width, height)
	go func() {
		handle, err := e.frame.FrameElement()
		if err != nil {
			e.log.Debug().Err(err).Msg("frame element unavailable")
			return
		}
		_, err = handle.Evaluate("(el, [w, h]) => { el.width = w; el.height = h; }", []int{width, height})
		if err != nil {
			e.log.Debug().Err(err).Msg("failed to resize frame element")
		}
	}()
}
