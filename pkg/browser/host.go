// Package browser implements the frame source of the runtime on top of
// Playwright.
//
// Every frame created through CreateFrame becomes a page of one shared
// browser context; the page main frame plays the role of the frame element
// and is named by the correlation token it was created for. Frames attached
// inside those pages are reported as their children. Playwright events are
// translated into bridge notifications and posted to the dispatcher, so the
// registries observe them one at a time and in the order they were raised.
//
// Navigation requests are intercepted with a route: blocked addresses are
// aborted, and navigations of known frames are put to the frame's
// "navigate" callback. Dialogs are answered through the alert, confirm and
// prompt callbacks of the page.
package browser

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	"github.com/entrhq/koala/pkg/bridge"
	"github.com/entrhq/koala/pkg/cookies"
	"github.com/entrhq/koala/pkg/frame"
	"github.com/entrhq/koala/pkg/navigation"
)

// DefaultCallbackTimeout bounds how long a navigation or dialog waits for
// its callback to be answered.
const DefaultCallbackTimeout = 30 * time.Second

var (
	_ bridge.Host   = (*Host)(nil)
	_ bridge.Window = (*window)(nil)
	_ bridge.Handle = (*window)(nil)
)

// Dispatcher is the execution context notifications are funneled through.
type Dispatcher interface {
	Post(fn func())
	Do(ctx context.Context, fn func()) error
}

// Host implements bridge.Host over a Playwright browser context.
type Host struct {
	context         playwright.BrowserContext
	loop            Dispatcher
	policy          *navigation.Policy
	exit            func(code int)
	callbackTimeout time.Duration
	log             zerolog.Logger

	root *window

	mu         sync.Mutex
	windows    map[playwright.Frame]*window
	spawned    []func(bridge.Node, bridge.Handle, bridge.Handle)
	callbacks  []func(string, bridge.Handle, []any)
	cookieSubs []func([]cookies.Cookie)
	value      any
	jar        []cookies.Cookie
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithLogger sets the host logger.
func WithLogger(l zerolog.Logger) HostOption {
	return func(h *Host) { h.log = l }
}

// WithPolicy sets the navigation policy applied to every request.
func WithPolicy(p *navigation.Policy) HostOption {
	return func(h *Host) { h.policy = p }
}

// WithExit sets the function RequestExit calls.
func WithExit(fn func(code int)) HostOption {
	return func(h *Host) { h.exit = fn }
}

// WithCallbackTimeout bounds callback round trips.
func WithCallbackTimeout(d time.Duration) HostOption {
	return func(h *Host) {
		if d > 0 {
			h.callbackTimeout = d
		}
	}
}

// NewHost returns a host creating its pages in bctx.
func NewHost(bctx playwright.BrowserContext, loop Dispatcher, opts ...HostOption) *Host {
	h := &Host{
		context:         bctx,
		loop:            loop,
		callbackTimeout: DefaultCallbackTimeout,
		log:             zerolog.Nop(),
		root:            newWindow("root", "about:blank", nil, nil),
		windows:         make(map[playwright.Frame]*window),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RootWindow returns the virtual window holding the main frame of every
// created page.
func (h *Host) RootWindow() bridge.Window {
	return h.root
}

// CreateFrame opens a new page whose main frame is named token.
func (h *Host) CreateFrame(token string) error {
	page, err := h.context.NewPage()
	if err != nil {
		return fmt.Errorf("failed to create page: %w", err)
	}

	el := &pageElement{name: token, page: page, log: h.log}
	w := newWindow(token, page.URL(), h.root, el)
	el.win = w

	if err := page.Route("**/*", func(r playwright.Route) { go h.route(r) }); err != nil {
		_ = page.Close()
		return fmt.Errorf("failed to route page requests: %w", err)
	}

	h.adopt(page.MainFrame(), w)
	h.watch(page, w)
	return nil
}

// adopt makes w a top-level window mirroring f and announces it.
func (h *Host) adopt(f playwright.Frame, w *window) {
	h.register(f, w)
	h.root.addChild(w)
	h.loop.Post(func() { h.notifySpawn(w, nil) })
}

func (h *Host) watch(page playwright.Page, main *window) {
	page.OnFrameAttached(h.attached)
	page.OnFrameDetached(h.detached)
	page.OnFrameNavigated(h.navigated)
	page.OnDialog(func(d playwright.Dialog) { go h.dialog(main, d) })
	page.OnConsole(func(m playwright.ConsoleMessage) {
		h.log.Debug().Str("frame", main.id).Str("type", m.Type()).Msg(m.Text())
	})
	page.OnClose(func(playwright.Page) { h.closed(main) })
}

func (h *Host) register(f playwright.Frame, w *window) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.windows[f] = w
}

func (h *Host) lookup(f playwright.Frame) *window {
	if f == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.windows[f]
}

func (h *Host) forget(targets ...*window) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for f, w := range h.windows {
		for _, t := range targets {
			if w == t {
				delete(h.windows, f)
				break
			}
		}
	}
}

func (h *Host) attached(f playwright.Frame) {
	parent := h.lookup(f.ParentFrame())
	if parent == nil {
		h.log.Debug().Str("url", f.URL()).Msg("ignoring frame with unknown parent")
		return
	}

	el := &iframeElement{frame: f, log: h.log}
	w := newWindow(uuid.NewString(), f.URL(), parent, el)
	el.win = w

	h.register(f, w)
	parent.addChild(w)
	h.loop.Post(func() { h.notifySpawn(w, parent) })
}

func (h *Host) detached(f playwright.Frame) {
	w := h.lookup(f)
	if w == nil {
		return
	}
	h.forget(w)
	if w.parent != nil {
		w.parent.removeChild(w)
	}
	h.loop.Post(func() { w.fire(sigDestroyed) })
}

func (h *Host) closed(main *window) {
	gone := append(main.descendants(), main)
	h.forget(gone...)
	h.root.removeChild(main)

	h.loop.Post(func() {
		for _, w := range gone {
			w.fire(sigDestroyed)
		}
	})
}

func (h *Host) navigated(f playwright.Frame) {
	w := h.lookup(f)
	if w == nil {
		return
	}
	if !w.navigated(f.URL()) {
		h.log.Debug().Str("url", f.URL()).Msg("same-document navigation")
		return
	}
	h.loop.Post(func() { w.fire(sigCleared) })

	go h.awaitLoad(w, f)
}

func (h *Host) awaitLoad(w *window, f playwright.Frame) {
	err := f.WaitForLoadState(playwright.FrameWaitForLoadStateOptions{
		State: playwright.LoadStateDomcontentloaded,
	})
	if err != nil {
		return
	}
	h.loop.Post(func() { w.fire(sigLayout) })

	err = f.WaitForLoadState(playwright.FrameWaitForLoadStateOptions{
		State: playwright.LoadStateLoad,
	})
	if err != nil {
		return
	}
	h.loop.Post(func() { w.fire(sigLoadFinished) })

	h.syncCookies()
}

func (h *Host) route(r playwright.Route) {
	req := r.Request()
	address := req.URL()

	if h.policy != nil && h.policy.Blocked(address) {
		_ = r.Abort()
		return
	}
	if !req.IsNavigationRequest() {
		_ = r.Continue()
		return
	}

	w := h.lookup(req.Frame())
	if w == nil {
		_ = r.Continue()
		return
	}

	nav := navigation.Request{
		URL:        address,
		Method:     req.Method(),
		CurrentURL: w.url(),
		Requested:  w.loading(),
	}
	result := h.request(frame.CallbackNavigate, w, address, string(nav.Reason()))
	if !navigation.Accepts(result) {
		if h.policy != nil {
			h.policy.Refused(address)
		}
		_ = r.Abort()
		return
	}

	h.loop.Post(func() { w.fire(sigLoadStarted) })
	_ = r.Continue()
}

func (h *Host) dialog(main *window, d playwright.Dialog) {
	var err error
	switch d.Type() {
	case "alert":
		h.request(frame.CallbackAlert, main, d.Message())
		err = d.Accept()
	case "confirm":
		if navigation.Confirms(h.request(frame.CallbackConfirm, main, d.Message())) {
			err = d.Accept()
		} else {
			err = d.Dismiss()
		}
	case "prompt":
		if text, ok := navigation.PromptText(h.request(frame.CallbackPrompt, main, d.Message(), d.DefaultValue())); ok {
			err = d.Accept(text)
		} else {
			err = d.Dismiss()
		}
	default:
		err = d.Accept()
	}
	if err != nil {
		h.log.Debug().Err(err).Str("type", d.Type()).Msg("failed to answer dialog")
	}
}

// request runs a named callback on the loop and returns its published
// value, or nil when nobody answered in time.
func (h *Host) request(name string, w *window, args ...any) any {
	ctx, cancel := context.WithTimeout(context.Background(), h.callbackTimeout)
	defer cancel()

	var result any
	err := h.loop.Do(ctx, func() {
		h.notifyCallback(name, w, args)
		result = h.callbackValue()
	})
	if err != nil {
		h.log.Debug().Err(err).Str("callback", name).Msg("callback not answered")
		return nil
	}
	return result
}

func (h *Host) notifySpawn(w, parent *window) {
	var parentHandle bridge.Handle
	if parent != nil {
		parentHandle = parent
	}

	h.mu.Lock()
	subs := slices.Clone(h.spawned)
	h.mu.Unlock()

	for _, fn := range subs {
		fn(w.documentNode(), w, parentHandle)
	}
}

func (h *Host) notifyCallback(name string, w *window, args []any) {
	h.mu.Lock()
	subs := slices.Clone(h.callbacks)
	h.mu.Unlock()

	for _, fn := range subs {
		fn(name, w, args)
	}
}

// OnFrameSpawned registers a spawn handler.
func (h *Host) OnFrameSpawned(fn func(doc bridge.Node, handle bridge.Handle, parent bridge.Handle)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.spawned = append(h.spawned, fn)
}

// OnCallbackRequested registers a callback request handler.
func (h *Host) OnCallbackRequested(fn func(name string, handle bridge.Handle, args []any)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callbacks = append(h.callbacks, fn)
}

// SetCallbackValue publishes the result of the running callback.
func (h *Host) SetCallbackValue(v any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.value = v
}

func (h *Host) callbackValue() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value
}

// RequestExit hands code to the exit function.
func (h *Host) RequestExit(code int) {
	if h.exit == nil {
		h.log.Warn().Int("code", code).Msg("exit requested without an exit handler")
		return
	}
	h.exit(code)
}

// SetCookies replaces the content of the context jar.
func (h *Host) SetCookies(list []cookies.Cookie) error {
	if err := h.context.ClearCookies(); err != nil {
		return fmt.Errorf("failed to clear cookies: %w", err)
	}

	converted, skipped := toPlaywright(list)
	if skipped > 0 {
		h.log.Warn().Int("skipped", skipped).Msg("ignoring cookies without a domain")
	}
	if len(converted) > 0 {
		if err := h.context.AddCookies(converted); err != nil {
			return fmt.Errorf("failed to add cookies: %w", err)
		}
	}

	h.syncCookies()
	return nil
}

// OnCookiesChanged registers fn for jar updates. Playwright has no change
// event, so the jar is compared after every completed load and every
// SetCookies.
func (h *Host) OnCookiesChanged(fn func(list []cookies.Cookie)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cookieSubs = append(h.cookieSubs, fn)
}

func (h *Host) syncCookies() {
	list, err := h.context.Cookies()
	if err != nil {
		h.log.Debug().Err(err).Msg("failed to read cookies")
		return
	}
	jar := fromPlaywright(list)

	h.mu.Lock()
	if sameJar(h.jar, jar) {
		h.mu.Unlock()
		return
	}
	h.jar = jar
	subs := slices.Clone(h.cookieSubs)
	h.mu.Unlock()

	h.loop.Post(func() {
		for _, fn := range subs {
			fn(jar)
		}
	})
}
