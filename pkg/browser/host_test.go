package browser

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/koala/pkg/frame"
	"github.com/entrhq/koala/pkg/navigation"
	"github.com/entrhq/koala/pkg/scheduler"
)

// The fakes embed the playwright interfaces and override only what the
// host calls; anything else panics on the nil embedded value.

type fakeFrame struct {
	playwright.Frame
	name   string
	url    string
	parent playwright.Frame
}

func (f *fakeFrame) Name() string                  { return f.name }
func (f *fakeFrame) URL() string                   { return f.url }
func (f *fakeFrame) ParentFrame() playwright.Frame { return f.parent }

func (f *fakeFrame) WaitForLoadState(...playwright.FrameWaitForLoadStateOptions) error {
	return errors.New("not loading")
}

type fakeRequest struct {
	playwright.Request
	url        string
	method     string
	navigation bool
	frame      playwright.Frame
}

func (r *fakeRequest) URL() string               { return r.url }
func (r *fakeRequest) Method() string            { return r.method }
func (r *fakeRequest) IsNavigationRequest() bool { return r.navigation }
func (r *fakeRequest) Frame() playwright.Frame   { return r.frame }

type fakeRoute struct {
	playwright.Route
	req *fakeRequest

	mu      sync.Mutex
	outcome string
}

func (r *fakeRoute) Request() playwright.Request { return r.req }

func (r *fakeRoute) Abort(...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcome = "abort"
	return nil
}

func (r *fakeRoute) Continue(...playwright.RouteContinueOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcome = "continue"
	return nil
}

type fakeDialog struct {
	playwright.Dialog
	kind, message, def string

	accepted  bool
	dismissed bool
	text      []string
}

func (d *fakeDialog) Type() string         { return d.kind }
func (d *fakeDialog) Message() string      { return d.message }
func (d *fakeDialog) DefaultValue() string { return d.def }

func (d *fakeDialog) Accept(text ...string) error {
	d.accepted, d.text = true, text
	return nil
}

func (d *fakeDialog) Dismiss() error {
	d.dismissed = true
	return nil
}

type harness struct {
	host   *Host
	loop   *scheduler.Loop
	frames *frame.Registry
	top    *fakeFrame
	topWin *window
}

func newHarness(t *testing.T, opts ...HostOption) *harness {
	t.Helper()

	loop := scheduler.New()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = loop.Run(ctx) }()
	t.Cleanup(cancel)

	host := NewHost(nil, loop, opts...)
	h := &harness{
		host:   host,
		loop:   loop,
		frames: frame.NewRegistry(host),
		top:    &fakeFrame{url: "about:blank"},
	}

	h.topWin = newWindow("top", "about:blank", host.root, &pageElement{name: "top"})
	host.adopt(h.top, h.topWin)
	h.settle(t)
	return h
}

// settle waits until every task posted so far has run.
func (h *harness) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.loop.Do(ctx, func() {}))
}

// on runs fn on the loop and waits for it.
func (h *harness) on(t *testing.T, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.loop.Do(ctx, fn))
}

func TestAdoptedPageIsRegisteredAsTopLevelFrame(t *testing.T) {
	h := newHarness(t)

	var f *frame.Frame
	h.on(t, func() { f = h.frames.Lookup(h.topWin) })
	require.NotNil(t, f)
	assert.Nil(t, f.Parent())
	assert.Equal(t, "about:blank", f.URL())
}

func TestAttachedFrameBecomesChild(t *testing.T) {
	h := newHarness(t)

	child := &fakeFrame{name: "inner", url: "https://inner/", parent: h.top}
	h.host.attached(child)
	h.settle(t)

	var top, sub *frame.Frame
	h.on(t, func() {
		top = h.frames.Lookup(h.topWin)
		sub = h.frames.Lookup(h.host.lookup(child))
	})
	require.NotNil(t, sub)
	assert.Same(t, top, sub.Parent())
	assert.Equal(t, "https://inner/", sub.URL())
	assert.Equal(t, "inner", sub.Element().Name())

	h.host.detached(child)
	h.settle(t)

	assert.Equal(t, frame.StateDestroyed, sub.State())
	assert.Nil(t, h.host.lookup(child))
	assert.Empty(t, h.topWin.Frames())
}

func TestAttachedFrameWithUnknownParentIsIgnored(t *testing.T) {
	h := newHarness(t)

	h.host.attached(&fakeFrame{url: "https://x/", parent: &fakeFrame{}})
	h.settle(t)

	var n int
	h.on(t, func() { n = h.frames.Len() })
	assert.Equal(t, 1, n)
}

func TestNavigatedStartsNewDocumentAndClears(t *testing.T) {
	h := newHarness(t)

	var f *frame.Frame
	var cleared int
	h.on(t, func() {
		f = h.frames.Lookup(h.topWin)
		f.On(frame.EventCleared, func(...any) { cleared++ })
	})

	h.top.url = "https://next/"
	h.host.navigated(h.top)
	h.settle(t)

	h.on(t, func() {
		assert.Equal(t, 1, cleared)
		assert.Equal(t, "https://next/", f.URL())
	})
}

func TestFragmentNavigationKeepsDocument(t *testing.T) {
	h := newHarness(t)

	h.top.url = "https://next/"
	h.host.navigated(h.top)
	h.settle(t)

	var f *frame.Frame
	var cleared int
	h.on(t, func() {
		f = h.frames.Lookup(h.topWin)
		f.On(frame.EventCleared, func(...any) { cleared++ })
	})
	doc := h.topWin.Document()

	h.top.url = "https://next/#a"
	h.host.navigated(h.top)
	h.settle(t)

	h.on(t, func() {
		assert.Equal(t, 0, cleared)
		assert.Equal(t, "https://next/#a", f.URL())
	})
	assert.Same(t, doc, h.topWin.Document())

	h.top.url = "https://next/#a"
	h.host.navigated(h.top)
	h.settle(t)

	h.on(t, func() { assert.Equal(t, 1, cleared) })
	assert.NotSame(t, doc, h.topWin.Document())
}

func TestFragmentOnly(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{"https://a/", "https://a/#x", true},
		{"https://a/#x", "https://a/#y", true},
		{"https://a/#x", "https://a/", false},
		{"https://a/#x", "https://a/#x", false},
		{"https://a/", "https://a/", false},
		{"https://a/", "https://b/#x", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, fragmentOnly(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestClosedPageDestroysSubtree(t *testing.T) {
	h := newHarness(t)

	child := &fakeFrame{url: "https://inner/", parent: h.top}
	h.host.attached(child)
	h.settle(t)

	var top, sub *frame.Frame
	h.on(t, func() {
		top = h.frames.Lookup(h.topWin)
		sub = h.frames.Lookup(h.host.lookup(child))
	})

	h.host.closed(h.topWin)
	h.settle(t)

	assert.Equal(t, frame.StateDestroyed, top.State())
	assert.Equal(t, frame.StateDestroyed, sub.State())
	assert.Empty(t, h.host.root.Frames())
}

func TestRouteAppliesPolicyAndNavigateCallback(t *testing.T) {
	policy, err := navigation.NewPolicy(nil)
	require.NoError(t, err)
	h := newHarness(t, WithPolicy(policy))

	var reasons []any
	var loading int
	h.on(t, func() {
		f := h.frames.Lookup(h.topWin)
		f.On(frame.EventLoading, func(...any) { loading++ })
		f.Intercept(frame.CallbackNavigate, func(_ *frame.Frame, args ...any) any {
			reasons = append(reasons, args[1])
			return args[0] != "https://refused/"
		})
	})

	route := func(url string, nav bool) string {
		r := &fakeRoute{req: &fakeRequest{url: url, method: "GET", navigation: nav, frame: h.top}}
		h.host.route(r)
		h.settle(t)
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.outcome
	}

	assert.Equal(t, "abort", route("file:///etc/passwd", true))
	assert.Equal(t, "continue", route("https://cdn/script.js", false))
	assert.Equal(t, "abort", route("https://refused/", true))
	assert.Equal(t, "continue", route("https://ok/", true))

	h.on(t, func() {
		assert.Equal(t, []any{"link", "link"}, reasons)
		assert.Equal(t, 1, loading)
	})
}

func TestRequestedLoadReportsOtherReason(t *testing.T) {
	h := newHarness(t)

	var reason any
	h.on(t, func() {
		h.frames.Lookup(h.topWin).Intercept(frame.CallbackNavigate, func(_ *frame.Frame, args ...any) any {
			reason = args[1]
			return nil
		})
	})

	h.topWin.expect()
	h.host.route(&fakeRoute{req: &fakeRequest{url: "https://a/", method: "GET", navigation: true, frame: h.top}})

	h.on(t, func() { assert.Equal(t, "other", reason) })
}

func TestDialogsUseCallbacks(t *testing.T) {
	h := newHarness(t)

	h.on(t, func() {
		f := h.frames.Lookup(h.topWin)
		f.Intercept(frame.CallbackConfirm, func(*frame.Frame, ...any) any { return true })
		f.Intercept(frame.CallbackPrompt, func(_ *frame.Frame, args ...any) any {
			return args[0].(string) + "!"
		})
	})

	confirm := &fakeDialog{kind: "confirm", message: "sure?"}
	h.host.dialog(h.topWin, confirm)
	assert.True(t, confirm.accepted)

	prompt := &fakeDialog{kind: "prompt", message: "name", def: "bob"}
	h.host.dialog(h.topWin, prompt)
	assert.True(t, prompt.accepted)
	assert.Equal(t, []string{"name!"}, prompt.text)

	alert := &fakeDialog{kind: "alert", message: "hi"}
	h.host.dialog(h.topWin, alert)
	assert.True(t, alert.accepted)
}

func TestUnansweredDialogsAreDeclined(t *testing.T) {
	h := newHarness(t)

	confirm := &fakeDialog{kind: "confirm", message: "sure?"}
	h.host.dialog(h.topWin, confirm)
	assert.True(t, confirm.dismissed)

	prompt := &fakeDialog{kind: "prompt", message: "name"}
	h.host.dialog(h.topWin, prompt)
	assert.True(t, prompt.dismissed)
}

func TestRequestExit(t *testing.T) {
	var codes []int
	h := newHarness(t, WithExit(func(code int) { codes = append(codes, code) }))

	h.host.RequestExit(4)
	assert.Equal(t, []int{4}, codes)
}
