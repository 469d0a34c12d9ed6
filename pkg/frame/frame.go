package frame

import (
	"github.com/entrhq/koala/pkg/bridge"
	"github.com/entrhq/koala/pkg/emitter"
)

// Events emitted on a Frame.
const (
	EventLoading   = "loading"   // navigation started
	EventLoaded    = "loaded"    // navigation finished
	EventLayout    = "layout"    // initial layout completed
	EventCleared   = "cleared"   // script context reset
	EventChild     = "child"     // a child frame was spawned; arg: *Frame
	EventDestroyed = "destroyed" // frame removed by the host
)

// Well-known callback names requested by the host.
const (
	CallbackNavigate = "navigate" // args: url, reason; bool result accepts
	CallbackAlert    = "alert"    // args: message
	CallbackConfirm  = "confirm"  // args: message; bool result
	CallbackPrompt   = "prompt"   // args: message, default; string result
)

// State is the lifecycle position of a Frame.
type State int

const (
	// StatePending frames were requested with Create and are waiting for
	// the host's spawn notification.
	StatePending State = iota
	StateAlive
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAlive:
		return "alive"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// InterceptFunc handles a named callback requested by the host for a frame.
// Its return value is handed back to the host.
type InterceptFunc func(f *Frame, args ...any) any

// Frame is one rendering context of the host document tree.
//
// A destroyed Frame stays valid for anyone holding it: it keeps its
// intercepts and listeners but has no parent, no children and no live
// element, window or document.
type Frame struct {
	*emitter.Emitter

	reg   *Registry
	token string
	ready chan struct{}

	// guarded by reg.mu
	state      State
	slot       int
	gen        uint64
	handle     bridge.Handle
	parent     *Frame
	children   []*Frame
	ref        bridge.Window
	element    bridge.Element
	window     bridge.Window
	document   bridge.Document
	intercepts map[string]InterceptFunc

	pendingURL    string
	hasPendingURL bool
	width, height int
	sized         bool
}

func newFrame(reg *Registry, token string) *Frame {
	return &Frame{
		Emitter: emitter.New(),
		reg:     reg,
		token:   token,
		ready:   make(chan struct{}),
		slot:    -1,
	}
}

// Token returns the correlation token of a frame created with Create, or an
// empty string for frames spawned by page content.
func (f *Frame) Token() string {
	return f.token
}

// Ready is closed once the host has spawned the frame.
func (f *Frame) Ready() <-chan struct{} {
	return f.ready
}

// State returns the lifecycle state.
func (f *Frame) State() State {
	f.reg.mu.Lock()
	defer f.reg.mu.Unlock()
	return f.state
}

// Alive reports whether the frame is spawned and not destroyed.
func (f *Frame) Alive() bool {
	return f.State() == StateAlive
}

// Handle returns the native handle, or nil when the frame is not alive.
func (f *Frame) Handle() bridge.Handle {
	f.reg.mu.Lock()
	defer f.reg.mu.Unlock()
	return f.handle
}

// Parent returns the parent frame, or nil for top-level and destroyed frames.
func (f *Frame) Parent() *Frame {
	f.reg.mu.Lock()
	defer f.reg.mu.Unlock()
	return f.parent
}

// Children returns a copy of the child list.
func (f *Frame) Children() []*Frame {
	f.reg.mu.Lock()
	defer f.reg.mu.Unlock()
	return append([]*Frame{}, f.children...)
}

// Element returns the hosting frame element while alive.
func (f *Frame) Element() bridge.Element {
	f.reg.mu.Lock()
	defer f.reg.mu.Unlock()
	return f.element
}

// Window returns the live window while alive.
func (f *Frame) Window() bridge.Window {
	f.reg.mu.Lock()
	defer f.reg.mu.Unlock()
	return f.window
}

// Document returns the current document while alive.
func (f *Frame) Document() bridge.Document {
	f.reg.mu.Lock()
	defer f.reg.mu.Unlock()
	return f.document
}

// URL returns the address of the current document, or "" when not alive.
func (f *Frame) URL() string {
	doc := f.Document()
	if doc == nil {
		return ""
	}
	return doc.URL()
}

// Go navigates the frame to url. It is a no-op on a destroyed frame; on a
// pending frame the navigation happens as soon as the frame is spawned.
func (f *Frame) Go(url string) {
	f.reg.mu.Lock()
	switch f.state {
	case StateDestroyed:
		f.reg.mu.Unlock()
		return
	case StatePending:
		f.pendingURL, f.hasPendingURL = url, true
		f.reg.mu.Unlock()
		return
	}
	el := f.element
	f.reg.mu.Unlock()

	if el != nil {
		el.SetSource(url)
	}
}

// SetSize sets the dimensions of the hosting element.
func (f *Frame) SetSize(width, height int) {
	f.reg.mu.Lock()
	f.width, f.height, f.sized = width, height, true
	var el bridge.Element
	if f.state == StateAlive {
		el = f.element
	}
	f.reg.mu.Unlock()

	if el != nil {
		el.SetSize(width, height)
	}
}

// Size returns the element dimensions while alive, otherwise the last
// requested size.
func (f *Frame) Size() (width, height int) {
	f.reg.mu.Lock()
	el := f.element
	w, h := f.width, f.height
	f.reg.mu.Unlock()

	if el != nil {
		return el.Size()
	}
	return w, h
}

// Intercept registers fn as the handler for callbacks named name requested
// for this frame, replacing any previous handler. A nil fn removes it.
func (f *Frame) Intercept(name string, fn InterceptFunc) {
	f.reg.mu.Lock()
	defer f.reg.mu.Unlock()

	if fn == nil {
		delete(f.intercepts, name)
		return
	}
	if f.intercepts == nil {
		f.intercepts = make(map[string]InterceptFunc)
	}
	f.intercepts[name] = fn
}

func (f *Frame) interceptFor(name string) InterceptFunc {
	f.reg.mu.Lock()
	defer f.reg.mu.Unlock()
	return f.intercepts[name]
}
