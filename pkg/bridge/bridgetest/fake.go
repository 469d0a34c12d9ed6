// Package bridgetest provides an in-memory Bridge for driving the runtime
// from tests. All notifications are delivered synchronously on the calling
// goroutine.
package bridgetest

import (
	"errors"
	"slices"
	"sync"

	"github.com/entrhq/koala/pkg/bridge"
	"github.com/entrhq/koala/pkg/cookies"
)

// ErrSendFailed is returned by Send when FailSends is set.
var ErrSendFailed = errors.New("bridgetest: send failed")

// Fake implements bridge.Bridge over an in-memory window tree.
type Fake struct {
	mu sync.Mutex

	// Root is the top-level window.
	Root *Window

	// SpawnOnCreate makes CreateFrame raise the spawn notification before it
	// returns, the way an engine does when the frame element is inserted.
	SpawnOnCreate bool

	// FailSends makes Send return ErrSendFailed.
	FailSends bool

	sent      [][]byte
	receivers []func([]byte)

	spawned   []func(bridge.Node, bridge.Handle, bridge.Handle)
	callbacks []func(string, bridge.Handle, []any)
	value     any

	exits      []int
	jar        []cookies.Cookie
	cookieSubs []func([]cookies.Cookie)
	created    []string
}

// New returns a Fake with an empty root window and SpawnOnCreate enabled.
func New() *Fake {
	return &Fake{
		Root:          NewWindow("", "about:blank"),
		SpawnOnCreate: true,
	}
}

// Send records msg.
func (f *Fake) Send(msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailSends {
		return ErrSendFailed
	}
	f.sent = append(f.sent, append([]byte(nil), msg...))
	return nil
}

// OnReceive registers an inbound message handler.
func (f *Fake) OnReceive(fn func([]byte)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receivers = append(f.receivers, fn)
}

// Receive delivers msg to every inbound handler.
func (f *Fake) Receive(msg []byte) {
	f.mu.Lock()
	receivers := slices.Clone(f.receivers)
	f.mu.Unlock()

	for _, fn := range receivers {
		fn(msg)
	}
}

// Sent returns a copy of every message passed to Send.
func (f *Fake) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

// RootWindow returns Root.
func (f *Fake) RootWindow() bridge.Window {
	return f.Root
}

// CreateFrame appends a window named token under Root and, when
// SpawnOnCreate is set, spawns it.
func (f *Fake) CreateFrame(token string) error {
	w := NewWindow(token, "about:blank")
	f.Root.Append(w)

	f.mu.Lock()
	f.created = append(f.created, token)
	spawn := f.SpawnOnCreate
	f.mu.Unlock()

	if spawn {
		f.Spawn(w, nil)
	}
	return nil
}

// Created returns the tokens passed to CreateFrame.
func (f *Fake) Created() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

// OnFrameSpawned registers a spawn handler.
func (f *Fake) OnFrameSpawned(fn func(bridge.Node, bridge.Handle, bridge.Handle)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawned = append(f.spawned, fn)
}

// Spawn raises a spawn notification for w with the given parent window
// (nil for the root).
func (f *Fake) Spawn(w *Window, parent *Window) {
	var parentHandle bridge.Handle
	if parent != nil {
		parentHandle = parent.Handle
	}
	f.SpawnRaw(w.DocumentElement(), w.Handle, parentHandle)
}

// SpawnRaw raises a spawn notification with arbitrary arguments.
func (f *Fake) SpawnRaw(doc bridge.Node, handle bridge.Handle, parent bridge.Handle) {
	f.mu.Lock()
	subs := slices.Clone(f.spawned)
	f.mu.Unlock()

	for _, fn := range subs {
		fn(doc, handle, parent)
	}
}

// OnCallbackRequested registers a callback request handler.
func (f *Fake) OnCallbackRequested(fn func(string, bridge.Handle, []any)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, fn)
}

// SetCallbackValue stores v as the current callback result.
func (f *Fake) SetCallbackValue(v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = v
}

// CallbackValue returns the current callback result.
func (f *Fake) CallbackValue() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// RequestCallback raises a callback request and returns the published value.
func (f *Fake) RequestCallback(name string, handle bridge.Handle, args ...any) any {
	f.mu.Lock()
	subs := slices.Clone(f.callbacks)
	f.mu.Unlock()

	for _, fn := range subs {
		fn(name, handle, args)
	}
	return f.CallbackValue()
}

// RequestExit records code.
func (f *Fake) RequestExit(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exits = append(f.exits, code)
}

// Exits returns every code passed to RequestExit.
func (f *Fake) Exits() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.exits...)
}

// SetCookies replaces the jar and notifies cookie subscribers.
func (f *Fake) SetCookies(list []cookies.Cookie) error {
	f.mu.Lock()
	f.jar = append([]cookies.Cookie(nil), list...)
	f.mu.Unlock()

	f.ChangeCookies(list)
	return nil
}

// Jar returns the current jar content.
func (f *Fake) Jar() []cookies.Cookie {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]cookies.Cookie(nil), f.jar...)
}

// OnCookiesChanged registers a cookie change handler.
func (f *Fake) OnCookiesChanged(fn func([]cookies.Cookie)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cookieSubs = append(f.cookieSubs, fn)
}

// ChangeCookies notifies cookie subscribers with list.
func (f *Fake) ChangeCookies(list []cookies.Cookie) {
	f.mu.Lock()
	subs := slices.Clone(f.cookieSubs)
	f.mu.Unlock()

	for _, fn := range subs {
		fn(list)
	}
}
