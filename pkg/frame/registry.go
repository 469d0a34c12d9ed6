// Package frame tracks the tree of frames owned by the host and relays their
// lifecycle to application code.
//
// The host only reports frames through fire-and-forget notifications: a
// spawn carrying the new document's root node and native handle, per-handle
// load/layout/cleared/destroyed signals, and named callback requests. The
// Registry turns those into Frame objects linked into a parent/child tree.
//
// Registered frames live in an arena of slots indexed by native handle.
// Destroying a frame tombstones its slot and bumps the slot generation, so a
// handle that outlived its frame never resolves to whatever reuses the slot.
package frame

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/entrhq/koala/pkg/bridge"
	"github.com/entrhq/koala/pkg/metrics"
)

type slot struct {
	frame  *Frame
	handle bridge.Handle
	gen    uint64
}

type slotRef struct {
	index int
	gen   uint64
}

// Registry owns the frame arena and handles host notifications.
type Registry struct {
	mu      sync.Mutex
	host    bridge.Host
	slots   []slot
	index   map[bridge.Handle]slotRef
	free    []int
	pending map[string]*Frame
	log     zerolog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// CreateOptions configures a frame requested with Create.
type CreateOptions struct {
	Width  int
	Height int
}

// NewRegistry creates a registry and subscribes it to the host's spawn and
// callback notifications.
func NewRegistry(host bridge.Host, opts ...Option) *Registry {
	r := &Registry{
		host:    host,
		index:   make(map[bridge.Handle]slotRef),
		pending: make(map[string]*Frame),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	host.OnFrameSpawned(r.spawn)
	host.OnCallbackRequested(r.callback)
	return r
}

// Create asks the host for a new top-level frame and returns it immediately.
// The frame is pending until the spawn notification carrying its token
// arrives; Go and SetSize calls made in the meantime are applied then. A
// non-empty url is navigated to once the frame is spawned.
func (r *Registry) Create(url string, opts *CreateOptions) (*Frame, error) {
	f := newFrame(r, uuid.NewString())
	if opts != nil && opts.Width > 0 && opts.Height > 0 {
		f.width, f.height, f.sized = opts.Width, opts.Height, true
	}
	if url != "" {
		f.pendingURL, f.hasPendingURL = url, true
	}

	r.mu.Lock()
	r.pending[f.token] = f
	r.mu.Unlock()

	if err := r.host.CreateFrame(f.token); err != nil {
		r.mu.Lock()
		delete(r.pending, f.token)
		r.mu.Unlock()
		return nil, fmt.Errorf("failed to create frame: %w", err)
	}
	return f, nil
}

// Lookup returns the live frame registered for handle, or nil.
func (r *Registry) Lookup(handle bridge.Handle) *Frame {
	if handle == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookupLocked(handle)
}

func (r *Registry) lookupLocked(handle bridge.Handle) *Frame {
	ref, ok := r.index[handle]
	if !ok {
		return nil
	}
	s := r.slots[ref.index]
	if s.gen != ref.gen || s.frame == nil {
		return nil
	}
	return s.frame
}

// Frames returns the live frames in slot order.
func (r *Registry) Frames() []*Frame {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Frame, 0, len(r.index))
	for _, s := range r.slots {
		if s.frame != nil {
			out = append(out, s.frame)
		}
	}
	return out
}

// Len returns the number of live frames.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.index)
}

// Pending returns the number of created frames not yet spawned.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Registry) spawn(doc bridge.Node, handle bridge.Handle, parentHandle bridge.Handle) {
	if doc == nil || handle == nil {
		return
	}

	r.mu.Lock()
	if r.lookupLocked(handle) != nil {
		r.mu.Unlock()
		r.log.Debug().Msg("ignoring duplicate spawn notification")
		return
	}
	var parent *Frame
	var container bridge.Window
	if parentHandle != nil {
		parent = r.lookupLocked(parentHandle)
	}
	if parent != nil {
		container = parent.window
	}
	r.mu.Unlock()

	if parent == nil {
		container = r.host.RootWindow()
	}
	ref := findWindow(container, doc.OwnerDocument())
	if ref == nil {
		// The host reported a frame we cannot place in the tree; this
		// should not happen.
		r.log.Debug().Bool("has_parent", parent != nil).Msg("no window matches spawned document")
		return
	}
	element := ref.FrameElement()
	document := ref.Document()

	r.mu.Lock()
	var f *Frame
	if element != nil {
		if p, ok := r.pending[element.Name()]; ok {
			f = p
			delete(r.pending, element.Name())
		}
	}
	if f == nil {
		f = newFrame(r, "")
	}

	f.state = StateAlive
	f.handle = handle
	f.parent = parent
	f.children = nil
	f.ref = ref
	f.element = element
	f.window = ref
	f.document = document
	r.allocateLocked(f, handle)
	if parent != nil {
		parent.children = append(parent.children, f)
	}

	url, navigate := f.pendingURL, f.hasPendingURL
	f.pendingURL, f.hasPendingURL = "", false
	width, height, sized := f.width, f.height, f.sized
	r.mu.Unlock()

	handle.OnLoadStarted(func() { r.signal(f, EventLoading) })
	handle.OnLoadFinished(func() { r.signal(f, EventLoaded) })
	handle.OnInitialLayoutCompleted(func() { r.signal(f, EventLayout) })
	handle.OnScriptCleared(func() { r.clear(f) })
	handle.OnDestroyed(func() { r.destroy(f) })

	metrics.FramesSpawned.Inc()
	metrics.FramesAlive.Inc()
	r.log.Debug().Str("token", f.token).Bool("has_parent", parent != nil).Msg("frame spawned")

	if element != nil {
		if sized {
			element.SetSize(width, height)
		}
		if navigate {
			element.SetSource(url)
		}
	}
	close(f.ready)

	if parent != nil {
		parent.Emit(EventChild, f)
	}
}

func findWindow(container bridge.Window, doc bridge.Document) bridge.Window {
	if container == nil || doc == nil {
		return nil
	}
	for _, ref := range container.Frames() {
		if ref != nil && ref.Document() == doc {
			return ref
		}
	}
	return nil
}

func (r *Registry) allocateLocked(f *Frame, handle bridge.Handle) {
	var i int
	if n := len(r.free); n > 0 {
		i = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.slots = append(r.slots, slot{})
		i = len(r.slots) - 1
	}

	r.slots[i].frame = f
	r.slots[i].handle = handle
	f.slot, f.gen = i, r.slots[i].gen
	r.index[handle] = slotRef{index: i, gen: f.gen}
}

func (r *Registry) releaseLocked(f *Frame) {
	if f.slot < 0 || f.slot >= len(r.slots) || r.slots[f.slot].gen != f.gen {
		return
	}
	s := &r.slots[f.slot]
	delete(r.index, s.handle)
	s.frame = nil
	s.handle = nil
	s.gen++
	r.free = append(r.free, f.slot)
	f.slot = -1
}

func (r *Registry) signal(f *Frame, event string) {
	if !f.Alive() {
		return
	}
	f.Emit(event)
}

func (r *Registry) clear(f *Frame) {
	r.mu.Lock()
	if f.state != StateAlive {
		r.mu.Unlock()
		return
	}
	ref := f.ref
	r.mu.Unlock()

	document := ref.Document()

	r.mu.Lock()
	if f.state != StateAlive {
		r.mu.Unlock()
		return
	}
	f.children = nil
	f.window = ref
	f.document = document
	r.mu.Unlock()

	f.Emit(EventCleared)
}

func (r *Registry) destroy(f *Frame) {
	r.mu.Lock()
	if f.state != StateAlive {
		r.mu.Unlock()
		return
	}
	parent := f.parent

	f.state = StateDestroyed
	f.parent = nil
	f.children = nil
	f.ref = nil
	f.element = nil
	f.window = nil
	f.document = nil
	f.handle = nil
	r.releaseLocked(f)

	if parent != nil {
		kept := make([]*Frame, 0, len(parent.children))
		for _, child := range parent.children {
			if child != f {
				kept = append(kept, child)
			}
		}
		parent.children = kept
	}
	r.mu.Unlock()

	metrics.FramesDestroyed.Inc()
	metrics.FramesAlive.Dec()
	r.log.Debug().Str("token", f.token).Msg("frame destroyed")

	f.Emit(EventDestroyed)
}

func (r *Registry) callback(name string, handle bridge.Handle, args []any) {
	// A handler that never answers must not leak the previous result.
	r.host.SetCallbackValue(nil)

	f := r.Lookup(handle)
	var fn InterceptFunc
	if f != nil {
		fn = f.interceptFor(name)
	}
	if fn == nil {
		metrics.ObserveCallback(name, false)
		return
	}

	metrics.ObserveCallback(name, true)
	if ret, ok := invoke(fn, f, args); ok {
		r.host.SetCallbackValue(ret)
	}
}

func invoke(fn InterceptFunc, f *Frame, args []any) (ret any, ok bool) {
	defer func() {
		if recover() != nil {
			ret, ok = nil, false
		}
	}()
	return fn(f, args...), true
}
