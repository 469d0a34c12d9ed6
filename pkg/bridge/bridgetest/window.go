package bridgetest

import (
	"slices"
	"sync"

	"github.com/entrhq/koala/pkg/bridge"
)

// Window is an in-memory browsing context.
type Window struct {
	mu       sync.Mutex
	doc      *Document
	children []*Window

	// Element is the frame element hosting the window.
	Element *Element

	// Handle is the native identity of the window.
	Handle *Handle
}

// NewWindow returns a window hosted by an element named name, with a fresh
// document at url.
func NewWindow(name, url string) *Window {
	return &Window{
		doc:     &Document{url: url},
		Element: &Element{name: name},
		Handle:  &Handle{},
	}
}

// Append adds child to the window's frames.
func (w *Window) Append(child *Window) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.children = append(w.children, child)
}

// Remove drops child from the window's frames.
func (w *Window) Remove(child *Window) {
	w.mu.Lock()
	defer w.mu.Unlock()

	kept := w.children[:0]
	for _, c := range w.children {
		if c != child {
			kept = append(kept, c)
		}
	}
	w.children = kept
}

// Frames returns the child windows.
func (w *Window) Frames() []bridge.Window {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]bridge.Window, 0, len(w.children))
	for _, c := range w.children {
		out = append(out, c)
	}
	return out
}

// Document returns the current document.
func (w *Window) Document() bridge.Document {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.doc
}

// FrameElement returns Element.
func (w *Window) FrameElement() bridge.Element {
	return w.Element
}

// DocumentElement returns the root node of the current document.
func (w *Window) DocumentElement() bridge.Node {
	w.mu.Lock()
	defer w.mu.Unlock()
	return &Node{doc: w.doc}
}

// Reset replaces the document with a fresh one at url and returns it.
func (w *Window) Reset(url string) *Document {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.doc = &Document{url: url}
	return w.doc
}

// Document is an in-memory document.
type Document struct {
	url string
}

// URL returns the document address.
func (d *Document) URL() string {
	return d.url
}

// Node is the root element of a document.
type Node struct {
	doc *Document
}

// OwnerDocument returns the document containing the node.
func (n *Node) OwnerDocument() bridge.Document {
	return n.doc
}

// NodeOf returns a node belonging to doc.
func NodeOf(doc *Document) *Node {
	return &Node{doc: doc}
}

// Element is an in-memory frame element.
type Element struct {
	mu     sync.Mutex
	name   string
	src    []string
	width  int
	height int
}

// Name returns the element name.
func (e *Element) Name() string {
	return e.name
}

// SetSource records a navigation.
func (e *Element) SetSource(url string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.src = append(e.src, url)
}

// Sources returns every url passed to SetSource.
func (e *Element) Sources() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.src...)
}

// SetSize records the element dimensions.
func (e *Element) SetSize(width, height int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.width, e.height = width, height
}

// Size returns the element dimensions.
func (e *Element) Size() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.width, e.height
}

// Handle records per-frame signal subscriptions.
type Handle struct {
	mu      sync.Mutex
	signals map[string][]func()
}

const (
	sigLoadStarted  = "loadStarted"
	sigLoadFinished = "loadFinished"
	sigLayout       = "initialLayoutCompleted"
	sigCleared      = "javaScriptWindowObjectCleared"
	sigDestroyed    = "destroyed"
)

func (h *Handle) on(sig string, fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.signals == nil {
		h.signals = make(map[string][]func())
	}
	h.signals[sig] = append(h.signals[sig], fn)
}

func (h *Handle) fire(sig string) {
	h.mu.Lock()
	subs := slices.Clone(h.signals[sig])
	h.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

func (h *Handle) OnLoadStarted(fn func())            { h.on(sigLoadStarted, fn) }
func (h *Handle) OnLoadFinished(fn func())           { h.on(sigLoadFinished, fn) }
func (h *Handle) OnInitialLayoutCompleted(fn func()) { h.on(sigLayout, fn) }
func (h *Handle) OnScriptCleared(fn func())          { h.on(sigCleared, fn) }
func (h *Handle) OnDestroyed(fn func())              { h.on(sigDestroyed, fn) }

func (h *Handle) LoadStarted()     { h.fire(sigLoadStarted) }
func (h *Handle) LoadFinished()    { h.fire(sigLoadFinished) }
func (h *Handle) LayoutCompleted() { h.fire(sigLayout) }
func (h *Handle) ScriptCleared()   { h.fire(sigCleared) }
func (h *Handle) Destroy()         { h.fire(sigDestroyed) }

// Subscriptions reports how many listeners are attached to the handle.
func (h *Handle) Subscriptions() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, subs := range h.signals {
		n += len(subs)
	}
	return n
}
