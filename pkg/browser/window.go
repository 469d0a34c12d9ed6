package browser

import (
	"slices"
	"strings"
	"sync"

	"github.com/entrhq/koala/pkg/bridge"
)

// document is one load of a window. A new document replaces it on every
// committed navigation, which is how the frame registry tells loads apart.
type document struct {
	mu  sync.Mutex
	url string
}

func (d *document) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url
}

func (d *document) setURL(url string) {
	d.mu.Lock()
	d.url = url
	d.mu.Unlock()
}

type node struct {
	doc *document
}

func (n *node) OwnerDocument() bridge.Document { return n.doc }

// window mirrors one playwright frame. It is both the bridge.Window handed
// to the frame registry and the bridge.Handle identifying the frame.
type window struct {
	mu       sync.Mutex
	id       string
	doc      *document
	parent   *window
	children []*window
	element  bridge.Element

	// requested is set while a load started through the element has not
	// committed, so that its redirects are attributed to it as well.
	requested bool

	subs map[signal][]func()
}

type signal int

const (
	sigLoadStarted signal = iota
	sigLoadFinished
	sigLayout
	sigCleared
	sigDestroyed
)

func newWindow(id, url string, parent *window, el bridge.Element) *window {
	return &window{
		id:      id,
		doc:     &document{url: url},
		parent:  parent,
		element: el,
	}
}

// Frames returns the child windows.
func (w *window) Frames() []bridge.Window {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]bridge.Window, 0, len(w.children))
	for _, c := range w.children {
		out = append(out, c)
	}
	return out
}

// Document returns the current document.
func (w *window) Document() bridge.Document {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.doc
}

// FrameElement returns the hosting element.
func (w *window) FrameElement() bridge.Element {
	return w.element
}

func (w *window) documentNode() bridge.Node {
	w.mu.Lock()
	defer w.mu.Unlock()
	return &node{doc: w.doc}
}

func (w *window) url() string {
	w.mu.Lock()
	doc := w.doc
	w.mu.Unlock()
	return doc.URL()
}

// navigated records a committed navigation to url. A fragment change keeps
// the current document and only updates its address; anything else starts
// a new document. It reports whether a new document was started.
func (w *window) navigated(url string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if fragmentOnly(w.doc.URL(), url) {
		w.doc.setURL(url)
		return false
	}
	w.doc = &document{url: url}
	w.requested = false
	return true
}

// fragmentOnly reports whether moving from one address to the next only
// scrolls within the page. Loading the same address again is a reload.
func fragmentOnly(from, to string) bool {
	base, _, hasFragment := strings.Cut(to, "#")
	if !hasFragment || from == to {
		return false
	}
	prev, _, _ := strings.Cut(from, "#")
	return prev == base
}

func (w *window) addChild(c *window) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.children = append(w.children, c)
}

func (w *window) removeChild(c *window) {
	w.mu.Lock()
	defer w.mu.Unlock()

	kept := make([]*window, 0, len(w.children))
	for _, child := range w.children {
		if child != c {
			kept = append(kept, child)
		}
	}
	w.children = kept
}

// descendants returns w's subtree, deepest windows first.
func (w *window) descendants() []*window {
	w.mu.Lock()
	children := append([]*window(nil), w.children...)
	w.mu.Unlock()

	var out []*window
	for _, c := range children {
		out = append(out, c.descendants()...)
		out = append(out, c)
	}
	return out
}

func (w *window) expect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.requested = true
}

func (w *window) loading() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.requested
}

func (w *window) on(sig signal, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.subs == nil {
		w.subs = make(map[signal][]func())
	}
	w.subs[sig] = append(w.subs[sig], fn)
}

func (w *window) fire(sig signal) {
	w.mu.Lock()
	subs := slices.Clone(w.subs[sig])
	w.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

func (w *window) OnLoadStarted(fn func())            { w.on(sigLoadStarted, fn) }
func (w *window) OnLoadFinished(fn func())           { w.on(sigLoadFinished, fn) }
func (w *window) OnInitialLayoutCompleted(fn func()) { w.on(sigLayout, fn) }
func (w *window) OnScriptCleared(fn func())          { w.on(sigCleared, fn) }
func (w *window) OnDestroyed(fn func())              { w.on(sigDestroyed, fn) }
