// Package bridge defines the collaborator surface between the runtime and
// the process that embeds the browser engine.
//
// The runtime never talks to a browser engine directly. Everything it knows
// about frames arrives as notifications from a Host, and everything it sends
// to the external controller leaves through a Transport. Both are injected,
// so the registries can be driven by the bridgetest fake in tests and by the
// playwright host in production.
//
// Notification callbacks may be invoked from any goroutine; implementations
// are expected to funnel them through the scheduler so that the runtime sees
// a single sequential stream of events.
package bridge

import "github.com/entrhq/koala/pkg/cookies"

// Transport carries raw controller messages.
type Transport interface {
	// Send delivers one message to the external controller.
	Send(msg []byte) error

	// OnReceive registers fn to be called for each inbound message.
	OnReceive(fn func(msg []byte))
}

// Host is the frame source and process control surface of the embedding
// process.
type Host interface {
	// RootWindow returns the top-level window whose child frames are the
	// frames created through CreateFrame.
	RootWindow() Window

	// CreateFrame asks the host to insert a new frame element named token
	// into the top-level document. The matching spawn notification carries a
	// window whose FrameElement reports that name.
	CreateFrame(token string) error

	// OnFrameSpawned registers fn for frame spawn notifications. parent is
	// nil for frames created directly under the root window.
	OnFrameSpawned(fn func(doc Node, handle Handle, parent Handle))

	// OnCallbackRequested registers fn for named callback requests raised by
	// native code on behalf of a frame.
	OnCallbackRequested(fn func(name string, handle Handle, args []any))

	// SetCallbackValue publishes the result of the callback currently being
	// requested.
	SetCallbackValue(v any)

	// RequestExit terminates the host process with code.
	RequestExit(code int)

	// SetCookies replaces the content of the host cookie jar.
	SetCookies(list []cookies.Cookie) error

	// OnCookiesChanged registers fn for cookie jar updates.
	OnCookiesChanged(fn func(list []cookies.Cookie))
}

// Bridge is the full native capability used by the session facade.
type Bridge interface {
	Transport
	Host
}

// Handle is the native identity of one frame. Implementations must be
// comparable (typically pointers) because handles are used as lookup keys.
type Handle interface {
	OnLoadStarted(fn func())
	OnLoadFinished(fn func())
	OnInitialLayoutCompleted(fn func())
	OnScriptCleared(fn func())
	OnDestroyed(fn func())
}

// Window is a browsing context as exposed to the runtime: its child frames,
// its current document and the element hosting it in the parent document.
type Window interface {
	Frames() []Window
	Document() Document
	FrameElement() Element
}

// Document identifies the document loaded in a window. Documents are
// compared by identity.
type Document interface {
	URL() string
}

// Node is a node of a document; spawn notifications carry the root element
// of the new frame's document.
type Node interface {
	OwnerDocument() Document
}

// Element is the frame element (iframe) hosting a window.
type Element interface {
	Name() string
	SetSource(url string)
	SetSize(width, height int)
	Size() (width, height int)
}

type composite struct {
	Transport
	Host
}

// Compose joins a transport and a host into a Bridge.
func Compose(t Transport, h Host) Bridge {
	return composite{Transport: t, Host: h}
}
