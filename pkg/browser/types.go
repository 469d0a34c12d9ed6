package browser

// Engine names accepted by Options.Engine.
const (
	EngineChromium = "chromium"
	EngineFirefox  = "firefox"
	EngineWebKit   = "webkit"
)

// Options configures the browser launched by the Manager.
type Options struct {
	// Engine selects the browser engine (chromium, firefox or webkit)
	Engine string

	// Headless controls whether the browser runs without a visible window
	Headless bool

	// Viewport sets the initial viewport size of new pages
	Viewport *Viewport

	// Timeout sets the default timeout for operations (in milliseconds)
	Timeout float64
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// Default values for various operations
const (
	DefaultTimeout        = 30000.0 // 30 seconds in milliseconds
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
)

// ApplyDefaults fills unset fields.
func (o *Options) ApplyDefaults() {
	if o.Engine == "" {
		o.Engine = EngineChromium
	}
	if o.Viewport == nil {
		o.Viewport = &Viewport{
			Width:  DefaultViewportWidth,
			Height: DefaultViewportHeight,
		}
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
}
