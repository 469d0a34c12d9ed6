package browser

import (
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// Manager owns the Playwright driver, the launched browser and the single
// browser context every koala frame lives in.
type Manager struct {
	mu          sync.Mutex
	playwright  *playwright.Playwright
	browser     playwright.Browser
	context     playwright.BrowserContext
	opts        Options
	initialized bool
}

// NewManager creates a manager; nothing is started until Initialize.
func NewManager(opts Options) *Manager {
	opts.ApplyDefaults()
	return &Manager{opts: opts}
}

// Initialize installs and starts Playwright, launches the browser and
// creates the browser context.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	// Driver output would corrupt the protocol stream on stdout
	runOpts := &playwright.RunOptions{
		Browsers: []string{m.opts.Engine},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if err := playwright.Install(runOpts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	browserType, err := engine(pw, m.opts.Engine)
	if err != nil {
		_ = pw.Stop()
		return err
	}

	browser, err := browserType.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &m.opts.Headless,
	})
	if err != nil {
		_ = pw.Stop()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	context, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  m.opts.Viewport.Width,
			Height: m.opts.Viewport.Height,
		},
	})
	if err != nil {
		browser.Close()
		_ = pw.Stop()
		return fmt.Errorf("failed to create context: %w", err)
	}
	context.SetDefaultTimeout(m.opts.Timeout)

	m.playwright = pw
	m.browser = browser
	m.context = context
	m.initialized = true
	return nil
}

// Context returns the browser context, or nil before Initialize.
func (m *Manager) Context() playwright.BrowserContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.context
}

// Shutdown closes the browser and stops Playwright.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil
	}

	_ = m.context.Close() // Ignore errors, continue cleanup
	_ = m.browser.Close() // Ignore errors, continue cleanup

	m.initialized = false
	if err := m.playwright.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

func engine(pw *playwright.Playwright, name string) (playwright.BrowserType, error) {
	switch name {
	case EngineChromium:
		return pw.Chromium, nil
	case EngineFirefox:
		return pw.Firefox, nil
	case EngineWebKit:
		return pw.WebKit, nil
	default:
		return nil, fmt.Errorf("unsupported browser engine: %s", name)
	}
}
