package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/entrhq/koala/pkg/bridge"
	"github.com/entrhq/koala/pkg/browser"
	"github.com/entrhq/koala/pkg/config"
	"github.com/entrhq/koala/pkg/control"
	"github.com/entrhq/koala/pkg/koala"
	"github.com/entrhq/koala/pkg/logging"
	"github.com/entrhq/koala/pkg/metrics"
	"github.com/entrhq/koala/pkg/navigation"
	"github.com/entrhq/koala/pkg/scheduler"
	"github.com/entrhq/koala/pkg/stdio"
)

// run starts the runtime and blocks until the controlling process asks for
// an exit or goes away. It returns the exit code to terminate with.
func run(ctx context.Context, cfg config.Config, url string) (int, error) {
	if err := logging.SetLevel(cfg.LogLevel); err != nil {
		return 1, err
	}
	logger, err := logging.NewLogger("koala")
	if err != nil {
		// NewLogger fell back to stderr and already reported why.
		logger.Debug().Err(err).Msg("file logging unavailable")
	}
	defer logger.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var exitCode atomic.Int32

	loop := scheduler.New(scheduler.WithLogger(logger.Component("scheduler")))
	transport := stdio.New(os.Stdin, os.Stdout,
		stdio.WithMaxLineBytes(cfg.MaxLineBytes),
		stdio.WithDispatcher(loop),
		stdio.WithLogger(logger.Component("stdio")),
	)

	policy, err := navigation.NewPolicy(cfg.BlockedURLs, navigation.WithLogger(logger.Component("navigation")))
	if err != nil {
		return 1, fmt.Errorf("failed to build navigation policy: %w", err)
	}

	manager := browser.NewManager(browser.Options{
		Engine:   cfg.Browser,
		Headless: cfg.IsHeadless(),
		Viewport: &browser.Viewport{Width: cfg.Viewport.Width, Height: cfg.Viewport.Height},
	})
	if err := manager.Initialize(); err != nil {
		return 1, err
	}
	defer func() {
		if err := manager.Shutdown(); err != nil {
			logger.Warn().Err(err).Msg("browser shutdown failed")
		}
	}()

	host := browser.NewHost(manager.Context(), loop,
		browser.WithLogger(logger.Component("browser")),
		browser.WithPolicy(policy),
		browser.WithCallbackTimeout(cfg.CallbackTimeout()),
		browser.WithExit(func(code int) {
			exitCode.Store(int32(code))
			cancel()
		}),
	)

	session := koala.New(bridge.Compose(transport, host), loop,
		koala.WithLoggers(logger.Component))
	ctl := control.New(session, control.WithLogger(logger.Component("control")))

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metrics.NewRouter(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	go func() {
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	go func() {
		// The controlling process owns our lifetime: closing stdin ends it.
		if err := transport.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("transport stopped")
		}
		cancel()
	}()

	if url != "" {
		loop.Post(func() {
			if _, err := ctl.Open(url, cfg.Viewport.Width, cfg.Viewport.Height); err != nil {
				logger.Error().Err(err).Str("url", url).Msg("failed to open initial frame")
			}
		})
	}

	logger.Info().
		Str("browser", cfg.Browser).
		Bool("headless", cfg.IsHeadless()).
		Str("log_path", logger.LogPath()).
		Msg("koala started")

	<-ctx.Done()
	code := int(exitCode.Load())
	logger.Info().Int("code", code).Msg("koala stopping")
	return code, nil
}
