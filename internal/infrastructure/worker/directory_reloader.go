package worker

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/garyjia/workflow-engine/internal/infrastructure/authz"
	"go.uber.org/zap"
)

// DirectorySource produces the current actor/role configuration
type DirectorySource func() (authz.Config, error)

// DirectoryReloader periodically re-reads the actor/role configuration and
// swaps it into the live directory. A broken configuration is logged and the
// previous directory keeps serving.
type DirectoryReloader struct {
	interval  time.Duration
	source    DirectorySource
	directory *authz.Directory
	logger    *zap.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	last      authz.Config
	reloads   int
	lastError error
}

// NewDirectoryReloader creates a reloader; current is the configuration the
// directory was built from.
func NewDirectoryReloader(interval time.Duration, source DirectorySource, directory *authz.Directory, current authz.Config, logger *zap.Logger) *DirectoryReloader {
	return &DirectoryReloader{
		interval:  interval,
		source:    source,
		directory: directory,
		last:      current,
		logger:    logger,
	}
}

// Start begins the polling loop
func (w *DirectoryReloader) Start(ctx context.Context) error {
	if w.interval <= 0 {
		return fmt.Errorf("reload interval must be positive")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return fmt.Errorf("directory reloader already running")
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.pollLoop(ctx, w.done)

	w.logger.Info("DirectoryReloader started", zap.Duration("interval", w.interval))
	return nil
}

// Stop terminates the loop and waits for it to exit
func (w *DirectoryReloader) Stop() error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Name returns the worker name for identification
func (w *DirectoryReloader) Name() string {
	return "DirectoryReloader"
}

// Reloads returns how many times a changed configuration was applied
func (w *DirectoryReloader) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// LastError returns the error of the most recent attempt, if any
func (w *DirectoryReloader) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastError
}

func (w *DirectoryReloader) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.reload()
		}
	}
}

// reload applies the source's configuration when it differs from the last one applied
func (w *DirectoryReloader) reload() {
	cfg, err := w.source()
	if err == nil {
		w.mu.Lock()
		unchanged := reflect.DeepEqual(cfg, w.last)
		w.mu.Unlock()
		if unchanged {
			return
		}
		err = w.directory.Replace(cfg)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastError = err
	if err != nil {
		w.logger.Error("Failed to reload actor directory", zap.Error(err))
		return
	}
	w.last = cfg
	w.reloads++
	w.logger.Info("Actor directory reloaded",
		zap.Int("roles", len(cfg.Roles)),
		zap.Int("actors", len(cfg.Actors)))
}
