// Package watcher implements the ChannelWatcher: it
// polls each watched channel's ledger state periodically and emits a close
// event once the channel enters its settle-delay window, so the orchestrator
// can block the account and race a final claim against the peer's closure.
package watcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warrant1/chain-xrpl-ilp/internal/ledger"
)

// DefaultInterval is the default poll period, ~10 minutes.
const DefaultInterval = 10 * time.Minute

// CloseHandler is invoked once a watched channel has entered its closing window.
type CloseHandler func(ctx context.Context, channelID string)

// Watcher polls a set of channel ids for their ledger state.
type Watcher struct {
	ledger   ledger.Client
	logger   *slog.Logger
	interval time.Duration
	onClose  CloseHandler

	mu       sync.Mutex
	watching map[string]context.CancelFunc
}

// New builds a Watcher. interval <= 0 uses DefaultInterval.
func New(ledgerClient ledger.Client, logger *slog.Logger, interval time.Duration, onClose CloseHandler) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{
		ledger:   ledgerClient,
		logger:   logger.With("component", "watcher"),
		interval: interval,
		onClose:  onClose,
		watching: make(map[string]context.CancelFunc),
	}
}

// Watch arms periodic polling for channelID. Re-arming an already-watched
// channel is a no-op; call Unwatch first to restart polling.
func (w *Watcher) Watch(ctx context.Context, channelID string) {
	w.mu.Lock()
	if _, exists := w.watching[channelID]; exists {
		w.mu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	w.watching[channelID] = cancel
	w.mu.Unlock()

	go w.poll(pollCtx, channelID)
}

// Unwatch stops polling channelID.
func (w *Watcher) Unwatch(channelID string) {
	w.mu.Lock()
	cancel, exists := w.watching[channelID]
	if exists {
		delete(w.watching, channelID)
	}
	w.mu.Unlock()
	if exists {
		cancel()
	}
}

func (w *Watcher) poll(ctx context.Context, channelID string) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.checkClosing(ctx, channelID) {
				w.Unwatch(channelID)
				return
			}
		}
	}
}

// checkClosing fetches channelID and reports whether it has entered its
// settle-delay closing window, invoking onClose if so.
func (w *Watcher) checkClosing(ctx context.Context, channelID string) bool {
	pc, err := w.ledger.GetPaymentChannel(ctx, channelID)
	if err != nil {
		w.logger.Warn("watcher: poll failed", "channel", channelID, "error", err)
		return false
	}
	if pc.CancelAfter == nil && pc.Expiration == nil {
		return false
	}
	w.logger.Info("watcher: channel entering settle-delay window", "channel", channelID)
	w.onClose(ctx, channelID)
	return true
}

// Stop cancels every watched channel's poll loop.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, cancel := range w.watching {
		cancel()
		delete(w.watching, id)
	}
}
