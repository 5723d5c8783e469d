// Package txsubmitter serializes and retries the connector's on-ledger
// transaction submissions. Every submit for the
// connector's own (address, secret) must be strictly ordered with respect to
// every other submit, since they all consume the same account sequence
// number, and transient ledger errors should be retried with backoff while
// terminal errors propagate immediately.
package txsubmitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/warrant1/chain-xrpl-ilp/internal/ledger"
)

// terminalResultPrefixes are rippled engine results that will never succeed on
// retry (malformed transaction, bad signature, etc.) — matching the tem*/tef*/tel*
// families documented by rippled.
var terminalResultPrefixes = []string{"tem", "tef", "tel"}

// ErrTerminal wraps a submission failure classified as non-retryable.
var ErrTerminal = errors.New("txsubmitter: terminal failure")

// Config tunes retry behavior.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultConfig returns sane retry bounds so a wedged ledger cannot leak goroutines.
func DefaultConfig() Config {
	return Config{MaxRetries: 5, BaseDelay: time.Second}
}

// Submitter serializes access to a ledger.Client behind a single mutex: the
// connector submits from exactly one XRP account, so every transaction shares
// a sequence number and must be submitted one at a time.
type Submitter struct {
	mu     sync.Mutex
	client ledger.Client
	logger *slog.Logger
	cfg    Config
}

// New builds a Submitter over client.
func New(client ledger.Client, logger *slog.Logger, cfg Config) *Submitter {
	return &Submitter{client: client, logger: logger, cfg: cfg}
}

// action is one retryable unit of work returning a ledger.TxResult.
type action func() (*ledger.TxResult, error)

func (s *Submitter) run(ctx context.Context, label string, do action) (*ledger.TxResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("txsubmitter: %s: %w", label, ctx.Err())
		}
		result, err := do()
		if err == nil {
			return result, nil
		}
		if isTerminal(err) {
			return nil, fmt.Errorf("%w: %s: %v", ErrTerminal, label, err)
		}
		lastErr = err
		s.logger.Warn("transient ledger submission failure, retrying", "action", label, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("txsubmitter: %s: %w", label, ctx.Err())
		case <-time.After(s.cfg.BaseDelay * time.Duration(1<<attempt)):
		}
	}
	return nil, fmt.Errorf("txsubmitter: %s: exhausted retries: %w", label, lastErr)
}

func isTerminal(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, prefix := range terminalResultPrefixes {
		if strings.Contains(msg, prefix) {
			return true
		}
	}
	return false
}

// SubmitPaymentChannelCreate serializes a PaymentChannelCreate submission.
func (s *Submitter) SubmitPaymentChannelCreate(ctx context.Context, destination string, amountDrops uint64, settleDelay uint32, publicKeyHex string) (*ledger.TxResult, error) {
	return s.run(ctx, "PaymentChannelCreate", func() (*ledger.TxResult, error) {
		return s.client.SubmitPaymentChannelCreate(ctx, destination, amountDrops, settleDelay, publicKeyHex)
	})
}

// SubmitPaymentChannelClaim serializes a PaymentChannelClaim submission.
func (s *Submitter) SubmitPaymentChannelClaim(ctx context.Context, channelID string, balanceDrops uint64, signatureHex, publicKeyHex string, closeFlag bool) (*ledger.TxResult, error) {
	return s.run(ctx, "PaymentChannelClaim", func() (*ledger.TxResult, error) {
		return s.client.SubmitPaymentChannelClaim(ctx, channelID, balanceDrops, signatureHex, publicKeyHex, closeFlag)
	})
}

// SubmitPaymentChannelFund serializes a PaymentChannelFund submission.
func (s *Submitter) SubmitPaymentChannelFund(ctx context.Context, channelID string, amountDrops uint64) (*ledger.TxResult, error) {
	return s.run(ctx, "PaymentChannelFund", func() (*ledger.TxResult, error) {
		return s.client.SubmitPaymentChannelFund(ctx, channelID, amountDrops)
	})
}
