package cache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/viralforge/mesh/services/platform-ops/M18-cache-state-management/internal/domain"
)

var (
	// ErrNotReady is the fast-fail rejection issued while the client is not READY.
	// Commands are never queued; callers decide whether to fall back or fail open.
	ErrNotReady = errors.New("cache client not ready")
	// ErrClosed is returned for operations issued after Quit.
	ErrClosed = errors.New("cache client closed")
)

// Stable error-type keys used in the per-error frequency table.
const (
	errKindTimeout       = "timeout"
	errKindNetwork       = "network"
	errKindNotReady      = "not_ready"
	errKindSerialization = "serialization"
)

// CommandError wraps a failed store operation with its classification key.
type CommandError struct {
	Command string
	Kind    string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("cache command %s failed (%s): %v", e.Command, e.Kind, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// mapStoreErr translates infrastructure failures into the domain error outer
// layers understand. Unavailability (not ready, timeouts, network faults)
// becomes domain.ErrStoreUnavailable; everything else passes through wrapped.
// Root causes are already logged by the executor, so the detail is not lost.
func mapStoreErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotReady) || errors.Is(err, ErrClosed) {
		return fmt.Errorf("%s: %w", op, domain.ErrStoreUnavailable)
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && (cmdErr.Kind == errKindTimeout || cmdErr.Kind == errKindNetwork) {
		return fmt.Errorf("%s: %w", op, domain.ErrStoreUnavailable)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// classifyError maps an error to a stable error-type key: timeouts and network
// failures get fixed kinds, store-reported errors keep their leading code word
// (NOAUTH, OOM, MOVED, LOADING, ...), anything else falls back to the Go type.
func classifyError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return errKindTimeout
	case errors.Is(err, ErrNotReady):
		return errKindNotReady
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return errKindTimeout
		}
		return errKindNetwork
	}

	var redisErr redis.Error
	if errors.As(err, &redisErr) {
		msg := redisErr.Error()
		if idx := strings.IndexByte(msg, ' '); idx > 0 {
			code := msg[:idx]
			if code == strings.ToUpper(code) {
				return strings.ToLower(code)
			}
		}
		return "store"
	}

	return fmt.Sprintf("%T", err)
}
