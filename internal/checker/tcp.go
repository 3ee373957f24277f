package checker

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/watchpost/watchpost/internal/safenet"
	"github.com/watchpost/watchpost/internal/storage"
)

type TCPChecker struct {
	AllowPrivate bool
}

func (c *TCPChecker) Type() string { return storage.TypeTCP }

func (c *TCPChecker) Check(ctx context.Context, m *storage.Monitor) *Result {
	target, err := SplitTCPTarget(m.URL)
	if err != nil {
		return &Result{Status: storage.StatusDown, ErrorMessage: err.Error()}
	}

	dialer := net.Dialer{
		Timeout: time.Duration(m.TimeoutMs) * time.Millisecond,
		Control: safenet.MaybeDialControl(c.AllowPrivate),
	}

	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", target)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		return &Result{
			Status:         storage.StatusDown,
			ResponseTimeMs: elapsed,
			ErrorMessage:   normalizeNetError(err),
		}
	}
	conn.Close()

	return &Result{Status: storage.StatusUp, ResponseTimeMs: elapsed}
}

// SplitTCPTarget validates a host:port target, tolerating a tcp://
// prefix, and returns the bare host:port to dial. Ports must fall in
// 1-65535.
func SplitTCPTarget(raw string) (string, error) {
	target := strings.TrimPrefix(raw, "tcp://")
	host, port, err := net.SplitHostPort(target)
	if err != nil {
		return "", fmt.Errorf("invalid tcp target %q: expected host:port", raw)
	}
	if host == "" {
		return "", fmt.Errorf("invalid tcp target %q: missing host", raw)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return "", fmt.Errorf("invalid tcp target %q: port out of range", raw)
	}
	return target, nil
}
