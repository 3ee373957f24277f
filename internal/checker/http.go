package checker

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/watchpost/watchpost/internal/safenet"
	"github.com/watchpost/watchpost/internal/storage"
)

const maxBodyRead = 1 << 20 // 1MB

// defaultDegradedMs is the response time ceiling applied when a monitor
// has no threshold of its own; slower successful probes report degraded.
const defaultDegradedMs = 5000

const userAgent = "Watchpost-Probe/1.0"

type HTTPChecker struct {
	AllowPrivate bool
}

func (c *HTTPChecker) Type() string { return storage.TypeHTTP }

func (c *HTTPChecker) Check(ctx context.Context, m *storage.Monitor) *Result {
	method := m.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, m.URL, nil)
	if err != nil {
		return &Result{Status: storage.StatusDown, ErrorMessage: fmt.Sprintf("invalid request: %v", err)}
	}
	for k, v := range m.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}

	timeout := time.Duration(m.TimeoutMs) * time.Millisecond
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: timeout,
			Control: safenet.MaybeDialControl(c.AllowPrivate),
		}).DialContext,
		DisableKeepAlives: true,
	}
	client := &http.Client{Transport: transport, Timeout: timeout}
	if !m.FollowRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		return &Result{
			Status:         storage.StatusDown,
			ResponseTimeMs: elapsed,
			ErrorMessage:   normalizeNetError(err),
		}
	}
	defer resp.Body.Close()

	code := resp.StatusCode
	expected := m.ExpectedStatus
	if expected == 0 {
		expected = http.StatusOK
	}
	if code != expected {
		return &Result{
			Status:         storage.StatusDown,
			ResponseTimeMs: elapsed,
			StatusCode:     &code,
			ErrorMessage:   fmt.Sprintf("Expected %d, got %d", expected, code),
		}
	}

	if m.BodyContains != "" {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))
		if !strings.Contains(string(body), m.BodyContains) {
			return &Result{
				Status:         storage.StatusDown,
				ResponseTimeMs: elapsed,
				StatusCode:     &code,
				ErrorMessage:   "Body match failed",
			}
		}
	}

	status := storage.StatusUp
	if elapsed > degradedAfter(m) {
		status = storage.StatusDegraded
	}
	return &Result{Status: status, ResponseTimeMs: elapsed, StatusCode: &code}
}

func degradedAfter(m *storage.Monitor) int64 {
	if m.ResponseTimeThresholdMs > 0 {
		return int64(m.ResponseTimeThresholdMs)
	}
	return defaultDegradedMs
}
