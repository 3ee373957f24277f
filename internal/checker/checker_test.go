package checker

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/watchpost/watchpost/internal/storage"
)

func httpMonitor(url string) *storage.Monitor {
	return &storage.Monitor{
		Type:            storage.TypeHTTP,
		URL:             url,
		FollowRedirects: true,
		TimeoutMs:       5000,
	}
}

func TestHTTPCheckUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("service ready"))
	}))
	defer srv.Close()

	c := &HTTPChecker{AllowPrivate: true}
	res := c.Check(t.Context(), httpMonitor(srv.URL))

	if res.Status != storage.StatusUp {
		t.Fatalf("status = %s (%s), want up", res.Status, res.ErrorMessage)
	}
	if res.StatusCode == nil || *res.StatusCode != 200 {
		t.Fatalf("status code = %v, want 200", res.StatusCode)
	}
	if res.ErrorMessage != "" {
		t.Fatalf("unexpected error message %q", res.ErrorMessage)
	}
}

func TestHTTPCheckSendsMethodAndHeaders(t *testing.T) {
	var gotMethod, gotHeader, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Probe-Token")
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	m := httpMonitor(srv.URL)
	m.Method = http.MethodHead
	m.Headers = map[string]string{"X-Probe-Token": "s3cret"}

	c := &HTTPChecker{AllowPrivate: true}
	if res := c.Check(t.Context(), m); res.Status != storage.StatusUp {
		t.Fatalf("status = %s (%s), want up", res.Status, res.ErrorMessage)
	}
	if gotMethod != http.MethodHead {
		t.Errorf("method = %s, want HEAD", gotMethod)
	}
	if gotHeader != "s3cret" {
		t.Errorf("header = %q, want s3cret", gotHeader)
	}
	if gotUA != userAgent {
		t.Errorf("user agent = %q, want %q", gotUA, userAgent)
	}
}

func TestHTTPCheckExpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := &HTTPChecker{AllowPrivate: true}

	res := c.Check(t.Context(), httpMonitor(srv.URL))
	if res.Status != storage.StatusDown {
		t.Fatalf("status = %s, want down", res.Status)
	}
	if res.ErrorMessage != "Expected 200, got 503" {
		t.Fatalf("error = %q, want %q", res.ErrorMessage, "Expected 200, got 503")
	}
	if res.StatusCode == nil || *res.StatusCode != 503 {
		t.Fatalf("status code = %v, want 503", res.StatusCode)
	}

	m := httpMonitor(srv.URL)
	m.ExpectedStatus = 503
	if res := c.Check(t.Context(), m); res.Status != storage.StatusUp {
		t.Fatalf("status with matching expectation = %s, want up", res.Status)
	}
}

func TestHTTPCheckRedirects(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusMovedPermanently)
	}))
	defer srv.Close()

	c := &HTTPChecker{AllowPrivate: true}

	m := httpMonitor(srv.URL)
	res := c.Check(t.Context(), m)
	if res.Status != storage.StatusUp {
		t.Fatalf("followed redirect: status = %s (%s), want up", res.Status, res.ErrorMessage)
	}

	m.FollowRedirects = false
	res = c.Check(t.Context(), m)
	if res.Status != storage.StatusDown || res.ErrorMessage != "Expected 200, got 301" {
		t.Fatalf("unfollowed redirect: got (%s, %q), want (down, Expected 200, got 301)", res.Status, res.ErrorMessage)
	}

	m.ExpectedStatus = 301
	if res := c.Check(t.Context(), m); res.Status != storage.StatusUp {
		t.Fatalf("unfollowed redirect with 301 expected: status = %s, want up", res.Status)
	}
}

func TestHTTPCheckBodyContains(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()

	c := &HTTPChecker{AllowPrivate: true}

	m := httpMonitor(srv.URL)
	m.BodyContains = "healthy"
	if res := c.Check(t.Context(), m); res.Status != storage.StatusUp {
		t.Fatalf("status = %s (%s), want up", res.Status, res.ErrorMessage)
	}

	m.BodyContains = "degraded"
	res := c.Check(t.Context(), m)
	if res.Status != storage.StatusDown {
		t.Fatalf("status = %s, want down", res.Status)
	}
	if res.ErrorMessage != "Body match failed" {
		t.Fatalf("error = %q, want %q", res.ErrorMessage, "Body match failed")
	}
}

func TestHTTPCheckDegraded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
	}))
	defer srv.Close()

	m := httpMonitor(srv.URL)
	m.ResponseTimeThresholdMs = 100

	c := &HTTPChecker{AllowPrivate: true}
	res := c.Check(t.Context(), m)
	if res.Status != storage.StatusDegraded {
		t.Fatalf("status = %s, want degraded", res.Status)
	}
	if res.ErrorMessage != "" {
		t.Fatalf("degraded probe carries error %q", res.ErrorMessage)
	}
	if res.StatusCode == nil || *res.StatusCode != 200 {
		t.Fatalf("status code = %v, want 200", res.StatusCode)
	}
}

func TestHTTPCheckTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	m := httpMonitor(srv.URL)
	m.TimeoutMs = 50

	c := &HTTPChecker{AllowPrivate: true}
	res := c.Check(t.Context(), m)
	if res.Status != storage.StatusDown {
		t.Fatalf("status = %s, want down", res.Status)
	}
	if res.ErrorMessage != "Request timed out" {
		t.Fatalf("error = %q, want %q", res.ErrorMessage, "Request timed out")
	}
	if res.StatusCode != nil {
		t.Fatalf("status code = %v, want nil on transport failure", res.StatusCode)
	}
}

func TestHTTPCheckConnectionRefused(t *testing.T) {
	c := &HTTPChecker{AllowPrivate: true}
	res := c.Check(t.Context(), httpMonitor("http://"+closedPort(t)))
	if res.Status != storage.StatusDown {
		t.Fatalf("status = %s, want down", res.Status)
	}
	if res.ErrorMessage != "Connection refused" {
		t.Fatalf("error = %q, want %q", res.ErrorMessage, "Connection refused")
	}
}

func TestHTTPCheckBlocksPrivateTargets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := &HTTPChecker{AllowPrivate: false}
	res := c.Check(t.Context(), httpMonitor(srv.URL))
	if res.Status != storage.StatusDown {
		t.Fatalf("status = %s, want down for loopback target", res.Status)
	}
	if !strings.Contains(res.ErrorMessage, "refusing dial") {
		t.Fatalf("error = %q, want dial refusal", res.ErrorMessage)
	}
}

func TestTCPCheck(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	c := &TCPChecker{AllowPrivate: true}

	m := &storage.Monitor{Type: storage.TypeTCP, URL: ln.Addr().String(), TimeoutMs: 2000}
	if res := c.Check(t.Context(), m); res.Status != storage.StatusUp {
		t.Fatalf("status = %s (%s), want up", res.Status, res.ErrorMessage)
	}

	m.URL = "tcp://" + ln.Addr().String()
	if res := c.Check(t.Context(), m); res.Status != storage.StatusUp {
		t.Fatalf("status with tcp:// prefix = %s (%s), want up", res.Status, res.ErrorMessage)
	}
}

func TestTCPCheckConnectionRefused(t *testing.T) {
	c := &TCPChecker{AllowPrivate: true}
	m := &storage.Monitor{Type: storage.TypeTCP, URL: closedPort(t), TimeoutMs: 2000}
	res := c.Check(t.Context(), m)
	if res.Status != storage.StatusDown {
		t.Fatalf("status = %s, want down", res.Status)
	}
	if res.ErrorMessage != "Connection refused" {
		t.Fatalf("error = %q, want %q", res.ErrorMessage, "Connection refused")
	}
}

func TestSplitTCPTarget(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"example.com:443", "example.com:443", true},
		{"tcp://example.com:25", "example.com:25", true},
		{"10.0.0.5:1", "10.0.0.5:1", true},
		{"[::1]:8080", "[::1]:8080", true},
		{"example.com", "", false},
		{":443", "", false},
		{"example.com:0", "", false},
		{"example.com:70000", "", false},
		{"example.com:ssh", "", false},
	}

	for _, tt := range tests {
		got, err := SplitTCPTarget(tt.raw)
		if tt.ok && (err != nil || got != tt.want) {
			t.Errorf("SplitTCPTarget(%q) = (%q, %v), want (%q, nil)", tt.raw, got, err, tt.want)
		}
		if !tt.ok && err == nil {
			t.Errorf("SplitTCPTarget(%q) succeeded, want error", tt.raw)
		}
	}
}

func TestDNSCheckUnsupportedRecordType(t *testing.T) {
	c := &DNSChecker{}
	m := &storage.Monitor{Type: storage.TypeDNS, URL: "example.com", DNSRecordType: "SRV", TimeoutMs: 2000}
	res := c.Check(t.Context(), m)
	if res.Status != storage.StatusDown {
		t.Fatalf("status = %s, want down", res.Status)
	}
	if res.ErrorMessage != "unsupported record type: SRV" {
		t.Fatalf("error = %q", res.ErrorMessage)
	}
}

func TestValidDNSRecordType(t *testing.T) {
	for _, rt := range []string{"A", "AAAA", "CNAME", "MX", "TXT", "NS"} {
		if !ValidDNSRecordType(rt) {
			t.Errorf("ValidDNSRecordType(%s) = false", rt)
		}
	}
	for _, rt := range []string{"SRV", "a", "PTR", ""} {
		if ValidDNSRecordType(rt) {
			t.Errorf("ValidDNSRecordType(%q) = true", rt)
		}
	}
}

func TestDNSHost(t *testing.T) {
	if got := DNSHost("dns://example.com"); got != "example.com" {
		t.Errorf("DNSHost(dns://example.com) = %q", got)
	}
	if got := DNSHost("example.com"); got != "example.com" {
		t.Errorf("DNSHost(example.com) = %q", got)
	}
}

func TestAnswersContain(t *testing.T) {
	records := []string{"mail.example.com.", "93.184.216.34"}
	if !answersContain(records, "mail.example.com") {
		t.Error("trailing dot should not block a match")
	}
	if !answersContain(records, "MAIL.example.COM.") {
		t.Error("case should not block a match")
	}
	if !answersContain(records, "93.184.216.34") {
		t.Error("exact address should match")
	}
	if answersContain(records, "example.com") {
		t.Error("substring must not match")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry(false)
	for _, typ := range []string{storage.TypeHTTP, storage.TypeTCP, storage.TypeDNS} {
		c, err := r.Get(typ)
		if err != nil {
			t.Fatalf("Get(%s): %v", typ, err)
		}
		if c.Type() != typ {
			t.Fatalf("Get(%s) returned checker for %s", typ, c.Type())
		}
	}
	if _, err := r.Get("icmp"); err == nil {
		t.Fatal("expected error for unregistered type")
	}
}

// closedPort returns a loopback host:port that nothing is listening on.
func closedPort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}
