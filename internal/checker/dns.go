package checker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/watchpost/watchpost/internal/storage"
)

var dnsRecordTypes = []string{"A", "AAAA", "CNAME", "MX", "TXT", "NS"}

// ValidDNSRecordType reports whether t names a supported record type.
func ValidDNSRecordType(t string) bool {
	for _, rt := range dnsRecordTypes {
		if rt == t {
			return true
		}
	}
	return false
}

// DNSHost strips the optional dns:// prefix from a monitor target.
func DNSHost(raw string) string {
	return strings.TrimPrefix(raw, "dns://")
}

type DNSChecker struct{}

func (c *DNSChecker) Type() string { return storage.TypeDNS }

func (c *DNSChecker) Check(ctx context.Context, m *storage.Monitor) *Result {
	host := DNSHost(m.URL)

	recordType := m.DNSRecordType
	if recordType == "" {
		recordType = "A"
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(m.TimeoutMs)*time.Millisecond)
	defer cancel()

	resolver := net.DefaultResolver

	start := time.Now()
	var records []string
	var err error

	switch recordType {
	case "A":
		var addrs []net.IP
		addrs, err = resolver.LookupIP(ctx, "ip4", host)
		for _, a := range addrs {
			records = append(records, a.String())
		}
	case "AAAA":
		var addrs []net.IP
		addrs, err = resolver.LookupIP(ctx, "ip6", host)
		for _, a := range addrs {
			records = append(records, a.String())
		}
	case "CNAME":
		var cname string
		cname, err = resolver.LookupCNAME(ctx, host)
		if cname != "" {
			records = append(records, cname)
		}
	case "MX":
		var mxs []*net.MX
		mxs, err = resolver.LookupMX(ctx, host)
		for _, mx := range mxs {
			records = append(records, fmt.Sprintf("%d %s", mx.Pref, mx.Host))
		}
	case "TXT":
		records, err = resolver.LookupTXT(ctx, host)
	case "NS":
		var nss []*net.NS
		nss, err = resolver.LookupNS(ctx, host)
		for _, ns := range nss {
			records = append(records, ns.Host)
		}
	default:
		return &Result{
			Status:       storage.StatusDown,
			ErrorMessage: fmt.Sprintf("unsupported record type: %s", recordType),
		}
	}

	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		return &Result{
			Status:         storage.StatusDown,
			ResponseTimeMs: elapsed,
			ErrorMessage:   normalizeDNSError(err),
		}
	}
	if len(records) == 0 {
		return &Result{
			Status:         storage.StatusDown,
			ResponseTimeMs: elapsed,
			ErrorMessage:   "No records found",
		}
	}
	if m.DNSExpected != "" && !answersContain(records, m.DNSExpected) {
		return &Result{
			Status:         storage.StatusDown,
			ResponseTimeMs: elapsed,
			ErrorMessage:   fmt.Sprintf("Expected %s, got %s", m.DNSExpected, strings.Join(records, ", ")),
		}
	}

	return &Result{Status: storage.StatusUp, ResponseTimeMs: elapsed}
}

// answersContain matches ignoring case and trailing dots, so
// "mail.example.com" matches the canonical "mail.example.com.".
func answersContain(records []string, want string) bool {
	want = strings.TrimSuffix(strings.ToLower(want), ".")
	for _, r := range records {
		if strings.TrimSuffix(strings.ToLower(r), ".") == want {
			return true
		}
	}
	return false
}

func normalizeDNSError(err error) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsTimeout:
			return "DNS lookup timed out"
		case dnsErr.IsNotFound:
			return fmt.Sprintf("No such host: %s", dnsErr.Name)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "DNS lookup timed out"
	}
	return err.Error()
}
