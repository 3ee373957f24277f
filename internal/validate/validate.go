// Package validate normalizes and validates API payloads before they
// reach the store. Validators may write defaults and clamp ranges into
// the value they check; a returned error always means the request was
// rejected as a whole.
package validate

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/watchpost/watchpost/internal/checker"
	"github.com/watchpost/watchpost/internal/storage"
)

// Request caps.
const (
	MaxBulkMonitors = 50
	MaxProbeResults = 100
)

var ValidMonitorTypes = map[string]bool{
	storage.TypeHTTP: true, storage.TypeTCP: true, storage.TypeDNS: true,
}

var validMethods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true,
}

var validPayloadFormats = map[string]bool{
	"json": true, "chat": true,
}

var validHeartbeatStatuses = map[string]bool{
	storage.StatusUp: true, storage.StatusDown: true, storage.StatusDegraded: true,
}

// ValidHeartbeatStatus reports whether s is a status a probe may submit.
func ValidHeartbeatStatus(s string) bool {
	return validHeartbeatStatuses[s]
}

// ValidateMonitor checks a monitor for create or update. Defaults are
// written in place: method GET, expected status 200, DNS record type A,
// timeout and confirmation threshold clamped to their ranges.
func ValidateMonitor(m *storage.Monitor) error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(m.Name) > 255 {
		return fmt.Errorf("name must be at most 255 characters")
	}
	if !ValidMonitorTypes[m.Type] {
		return fmt.Errorf("monitor_type must be one of: http, tcp, dns")
	}
	m.URL = strings.TrimSpace(m.URL)
	if m.URL == "" {
		return fmt.Errorf("url is required")
	}
	if len(m.URL) > 2048 {
		return fmt.Errorf("url must be at most 2048 characters")
	}
	if err := validateTarget(m); err != nil {
		return err
	}
	return validateMonitorLimits(m)
}

func validateTarget(m *storage.Monitor) error {
	switch m.Type {
	case storage.TypeHTTP:
		u, err := url.Parse(m.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("url must be an absolute http:// or https:// URL")
		}
		m.Method = strings.ToUpper(strings.TrimSpace(m.Method))
		if m.Method == "" {
			m.Method = "GET"
		}
		if !validMethods[m.Method] {
			return fmt.Errorf("method must be one of: GET, HEAD, POST")
		}
		if m.ExpectedStatus == 0 {
			m.ExpectedStatus = 200
		}
		if m.ExpectedStatus < 100 || m.ExpectedStatus > 599 {
			return fmt.Errorf("expected_status must be between 100 and 599")
		}
		if len(m.BodyContains) > 2048 {
			return fmt.Errorf("body_contains must be at most 2048 characters")
		}
		for name := range m.Headers {
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("header names must be non-empty")
			}
		}
		if len(m.Headers) > 50 {
			return fmt.Errorf("at most 50 headers allowed")
		}
	case storage.TypeTCP:
		if _, err := checker.SplitTCPTarget(m.URL); err != nil {
			return err
		}
	case storage.TypeDNS:
		if checker.DNSHost(m.URL) == "" {
			return fmt.Errorf("url must name a host to resolve")
		}
		if m.DNSRecordType == "" {
			m.DNSRecordType = "A"
		}
		m.DNSRecordType = strings.ToUpper(m.DNSRecordType)
		if !checker.ValidDNSRecordType(m.DNSRecordType) {
			return fmt.Errorf("dns_record_type must be one of: A, AAAA, CNAME, MX, TXT, NS")
		}
		if len(m.DNSExpected) > 2048 {
			return fmt.Errorf("dns_expected must be at most 2048 characters")
		}
	}
	return nil
}

func validateMonitorLimits(m *storage.Monitor) error {
	if m.IntervalSeconds < 600 {
		return fmt.Errorf("interval_seconds must be at least 600")
	}
	if m.IntervalSeconds > 86400 {
		return fmt.Errorf("interval_seconds must be at most 86400")
	}

	if m.TimeoutMs < 1000 {
		m.TimeoutMs = 1000
	}
	if m.TimeoutMs > 60000 {
		m.TimeoutMs = 60000
	}
	if m.ConfirmationThreshold < 1 {
		m.ConfirmationThreshold = 1
	}
	if m.ConfirmationThreshold > 10 {
		m.ConfirmationThreshold = 10
	}

	if m.ResponseTimeThresholdMs != 0 && m.ResponseTimeThresholdMs < 100 {
		return fmt.Errorf("response_time_threshold_ms must be at least 100")
	}
	if m.SLATarget == 0 {
		m.SLATarget = 99.9
	}
	if m.SLATarget < 0 || m.SLATarget > 100 {
		return fmt.Errorf("sla_target must be between 0 and 100")
	}
	if m.SLAPeriodDays == 0 {
		m.SLAPeriodDays = 30
	}
	if m.SLAPeriodDays < 1 || m.SLAPeriodDays > 365 {
		return fmt.Errorf("sla_period_days must be between 1 and 365")
	}
	if m.ConsensusThreshold < 0 {
		return fmt.Errorf("consensus_threshold must be at least 1")
	}

	if len(m.Tags) > 20 {
		return fmt.Errorf("at most 20 tags allowed")
	}
	// Tags are stored comma-joined and lowercase; normalize here so the
	// wire form is always a unique ordered list.
	seen := make(map[string]bool, len(m.Tags))
	tags := m.Tags[:0]
	for _, tag := range m.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			return fmt.Errorf("tags must be non-empty")
		}
		if len(tag) > 50 {
			return fmt.Errorf("tags must be at most 50 characters")
		}
		if strings.Contains(tag, ",") {
			return fmt.Errorf("tags must not contain commas")
		}
		if seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	m.Tags = tags
	if len(m.GroupName) > 255 {
		return fmt.Errorf("group_name must be at most 255 characters")
	}
	return nil
}

// ValidateNotificationChannel checks a channel for create or update and
// defaults the webhook payload format to json.
func ValidateNotificationChannel(ch *storage.NotificationChannel) error {
	ch.Name = strings.TrimSpace(ch.Name)
	if ch.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(ch.Name) > 255 {
		return fmt.Errorf("name must be at most 255 characters")
	}
	switch ch.Type {
	case storage.ChannelWebhook:
		ch.Config.URL = strings.TrimSpace(ch.Config.URL)
		if ch.Config.URL == "" {
			return fmt.Errorf("config.url is required for webhook channels")
		}
		u, err := url.Parse(ch.Config.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config.url must be an absolute http:// or https:// URL")
		}
		if ch.Config.PayloadFormat == "" {
			ch.Config.PayloadFormat = "json"
		}
		if !validPayloadFormats[ch.Config.PayloadFormat] {
			return fmt.Errorf("config.payload_format must be json or chat")
		}
		if len(ch.Config.Secret) > 255 {
			return fmt.Errorf("config.secret must be at most 255 characters")
		}
	case storage.ChannelEmail:
		if ch.Config.Address == "" {
			return fmt.Errorf("config.address is required for email channels")
		}
		if _, err := mail.ParseAddress(ch.Config.Address); err != nil {
			return fmt.Errorf("config.address must be a valid email address")
		}
	default:
		return fmt.Errorf("channel_type must be webhook or email")
	}
	return nil
}

// ValidateAlertRule enforces the zero-or-at-least-five rule on both
// intervals. Zero disables the behavior.
func ValidateAlertRule(r *storage.AlertRule) error {
	if r.RepeatIntervalMinutes != 0 && r.RepeatIntervalMinutes < 5 {
		return fmt.Errorf("repeat_interval_minutes must be 0 or at least 5")
	}
	if r.EscalationAfterMinutes != 0 && r.EscalationAfterMinutes < 5 {
		return fmt.Errorf("escalation_after_minutes must be 0 or at least 5")
	}
	if r.MaxRepeats < 0 {
		return fmt.Errorf("max_repeats must be non-negative")
	}
	return nil
}

// ValidateMaintenanceWindow requires a bounded future-facing window.
func ValidateMaintenanceWindow(w *storage.MaintenanceWindow) error {
	w.Title = strings.TrimSpace(w.Title)
	if w.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(w.Title) > 200 {
		return fmt.Errorf("title must be at most 200 characters")
	}
	if w.StartsAt.IsZero() {
		return fmt.Errorf("starts_at is required")
	}
	if w.EndsAt.IsZero() {
		return fmt.Errorf("ends_at is required")
	}
	if !w.EndsAt.After(w.StartsAt) {
		return fmt.Errorf("ends_at must be after starts_at")
	}
	return nil
}

var slugPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]*[a-z0-9])?$`)

var reservedSlugs = map[string]bool{
	"api": true, "metrics": true, "health": true, "events": true,
	"ws": true, "badge": true, "probe": true, "static": true,
	"agents": true, "status-pages": true, "monitors": true,
}

// ValidateStatusPage checks a page for create or update. The slug is
// derived from the title when absent, and the custom head HTML is
// sanitized in place.
func ValidateStatusPage(sp *storage.StatusPage) error {
	sp.Title = strings.TrimSpace(sp.Title)
	if sp.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(sp.Title) > 200 {
		return fmt.Errorf("title must be at most 200 characters")
	}
	if sp.Slug == "" {
		sp.Slug = Slugify(sp.Title)
	}
	sp.Slug = strings.ToLower(strings.TrimSpace(sp.Slug))
	if len(sp.Slug) > 50 || !slugPattern.MatchString(sp.Slug) {
		return fmt.Errorf("slug must be 1-50 lowercase letters, digits or hyphens")
	}
	if reservedSlugs[sp.Slug] {
		return fmt.Errorf("slug %q is reserved", sp.Slug)
	}
	if len(sp.Description) > 1000 {
		return fmt.Errorf("description must be at most 1000 characters")
	}
	if len(sp.CustomHeadHTML) > 5000 {
		return fmt.Errorf("custom_head_html must be at most 5000 characters")
	}
	sp.CustomHeadHTML = SanitizeHeadHTML(sp.CustomHeadHTML)
	if len(sp.MonitorIDs) > 100 {
		return fmt.Errorf("at most 100 monitors per status page")
	}
	return nil
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns a title into a URL slug, falling back to "status".
func Slugify(title string) string {
	slug := strings.Trim(slugStrip.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if slug == "" {
		return "status"
	}
	if len(slug) > 50 {
		slug = strings.Trim(slug[:50], "-")
	}
	return slug
}

// Tags allowed in status page head HTML. Anything else is dropped,
// including all text content outside style tags.
var safeHeadTags = map[atom.Atom]bool{
	atom.Meta: true, atom.Link: true, atom.Style: true, atom.Script: true,
}

var safeMetaAttrs = map[string]bool{
	"name": true, "content": true, "property": true, "charset": true,
}

var safeLinkRels = map[string]bool{
	"stylesheet": true, "icon": true, "shortcut icon": true,
	"apple-touch-icon": true, "preconnect": true,
}

var safeScriptAttrs = map[string]bool{
	"async": true, "defer": true, "type": true, "crossorigin": true,
	"integrity": true, "data-domain": true, "data-website-id": true,
	"data-host-url": true, "data-api": true,
}

// styleDangerPattern rejects style bodies that smuggle script through
// CSS escape hatches.
var styleDangerPattern = regexp.MustCompile(`(?i)(expression\s*\(|javascript\s*:|@import|behavior\s*:|binding\s*:|url\s*\(\s*['"]?\s*(?:javascript|data)\s*:)`)

// SanitizeHeadHTML reduces user-supplied head HTML for public status
// pages to meta tags, stylesheet and icon links, style blocks without
// script-bearing CSS, and script tags that load from https URLs. Inline
// script bodies never survive.
func SanitizeHeadHTML(input string) string {
	if input == "" {
		return ""
	}
	tokenizer := html.NewTokenizer(strings.NewReader(input))
	var buf strings.Builder
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return buf.String()
		case html.StartTagToken, html.SelfClosingTagToken:
			t := tokenizer.Token()
			if !safeHeadTags[t.DataAtom] {
				continue
			}
			switch t.DataAtom {
			case atom.Meta:
				writeTag(&buf, "meta", filterAttrs(t.Attr, func(k, v string) bool {
					return safeMetaAttrs[k]
				}))
			case atom.Link:
				emitLink(&buf, t.Attr)
			case atom.Script:
				emitScript(&buf, t.Attr)
			case atom.Style:
				emitStyle(&buf, tokenizer)
			}
		}
	}
}

func filterAttrs(attrs []html.Attribute, keep func(k, v string) bool) []html.Attribute {
	var out []html.Attribute
	for _, a := range attrs {
		key := strings.ToLower(a.Key)
		if strings.HasPrefix(key, "on") || !keep(key, a.Val) {
			continue
		}
		out = append(out, html.Attribute{Key: key, Val: a.Val})
	}
	return out
}

func writeTag(buf *strings.Builder, name string, attrs []html.Attribute) {
	if len(attrs) == 0 {
		return
	}
	buf.WriteByte('<')
	buf.WriteString(name)
	for _, a := range attrs {
		buf.WriteByte(' ')
		buf.WriteString(a.Key)
		buf.WriteString(`="`)
		buf.WriteString(html.EscapeString(a.Val))
		buf.WriteByte('"')
	}
	buf.WriteString(">\n")
}

func safeRef(val string) bool {
	v := strings.ToLower(strings.TrimSpace(val))
	return strings.HasPrefix(v, "https://") || strings.HasPrefix(v, "/")
}

func emitLink(buf *strings.Builder, attrs []html.Attribute) {
	var rel, href string
	for _, a := range attrs {
		switch strings.ToLower(a.Key) {
		case "rel":
			rel = strings.ToLower(strings.TrimSpace(a.Val))
		case "href":
			href = strings.TrimSpace(a.Val)
		}
	}
	if !safeLinkRels[rel] || (href != "" && !safeRef(href)) {
		return
	}
	out := []html.Attribute{{Key: "rel", Val: rel}}
	if href != "" {
		out = append(out, html.Attribute{Key: "href", Val: href})
	}
	writeTag(buf, "link", out)
}

func emitScript(buf *strings.Builder, attrs []html.Attribute) {
	var src string
	var safe []html.Attribute
	for _, a := range attrs {
		key := strings.ToLower(a.Key)
		if strings.HasPrefix(key, "on") {
			continue
		}
		if key == "src" {
			v := strings.TrimSpace(a.Val)
			if strings.HasPrefix(strings.ToLower(v), "https://") {
				src = v
			}
			continue
		}
		if safeScriptAttrs[key] {
			safe = append(safe, html.Attribute{Key: key, Val: a.Val})
		}
	}
	if src == "" {
		return
	}
	buf.WriteString(`<script src="`)
	buf.WriteString(html.EscapeString(src))
	buf.WriteByte('"')
	for _, a := range safe {
		buf.WriteByte(' ')
		buf.WriteString(a.Key)
		buf.WriteString(`="`)
		buf.WriteString(html.EscapeString(a.Val))
		buf.WriteByte('"')
	}
	buf.WriteString("></script>\n")
}

func emitStyle(buf *strings.Builder, tokenizer *html.Tokenizer) {
	var css strings.Builder
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			return
		}
		if tt == html.EndTagToken {
			break
		}
		if tt == html.TextToken {
			css.WriteString(tokenizer.Token().Data)
		}
	}
	body := strings.NewReplacer("<", "", ">", "", "\\", "").Replace(css.String())
	if strings.TrimSpace(body) == "" || styleDangerPattern.MatchString(body) {
		return
	}
	buf.WriteString("<style>")
	buf.WriteString(body)
	buf.WriteString("</style>\n")
}
