package storage

import (
	"time"
)

// Monitor types.
const (
	TypeHTTP = "http"
	TypeTCP  = "tcp"
	TypeDNS  = "dns"
)

// Monitor statuses.
const (
	StatusUnknown     = "unknown"
	StatusUp          = "up"
	StatusDown        = "down"
	StatusDegraded    = "degraded"
	StatusMaintenance = "maintenance"
)

// Notification channel types.
const (
	ChannelWebhook = "webhook"
	ChannelEmail   = "email"
)

// Webhook delivery outcomes.
const (
	DeliverySuccess = "success"
	DeliveryFailed  = "failed"
)

// SettingAdminKeyHash is the settings key holding the digest of the
// process admin key. Seeded at startup, checked by the admin endpoints.
const SettingAdminKeyHash = "admin_key_hash"

// Monitor is a durable check definition.
type Monitor struct {
	ID                      string            `json:"id"`
	Name                    string            `json:"name"`
	Type                    string            `json:"monitor_type"` // http, tcp, dns
	URL                     string            `json:"url"`
	Method                  string            `json:"method,omitempty"`
	Headers                 map[string]string `json:"headers,omitempty"`
	ExpectedStatus          int               `json:"expected_status,omitempty"`
	BodyContains            string            `json:"body_contains,omitempty"`
	FollowRedirects         bool              `json:"follow_redirects"`
	DNSRecordType           string            `json:"dns_record_type,omitempty"`
	DNSExpected             string            `json:"dns_expected,omitempty"`
	IntervalSeconds         int               `json:"interval_seconds"`
	TimeoutMs               int               `json:"timeout_ms"`
	ConfirmationThreshold   int               `json:"confirmation_threshold"`
	ResponseTimeThresholdMs int               `json:"response_time_threshold_ms,omitempty"` // 0 = unset
	ConsensusThreshold      int               `json:"consensus_threshold,omitempty"`        // 0 = single location
	IsPublic                bool              `json:"is_public"`
	IsPaused                bool              `json:"is_paused"`
	Tags                    []string          `json:"tags"`
	GroupName               string            `json:"group_name,omitempty"`
	SLATarget               float64           `json:"sla_target"`
	SLAPeriodDays           int               `json:"sla_period_days"`
	CurrentStatus           string            `json:"current_status"`
	ConsecutiveFailures     int               `json:"consecutive_failures"`
	LastCheckedAt           *time.Time        `json:"last_checked_at,omitempty"`
	CreatedAt               time.Time         `json:"created_at"`
	UpdatedAt               time.Time         `json:"updated_at"`

	ManageKeyHash string `json:"-"`
}

// Heartbeat is the immutable outcome of one check.
type Heartbeat struct {
	Seq            int64      `json:"seq"`
	ID             string     `json:"id"`
	MonitorID      string     `json:"monitor_id"`
	LocationID     *string    `json:"location_id,omitempty"`
	Status         string     `json:"status"` // up, down, degraded
	ResponseTimeMs int64      `json:"response_time_ms"`
	StatusCode     *int       `json:"status_code,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CheckedAt      time.Time  `json:"checked_at"`
}

// Incident is an open-or-closed failure episode for one monitor.
type Incident struct {
	Seq             int64      `json:"seq"`
	ID              string     `json:"id"`
	MonitorID       string     `json:"monitor_id"`
	StartedAt       time.Time  `json:"started_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	Cause           string     `json:"cause"`
	Acknowledgement string     `json:"acknowledgement,omitempty"`
	AcknowledgedBy  string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt  *time.Time `json:"acknowledged_at,omitempty"`

	// Alert rule bookkeeping, not exposed on the wire.
	RemindersSent int  `json:"-"`
	Escalated     bool `json:"-"`
}

// Acknowledged reports whether the incident carries an acknowledgement.
func (i *Incident) Acknowledged() bool {
	return i.AcknowledgedAt != nil
}

// Resolved reports whether the incident has been closed.
func (i *Incident) Resolved() bool {
	return i.ResolvedAt != nil
}

// CheckLocation is a registered remote probe.
type CheckLocation struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Region     string     `json:"region,omitempty"`
	IsActive   bool       `json:"is_active"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`

	// Stale is computed at read time against the probe staleness window.
	Stale bool `json:"stale"`

	ProbeKeyHash string `json:"-"`
}

// ChannelConfig is the delivery target of a notification channel.
// URL, PayloadFormat and Secret apply to webhooks, Address to email.
// A non-empty Secret makes deliveries carry an HMAC-SHA256 signature.
type ChannelConfig struct {
	URL           string `json:"url,omitempty"`
	PayloadFormat string `json:"payload_format,omitempty"` // json, chat
	Secret        string `json:"secret,omitempty"`
	Address       string `json:"address,omitempty"`
}

// NotificationChannel configures how one monitor's alerts are delivered.
type NotificationChannel struct {
	ID        string        `json:"id"`
	MonitorID string        `json:"monitor_id"`
	Name      string        `json:"name"`
	Type      string        `json:"channel_type"` // webhook, email
	Config    ChannelConfig `json:"config"`
	IsEnabled bool          `json:"is_enabled"`
	CreatedAt time.Time     `json:"created_at"`
}

// MaintenanceWindow suppresses incident creation while active.
type MaintenanceWindow struct {
	ID        string    `json:"id"`
	MonitorID string    `json:"monitor_id"`
	Title     string    `json:"title"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Active reports whether at is inside the window. The end bound is exclusive.
func (w *MaintenanceWindow) Active(at time.Time) bool {
	return !at.Before(w.StartsAt) && at.Before(w.EndsAt)
}

// MonitorDependency is a directed edge: MonitorID depends on DependsOnID.
type MonitorDependency struct {
	MonitorID   string    `json:"monitor_id"`
	DependsOnID string    `json:"depends_on_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// AlertRule drives repeated and escalated alerts for open incidents.
// A zero value disables the corresponding behavior.
type AlertRule struct {
	MonitorID              string `json:"monitor_id"`
	RepeatIntervalMinutes  int    `json:"repeat_interval_minutes"`
	MaxRepeats             int    `json:"max_repeats"`
	EscalationAfterMinutes int    `json:"escalation_after_minutes"`
}

// WebhookDelivery is the audit record of one webhook attempt.
type WebhookDelivery struct {
	Seq            int64     `json:"seq"`
	ID             string    `json:"id"`
	DeliveryGroup  string    `json:"delivery_group"`
	MonitorID      string    `json:"monitor_id"`
	Event          string    `json:"event"`
	URL            string    `json:"url"`
	Attempt        int       `json:"attempt"`
	Status         string    `json:"status"` // success, failed
	StatusCode     *int      `json:"status_code,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// StatusPage is a named public page aggregating a set of monitors.
type StatusPage struct {
	ID             string    `json:"id"`
	Slug           string    `json:"slug"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	CustomHeadHTML string    `json:"custom_head_html,omitempty"`
	MonitorIDs     []string  `json:"monitor_ids"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	ManageKeyHash string `json:"-"`
}

// StatusCounts are the latest-per-location heartbeat statuses for a monitor.
type StatusCounts struct {
	Up       int `json:"up"`
	Down     int `json:"down"`
	Degraded int `json:"degraded"`
	Unknown  int `json:"unknown"`
	Total    int `json:"total"`
}

// UptimeStats aggregates heartbeat outcomes over a period.
type UptimeStats struct {
	MonitorID      string  `json:"monitor_id"`
	TotalChecks    int64   `json:"total_checks"`
	UpChecks       int64   `json:"up_checks"`
	DownChecks     int64   `json:"down_checks"`
	DegradedChecks int64   `json:"degraded_checks"`
	UptimePct      float64 `json:"uptime_pct"`
	AvgResponseMs  int64   `json:"avg_response_ms"`
	MinResponseMs  int64   `json:"min_response_ms"`
	MaxResponseMs  int64   `json:"max_response_ms"`
}

// DailyUptime holds uptime statistics for a single day.
type DailyUptime struct {
	Date        string  `json:"date"`
	TotalChecks int64   `json:"total_checks"`
	UpChecks    int64   `json:"up_checks"`
	DownChecks  int64   `json:"down_checks"`
	UptimePct   float64 `json:"uptime_pct"`
}

// Cursor selects a page of a seq-ordered table. With After set the page is
// rows with seq > *After in ascending order; without it the page is the
// newest rows in descending order.
type Cursor struct {
	After *int64
	Limit int
}

const defaultPageSize = 50

func (c Cursor) limit() int {
	if c.Limit <= 0 {
		return defaultPageSize
	}
	return c.Limit
}

// EvalInput is the state the status engine evaluates, read inside the write
// transaction that records the heartbeat.
type EvalInput struct {
	Monitor       *Monitor
	Heartbeat     *Heartbeat
	InMaintenance bool
	// Counts is populated only when the monitor has a consensus threshold.
	Counts *StatusCounts
}

// EvalDecision is what the status engine wants persisted and emitted.
type EvalDecision struct {
	EffectiveStatus     string
	ConsecutiveFailures int
	OpenIncident        bool
	IncidentCause       string
	ResolveIncidents    bool
	Events              []string
}

// ApplyResult reports what a heartbeat application did.
type ApplyResult struct {
	Heartbeat         *Heartbeat
	Monitor           *Monitor
	OpenedIncident    *Incident
	ResolvedIncidents []*Incident
	Events            []string
	InMaintenance     bool
	// NotifySuppressed is set when a direct dependency of the monitor is
	// down, in which case notifications are skipped but the incident and
	// stream events still happen.
	NotifySuppressed bool
}

// OpenIncidentAlert pairs an open incident with its monitor and alert rule
// for the reminder worker.
type OpenIncidentAlert struct {
	Incident *Incident
	Monitor  *Monitor
	Rule     *AlertRule
}
