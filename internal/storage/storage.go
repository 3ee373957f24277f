package storage

import (
	"context"
	"time"
)

// Store defines the complete storage interface.
type Store interface {
	// Monitors
	CreateMonitor(ctx context.Context, m *Monitor) error
	GetMonitor(ctx context.Context, id string) (*Monitor, error)
	GetMonitorByName(ctx context.Context, name string) (*Monitor, error)
	ListPublicMonitors(ctx context.Context) ([]*Monitor, error)
	UpdateMonitor(ctx context.Context, m *Monitor) error
	DeleteMonitor(ctx context.Context, id string) error
	SetMonitorPaused(ctx context.Context, id string, paused bool) error
	NextDueMonitor(ctx context.Context, now time.Time) (*Monitor, error)

	// Heartbeats
	ApplyHeartbeat(ctx context.Context, hb *Heartbeat, eval func(EvalInput) EvalDecision) (*ApplyResult, error)
	ListHeartbeats(ctx context.Context, monitorID string, c Cursor) ([]*Heartbeat, error)
	LatestStatusCounts(ctx context.Context, monitorID string, now time.Time) (*StatusCounts, error)

	// Incidents
	GetIncident(ctx context.Context, id string) (*Incident, error)
	GetOpenIncident(ctx context.Context, monitorID string) (*Incident, error)
	ListIncidents(ctx context.Context, monitorID string, c Cursor) ([]*Incident, error)
	AcknowledgeIncident(ctx context.Context, id, note, by string) error
	ListOpenIncidentAlerts(ctx context.Context) ([]*OpenIncidentAlert, error)
	BumpIncidentReminders(ctx context.Context, id string) error
	MarkIncidentEscalated(ctx context.Context, id string) error

	// Check locations
	CreateLocation(ctx context.Context, l *CheckLocation) error
	GetLocation(ctx context.Context, id string) (*CheckLocation, error)
	GetLocationByKeyHash(ctx context.Context, keyHash string) (*CheckLocation, error)
	ListLocations(ctx context.Context, now time.Time) ([]*CheckLocation, error)
	DeleteLocation(ctx context.Context, id string) error
	TouchLocation(ctx context.Context, id string, at time.Time) error

	// Notification channels
	CreateNotificationChannel(ctx context.Context, ch *NotificationChannel) error
	GetNotificationChannel(ctx context.Context, id string) (*NotificationChannel, error)
	ListMonitorChannels(ctx context.Context, monitorID string) ([]*NotificationChannel, error)
	ListEnabledMonitorChannels(ctx context.Context, monitorID string) ([]*NotificationChannel, error)
	UpdateNotificationChannel(ctx context.Context, ch *NotificationChannel) error
	DeleteNotificationChannel(ctx context.Context, id string) error

	// Maintenance windows
	CreateMaintenanceWindow(ctx context.Context, w *MaintenanceWindow) error
	GetMaintenanceWindow(ctx context.Context, id string) (*MaintenanceWindow, error)
	ListMaintenanceWindows(ctx context.Context, monitorID string) ([]*MaintenanceWindow, error)
	DeleteMaintenanceWindow(ctx context.Context, id string) error
	InMaintenance(ctx context.Context, monitorID string, at time.Time) (bool, error)

	// Dependencies
	AddDependency(ctx context.Context, monitorID, dependsOnID string) error
	RemoveDependency(ctx context.Context, monitorID, dependsOnID string) error
	HasDependency(ctx context.Context, monitorID, dependsOnID string) (bool, error)
	ListDependencies(ctx context.Context, monitorID string) ([]*Monitor, error)
	ListDependents(ctx context.Context, monitorID string) ([]*Monitor, error)
	DependencyPathExists(ctx context.Context, fromID, toID string) (bool, error)
	AnyDependencyDown(ctx context.Context, monitorID string) (bool, error)

	// Alert rules
	PutAlertRule(ctx context.Context, r *AlertRule) error
	GetAlertRule(ctx context.Context, monitorID string) (*AlertRule, error)
	DeleteAlertRule(ctx context.Context, monitorID string) error

	// Webhook deliveries
	InsertWebhookDelivery(ctx context.Context, d *WebhookDelivery) error
	ListWebhookDeliveries(ctx context.Context, monitorID string, c Cursor) ([]*WebhookDelivery, error)

	// Status pages
	CreateStatusPage(ctx context.Context, p *StatusPage) error
	GetStatusPageBySlug(ctx context.Context, slug string) (*StatusPage, error)
	UpdateStatusPage(ctx context.Context, p *StatusPage) error
	DeleteStatusPage(ctx context.Context, id string) error
	SetStatusPageMonitors(ctx context.Context, pageID string, monitorIDs []string) error
	ListStatusPageMonitors(ctx context.Context, pageID string) ([]*Monitor, error)

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// Stats
	GetUptimeStats(ctx context.Context, monitorID string, from, to time.Time) (*UptimeStats, error)
	GetDailyUptime(ctx context.Context, monitorID string, from, to time.Time) ([]*DailyUptime, error)
	GetResponseTimePercentiles(ctx context.Context, monitorID string, from, to time.Time) (p50, p95, p99 int64, err error)

	// Data retention
	PurgeOldHeartbeats(ctx context.Context, before time.Time) (int64, error)

	// Lifecycle
	Close() error
}
