package api

import (
	"fmt"
	"html"
	"net/http"
	"time"
)

// Badge endpoints answer with an SVG in every case, including errors, so
// they can be embedded in READMEs without breaking the image.

const (
	colorGreen  = "#4c1"
	colorYellow = "#dfb317"
	colorRed    = "#e05d44"
	colorGrey   = "#9f9f9f"
)

func statusColor(status string) string {
	switch status {
	case "up":
		return colorGreen
	case "degraded", "maintenance":
		return colorYellow
	case "down":
		return colorRed
	default:
		return colorGrey
	}
}

// StatusBadge renders the monitor's current status. Private monitors
// render as "not found" so the badge does not confirm their existence.
func (h *Handler) StatusBadge(w http.ResponseWriter, r *http.Request) {
	m, err := h.store.GetMonitor(r.Context(), r.PathValue("id"))
	if err != nil || !m.IsPublic {
		writeBadgeSVG(w, "status", "not found", colorGrey)
		return
	}
	writeBadgeSVG(w, m.Name, m.CurrentStatus, statusColor(m.CurrentStatus))
}

// UptimeBadge renders 30-day uptime for public monitors.
func (h *Handler) UptimeBadge(w http.ResponseWriter, r *http.Request) {
	m, err := h.store.GetMonitor(r.Context(), r.PathValue("id"))
	if err != nil || !m.IsPublic {
		writeBadgeSVG(w, "uptime", "not found", colorGrey)
		return
	}

	now := time.Now().UTC()
	stats, err := h.store.GetUptimeStats(r.Context(), m.ID, now.Add(-30*24*time.Hour), now)
	if err != nil {
		writeBadgeSVG(w, "uptime", "error", colorGrey)
		return
	}
	if stats.TotalChecks == 0 {
		writeBadgeSVG(w, "uptime", "no data", colorGrey)
		return
	}

	color := colorGreen
	if stats.UptimePct < 99 {
		color = colorYellow
	}
	if stats.UptimePct < 95 {
		color = colorRed
	}
	writeBadgeSVG(w, "uptime", fmt.Sprintf("%.2f%%", stats.UptimePct), color)
}

func writeBadgeSVG(w http.ResponseWriter, label, value, color string) {
	label = html.EscapeString(label)
	value = html.EscapeString(value)

	labelWidth := len(label)*7 + 10
	valueWidth := len(value)*7 + 10
	totalWidth := labelWidth + valueWidth

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "max-age=300")

	svg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="20">
  <linearGradient id="b" x2="0" y2="100%%">
    <stop offset="0" stop-color="#bbb" stop-opacity=".1"/>
    <stop offset="1" stop-opacity=".1"/>
  </linearGradient>
  <clipPath id="a">
    <rect width="%d" height="20" rx="3" fill="#fff"/>
  </clipPath>
  <g clip-path="url(#a)">
    <rect width="%d" height="20" fill="#555"/>
    <rect x="%d" width="%d" height="20" fill="%s"/>
    <rect width="%d" height="20" fill="url(#b)"/>
  </g>
  <g fill="#fff" text-anchor="middle" font-family="DejaVu Sans,Verdana,Geneva,sans-serif" font-size="11">
    <text x="%d" y="15" fill="#010101" fill-opacity=".3">%s</text>
    <text x="%d" y="14">%s</text>
    <text x="%d" y="15" fill="#010101" fill-opacity=".3">%s</text>
    <text x="%d" y="14">%s</text>
  </g>
</svg>`,
		totalWidth,
		totalWidth,
		labelWidth, labelWidth, valueWidth, color,
		totalWidth,
		labelWidth/2, label,
		labelWidth/2, label,
		labelWidth+valueWidth/2, value,
		labelWidth+valueWidth/2, value,
	)

	w.Write([]byte(svg))
}
