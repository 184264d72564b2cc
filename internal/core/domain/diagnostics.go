package domain

// System health derived from stored events.
const (
	HealthCritical  = "CRITICAL"
	HealthAttention = "ATTENTION"
	HealthHealthy   = "HEALTHY"
)

// HighSeverityAttentionThreshold is the number of HIGH events above which the
// system reports ATTENTION when no pending CRITICAL events exist.
const HighSeverityAttentionThreshold = 5

type Diagnostics struct {
	TotalEvents     int            `json:"totalEvents"`
	BySeverity      map[string]int `json:"bySeverity"`
	PendingCritical int            `json:"pendingCritical"`
	OriginTables    []string       `json:"originTables"`
	Recent          []AuditEvent   `json:"recent"`
	Health          string         `json:"health"`
}

// DeriveHealth applies the health rules: any pending CRITICAL event makes the
// system CRITICAL; otherwise more than the threshold of HIGH events makes it
// ATTENTION; otherwise HEALTHY.
func DeriveHealth(pendingCritical, highCount int) string {
	switch {
	case pendingCritical > 0:
		return HealthCritical
	case highCount > HighSeverityAttentionThreshold:
		return HealthAttention
	default:
		return HealthHealthy
	}
}
