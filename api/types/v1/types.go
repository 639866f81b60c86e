// Package types defines the JSON types served by the callbridge status API.
package types

// HealthResponse is the response from /api/v1/health
type HealthResponse struct {
	Status string `json:"status"`
	Uptime int64  `json:"uptime"`
	NodeID string `json:"node_id,omitempty"`
}

// StatsResponse is the response from /api/v1/stats
type StatsResponse struct {
	ActiveSessions       int          `json:"active_sessions"`
	Conferences          int          `json:"conferences"`
	AccountRegistered    bool         `json:"account_registered"`
	AccountActive        bool         `json:"account_active"`
	ForegroundActive     bool         `json:"foreground_active"`
	Wakeups              int64        `json:"wakeups"`
	ReachabilityTimeouts int64        `json:"reachability_timeouts"`
	EventSubscribers     int          `json:"event_subscribers"`
	PendingEvents        int          `json:"pending_events"`
	Reachability         Reachability `json:"reachability"`
}

// Reachability mirrors the reachability monitor state
type Reachability struct {
	Available   bool   `json:"available"`
	Initialized bool   `json:"initialized"`
	Reachable   bool   `json:"reachable"`
	Status      string `json:"status"`
}

// Audio is the audio sub-state of a call
type Audio struct {
	Muted           bool   `json:"muted"`
	Route           string `json:"route"`
	SupportedRoutes int    `json:"supported_routes"`
}

// Call represents one live call session
type Call struct {
	CallID       string         `json:"call_id"`
	Handle       string         `json:"handle,omitempty"`
	Name         string         `json:"name,omitempty"`
	Direction    string         `json:"direction"`
	State        string         `json:"state"`
	Audio        Audio          `json:"audio"`
	Capabilities string         `json:"capabilities"`
	SelfManaged  bool           `json:"self_managed"`
	Conference   string         `json:"conference,omitempty"`
	Extras       map[string]any `json:"extras,omitempty"`
	Duration     int            `json:"duration"`
	CreatedAt    string         `json:"created_at"`
	AnsweredAt   string         `json:"answered_at,omitempty"`
}

// Conference is a group of merged calls
type Conference struct {
	ID        string   `json:"id"`
	Members   []string `json:"members"`
	Merges    int      `json:"merges"`
	CreatedAt string   `json:"created_at"`
}

// ErrorResponse is returned with non-2xx statuses
type ErrorResponse struct {
	Error string `json:"error"`
}
