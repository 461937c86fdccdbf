package ws

import "time"

// ConnInfo carries per-connection metadata used for event publishing and
// metrics. UserID stays zero until the identification handshake arrives.
type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
