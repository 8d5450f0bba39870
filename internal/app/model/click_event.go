package model

import "time"

// ClickEvent is the message published to JetStream for a visit that still
// needs to be written to the store.
type ClickEvent struct {
	ID        string    `json:"id"`
	LinkID    string    `json:"link_id"`
	LinkCode  string    `json:"link_code"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Referrer  string    `json:"referrer"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	ClickStreamName     = "CLICKS"
	ClickStreamSubject  = "clicks.events"
	ClickConsumerName   = "click-recorder"
	ClickStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)
