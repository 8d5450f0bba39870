package model

import "time"

// Click is one recorded visit against a link. Clicks are append-only.
type Click struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	LinkID    string    `json:"linkId" gorm:"size:36;not null;index"`
	Timestamp time.Time `json:"timestamp" gorm:"not null;index"`
	IPAddress *string   `json:"ipAddress" gorm:"size:64"`
	UserAgent *string   `json:"userAgent" gorm:"type:text"`
	Device    *string   `json:"device" gorm:"size:32;index"`
	Browser   *string   `json:"browser" gorm:"size:64;index"`
	OS        *string   `json:"os" gorm:"size:64;index"`
	Referrer  *string   `json:"referrer" gorm:"type:text"`
	Country   *string   `json:"country" gorm:"size:64;index"`
}

// NewClick carries a click captured at redirect time. A zero Timestamp is
// replaced with the store's current time.
type NewClick struct {
	LinkID    string
	Timestamp time.Time
	IPAddress string
	UserAgent string
	Device    string
	Browser   string
	OS        string
	Referrer  string
	Country   string
}

// Visit is the raw request metadata the route layer hands to the engine on a
// successful redirect.
type Visit struct {
	IP        string
	UserAgent string
	Referrer  string
	At        time.Time
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
