package model

import "time"

// ExpiringSoonWindow is how far ahead a link's expiry counts as "expiring soon".
const ExpiringSoonWindow = 7 * 24 * time.Hour

// Link describes a short link owned by exactly one user.
type Link struct {
	ID          string     `json:"id" gorm:"primaryKey;size:36"`
	UserID      string     `json:"userId" gorm:"size:36;not null;index"`
	ShortCode   string     `json:"shortCode" gorm:"size:32;not null;uniqueIndex"`
	OriginalURL string     `json:"originalUrl" gorm:"type:text;not null"`
	CustomAlias *string    `json:"customAlias" gorm:"size:32"`
	ExpiresAt   *time.Time `json:"expiresAt" gorm:"index"`
	ClickCount  int64      `json:"clickCount" gorm:"not null;default:0"`
	CreatedAt   time.Time  `json:"createdAt" gorm:"not null;index"`
}

// NewLink carries the caller-supplied fields of a link about to be created.
type NewLink struct {
	UserID      string
	OriginalURL string
	CustomAlias string
	ExpiresAt   *time.Time
}

// IsExpired reports whether the link's expiration instant has passed.
// Links without an expiry never expire.
func (l *Link) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(now)
}

// IsExpiringSoon reports whether the link is still live but expires within
// ExpiringSoonWindow.
func (l *Link) IsExpiringSoon(now time.Time) bool {
	if l.ExpiresAt == nil || l.IsExpired(now) {
		return false
	}
	return !l.ExpiresAt.After(now.Add(ExpiringSoonWindow))
}
