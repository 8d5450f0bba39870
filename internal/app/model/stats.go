package model

// ClickStat is the number of clicks on one calendar day (UTC, "2006-01-02").
type ClickStat struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// DeviceStat is one device class's share of a link's clicks.
type DeviceStat struct {
	Device     string `json:"device"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}

// BreakdownStat is a generic labelled share, used for browsers and operating systems.
type BreakdownStat struct {
	Label      string `json:"label"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}

// DashboardStats is the per-user rollup shown on the dashboard.
type DashboardStats struct {
	TotalLinks    int   `json:"totalLinks"`
	TotalClicks   int64 `json:"totalClicks"`
	ActiveLinks   int   `json:"activeLinks"`
	ExpiringLinks int   `json:"expiringLinks"`
}

// LinkWithStatus decorates a link with its expiry state at read time.
type LinkWithStatus struct {
	Link
	IsExpired      bool `json:"isExpired"`
	IsExpiringSoon bool `json:"isExpiringSoon"`
}

// LinkDetails is a link with its analytics.
type LinkDetails struct {
	LinkWithStatus
	ClickStats   []ClickStat     `json:"clickStats"`
	DeviceStats  []DeviceStat    `json:"deviceStats"`
	BrowserStats []BreakdownStat `json:"browserStats"`
	OSStats      []BreakdownStat `json:"osStats"`
}
