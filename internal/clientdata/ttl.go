package clientdata

import "time"

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	TTLTradingCalendar = 12 * time.Hour   // Holidays and early closes are published well ahead
	TTLRiskFreeRate    = 6 * time.Hour    // 10Y yield moves slowly relative to hourly snapshots
	TTLCurrentPrice    = 10 * time.Minute // Last-known price kept as a degraded fallback
)

// KeepForever marks a table whose stale rows are never pruned
const KeepForever time.Duration = -1

// StaleRetention is how long a row stays readable as a fallback after it expires.
// Past sessions never change and last-known prices are served however old,
// so those tables are only overwritten, never pruned.
var StaleRetention = map[string]time.Duration{
	TableTradingCalendar: KeepForever,
	TableCurrentPrices:   KeepForever,
	TableRiskFreeRate:    30 * 24 * time.Hour,
}
