package entity

import "time"

// MarketSnapshot is the static market summary for a postal code used to
// personalize report emails.
type MarketSnapshot struct {
	Zipcode         string    `json:"zipcode"`
	Town            string    `json:"town"`
	County          string    `json:"county"`
	MedianPrice     int64     `json:"median_price"`
	PriceChangePct  float64   `json:"price_change_pct"`
	DaysOnMarket    int       `json:"days_on_market"`
	ActiveListings  int       `json:"active_listings"`
	SoldLast30Days  int       `json:"sold_last_30_days"`
	PricePerSqft    int       `json:"price_per_sqft"`
	InventoryMonths float64   `json:"inventory_months"`
	UpdatedAt       time.Time `json:"updated_at"`
}
