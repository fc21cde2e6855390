package domain

import "time"

// Market represents a Polymarket prediction market as seen by the
// metadata poller. One market has one condition ID and one CLOB token
// ID per outcome (two for a binary market).
type Market struct {
	ID              string
	EventID         string
	ConditionID     string
	Slug            string
	Question        string
	Outcomes        []string // e.g. ["Yes","No"]
	ClobTokenIDs    []string // 76-digit opaque strings, index-aligned with Outcomes
	NegRisk         bool
	TickSize        float64
	Active          bool
	Closed          bool
	AcceptingOrders bool
	VolumeTotal     float64
	Liquidity       float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
