package domain

import "time"

// DetectionMethod records how a resolution was inferred.
type DetectionMethod string

const (
	DetectionFinalPrices   DetectionMethod = "final_prices"
	DetectionExplicitField DetectionMethod = "explicit_field"
	DetectionManual        DetectionMethod = "manual"
)

// Resolution records the inferred winner of a closed market. Written
// once per condition ID; upserts allow a later, more authoritative
// detection method to overwrite an earlier one.
type Resolution struct {
	ConditionID     string
	Outcome         *string
	WinnerTokenID   *string
	PayoutPrice     float64
	DetectionMethod DetectionMethod
	ResolvedAt      time.Time
}
