package config

import "time"

const (
	// Validation
	MaxFingerprintLength = 128
	MaxDisplayNameLength = 32
	MaxInterestTags      = 10
	MaxInterestLength    = 40
	MaxTextLength        = 2000
	MaxMediaPayloadBytes = 4 << 20
	DefaultDisplayName   = "Stranger"

	// Interest matching
	MinPrefixLength = 3

	// Ban ladder. Thresholds count distinct reporters, never reports.
	BanThresholdReporters = 3
	CriticalBanReporters  = 2
	BanFrequencyWindow    = 24 * time.Hour
	BanLevel1Duration     = 30 * time.Minute
	BanLevel2Duration     = 6 * time.Hour
	BanLevel3Duration     = 24 * time.Hour
	BanEscalationWindow   = 7 * 24 * time.Hour

	// Rate limits
	MatchRequestLimit  = 10
	MatchRequestWindow = time.Minute
	MessageLimit       = 20
	MessageWindow      = 10 * time.Second
	ReportLimit        = 3
	ReportWindow       = 10 * time.Minute
)

// ComplaintWeights maps report severity to its weight. A report at or above
// BanWeightThreshold lowers the number of distinct reporters needed for a
// ban to CriticalBanReporters.
var ComplaintWeights = map[string]int{
	"Low":      5,
	"Medium":   50,
	"Critical": 250,
}

// BanWeightThreshold is the complaint weight that counts as critical.
const BanWeightThreshold = 250
