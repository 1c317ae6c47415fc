package model

// Balance thresholds in kWh.
const (
	WarningThreshold  = 10.0
	AbundantThreshold = 100.0
)

// Status is the per-meter balance label.
type Status string

const (
	StatusAbundant Status = "abundant"
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
)

// statusTiers maps a balance to a label; a balance must be strictly above
// Above to match.
var statusTiers = []struct {
	Above  float64
	Status Status
}{
	{AbundantThreshold, StatusAbundant},
	{WarningThreshold, StatusOK},
}

// StatusOf classifies a single balance.
func StatusOf(balance float64) Status {
	for _, t := range statusTiers {
		if balance > t.Above {
			return t.Status
		}
	}
	return StatusWarning
}

// IsLow reports whether either meter is at or below the warning threshold.
func IsLow(r Reading) bool {
	return r.Light <= WarningThreshold || r.AC <= WarningThreshold
}
