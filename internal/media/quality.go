package media

import "strings"

// Tier is a caller-selected coarse bitrate target.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

var tierBitrates = map[Tier]int{
	TierLow:    128,
	TierMedium: 192,
	TierHigh:   320,
}

// Tiers lists every tier in ascending order.
func Tiers() []Tier {
	return []Tier{TierLow, TierMedium, TierHigh}
}

// ParseTier maps free-form input to a tier. Empty or unknown values select medium.
func ParseTier(value string) Tier {
	tier := Tier(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := tierBitrates[tier]; ok {
		return tier
	}
	return TierMedium
}

// TargetBitrate returns the tier's target in kbps. Unknown tiers use medium.
func (t Tier) TargetBitrate() int {
	if kbps, ok := tierBitrates[t]; ok {
		return kbps
	}
	return tierBitrates[TierMedium]
}

func (t Tier) String() string {
	return string(ParseTier(string(t)))
}
