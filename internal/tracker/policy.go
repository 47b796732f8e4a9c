package tracker

// ArrivalPolicy decides whether a sample counts as being at the destination.
// MaxAccuracyM of zero disables the accuracy gate, leaving a fixed radius.
type ArrivalPolicy struct {
	RadiusM      float64
	MaxAccuracyM float64
}

// DefaultPolicy is an 80 m radius gated on fixes no worse than 80 m.
func DefaultPolicy() ArrivalPolicy {
	return ArrivalPolicy{RadiusM: 80, MaxAccuracyM: 80}
}

// Admits reports whether a fix distanceM from the destination with the given
// reported accuracy satisfies the policy. A gated policy rejects fixes that
// report no accuracy at all.
func (p ArrivalPolicy) Admits(distanceM float64, accuracyM *float64) bool {
	if distanceM > p.RadiusM {
		return false
	}
	if p.MaxAccuracyM <= 0 {
		return true
	}
	return accuracyM != nil && *accuracyM <= p.MaxAccuracyM
}
