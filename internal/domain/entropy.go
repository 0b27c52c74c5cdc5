package domain

// EntropyMeasurement quantifies the disorder of a batch.
type EntropyMeasurement struct {
	ArrivalCV        float64 `json:"arrival_cv"`
	ServiceCV        float64 `json:"service_cv"`
	ServiceCVAssumed bool    `json:"service_cv_assumed"` // default used, too few duration samples
	EntropyScore     float64 `json:"entropy_score"`      // normalized Shannon entropy in [0,1]

	// VarianceImpactMultiplier is max(1, 1 + (Ca² + Cs²)/2).
	VarianceImpactMultiplier float64 `json:"variance_impact_multiplier"`
}

// NeutralEntropy is used when variability cannot be measured.
func NeutralEntropy() EntropyMeasurement {
	return EntropyMeasurement{VarianceImpactMultiplier: 1.0}
}
