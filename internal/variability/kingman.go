package variability

// VariabilityLevel buckets the Kingman variability term.
type VariabilityLevel string

const (
	VariabilityLow      VariabilityLevel = "low"
	VariabilityModerate VariabilityLevel = "moderate"
	VariabilityHigh     VariabilityLevel = "high"
	VariabilityVeryHigh VariabilityLevel = "very_high"
)

// KingmanResult is the G/G/1 wait approximation breakdown.
// Wq ≈ (ρ/(1−ρ)) × ((Ca² + Cs²)/2) × (1/μ)
type KingmanResult struct {
	Stable          bool             `json:"stable"`
	ArrivalCV       float64          `json:"arrival_cv"`
	ServiceCV       float64          `json:"service_cv"`
	Utilization     float64          `json:"utilization"`
	VariabilityTerm float64          `json:"variability_term"`
	UtilizationTerm float64          `json:"utilization_term"`
	WaitMultiplier  float64          `json:"wait_multiplier"` // 0 when unstable
	VsIdealRatio    float64          `json:"vs_ideal_ratio"`  // against Poisson/exponential (Ca = Cs = 1)
	Level           VariabilityLevel `json:"level,omitempty"`
}

// KingmanImpact computes the Kingman multiplier on the mean service time.
func KingmanImpact(arrivalCV, serviceCV, utilization float64) KingmanResult {
	r := KingmanResult{
		ArrivalCV:   arrivalCV,
		ServiceCV:   serviceCV,
		Utilization: utilization,
	}

	variability := (arrivalCV*arrivalCV + serviceCV*serviceCV) / 2
	r.VariabilityTerm = variability
	r.VsIdealRatio = variability / 1.0
	r.Level = classifyVariability(variability)

	if utilization >= 1 {
		return r
	}

	r.Stable = true
	r.UtilizationTerm = utilization / (1 - utilization)
	r.WaitMultiplier = r.UtilizationTerm * variability
	return r
}

func classifyVariability(v float64) VariabilityLevel {
	switch {
	case v < 0.5:
		return VariabilityLow
	case v < 1.0:
		return VariabilityModerate
	case v < 2.0:
		return VariabilityHigh
	default:
		return VariabilityVeryHigh
	}
}
