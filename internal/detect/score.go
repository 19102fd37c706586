package detect

// Severity combines a pattern's rate with its affected-session share so a
// high-rate-but-tiny-sample pattern does not dominate a moderate-rate-but-
// large-sample one. Always in [0,1].
func Severity(rate float64, affected, total int) float64 {
	share := 0.0
	if total > 0 {
		share = float64(affected) / float64(total)
	}
	s := rate*0.7 + share*0.3
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// ConfidenceScore is a step function of sample size. Below 100 the score is
// 0 and the pattern is discarded upstream rather than stored.
func ConfidenceScore(sampleSize int) float64 {
	switch {
	case sampleSize < 100:
		return 0
	case sampleSize < 200:
		return 0.6
	case sampleSize < 500:
		return 0.8
	default:
		return 1.0
	}
}
