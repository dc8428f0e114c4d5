package monitoring

import "math"

// Sample is one matured (p_up, y_true) pair
type Sample struct {
	PUp   float64
	YTrue int
}

// CalibrationBin is one reliability-diagram bucket
type CalibrationBin struct {
	Bin           int     `json:"bin"`
	SampleCount   int     `json:"sample_count"`
	AvgPredicted  float64 `json:"avg_predicted"`
	ObservedRate  float64 `json:"observed_rate"`
	AbsoluteError float64 `json:"absolute_error"`
}

// binIndex maps p in [0,1] onto numBins equal-width bins
func binIndex(p float64, numBins int) int {
	idx := int(p * float64(numBins))
	if idx < 0 {
		return 0
	}
	if idx >= numBins {
		return numBins - 1
	}
	return idx
}

// CalculateCalibrationBins 캘리브레이션 빈 계산 (신뢰도 다이어그램용)
// 빈 빈(empty bin)은 결과에서 제외
func CalculateCalibrationBins(samples []Sample, numBins int) []CalibrationBin {
	if len(samples) == 0 || numBins <= 0 {
		return nil
	}

	sumPred := make([]float64, numBins)
	hits := make([]int, numBins)
	counts := make([]int, numBins)
	for _, s := range samples {
		i := binIndex(s.PUp, numBins)
		sumPred[i] += s.PUp
		hits[i] += s.YTrue
		counts[i]++
	}

	var result []CalibrationBin
	for i := 0; i < numBins; i++ {
		if counts[i] == 0 {
			continue
		}
		n := float64(counts[i])
		avg := sumPred[i] / n
		rate := float64(hits[i]) / n
		result = append(result, CalibrationBin{
			Bin:           i,
			SampleCount:   counts[i],
			AvgPredicted:  avg,
			ObservedRate:  rate,
			AbsoluteError: math.Abs(avg - rate),
		})
	}
	return result
}

// ECE is the sample-weighted mean |avg predicted - observed rate| across bins
func ECE(samples []Sample, numBins int) float64 {
	bins := CalculateCalibrationBins(samples, numBins)
	if len(bins) == 0 {
		return 0
	}
	total := 0.0
	for _, b := range bins {
		total += float64(b.SampleCount) * b.AbsoluteError
	}
	return total / float64(len(samples))
}

// Brier is the mean squared error of p_up against y_true
func Brier(samples []Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		d := s.PUp - float64(s.YTrue)
		sum += d * d
	}
	return sum / float64(len(samples))
}

const logLossEps = 1e-15

// LogLoss is the mean binary cross-entropy of p(sample) against y_true
func LogLoss(samples []Sample, p func(Sample) float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		q := math.Min(math.Max(p(s), logLossEps), 1-logLossEps)
		if s.YTrue == 1 {
			sum -= math.Log(q)
		} else {
			sum -= math.Log(1 - q)
		}
	}
	return sum / float64(len(samples))
}

// BaseRate is the observed fraction of y_true=1
func BaseRate(samples []Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	hits := 0
	for _, s := range samples {
		hits += s.YTrue
	}
	return float64(hits) / float64(len(samples))
}
