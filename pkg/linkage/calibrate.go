package linkage

import (
	"sort"
)

// Calibration is the chosen threshold and its quality on the labeled pairs
type Calibration struct {
	Threshold float64 `json:"threshold"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	FScore    float64 `json:"f_score"`
}

// Calibrate picks the threshold that maximizes F-beta when pairs scoring strictly
// above it are predicted as matches. beta below 1 favours precision.
// Ties prefer the higher threshold.
func Calibrate(scores []float64, labels []bool, beta float64) Calibration {
	type scored struct {
		score float64
		match bool
	}
	items := make([]scored, len(scores))
	positives := 0
	for i, s := range scores {
		items[i] = scored{score: s, match: labels[i]}
		if labels[i] {
			positives++
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].score > items[j].score })

	best := Calibration{Threshold: 1}
	if positives == 0 || len(items) == 0 {
		return best
	}

	b2 := beta * beta
	tp, fp := 0, 0
	for i := 0; i < len(items); {
		// Take every item sharing this score so the threshold separates distinct scores
		j := i
		for j < len(items) && items[j].score == items[i].score {
			if items[j].match {
				tp++
			} else {
				fp++
			}
			j++
		}

		next := items[i].score - 1
		if j < len(items) {
			next = items[j].score
		}
		threshold := (items[i].score + next) / 2

		precision := float64(tp) / float64(tp+fp)
		recall := float64(tp) / float64(positives)
		f := 0.0
		if precision+recall > 0 {
			f = (1 + b2) * precision * recall / (b2*precision + recall)
		}
		if f > best.FScore {
			best = Calibration{Threshold: threshold, Precision: precision, Recall: recall, FScore: f}
		}
		i = j
	}
	return best
}
