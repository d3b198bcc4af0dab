package linkage

import (
	"math"

	"github.com/pkg/errors"
)

// Classifier is an L2-regularized logistic regression
type Classifier struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// TrainOptions control gradient descent
type TrainOptions struct {
	Iterations   int
	LearningRate float64
	L2           float64
}

// Train fits a classifier with full-batch gradient descent from zero weights,
// so the same data always yields the same model
func Train(x [][]float64, y []bool, opts TrainOptions) (*Classifier, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, errors.Errorf("training set has %d rows and %d labels", len(x), len(y))
	}
	width := len(x[0])
	for i, row := range x {
		if len(row) != width {
			return nil, errors.Errorf("row %d has %d columns, expected %d", i, len(row), width)
		}
	}

	c := &Classifier{Weights: make([]float64, width)}
	n := float64(len(x))
	grad := make([]float64, width)

	for iter := 0; iter < opts.Iterations; iter++ {
		for j := range grad {
			grad[j] = 0
		}
		gradBias := 0.0

		for i, row := range x {
			diff := c.Predict(row) - boolFloat(y[i])
			for j, v := range row {
				grad[j] += diff * v
			}
			gradBias += diff
		}

		for j := range c.Weights {
			c.Weights[j] -= opts.LearningRate * (grad[j]/n + opts.L2*c.Weights[j])
		}
		c.Bias -= opts.LearningRate * gradBias / n
	}

	return c, nil
}

// Predict returns the match probability of a design-matrix row
func (c *Classifier) Predict(row []float64) float64 {
	z := c.Bias
	for j, v := range row {
		z += c.Weights[j] * v
	}
	return sigmoid(z)
}

// Contributions returns each column's share of the linear score
func (c *Classifier) Contributions(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = c.Weights[j] * v
	}
	return out
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
