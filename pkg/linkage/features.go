package linkage

import (
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// Comparator returns the similarity of two field values in [0,1] and false when either side is missing.
// Every comparator is symmetric.
type Comparator func(a, b FieldValue) (float64, bool)

// FeatureVector holds one similarity per compared field. Missing is distinct from zero similarity.
type FeatureVector struct {
	Values  []float64
	Missing []bool
}

// Comparer builds feature vectors over a fixed field list
type Comparer struct {
	fields      []config.LinkerField
	comparators []Comparator
}

// NewComparer resolves the comparator of every field
func NewComparer(fields []config.LinkerField) (*Comparer, error) {
	c := &Comparer{fields: fields, comparators: make([]Comparator, len(fields))}
	for i, f := range fields {
		cmp, ok := comparators[f.Comparator]
		if !ok {
			return nil, errors.Errorf("field %s: unknown comparator %q", f.Name, f.Comparator)
		}
		c.comparators[i] = cmp
	}
	return c, nil
}

// Compare builds the feature vector of a pair
func (c *Comparer) Compare(a, b Person) FeatureVector {
	fv := FeatureVector{Values: make([]float64, len(c.fields)), Missing: make([]bool, len(c.fields))}
	for i, f := range c.fields {
		sim, ok := c.comparators[i](a.Fields[f.Name], b.Fields[f.Name])
		if !ok {
			fv.Missing[i] = true
			continue
		}
		fv.Values[i] = sim
	}
	return fv
}

// Width is the length of a design-matrix row
func (c *Comparer) Width() int {
	w := len(c.fields)
	for _, f := range c.fields {
		if f.HasMissing {
			w++
		}
	}
	return w
}

// Row renders a feature vector as a design-matrix row: one similarity per field,
// then one missing indicator per field declared has_missing
func (c *Comparer) Row(fv FeatureVector) []float64 {
	row := make([]float64, 0, c.Width())
	row = append(row, fv.Values...)
	for i, f := range c.fields {
		if !f.HasMissing {
			continue
		}
		if fv.Missing[i] {
			row = append(row, 1)
		} else {
			row = append(row, 0)
		}
	}
	return row
}

// ColumnNames labels the design-matrix columns
func (c *Comparer) ColumnNames() []string {
	names := make([]string, 0, c.Width())
	for _, f := range c.fields {
		names = append(names, f.Name)
	}
	for _, f := range c.fields {
		if f.HasMissing {
			names = append(names, f.Name+":missing")
		}
	}
	return names
}

var comparators = map[string]Comparator{
	config.ComparatorString:   compareString,
	config.ComparatorExact:    compareExact,
	config.ComparatorDate:     compareDate,
	config.ComparatorPrice:    comparePrice,
	config.ComparatorSet:      compareSet,
	config.ComparatorInterval: compareInterval,
}

func compareString(a, b FieldValue) (float64, bool) {
	if len(a.Values) == 0 || len(b.Values) == 0 {
		return 0, false
	}
	best := 0.0
	for _, x := range a.Values {
		for _, y := range b.Values {
			best = math.Max(best, math.Max(matching.JaroWinkler(x, y), matching.JaroWinkler(y, x)))
		}
	}
	return best, true
}

func compareExact(a, b FieldValue) (float64, bool) {
	if len(a.Values) == 0 || len(b.Values) == 0 {
		return 0, false
	}
	if a.Values[0] == b.Values[0] {
		return 1, true
	}
	return 0, true
}

func compareSet(a, b FieldValue) (float64, bool) {
	if len(a.Values) == 0 || len(b.Values) == 0 {
		return 0, false
	}
	in := make(map[string]bool, len(a.Values))
	for _, v := range a.Values {
		in[normalizers.NormalizeLabel(v)] = true
	}
	for _, v := range b.Values {
		if in[normalizers.NormalizeLabel(v)] {
			return 1, true
		}
	}
	return 0, true
}

func compareDate(a, b FieldValue) (float64, bool) {
	x, okA := firstDate(a.Values)
	y, okB := firstDate(b.Values)
	if !okA || !okB {
		return 0, false
	}
	return matching.DateDecay(x, y, 365*24*time.Hour), true
}

func comparePrice(a, b FieldValue) (float64, bool) {
	x, okA := firstNumber(a.Values)
	y, okB := firstNumber(b.Values)
	if !okA || !okB {
		return 0, false
	}
	return matching.LogRatio(x, y), true
}

// compareInterval is 1 for overlapping ranges, otherwise the date decay of the gap between them
func compareInterval(a, b FieldValue) (float64, bool) {
	aBegin, aEnd, okA := dateRange(a)
	bBegin, bEnd, okB := dateRange(b)
	if !okA || !okB {
		return 0, false
	}
	if !aBegin.After(bEnd) && !bBegin.After(aEnd) {
		return 1, true
	}
	if aEnd.Before(bBegin) {
		return matching.DateDecay(aEnd, bBegin, 365*24*time.Hour), true
	}
	return matching.DateDecay(bEnd, aBegin, 365*24*time.Hour), true
}

func dateRange(v FieldValue) (time.Time, time.Time, bool) {
	var begin, end time.Time
	for _, raw := range append(append([]string(nil), v.Values...), v.End...) {
		t, err := normalizers.ParseDate(raw)
		if err != nil {
			continue
		}
		if begin.IsZero() || t.Before(begin) {
			begin = t
		}
		if end.IsZero() || t.After(end) {
			end = t
		}
	}
	return begin, end, !begin.IsZero()
}

func firstDate(values []string) (time.Time, bool) {
	for _, raw := range values {
		if t, err := normalizers.ParseDate(raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func firstNumber(values []string) (float64, bool) {
	for _, raw := range values {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
