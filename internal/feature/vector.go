package feature

import (
	"fmt"
	"sort"
)

// Vector is a single-row engineered feature record. Columns keep insertion
// order (the pipeline's stage order) so that FIT-time schema freezing and
// APPLY-time output agree positionally as well as by set.
type Vector struct {
	order []string
	nums  map[string]float64
	cats  map[string]string
}

// NewVector creates an empty engineered vector.
func NewVector() *Vector {
	return &Vector{
		nums: make(map[string]float64),
		cats: make(map[string]string),
	}
}

// SetNum sets a numeric column, appending it to the column order on first set.
func (v *Vector) SetNum(name string, val float64) {
	if _, numOK := v.nums[name]; !numOK {
		if _, catOK := v.cats[name]; !catOK {
			v.order = append(v.order, name)
		}
	}
	v.nums[name] = val
}

// SetCat sets a categorical (string) column.
func (v *Vector) SetCat(name, val string) {
	if _, catOK := v.cats[name]; !catOK {
		if _, numOK := v.nums[name]; !numOK {
			v.order = append(v.order, name)
		}
	}
	v.cats[name] = val
}

// Num returns a numeric column value.
func (v *Vector) Num(name string) (float64, bool) {
	val, ok := v.nums[name]
	return val, ok
}

// Cat returns a categorical column value.
func (v *Vector) Cat(name string) (string, bool) {
	val, ok := v.cats[name]
	return val, ok
}

// Has reports whether the column exists, numeric or categorical.
func (v *Vector) Has(name string) bool {
	_, numOK := v.nums[name]
	_, catOK := v.cats[name]
	return numOK || catOK
}

// Columns returns column names in pipeline stage order.
func (v *Vector) Columns() []string {
	out := make([]string, len(v.order))
	copy(out, v.order)
	return out
}

// NumericColumns returns the numeric column names in stage order.
func (v *Vector) NumericColumns() []string {
	out := make([]string, 0, len(v.nums))
	for _, c := range v.order {
		if _, ok := v.nums[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Slice extracts the named numeric columns in the given order. Missing or
// non-numeric columns are an error: model inputs must never be padded.
func (v *Vector) Slice(names []string) ([]float64, error) {
	out := make([]float64, len(names))
	for i, name := range names {
		val, ok := v.nums[name]
		if !ok {
			return nil, fmt.Errorf("slice features: column %q missing or not numeric", name)
		}
		out[i] = val
	}
	return out, nil
}

// columnSet returns the column names as a set.
func (v *Vector) columnSet() map[string]struct{} {
	set := make(map[string]struct{}, len(v.order))
	for _, c := range v.order {
		set[c] = struct{}{}
	}
	return set
}

// sortedColumns returns column names sorted lexically (for stable diffs).
func (v *Vector) sortedColumns() []string {
	out := v.Columns()
	sort.Strings(out)
	return out
}
