// Package features derives the fixed feature vector the direction model was
// trained on from the tail of a daily price series.
//
// The schema is an explicit, ordered contract shared with the ml package: a
// vector carries the schema it was built for and predictors refuse vectors
// whose schema differs from the one their model expects.
package features

import (
	"fmt"
	"math"
	"strings"
)

// Feature names, in training order.
const (
	Lag1         = "lag_1"
	Lag2         = "lag_2"
	PctChange    = "pct_change"
	RollingMean3 = "rolling_mean_3"
	RollingStd3  = "rolling_std_3"
)

// WindowSize is the trailing window used by the rolling statistics and the
// minimum number of observations needed to build a vector.
const WindowSize = 3

// Schema is an ordered list of feature names.
type Schema []string

// DefaultSchema returns the schema produced by Builder.
func DefaultSchema() Schema {
	return Schema{Lag1, Lag2, PctChange, RollingMean3, RollingStd3}
}

// Equal reports whether both schemas name the same features in the same order.
func (s Schema) Equal(other Schema) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Index returns the position of name or -1.
func (s Schema) Index(name string) int {
	for i, n := range s {
		if n == name {
			return i
		}
	}
	return -1
}

func (s Schema) String() string {
	return "[" + strings.Join(s, ", ") + "]"
}

// Vector is an immutable set of feature values keyed by an ordered schema.
type Vector struct {
	schema Schema
	values []float64
}

// NewVector pairs values with schema. The slices are copied.
func NewVector(schema Schema, values []float64) (Vector, error) {
	if len(schema) != len(values) {
		return Vector{}, fmt.Errorf("schema has %d features, got %d values", len(schema), len(values))
	}
	v := Vector{
		schema: make(Schema, len(schema)),
		values: make([]float64, len(values)),
	}
	copy(v.schema, schema)
	copy(v.values, values)
	return v, nil
}

// Schema returns a copy of the vector's schema.
func (v Vector) Schema() Schema {
	out := make(Schema, len(v.schema))
	copy(out, v.schema)
	return out
}

// Values returns a copy of the values in schema order.
func (v Vector) Values() []float64 {
	out := make([]float64, len(v.values))
	copy(out, v.values)
	return out
}

// Get returns the value of the named feature.
func (v Vector) Get(name string) (float64, bool) {
	i := v.schema.Index(name)
	if i < 0 {
		return 0, false
	}
	return v.values[i], true
}

// Map returns the features as a name to value map.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, len(v.schema))
	for i, name := range v.schema {
		m[name] = v.values[i]
	}
	return m
}

// Len returns the number of features.
func (v Vector) Len() int { return len(v.values) }

// Finite reports whether every value is a finite number.
func (v Vector) Finite() bool {
	for _, x := range v.values {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
