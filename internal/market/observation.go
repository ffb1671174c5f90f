// Package market holds the price series types shared by the history sources,
// the snapshot store and the feature builder.
package market

import (
	"sort"
	"time"
)

// Observation is a single closing price at a point in time.
type Observation struct {
	Timestamp int64   `json:"timestamp"` // unix seconds
	Price     float64 `json:"price"`
}

// Time returns the observation timestamp in UTC.
func (o Observation) Time() time.Time {
	return time.Unix(o.Timestamp, 0).UTC()
}

// Normalize returns a copy of obs sorted by timestamp ascending with duplicate
// timestamps collapsed. The later entry in input order wins.
func Normalize(obs []Observation) []Observation {
	if len(obs) == 0 {
		return nil
	}

	out := make([]Observation, len(obs))
	copy(out, obs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})

	n := 0
	for i := range out {
		if n > 0 && out[n-1].Timestamp == out[i].Timestamp {
			out[n-1] = out[i]
			continue
		}
		out[n] = out[i]
		n++
	}
	return out[:n]
}

// Latest returns the most recent observation and false if obs is empty.
func Latest(obs []Observation) (Observation, bool) {
	if len(obs) == 0 {
		return Observation{}, false
	}
	return obs[len(obs)-1], true
}
