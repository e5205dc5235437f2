package analytics

import (
	"bytes"
	"cmp"
	"slices"

	json "github.com/goccy/go-json"

	"github.com/jun/stravastats/internal/model"
)

// TypeTotal is one activity type's aggregate.
type TypeTotal struct {
	Type  string
	Value float64
}

// Totals is ordered by Value descending; ties keep first-seen order.
// It encodes as a JSON object whose keys follow that order.
type Totals []TypeTotal

// Get returns the value for typ, or 0.
func (t Totals) Get(typ string) float64 {
	for _, tt := range t {
		if tt.Type == typ {
			return tt.Value
		}
	}
	return 0
}

func (t Totals) MarshalJSON() ([]byte, error) {
	return marshalOrdered(len(t), func(i int) (string, float64) { return t[i].Type, t[i].Value })
}

func marshalOrdered(n int, at func(int) (string, float64)) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i := 0; i < n; i++ {
		k, v := at(i)
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func groupByType(acts []model.Activity, value func(model.Activity) float64) Totals {
	index := make(map[string]int)
	var out Totals
	for _, a := range acts {
		i, ok := index[a.Type]
		if !ok {
			i = len(out)
			index[a.Type] = i
			out = append(out, TypeTotal{Type: a.Type})
		}
		out[i].Value += value(a)
	}
	slices.SortStableFunc(out, func(a, b TypeTotal) int {
		return cmp.Compare(b.Value, a.Value)
	})
	return out
}

// CountsByType counts activities per type.
func CountsByType(acts []model.Activity) Totals {
	return groupByType(acts, func(model.Activity) float64 { return 1 })
}

// MovingTimeByType sums moving seconds per type.
func MovingTimeByType(acts []model.Activity) Totals {
	return groupByType(acts, func(a model.Activity) float64 { return float64(a.MovingTimeSeconds) })
}

// DistanceByType sums meters per type.
func DistanceByType(acts []model.Activity) Totals {
	return groupByType(acts, func(a model.Activity) float64 { return a.DistanceMeters })
}
