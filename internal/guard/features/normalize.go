package features

import "github.com/chenzhangda16/grantguard/internal/guard/model"

// Normalize min-max scales every column to [0,1] independently.
// A column with zero range scales to 0. The input is not modified.
func Normalize(t Table) (Table, error) {
	if t.Len() < 2 {
		return Table{}, model.ErrInsufficientData
	}
	nc := len(t.Columns)
	lo := make([]float64, nc)
	hi := make([]float64, nc)
	copy(lo, t.Rows[0])
	copy(hi, t.Rows[0])
	for _, r := range t.Rows[1:] {
		for j, v := range r {
			if v < lo[j] {
				lo[j] = v
			}
			if v > hi[j] {
				hi[j] = v
			}
		}
	}

	out := Table{
		Columns: append([]string(nil), t.Columns...),
		Voters:  append([]string(nil), t.Voters...),
		Rows:    make([][]float64, len(t.Rows)),
	}
	for i, r := range t.Rows {
		nr := make([]float64, nc)
		for j, v := range r {
			if span := hi[j] - lo[j]; span > 0 {
				nr[j] = (v - lo[j]) / span
			}
		}
		out.Rows[i] = nr
	}
	return out, nil
}
