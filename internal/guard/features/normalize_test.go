package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenzhangda16/grantguard/internal/guard/model"
)

func TestNormalizeScalesColumnsIndependently(t *testing.T) {
	in := Table{
		Columns: []string{"a", "b", "c"},
		Voters:  []string{"0XA", "0XB", "0XC"},
		Rows: [][]float64{
			{0, 10, 5},
			{5, 20, 5},
			{10, 30, 5},
		},
	}
	out, err := Normalize(in)
	require.NoError(t, err)

	assert.Equal(t, in.Voters, out.Voters)
	assert.Equal(t, []float64{0, 0.5, 1}, out.Column("a"))
	assert.Equal(t, []float64{0, 0.5, 1}, out.Column("b"))
	// zero range
	assert.Equal(t, []float64{0, 0, 0}, out.Column("c"))
	// input untouched
	assert.Equal(t, float64(10), in.Rows[2][0])

	for _, r := range out.Rows {
		for _, v := range r {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
}

func TestNormalizeInsufficientData(t *testing.T) {
	_, err := Normalize(Table{Columns: []string{"a"}, Voters: []string{"0XA"}, Rows: [][]float64{{1}}})
	assert.ErrorIs(t, err, model.ErrInsufficientData)

	_, err = Normalize(Table{})
	assert.ErrorIs(t, err, model.ErrInsufficientData)
}
