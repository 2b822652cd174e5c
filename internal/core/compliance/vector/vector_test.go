package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMean(t *testing.T) {
	mean, err := Mean([][]float32{
		{1, 2, 3},
		{3, 4, 5},
	})
	require.NoError(t, err)
	assert.Equal(t, Vector{2, 3, 4}, mean)
}

func TestMean_Empty(t *testing.T) {
	mean, err := Mean(nil)
	assert.ErrorIs(t, err, ErrMissingVector)
	assert.Nil(t, mean)
}

func TestMean_DimensionMismatch(t *testing.T) {
	_, err := Mean([][]float32{{1, 2}, {1, 2, 3}})

	var dimErr *DimensionMismatchError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 2, dimErr.Expected)
	assert.Equal(t, 3, dimErr.Actual)
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b Vector
		want float64
	}{
		{name: "同一方向", a: Vector{1, 0}, b: Vector{2, 0}, want: 1},
		{name: "直交", a: Vector{1, 0}, b: Vector{0, 1}, want: 0},
		{name: "逆方向", a: Vector{1, 1}, b: Vector{-1, -1}, want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cosine(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCosine_Symmetric(t *testing.T) {
	pairs := [][2]Vector{
		{{0.1, -0.4, 0.9}, {0.3, 0.3, -0.2}},
		{{5, 1, 0, 2}, {1, 1, 1, 1}},
		{{-0.0001, 12}, {7, 0.5}},
	}

	for _, p := range pairs {
		ab, err := Cosine(p[0], p[1])
		require.NoError(t, err)
		ba, err := Cosine(p[1], p[0])
		require.NoError(t, err)
		assert.Equal(t, ab, ba)
	}
}

func TestCosine_SelfSimilarity(t *testing.T) {
	for _, v := range []Vector{{1}, {0.1, 0.1, 0.1}, {3, 5, 7, 11}, {0.2, -0.7, 3.1}, {1e-3, 1e3, -5}} {
		got, err := Cosine(v, v)
		require.NoError(t, err)
		assert.Equal(t, 1.0, got, "vector %v", v)
	}
}

func TestCosine_DoesNotMutateInputs(t *testing.T) {
	a := Vector{3, 4}
	b := Vector{4, 3}

	_, err := Cosine(a, b)
	require.NoError(t, err)
	assert.Equal(t, Vector{3, 4}, a)
	assert.Equal(t, Vector{4, 3}, b)
}

func TestCosine_Errors(t *testing.T) {
	_, err := Cosine(nil, Vector{1})
	assert.ErrorIs(t, err, ErrMissingVector)

	_, err = Cosine(Vector{1, 2}, Vector{1})
	var dimErr *DimensionMismatchError
	assert.ErrorAs(t, err, &dimErr)

	_, err = Cosine(Vector{0, 0}, Vector{1, 1})
	assert.ErrorIs(t, err, ErrZeroVector)
}
