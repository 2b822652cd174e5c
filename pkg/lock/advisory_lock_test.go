package lock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateLockID(t *testing.T) {
	a := GenerateLockID("lawcheck", "schema")
	assert.Equal(t, a, GenerateLockID("lawcheck", "schema"))
	assert.NotEqual(t, a, GenerateLockID("lawcheck", "other"))

	// 区切りがあるので連結結果が同じでも別のIDになる
	assert.NotEqual(t, GenerateLockID("ab", "c"), GenerateLockID("a", "bc"))
}
