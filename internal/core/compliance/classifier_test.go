package compliance

import (
	"errors"
	"testing"

	"github.com/jinford/lawcheck/internal/core/compliance/chunk"
	"github.com/stretchr/testify/assert"
)

func TestClassifiedResult_Details(t *testing.T) {
	t.Run("注記なし", func(t *testing.T) {
		r := classifiedResult("law", 0.8123, DefaultThreshold, nil)
		assert.Equal(t, StatusCompliant, r.Status)
		assert.Equal(t, "Similarity score: 0.81", r.Details)
		assert.InDelta(t, 0.8123, *r.Similarity, 1e-12)
	})

	t.Run("切り詰めの注記付き", func(t *testing.T) {
		note := truncationNote("law text", chunk.Result{TotalTokens: 30000, KeptTokens: 20000})
		r := classifiedResult("law", 0.5, DefaultThreshold, []string{note})
		assert.Equal(t, StatusNonCompliant, r.Status)
		assert.Equal(t, "Similarity score: 0.50; law text truncated from 30000 to 20000 tokens", r.Details)
	})
}

func TestErrorResult(t *testing.T) {
	err := failAt(stageChunked, "embedding generation failed", errors.New("quota exceeded"))
	r := errorResult("law", err)

	assert.Equal(t, StatusError, r.Status)
	assert.Nil(t, r.Similarity)
	assert.Equal(t, "Error during compliance check: embedding generation failed: quota exceeded", r.Details)
	assert.Equal(t, stageChunked, failedStage(err))
	assert.Equal(t, stagePending, failedStage(errors.New("other")))
}

func TestNotFoundResult(t *testing.T) {
	r := notFoundResult("Not Found")
	assert.Equal(t, StatusNotFound, r.Status)
	assert.Equal(t, "Law not found in the system.", r.Details)
}

func TestStage_String(t *testing.T) {
	assert.Equal(t, "pending", stagePending.String())
	assert.Equal(t, "classified", stageClassified.String())
	assert.Equal(t, "unknown", stage(99).String())
}
