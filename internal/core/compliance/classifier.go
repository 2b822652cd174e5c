package compliance

import (
	"errors"
	"fmt"

	"github.com/jinford/lawcheck/internal/core/compliance/chunk"
)

// Classify は類似度を判定結果に変換する
// threshold ちょうどは Compliant 側に含める
func Classify(similarity, threshold float64) Status {
	if similarity >= threshold {
		return StatusCompliant
	}
	return StatusNonCompliant
}

// stage は法令ごとの判定の進行段階
type stage int

const (
	stagePending stage = iota
	stageChunked
	stageEmbedded
	stageScored
	stageClassified
)

func (s stage) String() string {
	switch s {
	case stagePending:
		return "pending"
	case stageChunked:
		return "chunked"
	case stageEmbedded:
		return "embedded"
	case stageScored:
		return "scored"
	case stageClassified:
		return "classified"
	default:
		return "unknown"
	}
}

// stageError はどの段階で失敗したかを保持する
type stageError struct {
	stage  stage
	detail string
	err    error
}

func (e *stageError) Error() string {
	return fmt.Sprintf("%s: %v", e.detail, e.err)
}

func (e *stageError) Unwrap() error {
	return e.err
}

func failAt(s stage, detail string, err error) *stageError {
	return &stageError{stage: s, detail: detail, err: err}
}

func notFoundResult(lawID string) Result {
	return Result{
		LawID:   lawID,
		Status:  StatusNotFound,
		Details: "Law not found in the system.",
	}
}

func errorResult(lawID string, err error) Result {
	return Result{
		LawID:   lawID,
		Status:  StatusError,
		Details: fmt.Sprintf("Error during compliance check: %v", err),
	}
}

// failedStage は err が発生した段階を返す
func failedStage(err error) stage {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage
	}
	return stagePending
}

func classifiedResult(lawID string, similarity, threshold float64, notes []string) Result {
	details := fmt.Sprintf("Similarity score: %.2f", similarity)
	for _, n := range notes {
		details += "; " + n
	}

	return Result{
		LawID:      lawID,
		Status:     Classify(similarity, threshold),
		Similarity: &similarity,
		Details:    details,
	}
}

func truncationNote(side string, r chunk.Result) string {
	return fmt.Sprintf("%s truncated from %d to %d tokens", side, r.TotalTokens, r.KeptTokens)
}
