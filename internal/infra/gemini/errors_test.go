package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jinford/lawcheck/internal/core/compliance/embedding"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "gRPC ResourceExhausted", err: status.Error(codes.ResourceExhausted, "quota"), want: embedding.ErrRateLimited},
		{name: "gRPC Unavailable", err: status.Error(codes.Unavailable, "down"), want: embedding.ErrTransient},
		{name: "gRPC InvalidArgument", err: status.Error(codes.InvalidArgument, "bad"), want: embedding.ErrFatal},
		{name: "REST 429", err: &googleapi.Error{Code: 429, Message: "too many"}, want: embedding.ErrRateLimited},
		{name: "REST 503", err: &googleapi.Error{Code: 503}, want: embedding.ErrTransient},
		{name: "REST 403", err: &googleapi.Error{Code: 403}, want: embedding.ErrFatal},
		{name: "その他のエラー", err: errors.New("connection reset"), want: embedding.ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyError(tt.err)
			assert.ErrorIs(t, err, tt.want)

			var svcErr *embedding.ServiceError
			assert.ErrorAs(t, err, &svcErr)
			assert.Equal(t, "gemini", svcErr.Provider)
		})
	}

	assert.NoError(t, classifyError(nil))
}

func TestNewEmbedderRequiresAPIKey(t *testing.T) {
	_, err := NewEmbedder(context.Background(), "")
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}
