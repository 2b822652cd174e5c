package gemini

import (
	"errors"
	"fmt"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"

	"github.com/jinford/lawcheck/internal/core/compliance/embedding"
)

const providerName = "gemini"

// classifyError は gRPC / REST のエラーを embedding.ServiceError に変換する
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	if apiErr, ok := apierror.FromError(err); ok {
		if code := apiErr.HTTPCode(); code > 0 {
			return embedding.NewServiceError(providerName, code, embedding.KindFromStatus(code), err)
		}
		if st := apiErr.GRPCStatus(); st != nil {
			return embedding.NewServiceError(providerName, 0, kindFromCode(st.Code()), err)
		}
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return embedding.NewServiceError(providerName, gErr.Code, embedding.KindFromStatus(gErr.Code), err)
	}

	return embedding.NewServiceError(providerName, 0, embedding.ErrTransient, fmt.Errorf("request failed: %w", err))
}

func kindFromCode(code codes.Code) error {
	switch code {
	case codes.ResourceExhausted:
		return embedding.ErrRateLimited
	case codes.Unavailable, codes.DeadlineExceeded, codes.Internal, codes.Aborted, codes.Unknown:
		return embedding.ErrTransient
	default:
		return embedding.ErrFatal
	}
}
