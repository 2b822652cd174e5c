package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jinford/lawcheck/internal/core/compliance"
	"github.com/jinford/lawcheck/internal/core/compliance/document"
)

// checkRequest は JSON で送信される判定リクエスト
type checkRequest struct {
	Document     string            `json:"document"`
	Laws         map[string]string `json:"laws"`
	SelectedLaws []string          `json:"selected_laws"`
}

// checkResponse は判定結果のレスポンス
type checkResponse struct {
	Result []compliance.Result `json:"result"`
}

// errorResponse はエラーレスポンス
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// requestError はクライアントに返すステータスコード付きのエラー
type requestError struct {
	status  int
	message string
	err     error
}

func (e *requestError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}
	return e.message
}

func (e *requestError) Unwrap() error {
	return e.err
}

// multipartEnvelopeBytes はファイル以外のフォーム項目と境界文字列に許す上限
const multipartEnvelopeBytes = 1 << 20

func tooLarge(limit int64) *requestError {
	return &requestError{
		status:  http.StatusRequestEntityTooLarge,
		message: fmt.Sprintf("File size exceeds maximum of %d bytes", limit),
	}
}

func badRequest(message string, err error) *requestError {
	return &requestError{status: http.StatusBadRequest, message: message, err: err}
}

// contractCompliance は POST /api/contract-compliance を処理する
// multipart/form-data（file, selected_laws, laws）と application/json の両方を受け付ける
func (s *Server) contractCompliance(c *gin.Context) {
	var (
		req compliance.Request
		err error
	)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		req, err = s.parseMultipart(c)
	} else {
		req, err = s.parseJSON(c)
	}
	if err != nil {
		s.writeRequestError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.requestTimeout)
	defer cancel()

	results, err := s.checker.Check(ctx, req)
	if err != nil {
		if errors.Is(err, compliance.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		s.logger.Error("unexpected error in contract compliance", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Internal server error", Details: err.Error()})
		return
	}

	c.JSON(http.StatusOK, checkResponse{Result: results})
}

func (s *Server) parseJSON(c *gin.Context) (compliance.Request, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes)

	var body checkRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return compliance.Request{}, &requestError{status: http.StatusRequestEntityTooLarge, message: "Request body is too large"}
		}
		return compliance.Request{}, badRequest("Invalid JSON body", err)
	}

	if strings.TrimSpace(body.Document) == "" || len(body.SelectedLaws) == 0 {
		return compliance.Request{}, badRequest("Document and selected laws are required", nil)
	}

	return compliance.Request{
		DocumentText: body.Document,
		Laws:         body.Laws,
		LawIDs:       body.SelectedLaws,
	}, nil
}

func (s *Server) parseMultipart(c *gin.Context) (compliance.Request, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes+multipartEnvelopeBytes)

	fileHeader, err := c.FormFile("file")
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return compliance.Request{}, tooLarge(s.maxUploadBytes)
	}
	selected := c.PostFormArray("selected_laws")
	if err != nil || len(selected) == 0 {
		return compliance.Request{}, badRequest("File and selected laws are required", err)
	}
	if fileHeader.Filename == "" {
		return compliance.Request{}, badRequest("No file selected", nil)
	}
	if fileHeader.Size > s.maxUploadBytes {
		return compliance.Request{}, tooLarge(s.maxUploadBytes)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return compliance.Request{}, &requestError{status: http.StatusInternalServerError, message: "Failed to read the uploaded file", err: err}
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, s.maxUploadBytes+1))
	if err != nil {
		return compliance.Request{}, &requestError{status: http.StatusInternalServerError, message: "Failed to read the uploaded file", err: err}
	}

	text, encoding, err := document.Decode(content)
	if err != nil {
		return compliance.Request{}, badRequest("Uploaded file could not be processed", err)
	}
	s.logger.Debug("uploaded document decoded",
		"filename", fileHeader.Filename,
		"bytes", len(content),
		"encoding", encoding,
	)

	laws := map[string]string{}
	if raw := c.PostForm("laws"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &laws); err != nil {
			return compliance.Request{}, badRequest("Invalid laws field", err)
		}
	}

	return compliance.Request{
		DocumentText: text,
		Laws:         laws,
		LawIDs:       selected,
	}, nil
}

func (s *Server) writeRequestError(c *gin.Context, err error) {
	var reqErr *requestError
	if !errors.As(err, &reqErr) {
		reqErr = &requestError{status: http.StatusInternalServerError, message: "Internal server error", err: err}
	}

	s.logger.Warn("rejected compliance request", "status", reqErr.status, "error", err)

	resp := errorResponse{Error: reqErr.message}
	if reqErr.err != nil {
		resp.Details = reqErr.err.Error()
	}
	c.JSON(reqErr.status, resp)
}
