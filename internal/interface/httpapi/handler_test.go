package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/lawcheck/internal/core/compliance"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubChecker は受け取ったリクエストを記録し、固定の結果を返す
type stubChecker struct {
	got compliance.Request
	err error
}

func (s *stubChecker) Check(ctx context.Context, req compliance.Request) ([]compliance.Result, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	results := make([]compliance.Result, len(req.LawIDs))
	for i, id := range req.LawIDs {
		if _, ok := req.Laws[id]; !ok {
			results[i] = compliance.Result{LawID: id, Status: compliance.StatusNotFound, Details: "Law not found in the system."}
			continue
		}
		sim := 0.9
		results[i] = compliance.Result{LawID: id, Status: compliance.StatusCompliant, Similarity: &sim, Details: "Similarity score: 0.90"}
	}
	return results, nil
}

func newTestServer(checker Checker, opts ...Option) *Server {
	return NewServer(checker, append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)...)
}

func multipartBody(t *testing.T, file []byte, fields map[string][]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if file != nil {
		part, err := w.CreateFormFile("file", "contract.txt")
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	for key, values := range fields {
		for _, v := range values {
			require.NoError(t, w.WriteField(key, v))
		}
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&stubChecker{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestContractCompliance_Multipart(t *testing.T) {
	checker := &stubChecker{}
	srv := newTestServer(checker)

	body, contentType := multipartBody(t, []byte("השוכר ישלם דמי שכירות"), map[string][]string{
		"selected_laws": {"rental", "Not Found"},
		"laws":          {`{"rental": "rent law text"}`},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/contract-compliance", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "השוכר ישלם דמי שכירות", checker.got.DocumentText)
	assert.Equal(t, []string{"rental", "Not Found"}, checker.got.LawIDs)

	var resp struct {
		Result []map[string]any `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Result, 2)
	assert.Equal(t, "Compliant", resp.Result[0]["status"])
	assert.Equal(t, 0.9, resp.Result[0]["similarity_score"])
	assert.Equal(t, "NotFound", resp.Result[1]["status"])
	assert.NotContains(t, resp.Result[1], "similarity_score")
}

func TestContractCompliance_MultipartISO88598(t *testing.T) {
	checker := &stubChecker{}
	srv := newTestServer(checker)

	// "שלום" in ISO-8859-8
	body, contentType := multipartBody(t, []byte{0xF9, 0xEC, 0xE5, 0xED}, map[string][]string{
		"selected_laws": {"x"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/contract-compliance", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "שלום", checker.got.DocumentText)
}

func TestContractCompliance_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		file   []byte
		fields map[string][]string
		status int
		errMsg string
	}{
		{
			name:   "ファイルなし",
			fields: map[string][]string{"selected_laws": {"rental"}},
			status: http.StatusBadRequest,
			errMsg: "File and selected laws are required",
		},
		{
			name:   "法令の指定なし",
			file:   []byte("contract"),
			status: http.StatusBadRequest,
			errMsg: "File and selected laws are required",
		},
		{
			name:   "バイナリファイル",
			file:   []byte{0x00, 0x01, 0x02, 0x00, 0xFF},
			fields: map[string][]string{"selected_laws": {"rental"}},
			status: http.StatusBadRequest,
			errMsg: "Uploaded file could not be processed",
		},
		{
			name:   "不正な laws フィールド",
			file:   []byte("contract"),
			fields: map[string][]string{"selected_laws": {"rental"}, "laws": {"not json"}},
			status: http.StatusBadRequest,
			errMsg: "Invalid laws field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&stubChecker{})
			body, contentType := multipartBody(t, tt.file, tt.fields)
			req := httptest.NewRequest(http.MethodPost, "/api/contract-compliance", body)
			req.Header.Set("Content-Type", contentType)

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.errMsg, resp.Error)
		})
	}
}

func TestContractCompliance_FileTooLarge(t *testing.T) {
	srv := newTestServer(&stubChecker{}, WithMaxUploadBytes(8))

	body, contentType := multipartBody(t, []byte(strings.Repeat("a", 64)), map[string][]string{"selected_laws": {"x"}})
	req := httptest.NewRequest(http.MethodPost, "/api/contract-compliance", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

// countingReader は読み出したバイト数を記録する
type countingReader struct {
	r    io.Reader
	read int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += int64(n)
	return n, err
}

func TestContractCompliance_OversizedMultipartStopsReading(t *testing.T) {
	const limit = 8
	checker := &stubChecker{}
	srv := newTestServer(checker, WithMaxUploadBytes(limit))

	huge := bytes.Repeat([]byte("a"), limit+multipartEnvelopeBytes+(2<<20))
	body, contentType := multipartBody(t, huge, map[string][]string{"selected_laws": {"x"}})
	total := int64(body.Len())
	counter := &countingReader{r: body}

	req := httptest.NewRequest(http.MethodPost, "/api/contract-compliance", counter)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.LessOrEqual(t, counter.read, int64(limit+multipartEnvelopeBytes+1))
	assert.Less(t, counter.read, total)
	assert.Empty(t, checker.got.LawIDs)
}

func TestContractCompliance_JSON(t *testing.T) {
	checker := &stubChecker{}
	srv := newTestServer(checker)

	payload := `{"document": "tenant pays rent", "laws": {"rental": "rent law"}, "selected_laws": ["rental"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/contract-compliance", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "tenant pays rent", checker.got.DocumentText)
	assert.Contains(t, rec.Body.String(), `"law_id":"rental"`)
}

func TestContractCompliance_JSONMissingFields(t *testing.T) {
	srv := newTestServer(&stubChecker{})

	req := httptest.NewRequest(http.MethodPost, "/api/contract-compliance", strings.NewReader(`{"document": "x"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContractCompliance_CheckerFailure(t *testing.T) {
	srv := newTestServer(&stubChecker{err: errors.New("boom")})

	payload := `{"document": "x", "selected_laws": ["a"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/contract-compliance", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
}
