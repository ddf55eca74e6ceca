package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrouter/dispatch"
	"github.com/BaSui01/agentrouter/types"
)

// =============================================================================
// 🧪 Common 函数测试
// =============================================================================

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, `{"message":"hello"}`, w.Body.String())
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name           string
		err            *types.Error
		expectedStatus int
	}{
		{"invalid input", types.NewError(types.ErrInvalidInput, "text is required"), http.StatusBadRequest},
		{"unrecognized label", types.NewError(types.ErrUnrecognizedLabel, "maybe"), http.StatusUnprocessableEntity},
		{"no route", types.NewError(types.ErrNoRouteAndNoDefault, "no route"), http.StatusNotFound},
		{"worker failure", types.NewError(types.ErrWorkerFailure, "boom"), http.StatusBadGateway},
		{"explicit status wins", types.NewError(types.ErrInvalidRequest, "too big").WithHTTPStatus(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err, zap.NewNop())

			assert.Equal(t, tt.expectedStatus, w.Code)

			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.err.Code), resp.Error.Code)
			assert.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestWriteError_DetailsOnlyForClientErrors(t *testing.T) {
	t.Run("5xx cause stays out of the body", func(t *testing.T) {
		wf := &dispatch.WorkerFailure{
			Pool: "loan_team", Worker: "loan_agent_1",
			RoutingKey: dispatch.NewRoutingKey("urgent", "loan"),
			Cause:      errors.New(`401 Unauthorized {"error":"invalid x-api-key sk-secret"}`),
		}
		w := httptest.NewRecorder()
		WriteAnyError(w, wf, zap.NewNop())

		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.NotContains(t, w.Body.String(), "sk-secret")

		var resp Response
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Empty(t, resp.Error.Details)
		assert.Equal(t, string(types.ErrWorkerFailure), resp.Error.Code)
		assert.True(t, resp.Error.Retryable)
	})

	t.Run("classifier cause stays out of the body", func(t *testing.T) {
		err := types.NewError(types.ErrClassifierFailure, "classify topic").WithCause(errors.New("upstream body"))
		w := httptest.NewRecorder()
		WriteError(w, err, zap.NewNop())

		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.NotContains(t, w.Body.String(), "upstream body")
	})

	t.Run("4xx keeps details", func(t *testing.T) {
		err := types.NewError(types.ErrInvalidRequest, "invalid JSON body").WithCause(errors.New("unexpected EOF"))
		w := httptest.NewRecorder()
		WriteError(w, err, zap.NewNop())

		var resp Response
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "unexpected EOF", resp.Error.Details)
	})
}

func TestToAPIError(t *testing.T) {
	t.Run("types.Error passes through", func(t *testing.T) {
		in := types.NewError(types.ErrUnknownPool, "nope")
		assert.Same(t, in, ToAPIError(in))
	})

	t.Run("wrapped types.Error", func(t *testing.T) {
		in := types.NewError(types.ErrDuplicateRoute, "dup")
		out := ToAPIError(errors.Join(errors.New("context"), in))
		assert.Equal(t, types.ErrDuplicateRoute, out.Code)
	})

	t.Run("worker failure keeps its code", func(t *testing.T) {
		cause := errors.New("upstream 500")
		wf := &dispatch.WorkerFailure{Pool: "loan_team", Worker: "loan_agent_1", Cause: cause}
		out := ToAPIError(wf)
		assert.Equal(t, types.ErrWorkerFailure, out.Code)
		assert.True(t, out.Retryable)
		assert.ErrorIs(t, out, cause)
		assert.Contains(t, out.Message, "loan_agent_1")
		assert.NotContains(t, out.Message, "upstream 500")
		assert.Equal(t, http.StatusBadGateway, StatusFor(out))
	})

	t.Run("plain error is internal", func(t *testing.T) {
		out := ToAPIError(errors.New("disk on fire"))
		assert.Equal(t, types.ErrInternalError, out.Code)
		assert.Equal(t, http.StatusInternalServerError, StatusFor(out))
	})
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code       types.ErrorCode
		wantStatus int
	}{
		{types.ErrInvalidInput, http.StatusBadRequest},
		{types.ErrInvalidRequest, http.StatusBadRequest},
		{types.ErrInvalidRoutingKey, http.StatusBadRequest},
		{types.ErrUnauthorized, http.StatusUnauthorized},
		{types.ErrUnrecognizedLabel, http.StatusUnprocessableEntity},
		{types.ErrNoRouteAndNoDefault, http.StatusNotFound},
		{types.ErrUnknownPool, http.StatusNotFound},
		{types.ErrUnknownWorker, http.StatusNotFound},
		{types.ErrDuplicatePool, http.StatusConflict},
		{types.ErrDuplicateRoute, http.StatusConflict},
		{types.ErrDuplicateWorker, http.StatusConflict},
		{types.ErrWorkerAlreadyOwned, http.StatusConflict},
		{types.ErrRateLimited, http.StatusTooManyRequests},
		{types.ErrWorkerFailure, http.StatusBadGateway},
		{types.ErrClassifierFailure, http.StatusBadGateway},
		{types.ErrCancelled, http.StatusGatewayTimeout},
		{types.ErrEmptyPool, http.StatusInternalServerError},
		{types.ErrInternalError, http.StatusInternalServerError},
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, mapErrorCodeToHTTPStatus(tt.code))
		})
	}
}

func TestDecodeJSONBody(t *testing.T) {
	type body struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}

	tests := []struct {
		name       string
		body       string
		wantErr    bool
		wantStatus int
	}{
		{name: "valid JSON", body: `{"name":"test","value":123}`},
		{name: "invalid JSON", body: `{"name":"test",}`, wantErr: true, wantStatus: http.StatusBadRequest},
		{name: "unknown field", body: `{"name":"test","unknown":"field"}`, wantErr: true, wantStatus: http.StatusBadRequest},
		{name: "oversized", body: `{"name":"` + strings.Repeat("x", 2<<20) + `"}`, wantErr: true, wantStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(tt.body))

			var got body
			err := DecodeJSONBody(w, r, &got, zap.NewNop())
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, body{Name: "test", Value: 123}, got)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestDecodeJSONBody_Empty(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/test", http.NoBody)

	var v map[string]any
	err := DecodeJSONBody(w, r, &v, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateContentType(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"application/json; charset=UTF-8", true},
		{"Application/JSON", true},
		{"text/plain", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/test", nil)
			r.Header.Set("Content-Type", tt.contentType)

			assert.Equal(t, tt.want, ValidateContentType(w, r, zap.NewNop()))
			if !tt.want {
				assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
			}
		})
	}
}

func TestResponseWriter(t *testing.T) {
	w := httptest.NewRecorder()
	rw := NewResponseWriter(w)

	assert.Equal(t, http.StatusOK, rw.StatusCode)
	assert.False(t, rw.Written)

	rw.WriteHeader(http.StatusCreated)
	assert.Equal(t, http.StatusCreated, rw.StatusCode)
	assert.True(t, rw.Written)

	// 第二次 WriteHeader 被忽略
	rw.WriteHeader(http.StatusBadRequest)
	assert.Equal(t, http.StatusCreated, rw.StatusCode)

	n, err := rw.Write([]byte("test"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, int64(4), rw.BytesWritten)
	assert.Same(t, http.ResponseWriter(w), rw.Unwrap())
}
