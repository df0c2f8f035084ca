package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"scribe/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestChain(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := &logging.Logger{Logger: zap.New(core)}

	var seen string
	h := Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = logging.InvocationID(r.Context())
			switch r.URL.Path {
			case "/boom":
				panic("boom")
			case "/late-boom":
				w.WriteHeader(http.StatusAccepted)
				panic("late")
			}
			w.WriteHeader(http.StatusTeapot)
			w.Write([]byte("tea"))
		}),
		RequestID,
		Logger(logger),
		Recover(logger),
	)

	t.Run("request id and access log", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))

		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, "request completed", entries[0].Message)
		assert.Equal(t, seen, entries[0].ContextMap()["invocation_id"])
		assert.EqualValues(t, http.StatusTeapot, entries[0].ContextMap()["status"])
		assert.EqualValues(t, 3, entries[0].ContextMap()["bytes"])
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	})

	t.Run("caller supplied id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set(RequestIDHeader, "abc")
		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, "abc", seen)
		logs.TakeAll()
	})

	t.Run("unusable caller id replaced", func(t *testing.T) {
		for _, id := range []string{"has space", strings.Repeat("x", 200)} {
			req := httptest.NewRequest(http.MethodGet, "/ok", nil)
			req.Header.Set(RequestIDHeader, id)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.NotEqual(t, id, seen)
			assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
		}
		logs.TakeAll()
	})

	t.Run("panic recovered", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "INTERNAL", body["type"])

		assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
		access := logs.FilterMessage("request completed").All()
		require.Len(t, access, 1)
		assert.Equal(t, zapcore.ErrorLevel, access[0].Level)
		logs.TakeAll()
	})

	t.Run("panic after response started", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/late-boom", nil))

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Empty(t, rec.Body.String())
		assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
	})
}
