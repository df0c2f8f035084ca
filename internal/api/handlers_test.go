package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"scribe/internal/command"
	"scribe/internal/stats"
	"scribe/internal/workspace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockDispatcher struct {
	name    string
	payload json.RawMessage
	result  command.Result
	err     error
}

func (m *mockDispatcher) Dispatch(ctx context.Context, name string, payload json.RawMessage) (command.Result, error) {
	m.name = name
	m.payload = payload
	return m.result, m.err
}

type mockFiles []workspace.File

func (m mockFiles) Files() []workspace.File { return m }

type mockStats struct {
	summary stats.Summary
	err     error
}

func (m mockStats) Summary() (stats.Summary, error) { return m.summary, m.err }

func newTestServer(d Dispatcher, f FileLister, s StatsReader) http.Handler {
	return Routes(NewCommandHandler(d), NewFileHandler(f), NewStatsHandler(s))
}

func TestCommandHandler_Dispatch(t *testing.T) {
	tests := []struct {
		name       string
		dispatcher *mockDispatcher
		wantStatus int
		wantBody   map[string]interface{}
	}{
		{
			name: "saved",
			dispatcher: &mockDispatcher{result: command.Result{
				Command: "file-save", Status: command.StatusSaved, File: "a.md",
			}},
			wantStatus: http.StatusOK,
			wantBody: map[string]interface{}{
				"command": "file-save", "status": "saved", "completed": true, "file": "a.md",
			},
		},
		{
			name: "rejected",
			dispatcher: &mockDispatcher{result: command.Result{
				Command: "file-save", Status: command.StatusRejected,
			}},
			wantStatus: http.StatusOK,
			wantBody: map[string]interface{}{
				"command": "file-save", "status": "rejected", "completed": false,
			},
		},
		{
			name:       "unknown command",
			dispatcher: &mockDispatcher{err: command.ErrUnknownCommand},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "dispatch failure",
			dispatcher: &mockDispatcher{err: errors.New("boom")},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(tt.dispatcher, mockFiles{}, mockStats{})
			body := []byte(`{"path":"/a.md","newContents":"hello","offsetWordCount":2}`)

			req := httptest.NewRequest(http.MethodPost, "/api/commands/file-save", bytes.NewBuffer(body))
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "file-save", tt.dispatcher.name)
			assert.JSONEq(t, string(body), string(tt.dispatcher.payload))

			if tt.wantBody != nil {
				var got map[string]interface{}
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
				assert.Equal(t, tt.wantBody, got)
			}
		})
	}
}

func TestCommandHandler_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(&mockDispatcher{}, mockFiles{}, mockStats{})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/commands/file-save", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestFileHandler_List(t *testing.T) {
	files := mockFiles{{Path: "a.md", Name: "a.md", Revision: 2}}
	srv := newTestServer(&mockDispatcher{}, files, mockStats{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []workspace.File
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "a.md", got[0].Path)
	assert.Equal(t, 2, got[0].Revision)
}

func TestStatsHandler_Get(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		s := mockStats{summary: stats.Summary{Total: 12, Today: 10, SumMonth: 40, AvgMonth: 20}}
		srv := newTestServer(&mockDispatcher{}, mockFiles{}, s)

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var got stats.Summary
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, s.summary, got)
	})

	t.Run("error", func(t *testing.T) {
		srv := newTestServer(&mockDispatcher{}, mockFiles{}, mockStats{err: errors.New("db closed")})

		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(&mockDispatcher{}, mockFiles{}, mockStats{})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestCommandHandler_PayloadTooLarge(t *testing.T) {
	d := &mockDispatcher{result: command.Result{Command: "file-save", Status: command.StatusSaved}}
	commands := NewCommandHandler(d)
	commands.maxPayload = 16
	srv := Routes(commands, NewFileHandler(mockFiles{}), NewStatsHandler(mockStats{}))

	body := `{"path":"/a.md","newContents":"far more than sixteen bytes"}`
	req := httptest.NewRequest(http.MethodPost, "/api/commands/file-save", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, d.name, "command must not run on a truncated payload")

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "TOO_LARGE", resp["type"])

	t.Run("payload at the limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/commands/file-save", bytes.NewBufferString(`{"path":"/a.md"}`))
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "file-save", d.name)
	})
}
