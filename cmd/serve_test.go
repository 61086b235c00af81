package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/interview-cli/internal/interview"
	"github.com/sells-group/interview-cli/internal/metrics"
	"github.com/sells-group/interview-cli/internal/model"
	"github.com/sells-group/interview-cli/internal/monitoring"
	"github.com/sells-group/interview-cli/internal/reasoning"
	"github.com/sells-group/interview-cli/internal/store"
)

// scriptedReasoning answers by purpose.
type scriptedReasoning struct {
	converse string
	extract  string
}

func (s *scriptedReasoning) Generate(_ context.Context, req reasoning.Request) (*reasoning.Response, error) {
	switch req.Purpose {
	case reasoning.PurposeExtract:
		return &reasoning.Response{Text: s.extract}, nil
	case reasoning.PurposeClose:
		return &reasoning.Response{Text: "Thank you, that covers everything."}, nil
	default:
		return &reasoning.Response{Text: s.converse}, nil
	}
}

func testRouter(t *testing.T) (http.Handler, *model.Catalog) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	catalog, err := model.NewCatalog([]model.Issue{
		{Field: "revenue", Question: "What is your current monthly revenue?", Importance: 1},
		{Field: "team_size", Question: "How many people are on the team?", Importance: 2},
	})
	require.NoError(t, err)

	m := metrics.New()
	svc := interview.NewService(interview.ServiceDeps{
		Engine: interview.NewEngine(&scriptedReasoning{
			converse: "Thanks! How many people are on the team?",
			extract:  `{"extracted":[{"field":"revenue","value":"$40k MRR","confidence":"high"}],"cannot_answer":[]}`,
		}, interview.Options{RecentMessages: 10}, m),
		Store:   st,
		Metrics: m,
	})
	return buildRouter(&api{
		svc:       svc,
		catalog:   catalog,
		metrics:   m,
		collector: monitoring.NewCollector(st, m),
		staleAge:  72,
	}, nil), catalog
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = httptest.NewRequest(method, path, bytes.NewReader(b))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)
	return rr
}

func startInterview(t *testing.T, h http.Handler) sessionView {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/api/interviews", startRequest{
		Participant: model.Participant{FounderName: "Ada", CompanyName: "Acme"},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var v sessionView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	return v
}

func TestRouter_Health(t *testing.T) {
	h, _ := testRouter(t)

	rr := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_Metrics(t *testing.T) {
	h, _ := testRouter(t)

	rr := do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestRouter_StartDefaultCatalog(t *testing.T) {
	h, _ := testRouter(t)

	v := startInterview(t, h)
	assert.NotEmpty(t, v.Token)
	assert.Equal(t, model.SessionActive, v.Status)
	assert.Equal(t, 2, v.Progress.Total)
	assert.Equal(t, []string{"revenue", "team_size"}, v.MissingFields)
	assert.Contains(t, v.LastMessage, "Hi Ada!")
	assert.Contains(t, v.LastMessage, "What is your current monthly revenue?")
}

func TestRouter_StartCustomCatalog(t *testing.T) {
	h, _ := testRouter(t)

	rr := do(t, h, http.MethodPost, "/api/interviews", startRequest{
		Catalog: []model.Issue{{Field: "churn", Question: "What is your monthly churn?"}},
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	var v sessionView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	assert.Equal(t, []string{"churn"}, v.MissingFields)
}

func TestRouter_StartInvalid(t *testing.T) {
	h, _ := testRouter(t)

	rr := do(t, h, http.MethodPost, "/api/interviews", startRequest{
		Catalog: []model.Issue{{Field: "a", Question: "A?"}, {Field: "a", Question: "B?"}},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "duplicate field")

	r := httptest.NewRequest(http.MethodPost, "/api/interviews", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_ChatTurns(t *testing.T) {
	h, _ := testRouter(t)
	v := startInterview(t, h)

	rr := do(t, h, http.MethodPost, "/api/interviews/chat", chatRequest{Token: v.Token, Message: "Hello!"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp model.ChatResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Thanks! How many people are on the team?", resp.Message)
	assert.False(t, resp.IsComplete)
	assert.Empty(t, resp.GatheredFields)

	// Second participant turn runs extraction.
	rr = do(t, h, http.MethodPost, "/api/interviews/chat", chatRequest{Token: v.Token, Message: "We're at $40k MRR."})
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, []string{"revenue"}, resp.GatheredFields)
	assert.Equal(t, []string{"team_size"}, resp.MissingFields)

	rr = do(t, h, http.MethodGet, "/api/interviews/"+v.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got sessionView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Len(t, got.Transcript, 5)
	assert.Equal(t, "$40k MRR", got.GatheredInfo["revenue"].Value)
	assert.Equal(t, 1, got.Progress.Attempted)

	rr = do(t, h, http.MethodGet, "/metrics", nil)
	assert.Contains(t, rr.Body.String(), `interview_turns_total{mode="continuation"} 2`)
}

func TestRouter_ChatErrors(t *testing.T) {
	h, _ := testRouter(t)
	v := startInterview(t, h)

	tests := []struct {
		name string
		req  chatRequest
		code int
		msg  string
	}{
		{"missing token", chatRequest{Message: "hi"}, http.StatusBadRequest, "interview_token is required"},
		{"empty message", chatRequest{Token: v.Token, Message: "   "}, http.StatusBadRequest, "message is required"},
		{"unknown token", chatRequest{Token: "nope", Message: "hi"}, http.StatusNotFound, "interview not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/api/interviews/chat", tt.req)
			assert.Equal(t, tt.code, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.msg)
		})
	}
}

func TestRouter_GetUnknown(t *testing.T) {
	h, _ := testRouter(t)

	rr := do(t, h, http.MethodGet, "/api/interviews/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_Export(t *testing.T) {
	h, _ := testRouter(t)
	v := startInterview(t, h)

	rr := do(t, h, http.MethodGet, "/api/interviews/"+v.Token+"/export", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "spreadsheetml")
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "interview_acme.xlsx")

	f, err := xlsx.OpenBinary(rr.Body.Bytes())
	require.NoError(t, err)
	assert.Len(t, f.Sheets, 2)
}

func TestRouter_Stats(t *testing.T) {
	h, _ := testRouter(t)
	startInterview(t, h)
	startInterview(t, h)

	rr := do(t, h, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var snap monitoring.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, 2, snap.SessionsTotal)
	assert.Equal(t, 2, snap.SessionsActive)
	assert.Equal(t, 72, snap.StaleAfterHours)

	rr = do(t, h, http.MethodGet, "/metrics", nil)
	assert.Contains(t, rr.Body.String(), `interview_sessions{status="active"} 2`)
}

func TestRouter_StatsUnavailable(t *testing.T) {
	h := buildRouter(&api{}, nil)

	rr := do(t, h, http.MethodGet, "/api/stats", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRouter_CORS(t *testing.T) {
	h, _ := testRouter(t)

	r := httptest.NewRequest(http.MethodOptions, "/api/interviews/chat", nil)
	r.Header.Set("Origin", "https://founders.example.com")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{interview.ErrEmptyMessage, http.StatusBadRequest},
		{eris.Wrap(interview.ErrSessionNotFound, "load"), http.StatusNotFound},
		{eris.Wrap(interview.ErrTurnInProgress, "lock"), http.StatusConflict},
		{eris.Wrap(store.ErrStaleState, "interview: save state"), http.StatusConflict},
		{interview.ErrMissingCatalog, http.StatusUnprocessableEntity},
		{eris.Wrap(context.Canceled, "aborted"), http.StatusServiceUnavailable},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rr := httptest.NewRecorder()
		writeServiceError(rr, tt.err)
		assert.Equal(t, tt.code, rr.Code, tt.err.Error())
	}
}
