package a2a

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

	"github.com/BerylCAtieno/hdb-resale-agent/internal/advisor"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/chart"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/session"
)

func doJSON(t *testing.T, h http.Handler, method, path, sessionID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGuideEndpoint(t *testing.T) {
	h, sessions := newTestServer(t, &stubRunner{})

	w := doJSON(t, h, http.MethodPost, "/api/guide", "", GuideRequest{Question: "Can I use CPF for the downpayment?"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp GuideResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Answer: Can I use CPF for the downpayment?", resp.Answer)
	assert.Len(t, resp.Sources, 1)
	assert.Equal(t, resp.SessionID, w.Header().Get(SessionHeader))

	st, ok := sessions.Get(resp.SessionID)
	require.True(t, ok)
	assert.Equal(t, resp.Answer, st.Snapshot().Guide.Answer)
}

func TestGuideEndpointRejectsInput(t *testing.T) {
	runner := &stubRunner{}
	h, _ := newTestServer(t, runner)

	income := 150000
	w := doJSON(t, h, http.MethodPost, "/api/guide", "", GuideRequest{Question: "Am I eligible?", MonthlyIncome: &income})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "monthly household income must be between 0 and 100000")

	w = doJSON(t, h, http.MethodPost, "/api/guide", "", GuideRequest{Question: "!!!"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Please enter a valid question")

	w = doJSON(t, h, http.MethodPost, "/api/insights", "", InsightsRequest{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Please enter a topic/question")

	assert.Zero(t, runner.calls.Load())
}

func TestGuideEndpointFailure(t *testing.T) {
	h, _ := newTestServer(t, &stubRunner{err: errors.New("boom")})

	w := doJSON(t, h, http.MethodPost, "/api/guide", "", GuideRequest{Question: "What is the MOP?"})
	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), advisor.TryAgainMessage)
}

func TestInsightsChartAndClear(t *testing.T) {
	h, _ := newTestServer(t, &stubRunner{})

	w := doJSON(t, h, http.MethodPost, "/api/insights", "", InsightsRequest{Topic: "Price trend in Queenstown"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp InsightsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Chart)
	assert.Empty(t, resp.ChartMessage)
	id := resp.SessionID

	w = doJSON(t, h, http.MethodGet, "/api/chart.svg", id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/svg+xml", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "<svg"))

	w = doJSON(t, h, http.MethodDelete, "/api/session?page=insights", id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Nil(t, snap.Insight)

	w = doJSON(t, h, http.MethodGet, "/api/chart.svg", id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, chart.NoChartMessage, w.Body.String())

	w = doJSON(t, h, http.MethodDelete, "/api/session?page=valuation", id, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInsightsWithoutChart(t *testing.T) {
	h, _ := newTestServer(t, &stubRunner{noChart: true})

	w := doJSON(t, h, http.MethodPost, "/api/insights", "", InsightsRequest{Topic: "Prices in Punggol"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp InsightsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Nil(t, resp.Chart)
	assert.Equal(t, chart.NoChartMessage, resp.ChartMessage)
}

func TestSessionPagesAreIndependent(t *testing.T) {
	h, _ := newTestServer(t, &stubRunner{})

	w := doJSON(t, h, http.MethodPost, "/api/guide", "", GuideRequest{Question: "What is the MOP?"})
	id := w.Header().Get(SessionHeader)
	require.NotEmpty(t, id)
	doJSON(t, h, http.MethodPost, "/api/insights", id, InsightsRequest{Topic: "Price trend in Queenstown"})

	w = doJSON(t, h, http.MethodDelete, "/api/session?page=guide", id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/session", id, nil)
	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, id, snap.ID)
	assert.Nil(t, snap.Guide)
	require.NotNil(t, snap.Insight)
	assert.Equal(t, "Price trend in Queenstown", snap.Insight.Topic)

	w = doJSON(t, h, http.MethodDelete, "/api/session", id, nil)
	var cleared session.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cleared))
	assert.Nil(t, cleared.Insight)
}

func TestHealthAndMetrics(t *testing.T) {
	h, _ := newTestServer(t, &stubRunner{})

	w := doJSON(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	w = doJSON(t, h, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "resale_agent_requests_total")
}
