package a2a

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/advisor"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/chart"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/models"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/session"
)

const (
	SessionHeader = "X-Session-ID"
	sessionCookie = "resale_session"
)

type GuideRequest struct {
	Question      string `json:"question"`
	Age           *int   `json:"age"`
	MonthlyIncome *int   `json:"monthly_household_income"`
	MaritalStatus string `json:"marital_status"`
}

type GuideResponse struct {
	SessionID string   `json:"session_id"`
	Answer    string   `json:"answer"`
	Sources   []string `json:"sources,omitempty"`
}

type InsightsRequest struct {
	Topic string `json:"topic"`
}

type InsightsResponse struct {
	SessionID    string      `json:"session_id"`
	Report       string      `json:"report"`
	Chart        *chart.Spec `json:"chart,omitempty"`
	ChartMessage string      `json:"chart_message,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// APIHandler serves the JSON endpoints used by the web pages.
type APIHandler struct {
	advisor  *advisor.Advisor
	sessions *session.Store
}

func NewAPIHandler(adv *advisor.Advisor, sessions *session.Store) *APIHandler {
	return &APIHandler{advisor: adv, sessions: sessions}
}

func (h *APIHandler) Guide(c *gin.Context) {
	var body GuideRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	st := h.session(c)
	profile, err := models.NewProfile(body.Age, body.MonthlyIncome, body.MaritalStatus)
	if err != nil {
		h.fail(c, fmt.Errorf("%w: %w", models.ErrInvalidInput, err), "question")
		return
	}

	res, err := h.advisor.Ask(c.Request.Context(), st, body.Question, profile)
	if err != nil {
		h.fail(c, err, "question")
		return
	}

	final, _ := res.Output(models.StageWrite)
	c.JSON(http.StatusOK, GuideResponse{
		SessionID: st.ID(),
		Answer:    final.Text,
		Sources:   final.Sources,
	})
}

func (h *APIHandler) Insights(c *gin.Context) {
	var body InsightsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	st := h.session(c)
	res, err := h.advisor.Explore(c.Request.Context(), st, body.Topic)
	if err != nil {
		h.fail(c, err, "topic/question")
		return
	}

	resp := InsightsResponse{
		SessionID: st.ID(),
		Report:    res.Final(),
		Chart:     res.Chart(),
	}
	if resp.Chart == nil {
		resp.ChartMessage = chart.NoChartMessage
	}
	c.JSON(http.StatusOK, resp)
}

func (h *APIHandler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.session(c).Snapshot())
}

// ClearSession clears the page named by ?page=, or both pages.
func (h *APIHandler) ClearSession(c *gin.Context) {
	st := h.session(c)
	if !st.ClearPage(session.Page(c.Query("page"))) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Unknown page"})
		return
	}
	c.JSON(http.StatusOK, st.Snapshot())
}

// ChartSVG renders the chart of the last insights report.
func (h *APIHandler) ChartSVG(c *gin.Context) {
	snap := h.session(c).Snapshot()
	if snap.Insight == nil || snap.Insight.Chart == nil {
		c.String(http.StatusNotFound, chart.NoChartMessage)
		return
	}

	var buf bytes.Buffer
	if err := chart.RenderSVG(&buf, snap.Insight.Chart); err != nil {
		log.Warn().Err(err).Msg("failed to render chart")
		c.String(http.StatusNotFound, chart.NoChartMessage)
		return
	}
	c.Data(http.StatusOK, "image/svg+xml", buf.Bytes())
}

// session resolves the caller's session from the header or cookie and echoes
// the id back on both.
func (h *APIHandler) session(c *gin.Context) *session.State {
	id := c.GetHeader(SessionHeader)
	if id == "" {
		id, _ = c.Cookie(sessionCookie)
	}
	st := h.sessions.Resolve(id)
	c.Header(SessionHeader, st.ID())
	c.SetCookie(sessionCookie, st.ID(), 0, "/", "", false, true)
	return st
}

func (h *APIHandler) fail(c *gin.Context, err error, noun string) {
	if errors.Is(err, models.ErrInvalidInput) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: advisor.UserMessage(err, noun)})
		return
	}
	log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	c.JSON(http.StatusBadGateway, errorResponse{Error: advisor.TryAgainMessage})
}
