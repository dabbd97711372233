package a2a

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/advisor"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/agent"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/chart"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/models"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/session"
)

type A2AHandler struct {
	advisor  *advisor.Advisor
	sessions *session.Store
}

func NewA2AHandler(adv *advisor.Advisor, sessions *session.Store) *A2AHandler {
	return &A2AHandler{
		advisor:  adv,
		sessions: sessions,
	}
}

// RequestLoggingMiddleware logs every request with its outcome. Bodies are
// logged at debug level only.
func RequestLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		if log.Debug().Enabled() && c.Request.Body != nil {
			bodyBytes, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			log.Debug().Str("path", c.Request.URL.Path).Bytes("body", bodyBytes).Msg("incoming request")
		}

		c.Next()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request handled")
	}
}

// HandleResale processes A2A messages for both skills.
func (h *A2AHandler) HandleResale(c *gin.Context) {
	bodyBytes, err := io.ReadAll(c.Request.Body)
	if err != nil {
		log.Error().Err(err).Msg("failed to read request body")
		h.sendErrorResponse(c, nil, "Failed to read request body", CodeParseError)
		return
	}

	var rpcReq JSONRPCRequest
	if err := json.Unmarshal(bodyBytes, &rpcReq); err != nil || rpcReq.Method == "" {
		// not JSON-RPC; accept a bare message params object
		h.handleDirectMessage(c, bodyBytes)
		return
	}

	if rpcReq.JSONRPC != "2.0" {
		log.Warn().Str("jsonrpc", rpcReq.JSONRPC).Msg("invalid JSON-RPC version")
		h.sendErrorResponse(c, rpcReq.ID, "Invalid JSON-RPC version", CodeInvalidRequest)
		return
	}

	switch rpcReq.Method {
	case "agent/task", "message/send":
		h.handleTask(c, rpcReq)
	default:
		log.Warn().Str("method", rpcReq.Method).Msg("unknown method")
		h.sendErrorResponse(c, rpcReq.ID, fmt.Sprintf("Method not found: %s", rpcReq.Method), CodeMethodNotFound)
	}
}

func (h *A2AHandler) handleDirectMessage(c *gin.Context, bodyBytes []byte) {
	var msgParams MessageParams
	if err := json.Unmarshal(bodyBytes, &msgParams); err != nil || len(msgParams.Message.Parts) == 0 {
		log.Warn().Err(err).Msg("request is neither JSON-RPC nor a message")
		h.sendErrorResponse(c, nil, "Invalid request format", CodeParseError)
		return
	}

	taskID := uuid.New().String()
	result := h.process(c, taskID, msgParams)
	h.sendSuccessResponse(c, taskID, result)
}

func (h *A2AHandler) handleTask(c *gin.Context, rpcReq JSONRPCRequest) {
	var msgParams MessageParams
	if err := json.Unmarshal(rpcReq.Params, &msgParams); err != nil {
		log.Warn().Err(err).Msg("invalid message params")
		h.sendErrorResponse(c, rpcReq.ID, "Invalid parameters", CodeInvalidParams)
		return
	}

	taskID := fmt.Sprint(rpcReq.ID)
	if msgParams.Message.TaskID != nil && *msgParams.Message.TaskID != "" {
		taskID = *msgParams.Message.TaskID
	}

	result := h.process(c, taskID, msgParams)
	h.sendSuccessResponse(c, rpcReq.ID, result)
}

// process runs the selected skill and turns the outcome into a task.
func (h *A2AHandler) process(c *gin.Context, taskID string, msgParams MessageParams) TaskResult {
	req, err := parseSkillRequest(msgParams)
	st := h.sessions.Resolve(msgParams.Message.ContextID)
	if err != nil {
		return h.createInputTaskResult(taskID, st.ID(), advisor.UserMessage(err, req.noun()))
	}

	log.Info().Str("skill", req.Skill).Str("session", st.ID()).Msg("running skill")

	var res *models.PipelineResult
	switch req.Skill {
	case SkillInsights:
		res, err = h.advisor.Explore(c.Request.Context(), st, req.Text)
	default:
		res, err = h.advisor.Ask(c.Request.Context(), st, req.Text, req.Profile)
	}

	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return h.createInputTaskResult(taskID, st.ID(), advisor.UserMessage(err, req.noun()))
	case err != nil:
		log.Error().Err(err).Str("skill", req.Skill).Msg("skill failed")
		return h.createErrorTaskResult(taskID, st.ID(), advisor.TryAgainMessage)
	}
	return h.createSuccessTaskResult(taskID, st.ID(), res)
}

type skillRequest struct {
	Skill   string
	Text    string
	Profile *models.Profile
}

func (r skillRequest) noun() string {
	if r.Skill == SkillInsights {
		return "topic/question"
	}
	return "question"
}

// dataFields is the object form of a data part.
type dataFields struct {
	Skill         string `json:"skill"`
	Question      string `json:"question"`
	Age           *int   `json:"age"`
	MonthlyIncome *int   `json:"monthly_household_income"`
	MaritalStatus string `json:"marital_status"`
}

func parseSkillRequest(p MessageParams) (skillRequest, error) {
	req := skillRequest{Skill: SkillGuide}
	if s, ok := p.Metadata["skill"].(string); ok && s != "" {
		req.Skill = s
	}

	var texts []string
	var fields dataFields
	for _, part := range p.Message.Parts {
		switch part.Kind {
		case "text":
			if t := strings.TrimSpace(part.Text); t != "" {
				texts = append(texts, t)
			}
		case "data":
			raw := bytes.TrimSpace(part.Data)
			switch {
			case len(raw) == 0:
			case raw[0] == '{':
				if err := json.Unmarshal(raw, &fields); err != nil {
					log.Warn().Err(err).Msg("failed to unmarshal data part")
				}
			case raw[0] == '[':
				if t := lastUserText(raw); t != "" && len(texts) == 0 {
					texts = append(texts, t)
				}
			}
		}
	}

	if fields.Skill != "" {
		req.Skill = fields.Skill
	}
	if req.Skill != SkillGuide && req.Skill != SkillInsights {
		return req, fmt.Errorf("%w: unknown skill %q", models.ErrInvalidInput, req.Skill)
	}

	req.Text = strings.Join(texts, " ")
	if req.Text == "" {
		req.Text = strings.TrimSpace(fields.Question)
	}

	if req.Skill == SkillGuide {
		profile, err := models.NewProfile(fields.Age, fields.MonthlyIncome, fields.MaritalStatus)
		if err != nil {
			return req, fmt.Errorf("%w: %w", models.ErrInvalidInput, err)
		}
		req.Profile = profile
	}
	return req, nil
}

// lastUserText picks the most recent text item from a conversation history
// data part.
func lastUserText(raw []byte) string {
	var items []MessagePart
	if err := json.Unmarshal(raw, &items); err != nil {
		log.Warn().Err(err).Msg("failed to unmarshal history data part")
		return ""
	}
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Kind != "text" {
			continue
		}
		text := strings.TrimSpace(items[i].Text)
		text = strings.ReplaceAll(text, "<p>", "")
		text = strings.ReplaceAll(text, "</p>", "")
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
	}
	return ""
}

// ServeAgentCard serves the agent card using Gin
func (h *A2AHandler) ServeAgentCard(c *gin.Context) {
	if err := agent.LoadAgentCard(); err != nil {
		log.Error().Err(err).Msg("error loading agent card")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Agent card not available"})
		return
	}
	c.Data(http.StatusOK, "application/json", agent.AgentCardData)
}

func (h *A2AHandler) createSuccessTaskResult(taskID, contextID string, res *models.PipelineResult) TaskResult {
	final, _ := res.Output(models.StageWrite)

	artifacts := []Artifact{{
		ArtifactID: uuid.New().String(),
		Name:       artifactName(res.Workflow),
		Parts:      []MessagePart{TextPart(final.Text)},
	}}
	if len(final.Sources) > 0 {
		artifacts = append(artifacts, Artifact{
			ArtifactID: uuid.New().String(),
			Name:       "Sources",
			Parts:      []MessagePart{TextPart(strings.Join(final.Sources, "\n"))},
		})
	}
	if res.Workflow == models.WorkflowInsights {
		part := TextPart(chart.NoChartMessage)
		if spec := res.Chart(); spec != nil {
			part = DataPart(spec)
		}
		artifacts = append(artifacts, Artifact{
			ArtifactID: uuid.New().String(),
			Name:       "Chart",
			Parts:      []MessagePart{part},
		})
	}

	return TaskResult{
		ID:        taskID,
		ContextID: contextID,
		Kind:      "task",
		Status: TaskStatus{
			State:     StateCompleted,
			Timestamp: Timestamp(),
			Message:   agentMessage(taskID, contextID, final.Text),
		},
		Artifacts: artifacts,
	}
}

func (h *A2AHandler) createInputTaskResult(taskID, contextID, msg string) TaskResult {
	return TaskResult{
		ID:        taskID,
		ContextID: contextID,
		Kind:      "task",
		Status: TaskStatus{
			State:     StateInputRequired,
			Timestamp: Timestamp(),
			Message:   agentMessage(taskID, contextID, msg),
		},
	}
}

func (h *A2AHandler) createErrorTaskResult(taskID, contextID, msg string) TaskResult {
	return TaskResult{
		ID:        taskID,
		ContextID: contextID,
		Kind:      "task",
		Status: TaskStatus{
			State:     StateFailed,
			Timestamp: Timestamp(),
			Message:   agentMessage(taskID, contextID, msg),
		},
	}
}

func artifactName(wf models.WorkflowName) string {
	if wf == models.WorkflowInsights {
		return "Insights Report"
	}
	return "Resale Guide Answer"
}

func agentMessage(taskID, contextID, text string) *A2AMessage {
	return &A2AMessage{
		Kind:      "message",
		Role:      RoleAgent,
		MessageID: uuid.New().String(),
		TaskID:    &taskID,
		ContextID: contextID,
		Parts:     []MessagePart{TextPart(text)},
	}
}

func (h *A2AHandler) sendSuccessResponse(c *gin.Context, id any, result TaskResult) {
	log.Debug().Str("task", result.ID).Str("state", result.Status.State).Msg("sending task result")
	c.JSON(http.StatusOK, JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
}

// JSON-RPC errors are sent with 200 OK
func (h *A2AHandler) sendErrorResponse(c *gin.Context, id any, message string, code int) {
	log.Warn().Int("code", code).Str("message", message).Msg("sending RPC error")
	c.JSON(http.StatusOK, JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	})
}
