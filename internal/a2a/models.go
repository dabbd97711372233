package a2a

import (
	"encoding/json"
	"time"
)

// JSON-RPC types
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type JSONRPCResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
)

// Message types
type MessageParams struct {
	Message       A2AMessage           `json:"message"`
	Configuration MessageConfiguration `json:"configuration"`
	Metadata      map[string]any       `json:"metadata,omitempty"`
}

type A2AMessage struct {
	Kind      string        `json:"kind"`
	Role      string        `json:"role"`
	Parts     []MessagePart `json:"parts"`
	MessageID string        `json:"messageId,omitempty"`
	TaskID    *string       `json:"taskId,omitempty"`
	ContextID string        `json:"contextId,omitempty"`
}

// MessagePart is a text part or a data part. Data holds raw JSON: an object
// with skill and profile fields, or an array of earlier conversation parts.
type MessagePart struct {
	Kind string          `json:"kind"`
	Text string          `json:"text,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type MessageConfiguration struct {
	AcceptedOutputModes []string `json:"acceptedOutputModes,omitempty"`
	HistoryLength       int      `json:"historyLength,omitempty"`
	Blocking            bool     `json:"blocking,omitempty"`
}

// Task types
type TaskResult struct {
	ID        string       `json:"id"`
	ContextID string       `json:"contextId,omitempty"`
	Status    TaskStatus   `json:"status"`
	Artifacts []Artifact   `json:"artifacts,omitempty"`
	History   []A2AMessage `json:"history,omitempty"`
	Kind      string       `json:"kind"`
}

type TaskStatus struct {
	State     string      `json:"state"`
	Timestamp string      `json:"timestamp"`
	Message   *A2AMessage `json:"message,omitempty"`
}

type Artifact struct {
	ArtifactID string        `json:"artifactId"`
	Name       string        `json:"name"`
	Parts      []MessagePart `json:"parts"`
}

// Helper functions
func TextPart(text string) MessagePart {
	return MessagePart{
		Kind: "text",
		Text: text,
	}
}

func DataPart(data any) MessagePart {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		dataBytes = []byte("null")
	}
	return MessagePart{
		Kind: "data",
		Data: dataBytes,
	}
}

func Timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Task states
const (
	StateWorking       = "working"
	StateInputRequired = "input-required"
	StateCompleted     = "completed"
	StateFailed        = "failed"
)

// Message roles
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Skills
const (
	SkillGuide    = "guide"
	SkillInsights = "insights"
)
