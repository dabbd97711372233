// Command test is a smoke client for a running agent.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/a2a"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4")).
			Border(lipgloss.NormalBorder()).Padding(0, 1)
	testStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

type TestClient struct {
	baseURL string
	client  *http.Client
}

func NewTestClient(baseURL string) *TestClient {
	return &TestClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			// a full run can take several model calls
			Timeout: 5 * time.Minute,
		},
	}
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Base URL of the agent")
	testType := flag.String("test", "all", "Test type: all, health, agent-card, guide, insights, api, custom")
	question := flag.String("q", "", "Question or topic (for custom test)")
	skill := flag.String("skill", a2a.SkillGuide, "Skill for custom test: guide or insights")
	flag.Parse()

	client := NewTestClient(*baseURL)

	printHeader("HDB Resale Guide Agent - Test Suite")
	fmt.Printf("%s %s\n\n", labelStyle.Render("Base URL:"), client.baseURL)

	var ok bool
	switch *testType {
	case "all":
		client.runAllTests()
		return
	case "health":
		ok = client.testHealthCheck()
	case "agent-card":
		ok = client.testAgentCard()
	case "guide":
		ok = client.testGuide()
	case "insights":
		ok = client.testInsights()
	case "api":
		ok = client.testAPI()
	case "custom":
		if *question == "" {
			printError("A question is required for custom test. Use -q flag")
			os.Exit(1)
		}
		ok = client.testSkill(*skill, *question, nil)
	default:
		printError(fmt.Sprintf("Unknown test type: %s", *testType))
		fmt.Println("\nAvailable tests: all, health, agent-card, guide, insights, api, custom")
		os.Exit(1)
	}
	if !ok {
		os.Exit(1)
	}
}

func (tc *TestClient) runAllTests() {
	tests := []struct {
		name string
		fn   func() bool
	}{
		{"Health Check", tc.testHealthCheck},
		{"Agent Card", tc.testAgentCard},
		{"Guide Skill", tc.testGuide},
		{"Insights Skill", tc.testInsights},
		{"JSON API", tc.testAPI},
	}

	passed, failed := 0, 0
	for _, test := range tests {
		if test.fn() {
			passed++
		} else {
			failed++
		}
		fmt.Println()
	}

	printHeader("Test Summary")
	fmt.Println(okStyle.Render(fmt.Sprintf("Passed: %d", passed)))
	fmt.Println(errStyle.Render(fmt.Sprintf("Failed: %d", failed)))
	fmt.Printf("Total: %d\n", passed+failed)

	if failed > 0 {
		os.Exit(1)
	}
}

func (tc *TestClient) testHealthCheck() bool {
	printTestHeader("Testing Health Check Endpoint")

	status, body, err := tc.do(http.MethodGet, "/health", "", nil)
	if err != nil {
		printError(fmt.Sprintf("Request failed: %v", err))
		return false
	}
	if status != http.StatusOK || string(body) != "OK" {
		printError(fmt.Sprintf("Expected 200 OK, got %d %q", status, body))
		return false
	}

	printSuccess("Health check passed")
	return true
}

func (tc *TestClient) testAgentCard() bool {
	printTestHeader("Testing Agent Card Endpoint")

	status, body, err := tc.do(http.MethodGet, "/.well-known/agent.json", "", nil)
	if err != nil {
		printError(fmt.Sprintf("Request failed: %v", err))
		return false
	}
	if status != http.StatusOK {
		printError(fmt.Sprintf("Expected status 200, got %d", status))
		return false
	}

	var card map[string]any
	if err := json.Unmarshal(body, &card); err != nil {
		printError(fmt.Sprintf("Invalid JSON response: %v", err))
		return false
	}
	for _, field := range []string{"name", "description", "url", "version", "skills"} {
		if _, ok := card[field]; !ok {
			printError(fmt.Sprintf("Missing required field: %s", field))
			return false
		}
	}

	printSuccess("Agent card is valid")
	printJSON(body)
	return true
}

func (tc *TestClient) testGuide() bool {
	return tc.testSkill(a2a.SkillGuide, "What grants can I get for a resale flat?", map[string]any{
		"age":                      32,
		"monthly_household_income": 8000,
		"marital_status":           "Married",
	})
}

func (tc *TestClient) testInsights() bool {
	return tc.testSkill(a2a.SkillInsights, "How have resale prices in Queenstown changed over the years?", nil)
}

// testSkill sends one A2A message/send request and checks the task completed.
func (tc *TestClient) testSkill(skill, question string, profile map[string]any) bool {
	printTestHeader(fmt.Sprintf("Testing %s skill", skill))
	fmt.Printf("%s %s\n\n", labelStyle.Render("Question:"), question)

	parts := []a2a.MessagePart{a2a.TextPart(question)}
	if profile != nil {
		parts = append(parts, a2a.DataPart(profile))
	}
	params, _ := json.Marshal(a2a.MessageParams{
		Message: a2a.A2AMessage{
			Kind:      "message",
			Role:      a2a.RoleUser,
			MessageID: uuid.NewString(),
			Parts:     parts,
		},
		Configuration: a2a.MessageConfiguration{
			Blocking:            true,
			AcceptedOutputModes: []string{"text", "data"},
		},
		Metadata: map[string]any{"skill": skill},
	})
	request := a2a.JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      fmt.Sprintf("test-%d", time.Now().Unix()),
		Method:  "message/send",
		Params:  params,
	}

	status, body, err := tc.do(http.MethodPost, "/a2a/resale", "", request)
	if err != nil {
		printError(fmt.Sprintf("Request failed: %v", err))
		return false
	}
	if status != http.StatusOK {
		printError(fmt.Sprintf("Expected status 200, got %d", status))
		return false
	}

	var response struct {
		Result a2a.TaskResult `json:"result"`
		Error  *a2a.RPCError  `json:"error"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		printError(fmt.Sprintf("Invalid JSON response: %v", err))
		return false
	}
	if response.Error != nil {
		printError(fmt.Sprintf("Request returned error %d: %s", response.Error.Code, response.Error.Message))
		return false
	}

	res := response.Result
	if res.Status.State != a2a.StateCompleted {
		printError(fmt.Sprintf("Expected state 'completed', got '%s'", res.Status.State))
		if res.Status.Message != nil && len(res.Status.Message.Parts) > 0 {
			fmt.Println(res.Status.Message.Parts[0].Text)
		}
		return false
	}
	printSuccess(fmt.Sprintf("%s skill completed (context %s)", skill, res.ContextID))

	for _, art := range res.Artifacts {
		fmt.Printf("\n%s\n", labelStyle.Render(art.Name))
		fmt.Println(strings.Repeat("=", 80))
		for _, p := range art.Parts {
			if p.Kind == "data" {
				printJSON(p.Data)
				continue
			}
			fmt.Println(p.Text)
		}
	}
	return true
}

// testAPI exercises the JSON endpoints with one session.
func (tc *TestClient) testAPI() bool {
	printTestHeader("Testing JSON API")

	status, body, err := tc.do(http.MethodPost, "/api/guide", "", map[string]any{"question": "12345"})
	if err != nil {
		printError(fmt.Sprintf("Request failed: %v", err))
		return false
	}
	if status != http.StatusBadRequest {
		printError(fmt.Sprintf("Expected 400 for a question without letters, got %d", status))
		return false
	}
	printSuccess(fmt.Sprintf("Invalid question rejected: %s", body))

	status, body, err = tc.do(http.MethodPost, "/api/insights", "", map[string]any{"topic": "Average 4 room prices by town"})
	if err != nil || status != http.StatusOK {
		printError(fmt.Sprintf("Insights request failed: %v %d %s", err, status, body))
		return false
	}
	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.SessionID == "" {
		printError("Insights response has no session id")
		return false
	}
	printSuccess(fmt.Sprintf("Insights report for session %s", resp.SessionID))

	status, body, err = tc.do(http.MethodGet, "/api/chart.svg", resp.SessionID, nil)
	if err != nil {
		printError(fmt.Sprintf("Chart request failed: %v", err))
		return false
	}
	switch status {
	case http.StatusOK:
		printSuccess(fmt.Sprintf("Chart rendered (%d bytes of SVG)", len(body)))
	case http.StatusNotFound:
		printSuccess(fmt.Sprintf("No chart: %s", body))
	default:
		printError(fmt.Sprintf("Unexpected chart status %d", status))
		return false
	}

	status, _, err = tc.do(http.MethodDelete, "/api/session?page=insights", resp.SessionID, nil)
	if err != nil || status != http.StatusOK {
		printError(fmt.Sprintf("Clearing session failed: %v %d", err, status))
		return false
	}
	printSuccess("Session page cleared")
	return true
}

func (tc *TestClient) do(method, path, sessionID string, payload any) (int, []byte, error) {
	url := tc.baseURL + path
	fmt.Printf("%s %s\n", method, url)

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(a2a.SessionHeader, sessionID)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, body, err
}

func printHeader(text string) {
	fmt.Println(headerStyle.Render(text))
	fmt.Println()
}

func printTestHeader(text string) {
	fmt.Println(testStyle.Render("[TEST] " + text))
	fmt.Println(strings.Repeat("-", 80))
}

func printSuccess(text string) {
	fmt.Println(okStyle.Render("✓ " + text))
}

func printError(text string) {
	fmt.Println(errStyle.Render("✗ " + text))
}

func printJSON(data []byte) {
	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, data, "", "  "); err == nil {
		fmt.Printf("\n%s\n%s\n", labelStyle.Render("Response:"), prettyJSON.String())
	}
}
