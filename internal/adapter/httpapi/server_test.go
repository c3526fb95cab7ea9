package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"bizplan/internal/domain"
	"bizplan/internal/infra/config"
	"bizplan/internal/infra/metrics"
	"bizplan/internal/infra/middleware"
)

type fakeChat struct {
	agents []domain.AgentSpec
	err    error
	events []domain.ChatEvent
	gotID  string
}

func (f *fakeChat) Agents(context.Context) []domain.AgentSpec { return f.agents }

func (f *fakeChat) Chat(ctx context.Context, message, agentName string) (domain.ChatResult, error) {
	f.gotID = middleware.RequestIDFrom(ctx)
	if strings.TrimSpace(message) == "" {
		return domain.ChatResult{}, domain.NewDomainError("Chat", domain.ErrInvalidInput, "message is required")
	}
	if agentName == "missing" {
		return domain.ChatResult{}, domain.NewDomainError("Chat", domain.ErrAgentNotFound, agentName)
	}
	if f.err != nil {
		return domain.ChatResult{}, f.err
	}
	used := agentName
	if used == "" {
		used = domain.OrchestratorName
	}
	return domain.ChatResult{Response: "echo: " + message, AgentUsed: used}, nil
}

func (f *fakeChat) Stream(ctx context.Context, message, agentName string, emit func(domain.ChatEvent)) (domain.ChatResult, error) {
	for _, ev := range f.events {
		emit(ev)
	}
	res, err := f.Chat(ctx, message, agentName)
	if err != nil {
		emit(domain.ChatEvent{Type: domain.ChatEventError, Error: "Agent " + agentName + " not found"})
		return res, err
	}
	emit(domain.ChatEvent{Type: domain.ChatEventResponse, Response: res.Response, AgentUsed: res.AgentUsed})
	return res, nil
}

func newTestServer(t *testing.T, chat *fakeChat) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := config.Defaults().Server
	cfg.RateLimitRPM = 0
	srv := New(cfg, chat, HealthInfo{
		AzureEndpoint: "https://example.openai.azure.com/",
		Deployment:    "gpt-4o",
		Capacity:      40,
	}, metrics.New(), nil)

	ts := httptest.NewServer(srv.Handler(ctx))
	t.Cleanup(ts.Close)
	return ts
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func postChat(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url+"/api/chat", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &fakeChat{})

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	decode(t, resp, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "https://example.openai.azure.com/", body["azure_endpoint"])
	assert.Equal(t, "gpt-4o", body["deployment"])
	assert.EqualValues(t, 40, body["capacity"])
}

func TestAgents(t *testing.T) {
	chat := &fakeChat{agents: []domain.AgentSpec{
		{Name: "financial-analysis", Title: "Financial Analysis Expert", Description: "CoCA", Enabled: true, SystemPrompt: "secret"},
	}}
	ts := newTestServer(t, chat)

	resp, err := http.Get(ts.URL + "/api/agents")
	require.NoError(t, err)

	var body struct {
		Agents []map[string]any `json:"agents"`
	}
	decode(t, resp, &body)
	require.Len(t, body.Agents, 1)
	assert.Equal(t, map[string]any{
		"name":        "financial-analysis",
		"title":       "Financial Analysis Expert",
		"description": "CoCA",
		"enabled":     true,
	}, body.Agents[0])
}

func TestAgentsEmptyRosterIsArray(t *testing.T) {
	ts := newTestServer(t, &fakeChat{})

	resp, err := http.Get(ts.URL + "/api/agents")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"agents":[]}`, string(raw))
}

func TestExamples(t *testing.T) {
	ts := newTestServer(t, &fakeChat{})

	resp, err := http.Get(ts.URL + "/api/examples")
	require.NoError(t, err)

	var body struct {
		Examples []domain.ExampleQuery `json:"examples"`
	}
	decode(t, resp, &body)
	require.Len(t, body.Examples, 3)
	assert.Equal(t, "competitive-analysis", *body.Examples[0].Agent)
	assert.Nil(t, body.Examples[2].Agent)
}

func TestChat(t *testing.T) {
	ts := newTestServer(t, &fakeChat{})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		want       map[string]any
	}{
		{"named agent", `{"message":"hi","agent":"financial-analysis"}`, 200,
			map[string]any{"response": "echo: hi", "agent_used": "financial-analysis"}},
		{"orchestrator", `{"message":"hi"}`, 200,
			map[string]any{"response": "echo: hi", "agent_used": "orchestrator"}},
		{"empty message", `{"message":"  "}`, 400,
			map[string]any{"error": "Message is required", "code": "INVALID_INPUT"}},
		{"unknown agent", `{"message":"hi","agent":"missing"}`, 404,
			map[string]any{"error": "Agent missing not found", "code": "AGENT_NOT_FOUND"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postChat(t, ts.URL, tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			var got map[string]any
			decode(t, resp, &got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChatInternalError(t *testing.T) {
	ts := newTestServer(t, &fakeChat{err: fmt.Errorf("invoke: %w", io.ErrUnexpectedEOF)})

	resp := postChat(t, ts.URL, `{"message":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var got errorResponse
	decode(t, resp, &got)
	assert.Equal(t, "invoke: unexpected EOF", got.Error)
	assert.Equal(t, "UNKNOWN", got.Code)
}

func TestChatCircuitOpen(t *testing.T) {
	ts := newTestServer(t, &fakeChat{err: fmt.Errorf("model: %w", domain.ErrCircuitOpen)})

	resp := postChat(t, ts.URL, `{"message":"hi"}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestChatBadBodies(t *testing.T) {
	ts := newTestServer(t, &fakeChat{})

	resp := postChat(t, ts.URL, `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var got errorResponse
	decode(t, resp, &got)
	assert.Contains(t, got.Error, "invalid JSON")

	big := `{"message":"` + strings.Repeat("a", maxBodyBytes+1) + `"}`
	resp = postChat(t, ts.URL, big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	decode(t, resp, &got)
	assert.Contains(t, got.Error, "too large")
}

func TestChatMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, &fakeChat{})

	resp, err := http.Get(ts.URL + "/api/chat")
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, http.MethodPost, resp.Header.Get("Allow"))
	var got errorResponse
	decode(t, resp, &got)
	assert.Equal(t, "method not allowed", got.Error)
}

func TestUnknownPath(t *testing.T) {
	ts := newTestServer(t, &fakeChat{})

	resp, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var got errorResponse
	decode(t, resp, &got)
	assert.Equal(t, "not found", got.Error)
}

func readSSE(t *testing.T, body io.Reader) []domain.ChatEvent {
	t.Helper()
	var events []domain.ChatEvent
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		line := sc.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var ev domain.ChatEvent
		require.NoError(t, json.Unmarshal([]byte(data), &ev))
		events = append(events, ev)
	}
	return events
}

func TestStream(t *testing.T) {
	chat := &fakeChat{events: []domain.ChatEvent{
		domain.StatusEvent("Initializing agent..."),
		domain.StatusEvent("Agent is thinking and planning..."),
	}}
	ts := newTestServer(t, chat)

	resp, err := http.Get(ts.URL + "/api/chat/stream?message=hello&agent=competitive-analysis")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readSSE(t, resp.Body)
	require.Len(t, events, 3)
	assert.Equal(t, "Initializing agent...", events[0].Message)
	assert.Equal(t, domain.ChatEvent{
		Type:      domain.ChatEventResponse,
		Response:  "echo: hello",
		AgentUsed: "competitive-analysis",
	}, events[2])
}

func TestStreamErrorFrame(t *testing.T) {
	ts := newTestServer(t, &fakeChat{})

	resp, err := http.Get(ts.URL + "/api/chat/stream?message=hello&agent=missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	events := readSSE(t, resp.Body)
	require.Len(t, events, 1)
	assert.Equal(t, domain.ChatEventError, events[0].Type)
	assert.Equal(t, "Agent missing not found", events[0].Error)
}

func TestWebSocketStream(t *testing.T) {
	chat := &fakeChat{events: []domain.ChatEvent{domain.StatusEvent("Initializing agent...")}}
	ts := newTestServer(t, chat)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/api/chat/ws", nil)
	require.NoError(t, err)
	defer ws.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, wsjson.Write(ctx, ws, chatRequest{Message: "hi"}))

	var first, second domain.ChatEvent
	require.NoError(t, wsjson.Read(ctx, ws, &first))
	require.NoError(t, wsjson.Read(ctx, ws, &second))
	assert.Equal(t, domain.StatusEvent("Initializing agent..."), first)
	assert.Equal(t, domain.ChatEventResponse, second.Type)
	assert.Equal(t, "orchestrator", second.AgentUsed)

	var extra domain.ChatEvent
	err = wsjson.Read(ctx, ws, &extra)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestMiddlewareHeaders(t *testing.T) {
	chat := &fakeChat{}
	ts := newTestServer(t, chat)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/chat", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("X-Request-ID", "req-abc")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "req-abc", resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "req-abc", chat.gotID)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, &fakeChat{})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStartStop(t *testing.T) {
	cfg := config.Defaults().Server
	cfg.Addr = "127.0.0.1:0"
	srv := New(cfg, &fakeChat{}, HealthInfo{}, nil, nil)

	ctx := context.Background()
	require.NoError(t, srv.Start(ctx))
	resp, err := http.Get("http://" + srv.BoundAddr() + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Stop(ctx))
}

func TestOriginPatterns(t *testing.T) {
	s := &Server{}
	assert.Equal(t, []string{"*"}, s.originPatterns())

	s.cfg.CORSOrigins = []string{"https://app.example.com", "http://localhost:3000"}
	assert.Equal(t, []string{"app.example.com", "localhost:3000"}, s.originPatterns())
}
