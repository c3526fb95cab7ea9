package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"bizplan/internal/domain"
	"bizplan/internal/usecase"
)

type chatRequest struct {
	Message string `json:"message"`
	Agent   string `json:"agent,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps a chat error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAgentNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		HealthInfo
	}{Status: "healthy", HealthInfo: s.health})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	agents := s.chat.Agents(r.Context())
	if agents == nil {
		agents = []domain.AgentSpec{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

func (s *Server) handleExamples(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"examples": usecase.Examples()})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large (max 1MB)")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	res, err := s.chat.Chat(r.Context(), req.Message, req.Agent)
	if err != nil {
		writeJSON(w, statusFor(err), errorResponse{
			Error: usecase.PublicError(err),
			Code:  string(domain.ErrorCodeOf(err)),
		})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleStream relays chat events as Server-Sent Events. Errors after the
// headers are sent travel as an error frame.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rc := http.NewResponseController(w)
	// Long agent runs outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	emit := func(ev domain.ChatEvent) {
		if r.Context().Err() != nil {
			return
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		if err := rc.Flush(); err != nil {
			s.logger.Debug("sse flush failed", "error", err)
		}
	}

	if _, err := s.chat.Stream(r.Context(), q.Get("message"), q.Get("agent"), emit); err != nil {
		s.logger.Warn("chat stream failed", "error", err)
	}
}

// handleWS accepts one chat request per connection, streams its events and
// closes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns(),
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer ws.Close(websocket.StatusInternalError, "")
	ws.SetReadLimit(maxBodyBytes)

	ctx := r.Context()
	var req chatRequest
	if err := wsjson.Read(ctx, ws, &req); err != nil {
		s.logger.Debug("websocket read failed", "error", err)
		ws.Close(websocket.StatusUnsupportedData, "expected a JSON chat request")
		return
	}

	emit := func(ev domain.ChatEvent) {
		wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := wsjson.Write(wctx, ws, ev); err != nil {
			s.logger.Debug("websocket write failed", "error", err)
		}
	}
	if _, err := s.chat.Stream(ctx, req.Message, req.Agent, emit); err != nil {
		s.logger.Warn("chat stream failed", "error", err)
	}
	ws.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) originPatterns() []string {
	var patterns []string
	for _, o := range s.cfg.CORSOrigins {
		if o == "*" {
			return []string{"*"}
		}
		patterns = append(patterns, hostOf(o))
	}
	if len(patterns) == 0 {
		return []string{"*"}
	}
	return patterns
}

// hostOf strips the scheme from an origin; websocket origin patterns match
// on host.
func hostOf(origin string) string {
	if _, host, ok := strings.Cut(origin, "://"); ok {
		return host
	}
	return origin
}
