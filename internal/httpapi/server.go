package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voxgate/voxgate/internal/config"
	"github.com/voxgate/voxgate/internal/observability"
	"github.com/voxgate/voxgate/internal/protocol"
	"github.com/voxgate/voxgate/internal/relay"
	"github.com/voxgate/voxgate/internal/rooms"
	"github.com/voxgate/voxgate/internal/supervisor"
)

// Server is the HTTP control plane a frontend drives the assistant with.
type Server struct {
	cfg      config.Config
	agent    *supervisor.Supervisor
	sessions *rooms.Manager
	hub      *relay.Hub
	metrics  *observability.Metrics
}

func New(cfg config.Config, agent *supervisor.Supervisor, sessions *rooms.Manager, hub *relay.Hub, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		agent:    agent,
		sessions: sessions,
		hub:      hub,
		metrics:  metrics,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.cors)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/api/health", s.handleHealth)
	r.Post("/api/agent/start", s.handleAgentStart)
	r.Post("/api/agent/stop", s.handleAgentStop)
	r.Get("/api/agent/status", s.handleAgentStatus)
	r.Get("/api/config", s.handleConfig)
	r.Get("/api/stream", s.handleStream)
	r.Post("/api/agent/data", s.handleAgentData)
	r.Post("/api/create-voice-session", s.handleCreateVoiceSession)
	r.Post("/api/end-voice-session", s.handleEndVoiceSession)
	r.Get("/api/sessions", s.handleListSessions)
	r.Get("/api/voice-capabilities", s.handleVoiceCapabilities)

	return r
}

// cors mirrors the permissive policy of the original frontend setup: the
// control plane is meant to be driven by a browser app on another origin.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AllowAnyOrigin {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Cache-Control")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status, _ := s.agent.Status()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":             "healthy",
		"agent_status":       status,
		"active_rooms":       s.sessions.Count(),
		"livekit_configured": s.cfg.LiveKitConfigured(),
	})
}

func (s *Server) handleAgentStart(w http.ResponseWriter, _ *http.Request) {
	outcome, err := s.agent.Start()
	if err != nil {
		s.metrics.AgentTransitions.WithLabelValues(string(supervisor.StatusFailed)).Inc()
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}
	if outcome == supervisor.OutcomeAlreadyRunning {
		respondJSON(w, http.StatusOK, map[string]any{
			"status":  "already_running",
			"message": "Agent is already running",
		})
		return
	}
	s.metrics.AgentTransitions.WithLabelValues(string(supervisor.StatusRunning)).Inc()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "started",
		"message": "Agent started successfully",
	})
}

func (s *Server) handleAgentStop(w http.ResponseWriter, _ *http.Request) {
	outcome := s.agent.Stop()
	s.metrics.AgentTransitions.WithLabelValues(string(supervisor.StatusStopped)).Inc()
	if outcome == supervisor.OutcomeNotRunning {
		respondJSON(w, http.StatusOK, map[string]any{
			"status":  "not_running",
			"message": "Agent was not running",
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "stopped",
		"message": "Agent stopped successfully",
	})
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, _ *http.Request) {
	status, pid := s.agent.Status()
	payload := map[string]any{"status": status}
	if pid != 0 {
		payload["process_id"] = pid
	} else {
		payload["process_id"] = nil
	}
	respondJSON(w, http.StatusOK, payload)
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	livekitURL := s.cfg.LiveKitURL
	if livekitURL == "" {
		livekitURL = "Not configured"
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"livekit_url":        livekitURL,
		"has_api_key":        s.cfg.LiveKitAPIKey != "",
		"has_api_secret":     s.cfg.LiveKitAPISecret != "",
		"has_openai_key":     s.cfg.OpenAIAPIKey != "",
		"has_assemblyai_key": s.cfg.AssemblyAIAPIKey != "",
	})
}

// handleStream holds the connection open and relays events as they arrive.
// A heartbeat is synthesized whenever the idle interval elapses with no
// content event.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.hub.Subscribe()
	s.metrics.RelaySubscribers.Set(float64(s.hub.SubscriberCount()))
	defer func() {
		sub.Close()
		s.metrics.RelaySubscribers.Set(float64(s.hub.SubscriberCount()))
	}()

	heartbeat := time.NewTimer(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				// Dropped by the hub as a dead subscriber.
				return
			}
			if err := writeSSE(w, flusher, event); err != nil {
				return
			}
		case <-heartbeat.C:
			if err := writeSSE(w, flusher, protocol.NewHeartbeat()); err != nil {
				return
			}
		}
		if !heartbeat.Stop() {
			select {
			case <-heartbeat.C:
			default:
			}
		}
		heartbeat.Reset(s.cfg.HeartbeatInterval)
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func (s *Server) handleAgentData(w http.ResponseWriter, r *http.Request) {
	var event map[string]any
	if err := decodeJSON(r, &event); err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}

	notified, dropped := s.hub.Publish(event)
	s.metrics.RelayEvents.WithLabelValues("published").Inc()
	if dropped > 0 {
		s.metrics.RelayEvents.WithLabelValues("dropped_subscriber").Add(float64(dropped))
		s.metrics.RelaySubscribers.Set(float64(s.hub.SubscriberCount()))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "received",
		"clients_notified": notified,
	})
}

func (s *Server) handleCreateVoiceSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserName string `json:"user_name"`
	}
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	details, err := s.sessions.CreateSession(r.Context(), req.UserName)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	s.metrics.SessionEvents.WithLabelValues("created").Inc()
	s.metrics.ActiveSessions.Set(float64(s.sessions.Count()))
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"session": details,
		"message": "Voice session created successfully",
	})
}

func (s *Server) handleEndVoiceSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomName string `json:"room_name"`
	}
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	if strings.TrimSpace(req.RoomName) == "" {
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Room name required",
		})
		return
	}

	found, err := s.sessions.EndSession(r.Context(), req.RoomName)
	if found {
		s.metrics.SessionEvents.WithLabelValues("ended").Inc()
		s.metrics.ActiveSessions.Set(float64(s.sessions.Count()))
	}

	payload := map[string]any{
		"success": true,
		"message": "Voice session ended successfully",
	}
	if err != nil {
		// Registry entry is gone either way; surface what cleanup missed.
		log.Printf("httpapi: session %s cleanup: %v", req.RoomName, err)
		payload["cleanup_errors"] = err.Error()
	}
	respondJSON(w, http.StatusOK, payload)
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.sessions.ListSessions()
	respondJSON(w, http.StatusOK, map[string]any{
		"active_sessions": sessions,
		"count":           len(sessions),
	})
}

func (s *Server) handleVoiceCapabilities(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"stt_provider":        "AssemblyAI",
		"llm_provider":        "OpenAI " + s.cfg.LLMModel,
		"tts_provider":        "Rime",
		"vad_enabled":         true,
		"turn_detection":      true,
		"noise_cancellation":  true,
		"supported_languages": []string{"en", "es", "fr", "de", "it", "pt", "zh"},
	})
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"status": "error", "message": message})
}
