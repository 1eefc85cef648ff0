// Package httpapi implements the HTTP surface (C8): JSON request/response
// handlers routed by current role, per spec.md §6. The teacher's
// jocko.Broker.Run dispatches binary Kafka-protocol requests by Go type
// switch over a channel; this package keeps the "route by request kind,
// delegate to one handler per kind" shape but over chi's HTTP router,
// since YAK's wire format is JSON-over-HTTP rather than a binary protocol.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/broker"
	ilog "github.com/Siya-Moghe/yak-yet-another-kafka/internal/log"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/metadata"
)

// Server is the HTTP surface in front of a *broker.Broker.
type Server struct {
	b               *broker.Broker
	logger          ilog.Logger
	maxMessageBytes int64
	router          chi.Router
}

// New builds the router and binds every route in spec.md §6's table.
func New(b *broker.Broker, logger ilog.Logger, maxMessageBytes int64) *Server {
	s := &Server{b: b, logger: logger, maxMessageBytes: maxMessageBytes}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/register_topic", s.handleRegisterTopic)
	r.Post("/produce", s.handleProduce)
	r.Get("/consume", s.handleConsume)
	r.Post("/internal/replicate", s.handleReplicate)
	r.Post("/internal/catchup", s.handleCatchup)
	r.Get("/metadata/leader", s.handleMetadataLeader)
	r.Get("/metadata/topics", s.handleMetadataTopics)
	s.router = r
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": message})
}

func leaderBrokerJSON(info metadata.BrokerInfo) map[string]interface{} {
	return map[string]interface{}{
		"broker_id": info.BrokerID,
		"host":      info.Host,
		"port":      info.Port,
	}
}

// writeRedirect emits the {"status":"redirect", ...} document spec.md §4.8
// and §8 scenario 2 define.
func (s *Server) writeRedirect(w http.ResponseWriter, r *http.Request) {
	record, ok, err := s.b.CurrentLeader(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "coordinator unavailable")
		return
	}
	body := map[string]interface{}{
		"status":  "redirect",
		"message": "Not the Leader",
	}
	if ok {
		body["leader"] = leaderBrokerJSON(record.Broker())
	}
	writeJSON(w, http.StatusOK, body)
}

type registerTopicRequest struct {
	Topic string `json:"topic"`
}

func (s *Server) handleRegisterTopic(w http.ResponseWriter, r *http.Request) {
	if !s.b.IsLeader() {
		s.writeRedirect(w, r)
		return
	}
	var req registerTopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Topic == "" {
		writeError(w, http.StatusBadRequest, "missing field: topic")
		return
	}
	created, err := s.b.RegisterTopic(r.Context(), req.Topic)
	if err == broker.ErrNotLeader {
		s.writeRedirect(w, r)
		return
	}
	if err != nil {
		s.logger.Error("register_topic failed", ilog.String("topic", req.Topic), ilog.Error("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !created {
		writeJSON(w, http.StatusOK, map[string]string{"status": "exists", "topic": req.Topic})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "topic": req.Topic})
}

func (s *Server) handleProduce(w http.ResponseWriter, r *http.Request) {
	if !s.b.IsLeader() {
		s.writeRedirect(w, r)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxMessageBytes)

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	var topic string
	if t, ok := raw["topic"]; ok {
		_ = json.Unmarshal(t, &topic)
	}
	if topic == "" {
		writeError(w, http.StatusBadRequest, "missing field: topic")
		return
	}

	// The broker does not interpret the body: every field the producer
	// sent, including topic, is stored and replayed verbatim alongside the
	// assigned offset.
	payload, err := json.Marshal(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	result, err := s.b.Produce(r.Context(), topic, payload)
	switch err {
	case nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
			"topic":  topic,
			"offset": result.Offset,
			"hwm":    result.HWM,
		})
	case broker.ErrUnknownTopic:
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "error",
			"message": "Topic '" + topic + "' not registered",
		})
	case broker.ErrNotLeader:
		s.writeRedirect(w, r)
	default:
		s.logger.Error("produce failed", ilog.String("topic", topic), ilog.Error("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleConsume(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		writeError(w, http.StatusBadRequest, "missing query param: topic")
		return
	}
	offsetStr := r.URL.Query().Get("offset")
	offset, err := strconv.ParseInt(offsetStr, 10, 64)
	if err != nil {
		offset = 1
	}

	result, err := s.b.Consume(r.Context(), topic, offset)
	if err == broker.ErrUnknownTopic {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "error",
			"message": "Topic '" + topic + "' does not exist",
		})
		return
	}
	if err != nil {
		s.logger.Error("consume failed", ilog.String("topic", topic), ilog.Error("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	messages := result.Messages
	if messages == nil {
		messages = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"messages":        messages,
		"hwm":             result.HWM,
		"total_available": result.TotalAvailable,
	})
}

type replicateRequest struct {
	Topic   string          `json:"topic"`
	Message json.RawMessage `json:"message"`
}

func (s *Server) handleReplicate(w http.ResponseWriter, r *http.Request) {
	var req replicateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Topic == "" {
		writeError(w, http.StatusBadRequest, "missing field: topic")
		return
	}
	if err := s.b.Replicate(r.Context(), req.Topic, req.Message); err != nil {
		if err == broker.ErrUnknownTopic {
			writeJSON(w, http.StatusOK, map[string]string{
				"status":  "error",
				"message": "Topic '" + req.Topic + "' does not exist",
			})
			return
		}
		s.logger.Error("replicate failed", ilog.String("topic", req.Topic), ilog.Error("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	var env struct {
		Offset int64 `json:"offset"`
	}
	_ = json.Unmarshal(req.Message, &env)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "replicated",
		"topic":  req.Topic,
		"offset": env.Offset,
	})
}

type catchupRequest struct {
	Topic      string `json:"topic"`
	FromOffset int64  `json:"from_offset"`
}

func (s *Server) handleCatchup(w http.ResponseWriter, r *http.Request) {
	var req catchupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Topic == "" {
		writeError(w, http.StatusBadRequest, "missing field: topic")
		return
	}
	messages, err := s.b.CatchUp(req.Topic, req.FromOffset)
	if err != nil {
		if err == broker.ErrUnknownTopic {
			writeJSON(w, http.StatusOK, map[string]string{
				"status":  "error",
				"message": "Topic '" + req.Topic + "' does not exist",
			})
			return
		}
		s.logger.Error("catchup failed", ilog.String("topic", req.Topic), ilog.Error("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if messages == nil {
		messages = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"topic":    req.Topic,
		"messages": messages,
	})
}

func (s *Server) handleMetadataLeader(w http.ResponseWriter, r *http.Request) {
	record, ok, err := s.b.CurrentLeader(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "coordinator unavailable")
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"leader": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"leader": map[string]interface{}{
			"broker_id": record.BrokerID,
			"host":      record.Host,
			"port":      record.Port,
			"epoch":     record.Epoch,
		},
	})
}

func (s *Server) handleMetadataTopics(w http.ResponseWriter, r *http.Request) {
	topics := s.b.ListTopics()
	if topics == nil {
		topics = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"topics": topics,
		"count":  len(topics),
	})
}
