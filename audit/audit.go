// Package audit implements the append-only audit sink: records are redacted,
// kept in a bounded ring, logged, and broadcast to the watchtower window.
package audit

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alexos/chainbot/config"
	"github.com/alexos/chainbot/fanout"
	"github.com/alexos/chainbot/pkg/logger"
)

// Severity of an audit record.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Record is one audit trail entry.
type Record struct {
	ID             string                 `json:"id"`
	Action         string                 `json:"action"`
	ActorID        string                 `json:"actor_id"`
	TargetType     string                 `json:"target_type"`
	TargetID       string                 `json:"target_id"`
	Timestamp      time.Time              `json:"timestamp"`
	SessionID      string                 `json:"session_id,omitempty"`
	AgentID        string                 `json:"agent_id,omitempty"`
	WorkflowID     string                 `json:"workflow_id,omitempty"`
	EntanglementID string                 `json:"entanglement_id,omitempty"`
	Severity       Severity               `json:"severity"`
	Meta           map[string]interface{} `json:"meta,omitempty"`
}

// Filter selects records from the trail. Zero fields match everything.
type Filter struct {
	ActorID    string
	TargetType string
	TargetID   string
	Action     string
	Since      time.Time
	Until      time.Time
	Limit      int
}

// Broadcaster is the slice of the fanout hub the sink needs.
type Broadcaster interface {
	BroadcastToWindow(window fanout.WindowType, msg fanout.Message) int
}

// Sink is the redacting in-memory audit trail.
type Sink struct {
	cfg       config.AuditConfig
	redactSet map[string]struct{}
	bus       Broadcaster
	logger    *slog.Logger

	mu      sync.RWMutex
	records []Record // ring, newest at the end
}

// NewSink builds a sink. bus may be nil when no realtime surface exists.
func NewSink(cfg config.AuditConfig, security config.SecurityConfig, bus Broadcaster) *Sink {
	redactSet := make(map[string]struct{}, len(security.RedactKeys))
	for _, key := range security.RedactKeys {
		redactSet[strings.ToLower(key)] = struct{}{}
	}
	return &Sink{
		cfg:       cfg,
		redactSet: redactSet,
		bus:       bus,
		logger:    logger.New("audit"),
	}
}

// Log appends a record. Sensitive meta keys are redacted at any depth
// before the record is stored or broadcast.
func (s *Sink) Log(ctx context.Context, rec Record) {
	if s.cfg.Disabled {
		return
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if rec.Severity == "" {
		rec.Severity = SeverityInfo
	}
	rec.Meta = s.redactMap(rec.Meta)

	s.mu.Lock()
	s.records = append(s.records, rec)
	if len(s.records) > s.cfg.BufferSize {
		s.records = s.records[len(s.records)-s.cfg.BufferSize:]
	}
	s.mu.Unlock()

	attrs := []interface{}{
		"action", rec.Action,
		"actor", rec.ActorID,
		"target", rec.TargetType + ":" + rec.TargetID,
	}
	switch rec.Severity {
	case SeverityError, SeverityCritical:
		s.logger.Error("audit", attrs...)
	case SeverityWarning:
		s.logger.Warn("audit", attrs...)
	default:
		s.logger.Info("audit", attrs...)
	}

	if s.bus != nil {
		s.bus.BroadcastToWindow(fanout.WindowWatchtower, fanout.Message{
			Type:      fanout.MessageAuditEvent,
			Timestamp: rec.Timestamp,
			Data: map[string]interface{}{
				"action":      rec.Action,
				"actor_id":    rec.ActorID,
				"target_type": rec.TargetType,
				"target_id":   rec.TargetID,
				"severity":    string(rec.Severity),
				"meta":        rec.Meta,
			},
			SessionID:  rec.SessionID,
			AgentID:    rec.AgentID,
			WorkflowID: rec.WorkflowID,
		})
	}
}

// LogSecurity records a security event under the security. action prefix.
func (s *Sink) LogSecurity(ctx context.Context, eventType, actorID string, details map[string]interface{}, severity Severity) {
	s.Log(ctx, Record{
		Action:     "security." + eventType,
		ActorID:    actorID,
		TargetType: "security",
		Severity:   severity,
		Meta:       details,
	})
}

// LogPerformance records an operation duration.
func (s *Sink) LogPerformance(ctx context.Context, operation string, duration time.Duration, targetType, targetID string) {
	s.Log(ctx, Record{
		Action:     "performance.measure",
		TargetType: targetType,
		TargetID:   targetID,
		Meta: map[string]interface{}{
			"operation":   operation,
			"duration_ms": float64(duration.Microseconds()) / 1000,
		},
	})
}

// LogWorkflow records a workflow lifecycle action.
func (s *Sink) LogWorkflow(ctx context.Context, workflowID, action, actorID string, meta map[string]interface{}) {
	s.Log(ctx, Record{
		Action:     "workflow." + action,
		ActorID:    actorID,
		TargetType: "workflow",
		TargetID:   workflowID,
		WorkflowID: workflowID,
		Meta:       meta,
	})
}

// LogAgent records an agent lifecycle action.
func (s *Sink) LogAgent(ctx context.Context, agentID, action, actorID string, meta map[string]interface{}) {
	s.Log(ctx, Record{
		Action:     "agent." + action,
		ActorID:    actorID,
		TargetType: "agent",
		TargetID:   agentID,
		AgentID:    agentID,
		Meta:       meta,
	})
}

// Trail returns matching records, newest first.
func (s *Sink) Trail(filter Filter) []Record {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		rec := s.records[i]
		if filter.ActorID != "" && rec.ActorID != filter.ActorID {
			continue
		}
		if filter.TargetType != "" && rec.TargetType != filter.TargetType {
			continue
		}
		if filter.TargetID != "" && rec.TargetID != filter.TargetID {
			continue
		}
		if filter.Action != "" && rec.Action != filter.Action {
			continue
		}
		if !filter.Since.IsZero() && rec.Timestamp.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && rec.Timestamp.After(filter.Until) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Stats summarizes the trail in a time range.
func (s *Sink) Stats(since, until time.Time) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	actions := make(map[string]int)
	actors := make(map[string]int)
	for _, rec := range s.records {
		if !since.IsZero() && rec.Timestamp.Before(since) {
			continue
		}
		if !until.IsZero() && rec.Timestamp.After(until) {
			continue
		}
		total++
		actions[rec.Action]++
		if rec.ActorID != "" {
			actors[rec.ActorID]++
		}
	}

	return map[string]interface{}{
		"total_events":        total,
		"action_distribution": actions,
		"actor_activity":      actors,
	}
}

// redactMap replaces sensitive values with a placeholder, walking nested
// maps and lists. Key matching is case-insensitive.
func (s *Sink) redactMap(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	out := make(map[string]interface{}, len(data))
	for key, value := range data {
		if _, sensitive := s.redactSet[strings.ToLower(key)]; sensitive {
			out[key] = "[REDACTED]"
			continue
		}
		out[key] = s.redactValue(value)
	}
	return out
}

func (s *Sink) redactValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return s.redactMap(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = s.redactValue(item)
		}
		return out
	default:
		return v
	}
}
