package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Audit levels.
const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

const auditSchemaVersion = 1

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// AuditEmitter publishes audit_log records for user-visible chat actions:
// sign in and out, group changes, messages and uploads.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	log         *zap.Logger
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	TraceID       string       `json:"trace_id,omitempty"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, logger *zap.Logger) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		log:         logger,
	}
}

// Emit never fails the caller; publish errors are logged and dropped.
func (e *AuditEmitter) Emit(ctx context.Context, level, text, requestID string, userID *string) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := AuditEnvelope{
		SchemaVersion: auditSchemaVersion,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        userID,
		Payload:       AuditPayload{Level: level, Text: text},
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		envelope.TraceID = sc.TraceID().String()
	}

	fields := []zap.Field{
		zap.String("level", level),
		zap.String("text", text),
		zap.String("request_id", requestID),
		zap.Stringp("user_id", userID),
	}
	if level == LevelError {
		e.log.Info("audit", fields...)
	} else {
		e.log.Debug("audit", fields...)
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		e.log.Warn("audit publish failed", zap.String("routing_key", e.routingKey), zap.Error(err))
	}
}
