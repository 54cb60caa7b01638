package observability

import "time"

// EventEnvelope is the body of operational events sent to the event exchange.
type EventEnvelope struct {
	EventType  string            `json:"event_type"`
	EventName  string            `json:"event_name"`
	OccurredAt time.Time         `json:"occurred_at"`
	Headers    map[string]string `json:"headers,omitempty"`
	Payload    any               `json:"payload"`
}

func NewEvent(eventType, name string, payload any) EventEnvelope {
	return EventEnvelope{
		EventType:  eventType,
		EventName:  name,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// WithTrace adds correlation headers. Empty ids are skipped.
func (e EventEnvelope) WithTrace(requestID, traceID string) EventEnvelope {
	headers := make(map[string]string, len(e.Headers)+2)
	for k, v := range e.Headers {
		headers[k] = v
	}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	if len(headers) > 0 {
		e.Headers = headers
	}
	return e
}
