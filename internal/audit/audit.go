// Package audit records append-only events, one per call to Logger.Record,
// redacted against a fixed keyword set, written from a buffered channel
// drained by a single background goroutine so a slow or failing insert
// never blocks the request that triggered it.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/darkauth/darkauth/internal/logging"
	"github.com/darkauth/darkauth/internal/store"
)

// redactedKeys is the fixed keyword set of request-body fields that must
// never reach storage unredacted. Any field whose key matches one of these
// (case-sensitive, exact) keeps its key but has its value replaced with
// "[redacted]" before the body is persisted.
var redactedKeys = map[string]bool{
	"password":      true,
	"token":         true,
	"code":          true,
	"code_verifier": true,
	"secret":        true,
	"request":       true,
	"record":        true,
	"finish":        true,
	"refreshToken":  true,
}

// Store is the subset of *store.DB this package needs.
type Store interface {
	InsertAuditLog(ctx context.Context, a *store.AuditLog) error
}

// Event is the caller-facing shape; RequestBody is the raw, unredacted
// request payload (if any) — Redact is applied before it ever reaches the
// channel, so nothing unredacted is retained once Record returns.
type Event struct {
	EventType      string
	Method         string
	Path           string
	Cohort         string
	SubjectID      *string
	AdminID        *string
	ClientID       *string
	IPAddress      string
	UserAgent      string
	Success        bool
	StatusCode     int
	ErrorCode      *string
	ResourceType   *string
	ResourceID     *string
	Action         string
	RequestBody    map[string]interface{}
	ResponseTimeMs int64
}

// Logger owns the buffered channel and the background drain goroutine.
type Logger struct {
	store     Store
	logger    *logging.Logger
	ch        chan *store.AuditLog
	done      chan struct{}
	onDropped func()
}

// NewLogger starts the background drain goroutine immediately; callers
// must call Close at shutdown to let any buffered events flush.
func NewLogger(s Store, logger *logging.Logger, bufferSize int) *Logger {
	l := &Logger{
		store:  s,
		logger: logger,
		ch:     make(chan *store.AuditLog, bufferSize),
		done:   make(chan struct{}),
	}
	go l.drain()
	return l
}

// OnDropped registers a callback invoked whenever Record drops an event
// because the buffer was full — cmd/darkauthd wires this to the
// darkauth_audit_log_dropped_total counter so an operator sees it before
// logs do.
func (l *Logger) OnDropped(f func()) {
	l.onDropped = f
}

func (l *Logger) drain() {
	defer close(l.done)
	for row := range l.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := l.store.InsertAuditLog(ctx, row); err != nil {
			l.logger.Errorw("audit: failed to persist event", "eventType", row.EventType, "error", err)
		}
		cancel()
	}
}

// Record redacts e.RequestBody, builds the persisted row, and enqueues it
// without blocking the caller: a full buffer drops the event and logs
// that it was dropped rather than stalling the request goroutine.
func (l *Logger) Record(e Event) {
	redacted := redact(e.RequestBody)
	body, err := json.Marshal(redacted)
	if err != nil {
		l.logger.Errorw("audit: failed to marshal redacted body", "error", err)
		body = []byte("{}")
	}

	row := &store.AuditLog{
		ID:                  uuid.NewString(),
		EventType:           e.EventType,
		Method:              e.Method,
		Path:                e.Path,
		Cohort:              e.Cohort,
		SubjectID:           e.SubjectID,
		AdminID:             e.AdminID,
		ClientID:            e.ClientID,
		IPAddress:           e.IPAddress,
		UserAgent:           e.UserAgent,
		Success:             e.Success,
		StatusCode:          e.StatusCode,
		ErrorCode:           e.ErrorCode,
		ResourceType:        e.ResourceType,
		ResourceID:          e.ResourceID,
		Action:              e.Action,
		RequestBodyRedacted: body,
		ResponseTimeMs:      e.ResponseTimeMs,
		Timestamp:           time.Now(),
	}

	select {
	case l.ch <- row:
	default:
		l.logger.Errorw("audit: buffer full, dropping event", "eventType", e.EventType, "path", e.Path)
		if l.onDropped != nil {
			l.onDropped()
		}
	}
}

// Close stops accepting new events and waits for the drain goroutine to
// flush whatever is already buffered.
func (l *Logger) Close() {
	close(l.ch)
	<-l.done
}

// redact walks one level of body, replacing the value of any key in
// redactedKeys with "[redacted]". It is
// deliberately shallow — request bodies in this API are flat JSON objects,
// so a single-level scan covers every sensitive field.
func redact(body map[string]interface{}) map[string]interface{} {
	if body == nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(body))
	for k, v := range body {
		if redactedKeys[k] {
			out[k] = "[redacted]"
			continue
		}
		out[k] = v
	}
	return out
}
