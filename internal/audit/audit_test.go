package audit

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkauth/darkauth/internal/logging"
	"github.com/darkauth/darkauth/internal/store"
)

type fakeStore struct {
	mu     sync.Mutex
	rows   []*store.AuditLog
	fail   bool
	block  chan struct{}
}

func (f *fakeStore) InsertAuditLog(_ context.Context, a *store.AuditLog) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return assertError{}
	}
	f.rows = append(f.rows, a)
	return nil
}

func (f *fakeStore) snapshot() []*store.AuditLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*store.AuditLog, len(f.rows))
	copy(out, f.rows)
	return out
}

type assertError struct{}

func (assertError) Error() string { return "insert failed" }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestRecordPersistsRedactedBody(t *testing.T) {
	t.Parallel()
	fs := &fakeStore{}
	logger := NewLogger(fs, logging.New(true), 16)
	defer logger.Close()

	logger.Record(Event{
		EventType: "login",
		Method:    "POST",
		Path:      "/login",
		Success:   true,
		RequestBody: map[string]interface{}{
			"email":    "user@example.com",
			"password": "hunter2",
		},
	})

	waitFor(t, func() bool { return len(fs.snapshot()) == 1 })
	row := fs.snapshot()[0]

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(row.RequestBodyRedacted, &body))
	assert.Equal(t, "user@example.com", body["email"])
	assert.Equal(t, "[redacted]", body["password"])
}

func TestRecordDropsWhenBufferFull(t *testing.T) {
	t.Parallel()
	// block the drain goroutine on its first insert so the buffered
	// channel (capacity 1) fills up and subsequent Record calls drop.
	fs := &fakeStore{block: make(chan struct{})}
	logger := NewLogger(fs, logging.New(true), 1)
	defer func() {
		close(fs.block)
		logger.Close()
	}()

	var dropped int
	var mu sync.Mutex
	logger.OnDropped(func() {
		mu.Lock()
		dropped++
		mu.Unlock()
	})

	logger.Record(Event{EventType: "first", Method: "GET", Path: "/x"})
	time.Sleep(20 * time.Millisecond) // let the drain goroutine pick it up and block
	logger.Record(Event{EventType: "second", Method: "GET", Path: "/x"})
	logger.Record(Event{EventType: "third", Method: "GET", Path: "/x"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return dropped > 0
	})
}

func TestRedact(t *testing.T) {
	t.Parallel()
	out := redact(map[string]interface{}{
		"password":     "secret",
		"token":        "abc",
		"code":         "123",
		"refreshToken": "xyz",
		"email":        "kept@example.com",
	})
	assert.Equal(t, "[redacted]", out["password"])
	assert.Equal(t, "[redacted]", out["token"])
	assert.Equal(t, "[redacted]", out["code"])
	assert.Equal(t, "[redacted]", out["refreshToken"])
	assert.Equal(t, "kept@example.com", out["email"])
}

func TestRedactNilBody(t *testing.T) {
	t.Parallel()
	assert.Empty(t, redact(nil))
}
