package testsupport

import (
	"context"
	"fmt"
	"testing"

	"callwatch/internal/config"
	"callwatch/internal/records"
)

// MustOpenStore opens a records.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *records.Store {
	t.Helper()

	store, err := records.Open(cfg)
	if err != nil {
		t.Fatalf("records.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

var callSeq int

// NewCall inserts a call record for tests using the provided store. The call
// identifier is made unique per invocation.
func NewCall(t testing.TB, store *records.Store, opts ...func(*records.NewCallParams)) *records.CallRecord {
	t.Helper()

	callSeq++
	params := records.NewCallParams{
		CallID:         fmt.Sprintf("call-%s-%d", t.Name(), callSeq),
		AgentID:        "agent-1",
		AgentName:      "Test Agent",
		CustomerNumber: "+15550001111",
		DurationSecs:   120,
		RecordingURL:   "https://recordings.example.com/sample.mp3",
	}
	for _, opt := range opts {
		opt(&params)
	}

	record, err := store.Insert(context.Background(), params)
	if err != nil {
		t.Fatalf("store.Insert: %v", err)
	}
	return record
}
