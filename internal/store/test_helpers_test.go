package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/kelwitness/internal/kel"
	"github.com/roach88/kelwitness/internal/testutil"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// appendAll appends events in order and fails the test on any error.
func appendAll(t *testing.T, s *Store, events ...kel.SignedEvent) AppendResult {
	t.Helper()
	var res AppendResult
	for _, ev := range events {
		var err error
		res, err = s.Append(context.Background(), ev.Identifier, ev)
		if err != nil {
			t.Fatalf("Append(seq=%d) failed: %v", ev.SequenceNumber, err)
		}
	}
	return res
}

// newChain returns a controller with an inception and n interactions.
func newChain(t *testing.T, label string, n int) *testutil.Controller {
	t.Helper()
	c := testutil.NewController(t, label, 1, 1)
	c.Incept()
	for i := 0; i < n; i++ {
		c.Interact()
	}
	return c
}
