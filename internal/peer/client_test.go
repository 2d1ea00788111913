package peer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kelwitness/internal/kel"
	"github.com/roach88/kelwitness/internal/testutil"
)

// serve starts a server and returns its host:port.
func serve(t *testing.T, h http.Handler) string {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestClient_KeyLog(t *testing.T) {
	c := testutil.NewController(t, "peer-log", 1, 1)
	c.Incept()
	c.Rotate()
	stream := c.Stream()

	addr := serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/key_logs/"+string(c.ID()), r.URL.Path)
		w.Write(stream)
	}))

	events, err := NewClient().KeyLog(context.Background(), addr, c.ID())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, kel.Rotation, events[1].EventType)
}

func TestClient_KeyState(t *testing.T) {
	addr := serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"identifier":"Dabc","sequence_number":3,"last_event_type":"ixn","last_digest":"Ex","signing_threshold":1,"signing_keys":["Dk"]}`))
	}))

	st, err := NewClient().KeyState(context.Background(), addr, "Dabc")
	require.NoError(t, err)
	assert.Equal(t, kel.Identifier("Dabc"), st.Identifier)
	assert.Equal(t, int64(3), st.SequenceNumber)
}

func TestClient_WitnessAddress(t *testing.T) {
	addr := serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/witness_ips/w%201", r.URL.EscapedPath())
		w.Write([]byte(`{"ip":"10.0.0.1:9599"}`))
	}))

	rec, err := NewClient().WitnessAddress(context.Background(), addr, "w 1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:9599", rec.IP)
}

func TestClient_NotFound(t *testing.T) {
	addr := serve(t, http.NotFoundHandler())
	_, err := NewClient().KeyState(context.Background(), addr, "Dabc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_StatusError(t *testing.T) {
	addr := serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	_, err := NewClient().KeyState(context.Background(), addr, "Dabc")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.Status)
}

func TestClient_MalformedBodies(t *testing.T) {
	addr := serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	client := NewClient()
	_, err := client.KeyState(context.Background(), addr, "Dabc")
	assert.Error(t, err)
	_, err = client.KeyLog(context.Background(), addr, "Dabc")
	assert.Error(t, err)
}

func TestClient_OversizedBody(t *testing.T) {
	addr := serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, MaxResponseBytes+10))
	}))
	_, err := NewClient().KeyLog(context.Background(), addr, "Dabc")
	assert.ErrorContains(t, err, "exceeds")
}

func TestClient_HonoursContextDeadline(t *testing.T) {
	release := make(chan struct{})
	addr := serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewClient().KeyState(ctx, addr, "Dabc")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
