package cli

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kelwitness/internal/store"
	"github.com/roach88/kelwitness/internal/testutil"
)

// syncBuffer guards a buffer shared between the command goroutine and the
// test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func freePort(t *testing.T) int {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()
	return lis.Addr().(*net.TCPAddr).Port
}

func TestServeInvalidConfig(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewServeCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--api-port", "70000", "--db", filepath.Join(t.TempDir(), "w.db")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestServeSingleNode(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "witness.db")
	port := freePort(t)
	base := "http://127.0.0.1:" + strconv.Itoa(port)

	out := &syncBuffer{}
	cmd := NewServeCommand(&RootOptions{Format: "text"})
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{
		"--db", dbPath,
		"--api-port", strconv.Itoa(port),
		"--api-public-host", "127.0.0.1",
		"--dht-port", "0",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond, out.String())

	c := testutil.NewController(t, "serve", 1, 1)
	c.Incept()
	resp, err := http.Post(base+"/messages/"+string(c.ID()), "application/octet-stream", bytes.NewReader(c.Stream()))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/key_states/" + string(c.ID()))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
	assert.Contains(t, out.String(), fmt.Sprintf("public address 127.0.0.1:%d", port))

	// The event outlived the process.
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	_, ok, err := st.KeyState(context.Background(), c.ID())
	require.NoError(t, err)
	assert.True(t, ok)
}
