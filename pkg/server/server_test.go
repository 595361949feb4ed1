package server

import (
	"bufio"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/kvstore/pkg/config"
	"github.com/cuemby/kvstore/pkg/manager"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Persistence.DataFile = filepath.Join(dir, "snapshot.json")
	cfg.Memory.DiskBasePath = filepath.Join(dir, "cold")
	cfg.Memory.EnableMemoryOptimization = false

	mgr, err := manager.New(cfg)
	require.NoError(t, err)

	srv := New(Config{Addr: "127.0.0.1:0", ReadTimeout: 2 * time.Second}, mgr)
	require.NoError(t, srv.Listen())

	go srv.Serve()
	t.Cleanup(srv.Stop)

	return srv
}

func sendLine(t *testing.T, conn net.Conn, line string) string {
	t.Helper()
	_, err := conn.Write([]byte(line + "\n"))
	require.NoError(t, err)

	reply, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	reply = strings.TrimRight(reply, "\n")
	// strip the "[YYYY-MM-DD HH:MM:SS] " timestamp prefix.
	idx := strings.Index(reply, "] ")
	require.GreaterOrEqual(t, idx, 0, "response missing timestamp frame: %q", reply)
	return reply[idx+2:]
}

func TestServerRoundTrip(t *testing.T) {
	srv := testServer(t)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "OK", sendLine(t, conn, "set k v"))
	assert.Equal(t, "v", sendLine(t, conn, "get k"))
	assert.Equal(t, "PONG", sendLine(t, conn, "ping"))
}

func TestServerHandlesMultipleConnections(t *testing.T) {
	srv := testServer(t)

	connA, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer connA.Close()

	connB, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer connB.Close()

	assert.Equal(t, "OK", sendLine(t, connA, "set shared fromA"))
	assert.Equal(t, "fromA", sendLine(t, connB, "get shared"))
}

func TestServerClosesOnEmptyRead(t *testing.T) {
	srv := testServer(t)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	conn.Close()
}
