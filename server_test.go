package tftp

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClient struct {
	t    *testing.T
	conn net.PacketConn
	srv  net.Addr
	buf  *buffer
}

func newTestClient(t *testing.T, srv net.Addr) *testClient {
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &testClient{t: t, conn: conn, srv: srv, buf: newBuffer(bufferSize)}
}

func (c *testClient) send(msg message) {
	c.t.Helper()
	require.NoError(c.t, serializeMessage(c.buf, msg))
	_, err := c.conn.WriteTo(c.buf.bytes(), c.srv)
	require.NoError(c.t, err)
}

func (c *testClient) sendRaw(raw []byte) {
	c.t.Helper()
	_, err := c.conn.WriteTo(raw, c.srv)
	require.NoError(c.t, err)
}

func (c *testClient) recv() message {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	c.buf.reset()
	n, _, err := c.conn.ReadFrom(c.buf.space())
	require.NoError(c.t, err)
	c.buf.setLength(n)
	return parseMessage(c.buf)
}

// startServer runs srv on a loopback port and returns its address and a
// channel that yields the result of Serve.
func startServer(t *testing.T, ctx context.Context, srv *Server) (net.Addr, <-chan error) {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, pc)
	}()
	return pc.LocalAddr(), done
}

func waitServe(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
		return nil
	}
}

func testServer(dir string) *Server {
	srv := NewServer()
	srv.Storage = NewDirStorage(dir)
	srv.Timeout = 50 * time.Millisecond
	return srv
}

func TestServer_Download(t *testing.T) {
	dir := t.TempDir()
	content := bytes.Repeat([]byte("tftp"), 250)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file.bin"), content, 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addr, done := startServer(t, ctx, testServer(dir))
	client := newTestClient(t, addr)

	client.send(newRequestMessage(false, "file.bin", modeOctet))
	assert.Equal(t, newDataMessage(1, content[:512]), client.recv())

	client.send(newAckMessage(1))
	assert.Equal(t, newDataMessage(2, content[512:]), client.recv())

	client.send(newAckMessage(2))

	// The server is free for the next client.
	other := newTestClient(t, addr)
	other.send(newRequestMessage(false, "file.bin", modeOctet))
	assert.Equal(t, newDataMessage(1, content[:512]), other.recv())

	cancel()
	assert.NoError(t, waitServe(t, done))
}

func TestServer_Upload(t *testing.T) {
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addr, done := startServer(t, ctx, testServer(dir))
	client := newTestClient(t, addr)

	first := bytes.Repeat([]byte{0xEE}, 512)
	second := []byte("tail bytes")

	client.send(newRequestMessage(true, "new.bin", modeOctet))
	assert.Equal(t, newAckMessage(0), client.recv())

	client.send(newDataMessage(1, first))
	assert.Equal(t, newAckMessage(1), client.recv())

	client.send(newDataMessage(2, second))
	assert.Equal(t, newAckMessage(2), client.recv())

	cancel()
	assert.NoError(t, waitServe(t, done))

	got, err := os.ReadFile(filepath.Join(dir, "new.bin"))
	require.NoError(t, err)
	assert.Equal(t, append(first, second...), got)
}

func TestServer_IllegalOpcodeHalts(t *testing.T) {
	addr, done := startServer(t, context.Background(), testServer(t.TempDir()))
	client := newTestClient(t, addr)

	client.sendRaw([]byte{0x00, 0x09})
	assert.Equal(t, newErrorMessage(errIllegalOp), client.recv())

	err := waitServe(t, done)
	assert.ErrorIs(t, err, errHalted)
}

func TestServer_NotFoundContinue(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok"), []byte("ok"), 0o644))

	srv := testServer(dir)
	srv.ContinueOnError = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addr, done := startServer(t, ctx, srv)
	client := newTestClient(t, addr)

	client.send(newRequestMessage(false, "missing", modeOctet))
	assert.Equal(t, newErrorMessage(errNotFound), client.recv())

	client.send(newRequestMessage(false, "ok", modeOctet))
	assert.Equal(t, newDataMessage(1, []byte("ok")), client.recv())

	cancel()
	assert.NoError(t, waitServe(t, done))
}
