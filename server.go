package tftp

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// Server serves one TFTP transfer at a time from its Storage.
type Server struct {
	Storage Storage
	// Timeout bounds every receive, and with it how long a shutdown
	// request may wait.
	Timeout time.Duration
	// ContinueOnError keeps serving after a failed transfer. By default the
	// first failed transfer stops the server.
	ContinueOnError bool
}

func NewServer() *Server {
	return &Server{
		Storage: NewDirStorage("."),
		Timeout: DefaultTimeout,
	}
}

// NewServerFromConfig builds a Server serving cfg.Root.
func NewServerFromConfig(cfg *Config) *Server {
	return &Server{
		Storage:         NewDirStorage(cfg.Root),
		Timeout:         cfg.Timeout,
		ContinueOnError: cfg.ContinueOnError,
	}
}

func (s *Server) ListenAndServe(ctx context.Context, listenAddr string) error {
	pc, err := net.ListenPacket("udp4", listenAddr)
	if err != nil {
		return err
	}
	defer pc.Close()

	return s.Serve(ctx, pc)
}

// Serve runs the transfer state machine on pc until ctx is cancelled, pc is
// closed or, unless ContinueOnError is set, a transfer fails. The returned
// error wraps the failure that stopped the server.
func (s *Server) Serve(ctx context.Context, pc net.PacketConn) error {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	m := newMachine(
		newTracingPacketReader(newUDPPacketReader(pc, bufferSize, timeout)),
		newTracingPacketWriter(newUDPPacketWriter(pc, bufferSize)),
		s.Storage,
		machineOpts{ContinueOnError: s.ContinueOnError},
	)

	logrus.WithFields(logrus.Fields{
		"function":          "Serve",
		"addr":              pc.LocalAddr().String(),
		"timeout":           timeout.String(),
		"continue_on_error": s.ContinueOnError,
	}).Info("Serving TFTP")

	return m.run(ctx)
}
