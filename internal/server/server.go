// Package server implements the broker core: the TCP listener, per-client
// connections, presence, routing, transfers, group calls and the admin
// console.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"openclaw/internal/admins"
	"openclaw/internal/auth"
	"openclaw/internal/bots"
	"openclaw/internal/config"
	"openclaw/internal/notify"
	"openclaw/internal/policy"
	"openclaw/internal/storage"
	"openclaw/pkg/protocol"
)

// Version is reported by server_info.
const Version = "1.4.0"

// Server owns the listener and the shared live-state maps. Connections run
// one goroutine each and cooperate through the mutex-guarded registries.
type Server struct {
	cfg      *config.Config
	store    storage.Store
	auth     *auth.Service
	admins   *admins.Set
	policy   *policy.Engine
	bots     *bots.Orchestrator
	notifier *notify.Composite

	registry  *PresenceRegistry
	transfers *TransferBroker
	calls     *GroupCalls

	listener net.Listener
	tlsOn    bool
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc

	// MaxConnections limits concurrent connections (0 = unlimited).
	MaxConnections int
	connSem        chan struct{}

	// terminate and restart are test hooks over the process-level actions.
	terminate func()
	restart   func()
}

// Deps bundles the collaborators wired in cmd/server.
type Deps struct {
	Store    storage.Store
	Auth     *auth.Service
	Admins   *admins.Set
	Policy   *policy.Engine
	Bots     *bots.Orchestrator
	Notifier *notify.Composite
}

// New builds a Server.
func New(cfg *config.Config, deps Deps) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:            cfg,
		store:          deps.Store,
		auth:           deps.Auth,
		admins:         deps.Admins,
		policy:         deps.Policy,
		bots:           deps.Bots,
		notifier:       deps.Notifier,
		registry:       NewPresenceRegistry(),
		transfers:      NewTransferBroker(),
		calls:          NewGroupCalls(),
		ctx:            ctx,
		cancel:         cancel,
		MaxConnections: 1000,
		terminate:      func() { os.Exit(0) },
		restart:        restartProcess,
	}
}

// Start runs the accept loop until Shutdown. TLS is attempted when cert and
// key paths are configured; a load failure logs the downgrade and falls
// back to plaintext.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)

	tlsConfig := s.loadTLS()
	var err error
	if tlsConfig != nil {
		s.listener, err = tls.Listen("tcp", addr, tlsConfig)
		s.tlsOn = true
	} else {
		s.listener, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return err
	}

	if s.MaxConnections > 0 {
		s.connSem = make(chan struct{}, s.MaxConnections)
	}

	log.Printf("Broker listening on %s (TLS=%v, MaxConn=%d)", addr, s.tlsOn, s.MaxConnections)

	for {
		select {
		case <-s.ctx.Done():
			log.Println("Broker: shutdown signal received, stopping accept loop")
			return nil
		default:
		}

		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				log.Println("Broker: listener closed during shutdown")
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				log.Printf("Temporary accept error: %v, retrying...", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
			log.Printf("Failed to accept connection: %v", err)
			return err
		}

		if s.connSem != nil {
			select {
			case s.connSem <- struct{}{}:
			case <-s.ctx.Done():
				conn.Close()
				return nil
			}
		}

		metricConnections.Inc()
		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			defer func() {
				if s.connSem != nil {
					<-s.connSem
				}
			}()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Panic recovered in handleConnection: %v", r)
				}
			}()
			s.handleConnection(c)
		}(conn)
	}
}

func (s *Server) loadTLS() *tls.Config {
	certPath := s.cfg.Server.CertPath
	keyPath := s.cfg.Server.KeyPath
	if certPath == "" || keyPath == "" {
		return nil
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		log.Printf("WARNING: TLS certificate load failed (%v); falling back to PLAINTEXT", err)
		return nil
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
}

// Shutdown gracefully stops the server: close the listener, then wait for
// active connections within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Broker: initiating shutdown...")
	s.cancel()

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			log.Printf("Error closing listener: %v", err)
		}
	}

	for _, sess := range s.registry.List() {
		sess.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Broker: all connections closed gracefully")
		return nil
	case <-ctx.Done():
		log.Println("Broker: shutdown timeout, forcing close")
		return ctx.Err()
	}
}

// OnlineCount reports the number of live sessions.
func (s *Server) OnlineCount() int {
	return s.registry.Count()
}

// TLSEnabled reports whether the listener is TLS-wrapped.
func (s *Server) TLSEnabled() bool {
	return s.tlsOn
}

// scheduleStop broadcasts a warning, waits the configured window, and then
// terminates or restarts the process. Requests during the window still
// process normally.
func (s *Server) scheduleStop(restart bool) {
	verb := "shut down"
	if restart {
		verb = "restart"
	}
	delay := s.cfg.ShutdownDelay()
	s.broadcast(protocol.ServerAlertEvent{
		Action: protocol.EventServerAlert,
		Text:   fmt.Sprintf("Server will %s in %s.", verb, delay),
	})

	go func() {
		time.Sleep(delay)
		if restart {
			log.Println("Broker: restarting by admin request")
			s.restart()
			return
		}
		log.Println("Broker: terminating by admin request")
		s.terminate()
	}()
}

// restartProcess replaces the running image with a fresh copy of itself.
func restartProcess() {
	exe, err := os.Executable()
	if err != nil {
		log.Printf("restart: cannot resolve executable: %v", err)
		os.Exit(1)
	}
	if err := syscall.Exec(exe, os.Args, os.Environ()); err != nil {
		log.Printf("restart: exec failed: %v", err)
		os.Exit(1)
	}
}

// broadcast sends one event to every live session, best-effort per
// recipient.
func (s *Server) broadcast(v any) {
	for _, sess := range s.registry.List() {
		if err := sess.Send(v); err != nil {
			log.Printf("broadcast to %s failed: %v", sess.User, err)
		}
	}
}

// broadcastCaps recomputes and delivers the capabilities digest to every
// live session. Called after any admin mutation of feature policy state.
func (s *Server) broadcastCaps() {
	for _, sess := range s.registry.List() {
		caps, err := s.policy.Capabilities(sess.Folded)
		if err != nil {
			log.Printf("capability digest for %s failed: %v", sess.User, err)
			continue
		}
		_ = sess.Send(protocol.FeatureCapsEvent{
			Action: protocol.EventFeatureCaps,
			Caps:   caps,
		})
	}
}
