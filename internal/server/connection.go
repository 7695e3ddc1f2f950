package server

import (
	"bufio"
	"crypto/tls"
	"encoding/json"
	"errors"
	"log"
	"net"
	"time"

	"openclaw/internal/auth"
	apperrors "openclaw/internal/errors"
	"openclaw/pkg/protocol"
)

// handleConnection serves one client: an unauthenticated phase that only
// admits the account-lifecycle actions and login, then the authenticated
// request loop until logout or transport close.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), s.cfg.Server.MaxLineBytes)

	_, isTLS := conn.(*tls.Conn)

	sess := s.preAuth(conn, scanner, isTLS)
	if sess == nil {
		return
	}
	defer s.teardown(sess)

	s.postLogin(sess)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var env protocol.Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			log.Printf("session %s: malformed request: %v", sess.User, err)
			return
		}
		if env.Action == protocol.ActionLogout {
			return
		}
		s.dispatch(sess, env.Action, line)
		if sess.Closed() {
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Printf("session %s: read failed: %v", sess.User, err)
	}
}

// preAuth services the unauthenticated actions and returns a registered
// session once a login succeeds, or nil when the connection should close.
func (s *Server) preAuth(conn net.Conn, scanner *bufio.Scanner, isTLS bool) *Session {
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var env protocol.Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			log.Printf("conn %s: malformed request before login: %v", conn.RemoteAddr(), err)
			return nil
		}

		switch env.Action {
		case protocol.ActionGetWelcome:
			writeJSON(conn, protocol.WelcomeInfoEvent{
				Action:     protocol.EventWelcomeInfo,
				ServerName: s.cfg.Server.ServerName,
				Text:       s.cfg.Welcome.PreLogin,
			})
		case protocol.ActionCreateAccount:
			s.handleCreateAccount(conn, line)
		case protocol.ActionVerifyAccount:
			var req protocol.VerifyAccountRequest
			if json.Unmarshal(line, &req) != nil {
				return nil
			}
			if err := s.auth.VerifyAccount(req.User, req.Code); err != nil {
				writeJSON(conn, protocol.Result{Action: protocol.ActionVerifyAccount, OK: false, Error: "Invalid verification code."})
			} else {
				writeJSON(conn, protocol.Result{Action: protocol.ActionVerifyAccount, OK: true})
			}
		case protocol.ActionRequestReset:
			var req protocol.RequestResetRequest
			if json.Unmarshal(line, &req) != nil {
				return nil
			}
			if err := s.auth.RequestReset(req.Identifier); err != nil {
				if errors.Is(err, auth.ErrNoEmail) {
					writeJSON(conn, protocol.Result{Action: protocol.ActionRequestReset, OK: false, Error: "Account has no email address on file."})
					continue
				}
				log.Printf("request_reset: %v", err)
			}
			// Always ok otherwise, to avoid user enumeration.
			writeJSON(conn, protocol.Result{Action: protocol.ActionRequestReset, OK: true})
		case protocol.ActionResetPassword:
			var req protocol.ResetPasswordRequest
			if json.Unmarshal(line, &req) != nil {
				return nil
			}
			if err := s.auth.ResetPassword(req.User, req.Code, req.NewPassword); err != nil {
				writeJSON(conn, protocol.Result{Action: protocol.ActionResetPassword, OK: false, Error: "Invalid reset code."})
			} else {
				writeJSON(conn, protocol.Result{Action: protocol.ActionResetPassword, OK: true})
			}
		case protocol.ActionLogin:
			var req protocol.LoginRequest
			if json.Unmarshal(line, &req) != nil {
				return nil
			}
			return s.handleLogin(conn, req, isTLS)
		default:
			// Anything else before login is a protocol error.
			log.Printf("conn %s: action %q before login", conn.RemoteAddr(), env.Action)
			return nil
		}
	}
	return nil
}

func (s *Server) handleCreateAccount(conn net.Conn, line []byte) {
	var req protocol.CreateAccountRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return
	}
	pending, err := s.auth.CreateAccount(req.User, req.Password, req.Email)
	switch {
	case errors.Is(err, apperrors.ErrDuplicateKey):
		writeJSON(conn, protocol.Result{Action: protocol.ActionCreateAccount, OK: false, Error: "Username is already taken."})
	case err != nil:
		log.Printf("create_account %s: %v", req.User, err)
		writeJSON(conn, protocol.Result{Action: protocol.ActionCreateAccount, OK: false, Error: "Account creation failed."})
	case pending:
		writeJSON(conn, protocol.Result{Action: protocol.EventVerifyPending, OK: true})
	default:
		writeJSON(conn, protocol.Result{Action: protocol.EventCreateAccountSuccess, OK: true})
	}
}

// handleLogin authenticates, registers the session (evicting any previous
// one) and answers the login request. A failed login closes the
// connection.
func (s *Server) handleLogin(conn net.Conn, req protocol.LoginRequest, isTLS bool) *Session {
	user, err := s.auth.Login(req.User, req.Password)
	if err != nil {
		var ban *auth.BanError
		switch {
		case errors.As(err, &ban):
			writeJSON(conn, protocol.LoginResult{
				Action: protocol.ActionLogin,
				OK:     false,
				Banned: true,
				Until:  ban.Until.Format("2006-01-02"),
				Reason: ban.Reason,
				Error:  "Account is banned.",
			})
		case errors.Is(err, apperrors.ErrAmbiguousUsername):
			writeJSON(conn, protocol.LoginResult{Action: protocol.ActionLogin, OK: false, Error: "Ambiguous username."})
		case errors.Is(err, apperrors.ErrNotVerified):
			writeJSON(conn, protocol.LoginResult{Action: protocol.ActionLogin, OK: false, Error: "Account not verified."})
		default:
			writeJSON(conn, protocol.LoginResult{Action: protocol.ActionLogin, OK: false, Error: "Invalid credentials."})
		}
		return nil
	}

	sess := NewSession(conn, user.Username, user.UsernameFolded, isTLS)

	// Register before the first presence broadcast so a racing message or
	// add_contact already sees the user online.
	if old := s.registry.Register(sess); old != nil {
		_ = old.Send(protocol.SessionReplacedEvent{Action: protocol.EventSessionReplaced})
		old.Close()
	}
	metricSessionsOnline.Set(float64(s.registry.Count()))

	if err := sess.Send(protocol.LoginResult{Action: protocol.ActionLogin, OK: true, User: user.Username}); err != nil {
		return nil
	}
	log.Printf("session %s: logged in from %s (TLS=%v)", user.Username, conn.RemoteAddr(), isTLS)
	return sess
}

// postLogin delivers the initial state of a fresh session: welcome text,
// capability digest, contact list, and the presence-online fan-out.
func (s *Server) postLogin(sess *Session) {
	if s.cfg.Welcome.PostLogin != "" {
		_ = sess.Send(protocol.WelcomeInfoEvent{
			Action:     protocol.EventWelcomeInfo,
			ServerName: s.cfg.Server.ServerName,
			Text:       s.cfg.Welcome.PostLogin,
		})
	}
	if caps, err := s.policy.Capabilities(sess.Folded); err == nil {
		_ = sess.Send(protocol.FeatureCapsEvent{Action: protocol.EventFeatureCaps, Caps: caps})
	}
	s.sendContactList(sess)
	s.fanoutPresence(sess.Folded, sess.User, true, sess.Status())
}

// teardown drains a departing session: presence entry, group-call
// participations and in-flight transfers.
func (s *Server) teardown(sess *Session) {
	sess.Close()
	current := s.registry.Unregister(sess)
	metricSessionsOnline.Set(float64(s.registry.Count()))

	for group, info := range s.calls.LeaveAll(sess.Folded) {
		s.broadcastCallEvent("leave", sess.User, group, info.Mode, info.Remaining)
	}
	s.transfers.DropFor(sess.Folded)

	// An evicted session must not broadcast offline for its replacement.
	if current {
		s.fanoutPresence(sess.Folded, sess.User, false, "")
	}
	log.Printf("session %s: closed", sess.User)
}

// writeJSON writes one newline-terminated JSON message directly to a
// connection. Used only before a session (and its serialised sink) exists.
func writeJSON(conn net.Conn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	b = append(b, '\n')
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, _ = conn.Write(b)
}
