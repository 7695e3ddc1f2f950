package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	apperrors "openclaw/internal/errors"
	"openclaw/internal/models"
	"openclaw/internal/policy"
	"openclaw/pkg/protocol"
)

// handleAdminCmd parses and runs one admin console command line. Every
// command answers with a single admin_response.
func (s *Server) handleAdminCmd(sess *Session, line []byte) {
	var req protocol.AdminCmdRequest
	if json.Unmarshal(line, &req) != nil {
		return
	}
	if !s.admins.IsAdmin(sess.Folded) || !s.policy.CanUse(sess.Folded, policy.FeatureAdminConsole) {
		s.adminRespond(sess, "Administrator access required.")
		return
	}

	fields := strings.Fields(req.Cmd)
	if len(fields) == 0 {
		s.adminRespond(sess, "Empty command. Try 'help'.")
		return
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "help":
		s.adminRespond(sess, adminHelp)
	case "create":
		s.adminCreate(sess, args)
	case "ban":
		s.adminBan(sess, args)
	case "unban":
		s.adminUnban(sess, args)
	case "del":
		s.adminDelete(sess, args)
	case "admin":
		s.adminGrant(sess, args, true)
	case "unadmin":
		s.adminGrant(sess, args, false)
	case "admins":
		s.adminRespond(sess, "Admins: "+strings.Join(s.admins.List(), ", "))
	case "users":
		s.adminUsers(sess)
	case "alert":
		s.adminAlert(sess, args)
	case "banfile":
		s.adminBanFile(sess, args)
	case "unbanfile":
		s.adminUnbanFile(sess, args)
	case "gpolicy":
		s.adminGroupPolicy(sess, args)
	case "exit":
		s.adminRespond(sess, fmt.Sprintf("Server shutdown scheduled in %s.", s.cfg.ShutdownDelay()))
		s.scheduleStop(false)
	case "restart":
		s.adminRespond(sess, fmt.Sprintf("Server restart scheduled in %s.", s.cfg.ShutdownDelay()))
		s.scheduleStop(true)
	default:
		s.adminRespond(sess, fmt.Sprintf("Unknown command '%s'. Try 'help'.", cmd))
	}
}

// handleScheduleRestart is the structured form of the restart command.
func (s *Server) handleScheduleRestart(sess *Session) {
	if !s.admins.IsAdmin(sess.Folded) || !s.policy.CanUse(sess.Folded, policy.FeatureAdminConsole) {
		_ = sess.Send(protocol.Result{
			Action: protocol.ActionScheduleRestart,
			OK:     false,
			Error:  "Administrator access required.",
		})
		return
	}
	_ = sess.Send(protocol.Result{Action: protocol.ActionScheduleRestart, OK: true})
	s.scheduleStop(true)
}

const adminHelp = "Commands: create <user> <password> | ban <user> <mm/dd/yyyy> [reason] | " +
	"unban <user> | del <user> | admin <user> | unadmin <user> | admins | users | " +
	"alert <text> | banfile <user> <ext|*> [mm/dd/yyyy] [reason] | unbanfile <user> <ext|*> | " +
	"gpolicy show|set|reset|keys [group] | restart | exit"

func (s *Server) adminRespond(sess *Session, text string) {
	_ = sess.Send(protocol.AdminResponseEvent{
		Action:   protocol.EventAdminResponse,
		Response: text,
	})
}

func (s *Server) adminCreate(sess *Session, args []string) {
	if len(args) < 2 {
		s.adminRespond(sess, "Usage: create <user> <password>")
		return
	}
	if _, err := s.auth.CreateAccount(args[0], args[1], ""); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateKey) {
			s.adminRespond(sess, fmt.Sprintf("User '%s' already exists.", args[0]))
			return
		}
		s.adminRespond(sess, fmt.Sprintf("Could not create '%s': %v", args[0], err))
		return
	}
	s.adminRespond(sess, fmt.Sprintf("User '%s' created.", args[0]))
}

// adminBan bans until the end of the given UTC calendar day, inclusive, and
// kicks any live session.
func (s *Server) adminBan(sess *Session, args []string) {
	if len(args) < 2 {
		s.adminRespond(sess, "Usage: ban <user> <mm/dd/yyyy> [reason]")
		return
	}
	until, err := parseBanDate(args[1])
	if err != nil {
		s.adminRespond(sess, "Invalid date; expected mm/dd/yyyy.")
		return
	}
	reason := strings.Join(args[2:], " ")

	user, err := s.store.LookupUser(args[0])
	if err != nil {
		s.adminRespond(sess, fmt.Sprintf("No such user '%s'.", args[0]))
		return
	}
	user.BannedUntil = &until
	user.BanReason = reason
	if err := s.store.UpdateUser(user); err != nil {
		s.adminRespond(sess, fmt.Sprintf("Could not ban '%s': %v", args[0], err))
		return
	}

	if live, ok := s.registry.Get(user.UsernameFolded); ok {
		_ = live.Send(protocol.BannedKickEvent{
			Action: protocol.EventBannedKick,
			Until:  until.Format("2006-01-02"),
			Reason: reason,
		})
		live.Close()
	}
	s.adminRespond(sess, fmt.Sprintf("User '%s' banned.", user.Username))
}

func (s *Server) adminUnban(sess *Session, args []string) {
	if len(args) < 1 {
		s.adminRespond(sess, "Usage: unban <user>")
		return
	}
	user, err := s.store.LookupUser(args[0])
	if err != nil {
		s.adminRespond(sess, fmt.Sprintf("No such user '%s'.", args[0]))
		return
	}
	user.BannedUntil = nil
	user.BanReason = ""
	if err := s.store.UpdateUser(user); err != nil {
		s.adminRespond(sess, fmt.Sprintf("Could not unban '%s': %v", args[0], err))
		return
	}
	s.adminRespond(sess, fmt.Sprintf("User '%s' unbanned.", user.Username))
}

func (s *Server) adminDelete(sess *Session, args []string) {
	if len(args) < 1 {
		s.adminRespond(sess, "Usage: del <user>")
		return
	}
	name := args[0]
	if live, ok := s.registry.Get(fold(name)); ok {
		live.Close()
	}
	if err := s.store.DeleteUser(name); err != nil {
		s.adminRespond(sess, fmt.Sprintf("No such user '%s'.", name))
		return
	}
	s.adminRespond(sess, fmt.Sprintf("User '%s' deleted.", name))
}

// adminGrant toggles admin membership, broadcasts the change and refreshes
// everyone's capabilities.
func (s *Server) adminGrant(sess *Session, args []string, grant bool) {
	if len(args) < 1 {
		s.adminRespond(sess, "Usage: admin <user> / unadmin <user>")
		return
	}
	user, err := s.store.LookupUser(args[0])
	if err != nil {
		s.adminRespond(sess, fmt.Sprintf("No such user '%s'.", args[0]))
		return
	}

	var changed bool
	if grant {
		changed, err = s.admins.Add(user.UsernameFolded)
	} else {
		changed, err = s.admins.Remove(user.UsernameFolded)
	}
	if err != nil {
		log.Printf("admin set update for %s: %v", user.Username, err)
		s.adminRespond(sess, "Could not persist the admin file.")
		return
	}
	if !changed {
		s.adminRespond(sess, fmt.Sprintf("No change for '%s'.", user.Username))
		return
	}

	s.broadcast(protocol.AdminStatusChangeEvent{
		Action:  protocol.EventAdminStatusChange,
		User:    user.Username,
		IsAdmin: grant,
	})
	s.broadcastCaps()
	if grant {
		s.adminRespond(sess, fmt.Sprintf("User '%s' is now an admin.", user.Username))
	} else {
		s.adminRespond(sess, fmt.Sprintf("User '%s' is no longer an admin.", user.Username))
	}
}

func (s *Server) adminUsers(sess *Session) {
	users, err := s.store.ListUsers()
	if err != nil {
		s.adminRespond(sess, "Could not list users.")
		return
	}
	lines := make([]string, 0, len(users))
	for _, u := range users {
		flags := ""
		if _, online := s.registry.Get(u.UsernameFolded); online {
			flags += " [online]"
		}
		if s.admins.IsAdmin(u.UsernameFolded) {
			flags += " [admin]"
		}
		if until, banned := activeBanDay(&u); banned {
			flags += fmt.Sprintf(" [banned until %s]", until.Format("2006-01-02"))
		}
		lines = append(lines, u.Username+flags)
	}
	sort.Strings(lines)
	s.adminRespond(sess, fmt.Sprintf("%d users:\n%s", len(lines), strings.Join(lines, "\n")))
}

func (s *Server) adminAlert(sess *Session, args []string) {
	if len(args) == 0 {
		s.adminRespond(sess, "Usage: alert <text>")
		return
	}
	text := strings.Join(args, " ")
	s.broadcast(protocol.ServerAlertEvent{
		Action: protocol.EventServerAlert,
		Text:   text,
	})
	s.adminRespond(sess, "Alert sent.")
}

// adminBanFile bans a user from offering a file type ('*' for all). Without
// a date the ban is permanent.
func (s *Server) adminBanFile(sess *Session, args []string) {
	if len(args) < 2 {
		s.adminRespond(sess, "Usage: banfile <user> <ext|*> [mm/dd/yyyy] [reason]")
		return
	}
	name, ext := args[0], normalizeExt(args[1])
	rest := args[2:]

	var until *time.Time
	if len(rest) > 0 {
		if day, err := parseBanDate(rest[0]); err == nil {
			until = &day
			rest = rest[1:]
		}
	}
	ban := &models.FileBan{
		Username: fold(name),
		FileType: ext,
		Until:    until,
		Reason:   strings.Join(rest, " "),
	}
	if err := s.store.CreateFileBan(ban); err != nil {
		s.adminRespond(sess, fmt.Sprintf("Could not ban file type for '%s': %v", name, err))
		return
	}
	s.adminRespond(sess, fmt.Sprintf("User '%s' banned from sending '%s' files.", name, ext))
}

func (s *Server) adminUnbanFile(sess *Session, args []string) {
	if len(args) < 2 {
		s.adminRespond(sess, "Usage: unbanfile <user> <ext|*>")
		return
	}
	name, ext := args[0], normalizeExt(args[1])
	n, err := s.store.DeleteFileBans(fold(name), ext)
	if err != nil {
		s.adminRespond(sess, fmt.Sprintf("Could not remove file bans for '%s': %v", name, err))
		return
	}
	s.adminRespond(sess, fmt.Sprintf("Removed %d file ban(s) for '%s'.", n, name))
}

// adminGroupPolicy is the console surface over the group policy store:
//
//	gpolicy show [group]
//	gpolicy set [group] key=value ...
//	gpolicy reset [group]
//	gpolicy keys
func (s *Server) adminGroupPolicy(sess *Session, args []string) {
	if len(args) == 0 {
		s.adminRespond(sess, "Usage: gpolicy show|set|reset|keys [group]")
		return
	}
	sub, rest := strings.ToLower(args[0]), args[1:]

	if sub == "keys" {
		s.adminRespond(sess, "Keys: "+strings.Join(policy.GroupPolicyKeys(), ", "))
		return
	}

	// A leading word without '=' names the group; absent means global.
	group := ""
	if len(rest) > 0 && !strings.Contains(rest[0], "=") {
		group = rest[0]
		rest = rest[1:]
	}
	scope, name := groupScope(group)

	switch sub {
	case "show":
		values, err := s.policy.GroupPolicy(scope, name)
		if err != nil {
			s.adminRespond(sess, fmt.Sprintf("Could not read group policy: %v", err))
			return
		}
		keys := policy.GroupPolicyKeys()
		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("%s=%v", k, values[k]))
		}
		s.adminRespond(sess, strings.Join(lines, "\n"))
	case "set":
		if len(rest) == 0 {
			s.adminRespond(sess, "Usage: gpolicy set [group] key=value ...")
			return
		}
		updates := make(map[string]string, len(rest))
		for _, pair := range rest {
			k, v, ok := strings.Cut(pair, "=")
			if !ok {
				s.adminRespond(sess, fmt.Sprintf("Expected key=value, got '%s'.", pair))
				return
			}
			updates[k] = v
		}
		if err := s.policy.SetGroupPolicyStrings(scope, name, updates); err != nil {
			s.adminRespond(sess, fmt.Sprintf("Could not set group policy: %v", err))
			return
		}
		s.broadcastGroupPolicy(scope, name)
		s.adminRespond(sess, "Group policy updated.")
	case "reset":
		if err := s.policy.ResetGroupPolicy(scope, name); err != nil {
			s.adminRespond(sess, fmt.Sprintf("Could not reset group policy: %v", err))
			return
		}
		s.broadcastGroupPolicy(scope, name)
		s.adminRespond(sess, "Group policy reset to defaults.")
	default:
		s.adminRespond(sess, "Usage: gpolicy show|set|reset|keys [group]")
	}
}

// parseBanDate parses mm/dd/yyyy into a UTC calendar day.
func parseBanDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation("01/02/2006", s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// activeBanDay mirrors the login-time ban window for display purposes.
func activeBanDay(u *models.User) (time.Time, bool) {
	if u.BannedUntil == nil {
		return time.Time{}, false
	}
	until := *u.BannedUntil
	endOfDay := time.Date(until.Year(), until.Month(), until.Day(), 23, 59, 59, 0, time.UTC)
	if time.Now().UTC().After(endOfDay) {
		return time.Time{}, false
	}
	return until, true
}

func normalizeExt(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "*" {
		return s
	}
	return strings.TrimPrefix(s, ".")
}
