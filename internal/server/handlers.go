package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	apperrors "openclaw/internal/errors"
	"openclaw/internal/models"
	"openclaw/internal/policy"
	"openclaw/pkg/protocol"
)

// dispatch routes one authenticated request line to its handler. Unknown
// actions get a generic error event rather than a dropped connection.
func (s *Server) dispatch(sess *Session, action string, line []byte) {
	switch action {
	case protocol.ActionGetWelcome:
		_ = sess.Send(protocol.WelcomeInfoEvent{
			Action:     protocol.EventWelcomeInfo,
			ServerName: s.cfg.Server.ServerName,
			Text:       s.cfg.Welcome.PreLogin,
		})
	case protocol.ActionAddContact:
		s.handleAddContact(sess, line)
	case protocol.ActionInviteUser:
		s.handleInvite(sess, line)
	case protocol.ActionBlockContact:
		s.handleSetBlocked(sess, line, true)
	case protocol.ActionUnblockContact:
		s.handleSetBlocked(sess, line, false)
	case protocol.ActionDeleteContact:
		s.handleDeleteContact(sess, line)
	case protocol.ActionMsg:
		s.handleMsg(sess, line)
	case protocol.ActionTyping:
		s.handleTyping(sess, line)
	case protocol.ActionSetStatus:
		s.handleSetStatus(sess, line)
	case protocol.ActionChangePassword:
		s.handleChangePassword(sess, line)
	case protocol.ActionFileOffer:
		s.handleFileOffer(sess, line)
	case protocol.ActionFileAccept:
		s.handleFileAccept(sess, line)
	case protocol.ActionFileDecline:
		s.handleFileDecline(sess, line)
	case protocol.ActionFileData:
		s.handleFileData(sess, line)
	case protocol.ActionAdminCmd:
		s.handleAdminCmd(sess, line)
	case protocol.ActionScheduleRestart:
		s.handleScheduleRestart(sess)
	case protocol.ActionServerInfo:
		s.handleServerInfo(sess)
	case protocol.ActionUserDirectory:
		s.handleUserDirectory(sess)
	case protocol.ActionGetBotRules:
		s.handleGetBotRules(sess, line)
	case protocol.ActionSetBotRules:
		s.handleSetBotRules(sess, line)
	case protocol.ActionResetBotRules:
		s.handleResetBotRules(sess, line)
	case protocol.ActionGetGroupPolicy:
		s.handleGetGroupPolicy(sess, line)
	case protocol.ActionSetGroupPolicy:
		s.handleSetGroupPolicy(sess, line)
	case protocol.ActionResetGroupPolicy:
		s.handleResetGroupPolicy(sess, line)
	case protocol.ActionGroupCallJoin:
		s.handleGroupCallJoin(sess, line)
	case protocol.ActionGroupCallLeave:
		s.handleGroupCallLeave(sess, line)
	case protocol.ActionGroupCallSignal:
		s.handleGroupCallSignal(sess, line)
	case protocol.ActionGroupCallList:
		s.handleGroupCallList(sess)
	case protocol.ActionGetFeatureCaps:
		s.handleGetFeatureCaps(sess)
	case protocol.ActionGetFeaturePolicies:
		s.handleGetFeaturePolicies(sess)
	case protocol.ActionSetFeaturePolicy:
		s.handleSetFeaturePolicy(sess, line)
	case protocol.ActionFeatureAllowUserAdd, protocol.ActionFeatureAllowUserRemove,
		protocol.ActionFeatureAccessGroupAdd, protocol.ActionFeatureAccessGroupRemove,
		protocol.ActionFeatureAllowGroupAdd, protocol.ActionFeatureAllowGroupRemove:
		s.handleFeatureList(sess, action, line)
	case protocol.ActionFeatureAccessGroupsList:
		s.handleAccessGroupsList(sess)
	default:
		_ = sess.Send(protocol.Result{
			Action: protocol.EventError,
			OK:     false,
			Error:  fmt.Sprintf("Unknown action %q.", action),
		})
	}
}

func (s *Server) handleAddContact(sess *Session, line []byte) {
	var req protocol.ContactRequest
	if json.Unmarshal(line, &req) != nil {
		return
	}
	name := strings.TrimSpace(req.Contact)
	if name == "" || fold(name) == sess.Folded {
		_ = sess.Send(protocol.Result{Action: protocol.EventAddContactFailed, OK: false, Error: "Invalid contact name."})
		return
	}
	if !s.isKnownRecipient(name) {
		_ = sess.Send(protocol.Result{Action: protocol.EventAddContactFailed, OK: false, Error: "No such user."})
		return
	}
	display := s.displayName(name)
	err := s.store.CreateContact(&models.Contact{
		Owner:   sess.Folded,
		Contact: fold(name),
		Display: display,
	})
	if err != nil && !errors.Is(err, apperrors.ErrDuplicateKey) {
		log.Printf("add_contact %s -> %s: %v", sess.User, name, err)
		_ = sess.Send(protocol.Result{Action: protocol.EventAddContactFailed, OK: false, Error: "Could not add contact."})
		return
	}
	_ = sess.Send(protocol.Result{Action: protocol.EventAddContactSuccess, OK: true})
	s.sendContactList(sess)
}

func (s *Server) handleInvite(sess *Session, line []byte) {
	var req protocol.InviteRequest
	if json.Unmarshal(line, &req) != nil {
		return
	}
	var err error
	switch {
	case req.Email != "":
		err = s.notifier.SendInviteEmail(req.Email, sess.User)
	case req.Phone != "":
		err = s.notifier.SendInviteSMS(req.Phone, sess.User)
	default:
		_ = sess.Send(protocol.Result{Action: protocol.ActionInviteUser, OK: false, Error: "An email or phone number is required."})
		return
	}
	if err != nil {
		log.Printf("invite from %s: %v", sess.User, err)
		_ = sess.Send(protocol.Result{Action: protocol.ActionInviteUser, OK: false, Error: "Invitation could not be sent."})
		return
	}
	_ = sess.Send(protocol.Result{Action: protocol.ActionInviteUser, OK: true})
}

func (s *Server) handleSetBlocked(sess *Session, line []byte, blocked bool) {
	var req protocol.ContactRequest
	if json.Unmarshal(line, &req) != nil {
		return
	}
	action := protocol.ActionUnblockContact
	if blocked {
		action = protocol.ActionBlockContact
	}
	if err := s.store.SetContactBlocked(sess.Folded, fold(req.Contact), blocked); err != nil {
		log.Printf("%s %s -> %s: %v", action, sess.User, req.Contact, err)
		_ = sess.Send(protocol.Result{Action: action, OK: false, Error: "No such contact."})
		return
	}
	_ = sess.Send(protocol.Result{Action: action, OK: true})
	s.sendContactList(sess)
}

func (s *Server) handleDeleteContact(sess *Session, line []byte) {
	var req protocol.ContactRequest
	if json.Unmarshal(line, &req) != nil {
		return
	}
	if err := s.store.DeleteContact(sess.Folded, fold(req.Contact)); err != nil {
		log.Printf("delete_contact %s -> %s: %v", sess.User, req.Contact, err)
		_ = sess.Send(protocol.Result{Action: protocol.ActionDeleteContact, OK: false, Error: "No such contact."})
		return
	}
	_ = sess.Send(protocol.Result{Action: protocol.ActionDeleteContact, OK: true})
	s.sendContactList(sess)
}

// handleMsg routes one 1-to-1 message: block checks first, then bot
// dispatch, then live delivery. The payload is forwarded verbatim; only
// the from field is stamped with the sender's display name.
func (s *Server) handleMsg(sess *Session, line []byte) {
	var req protocol.MsgRequest
	if json.Unmarshal(line, &req) != nil {
		return
	}
	to := strings.TrimSpace(req.To)
	if to == "" {
		return
	}
	toFolded := fold(to)

	bot, isBot := s.botTarget(to)
	if isBot && !s.policy.CanUse(sess.Folded, policy.FeatureBots) {
		s.msgFailed(sess, to, "Bots are not available to you.")
		return
	}

	// Block checks apply to bots too; a blocked bot contact never replies.
	senderBlocked, recipientBlocked, err := s.store.BlockFlags(sess.Folded, toFolded)
	if err != nil {
		log.Printf("msg %s -> %s: block check: %v", sess.User, to, err)
	}
	if senderBlocked {
		s.msgFailed(sess, to, "You have blocked this contact.")
		return
	}
	if recipientBlocked {
		s.msgFailed(sess, to, fmt.Sprintf("%s has you blocked.", s.displayName(to)))
		return
	}

	if isBot {
		s.replyAsBot(sess, bot, req)
		return
	}

	target, online := s.registry.Get(toFolded)
	if !online {
		s.msgFailed(sess, to, fmt.Sprintf("%s is offline.", s.displayName(to)))
		return
	}
	err = target.Send(protocol.MsgEvent{
		Action: protocol.EventMsg,
		To:     target.User,
		From:   sess.User,
		Msg:    req.Msg,
		Time:   req.Time,
	})
	if err != nil {
		s.msgFailed(sess, to, fmt.Sprintf("%s is offline.", s.displayName(to)))
		return
	}
	metricMessagesRouted.Inc()
}

// botTarget resolves a message recipient to a virtual bot name (local or
// external), if it is one.
func (s *Server) botTarget(name string) (string, bool) {
	if bot, ok := s.cfg.Bots.IsBot(name); ok {
		return bot, true
	}
	if bot, ok := s.cfg.Bots.IsExternalBot(name); ok {
		return bot, true
	}
	return "", false
}

// replyAsBot composes the bot answer off the connection goroutine so a slow
// text-generation call never stalls the sender's read loop.
func (s *Server) replyAsBot(sess *Session, bot string, req protocol.MsgRequest) {
	go func() {
		reply := s.bots.Compose(sess.Folded, s.admins.IsAdmin(sess.Folded), bot, req.Msg)
		err := sess.Send(protocol.MsgEvent{
			Action:    protocol.EventMsg,
			To:        sess.User,
			From:      bot,
			Msg:       reply.Text,
			AudioB64:  reply.AudioB64,
			AudioMime: reply.AudioMime,
			Voice:     reply.Voice,
		})
		if err == nil {
			metricBotReplies.Inc()
		}
	}()
}

func (s *Server) msgFailed(sess *Session, to, reason string) {
	metricMessagesFailed.Inc()
	_ = sess.Send(protocol.MsgFailedEvent{
		Action: protocol.EventMsgFailed,
		To:     to,
		Reason: reason,
	})
}

// handleTyping forwards the indicator when the recipient is online and
// neither side blocks the other. Silent in every failure case.
func (s *Server) handleTyping(sess *Session, line []byte) {
	var req protocol.TypingRequest
	if json.Unmarshal(line, &req) != nil {
		return
	}
	target, ok := s.registry.Get(fold(req.To))
	if !ok {
		return
	}
	senderBlocked, recipientBlocked, err := s.store.BlockFlags(sess.Folded, target.Folded)
	if err != nil || senderBlocked || recipientBlocked {
		return
	}
	_ = target.Send(protocol.TypingEvent{
		Action: protocol.EventTyping,
		From:   sess.User,
		Typing: req.Typing,
	})
}

func (s *Server) handleSetStatus(sess *Session, line []byte) {
	var req protocol.SetStatusRequest
	if json.Unmarshal(line, &req) != nil {
		return
	}
	text := sess.SetStatus(req.Status, s.cfg.Server.MaxStatusLength)
	s.fanoutPresence(sess.Folded, sess.User, true, text)
}

func (s *Server) handleChangePassword(sess *Session, line []byte) {
	var req protocol.ChangePasswordRequest
	if json.Unmarshal(line, &req) != nil {
		return
	}
	if err := s.auth.ChangePassword(sess.Folded, req.OldPassword, req.NewPassword); err != nil {
		_ = sess.Send(protocol.ChangePasswordResultEvent{
			Action: protocol.EventChangePasswordResult,
			OK:     false,
			Error:  "Current password is incorrect.",
		})
		return
	}
	_ = sess.Send(protocol.ChangePasswordResultEvent{
		Action: protocol.EventChangePasswordResult,
		OK:     true,
	})
}

func (s *Server) handleServerInfo(sess *Session) {
	_ = sess.Send(protocol.ServerInfoResponseEvent{
		Action:     protocol.EventServerInfoResponse,
		ServerName: s.cfg.Server.ServerName,
		Version:    Version,
		TLS:        s.tlsOn,
		Online:     s.registry.Count(),
	})
}

// handleUserDirectory lists every addressable participant: registered
// users plus the configured bots.
func (s *Server) handleUserDirectory(sess *Session) {
	if !s.policy.CanUse(sess.Folded, policy.FeatureUserDirectory) {
		s.featureDenied(sess, policy.FeatureUserDirectory)
		return
	}
	users, err := s.store.ListUsers()
	if err != nil {
		log.Printf("user_directory for %s: %v", sess.User, err)
		return
	}
	entries := make([]protocol.DirectoryEntry, 0, len(users)+len(s.cfg.Bots.Names))
	for _, u := range users {
		_, online := s.registry.Get(u.UsernameFolded)
		entries = append(entries, protocol.DirectoryEntry{
			User:    u.Username,
			Online:  online,
			IsAdmin: s.admins.IsAdmin(u.UsernameFolded),
		})
	}
	for _, bot := range s.cfg.Bots.Names {
		entries = append(entries, protocol.DirectoryEntry{
			User: bot, Online: true, IsBot: true, BotOrigin: "local",
		})
	}
	for _, bot := range s.cfg.Bots.External {
		entries = append(entries, protocol.DirectoryEntry{
			User: bot, Online: true, IsBot: true, BotOrigin: "external",
		})
	}
	sort.Slice(entries, func(i, j int) bool { return fold(entries[i].User) < fold(entries[j].User) })
	_ = sess.Send(protocol.UserDirectoryResponseEvent{
		Action: protocol.EventUserDirectoryResponse,
		Users:  entries,
	})
}

func (s *Server) featureDenied(sess *Session, feature string) {
	_ = sess.Send(protocol.Result{
		Action: protocol.EventFeatureDenied,
		OK:     false,
		Error:  fmt.Sprintf("Feature %q is not available to you.", feature),
	})
}

// requireAdmin gates an action on admin membership, replying with a denial
// when the caller is not an admin.
func (s *Server) requireAdmin(sess *Session, action string) bool {
	if s.admins.IsAdmin(sess.Folded) {
		return true
	}
	_ = sess.Send(protocol.Result{
		Action: action,
		OK:     false,
		Error:  "Administrator access required.",
	})
	return false
}

func (s *Server) handleGetBotRules(sess *Session, line []byte) {
	var req protocol.BotRulesRequest
	if json.Unmarshal(line, &req) != nil {
		return
	}
	if !s.requireAdmin(sess, protocol.EventBotRules) {
		return
	}
	if !s.policy.CanUse(sess.Folded, policy.FeatureBotRulesEditor) {
		s.featureDenied(sess, policy.FeatureBotRulesEditor)
		return
	}
	rules := s.bots.EffectiveRules(sess.Folded, true, req.Bot)
	_ = sess.Send(protocol.BotRulesEvent{
		Action: protocol.EventBotRules,
		Bot:    req.Bot,
		Rules:  rules,
		OK:     true,
	})
}

func (s *Server) handleSetBotRules(sess *Session, line []byte) {
	var req protocol.BotRulesRequest
	if json.Unmarshal(line, &req) != nil {
		return
	}
	if !s.requireAdmin(sess, protocol.EventBotRulesUpdate) {
		return
	}
	if !s.policy.CanUse(sess.Folded, policy.FeatureBotRulesEditor) {
		s.featureDenied(sess, policy.FeatureBotRulesEditor)
		return
	}
	if err := s.bots.SetRules(sess.Folded, req.Bot, req.Rules); err != nil {
		_ = sess.Send(protocol.BotRulesEvent{
			Action: protocol.EventBotRulesUpdate,
			Bot:    req.Bot,
			OK:     false,
			Error:  err.Error(),
		})
		return
	}
	_ = sess.Send(protocol.BotRulesEvent{
		Action: protocol.EventBotRulesUpdate,
		Bot:    req.Bot,
		OK:     true,
	})
}

func (s *Server) handleResetBotRules(sess *Session, line []byte) {
	var req protocol.BotRulesRequest
	if json.Unmarshal(line, &req) != nil {
		return
	}
	if !s.requireAdmin(sess, protocol.EventBotRulesUpdate) {
		return
	}
	if !s.policy.CanUse(sess.Folded, policy.FeatureBotRulesEditor) {
		s.featureDenied(sess, policy.FeatureBotRulesEditor)
		return
	}
	if err := s.bots.ResetRules(sess.Folded, req.Bot); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		_ = sess.Send(protocol.BotRulesEvent{
			Action: protocol.EventBotRulesUpdate,
			Bot:    req.Bot,
			OK:     false,
			Error:  "Could not reset rules.",
		})
		return
	}
	_ = sess.Send(protocol.BotRulesEvent{
		Action: protocol.EventBotRulesUpdate,
		Bot:    req.Bot,
		OK:     true,
	})
}

func groupScope(group string) (scope, name string) {
	if group == "" {
		return policy.GroupScopeGlobal, ""
	}
	return policy.GroupScopeGroup, group
}

// handleGetGroupPolicy is open to every user; mutations are admin-only.
func (s *Server) handleGetGroupPolicy(sess *Session, line []byte) {
	var req protocol.GroupPolicyRequest
	if json.Unmarshal(line, &req) != nil {
		return
	}
	scope, group := groupScope(req.Group)
	values, err := s.policy.GroupPolicy(scope, group)
	if err != nil {
		log.Printf("get_group_policy for %s: %v", sess.User, err)
		return
	}
	_ = sess.Send(protocol.GroupPolicyEvent{
		Action: protocol.EventGroupPolicy,
		Scope:  scope,
		Group:  group,
		Values: values,
	})
}

func (s *Server) handleSetGroupPolicy(sess *Session, line []byte) {
	var req protocol.GroupPolicyRequest
	if json.Unmarshal(line, &req) != nil {
		return
	}
	if !s.requireAdmin(sess, protocol.EventGroupPolicyUpdate) {
		return
	}
	scope, group := groupScope(req.Group)
	if err := s.policy.SetGroupPolicy(scope, group, req.Values); err != nil {
		_ = sess.Send(protocol.Result{Action: protocol.EventGroupPolicyUpdate, OK: false, Error: err.Error()})
		return
	}
	s.broadcastGroupPolicy(scope, group)
}

func (s *Server) handleResetGroupPolicy(sess *Session, line []byte) {
	var req protocol.GroupPolicyRequest
	if json.Unmarshal(line, &req) != nil {
		return
	}
	if !s.requireAdmin(sess, protocol.EventGroupPolicyUpdate) {
		return
	}
	scope, group := groupScope(req.Group)
	if err := s.policy.ResetGroupPolicy(scope, group); err != nil {
		_ = sess.Send(protocol.Result{Action: protocol.EventGroupPolicyUpdate, OK: false, Error: "Could not reset group policy."})
		return
	}
	s.broadcastGroupPolicy(scope, group)
}

// broadcastGroupPolicy pushes the resolved bundle to every live session
// after an admin mutation.
func (s *Server) broadcastGroupPolicy(scope, group string) {
	values, err := s.policy.GroupPolicy(scope, group)
	if err != nil {
		log.Printf("group policy broadcast: %v", err)
		return
	}
	s.broadcast(protocol.GroupPolicyEvent{
		Action: protocol.EventGroupPolicyUpdate,
		Scope:  scope,
		Group:  group,
		Values: values,
	})
}

func (s *Server) handleGroupCallJoin(sess *Session, line []byte) {
	var req protocol.GroupCallJoinRequest
	if json.Unmarshal(line, &req) != nil {
		return
	}
	deny := func(reason string) {
		_ = sess.Send(protocol.GroupCallResultEvent{
			Action: protocol.EventGroupCallResult,
			OK:     false,
			Group:  req.Group,
			Reason: reason,
		})
	}

	if !s.policy.CanUse(sess.Folded, policy.FeatureGroupCall) {
		deny("Group calls are not available to you.")
		return
	}
	if req.Group == "" {
		deny("A group name is required.")
		return
	}
	switch req.Mode {
	case "voice", "video":
	default:
		deny("Mode must be voice or video.")
		return
	}
	key := "allow_group_voice"
	if req.Mode == "video" {
		key = "allow_group_video"
	}
	if ok, err := s.policy.GroupBool(policy.GroupScopeGlobal, "", key); err != nil || !ok {
		deny(fmt.Sprintf("Group %s calls are disabled.", req.Mode))
		return
	}
	limit, err := s.policy.GroupInt(policy.GroupScopeGlobal, "", "max_group_concurrent_voice")
	if err != nil {
		limit = 0
	}

	mode, participants, err := s.calls.Join(req.Group, req.Mode, sess.Folded, limit)
	if err != nil {
		deny(err.Error())
		return
	}
	_ = sess.Send(protocol.GroupCallResultEvent{
		Action: protocol.EventGroupCallResult,
		OK:     true,
		Group:  req.Group,
		Mode:   mode,
	})
	s.broadcastCallEvent("join", sess.User, req.Group, mode, participants)
}

func (s *Server) handleGroupCallLeave(sess *Session, line []byte) {
	var req protocol.GroupCallLeaveRequest
	if json.Unmarshal(line, &req) != nil {
		return
	}
	mode, remaining, ok := s.calls.Leave(req.Group, sess.Folded)
	if !ok {
		_ = sess.Send(protocol.GroupCallResultEvent{
			Action: protocol.EventGroupCallResult,
			OK:     false,
			Group:  req.Group,
			Reason: "You are not in this call.",
		})
		return
	}
	_ = sess.Send(protocol.GroupCallResultEvent{
		Action: protocol.EventGroupCallResult,
		OK:     true,
		Group:  req.Group,
		Mode:   mode,
	})
	s.broadcastCallEvent("leave", sess.User, req.Group, mode, remaining)
}

// handleGroupCallSignal relays signalling data verbatim; both ends must be
// participants of the call.
func (s *Server) handleGroupCallSignal(sess *Session, line []byte) {
	var req protocol.GroupCallSignalRequest
	if json.Unmarshal(line, &req) != nil {
		return
	}
	reply := func(ok bool, reason string) {
		_ = sess.Send(protocol.GroupCallResultEvent{
			Action: protocol.EventGroupCallSignalResult,
			OK:     ok,
			Group:  req.Group,
			Reason: reason,
		})
	}
	if !s.calls.IsParticipant(req.Group, sess.Folded) {
		reply(false, "You are not in this call.")
		return
	}
	toFolded := fold(req.To)
	if !s.calls.IsParticipant(req.Group, toFolded) {
		reply(false, "That user is not in this call.")
		return
	}
	target, ok := s.registry.Get(toFolded)
	if !ok {
		reply(false, "That user is offline.")
		return
	}
	err := target.Send(protocol.GroupCallSignalEvent{
		Action:     protocol.EventGroupCallSignal,
		Group:      req.Group,
		From:       sess.User,
		SignalType: req.SignalType,
		Data:       req.Data,
	})
	if err != nil {
		reply(false, "Delivery failed.")
		return
	}
	reply(true, "")
}

func (s *Server) handleGroupCallList(sess *Session) {
	_ = sess.Send(protocol.GroupCallListResponseEvent{
		Action: protocol.EventGroupCallListResponse,
		Calls:  s.calls.List(),
	})
}

// broadcastCallEvent notifies every current participant of a join or
// leave. Offline participants are skipped.
func (s *Server) broadcastCallEvent(event, by, group, mode string, participants []string) {
	ev := protocol.GroupCallEventBroadcast{
		Action:       protocol.EventGroupCallEvent,
		Event:        event,
		By:           by,
		Group:        group,
		Mode:         mode,
		Participants: participants,
		Count:        len(participants),
	}
	for _, folded := range participants {
		if target, ok := s.registry.Get(folded); ok {
			_ = target.Send(ev)
		}
	}
}

func (s *Server) handleGetFeatureCaps(sess *Session) {
	caps, err := s.policy.Capabilities(sess.Folded)
	if err != nil {
		log.Printf("feature caps for %s: %v", sess.User, err)
		return
	}
	_ = sess.Send(protocol.FeatureCapsEvent{Action: protocol.EventFeatureCaps, Caps: caps})
}

func (s *Server) handleGetFeaturePolicies(sess *Session) {
	if !s.requireAdmin(sess, protocol.EventFeaturePolicies) {
		return
	}
	infos, err := s.policy.PolicyInfos()
	if err != nil {
		log.Printf("feature policies for %s: %v", sess.User, err)
		return
	}
	_ = sess.Send(protocol.FeaturePoliciesEvent{
		Action:   protocol.EventFeaturePolicies,
		Policies: infos,
	})
}

func (s *Server) handleSetFeaturePolicy(sess *Session, line []byte) {
	var req protocol.FeaturePolicyRequest
	if json.Unmarshal(line, &req) != nil {
		return
	}
	if !s.requireAdmin(sess, protocol.ActionSetFeaturePolicy) {
		return
	}
	if err := s.policy.UpdateFeature(req.Feature, req.Enabled, req.UIVisible, req.Scope, req.Description); err != nil {
		_ = sess.Send(protocol.Result{Action: protocol.ActionSetFeaturePolicy, OK: false, Error: err.Error()})
		return
	}
	_ = sess.Send(protocol.Result{Action: protocol.ActionSetFeaturePolicy, OK: true})
	s.broadcastCaps()
}

// handleFeatureList applies the allowlist and access-group mutations. Every
// successful change re-broadcasts the capabilities digest.
func (s *Server) handleFeatureList(sess *Session, action string, line []byte) {
	var req protocol.FeatureListRequest
	if json.Unmarshal(line, &req) != nil {
		return
	}
	if !s.requireAdmin(sess, action) {
		return
	}

	var err error
	switch action {
	case protocol.ActionFeatureAllowUserAdd:
		err = s.store.AddFeatureAllowUser(req.Feature, fold(req.User))
	case protocol.ActionFeatureAllowUserRemove:
		err = s.store.RemoveFeatureAllowUser(req.Feature, fold(req.User))
	case protocol.ActionFeatureAccessGroupAdd:
		err = s.store.AddUserAccessGroup(req.Group, fold(req.User))
	case protocol.ActionFeatureAccessGroupRemove:
		err = s.store.RemoveUserAccessGroup(req.Group, fold(req.User))
	case protocol.ActionFeatureAllowGroupAdd:
		err = s.store.AddFeatureAllowGroup(req.Feature, req.Group)
	case protocol.ActionFeatureAllowGroupRemove:
		err = s.store.RemoveFeatureAllowGroup(req.Feature, req.Group)
	}
	if err != nil && !errors.Is(err, apperrors.ErrDuplicateKey) && !errors.Is(err, apperrors.ErrNotFound) {
		_ = sess.Send(protocol.Result{Action: action, OK: false, Error: "Update failed."})
		return
	}
	_ = sess.Send(protocol.Result{Action: action, OK: true})
	s.broadcastCaps()
}

func (s *Server) handleAccessGroupsList(sess *Session) {
	if !s.requireAdmin(sess, protocol.ActionFeatureAccessGroupsList) {
		return
	}
	groups, err := s.store.ListAccessGroups()
	if err != nil {
		log.Printf("access groups for %s: %v", sess.User, err)
		return
	}
	_ = sess.Send(protocol.AccessGroupsEvent{
		Action: protocol.ActionFeatureAccessGroupsList,
		Groups: groups,
	})
}
