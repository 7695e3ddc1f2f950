// Package protocol defines the newline-delimited JSON wire format shared by
// the broker and its clients. Every message is a single JSON object on one
// line; the "action" field names the message kind.
package protocol

import "encoding/json"

// Envelope is decoded first to dispatch on the action name. The raw line is
// then decoded again into the concrete request type.
type Envelope struct {
	Action string `json:"action"`
}

// Actions a client may send before authenticating.
const (
	ActionGetWelcome    = "get_welcome"
	ActionCreateAccount = "create_account"
	ActionVerifyAccount = "verify_account"
	ActionRequestReset  = "request_reset"
	ActionResetPassword = "reset_password"
	ActionLogin         = "login"
)

// Actions available inside an authenticated session.
const (
	ActionLogout          = "logout"
	ActionAddContact      = "add_contact"
	ActionInviteUser      = "invite_user"
	ActionBlockContact    = "block_contact"
	ActionUnblockContact  = "unblock_contact"
	ActionDeleteContact   = "delete_contact"
	ActionMsg             = "msg"
	ActionTyping          = "typing"
	ActionFileOffer       = "file_offer"
	ActionFileAccept      = "file_accept"
	ActionFileDecline     = "file_decline"
	ActionFileData        = "file_data"
	ActionSetStatus       = "set_status"
	ActionChangePassword  = "change_password"
	ActionAdminCmd        = "admin_cmd"
	ActionScheduleRestart = "schedule_restart"
	ActionServerInfo      = "server_info"
	ActionUserDirectory   = "user_directory"

	ActionGetBotRules   = "get_bot_rules"
	ActionSetBotRules   = "set_bot_rules"
	ActionResetBotRules = "reset_bot_rules"

	ActionGetGroupPolicy   = "get_group_policy"
	ActionSetGroupPolicy   = "set_group_policy"
	ActionResetGroupPolicy = "reset_group_policy"

	ActionGroupCallList   = "group_call_list"
	ActionGroupCallJoin   = "group_call_join"
	ActionGroupCallLeave  = "group_call_leave"
	ActionGroupCallSignal = "group_call_signal"

	ActionGetFeatureCaps           = "get_feature_caps"
	ActionGetFeaturePolicies       = "get_feature_policies"
	ActionSetFeaturePolicy         = "set_feature_policy"
	ActionFeatureAllowUserAdd      = "feature_allow_user_add"
	ActionFeatureAllowUserRemove   = "feature_allow_user_remove"
	ActionFeatureAccessGroupAdd    = "feature_access_group_add"
	ActionFeatureAccessGroupRemove = "feature_access_group_remove"
	ActionFeatureAllowGroupAdd     = "feature_allow_group_add"
	ActionFeatureAllowGroupRemove  = "feature_allow_group_remove"
	ActionFeatureAccessGroupsList  = "feature_access_groups_list"
)

// FileMeta describes one file inside an offer. Data is only present on
// file_data payloads and carries base64-encoded bytes.
type FileMeta struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size,omitempty"`
	Data     string `json:"data,omitempty"`
}

// LoginRequest authenticates a user and opens a session.
type LoginRequest struct {
	Action   string `json:"action"`
	User     string `json:"user"`
	Password string `json:"password"`
}

// CreateAccountRequest registers a new account. Email is optional unless the
// server requires verification.
type CreateAccountRequest struct {
	Action   string `json:"action"`
	User     string `json:"user"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}

// VerifyAccountRequest completes email verification with the mailed code.
type VerifyAccountRequest struct {
	Action string `json:"action"`
	User   string `json:"user"`
	Code   string `json:"code"`
}

// RequestResetRequest asks for a password reset code. Identifier may be a
// username or an email address.
type RequestResetRequest struct {
	Action     string `json:"action"`
	Identifier string `json:"identifier"`
}

// ResetPasswordRequest sets a new password using a mailed reset code.
type ResetPasswordRequest struct {
	Action      string `json:"action"`
	User        string `json:"user"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

// ChangePasswordRequest rotates the password of the logged-in user.
type ChangePasswordRequest struct {
	Action      string `json:"action"`
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ContactRequest covers add/block/unblock/delete contact operations.
type ContactRequest struct {
	Action  string `json:"action"`
	Contact string `json:"contact"`
}

// InviteRequest sends an invitation to someone not yet on the server.
type InviteRequest struct {
	Action string `json:"action"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

// MsgRequest is a 1-to-1 chat message. Time is an opaque client timestamp
// echoed through verbatim.
type MsgRequest struct {
	Action string `json:"action"`
	To     string `json:"to"`
	From   string `json:"from,omitempty"`
	Msg    string `json:"msg"`
	Time   string `json:"time,omitempty"`
}

// TypingRequest is a best-effort typing indicator.
type TypingRequest struct {
	Action string `json:"action"`
	To     string `json:"to"`
	Typing bool   `json:"typing"`
}

// SetStatusRequest updates the session status text.
type SetStatusRequest struct {
	Action string `json:"action"`
	Status string `json:"status"`
}

// FileOfferRequest starts a transfer. TransferID is the client's own handle;
// it is echoed back to the sender only, never shown to the recipient.
type FileOfferRequest struct {
	Action     string     `json:"action"`
	To         string     `json:"to"`
	Files      []FileMeta `json:"files"`
	TransferID string     `json:"transfer_id,omitempty"`
}

// FileActionRequest covers file_accept and file_decline.
type FileActionRequest struct {
	Action     string `json:"action"`
	TransferID string `json:"transfer_id"`
}

// FileDataRequest carries the base64 file bytes for an accepted offer.
type FileDataRequest struct {
	Action     string     `json:"action"`
	TransferID string     `json:"transfer_id"`
	Files      []FileMeta `json:"files"`
}

// AdminCmdRequest runs a textual admin console command.
type AdminCmdRequest struct {
	Action string `json:"action"`
	Cmd    string `json:"cmd"`
}

// BotRulesRequest covers get/set/reset of per-admin bot rule overrides.
type BotRulesRequest struct {
	Action string `json:"action"`
	Bot    string `json:"bot"`
	Rules  string `json:"rules,omitempty"`
}

// GroupPolicyRequest reads or mutates a group policy bundle. Group is empty
// for the global scope. Values are coerced server-side against the schema.
type GroupPolicyRequest struct {
	Action string                     `json:"action"`
	Group  string                     `json:"group,omitempty"`
	Values map[string]json.RawMessage `json:"values,omitempty"`
}

// GroupCallJoinRequest joins (or starts) a group call.
type GroupCallJoinRequest struct {
	Action string `json:"action"`
	Group  string `json:"group"`
	Mode   string `json:"mode"`
}

// GroupCallLeaveRequest leaves a group call.
type GroupCallLeaveRequest struct {
	Action string `json:"action"`
	Group  string `json:"group"`
}

// GroupCallSignalRequest relays signalling data to one participant.
type GroupCallSignalRequest struct {
	Action     string          `json:"action"`
	Group      string          `json:"group"`
	To         string          `json:"to"`
	SignalType string          `json:"signal_type"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// FeaturePolicyRequest mutates one feature policy row (admin only). Nil
// pointer fields are left unchanged.
type FeaturePolicyRequest struct {
	Action      string  `json:"action"`
	Feature     string  `json:"feature"`
	Enabled     *bool   `json:"enabled,omitempty"`
	UIVisible   *bool   `json:"ui_visible,omitempty"`
	Scope       string  `json:"scope,omitempty"`
	Description *string `json:"description,omitempty"`
}

// FeatureListRequest mutates feature allowlists and access groups.
type FeatureListRequest struct {
	Action  string `json:"action"`
	Feature string `json:"feature,omitempty"`
	User    string `json:"user,omitempty"`
	Group   string `json:"group,omitempty"`
}
