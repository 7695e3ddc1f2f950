package protocol

import "encoding/json"

// Server-to-client event action names.
const (
	EventContactList           = "contact_list"
	EventContactStatus         = "contact_status"
	EventMsg                   = "msg"
	EventMsgFailed             = "msg_failed"
	EventAddContactFailed      = "add_contact_failed"
	EventAddContactSuccess     = "add_contact_success"
	EventAdminResponse         = "admin_response"
	EventServerInfoResponse    = "server_info_response"
	EventUserDirectoryResponse = "user_directory_response"
	EventAdminStatusChange     = "admin_status_change"
	EventServerAlert           = "server_alert"
	EventFileOffer             = "file_offer"
	EventFileOfferFailed       = "file_offer_failed"
	EventFileAccepted          = "file_accepted"
	EventFileDeclined          = "file_declined"
	EventFileData              = "file_data"
	EventChangePasswordResult  = "change_password_result"
	EventBannedKick            = "banned_kick"
	EventSessionReplaced       = "session_replaced"
	EventTyping                = "typing"
	EventFeatureCaps           = "feature_caps"
	EventFeaturePolicies       = "feature_policies"
	EventFeatureDenied         = "feature_denied"
	EventGroupPolicy           = "group_policy"
	EventGroupPolicyUpdate     = "group_policy_update"
	EventBotRules              = "bot_rules"
	EventBotRulesUpdate        = "bot_rules_update"
	EventGroupCallEvent        = "group_call_event"
	EventGroupCallResult       = "group_call_result"
	EventGroupCallSignal       = "group_call_signal"
	EventGroupCallSignalResult = "group_call_signal_result"
	EventGroupCallListResponse = "group_call_list_response"
	EventWelcomeInfo           = "welcome_info"
	EventVerifyPending         = "verify_pending"
	EventCreateAccountSuccess  = "create_account_success"
	EventError                 = "error"
)

// Result is the generic ok/error reply used by simple request actions.
type Result struct {
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// LoginResult answers a login request. Banned logins carry Until and Reason
// and never open a session.
type LoginResult struct {
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	User   string `json:"user,omitempty"`
	Error  string `json:"error,omitempty"`
	Banned bool   `json:"banned,omitempty"`
	Until  string `json:"until,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ContactEntry is one row of a contact_list event. BotOrigin is one of
// "local", "external" or "user".
type ContactEntry struct {
	User       string `json:"user"`
	Blocked    bool   `json:"blocked"`
	Online     bool   `json:"online"`
	IsAdmin    bool   `json:"is_admin"`
	StatusText string `json:"status_text"`
	IsBot      bool   `json:"is_bot"`
	BotOrigin  string `json:"bot_origin"`
	BotToken   string `json:"bot_token,omitempty"`
}

// ContactListEvent delivers the full contact list on login and after a
// successful add_contact.
type ContactListEvent struct {
	Action   string         `json:"action"`
	Contacts []ContactEntry `json:"contacts"`
}

// ContactStatusEvent is the presence fan-out sent to non-blocking watchers.
type ContactStatusEvent struct {
	Action     string `json:"action"`
	User       string `json:"user"`
	Online     bool   `json:"online"`
	StatusText string `json:"status_text"`
}

// MsgEvent is a delivered 1-to-1 message (or a synthesized bot reply).
type MsgEvent struct {
	Action string `json:"action"`
	To     string `json:"to"`
	From   string `json:"from"`
	Msg    string `json:"msg"`
	Time   string `json:"time,omitempty"`

	// Bot replies may attach synthesized speech.
	AudioB64  string `json:"audio_b64,omitempty"`
	AudioMime string `json:"audio_mime,omitempty"`
	Voice     string `json:"voice,omitempty"`
}

// MsgFailedEvent tells the sender why a message was rejected.
type MsgFailedEvent struct {
	Action string `json:"action"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// TypingEvent forwards a typing indicator.
type TypingEvent struct {
	Action string `json:"action"`
	From   string `json:"from"`
	Typing bool   `json:"typing"`
}

// FileOfferEvent is the offer as seen by the recipient. TransferID is the
// server-generated handle.
type FileOfferEvent struct {
	Action     string     `json:"action"`
	From       string     `json:"from"`
	Files      []FileMeta `json:"files"`
	TransferID string     `json:"transfer_id"`
}

// FileOfferFailedEvent tells the sender an offer was rejected.
type FileOfferFailedEvent struct {
	Action string `json:"action"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// FileAcceptedEvent tells the original sender the recipient accepted.
// ClientTransferID echoes the sender's own handle from the offer.
type FileAcceptedEvent struct {
	Action           string     `json:"action"`
	TransferID       string     `json:"transfer_id"`
	ClientTransferID string     `json:"client_transfer_id,omitempty"`
	To               string     `json:"to"`
	Files            []FileMeta `json:"files"`
}

// FileDeclinedEvent tells the original sender the recipient declined.
type FileDeclinedEvent struct {
	Action           string `json:"action"`
	TransferID       string `json:"transfer_id"`
	ClientTransferID string `json:"client_transfer_id,omitempty"`
	To               string `json:"to"`
}

// FileDataEvent delivers the file bytes to the recipient.
type FileDataEvent struct {
	Action string     `json:"action"`
	From   string     `json:"from"`
	Files  []FileMeta `json:"files"`
}

// AdminResponseEvent is the textual reply to an admin_cmd.
type AdminResponseEvent struct {
	Action   string `json:"action"`
	Response string `json:"response"`
}

// AdminStatusChangeEvent is broadcast when the admin set changes.
type AdminStatusChangeEvent struct {
	Action  string `json:"action"`
	User    string `json:"user"`
	IsAdmin bool   `json:"is_admin"`
}

// ServerAlertEvent is a broadcast notice to every live session.
type ServerAlertEvent struct {
	Action string `json:"action"`
	Text   string `json:"text"`
}

// BannedKickEvent is sent to a session that is being terminated by a ban.
type BannedKickEvent struct {
	Action string `json:"action"`
	Until  string `json:"until"`
	Reason string `json:"reason"`
}

// SessionReplacedEvent is sent to an old session evicted by a new login for
// the same account.
type SessionReplacedEvent struct {
	Action string `json:"action"`
}

// ChangePasswordResultEvent answers change_password.
type ChangePasswordResultEvent struct {
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// WelcomeInfoEvent carries the pre- or post-login welcome text.
type WelcomeInfoEvent struct {
	Action     string `json:"action"`
	ServerName string `json:"server_name"`
	Text       string `json:"text"`
}

// ServerInfoResponseEvent answers server_info.
type ServerInfoResponseEvent struct {
	Action     string `json:"action"`
	ServerName string `json:"server_name"`
	Version    string `json:"version"`
	TLS        bool   `json:"tls"`
	Online     int    `json:"online"`
}

// DirectoryEntry is one row of a user_directory_response.
type DirectoryEntry struct {
	User      string `json:"user"`
	Online    bool   `json:"online"`
	IsAdmin   bool   `json:"is_admin"`
	IsBot     bool   `json:"is_bot"`
	BotOrigin string `json:"bot_origin,omitempty"`
}

// UserDirectoryResponseEvent lists every addressable participant.
type UserDirectoryResponseEvent struct {
	Action string           `json:"action"`
	Users  []DirectoryEntry `json:"users"`
}

// Capability is the per-feature tuple exposed to a user.
type Capability struct {
	Enabled     bool   `json:"enabled"`
	UIVisible   bool   `json:"ui_visible"`
	Scope       string `json:"scope"`
	CanUse      bool   `json:"can_use"`
	Description string `json:"description,omitempty"`
}

// FeatureCapsEvent is the capabilities digest, sent on login and after any
// admin mutation of feature policy state.
type FeatureCapsEvent struct {
	Action string                `json:"action"`
	Caps   map[string]Capability `json:"caps"`
}

// FeaturePolicyInfo is one row of a feature_policies reply.
type FeaturePolicyInfo struct {
	Feature     string   `json:"feature"`
	Enabled     bool     `json:"enabled"`
	UIVisible   bool     `json:"ui_visible"`
	Scope       string   `json:"scope"`
	Description string   `json:"description,omitempty"`
	AllowUsers  []string `json:"allow_users,omitempty"`
	AllowGroups []string `json:"allow_groups,omitempty"`
}

// FeaturePoliciesEvent answers get_feature_policies (admin only).
type FeaturePoliciesEvent struct {
	Action   string              `json:"action"`
	Policies []FeaturePolicyInfo `json:"policies"`
}

// AccessGroupsEvent answers feature_access_groups_list.
type AccessGroupsEvent struct {
	Action string              `json:"action"`
	Groups map[string][]string `json:"groups"`
}

// GroupPolicyEvent answers get_group_policy and carries group_policy_update
// broadcasts. Values are fully resolved against the schema.
type GroupPolicyEvent struct {
	Action string         `json:"action"`
	Scope  string         `json:"scope"`
	Group  string         `json:"group,omitempty"`
	Values map[string]any `json:"values"`
}

// BotRulesEvent answers the bot rules read/write actions.
type BotRulesEvent struct {
	Action string `json:"action"`
	Bot    string `json:"bot"`
	Rules  string `json:"rules,omitempty"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// GroupCallResultEvent answers group_call_join/leave for the caller.
type GroupCallResultEvent struct {
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	Group  string `json:"group"`
	Mode   string `json:"mode,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// GroupCallEventBroadcast notifies participants of joins and leaves.
type GroupCallEventBroadcast struct {
	Action       string   `json:"action"`
	Event        string   `json:"event"`
	By           string   `json:"by"`
	Group        string   `json:"group"`
	Mode         string   `json:"mode"`
	Participants []string `json:"participants"`
	Count        int      `json:"count"`
}

// GroupCallSignalEvent relays signalling payloads between participants.
type GroupCallSignalEvent struct {
	Action     string          `json:"action"`
	Group      string          `json:"group"`
	From       string          `json:"from"`
	SignalType string          `json:"signal_type"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// GroupCallInfo is one row of a group_call_list_response.
type GroupCallInfo struct {
	Group        string   `json:"group"`
	Mode         string   `json:"mode"`
	Participants []string `json:"participants"`
	Count        int      `json:"count"`
}

// GroupCallListResponseEvent enumerates active group calls.
type GroupCallListResponseEvent struct {
	Action string          `json:"action"`
	Calls  []GroupCallInfo `json:"calls"`
}
