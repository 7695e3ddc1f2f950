// Package models defines the gorm schema for the broker's persistent state.
package models

import (
	"time"

	"gorm.io/gorm"
)

// User is one account row. Username keeps the casing chosen at registration
// and is authoritative on the wire; UsernameFolded is the lower-cased
// canonical form and carries the uniqueness constraint.
type User struct {
	gorm.Model
	Username       string `gorm:"not null"`
	UsernameFolded string `gorm:"uniqueIndex;not null"`
	Credential     string // Argon2id PHC string, or legacy plaintext
	Email          string
	IsVerified     bool `gorm:"default:true"` // legacy rows predate verification
	VerifyCode     string
	ResetCode      string
	BannedUntil    *time.Time // calendar day, inclusive
	BanReason      string
}

// Contact is a directed edge in the contact graph.
type Contact struct {
	gorm.Model
	Owner   string `gorm:"uniqueIndex:idx_owner_contact;not null"` // folded
	Contact string `gorm:"uniqueIndex:idx_owner_contact;not null"` // folded
	Display string // contact's display casing at add time
	Blocked bool
}

// FileBan blocks a user from offering files of a given type. FileType "*"
// covers all types. A nil Until is a permanent ban.
type FileBan struct {
	gorm.Model
	Username string `gorm:"index;not null"` // folded
	FileType string `gorm:"not null"`
	Until    *time.Time
	Reason   string
}

// BotToken is a minted token attached to local bot contact entries.
type BotToken struct {
	gorm.Model
	Username string `gorm:"index;not null"` // folded owner
	Bot      string `gorm:"not null"`
	Token    string `gorm:"uniqueIndex;not null"`
}

// BotRuleOverride stores a per-admin rules text for one bot, seeded from the
// global rules source on first read.
type BotRuleOverride struct {
	gorm.Model
	AdminOwner string `gorm:"uniqueIndex:idx_admin_bot;not null"` // folded
	Bot        string `gorm:"uniqueIndex:idx_admin_bot;not null"`
	Rules      string
}

// GroupPolicyRow is one key of a group policy bundle. Scope is "global" or
// "group"; GroupName is GlobalGroupName when Scope is global.
type GroupPolicyRow struct {
	gorm.Model
	Scope     string `gorm:"uniqueIndex:idx_scope_group_key;not null"`
	GroupName string `gorm:"uniqueIndex:idx_scope_group_key;not null"`
	Key       string `gorm:"uniqueIndex:idx_scope_group_key;not null"`
	Value     string // serialized per the schema type
}

// GlobalGroupName is the sentinel group name for scope=global policy rows.
const GlobalGroupName = "__global__"

// FeaturePolicy gates one feature. Scope is "all", "admin" or "allowlist".
type FeaturePolicy struct {
	gorm.Model
	Feature     string `gorm:"uniqueIndex;not null"`
	Enabled     bool
	UIVisible   bool
	Scope       string `gorm:"default:all"`
	Description string
}

// FeatureAllowUser allows one user for one allowlist-scoped feature.
type FeatureAllowUser struct {
	gorm.Model
	Feature  string `gorm:"uniqueIndex:idx_feature_user;not null"`
	Username string `gorm:"uniqueIndex:idx_feature_user;not null"` // folded
}

// UserAccessGroup places a user in a named access group.
type UserAccessGroup struct {
	gorm.Model
	GroupName string `gorm:"uniqueIndex:idx_group_user;not null"`
	Username  string `gorm:"uniqueIndex:idx_group_user;not null"` // folded
}

// FeatureAllowGroup allows a whole access group for one feature.
type FeatureAllowGroup struct {
	gorm.Model
	Feature   string `gorm:"uniqueIndex:idx_feature_group;not null"`
	GroupName string `gorm:"uniqueIndex:idx_feature_group;not null"`
}
