package storage

import (
	"time"

	"openclaw/internal/models"
)

// Store defines the interface for data persistence operations. This allows
// for easy testing with mock implementations and potential future support
// for different storage backends.
type Store interface {
	// User operations
	LookupUser(name string) (*models.User, error)
	LookupUserByEmail(email string) (*models.User, error)
	CreateUser(user *models.User) error
	UpdateUser(user *models.User) error
	DeleteUser(name string) error
	ListUsers() ([]models.User, error)

	// Contact operations
	ListContacts(owner string) ([]models.Contact, error)
	GetContact(owner, contact string) (*models.Contact, error)
	CreateContact(contact *models.Contact) error
	SetContactBlocked(owner, contact string, blocked bool) error
	DeleteContact(owner, contact string) error
	// ListWatchers returns the owners that have contact in their list
	// without blocking them.
	ListWatchers(contact string) ([]string, error)
	// BlockFlags reports (a blocked b, b blocked a).
	BlockFlags(a, b string) (bool, bool, error)

	// File bans
	CreateFileBan(ban *models.FileBan) error
	ActiveFileBan(username, ext string, now time.Time) (*models.FileBan, error)
	DeleteFileBans(username, ext string) (int64, error)

	// Bot tokens and rule overrides
	CreateBotToken(token *models.BotToken) error
	GetBotRuleOverride(admin, bot string) (*models.BotRuleOverride, error)
	SetBotRuleOverride(admin, bot, rules string) error
	DeleteBotRuleOverride(admin, bot string) error

	// Group policies
	GroupPolicyValues(scope, group string) (map[string]string, error)
	SetGroupPolicyValues(scope, group string, values map[string]string) error
	ResetGroupPolicy(scope, group string) error

	// Feature policies
	ListFeaturePolicies() ([]models.FeaturePolicy, error)
	GetFeaturePolicy(feature string) (*models.FeaturePolicy, error)
	SaveFeaturePolicy(policy *models.FeaturePolicy) error
	SeedFeaturePolicies(defaults []models.FeaturePolicy) error

	AddFeatureAllowUser(feature, username string) error
	RemoveFeatureAllowUser(feature, username string) error
	ListFeatureAllowUsers(feature string) ([]string, error)
	IsFeatureUserAllowed(feature, username string) (bool, error)

	AddUserAccessGroup(group, username string) error
	RemoveUserAccessGroup(group, username string) error
	ListAccessGroups() (map[string][]string, error)
	UserAccessGroups(username string) ([]string, error)

	AddFeatureAllowGroup(feature, group string) error
	RemoveFeatureAllowGroup(feature, group string) error
	ListFeatureAllowGroups(feature string) ([]string, error)

	// Lifecycle
	Close() error
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
