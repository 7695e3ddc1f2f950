// Package policy evaluates per-user feature capabilities and typed group
// policy bundles.
package policy

import (
	"errors"
	"fmt"

	apperrors "openclaw/internal/errors"
	"openclaw/internal/models"
	"openclaw/internal/storage"
	"openclaw/pkg/protocol"
)

// Feature scopes.
const (
	ScopeAll       = "all"
	ScopeAdmin     = "admin"
	ScopeAllowlist = "allowlist"
)

// Well-known feature keys.
const (
	FeatureBots           = "bots"
	FeatureFileTransfer   = "file_transfer"
	FeatureGroupCall      = "group_call"
	FeatureUserDirectory  = "user_directory"
	FeatureAdminConsole   = "admin_console"
	FeatureBotRulesEditor = "bot_rules_editor"
)

// SeedFeatures is the built-in feature table inserted on first startup.
// Admin edits persist across restarts; seeding never overwrites.
func SeedFeatures() []models.FeaturePolicy {
	return []models.FeaturePolicy{
		{Feature: FeatureBots, Enabled: true, UIVisible: true, Scope: ScopeAll, Description: "Chat with virtual bots"},
		{Feature: FeatureFileTransfer, Enabled: true, UIVisible: true, Scope: ScopeAll, Description: "Send and receive files"},
		{Feature: FeatureGroupCall, Enabled: true, UIVisible: true, Scope: ScopeAll, Description: "Group voice and video calls"},
		{Feature: FeatureUserDirectory, Enabled: true, UIVisible: true, Scope: ScopeAll, Description: "Browse the user directory"},
		{Feature: FeatureAdminConsole, Enabled: true, UIVisible: false, Scope: ScopeAdmin, Description: "Server administration commands"},
		{Feature: FeatureBotRulesEditor, Enabled: true, UIVisible: false, Scope: ScopeAdmin, Description: "Edit per-admin bot rules"},
	}
}

// AdminChecker answers admin membership questions; satisfied by admins.Set.
type AdminChecker interface {
	IsAdmin(name string) bool
}

// Engine evaluates capabilities against the Store and the admin set.
type Engine struct {
	store  storage.Store
	admins AdminChecker
}

// NewEngine wires a policy engine and seeds the built-in feature table.
func NewEngine(store storage.Store, admins AdminChecker) (*Engine, error) {
	if err := store.SeedFeaturePolicies(SeedFeatures()); err != nil {
		return nil, fmt.Errorf("seed feature policies: %w", err)
	}
	return &Engine{store: store, admins: admins}, nil
}

// CanUse reports whether user may use the feature. Unknown or disabled
// features are never usable.
func (e *Engine) CanUse(user, feature string) bool {
	p, err := e.store.GetFeaturePolicy(feature)
	if err != nil {
		return false
	}
	return e.allowed(user, p)
}

func (e *Engine) allowed(user string, p *models.FeaturePolicy) bool {
	if !p.Enabled {
		return false
	}
	switch p.Scope {
	case ScopeAll:
		return true
	case ScopeAdmin:
		return e.admins.IsAdmin(user)
	case ScopeAllowlist:
		if e.admins.IsAdmin(user) {
			return true
		}
		ok, err := e.store.IsFeatureUserAllowed(p.Feature, user)
		return err == nil && ok
	default:
		return false
	}
}

// Capabilities computes the full per-user digest sent on login and after
// admin mutations.
func (e *Engine) Capabilities(user string) (map[string]protocol.Capability, error) {
	policies, err := e.store.ListFeaturePolicies()
	if err != nil {
		return nil, err
	}
	caps := make(map[string]protocol.Capability, len(policies))
	for i := range policies {
		p := &policies[i]
		caps[p.Feature] = protocol.Capability{
			Enabled:     p.Enabled,
			UIVisible:   p.UIVisible,
			Scope:       p.Scope,
			CanUse:      e.allowed(user, p),
			Description: p.Description,
		}
	}
	return caps, nil
}

// UpdateFeature applies an admin mutation to one feature policy row.
func (e *Engine) UpdateFeature(feature string, enabled, uiVisible *bool, scope string, description *string) error {
	p, err := e.store.GetFeaturePolicy(feature)
	if err != nil {
		return err
	}
	if enabled != nil {
		p.Enabled = *enabled
	}
	if uiVisible != nil {
		p.UIVisible = *uiVisible
	}
	if scope != "" {
		switch scope {
		case ScopeAll, ScopeAdmin, ScopeAllowlist:
			p.Scope = scope
		default:
			return fmt.Errorf("unknown scope %q", scope)
		}
	}
	if description != nil {
		p.Description = *description
	}
	return e.store.SaveFeaturePolicy(p)
}

// PolicyInfos returns the admin-facing view of every feature policy with
// its allowlists resolved.
func (e *Engine) PolicyInfos() ([]protocol.FeaturePolicyInfo, error) {
	policies, err := e.store.ListFeaturePolicies()
	if err != nil {
		return nil, err
	}
	infos := make([]protocol.FeaturePolicyInfo, 0, len(policies))
	for _, p := range policies {
		users, err := e.store.ListFeatureAllowUsers(p.Feature)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		groups, err := e.store.ListFeatureAllowGroups(p.Feature)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		infos = append(infos, protocol.FeaturePolicyInfo{
			Feature:     p.Feature,
			Enabled:     p.Enabled,
			UIVisible:   p.UIVisible,
			Scope:       p.Scope,
			Description: p.Description,
			AllowUsers:  users,
			AllowGroups: groups,
		})
	}
	return infos, nil
}
