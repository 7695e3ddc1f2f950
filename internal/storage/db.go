package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	apperrors "openclaw/internal/errors"
	"openclaw/internal/models"
)

// SQLiteStore is the gorm-backed Store implementation. All schema migration
// happens in NewSQLiteStore: AutoMigrate creates missing tables and adds
// missing columns with their schema defaults.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (or creates) the database file and migrates the
// schema forward.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Contact{},
		&models.FileBan{},
		&models.BotToken{},
		&models.BotRuleOverride{},
		&models.GroupPolicyRow{},
		&models.FeaturePolicy{},
		&models.FeatureAllowUser{},
		&models.UserAccessGroup{},
		&models.FeatureAllowGroup{},
	)
	if err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Fold returns the canonical (lower-cased) form of a username.
func Fold(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func wrapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperrors.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperrors.ErrDuplicateKey
	default:
		return err
	}
}

// LookupUser finds a user case-insensitively. Legacy databases may carry
// rows that collide after folding; those surface as ErrAmbiguousUsername.
func (s *SQLiteStore) LookupUser(name string) (*models.User, error) {
	var users []models.User
	if err := s.db.Where("username_folded = ?", Fold(name)).Find(&users).Error; err != nil {
		return nil, wrapErr(err)
	}
	switch len(users) {
	case 0:
		return nil, apperrors.ErrNotFound
	case 1:
		return &users[0], nil
	default:
		return nil, apperrors.ErrAmbiguousUsername
	}
}

// LookupUserByEmail finds a user by exact email.
func (s *SQLiteStore) LookupUserByEmail(email string) (*models.User, error) {
	var user models.User
	err := s.db.Where("email = ? AND email <> ''", email).First(&user).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return &user, nil
}

func (s *SQLiteStore) CreateUser(user *models.User) error {
	if user.UsernameFolded == "" {
		user.UsernameFolded = Fold(user.Username)
	}
	return wrapErr(s.db.Create(user).Error)
}

func (s *SQLiteStore) UpdateUser(user *models.User) error {
	return wrapErr(s.db.Save(user).Error)
}

// DeleteUser removes the account and every contact row referencing it on
// either side, in one transaction.
func (s *SQLiteStore) DeleteUser(name string) error {
	folded := Fold(name)
	return wrapErr(s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Unscoped().Where("username_folded = ?", folded).Delete(&models.User{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Unscoped().Where("owner = ? OR contact = ?", folded, folded).Delete(&models.Contact{}).Error; err != nil {
			return err
		}
		return nil
	}))
}

func (s *SQLiteStore) ListUsers() ([]models.User, error) {
	var users []models.User
	err := s.db.Order("username_folded").Find(&users).Error
	return users, wrapErr(err)
}

func (s *SQLiteStore) ListContacts(owner string) ([]models.Contact, error) {
	var contacts []models.Contact
	err := s.db.Where("owner = ?", Fold(owner)).Order("contact").Find(&contacts).Error
	return contacts, wrapErr(err)
}

func (s *SQLiteStore) GetContact(owner, contact string) (*models.Contact, error) {
	var c models.Contact
	err := s.db.Where("owner = ? AND contact = ?", Fold(owner), Fold(contact)).First(&c).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return &c, nil
}

func (s *SQLiteStore) CreateContact(contact *models.Contact) error {
	contact.Owner = Fold(contact.Owner)
	contact.Contact = Fold(contact.Contact)
	return wrapErr(s.db.Create(contact).Error)
}

func (s *SQLiteStore) SetContactBlocked(owner, contact string, blocked bool) error {
	res := s.db.Model(&models.Contact{}).
		Where("owner = ? AND contact = ?", Fold(owner), Fold(contact)).
		Update("blocked", blocked)
	if res.Error != nil {
		return wrapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteContact(owner, contact string) error {
	res := s.db.Unscoped().Where("owner = ? AND contact = ?", Fold(owner), Fold(contact)).Delete(&models.Contact{})
	if res.Error != nil {
		return wrapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListWatchers(contact string) ([]string, error) {
	var owners []string
	err := s.db.Model(&models.Contact{}).
		Where("contact = ? AND blocked = ?", Fold(contact), false).
		Pluck("owner", &owners).Error
	return owners, wrapErr(err)
}

func (s *SQLiteStore) BlockFlags(a, b string) (bool, bool, error) {
	var contacts []models.Contact
	fa, fb := Fold(a), Fold(b)
	err := s.db.Where(
		"(owner = ? AND contact = ?) OR (owner = ? AND contact = ?)",
		fa, fb, fb, fa,
	).Find(&contacts).Error
	if err != nil {
		return false, false, wrapErr(err)
	}
	var aBlockedB, bBlockedA bool
	for _, c := range contacts {
		if c.Owner == fa && c.Blocked {
			aBlockedB = true
		}
		if c.Owner == fb && c.Blocked {
			bBlockedA = true
		}
	}
	return aBlockedB, bBlockedA, nil
}

func (s *SQLiteStore) CreateFileBan(ban *models.FileBan) error {
	ban.Username = Fold(ban.Username)
	ban.FileType = strings.TrimPrefix(strings.ToLower(ban.FileType), ".")
	return wrapErr(s.db.Create(ban).Error)
}

// ActiveFileBan returns a ban matching this extension or the wildcard that
// is still in force (no end date, or end date on/after today).
func (s *SQLiteStore) ActiveFileBan(username, ext string, now time.Time) (*models.FileBan, error) {
	day := now.UTC().Truncate(24 * time.Hour)
	var ban models.FileBan
	err := s.db.Where(
		"username = ? AND (file_type = ? OR file_type = '*') AND (until IS NULL OR until >= ?)",
		Fold(username), strings.TrimPrefix(strings.ToLower(ext), "."), day,
	).First(&ban).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return &ban, nil
}

func (s *SQLiteStore) DeleteFileBans(username, ext string) (int64, error) {
	q := s.db.Where("username = ?", Fold(username))
	if ext != "" {
		q = q.Where("file_type = ?", strings.TrimPrefix(strings.ToLower(ext), "."))
	}
	res := q.Unscoped().Delete(&models.FileBan{})
	return res.RowsAffected, wrapErr(res.Error)
}

func (s *SQLiteStore) CreateBotToken(token *models.BotToken) error {
	token.Username = Fold(token.Username)
	return wrapErr(s.db.Create(token).Error)
}

func (s *SQLiteStore) GetBotRuleOverride(admin, bot string) (*models.BotRuleOverride, error) {
	var o models.BotRuleOverride
	err := s.db.Where("admin_owner = ? AND bot = ?", Fold(admin), bot).First(&o).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return &o, nil
}

func (s *SQLiteStore) SetBotRuleOverride(admin, bot, rules string) error {
	var o models.BotRuleOverride
	err := s.db.Where("admin_owner = ? AND bot = ?", Fold(admin), bot).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		o = models.BotRuleOverride{AdminOwner: Fold(admin), Bot: bot, Rules: rules}
		return wrapErr(s.db.Create(&o).Error)
	}
	if err != nil {
		return wrapErr(err)
	}
	o.Rules = rules
	return wrapErr(s.db.Save(&o).Error)
}

func (s *SQLiteStore) DeleteBotRuleOverride(admin, bot string) error {
	return wrapErr(s.db.Unscoped().Where("admin_owner = ? AND bot = ?", Fold(admin), bot).
		Delete(&models.BotRuleOverride{}).Error)
}

func (s *SQLiteStore) GroupPolicyValues(scope, group string) (map[string]string, error) {
	var rows []models.GroupPolicyRow
	err := s.db.Where("scope = ? AND group_name = ?", scope, group).Find(&rows).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	values := make(map[string]string, len(rows))
	for _, r := range rows {
		values[r.Key] = r.Value
	}
	return values, nil
}

func (s *SQLiteStore) SetGroupPolicyValues(scope, group string, values map[string]string) error {
	return wrapErr(s.db.Transaction(func(tx *gorm.DB) error {
		for key, value := range values {
			var row models.GroupPolicyRow
			err := tx.Where("scope = ? AND group_name = ? AND key = ?", scope, group, key).First(&row).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				row = models.GroupPolicyRow{Scope: scope, GroupName: group, Key: key, Value: value}
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
				continue
			}
			if err != nil {
				return err
			}
			row.Value = value
			if err := tx.Save(&row).Error; err != nil {
				return err
			}
		}
		return nil
	}))
}

func (s *SQLiteStore) ResetGroupPolicy(scope, group string) error {
	return wrapErr(s.db.Unscoped().Where("scope = ? AND group_name = ?", scope, group).
		Delete(&models.GroupPolicyRow{}).Error)
}

func (s *SQLiteStore) ListFeaturePolicies() ([]models.FeaturePolicy, error) {
	var policies []models.FeaturePolicy
	err := s.db.Order("feature").Find(&policies).Error
	return policies, wrapErr(err)
}

func (s *SQLiteStore) GetFeaturePolicy(feature string) (*models.FeaturePolicy, error) {
	var p models.FeaturePolicy
	err := s.db.Where("feature = ?", feature).First(&p).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return &p, nil
}

func (s *SQLiteStore) SaveFeaturePolicy(policy *models.FeaturePolicy) error {
	return wrapErr(s.db.Save(policy).Error)
}

// SeedFeaturePolicies inserts any built-in feature rows that are missing.
// Existing rows keep their admin-set values.
func (s *SQLiteStore) SeedFeaturePolicies(defaults []models.FeaturePolicy) error {
	for i := range defaults {
		var count int64
		if err := s.db.Model(&models.FeaturePolicy{}).
			Where("feature = ?", defaults[i].Feature).Count(&count).Error; err != nil {
			return wrapErr(err)
		}
		if count > 0 {
			continue
		}
		row := defaults[i]
		if err := s.db.Create(&row).Error; err != nil {
			return wrapErr(err)
		}
	}
	return nil
}

func (s *SQLiteStore) AddFeatureAllowUser(feature, username string) error {
	row := models.FeatureAllowUser{Feature: feature, Username: Fold(username)}
	err := wrapErr(s.db.Create(&row).Error)
	if errors.Is(err, apperrors.ErrDuplicateKey) {
		return nil
	}
	return err
}

func (s *SQLiteStore) RemoveFeatureAllowUser(feature, username string) error {
	return wrapErr(s.db.Unscoped().Where("feature = ? AND username = ?", feature, Fold(username)).
		Delete(&models.FeatureAllowUser{}).Error)
}

func (s *SQLiteStore) ListFeatureAllowUsers(feature string) ([]string, error) {
	var users []string
	err := s.db.Model(&models.FeatureAllowUser{}).
		Where("feature = ?", feature).Order("username").Pluck("username", &users).Error
	return users, wrapErr(err)
}

func (s *SQLiteStore) IsFeatureUserAllowed(feature, username string) (bool, error) {
	var count int64
	err := s.db.Model(&models.FeatureAllowUser{}).
		Where("feature = ? AND username = ?", feature, Fold(username)).Count(&count).Error
	if err != nil {
		return false, wrapErr(err)
	}
	if count > 0 {
		return true, nil
	}
	// Group membership: allowed if any of the user's access groups is
	// allowed for this feature.
	err = s.db.Model(&models.FeatureAllowGroup{}).
		Where("feature = ? AND group_name IN (?)",
			feature,
			s.db.Model(&models.UserAccessGroup{}).Select("group_name").Where("username = ?", Fold(username)),
		).Count(&count).Error
	if err != nil {
		return false, wrapErr(err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) AddUserAccessGroup(group, username string) error {
	row := models.UserAccessGroup{GroupName: group, Username: Fold(username)}
	err := wrapErr(s.db.Create(&row).Error)
	if errors.Is(err, apperrors.ErrDuplicateKey) {
		return nil
	}
	return err
}

func (s *SQLiteStore) RemoveUserAccessGroup(group, username string) error {
	return wrapErr(s.db.Unscoped().Where("group_name = ? AND username = ?", group, Fold(username)).
		Delete(&models.UserAccessGroup{}).Error)
}

func (s *SQLiteStore) ListAccessGroups() (map[string][]string, error) {
	var rows []models.UserAccessGroup
	if err := s.db.Order("group_name, username").Find(&rows).Error; err != nil {
		return nil, wrapErr(err)
	}
	groups := make(map[string][]string)
	for _, r := range rows {
		groups[r.GroupName] = append(groups[r.GroupName], r.Username)
	}
	return groups, nil
}

func (s *SQLiteStore) UserAccessGroups(username string) ([]string, error) {
	var groups []string
	err := s.db.Model(&models.UserAccessGroup{}).
		Where("username = ?", Fold(username)).Order("group_name").Pluck("group_name", &groups).Error
	return groups, wrapErr(err)
}

func (s *SQLiteStore) AddFeatureAllowGroup(feature, group string) error {
	row := models.FeatureAllowGroup{Feature: feature, GroupName: group}
	err := wrapErr(s.db.Create(&row).Error)
	if errors.Is(err, apperrors.ErrDuplicateKey) {
		return nil
	}
	return err
}

func (s *SQLiteStore) RemoveFeatureAllowGroup(feature, group string) error {
	return wrapErr(s.db.Unscoped().Where("feature = ? AND group_name = ?", feature, group).
		Delete(&models.FeatureAllowGroup{}).Error)
}

func (s *SQLiteStore) ListFeatureAllowGroups(feature string) ([]string, error) {
	var groups []string
	err := s.db.Model(&models.FeatureAllowGroup{}).
		Where("feature = ?", feature).Order("group_name").Pluck("group_name", &groups).Error
	return groups, wrapErr(err)
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
