// Package auth implements account creation, verification, login and the
// password reset flows.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	apperrors "openclaw/internal/errors"
	"openclaw/internal/models"
	"openclaw/internal/notify"
	"openclaw/internal/storage"
)

// ErrNoEmail is returned by RequestReset when the matched account has no
// email address on file.
var ErrNoEmail = errors.New("account has no email address")

// BanError carries the ban details surfaced in the login reply.
type BanError struct {
	Until  time.Time
	Reason string
}

func (e *BanError) Error() string {
	return fmt.Sprintf("banned until %s: %s", e.Until.Format("2006-01-02"), e.Reason)
}

// Service implements the account lifecycle on top of the Store. When
// verification is required, new accounts stay unusable until the mailed
// 6-digit code is confirmed.
type Service struct {
	store         storage.Store
	notifier      notify.Notifier
	params        Argon2Params
	requireVerify bool
}

// NewService wires an auth service. requireVerify should mirror whether the
// mail notifier is configured.
func NewService(store storage.Store, notifier notify.Notifier, requireVerify bool) *Service {
	return &Service{
		store:         store,
		notifier:      notifier,
		params:        DefaultArgon2Params(),
		requireVerify: requireVerify,
	}
}

// Login validates credentials and returns the account row. Legacy plaintext
// credentials are transparently upgraded to the hashed form on success.
// Banned accounts return *BanError and never open a session.
func (s *Service) Login(username, password string) (*models.User, error) {
	user, err := s.store.LookupUser(username)
	if err != nil {
		if errors.Is(err, apperrors.ErrAmbiguousUsername) {
			return nil, apperrors.ErrAmbiguousUsername
		}
		return nil, apperrors.ErrInvalidCredentials
	}

	ok, upgrade, err := VerifyAndUpgrade(password, user.Credential, s.params)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrInvalidCredentials
	}
	if upgrade != "" {
		user.Credential = upgrade
		if err := s.store.UpdateUser(user); err != nil {
			// The login itself succeeded; keep the plaintext row and retry
			// the upgrade next time.
			log.Printf("auth: credential upgrade for %s failed: %v", user.Username, err)
		}
	}

	if s.requireVerify && !user.IsVerified {
		return nil, apperrors.ErrNotVerified
	}

	if until, banned := ActiveBan(user, time.Now()); banned {
		return nil, &BanError{Until: until, Reason: user.BanReason}
	}

	return user, nil
}

// ActiveBan reports whether the user's ban covers the given instant. Ban
// dates are calendar-day boundaries, inclusive.
func ActiveBan(user *models.User, now time.Time) (time.Time, bool) {
	if user.BannedUntil == nil {
		return time.Time{}, false
	}
	until := *user.BannedUntil
	endOfDay := time.Date(until.Year(), until.Month(), until.Day(), 23, 59, 59, 0, time.UTC)
	if now.UTC().After(endOfDay) {
		return time.Time{}, false
	}
	return until, true
}

// CreateAccount registers a new user. With verification configured, the
// account is created unverified, a code is mailed, and verifyPending is
// true; a mail failure removes the partial row.
func (s *Service) CreateAccount(username, password, email string) (verifyPending bool, err error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return false, errors.New("username and password are required")
	}

	existing, err := s.store.LookupUser(username)
	if err == nil {
		if existing.IsVerified {
			return false, apperrors.ErrDuplicateKey
		}
		// An abandoned unverified registration may be retried; drop it.
		if err := s.store.DeleteUser(username); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return false, err
		}
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return false, err
	}

	credential, err := HashPassword(password, s.params)
	if err != nil {
		return false, err
	}

	user := &models.User{
		Username:   username,
		Credential: credential,
		Email:      strings.TrimSpace(email),
	}

	if s.requireVerify && user.Email != "" {
		code, err := numericCode(6)
		if err != nil {
			return false, err
		}
		user.IsVerified = false
		user.VerifyCode = code
		if err := s.store.CreateUser(user); err != nil {
			return false, err
		}
		if err := s.notifier.SendVerification(user.Email, user.Username, code); err != nil {
			// Do not leave half-created accounts behind.
			if delErr := s.store.DeleteUser(username); delErr != nil {
				log.Printf("auth: cleanup of unverified %s failed: %v", username, delErr)
			}
			return false, fmt.Errorf("send verification: %w", err)
		}
		return true, nil
	}

	user.IsVerified = true
	if err := s.store.CreateUser(user); err != nil {
		return false, err
	}
	if user.Email != "" {
		if err := s.notifier.SendWelcome(user.Email, user.Username); err != nil {
			log.Printf("auth: welcome mail to %s failed: %v", user.Email, err)
		}
	}
	return false, nil
}

// VerifyAccount confirms a mailed verification code.
func (s *Service) VerifyAccount(username, code string) error {
	user, err := s.store.LookupUser(username)
	if err != nil {
		return apperrors.ErrInvalidCredentials
	}
	if user.IsVerified {
		return nil
	}
	if user.VerifyCode == "" || subtle.ConstantTimeCompare([]byte(user.VerifyCode), []byte(code)) != 1 {
		return apperrors.ErrInvalidCredentials
	}
	user.IsVerified = true
	user.VerifyCode = ""
	return s.store.UpdateUser(user)
}

// RequestReset generates and mails a reset code. The identifier may be a
// username or an email. A nil return does not confirm the account exists,
// to avoid user enumeration; only a matched account without an email
// surfaces ErrNoEmail.
func (s *Service) RequestReset(identifier string) error {
	user, err := s.store.LookupUser(identifier)
	if err != nil {
		user, err = s.store.LookupUserByEmail(identifier)
	}
	if err != nil {
		return nil
	}
	if user.Email == "" {
		return ErrNoEmail
	}

	code, err := numericCode(6)
	if err != nil {
		return err
	}
	user.ResetCode = code
	if err := s.store.UpdateUser(user); err != nil {
		return err
	}
	if err := s.notifier.SendResetCode(user.Email, user.Username, code); err != nil {
		log.Printf("auth: reset mail to %s failed: %v", user.Email, err)
	}
	return nil
}

// ResetPassword sets a new credential when the reset code matches.
func (s *Service) ResetPassword(username, code, newPassword string) error {
	user, err := s.store.LookupUser(username)
	if err != nil {
		return apperrors.ErrInvalidCredentials
	}
	if user.ResetCode == "" || subtle.ConstantTimeCompare([]byte(user.ResetCode), []byte(code)) != 1 {
		return apperrors.ErrInvalidCredentials
	}
	credential, err := HashPassword(newPassword, s.params)
	if err != nil {
		return err
	}
	user.Credential = credential
	user.ResetCode = ""
	return s.store.UpdateUser(user)
}

// ChangePassword rotates the credential after checking the current
// password. Legacy plaintext rows are accepted and replaced by the hash.
func (s *Service) ChangePassword(username, oldPassword, newPassword string) error {
	user, err := s.store.LookupUser(username)
	if err != nil {
		return apperrors.ErrInvalidCredentials
	}
	ok, _, err := VerifyAndUpgrade(oldPassword, user.Credential, s.params)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.ErrInvalidCredentials
	}
	credential, err := HashPassword(newPassword, s.params)
	if err != nil {
		return err
	}
	user.Credential = credential
	return s.store.UpdateUser(user)
}

// numericCode returns n cryptographically random decimal digits.
func numericCode(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	digits := make([]byte, n)
	for i, b := range buf {
		digits[i] = '0' + b%10
	}
	return string(digits), nil
}
