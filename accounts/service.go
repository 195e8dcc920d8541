package accounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"dataflow-api/domain"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotVerified        = errors.New("email not verified")
	ErrWeakPassword       = errors.New("password does not meet requirements")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
)

const resetTokenTTL = time.Hour

// Store is the persistence surface the service needs. *storage.Storage and
// *storage.Cache both satisfy it.
type Store interface {
	GetAccount(ctx context.Context, email string) (*domain.Account, error)
	FindAccountByVerificationToken(ctx context.Context, token string) (*domain.Account, error)
	FindAccountByResetToken(ctx context.Context, token string) (*domain.Account, error)
	InsertAccount(ctx context.Context, a domain.Account) error
	UpdateAccount(ctx context.Context, a domain.Account) error
	DeleteAccount(ctx context.Context, email string) error
}

// Config tunes the account service.
type Config struct {
	TokenSecret []byte
	TokenTTL    time.Duration
}

// Service implements the account lifecycle: signup with email verification,
// signin issuing session tokens, password reset and account deletion.
type Service struct {
	store    Store
	mailer   Mailer
	logger   *log.Logger
	tokens   tokenManager
	password passwordPolicy
}

func New(store Store, mailer Mailer, logger *log.Logger, cfg Config) *Service {
	if store == nil {
		panic("accounts.New: store is required")
	}
	if len(cfg.TokenSecret) == 0 {
		panic("accounts.New: token secret is required")
	}
	return &Service{
		store:    store,
		mailer:   mailer,
		logger:   logger,
		tokens:   newTokenManager(cfg.TokenSecret, cfg.TokenTTL),
		password: defaultPasswordPolicy(),
	}
}

// SignUp creates an unverified account and mails the verification link. Mail
// delivery failures do not fail the signup; the token can be re-requested
// through ResendVerification.
func (s *Service) SignUp(ctx context.Context, email, password string) (domain.Account, error) {
	if !validEmail(email) {
		return domain.Account{}, fmt.Errorf("%w: invalid email format", ErrInvalidCredentials)
	}

	existing, err := s.store.GetAccount(ctx, email)
	if err != nil {
		return domain.Account{}, fmt.Errorf("check existing account: %w", err)
	}
	if existing != nil {
		return domain.Account{}, ErrEmailTaken
	}

	hash, err := s.password.hash(password)
	if err != nil {
		return domain.Account{}, err
	}
	verifyToken, err := opaqueToken()
	if err != nil {
		return domain.Account{}, err
	}

	acct := domain.Account{
		ID:                uuid.NewString(),
		Email:             email,
		PasswordHash:      hash,
		VerificationToken: verifyToken,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.store.InsertAccount(ctx, acct); err != nil {
		return domain.Account{}, fmt.Errorf("insert account: %w", err)
	}

	if s.mailer != nil {
		if err := s.mailer.SendVerification(ctx, email, verifyToken); err != nil {
			s.logger.Warnf("verification mail failed, err: %v, email: %s", err, email)
		}
	}
	return acct, nil
}

// ResendVerification issues a fresh verification token and mails it. Unknown
// and already-verified emails are a silent no-op, so the endpoint does not
// reveal which addresses hold an account.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	acct, err := s.store.GetAccount(ctx, email)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if acct == nil || acct.Verified {
		return nil
	}

	verifyToken, err := opaqueToken()
	if err != nil {
		return err
	}
	acct.VerificationToken = verifyToken
	if err := s.store.UpdateAccount(ctx, *acct); err != nil {
		return fmt.Errorf("update account: %w", err)
	}

	if s.mailer != nil {
		if err := s.mailer.SendVerification(ctx, email, verifyToken); err != nil {
			s.logger.Warnf("verification mail failed, err: %v, email: %s", err, email)
		}
	}
	return nil
}

// SignIn validates credentials and issues a session token. Unverified
// accounts are rejected with ErrNotVerified after the password check, so the
// error does not leak whether the password was right.
func (s *Service) SignIn(ctx context.Context, email, password string) (string, domain.Account, error) {
	acct, err := s.store.GetAccount(ctx, email)
	if err != nil {
		return "", domain.Account{}, fmt.Errorf("load account: %w", err)
	}
	if acct == nil {
		return "", domain.Account{}, ErrInvalidCredentials
	}
	if err := s.password.compare(acct.PasswordHash, password); err != nil {
		return "", domain.Account{}, ErrInvalidCredentials
	}
	if !acct.Verified {
		return "", domain.Account{}, ErrNotVerified
	}

	token, err := s.tokens.issue(acct.ID, acct.Email)
	if err != nil {
		return "", domain.Account{}, err
	}
	return token, *acct, nil
}

// DeleteAccount removes the account record. Board data is left in place and
// becomes unreachable without a token for the account.
func (s *Service) DeleteAccount(ctx context.Context, accountID, email string) error {
	acct, err := s.store.GetAccount(ctx, email)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if acct == nil || acct.ID != accountID {
		return ErrInvalidCredentials
	}
	if err := s.store.DeleteAccount(ctx, email); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	s.logger.Infof("account deleted, email: %s", email)
	return nil
}

// VerifyEmail marks the account verified and burns the token.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidToken
	}
	acct, err := s.store.FindAccountByVerificationToken(ctx, token)
	if err != nil {
		return fmt.Errorf("find account: %w", err)
	}
	if acct == nil {
		return ErrInvalidToken
	}

	acct.Verified = true
	acct.VerificationToken = ""
	if err := s.store.UpdateAccount(ctx, *acct); err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

// RequestPasswordReset issues a reset token and mails it. Unknown emails are
// a silent no-op.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	acct, err := s.store.GetAccount(ctx, email)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if acct == nil {
		return nil
	}

	resetToken, err := opaqueToken()
	if err != nil {
		return err
	}
	acct.ResetToken = resetToken
	acct.ResetExpiresAt = time.Now().UTC().Add(resetTokenTTL)
	if err := s.store.UpdateAccount(ctx, *acct); err != nil {
		return fmt.Errorf("update account: %w", err)
	}

	if s.mailer != nil {
		if err := s.mailer.SendPasswordReset(ctx, email, resetToken); err != nil {
			return fmt.Errorf("send reset mail: %w", err)
		}
	}
	return nil
}

// ResetPassword exchanges a valid reset token for a new password and burns
// the token.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return ErrInvalidToken
	}
	acct, err := s.store.FindAccountByResetToken(ctx, token)
	if err != nil {
		return fmt.Errorf("find account: %w", err)
	}
	if acct == nil {
		return ErrInvalidToken
	}
	if time.Now().UTC().After(acct.ResetExpiresAt) {
		return ErrTokenExpired
	}

	hash, err := s.password.hash(newPassword)
	if err != nil {
		return err
	}
	acct.PasswordHash = hash
	acct.ResetToken = ""
	acct.ResetExpiresAt = time.Time{}
	if err := s.store.UpdateAccount(ctx, *acct); err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}
