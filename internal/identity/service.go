// Package identity implements credential login, registration, the OAuth
// account-merge policy, and profile setup. It is stateless per request: one
// identity row read/write per call.
package identity

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"github.com/osokin-dev/gatehouse/internal/apperr"
	"github.com/osokin-dev/gatehouse/internal/dbx"
	"github.com/osokin-dev/gatehouse/internal/logging"
	"github.com/osokin-dev/gatehouse/internal/server/models"
	"github.com/osokin-dev/gatehouse/internal/server/repositories/repomanager"
	"github.com/osokin-dev/gatehouse/internal/shared"
	"github.com/osokin-dev/gatehouse/internal/token"
)

const bcryptCost = 10

// Publisher is the fire-and-forget half of the bus, used for events nobody
// awaits (e.g. registration notifications).
type Publisher interface {
	Publish(subject string, payload any) error
}

// Session is a freshly issued claim plus its revocable refresh token.
// TwoFARequired is set instead of Token when the account has a second
// factor enabled; the caller must complete a proof before a claim is minted.
type Session struct {
	Token         string
	RefreshToken  string
	TwoFARequired bool
	Identity      *models.Identity
}

// Service provides credential and identity-merge operations.
type Service struct {
	db              *sql.DB
	repomanager     repomanager.RepositoryManager
	issuer          *token.Issuer
	refreshValidity time.Duration
	provider        Provider
	events          Publisher
	eventSubject    string
	hashSem         *semaphore.Weighted
	logger          logging.Logger
}

// NewService constructs the identity service. The semaphore caps concurrent
// bcrypt work at GOMAXPROCS so hashing cannot starve bus handlers.
func NewService(db *sql.DB, m repomanager.RepositoryManager, issuer *token.Issuer,
	refreshValidity time.Duration, provider Provider, events Publisher, eventSubject string,
	logger logging.Logger) *Service {
	return &Service{
		db:              db,
		repomanager:     m,
		issuer:          issuer,
		refreshValidity: refreshValidity,
		provider:        provider,
		events:          events,
		eventSubject:    eventSubject,
		hashSem:         semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
		logger:          logger.With("module", "identity"),
	}
}

// Login verifies email/password and issues a session. An unknown email is
// reported as InvalidCredentials, same as a wrong password: the account is
// never provisioned implicitly.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	identity, err := s.repomanager.Identities(s.db).GetByEmail(ctx, email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.New(apperr.KindInvalidCredentials, "invalid email or password")
		}
		return nil, err
	}

	if !identity.HasPassword() {
		// Pure-OAuth account; no hash to compare against.
		return nil, apperr.New(apperr.KindInvalidCredentials, "invalid email or password")
	}
	if err := s.comparePassword(ctx, identity.PasswordHash, password); err != nil {
		return nil, err
	}

	if identity.TwoFAEnabled {
		return &Session{TwoFARequired: true, Identity: identity}, nil
	}
	return s.IssueSession(ctx, identity)
}

// Register creates a classic password identity. Duplicate email yields
// Conflict; the unique constraint backs the check under concurrency.
func (s *Service) Register(ctx context.Context, email, password string) (*models.Identity, error) {
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.hashPassword(ctx, password)
	if err != nil {
		return nil, err
	}

	identity, err := s.repomanager.Identities(s.db).Create(ctx, &models.Identity{
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, err
	}

	if s.events != nil {
		if err := s.events.Publish(s.eventSubject, map[string]any{"id": identity.ID, "email": identity.Email}); err != nil {
			s.logger.Warn(ctx, "registration event not published", "error", err)
		}
	}

	s.logger.Info(ctx, "identity registered", "identity_id", identity.ID)
	return identity, nil
}

// OAuthCallback exchanges the authorization code and resolves the profile to
// exactly one identity row:
//
//  1. a row already linked to the provider id is used as-is;
//  2. else a row with the same email and no provider id gains the provider
//     id as a second credential method (the merge);
//  3. else a new pure-OAuth row is created.
func (s *Service) OAuthCallback(ctx context.Context, code string) (*Session, error) {
	profile, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	var identity *models.Identity
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Identities(tx)

		existing, err := repo.GetByProviderID(ctx, profile.ProviderID)
		if err == nil {
			identity = existing
			return nil
		}
		if !apperr.Is(err, apperr.KindNotFound) {
			return err
		}

		byEmail, err := repo.GetByEmail(ctx, profile.Email)
		if err == nil {
			if byEmail.ExternalProviderID != "" {
				// Same email, different provider subject. Do not merge.
				return apperr.New(apperr.KindConflict, "email already linked to another provider account")
			}
			if err := repo.AttachProvider(ctx, byEmail.ID, profile.ProviderID); err != nil {
				return err
			}
			byEmail.ExternalProviderID = profile.ProviderID
			identity = byEmail
			s.logger.Info(ctx, "provider linked to existing identity", "identity_id", byEmail.ID)
			return nil
		}
		if !apperr.Is(err, apperr.KindNotFound) {
			return err
		}

		created, err := repo.Create(ctx, &models.Identity{
			Email:              profile.Email,
			ExternalProviderID: profile.ProviderID,
		})
		if err != nil {
			return err
		}
		identity = created
		s.logger.Info(ctx, "identity created from provider", "identity_id", created.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if identity.TwoFAEnabled {
		return &Session{TwoFARequired: true, Identity: identity}, nil
	}
	return s.IssueSession(ctx, identity)
}

// SetUsername completes the profile and reissues the claim, since claims
// embed the username.
func (s *Service) SetUsername(ctx context.Context, identityID int64, username, avatarKey string) (*Session, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}

	repo := s.repomanager.Identities(s.db)
	if err := repo.SetProfile(ctx, identityID, username, avatarKey); err != nil {
		return nil, err
	}

	identity, err := repo.GetByID(ctx, identityID)
	if err != nil {
		return nil, err
	}
	return s.IssueSession(ctx, identity)
}

// Me returns the identity row for the current session.
func (s *Service) Me(ctx context.Context, identityID int64) (*models.Identity, error) {
	return s.repomanager.Identities(s.db).GetByID(ctx, identityID)
}

// Refresh validates a refresh token, rotates it transactionally, and mints
// a fresh claim. Unknown and expired tokens both read as InvalidCredentials.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	repo := s.repomanager.RefreshTokens(s.db)

	stored, err := repo.Find(ctx, refreshToken)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.New(apperr.KindInvalidCredentials, "unknown refresh token")
		}
		return nil, err
	}
	if stored.Expires.Before(time.Now()) {
		return nil, apperr.New(apperr.KindInvalidCredentials, "refresh token expired")
	}

	identity, err := s.repomanager.Identities(s.db).GetByID(ctx, stored.IdentityID)
	if err != nil {
		return nil, err
	}

	var session *Session
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.RefreshTokens(tx).Delete(ctx, refreshToken); err != nil {
			return err
		}
		var issueErr error
		session, issueErr = s.issueSessionTx(ctx, identity, tx)
		return issueErr
	}); err != nil {
		return nil, err
	}
	return session, nil
}

// Logout revokes a refresh token. Revocation-by-deletion is the one thing
// the signed claim alone cannot offer.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.repomanager.RefreshTokens(s.db).Delete(ctx, refreshToken)
}

// IssueSession mints the claim/refresh pair for identity. Called after any
// successful authentication, including completed 2FA proofs.
func (s *Service) IssueSession(ctx context.Context, identity *models.Identity) (*Session, error) {
	return s.issueSessionTx(ctx, identity, s.db)
}

func (s *Service) issueSessionTx(ctx context.Context, identity *models.Identity, tx dbx.DBTX) (*Session, error) {
	claim, err := s.issuer.Issue(identity.ID, identity.Email, identity.Username)
	if err != nil {
		return nil, fmt.Errorf("signing claim: %w", err)
	}

	refresh, err := shared.MakeRandHexString(32)
	if err != nil {
		return nil, fmt.Errorf("generating refresh token: %w", err)
	}

	if err := s.repomanager.RefreshTokens(tx).Create(ctx, identity.ID, refresh, s.refreshValidity); err != nil {
		return nil, err
	}

	return &Session{Token: claim, RefreshToken: refresh, Identity: identity}, nil
}

// hashPassword runs bcrypt under the CPU semaphore.
func (s *Service) hashPassword(ctx context.Context, password string) (string, error) {
	if err := s.hashSem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer s.hashSem.Release(1)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// comparePassword runs the bcrypt comparison under the CPU semaphore.
// bcrypt's comparison is constant-time over the hash output.
func (s *Service) comparePassword(ctx context.Context, hash, password string) error {
	if err := s.hashSem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.hashSem.Release(1)

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return apperr.New(apperr.KindInvalidCredentials, "invalid email or password")
	}
	return nil
}
