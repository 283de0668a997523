// Package twofa implements the multi-channel second-factor manager: TOTP
// secret lifecycle plus ephemeral SMS/email one-time codes.
package twofa

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"time"

	"github.com/osokin-dev/gatehouse/internal/apperr"
	"github.com/osokin-dev/gatehouse/internal/logging"
	"github.com/osokin-dev/gatehouse/internal/server/repositories/repomanager"
)

const (
	codeTTL    = 5 * time.Minute
	codeDigits = 6
)

// Sender dispatches a one-time code out-of-band. The email implementation
// lives in internal/mailer; SMS has a logging stub until a provider is wired.
type Sender interface {
	SendCode(ctx context.Context, destination, code string) error
}

// Setup is the result of a TOTP setup request: nothing persisted yet.
type Setup struct {
	Secret     string
	OtpauthURL string
	QR         string
}

// Service owns the TOTP lifecycle and the ephemeral code store.
type Service struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	codes       *CodeStore
	smsSender   Sender
	emailSender Sender
	logger      logging.Logger
}

func NewService(db *sql.DB, m repomanager.RepositoryManager, codes *CodeStore, sms, email Sender, logger logging.Logger) *Service {
	return &Service{
		db:          db,
		repomanager: m,
		codes:       codes,
		smsSender:   sms,
		emailSender: email,
		logger:      logger.With("module", "twofa"),
	}
}

// SetupTOTP generates a fresh secret, otpauth URI and QR payload for email.
// Persistence happens only on Enable, after the caller proves possession.
func (s *Service) SetupTOTP(ctx context.Context, email string) (*Setup, error) {
	key, err := generateTOTPKey(email)
	if err != nil {
		return nil, fmt.Errorf("generating totp key: %w", err)
	}
	qr, err := qrPNGBase64(key)
	if err != nil {
		return nil, fmt.Errorf("rendering qr: %w", err)
	}
	return &Setup{Secret: key.Secret(), OtpauthURL: key.URL(), QR: qr}, nil
}

// EnableTOTP verifies proof against the candidate secret before persisting
// it, so an account can never be locked behind a secret the user's
// authenticator does not actually hold.
func (s *Service) EnableTOTP(ctx context.Context, identityID int64, secret, proof string) error {
	if !validateTOTP(proof, secret) {
		return apperr.New(apperr.KindInvalidCode, "totp proof rejected")
	}
	repo := s.repomanager.Identities(s.db)
	if _, err := repo.GetByID(ctx, identityID); err != nil {
		return err
	}
	if err := repo.SetTwoFA(ctx, identityID, secret, true); err != nil {
		return err
	}
	s.logger.Info(ctx, "totp enabled", "identity_id", identityID)
	return nil
}

// VerifyTOTP checks proof against the stored secret. The identity must have
// 2FA enabled.
func (s *Service) VerifyTOTP(ctx context.Context, identityID int64, proof string) error {
	identity, err := s.repomanager.Identities(s.db).GetByID(ctx, identityID)
	if err != nil {
		return err
	}
	if !identity.TwoFAEnabled || identity.TwoFASecret == "" {
		return apperr.New(apperr.KindValidation, "2fa not enabled")
	}
	if !validateTOTP(proof, identity.TwoFASecret) {
		return apperr.New(apperr.KindInvalidCode, "totp proof rejected")
	}
	return nil
}

// DisableTOTP removes the secret and clears the enabled flag. A fresh valid
// proof is required on every call path.
func (s *Service) DisableTOTP(ctx context.Context, identityID int64, proof string) error {
	if err := s.VerifyTOTP(ctx, identityID, proof); err != nil {
		return err
	}
	repo := s.repomanager.Identities(s.db)
	if err := repo.SetTwoFA(ctx, identityID, "", false); err != nil {
		return err
	}
	s.logger.Info(ctx, "totp disabled", "identity_id", identityID)
	return nil
}

// SendSMSCode generates a one-time code for phone, replacing any live code
// for that number, and dispatches it.
func (s *Service) SendSMSCode(ctx context.Context, phone string) error {
	return s.sendCode(ctx, s.smsSender, phone)
}

// VerifySMSCode consumes the live code for phone. Single use.
func (s *Service) VerifySMSCode(ctx context.Context, phone, code string) error {
	return s.codes.VerifyAndDelete(phone, code)
}

// SendEmailCode generates a one-time code for email, replacing any live
// code for that address, and dispatches it.
func (s *Service) SendEmailCode(ctx context.Context, email string) error {
	return s.sendCode(ctx, s.emailSender, email)
}

// VerifyEmailCode consumes the live code for email. Single use.
func (s *Service) VerifyEmailCode(ctx context.Context, email, code string) error {
	return s.codes.VerifyAndDelete(email, code)
}

func (s *Service) sendCode(ctx context.Context, sender Sender, destination string) error {
	code, err := generateNumericCode()
	if err != nil {
		return fmt.Errorf("generating code: %w", err)
	}
	s.codes.Put(destination, code, codeTTL)
	if err := sender.SendCode(ctx, destination, code); err != nil {
		return fmt.Errorf("dispatching code: %w", err)
	}
	return nil
}

// generateNumericCode produces a fixed-length numeric code from crypto/rand.
func generateNumericCode() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	n := uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
	return fmt.Sprintf("%0*d", codeDigits, n%1000000), nil
}
