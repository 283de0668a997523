package twofa

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osokin-dev/gatehouse/internal/apperr"
	"github.com/osokin-dev/gatehouse/internal/dbx"
	"github.com/osokin-dev/gatehouse/internal/logging"
	"github.com/osokin-dev/gatehouse/internal/server/models"
	identitiesrepo "github.com/osokin-dev/gatehouse/internal/server/repositories/identities"
	refreshtokensrepo "github.com/osokin-dev/gatehouse/internal/server/repositories/refreshtokens"
)

// --- fakes ---

type fakeIdentitiesRepo struct {
	byID map[int64]*models.Identity

	twofaSecret  string
	twofaEnabled bool
	twofaSet     bool
}

func (f *fakeIdentitiesRepo) Create(ctx context.Context, i *models.Identity) (*models.Identity, error) {
	return i, nil
}

func (f *fakeIdentitiesRepo) GetByID(ctx context.Context, id int64) (*models.Identity, error) {
	if identity, ok := f.byID[id]; ok {
		return identity, nil
	}
	return nil, apperr.New(apperr.KindNotFound, "identity not found")
}

func (f *fakeIdentitiesRepo) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	return nil, apperr.New(apperr.KindNotFound, "identity not found")
}

func (f *fakeIdentitiesRepo) GetByProviderID(ctx context.Context, providerID string) (*models.Identity, error) {
	return nil, apperr.New(apperr.KindNotFound, "identity not found")
}

func (f *fakeIdentitiesRepo) AttachProvider(ctx context.Context, id int64, providerID string) error {
	return nil
}

func (f *fakeIdentitiesRepo) SetProfile(ctx context.Context, id int64, username, avatarKey string) error {
	return nil
}

func (f *fakeIdentitiesRepo) SetTwoFA(ctx context.Context, id int64, secret string, enabled bool) error {
	f.twofaSecret = secret
	f.twofaEnabled = enabled
	f.twofaSet = true
	return nil
}

type fakeRepoManager struct {
	identities *fakeIdentitiesRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Identities(db dbx.DBTX) identitiesrepo.Repository {
	return m.identities
}
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokensrepo.Repository { return nil }

type recordingSender struct {
	destinations []string
	codes        []string
}

func (r *recordingSender) SendCode(ctx context.Context, destination, code string) error {
	r.destinations = append(r.destinations, destination)
	r.codes = append(r.codes, code)
	return nil
}

func newTwoFAService(t *testing.T, repo *fakeIdentitiesRepo, sms, email Sender) *Service {
	t.Helper()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	return NewService(db, &fakeRepoManager{identities: repo}, NewCodeStore(16), sms, email, logger)
}

func totpCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

// --- TOTP lifecycle ---

func TestSetupTOTP_PersistsNothing(t *testing.T) {
	repo := &fakeIdentitiesRepo{byID: map[int64]*models.Identity{}}
	s := newTwoFAService(t, repo, nil, nil)

	setup, err := s.SetupTOTP(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.NotEmpty(t, setup.Secret)
	assert.Contains(t, setup.OtpauthURL, "otpauth://totp/")
	assert.NotEmpty(t, setup.QR)
	assert.False(t, repo.twofaSet, "setup must not touch the identity row")
}

func TestEnableTOTP_WrongProofKeepsDisabled(t *testing.T) {
	repo := &fakeIdentitiesRepo{byID: map[int64]*models.Identity{
		7: {ID: 7, Email: "a@b.com", PasswordHash: "x"},
	}}
	s := newTwoFAService(t, repo, nil, nil)

	setup, err := s.SetupTOTP(context.Background(), "a@b.com")
	require.NoError(t, err)

	err = s.EnableTOTP(context.Background(), 7, setup.Secret, "000000")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInvalidCode))
	assert.False(t, repo.twofaSet, "failed proof must not persist the secret")
}

func TestEnableTOTP_ValidProofPersists(t *testing.T) {
	repo := &fakeIdentitiesRepo{byID: map[int64]*models.Identity{
		7: {ID: 7, Email: "a@b.com", PasswordHash: "x"},
	}}
	s := newTwoFAService(t, repo, nil, nil)

	setup, err := s.SetupTOTP(context.Background(), "a@b.com")
	require.NoError(t, err)

	require.NoError(t, s.EnableTOTP(context.Background(), 7, setup.Secret, totpCode(t, setup.Secret)))
	assert.True(t, repo.twofaEnabled)
	assert.Equal(t, setup.Secret, repo.twofaSecret)
}

func TestVerifyTOTP_RequiresEnabled(t *testing.T) {
	repo := &fakeIdentitiesRepo{byID: map[int64]*models.Identity{
		7: {ID: 7, Email: "a@b.com", PasswordHash: "x"},
	}}
	s := newTwoFAService(t, repo, nil, nil)

	err := s.VerifyTOTP(context.Background(), 7, "123456")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestDisableTOTP_RequiresFreshProof(t *testing.T) {
	key, err := generateTOTPKey("a@b.com")
	require.NoError(t, err)
	repo := &fakeIdentitiesRepo{byID: map[int64]*models.Identity{
		7: {ID: 7, Email: "a@b.com", PasswordHash: "x", TwoFAEnabled: true, TwoFASecret: key.Secret()},
	}}
	s := newTwoFAService(t, repo, nil, nil)

	err = s.DisableTOTP(context.Background(), 7, "000000")
	require.Error(t, err, "disable without valid proof must fail")
	assert.False(t, repo.twofaSet)

	require.NoError(t, s.DisableTOTP(context.Background(), 7, totpCode(t, key.Secret())))
	assert.False(t, repo.twofaEnabled)
	assert.Empty(t, repo.twofaSecret)
}

// --- one-time codes ---

func TestSendSMSCode_OverwriteThenVerifyOnce(t *testing.T) {
	sms := &recordingSender{}
	s := newTwoFAService(t, &fakeIdentitiesRepo{}, sms, nil)
	ctx := context.Background()

	require.NoError(t, s.SendSMSCode(ctx, "+15550001111"))
	require.NoError(t, s.SendSMSCode(ctx, "+15550001111"))
	require.Len(t, sms.codes, 2)

	err := s.VerifySMSCode(ctx, "+15550001111", sms.codes[0])
	require.Error(t, err, "first code is stale after overwrite")

	require.NoError(t, s.VerifySMSCode(ctx, "+15550001111", sms.codes[1]))

	err = s.VerifySMSCode(ctx, "+15550001111", sms.codes[1])
	require.Error(t, err, "verified code must not verify again")
	assert.True(t, apperr.Is(err, apperr.KindInvalidCode))
}

func TestSendEmailCode_DispatchesToAddress(t *testing.T) {
	email := &recordingSender{}
	s := newTwoFAService(t, &fakeIdentitiesRepo{}, nil, email)
	ctx := context.Background()

	require.NoError(t, s.SendEmailCode(ctx, "a@b.com"))
	require.Len(t, email.destinations, 1)
	assert.Equal(t, "a@b.com", email.destinations[0])
	require.NoError(t, s.VerifyEmailCode(ctx, "a@b.com", email.codes[0]))
}
