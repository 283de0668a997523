package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osokin-dev/gatehouse/internal/apperr"
	"github.com/osokin-dev/gatehouse/internal/dbx"
	"github.com/osokin-dev/gatehouse/internal/logging"
	"github.com/osokin-dev/gatehouse/internal/server/models"
	identitiesrepo "github.com/osokin-dev/gatehouse/internal/server/repositories/identities"
	refreshtokensrepo "github.com/osokin-dev/gatehouse/internal/server/repositories/refreshtokens"
	"github.com/osokin-dev/gatehouse/internal/token"
)

// --- fakes ---

type memIdentitiesRepo struct {
	nextID int64
	rows   map[int64]*models.Identity
}

func newMemIdentitiesRepo() *memIdentitiesRepo {
	return &memIdentitiesRepo{nextID: 1, rows: map[int64]*models.Identity{}}
}

func (r *memIdentitiesRepo) Create(ctx context.Context, i *models.Identity) (*models.Identity, error) {
	for _, row := range r.rows {
		if row.Email == i.Email {
			return nil, apperr.New(apperr.KindConflict, "email already registered")
		}
	}
	i.ID = r.nextID
	i.CreatedAt = time.Now()
	r.nextID++
	r.rows[i.ID] = i
	return i, nil
}

func (r *memIdentitiesRepo) GetByID(ctx context.Context, id int64) (*models.Identity, error) {
	if row, ok := r.rows[id]; ok {
		copied := *row
		return &copied, nil
	}
	return nil, apperr.New(apperr.KindNotFound, "identity not found")
}

func (r *memIdentitiesRepo) GetByEmail(ctx context.Context, email string) (*models.Identity, error) {
	for _, row := range r.rows {
		if row.Email == email {
			copied := *row
			return &copied, nil
		}
	}
	return nil, apperr.New(apperr.KindNotFound, "identity not found")
}

func (r *memIdentitiesRepo) GetByProviderID(ctx context.Context, providerID string) (*models.Identity, error) {
	for _, row := range r.rows {
		if row.ExternalProviderID == providerID {
			copied := *row
			return &copied, nil
		}
	}
	return nil, apperr.New(apperr.KindNotFound, "identity not found")
}

func (r *memIdentitiesRepo) AttachProvider(ctx context.Context, id int64, providerID string) error {
	row, ok := r.rows[id]
	if !ok {
		return apperr.New(apperr.KindNotFound, "identity not found")
	}
	row.ExternalProviderID = providerID
	return nil
}

func (r *memIdentitiesRepo) SetProfile(ctx context.Context, id int64, username, avatarKey string) error {
	for otherID, row := range r.rows {
		if otherID != id && row.Username == username {
			return apperr.New(apperr.KindConflict, "username already taken")
		}
	}
	row, ok := r.rows[id]
	if !ok {
		return apperr.New(apperr.KindNotFound, "identity not found")
	}
	row.Username = username
	if avatarKey != "" {
		row.AvatarKey = avatarKey
	}
	return nil
}

func (r *memIdentitiesRepo) SetTwoFA(ctx context.Context, id int64, secret string, enabled bool) error {
	row, ok := r.rows[id]
	if !ok {
		return apperr.New(apperr.KindNotFound, "identity not found")
	}
	row.TwoFASecret = secret
	row.TwoFAEnabled = enabled
	return nil
}

type memRefreshRepo struct {
	rows map[string]*models.RefreshToken
}

func newMemRefreshRepo() *memRefreshRepo {
	return &memRefreshRepo{rows: map[string]*models.RefreshToken{}}
}

func (r *memRefreshRepo) Create(ctx context.Context, identityID int64, tok string, validity time.Duration) error {
	r.rows[tok] = &models.RefreshToken{
		IdentityID: identityID,
		Token:      tok,
		Expires:    time.Now().Add(validity),
	}
	return nil
}

func (r *memRefreshRepo) Find(ctx context.Context, tok string) (*models.RefreshToken, error) {
	if row, ok := r.rows[tok]; ok {
		return row, nil
	}
	return nil, apperr.New(apperr.KindNotFound, "refresh token not found")
}

func (r *memRefreshRepo) Delete(ctx context.Context, tok string) error {
	delete(r.rows, tok)
	return nil
}

type memRepoManager struct {
	identities *memIdentitiesRepo
	refresh    *memRefreshRepo
}

func (m *memRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *memRepoManager) Identities(db dbx.DBTX) identitiesrepo.Repository {
	return m.identities
}
func (m *memRepoManager) RefreshTokens(db dbx.DBTX) refreshtokensrepo.Repository {
	return m.refresh
}

type fakeProvider struct {
	profile *Profile
	err     error
}

func (p *fakeProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.profile, nil
}

type fakePublisher struct {
	subjects []string
}

func (p *fakePublisher) Publish(subject string, payload any) error {
	p.subjects = append(p.subjects, subject)
	return nil
}

// --- helpers ---

type fixture struct {
	service  *Service
	repos    *memRepoManager
	verifier *token.Verifier
	mock     sqlmock.Sqlmock
	events   *fakePublisher
}

func newFixture(t *testing.T, provider Provider) *fixture {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	repos := &memRepoManager{identities: newMemIdentitiesRepo(), refresh: newMemRefreshRepo()}
	events := &fakePublisher{}
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	service := NewService(db, repos, token.NewIssuer(key, time.Hour),
		30*24*time.Hour, provider, events, "auth.events.registered", logger)

	return &fixture{
		service:  service,
		repos:    repos,
		verifier: token.NewVerifier(&key.PublicKey),
		mock:     mock,
		events:   events,
	}
}

// --- register / login ---

func TestRegisterThenLogin_ClaimDecodesEmail(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	created, err := f.service.Register(ctx, "a@b.com", "abcd1234")
	require.NoError(t, err)
	assert.True(t, created.NeedsSetup())
	assert.Equal(t, []string{"auth.events.registered"}, f.events.subjects)

	session, err := f.service.Login(ctx, "a@b.com", "abcd1234")
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)
	require.NotEmpty(t, session.RefreshToken)

	claims, err := f.verifier.Verify(session.Token)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", claims.Email)
	assert.Equal(t, created.ID, claims.IdentityID)
}

func TestLogin_UnknownEmailIsNotProvisioned(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.service.Login(context.Background(), "nobody@b.com", "abcd1234")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInvalidCredentials))
	assert.Empty(t, f.repos.identities.rows, "login must never create an identity")
}

func TestLogin_WrongPassword(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.service.Register(ctx, "a@b.com", "abcd1234")
	require.NoError(t, err)

	_, err = f.service.Login(ctx, "a@b.com", "wrongpw99")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInvalidCredentials))
}

func TestLogin_ValidationErrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"malformed email", "not-an-email", "abcd1234"},
		{"short password", "a@b.com", "a1"},
		{"no digit", "a@b.com", "abcdefgh"},
		{"no letter", "a@b.com", "12345678"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.service.Login(ctx, tc.email, tc.password)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
		})
	}
}

func TestLogin_PureOAuthAccountHasNoPassword(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.repos.identities.rows[1] = &models.Identity{
		ID: 1, Email: "a@b.com", ExternalProviderID: "google:123",
	}

	_, err := f.service.Login(ctx, "a@b.com", "abcd1234")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInvalidCredentials))
}

func TestLogin_TwoFARequiredWithholdsToken(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	created, err := f.service.Register(ctx, "a@b.com", "abcd1234")
	require.NoError(t, err)
	f.repos.identities.rows[created.ID].TwoFAEnabled = true

	session, err := f.service.Login(ctx, "a@b.com", "abcd1234")
	require.NoError(t, err)
	assert.True(t, session.TwoFARequired)
	assert.Empty(t, session.Token)
	assert.Empty(t, session.RefreshToken)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.service.Register(ctx, "a@b.com", "abcd1234")
	require.NoError(t, err)

	_, err = f.service.Register(ctx, "a@b.com", "other1234")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

// --- OAuth merge ---

func TestOAuthCallback_MergesIntoPasswordAccount(t *testing.T) {
	provider := &fakeProvider{profile: &Profile{ProviderID: "google:123", Email: "a@b.com"}}
	f := newFixture(t, provider)
	ctx := context.Background()

	created, err := f.service.Register(ctx, "a@b.com", "abcd1234")
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	session, err := f.service.OAuthCallback(ctx, "code-1")
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)

	merged := f.repos.identities.rows[created.ID]
	assert.Equal(t, created.ID, session.Identity.ID, "merge must keep the original row")
	assert.NotEmpty(t, merged.PasswordHash, "password credential survives the merge")
	assert.Equal(t, "google:123", merged.ExternalProviderID)
	assert.Len(t, f.repos.identities.rows, 1, "no second row may appear")
}

func TestOAuthCallback_ExistingProviderRowUsedAsIs(t *testing.T) {
	provider := &fakeProvider{profile: &Profile{ProviderID: "google:123", Email: "new-mail@b.com"}}
	f := newFixture(t, provider)
	ctx := context.Background()

	f.repos.identities.rows[5] = &models.Identity{
		ID: 5, Email: "a@b.com", ExternalProviderID: "google:123",
	}
	f.repos.identities.nextID = 6

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	session, err := f.service.OAuthCallback(ctx, "code-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), session.Identity.ID)
	assert.Len(t, f.repos.identities.rows, 1)
}

func TestOAuthCallback_CreatesPureOAuthRow(t *testing.T) {
	provider := &fakeProvider{profile: &Profile{ProviderID: "google:999", Email: "fresh@b.com"}}
	f := newFixture(t, provider)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	session, err := f.service.OAuthCallback(context.Background(), "code-1")
	require.NoError(t, err)

	row := f.repos.identities.rows[session.Identity.ID]
	assert.Empty(t, row.PasswordHash)
	assert.Equal(t, "google:999", row.ExternalProviderID)
}

func TestOAuthCallback_ExchangeFailure(t *testing.T) {
	provider := &fakeProvider{err: apperr.New(apperr.KindOAuthExchange, "code exchange failed")}
	f := newFixture(t, provider)

	_, err := f.service.OAuthCallback(context.Background(), "bad-code")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindOAuthExchange))
}

// --- profile ---

func TestSetUsername_ReissuesClaimWithUsername(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	created, err := f.service.Register(ctx, "a@b.com", "abcd1234")
	require.NoError(t, err)

	session, err := f.service.SetUsername(ctx, created.ID, "player_one", "")
	require.NoError(t, err)

	claims, err := f.verifier.Verify(session.Token)
	require.NoError(t, err)
	assert.Equal(t, "player_one", claims.Username)
}

func TestSetUsername_TakenByOtherIdentity(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.service.Register(ctx, "a@b.com", "abcd1234")
	require.NoError(t, err)
	second, err := f.service.Register(ctx, "c@d.com", "abcd1234")
	require.NoError(t, err)

	_, err = f.service.SetUsername(ctx, first.ID, "player_one", "")
	require.NoError(t, err)

	_, err = f.service.SetUsername(ctx, second.ID, "player_one", "")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestSetUsername_InvalidFormat(t *testing.T) {
	f := newFixture(t, nil)

	for _, bad := range []string{"ab", "way_too_long_username_xx", "sp ace", "nope!"} {
		_, err := f.service.SetUsername(context.Background(), 1, bad, "")
		require.Error(t, err, "username %q must be rejected", bad)
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	}
}

// --- refresh / logout ---

func TestRefresh_RotatesToken(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.service.Register(ctx, "a@b.com", "abcd1234")
	require.NoError(t, err)
	session, err := f.service.Login(ctx, "a@b.com", "abcd1234")
	require.NoError(t, err)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	refreshed, err := f.service.Refresh(ctx, session.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, session.RefreshToken, refreshed.RefreshToken)

	_, stillThere := f.repos.refresh.rows[session.RefreshToken]
	assert.False(t, stillThere, "consumed refresh token must be deleted")
}

func TestRefresh_Expired(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.repos.refresh.rows["old"] = &models.RefreshToken{
		IdentityID: 1, Token: "old", Expires: time.Now().Add(-time.Minute),
	}

	_, err := f.service.Refresh(ctx, "old")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInvalidCredentials))
}

func TestRefresh_Unknown(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.service.Refresh(context.Background(), "never-issued")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInvalidCredentials))
}

func TestLogout_DeletesRefreshToken(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.service.Register(ctx, "a@b.com", "abcd1234")
	require.NoError(t, err)
	session, err := f.service.Login(ctx, "a@b.com", "abcd1234")
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(ctx, session.RefreshToken))

	_, err = f.service.Refresh(ctx, session.RefreshToken)
	require.Error(t, err, "revoked token must not refresh")
}
