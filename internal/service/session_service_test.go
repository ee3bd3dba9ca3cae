package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parchment/internal/models"
	"parchment/internal/repository"
	"parchment/internal/security"
)

var fastArgon = security.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

// memoryUsers is a CredentialStore guarded by a mutex. Rotation is a real
// compare-and-swap so concurrent refreshes behave like the SQL store.
type memoryUsers struct {
	mu      sync.Mutex
	byID    map[string]models.User
	failErr error
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byID: map[string]models.User{}}
}

func (m *memoryUsers) Ping(context.Context) error { return m.failErr }

func (m *memoryUsers) Create(_ context.Context, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	for _, u := range m.byID {
		if u.Email == user.Email {
			return repository.ErrEmailExists
		}
	}
	m.byID[user.ID] = user
	return nil
}

func (m *memoryUsers) FindByEmail(_ context.Context, email string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (m *memoryUsers) FindByID(_ context.Context, id string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (m *memoryUsers) SetRefreshToken(_ context.Context, userID string, hash string, expiresAt time.Time, lastLoginAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	u, ok := m.byID[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.RefreshTokenHash = hash
	u.RefreshExpiresAt = &expiresAt
	u.LastLoginAt = &lastLoginAt
	m.byID[userID] = u
	return nil
}

func (m *memoryUsers) RotateRefreshToken(_ context.Context, userID string, currentHash string, nextHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	u, ok := m.byID[userID]
	if !ok || u.RefreshTokenHash != currentHash {
		return repository.ErrRefreshTokenMismatch
	}
	u.RefreshTokenHash = nextHash
	u.RefreshExpiresAt = &expiresAt
	m.byID[userID] = u
	return nil
}

func (m *memoryUsers) ClearRefreshToken(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	u, ok := m.byID[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.RefreshTokenHash = ""
	u.RefreshExpiresAt = nil
	m.byID[userID] = u
	return nil
}

func (m *memoryUsers) storedHash(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id].RefreshTokenHash
}

func (m *memoryUsers) delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
}

type authEvent struct{ operation, outcome string }

type recordingAuth struct {
	mu     sync.Mutex
	events []authEvent
}

func (r *recordingAuth) RecordAuth(operation, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, authEvent{operation, outcome})
}

type sessionFixture struct {
	svc      *SessionService
	users    *memoryUsers
	tokens   *security.TokenService
	recorder *recordingAuth
}

func newSessionFixture(t *testing.T, accessTTL, refreshTTL time.Duration) sessionFixture {
	t.Helper()
	users := newMemoryUsers()
	tokens := security.NewTokenService("access-secret", "refresh-secret", accessTTL, refreshTTL)
	recorder := &recordingAuth{}
	svc := NewSessionService(users, tokens, recorder, zerolog.Nop())
	svc.hashPassword = func(p string) (string, error) { return security.HashPasswordWithParams(p, fastArgon) }
	dummy, err := security.HashPasswordWithParams("not-a-real-password", fastArgon)
	require.NoError(t, err)
	svc.dummyHash = dummy
	return sessionFixture{svc: svc, users: users, tokens: tokens, recorder: recorder}
}

func (f sessionFixture) seed(t *testing.T, id, email, password string) models.User {
	t.Helper()
	hash, err := security.HashPasswordWithParams(password, fastArgon)
	require.NoError(t, err)
	user := models.User{ID: id, FullName: "Test " + id, Email: email, PasswordHash: hash}
	require.NoError(t, f.users.Create(context.Background(), user))
	return user
}

func TestSignup(t *testing.T) {
	f := newSessionFixture(t, 15*time.Minute, 240*time.Hour)
	ctx := context.Background()

	user, err := f.svc.Signup(ctx, SignupInput{FullName: " Alice ", Email: " Alice@X.com ", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.FullName)
	assert.Equal(t, "alice@x.com", user.Email)
	assert.NotEmpty(t, user.ID)

	stored, err := f.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", stored.PasswordHash)
	assert.Empty(t, stored.RefreshTokenHash)

	_, err = f.svc.Signup(ctx, SignupInput{FullName: "Other", Email: "alice@x.com", Password: "something else"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestSignupValidation(t *testing.T) {
	f := newSessionFixture(t, 15*time.Minute, 240*time.Hour)

	cases := map[string]SignupInput{
		"missing name":   {Email: "a@x.com", Password: "longenough"},
		"missing email":  {FullName: "A", Password: "longenough"},
		"short password": {FullName: "A", Email: "a@x.com", Password: "short"},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Signup(context.Background(), input)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestLoginSuccess(t *testing.T) {
	f := newSessionFixture(t, 15*time.Minute, 240*time.Hour)
	f.seed(t, "u1", "alice@x.com", "correct")

	res, err := f.svc.Login(context.Background(), "alice@x.com", "correct")
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "u1", res.User.ID)
	assert.NotNil(t, res.User.LastLoginAt)

	assert.Equal(t, security.HashRefreshToken(res.RefreshToken), f.users.storedHash("u1"))

	claims, err := f.tokens.VerifyAccessToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)

	assert.Equal(t, []authEvent{{"login", "success"}}, f.recorder.events)
}

func TestLoginReplacesPreviousSession(t *testing.T) {
	f := newSessionFixture(t, 15*time.Minute, 240*time.Hour)
	f.seed(t, "u1", "alice@x.com", "correct")
	ctx := context.Background()

	first, err := f.svc.Login(ctx, "alice@x.com", "correct")
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, "alice@x.com", "correct")
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLoginFailures(t *testing.T) {
	f := newSessionFixture(t, 15*time.Minute, 240*time.Hour)
	f.seed(t, "u1", "alice@x.com", "correct")
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "nobody@x.com", "correct")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Login(ctx, "alice@x.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Empty(t, f.users.storedHash("u1"))
}

func TestLoginMatchesEmailExactly(t *testing.T) {
	f := newSessionFixture(t, 15*time.Minute, 240*time.Hour)
	f.seed(t, "u1", "Alice@X.com", "secret123")
	f.seed(t, "u2", "bob@x.com", "secret123")
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "Alice@X.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "u1", res.User.ID)

	_, err = f.svc.Login(ctx, "alice@x.com", "secret123")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Login(ctx, "BOB@X.COM", "secret123")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Login(ctx, " bob@x.com", "secret123")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoginUnknownEmailStillVerifiesPassword(t *testing.T) {
	f := newSessionFixture(t, 15*time.Minute, 240*time.Hour)
	f.seed(t, "u1", "alice@x.com", "correct")

	var verified []string
	verify := f.svc.verifyPassword
	f.svc.verifyPassword = func(password, encodedHash string) (bool, error) {
		verified = append(verified, encodedHash)
		return verify(password, encodedHash)
	}

	_, err := f.svc.Login(context.Background(), "nobody@x.com", "correct")
	assert.ErrorIs(t, err, ErrNotFound)
	require.Len(t, verified, 1)
	assert.Equal(t, f.svc.dummyHash, verified[0])

	_, err = f.svc.Login(context.Background(), "alice@x.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Len(t, verified, 2)
}

func TestDummyPasswordHashIsVerifiable(t *testing.T) {
	ok, err := security.VerifyPassword("correct", dummyPasswordHash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoginPersistenceFailureReturnsNoTokens(t *testing.T) {
	f := newSessionFixture(t, 15*time.Minute, 240*time.Hour)
	f.seed(t, "u1", "alice@x.com", "correct")
	f.users.failErr = errors.New("disk full")

	res, err := f.svc.Login(context.Background(), "alice@x.com", "correct")
	assert.ErrorIs(t, err, ErrPersistenceFailure)
	assert.Empty(t, res.AccessToken)
	assert.Empty(t, res.RefreshToken)
}

func TestLoginMissingSecretIsMisconfiguration(t *testing.T) {
	users := newMemoryUsers()
	svc := NewSessionService(users, security.NewTokenService("", "refresh", time.Minute, time.Hour), nil, zerolog.Nop())
	hash, err := security.HashPasswordWithParams("correct", fastArgon)
	require.NoError(t, err)
	require.NoError(t, users.Create(context.Background(), models.User{ID: "u1", Email: "a@x.com", PasswordHash: hash}))

	_, err = svc.Login(context.Background(), "a@x.com", "correct")
	assert.ErrorIs(t, err, ErrMisconfiguration)
}

func TestRefreshRotates(t *testing.T) {
	f := newSessionFixture(t, 15*time.Minute, 240*time.Hour)
	f.seed(t, "u1", "alice@x.com", "correct")
	ctx := context.Background()

	login, err := f.svc.Login(ctx, "alice@x.com", "correct")
	require.NoError(t, err)

	rotated, err := f.svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, rotated.RefreshToken)
	assert.NotEqual(t, login.AccessToken, rotated.AccessToken)
	assert.Equal(t, security.HashRefreshToken(rotated.RefreshToken), f.users.storedHash("u1"))

	_, err = f.svc.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.svc.Refresh(ctx, rotated.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshRejections(t *testing.T) {
	f := newSessionFixture(t, 15*time.Minute, 240*time.Hour)
	f.seed(t, "u1", "alice@x.com", "correct")
	ctx := context.Background()

	login, err := f.svc.Login(ctx, "alice@x.com", "correct")
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.svc.Refresh(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.svc.Refresh(ctx, login.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := security.NewTokenService("access-secret", "some-other-secret", time.Minute, time.Hour)
	forged, _, err := other.IssueRefreshToken("u1")
	require.NoError(t, err)
	_, err = f.svc.Refresh(ctx, forged)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshExpired(t *testing.T) {
	f := newSessionFixture(t, 15*time.Minute, -time.Minute)
	f.seed(t, "u1", "alice@x.com", "correct")

	login, err := f.svc.Login(context.Background(), "alice@x.com", "correct")
	require.NoError(t, err)

	_, err = f.svc.Refresh(context.Background(), login.RefreshToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestRefreshAfterUserRemoved(t *testing.T) {
	f := newSessionFixture(t, 15*time.Minute, 240*time.Hour)
	f.seed(t, "u1", "alice@x.com", "correct")

	login, err := f.svc.Login(context.Background(), "alice@x.com", "correct")
	require.NoError(t, err)
	f.users.delete("u1")

	_, err = f.svc.Refresh(context.Background(), login.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshStoreFailure(t *testing.T) {
	f := newSessionFixture(t, 15*time.Minute, 240*time.Hour)
	f.seed(t, "u1", "alice@x.com", "correct")

	login, err := f.svc.Login(context.Background(), "alice@x.com", "correct")
	require.NoError(t, err)
	f.users.failErr = errors.New("connection reset")

	res, err := f.svc.Refresh(context.Background(), login.RefreshToken)
	assert.ErrorIs(t, err, ErrPersistenceFailure)
	assert.Empty(t, res.RefreshToken)
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	f := newSessionFixture(t, 15*time.Minute, 240*time.Hour)
	f.seed(t, "u1", "alice@x.com", "correct")

	login, err := f.svc.Login(context.Background(), "alice@x.com", "correct")
	require.NoError(t, err)

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []SessionResult
		losers  int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := f.svc.Refresh(context.Background(), login.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, res)
				return
			}
			if errors.Is(err, ErrInvalidToken) {
				losers++
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, workers-1, losers)
	assert.Equal(t, security.HashRefreshToken(winners[0].RefreshToken), f.users.storedHash("u1"))
}

func TestLogout(t *testing.T) {
	f := newSessionFixture(t, 15*time.Minute, 240*time.Hour)
	f.seed(t, "u1", "alice@x.com", "correct")
	ctx := context.Background()

	login, err := f.svc.Login(ctx, "alice@x.com", "correct")
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, "u1"))
	assert.Empty(t, f.users.storedHash("u1"))
	require.NoError(t, f.svc.Logout(ctx, "u1"))
	require.NoError(t, f.svc.Logout(ctx, "ghost"))

	_, err = f.svc.Refresh(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// the access token stays valid until it expires
	_, err = f.svc.AuthenticateRequest(ctx, login.AccessToken)
	assert.NoError(t, err)
}

func TestLogoutFailure(t *testing.T) {
	f := newSessionFixture(t, 15*time.Minute, 240*time.Hour)
	f.seed(t, "u1", "alice@x.com", "correct")
	f.users.failErr = errors.New("timeout")

	assert.ErrorIs(t, f.svc.Logout(context.Background(), "u1"), ErrPersistenceFailure)
	assert.ErrorIs(t, f.svc.Logout(context.Background(), ""), ErrUnauthenticated)
}

func TestAuthenticateRequest(t *testing.T) {
	f := newSessionFixture(t, 15*time.Minute, 240*time.Hour)
	f.seed(t, "u1", "alice@x.com", "correct")
	ctx := context.Background()

	login, err := f.svc.Login(ctx, "alice@x.com", "correct")
	require.NoError(t, err)

	user, err := f.svc.AuthenticateRequest(ctx, login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", user.Email)

	_, err = f.svc.AuthenticateRequest(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.svc.AuthenticateRequest(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	f.users.delete("u1")
	_, err = f.svc.AuthenticateRequest(ctx, login.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateRequestExpired(t *testing.T) {
	f := newSessionFixture(t, -time.Minute, 240*time.Hour)
	f.seed(t, "u1", "alice@x.com", "correct")

	login, err := f.svc.Login(context.Background(), "alice@x.com", "correct")
	require.NoError(t, err)

	_, err = f.svc.AuthenticateRequest(context.Background(), login.AccessToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestSessionOutcomesAreRecorded(t *testing.T) {
	f := newSessionFixture(t, 15*time.Minute, 240*time.Hour)
	f.seed(t, "u1", "alice@x.com", "correct")
	ctx := context.Background()

	_, _ = f.svc.Login(ctx, "alice@x.com", "wrong")
	_, _ = f.svc.Refresh(ctx, "")
	_ = f.svc.Logout(ctx, "u1")

	assert.Equal(t, []authEvent{
		{"login", "invalid_credentials"},
		{"refresh", "unauthenticated"},
		{"logout", "success"},
	}, f.recorder.events)
}
