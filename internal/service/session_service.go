package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"parchment/internal/ids"
	"parchment/internal/metrics"
	"parchment/internal/models"
	"parchment/internal/repository"
	"parchment/internal/security"
)

const minPasswordLength = 8

// dummyPasswordHash is verified against when no user matches the email so
// that an unknown account costs the same argon2 work as a wrong password.
// It uses the default argon2id parameters and matches no real password.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=3,p=2$cGFyY2htZW50LWR1bW15$Xk3b0yQmR2ZfN8Vb1Lr5wPq7sT9uA4cE6hJ0kM2nO1g"

// CredentialStore holds user records and the single refresh digest per user.
type CredentialStore interface {
	Ping(ctx context.Context) error
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	SetRefreshToken(ctx context.Context, userID string, tokenHash string, expiresAt time.Time, lastLoginAt time.Time) error
	RotateRefreshToken(ctx context.Context, userID string, currentHash string, nextHash string, expiresAt time.Time) error
	ClearRefreshToken(ctx context.Context, userID string) error
}

type SignupInput struct {
	FullName string
	Email    string
	Password string
}

type SessionResult struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	User             models.PublicUser
}

type SessionService struct {
	users          CredentialStore
	tokens         *security.TokenService
	recorder       metrics.AuthRecorder
	log            zerolog.Logger
	hashPassword   func(string) (string, error)
	verifyPassword func(password, encodedHash string) (bool, error)
	dummyHash      string
	now            func() time.Time
}

func NewSessionService(users CredentialStore, tokens *security.TokenService, recorder metrics.AuthRecorder, log zerolog.Logger) *SessionService {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &SessionService{
		users:          users,
		tokens:         tokens,
		recorder:       recorder,
		log:            log.With().Str("component", "session").Logger(),
		hashPassword:   security.HashPassword,
		verifyPassword: security.VerifyPassword,
		dummyHash:      dummyPasswordHash,
		now:            time.Now,
	}
}

func (s *SessionService) Signup(ctx context.Context, input SignupInput) (user models.PublicUser, err error) {
	defer func() { s.observe("signup", "", err) }()

	input.FullName = strings.TrimSpace(input.FullName)
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	switch {
	case input.FullName == "":
		return models.PublicUser{}, invalidInput("full name is required")
	case input.Email == "":
		return models.PublicUser{}, invalidInput("email is required")
	case len(input.Password) < minPasswordLength:
		return models.PublicUser{}, invalidInput("password must be at least %d characters", minPasswordLength)
	}

	if _, err := s.users.FindByEmail(ctx, input.Email); err == nil {
		return models.PublicUser{}, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return models.PublicUser{}, persistenceError("find user", err)
	}

	passwordHash, err := s.hashPassword(input.Password)
	if err != nil {
		return models.PublicUser{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	record := models.User{
		ID:           ids.New(),
		FullName:     input.FullName,
		Email:        input.Email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return models.PublicUser{}, ErrEmailTaken
		}
		return models.PublicUser{}, persistenceError("create user", err)
	}

	return record.Public(), nil
}

// Login checks credentials and starts a session, replacing any refresh token
// the user held before. The email is matched exactly as given.
func (s *SessionService) Login(ctx context.Context, email string, password string) (result SessionResult, err error) {
	var userID string
	defer func() { s.observe("login", userID, err) }()

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			_, _ = s.verifyPassword(password, s.dummyHash)
			return SessionResult{}, ErrNotFound
		}
		return SessionResult{}, persistenceError("find user", err)
	}
	userID = user.ID

	ok, err := s.verifyPassword(password, user.PasswordHash)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("stored password hash unreadable")
		return SessionResult{}, ErrInvalidCredentials
	}
	if !ok {
		return SessionResult{}, ErrInvalidCredentials
	}

	now := s.now().UTC()
	result, refreshHash, err := s.issuePair(user, now)
	if err != nil {
		return SessionResult{}, err
	}

	if err := s.users.SetRefreshToken(ctx, user.ID, refreshHash, result.RefreshExpiresAt, now); err != nil {
		return SessionResult{}, persistenceError("store refresh token", err)
	}

	user.LastLoginAt = &now
	result.User = user.Public()
	return result, nil
}

// Refresh exchanges a refresh token for a new pair. The stored digest is swapped
// only if it still matches the presented token, so a token can be used once.
func (s *SessionService) Refresh(ctx context.Context, presented string) (result SessionResult, err error) {
	var userID string
	defer func() { s.observe("refresh", userID, err) }()

	if presented == "" {
		return SessionResult{}, ErrUnauthenticated
	}

	claims, err := s.tokens.VerifyRefreshToken(presented)
	if err != nil {
		return SessionResult{}, tokenError(err)
	}
	userID = claims.UserID

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return SessionResult{}, ErrInvalidToken
		}
		return SessionResult{}, persistenceError("find user", err)
	}

	presentedHash := security.HashRefreshToken(presented)
	if !security.RefreshHashEqual(presentedHash, user.RefreshTokenHash) {
		return SessionResult{}, ErrInvalidToken
	}

	result, nextHash, err := s.issuePair(user, s.now().UTC())
	if err != nil {
		return SessionResult{}, err
	}

	err = s.users.RotateRefreshToken(ctx, user.ID, presentedHash, nextHash, result.RefreshExpiresAt)
	switch {
	case errors.Is(err, repository.ErrRefreshTokenMismatch):
		return SessionResult{}, ErrInvalidToken
	case err != nil:
		return SessionResult{}, persistenceError("rotate refresh token", err)
	}

	result.User = user.Public()
	return result, nil
}

// Logout revokes the user's refresh token. Logging out twice is not an error.
func (s *SessionService) Logout(ctx context.Context, userID string) (err error) {
	defer func() { s.observe("logout", userID, err) }()

	if userID == "" {
		return ErrUnauthenticated
	}
	if err := s.users.ClearRefreshToken(ctx, userID); err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return persistenceError("clear refresh token", err)
	}
	return nil
}

// AuthenticateRequest resolves an access token to the user it was issued for.
func (s *SessionService) AuthenticateRequest(ctx context.Context, presented string) (user models.PublicUser, err error) {
	defer func() {
		if err != nil {
			s.observe("authenticate", "", err)
		}
	}()

	if presented == "" {
		return models.PublicUser{}, ErrUnauthenticated
	}

	claims, err := s.tokens.VerifyAccessToken(presented)
	if err != nil {
		return models.PublicUser{}, tokenError(err)
	}

	record, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.PublicUser{}, ErrInvalidToken
		}
		return models.PublicUser{}, persistenceError("find user", err)
	}
	return record.Public(), nil
}

func (s *SessionService) Ping(ctx context.Context) error {
	return s.users.Ping(ctx)
}

func (s *SessionService) AccessTTL() time.Duration  { return s.tokens.AccessTTL() }
func (s *SessionService) RefreshTTL() time.Duration { return s.tokens.RefreshTTL() }

func (s *SessionService) issuePair(user models.User, now time.Time) (SessionResult, string, error) {
	access, err := s.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return SessionResult{}, "", tokenError(err)
	}
	refresh, refreshExpiresAt, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return SessionResult{}, "", tokenError(err)
	}

	return SessionResult{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(s.tokens.AccessTTL()),
		RefreshExpiresAt: refreshExpiresAt,
	}, security.HashRefreshToken(refresh), nil
}

func (s *SessionService) observe(operation string, userID string, err error) {
	label := outcome(err)
	s.recorder.RecordAuth(operation, label)

	if err == nil {
		s.log.Debug().Str("operation", operation).Str("user_id", userID).Msg("session operation succeeded")
		return
	}

	event := s.log.Warn()
	if errors.Is(err, ErrPersistenceFailure) || errors.Is(err, ErrMisconfiguration) {
		event = s.log.Error().Err(err)
	}
	event.Str("operation", operation).Str("user_id", userID).Str("outcome", label).Msg("session operation rejected")
}

func tokenError(err error) error {
	switch {
	case errors.Is(err, security.ErrExpiredToken):
		return ErrExpiredToken
	case errors.Is(err, security.ErrMissingSecret):
		return fmt.Errorf("%w: %w", ErrMisconfiguration, err)
	default:
		return ErrInvalidToken
	}
}
