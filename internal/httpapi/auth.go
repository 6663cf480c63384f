package httpapi

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"kihaan/backend/internal/domain"
	"kihaan/backend/internal/store"
	"kihaan/backend/internal/xid"
)

// ErrUnauthorized maps to HTTP 401 at the boundary.
var ErrUnauthorized = errors.New("unauthorized")

type authClaims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenPair is what a successful login or refresh hands back. The refresh
// token travels only in an httpOnly cookie, never in the JSON body.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             domain.Actor
}

// AuthManager issues short-lived access tokens and rotating refresh
// tokens. Only a hash of the current refresh token is stored, so a leaked
// database row cannot be replayed as a token.
type AuthManager struct {
	repo          store.Repository
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewAuthManager(repo store.Repository, accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *AuthManager {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &AuthManager{
		repo:          repo,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

func (a *AuthManager) Register(ctx context.Context, req domain.RegisterRequest) (*domain.Actor, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", store.ErrValidation)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email address", store.ErrValidation)
	}
	if len(req.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", store.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user, err := a.repo.CreateUser(ctx, domain.UserAccount{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
	})
	if err != nil {
		return nil, err
	}
	return &domain.Actor{ID: user.ID, Name: user.Name, Email: user.Email}, nil
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (*TokenPair, error) {
	user, err := a.repo.GetUserByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return nil, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}
	return a.issuePair(ctx, user)
}

// Refresh validates the presented refresh token against the stored hash
// and rotates it. A token that was already rotated out is rejected.
func (a *AuthManager) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := a.parseToken(refreshToken, a.refreshSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid refresh token", ErrUnauthorized)
	}
	user, err := a.repo.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: invalid refresh token", ErrUnauthorized)
		}
		return nil, err
	}
	if user.RefreshTokenHash == "" ||
		subtle.ConstantTimeCompare([]byte(user.RefreshTokenHash), []byte(hashToken(refreshToken))) != 1 {
		return nil, fmt.Errorf("%w: refresh token revoked", ErrUnauthorized)
	}
	return a.issuePair(ctx, user)
}

// Logout revokes the stored refresh token. An unparseable token is a no-op
// so logout never fails for the client.
func (a *AuthManager) Logout(ctx context.Context, refreshToken string) error {
	claims, err := a.parseToken(refreshToken, a.refreshSecret)
	if err != nil {
		return nil
	}
	err = a.repo.UpdateUserRefreshToken(ctx, claims.Subject, "")
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// ParseAccess validates an access token and returns the actor inside it.
func (a *AuthManager) ParseAccess(token string) (domain.Actor, error) {
	claims, err := a.parseToken(token, a.accessSecret)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("%w: invalid access token", ErrUnauthorized)
	}
	return domain.Actor{ID: claims.Subject, Name: claims.Name, Email: claims.Email}, nil
}

func (a *AuthManager) issuePair(ctx context.Context, user *domain.UserAccount) (*TokenPair, error) {
	now := time.Now().UTC()
	accessExpiry := now.Add(a.accessTTL)
	refreshExpiry := now.Add(a.refreshTTL)

	access, err := a.signToken(user, now, accessExpiry, a.accessSecret)
	if err != nil {
		return nil, err
	}
	refresh, err := a.signToken(user, now, refreshExpiry, a.refreshSecret)
	if err != nil {
		return nil, err
	}
	if err := a.repo.UpdateUserRefreshToken(ctx, user.ID, hashToken(refresh)); err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExpiry,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExpiry,
		User:             domain.Actor{ID: user.ID, Name: user.Name, Email: user.Email},
	}, nil
}

func (a *AuthManager) signToken(user *domain.UserAccount, now, expiry time.Time, secret []byte) (string, error) {
	claims := authClaims{
		Name:  user.Name,
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        xid.New("tok"),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (a *AuthManager) parseToken(token string, secret []byte) (*authClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &authClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*authClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// attemptLimiter locks a login identity out after repeated failures.
type attemptLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	max      int
	window   time.Duration
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	return &attemptLimiter{
		failures: make(map[string][]time.Time),
		max:      max,
		window:   window,
	}
}

func (l *attemptLimiter) blocked(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.window)
	recent := l.failures[key][:0]
	for _, t := range l.failures[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	l.failures[key] = recent
	return len(recent) >= l.max
}

func (l *attemptLimiter) recordFailure(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[key] = append(l.failures[key], time.Now())
}

func (l *attemptLimiter) reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, key)
}
