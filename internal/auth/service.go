package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"recscribe/internal/redis"
)

const redisTokenPrefix = "auth:token:"

// Service issues, validates, and revokes user authentication tokens.
type Service struct {
	db              *sql.DB
	cache           *redis.Client
	tokenTTL        time.Duration
	cookieName      string
	headerName      string
	csrfCookieName  string
	csrfHeaderNames []string
	csrfFormField   string
}

// NewService constructs an auth service with the supplied token lifetime.
// cache may be nil.
func NewService(db *sql.DB, cache *redis.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		db:              db,
		cache:           cache,
		tokenTTL:        ttl,
		cookieName:      "auth_token",
		headerName:      "Authorization",
		csrfCookieName:  "csrf_token",
		csrfHeaderNames: []string{"X-CSRFToken", "X-CSRF-Token"},
		csrfFormField:   "csrf_token",
	}
}

// IssueToken mints a new random token for the user and persists it.
func (s *Service) IssueToken(ctx context.Context, userID int64) (string, error) {
	token, _, err := s.issue(ctx, userID)
	return token, err
}

// issue retries on the unlikely token collision.
func (s *Service) issue(ctx context.Context, userID int64) (string, time.Time, error) {
	if userID <= 0 {
		return "", time.Time{}, errors.New("invalid user id")
	}
	now := time.Now().UTC()
	expiresAt := now.Add(s.tokenTTL)
	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		token, err := generateToken()
		if err != nil {
			return "", time.Time{}, err
		}
		if _, lastErr = s.db.ExecContext(ctx,
			`INSERT INTO user_tokens (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
			token, userID, now, expiresAt,
		); lastErr == nil {
			s.cacheToken(ctx, token, userID)
			return token, expiresAt, nil
		}
	}
	return "", time.Time{}, fmt.Errorf("could not issue token: %w", lastErr)
}

// NewCSRFToken returns a random token used for CSRF protection.
func (s *Service) NewCSRFToken() (string, error) {
	return generateToken()
}

// ValidateToken verifies the token exists and has not expired, returning the user id.
func (s *Service) ValidateToken(ctx context.Context, authToken string) (int64, error) {
	if authToken == "" {
		return 0, errors.New("token required")
	}
	if userID, ok := s.cachedUser(ctx, authToken); ok {
		return userID, nil
	}

	var userID int64
	var expires time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM user_tokens WHERE token = ?`, authToken,
	).Scan(&userID, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errors.New("invalid token")
		}
		return 0, fmt.Errorf("lookup token: %w", err)
	}
	if time.Now().UTC().After(expires) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE token = ?`, authToken)
		return 0, errors.New("token expired")
	}
	s.cacheToken(ctx, authToken, userID)
	return userID, nil
}

// RevokeToken deletes a single token.
func (s *Service) RevokeToken(ctx context.Context, authToken string) error {
	if authToken == "" {
		return nil
	}
	_ = s.cache.Del(ctx, redisTokenPrefix+authToken)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE token = ?`, authToken); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// RevokeUserTokens removes all tokens belonging to the user.
func (s *Service) RevokeUserTokens(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return nil
	}
	if s.cache.Enabled() {
		rows, err := s.db.QueryContext(ctx, `SELECT token FROM user_tokens WHERE user_id = ?`, userID)
		if err != nil {
			return fmt.Errorf("list user tokens: %w", err)
		}
		var keys []string
		for rows.Next() {
			var token string
			if err := rows.Scan(&token); err != nil {
				rows.Close()
				return fmt.Errorf("scan user token: %w", err)
			}
			keys = append(keys, redisTokenPrefix+token)
		}
		rows.Close()
		_ = s.cache.Del(ctx, keys...)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	return nil
}

func (s *Service) cachedUser(ctx context.Context, token string) (int64, bool) {
	raw, err := s.cache.Get(ctx, redisTokenPrefix+token)
	if err != nil {
		return 0, false
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	return userID, err == nil && userID > 0
}

func (s *Service) cacheToken(ctx context.Context, token string, userID int64) {
	if !s.cache.Enabled() {
		return
	}
	_ = s.cache.Set(ctx, redisTokenPrefix+token, strconv.FormatInt(userID, 10), s.tokenTTL)
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// AuthCookieName returns the cookie name storing auth tokens.
func (s *Service) AuthCookieName() string {
	return s.cookieName
}

// CSRFCookieName returns the cookie used for CSRF tokens.
func (s *Service) CSRFCookieName() string {
	return s.csrfCookieName
}

// TokenTTL reports the configured token lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}
