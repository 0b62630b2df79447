package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"recscribe/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserExists         = errors.New("user already exists")
)

// CreateUser stores a new user with a bcrypt password hash.
func (s *Service) CreateUser(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, errors.New("username and password required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username = ?`, username).Scan(&exists); err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if exists > 0 {
		return nil, ErrUserExists
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		username, string(hash), now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}
	return &models.User{ID: id, Username: username, PasswordHash: string(hash), CreatedAt: now}, nil
}

// EnsureUser creates the user or resets its password to the given one.
func (s *Service) EnsureUser(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.CreateUser(ctx, username, password)
	if !errors.Is(err, ErrUserExists) {
		return user, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE username = ?`, string(hash), username); err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}
	return s.userByName(ctx, username)
}

// Authenticate checks the credentials and returns the user.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.userByName(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) userByName(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return &u, nil
}

// Session is what a successful login hands back to the client.
type Session struct {
	User      *models.User
	AuthToken string
	CSRFToken string
	ExpiresAt time.Time
}

// Login checks the credentials and opens a token-backed session.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	csrf, err := s.NewCSRFToken()
	if err != nil {
		return nil, err
	}
	return &Session{User: user, AuthToken: token, CSRFToken: csrf, ExpiresAt: expiresAt}, nil
}
