// Package services contains the business logic layer: accounts, tiers,
// sessions, chat orchestration, usage limits and payments.
package services

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"aiplatform/internal/database"
	"aiplatform/internal/models"
	"aiplatform/pkg/auth"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
)

// UserService manages user accounts
type UserService struct {
	db *database.DB
}

func NewUserService(db *database.DB) *UserService {
	return &UserService{db: db}
}

// Register creates a new user account with a hashed password
func (s *UserService) Register(email, username, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)

	if email == "" || username == "" {
		return nil, errors.New("email and username are required")
	}
	if err := auth.ValidatePassword(password); err != nil {
		return nil, err
	}

	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users WHERE email = ?`, email).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists > 0 {
		return nil, ErrEmailTaken
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users WHERE username = ?`, username).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if exists > 0 {
		return nil, ErrUsernameTaken
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO users (email, username, password_hash, role, tier, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		email, username, hash, models.RoleUser, models.TierFree, true, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read new user ID: %w", err)
	}

	log.Printf("✅ Registered user %s (id=%d)", email, id)
	return s.GetByID(id)
}

// Authenticate verifies credentials and returns the user
func (s *UserService) Authenticate(email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.getByEmail(email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := auth.VerifyPassword(user.PasswordHash, password)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, errors.New("account is deactivated")
	}

	return user, nil
}

// GetByID loads a user by primary key
func (s *UserService) GetByID(id int64) (*models.User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT id, email, username, password_hash, role, tier, tier_expires_at, is_active, created_at, updated_at
		 FROM users WHERE id = ?`, id))
}

func (s *UserService) getByEmail(email string) (*models.User, error) {
	return s.scanUser(s.db.QueryRow(
		`SELECT id, email, username, password_hash, role, tier, tier_expires_at, is_active, created_at, updated_at
		 FROM users WHERE email = ?`, email))
}

func (s *UserService) scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var expires sql.NullTime
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &u.Tier,
		&expires, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if expires.Valid {
		t := expires.Time
		u.TierExpiresAt = &t
	}
	return &u, nil
}
