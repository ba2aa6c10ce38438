package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"drive/internal/server/database"

	"golang.org/x/crypto/bcrypt"
)

// UserResult is returned after a successful registration.
type UserResult struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// CreateUser registers a new account with zeroed storage counters.
// The password is stored as a bcrypt hash.
func (s *Service) CreateUser(ctx context.Context, email, password string) (*UserResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid email %q", email)
	}
	if password == "" {
		return nil, errors.New("password must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	id, err := generateSecureToken(16)
	if err != nil {
		return nil, fmt.Errorf("failed to generate user ID: %w", err)
	}

	user := &database.User{
		ID:           id,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.ledger.CreateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	slog.Info("user registered", "id", id, "email", email)
	return &UserResult{ID: id, Email: email}, nil
}
