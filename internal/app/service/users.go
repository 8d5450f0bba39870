package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sifan077/linkpulse/internal/app/model"
	"github.com/sifan077/linkpulse/internal/app/repository"
	"golang.org/x/crypto/bcrypt"
)

// RegisterInput is a new account request.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Register creates a user with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, model.NewUser{
		Username:     username,
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: string(hash),
	})
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return user, nil
}

// Authenticate checks a username or email against the stored password hash.
func (s *Service) Authenticate(ctx context.Context, handle, password string) (*model.User, error) {
	user, err := s.store.GetUserByUsernameOrEmail(ctx, strings.TrimSpace(handle))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}
