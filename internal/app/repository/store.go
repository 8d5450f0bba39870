package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/sifan077/linkpulse/internal/app/model"
	"github.com/sifan077/linkpulse/internal/app/shortcode"
)

var (
	// ErrNotFound is the parent of every "does not exist" error.
	ErrNotFound = errors.New("not found")
	// ErrConflict is the parent of every uniqueness violation.
	ErrConflict = errors.New("conflict")

	// ErrUserNotFound signals that the requested user does not exist.
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)
	// ErrLinkNotFound signals that the requested short link does not exist.
	ErrLinkNotFound = fmt.Errorf("link %w", ErrNotFound)

	// ErrUsernameTaken is returned when registering an existing username.
	ErrUsernameTaken = fmt.Errorf("%w: username already exists", ErrConflict)
	// ErrAliasTaken is returned when a requested custom alias is already a short code.
	ErrAliasTaken = fmt.Errorf("%w: custom alias already in use", ErrConflict)
)

// Store is the data access contract shared by every backend. Implementations
// must be safe for concurrent use.
type Store interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	GetUser(ctx context.Context, id string) (*model.User, error)
	// GetUserByUsernameOrEmail matches handle against usernames first and
	// emails second.
	GetUserByUsernameOrEmail(ctx context.Context, handle string) (*model.User, error)
	CreateUser(ctx context.Context, in model.NewUser) (*model.User, error)

	// CreateLink stores a new link. With useCustomAlias and a non-empty
	// in.CustomAlias the alias becomes the short code or the call fails with
	// ErrAliasTaken; otherwise a code is generated.
	CreateLink(ctx context.Context, in model.NewLink, useCustomAlias bool) (*model.Link, error)
	GetLink(ctx context.Context, id string) (*model.Link, error)
	// GetLinksForUser returns the user's links, newest first.
	GetLinksForUser(ctx context.Context, userID string) ([]model.Link, error)
	GetLinkByCode(ctx context.Context, code string) (*model.Link, error)
	// IncrementClickCount adds one to the link's counter atomically.
	IncrementClickCount(ctx context.Context, linkID string) error
	// DeleteLink removes the link and all of its clicks. It reports false
	// when the link does not exist or belongs to someone else.
	DeleteLink(ctx context.Context, id, ownerID string) (bool, error)

	CreateClick(ctx context.Context, in model.NewClick) (*model.Click, error)
	// GetClicksForLink returns the link's clicks, oldest first.
	GetClicksForLink(ctx context.Context, linkID string) ([]model.Click, error)
}

func requestedAlias(in model.NewLink, useCustomAlias bool) string {
	if useCustomAlias {
		return in.CustomAlias
	}
	return ""
}

func allocationError(err error) error {
	if errors.Is(err, shortcode.ErrTaken) {
		return ErrAliasTaken
	}
	return err
}

func newClickRecord(id string, in model.NewClick) *model.Click {
	return &model.Click{
		ID:        id,
		LinkID:    in.LinkID,
		Timestamp: in.Timestamp,
		IPAddress: model.StringPtr(in.IPAddress),
		UserAgent: model.StringPtr(in.UserAgent),
		Device:    model.StringPtr(in.Device),
		Browser:   model.StringPtr(in.Browser),
		OS:        model.StringPtr(in.OS),
		Referrer:  model.StringPtr(in.Referrer),
		Country:   model.StringPtr(in.Country),
	}
}
