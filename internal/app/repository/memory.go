package repository

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/sifan077/linkpulse/internal/app/model"
	"github.com/sifan077/linkpulse/internal/app/shortcode"
)

// MemoryStore keeps everything in process memory. State is lost on restart.
type MemoryStore struct {
	alloc *shortcode.Allocator
	now   func() time.Time

	mu         sync.RWMutex
	users      map[string]*model.User
	links      map[string]*model.Link
	clicks     map[string]*model.Click
	usernames  map[string]string   // username -> user id
	emails     map[string]string   // email -> user id
	codes      map[string]string   // short code -> link id
	linkClicks map[string][]string // link id -> click ids, insertion order

	nextUserID  int64
	nextLinkID  int64
	nextClickID int64
}

// NewMemoryStore returns an empty volatile store. A nil allocator gets a
// default one.
func NewMemoryStore(alloc *shortcode.Allocator) *MemoryStore {
	if alloc == nil {
		alloc = shortcode.NewAllocator(nil)
	}
	return &MemoryStore{
		alloc:      alloc,
		now:        time.Now,
		users:      make(map[string]*model.User),
		links:      make(map[string]*model.Link),
		clicks:     make(map[string]*model.Click),
		usernames:  make(map[string]string),
		emails:     make(map[string]string),
		codes:      make(map[string]string),
		linkClicks: make(map[string][]string),
	}
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close(context.Context) error { return nil }

func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetUserByUsernameOrEmail(_ context.Context, handle string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usernames[handle]
	if !ok {
		id, ok = s.emails[handle]
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, in model.NewUser) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usernames[in.Username]; exists {
		return nil, ErrUsernameTaken
	}

	s.nextUserID++
	u := &model.User{
		ID:           strconv.FormatInt(s.nextUserID, 10),
		Username:     in.Username,
		Email:        model.StringPtr(in.Email),
		PasswordHash: in.PasswordHash,
		CreatedAt:    s.now().UTC(),
	}
	s.users[u.ID] = u
	s.usernames[u.Username] = u.ID
	if in.Email != "" {
		if _, exists := s.emails[in.Email]; !exists {
			s.emails[in.Email] = u.ID
		}
	}

	cp := *u
	return &cp, nil
}

func (s *MemoryStore) CreateLink(ctx context.Context, in model.NewLink, useCustomAlias bool) (*model.Link, error) {
	alias := requestedAlias(in, useCustomAlias)

	var expires *time.Time
	if in.ExpiresAt != nil {
		exp := in.ExpiresAt.UTC()
		expires = &exp
	}

	var created model.Link
	_, err := s.alloc.Allocate(ctx, alias, func(_ context.Context, code string) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		if _, exists := s.codes[code]; exists {
			return shortcode.ErrTaken
		}

		s.nextLinkID++
		link := &model.Link{
			ID:          strconv.FormatInt(s.nextLinkID, 10),
			UserID:      in.UserID,
			ShortCode:   code,
			OriginalURL: in.OriginalURL,
			CustomAlias: model.StringPtr(alias),
			ExpiresAt:   expires,
			CreatedAt:   s.now().UTC(),
		}
		s.links[link.ID] = link
		s.codes[code] = link.ID
		created = *link
		return nil
	})
	if err != nil {
		return nil, allocationError(err)
	}
	return &created, nil
}

func (s *MemoryStore) GetLink(_ context.Context, id string) (*model.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.links[id]
	if !ok {
		return nil, ErrLinkNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *MemoryStore) GetLinksForUser(_ context.Context, userID string) ([]model.Link, error) {
	s.mu.RLock()
	result := make([]model.Link, 0)
	for _, l := range s.links {
		if l.UserID == userID {
			result = append(result, *l)
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return sequence(result[i].ID) > sequence(result[j].ID)
	})
	return result, nil
}

func (s *MemoryStore) GetLinkByCode(_ context.Context, code string) (*model.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.codes[code]
	if !ok {
		return nil, ErrLinkNotFound
	}
	cp := *s.links[id]
	return &cp, nil
}

func (s *MemoryStore) IncrementClickCount(_ context.Context, linkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.links[linkID]
	if !ok {
		return ErrLinkNotFound
	}
	l.ClickCount++
	return nil
}

func (s *MemoryStore) DeleteLink(_ context.Context, id, ownerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.links[id]
	if !ok || l.UserID != ownerID {
		return false, nil
	}

	for _, clickID := range s.linkClicks[id] {
		delete(s.clicks, clickID)
	}
	delete(s.linkClicks, id)
	delete(s.codes, l.ShortCode)
	delete(s.links, id)
	return true, nil
}

func (s *MemoryStore) CreateClick(_ context.Context, in model.NewClick) (*model.Click, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.links[in.LinkID]; !ok {
		return nil, ErrLinkNotFound
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = s.now()
	}
	in.Timestamp = in.Timestamp.UTC()

	s.nextClickID++
	c := newClickRecord(strconv.FormatInt(s.nextClickID, 10), in)
	s.clicks[c.ID] = c
	s.linkClicks[in.LinkID] = append(s.linkClicks[in.LinkID], c.ID)

	cp := *c
	return &cp, nil
}

func (s *MemoryStore) GetClicksForLink(_ context.Context, linkID string) ([]model.Click, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.linkClicks[linkID]
	result := make([]model.Click, 0, len(ids))
	for _, id := range ids {
		result = append(result, *s.clicks[id])
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

func sequence(id string) int64 {
	n, _ := strconv.ParseInt(id, 10, 64)
	return n
}
