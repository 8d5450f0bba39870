package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sifan077/linkpulse/internal/app/model"
	"github.com/sifan077/linkpulse/internal/app/shortcode"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const pgUniqueViolation = "23505"

var errNotOwned = errors.New("link not owned")

// Models lists the tables the Postgres store needs migrated.
func Models() []interface{} {
	return []interface{}{&model.User{}, &model.Link{}, &model.Click{}}
}

// PostgresStore is a GORM-backed Store.
type PostgresStore struct {
	db    *gorm.DB
	alloc *shortcode.Allocator
	now   func() time.Time
}

// NewPostgresStore returns a Store on db. The schema is expected to be
// migrated already (see Models).
func NewPostgresStore(db *gorm.DB, alloc *shortcode.Allocator) *PostgresStore {
	if alloc == nil {
		alloc = shortcode.NewAllocator(nil)
	}
	return &PostgresStore{db: db, alloc: alloc, now: time.Now}
}

func (s *PostgresStore) Name() string { return "postgres" }

func (s *PostgresStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *PostgresStore) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Postgres keeps microseconds.
func (s *PostgresStore) stamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.findUser(ctx, "id = ?", id)
}

func (s *PostgresStore) GetUserByUsernameOrEmail(ctx context.Context, handle string) (*model.User, error) {
	u, err := s.findUser(ctx, "username = ?", handle)
	if !errors.Is(err, ErrUserNotFound) {
		return u, err
	}
	return s.findUser(ctx, "email = ?", handle)
}

func (s *PostgresStore) findUser(ctx context.Context, query string, arg string) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).Where(query, arg).Order("created_at ASC").First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, in model.NewUser) (*model.User, error) {
	u := &model.User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Email:        model.StringPtr(in.Email),
		PasswordHash: in.PasswordHash,
		CreatedAt:    s.stamp(),
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return u, nil
}

func (s *PostgresStore) CreateLink(ctx context.Context, in model.NewLink, useCustomAlias bool) (*model.Link, error) {
	alias := requestedAlias(in, useCustomAlias)

	var expires *time.Time
	if in.ExpiresAt != nil {
		exp := in.ExpiresAt.UTC().Truncate(time.Microsecond)
		expires = &exp
	}

	var created *model.Link
	_, err := s.alloc.Allocate(ctx, alias, func(ctx context.Context, code string) error {
		link := &model.Link{
			ID:          uuid.NewString(),
			UserID:      in.UserID,
			ShortCode:   code,
			OriginalURL: in.OriginalURL,
			CustomAlias: model.StringPtr(alias),
			ExpiresAt:   expires,
			CreatedAt:   s.stamp(),
		}
		if err := s.db.WithContext(ctx).Create(link).Error; err != nil {
			if isUniqueViolation(err) {
				return shortcode.ErrTaken
			}
			return err
		}
		created = link
		return nil
	})
	if err != nil {
		return nil, allocationError(err)
	}
	return created, nil
}

func (s *PostgresStore) GetLink(ctx context.Context, id string) (*model.Link, error) {
	return s.findLink(ctx, "id = ?", id)
}

func (s *PostgresStore) GetLinkByCode(ctx context.Context, code string) (*model.Link, error) {
	return s.findLink(ctx, "short_code = ?", code)
}

func (s *PostgresStore) findLink(ctx context.Context, query string, arg string) (*model.Link, error) {
	var l model.Link
	if err := s.db.WithContext(ctx).Where(query, arg).First(&l).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	normalizeLink(&l)
	return &l, nil
}

func (s *PostgresStore) GetLinksForUser(ctx context.Context, userID string) ([]model.Link, error) {
	result := make([]model.Link, 0)
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&result).Error; err != nil {
		return nil, err
	}
	for i := range result {
		normalizeLink(&result[i])
	}
	return result, nil
}

func (s *PostgresStore) IncrementClickCount(ctx context.Context, linkID string) error {
	res := s.db.WithContext(ctx).
		Model(&model.Link{}).
		Where("id = ?", linkID).
		UpdateColumn("click_count", gorm.Expr("click_count + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLinkNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteLink(ctx context.Context, id, ownerID string) (bool, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, ownerID).Delete(&model.Link{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errNotOwned
		}
		return tx.Where("link_id = ?", id).Delete(&model.Click{}).Error
	})
	if errors.Is(err, errNotOwned) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *PostgresStore) CreateClick(ctx context.Context, in model.NewClick) (*model.Click, error) {
	if in.Timestamp.IsZero() {
		in.Timestamp = s.now()
	}
	in.Timestamp = in.Timestamp.UTC().Truncate(time.Microsecond)
	c := newClickRecord(uuid.NewString(), in)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// lock the parent row so a concurrent delete cannot slip in between
		var parent model.Link
		if err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
			Select("id").Where("id = ?", in.LinkID).First(&parent).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLinkNotFound
			}
			return err
		}
		return tx.Create(c).Error
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *PostgresStore) GetClicksForLink(ctx context.Context, linkID string) ([]model.Click, error) {
	result := make([]model.Click, 0)
	if err := s.db.WithContext(ctx).
		Where("link_id = ?", linkID).
		Order("timestamp ASC").
		Find(&result).Error; err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Timestamp = result[i].Timestamp.UTC()
	}
	return result, nil
}

func normalizeLink(l *model.Link) {
	l.CreatedAt = l.CreatedAt.UTC()
	if l.ExpiresAt != nil {
		exp := l.ExpiresAt.UTC()
		l.ExpiresAt = &exp
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
