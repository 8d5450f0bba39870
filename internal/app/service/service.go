package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sifan077/linkpulse/internal/app/analytics"
	"github.com/sifan077/linkpulse/internal/app/model"
	"github.com/sifan077/linkpulse/internal/app/repository"
	"github.com/sifan077/linkpulse/internal/app/shortcode"
	infraPrometheus "github.com/sifan077/linkpulse/internal/infra/prometheus"
	"go.uber.org/zap"
)

var (
	// ErrValidation is the parent of every rejected-input error.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidURL rejects original URLs that are not absolute.
	ErrInvalidURL = fmt.Errorf("%w: original url must be an absolute url", ErrValidation)
	// ErrExpired is returned by Resolve for a link past its expiry.
	ErrExpired = errors.New("link expired")
	// ErrInvalidCredentials hides whether the user or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// Deps bundles what the Service needs. Only Store is required.
type Deps struct {
	Store    repository.Store
	Recorder ClickRecorder
	Logger   *zap.Logger
	Metrics  *infraPrometheus.Metrics
	Now      func() time.Time
}

// Service is the single entry point the route layer talks to. It wraps the
// store selected at startup together with the analytics functions.
type Service struct {
	store    repository.Store
	recorder ClickRecorder
	logger   *zap.Logger
	metrics  *infraPrometheus.Metrics
	now      func() time.Time
}

// New builds a Service. A nil Recorder records clicks directly against the
// store.
func New(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = infraPrometheus.NewMetrics(nil)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Recorder == nil {
		deps.Recorder = NewDirectRecorder(deps.Store, deps.Logger, deps.Metrics)
	}
	return &Service{
		store:    deps.Store,
		recorder: deps.Recorder,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		now:      deps.Now,
	}
}

// Backend names the active store.
func (s *Service) Backend() string {
	return s.store.Name()
}

// Ping checks the active store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Close releases the active store.
func (s *Service) Close(ctx context.Context) error {
	return s.store.Close(ctx)
}

// CreateLinkInput is what a user submits to shorten a URL.
type CreateLinkInput struct {
	OriginalURL string
	CustomAlias string
	ExpiresAt   *time.Time
}

// CreateLink validates the input and stores a new link owned by userID.
func (s *Service) CreateLink(ctx context.Context, userID string, in CreateLinkInput) (*model.Link, error) {
	if err := validateURL(in.OriginalURL); err != nil {
		return nil, err
	}
	alias := strings.TrimSpace(in.CustomAlias)
	if alias != "" {
		if err := shortcode.ValidateAlias(alias); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}

	link, err := s.store.CreateLink(ctx, model.NewLink{
		UserID:      userID,
		OriginalURL: in.OriginalURL,
		CustomAlias: alias,
		ExpiresAt:   in.ExpiresAt,
	}, alias != "")
	if err != nil {
		return nil, fmt.Errorf("create link: %w", err)
	}

	s.metrics.LinksCreated.Inc()
	s.logger.Debug("link created",
		zap.String("id", link.ID),
		zap.String("code", link.ShortCode),
		zap.String("user_id", userID),
	)
	return link, nil
}

// ListLinks returns the user's links, newest first, with their expiry state.
func (s *Service) ListLinks(ctx context.Context, userID string) ([]model.LinkWithStatus, error) {
	links, err := s.store.GetLinksForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}

	now := s.now()
	result := make([]model.LinkWithStatus, 0, len(links))
	for _, l := range links {
		result = append(result, withStatus(l, now))
	}
	return result, nil
}

// GetLinkDetails returns one of the user's links with a seven-day click
// series and device, browser and OS breakdowns. Links owned by someone else
// are reported as missing.
func (s *Service) GetLinkDetails(ctx context.Context, userID, linkID string) (*model.LinkDetails, error) {
	link, err := s.ownedLink(ctx, userID, linkID)
	if err != nil {
		return nil, err
	}

	clicks, err := s.store.GetClicksForLink(ctx, link.ID)
	if err != nil {
		return nil, fmt.Errorf("load clicks: %w", err)
	}

	now := s.now()
	return &model.LinkDetails{
		LinkWithStatus: withStatus(*link, now),
		ClickStats:     analytics.DailyWindow(clicks, now, analytics.RecentDays),
		DeviceStats:    analytics.DeviceBreakdown(clicks),
		BrowserStats:   analytics.BrowserBreakdown(clicks),
		OSStats:        analytics.OSBreakdown(clicks),
	}, nil
}

// DeleteLink removes the user's link and its clicks.
func (s *Service) DeleteLink(ctx context.Context, userID, linkID string) error {
	ok, err := s.store.DeleteLink(ctx, linkID, userID)
	if err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	if !ok {
		return repository.ErrLinkNotFound
	}
	return nil
}

// Resolve looks up a short code for redirection. Missing codes return
// ErrLinkNotFound and expired links ErrExpired.
func (s *Service) Resolve(ctx context.Context, code string) (*model.Link, error) {
	link, err := s.store.GetLinkByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.Redirects.WithLabelValues(infraPrometheus.RedirectNotFound).Inc()
			return nil, err
		}
		s.metrics.Redirects.WithLabelValues(infraPrometheus.RedirectError).Inc()
		return nil, fmt.Errorf("resolve %q: %w", code, err)
	}

	if link.IsExpired(s.now()) {
		s.metrics.Redirects.WithLabelValues(infraPrometheus.RedirectExpired).Inc()
		return link, ErrExpired
	}

	s.metrics.Redirects.WithLabelValues(infraPrometheus.RedirectFound).Inc()
	return link, nil
}

// RecordVisit hands a successful redirect to the click recorder. It does not
// wait for the writes and never fails.
func (s *Service) RecordVisit(link *model.Link, visit model.Visit) {
	if visit.At.IsZero() {
		visit.At = s.now()
	}
	s.recorder.Record(link, visit)
}

func (s *Service) ownedLink(ctx context.Context, userID, linkID string) (*model.Link, error) {
	link, err := s.store.GetLink(ctx, linkID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load link: %w", err)
	}
	if link.UserID != userID {
		return nil, repository.ErrLinkNotFound
	}
	return link, nil
}

func withStatus(l model.Link, now time.Time) model.LinkWithStatus {
	return model.LinkWithStatus{
		Link:           l,
		IsExpired:      l.IsExpired(now),
		IsExpiringSoon: l.IsExpiringSoon(now),
	}
}

func validateURL(raw string) error {
	if strings.TrimSpace(raw) != raw || raw == "" {
		return ErrInvalidURL
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}
