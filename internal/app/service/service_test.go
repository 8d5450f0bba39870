package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sifan077/linkpulse/internal/app/model"
	"github.com/sifan077/linkpulse/internal/app/repository"
	infraPrometheus "github.com/sifan077/linkpulse/internal/infra/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc      *Service
	store    *repository.MemoryStore
	recorder *DirectRecorder
	metrics  *infraPrometheus.Metrics
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore(nil)
	metrics := infraPrometheus.NewMetrics(nil)
	recorder := NewDirectRecorder(store, nil, metrics)
	f := &fixture{
		store:    store,
		recorder: recorder,
		metrics:  metrics,
		now:      time.Now().UTC(),
	}
	f.svc = New(Deps{
		Store:    store,
		Recorder: recorder,
		Metrics:  metrics,
		Now:      func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) link(t *testing.T, userID string, in CreateLinkInput) *model.Link {
	t.Helper()
	if in.OriginalURL == "" {
		in.OriginalURL = "https://example.com"
	}
	l, err := f.svc.CreateLink(context.Background(), userID, in)
	require.NoError(t, err)
	return l
}

func TestService_CreateLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.link(t, "u1", CreateLinkInput{OriginalURL: "https://example.com"})
	b := f.link(t, "u1", CreateLinkInput{OriginalURL: "https://example.com"})
	assert.Regexp(t, `^[A-Za-z0-9]{7}$`, a.ShortCode)
	assert.NotEqual(t, a.ShortCode, b.ShortCode)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.LinksCreated))

	alias := f.link(t, "u1", CreateLinkInput{CustomAlias: "my-link_1"})
	assert.Equal(t, "my-link_1", alias.ShortCode)

	_, err := f.svc.CreateLink(ctx, "u2", CreateLinkInput{OriginalURL: "https://other.example", CustomAlias: "my-link_1"})
	assert.ErrorIs(t, err, repository.ErrAliasTaken)
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestService_CreateLink_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   CreateLinkInput
	}{
		{name: "empty url", in: CreateLinkInput{}},
		{name: "relative url", in: CreateLinkInput{OriginalURL: "/just/a/path"}},
		{name: "no host", in: CreateLinkInput{OriginalURL: "https://"}},
		{name: "not a url", in: CreateLinkInput{OriginalURL: "not a url"}},
		{name: "padded url", in: CreateLinkInput{OriginalURL: " https://example.com"}},
		{name: "bad alias", in: CreateLinkInput{OriginalURL: "https://example.com", CustomAlias: "has space"}},
		{name: "long alias", in: CreateLinkInput{OriginalURL: "https://example.com", CustomAlias: "abcdefghijklmnopqrstuvwxyz0123456789"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.CreateLink(context.Background(), "u1", tt.in)
			assert.ErrorIs(t, err, ErrValidation)

			links, err := f.svc.ListLinks(context.Background(), "u1")
			require.NoError(t, err)
			assert.Empty(t, links)
		})
	}
}

func TestService_Resolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	past := f.now.Add(-time.Minute)
	future := f.now.Add(time.Hour)

	live := f.link(t, "u1", CreateLinkInput{ExpiresAt: &future})
	expired := f.link(t, "u1", CreateLinkInput{ExpiresAt: &past})

	got, err := f.svc.Resolve(ctx, live.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, live.ID, got.ID)

	_, err = f.svc.Resolve(ctx, expired.ShortCode)
	assert.ErrorIs(t, err, ErrExpired)
	assert.False(t, errors.Is(err, repository.ErrNotFound))

	_, err = f.svc.Resolve(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrLinkNotFound)
	assert.False(t, errors.Is(err, ErrExpired))

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Redirects.WithLabelValues(infraPrometheus.RedirectFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Redirects.WithLabelValues(infraPrometheus.RedirectExpired)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Redirects.WithLabelValues(infraPrometheus.RedirectNotFound)))
}

func TestService_RecordVisit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.link(t, "u1", CreateLinkInput{})

	f.svc.RecordVisit(l, model.Visit{
		IP:        "198.51.100.4",
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Safari/604.1",
		Referrer:  "https://news.example",
	})
	f.recorder.Wait()

	got, err := f.store.GetLink(ctx, l.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.ClickCount)

	clicks, err := f.store.GetClicksForLink(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, clicks, 1)
	require.NotNil(t, clicks[0].Device)
	assert.Equal(t, "Mobile", *clicks[0].Device)
	require.NotNil(t, clicks[0].Referrer)
	assert.Equal(t, "https://news.example", *clicks[0].Referrer)
	assert.True(t, clicks[0].Timestamp.Equal(f.now))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ClicksRecorded))
}

func TestService_RecordVisit_FailuresAreSwallowed(t *testing.T) {
	f := newFixture(t)
	ghost := &model.Link{ID: "404", ShortCode: "gone"}

	assert.NotPanics(t, func() {
		f.svc.RecordVisit(ghost, model.Visit{})
		f.recorder.Wait()
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ClickFailures.WithLabelValues("create_click")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ClickFailures.WithLabelValues("increment")))
}

func TestService_GetLinkDetails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.link(t, "owner", CreateLinkInput{})

	for _, ua := range []string{"Mozilla/5.0 (iPhone)", "Mozilla/5.0 (iPhone)", "Mozilla/5.0 (Windows NT 10.0) Chrome/120.0"} {
		f.svc.RecordVisit(l, model.Visit{UserAgent: ua})
	}
	f.recorder.Wait()

	details, err := f.svc.GetLinkDetails(ctx, "owner", l.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, details.ClickCount)
	assert.False(t, details.IsExpired)
	require.Len(t, details.ClickStats, 7)
	assert.Equal(t, 3, details.ClickStats[6].Count)
	assert.Equal(t, f.now.Format("2006-01-02"), details.ClickStats[6].Date)
	require.Len(t, details.DeviceStats, 2)
	assert.Equal(t, model.DeviceStat{Device: "Mobile", Count: 2, Percentage: 67}, details.DeviceStats[0])
	assert.Equal(t, model.DeviceStat{Device: "Desktop", Count: 1, Percentage: 33}, details.DeviceStats[1])
	assert.NotEmpty(t, details.BrowserStats)
	assert.NotEmpty(t, details.OSStats)

	_, err = f.svc.GetLinkDetails(ctx, "intruder", l.ID)
	assert.ErrorIs(t, err, repository.ErrLinkNotFound)
}

func TestService_DeleteLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.link(t, "owner", CreateLinkInput{})

	err := f.svc.DeleteLink(ctx, "intruder", l.ID)
	assert.ErrorIs(t, err, repository.ErrLinkNotFound)
	_, err = f.svc.Resolve(ctx, l.ShortCode)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteLink(ctx, "owner", l.ID))
	_, err = f.svc.Resolve(ctx, l.ShortCode)
	assert.ErrorIs(t, err, repository.ErrLinkNotFound)
}

func TestService_ListLinks_Status(t *testing.T) {
	f := newFixture(t)
	soon := f.now.Add(48 * time.Hour)
	past := f.now.Add(-time.Hour)

	f.link(t, "u1", CreateLinkInput{ExpiresAt: &soon})
	f.link(t, "u1", CreateLinkInput{ExpiresAt: &past})

	links, err := f.svc.ListLinks(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, links, 2)

	byExpired := map[bool]model.LinkWithStatus{}
	for _, l := range links {
		byExpired[l.IsExpired] = l
	}
	assert.True(t, byExpired[false].IsExpiringSoon)
	assert.False(t, byExpired[true].IsExpiringSoon)
}

func TestService_Stats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	soon := f.now.Add(2 * 24 * time.Hour)
	later := f.now.Add(30 * 24 * time.Hour)
	past := f.now.Add(-24 * time.Hour)

	a := f.link(t, "u1", CreateLinkInput{})
	f.link(t, "u1", CreateLinkInput{ExpiresAt: &soon})
	f.link(t, "u1", CreateLinkInput{ExpiresAt: &later})
	f.link(t, "u1", CreateLinkInput{ExpiresAt: &past})
	f.link(t, "u2", CreateLinkInput{})

	day1 := f.now.Add(-3 * 24 * time.Hour)
	day2 := f.now.Add(-1 * 24 * time.Hour)
	for _, at := range []time.Time{day1, day1, day2} {
		f.svc.RecordVisit(a, model.Visit{At: at, UserAgent: "Mozilla/5.0 (Macintosh) Firefox/120.0"})
	}
	f.recorder.Wait()

	daily, err := f.svc.ClickStats(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.ClickStat{
		{Date: day1.Format("2006-01-02"), Count: 2},
		{Date: day2.Format("2006-01-02"), Count: 1},
	}, daily)

	recent, err := f.svc.RecentClickStats(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, recent, 7)

	devices, err := f.svc.DeviceStats(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.DeviceStat{{Device: "Desktop", Count: 3, Percentage: 100}}, devices)

	dash, err := f.svc.DashboardStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.DashboardStats{TotalLinks: 4, TotalClicks: 3, ActiveLinks: 3, ExpiringLinks: 1}, dash)
}

func TestService_Backend(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "memory", f.svc.Backend())
	assert.NoError(t, f.svc.Ping(context.Background()))
}
