package service

import (
	"context"
	"fmt"

	"github.com/sifan077/linkpulse/internal/app/analytics"
	"github.com/sifan077/linkpulse/internal/app/model"
)

// ClickStats returns one entry per day that has clicks, oldest first.
func (s *Service) ClickStats(ctx context.Context, linkID string) ([]model.ClickStat, error) {
	clicks, err := s.store.GetClicksForLink(ctx, linkID)
	if err != nil {
		return nil, fmt.Errorf("click stats: %w", err)
	}
	return analytics.DailyCounts(clicks), nil
}

// RecentClickStats returns exactly one entry for each of the last seven days.
func (s *Service) RecentClickStats(ctx context.Context, linkID string) ([]model.ClickStat, error) {
	clicks, err := s.store.GetClicksForLink(ctx, linkID)
	if err != nil {
		return nil, fmt.Errorf("recent click stats: %w", err)
	}
	return analytics.DailyWindow(clicks, s.now(), analytics.RecentDays), nil
}

func (s *Service) DeviceStats(ctx context.Context, linkID string) ([]model.DeviceStat, error) {
	clicks, err := s.store.GetClicksForLink(ctx, linkID)
	if err != nil {
		return nil, fmt.Errorf("device stats: %w", err)
	}
	return analytics.DeviceBreakdown(clicks), nil
}

// DashboardStats rolls up every link the user owns.
func (s *Service) DashboardStats(ctx context.Context, userID string) (model.DashboardStats, error) {
	links, err := s.store.GetLinksForUser(ctx, userID)
	if err != nil {
		return model.DashboardStats{}, fmt.Errorf("dashboard stats: %w", err)
	}
	return analytics.Dashboard(links, s.now()), nil
}
