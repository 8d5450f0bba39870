package service

import (
	"context"
	"sync"
	"time"

	"github.com/sifan077/linkpulse/internal/app/model"
	"github.com/sifan077/linkpulse/internal/app/repository"
	"github.com/sifan077/linkpulse/internal/app/useragent"
	infraPrometheus "github.com/sifan077/linkpulse/internal/infra/prometheus"
	"go.uber.org/zap"
)

const clickWriteTimeout = 5 * time.Second

// ClickRecorder persists redirect visits. Record must not block on the
// writes and must not fail the caller.
type ClickRecorder interface {
	Record(link *model.Link, visit model.Visit)
}

// DirectRecorder writes the click and bumps the counter in two detached
// goroutines. The two writes are independent: either can fail without the
// other, and neither is ordered against the redirect response.
type DirectRecorder struct {
	store   repository.Store
	logger  *zap.Logger
	metrics *infraPrometheus.Metrics
	wg      sync.WaitGroup
}

func NewDirectRecorder(store repository.Store, logger *zap.Logger, metrics *infraPrometheus.Metrics) *DirectRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = infraPrometheus.NewMetrics(nil)
	}
	return &DirectRecorder{store: store, logger: logger, metrics: metrics}
}

func (r *DirectRecorder) Record(link *model.Link, visit model.Visit) {
	click := newClick(link.ID, visit)
	linkID := link.ID

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), clickWriteTimeout)
		defer cancel()
		r.createClick(ctx, click)
	}()
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), clickWriteTimeout)
		defer cancel()
		r.increment(ctx, linkID)
	}()
}

// Wait blocks until every write started so far has finished.
func (r *DirectRecorder) Wait() {
	r.wg.Wait()
}

func (r *DirectRecorder) createClick(ctx context.Context, click model.NewClick) {
	if _, err := r.store.CreateClick(ctx, click); err != nil {
		r.metrics.ClickFailures.WithLabelValues("create_click").Inc()
		r.logger.Error("failed to record click",
			zap.String("link_id", click.LinkID),
			zap.Error(err))
		return
	}
	r.metrics.ClicksRecorded.Inc()
}

func (r *DirectRecorder) increment(ctx context.Context, linkID string) {
	if err := r.store.IncrementClickCount(ctx, linkID); err != nil {
		r.metrics.ClickFailures.WithLabelValues("increment").Inc()
		r.logger.Error("failed to increment click count",
			zap.String("link_id", linkID),
			zap.Error(err))
	}
}

// newClick classifies the user agent once, at capture time.
func newClick(linkID string, visit model.Visit) model.NewClick {
	info := useragent.Classify(visit.UserAgent)
	return model.NewClick{
		LinkID:    linkID,
		Timestamp: visit.At,
		IPAddress: visit.IP,
		UserAgent: visit.UserAgent,
		Device:    info.Device,
		Browser:   info.Browser,
		OS:        info.OS,
		Referrer:  visit.Referrer,
	}
}
