package service

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sifan077/linkpulse/internal/app/model"
	"go.uber.org/zap"
)

// jetStreamPublisher is the part of nats.JetStreamContext the publisher uses.
type jetStreamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// ClickPublisher publishes click events to NATS JetStream. When a publish
// fails the visit goes to the fallback recorder instead.
type ClickPublisher struct {
	js       jetStreamPublisher
	fallback ClickRecorder
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewClickPublisher creates a new click event publisher
func NewClickPublisher(js jetStreamPublisher, fallback ClickRecorder, logger *zap.Logger) *ClickPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClickPublisher{js: js, fallback: fallback, logger: logger}
}

// Record publishes in the background.
func (p *ClickPublisher) Record(link *model.Link, visit model.Visit) {
	event := model.ClickEvent{
		ID:        uuid.New().String(),
		LinkID:    link.ID,
		LinkCode:  link.ShortCode,
		IP:        visit.IP,
		UserAgent: visit.UserAgent,
		Referrer:  visit.Referrer,
		Timestamp: visit.At,
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.publish(event); err != nil {
			p.logger.Warn("click publish failed, recording directly",
				zap.String("link_code", event.LinkCode),
				zap.Error(err))
			if p.fallback != nil {
				p.fallback.Record(link, visit)
			}
		}
	}()
}

// Wait blocks until every publish started so far has finished, including any
// hand-off to the fallback recorder.
func (p *ClickPublisher) Wait() {
	p.wg.Wait()
}

func (p *ClickPublisher) publish(event model.ClickEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(model.ClickStreamSubject, data, nats.MsgId(event.ID))
	return err
}
