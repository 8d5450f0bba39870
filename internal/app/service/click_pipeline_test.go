package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/linkpulse/internal/app/model"
	"github.com/sifan077/linkpulse/internal/app/repository"
	infraPrometheus "github.com/sifan077/linkpulse/internal/infra/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJetStream struct {
	mu       sync.Mutex
	err      error
	subjects []string
	payloads [][]byte
}

func (f *fakeJetStream) Publish(subj string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subj)
	f.payloads = append(f.payloads, data)
	if f.err != nil {
		return nil, f.err
	}
	return &nats.PubAck{Stream: model.ClickStreamName}, nil
}

func (f *fakeJetStream) published() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

type chanRecorder chan *model.Link

func (c chanRecorder) Record(link *model.Link, _ model.Visit) { c <- link }

func TestClickPublisher_Publishes(t *testing.T) {
	js := &fakeJetStream{}
	fallback := make(chanRecorder, 1)
	pub := NewClickPublisher(js, fallback, nil)
	at := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

	pub.Record(&model.Link{ID: "7", ShortCode: "abc1234"}, model.Visit{IP: "192.0.2.1", UserAgent: "curl/8.0", At: at})

	require.Eventually(t, func() bool { return js.published() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, model.ClickStreamSubject, js.subjects[0])

	var event model.ClickEvent
	require.NoError(t, json.Unmarshal(js.payloads[0], &event))
	assert.Equal(t, "7", event.LinkID)
	assert.Equal(t, "abc1234", event.LinkCode)
	assert.Equal(t, "192.0.2.1", event.IP)
	assert.True(t, event.Timestamp.Equal(at))
	assert.NotEmpty(t, event.ID)
	assert.Empty(t, fallback)
}

func TestClickPublisher_FallsBackOnError(t *testing.T) {
	js := &fakeJetStream{err: nats.ErrNoResponders}
	fallback := make(chanRecorder, 1)
	pub := NewClickPublisher(js, fallback, nil)
	link := &model.Link{ID: "7", ShortCode: "abc1234"}

	pub.Record(link, model.Visit{})
	pub.Wait()

	select {
	case got := <-fallback:
		assert.Same(t, link, got)
	default:
		t.Fatal("fallback recorder was not called before Wait returned")
	}
}

type idleSubscription struct {
	mu           sync.Mutex
	fetches      int
	unsubscribed bool
}

func (s *idleSubscription) Fetch(int, ...nats.PullOpt) ([]*nats.Msg, error) {
	s.mu.Lock()
	s.fetches++
	s.mu.Unlock()
	time.Sleep(time.Millisecond)
	return nil, nats.ErrTimeout
}

func (s *idleSubscription) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribed = true
	return nil
}

func TestClickConsumer_WaitAfterCancel(t *testing.T) {
	consumer := NewClickConsumer(nil, nil, repository.NewMemoryStore(nil), nil)
	consumer.Wait()

	ctx, cancel := context.WithCancel(context.Background())
	sub := &idleSubscription{}
	consumer.run(ctx, sub)
	require.Eventually(t, func() bool {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		return sub.fetches > 0
	}, time.Second, time.Millisecond)

	cancel()
	done := make(chan struct{})
	go func() {
		consumer.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop after cancel")
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	assert.True(t, sub.unsubscribed)
}

func TestClickConsumer_Handle(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(nil)
	metrics := infraPrometheus.NewMetrics(nil)
	consumer := NewClickConsumer(nil, nil, store, metrics)

	l, err := store.CreateLink(ctx, model.NewLink{UserID: "u1", OriginalURL: "https://example.com"}, false)
	require.NoError(t, err)

	at := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	data, err := json.Marshal(model.ClickEvent{
		ID:        "evt-1",
		LinkID:    l.ID,
		LinkCode:  l.ShortCode,
		UserAgent: "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) Safari/604.1",
		Timestamp: at,
	})
	require.NoError(t, err)

	require.NoError(t, consumer.handle(ctx, data))

	clicks, err := store.GetClicksForLink(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, clicks, 1)
	require.NotNil(t, clicks[0].Device)
	assert.Equal(t, "Tablet", *clicks[0].Device)
	assert.True(t, clicks[0].Timestamp.Equal(at))

	got, err := store.GetLink(ctx, l.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.ClickCount)
}

func TestClickConsumer_HandleDrops(t *testing.T) {
	consumer := NewClickConsumer(nil, nil, repository.NewMemoryStore(nil), nil)

	err := consumer.handle(context.Background(), []byte("{not json"))
	assert.True(t, errors.Is(err, errDropEvent))

	data, err := json.Marshal(model.ClickEvent{ID: "evt-2", LinkID: "deleted"})
	require.NoError(t, err)
	err = consumer.handle(context.Background(), data)
	assert.True(t, errors.Is(err, errDropEvent))
}
