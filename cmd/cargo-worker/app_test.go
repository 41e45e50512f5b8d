package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/CargoDesk/config"
	"github.com/BearBump/CargoDesk/internal/broker/messages"
	"github.com/BearBump/CargoDesk/internal/cache"
	"github.com/BearBump/CargoDesk/internal/integrations/mailrelay"
	"github.com/BearBump/CargoDesk/internal/models"
	"github.com/BearBump/CargoDesk/internal/services/notifier"
	"github.com/BearBump/CargoDesk/internal/services/sweep"
	"github.com/BearBump/CargoDesk/internal/storage/memstore"
	"github.com/stretchr/testify/require"
)

// fakeConsumer delivers its messages once and then blocks until cancelled.
type fakeConsumer struct {
	msgs [][]byte
}

func (c *fakeConsumer) Consume(ctx context.Context, handler func(ctx context.Context, key, value []byte) error) error {
	for _, m := range c.msgs {
		if err := handler(ctx, nil, m); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *recordingMailer) Send(_ context.Context, to, subject, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to+"|"+subject)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type noopPublisher struct{}

func (noopPublisher) PublishEvent(context.Context, messages.DomainEvent) error { return nil }

func testFactories(st *memstore.Store, consumer eventConsumer, mailer notifier.Mailer, closed *bool) workerFactories {
	return workerFactories{
		newStorage: func(*config.Config) (workerStore, func(), error) {
			return st, func() { *closed = true }, nil
		},
		newConsumer: func(*config.Config) (eventConsumer, func()) { return consumer, nil },
		newProducer: func(*config.Config) (sweep.EventPublisher, func()) { return noopPublisher{}, nil },
		newRateLimiter: func(*config.Config) notifier.RateLimiter {
			return nil
		},
		newMailer:     func(*config.Config) notifier.Mailer { return mailer },
		newGroupCache: func(*config.Config) (cache.BytesCache, func()) { return nil, nil },
	}
}

func TestDefaultWorkerFactories_NonNil(t *testing.T) {
	f := defaultWorkerFactories()
	cfg := &config.Config{
		Kafka: config.KafkaConfig{Host: "localhost", Port: 9092},
		Redis: config.RedisConfig{Host: "localhost", Port: 6379},
	}
	c, closeC := f.newConsumer(cfg)
	require.NotNil(t, c)
	closeC()
	p, closeP := f.newProducer(cfg)
	require.NotNil(t, p)
	closeP()
	require.NotNil(t, f.newRateLimiter(cfg))
	require.IsType(t, notifier.LogMailer{}, f.newMailer(cfg))
	gc, closeG := f.newGroupCache(cfg)
	require.NotNil(t, gc)
	closeG()

	cfg.CargoDesk.MailRelayURL = "http://relay:9025"
	require.IsType(t, &mailrelay.Client{}, f.newMailer(cfg))
}

func TestRunCargoWorker_ContextCanceled(t *testing.T) {
	closed := false
	f := testFactories(memstore.New(), &fakeConsumer{}, &recordingMailer{}, &closed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunCargoWorker(ctx, &config.Config{}, f, workerRunOpts{httpAddr: "127.0.0.1:0"})
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, closed)
}

func TestRunCargoWorker_NotifiesAndSweepsOnTrigger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := memstore.New()
	user := &models.User{Username: "kofi", Email: "kofi@example.com", Role: models.RoleUser, Status: models.UserStatusActive, NotifyEmail: true, NotifyOrderUpdates: true}
	require.NoError(t, st.CreateUser(ctx, user))
	require.NoError(t, st.CreateShippingMark(ctx, &models.ShippingMark{OwnerID: user.ID, MarkID: "M856-FIM123"}))
	row := &models.Tracking{TrackingNumber: "T1", ShippingMark: "M856-FIM123"}
	require.NoError(t, st.CreateTracking(ctx, row))

	welcome, err := messages.UserRegistered(user.ID).Encode()
	require.NoError(t, err)
	mailer := &recordingMailer{}
	closed := false
	f := testFactories(st, &fakeConsumer{msgs: [][]byte{welcome, []byte("not json")}}, mailer, &closed)

	cfg := &config.Config{CargoDesk: config.CargoDeskConfig{SweepIntervalSeconds: 3600, SiteName: "CargoDesk"}}
	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- RunCargoWorker(ctx, cfg, f, workerRunOpts{
			httpAddr: "127.0.0.1:0",
			onListen: func(addr string) { addrCh <- addr },
		})
	}()
	base := "http://" + <-addrCh

	require.Eventually(t, func() bool { return mailer.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(base+"/trigger", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		got, err := st.GetTrackingByID(ctx, row.ID)
		return err == nil && got.OwnerID != nil && *got.OwnerID == user.ID
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/stats")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var s sweep.Stats
		return json.NewDecoder(resp.Body).Decode(&s) == nil && s.TotalRuns == 1 && s.TotalMatched == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	require.True(t, closed)
}

func TestWorkerRouter(t *testing.T) {
	sched := sweep.NewScheduler(sweep.NewUnassignedSweeper(memstore.New(), nil, nil), time.Hour, false)
	cfg := &config.Config{CargoDesk: config.CargoDeskConfig{SweepIntervalSeconds: 60}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addrCh := make(chan string, 1)
	go func() {
		_ = runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:  "127.0.0.1:0",
			onListen:  func(a string) { addrCh <- a },
			scheduler: sched,
			ready:     func(context.Context) error { return context.DeadlineExceeded },
			cfg:       cfg,
		})
	}()
	base := "http://" + <-addrCh

	for path, want := range map[string]int{
		"/healthz": http.StatusOK,
		"/readyz":  http.StatusServiceUnavailable,
		"/stats":   http.StatusOK,
		"/config":  http.StatusOK,
		"/metrics": http.StatusOK,
	} {
		resp, err := http.Get(base + path)
		require.NoError(t, err, path)
		_ = resp.Body.Close()
		require.Equal(t, want, resp.StatusCode, path)
	}

	resp, err := http.Post(base+"/trigger", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.NotNil(t, sched.Stats().LastTriggerAt)
}
