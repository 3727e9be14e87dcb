package job

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"simmarket/internal/config"
	"simmarket/internal/model"
	"simmarket/internal/repository"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logrus.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type stubPublisher struct {
	mu   sync.Mutex
	fail bool
	sent []string
}

func (p *stubPublisher) Publish(topic, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, key)
	return nil
}

func (p *stubPublisher) Close() error { return nil }

func appendMessages(t *testing.T, store *repository.MemoryStore, keys ...string) {
	for _, key := range keys {
		require.NoError(t, store.AppendOutbox(context.Background(), &model.OutboxMessage{
			MessageKey: key,
			EventType:  model.EventBidPlaced,
			Topic:      "sim_market_events",
			Payload:    "{}",
			Status:     model.OutboxStatusPending,
		}))
	}
}

func TestOutboxSenderMarksSent(t *testing.T) {
	store := repository.NewMemoryStore()
	appendMessages(t, store, "a", "b")
	pub := &stubPublisher{}

	sender := NewOutboxSender(store, pub, &config.Config{})
	sender.processPendingMessages(context.Background())

	assert.Equal(t, []string{"a", "b"}, pub.sent)
	pending, err := store.GetPendingMessages(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxSenderRetriesThenFails(t *testing.T) {
	store := repository.NewMemoryStore()
	appendMessages(t, store, "a")
	pub := &stubPublisher{fail: true}

	cfg := &config.Config{}
	cfg.Business.MaxRetryCount = 2
	sender := NewOutboxSender(store, pub, cfg)

	sender.processPendingMessages(context.Background())
	pending, err := store.GetPendingMessages(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].RetryCount)

	sender.processPendingMessages(context.Background())
	pending, err = store.GetPendingMessages(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "超过最大重试次数后不再发送")
}

func TestOutboxSenderStops(t *testing.T) {
	sender := NewOutboxSender(repository.NewMemoryStore(), &stubPublisher{}, &config.Config{})
	done := make(chan struct{})
	go func() {
		sender.Start(context.Background())
		close(done)
	}()
	sender.Stop()
	<-done
}

func TestHoldReconcileDetectsMismatch(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()

	good := &model.User{Name: "good", Role: model.RoleBuyer, BlockedBalance: 500}
	bad := &model.User{Name: "bad", Role: model.RoleBuyer, BlockedBalance: 900}
	require.NoError(t, store.CreateUser(ctx, good))
	require.NoError(t, store.CreateUser(ctx, bad))
	require.NoError(t, store.SaveHold(ctx, &model.Hold{ListingID: "l1", UserID: good.ID, Amount: 500, Status: model.HoldStatusActive}))
	require.NoError(t, store.SaveHold(ctx, &model.Hold{ListingID: "l2", UserID: bad.ID, Amount: 400, Status: model.HoldStatusActive}))

	job := NewHoldReconcileJob(store, "@every 1m")
	mismatches := job.Reconcile(ctx)

	require.Len(t, mismatches, 1)
	assert.Equal(t, Mismatch{UserID: bad.ID, BlockedBalance: 900, ActiveHolds: 400}, mismatches[0])

	// 只读：不修正数据
	u, err := store.GetUser(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(900), u.BlockedBalance)
}

func TestHoldReconcileFindsHoldWithoutBlockedBalance(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()

	idle := &model.User{Name: "idle", Role: model.RoleBuyer}
	orphan := &model.User{Name: "orphan", Role: model.RoleBuyer}
	require.NoError(t, store.CreateUser(ctx, idle))
	require.NoError(t, store.CreateUser(ctx, orphan))
	require.NoError(t, store.SaveHold(ctx, &model.Hold{ListingID: "l1", UserID: orphan.ID, Amount: 300, Status: model.HoldStatusActive}))
	require.NoError(t, store.SaveHold(ctx, &model.Hold{ListingID: "l2", UserID: idle.ID, Amount: 100, Status: model.HoldStatusReleased}))

	mismatches := NewHoldReconcileJob(store, "@every 1m").Reconcile(ctx)

	require.Len(t, mismatches, 1)
	assert.Equal(t, Mismatch{UserID: orphan.ID, BlockedBalance: 0, ActiveHolds: 300}, mismatches[0])
}

func TestOutboxSenderPrunesSentMessages(t *testing.T) {
	store := repository.NewMemoryStore()
	appendMessages(t, store, "a", "b")

	sender := NewOutboxSender(store, &stubPublisher{}, &config.Config{})
	sender.processPendingMessages(context.Background())

	assert.Zero(t, store.OutboxLen())
}

func TestHoldReconcileRejectsBadSpec(t *testing.T) {
	job := NewHoldReconcileJob(repository.NewMemoryStore(), "not a cron spec")
	assert.Error(t, job.Start())

	ok := NewHoldReconcileJob(repository.NewMemoryStore(), "@every 1h")
	require.NoError(t, ok.Start())
	<-ok.Stop().Done()
}
