package job

import (
	"context"
	"time"

	"simmarket/internal/config"
	"simmarket/internal/infrastructure/mq"
	"simmarket/internal/model"
	"simmarket/internal/repository"

	"github.com/sirupsen/logrus"
)

// OutboxSender 轮询 outbox 表，把待发送消息投递到 Kafka
type OutboxSender struct {
	outbox    repository.OutboxStore
	publisher mq.Publisher
	cfg       *config.Config
	log       *logrus.Entry
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
}

func NewOutboxSender(outbox repository.OutboxStore, publisher mq.Publisher, cfg *config.Config) *OutboxSender {
	return &OutboxSender{
		outbox:    outbox,
		publisher: publisher,
		cfg:       cfg,
		log:       logrus.WithField("component", "outbox_sender"),
		stopCh:    make(chan struct{}),
		interval:  100 * time.Millisecond,
		batchSize: 100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.log.Info("消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.log.Info("任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) {
	messages, err := s.outbox.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.log.WithError(err).Error("查询消息失败")
		return
	}

	for _, msg := range messages {
		s.sendMessage(ctx, msg)
	}
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	entry := s.log.WithFields(logrus.Fields{
		"id":    msg.ID,
		"event": msg.EventType,
		"key":   msg.MessageKey,
	})

	err := s.publisher.Publish(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.outbox.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); updateErr != nil {
			entry.WithError(updateErr).Error("更新消息状态失败")
		} else {
			entry.Debug("消息发送成功")
		}
		return
	}

	entry.WithError(err).Warn("消息发送失败")

	if err := s.outbox.IncrementRetryCount(ctx, msg.ID); err != nil {
		entry.WithError(err).Error("增加重试次数失败")
	}

	if msg.RetryCount+1 >= s.cfg.Business.MaxRetryCount {
		if err := s.outbox.MarkAsFailed(ctx, msg.ID); err != nil {
			entry.WithError(err).Error("标记消息失败状态失败")
		} else {
			entry.Error("消息超过最大重试次数，标记为失败")
		}
	}
}
