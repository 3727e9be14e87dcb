package mq

import (
	"fmt"

	"simmarket/internal/config"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// Publisher OutboxSender 依赖的投递接口
type Publisher interface {
	Publish(topic, key, value string) error
	Close() error
}

// KafkaPublisher 基于 sarama 同步生产者
type KafkaPublisher struct {
	producer sarama.SyncProducer
}

func NewProducerConfig() *sarama.Config {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	kafkaConfig.Producer.Retry.Max = 3                    // 重试次数
	kafkaConfig.Producer.Return.Successes = true          // 返回成功消息
	return kafkaConfig
}

// NewKafkaPublisher 创建 Kafka 生产者
func NewKafkaPublisher(cfg *config.KafkaConfig) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}

	logrus.WithField("brokers", cfg.Brokers).Info("Kafka 生产者创建成功")
	return NewKafkaPublisherWithProducer(producer), nil
}

func NewKafkaPublisherWithProducer(producer sarama.SyncProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

// Publish 发送消息到 Kafka，key 决定分区
func (p *KafkaPublisher) Publish(topic, key, value string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.StringEncoder(value),
	}

	_, _, err := p.producer.SendMessage(msg)
	return err
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
