package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"nurse-handover/backend/internal/models"
)

// Publisher delivers handover status events to one destination.
type Publisher interface {
	Publish(ctx context.Context, ev models.StatusEvent) error
}

type PublisherFunc func(ctx context.Context, ev models.StatusEvent) error

func (f PublisherFunc) Publish(ctx context.Context, ev models.StatusEvent) error {
	return f(ctx, ev)
}

// MultiPublisher fans an event out to every destination. A failing
// destination does not stop the others.
type MultiPublisher struct {
	pubs []Publisher
	log  zerolog.Logger
}

func NewMultiPublisher(log zerolog.Logger, pubs ...Publisher) *MultiPublisher {
	return &MultiPublisher{pubs: pubs, log: log.With().Str("component", "events").Logger()}
}

func (m *MultiPublisher) Add(p Publisher) {
	m.pubs = append(m.pubs, p)
}

func (m *MultiPublisher) Publish(ctx context.Context, ev models.StatusEvent) error {
	var failed []error
	for _, p := range m.pubs {
		if err := p.Publish(ctx, ev); err != nil {
			m.log.Warn().Err(err).Int64("handover_id", ev.HandoverID).Str("status", string(ev.Status)).Msg("publish failed")
			failed = append(failed, err)
		}
	}
	return errors.Join(failed...)
}

// Close closes every destination that holds resources.
func (m *MultiPublisher) Close() error {
	var failed []error
	for _, p := range m.pubs {
		if c, ok := p.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				failed = append(failed, err)
			}
		}
	}
	return errors.Join(failed...)
}

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by handover id, so one handover's
// events stay ordered within a partition.
type KafkaPublisher struct {
	writer MessageWriter
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.Hash{},
	})
}

func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (k *KafkaPublisher) Publish(ctx context.Context, ev models.StatusEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.HandoverID, 10)),
		Value: value,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}

// SQSAPI is the part of *sqs.Client the publisher uses.
type SQSAPI interface {
	GetQueueUrl(ctx context.Context, in *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type SQSPublisher struct {
	client   SQSAPI
	queueURL string
}

func NewSQSClient(cfg aws.Config) *sqs.Client {
	return sqs.New(sqs.Options{
		Region:       cfg.Region,
		Credentials:  cfg.Credentials,
		HTTPClient:   cfg.HTTPClient,
		BaseEndpoint: cfg.BaseEndpoint,
	})
}

// NewSQSPublisher resolves queueName once up front.
func NewSQSPublisher(ctx context.Context, client SQSAPI, queueName string) (*SQSPublisher, error) {
	resp, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(queueName)})
	if err != nil {
		return nil, fmt.Errorf("get sqs queue url: %w", err)
	}
	return &SQSPublisher{client: client, queueURL: aws.ToString(resp.QueueUrl)}, nil
}

func (s *SQSPublisher) Publish(ctx context.Context, ev models.StatusEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sqs send: %w", err)
	}
	return nil
}
