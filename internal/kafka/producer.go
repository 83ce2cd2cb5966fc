package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Producer buffers messages in an inbox drained by one writer goroutine, so a
// caller never waits on the broker.
type Producer struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	timeout time.Duration
	log     zerolog.Logger

	stop     chan struct{}
	stopOnce sync.Once
	closeCh  chan struct{}
}

// NewProducer returns a producer for topic. Publish waits at most
// enqueueTimeout for room in the inbox before dropping a message.
func NewProducer(brokers []string, topic string, buf int, enqueueTimeout time.Duration, log zerolog.Logger) *Producer {
	p := &Producer{
		inbox:   make(chan kafka.Message, buf),
		timeout: enqueueTimeout,
		log:     log.With().Str("topic", topic).Logger(),
		stop:    make(chan struct{}),
		closeCh: make(chan struct{}),
	}
	p.w = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		Completion:   p.completed,
	}
	return p
}

func (p *Producer) completed(msgs []kafka.Message, err error) {
	if err != nil {
		p.log.Error().Err(err).Int("messages", len(msgs)).Msg("kafka write failed")
	}
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				p.flush()
				return
			case <-p.stop:
				p.flush()
				return
			case m := <-p.inbox:
				p.write(m)
			}
		}
	}()
}

func (p *Producer) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		p.log.Error().Err(err).Str("key", string(m.Key)).Msg("kafka enqueue failed")
	}
}

// flush writes what is still buffered and closes the writer.
func (p *Producer) flush() {
	for {
		select {
		case m := <-p.inbox:
			p.write(m)
		default:
			if err := p.w.Close(); err != nil {
				p.log.Error().Err(err).Msg("close kafka writer")
			}
			return
		}
	}
}

// Publish enqueues one message. It reports false when the message was dropped
// because the producer is closed or the inbox stayed full.
func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) bool {
	select {
	case <-p.stop:
		return false
	default:
	}
	m := kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
	t := time.NewTimer(p.timeout)
	defer t.Stop()
	select {
	case p.inbox <- m:
		return true
	case <-p.stop:
		return false
	case <-t.C:
		return false
	}
}

// Close stops accepting messages; the writer goroutine flushes and exits.
func (p *Producer) Close() { p.stopOnce.Do(func() { close(p.stop) }) }

// WaitClosed blocks until the writer goroutine is done.
func (p *Producer) WaitClosed() { <-p.closeCh }
