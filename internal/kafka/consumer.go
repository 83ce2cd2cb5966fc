package kafka

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Handler returns nil only when the message is done with and its offset may
// be committed.
type Handler func(ctx context.Context, m kafka.Message) error

// Reader is the part of *kafka.Reader the consumer drives.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r       Reader
	workers int
	log     zerolog.Logger
}

func NewConsumer(brokers []string, group, topic string, workers int, log zerolog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // commit synchronously after each handled message
	})
	return newConsumer(r, workers, log.With().Str("topic", topic).Str("group", group).Logger())
}

func newConsumer(r Reader, workers int, log zerolog.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, log: log}
}

// Start fetches messages and hands them to a pool of workers until ctx is
// done. Every partition is owned by one worker, so its messages are handled
// and committed in offset order. It returns nil on shutdown and the fetch
// error otherwise.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	lanes := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 16)
		wg.Add(1)
		go func(id int, jobs <-chan kafka.Message) {
			defer wg.Done()
			for m := range jobs {
				c.handle(ctx, id, h, m)
			}
		}(i, lanes[i])
	}

	err := c.fetch(ctx, lanes)
	for _, l := range lanes {
		close(l)
	}
	wg.Wait()
	return err
}

func (c *Consumer) fetch(ctx context.Context, lanes []chan kafka.Message) error {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		select {
		case lanes[lane(m.Partition, len(lanes))] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

func lane(partition, n int) int {
	if partition < 0 {
		partition = -partition
	}
	return partition % n
}

func (c *Consumer) handle(ctx context.Context, worker int, h Handler, m kafka.Message) {
	l := c.log.With().Int("worker", worker).Int("partition", m.Partition).Int64("offset", m.Offset).Logger()
	if err := h(ctx, m); err != nil {
		l.Warn().Err(err).Msg("handler failed, offset not committed")
		return
	}
	if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		l.Error().Err(err).Msg("commit offset")
	}
}
