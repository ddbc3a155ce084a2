// Package clicksource feeds map clicks published on a Kafka topic into the
// watershed orchestrator.
package clicksource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/watershed-gateway/internal/core/model"
	"github.com/mohammed-shakir/watershed-gateway/internal/logger"
	"github.com/mohammed-shakir/watershed-gateway/internal/watershed"
)

// Click is the message payload: an id plus the selected point
type Click struct {
	ID string `json:"id,omitempty"`
	model.Point
}

type Sink interface {
	OnPointSelected(ctx context.Context, pt model.Point) watershed.Dispatch
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	sink   Sink

	mu   sync.Mutex
	seen *lru.Cache[string, struct{}]
}

func New(cfg Config, logger *slog.Logger, sink Sink) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	size := cfg.DedupeSize
	if size <= 0 {
		size = 4096
	}
	seen, _ := lru.New[string, struct{}](size)
	return &Consumer{cfg: cfg, logger: logger, sink: sink, seen: seen}
}

// Start consumes clicks until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	if c.sink == nil {
		return errors.New("clicksource: missing sink")
	}
	if len(c.cfg.Brokers) == 0 {
		return errors.New("clicksource: no brokers configured")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}
	c.logger.Info("kafka click source starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("kafka click source shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.logger.Error("consumer error", "err", err, "topic", c.cfg.Topic)
				select {
				case <-ctx.Done():
				case <-time.After(2 * time.Second):
				}
			}
		}
	}
}

// ProcessOne decodes a click and dispatches it. Malformed clicks are logged
// and skipped so they do not block the partition.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var click Click
	if err := json.Unmarshal(msg.Value, &click); err != nil {
		c.logger.WarnContext(ctx, "skip undecodable click",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := click.Validate(); err != nil {
		c.logger.WarnContext(ctx, "skip invalid click", "offset", msg.Offset, "err", err)
		return nil
	}
	if click.ID != "" && !c.firstSeen(click.ID) {
		c.logger.DebugContext(ctx, "duplicate click", "id", click.ID)
		return nil
	}

	ctx = logger.WithRequestID(ctx, click.ID)
	d := c.sink.OnPointSelected(ctx, click.Point)
	c.logger.DebugContext(ctx, "click dispatched", "point", click.Point.String(), "dispatch", d.String())
	return nil
}

func (c *Consumer) firstSeen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen.Contains(id) {
		return false
	}
	c.seen.Add(id, struct{}{})
	return true
}
