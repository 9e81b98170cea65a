package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/globle-leaderboard/internal/config"
	"github.com/globle-leaderboard/internal/domain"
	"github.com/globle-leaderboard/internal/outbound"
)

// Dispatcher handles chat events read from the topic
type Dispatcher interface {
	Dispatch(ctx context.Context, ev domain.Event) ([]domain.Intent, error)
}

// Consumer consumes chat event envelopes from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	prefix        string
	dispatcher    Dispatcher
	replies       outbound.Publisher
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer. Messages are classified with
// the command prefix and replies go to the publisher.
func NewConsumer(cfg *config.KafkaConfig, prefix string, dispatcher Dispatcher, replies outbound.Publisher, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		prefix:        prefix,
		dispatcher:    dispatcher,
		replies:       replies,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if err == sarama.ErrClosedConsumerGroup {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	select {
	case <-c.ready:
		c.logger.Info("Kafka consumer ready")
	case <-c.ctx.Done():
		return c.ctx.Err()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// handle decodes one record, runs it through the dispatcher and publishes
// the replies. Undecodable records are logged and skipped.
func (c *Consumer) handle(ctx context.Context, value []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		c.logger.Warn("failed to unmarshal message", "error", err)
		return
	}

	ev, err := env.Event(c.prefix)
	if err != nil {
		c.logger.Warn("invalid chat event", "type", env.Type, "error", err)
		return
	}

	timeout := c.config.HandlerTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	intents, err := c.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		c.logger.Error("failed to dispatch event", "type", ev.EventType(), "error", err)
		return
	}
	if len(intents) == 0 || c.replies == nil {
		return
	}

	if err := outbound.PublishAll(ctx, c.replies, intents); err != nil {
		c.logger.Error("failed to publish replies", "count", len(intents), "error", err)
	}
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a topic partition in order
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil

		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			h.consumer.logger.Debug("chat event received",
				"offset", message.Offset,
				"partition", message.Partition,
			)
			h.consumer.handle(session.Context(), message.Value)
			session.MarkMessage(message, "")
		}
	}
}
