// Package updater drains the command queue and applies board changes to
// task storage. It runs in-process next to the API but only talks to it
// through the queue, so it could be split out into its own deployment
// without code changes.
package updater

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"dataflow-api/domain"
	"dataflow-api/storage"
)

const defaultPollInterval = time.Second

// Store is the queue and table surface the consumer works against.
type Store interface {
	DequeueCommand(ctx context.Context) (*domain.CommandEnvelope, storage.Receipt, error)
	AckCommand(ctx context.Context, r storage.Receipt) error
	UpdateTask(ctx context.Context, accountID, taskID string, patch domain.TaskPatch) error
}

// Consumer polls the command queue and applies each command to storage.
type Consumer struct {
	store    Store
	redis    *redis.Client
	channel  string
	logger   *log.Logger
	interval time.Duration
}

func New(store Store, rc *redis.Client, channel string, logger *log.Logger) *Consumer {
	if channel == "" {
		channel = "board-updates"
	}
	return &Consumer{
		store:    store,
		redis:    rc,
		channel:  channel,
		logger:   logger,
		interval: defaultPollInterval,
	}
}

// Run polls until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("command consumer started")
	for {
		if ctx.Err() != nil {
			return
		}
		env, receipt, err := c.store.DequeueCommand(ctx)
		if err != nil {
			c.logger.Errorf("dequeue failed, err: %v", err)
			if receipt.ID != "" {
				// Malformed message, drop it so it does not loop forever.
				c.ack(ctx, receipt)
				continue
			}
			c.sleep(ctx)
			continue
		}
		if env == nil {
			c.sleep(ctx)
			continue
		}

		if err := c.apply(ctx, env); err != nil {
			// Applying again later will not help for these commands, the
			// board has moved on. Log, ack, continue.
			c.logger.Errorf("apply failed, err: %v, command: %s, account: %s", err, env.Command.ID, env.AccountID)
		}
		c.ack(ctx, receipt)
	}
}

func (c *Consumer) apply(ctx context.Context, env *domain.CommandEnvelope) error {
	cmd := env.Command
	switch cmd.Type {
	case domain.TypeStatusChanged:
		var change domain.TaskChange
		if err := sonic.ConfigStd.Unmarshal(cmd.Data, &change); err != nil {
			return err
		}
		patch := domain.TaskPatch{Status: &change.Status}
		if !change.CompletedDate.IsZero() {
			patch.CompletedDate = &change.CompletedDate
		}
		if err := c.store.UpdateTask(ctx, env.AccountID, change.TaskID, patch); err != nil {
			return err
		}
		c.publish(ctx, domain.BoardEvent{
			AccountID: env.AccountID,
			ProjectID: cmd.ProjectID,
			TaskID:    change.TaskID,
			Status:    change.Status,
		})
		return nil
	default:
		c.logger.Warnf("unknown command type, type: %s, command: %s", cmd.Type, cmd.ID)
		return nil
	}
}

func (c *Consumer) publish(ctx context.Context, ev domain.BoardEvent) {
	if c.redis == nil {
		return
	}
	payload, err := sonic.ConfigStd.Marshal(ev)
	if err != nil {
		c.logger.Errorf("marshal board event, err: %v", err)
		return
	}
	if err := c.redis.Publish(ctx, c.channel, payload).Err(); err != nil {
		c.logger.Errorf("publish board event, err: %v", err)
	}
}

func (c *Consumer) ack(ctx context.Context, r storage.Receipt) {
	if err := c.store.AckCommand(ctx, r); err != nil {
		c.logger.Errorf("ack failed, err: %v, message: %s", err, r.ID)
	}
}

func (c *Consumer) sleep(ctx context.Context) {
	timer := time.NewTimer(c.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
