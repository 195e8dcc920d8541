package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"dataflow-api/domain"
)

type backend interface {
	ListTasks(ctx context.Context, accountID, projectID string) ([]domain.Task, error)
	InsertTask(ctx context.Context, accountID string, t domain.Task) error
	UpdateTask(ctx context.Context, accountID, taskID string, patch domain.TaskPatch) error
	DeleteTask(ctx context.Context, accountID, taskID string) error
	ListProjects(ctx context.Context, accountID string) ([]domain.Project, error)
	InsertProject(ctx context.Context, p domain.Project) error
	DeleteProject(ctx context.Context, accountID, projectID string) error
	EnqueueCommands(ctx context.Context, accountID string, cmds []domain.Command) error
}

// Cache wraps a Storage instance with Redis-backed caching for the task and
// project list reads. Writes evict the account's cached entries; Redis
// failures fall back to the base storage without surfacing an error.
type Cache struct {
	*Storage
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis client
// and TTL. A zero TTL disables cache writes but still evicts.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	c := &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

func (c *Cache) ListTasks(ctx context.Context, accountID, projectID string) ([]domain.Task, error) {
	key := tasksCacheKey(accountID, projectID)
	if tasks, ok := loadCached[[]domain.Task](ctx, c.redis, key); ok {
		return tasks, nil
	}

	tasks, err := c.base.ListTasks(ctx, accountID, projectID)
	if err != nil {
		return nil, err
	}

	c.store(ctx, key, tasks)
	return tasks, nil
}

func (c *Cache) ListProjects(ctx context.Context, accountID string) ([]domain.Project, error) {
	key := projectsCacheKey(accountID)
	if projects, ok := loadCached[[]domain.Project](ctx, c.redis, key); ok {
		return projects, nil
	}

	projects, err := c.base.ListProjects(ctx, accountID)
	if err != nil {
		return nil, err
	}

	c.store(ctx, key, projects)
	return projects, nil
}

func (c *Cache) InsertTask(ctx context.Context, accountID string, t domain.Task) error {
	if err := c.base.InsertTask(ctx, accountID, t); err != nil {
		return err
	}
	c.evictTasks(ctx, accountID, t.ProjectID)
	return nil
}

func (c *Cache) UpdateTask(ctx context.Context, accountID, taskID string, patch domain.TaskPatch) error {
	if err := c.base.UpdateTask(ctx, accountID, taskID, patch); err != nil {
		return err
	}
	c.evictAccount(ctx, accountID)
	return nil
}

func (c *Cache) DeleteTask(ctx context.Context, accountID, taskID string) error {
	if err := c.base.DeleteTask(ctx, accountID, taskID); err != nil {
		return err
	}
	c.evictAccount(ctx, accountID)
	return nil
}

func (c *Cache) InsertProject(ctx context.Context, p domain.Project) error {
	if err := c.base.InsertProject(ctx, p); err != nil {
		return err
	}
	c.evict(ctx, projectsCacheKey(p.Owner))
	return nil
}

func (c *Cache) DeleteProject(ctx context.Context, accountID, projectID string) error {
	if err := c.base.DeleteProject(ctx, accountID, projectID); err != nil {
		return err
	}
	c.evict(ctx, projectsCacheKey(accountID), tasksCacheKey(accountID, projectID))
	return nil
}

func (c *Cache) EnqueueCommands(ctx context.Context, accountID string, cmds []domain.Command) error {
	if err := c.base.EnqueueCommands(ctx, accountID, cmds); err != nil {
		return err
	}
	c.evictAccount(ctx, accountID)
	return nil
}

func loadCached[T any](ctx context.Context, client *redis.Client, key string) (T, bool) {
	var zero T
	if client == nil {
		return zero, false
	}
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = client.Del(ctx, key).Err()
		}
		return zero, false
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		_ = client.Del(ctx, key).Err()
		return zero, false
	}
	return out, true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, keys ...string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}

// evictTasks drops the task cache of a single project.
func (c *Cache) evictTasks(ctx context.Context, accountID, projectID string) {
	c.evict(ctx, tasksCacheKey(accountID, projectID))
}

// evictAccount drops every task cache of the account. Task writes do not
// always know the project id (queue commands carry it inside the payload),
// so the whole prefix goes.
func (c *Cache) evictAccount(ctx context.Context, accountID string) {
	if c.redis == nil {
		return
	}
	var cursor uint64
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, tasksCacheKey(accountID, "*"), 64).Result()
		if err != nil {
			return
		}
		if len(keys) > 0 {
			_ = c.redis.Del(ctx, keys...).Err()
		}
		if next == 0 {
			return
		}
		cursor = next
	}
}

func tasksCacheKey(accountID, projectID string) string {
	return "tasks:" + accountID + ":" + projectID
}

func projectsCacheKey(accountID string) string {
	return "projects:" + accountID
}
