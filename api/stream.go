package api

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"dataflow-api/domain"
)

// Stream pushes board snapshots to connected clients over SSE. Board change
// events arrive on a redis channel; each event wakes the subscribers of the
// affected account, which then re-read the board and emit a fresh snapshot.
type Stream struct {
	store   Storage
	redis   *redis.Client
	channel string
	logger  *log.Logger

	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func NewStream(store Storage, rc *redis.Client, channel string, logger *log.Logger) *Stream {
	if channel == "" {
		channel = "board-updates"
	}
	return &Stream{
		store:   store,
		redis:   rc,
		channel: channel,
		logger:  logger,
		subs:    make(map[string]map[chan struct{}]struct{}),
	}
}

// Run consumes the update channel until ctx is cancelled. Call it from a
// goroutine at startup.
func (s *Stream) Run(ctx context.Context) {
	sub := s.redis.Subscribe(ctx, s.channel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				s.logger.Error("update subscription channel closed")
				return
			}
			var ev domain.BoardEvent
			if err := sonic.UnmarshalString(msg.Payload, &ev); err != nil {
				s.logger.Errorf("unable to parse board event, err: %v", err)
				continue
			}
			s.notify(ev.AccountID)
		}
	}
}

func (s *Stream) subscribe(accountID string) chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	set, ok := s.subs[accountID]
	if !ok {
		set = make(map[chan struct{}]struct{})
		s.subs[accountID] = set
	}
	set[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *Stream) unsubscribe(accountID string, ch chan struct{}) {
	s.mu.Lock()
	if set, ok := s.subs[accountID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(s.subs, accountID)
		}
	}
	s.mu.Unlock()
}

func (s *Stream) notify(accountID string) {
	s.mu.Lock()
	for ch := range s.subs[accountID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	s.mu.Unlock()
}

// Handler streams column snapshots for one project. EventSource cannot set
// headers, so the bearer token may also arrive as a query parameter.
func (s *Stream) Handler(auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" {
			if token := c.QueryParam("token"); token != "" {
				authHeader = "Bearer " + token
			}
		}
		accountID, err := auth.AccountIDFromAuthHeader(authHeader)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		projectID := strings.TrimSpace(c.QueryParam("projectId"))
		if projectID == "" {
			return c.String(http.StatusBadRequest, "projectId is required")
		}

		h := c.Response().Header()
		h.Set(echo.HeaderContentType, "text/event-stream")
		h.Set(echo.HeaderCacheControl, "no-cache")
		h.Set(echo.HeaderConnection, "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		ctx := c.Request().Context()
		ch := s.subscribe(accountID)
		defer s.unsubscribe(accountID, ch)

		for {
			tasks, err := s.store.ListTasks(ctx, accountID, projectID)
			if err != nil {
				c.Logger().Error(err)
				return err
			}
			data, err := sonic.ConfigStd.Marshal(snapshotColumns(domain.Load(tasks)))
			if err != nil {
				c.Logger().Error(err)
				return err
			}
			if _, err := c.Response().Write([]byte("data: ")); err != nil {
				return err
			}
			if _, err := c.Response().Write(data); err != nil {
				return err
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				return err
			}
			flusher.Flush()

			select {
			case <-ctx.Done():
				return nil
			case <-ch:
			}
		}
	}
}
