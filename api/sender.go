package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"dataflow-api/domain"
)

// Sender delivers reducer-owed status updates to the command queue off the
// request path. The local board state is already updated optimistically when
// a job reaches the sender; delivery failures are logged once as a warning
// and never retried, and the optimistic state is not rolled back.
type Sender struct {
	store   Storage
	deduper Deduper
	logger  *log.Logger

	jobs    chan senderJob
	timeout time.Duration
	handoff time.Duration
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
}

type senderJob struct {
	accountID string
	cmds      []domain.Command
	added     []string // deduper keys to roll back when dispatch fails
}

// SenderConfig tunes the dispatch worker pool.
type SenderConfig struct {
	Workers        int
	Buffer         int
	EnqueueTimeout time.Duration
	HandoffTimeout time.Duration
}

// NewSender starts the dispatch workers.
func NewSender(store Storage, deduper Deduper, logger *log.Logger, cfg SenderConfig) *Sender {
	if store == nil {
		panic("api.NewSender: storage is required")
	}
	if logger == nil {
		panic("api.NewSender: logger is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = 60 * time.Second
	}
	if cfg.HandoffTimeout < 0 {
		cfg.HandoffTimeout = 0
	}

	s := &Sender{
		store:   store,
		deduper: deduper,
		logger:  logger,
		jobs:    make(chan senderJob, cfg.Buffer),
		timeout: cfg.EnqueueTimeout,
		handoff: cfg.HandoffTimeout,
	}
	for i := 0; i < cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	logger.Infof("command sender started, workers: %d, buffer: %d", cfg.Workers, cfg.Buffer)
	return s
}

func (s *Sender) worker(id int) {
	defer s.wg.Done()
	for j := range s.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := s.store.EnqueueCommands(ctx, j.accountID, j.cmds)
		cancel()

		if err == nil {
			continue
		}
		if s.deduper != nil {
			for _, k := range j.added {
				if rerr := s.deduper.Remove(context.Background(), j.accountID, k); rerr != nil {
					s.logger.Errorf("dedupe rollback failed, err: %v, key: %s, account: %s", rerr, k, j.accountID)
				}
			}
		}
		s.logger.Warnf("remote write failed, err: %v, account: %s, count: %d, worker: %d", err, j.accountID, len(j.cmds), id)
	}
}

const dispatchRetryInterval = 5 * time.Millisecond

// Dispatch hands commands to the worker pool without blocking the caller
// beyond the configured handoff timeout. It reports whether the job was
// accepted; a saturated or stopped pool rejects the job so the caller can
// fall back to an inline enqueue.
func (s *Sender) Dispatch(accountID string, cmds []domain.Command, added []string) bool {
	job := senderJob{accountID: accountID, cmds: cmds, added: added}

	if s.trySend(job) {
		return true
	}
	if s.handoff <= 0 {
		return false
	}

	deadline := time.NewTimer(s.handoff)
	defer deadline.Stop()
	retry := time.NewTicker(dispatchRetryInterval)
	defer retry.Stop()
	for {
		select {
		case <-deadline.C:
			return false
		case <-retry.C:
			if s.trySend(job) {
				return true
			}
		}
	}
}

// trySend attempts a non-blocking handoff. The closed flag is checked under
// the same mutex Shutdown closes the channel under, so a send can never race
// the close.
func (s *Sender) trySend(job senderJob) bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.jobs <- job:
		return true
	default:
		return false
	}
}

// Shutdown drains outstanding jobs and stops the workers.
func (s *Sender) Shutdown() {
	s.closeMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.jobs)
	}
	s.closeMu.Unlock()
	s.wg.Wait()
}
