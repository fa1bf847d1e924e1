package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"chai-assistant/internal/model"
)

var (
	ErrInvalidRole = errors.New("turn role must be user or assistant")
	ErrEmptyThread = errors.New("thread id is empty")
)

// Repository persists turns. List must return turns in ascending timestamp order.
type Repository interface {
	Append(ctx context.Context, turn model.Turn) error
	List(ctx context.Context, threadID string) ([]model.Turn, error)
	Clear(ctx context.Context, threadID string) (int64, error)
	Ping(ctx context.Context) error
}

type Cache interface {
	GetHistory(ctx context.Context, threadID string) ([]model.Turn, bool, error)
	SetHistory(ctx context.Context, threadID string, turns []model.Turn) error
	DeleteHistory(ctx context.Context, threadID string) error
}

// Store is the append only conversation log.
type Store struct {
	repo   Repository
	cache  Cache
	clock  *Clock
	logger *slog.Logger
}

type Option func(*Store)

func WithCache(cache Cache) Option {
	return func(s *Store) {
		s.cache = cache
	}
}

func WithClock(clock *Clock) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

func NewStore(repo Repository, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		repo:   repo,
		clock:  NewClock(nil),
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append stamps and persists a new turn.
func (s *Store) Append(ctx context.Context, threadID, role, content string) (model.Turn, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return model.Turn{}, ErrEmptyThread
	}
	if role != model.RoleUser && role != model.RoleAssistant {
		return model.Turn{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	ts := FormatTimestamp(s.clock.Next())
	turn := model.Turn{
		ThreadID:  threadID,
		ID:        role + "-" + ts,
		Role:      role,
		Content:   content,
		Timestamp: ts,
	}
	if err := s.repo.Append(ctx, turn); err != nil {
		return model.Turn{}, fmt.Errorf("append turn failed: %w", err)
	}
	s.invalidate(ctx, threadID)
	return turn, nil
}

// History returns every turn of the thread, oldest first.
func (s *Store) History(ctx context.Context, threadID string) ([]model.Turn, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return nil, ErrEmptyThread
	}

	if s.cache != nil {
		turns, ok, err := s.cache.GetHistory(ctx, threadID)
		if err != nil {
			s.logger.Warn("history cache read failed", "thread_id", threadID, "error", err)
		} else if ok {
			return turns, nil
		}
	}

	turns, err := s.repo.List(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("list turns failed: %w", err)
	}
	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].Timestamp < turns[j].Timestamp
	})

	if s.cache != nil {
		if err := s.cache.SetHistory(ctx, threadID, turns); err != nil {
			s.logger.Warn("history cache write failed", "thread_id", threadID, "error", err)
		}
	}
	return turns, nil
}

// Clear removes every turn of the thread.
func (s *Store) Clear(ctx context.Context, threadID string) (int64, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return 0, ErrEmptyThread
	}
	n, err := s.repo.Clear(ctx, threadID)
	if err != nil {
		return 0, fmt.Errorf("clear thread failed: %w", err)
	}
	s.invalidate(ctx, threadID)
	s.logger.Info("cleared thread", "thread_id", threadID, "turns", n)
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Store) invalidate(ctx context.Context, threadID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteHistory(ctx, threadID); err != nil {
		s.logger.Warn("history cache invalidation failed", "thread_id", threadID, "error", err)
	}
}
