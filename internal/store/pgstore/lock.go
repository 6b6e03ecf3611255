package pgstore

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/spigell/job-seeker/internal/lock"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const unlockTimeout = 5 * time.Second

// Locker holds a session-level advisory lock on a dedicated pool
// connection for the duration of a run.
type Locker struct {
	pool   *pgxpool.Pool
	key    int64
	logger *zap.Logger
}

var _ lock.Locker = (*Locker)(nil)

func NewLocker(db *DB, name string, logger *zap.Logger) *Locker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locker{pool: db.pool, key: LockKey(name), logger: logger}
}

// LockKey maps a lock name to the advisory lock key space.
func LockKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}

func (l *Locker) Acquire(ctx context.Context) (context.Context, func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquiring connection for advisory lock: %w", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", l.key).Scan(&ok); err != nil {
		conn.Release()
		return nil, nil, fmt.Errorf("taking advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return nil, nil, lock.ErrLocked
	}

	l.logger.Debug("advisory lock taken", zap.Int64("key", l.key))

	locked, stop := context.WithCancel(ctx)
	return locked, sync.OnceFunc(func() {
		stop()

		ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()

		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", l.key); err != nil {
			l.logger.Warn("releasing advisory lock, closing the connection instead", zap.Error(err))
			// the session lock goes away with the session
			_ = conn.Conn().Close(ctx)
		}
		conn.Release()
	}), nil
}
