package live

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// Channel is the Postgres notification channel fired by the products trigger.
const Channel = "products_changed"

const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
	// OpResync tells subscribers that notifications may have been missed.
	OpResync = "RESYNC"
)

// Change is the payload of a products_changed notification.
type Change struct {
	Op string `json:"op"`
	ID string `json:"id"`
}

// Source delivers product changes. The returned cancel func releases the
// channel.
type Source interface {
	Subscribe() (<-chan Change, func())
}

// Listener holds one LISTEN connection and fans notifications out to every
// subscriber.
type Listener struct {
	db      *sql.DB
	logger  *zap.Logger
	backoff time.Duration

	mu   sync.Mutex
	next int
	subs map[int]chan Change
}

// NewListener creates a listener on top of a pgx backed pool.
func NewListener(db *sql.DB, logger *zap.Logger) *Listener {
	return &Listener{
		db:      db,
		logger:  logger,
		backoff: time.Second,
		subs:    make(map[int]chan Change),
	}
}

// Subscribe registers a new subscriber. Each subscriber channel holds at most
// one pending change; later changes are coalesced into it since watchers
// reload on every signal.
func (l *Listener) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 1)

	l.mu.Lock()
	id := l.next
	l.next++
	l.subs[id] = ch
	l.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
		})
	}
}

func (l *Listener) broadcast(c Change) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, ch := range l.subs {
		select {
		case ch <- c:
		default:
			// a reload is already pending; make sure it covers this change too
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- Change{Op: OpResync}:
			default:
			}
		}
	}
}

// Run listens until ctx is canceled, reconnecting after failures.
func (l *Listener) Run(ctx context.Context) error {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}

		l.logger.Warn("Product listener disconnected",
			zap.Error(err),
			zap.Duration("retry_in", l.backoff),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.backoff):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	defer conn.Close()

	var listenErr error
	err = conn.Raw(func(driverConn any) error {
		stdConn, ok := driverConn.(*stdlib.Conn)
		if !ok {
			listenErr = errors.New("listener requires the pgx driver")
			return listenErr
		}
		pgxConn := stdConn.Conn()

		if _, err := pgxConn.Exec(ctx, "LISTEN "+Channel); err != nil {
			listenErr = fmt.Errorf("failed to listen: %w", err)
			return driver.ErrBadConn
		}
		l.logger.Info("Listening for product changes", zap.String("channel", Channel))

		// anything that happened while disconnected is unknown
		l.broadcast(Change{Op: OpResync})

		for {
			n, err := pgxConn.WaitForNotification(ctx)
			if err != nil {
				listenErr = err
				// the session is still subscribed, never hand it back to the pool
				return driver.ErrBadConn
			}

			var c Change
			if err := json.Unmarshal([]byte(n.Payload), &c); err != nil {
				l.logger.Warn("Malformed product notification",
					zap.String("payload", n.Payload),
					zap.Error(err),
				)
				c = Change{Op: OpResync}
			}
			l.broadcast(c)
		}
	})
	if listenErr != nil {
		return listenErr
	}
	return err
}
