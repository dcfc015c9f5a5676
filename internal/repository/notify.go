package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/lib/pq"
)

// SubmittedChannel carries the id of every digital transaction stored for
// the processor. The payload is the decimal id.
const SubmittedChannel = "transaction_submitted"

const listenerPingInterval = 90 * time.Second

// Notifier announces stored transactions on SubmittedChannel. Inside
// WithinTx the notification is only delivered if the transaction commits.
type Notifier struct {
	db *DB
}

func NewNotifier(db *DB) *Notifier {
	return &Notifier{db: db}
}

func (n *Notifier) Notify(ctx context.Context, id int64) error {
	_, err := n.db.ext(ctx).ExecContext(ctx, `SELECT pg_notify($1, $2)`, SubmittedChannel, strconv.FormatInt(id, 10))
	if err != nil {
		return fmt.Errorf("Notify: transaction %d: %w", id, err)
	}
	return nil
}

// SubmissionListener receives SubmittedChannel notifications over a
// dedicated connection. The connection is re-established on loss; anything
// announced while it was down is left for the scheduler.
type SubmissionListener struct {
	listener *pq.Listener
	logger   *slog.Logger
}

func NewSubmissionListener(databaseURL string, logger *slog.Logger) (*SubmissionListener, error) {
	l := pq.NewListener(databaseURL, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventDisconnected:
			logger.Warn("submission listener disconnected", "error", err)
		case pq.ListenerEventConnectionAttemptFailed:
			logger.Warn("submission listener reconnect failed", "error", err)
		case pq.ListenerEventReconnected:
			logger.Info("submission listener reconnected")
		}
	})
	if err := l.Listen(SubmittedChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("NewSubmissionListener: listen: %w", err)
	}
	return &SubmissionListener{listener: l, logger: logger}, nil
}

// Run hands every announced id to deliver until ctx is done, then closes the
// listener. Malformed payloads are logged and skipped.
func (s *SubmissionListener) Run(ctx context.Context, deliver func(ctx context.Context, id int64)) error {
	defer s.listener.Close()

	ping := time.NewTicker(listenerPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-s.listener.Notify:
			// nil follows a reconnect.
			if n == nil {
				s.logger.Info("submission listener resumed, missed announcements are left to the scheduler")
				continue
			}
			id, err := strconv.ParseInt(n.Extra, 10, 64)
			if err != nil {
				s.logger.Warn("malformed submission payload", "payload", n.Extra, "error", err)
				continue
			}
			deliver(ctx, id)
		case <-ping.C:
			if err := s.listener.Ping(); err != nil {
				s.logger.Warn("submission listener ping failed", "error", err)
			}
		}
	}
}
