// Package notify hands notifications to the campus notification service
// through its queue.
package notify

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"campusattend/internal/attendance"
	"campusattend/internal/metrics"
	"campusattend/internal/queue"
)

// MessageType tags notification messages on the queue.
const MessageType = "notification.create"

// Categories used by attendance.
const (
	CategoryAbsentee = "attendance_warning"
	CategoryFlagged  = "attendance_flagged"
)

// DefaultSendTimeout bounds a single publish.
const DefaultSendTimeout = 5 * time.Second

// QueueSender implements attendance.Notifier on top of a queue. Each Send
// gives up after its timeout so a stalled queue cannot hold up callers.
type QueueSender struct {
	q       queue.Queue
	metrics *metrics.Metrics
	timeout time.Duration
}

var _ attendance.Notifier = (*QueueSender)(nil)

// NewQueueSender creates a sender. m may be nil.
func NewQueueSender(q queue.Queue, m *metrics.Metrics) *QueueSender {
	return &QueueSender{q: q, metrics: m, timeout: DefaultSendTimeout}
}

// WithTimeout sets the per-send publish deadline.
func (s *QueueSender) WithTimeout(d time.Duration) *QueueSender {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Send publishes n.
func (s *QueueSender) Send(ctx context.Context, n attendance.Notification) error {
	if n.UserID == "" {
		return errors.New("notification without recipient")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg, err := queue.NewMessage(MessageType, n)
	if err == nil {
		err = s.q.Publish(ctx, msg)
	}
	s.observe(n.Category, err)
	return errors.Wrapf(err, "notify %s", n.UserID)
}

func (s *QueueSender) observe(category string, err error) {
	if s.metrics == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	s.metrics.Notifications.WithLabelValues(category, result).Inc()
}
