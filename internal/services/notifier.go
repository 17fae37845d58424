package services

import (
	"sync"

	"github.com/giftring/backend/internal/config"
	"github.com/giftring/backend/internal/models"
	"github.com/giftring/backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationEvent struct {
	Kind    models.ActivityKind
	UserID  uuid.UUID
	ActorID uuid.UUID
	GroupID *uuid.UUID
	Message string
}

// Notifier dispatches notification events as in-app activity rows through
// a buffered channel. Dispatch is fire-and-forget: a full queue drops the
// event with a warning and a failed write is logged and swallowed, so
// notification problems never fail or roll back the triggering operation.
type Notifier struct {
	DB        *gorm.DB
	queue     chan NotificationEvent
	done      chan struct{}
	closeOnce sync.Once
}

func NewNotifier(db *gorm.DB, cfg config.NotifyConfig) *Notifier {
	size := cfg.QueueBufferSize
	if size <= 0 {
		size = 100
	}
	n := &Notifier{
		DB:    db,
		queue: make(chan NotificationEvent, size),
		done:  make(chan struct{}),
	}
	go n.process()
	return n
}

func (n *Notifier) Notify(event NotificationEvent) {
	select {
	case n.queue <- event:
	default:
		logger.Warn("notification_queue_full", map[string]interface{}{
			"kind":    string(event.Kind),
			"user_id": event.UserID.String(),
		})
	}
}

func (n *Notifier) process() {
	defer close(n.done)
	for event := range n.queue {
		activity := models.Activity{
			UserID:  event.UserID,
			ActorID: event.ActorID,
			Kind:    event.Kind,
			GroupID: event.GroupID,
			Message: event.Message,
		}
		if err := n.DB.Create(&activity).Error; err != nil {
			logger.Error("notification_write_failed", err, map[string]interface{}{
				"kind":    string(event.Kind),
				"user_id": event.UserID.String(),
			})
		}
	}
}

// Close drains pending events and stops the worker. Safe to call more
// than once.
func (n *Notifier) Close() {
	n.closeOnce.Do(func() {
		close(n.queue)
	})
	<-n.done
}
