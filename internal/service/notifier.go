package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/campaign-ledger/internal/metrics"
	"github.com/mmeshcher/campaign-ledger/internal/model"
)

const deliveryTimeout = 5 * time.Second

// Notifier реализует очередь уведомлений с одним обработчиком, сохраняющим их в хранилище.
// Notify никогда не блокирует вызывающего.
type Notifier struct {
	store  NotificationStore
	logger *zap.Logger
	queue  chan model.Notification
}

// NewNotifier создаёт очередь уведомлений указанного размера.
func NewNotifier(store NotificationStore, logger *zap.Logger, size int) *Notifier {
	if size <= 0 {
		size = 1
	}
	return &Notifier{
		store:  store,
		logger: logger,
		queue:  make(chan model.Notification, size),
	}
}

// Notify ставит уведомление в очередь. При переполненной очереди уведомление
// отбрасывается.
func (n *Notifier) Notify(userID uuid.UUID, typ model.NotificationType, message string) {
	item := model.Notification{
		ID:      uuid.New(),
		UserID:  userID,
		Type:    typ,
		Message: message,
	}

	select {
	case n.queue <- item:
	default:
		metrics.NotificationsDropped.Inc()
		n.logger.Warn("notification queue is full, dropping notification",
			zap.String("user_id", userID.String()),
			zap.String("type", string(typ)))
	}
}

// Run обрабатывает очередь до отмены контекста, после чего доставляет то, что
// уже успело попасть в очередь. Каждая доставка ограничена собственным таймаутом.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			n.drain(ctx)
			return nil
		case item := <-n.queue:
			n.deliver(ctx, item)
		}
	}
}

func (n *Notifier) drain(ctx context.Context) {
	for {
		select {
		case item := <-n.queue:
			n.deliver(ctx, item)
		default:
			return
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, item model.Notification) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
	defer cancel()

	if err := n.store.CreateNotification(ctx, &item); err != nil {
		n.logger.Error("failed to store notification",
			zap.String("user_id", item.UserID.String()),
			zap.String("type", string(item.Type)),
			zap.Error(err))
		return
	}
	metrics.NotificationsDelivered.Inc()
}
