package notify

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// LogNotifier пишет уведомления покупателю в структурированный лог.
// Реальная доставка (email, push) подключается отдельным транспортом;
// интерфейс domain.Notifier остаётся тем же.
type LogNotifier struct {
	logger *log.Entry
}

// NewLogNotifier создаёт нотификатор поверх logrus.
func NewLogNotifier(logger *log.Entry) *LogNotifier {
	if logger == nil {
		logger = log.New().WithField("component", "notify")
	}
	return &LogNotifier{logger: logger}
}

// OrderPlaced уведомляет покупателя об оформленном заказе.
func (n *LogNotifier) OrderPlaced(order domain.Order) error {
	n.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.Number,
		"user_id":      order.UserID,
		"total_minor":  order.TotalMinor,
	}).Info("order placed notification")
	return nil
}

// ReturnProcessed уведомляет покупателя о решении по заявке на возврат.
func (n *LogNotifier) ReturnProcessed(ret domain.Return) error {
	n.logger.WithFields(log.Fields{
		"return_id": ret.ID,
		"rma":       ret.RMANumber,
		"user_id":   ret.UserID,
		"status":    ret.Status,
	}).Info("return processed notification")
	return nil
}

var _ domain.Notifier = (*LogNotifier)(nil)
