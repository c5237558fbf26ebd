package notify

import (
	"context"

	"dropscout/logger"
)

// Notifier gates alert delivery: only profitable deals go out, only when
// a Telegram chat is configured, and delivery failures never propagate
// into the pipeline.
type Notifier struct {
	sender     Sender
	configured bool
	log        *logger.Logger
}

// NewNotifier wraps a sender. A nil sender or configured=false turns the
// notifier into a no-op.
func NewNotifier(sender Sender, configured bool) *Notifier {
	return &Notifier{
		sender:     sender,
		configured: configured && sender != nil,
		log:        logger.ForNotifier(),
	}
}

// Notify sends the deal alert. Returns true only when a message was
// actually delivered.
func (n *Notifier) Notify(ctx context.Context, deal Deal) bool {
	if !deal.Result.IsProfitable {
		n.log.Debug().Str("name", deal.Name).Msg("Deal not profitable, notification skipped")
		return false
	}
	if !n.configured {
		n.log.Debug().Msg("Telegram not configured, notification skipped")
		return false
	}

	if err := n.sender.Send(ctx, FormatDeal(deal)); err != nil {
		n.log.Error().Err(err).Str("name", deal.Name).Msg("Notification failed")
		return false
	}

	n.log.Info().Str("name", deal.Name).Msg("Profitable deal notification sent")
	return true
}
