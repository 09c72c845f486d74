package delivery

import (
	"context"
	"time"

	"github.com/byagge/vashsender-2.0-sub000/internal/message"
	"github.com/byagge/vashsender-2.0-sub000/internal/smtp"
	"github.com/byagge/vashsender-2.0-sub000/pkg/prom"
)

// Transmitter pushes one built message onto the wire.
type Transmitter interface {
	Transmit(ctx context.Context, mail *message.Mail) error
}

// PoolTransmitter transmits over a pooled SMTP session. Checkout and return
// are strictly paired: the session goes back to the pool on every path, and
// the pool's own liveness check decides whether it survives.
type PoolTransmitter struct {
	pool *smtp.Pool
}

func NewPoolTransmitter(pool *smtp.Pool) *PoolTransmitter {
	return &PoolTransmitter{pool: pool}
}

func (t *PoolTransmitter) Transmit(ctx context.Context, mail *message.Mail) error {
	start := time.Now()
	session, err := t.pool.Acquire(ctx)
	prom.RecordPoolAcquireDuration(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	defer t.pool.Release(session)

	return session.Send(mail.From, mail.To, mail.Data)
}
