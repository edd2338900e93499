package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const bookingQueueName = "booking.confirmed"

// BookingConsumer appends one line per confirmed reservation to
// <LogDir>/booking.log.
type BookingConsumer struct {
	URL      string
	Exchange string
	LogDir   string
	Log      *zap.Logger
}

// Run connects, binds the durable booking.confirmed queue to
// reservation.confirmed and consumes until ctx is cancelled.  Broken
// connections are redialled with exponential backoff.
func (c *BookingConsumer) Run(ctx context.Context) error {
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			log.Warn("booking consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("booking consumer: consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *BookingConsumer) consume(ctx context.Context, conn *amqp.Connection, log *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn("booking consumer: set QoS failed", zap.Error(err))
	}
	if err := ch.ExchangeDeclare(c.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(bookingQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(bookingQueueName, KeyReservationConfirmed, c.Exchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, bookingQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := AppendBookingLog(c.LogDir, d.Body); err != nil {
			log.Error("booking consumer: handle message failed", zap.Error(err))
			_ = d.Nack(false, false) // do not requeue; a bad payload would loop
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// AppendBookingLog decodes a ReservationConfirmedEvent and appends its line
// to dir/booking.log, creating the directory when needed.
func AppendBookingLog(dir string, body []byte) error {
	var ev ReservationConfirmedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.ReservationID == "" {
		return errors.New("event without reservation_id")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "booking.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(FormatBookingLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatBookingLine renders ev as a single human-readable log line.
func FormatBookingLine(ev ReservationConfirmedEvent) string {
	return fmt.Sprintf("[%s] Reservation confirmed | reservation_id=%s | user_id=%s | performance=%q | venue=%q | show=%s %s | total=%d | seats=[%s]\n",
		ev.ConfirmedAt.UTC().Format(time.RFC3339), ev.ReservationID, ev.UserID, ev.PerformanceTitle, ev.Venue,
		ev.Date, ev.Time, ev.TotalPrice, strings.Join(ev.SeatIDs, ","))
}
