package notify

import (
	"context"
	"errors"
	"time"

	"norvia-broker/internal/logger"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
)

// Notice is one outbound message. UserID empty means platform-wide.
// ForAdmins routes the notice to the back-office chat as well.
type Notice struct {
	UserID    string
	Title     string
	Body      string
	Level     Level
	ForAdmins bool
}

type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// Multi fans a notice out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notice) error {
	var errs []error
	for _, nt := range m {
		if nt == nil {
			continue
		}
		if err := nt.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dispatcher sends notices in the background. Failures are logged and dropped.
type Dispatcher struct {
	next    Notifier
	log     *logger.Logger
	timeout time.Duration
}

func NewDispatcher(next Notifier, log *logger.Logger) *Dispatcher {
	return &Dispatcher{next: next, log: log.Component("notify"), timeout: 8 * time.Second}
}

func (d *Dispatcher) Send(n Notice) {
	if d == nil || d.next == nil {
		return
	}
	if n.Level == "" {
		n.Level = LevelInfo
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.next.Notify(ctx, n); err != nil {
			d.log.Warnf("delivery failed title=%q user=%s: %v", n.Title, n.UserID, err)
		}
	}()
}
