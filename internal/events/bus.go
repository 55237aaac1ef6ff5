package events

import (
	"sync"
	"time"
)

const (
	TypePositionOpened     = "position.opened"
	TypePositionClosed     = "position.closed"
	TypeDepositCreated     = "deposit.created"
	TypeDepositApproved    = "deposit.approved"
	TypeDepositRejected    = "deposit.rejected"
	TypeDepositExpired     = "deposit.expired"
	TypeWithdrawalCreated  = "withdrawal.created"
	TypeWithdrawalApproved = "withdrawal.approved"
	TypeWithdrawalRejected = "withdrawal.rejected"
	TypeWithdrawalExpired  = "withdrawal.expired"
	TypeCopyUpdated        = "copy.updated"
	TypeVerification       = "verification.updated"
	TypeTraderApplication  = "trader_application.updated"
	TypeBalance            = "balance.updated"
)

type Event struct {
	Type   string `json:"type"`
	UserID string `json:"-"`
	Data   any    `json:"data"`
	TS     int64  `json:"ts"`
}

// Bus fans account events out to live subscribers. Slow subscribers drop events.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]string
}

func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]string)}
}

// Subscribe registers a listener for one user's events; an empty userID receives everything.
func (b *Bus) Subscribe(userID string) chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[ch] = userID
	b.mu.Unlock()
	return ch
}

func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(evt Event) {
	if b == nil {
		return
	}
	if evt.TS == 0 {
		evt.TS = time.Now().UnixMilli()
	}
	b.mu.RLock()
	for ch, owner := range b.subs {
		if owner != "" && owner != evt.UserID {
			continue
		}
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.RUnlock()
}
