// Package settlement consumes payment confirmations for closed auctions
// from the payment provider's PubNub channel. Each confirmed notice carries
// the auction reference so the caller can mark the auction settled.
package settlement

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	pubnub "github.com/pubnub/go/v7"
	"github.com/shopspring/decimal"
)

// Notice is one confirmed payment for an auction.
type Notice struct {
	AuctionID string
	Reference string
	Amount    decimal.Decimal
	PaidAt    time.Time
}

type payload struct {
	AuctionID string `json:"auction_id"`
	Reference string `json:"reference"`
	Amount    string `json:"amount"`
	PaidAt    string `json:"paid_at"`
}

func (p *payload) toNotice() (*Notice, error) {
	amount, err := decimal.NewFromString(p.Amount)
	if err != nil {
		return nil, err
	}

	ts, err := time.ParseInLocation("2006-01-02 15:04:05", p.PaidAt, time.Local)
	if err != nil {
		return nil, err
	}

	return &Notice{
		AuctionID: p.AuctionID,
		Reference: p.Reference,
		Amount:    amount,
		PaidAt:    ts,
	}, nil
}

type Config struct {
	SubscribeKey string
	SecretKey    string
	UUID         string
	Channel      string
	CipherKey    string
}

// Listener holds the provider-side PubNub subscription.
type Listener struct {
	pn       *pubnub.PubNub
	listener *pubnub.Listener
	channel  string
	notices  chan *Notice
}

// NewListener connects to the provider channel and starts consuming. The
// subscription rewinds two minutes so confirmations published during a
// restart are not lost.
func NewListener(ctx context.Context, cfg Config) (*Listener, error) {
	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.UUID))
	pnCfg.SubscribeKey = cfg.SubscribeKey
	pnCfg.SecretKey = cfg.SecretKey
	pnCfg.CipherKey = cfg.CipherKey

	l := &Listener{
		pn:       pubnub.NewPubNub(pnCfg),
		listener: pubnub.NewListener(),
		channel:  cfg.Channel,
		notices:  make(chan *Notice, 16),
	}

	l.pn.AddListener(l.listener)

	go l.processSubscription(ctx)

	tt := time.Now().Add(-2*time.Minute).Unix() * 10000
	l.pn.Subscribe().Channels([]string{l.channel}).Timetoken(tt).Execute()

	return l, nil
}

// Notices returns the stream of confirmed payments.
func (l *Listener) Notices() <-chan *Notice {
	return l.notices
}

func (l *Listener) Unsubscribe() {
	l.pn.Unsubscribe().Channels([]string{l.channel}).Execute()
}

func (l *Listener) processSubscription(ctx context.Context) {
	for {
		select {
		case status := <-l.listener.Status:
			switch status.Category {
			case pubnub.PNConnectedCategory:
				log.Println("connected to settlement pubnub")

			case pubnub.PNReconnectedCategory:
				log.Println("reconnected to settlement pubnub")

			case pubnub.PNDisconnectedCategory:
				log.Println("disconnected from settlement pubnub")

			case pubnub.PNAccessDeniedCategory:
				log.Println("access denied on settlement pubnub")

			case pubnub.PNTimeoutCategory:
				log.Println("timeout on settlement pubnub")

			case pubnub.PNReconnectionAttemptsExhausted:
				log.Println("settlement pubnub reconnection attempts exhausted")

			default:
				log.Println("settlement pubnub status:", status.Category)
			}

		case message := <-l.listener.Message:
			raw, ok := message.Message.(string)
			if !ok {
				log.Println("unexpected settlement message type:", message.Message)
				continue
			}

			var p payload
			dec := json.NewDecoder(strings.NewReader(raw))
			if err := dec.Decode(&p); err != nil {
				log.Println("bad settlement payload:", err)
				continue
			}

			notice, err := p.toNotice()
			if err != nil {
				log.Println("bad settlement notice:", err)
				continue
			}

			l.notices <- notice

		case <-ctx.Done():
			log.Println("close settlement subscription")
			l.Unsubscribe()
			return
		}
	}
}
