// Package push sends Web Push messages and classifies what the push service said.
package push

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/pkg/errors"

	appErrors "github.com/unclebandit/pushleopard-backend/internal/errors"
)

type Outcome int

const (
	Accepted Outcome = iota
	Gone
	Transient
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Gone:
		return "gone"
	default:
		return "transient"
	}
}

// Classify maps a push service status code to an outcome. 404 and 410 mean
// the endpoint is permanently invalid.
func Classify(statusCode int) Outcome {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return Accepted
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		return Gone
	default:
		return Transient
	}
}

type Target struct {
	Endpoint string
	P256dh   string
	Auth     string
}

type Result struct {
	StatusCode int
}

// Sender is what the dispatcher needs from a push client.
type Sender interface {
	Deliver(ctx context.Context, target Target, payload []byte) (Result, error)
}

type Config struct {
	Subscriber      string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	TTL             time.Duration
	Timeout         time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.TTL <= 0 {
		cfg.TTL = 60 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

// Deliver sends one encrypted, VAPID-signed message. Anything other than a
// 2xx comes back as an *appErrors.DeliveryError.
func (c *Client) Deliver(ctx context.Context, target Target, payload []byte) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	sub := &webpush.Subscription{
		Endpoint: target.Endpoint,
		Keys:     webpush.Keys{P256dh: target.P256dh, Auth: target.Auth},
	}
	resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, &webpush.Options{
		HTTPClient:      c.http,
		Subscriber:      c.cfg.Subscriber,
		VAPIDPublicKey:  c.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: c.cfg.VAPIDPrivateKey,
		TTL:             int(c.cfg.TTL.Seconds()),
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		return Result{}, &appErrors.DeliveryError{
			Code:    appErrors.TransportErrorCode,
			Message: errors.Wrap(err, "push request").Error(),
		}
	}
	defer resp.Body.Close()

	res := Result{StatusCode: resp.StatusCode}
	outcome := Classify(resp.StatusCode)
	if outcome == Accepted {
		_, _ = io.Copy(io.Discard, resp.Body)
		return res, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := string(body)
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return res, &appErrors.DeliveryError{
		Code:       strconv.Itoa(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Gone:       outcome == Gone,
		Message:    msg,
	}
}

var _ Sender = (*Client)(nil)
