package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/pushleopard-backend/internal/errors"
)

func TestClassify(t *testing.T) {
	cases := map[int]Outcome{
		200: Accepted,
		201: Accepted,
		204: Accepted,
		404: Gone,
		410: Gone,
		400: Transient,
		401: Transient,
		413: Transient,
		429: Transient,
		500: Transient,
		503: Transient,
		0:   Transient,
	}
	for code, want := range cases {
		assert.Equal(t, want, Classify(code), "status %d", code)
	}
}

func newTarget(t *testing.T, endpoint string) Target {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)
	return Target{
		Endpoint: endpoint,
		P256dh:   base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		Auth:     base64.RawURLEncoding.EncodeToString(auth),
	}
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	priv, pub, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	return NewClient(Config{
		Subscriber:      "ops@pushleopard.test",
		VAPIDPublicKey:  pub,
		VAPIDPrivateKey: priv,
		TTL:             60 * time.Second,
		Timeout:         2 * time.Second,
	})
}

func pushServer(t *testing.T, status int, seen *http.Header) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			*seen = r.Header.Clone()
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDeliverAccepted(t *testing.T) {
	var hdr http.Header
	srv := pushServer(t, http.StatusCreated, &hdr)
	c := newTestClient(t)

	res, err := c.Deliver(context.Background(), newTarget(t, srv.URL+"/push/abc"), []byte(`{"title":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, "60", hdr.Get("TTL"))
	assert.True(t, strings.HasPrefix(hdr.Get("Authorization"), "vapid "), hdr.Get("Authorization"))
	assert.Equal(t, "aes128gcm", hdr.Get("Content-Encoding"))
}

func TestDeliverGone(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusGone} {
		srv := pushServer(t, status, nil)
		c := newTestClient(t)

		res, err := c.Deliver(context.Background(), newTarget(t, srv.URL), []byte(`{}`))
		require.Error(t, err)
		assert.Equal(t, status, res.StatusCode)

		de := appErrors.AsDeliveryError(err)
		assert.True(t, de.Gone)
		assert.Equal(t, status, de.StatusCode)
	}
}

func TestDeliverTransientStatus(t *testing.T) {
	srv := pushServer(t, http.StatusTooManyRequests, nil)
	c := newTestClient(t)

	_, err := c.Deliver(context.Background(), newTarget(t, srv.URL), []byte(`{}`))
	require.Error(t, err)
	de := appErrors.AsDeliveryError(err)
	assert.False(t, de.Gone)
	assert.Equal(t, "429", de.Code)
}

func TestDeliverTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c := newTestClient(t)

	res, err := c.Deliver(context.Background(), newTarget(t, url), []byte(`{}`))
	require.Error(t, err)
	assert.Zero(t, res.StatusCode)
	de := appErrors.AsDeliveryError(err)
	assert.False(t, de.Gone)
	assert.Equal(t, appErrors.TransportErrorCode, de.Code)
}

func TestDeliverTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c := newTestClient(t)
	c.cfg.Timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := c.Deliver(context.Background(), newTarget(t, srv.URL), []byte(`{}`))
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, appErrors.TransportErrorCode, appErrors.AsDeliveryError(err).Code)
}
