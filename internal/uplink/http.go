package uplink

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/juju/errors"
)

// HTTPConfig configures the HTTP sink.
type HTTPConfig struct {
	URL     string // e.g. http://backend:3000/api/telemetry
	Token   string // optional bearer token
	Timeout time.Duration
	Recheck time.Duration
}

// HTTP posts each message as a JSON body. Any 2xx response is success.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
	br     *breaker
}

// NewHTTP creates an HTTP sink.
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	if cfg.URL == "" {
		return nil, errors.NotValidf("empty http uplink url")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &HTTP{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		br:     newBreaker(cfg.Recheck),
	}, nil
}

// Name implements Uplink.
func (h *HTTP) Name() string { return "http" }

// IsUp implements Uplink.
func (h *HTTP) IsUp() bool { return h.br.up() }

// Forward implements Uplink.
func (h *HTTP) Forward(ctx context.Context, m Message) error {
	err := h.post(ctx, m)
	h.br.record(err)
	return err
}

func (h *HTTP) post(ctx context.Context, m Message) error {
	body, err := m.JSON()
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return errors.Annotate(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if h.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.Token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return errors.Annotatef(ErrUnavailable, "post %s: %v", h.cfg.URL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("post %s: status %d", h.cfg.URL, resp.StatusCode)
	}
	return nil
}

// Close implements Uplink.
func (h *HTTP) Close() error {
	h.client.CloseIdleConnections()
	return nil
}
