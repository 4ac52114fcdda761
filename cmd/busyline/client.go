package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"pkt.systems/busyline/internal/appconfig"
)

// apiClient talks to the daemon control API. The unix socket is preferred;
// the TCP address serves remote daemons.
type apiClient struct {
	base   string
	client *http.Client
	// stream has no overall timeout so /api/stream can run until cancelled.
	stream *http.Client
}

func newAPIClient(cfg appconfig.Config) (*apiClient, error) {
	if socket := strings.TrimSpace(cfg.HTTP.SocketPath); socket != "" {
		transport := &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socket)
			},
		}
		return &apiClient{
			base:   "http://busyline",
			client: &http.Client{Transport: transport, Timeout: 10 * time.Second},
			stream: &http.Client{Transport: transport},
		}, nil
	}
	if addr := strings.TrimSpace(cfg.HTTP.Addr); addr != "" {
		return &apiClient{
			base:   "http://" + addr,
			client: &http.Client{Timeout: 10 * time.Second},
			stream: &http.Client{},
		}, nil
	}
	return nil, fmt.Errorf("no daemon endpoint configured; set http.socket_path or http.addr")
}

func clientFromConfig(cfgPath string) (*apiClient, error) {
	cfg, err := appconfig.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return newAPIClient(cfg)
}

func (c *apiClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeResponse(resp, out)
}

func (c *apiClient) postJSON(ctx context.Context, path string, payload, out any) error {
	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeResponse(resp, out)
}

// openStream issues a GET on the timeout-free client and hands the body to
// the caller, who owns closing it.
func (c *apiClient) openStream(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		return nil, apiError(resp)
	}
	return resp.Body, nil
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && strings.TrimSpace(payload.Error) != "" {
		return fmt.Errorf("daemon: %s", payload.Error)
	}
	return fmt.Errorf("daemon: unexpected status %s", resp.Status)
}
