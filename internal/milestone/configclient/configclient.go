// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package configclient issues the Milestone REST calls the exporter needs
// before it ever opens a TCP connection: the camera list, and the
// Recording Server host/port that owns a given camera.
package configclient

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ManuGH/xg2g/internal/milestone/model"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	camerasPath          = "/api/rest/v1/cameras"
	recordingServersPath = "/api/rest/v1/recordingServers"

	defaultTimeout = 10 * time.Second

	// outboundRPS bounds how often this client hits the management
	// server's REST API; ListCameras/ResolveRecorder are called once per
	// export start, not per frame, so this only guards against a client
	// retry storm.
	outboundRPS   = 5
	outboundBurst = 5
)

// TokenSource supplies the OAuth bearer attached to every REST call.
type TokenSource interface {
	OAuthToken(ctx context.Context) (model.Token, error)
}

// Config configures a Client.
type Config struct {
	BaseURL   string
	TLSVerify bool
	Timeout   time.Duration
}

// Client is a thin REST caller against the Milestone management server.
type Client struct {
	cfg        Config
	auth       TokenSource
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New constructs a Client.
func New(cfg Config, auth TokenSource) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.TLSVerify}, // #nosec G402 -- policy-driven, default verifies
	}
	return &Client{
		cfg:  cfg,
		auth: auth,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		limiter: rate.NewLimiter(rate.Limit(outboundRPS), outboundBurst),
	}
}

type camerasEnvelope struct {
	Array []restCamera `json:"array"`
}

type restCamera struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Enabled     bool   `json:"enabled"`
	Relations   struct {
		Parent string `json:"parent"`
	} `json:"relations"`
}

type recordingServersEnvelope struct {
	Array []restRecordingServer `json:"array"`
}

type restRecordingServer struct {
	ID           string `json:"id"`
	HostName     string `json:"hostName"`
	Port         int    `json:"port"`
	CameraIDs    []string `json:"cameraIds"`
}

// ListCameras returns every camera known to the management server.
func (c *Client) ListCameras(ctx context.Context) ([]model.Camera, error) {
	var env camerasEnvelope
	if err := c.get(ctx, camerasPath, &env); err != nil {
		return nil, err
	}

	servers, err := c.listRecordingServers(ctx)
	if err != nil {
		return nil, err
	}

	cameras := make([]model.Camera, 0, len(env.Array))
	for _, rc := range env.Array {
		cam := model.Camera{
			ID:          rc.ID,
			DisplayName: rc.DisplayName,
			Enabled:     rc.Enabled,
		}
		if host, port, ok := resolveFromServers(servers, rc.ID); ok {
			cam.RecordingServerHost = host
			cam.RecordingServerPort = port
		}
		cameras = append(cameras, cam)
	}
	return cameras, nil
}

// ResolveRecorder returns the Recording Server host/port that owns
// cameraID. This walks recordingServers' child camera id sets rather than
// relations.parent, which is simpler and sufficient for this lookup.
func (c *Client) ResolveRecorder(ctx context.Context, cameraID string) (string, int, error) {
	servers, err := c.listRecordingServers(ctx)
	if err != nil {
		return "", 0, err
	}
	host, port, ok := resolveFromServers(servers, cameraID)
	if !ok {
		return "", 0, model.ErrCameraNotFound
	}
	return host, port, nil
}

func (c *Client) listRecordingServers(ctx context.Context) ([]restRecordingServer, error) {
	var env recordingServersEnvelope
	if err := c.get(ctx, recordingServersPath, &env); err != nil {
		return nil, err
	}
	return env.Array, nil
}

func resolveFromServers(servers []restRecordingServer, cameraID string) (string, int, bool) {
	for _, s := range servers {
		for _, id := range s.CameraIDs {
			if id == cameraID {
				port := s.Port
				if port == 0 {
					port = 7563
				}
				return s.HostName, port, true
			}
		}
	}
	return "", 0, false
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	tok, err := c.auth.OAuthToken(ctx)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.Value)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("config: %w: %w", model.ErrConnectionBroken, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("config: read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("config: %w", model.ErrUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("config: %s returned %d", path, resp.StatusCode)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return nil
}
