// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package auth acquires and refreshes the two tokens an ImageServer
// connection needs: an OAuth bearer for REST calls and an opaque
// ImageServer session token minted by SOAP Login. Both are cached on a
// process-wide Broker behind a single-writer lock, so every export worker
// shares one refresh cycle instead of racing the identity provider.
package auth

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/xg2g/internal/log"
	"github.com/ManuGH/xg2g/internal/metrics"
	"github.com/ManuGH/xg2g/internal/milestone/model"
	"github.com/ManuGH/xg2g/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// refreshMargin is how far ahead of a token's actual expiry the broker
	// proactively refreshes it, so a caller never observes an expired token.
	refreshMargin = 60 * time.Second

	defaultTimeout = 10 * time.Second

	clientID = "GrantValidatorClient"
)

// Config configures a Broker.
type Config struct {
	// BaseURL is the Milestone management server base, e.g. "https://vms.example.com".
	BaseURL string

	Username string
	Password string

	// TLSVerify disables certificate verification when false. Defaults to
	// verifying.
	TLSVerify bool

	// Timeout bounds every HTTP round trip made by the broker.
	Timeout time.Duration
}

// Broker lazily acquires and refreshes the OAuth and ImageServer tokens
// shared by every export worker. All mutation of the cached AuthState goes
// through mu, satisfying the single-writer discipline described for
// process-wide shared resources.
type Broker struct {
	cfg Config

	httpClient *http.Client

	mu    sync.Mutex
	state model.AuthState
}

// New constructs a Broker. The returned value generates a fresh
// instance ID bound to the broker's lifetime, used on every SOAP Login.
func New(cfg Config) *Broker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.TLSVerify}, // #nosec G402 -- policy-driven, default verifies
	}

	return &Broker{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: otelhttp.NewTransport(transport)},
		state: model.AuthState{
			InstanceID: uuid.NewString(),
		},
	}
}

// OAuthToken returns a valid OAuth bearer token, acquiring or refreshing it
// if necessary.
func (b *Broker) OAuthToken(ctx context.Context) (model.Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.oauthTokenLocked(ctx)
}

func (b *Broker) oauthTokenLocked(ctx context.Context) (model.Token, error) {
	if b.state.OAuth.Remaining(time.Now()) > refreshMargin {
		return b.state.OAuth, nil
	}
	tok, err := b.acquireOAuth(ctx)
	if err != nil {
		metrics.AuthRefreshTotal.WithLabelValues("oauth", "error").Inc()
		return model.Token{}, err
	}
	b.state.OAuth = tok
	metrics.AuthRefreshTotal.WithLabelValues("oauth", "ok").Inc()
	return tok, nil
}

// ImageServerToken returns a valid ImageServer session token, acquiring or
// refreshing it (and, transitively, the OAuth token it depends on) if
// necessary.
func (b *Broker) ImageServerToken(ctx context.Context) (model.Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.oauthTokenLocked(ctx); err != nil {
		return model.Token{}, err
	}

	if b.state.ImageServer.Remaining(time.Now()) > refreshMargin {
		return b.state.ImageServer, nil
	}

	tok, err := b.acquireImageServerToken(ctx)
	if err != nil {
		metrics.AuthRefreshTotal.WithLabelValues("imageserver", "error").Inc()
		return model.Token{}, err
	}
	b.state.ImageServer = tok
	b.state.SOAPTTLDeadline = tok.ExpiresAt
	metrics.AuthRefreshTotal.WithLabelValues("imageserver", "ok").Inc()
	return tok, nil
}

// SOAPTTL returns the remaining lifetime of the current ImageServer token,
// used by the pipeliner to decide when a mid-stream connectupdate is due.
func (b *Broker) SOAPTTL() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.SOAPTTLDeadline.Sub(time.Now())
}

// InstanceID returns the process-lifetime instance identifier sent on
// every SOAP Login.
func (b *Broker) InstanceID() string {
	return b.state.InstanceID
}

// InvalidateImageServerToken forces the next ImageServerToken call to
// acquire a fresh token, used after a 401 from a dependent call.
func (b *Broker) InvalidateImageServerToken() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.ImageServer = model.Token{}
}

func (b *Broker) acquireOAuth(ctx context.Context) (model.Token, error) {
	tracer := telemetry.Tracer("xg2g.milestone.auth")
	ctx, span := tracer.Start(ctx, "milestone.auth.oauth", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	tok, err := requestOAuthToken(ctx, b.httpClient, b.cfg.BaseURL, b.cfg.Username, b.cfg.Password)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WithComponent("auth").Error().Err(err).Msg("oauth token acquisition failed")
		return model.Token{}, err
	}
	log.WithComponent("auth").Info().Time("expires_at", tok.ExpiresAt).Msg("oauth token acquired")
	return tok, nil
}

func (b *Broker) acquireImageServerToken(ctx context.Context) (model.Token, error) {
	tracer := telemetry.Tracer("xg2g.milestone.auth")
	ctx, span := tracer.Start(ctx, "milestone.auth.soap_login", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	tok, err := requestSOAPLogin(ctx, b.httpClient, b.cfg.BaseURL, b.state.OAuth.Value, b.state.InstanceID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WithComponent("auth").Error().Err(err).Msg("soap login failed")
		return model.Token{}, err
	}
	log.WithComponent("auth").Info().Time("expires_at", tok.ExpiresAt).Msg("imageserver token acquired")
	return tok, nil
}

// AuthError wraps a taxonomy kind around an underlying cause.
type AuthError struct {
	Kind string
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("milestone: %s", e.Kind)
	}
	return fmt.Sprintf("milestone: %s: %v", e.Kind, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

const (
	KindInvalidCredentials = "Auth::InvalidCredentials"
	KindSoapLoginFailed    = "Auth::SoapLoginFailed"
	KindNetwork            = "Auth::Network"
)
