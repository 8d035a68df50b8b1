// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuGH/xg2g/internal/milestone/model"
)

const oauthTokenPath = "/API/IDP/connect/token"

type oauthTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// requestOAuthToken performs the password grant against the Milestone
// identity provider and returns a Token with ExpiresAt derived from
// expires_in.
func requestOAuthToken(ctx context.Context, httpClient *http.Client, baseURL, username, password string) (model.Token, error) {
	form := url.Values{
		"grant_type": {"password"},
		"username":   {username},
		"password":   {password},
		"client_id":  {clientID},
	}

	endpoint := strings.TrimRight(baseURL, "/") + oauthTokenPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return model.Token{}, &AuthError{Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := httpClient.Do(req)
	if err != nil {
		return model.Token{}, &AuthError{Kind: KindNetwork, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return model.Token{}, &AuthError{Kind: KindNetwork, Err: err}
	}

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		return model.Token{}, &AuthError{Kind: KindInvalidCredentials, Err: fmt.Errorf("oauth token endpoint returned %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return model.Token{}, &AuthError{Kind: KindNetwork, Err: fmt.Errorf("oauth token endpoint returned %d", resp.StatusCode)}
	}

	var parsed oauthTokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return model.Token{}, &AuthError{Kind: KindInvalidCredentials, Err: fmt.Errorf("decode oauth response: %w", err)}
	}
	if parsed.AccessToken == "" {
		return model.Token{}, &AuthError{Kind: KindInvalidCredentials, Err: fmt.Errorf("oauth response missing access_token")}
	}
	if parsed.ExpiresIn <= 0 {
		parsed.ExpiresIn = 3600
	}

	return model.Token{
		Value:     parsed.AccessToken,
		ExpiresAt: start.Add(time.Duration(parsed.ExpiresIn) * time.Second),
	}, nil
}
