package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mamadbah2/nutrilog/internal/config"
)

// Client exposes the hosted identity operations used by the application.
type Client interface {
	SignUpAnonymous(ctx context.Context) (*SignUpResponse, error)
}

// APIClient is a resty-backed implementation of Client talking to the
// Identity Toolkit REST API.
type APIClient struct {
	httpClient *resty.Client
	apiKey     string
}

// NewClient builds an identity client using the provided configuration values.
func NewClient(cfg config.IdentityConfig) *APIClient {
	base := strings.TrimSuffix(cfg.BaseURL, "/")

	restyClient := resty.New()
	restyClient.
		SetBaseURL(base+"/v1").
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second)

	return &APIClient{
		httpClient: restyClient,
		apiKey:     cfg.APIKey,
	}
}

// SignUpResponse mirrors the successful accounts:signUp response.
type SignUpResponse struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	LocalID      string `json:"localId"`
}

// apiError represents an Identity Toolkit error payload.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignUpAnonymous creates a new anonymous account and returns its id.
func (c *APIClient) SignUpAnonymous(ctx context.Context) (*SignUpResponse, error) {
	result := new(SignUpResponse)
	apiErr := new(apiError)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetBody(map[string]any{"returnSecureToken": true}).
		SetResult(result).
		SetError(apiErr).
		Post("/accounts:signUp")
	if err != nil {
		return nil, fmt.Errorf("anonymous sign-up: %w", err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		code := resp.StatusCode()
		if apiErr.Error.Code != 0 {
			code = apiErr.Error.Code
		}
		return nil, fmt.Errorf("identity api error: code=%d, message=%s", code, apiErr.Error.Message)
	}

	if result.LocalID == "" {
		return nil, errors.New("identity api returned no localId")
	}

	return result, nil
}

// SignInAnonymously adapts the client to the session authenticator contract.
func (c *APIClient) SignInAnonymously(ctx context.Context) (string, error) {
	resp, err := c.SignUpAnonymous(ctx)
	if err != nil {
		return "", err
	}
	return resp.LocalID, nil
}
