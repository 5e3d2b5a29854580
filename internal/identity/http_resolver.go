package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MimeLyc/carshop-agent/internal/apperr"
)

// HTTPResolver verifies tokens against a GoTrue-compatible auth service
// (GET {baseURL}/auth/v1/user).
type HTTPResolver struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPResolver(baseURL, apiKey string) *HTTPResolver {
	return &HTTPResolver{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type authUser struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	UserMetadata struct {
		FullName string `json:"full_name"`
		Name     string `json:"name"`
		Phone    string `json:"phone"`
	} `json:"user_metadata"`
}

func (r *HTTPResolver) Resolve(ctx context.Context, token string) (*User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, apperr.New(apperr.KindAuth, "Unable to verify user.")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if r.apiKey != "" {
		req.Header.Set("apikey", r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindExternal, "auth service unavailable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindExternal, "failed to read auth response")
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apperr.New(apperr.KindAuth, "Unable to verify user.")
	case resp.StatusCode != http.StatusOK:
		return nil, apperr.Newf(apperr.KindExternal, "auth service returned status %d", resp.StatusCode)
	}

	var au authUser
	if err := json.Unmarshal(body, &au); err != nil {
		return nil, apperr.Wrap(err, apperr.KindExternal, "failed to decode auth response")
	}
	if au.ID == "" {
		return nil, apperr.New(apperr.KindAuth, "Unable to verify user.")
	}

	name := au.UserMetadata.FullName
	if name == "" {
		name = au.UserMetadata.Name
	}
	phone := au.Phone
	if phone == "" {
		phone = au.UserMetadata.Phone
	}
	return &User{
		ID:          au.ID,
		Email:       au.Email,
		FullName:    name,
		Phone:       phone,
		AccessToken: token,
	}, nil
}
