package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MimeLyc/carshop-agent/internal/apperr"
	"github.com/MimeLyc/carshop-agent/internal/identity"
)

// HTTPClient is the Collaborator that talks to a remote POST /api/bookings.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type createResponse struct {
	Booking *Booking `json:"booking"`
	Message string   `json:"message"`
}

func (c *HTTPClient) CreateBooking(ctx context.Context, user *identity.User, req CreateRequest) (Booking, error) {
	if c.baseURL == "" {
		return Booking{}, apperr.New(apperr.KindConfig, "booking service is not configured: BOOKING_BASE_URL")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Booking{}, fmt.Errorf("failed to marshal booking request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/bookings", bytes.NewReader(body))
	if err != nil {
		return Booking{}, fmt.Errorf("failed to create booking request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if user != nil && user.AccessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+user.AccessToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Booking{}, apperr.Wrap(err, apperr.KindExternal, "Unable to reach the booking service. Please try again later.")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Booking{}, apperr.Wrap(err, apperr.KindExternal, "Unable to read the booking service response.")
	}

	var out createResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg := strings.TrimSpace(out.Message)
		if msg == "" {
			msg = fmt.Sprintf("Booking service returned status %d.", resp.StatusCode)
		}
		return Booking{}, apperr.New(kindForStatus(resp.StatusCode), msg).WithContext("status", resp.StatusCode)
	}
	if decodeErr != nil || out.Booking == nil {
		return Booking{}, apperr.New(apperr.KindExternal, "Booking service returned an unexpected response.")
	}
	return *out.Booking, nil
}

func kindForStatus(code int) apperr.Kind {
	switch code {
	case http.StatusBadRequest:
		return apperr.KindValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperr.KindAuth
	case http.StatusNotFound:
		return apperr.KindNotFound
	default:
		return apperr.KindExternal
	}
}
