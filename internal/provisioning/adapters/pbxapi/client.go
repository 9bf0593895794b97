package pbxapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/AradIT/voipprov/internal/provisioning/domain"
)

// Client talks to the hosted PBX's REST API (the NS API). It implements
// domain.PBXClient.
type Client struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates a new Client. baseURL is the API root without a trailing
// slash, e.g. "https://pbx.example.com/ns-api/v2".
func NewClient(logger *slog.Logger, baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		logger:     logger.With("component", "pbxapi_client"),
		httpClient: httpClient,
		baseURL:    baseURL,
		token:      token,
	}
}

type subscriberDTO struct {
	Extension    string `json:"extension"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	DisplayName  string `json:"display_name"`
	CallerIDName string `json:"callerid_name"`
	Email        string `json:"email"`
	Domain       string `json:"domain"`
	ServiceCode  string `json:"service_code"`
}

type countResponse struct {
	Count int `json:"count"`
}

type createDeviceRequest struct {
	Address string `json:"address"`
	User    string `json:"user"`
}

// apiErrorResponse is the error body shape the PBX returns on non-2xx.
type apiErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ListSubscribers fetches every subscriber of the domain.
func (c *Client) ListSubscribers(ctx context.Context, pbxDomain string) ([]*domain.Subscriber, error) {
	endpoint := fmt.Sprintf("%s/domains/%s/subscribers", c.baseURL, url.PathEscape(pbxDomain))
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var dtos []subscriberDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return nil, fmt.Errorf("parsing subscriber list: %w", err)
	}

	subscribers := make([]*domain.Subscriber, 0, len(dtos))
	for _, dto := range dtos {
		subscribers = append(subscribers, &domain.Subscriber{
			Extension:    dto.Extension,
			FirstName:    dto.FirstName,
			LastName:     dto.LastName,
			DisplayName:  dto.DisplayName,
			CallerIDName: dto.CallerIDName,
			Email:        dto.Email,
			Domain:       dto.Domain,
			ServiceCode:  dto.ServiceCode,
		})
	}
	c.logger.DebugContext(ctx, "Fetched subscribers", "domain", pbxDomain, "count", len(subscribers))
	return subscribers, nil
}

// CountDevicesForUser counts the devices registered to a subscriber user.
func (c *Client) CountDevicesForUser(ctx context.Context, pbxDomain, user string) (int, error) {
	return c.countDevices(ctx, pbxDomain, url.Values{"user": {user}})
}

// CountDevicesForAddress counts the devices at one full address-of-record.
func (c *Client) CountDevicesForAddress(ctx context.Context, pbxDomain, address string) (int, error) {
	return c.countDevices(ctx, pbxDomain, url.Values{"address": {address}})
}

func (c *Client) countDevices(ctx context.Context, pbxDomain string, query url.Values) (int, error) {
	endpoint := fmt.Sprintf("%s/domains/%s/devices/count?%s", c.baseURL, url.PathEscape(pbxDomain), query.Encode())
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return 0, err
	}

	var resp countResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("parsing device count: %w", err)
	}
	return resp.Count, nil
}

// CreateOrFetchDevice posts the device registration. The PBX treats the call
// as an upsert: a brand-new device and a pre-existing one both come back with
// the SIP credential. A 2xx response with no usable body yields (nil, nil).
func (c *Client) CreateOrFetchDevice(ctx context.Context, pbxDomain, address, user string) (*domain.DeviceCredential, error) {
	endpoint := fmt.Sprintf("%s/domains/%s/devices", c.baseURL, url.PathEscape(pbxDomain))

	reqBytes, err := json.Marshal(createDeviceRequest{Address: address, User: user})
	if err != nil {
		return nil, fmt.Errorf("marshaling device request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("building device request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("device request to %s failed: %w", address, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading device response (status %d): %w", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, c.apiError(ctx, httpResp.StatusCode, respBody)
	}

	if len(respBody) == 0 || httpResp.StatusCode == http.StatusNoContent {
		c.logger.WarnContext(ctx, "Device upsert returned no body", "address", address, "status_code", httpResp.StatusCode)
		return nil, nil
	}

	var cred domain.DeviceCredential
	if err := json.Unmarshal(respBody, &cred); err != nil {
		c.logger.WarnContext(ctx, "Device upsert succeeded but response did not parse",
			"address", address, "status_code", httpResp.StatusCode, "error", err)
		return nil, nil
	}
	if cred.Password == "" {
		c.logger.WarnContext(ctx, "Device upsert returned no credential", "address", address)
		return nil, nil
	}
	return &cred, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to PBX API failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading PBX API response (status %d): %w", httpResp.StatusCode, err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, c.apiError(ctx, httpResp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) apiError(ctx context.Context, statusCode int, body []byte) error {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return fmt.Errorf("PBX API error: status %d, message: %s", statusCode, apiErr.Message)
	}
	if len(body) > 0 && len(body) < 200 {
		return fmt.Errorf("PBX API error: status %d, raw_body: %s", statusCode, string(body))
	}
	return fmt.Errorf("PBX API error: status %d", statusCode)
}
