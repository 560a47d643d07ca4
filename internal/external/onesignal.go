package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"deedhive/internal/types"
)

// oneSignalAPIBase is the default OneSignal API base URL. Overridable in
// tests via OneSignalClientConfig.BaseURL.
const oneSignalAPIBase = "https://onesignal.com/api/v1"

// OneSignalClientConfig holds the configuration for creating a
// OneSignalClient.
type OneSignalClientConfig struct {
	AppID      string
	RESTAPIKey string
	BaseURL    string // Override for testing; defaults to oneSignalAPIBase
	Logger     *slog.Logger
}

// OneSignalClient delivers push notifications through the OneSignal Create
// Notification API, routed through BaseClient for circuit breaking and
// retries. Devices are addressed by player ID, which is the device identity
// the mobile client registers at install time.
type OneSignalClient struct {
	base       *BaseClient
	appID      string
	restAPIKey string
	baseURL    string
	logger     *slog.Logger
}

// NewOneSignalClient creates a new OneSignalClient.
func NewOneSignalClient(httpClient *http.Client, cfg OneSignalClientConfig) *OneSignalClient {
	base := NewBaseClient(
		httpClient,
		"onesignal",
		DefaultRetryPolicy(),
		"DeedHive/1.0",
		types.ErrCodeUpstreamPush,
	)
	return newOneSignalClient(base, cfg)
}

// NewOneSignalClientWithBase creates a OneSignalClient with a pre-configured
// BaseClient, for tests that control retry and breaker behavior.
func NewOneSignalClientWithBase(base *BaseClient, cfg OneSignalClientConfig) *OneSignalClient {
	return newOneSignalClient(base, cfg)
}

func newOneSignalClient(base *BaseClient, cfg OneSignalClientConfig) *OneSignalClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = oneSignalAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OneSignalClient{
		base:       base,
		appID:      cfg.AppID,
		restAPIKey: cfg.RESTAPIKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		logger:     logger,
	}
}

// createNotificationRequest is the OneSignal Create Notification payload,
// limited to the fields this service sends.
type createNotificationRequest struct {
	AppID            string            `json:"app_id"`
	IncludePlayerIDs []string          `json:"include_player_ids"`
	Headings         map[string]string `json:"headings"`
	Contents         map[string]string `json:"contents"`
}

// createNotificationResponse covers both shapes OneSignal returns: an ID on
// success, and an errors list (sometimes alongside HTTP 200) when nothing
// was delivered.
type createNotificationResponse struct {
	ID     string          `json:"id"`
	Errors json.RawMessage `json:"errors"`
}

// Send pushes one notification to one device.
//
// OneSignal reports per-recipient problems (unsubscribed device, unknown
// player ID) inside a 200 body rather than via status code, so the response
// body is always inspected: an empty notification ID or a populated errors
// field is a failure.
func (c *OneSignalClient) Send(ctx context.Context, deviceID, heading, body string) error {
	payload := createNotificationRequest{
		AppID:            c.appID,
		IncludePlayerIDs: []string{deviceID},
		Headings:         map[string]string{"en": heading},
		Contents:         map[string]string{"en": body},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to marshal notification payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/notifications", bytes.NewReader(data))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to build notification request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+c.restAPIKey)

	resp, err := c.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamPush,
			"failed to read push provider response", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.ErrorContext(ctx, "push provider rejected notification",
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		return types.NewAppError(types.ErrCodeUpstreamPush,
			fmt.Sprintf("push provider returned %d", resp.StatusCode), nil)
	}

	var parsed createNotificationResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamPush,
			"failed to parse push provider response", err)
	}
	if len(parsed.Errors) > 0 && string(parsed.Errors) != "null" {
		return types.NewAppError(types.ErrCodeUpstreamPush,
			"push provider reported delivery errors", nil).
			WithDetails(map[string]any{"errors": json.RawMessage(parsed.Errors)})
	}
	if parsed.ID == "" {
		return types.NewAppError(types.ErrCodeUpstreamPush,
			"push provider returned no notification id", nil)
	}

	c.logger.DebugContext(ctx, "push notification accepted",
		"notification_id", parsed.ID,
	)
	return nil
}
