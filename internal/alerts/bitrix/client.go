// Package bitrix implements the alerts.TicketSink capability against the
// Bitrix24 task REST API, plus a stub variant for environments without a
// live portal. The variant is selected by configuration at composition time.
package bitrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mantaqc_backend/internal/alerts"
	"mantaqc_backend/platform/config"
	"mantaqc_backend/platform/logger"

	"golang.org/x/time/rate"
)

// statusMap translates sink statuses to Bitrix task stage codes.
var statusMap = map[string]int{
	"PENDING":     0,
	"IN_PROGRESS": 2,
	"DONE":        5,
	"COMPLETED":   5,
}

// taskFields is the Bitrix task field document.
type taskFields struct {
	Title       string `json:"TITLE,omitempty"`
	Description string `json:"DESCRIPTION,omitempty"`
	Tags        string `json:"TAGS,omitempty"`
	Status      *int   `json:"STATUS,omitempty"`
}

func mapFields(payload alerts.TicketPayload) taskFields {
	fields := taskFields{
		Title:       payload.Title,
		Description: payload.Description,
		Tags:        payload.Tags,
	}
	if code, ok := statusMap[strings.ToUpper(payload.Status)]; ok {
		fields.Status = &code
	}
	return fields
}

// Client is the live TicketSink. Calls are rate limited to stay inside the
// portal's request budget; timeouts and 5xx responses surface as transient
// errors so the caller's retry policy can take over.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	token      string
	callLog    *CallLog
	log        *logger.Logger
}

// NewClient creates a live Bitrix client.
func NewClient(cfg config.TicketSinkConfig, callLog *CallLog, log *logger.Logger) *Client {
	rps := cfg.GetTicketSinkRequestsPerSecond()
	if rps <= 0 {
		rps = 2
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		baseURL:    strings.TrimRight(cfg.GetTicketSinkBaseURL(), "/"),
		token:      cfg.GetTicketSinkAccessToken(),
		callLog:    callLog,
		log:        log,
	}
}

// CreateTicket creates a Bitrix task for the payload.
func (c *Client) CreateTicket(ctx context.Context, payload alerts.TicketPayload) (alerts.TicketResult, error) {
	body := map[string]any{"fields": mapFields(payload)}

	var response struct {
		Result struct {
			Task struct {
				ID json.Number `json:"id"`
			} `json:"task"`
		} `json:"result"`
	}
	if err := c.call(ctx, "tasks.task.add", body, &response); err != nil {
		return alerts.TicketResult{}, err
	}

	result := alerts.TicketResult{OK: true, ExternalID: response.Result.Task.ID.String()}
	c.logCall(ctx, body, result, ModeLive)
	return result, nil
}

// UpdateTicket updates an existing Bitrix task.
func (c *Client) UpdateTicket(ctx context.Context, externalID string, payload alerts.TicketPayload) (alerts.TicketResult, error) {
	body := map[string]any{"taskId": externalID, "fields": mapFields(payload)}

	var response map[string]any
	if err := c.call(ctx, "tasks.task.update", body, &response); err != nil {
		return alerts.TicketResult{}, err
	}

	result := alerts.TicketResult{OK: true, ExternalID: externalID}
	c.logCall(ctx, body, result, ModeLive)
	return result, nil
}

func (c *Client) call(ctx context.Context, method string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s.json", c.baseURL, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return alerts.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return alerts.Transient(fmt.Errorf("%s returned %d", method, resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s returned %d", method, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) logCall(ctx context.Context, payload any, result alerts.TicketResult, mode Mode) {
	if c.callLog == nil {
		return
	}
	if err := c.callLog.Record(ctx, payload, result, mode); err != nil {
		c.log.Warn("ticket call log write failed", "error", err)
	}
}

var _ alerts.TicketSink = (*Client)(nil)
