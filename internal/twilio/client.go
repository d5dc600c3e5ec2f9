// Package twilio adapts the call orchestration core to Twilio: REST call
// control, TwiML rendering and webhook parsing.
package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.twilio.com/2010-04-01"

// Client is a minimal Twilio Voice REST client.
type Client struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
}

type Config struct {
	AccountSID string
	AuthToken  string
	BaseURL    string
	HTTPClient *http.Client
}

func New(cfg Config) (*Client, error) {
	accountSID := strings.TrimSpace(cfg.AccountSID)
	if accountSID == "" {
		return nil, errors.New("twilio: account sid is required")
	}
	authToken := strings.TrimSpace(cfg.AuthToken)
	if authToken == "" {
		return nil, errors.New("twilio: auth token is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    baseURL,
		httpClient: httpClient,
	}, nil
}

func (c *Client) AccountSID() string {
	return c.accountSID
}

// Call is the subset of the Twilio call resource the service reads.
type Call struct {
	SID       string `json:"sid"`
	To        string `json:"to"`
	From      string `json:"from"`
	Status    string `json:"status"`
	Direction string `json:"direction"`
	Duration  string `json:"duration"`
}

type MakeCallParams struct {
	To                  string
	From                string
	Twiml               string
	URL                 string
	StatusCallback      string
	StatusCallbackEvent []string
	Timeout             int
}

func (c *Client) MakeCall(ctx context.Context, params MakeCallParams) (*Call, error) {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", c.baseURL, c.accountSID)

	data := url.Values{}
	data.Set("To", params.To)
	data.Set("From", params.From)
	if params.URL != "" {
		data.Set("Url", params.URL)
	}
	if params.Twiml != "" {
		data.Set("Twiml", params.Twiml)
	}
	if params.StatusCallback != "" {
		data.Set("StatusCallback", params.StatusCallback)
		data.Set("StatusCallbackMethod", http.MethodPost)
	}
	for _, event := range params.StatusCallbackEvent {
		data.Add("StatusCallbackEvent", event)
	}
	if params.Timeout > 0 {
		data.Set("Timeout", fmt.Sprintf("%d", params.Timeout))
	}

	var call Call
	if err := c.post(ctx, endpoint, data, &call); err != nil {
		return nil, err
	}
	return &call, nil
}

type UpdateCallParams struct {
	URL    string
	Twiml  string
	Status string
}

// UpdateCall modifies an in-progress call.
func (c *Client) UpdateCall(ctx context.Context, callSID string, params UpdateCallParams) (*Call, error) {
	if strings.TrimSpace(callSID) == "" {
		return nil, errors.New("twilio: call sid is required")
	}
	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", c.baseURL, c.accountSID, url.PathEscape(callSID))

	data := url.Values{}
	if params.URL != "" {
		data.Set("Url", params.URL)
	}
	if params.Twiml != "" {
		data.Set("Twiml", params.Twiml)
	}
	if params.Status != "" {
		data.Set("Status", params.Status)
	}

	var call Call
	if err := c.post(ctx, endpoint, data, &call); err != nil {
		return nil, err
	}
	return &call, nil
}

func (c *Client) HangupCall(ctx context.Context, callSID string) (*Call, error) {
	return c.UpdateCall(ctx, callSID, UpdateCallParams{Status: "completed"})
}

// Error is a decoded Twilio API error body.
type Error struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("twilio error %d: %s", e.Code, e.Message)
}

func (e *Error) HTTPStatusCode() int {
	return e.Status
}

func (c *Client) post(ctx context.Context, endpoint string, data url.Values, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("twilio: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("twilio: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &Error{Status: resp.StatusCode}
		if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		if apiErr.Status == 0 {
			apiErr.Status = resp.StatusCode
		}
		return apiErr
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("twilio: parse response: %w", err)
		}
	}
	return nil
}
