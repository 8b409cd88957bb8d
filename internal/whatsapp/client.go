// Package whatsapp talks to the WhatsApp Cloud API: message sends, the
// channel-connect OAuth exchange, and phone number and template listing.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"whatsapp-crm/internal/config"
)

// ErrNoMessageID is returned when a send succeeds without messages[0].id.
var ErrNoMessageID = errors.New("platform response carried no message id")

// APIError is a non-2xx answer from the Graph API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %d - %s", e.StatusCode, e.Body)
}

type Client struct {
	baseURL   string
	version   string
	appID     string
	appSecret string
	http      *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.MetaBaseURL, "/"),
		version:   cfg.MetaAPIVersion,
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := fmt.Sprintf("%s/%s/%s", c.baseURL, c.version, strings.TrimLeft(path, "/"))
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) sendRequest(ctx context.Context, method, url, token string, body interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return respBody, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

// SendMessage posts msg from the given phone number and returns the
// platform message id.
func (c *Client) SendMessage(ctx context.Context, token, phoneNumberID string, msg GenericMessage) (string, error) {
	resp, err := c.sendRequest(ctx, http.MethodPost, c.endpoint(phoneNumberID+"/messages", nil), token, msg)
	if err != nil {
		return "", err
	}

	var out sendResponse
	if err := json.Unmarshal(resp, &out); err != nil {
		return "", fmt.Errorf("decode send response: %w", err)
	}
	if len(out.Messages) == 0 || out.Messages[0].ID == "" {
		return "", ErrNoMessageID
	}
	return out.Messages[0].ID, nil
}

// ExchangeCode trades an embedded-signup authorization code for a user
// access token.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	q := url.Values{
		"client_id":     {c.appID},
		"client_secret": {c.appSecret},
		"code":          {code},
	}
	if redirectURI != "" {
		q.Set("redirect_uri", redirectURI)
	}

	resp, err := c.sendRequest(ctx, http.MethodGet, c.endpoint("oauth/access_token", q), "", nil)
	if err != nil {
		return "", err
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", errors.New("token exchange returned no access_token")
	}
	return out.AccessToken, nil
}

// WabaIDForToken inspects token via debug_token and returns the first
// WhatsApp Business Account it was granted on.
func (c *Client) WabaIDForToken(ctx context.Context, token string) (string, error) {
	q := url.Values{
		"input_token":  {token},
		"access_token": {c.appID + "|" + c.appSecret},
	}
	resp, err := c.sendRequest(ctx, http.MethodGet, c.endpoint("debug_token", q), "", nil)
	if err != nil {
		return "", err
	}

	var out struct {
		Data struct {
			GranularScopes []struct {
				Scope     string   `json:"scope"`
				TargetIDs []string `json:"target_ids"`
			} `json:"granular_scopes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return "", err
	}

	fallback := ""
	for _, s := range out.Data.GranularScopes {
		if len(s.TargetIDs) == 0 {
			continue
		}
		if s.Scope == "whatsapp_business_management" {
			return s.TargetIDs[0], nil
		}
		if fallback == "" {
			fallback = s.TargetIDs[0]
		}
	}
	if fallback == "" {
		return "", errors.New("token grants no WhatsApp Business Account")
	}
	return fallback, nil
}

func (c *Client) PhoneNumbers(ctx context.Context, token, wabaID string) ([]PhoneNumberInfo, error) {
	resp, err := c.sendRequest(ctx, http.MethodGet, c.endpoint(wabaID+"/phone_numbers", nil), token, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Data []PhoneNumberInfo `json:"data"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) Templates(ctx context.Context, token, wabaID string) ([]TemplateInfo, error) {
	q := url.Values{"limit": {"100"}}
	resp, err := c.sendRequest(ctx, http.MethodGet, c.endpoint(wabaID+"/message_templates", q), token, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, err
	}

	templates := make([]TemplateInfo, 0, len(out.Data))
	for _, raw := range out.Data {
		var t TemplateInfo
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, err
		}
		if t.Language == "" {
			t.Language = "en_US"
		}
		t.Raw = raw
		templates = append(templates, t)
	}
	return templates, nil
}
