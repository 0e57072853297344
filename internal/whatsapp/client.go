// Package whatsapp is the outbound half of the WhatsApp Cloud API: sending
// text replies and fetching user-uploaded media for transcription and image
// analysis.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	BaseURL       string
	AccessToken   string
	PhoneNumberID string
	HTTP          *http.Client
}

func NewClient(baseURL, accessToken, phoneNumberID string) *Client {
	if baseURL == "" {
		baseURL = "https://graph.facebook.com/v20.0"
	}
	return &Client{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		AccessToken:   accessToken,
		PhoneNumberID: phoneNumberID,
		HTTP:          &http.Client{Timeout: 30 * time.Second},
	}
}

type sendTextReq struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

type sendTextResp struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// SendText delivers one text message. Fire-and-acknowledge: only the call's
// own success or failure is reported, delivery receipts are not inspected.
func (c *Client) SendText(ctx context.Context, to, text string) error {
	if c.HTTP == nil {
		return errors.New("whatsapp: http client is nil")
	}

	b, err := json.Marshal(sendTextReq{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: text},
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s/messages", c.BaseURL, c.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return fmt.Errorf("whatsapp: send failed: %s", msg)
	}

	var decoded sendTextResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return err
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return fmt.Errorf("whatsapp: %s", decoded.Error.Message)
	}
	return nil
}

type mediaMetaResp struct {
	URL   string `json:"url"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// MediaURL resolves a media ID to its short-lived download URL.
func (c *Client) MediaURL(ctx context.Context, mediaID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/"+mediaID, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("whatsapp: media lookup status %d", resp.StatusCode)
	}

	var decoded mediaMetaResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", fmt.Errorf("whatsapp: %s", decoded.Error.Message)
	}
	if decoded.URL == "" {
		return "", errors.New("whatsapp: media has no url")
	}
	return decoded.URL, nil
}

// DownloadMedia fetches the media bytes behind a media ID. The download URL
// requires the same bearer token as the lookup.
func (c *Client) DownloadMedia(ctx context.Context, mediaID string) ([]byte, error) {
	url, err := c.MediaURL(ctx, mediaID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("whatsapp: media download status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 25*1024*1024))
}
