package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// OpenAIProvider calls an OpenAI-compatible chat completions API and, for
// voice messages, the audio transcription endpoint.
type OpenAIProvider struct {
	BaseURL         string
	APIKey          string
	Model           string
	TranscribeModel string
	SystemPrompt    string
	Temperature     float64
	MaxTokens       int
	Client          *http.Client
}

func NewOpenAIProvider(baseURL, apiKey, model, transcribeModel, systemPrompt string, temperature float64, maxTokens int) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if transcribeModel == "" {
		transcribeModel = "whisper-1"
	}
	return &OpenAIProvider{
		BaseURL:         strings.TrimRight(baseURL, "/"),
		APIKey:          apiKey,
		Model:           model,
		TranscribeModel: transcribeModel,
		SystemPrompt:    systemPrompt,
		Temperature:     temperature,
		MaxTokens:       maxTokens,
		Client:          &http.Client{Timeout: 90 * time.Second},
	}
}

type openaiContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type openaiMsg struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openaiChatReq struct {
	Model       string      `json:"model"`
	Messages    []openaiMsg `json:"messages"`
	Temperature float64     `json:"temperature"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
}

type openaiChatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *OpenAIProvider) Generate(ctx context.Context, parts []Part) (string, error) {
	if p.Client == nil {
		return "", errors.New("openai: http client is nil")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return "", errors.New("openai: api key is required")
	}
	if len(parts) == 0 {
		return "", errors.New("openai: empty prompt")
	}

	content := make([]openaiContentPart, 0, len(parts))
	for _, part := range parts {
		switch part.Type {
		case PartText:
			content = append(content, openaiContentPart{Type: "text", Text: part.Text})
		case PartImageURL:
			cp := openaiContentPart{Type: "image_url"}
			cp.ImageURL = &struct {
				URL string `json:"url"`
			}{URL: part.ImageURL}
			content = append(content, cp)
		default:
			return "", fmt.Errorf("openai: unknown part type %q", part.Type)
		}
	}

	reqBody := openaiChatReq{
		Model: p.Model,
		Messages: []openaiMsg{
			{Role: "system", Content: p.SystemPrompt},
			{Role: "user", Content: content},
		},
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := p.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("openai: %s", msg)
	}

	var decoded openaiChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", errors.New(decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("openai: empty response")
	}
	return decoded.Choices[0].Message.Content, nil
}

type transcriptionResp struct {
	Text  string `json:"text"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *OpenAIProvider) Transcribe(ctx context.Context, filename string, audio []byte) (string, error) {
	if p.Client == nil {
		return "", errors.New("openai: http client is nil")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return "", errors.New("openai: api key is required")
	}
	if len(audio) == 0 {
		return "", errors.New("openai: empty audio")
	}
	if filename == "" {
		filename = "audio.ogg"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(audio); err != nil {
		return "", err
	}
	if err := w.WriteField("model", p.TranscribeModel); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	url := p.BaseURL + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("openai: %s", msg)
	}

	var decoded transcriptionResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", errors.New(decoded.Error.Message)
	}
	return decoded.Text, nil
}
