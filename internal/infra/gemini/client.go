package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"jarvis/internal/application"
	"jarvis/internal/domain"
	"jarvis/internal/infra/audio"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.0-flash"
)

type Config struct {
	APIKey       string
	Model        string
	BaseURL      string
	MaxTokens    int
	SystemPrompt string
	// SendAudio attaches the utterance as WAV to the newest user message.
	SendAudio bool
}

type Client struct {
	apiKey       string
	httpClient   *http.Client
	baseURL      string
	model        string
	maxTokens    int
	systemPrompt string
	sendAudio    bool
}

func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 100
	}
	return &Client{
		apiKey:       cfg.APIKey,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		systemPrompt: cfg.SystemPrompt,
		sendAudio:    cfg.SendAudio,
	}
}

type content struct {
	Parts []part `json:"parts"`
	Role  string `json:"role,omitempty"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type request struct {
	Contents         []content        `json:"contents"`
	SystemInstruct   *content         `json:"systemInstruction,omitempty"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens"`
}

type response struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

func (c *Client) Respond(ctx context.Context, req application.InferenceRequest) (string, error) {
	contents := toContents(req.Turns)
	if req.Empty() || len(contents) == 0 {
		return "", nil
	}

	if c.sendAudio && req.Utterance != nil && len(req.Utterance.Samples) > 0 {
		last := &contents[len(contents)-1]
		if last.Role == "user" {
			var buf bytes.Buffer
			if err := audio.EncodeWAV(&buf, req.Utterance.Samples, req.Utterance.SampleRate); err != nil {
				return "", fmt.Errorf("encoding utterance: %w", err)
			}
			last.Parts = append(last.Parts, part{InlineData: &inlineData{
				MimeType: "audio/wav",
				Data:     base64.StdEncoding.EncodeToString(buf.Bytes()),
			}})
		}
	}

	reqBody := request{
		Contents:         contents,
		GenerationConfig: generationConfig{MaxOutputTokens: c.maxTokens},
	}
	if c.systemPrompt != "" {
		reqBody.SystemInstruct = &content{Parts: []part{{Text: c.systemPrompt}}}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini API error %d: %s", resp.StatusCode, string(respBody))
	}

	var result response
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	if result.Error != nil {
		return "", fmt.Errorf("gemini error: %s", result.Error.Message)
	}

	if len(result.Candidates) == 0 {
		return "", nil
	}

	var sb strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return strings.TrimSpace(sb.String()), nil
}

// toContents maps history onto Gemini roles. Gemini calls the assistant
// "model"; a conversation has to start with a user turn.
func toContents(turns []domain.Turn) []content {
	var out []content
	for _, t := range turns {
		if t.Content == "" {
			continue
		}
		role := "user"
		if t.Role == domain.RoleAssistant {
			role = "model"
		}
		if len(out) == 0 && role == "model" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Parts = append(out[n-1].Parts, part{Text: t.Content})
			continue
		}
		out = append(out, content{Role: role, Parts: []part{{Text: t.Content}}})
	}
	return out
}
