package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/neilnvaidya/owlby-api/internal/config"
	"github.com/neilnvaidya/owlby-api/internal/service"
)

// GeminiClient calls the Gemini generateContent API and classifies failures
// into *service.UpstreamError variants at this boundary.
type GeminiClient struct {
	client  *req.Client
	baseURL string
	apiKey  string
}

func NewGeminiClient(cfg config.AIConfig) *GeminiClient {
	client := req.C().
		SetTimeout(60 * time.Second).
		SetCommonHeader("Content-Type", "application/json")

	return &GeminiClient{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
	}
}

// Generate issues one generateContent call against the named model.
func (c *GeminiClient) Generate(ctx context.Context, model string, input *service.GenerationInput) (*service.GenerationResult, error) {
	body, err := buildRequestBody(input)
	if err != nil {
		return nil, fmt.Errorf("build request body: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, model)

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("x-goog-api-key", c.apiKey).
		SetBodyJsonBytes(body).
		Post(url)
	if err != nil {
		return nil, classifyTransportError(model, err)
	}

	respBody := resp.Bytes()
	if resp.IsErrorState() {
		return nil, classifyHTTPError(model, resp.StatusCode, respBody)
	}

	result := parseGenerateResponse(respBody)
	slog.Debug("gemini_response_parsed",
		"model", model,
		"status", resp.StatusCode,
		"text_len", len(result.Text),
		"total_tokens", result.Usage.TotalTokens)
	return result, nil
}

func buildRequestBody(input *service.GenerationInput) ([]byte, error) {
	body := []byte(`{}`)
	var err error

	body, err = sjson.SetRawBytes(body, "contents", input.Contents)
	if err != nil {
		return nil, err
	}
	if input.SystemInstruction != "" {
		body, err = sjson.SetBytes(body, "systemInstruction.parts.0.text", input.SystemInstruction)
		if err != nil {
			return nil, err
		}
	}
	if input.MaxOutputTokens > 0 {
		body, err = sjson.SetBytes(body, "generationConfig.maxOutputTokens", input.MaxOutputTokens)
		if err != nil {
			return nil, err
		}
	}
	if len(input.ResponseSchema) > 0 {
		body, err = sjson.SetBytes(body, "generationConfig.responseMimeType", "application/json")
		if err != nil {
			return nil, err
		}
		body, err = sjson.SetRawBytes(body, "generationConfig.responseSchema", input.ResponseSchema)
		if err != nil {
			return nil, err
		}
	}
	return body, nil
}

// parseGenerateResponse extracts the completion text, preferring the
// top-level convenience field and falling back to concatenating the first
// candidate's parts.
func parseGenerateResponse(body []byte) *service.GenerationResult {
	text := gjson.GetBytes(body, "text").String()
	if text == "" {
		var sb strings.Builder
		for _, part := range gjson.GetBytes(body, "candidates.0.content.parts.#.text").Array() {
			sb.WriteString(part.String())
		}
		text = sb.String()
	}

	meta := gjson.GetBytes(body, "usageMetadata")
	return &service.GenerationResult{
		Text: text,
		Usage: service.Usage{
			PromptTokens:     meta.Get("promptTokenCount").Int(),
			CompletionTokens: meta.Get("candidatesTokenCount").Int(),
			TotalTokens:      meta.Get("totalTokenCount").Int(),
		},
	}
}

func classifyTransportError(model string, err error) error {
	return &service.UpstreamError{
		Kind:    service.FailureTransient,
		Model:   model,
		Message: err.Error(),
	}
}

func classifyHTTPError(model string, status int, body []byte) error {
	apiStatus := gjson.GetBytes(body, "error.status").String()
	message := gjson.GetBytes(body, "error.message").String()
	if message == "" {
		message = fmt.Sprintf("upstream returned status %d", status)
	}

	kind := service.FailureTransient
	switch {
	case status == 429 || apiStatus == "RESOURCE_EXHAUSTED":
		kind = service.FailureRateLimited
	case apiStatus == "FAILED_PRECONDITION":
		kind = service.FailureRegionRestricted
	case status == 503 || status == 529 || apiStatus == "UNAVAILABLE":
		kind = service.FailureOverloaded
	case status == 504 || apiStatus == "DEADLINE_EXCEEDED":
		kind = service.FailureAttemptTimeout
	}

	return &service.UpstreamError{
		Kind:    kind,
		Model:   model,
		Status:  status,
		Message: message,
	}
}
