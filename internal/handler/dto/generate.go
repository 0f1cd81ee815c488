// Package dto holds the request and response shapes of the public API.
package dto

import (
	"encoding/json"

	"github.com/neilnvaidya/owlby-api/internal/service"
)

// GenerateRequest is the payload accepted by every generation endpoint. The
// conversation contents pass through to the upstream model untouched.
type GenerateRequest struct {
	Contents          json.RawMessage `json:"contents" binding:"required"`
	SystemInstruction string          `json:"systemInstruction"`
	ResponseSchema    json.RawMessage `json:"responseSchema"`
	MaxOutputTokens   int             `json:"maxOutputTokens"`
}

// LimitInfo reports where the caller stands against a daily limit.
type LimitInfo struct {
	Tier       string `json:"tier"`
	DailyUsage int    `json:"dailyUsage"`
	DailyLimit int    `json:"dailyLimit"`
}

// GenerateResponse is the envelope returned by every generation endpoint.
// Denials and upstream failures still return HTTP 200 with Success false so
// clients branch on the envelope, not the status code.
type GenerateResponse struct {
	Success      bool            `json:"success"`
	Message      string          `json:"message,omitempty"`
	Code         string          `json:"code,omitempty"`
	Response     json.RawMessage `json:"response,omitempty"`
	ModelUsed    string          `json:"modelUsed,omitempty"`
	FallbackUsed bool            `json:"fallbackUsed,omitempty"`
	Usage        *service.Usage  `json:"usage,omitempty"`
	Limit        *LimitInfo      `json:"limit,omitempty"`
}

// LimitsResponse is the per-route limit snapshot for the caller.
type LimitsResponse struct {
	Tier   string               `json:"tier"`
	Routes map[string]LimitInfo `json:"routes"`
}
