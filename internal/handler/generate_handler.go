// Package handler wires the public HTTP endpoints to the service layer.
package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/neilnvaidya/owlby-api/internal/config"
	"github.com/neilnvaidya/owlby-api/internal/domain"
	"github.com/neilnvaidya/owlby-api/internal/handler/dto"
	infraerrors "github.com/neilnvaidya/owlby-api/internal/pkg/errors"
	"github.com/neilnvaidya/owlby-api/internal/pkg/response"
	"github.com/neilnvaidya/owlby-api/internal/server/middleware"
	"github.com/neilnvaidya/owlby-api/internal/service"
)

// GenerateHandler serves the generation endpoints and the limits snapshot.
type GenerateHandler struct {
	ai       *service.AIService
	gate     *service.AccessGateService
	recorder *service.UsageRecorderService
	limiter  *service.SlidingWindowLimiter
	rlCfg    config.RateLimitConfig
}

func NewGenerateHandler(
	ai *service.AIService,
	gate *service.AccessGateService,
	recorder *service.UsageRecorderService,
	limiter *service.SlidingWindowLimiter,
	rlCfg config.RateLimitConfig,
) *GenerateHandler {
	return &GenerateHandler{
		ai:       ai,
		gate:     gate,
		recorder: recorder,
		limiter:  limiter,
		rlCfg:    rlCfg,
	}
}

func (h *GenerateHandler) Chat(c *gin.Context)   { h.generate(c, domain.RouteChat) }
func (h *GenerateHandler) Lesson(c *gin.Context) { h.generate(c, domain.RouteLesson) }
func (h *GenerateHandler) Story(c *gin.Context)  { h.generate(c, domain.RouteStory) }

func (h *GenerateHandler) generate(c *gin.Context, route string) {
	userID := middleware.UserID(c)

	rl := h.limiter.Check(userID+":"+route, h.rlCfg.Requests, h.rlCfg.Window())
	if !rl.Allowed {
		c.Header("Retry-After", strconv.Itoa(int(rl.RetryAfter.Seconds())+1))
		response.TooManyRequests(c, "too many requests, slow down a little")
		return
	}

	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	decision := h.gate.CanGenerate(c.Request.Context(), userID, route)
	if !decision.Allowed {
		response.Success(c, denialResponse(decision))
		return
	}

	result, err := h.ai.ProcessRequest(c.Request.Context(), route, &service.GenerationInput{
		SystemInstruction: req.SystemInstruction,
		Contents:          req.Contents,
		ResponseSchema:    req.ResponseSchema,
		MaxOutputTokens:   req.MaxOutputTokens,
	})
	if err != nil {
		slog.Error("generation_failed",
			"user_id", userID,
			"route", route,
			"code", infraerrors.Code(err),
			"error", err.Error())
		response.Success(c, &dto.GenerateResponse{
			Success: false,
			Code:    infraerrors.Code(err),
			Message: infraerrors.Message(err),
		})
		return
	}

	h.recorder.RecordGeneration(userID, route)

	response.Success(c, &dto.GenerateResponse{
		Success:      true,
		Response:     responseDocument(result.Text),
		ModelUsed:    result.ModelUsed,
		FallbackUsed: result.FallbackUsed,
		Usage:        &result.Usage,
		Limit: &dto.LimitInfo{
			Tier:       decision.Tier,
			DailyUsage: decision.DailyUsage + 1,
			DailyLimit: decision.DailyLimit,
		},
	})
}

// Limits reports the caller's standing against each route's daily limit.
func (h *GenerateHandler) Limits(c *gin.Context) {
	userID := middleware.UserID(c)

	routes := make(map[string]dto.LimitInfo, len(domain.Routes))
	tier := domain.TierFree
	for _, route := range domain.Routes {
		decision := h.gate.CanGenerate(c.Request.Context(), userID, route)
		tier = decision.Tier
		routes[route] = dto.LimitInfo{
			Tier:       decision.Tier,
			DailyUsage: decision.DailyUsage,
			DailyLimit: decision.DailyLimit,
		}
	}

	response.Success(c, &dto.LimitsResponse{Tier: tier, Routes: routes})
}

// responseDocument returns structured model output with normalized
// achievement tags, or the raw text as a JSON string when the model answered
// in plain prose.
func responseDocument(text string) json.RawMessage {
	if gjson.Valid(text) && gjson.Parse(text).IsObject() {
		return service.NormalizeAchievementTags([]byte(text))
	}
	quoted, err := json.Marshal(text)
	if err != nil {
		quoted = []byte(`""`)
	}
	return quoted
}

func denialResponse(decision *service.GateDecision) *dto.GenerateResponse {
	code := "ACCESS_DENIED"
	message := "this request is not allowed right now"
	switch decision.Reason {
	case domain.DenyReasonDailyLimitReached:
		code = "DAILY_LIMIT_REACHED"
		message = fmt.Sprintf("you have used all %d of today's requests, come back tomorrow", decision.DailyLimit)
	case domain.DenyReasonSubscriptionRequired:
		code = "SUBSCRIPTION_REQUIRED"
		message = "an active subscription is required for this feature"
	}
	return &dto.GenerateResponse{
		Success: false,
		Code:    code,
		Message: message,
		Limit: &dto.LimitInfo{
			Tier:       decision.Tier,
			DailyUsage: decision.DailyUsage,
			DailyLimit: decision.DailyLimit,
		},
	}
}
