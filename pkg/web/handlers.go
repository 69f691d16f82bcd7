package web

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/scoutvc/diligence/pkg/services"
)

type APIHandlers struct {
	analysisService *services.Analysis
	validator       *validator.Validate
}

func NewAPIHandlers(analysisService *services.Analysis, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		analysisService: analysisService,
		validator:       validator,
	}
}

// CreateAnalysis accepts a submission and returns 202 with the queued job.
func (h *APIHandlers) CreateAnalysis(c fiber.Ctx) error {
	var req CreateAnalysisRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	analysis, err := h.analysisService.Submit(c.Context(), services.SubmitRequest{
		Owner:              owner(c),
		SubjectName:        req.SubjectName,
		SubjectDescription: req.SubjectDescription,
		Context:            req.Context,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(NewAnalysisDetail(analysis))
}

func (h *APIHandlers) GetAnalysis(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Analysis ID is required")
	}

	analysis, err := h.analysisService.Get(c.Context(), owner(c), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(NewAnalysisDetail(analysis))
}

func (h *APIHandlers) ListAnalyses(c fiber.Ctx) error {
	analyses, err := h.analysisService.List(c.Context(), owner(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	summaries := make([]AnalysisSummary, 0, len(analyses))
	for _, analysis := range analyses {
		summaries = append(summaries, NewAnalysisSummary(analysis))
	}

	return c.JSON(fiber.Map{
		"analyses":    summaries,
		"total_count": len(summaries),
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	message, healthy := h.analysisService.HealthCheck(c.Context())

	status := fiber.StatusOK
	overall := "healthy"

	if !healthy {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checkers": fiber.Map{
			"persistence": message,
		},
		"timestamp": time.Now().UTC(),
	})
}
