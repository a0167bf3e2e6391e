package casedata

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc    *Service
	search *SearchService
}

func NewHandler(svc *Service, search *SearchService) *Handler {
	return &Handler{svc: svc, search: search}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/case-data", h.ProcessCaseData)
	api.GET("/case-data/similar/:bill_id", h.GetSimilarCases)
	api.GET("/case-data/:bill_id", h.GetCaseData)
	api.PUT("/case-data", h.UpdateBulkFeedback)
	api.PUT("/case-data/recommendation", h.ApplyRecommendations)
}

func (h *Handler) ProcessCaseData(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.BillID == "" || req.CPInstanceID == "" || len(req.Tests) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "bill_id, cp_instance_id and tests are required")
	}
	result, err := h.svc.ProcessCaseData(c.Request().Context(), &req)
	if err != nil {
		if errors.Is(err, ErrInvalidDateFormat) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) GetCaseData(c echo.Context) error {
	records, err := h.svc.GetByBillID(c.Request().Context(), c.Param("bill_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, records)
}

func (h *Handler) GetSimilarCases(c echo.Context) error {
	params := c.QueryParams()["param"]
	if len(params) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one param is required")
	}
	result, err := h.search.FindSimilarCases(c.Request().Context(), c.Param("bill_id"), params)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) UpdateBulkFeedback(c echo.Context) error {
	var items []FeedbackUpdate
	if err := c.Bind(&items); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.svc.UpdateBulkFeedback(c.Request().Context(), items)
	if err != nil {
		if errors.Is(err, ErrInvalidDateFormat) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ApplyRecommendations(c echo.Context) error {
	var items []Recommendation
	if err := c.Bind(&items); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, h.svc.ApplyRecommendations(c.Request().Context(), items))
}
