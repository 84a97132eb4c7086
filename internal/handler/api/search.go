package api

import (
	"StagAlgo/internal/domain/models"
	"StagAlgo/internal/search"
	xhttp "StagAlgo/pkg/http"
	xlogger "StagAlgo/pkg/logger"

	"github.com/labstack/echo/v4"
)

type SearchHandler struct {
	logger *xlogger.Logger
	svc    *search.Service
}

func NewSearchHandler(logger *xlogger.Logger, svc *search.Service) *SearchHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &SearchHandler{logger: logger.With("api.search"), svc: svc}
}

func (h *SearchHandler) Register(g *echo.Group) {
	g.GET("/search", h.Search)
	g.POST("/searches", h.Save)
	g.GET("/searches", h.List)
	g.DELETE("/searches/:id", h.Delete)
}

func (h *SearchHandler) Search(c echo.Context) error {
	req := &models.SearchQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.svc.Search(c.Request().Context(), *req)
	if err != nil {
		h.logger.Error("search failed", xlogger.String("q", req.Text), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, appError(err))
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *SearchHandler) Save(c echo.Context) error {
	req := &SaveSearchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ss, err := h.svc.SaveSearch(c.Request().Context(), req.UserID, req.Name, req.Query, req.AlertThreshold)
	if err != nil {
		return xhttp.AppErrorResponse(c, appError(err))
	}
	return xhttp.CreatedResponse(c, ss)
}

func (h *SearchHandler) List(c echo.Context) error {
	req := &UserRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	list, err := h.svc.SavedSearches(c.Request().Context(), req.UserID)
	if err != nil {
		return xhttp.AppErrorResponse(c, appError(err))
	}
	return xhttp.ListResponse(c, list, int64(len(list)))
}

func (h *SearchHandler) Delete(c echo.Context) error {
	req := &DeleteSearchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.svc.DeleteSearch(c.Request().Context(), req.UserID, req.ID); err != nil {
		return xhttp.AppErrorResponse(c, appError(err))
	}
	return xhttp.NoContentResponse(c)
}
