package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Aman-CERP/repoindex/internal/build"
	rerrors "github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/query"
	"github.com/Aman-CERP/repoindex/pkg/version"
	"github.com/labstack/echo/v4"
)

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:       "ok",
		Version:      version.Short(),
		ActiveBuilds: s.deps.Builds.Active(),
	})
}

func (s *Server) handleInfo(c echo.Context) error {
	info, err := s.deps.Queries.Info(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Server) handleDocuments(c echo.Context) error {
	docs, err := s.deps.Queries.Documents(c.Request().Context(), c.Param("corpus"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, docs)
}

// handleCreate starts a build and streams its snapshots until the terminal
// one. Request validation failures are answered with a JSON error before
// the stream opens.
func (s *Server) handleCreate(c echo.Context) error {
	var body CreateRequest
	if err := c.Bind(&body); err != nil {
		return respondError(c, rerrors.ValidationError("invalid request body", err))
	}
	req, err := body.BuildRequest()
	if err != nil {
		return respondError(c, err)
	}

	b, err := s.deps.Builds.Start(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	c.Response().Header().Set(HeaderBuildID, b.ID)
	return streamProgress(c, b.Events(), s.logger.With("build_id", b.ID))
}

func (s *Server) bindSearch(c echo.Context) (query.SearchRequest, error) {
	var req query.SearchRequest
	if err := c.Bind(&req); err != nil {
		return req, rerrors.ValidationError("invalid request body", err)
	}
	return req, nil
}

func (s *Server) handleSearch(c echo.Context) error {
	req, err := s.bindSearch(c)
	if err != nil {
		return respondError(c, err)
	}
	resp, err := s.deps.Queries.Search(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSemanticSearch(c echo.Context) error {
	req, err := s.bindSearch(c)
	if err != nil {
		return respondError(c, err)
	}
	resp, err := s.deps.Queries.SemanticSearch(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSearchFiles(c echo.Context) error {
	limit := 0
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return respondError(c, rerrors.ValidationError("limit must be a non-negative integer", err))
		}
		limit = n
	}
	paths, err := s.deps.Queries.SearchFiles(c.Request().Context(), c.QueryParam("q"), limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, paths)
}

func (s *Server) handleStatus(c echo.Context) error {
	st, err := s.deps.Lifecycle.Status(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleDelete(c echo.Context) error {
	if err := s.deps.Lifecycle.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleRebuild(c echo.Context) error {
	if err := s.deps.Lifecycle.Rebuild(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleBatchCreate(c echo.Context) error {
	var body BatchCreateRequest
	if err := c.Bind(&body); err != nil {
		return respondError(c, rerrors.ValidationError("invalid request body", err))
	}
	reqs := make([]build.Request, 0, len(body.Indexes))
	for _, r := range body.Indexes {
		req, err := r.BuildRequest()
		if err != nil {
			return respondError(c, err)
		}
		reqs = append(reqs, req)
	}
	st, err := s.deps.Lifecycle.BatchCreate(c.Request().Context(), reqs)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusAccepted, st)
}

func (s *Server) handleBatchStatus(c echo.Context) error {
	st, err := s.deps.Lifecycle.BatchStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Lifecycle.Config())
}

func (s *Server) handleValidateConfig(c echo.Context) error {
	var body CreateRequest
	if err := c.Bind(&body); err != nil {
		return respondError(c, rerrors.ValidationError("invalid request body", err))
	}
	req, err := body.BuildRequest()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, s.deps.Lifecycle.ValidateConfig(req))
}
