package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/care-pathway-engine/internal/domain"
	"github.com/care-pathway-engine/internal/logging"
)

// maxBatchSize bounds one batch request.
const maxBatchSize = 500

// maxAuditLimit bounds the audit history page size.
const maxAuditLimit = 200

func (s *Server) handleHealth(c *gin.Context) {
	checks := gin.H{}
	status := "healthy"

	if s.deps.Snapshots != nil {
		if _, err := s.deps.Snapshots.Count(c.Request.Context()); err != nil {
			checks["audit"] = err.Error()
			status = "degraded"
		} else {
			checks["audit"] = "ok"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
		"version":   "1.0.0",
		"checks":    checks,
	})
}

func (s *Server) handleEvaluate(c *gin.Context) {
	var req domain.EvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, domain.ErrInvalidInput, "Invalid evaluation request", err)
		return
	}

	evaluation, err := s.deps.Evaluator.Evaluate(c.Request.Context(), &req)
	if err != nil {
		s.abortEvaluation(c, err)
		return
	}
	c.JSON(http.StatusOK, evaluation)
}

func (s *Server) handleBatchEvaluate(c *gin.Context) {
	var batch domain.BatchEvaluationRequest
	if err := c.ShouldBindJSON(&batch); err != nil {
		s.abort(c, http.StatusBadRequest, domain.ErrInvalidInput, "Invalid batch request", err)
		return
	}
	if len(batch.Requests) == 0 {
		s.abort(c, http.StatusBadRequest, domain.ErrValidation, "Batch contains no requests", nil)
		return
	}
	if len(batch.Requests) > maxBatchSize {
		s.abort(c, http.StatusBadRequest, domain.ErrValidation,
			"Batch exceeds "+strconv.Itoa(maxBatchSize)+" requests", nil)
		return
	}

	c.JSON(http.StatusOK, s.deps.Evaluator.BatchEvaluate(c.Request.Context(), batch.Requests))
}

func (s *Server) handleStage(c *gin.Context) {
	var req domain.EvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, domain.ErrInvalidInput, "Invalid stage request", err)
		return
	}

	result, err := s.deps.Classifier.Classify(c.Request.Context(), &req)
	if err != nil {
		s.abortEvaluation(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleCatalog(c *gin.Context) {
	summaries := s.deps.Catalog.Summaries()
	c.JSON(http.StatusOK, gin.H{
		"count":       len(summaries),
		"definitions": summaries,
	})
}

// handleContactEvaluation fetches a contact from the report source and
// evaluates it. An optional ?now= (RFC 3339) pins the instant.
func (s *Server) handleContactEvaluation(c *gin.Context) {
	if s.deps.Source == nil {
		s.abort(c, http.StatusServiceUnavailable, domain.ErrExternalAPI, "No report source configured", nil)
		return
	}

	var now *time.Time
	if raw := c.Query("now"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.abort(c, http.StatusBadRequest, domain.ErrInvalidDate, "Invalid now parameter", err)
			return
		}
		now = &parsed
	}

	req, err := s.deps.Source.FetchContact(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			s.abort(c, http.StatusNotFound, domain.ErrInvalidInput, "Contact not found", err)
		case errors.Is(err, domain.ErrInvalidPerson):
			s.abort(c, http.StatusBadRequest, domain.ErrValidation, "Invalid contact id", err)
		default:
			s.abort(c, http.StatusBadGateway, domain.ErrExternalAPI, "Report source request failed", err)
		}
		return
	}
	req.Now = now

	evaluation, err := s.deps.Evaluator.Evaluate(c.Request.Context(), req)
	if err != nil {
		s.abortEvaluation(c, err)
		return
	}
	c.JSON(http.StatusOK, evaluation)
}

func (s *Server) handleAuditHistory(c *gin.Context) {
	if s.deps.Snapshots == nil {
		s.abort(c, http.StatusServiceUnavailable, domain.ErrDatabaseError, "Audit snapshots are disabled", nil)
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxAuditLimit {
			s.abort(c, http.StatusBadRequest, domain.ErrValidation,
				"limit must be between 1 and "+strconv.Itoa(maxAuditLimit), err)
			return
		}
		limit = n
	}

	personID := c.Param("person_id")
	snapshots, err := s.deps.Snapshots.ListByPerson(c.Request.Context(), personID, limit)
	if err != nil {
		s.abort(c, http.StatusInternalServerError, domain.ErrDatabaseError, "Failed to load audit history", err)
		return
	}
	if snapshots == nil {
		snapshots = []*domain.Snapshot{}
	}

	c.JSON(http.StatusOK, gin.H{
		"person_id": personID,
		"count":     len(snapshots),
		"snapshots": snapshots,
	})
}

// abortEvaluation maps evaluator errors to responses.
func (s *Server) abortEvaluation(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidPerson), errors.Is(err, domain.ErrInvalidReport):
		s.abort(c, http.StatusBadRequest, domain.ErrValidation, "Invalid evaluation input", err)
	case errors.Is(err, domain.ErrAmbiguousDefinition):
		s.abort(c, http.StatusInternalServerError, domain.ErrAmbiguousCatalog, "Task catalog is ambiguous", err)
	default:
		s.abort(c, http.StatusInternalServerError, domain.ErrInternalServer, "Evaluation failed", err)
	}
}

func (s *Server) abort(c *gin.Context, status int, code, message string, err error) {
	details := ""
	if err != nil {
		details = err.Error()
		_ = c.Error(err)
	}

	entry := logging.FromContext(c.Request.Context(), s.logger).WithField("code", code)
	if status >= http.StatusInternalServerError {
		entry.WithError(err).Error(message)
	} else {
		entry.WithError(err).Debug(message)
	}

	c.AbortWithStatusJSON(status, domain.NewEngineError(code, message, details, c.GetString("correlation_id")))
}
