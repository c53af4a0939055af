package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sample-interp-server/internal/domain"
)

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := s.health.Health(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "unhealthy",
			"error":     err.Error(),
			"timestamp": time.Now().UTC(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

type createSampleRequest struct {
	Name     string               `json:"name" binding:"required"`
	Assay    string               `json:"assay" binding:"required"`
	Subpanel string               `json:"subpanel"`
	Profile  string               `json:"profile"`
	Filters  domain.SampleFilters `json:"filters"`
}

func (s *Server) handleCreateSample(c *gin.Context) {
	var req createSampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "Invalid sample payload", err)
		return
	}

	sample := &domain.Sample{
		ID:       uuid.New(),
		Name:     req.Name,
		Assay:    req.Assay,
		Subpanel: req.Subpanel,
		Profile:  req.Profile,
		Filters:  req.Filters,
	}

	if err := s.samples.CreateSample(c.Request.Context(), sample); err != nil {
		s.respondError(c, http.StatusInternalServerError, domain.ErrCodeDatabase, "Failed to create sample", err)
		return
	}

	c.JSON(http.StatusCreated, sample)
}

func (s *Server) handleGetSample(c *gin.Context) {
	id, ok := s.parseID(c, c.Param("id"))
	if !ok {
		return
	}

	sample, err := s.samples.GetSample(c.Request.Context(), id)
	if err != nil {
		s.respondStoreError(c, err, "Failed to load sample")
		return
	}

	c.JSON(http.StatusOK, sample)
}

func (s *Server) handleUpdateFilters(c *gin.Context) {
	id, ok := s.parseID(c, c.Param("id"))
	if !ok {
		return
	}

	var filters domain.SampleFilters
	if err := c.ShouldBindJSON(&filters); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "Invalid filter payload", err)
		return
	}
	if filters.MinFrequency < 0 || filters.MinFrequency > 1 {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "min_frequency must be within [0, 1]", nil)
		return
	}
	if filters.MinDepth < 0 {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "min_depth must be non-negative", nil)
		return
	}

	if err := s.samples.UpdateFilters(c.Request.Context(), id, filters); err != nil {
		s.respondStoreError(c, err, "Failed to update filters")
		return
	}

	c.JSON(http.StatusOK, gin.H{"sample_id": id, "filters": filters})
}

// resolvedFinding pairs a finding with its live resolution for the list view
type resolvedFinding struct {
	Finding    *domain.Finding    `json:"finding"`
	Resolution *domain.Resolution `json:"resolution"`
}

func (s *Server) handleListFindings(c *gin.Context) {
	id, ok := s.parseID(c, c.Param("id"))
	if !ok {
		return
	}
	ctx := c.Request.Context()

	sample, err := s.samples.GetSample(ctx, id)
	if err != nil {
		s.respondStoreError(c, err, "Failed to load sample")
		return
	}

	findings, err := s.findings.QueryFindings(ctx, id, sample.Filters)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, domain.ErrCodeDatabase, "Failed to query findings", err)
		return
	}

	results := make([]resolvedFinding, 0, len(findings))
	for _, f := range findings {
		res, err := s.resolver.ResolveClassification(ctx, f, sample)
		if err != nil {
			s.respondError(c, http.StatusInternalServerError, domain.ErrCodeInternal, "Failed to resolve finding", err)
			return
		}
		results = append(results, resolvedFinding{Finding: f, Resolution: res})
	}

	c.JSON(http.StatusOK, gin.H{
		"sample_id": id,
		"findings":  results,
	})
}

type ingestFindingRequest struct {
	Kind         domain.FindingKind     `json:"kind"`
	GeneSymbol   string                 `json:"gene_symbol"`
	HGVSp        string                 `json:"hgvsp"`
	HGVSc        string                 `json:"hgvsc"`
	Chromosome   string                 `json:"chromosome"`
	Position     int64                  `json:"position"`
	Reference    string                 `json:"reference"`
	Alternative  string                 `json:"alternative"`
	TranscriptID string                 `json:"transcript_id"`
	Support      map[string]interface{} `json:"support"`
}

func (s *Server) handleIngestFinding(c *gin.Context) {
	id, ok := s.parseID(c, c.Param("id"))
	if !ok {
		return
	}

	var req ingestFindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "Invalid finding payload", err)
		return
	}

	support, err := domain.NormalizeSupport(req.Support)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "Invalid support metrics", err)
		return
	}

	kind := req.Kind
	if kind == "" {
		kind = domain.VARIANT
	}

	finding := &domain.Finding{
		ID:           uuid.New(),
		SampleID:     id,
		Kind:         kind,
		GeneSymbol:   req.GeneSymbol,
		HGVSp:        req.HGVSp,
		HGVSc:        req.HGVSc,
		Chromosome:   req.Chromosome,
		Position:     req.Position,
		Reference:    req.Reference,
		Alternative:  req.Alternative,
		TranscriptID: req.TranscriptID,
		Support:      support,
	}

	if err := domain.ValidateFinding(finding); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "Invalid finding", err)
		return
	}

	if err := s.findings.InsertFinding(c.Request.Context(), finding); err != nil {
		s.respondError(c, http.StatusInternalServerError, domain.ErrCodeDatabase, "Failed to store finding", err)
		return
	}

	c.JSON(http.StatusCreated, finding)
}

type reportRequest struct {
	FindingIDs []uuid.UUID `json:"finding_ids"`
}

func (s *Server) handlePreviewReport(c *gin.Context) {
	id, ok := s.parseID(c, c.Param("id"))
	if !ok {
		return
	}

	findingIDs, ok := s.parseFindingIDs(c)
	if !ok {
		return
	}

	payload, err := s.reports.Preview(c.Request.Context(), id, findingIDs)
	if err != nil {
		s.respondReportError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/json", payload)
}

func (s *Server) handleSaveReport(c *gin.Context) {
	id, ok := s.parseID(c, c.Param("id"))
	if !ok {
		return
	}

	var req reportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "Invalid report payload", err)
			return
		}
	}

	reportID, err := s.reports.SaveReport(c.Request.Context(), id, req.FindingIDs)
	if err != nil {
		s.respondReportError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"sample_id": id,
		"report_id": reportID,
	})
}

func (s *Server) handleGetReport(c *gin.Context) {
	sampleID, ok := s.parseID(c, c.Param("id"))
	if !ok {
		return
	}
	reportID, ok := s.parseID(c, c.Param("reportID"))
	if !ok {
		return
	}
	ctx := c.Request.Context()

	rows, err := s.snapshots.RowsForReport(ctx, sampleID, reportID)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, domain.ErrCodeDatabase, "Failed to load report snapshot", err)
		return
	}
	if len(rows) == 0 {
		s.respondError(c, http.StatusNotFound, domain.ErrCodeNotFound, "Report not found", nil)
		return
	}

	content, err := s.artifacts.Get(ctx, reportID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.respondError(c, http.StatusInternalServerError, domain.ErrCodeInternal, "Failed to load report artifact", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sample_id": sampleID,
		"report_id": reportID,
		"rows":      rows,
		"content":   string(content),
	})
}

func (s *Server) handleRecordClassification(c *gin.Context) {
	var record domain.ClassificationRecord
	if err := c.ShouldBindJSON(&record); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "Invalid classification payload", err)
		return
	}

	if err := s.annotations.RecordClassification(c.Request.Context(), &record); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, verr.Error(), nil)
			return
		}
		s.respondError(c, http.StatusInternalServerError, domain.ErrCodeDatabase, "Failed to record classification", err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

func (s *Server) handleRecordText(c *gin.Context) {
	var record domain.TextRecord
	if err := c.ShouldBindJSON(&record); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "Invalid text payload", err)
		return
	}

	if err := s.annotations.RecordText(c.Request.Context(), &record); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, verr.Error(), nil)
			return
		}
		s.respondError(c, http.StatusInternalServerError, domain.ErrCodeDatabase, "Failed to record text", err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

func (s *Server) handleReadConfig(c *gin.Context) {
	version := 0
	if raw := c.Query("version"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "version must be a positive integer", err)
			return
		}
		version = v
	}

	entity, err := s.configs.Read(c.Request.Context(), c.Param("kind"), c.Param("id"), version)
	if err != nil {
		s.respondStoreError(c, err, "Failed to read config entity")
		return
	}

	c.JSON(http.StatusOK, entity)
}

func (s *Server) handleConfigHistory(c *gin.Context) {
	history, err := s.configs.History(c.Request.Context(), c.Param("kind"), c.Param("id"))
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, domain.ErrCodeDatabase, "Failed to read config history", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"kind":    c.Param("kind"),
		"id":      c.Param("id"),
		"history": history,
	})
}

func (s *Server) handleSaveConfig(c *gin.Context) {
	var fields map[string]interface{}
	if err := c.ShouldBindJSON(&fields); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "Invalid config payload", err)
		return
	}

	entity, err := s.configs.Save(c.Request.Context(), c.Param("kind"), c.Param("id"), fields)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, verr.Error(), nil)
			return
		}
		s.respondStoreError(c, err, "Failed to save config entity")
		return
	}

	c.JSON(http.StatusOK, entity)
}

// parseFindingIDs reads the optional finding_ids query parameter; an empty
// result means the sample's filtered finding set is used.
func (s *Server) parseFindingIDs(c *gin.Context) ([]uuid.UUID, bool) {
	raw := c.QueryArray("finding_ids")
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "Invalid finding ID", err)
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

func (s *Server) parseID(c *gin.Context, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "Invalid UUID", err)
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) respondStoreError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.respondError(c, http.StatusNotFound, domain.ErrCodeNotFound, "Not found", err)
	case errors.Is(err, domain.ErrConflict):
		s.respondError(c, http.StatusConflict, domain.ErrCodeConflict, "Concurrent update conflict", err)
	default:
		s.respondError(c, http.StatusInternalServerError, domain.ErrCodeDatabase, message, err)
	}
}

func (s *Server) respondReportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidFinding):
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "No findings selected for report", err)
	case errors.Is(err, domain.ErrNotFound):
		s.respondError(c, http.StatusNotFound, domain.ErrCodeNotFound, "Sample not found", err)
	case errors.Is(err, domain.ErrRetryExhausted):
		s.respondError(c, http.StatusConflict, domain.ErrCodeConflict, "Report save lost too many revision races", err)
	default:
		s.respondError(c, http.StatusInternalServerError, domain.ErrCodeReportFailure, "Report save failed", err)
	}
}

func (s *Server) respondError(c *gin.Context, status int, code, message string, err error) {
	details := ""
	if err != nil {
		details = err.Error()
		s.log.WithFields(logrus.Fields{
			"status": status,
			"code":   code,
			"path":   c.FullPath(),
		}).WithError(err).Error(message)
	}

	c.AbortWithStatusJSON(status, gin.H{
		"error": domain.NewAPIError(code, message, details, c.GetString("correlation_id")),
	})
}
