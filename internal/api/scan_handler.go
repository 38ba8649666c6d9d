package api

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/brokenlink/internal/crawler"
	"github.com/nao1215/brokenlink/internal/model"
	"github.com/nao1215/brokenlink/internal/registry"
	"github.com/nao1215/brokenlink/internal/report"
)

// ScanHandler serves the scan endpoints.
type ScanHandler struct {
	scanner Scanner
	logger  *slog.Logger
}

// StartScan handles POST /scan.
//
// The scan runs in the background and 202 is returned with its ID. With
// "wait": true in the body, or ?wait=true, the request blocks until the scan
// finished and returns its statistics.
func (h *ScanHandler) StartScan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request: "+err.Error())
		return
	}
	if _, err := crawler.Normalize(req.URL, ""); err != nil {
		respondBadRequest(c, "Invalid url: "+err.Error())
		return
	}

	cfg := req.config()
	id, err := h.scanner.Start(cfg)
	switch {
	case errors.Is(err, model.ErrInvalidConfig):
		respondBadRequest(c, err.Error())
		return
	case errors.Is(err, registry.ErrShuttingDown):
		respondError(c, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		respondInternalError(c, "Failed to start scan: "+err.Error())
		return
	}

	wait := req.Wait
	if q, err := strconv.ParseBool(c.Query("wait")); err == nil && q {
		wait = true
	}
	if !wait {
		c.JSON(http.StatusAccepted, StartResponse{
			ScanID:  id,
			Status:  model.JobNotStarted,
			MaxURLs: cfg.MaxURLs,
		})
		return
	}

	job, err := h.scanner.Wait(c.Request.Context(), id)
	if err != nil {
		// The client went away; the scan keeps running in the background.
		h.logger.Warn("wait for scan aborted", "scan_id", id, "error", err)
		respondError(c, http.StatusRequestTimeout, "wait aborted: "+err.Error())
		return
	}
	if job.Status == model.JobFailed {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"scan_id": id, "error": job.Reason})
		return
	}

	var stats model.Statistics
	if job.Result != nil {
		stats = job.Result.Statistics
	}
	c.JSON(http.StatusOK, CompletedResponse{
		Message:    "Scan completed",
		ScanID:     id,
		ResultFile: job.ResultFile,
		Statistics: stats,
		MaxURLs:    cfg.MaxURLs,
	})
}

// GetStatus handles GET /status/:scan_id.
func (h *ScanHandler) GetStatus(c *gin.Context) {
	job, err := h.scanner.Status(c.Param("scan_id"))
	if err != nil {
		h.respondLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, newStatusResponse(job))
}

// GetResults handles GET /results/:scan_id. The format query parameter
// selects "json" (default), "csv" or "markdown".
func (h *ScanHandler) GetResults(c *gin.Context) {
	format := c.DefaultQuery("format", "json")
	contentType, ok := contentTypes[format]
	if !ok {
		respondBadRequest(c, "unsupported format: "+format)
		return
	}

	result, err := h.scanner.Result(c.Param("scan_id"))
	if err != nil {
		h.respondLookupError(c, err)
		return
	}

	if format == "json" {
		c.JSON(http.StatusOK, report.NewJSONReport(result))
		return
	}

	var buf bytes.Buffer
	if _, err := report.NewWriter(format, &buf).Write(result); err != nil {
		respondInternalError(c, "Failed to render report: "+err.Error())
		return
	}
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

var contentTypes = map[string]string{
	"json":     "application/json; charset=utf-8",
	"csv":      "text/csv; charset=utf-8",
	"markdown": "text/markdown; charset=utf-8",
}

// CancelScan handles DELETE /scan/:scan_id.
func (h *ScanHandler) CancelScan(c *gin.Context) {
	id := c.Param("scan_id")
	if err := h.scanner.Cancel(id); err != nil {
		h.respondLookupError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"scan_id": id, "message": "Cancellation requested"})
}

// ListScans handles GET /scans.
func (h *ScanHandler) ListScans(c *gin.Context) {
	jobs := h.scanner.List()
	summaries := make([]JobSummary, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, newJobSummary(job))
	}
	c.JSON(http.StatusOK, gin.H{"scans": summaries, "count": len(summaries)})
}

// respondLookupError maps registry errors to status codes.
func (h *ScanHandler) respondLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		respondNotFound(c, "Scan ID")
	case errors.Is(err, registry.ErrNotReady):
		respondError(c, http.StatusConflict, err.Error())
	case errors.Is(err, registry.ErrScanFailed):
		respondError(c, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("scan lookup failed", "error", err)
		respondInternalError(c, err.Error())
	}
}
