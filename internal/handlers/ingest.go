package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/backlink-checker/internal/config"
	"github.com/jonesrussell/backlink-checker/internal/domain"
	"github.com/jonesrussell/backlink-checker/internal/importer"
	"github.com/jonesrussell/backlink-checker/internal/logger"
)

// multipartOverhead is the room left for form fields and part headers on top
// of the file limit.
const multipartOverhead = 1 << 20

// IngestService writes an uploaded table into the offer store.
type IngestService interface {
	Ingest(ctx context.Context, req *domain.IngestRequest, table *importer.Table) (*domain.IngestReport, error)
}

type IngestHandler struct {
	service IngestService
	cfg     config.IngestConfig
	logger  logger.Logger
}

func NewIngestHandler(service IngestService, cfg config.IngestConfig, log logger.Logger) *IngestHandler {
	return &IngestHandler{service: service, cfg: cfg, logger: log}
}

// Ingest handles POST /api/v1/ingest. The form carries the upload in "file"
// and the ingestion options as JSON in "data".
func (h *IngestHandler) Ingest(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxFileSize+multipartOverhead)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.tooLarge(c)
			return
		}
		badRequest(c, "File is required", err)
		return
	}
	if fileHeader.Size > h.cfg.MaxFileSize {
		h.tooLarge(c)
		return
	}
	if !h.cfg.AllowsExtension(importer.Extension(fileHeader.Filename)) {
		badRequest(c, importer.ErrUnsupportedFormat.Error(), nil)
		return
	}

	var req domain.IngestRequest
	if err = json.Unmarshal([]byte(c.PostForm("data")), &req); err != nil {
		badRequest(c, "Invalid ingestion options", err)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, h.logger, "Failed to read upload", err)
		return
	}
	defer func() { _ = file.Close() }()

	table, err := importer.Parse(fileHeader.Filename, file)
	if err != nil {
		badRequest(c, "Failed to parse file", err)
		return
	}

	report, err := h.service.Ingest(c.Request.Context(), &req, table)
	if err != nil {
		respondError(c, h.logger, "Ingestion failed", err)
		return
	}

	logger.FromContext(c.Request.Context(), h.logger).Info("File ingested",
		logger.String("filename", fileHeader.Filename),
		logger.String("ingestion_id", report.IngestionID.String()),
		logger.Int("successful_imports", report.SuccessfulImports),
		logger.Int("failed_imports", report.FailedImports),
	)

	c.JSON(http.StatusOK, report)
}

func (h *IngestHandler) tooLarge(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{
		"error":   "File too large",
		"details": "maximum upload size is " + humanBytes(h.cfg.MaxFileSize),
	})
}

func humanBytes(n int64) string {
	const mib = 1 << 20
	if n >= mib && n%mib == 0 {
		return strconv.FormatInt(n/mib, 10) + " MiB"
	}
	return strconv.FormatInt(n, 10) + " bytes"
}
