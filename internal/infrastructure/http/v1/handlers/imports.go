package handlers

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"hivepos/internal/core/apperror"
	"hivepos/internal/domain/salesimport"
	"hivepos/internal/infrastructure/http/v1/dto"
)

const maxUploadBytes = 10 << 20

// ImportHandler serves POS export parsing, import runs and rollback.
type ImportHandler struct {
	*BaseHandler
	service *salesimport.Service
}

// NewImportHandler creates an import handler.
func NewImportHandler(base *BaseHandler, service *salesimport.Service) *ImportHandler {
	return &ImportHandler{BaseHandler: base, service: service}
}

// Parse handles POST /imports/parse. The export comes either as a multipart
// "file" field (.csv or .xlsx) or as JSON {"csvText": "..."}.
func (h *ImportHandler) Parse(c *gin.Context) {
	var q dto.ParseQuery
	if !h.BindQuery(c, &q) {
		return
	}
	bounds, err := q.ToBounds()
	if err != nil {
		h.Error(c, err)
		return
	}

	var result *salesimport.ParseResult
	parser := h.service.Parser()
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		result, err = h.parseUpload(c, parser, bounds)
	} else {
		var req dto.ParseTextRequest
		if !h.BindJSON(c, &req) {
			return
		}
		result, err = parser.ParseCSV(strings.NewReader(req.CSVText), bounds)
	}
	if err != nil {
		h.Error(c, err)
		return
	}

	unmatched, err := h.service.Preview(c.Request.Context(), result.Groups, nil)
	if err != nil {
		h.Error(c, err)
		return
	}
	if unmatched == nil {
		unmatched = []string{}
	}
	h.OK(c, dto.ParseResponse{ParseResult: result, UnmatchedSKUs: unmatched})
}

func (h *ImportHandler) parseUpload(c *gin.Context, parser *salesimport.Parser, bounds salesimport.Bounds) (*salesimport.ParseResult, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return nil, apperror.NewValidation("file is required").WithDetail("field", "file")
	}
	if header.Size > maxUploadBytes {
		return nil, apperror.NewValidation("file is too large").WithDetail("max_bytes", maxUploadBytes)
	}
	f, err := header.Open()
	if err != nil {
		return nil, apperror.NewValidation("unreadable upload").WithCause(err)
	}
	defer f.Close()

	r := io.LimitReader(f, maxUploadBytes)
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".xlsx":
		return parser.ParseXLSX(r, bounds)
	case ".csv", ".txt", "":
		return parser.ParseCSV(r, bounds)
	default:
		return nil, apperror.NewValidation("unsupported file type; upload .csv or .xlsx").
			WithDetail("file_name", header.Filename)
	}
}

// Import handles POST /imports
func (h *ImportHandler) Import(c *gin.Context) {
	var req dto.ImportRequest
	if !h.BindJSON(c, &req) {
		return
	}
	request, err := req.ToRequest()
	if err != nil {
		h.Error(c, err)
		return
	}
	result, err := h.service.Import(c.Request.Context(), request)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, result)
}

// List handles GET /imports
func (h *ImportHandler) List(c *gin.Context) {
	result, err := h.service.List(c.Request.Context(), h.ListFilter(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromListResult(result))
}

// Get handles GET /imports/:id
func (h *ImportHandler) Get(c *gin.Context) {
	batchID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	batch, err := h.service.Get(c.Request.Context(), batchID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, batch)
}

// Rollback handles POST /imports/:id/rollback
func (h *ImportHandler) Rollback(c *gin.Context) {
	batchID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	result, err := h.service.Rollback(c.Request.Context(), batchID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}
