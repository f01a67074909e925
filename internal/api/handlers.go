package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"brickcat/internal"
	"brickcat/internal/enrich"
	"brickcat/internal/logger"
	"brickcat/internal/scraper"
	"brickcat/internal/storage"
)

// Store is the slice of the catalog table the handlers need.
type Store interface {
	Columns(ctx context.Context) ([]string, error)
	Options(ctx context.Context, column, value string) ([]any, error)
	Search(ctx context.Context, column, value string, limit, offset int) ([]internal.Row, error)
	Count(ctx context.Context, column, value string) (int, error)
	Insert(ctx context.Context, fields internal.Row) (internal.Row, error)
	Update(ctx context.Context, id any, fields internal.Row) (internal.Row, error)
	Delete(ctx context.Context, id any) error
	Ping(ctx context.Context) error
}

type Enricher interface {
	Enrich(ctx context.Context, req enrich.Request) (enrich.Result, error)
}

type Handler struct {
	store    Store
	enricher Enricher
	log      logger.Logger
}

func NewHandler(store Store, enricher Enricher, log logger.Logger) *Handler {
	return &Handler{store: store, enricher: enricher, log: log}
}

type legoPayload struct {
	LegoData internal.Row `json:"legoData"`
}

// bindLegoPayload decodes numbers as json.Number so numeric keys keep their
// integer text when stored.
func bindLegoPayload(c *gin.Context) (legoPayload, error) {
	var body legoPayload
	if c.Request.Body == nil {
		return body, errors.New("empty body")
	}
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return body, err
	}
	return body, nil
}

type pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalLegos int `json:"totalLegos"`
	TotalPages int `json:"totalPages"`
}

func (h *Handler) Columns(c *gin.Context) {
	columns, err := h.store.Columns(c.Request.Context())
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"columnas": columns})
}

func (h *Handler) Options(c *gin.Context) {
	column, value := c.Param("columna"), c.Param("valor")
	if strings.TrimSpace(column) == "" || strings.TrimSpace(value) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing query parameters", "data": []any{}})
		return
	}

	options, err := h.store.Options(c.Request.Context(), column, value)
	if errors.Is(err, storage.ErrUnknownColumn) {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error(), "data": []any{}})
		return
	}
	if err != nil {
		h.internalError(c, err)
		return
	}
	if len(options) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "no options match the value", "data": []any{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "options found", "data": options})
}

func (h *Handler) Results(c *gin.Context) {
	column, value := c.Param("columna"), c.Param("valor")
	page, pageErr := positiveInt(c.Query("page"))
	pageSize, sizeErr := positiveInt(c.Query("pageSize"))
	if strings.TrimSpace(column) == "" || strings.TrimSpace(value) == "" || pageErr != nil || sizeErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing query parameters", "data": []any{}})
		return
	}

	offset, ok := pageOffset(page, pageSize)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"message": "page out of range", "data": []any{}})
		return
	}

	ctx := c.Request.Context()
	rows, err := h.store.Search(ctx, column, value, pageSize, offset)
	if errors.Is(err, storage.ErrUnknownColumn) {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error(), "data": []any{}})
		return
	}
	if err != nil {
		h.internalError(c, err)
		return
	}
	if len(rows) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "no results found", "data": []any{}})
		return
	}

	total, err := h.store.Count(ctx, column, value)
	if err != nil {
		h.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "legos found",
		"data":    rows,
		"imgData": h.imageData(ctx, enrich.Batch(internal.RecordsFromRows(rows)...)),
		"pagination": pagination{
			Page:       page,
			PageSize:   pageSize,
			TotalLegos: total,
			TotalPages: total/pageSize + min(total%pageSize, 1),
		},
	})
}

func (h *Handler) Edit(c *gin.Context) {
	body, err := bindLegoPayload(c)
	if err != nil || len(body.LegoData) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing lego data"})
		return
	}
	id, ok := body.LegoData["id"]
	if !ok || id == nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing lego id"})
		return
	}

	ctx := c.Request.Context()
	row, err := h.store.Update(ctx, id, body.LegoData)
	switch {
	case errors.Is(err, storage.ErrNoFields):
		c.JSON(http.StatusBadRequest, gin.H{"message": "no valid fields to update"})
		return
	case errors.Is(err, storage.ErrUnknownColumn):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "lego not found"})
		return
	case err != nil:
		h.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "lego updated",
		"data":    row,
		"imgData": h.imageData(ctx, enrich.Single(internal.RecordFromRow(row))),
	})
}

func (h *Handler) Add(c *gin.Context) {
	body, err := bindLegoPayload(c)
	if err != nil || len(body.LegoData) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing lego data", "data": []any{}})
		return
	}

	ctx := c.Request.Context()
	row, err := h.store.Insert(ctx, body.LegoData)
	switch {
	case errors.Is(err, storage.ErrNoFields), errors.Is(err, storage.ErrUnknownColumn):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error(), "data": []any{}})
		return
	case err != nil:
		h.internalError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "lego added",
		"data":    []internal.Row{row},
		"imgData": h.imageData(ctx, enrich.Single(internal.RecordFromRow(row))),
	})
}

func (h *Handler) Delete(c *gin.Context) {
	err := h.store.Delete(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "lego not found"})
		return
	}
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "lego deleted"})
}

func (h *Handler) Health(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// imageData never fails the response: a failed enrichment becomes an empty list.
func (h *Handler) imageData(ctx context.Context, req enrich.Request) any {
	res, err := h.enricher.Enrich(ctx, req)
	if err != nil {
		level := h.log.Error
		if scraper.IsLookupError(err) {
			level = h.log.Warn
		}
		level("image enrichment failed",
			logger.String("shape", req.Shape().String()),
			logger.Int("records", len(req.Records())),
			logger.Err(err),
		)
		return []any{}
	}
	return res
}

func (h *Handler) internalError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal Server Error"})
}

// pageOffset reports false when the offset does not fit in an int.
func pageOffset(page, pageSize int) (int, bool) {
	if page-1 > math.MaxInt/pageSize {
		return 0, false
	}
	return (page - 1) * pageSize, true
}

func positiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
