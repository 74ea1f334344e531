package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"listing-audit/internal/export"
	"listing-audit/internal/models"
	"listing-audit/internal/services"
	"listing-audit/internal/store"

	"github.com/gin-gonic/gin"
)

type APIHandler struct {
	coordinator *services.Coordinator
	snapshots   *store.SnapshotStore
	changes     *store.ChangeLogStore
}

func SetupRoutes(r *gin.RouterGroup, coordinator *services.Coordinator, snapshots *store.SnapshotStore, changes *store.ChangeLogStore) *APIHandler {
	handler := &APIHandler{
		coordinator: coordinator,
		snapshots:   snapshots,
		changes:     changes,
	}

	r.POST("/sellers/:sellerID/capture", handler.RunCapture)

	snaps := r.Group("/snapshots")
	{
		snaps.GET("", handler.ListSnapshots)
		snaps.GET("/:id/listings", handler.SnapshotListings)
	}

	ch := r.Group("/changes")
	{
		ch.GET("", handler.ListChanges)
		ch.GET("/export", handler.ExportChanges)
		ch.GET("/items/:itemID", handler.ItemChanges)
	}

	return handler
}

// RunCapture triggers one capture cycle for a seller. The seller's listings
// are fetched, snapshotted and diffed against the previous snapshot.
func (h *APIHandler) RunCapture(c *gin.Context) {
	sellerID := c.Param("sellerID")

	result, err := h.coordinator.CaptureCycle(c.Request.Context(), sellerID)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, services.ErrCaptureInFlight):
			status = http.StatusConflict
		case errors.Is(err, services.ErrSourceUnavailable):
			status = http.StatusBadGateway
		case errors.Is(err, models.ErrInvariant):
			status = http.StatusUnprocessableEntity
		}
		body := gin.H{"error": err.Error()}
		var cycleErr *services.CycleError
		if errors.As(err, &cycleErr) {
			body["phase"] = cycleErr.Phase
		}
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListSnapshots returns recent snapshots, newest capture first.
func (h *APIHandler) ListSnapshots(c *gin.Context) {
	limit := intQuery(c, "limit", 20)

	snapshots, err := h.snapshots.LatestSnapshots(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snapshots})
}

// SnapshotListings returns the listings recorded in one snapshot.
func (h *APIHandler) SnapshotListings(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot id"})
		return
	}

	listings, err := h.snapshots.ListingsOf(c.Request.Context(), uint(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshot_id": id, "listings": listings})
}

// ListChanges returns change records within a lookback window in days,
// newest first, joined with each item's most recent snapshot date.
func (h *APIHandler) ListChanges(c *gin.Context) {
	days := intQuery(c, "days", 7)
	limit := intQuery(c, "limit", store.DefaultChangeQueryLimit)

	changes, err := h.changes.ChangesSince(c.Request.Context(), time.Duration(days)*24*time.Hour, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"changes": changes})
}

// ItemChanges returns one item's change history.
func (h *APIHandler) ItemChanges(c *gin.Context) {
	itemID := c.Param("itemID")

	records, err := h.changes.ChangesOfItem(c.Request.Context(), itemID, intQuery(c, "limit", store.DefaultChangeQueryLimit))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"item_id": itemID, "changes": records})
}

// ExportChanges streams the change log of the lookback window as an xlsx
// workbook.
func (h *APIHandler) ExportChanges(c *gin.Context) {
	days := intQuery(c, "days", 7)
	limit := intQuery(c, "limit", store.DefaultChangeQueryLimit)

	changes, err := h.changes.ChangesSince(c.Request.Context(), time.Duration(days)*24*time.Hour, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Render into memory first so a workbook failure still yields a clean
	// JSON error instead of headers on a truncated body.
	var workbook bytes.Buffer
	if err := export.WriteChangeReport(&workbook, changes); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	filename := fmt.Sprintf("changes-%s.xlsx", time.Now().Format("20060102-150405"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.DataFromReader(http.StatusOK, int64(workbook.Len()),
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", &workbook, nil)
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
