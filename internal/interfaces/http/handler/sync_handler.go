package handler

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	integrationapp "github.com/syncbridge/backend/internal/application/integration"
	"github.com/syncbridge/backend/internal/domain/integration"
)

// SyncHandler handles the sync control endpoints of the dashboard
type SyncHandler struct {
	BaseHandler
	runner    SyncRunner
	status    SyncStatusAdmin
	pairs     TenantPairs
	analytics CacheInvalidator
}

// NewSyncHandler creates a new SyncHandler. analytics may be nil.
func NewSyncHandler(runner SyncRunner, status SyncStatusAdmin, pairs TenantPairs, analytics CacheInvalidator) *SyncHandler {
	return &SyncHandler{
		runner:    runner,
		status:    status,
		pairs:     pairs,
		analytics: analytics,
	}
}

// pairScope returns the connection pairs an action applies to: the requested
// pair after an ownership check, or every active pair of the tenant.
func (h *SyncHandler) pairScope(c *gin.Context, tenantID uuid.UUID, pairID *uuid.UUID) ([]uuid.UUID, bool) {
	ctx := c.Request.Context()
	if pairID != nil {
		if err := h.pairs.PairBelongsToTenant(ctx, tenantID, *pairID); err != nil {
			h.HandleError(c, err)
			return nil, false
		}
		return []uuid.UUID{*pairID}, true
	}
	ids, err := h.pairs.ActivePairIDs(ctx, tenantID)
	if err != nil {
		h.HandleError(c, err)
		return nil, false
	}
	return ids, true
}

// forEachPair runs fn per pair and sums the counts. The first error stops the loop.
func forEachPair(ctx context.Context, pairIDs []uuid.UUID, fn func(ctx context.Context, pairID *uuid.UUID) (int64, error)) (int64, error) {
	var total int64
	for _, id := range pairIDs {
		n, err := fn(ctx, &id)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (h *SyncHandler) invalidate(ctx context.Context) {
	if h.analytics != nil {
		h.analytics.InvalidateCache(ctx)
	}
}

// BatchSync enqueues pending records for one connection pair, or for every
// active pair of the tenant when none is given
func (h *SyncHandler) BatchSync(c *gin.Context) {
	tenantID, ok := h.tenantOrAbort(c)
	if !ok {
		return
	}
	var req integrationapp.BatchSyncRequest
	if !h.bindJSON(c, &req) {
		return
	}
	pairIDs, ok := h.pairScope(c, tenantID, req.ConnectionPairID)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	// Limit caps the whole request, not each pair
	var queued int64
	count, err := forEachPair(ctx, pairIDs, func(ctx context.Context, pairID *uuid.UUID) (int64, error) {
		chunk := req.Limit
		if req.Limit > 0 {
			chunk = req.Limit - int(queued)
			if chunk <= 0 {
				return 0, nil
			}
		}
		n, err := h.runner.PerformBatchSync(ctx, pairID, chunk)
		queued += int64(n)
		return int64(n), err
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.invalidate(ctx)

	h.Success(c, integrationapp.CountResponse{
		Count:   count,
		Message: fmt.Sprintf("Queued %d records for sync", count),
	})
}

// RetryFailed re-dispatches failed records regardless of the retry delay
func (h *SyncHandler) RetryFailed(c *gin.Context) {
	tenantID, ok := h.tenantOrAbort(c)
	if !ok {
		return
	}
	var req integrationapp.RetryFailedRequest
	if !h.bindJSON(c, &req) {
		return
	}
	pairIDs, ok := h.pairScope(c, tenantID, req.ConnectionPairID)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	count, err := forEachPair(ctx, pairIDs, func(ctx context.Context, pairID *uuid.UUID) (int64, error) {
		n, err := h.runner.RetryFailedSyncs(ctx, pairID)
		return int64(n), err
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.invalidate(ctx)

	h.Success(c, integrationapp.CountResponse{
		Count:   count,
		Message: fmt.Sprintf("Retrying %d failed records", count),
	})
}

// ResetFailed moves failed records older than max_age_minutes back to pending
func (h *SyncHandler) ResetFailed(c *gin.Context) {
	tenantID, ok := h.tenantOrAbort(c)
	if !ok {
		return
	}
	var req integrationapp.ResetFailedRequest
	if !h.bindJSON(c, &req) {
		return
	}
	pairIDs, ok := h.pairScope(c, tenantID, req.ConnectionPairID)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	count, err := forEachPair(ctx, pairIDs, func(ctx context.Context, pairID *uuid.UUID) (int64, error) {
		return h.status.ResetFailedItems(ctx, req.MaxAgeMinutes, pairID)
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.invalidate(ctx)

	h.Success(c, integrationapp.CountResponse{
		Count:   count,
		Message: fmt.Sprintf("Reset %d failed records to pending", count),
	})
}

// Statistics returns record counts per sync status
func (h *SyncHandler) Statistics(c *gin.Context) {
	tenantID, ok := h.tenantOrAbort(c)
	if !ok {
		return
	}
	pairID, ok := h.queryUUID(c, "connection_pair_id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if pairID != nil {
		if err := h.pairs.PairBelongsToTenant(ctx, tenantID, *pairID); err != nil {
			h.HandleError(c, err)
			return
		}
	}

	stats, err := h.status.GetSyncStatistics(ctx, integration.SyncRecordFilter{
		TenantID:         &tenantID,
		ConnectionPairID: pairID,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}
