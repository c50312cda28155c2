package integration

import (
	"errors"

	"github.com/syncbridge/backend/internal/domain/shared"
)

// Lookup errors, surfaced to API callers as domain errors
var (
	ErrSyncRecordNotFound     = shared.NewDomainError("SYNC_RECORD_NOT_FOUND", "Sync record not found")
	ErrConnectionPairNotFound = shared.NewDomainError("CONNECTION_PAIR_NOT_FOUND", "Connection pair not found")
	ErrCompanyNotFound        = shared.NewDomainError("COMPANY_NOT_FOUND", "Company not found")
)

// Sync errors
var (
	ErrUnsupportedDestination   = errors.New("integration: unsupported destination type")
	ErrDestinationNotConfigured = errors.New("integration: destination client not configured")
	ErrDestinationRequestFailed = errors.New("integration: destination request failed")
	ErrDestinationUnavailable   = errors.New("integration: destination temporarily unavailable")
	ErrDestinationRateLimited   = errors.New("integration: destination rate limited")
	ErrInvalidSyncStatus        = errors.New("integration: invalid sync status")
	ErrInvalidCatalogStatus     = errors.New("integration: invalid catalog status")
	ErrInvalidJob               = errors.New("integration: invalid sync job")
	ErrJobQueueFull             = errors.New("integration: job queue is full")
	ErrJobQueueClosed           = errors.New("integration: job queue is not running")
)

// Validation errors
var (
	ErrInvalidTenantID       = errors.New("integration: invalid tenant ID")
	ErrInvalidProductID      = errors.New("integration: invalid product ID")
	ErrInvalidConnectionPair = errors.New("integration: invalid connection pair")
)

// ErrSyncRecordExists is returned when attaching a product twice to the same pair
var ErrSyncRecordExists = shared.NewDomainError("SYNC_RECORD_EXISTS", "Product is already attached to this connection pair")
