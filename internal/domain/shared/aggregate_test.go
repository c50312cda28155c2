package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTenantAggregateRoot_Events(t *testing.T) {
	tenantID := uuid.New()
	root := NewTenantAggregateRoot(tenantID)
	assert.Equal(t, 1, root.Version)
	assert.Equal(t, tenantID, root.TenantID)
	assert.Equal(t, root.CreatedAt, root.UpdatedAt)

	ev := NewBaseDomainEvent("ProductChanged", "Product", root.ID, tenantID)
	root.AddDomainEvent(&ev)
	root.IncrementVersion()
	assert.Equal(t, 2, root.Version)
	assert.Len(t, root.GetDomainEvents(), 1)

	pulled := root.PullDomainEvents()
	assert.Len(t, pulled, 1)
	assert.Equal(t, root.ID, pulled[0].AggregateID())
	assert.Equal(t, tenantID, pulled[0].TenantID())
	assert.Empty(t, root.GetDomainEvents())
}

func TestDomainError_IsMatchesCode(t *testing.T) {
	sentinel := NewDomainError("SYNC_IN_PROGRESS", "Record is already being synced")
	wrapped := fmt.Errorf("claim: %w", NewDomainError("SYNC_IN_PROGRESS", "busy"))

	assert.ErrorIs(t, wrapped, sentinel)
	assert.False(t, errors.Is(wrapped, NewDomainError("SYNC_NOT_ALLOWED", "")))
	assert.Equal(t, "busy", errors.Unwrap(wrapped).Error())
}
