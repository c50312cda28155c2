// Package models holds the GORM row types. Domain types never carry gorm
// tags; each model converts to and from its aggregate.
package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/syncbridge/backend/internal/domain/shared"
)

// BaseModel is the id and timestamp columns every table has
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TenantAggregateModel adds the optimistic version and owning company
type TenantAggregateModel struct {
	BaseModel
	Version  int       `gorm:"not null;default:1"`
	TenantID uuid.UUID `gorm:"type:uuid;not null;index"`
}

func (m *TenantAggregateModel) setRoot(root shared.TenantAggregateRoot) {
	m.BaseModel = BaseModel{ID: root.ID, CreatedAt: root.CreatedAt, UpdatedAt: root.UpdatedAt}
	m.Version = root.Version
	m.TenantID = root.TenantID
}

// root rebuilds the aggregate header; the result has no pending events
func (m *TenantAggregateModel) root() shared.TenantAggregateRoot {
	var r shared.TenantAggregateRoot
	r.ID, r.CreatedAt, r.UpdatedAt = m.ID, m.CreatedAt, m.UpdatedAt
	r.Version = m.Version
	r.TenantID = m.TenantID
	return r
}
