package models

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/syncbridge/backend/internal/domain/catalog"
)

// ProductModel is the persistence model for the supplier Product.
type ProductModel struct {
	TenantAggregateModel
	SupplierID    uuid.UUID       `gorm:"type:uuid;not null;index:idx_product_supplier"`
	SKU           string          `gorm:"column:sku;type:varchar(100);not null;index"`
	Name          string          `gorm:"type:varchar(255);not null"`
	Description   string          `gorm:"type:text"`
	UPC           string          `gorm:"column:upc;type:varchar(50)"`
	PartNumber    string          `gorm:"type:varchar(100)"`
	Condition     string          `gorm:"type:varchar(30);not null;default:'new'"`
	CostPrice     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	RetailPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	StockQuantity int             `gorm:"not null;default:0"`
	Weight        decimal.Decimal `gorm:"type:decimal(10,3);not null;default:0"`
	Length        decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	Width         decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	Height        decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	Metadata      string          `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the persistence model to a domain Product
func (m *ProductModel) ToDomain() *catalog.Product {
	return &catalog.Product{
		TenantAggregateRoot: m.root(),
		SupplierID:          m.SupplierID,
		SKU:                 m.SKU,
		Name:                m.Name,
		Description:         m.Description,
		UPC:                 m.UPC,
		PartNumber:          m.PartNumber,
		Condition:           m.Condition,
		CostPrice:           m.CostPrice,
		RetailPrice:         m.RetailPrice,
		StockQuantity:       m.StockQuantity,
		Weight:              m.Weight,
		Length:              m.Length,
		Width:               m.Width,
		Height:              m.Height,
		Metadata:            m.Metadata,
	}
}

// FromDomain populates the persistence model from a domain Product
func (m *ProductModel) FromDomain(p *catalog.Product) {
	m.setRoot(p.TenantAggregateRoot)
	m.SupplierID = p.SupplierID
	m.SKU = p.SKU
	m.Name = p.Name
	m.Description = p.Description
	m.UPC = p.UPC
	m.PartNumber = p.PartNumber
	m.Condition = p.Condition
	m.CostPrice = p.CostPrice
	m.RetailPrice = p.RetailPrice
	m.StockQuantity = p.StockQuantity
	m.Weight = p.Weight
	m.Length = p.Length
	m.Width = p.Width
	m.Height = p.Height
	m.Metadata = p.Metadata
}

// ProductModelFromDomain creates a persistence model from a domain Product
func ProductModelFromDomain(p *catalog.Product) *ProductModel {
	m := &ProductModel{}
	m.FromDomain(p)
	return m
}

// PricingRuleModel is the persistence model for PricingRule. Tiers are kept
// as a JSON document.
type PricingRuleModel struct {
	TenantAggregateModel
	Name          string                  `gorm:"type:varchar(150);not null"`
	SupplierID    *uuid.UUID              `gorm:"type:uuid;index"`
	DestinationID *uuid.UUID              `gorm:"type:uuid;index"`
	ProductID     *uuid.UUID              `gorm:"type:uuid;index"`
	RuleType      catalog.PricingRuleType `gorm:"type:varchar(20);not null"`
	Value         decimal.Decimal         `gorm:"type:decimal(12,4);not null;default:0"`
	Tiers         string                  `gorm:"type:text"`
	Priority      int                     `gorm:"not null;default:0"`
	IsActive      bool                    `gorm:"not null;default:true;index"`
}

// TableName returns the table name for GORM
func (PricingRuleModel) TableName() string {
	return "pricing_rules"
}

// ToDomain converts the persistence model to a domain PricingRule
func (m *PricingRuleModel) ToDomain() *catalog.PricingRule {
	rule := &catalog.PricingRule{
		TenantAggregateRoot: m.root(),
		Name:                m.Name,
		SupplierID:          m.SupplierID,
		DestinationID:       m.DestinationID,
		ProductID:           m.ProductID,
		RuleType:            m.RuleType,
		Value:               m.Value,
		Priority:            m.Priority,
		IsActive:            m.IsActive,
	}
	if m.Tiers != "" {
		var tiers []catalog.PriceTier
		if err := json.Unmarshal([]byte(m.Tiers), &tiers); err == nil {
			rule.Tiers = tiers
		}
	}
	return rule
}

// FromDomain populates the persistence model from a domain PricingRule
func (m *PricingRuleModel) FromDomain(r *catalog.PricingRule) {
	m.setRoot(r.TenantAggregateRoot)
	m.Name = r.Name
	m.SupplierID = r.SupplierID
	m.DestinationID = r.DestinationID
	m.ProductID = r.ProductID
	m.RuleType = r.RuleType
	m.Value = r.Value
	m.Priority = r.Priority
	m.IsActive = r.IsActive
	m.Tiers = ""
	if len(r.Tiers) > 0 {
		if data, err := json.Marshal(r.Tiers); err == nil {
			m.Tiers = string(data)
		}
	}
}
