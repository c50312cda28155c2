package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/syncbridge/backend/internal/domain/catalog"
	"github.com/syncbridge/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// PricingRuleService manages pricing rules and announces every save and
// delete so affected final prices are recomputed
type PricingRuleService struct {
	rules     catalog.PricingRuleRepository
	publisher shared.EventPublisher
	logger    *zap.Logger
}

// NewPricingRuleService creates a new PricingRuleService
func NewPricingRuleService(rules catalog.PricingRuleRepository, publisher shared.EventPublisher, logger *zap.Logger) *PricingRuleService {
	return &PricingRuleService{
		rules:     rules,
		publisher: publisher,
		logger:    logger,
	}
}

// Create creates a pricing rule
func (s *PricingRuleService) Create(ctx context.Context, tenantID uuid.UUID, req PricingRuleRequest) (*PricingRuleResponse, error) {
	rule, err := catalog.NewPricingRule(tenantID, req.Name, catalog.PricingRuleType(req.RuleType), req.Value, req.Priority)
	if err != nil {
		return nil, err
	}
	if err := s.apply(rule, req); err != nil {
		return nil, err
	}
	return s.save(ctx, rule, "pricing rule created")
}

// Update replaces a pricing rule's definition. Both the old and the new scope
// are announced so products leaving the scope are recomputed too.
func (s *PricingRuleService) Update(ctx context.Context, tenantID, ruleID uuid.UUID, req PricingRuleRequest) (*PricingRuleResponse, error) {
	rule, err := s.rules.FindByID(ctx, tenantID, ruleID)
	if err != nil {
		return nil, err
	}
	if !catalog.PricingRuleType(req.RuleType).IsValid() {
		return nil, shared.NewDomainError("INVALID_RULE_TYPE", "Unsupported pricing rule type")
	}

	previous := *rule
	previous.ClearDomainEvents()
	previous.MarkDeleted()

	rule.Name = req.Name
	rule.RuleType = catalog.PricingRuleType(req.RuleType)
	rule.Value = req.Value
	rule.Priority = req.Priority
	if err := s.apply(rule, req); err != nil {
		return nil, err
	}

	resp, err := s.save(ctx, rule, "pricing rule updated")
	if err != nil {
		return nil, err
	}
	if scopeChanged(&previous, rule) {
		s.publish(ctx, previous.PullDomainEvents())
	}
	return resp, nil
}

// Delete removes a pricing rule
func (s *PricingRuleService) Delete(ctx context.Context, tenantID, ruleID uuid.UUID) error {
	rule, err := s.rules.FindByID(ctx, tenantID, ruleID)
	if err != nil {
		return err
	}
	if err := s.rules.Delete(ctx, tenantID, ruleID); err != nil {
		return err
	}
	rule.MarkDeleted()

	s.logger.Info("pricing rule deleted",
		zap.String("tenant_id", tenantID.String()),
		zap.String("rule_id", ruleID.String()),
	)
	s.publish(ctx, rule.PullDomainEvents())
	return nil
}

// GetByID retrieves a pricing rule
func (s *PricingRuleService) GetByID(ctx context.Context, tenantID, ruleID uuid.UUID) (*PricingRuleResponse, error) {
	rule, err := s.rules.FindByID(ctx, tenantID, ruleID)
	if err != nil {
		return nil, err
	}
	resp := ToPricingRuleResponse(rule)
	return &resp, nil
}

func (s *PricingRuleService) apply(rule *catalog.PricingRule, req PricingRuleRequest) error {
	if rule.RuleType == catalog.PricingRuleTypeTiered && len(req.Tiers) == 0 {
		return shared.NewDomainError("INVALID_TIER", "Tiered rules need at least one tier")
	}
	if err := rule.SetTiers(req.tiers()); err != nil {
		return err
	}
	rule.SetScope(req.SupplierID, req.DestinationID, req.ProductID)
	rule.IsActive = true
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	return nil
}

func (s *PricingRuleService) save(ctx context.Context, rule *catalog.PricingRule, msg string) (*PricingRuleResponse, error) {
	rule.MarkSaved()
	if err := s.rules.Save(ctx, rule); err != nil {
		return nil, err
	}
	s.logger.Info(msg,
		zap.String("tenant_id", rule.TenantID.String()),
		zap.String("rule_id", rule.ID.String()),
		zap.String("rule_type", string(rule.RuleType)),
		zap.Int("priority", rule.Priority),
	)
	s.publish(ctx, rule.PullDomainEvents())

	resp := ToPricingRuleResponse(rule)
	return &resp, nil
}

func (s *PricingRuleService) publish(ctx context.Context, events []shared.DomainEvent) {
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Error("failed to publish pricing rule events", zap.Error(err))
	}
}

func scopeChanged(a, b *catalog.PricingRule) bool {
	return !sameRef(a.SupplierID, b.SupplierID) || !sameRef(a.DestinationID, b.DestinationID) || !sameRef(a.ProductID, b.ProductID)
}

func sameRef(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
