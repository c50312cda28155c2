package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/infrastructure/logger"
	"github.com/syncbridge/backend/internal/interfaces/http/dto"
)

const (
	TenantIDKey     = "tenant_id"
	TenantHeaderKey = "X-Tenant-ID"
)

var (
	errNoTenant      = errors.New("tenant header missing")
	errBadTenant     = errors.New("tenant header is not a UUID")
	errUnknownTenant = errors.New("tenant rejected")
)

var rejectionMessages = map[error]string{
	errNoTenant:      "Tenant identification required",
	errBadTenant:     "Invalid tenant ID format",
	errUnknownTenant: "Invalid or inactive tenant",
}

// TenantValidator rejects tenants that do not exist or are disabled
type TenantValidator interface {
	ValidateTenant(ctx context.Context, tenantID uuid.UUID) error
}

// TenantMiddlewareConfig controls how X-Tenant-ID is enforced
type TenantMiddlewareConfig struct {
	SkipPaths []string
	Required  bool
	Validator TenantValidator // nil skips the lookup
	Logger    *zap.Logger
}

func DefaultTenantConfig() TenantMiddlewareConfig {
	return TenantMiddlewareConfig{SkipPaths: []string{"/health", "/metrics"}, Required: true}
}

func TenantMiddleware() gin.HandlerFunc {
	return TenantMiddlewareWithConfig(DefaultTenantConfig())
}

// TenantMiddlewareWithConfig stores the caller's tenant on the gin context and
// on the request context for logging. Requests under a skip path pass through.
func TenantMiddlewareWithConfig(cfg TenantMiddlewareConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		if skipped(c.Request.URL.Path, cfg.SkipPaths) {
			c.Next()
			return
		}

		tenantID, err := cfg.resolve(c)
		if errors.Is(err, errNoTenant) && !cfg.Required {
			c.Next()
			return
		}
		if err != nil {
			if errors.Is(err, errUnknownTenant) {
				log.Warn("Tenant rejected", zap.String("tenant_id", tenantID.String()), zap.Error(errors.Unwrap(err)))
			}
			abort(c, dto.ErrCodeUnauthorized, rejection(err))
			return
		}

		c.Set(TenantIDKey, tenantID.String())
		c.Request = c.Request.WithContext(logger.WithTenantID(c.Request.Context(), tenantID.String()))
		c.Next()
	}
}

func (cfg TenantMiddlewareConfig) resolve(c *gin.Context) (uuid.UUID, error) {
	raw := strings.TrimSpace(c.GetHeader(TenantHeaderKey))
	if raw == "" {
		return uuid.Nil, errNoTenant
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errBadTenant
	}
	if cfg.Validator != nil {
		if verr := cfg.Validator.ValidateTenant(c.Request.Context(), id); verr != nil {
			return id, &tenantRejected{cause: verr}
		}
	}
	return id, nil
}

type tenantRejected struct{ cause error }

func (e *tenantRejected) Error() string        { return "tenant rejected: " + e.cause.Error() }
func (e *tenantRejected) Unwrap() error        { return e.cause }
func (e *tenantRejected) Is(target error) bool { return target == errUnknownTenant }

func rejection(err error) string {
	for sentinel, msg := range rejectionMessages {
		if errors.Is(err, sentinel) {
			return msg
		}
	}
	return rejectionMessages[errUnknownTenant]
}

func skipped(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// GetTenantID returns the tenant set by the middleware, or ""
func GetTenantID(c *gin.Context) string {
	return c.GetString(TenantIDKey)
}

// GetTenantUUID is GetTenantID parsed. No tenant yields uuid.Nil and no error.
func GetTenantUUID(c *gin.Context) (uuid.UUID, error) {
	raw := GetTenantID(c)
	if raw == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(raw)
}
