package integration

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/syncbridge/backend/internal/domain/catalog"
	"github.com/syncbridge/backend/internal/domain/integration"
	applog "github.com/syncbridge/backend/internal/infrastructure/logger"
	"github.com/syncbridge/backend/internal/infrastructure/migration"
	"github.com/syncbridge/backend/internal/infrastructure/persistence"
	"github.com/syncbridge/backend/migrations"
)

// appTables lists every table the migrations create, children first
const appTables = "sync_logs, sync_records, pricing_rules, products, connection_pairs, companies"

// TestDB is an empty, fully migrated PostgreSQL schema
type TestDB struct {
	DB *gorm.DB
	t  *testing.T
}

// NewTestDB connects to the shared container, migrating it when the container
// is first started, and truncates every table.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	dsn := postgresContainer.endpointFor(t, func(dsn string) { migrate(t, dsn) })

	level := gormlogger.Silent
	if os.Getenv("TEST_DB_DEBUG") != "" {
		level = gormlogger.Info
	}
	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger:         applog.NewGormLogger(zaptest.NewLogger(t), level, 0),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(5)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Exec("TRUNCATE TABLE "+appTables+" CASCADE").Error)
	return &TestDB{DB: db, t: t}
}

// migrate applies the embedded migrations over a dedicated connection, which
// the migrator closes.
func migrate(t *testing.T, dsn string) {
	t.Helper()
	conn, err := sql.Open("postgres", dsn)
	require.NoError(t, err)

	m, err := migration.NewFromFS(conn, migrations.FS, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = m.Close() }()
	require.NoError(t, m.Up())
}

// SeedCompany stores a company with an active subscription
func (tdb *TestDB) SeedCompany(ctx context.Context) *integration.Company {
	tdb.t.Helper()
	c := &integration.Company{
		ID:                 uuid.New(),
		Name:               "Company " + uuid.NewString()[:8],
		SubscriptionStatus: integration.SubscriptionStatusActive,
	}
	require.NoError(tdb.t, persistence.NewGormCompanyRepository(tdb.DB).Save(ctx, c))
	return c
}

// SeedPair stores an active Shopify pair
func (tdb *TestDB) SeedPair(ctx context.Context, tenantID, supplierID uuid.UUID, name string) *integration.ConnectionPair {
	tdb.t.Helper()
	pair, err := integration.NewConnectionPair(tenantID, supplierID, uuid.New(), integration.DestinationTypeShopify, name)
	require.NoError(tdb.t, err)
	require.NoError(tdb.t, persistence.NewGormConnectionPairRepository(tdb.DB).Save(ctx, pair))
	return pair
}

// SeedProduct stores an in-stock product costing 10
func (tdb *TestDB) SeedProduct(ctx context.Context, tenantID, supplierID uuid.UUID, sku string) *catalog.Product {
	tdb.t.Helper()
	p, err := catalog.NewProduct(tenantID, supplierID, sku, "Product "+sku)
	require.NoError(tdb.t, err)
	p.CostPrice = decimal.NewFromInt(10)
	p.StockQuantity = 5
	require.NoError(tdb.t, persistence.NewGormProductRepository(tdb.DB).Save(ctx, p))
	return p
}
