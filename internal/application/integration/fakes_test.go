package integration

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/syncbridge/backend/internal/domain/catalog"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// =============================================================================
// In-memory store
// =============================================================================

// fakeStore keeps copies of everything it is given so that tests observe what
// was persisted, not the caller's in-memory objects.
type fakeStore struct {
	mu        sync.Mutex
	records   map[uuid.UUID]*integration.SyncRecord
	pairs     map[uuid.UUID]*integration.ConnectionPair
	companies map[uuid.UUID]*integration.Company
	products  map[uuid.UUID]*catalog.Product
	logs      []*integration.SyncLog

	// failSnapshot makes UpdateSnapshot fail for the given record
	failSnapshot map[uuid.UUID]error
	// failLoad makes FindByIDsWithRelations fail
	failLoad error
	// statusWrites counts UpdateStatus and TransitionStatus calls
	statusWrites int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:      make(map[uuid.UUID]*integration.SyncRecord),
		pairs:        make(map[uuid.UUID]*integration.ConnectionPair),
		companies:    make(map[uuid.UUID]*integration.Company),
		products:     make(map[uuid.UUID]*catalog.Product),
		failSnapshot: make(map[uuid.UUID]error),
	}
}

func copyRecord(r *integration.SyncRecord) *integration.SyncRecord {
	c := *r
	c.ConnectionPair = nil
	c.Company = nil
	c.Product = nil
	c.ClearDirty()
	c.ClearDomainEvents()
	return &c
}

func (s *fakeStore) put(r *integration.SyncRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = copyRecord(r)
}

func (s *fakeStore) get(id uuid.UUID) *integration.SyncRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil
	}
	return copyRecord(r)
}

func (s *fakeStore) withRelations(r *integration.SyncRecord) *integration.SyncRecord {
	c := copyRecord(r)
	if pair, ok := s.pairs[c.ConnectionPairID]; ok {
		p := *pair
		c.ConnectionPair = &p
		if company, ok := s.companies[pair.TenantID]; ok {
			co := *company
			c.Company = &co
		}
	}
	if product, ok := s.products[c.ProductID]; ok {
		p := *product
		c.Product = &p
	}
	return c
}

func (s *fakeStore) matches(r *integration.SyncRecord, f integration.SyncRecordFilter) bool {
	if f.TenantID != nil && r.TenantID != *f.TenantID {
		return false
	}
	if f.ConnectionPairID != nil && r.ConnectionPairID != *f.ConnectionPairID {
		return false
	}
	if f.ProductID != nil && r.ProductID != *f.ProductID {
		return false
	}
	if len(f.SyncStatuses) > 0 && !containsStatus(f.SyncStatuses, r.SyncStatus) {
		return false
	}
	if len(f.CatalogStatuses) > 0 {
		found := false
		for _, cs := range f.CatalogStatuses {
			if cs == r.CatalogStatus {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	if f.ActivePairsOnly && !s.pairs[r.ConnectionPairID].IsUsable() {
		return false
	}
	if f.UpdatedFrom != nil && r.UpdatedAt.Before(*f.UpdatedFrom) {
		return false
	}
	if f.UpdatedTo != nil && r.UpdatedAt.After(*f.UpdatedTo) {
		return false
	}
	return true
}

func containsStatus(list []integration.SyncStatus, s integration.SyncStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// sorted returns stored records ordered by last attempt (nil first) then ID
func (s *fakeStore) sorted(f integration.SyncRecordFilter) []*integration.SyncRecord {
	out := make([]*integration.SyncRecord, 0, len(s.records))
	for _, r := range s.records {
		if s.matches(r, f) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastSyncAttempt, out[j].LastSyncAttempt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// =============================================================================
// SyncRecordRepository
// =============================================================================

type fakeRecordRepo struct{ *fakeStore }

func (r fakeRecordRepo) FindByID(_ context.Context, id uuid.UUID) (*integration.SyncRecord, error) {
	if rec := r.get(id); rec != nil {
		return rec, nil
	}
	return nil, integration.ErrSyncRecordNotFound
}

func (r fakeRecordRepo) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*integration.SyncRecord, error) {
	rec, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.TenantID != tenantID {
		return nil, integration.ErrSyncRecordNotFound
	}
	return rec, nil
}

func (r fakeRecordRepo) FindByIDsWithRelations(_ context.Context, ids []uuid.UUID) ([]*integration.SyncRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failLoad != nil {
		return nil, r.failLoad
	}
	out := make([]*integration.SyncRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := r.records[id]; ok {
			out = append(out, r.withRelations(rec))
		}
	}
	return out, nil
}

func (r fakeRecordRepo) FindByPairAndProduct(_ context.Context, pairID, productID uuid.UUID) (*integration.SyncRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ConnectionPairID == pairID && rec.ProductID == productID {
			return copyRecord(rec), nil
		}
	}
	return nil, integration.ErrSyncRecordNotFound
}

func (r fakeRecordRepo) FindActiveByProduct(_ context.Context, productID uuid.UUID) ([]*integration.SyncRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*integration.SyncRecord
	for _, rec := range r.sorted(integration.SyncRecordFilter{ProductID: &productID, ActivePairsOnly: true}) {
		out = append(out, r.withRelations(rec))
	}
	return out, nil
}

func (r fakeRecordRepo) FindAll(_ context.Context, f integration.SyncRecordFilter) ([]*integration.SyncRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.sorted(f)
	if f.Page > 0 && f.PageSize > 0 {
		start := (f.Page - 1) * f.PageSize
		if start >= len(all) {
			return nil, nil
		}
		end := start + f.PageSize
		if end > len(all) {
			end = len(all)
		}
		all = all[start:end]
	}
	out := make([]*integration.SyncRecord, len(all))
	for i, rec := range all {
		out[i] = copyRecord(rec)
	}
	return out, nil
}

func (r fakeRecordRepo) FindIDs(_ context.Context, f integration.SyncRecordFilter, limit int) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for _, rec := range r.sorted(f) {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, rec.ID)
	}
	return ids, nil
}

func (r fakeRecordRepo) Count(_ context.Context, f integration.SyncRecordFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.sorted(f))), nil
}

func (r fakeRecordRepo) GetStatistics(_ context.Context, f integration.SyncRecordFilter) (*integration.SyncStatistics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &integration.SyncStatistics{Counts: make(map[integration.SyncStatus]int64)}
	for _, rec := range r.sorted(f) {
		stats.Counts[rec.SyncStatus]++
		stats.Total++
		if rec.LastSyncedAt != nil && (stats.LastSuccessfulSync == nil || rec.LastSyncedAt.After(*stats.LastSuccessfulSync)) {
			t := *rec.LastSyncedAt
			stats.LastSuccessfulSync = &t
		}
		if rec.SyncStatus == integration.SyncStatusPending && rec.LastSyncAttempt != nil &&
			(stats.OldestPendingAttempt == nil || rec.LastSyncAttempt.Before(*stats.OldestPendingAttempt)) {
			t := *rec.LastSyncAttempt
			stats.OldestPendingAttempt = &t
		}
	}
	return stats, nil
}

func (r fakeRecordRepo) CountByCatalogStatus(_ context.Context, f integration.SyncRecordFilter) (map[integration.CatalogStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[integration.CatalogStatus]int64)
	for _, rec := range r.sorted(f) {
		out[rec.CatalogStatus]++
	}
	return out, nil
}

func (r fakeRecordRepo) TopErrors(_ context.Context, f integration.SyncRecordFilter, limit int) ([]integration.ErrorCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int64)
	for _, rec := range r.sorted(f) {
		if rec.SyncStatus == integration.SyncStatusFailed && rec.SyncError != nil {
			counts[*rec.SyncError]++
		}
	}
	out := make([]integration.ErrorCount, 0, len(counts))
	for msg, n := range counts {
		out = append(out, integration.ErrorCount{Message: msg, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Message < out[j].Message
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r fakeRecordRepo) PairPerformance(_ context.Context, f integration.SyncRecordFilter) ([]integration.ConnectionPairStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byPair := make(map[uuid.UUID]*integration.ConnectionPairStats)
	for _, rec := range r.sorted(f) {
		st, ok := byPair[rec.ConnectionPairID]
		if !ok {
			st = &integration.ConnectionPairStats{ConnectionPairID: rec.ConnectionPairID}
			if pair, ok := r.pairs[rec.ConnectionPairID]; ok {
				st.Name = pair.Name
				st.DestinationType = pair.DestinationType
			}
			byPair[rec.ConnectionPairID] = st
		}
		st.Total++
		switch rec.SyncStatus {
		case integration.SyncStatusSynced:
			st.Synced++
		case integration.SyncStatusFailed:
			st.Failed++
		case integration.SyncStatusPending:
			st.Pending++
		case integration.SyncStatusInProgress:
			st.InProgress++
		}
	}
	out := make([]integration.ConnectionPairStats, 0, len(byPair))
	for _, st := range byPair {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r fakeRecordRepo) FindStaleInProgress(_ context.Context, olderThan time.Time, limit int) ([]*integration.SyncRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*integration.SyncRecord
	for _, rec := range r.sorted(integration.SyncRecordFilter{SyncStatuses: []integration.SyncStatus{integration.SyncStatusInProgress}}) {
		if rec.LastSyncAttempt != nil && rec.LastSyncAttempt.Before(olderThan) {
			out = append(out, copyRecord(rec))
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r fakeRecordRepo) Create(_ context.Context, rec *integration.SyncRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.records {
		if existing.ConnectionPairID == rec.ConnectionPairID && existing.ProductID == rec.ProductID {
			return integration.ErrSyncRecordExists
		}
	}
	r.records[rec.ID] = copyRecord(rec)
	return nil
}

func (r fakeRecordRepo) writeStatus(stored, rec *integration.SyncRecord) {
	stored.SyncStatus = rec.SyncStatus
	stored.LastSyncAttempt = rec.LastSyncAttempt
	stored.LastSyncedAt = rec.LastSyncedAt
	stored.SyncError = rec.SyncError
	stored.FailureCount = rec.FailureCount
	stored.UpdatedAt = rec.UpdatedAt
}

func (r fakeRecordRepo) UpdateStatus(_ context.Context, rec *integration.SyncRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusWrites++
	stored, ok := r.records[rec.ID]
	if !ok {
		return integration.ErrSyncRecordNotFound
	}
	r.writeStatus(stored, rec)
	return nil
}

func (r fakeRecordRepo) TransitionStatus(_ context.Context, rec *integration.SyncRecord, expected ...integration.SyncStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusWrites++
	stored, ok := r.records[rec.ID]
	if !ok {
		return false, integration.ErrSyncRecordNotFound
	}
	if !containsStatus(expected, stored.SyncStatus) {
		return false, nil
	}
	r.writeStatus(stored, rec)
	return true, nil
}

func (r fakeRecordRepo) UpdateSnapshot(_ context.Context, rec *integration.SyncRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failSnapshot[rec.ID]; err != nil {
		return err
	}
	if _, ok := r.records[rec.ID]; !ok {
		return integration.ErrSyncRecordNotFound
	}
	r.records[rec.ID] = copyRecord(rec)
	return nil
}

func (r fakeRecordRepo) UpdateCatalogStatus(_ context.Context, rec *integration.SyncRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.records[rec.ID]
	if !ok {
		return integration.ErrSyncRecordNotFound
	}
	stored.CatalogStatus = rec.CatalogStatus
	stored.UpdatedAt = rec.UpdatedAt
	return nil
}

func (r fakeRecordRepo) ResetFailed(_ context.Context, cutoff time.Time, pairID *uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, rec := range r.records {
		if rec.SyncStatus != integration.SyncStatusFailed || rec.LastSyncAttempt == nil {
			continue
		}
		if pairID != nil && rec.ConnectionPairID != *pairID {
			continue
		}
		if !rec.LastSyncAttempt.Before(cutoff) {
			continue
		}
		rec.SyncStatus = integration.SyncStatusPending
		rec.SyncError = nil
		n++
	}
	return n, nil
}

// txRecordScope snapshots the store and restores it when fn fails
type txRecordScope struct{ store *fakeStore }

func (t txRecordScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	t.store.mu.Lock()
	backup := make(map[uuid.UUID]*integration.SyncRecord, len(t.store.records))
	for id, rec := range t.store.records {
		backup[id] = copyRecord(rec)
	}
	t.store.mu.Unlock()

	if err := fn(NewNoOpTransactionScope(fakeRecordRepo{t.store})); err != nil {
		t.store.mu.Lock()
		t.store.records = backup
		t.store.mu.Unlock()
		return err
	}
	return nil
}

// =============================================================================
// Other repositories
// =============================================================================

type fakePairRepo struct{ *fakeStore }

func (r fakePairRepo) FindByID(_ context.Context, id uuid.UUID) (*integration.ConnectionPair, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pairs[id]; ok {
		c := *p
		return &c, nil
	}
	return nil, integration.ErrConnectionPairNotFound
}

func (r fakePairRepo) FindActive(_ context.Context, tenantID *uuid.UUID) ([]*integration.ConnectionPair, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*integration.ConnectionPair
	for _, p := range r.pairs {
		if p.IsUsable() && (tenantID == nil || p.TenantID == *tenantID) {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r fakePairRepo) Save(_ context.Context, p *integration.ConnectionPair) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *p
	r.pairs[p.ID] = &c
	return nil
}

type fakeCompanyRepo struct{ *fakeStore }

func (r fakeCompanyRepo) FindByID(_ context.Context, id uuid.UUID) (*integration.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.companies[id]; ok {
		cc := *c
		return &cc, nil
	}
	return nil, integration.ErrCompanyNotFound
}

func (r fakeCompanyRepo) Save(_ context.Context, c *integration.Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cc := *c
	r.companies[c.ID] = &cc
	return nil
}

type fakeProductRepo struct{ *fakeStore }

func (r fakeProductRepo) FindByID(_ context.Context, id uuid.UUID) (*catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.products[id]; ok {
		c := *p
		return &c, nil
	}
	return nil, catalog.ErrProductNotFound
}

func (r fakeProductRepo) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*catalog.Product, error) {
	p, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.TenantID != tenantID {
		return nil, catalog.ErrProductNotFound
	}
	return p, nil
}

func (r fakeProductRepo) FindByIDs(_ context.Context, ids []uuid.UUID) ([]catalog.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []catalog.Product
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r fakeProductRepo) FindIDsBySupplier(_ context.Context, tenantID, supplierID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []uuid.UUID
	for _, p := range r.products {
		if p.TenantID == tenantID && p.SupplierID == supplierID {
			out = append(out, p.ID)
		}
	}
	return out, nil
}

func (r fakeProductRepo) FindIDsByTenant(_ context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []uuid.UUID
	for _, p := range r.products {
		if p.TenantID == tenantID {
			out = append(out, p.ID)
		}
	}
	return out, nil
}

type fakeLogRepo struct{ *fakeStore }

func (r fakeLogRepo) Append(_ context.Context, logs ...*integration.SyncLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, logs...)
	return nil
}

func (r fakeLogRepo) FindByRecord(_ context.Context, recordID uuid.UUID, limit int) ([]*integration.SyncLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*integration.SyncLog
	for i := len(r.logs) - 1; i >= 0; i-- {
		if r.logs[i].SyncRecordID == recordID {
			out = append(out, r.logs[i])
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r fakeLogRepo) Summarize(_ context.Context, f integration.SyncLogFilter) (*integration.SyncLogSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	summary := &integration.SyncLogSummary{}
	var total int64
	for _, l := range r.logs {
		if l.StartedAt.Before(f.From) || l.StartedAt.After(f.To) {
			continue
		}
		summary.Total++
		total += l.DurationMs
		switch l.Status {
		case integration.SyncLogStatusSuccess:
			summary.Succeeded++
		case integration.SyncLogStatusFailed:
			summary.Failed++
		case integration.SyncLogStatusSkipped:
			summary.Skipped++
		}
	}
	if summary.Total > 0 {
		summary.AvgDurationMs = float64(total) / float64(summary.Total)
	}
	return summary, nil
}

// =============================================================================
// Destination, queue and publisher doubles
// =============================================================================

// MockDestinationClient is a testify mock of integration.DestinationClient
type MockDestinationClient struct {
	mock.Mock
	destType integration.DestinationType
}

func (m *MockDestinationClient) Type() integration.DestinationType { return m.destType }

func (m *MockDestinationClient) GetProduct(ctx context.Context, sku string) (*integration.DestinationProduct, error) {
	args := m.Called(ctx, sku)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.DestinationProduct), args.Error(1)
}

func (m *MockDestinationClient) UpdateProduct(ctx context.Context, payload integration.ProductPayload) (*integration.OperationResult, error) {
	args := m.Called(ctx, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.OperationResult), args.Error(1)
}

func (m *MockDestinationClient) UpdateInventory(ctx context.Context, sku string, quantity int) (*integration.OperationResult, error) {
	args := m.Called(ctx, sku, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.OperationResult), args.Error(1)
}

func (m *MockDestinationClient) UpdatePrice(ctx context.Context, sku string, price decimal.Decimal) (*integration.OperationResult, error) {
	args := m.Called(ctx, sku, price)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.OperationResult), args.Error(1)
}

type fakeRegistry map[integration.DestinationType]integration.DestinationClient

func (r fakeRegistry) Get(t integration.DestinationType) (integration.DestinationClient, error) {
	if !t.IsValid() {
		return nil, integration.ErrUnsupportedDestination
	}
	c, ok := r[t]
	if !ok {
		return nil, integration.ErrDestinationNotConfigured
	}
	return c, nil
}

func (r fakeRegistry) Types() []integration.DestinationType {
	out := make([]integration.DestinationType, 0, len(r))
	for t := range r {
		out = append(out, t)
	}
	return out
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []*integration.SyncJob
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, job *integration.SyncJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Depth(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.jobs)), nil
}

func (q *fakeQueue) Jobs() []*integration.SyncJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*integration.SyncJob(nil), q.jobs...)
}

// fakeDedupe ignores TTLs: a key stays marked until released.
type fakeDedupe struct {
	mu      sync.Mutex
	keys    map[string]bool
	release error
}

func newFakeDedupe() *fakeDedupe {
	return &fakeDedupe{keys: make(map[string]bool)}
}

func (d *fakeDedupe) MarkProcessed(_ context.Context, key string, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.keys[key] {
		return false, nil
	}
	d.keys[key] = true
	return true, nil
}

func (d *fakeDedupe) IsProcessed(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.keys[key], nil
}

func (d *fakeDedupe) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.release != nil {
		return d.release
	}
	delete(d.keys, key)
	return nil
}

func (d *fakeDedupe) Close() error { return nil }

type fakePublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *fakePublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *fakePublisher) OfType(eventType string) []shared.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.DomainEvent
	for _, e := range p.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// =============================================================================
// Test world
// =============================================================================

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type testWorld struct {
	store     *fakeStore
	records   fakeRecordRepo
	pairs     fakePairRepo
	companies fakeCompanyRepo
	products  fakeProductRepo
	logs      fakeLogRepo
	client    *MockDestinationClient
	queue     *fakeQueue
	publisher *fakePublisher
	manager   *SyncStatusManager
	service   *SyncService
	processor *BatchSyncProcessor
	clock     *time.Time

	tenantID uuid.UUID
	pair     *integration.ConnectionPair
	company  *integration.Company
}

func newTestWorld(t *testing.T) *testWorld {
	t.Helper()
	logger := zap.NewNop()
	store := newFakeStore()
	w := &testWorld{
		store:     store,
		records:   fakeRecordRepo{store},
		pairs:     fakePairRepo{store},
		companies: fakeCompanyRepo{store},
		products:  fakeProductRepo{store},
		logs:      fakeLogRepo{store},
		client:    &MockDestinationClient{destType: integration.DestinationTypeShopify},
		queue:     &fakeQueue{},
		publisher: &fakePublisher{},
		tenantID:  uuid.New(),
	}
	now := testNow
	w.clock = &now

	w.company = &integration.Company{ID: w.tenantID, Name: "Acme", SubscriptionStatus: integration.SubscriptionStatusActive}
	store.companies[w.company.ID] = w.company

	pair, err := integration.NewConnectionPair(w.tenantID, uuid.New(), uuid.New(), integration.DestinationTypeShopify, "Acme → Shopify")
	require.NoError(t, err)
	w.pair = pair
	store.pairs[pair.ID] = pair

	w.manager = NewSyncStatusManager(w.records, nil, logger).WithClock(func() time.Time { return *w.clock })
	w.service = NewSyncService(SyncServiceDeps{
		Records:   w.records,
		Pairs:     w.pairs,
		Companies: w.companies,
		Products:  w.products,
		TxScope:   txRecordScope{store},
		Registry:  fakeRegistry{integration.DestinationTypeShopify: w.client},
		Queue:     w.queue,
		Status:    w.manager,
	}, logger)
	w.processor = NewBatchSyncProcessor(w.records, w.logs, fakeRegistry{integration.DestinationTypeShopify: w.client},
		w.manager, w.service, DefaultBatchSyncConfig(), logger).
		WithPublisher(w.publisher).
		WithSleeper(func(context.Context, time.Duration) error { return nil })
	return w
}

func (w *testWorld) advance(d time.Duration) {
	*w.clock = w.clock.Add(d)
}

func (w *testWorld) addProduct(t *testing.T, sku string, cost string) *catalog.Product {
	t.Helper()
	p, err := catalog.NewProduct(w.tenantID, w.pair.SupplierID, sku, "Product "+sku)
	require.NoError(t, err)
	p.CostPrice = decimal.RequireFromString(cost)
	p.StockQuantity = 5
	w.store.products[p.ID] = p
	return p
}

func (w *testWorld) addRecord(t *testing.T, product *catalog.Product, catalogStatus integration.CatalogStatus) *integration.SyncRecord {
	t.Helper()
	r, err := integration.NewSyncRecord(w.pair, product, catalogStatus)
	require.NoError(t, err)
	r.ClearDomainEvents()
	w.store.put(r)
	return r
}

func okResult() *integration.OperationResult {
	return &integration.OperationResult{Success: true, ExternalID: "ext-1", Raw: []byte(`{"ok":true}`)}
}

var errDestinationDown = errors.New("destination: 503 service unavailable")
