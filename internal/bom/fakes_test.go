package bom

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-bom-consumption/internal/lock"
	"github.com/ariefcatur/go-bom-consumption/internal/orders"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"
)

const testAccount = "acc-1"

var errBoom = errors.New("boom")

type memBOMs struct {
	boms      []*BOM
	failFind  error
	failOwner ComponentRef // FindParents fails for this ref
}

func (m *memBOMs) FindBOM(_ context.Context, accountID string, productID, variationID int64) (*BOM, error) {
	if m.failFind != nil {
		return nil, m.failFind
	}
	for _, b := range m.boms {
		if b.AccountID == accountID && b.ProductID == productID && b.VariationID == variationID && b.IsActive {
			return b, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memBOMs) FindParents(_ context.Context, accountID string, ref ComponentRef) ([]Parent, error) {
	if m.failOwner != (ComponentRef{}) && m.failOwner == ref {
		return nil, errBoom
	}
	var out []Parent
	for _, b := range m.boms {
		if b.AccountID != accountID || !b.IsActive {
			continue
		}
		for _, it := range b.Items {
			r, err := it.Ref()
			if it.IsActive && err == nil && r == ref {
				out = append(out, Parent{BOMID: b.ID, ProductID: b.ProductID, VariationID: b.VariationID})
				break
			}
		}
	}
	return out, nil
}

type memStock struct {
	mu      sync.Mutex
	comps   map[ComponentRef]Component
	failSet map[ComponentRef]error
	failGet error
}

func newStock(cs ...Component) *memStock {
	s := &memStock{comps: map[ComponentRef]Component{}, failSet: map[ComponentRef]error{}}
	for _, c := range cs {
		s.comps[c.Ref] = c
	}
	return s
}

func (s *memStock) GetComponent(_ context.Context, _ string, ref ComponentRef) (*Component, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return nil, s.failGet
	}
	c, ok := s.comps[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *memStock) SetStock(_ context.Context, _ string, ref ComponentRef, stock int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failSet[ref]; err != nil {
		return err
	}
	c, ok := s.comps[ref]
	if !ok {
		c = Component{Ref: ref}
	}
	c.Stock = stock
	s.comps[ref] = c
	return nil
}

func (s *memStock) stock(ref ComponentRef) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.comps[ref].Stock
}

type memPlatform struct {
	mu       sync.Mutex
	stock    map[ComponentRef]int
	failPush map[ComponentRef]error
	failGet  error
	pushes   []ComponentRef
}

func newPlatform() *memPlatform {
	return &memPlatform{stock: map[ComponentRef]int{}, failPush: map[ComponentRef]error{}}
}

func (p *memPlatform) CurrentStock(_ context.Context, _ string, ref ComponentRef) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failGet != nil {
		return 0, p.failGet
	}
	s, ok := p.stock[ref]
	if !ok {
		return 0, ErrNotFound
	}
	return s, nil
}

func (p *memPlatform) PushStock(_ context.Context, _ string, ref ComponentRef, stock int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failPush[ref]; err != nil {
		return err
	}
	p.stock[ref] = stock
	p.pushes = append(p.pushes, ref)
	return nil
}

func (p *memPlatform) get(ref ComponentRef) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stock[ref]
}

type memLedger struct {
	mu           sync.Mutex
	entries      []LedgerEntry
	appends      int
	failAppendAt int // 1-based Append call that fails
	failFind     error
	failFinalize error
}

func (l *memLedger) Append(_ context.Context, e LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appends++
	if l.appends == l.failAppendAt {
		return errBoom
	}
	l.entries = append(l.entries, e)
	return nil
}

func (l *memLedger) Transition(_ context.Context, accountID string, orderID int64, from, to LedgerStatus) (int64, error) {
	if !CanTransition(from, to) {
		return 0, ErrInvalidTransition
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failFinalize != nil && to == StatusCompleted {
		return 0, l.failFinalize
	}
	var n int64
	for i, e := range l.entries {
		if e.AccountID == accountID && e.OrderID == orderID && e.Status == from {
			l.entries[i].Status = to
			l.entries[i].UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (l *memLedger) TransitionEntries(_ context.Context, ids []uuid.UUID, from, to LedgerStatus) (int64, error) {
	if !CanTransition(from, to) {
		return 0, ErrInvalidTransition
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var n int64
	for i, e := range l.entries {
		if want[e.ID] && e.Status == from {
			l.entries[i].Status = to
			l.entries[i].UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (l *memLedger) FindByOrder(_ context.Context, accountID string, orderID int64, statuses ...LedgerStatus) ([]LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failFind != nil {
		return nil, l.failFind
	}
	var out []LedgerEntry
	for _, e := range l.entries {
		if e.AccountID != accountID || e.OrderID != orderID {
			continue
		}
		if len(statuses) == 0 || hasStatus(statuses, e.Status) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *memLedger) FindStaleExecuted(_ context.Context, olderThan time.Time, limit int) ([]OrderKey, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen := map[OrderKey]bool{}
	var out []OrderKey
	for _, e := range l.entries {
		k := OrderKey{AccountID: e.AccountID, OrderID: e.OrderID}
		if e.Status == StatusExecuted && e.UpdatedAt.Before(olderThan) && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *memLedger) statuses(orderID int64) []LedgerStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []LedgerStatus
	for _, e := range l.entries {
		if e.OrderID == orderID {
			out = append(out, e.Status)
		}
	}
	return out
}

// age pushes every entry of the order back in time.
func (l *memLedger) age(orderID int64, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e.OrderID == orderID {
			l.entries[i].UpdatedAt = e.UpdatedAt.Add(-d)
		}
	}
}

func hasStatus(list []LedgerStatus, s LedgerStatus) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

type memMarkers struct {
	mu         sync.Mutex
	consumed   map[OrderKey]bool
	pending    map[OrderKey][]Deduction
	failRead   error
	failTrack  error
	markWrites int
}

func newMarkers() *memMarkers {
	return &memMarkers{consumed: map[OrderKey]bool{}, pending: map[OrderKey][]Deduction{}}
}

func (m *memMarkers) IsConsumed(_ context.Context, accountID string, orderID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRead != nil {
		return false, m.failRead
	}
	return m.consumed[OrderKey{accountID, orderID}], nil
}

func (m *memMarkers) MarkConsumed(_ context.Context, accountID string, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markWrites++
	m.consumed[OrderKey{accountID, orderID}] = true
	return nil
}

func (m *memMarkers) ClearConsumed(_ context.Context, accountID string, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.consumed, OrderKey{accountID, orderID})
	return nil
}

func (m *memMarkers) TrackPending(_ context.Context, accountID string, orderID int64, plan []Deduction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTrack != nil {
		return m.failTrack
	}
	m.pending[OrderKey{accountID, orderID}] = plan
	return nil
}

func (m *memMarkers) ClearPending(_ context.Context, accountID string, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, OrderKey{accountID, orderID})
	return nil
}

func (m *memMarkers) ListPending(context.Context) ([]OrderKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OrderKey, 0, len(m.pending))
	for k := range m.pending {
		out = append(out, k)
	}
	return out, nil
}

func (m *memMarkers) isConsumed(orderID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consumed[OrderKey{testAccount, orderID}]
}

func (m *memMarkers) isPending(orderID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[OrderKey{testAccount, orderID}]
	return ok
}

type memLocks struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func newLocks() *memLocks { return &memLocks{held: map[string]bool{}} }

func (m *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (lock.Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return lock.Lock{Key: key}, m.err
	}
	if m.held[key] {
		return lock.Lock{Key: key}, nil
	}
	m.held[key] = true
	return lock.Lock{Key: key, Backend: lock.BackendRedis, Acquired: true}, nil
}

func (m *memLocks) Release(_ context.Context, l lock.Lock) error {
	if !l.Acquired {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, l.Key)
	return nil
}

type recEvents struct {
	consumed []int64
	reversed []ReversalResult
}

func (r *recEvents) StockConsumed(_ context.Context, _ string, orderID int64, _ []Deduction) {
	r.consumed = append(r.consumed, orderID)
}

func (r *recEvents) StockReversed(_ context.Context, _ string, _ int64, res ReversalResult) {
	r.reversed = append(r.reversed, res)
}

// fixture wires an Engine over in-memory ports, seeded with Scenario-style
// data: kit product 100 = 2x product 1 + 1x product 2, stock 10 and 5.
type fixture struct {
	engine   *Engine
	boms     *memBOMs
	stock    *memStock
	platform *memPlatform
	ledger   *memLedger
	markers  *memMarkers
	locks    *memLocks
	events   *recEvents
}

var (
	refA   = ProductRef(1)
	refB   = ProductRef(2)
	refKit = ProductRef(100)
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func productItem(id string, productID int64, qty string) Item {
	return Item{ID: id, ComponentProductID: &productID, Quantity: dec(qty), IsActive: true}
}

func variationItem(id string, productID, variationID int64, qty string) Item {
	return Item{ID: id, ComponentProductID: &productID, ComponentVariationID: &variationID, Quantity: dec(qty), IsActive: true}
}

func internalItem(id, internalID, qty string) Item {
	return Item{ID: id, InternalProductID: &internalID, Quantity: dec(qty), IsActive: true}
}

func kitBOM() *BOM {
	return &BOM{
		ID: "bom-kit", AccountID: testAccount, ProductID: 100, Name: "Kit", IsActive: true,
		Items: []Item{productItem("i1", 1, "2"), productItem("i2", 2, "1")},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)

	f := &fixture{
		boms: &memBOMs{boms: []*BOM{kitBOM()}},
		stock: newStock(
			Component{Ref: refA, Name: "A", Stock: 10},
			Component{Ref: refB, Name: "B", Stock: 5},
			Component{Ref: refKit, Name: "Kit", Stock: 5},
		),
		platform: newPlatform(),
		ledger:   &memLedger{},
		markers:  newMarkers(),
		locks:    newLocks(),
		events:   &recEvents{},
	}
	f.platform.stock[refA] = 10
	f.platform.stock[refB] = 5
	f.platform.stock[refKit] = 5

	syncer := &Syncer{BOMs: f.boms, Stock: f.stock, Platform: f.platform, Log: log}
	f.engine = &Engine{
		Planner:  &Planner{BOMs: f.boms, Stock: f.stock, Log: log},
		Executor: &Executor{Stock: f.stock, Platform: f.platform, Log: log},
		Ledger:   f.ledger,
		Markers:  f.markers,
		Locks:    f.locks,
		Cascade:  &Cascader{BOMs: f.boms, Sync: syncer, Log: log},
		Events:   f.events,
		LockTTL:  time.Minute,
		Log:      log,
	}
	return f
}

func kitOrder(id int64, status orders.Status, qty int) orders.Order {
	return orders.Order{
		ID:        id,
		Status:    status,
		LineItems: []orders.LineItem{{ID: id*10 + 1, ProductID: 100, Name: "Kit", Quantity: qty}},
	}
}
