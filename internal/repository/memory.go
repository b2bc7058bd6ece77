package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/procura/internal/models"
)

// MemoryStore is a mutex-guarded in-memory implementation of the
// repository interfaces. It backs service tests; the semantics of the
// conditional operations (balance floor, stock floor, status compare)
// match the Postgres implementation.
type MemoryStore struct {
	mu         sync.RWMutex
	products   map[uuid.UUID]models.Product
	cartItems  map[uuid.UUID]models.CartItem
	orders     map[uuid.UUID]models.Order
	tracking   map[uuid.UUID][]models.TrackingEvent
	wallets    map[uuid.UUID]models.UserWallet
	walletTxns map[uuid.UUID][]models.WalletTransaction
	kits       map[uuid.UUID]models.SubscriptionKit
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:   make(map[uuid.UUID]models.Product),
		cartItems:  make(map[uuid.UUID]models.CartItem),
		orders:     make(map[uuid.UUID]models.Order),
		tracking:   make(map[uuid.UUID][]models.TrackingEvent),
		wallets:    make(map[uuid.UUID]models.UserWallet),
		walletTxns: make(map[uuid.UUID][]models.WalletTransaction),
	}
}

func (m *MemoryStore) Products() ProductRepository { return &memProducts{m} }
func (m *MemoryStore) Carts() CartRepository       { return &memCarts{m} }
func (m *MemoryStore) Orders() OrderRepository     { return &memOrders{m} }
func (m *MemoryStore) Wallets() WalletRepository   { return &memWallets{m} }
func (m *MemoryStore) Kits() KitRepository         { return &memKits{m} }

// transaction-aware locking: operations inside WithTransaction run under
// the store-wide write lock and must skip their own locking.
type memTxKey struct{}

func inTx(ctx context.Context) bool {
	v, ok := ctx.Value(memTxKey{}).(bool)
	return ok && v
}

func (m *MemoryStore) rlock(ctx context.Context) {
	if !inTx(ctx) {
		m.mu.RLock()
	}
}

func (m *MemoryStore) runlock(ctx context.Context) {
	if !inTx(ctx) {
		m.mu.RUnlock()
	}
}

func (m *MemoryStore) wlock(ctx context.Context) {
	if !inTx(ctx) {
		m.mu.Lock()
	}
}

func (m *MemoryStore) wunlock(ctx context.Context) {
	if !inTx(ctx) {
		m.mu.Unlock()
	}
}

// WithTransaction emulates a transaction with the store-wide write lock
// plus a snapshot restored when fn fails. Nested calls join the outer one.
func (m *MemoryStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	err := fn(context.WithValue(ctx, memTxKey{}, true))
	if err != nil {
		m.restore(snap)
	}
	return err
}

type memSnapshot struct {
	products   map[uuid.UUID]models.Product
	cartItems  map[uuid.UUID]models.CartItem
	orders     map[uuid.UUID]models.Order
	tracking   map[uuid.UUID][]models.TrackingEvent
	wallets    map[uuid.UUID]models.UserWallet
	walletTxns map[uuid.UUID][]models.WalletTransaction
	kits       map[uuid.UUID]models.SubscriptionKit
}

func (m *MemoryStore) snapshot() memSnapshot {
	return memSnapshot{
		products:   copyMap(m.products),
		cartItems:  copyMap(m.cartItems),
		orders:     copyMap(m.orders),
		tracking:   copySliceMap(m.tracking),
		wallets:    copyMap(m.wallets),
		walletTxns: copySliceMap(m.walletTxns),
		kits:       copyMap(m.kits),
	}
}

func (m *MemoryStore) restore(s memSnapshot) {
	m.products = s.products
	m.cartItems = s.cartItems
	m.orders = s.orders
	m.tracking = s.tracking
	m.wallets = s.wallets
	m.walletTxns = s.walletTxns
	m.kits = s.kits
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func copySliceMap[K comparable, V any](src map[K][]V) map[K][]V {
	dst := make(map[K][]V, len(src))
	for k, v := range src {
		cp := make([]V, len(v))
		copy(cp, v)
		dst[k] = cp
	}
	return dst
}

func stamp(b *models.BaseModel) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

// --- products ---

type memProducts struct{ store *MemoryStore }

func (r *memProducts) Create(ctx context.Context, p *models.Product) error {
	r.store.wlock(ctx)
	defer r.store.wunlock(ctx)
	stamp(&p.BaseModel)
	r.store.products[p.ID] = *p
	return nil
}

func (r *memProducts) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	r.store.rlock(ctx)
	defer r.store.runlock(ctx)
	p, ok := r.store.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := p
	return &cp, nil
}

func (r *memProducts) List(ctx context.Context, f ProductFilter) ([]models.Product, int64, error) {
	r.store.rlock(ctx)
	defer r.store.runlock(ctx)

	out := make([]models.Product, 0)
	for _, p := range r.store.products {
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		if f.ActiveOnly && !p.IsActive {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	total := int64(len(out))
	out = paginate(out, f.Limit, f.Offset)
	return out, total, nil
}

func (r *memProducts) Update(ctx context.Context, p *models.Product) error {
	r.store.wlock(ctx)
	defer r.store.wunlock(ctx)
	if _, ok := r.store.products[p.ID]; !ok {
		return ErrNotFound
	}
	p.UpdatedAt = time.Now()
	r.store.products[p.ID] = *p
	return nil
}

func (r *memProducts) ReserveStock(ctx context.Context, id uuid.UUID, qty int) error {
	r.store.wlock(ctx)
	defer r.store.wunlock(ctx)
	p, ok := r.store.products[id]
	if !ok {
		return ErrNotFound
	}
	if p.Stock < qty {
		return ErrInsufficientStock
	}
	p.Stock -= qty
	r.store.products[id] = p
	return nil
}

func (r *memProducts) ReleaseStock(ctx context.Context, id uuid.UUID, qty int) error {
	r.store.wlock(ctx)
	defer r.store.wunlock(ctx)
	p, ok := r.store.products[id]
	if !ok {
		return ErrNotFound
	}
	p.Stock += qty
	r.store.products[id] = p
	return nil
}

// --- carts ---

type memCarts struct{ store *MemoryStore }

func (r *memCarts) ItemsByUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	r.store.rlock(ctx)
	defer r.store.runlock(ctx)

	out := make([]models.CartItem, 0)
	for _, item := range r.store.cartItems {
		if item.UserID == userID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.Before(out[j].AddedAt) })
	return out, nil
}

func (r *memCarts) GetItem(ctx context.Context, userID, itemID uuid.UUID) (*models.CartItem, error) {
	r.store.rlock(ctx)
	defer r.store.runlock(ctx)
	item, ok := r.store.cartItems[itemID]
	if !ok || item.UserID != userID {
		return nil, ErrNotFound
	}
	cp := item
	return &cp, nil
}

func (r *memCarts) FindByProduct(ctx context.Context, userID, productID uuid.UUID) (*models.CartItem, error) {
	r.store.rlock(ctx)
	defer r.store.runlock(ctx)
	for _, item := range r.store.cartItems {
		if item.UserID == userID && item.ProductID == productID {
			cp := item
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memCarts) Create(ctx context.Context, item *models.CartItem) error {
	r.store.wlock(ctx)
	defer r.store.wunlock(ctx)
	stamp(&item.BaseModel)
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now()
	}
	r.store.cartItems[item.ID] = *item
	return nil
}

func (r *memCarts) UpdateQuantity(ctx context.Context, itemID uuid.UUID, qty int) error {
	r.store.wlock(ctx)
	defer r.store.wunlock(ctx)
	item, ok := r.store.cartItems[itemID]
	if !ok {
		return ErrNotFound
	}
	item.Quantity = qty
	item.UpdatedAt = time.Now()
	r.store.cartItems[itemID] = item
	return nil
}

func (r *memCarts) Delete(ctx context.Context, userID, itemID uuid.UUID) error {
	r.store.wlock(ctx)
	defer r.store.wunlock(ctx)
	item, ok := r.store.cartItems[itemID]
	if !ok || item.UserID != userID {
		return ErrNotFound
	}
	delete(r.store.cartItems, itemID)
	return nil
}

func (r *memCarts) Clear(ctx context.Context, userID uuid.UUID) error {
	r.store.wlock(ctx)
	defer r.store.wunlock(ctx)
	for id, item := range r.store.cartItems {
		if item.UserID == userID {
			delete(r.store.cartItems, id)
		}
	}
	return nil
}

// --- orders ---

type memOrders struct{ store *MemoryStore }

func (r *memOrders) Create(ctx context.Context, o *models.Order) error {
	r.store.wlock(ctx)
	defer r.store.wunlock(ctx)
	stamp(&o.BaseModel)
	for i := range o.Items {
		stamp(&o.Items[i].BaseModel)
		o.Items[i].OrderID = o.ID
	}
	r.store.orders[o.ID] = *o
	return nil
}

func (r *memOrders) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	r.store.rlock(ctx)
	defer r.store.runlock(ctx)
	o, ok := r.store.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	return &cp, nil
}

func (r *memOrders) GetForUser(ctx context.Context, userID, id uuid.UUID) (*models.Order, error) {
	o, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

func (r *memOrders) ListByUser(ctx context.Context, userID uuid.UUID, f OrderFilter) ([]models.Order, int64, error) {
	r.store.rlock(ctx)
	defer r.store.runlock(ctx)

	out := make([]models.Order, 0)
	for _, o := range r.store.orders {
		if o.UserID != userID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.After(out[j].PlacedAt) })

	total := int64(len(out))
	out = paginate(out, f.Limit, f.Offset)
	return out, total, nil
}

func (r *memOrders) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) error {
	r.store.wlock(ctx)
	defer r.store.wunlock(ctx)
	o, ok := r.store.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status != from {
		return ErrStaleStatus
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	r.store.orders[id] = o
	return nil
}

func (r *memOrders) UpdatePayment(ctx context.Context, id uuid.UUID, upd PaymentUpdate) error {
	r.store.wlock(ctx)
	defer r.store.wunlock(ctx)
	o, ok := r.store.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.PaymentStatus = upd.Status
	if upd.Ref != "" {
		o.PaymentRef = upd.Ref
	}
	if upd.PaidAt != nil {
		o.PaidAt = upd.PaidAt
	}
	o.UpdatedAt = time.Now()
	r.store.orders[id] = o
	return nil
}

func (r *memOrders) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.store.wlock(ctx)
	defer r.store.wunlock(ctx)
	o, ok := r.store.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.DeliveredAt = &at
	o.UpdatedAt = time.Now()
	r.store.orders[id] = o
	return nil
}

func (r *memOrders) UpdateSupplierSync(ctx context.Context, id uuid.UUID, ref string, syncErr string) error {
	r.store.wlock(ctx)
	defer r.store.wunlock(ctx)
	o, ok := r.store.orders[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	o.SupplierOrderRef = ref
	o.SupplierSyncedAt = &now
	o.SupplierSyncError = syncErr
	o.UpdatedAt = now
	r.store.orders[id] = o
	return nil
}

func (r *memOrders) AppendTrackingEvent(ctx context.Context, ev *models.TrackingEvent) error {
	r.store.wlock(ctx)
	defer r.store.wunlock(ctx)
	if _, ok := r.store.orders[ev.OrderID]; !ok {
		return ErrNotFound
	}
	stamp(&ev.BaseModel)
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	r.store.tracking[ev.OrderID] = append(r.store.tracking[ev.OrderID], *ev)
	return nil
}

// TrackingEvents returns the log in insertion order, mirroring the SQL
// store: the client-supplied OccurredAt never reorders the guard view.
func (r *memOrders) TrackingEvents(ctx context.Context, orderID uuid.UUID) ([]models.TrackingEvent, error) {
	r.store.rlock(ctx)
	defer r.store.runlock(ctx)
	events := append([]models.TrackingEvent(nil), r.store.tracking[orderID]...)
	return events, nil
}

func (r *memOrders) LastTrackingEvent(ctx context.Context, orderID uuid.UUID) (*models.TrackingEvent, error) {
	events, err := r.TrackingEvents(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}
	last := events[len(events)-1]
	return &last, nil
}

// --- wallets ---

type memWallets struct{ store *MemoryStore }

func (r *memWallets) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.UserWallet, error) {
	r.store.wlock(ctx)
	defer r.store.wunlock(ctx)
	return r.getOrCreateLocked(userID), nil
}

func (r *memWallets) getOrCreateLocked(userID uuid.UUID) *models.UserWallet {
	if w, ok := r.store.wallets[userID]; ok {
		cp := w
		return &cp
	}
	w := models.UserWallet{
		UserID:   userID,
		Currency: DefaultCurrency,
	}
	stamp(&w.BaseModel)
	r.store.wallets[userID] = w
	cp := w
	return &cp
}

func (r *memWallets) Credit(ctx context.Context, userID uuid.UUID, txn *models.WalletTransaction) error {
	if txn.Amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %v", txn.Amount)
	}
	r.store.wlock(ctx)
	defer r.store.wunlock(ctx)

	wallet := r.getOrCreateLocked(userID)
	stored := r.store.wallets[userID]
	stored.Balance += txn.Amount
	stored.UpdatedAt = time.Now()
	r.store.wallets[userID] = stored

	r.appendLocked(wallet, txn)
	return nil
}

func (r *memWallets) Debit(ctx context.Context, userID uuid.UUID, txn *models.WalletTransaction) error {
	if txn.Amount >= 0 {
		return fmt.Errorf("debit amount must be negative, got %v", txn.Amount)
	}
	r.store.wlock(ctx)
	defer r.store.wunlock(ctx)

	wallet := r.getOrCreateLocked(userID)
	stored := r.store.wallets[userID]
	need := -txn.Amount
	if stored.Balance < need {
		return ErrInsufficientBalance
	}
	stored.Balance -= need
	stored.UpdatedAt = time.Now()
	r.store.wallets[userID] = stored

	r.appendLocked(wallet, txn)
	return nil
}

func (r *memWallets) appendLocked(wallet *models.UserWallet, txn *models.WalletTransaction) {
	stamp(&txn.BaseModel)
	txn.UserID = wallet.UserID
	txn.WalletID = wallet.ID
	if txn.OccurredAt.IsZero() {
		txn.OccurredAt = time.Now()
	}
	r.store.walletTxns[wallet.UserID] = append(r.store.walletTxns[wallet.UserID], *txn)
}

func (r *memWallets) Transactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WalletTransaction, int64, error) {
	r.store.rlock(ctx)
	defer r.store.runlock(ctx)
	txns := append([]models.WalletTransaction(nil), r.store.walletTxns[userID]...)
	sort.Slice(txns, func(i, j int) bool { return txns[i].OccurredAt.After(txns[j].OccurredAt) })
	total := int64(len(txns))
	txns = paginate(txns, limit, offset)
	return txns, total, nil
}

func (r *memWallets) SumTransactions(ctx context.Context, userID uuid.UUID) (float64, error) {
	r.store.rlock(ctx)
	defer r.store.runlock(ctx)
	var sum float64
	for _, txn := range r.store.walletTxns[userID] {
		sum += txn.Amount
	}
	return sum, nil
}

// --- kits ---

type memKits struct{ store *MemoryStore }

// AddKit seeds a kit; test helper, not part of KitRepository.
func (m *MemoryStore) AddKit(kit models.SubscriptionKit) models.SubscriptionKit {
	m.mu.Lock()
	defer m.mu.Unlock()
	stamp(&kit.BaseModel)
	for i := range kit.Products {
		stamp(&kit.Products[i].BaseModel)
		kit.Products[i].KitID = kit.ID
	}
	if m.kits == nil {
		m.kits = make(map[uuid.UUID]models.SubscriptionKit)
	}
	m.kits[kit.ID] = kit
	return kit
}

func (r *memKits) GetByID(ctx context.Context, id uuid.UUID) (*models.SubscriptionKit, error) {
	r.store.rlock(ctx)
	defer r.store.runlock(ctx)
	kit, ok := r.store.kits[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := kit
	cp.Products = append([]models.KitProduct(nil), kit.Products...)
	return &cp, nil
}

func (r *memKits) List(ctx context.Context, activeOnly bool) ([]models.SubscriptionKit, error) {
	r.store.rlock(ctx)
	defer r.store.runlock(ctx)
	out := make([]models.SubscriptionKit, 0)
	for _, kit := range r.store.kits {
		if activeOnly && !kit.IsActive {
			continue
		}
		out = append(out, kit)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		return items
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
