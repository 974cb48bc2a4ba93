package service_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/linemk/market-checkout/internal/domain/models"
	"github.com/linemk/market-checkout/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore — in-memory реализация репозиториев.
// WithTx сериализует транзакции и откатывает состояние при ошибке, как это делает Postgres.
type memStore struct {
	mu         sync.Mutex
	products   map[int64]*models.Product
	orders     map[string]*models.Order
	items      map[string][]*models.OrderItem
	deliveries map[string]*models.DeliveryRequest
	nextItemID int64

	// ошибки, которые нужно вернуть из конкретных методов
	failItemCreate  error
	failUpdate      error
	conflictsToEmit int
}

var (
	_ storage.ProductStorage  = (*memStore)(nil)
	_ storage.OrderStorage    = (*memStore)(nil)
	_ storage.DeliveryStorage = (*memStore)(nil)
	_ storage.TxRunner        = (*memStore)(nil)
)

func newMemStore(products ...*models.Product) *memStore {
	s := &memStore{
		products:   make(map[int64]*models.Product),
		orders:     make(map[string]*models.Order),
		items:      make(map[string][]*models.OrderItem),
		deliveries: make(map[string]*models.DeliveryRequest),
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

type memSnapshot struct {
	products   map[int64]models.Product
	orders     map[string]models.Order
	items      map[string][]*models.OrderItem
	deliveries map[string]*models.DeliveryRequest
	nextItemID int64
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		products:   make(map[int64]models.Product, len(s.products)),
		orders:     make(map[string]models.Order, len(s.orders)),
		items:      make(map[string][]*models.OrderItem, len(s.items)),
		deliveries: make(map[string]*models.DeliveryRequest, len(s.deliveries)),
		nextItemID: s.nextItemID,
	}
	for id, p := range s.products {
		snap.products[id] = *p
	}
	for id, o := range s.orders {
		snap.orders[id] = *o
	}
	for id, items := range s.items {
		snap.items[id] = append([]*models.OrderItem(nil), items...)
	}
	for id, d := range s.deliveries {
		snap.deliveries[id] = d
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.products = make(map[int64]*models.Product, len(snap.products))
	for id, p := range snap.products {
		p := p
		s.products[id] = &p
	}
	s.orders = make(map[string]*models.Order, len(snap.orders))
	for id, o := range snap.orders {
		o := o
		s.orders[id] = &o
	}
	s.items = snap.items
	s.deliveries = snap.deliveries
	s.nextItemID = snap.nextItemID
}

func (s *memStore) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(nil); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// stock и status читаются тестом между вызовами сервиса
func (s *memStore) stock(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Stock
}

func (s *memStore) status(orderID string) models.OrderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[orderID].Status
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// putOrder кладёт готовый заказ с позициями в обход сервиса
func (s *memStore) putOrder(o *models.Order, items ...*models.OrderItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.nextItemID++
		item.ID = s.nextItemID
		item.OrderID = o.ID
	}
	s.orders[o.ID] = o
	s.items[o.ID] = items
}

func (s *memStore) GetOrderableProductsTx(ctx context.Context, tx *sql.Tx, ids []int64) ([]*models.Product, error) {
	if s.conflictsToEmit > 0 {
		s.conflictsToEmit--
		return nil, &pq.Error{Code: "40001", Message: "could not serialize access"}
	}
	var out []*models.Product
	for _, id := range ids {
		p, ok := s.products[id]
		if !ok || p.Deleted {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) DecrementStockTx(ctx context.Context, tx *sql.Tx, id int64, quantity int) error {
	p, ok := s.products[id]
	if !ok || p.Stock < quantity {
		return storage.ErrInsufficientStock
	}
	p.Stock -= quantity
	return nil
}

func (s *memStore) IncrementStockTx(ctx context.Context, tx *sql.Tx, id int64, quantity int) error {
	p, ok := s.products[id]
	if !ok {
		return storage.ErrProductNotFound
	}
	p.Stock += quantity
	return nil
}

func (s *memStore) CreateOrderTx(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	now := time.Now()
	order.CreatedAt, order.UpdatedAt = now, now
	cp := *order
	cp.Items = nil
	s.orders[order.ID] = &cp
	return nil
}

func (s *memStore) CreateOrderItemTx(ctx context.Context, tx *sql.Tx, item *models.OrderItem) error {
	if s.failItemCreate != nil && len(s.items[item.OrderID]) > 0 {
		return s.failItemCreate
	}
	s.nextItemID++
	item.ID = s.nextItemID
	cp := *item
	s.items[item.OrderID] = append(s.items[item.OrderID], &cp)
	return nil
}

func (s *memStore) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	cp := *o
	for _, item := range s.items[id] {
		it := *item
		if p, ok := s.products[it.ProductID]; ok {
			it.ProductName = p.Name
		}
		cp.Items = append(cp.Items, &it)
	}
	return &cp, nil
}

func (s *memStore) GetOrdersByUserID(ctx context.Context, userID int64) ([]*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*models.Order{}
	for _, o := range s.orders {
		if o.UserID == userID {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) LockOrderTx(ctx context.Context, tx *sql.Tx, id string) (*models.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *memStore) LockPendingOrderTx(ctx context.Context, tx *sql.Tx, id string) (*models.Order, error) {
	o, ok := s.orders[id]
	if !ok || o.Status != models.OrderStatusPending {
		return nil, storage.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *memStore) GetOrderItemsTx(ctx context.Context, tx *sql.Tx, orderID string) ([]*models.OrderItem, error) {
	var out []*models.OrderItem
	for _, item := range s.items[orderID] {
		cp := *item
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id string, from, to models.OrderStatus) (bool, error) {
	if s.failUpdate != nil {
		return false, s.failUpdate
	}
	o, ok := s.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return true, nil
}

func (s *memStore) GetStalePendingOrderIDs(ctx context.Context, before time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, o := range s.orders {
		if o.Status == models.OrderStatusPending && o.CreatedAt.Before(before) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *memStore) VendorOwnsAllItemsTx(ctx context.Context, tx *sql.Tx, orderID string, vendorID int64) (bool, error) {
	items := s.items[orderID]
	if len(items) == 0 {
		return false, nil
	}
	for _, item := range items {
		p, ok := s.products[item.ProductID]
		if !ok || p.VendorID != vendorID {
			return false, nil
		}
	}
	return true, nil
}

func (s *memStore) CreateDeliveryRequestTx(ctx context.Context, tx *sql.Tx, req *models.DeliveryRequest) error {
	if _, ok := s.deliveries[req.OrderID]; ok {
		return storage.ErrDeliveryExists
	}
	req.ID = int64(len(s.deliveries) + 1)
	req.CreatedAt = time.Now()
	cp := *req
	s.deliveries[req.OrderID] = &cp
	return nil
}

// recordingPublisher запоминает опубликованные события
type recordingPublisher struct {
	mu     sync.Mutex
	events []models.OrderEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event models.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeGateway struct {
	redirectURL string
	postErr     error
	validHash   bool
	requests    []*models.PaymentRequest
}

func (g *fakeGateway) BuildPaymentRequest(orderID string, total int64) *models.PaymentRequest {
	return &models.PaymentRequest{TransactionReference: orderID, Amount: "built", HashCheck: "hash"}
}

func (g *fakeGateway) PostPaymentRequest(ctx context.Context, req *models.PaymentRequest) (string, error) {
	g.requests = append(g.requests, req)
	if g.postErr != nil {
		return "", g.postErr
	}
	return g.redirectURL, nil
}

func (g *fakeGateway) VerifyNotification(n *models.PaymentNotification) bool {
	return g.validHash
}

// memDedup — dedup.Store в памяти
type memDedup struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func newMemDedup() *memDedup {
	return &memDedup{keys: make(map[string]bool)}
}

func (d *memDedup) Seen(ctx context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	return d.keys[key], nil
}

func (d *memDedup) Mark(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.keys[key] = true
	return nil
}

var errBoom = errors.New("boom")
