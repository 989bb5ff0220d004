// Package memstore is the in-memory Store used by the test suite and by
// STORE_DRIVER=memory runs. A single mutex stands in for the database
// transaction: every operation holds it end to end, so availability reads
// and the writes they guard cannot interleave.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/flower-shop.git/internal/shop"
)

type Store struct {
	mu        sync.Mutex
	replenish shop.ReplenishFunc
	now       func() time.Time

	current shop.Date
	stock   map[string]*shop.StockItem
	orders  map[string]*shop.Order
	items   map[string]*shop.LineItem
}

var _ shop.Store = (*Store)(nil)

func New(catalog []shop.StockItem, replenish shop.ReplenishFunc) *Store {
	s := &Store{
		replenish: replenish,
		now:       time.Now,
		stock:     make(map[string]*shop.StockItem, len(catalog)),
		orders:    make(map[string]*shop.Order),
		items:     make(map[string]*shop.LineItem),
	}
	for i := range catalog {
		it := catalog[i]
		s.stock[it.ID] = &it
	}
	return s
}

// SetNow overrides the creation timestamp source. Test hook.
func (s *Store) SetNow(now func() time.Time) { s.now = now }

func (s *Store) Init(_ context.Context, today shop.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = today
	for id, o := range s.orders {
		if o.OrderDate.Before(today) {
			s.deleteOrderLocked(id)
		}
	}
	return nil
}

func (s *Store) CurrentDate(_ context.Context) (shop.Date, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

func (s *Store) ListStockItems(_ context.Context) ([]shop.StockItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stockByNameLocked(), nil
}

func (s *Store) Availability(_ context.Context, date shop.Date, excludeOrderID string) ([]shop.StockAvailability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]shop.StockAvailability, 0, len(s.stock))
	for _, it := range s.stockByNameLocked() {
		reserved := 0
		if !date.IsZero() {
			reserved = s.committedOnDateLocked(date, it.ID, excludeOrderID)
		}
		out = append(out, shop.StockAvailability{
			ID:        it.ID,
			Name:      it.Name,
			OnHand:    it.OnHand,
			Reserved:  reserved,
			Available: it.OnHand - reserved,
		})
	}
	return out, nil
}

func (s *Store) ListOrders(_ context.Context) ([]shop.OrderWithItems, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]shop.OrderWithItems, 0, len(s.orders))
	for _, o := range s.orders {
		if o.OrderDate.Before(s.current) {
			continue
		}
		out = append(out, shop.OrderWithItems{Order: *o, Items: s.orderItemsLocked(o.ID)})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OrderDate.Equal(out[j].OrderDate) {
			return out[i].OrderDate.Before(out[j].OrderDate)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (shop.OrderWithItems, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return shop.OrderWithItems{}, shop.ErrOrderNotFound
	}
	return shop.OrderWithItems{Order: *o, Items: s.orderItemsLocked(id)}, nil
}

func (s *Store) CreateOrder(_ context.Context, customerName string, date shop.Date) (shop.Order, error) {
	if err := shop.ValidateOrderInput(customerName, date); err != nil {
		return shop.Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if date.Before(s.current) {
		return shop.Order{}, shop.ErrPastDate
	}
	o := &shop.Order{
		ID:           uuid.NewString(),
		CustomerName: customerName,
		OrderDate:    date,
		CreatedAt:    s.now().UTC(),
	}
	s.orders[o.ID] = o
	return *o, nil
}

func (s *Store) UpdateOrder(_ context.Context, id, customerName string, date shop.Date) (shop.Order, error) {
	if err := shop.ValidateOrderInput(customerName, date); err != nil {
		return shop.Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return shop.Order{}, shop.ErrOrderNotFound
	}
	if date.Before(s.current) {
		return shop.Order{}, shop.ErrPastDate
	}
	o.CustomerName = customerName
	o.OrderDate = date
	return *o, nil
}

func (s *Store) DeleteOrder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[id]; !ok {
		return shop.ErrOrderNotFound
	}
	s.deleteOrderLocked(id)
	return nil
}

func (s *Store) AddLineItem(_ context.Context, orderID, stockItemID string, quantity int) (shop.LineItem, error) {
	if err := shop.ValidateLineInput(stockItemID, quantity); err != nil {
		return shop.LineItem{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return shop.LineItem{}, shop.ErrOrderNotFound
	}
	stock, ok := s.stock[stockItemID]
	if !ok {
		return shop.LineItem{}, shop.ErrStockItemNotFound
	}
	for _, it := range s.items {
		if it.OrderID == orderID && it.StockItemID == stockItemID {
			return shop.LineItem{}, shop.ErrDuplicateItem
		}
	}

	// Date-wide commitment includes this order; its own share is credited
	// back so the check stays symmetric with update.
	alreadyInThisOrder := s.committedInOrderLocked(orderID, stockItemID, "")
	committedOnDate := s.committedOnDateLocked(o.OrderDate, stockItemID, "")
	available := stock.OnHand - committedOnDate + alreadyInThisOrder
	if available < quantity {
		return shop.LineItem{}, &shop.InsufficientStockError{
			StockItemID: stockItemID,
			OnHand:      stock.OnHand,
			Reserved:    committedOnDate - alreadyInThisOrder,
			Available:   available,
			Requested:   quantity,
		}
	}

	it := &shop.LineItem{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		StockItemID: stockItemID,
		Quantity:    quantity,
	}
	s.items[it.ID] = it
	return s.withNameLocked(*it), nil
}

func (s *Store) UpdateLineItem(_ context.Context, orderID, itemID, stockItemID string, quantity int) (shop.LineItem, error) {
	if err := shop.ValidateLineInput(stockItemID, quantity); err != nil {
		return shop.LineItem{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[itemID]
	if !ok || it.OrderID != orderID {
		return shop.LineItem{}, shop.ErrLineItemNotFound
	}
	o := s.orders[orderID]
	stock, ok := s.stock[stockItemID]
	if !ok {
		return shop.LineItem{}, shop.ErrStockItemNotFound
	}
	for _, other := range s.items {
		if other.ID != itemID && other.OrderID == orderID && other.StockItemID == stockItemID {
			return shop.LineItem{}, shop.ErrDuplicateItem
		}
	}

	// This order's prior reservation is excluded entirely: editing an
	// order never competes against its own history.
	committedElsewhere := s.committedOnDateLocked(o.OrderDate, stockItemID, orderID)
	available := stock.OnHand - committedElsewhere
	if available < quantity {
		return shop.LineItem{}, &shop.InsufficientStockError{
			StockItemID: stockItemID,
			OnHand:      stock.OnHand,
			Reserved:    committedElsewhere,
			Available:   available,
			Requested:   quantity,
		}
	}

	it.StockItemID = stockItemID
	it.Quantity = quantity
	return s.withNameLocked(*it), nil
}

func (s *Store) DeleteLineItem(_ context.Context, orderID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[itemID]
	if !ok || it.OrderID != orderID {
		return shop.ErrLineItemNotFound
	}
	delete(s.items, itemID)
	return nil
}

func (s *Store) MoveLineItem(_ context.Context, targetOrderID, itemID string) (shop.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[itemID]
	if !ok {
		return shop.LineItem{}, shop.ErrLineItemNotFound
	}
	if _, ok := s.orders[targetOrderID]; !ok {
		return shop.LineItem{}, shop.ErrOrderNotFound
	}
	stock := s.stock[it.StockItemID]

	// Narrower check than add/update: capacity within the target order
	// only, ignoring the item's own date-wide reservations elsewhere.
	// Inherited policy, kept as is.
	alreadyInTarget := s.committedInOrderLocked(targetOrderID, it.StockItemID, "")
	if stock.OnHand < alreadyInTarget+it.Quantity {
		return shop.LineItem{}, &shop.InsufficientStockError{
			StockItemID: it.StockItemID,
			OnHand:      stock.OnHand,
			Reserved:    alreadyInTarget,
			Available:   stock.OnHand - alreadyInTarget,
			Requested:   it.Quantity,
		}
	}

	it.OrderID = targetOrderID
	return s.withNameLocked(*it), nil
}

func (s *Store) AdvanceDay(_ context.Context) (shop.AdvanceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := s.current
	res := shop.AdvanceResult{PreviousDate: day}

	// Tally before the purge so the decrement reflects every commitment.
	tally := make(map[string]int)
	for _, it := range s.items {
		if s.orders[it.OrderID].OrderDate.Equal(day) {
			tally[it.StockItemID] += it.Quantity
		}
	}
	for _, stock := range s.stockByNameLocked() {
		shipped, ok := tally[stock.ID]
		if !ok {
			continue
		}
		live := s.stock[stock.ID]
		live.OnHand -= shipped
		if live.OnHand < 0 {
			live.OnHand = 0
		}
		res.Shipped = append(res.Shipped, shop.ShippedStock{StockItemID: stock.ID, Quantity: shipped})
	}

	for id, o := range s.orders {
		if o.OrderDate.Equal(day) {
			s.deleteOrderLocked(id)
			res.PurgedOrders = append(res.PurgedOrders, id)
		}
	}
	sort.Strings(res.PurgedOrders)

	// Independent delivery draw per item, shipped or not.
	for _, it := range s.stock {
		it.OnHand += s.replenish()
	}

	s.current = day.Next()
	res.CurrentDate = s.current
	return res, nil
}

// ---- helpers, caller holds mu ----

func (s *Store) deleteOrderLocked(id string) {
	delete(s.orders, id)
	for itemID, it := range s.items {
		if it.OrderID == id {
			delete(s.items, itemID)
		}
	}
}

func (s *Store) committedInOrderLocked(orderID, stockItemID, excludeItemID string) int {
	total := 0
	for _, it := range s.items {
		if it.OrderID == orderID && it.StockItemID == stockItemID && it.ID != excludeItemID {
			total += it.Quantity
		}
	}
	return total
}

func (s *Store) committedOnDateLocked(date shop.Date, stockItemID, excludeOrderID string) int {
	total := 0
	for _, it := range s.items {
		if it.StockItemID != stockItemID {
			continue
		}
		o := s.orders[it.OrderID]
		if o == nil || !o.OrderDate.Equal(date) || o.ID == excludeOrderID {
			continue
		}
		total += it.Quantity
	}
	return total
}

func (s *Store) orderItemsLocked(orderID string) []shop.LineItem {
	out := make([]shop.LineItem, 0, 4)
	for _, it := range s.items {
		if it.OrderID == orderID {
			out = append(out, s.withNameLocked(*it))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) withNameLocked(it shop.LineItem) shop.LineItem {
	if stock, ok := s.stock[it.StockItemID]; ok {
		it.StockItemName = stock.Name
	}
	return it
}

func (s *Store) stockByNameLocked() []shop.StockItem {
	out := make([]shop.StockItem, 0, len(s.stock))
	for _, it := range s.stock {
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

