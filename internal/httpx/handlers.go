package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/flower-shop.git/internal/kafka"
	"github.com/ariefcatur/flower-shop.git/internal/redisx"
	"github.com/ariefcatur/flower-shop.git/internal/shop"
)

// Handler serves the shop API. Cache and Producer are optional; without
// them every read hits the store and no events are published.
type Handler struct {
	Store    shop.Store
	Cache    *redis.Client
	Producer *kafkax.Producer
	Service  string
	Log      zerolog.Logger
}

type orderRequest struct {
	CustomerName string `json:"customerName"`
	OrderDate    string `json:"orderDate"`
}

type lineItemRequest struct {
	StockItemID string `json:"stockItemId"`
	Quantity    int    `json:"quantity"`
}

func (h *Handler) Register(r *chi.Mux) {
	r.Get("/items", h.listStockItems)
	r.Get("/items/availability", h.availability)

	r.Get("/orders", h.listOrders)
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Put("/orders/{id}", h.updateOrder)
	r.Delete("/orders/{id}", h.deleteOrder)

	r.Post("/orders/{orderId}/items", h.addLineItem)
	r.Put("/orders/{orderId}/items/{itemId}", h.updateLineItem)
	r.Delete("/orders/{orderId}/items/{itemId}", h.deleteLineItem)
	r.Post("/orders/{targetOrderId}/items/{itemId}/move", h.moveLineItem)

	r.Get("/clock", h.getClock)
	r.Post("/clock/advance", h.advanceClock)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var stock *shop.InsufficientStockError
	var invalid shop.ValidationError
	switch {
	case errors.As(err, &stock):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":     stock.Error(),
			"onHand":    stock.OnHand,
			"reserved":  stock.Reserved,
			"available": stock.Available,
			"requested": stock.Requested,
		})
	case errors.As(err, &invalid),
		errors.Is(err, shop.ErrPastDate),
		errors.Is(err, shop.ErrDuplicateItem):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, shop.ErrOrderNotFound),
		errors.Is(err, shop.ErrStockItemNotFound),
		errors.Is(err, shop.ErrLineItemNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		h.Log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("store failure")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// ---- stock ----

func (h *Handler) listStockItems(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Cache != nil {
		if s, err := h.Cache.Get(ctx, redisx.KeyStockList).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	items, err := h.Store.ListStockItems(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.Cache != nil {
		if b, err := json.Marshal(items); err == nil {
			_ = h.Cache.Set(ctx, redisx.KeyStockList, b, redisx.TTLStockList).Err()
		}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var date shop.Date
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := shop.ParseDate(raw)
		if err != nil {
			h.writeError(w, r, shop.ValidationError(err.Error()))
			return
		}
		date = d
	}
	avail, err := h.Store.Availability(ctx, date, r.URL.Query().Get("excludeOrderId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, avail)
}

// ---- orders ----

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	orders, err := h.Store.ListOrders(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	order, err := h.Store.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	date, err := parseOrderDate(req.OrderDate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	order, err := h.Store.CreateOrder(ctx, req.CustomerName, date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.publish(r, shop.TopicOrderCreated, shop.EventOrderCreated, order.ID, shop.OrderEventPayload{
		OrderID:      order.ID,
		CustomerName: order.CustomerName,
		OrderDate:    order.OrderDate,
	})
	writeJSON(w, http.StatusCreated, shop.OrderWithItems{Order: order, Items: []shop.LineItem{}})
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	date, err := parseOrderDate(req.OrderDate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	order, err := h.Store.UpdateOrder(ctx, chi.URLParam(r, "id"), req.CustomerName, date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.publish(r, shop.TopicOrderUpdated, shop.EventOrderUpdated, order.ID, shop.OrderEventPayload{
		OrderID:      order.ID,
		CustomerName: order.CustomerName,
		OrderDate:    order.OrderDate,
	})
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id := chi.URLParam(r, "id")
	if err := h.Store.DeleteOrder(ctx, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.publish(r, shop.TopicOrderDeleted, shop.EventOrderDeleted, id, shop.OrderEventPayload{OrderID: id})
	writeJSON(w, http.StatusOK, map[string]string{"message": "order deleted"})
}

// ---- line items ----

func (h *Handler) addLineItem(w http.ResponseWriter, r *http.Request) {
	var req lineItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	item, err := h.Store.AddLineItem(ctx, chi.URLParam(r, "orderId"), req.StockItemID, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) updateLineItem(w http.ResponseWriter, r *http.Request) {
	var req lineItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	item, err := h.Store.UpdateLineItem(ctx,
		chi.URLParam(r, "orderId"), chi.URLParam(r, "itemId"), req.StockItemID, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) deleteLineItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	err := h.Store.DeleteLineItem(ctx, chi.URLParam(r, "orderId"), chi.URLParam(r, "itemId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "line item removed"})
}

func (h *Handler) moveLineItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	item, err := h.Store.MoveLineItem(ctx,
		chi.URLParam(r, "targetOrderId"), chi.URLParam(r, "itemId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// ---- clock ----

func (h *Handler) getClock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	date, err := h.Store.CurrentDate(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"currentDate": date.String()})
}

func (h *Handler) advanceClock(w http.ResponseWriter, r *http.Request) {
	// Bounded by inventory size, still the slowest call we have.
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Store.AdvanceDay(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if h.Cache != nil {
		// Stock moved; the cached list is stale.
		_ = h.Cache.Del(ctx, redisx.KeyStockList).Err()
	}
	h.Log.Info().
		Str("previous_date", res.PreviousDate.String()).
		Str("current_date", res.CurrentDate.String()).
		Int("orders_shipped", len(res.PurgedOrders)).
		Int("items_shipped", len(res.Shipped)).
		Msg("day advanced")
	h.publish(r, shop.TopicDayAdvanced, shop.EventDayAdvanced, res.PreviousDate.String(), shop.DayAdvancedPayload{
		PreviousDate: res.PreviousDate,
		CurrentDate:  res.CurrentDate,
		Shipped:      res.Shipped,
		PurgedOrders: res.PurgedOrders,
	})

	writeJSON(w, http.StatusOK, map[string]string{
		"previousDate": res.PreviousDate.String(),
		"currentDate":  res.CurrentDate.String(),
		"message": fmt.Sprintf("date advanced from %s to %s, orders for the previous day shipped and stock replenished",
			res.PreviousDate, res.CurrentDate),
	})
}

// ---- helpers ----

func parseOrderDate(raw string) (shop.Date, error) {
	if raw == "" {
		return shop.Date{}, shop.ValidationError("orderDate is required")
	}
	d, err := shop.ParseDate(raw)
	if err != nil {
		return shop.Date{}, shop.ValidationError(err.Error())
	}
	return d, nil
}

func (h *Handler) publish(r *http.Request, topic, eventType, orderID string, payload any) {
	if h.Producer == nil {
		return
	}
	ev := shop.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       middleware.GetReqID(r.Context()),
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	h.Producer.Publish(topic, shop.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
