package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/flower-shop.git/internal/memstore"
	"github.com/ariefcatur/flower-shop.git/internal/shop"
)

const bootDate = "2030-05-01"

func setupServer(t *testing.T) *chi.Mux {
	t.Helper()
	store := memstore.New([]shop.StockItem{
		{ID: "roses", Name: "Roses", OnHand: 10},
		{ID: "tulips", Name: "Tulips", OnHand: 20},
	}, shop.NoReplenish)
	boot, err := shop.ParseDate(bootDate)
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background(), boot))

	router := NewRouter()
	h := &Handler{Store: store, Service: "test", Log: zerolog.Nop()}
	h.Register(router)
	return router
}

func doJSON(t *testing.T, router *chi.Mux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func createOrder(t *testing.T, router *chi.Mux, name, date string) string {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/orders", map[string]any{
		"customerName": name, "orderDate": date,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		ID string `json:"id"`
	}
	decode(t, w, &resp)
	require.NotEmpty(t, resp.ID)
	return resp.ID
}

func addItem(t *testing.T, router *chi.Mux, orderID, stockItemID string, qty int) string {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/orders/"+orderID+"/items", map[string]any{
		"stockItemId": stockItemID, "quantity": qty,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		ID string `json:"id"`
	}
	decode(t, w, &resp)
	return resp.ID
}

func TestOrderLifecycle(t *testing.T) {
	router := setupServer(t)

	id := createOrder(t, router, "Anna Petrova", "2030-05-10")

	w := doJSON(t, router, http.MethodGet, "/orders/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		ID           string `json:"id"`
		CustomerName string `json:"customerName"`
		OrderDate    string `json:"orderDate"`
		Items        []any  `json:"items"`
	}
	decode(t, w, &got)
	require.Equal(t, id, got.ID)
	require.Equal(t, "Anna Petrova", got.CustomerName)
	require.Equal(t, "2030-05-10", got.OrderDate)
	require.Empty(t, got.Items)

	w = doJSON(t, router, http.MethodPut, "/orders/"+id, map[string]any{
		"customerName": "Anna P.", "orderDate": "2030-05-11",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &got)
	require.Equal(t, "Anna P.", got.CustomerName)
	require.Equal(t, "2030-05-11", got.OrderDate)

	w = doJSON(t, router, http.MethodDelete, "/orders/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/orders/"+id, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	w = doJSON(t, router, http.MethodDelete, "/orders/"+id, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateOrderRejections(t *testing.T) {
	router := setupServer(t)

	// Missing customer name.
	w := doJSON(t, router, http.MethodPost, "/orders", map[string]any{"orderDate": "2030-05-10"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Missing date.
	w = doJSON(t, router, http.MethodPost, "/orders", map[string]any{"customerName": "Anna"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Date before the business date.
	w = doJSON(t, router, http.MethodPost, "/orders", map[string]any{
		"customerName": "Anna", "orderDate": "2030-04-30",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp map[string]string
	decode(t, w, &resp)
	require.Contains(t, resp["error"], "current date")

	// Garbage body.
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString("{"))
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req)
	require.Equal(t, http.StatusBadRequest, w2.Code)
}

func TestTimestampedOrderDateAccepted(t *testing.T) {
	router := setupServer(t)

	w := doJSON(t, router, http.MethodPost, "/orders", map[string]any{
		"customerName": "Anna", "orderDate": "2030-05-10T14:30:00Z",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var got struct {
		OrderDate string `json:"orderDate"`
	}
	decode(t, w, &got)
	require.Equal(t, "2030-05-10", got.OrderDate)
}

func TestLineItemEndpoints(t *testing.T) {
	router := setupServer(t)
	orderA := createOrder(t, router, "Anna", "2030-05-10")
	orderB := createOrder(t, router, "Boris", "2030-05-10")

	w := doJSON(t, router, http.MethodPost, "/orders/"+orderA+"/items", map[string]any{
		"stockItemId": "roses", "quantity": 6,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var item struct {
		ID            string `json:"id"`
		OrderID       string `json:"orderId"`
		StockItemName string `json:"stockItemName"`
		Quantity      int    `json:"quantity"`
	}
	decode(t, w, &item)
	require.Equal(t, orderA, item.OrderID)
	require.Equal(t, "Roses", item.StockItemName)
	require.Equal(t, 6, item.Quantity)

	// Same stock item twice in one order.
	w = doJSON(t, router, http.MethodPost, "/orders/"+orderA+"/items", map[string]any{
		"stockItemId": "roses", "quantity": 1,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Over-ordering discloses the availability math.
	w = doJSON(t, router, http.MethodPost, "/orders/"+orderB+"/items", map[string]any{
		"stockItemId": "roses", "quantity": 5,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	var stock struct {
		Error     string `json:"error"`
		OnHand    int    `json:"onHand"`
		Reserved  int    `json:"reserved"`
		Available int    `json:"available"`
		Requested int    `json:"requested"`
	}
	decode(t, w, &stock)
	require.NotEmpty(t, stock.Error)
	require.Equal(t, 10, stock.OnHand)
	require.Equal(t, 6, stock.Reserved)
	require.Equal(t, 4, stock.Available)
	require.Equal(t, 5, stock.Requested)

	// Update in place.
	w = doJSON(t, router, http.MethodPut, "/orders/"+orderA+"/items/"+item.ID, map[string]any{
		"stockItemId": "roses", "quantity": 9,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &item)
	require.Equal(t, 9, item.Quantity)

	// Unknown ids.
	w = doJSON(t, router, http.MethodPost, "/orders/missing/items", map[string]any{
		"stockItemId": "roses", "quantity": 1,
	})
	require.Equal(t, http.StatusNotFound, w.Code)
	w = doJSON(t, router, http.MethodPost, "/orders/"+orderB+"/items", map[string]any{
		"stockItemId": "cactus", "quantity": 1,
	})
	require.Equal(t, http.StatusNotFound, w.Code)

	// Remove.
	w = doJSON(t, router, http.MethodDelete, "/orders/"+orderA+"/items/"+item.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, router, http.MethodDelete, "/orders/"+orderA+"/items/"+item.ID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestMoveLineItemEndpoint(t *testing.T) {
	router := setupServer(t)
	orderA := createOrder(t, router, "Anna", "2030-05-10")
	orderB := createOrder(t, router, "Boris", "2030-05-12")
	itemID := addItem(t, router, orderA, "roses", 6)

	w := doJSON(t, router, http.MethodPost, "/orders/"+orderB+"/items/"+itemID+"/move", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var moved struct {
		ID          string `json:"id"`
		OrderID     string `json:"orderId"`
		StockItemID string `json:"stockItemId"`
		Quantity    int    `json:"quantity"`
	}
	decode(t, w, &moved)
	require.Equal(t, itemID, moved.ID)
	require.Equal(t, orderB, moved.OrderID)
	require.Equal(t, "roses", moved.StockItemID)
	require.Equal(t, 6, moved.Quantity)

	w = doJSON(t, router, http.MethodPost, "/orders/missing/items/"+itemID+"/move", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestListOrdersEndpoint(t *testing.T) {
	router := setupServer(t)
	createOrder(t, router, "Anna", "2030-05-12")
	createOrder(t, router, "Boris", "2030-05-10")

	w := doJSON(t, router, http.MethodGet, "/orders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var orders []struct {
		CustomerName string `json:"customerName"`
		OrderDate    string `json:"orderDate"`
	}
	decode(t, w, &orders)
	require.Len(t, orders, 2)
	require.Equal(t, "Boris", orders[0].CustomerName, "sorted by order date")
	require.Equal(t, "Anna", orders[1].CustomerName)
}

func TestStockAndAvailabilityEndpoints(t *testing.T) {
	router := setupServer(t)
	orderA := createOrder(t, router, "Anna", "2030-05-10")
	addItem(t, router, orderA, "roses", 6)

	w := doJSON(t, router, http.MethodGet, "/items", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var items []shop.StockItem
	decode(t, w, &items)
	require.Len(t, items, 2)
	require.Equal(t, "Roses", items[0].Name, "sorted by name")
	require.Equal(t, 10, items[0].OnHand)

	w = doJSON(t, router, http.MethodGet, "/items/availability?date=2030-05-10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var avail []shop.StockAvailability
	decode(t, w, &avail)
	require.Equal(t, 6, avail[0].Reserved)
	require.Equal(t, 4, avail[0].Available)

	w = doJSON(t, router, http.MethodGet, "/items/availability?date=2030-05-10&excludeOrderId="+orderA, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &avail)
	require.Zero(t, avail[0].Reserved)
	require.Equal(t, 10, avail[0].Available)

	// No date: nothing reserved.
	w = doJSON(t, router, http.MethodGet, "/items/availability", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &avail)
	require.Zero(t, avail[0].Reserved)

	w = doJSON(t, router, http.MethodGet, "/items/availability?date=bogus", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClockEndpoints(t *testing.T) {
	router := setupServer(t)

	w := doJSON(t, router, http.MethodGet, "/clock", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var clock map[string]string
	decode(t, w, &clock)
	require.Equal(t, bootDate, clock["currentDate"])

	// An order for today ships on advance.
	orderID := createOrder(t, router, "Anna", bootDate)
	addItem(t, router, orderID, "roses", 6)

	w = doJSON(t, router, http.MethodPost, "/clock/advance", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var adv map[string]string
	decode(t, w, &adv)
	require.Equal(t, bootDate, adv["previousDate"])
	require.Equal(t, "2030-05-02", adv["currentDate"])
	require.NotEmpty(t, adv["message"])

	w = doJSON(t, router, http.MethodGet, "/clock", nil)
	decode(t, w, &clock)
	require.Equal(t, "2030-05-02", clock["currentDate"])

	w = doJSON(t, router, http.MethodGet, "/orders/"+orderID, nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	// Stock shipped; replenishment is off in tests.
	w = doJSON(t, router, http.MethodGet, "/items", nil)
	var items []shop.StockItem
	decode(t, w, &items)
	require.Equal(t, 4, items[0].OnHand)
}
