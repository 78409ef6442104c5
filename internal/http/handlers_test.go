package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"flashfood/internal/modules/delivery"
	"flashfood/internal/modules/driver"
	"flashfood/internal/modules/order"
	"flashfood/internal/modules/progress"
	"flashfood/internal/realtime"
	"flashfood/internal/types"
)

type fakeCoord struct {
	run      *progress.Run
	order    *order.Order
	err      error
	accepted []types.ID
}

func (f *fakeCoord) AcceptOrder(_ context.Context, driverID, orderID types.ID) (*progress.Run, error) {
	f.accepted = append(f.accepted, orderID)
	return f.run, f.err
}

func (f *fakeCoord) AdvanceProgress(_ context.Context, runID types.ID) (*progress.Run, error) {
	return f.run, f.err
}

func (f *fakeCoord) CreateOrder(_ context.Context, in delivery.CreateOrderInput) (*order.Order, error) {
	return f.order, f.err
}

type fakeOrderReader struct {
	order *order.Order
	err   error
}

func (f *fakeOrderReader) FindByID(context.Context, types.ID) (*order.Order, error) {
	return f.order, f.err
}

type fakeRunReader struct {
	run *progress.Run
	err error
}

func (f *fakeRunReader) Get(context.Context, types.ID) (*progress.Run, error) {
	return f.run, f.err
}

func (f *fakeRunReader) ActiveByDriver(context.Context, types.ID) (*progress.Run, error) {
	return f.run, f.err
}

type fakeDriverStore struct {
	driver  *driver.Driver
	err     error
	patched bool
}

func (f *fakeDriverStore) FindByID(context.Context, types.ID) (*driver.Driver, error) {
	return f.driver, f.err
}

func (f *fakeDriverStore) Update(context.Context, types.ID, driver.UpdatePatch) error {
	f.patched = true
	return f.err
}

type fakeNotifier struct {
	offers []types.ID
}

func (f *fakeNotifier) IncomingOrder(driverID types.ID, _ *order.Order) {
	f.offers = append(f.offers, driverID)
}

func newTestRouter(coord *fakeCoord, orders *fakeOrderReader, runs *fakeRunReader, drivers *fakeDriverStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandlers(coord, orders, runs, drivers, &fakeNotifier{})
	gateway := realtime.NewGateway(realtime.NewRegistry(), coord, drivers)
	return NewRouter(h, gateway)
}

func do(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func testRun() *progress.Run {
	return progress.NewRun("FF_DRI_d1", "FF_ORD_o1", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
}

func TestAcceptOrderEndpoint(t *testing.T) {
	coord := &fakeCoord{run: testRun()}
	r := newTestRouter(coord, &fakeOrderReader{}, &fakeRunReader{}, &fakeDriverStore{})

	rec := do(t, r, http.MethodPost, "/api/v1/orders/FF_ORD_o1/accept", gin.H{"driver_id": "FF_DRI_d1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}
	if len(coord.accepted) != 1 || coord.accepted[0] != "FF_ORD_o1" {
		t.Fatalf("accepted = %v", coord.accepted)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["current_state"] != "driver_ready" {
		t.Fatalf("current_state = %v", body["current_state"])
	}
}

func TestAcceptOrderEndpointBusy(t *testing.T) {
	coord := &fakeCoord{err: delivery.ErrDriverBusy}
	r := newTestRouter(coord, &fakeOrderReader{}, &fakeRunReader{}, &fakeDriverStore{})

	rec := do(t, r, http.MethodPost, "/api/v1/orders/FF_ORD_o1/accept", gin.H{"driver_id": "FF_DRI_d1"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}

	var body struct {
		Error struct {
			Kind string `json:"kind"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Kind != "DRIVER_BUSY" {
		t.Fatalf("kind = %s, want DRIVER_BUSY", body.Error.Kind)
	}
}

func TestAcceptOrderEndpointMissingDriver(t *testing.T) {
	r := newTestRouter(&fakeCoord{}, &fakeOrderReader{}, &fakeRunReader{}, &fakeDriverStore{})

	rec := do(t, r, http.MethodPost, "/api/v1/orders/FF_ORD_o1/accept", gin.H{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	r := newTestRouter(&fakeCoord{}, &fakeOrderReader{err: order.ErrNotFound}, &fakeRunReader{}, &fakeDriverStore{})

	rec := do(t, r, http.MethodGet, "/api/v1/orders/FF_ORD_missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCreateOrderEndpoint(t *testing.T) {
	o := &order.Order{
		ID:           "FF_ORD_o1",
		CustomerID:   "FF_CUS_c1",
		RestaurantID: "FF_RES_r1",
		Status:       order.StatusPending,
		TrackingInfo: order.TrackingOrderPlaced,
	}
	r := newTestRouter(&fakeCoord{order: o}, &fakeOrderReader{}, &fakeRunReader{}, &fakeDriverStore{})

	rec := do(t, r, http.MethodPost, "/api/v1/orders", gin.H{
		"customer_id":         "FF_CUS_c1",
		"restaurant_id":       "FF_RES_r1",
		"customer_location":   "FF_ADR_c1",
		"restaurant_location": "FF_ADR_r1",
		"payment_method":      "COD",
		"items":               []gin.H{{"item_id": "FF_MNU_m1", "variant_id": "FF_VAR_v1", "quantity": 1}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", rec.Code, rec.Body)
	}
}

func TestAdvanceProgressEndpoint(t *testing.T) {
	coord := &fakeCoord{run: testRun()}
	r := newTestRouter(coord, &fakeOrderReader{}, &fakeRunReader{}, &fakeDriverStore{})

	rec := do(t, r, http.MethodPost, "/api/v1/runs/FF_DPS_r1/advance", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAdvanceProgressTerminalConflict(t *testing.T) {
	coord := &fakeCoord{err: progress.ErrAlreadyFinal}
	r := newTestRouter(coord, &fakeOrderReader{}, &fakeRunReader{}, &fakeDriverStore{})

	rec := do(t, r, http.MethodPost, "/api/v1/runs/FF_DPS_r1/advance", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestUpdateDriverEndpoint(t *testing.T) {
	drivers := &fakeDriverStore{}
	r := newTestRouter(&fakeCoord{}, &fakeOrderReader{}, &fakeRunReader{}, drivers)

	rec := do(t, r, http.MethodPatch, "/api/v1/drivers/FF_DRI_d1", gin.H{"first_name": "Lin"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if !drivers.patched {
		t.Fatal("driver store not called")
	}
}

func TestOfferOrderEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	notifier := &fakeNotifier{}
	o := &order.Order{ID: "FF_ORD_o1", CustomerID: "FF_CUS_c1", RestaurantID: "FF_RES_r1"}
	coord := &fakeCoord{}
	drivers := &fakeDriverStore{}
	h := NewHandlers(coord, &fakeOrderReader{order: o}, &fakeRunReader{}, drivers, notifier)
	gateway := realtime.NewGateway(realtime.NewRegistry(), coord, drivers)
	r := NewRouter(h, gateway)

	rec := do(t, r, http.MethodPost, "/api/v1/orders/FF_ORD_o1/offer", gin.H{"driver_id": "FF_DRI_d1"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(notifier.offers) != 1 || notifier.offers[0] != "FF_DRI_d1" {
		t.Fatalf("offers = %v", notifier.offers)
	}
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(&fakeCoord{}, &fakeOrderReader{}, &fakeRunReader{}, &fakeDriverStore{})

	rec := do(t, r, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
