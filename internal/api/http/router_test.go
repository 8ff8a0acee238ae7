package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/bus-tracker/internal/api/wire"
	"github.com/oshokin/bus-tracker/internal/domain/tracking"
	"github.com/oshokin/bus-tracker/internal/notifier"
	"github.com/oshokin/bus-tracker/internal/position"
	"github.com/oshokin/bus-tracker/internal/repository/location"
	"github.com/oshokin/bus-tracker/internal/service/tracker"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fixture struct {
	router *gin.Engine
	hub    *position.Hub
	store  *location.MemoryStore
}

func setupRouter(t *testing.T, n notifier.Notifier) *fixture {
	t.Helper()

	hub := position.NewHub()
	store := location.NewMemoryStore()

	engine, err := tracker.New(
		tracker.Dependencies{Locator: hub, Store: store, Notifier: n},
		tracker.Options{RepublishInterval: -1, EmergencyFixTimeout: 50 * time.Millisecond, NotifyAttempts: 1, EmergencyNotifyAttempts: 1},
	)
	require.NoError(t, err)

	t.Cleanup(func() { _ = engine.Close(context.Background()) })

	health := NewHealthChecker()
	health.Add("store", func(context.Context) error { return nil })

	return &fixture{
		router: NewRouter(RouterConfig{Service: engine, Positions: store, Health: health}),
		hub:    hub,
		store:  store,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))

	return v
}

func startBody() wire.StartSessionRequest {
	return wire.StartSessionRequest{
		VehicleID: "KBX-101",
		DriverID:  "drv-7",
		TripType:  "pickup",
		Targets:   []wire.TargetSpec{{ID: "s-1", Latitude: -1.2921, Longitude: 36.8219}},
	}
}

// TestSessionLifecycle drives a session through start, report, status and stop.
func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	f := setupRouter(t, notifier.Log{})

	w := f.do(t, http.MethodPost, "/api/v1/sessions", startBody())
	require.Equal(t, http.StatusCreated, w.Code)

	session := decodeBody[wire.SessionView](t, w)
	require.Equal(t, "active", session.Status)

	w = f.do(t, http.MethodPost, "/api/v1/sessions", startBody())
	require.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decodeBody[[]wire.SessionView](t, w), 1)

	fix := tracking.Position{Latitude: -1.2925, Longitude: 36.8219, Timestamp: time.Now().UTC()}

	w = f.do(t, http.MethodPost, "/api/v1/sessions/"+session.SessionID+"/positions", fix)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, decodeBody[wire.ReportPositionResponse](t, w).Accepted)

	w = f.do(t, http.MethodGet, "/api/v1/sessions/"+session.SessionID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	status := decodeBody[wire.StatusView](t, w)
	require.Equal(t, []string{"s-1"}, status.AlertedTargetIDs)
	require.NotNil(t, status.LastPosition)

	require.Eventually(t, func() bool {
		return f.do(t, http.MethodGet, "/api/v1/vehicles/KBX-101/location", nil).Code == http.StatusOK
	}, time.Second, 10*time.Millisecond)

	w = f.do(t, http.MethodPost, "/api/v1/sessions/"+session.SessionID+"/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "completed", decodeBody[wire.SessionView](t, w).Status)

	w = f.do(t, http.MethodGet, "/api/v1/sessions/"+session.SessionID+"/trail", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decodeBody[[]tracking.Position](t, w), 1)

	fix.Timestamp = fix.Timestamp.Add(time.Second)

	w = f.do(t, http.MethodPost, "/api/v1/sessions/"+session.SessionID+"/positions", fix)
	require.Equal(t, http.StatusConflict, w.Code)
}

// TestErrors maps malformed and unknown requests.
func TestErrors(t *testing.T) {
	t.Parallel()

	f := setupRouter(t, notifier.Log{})

	w := f.do(t, http.MethodPost, "/api/v1/sessions", map[string]any{"trip_type": "pickup"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := startBody()
	body.TripType = "field-trip"

	w = f.do(t, http.MethodPost, "/api/v1/sessions", body)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/sessions/missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/sessions/missing/stop", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/vehicles/KBX-999/location", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

// TestEmergency covers delivered, undelivered and position-less emergencies.
func TestEmergency(t *testing.T) {
	t.Parallel()

	f := setupRouter(t, notifier.Log{})

	require.NoError(t, f.hub.Publish("KBX-101", tracking.Position{Latitude: -1.29, Longitude: 36.82, Timestamp: time.Now()}))

	w := f.do(t, http.MethodPost, "/api/v1/vehicles/KBX-101/emergency", map[string]string{"driver_id": "drv-7", "reason": "smoke"})
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decodeBody[wire.EmergencyResponse](t, w)
	require.True(t, resp.Delivered)
	require.Equal(t, tracking.AlertEmergency, resp.Event.Kind)
	require.Equal(t, "smoke", resp.Event.Reason)

	w = f.do(t, http.MethodPost, "/api/v1/vehicles/KBX-202/emergency", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	failing := setupRouter(t, notifier.NewFanout(notifier.Named{
		Name: "broken",
		Notifier: notifierFunc(func(context.Context, notifier.Recipients, *tracking.AlertEvent) (*notifier.Receipt, error) {
			return nil, errors.New("broker down")
		}),
	}))

	require.NoError(t, failing.hub.Publish("KBX-101", tracking.Position{Latitude: -1.29, Longitude: 36.82, Timestamp: time.Now()}))

	w = failing.do(t, http.MethodPost, "/api/v1/vehicles/KBX-101/emergency", nil)
	require.Equal(t, http.StatusBadGateway, w.Code)

	resp = decodeBody[wire.EmergencyResponse](t, w)
	require.False(t, resp.Delivered)
	require.NotNil(t, resp.Event)
}

// TestHealthz reports dependency status.
func TestHealthz(t *testing.T) {
	t.Parallel()

	health := NewHealthChecker()
	health.Add("store", func(context.Context) error { return nil })
	health.Add("amqp", func(context.Context) error { return errors.New("connection closed") })

	r := gin.New()
	health.Register(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Status       string                       `json:"status"`
		Dependencies map[string]map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "unhealthy", body.Status)
	require.Equal(t, "up", body.Dependencies["store"]["status"])
	require.Equal(t, "connection closed", body.Dependencies["amqp"]["error"])
}

type notifierFunc func(context.Context, notifier.Recipients, *tracking.AlertEvent) (*notifier.Receipt, error)

func (f notifierFunc) Notify(ctx context.Context, to notifier.Recipients, event *tracking.AlertEvent) (*notifier.Receipt, error) {
	return f(ctx, to, event)
}
