package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"attendance.service/internal/api"
	"attendance.service/internal/api/handler"
	"attendance.service/internal/core/attendance"
	"attendance.service/internal/core/clock"
	"attendance.service/internal/core/engine"
	"attendance.service/internal/core/geo"
	"attendance.service/internal/core/grace"
	"attendance.service/internal/core/registry"
	"attendance.service/internal/core/schedule"
	"attendance.service/internal/ports/messaging"
	"attendance.service/internal/ports/repository"
)

type noopNotifier struct{}

func (noopNotifier) NotifyPhase(context.Context, messaging.PhaseEvent) error { return nil }

type noopSweeper struct{}

func (noopSweeper) Sweep(context.Context, *attendance.Session, time.Time) error { return nil }

var (
	insideLat, insideLng   = 51.5007, -0.1246
	outsideLat, outsideLng = 51.5107, -0.1246
)

type fixture struct {
	router   http.Handler
	registry *registry.Registry
}

func newFixture() *fixture {
	sessionStore := repository.NewMemorySessionStore()
	records := repository.NewMemoryAttendanceStore()
	roles := repository.StaticRoles{
		"usher":  attendance.RoleUsher,
		"usher2": attendance.RoleUsher,
		"admin":  attendance.RoleCategoryAdmin,
		"super":  attendance.RoleSuperAdmin,
	}
	sched := schedule.New(clock.System(), noopNotifier{}, noopSweeper{})
	reg := registry.New(sessionStore, records, sched, clock.System())
	eval := engine.New(reg, records, roles, grace.NewTracker(grace.NewMemoryStore()))

	h := &handler.Handler{
		Registry:  reg,
		Evaluator: eval,
		Roles:     roles,
		Clock:     clock.System(),
	}
	return &fixture{router: api.NewRouter(h), registry: reg}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// runningSpec opened five minutes ago and stays open for an hour.
func runningSpec() registry.SessionSpec {
	return registry.SessionSpec{
		Region: geo.Region{Center: geo.Point{Lat: insideLat, Lng: insideLng}, RadiusMeters: 100},
		Mode:   attendance.ModeNormal,
		Schedule: &attendance.Schedule{
			Kind:    attendance.ScheduleOnce,
			StartAt: time.Now().UTC().Add(-5 * time.Minute),
		},
		DurationMin:    60,
		EarlyWindowMin: 15,
		LateWindowMin:  10,
		OutGraceMin:    5,
	}
}

func punchBody(userID string, lat, lng float64) map[string]any {
	return map[string]any{"userId": userID, "latitude": lat, "longitude": lng}
}

func TestCreateSessionEndpoint(t *testing.T) {
	f := newFixture()

	body := map[string]any{
		"actorId": "admin",
		"region": map[string]any{
			"center":       map[string]any{"latitude": insideLat, "longitude": insideLng},
			"radiusMeters": 100,
		},
		"mode": "normal",
		"schedule": map[string]any{
			"kind":    "once",
			"startAt": time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
		},
		"durationMinutes": 60,
	}
	rec := f.do(t, http.MethodPost, "/api/v1/sessions", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created attendance.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if created.ID == "" || created.CreatorID != "admin" {
		t.Fatalf("unexpected created session: %+v", created)
	}

	body["actorId"] = "usher"
	if rec := f.do(t, http.MethodPost, "/api/v1/sessions", body); rec.Code != http.StatusForbidden {
		t.Fatalf("ushers cannot manage sessions, got %d", rec.Code)
	}

	body["actorId"] = "admin"
	body["durationMinutes"] = 0
	if rec := f.do(t, http.MethodPost, "/api/v1/sessions", body); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid schedule should be 400, got %d", rec.Code)
	}
}

func TestPunchEndpoint(t *testing.T) {
	f := newFixture()
	if _, err := f.registry.Create(context.Background(), "admin", runningSpec()); err != nil {
		t.Fatalf("seeding session: %v", err)
	}

	rec := f.do(t, http.MethodPost, "/api/v1/punch", punchBody("usher", insideLat, insideLng))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var result engine.PunchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if result.Type != attendance.PunchIn || result.Status != attendance.StatusOnTime {
		t.Fatalf("expected an on-time punch-in, got %+v", result)
	}

	// Punching again while inside cannot close the day.
	if rec := f.do(t, http.MethodPost, "/api/v1/punch", punchBody("usher", insideLat, insideLng)); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	// Members are not allowed to punch at all.
	if rec := f.do(t, http.MethodPost, "/api/v1/punch", punchBody("stranger", insideLat, insideLng)); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	// Punch-in from outside the fence.
	if rec := f.do(t, http.MethodPost, "/api/v1/punch", punchBody("usher2", outsideLat, outsideLng)); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	if rec := f.do(t, http.MethodPost, "/api/v1/punch", map[string]any{"latitude": 1.0, "longitude": 1.0}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing userId should be 400, got %d", rec.Code)
	}
}

func TestPunchExitWaitResponse(t *testing.T) {
	f := newFixture()
	if _, err := f.registry.Create(context.Background(), "admin", runningSpec()); err != nil {
		t.Fatalf("seeding session: %v", err)
	}

	if rec := f.do(t, http.MethodPost, "/api/v1/punch", punchBody("usher", insideLat, insideLng)); rec.Code != http.StatusCreated {
		t.Fatalf("punch-in failed: %d", rec.Code)
	}

	rec := f.do(t, http.MethodPost, "/api/v1/punch", punchBody("usher", outsideLat, outsideLng))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var resp struct {
		Error       string `json:"error"`
		MinutesLeft int    `json:"minutesLeft"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.MinutesLeft != 5 {
		t.Fatalf("expected 5 minutes left, got %+v", resp)
	}
}

func TestPunchWithNoActiveSession(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/api/v1/punch", punchBody("usher", insideLat, insideLng))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDeleteProtectedSession(t *testing.T) {
	f := newFixture()
	spec := runningSpec()
	spec.Protected = true
	sess, err := f.registry.Create(context.Background(), "admin", spec)
	if err != nil {
		t.Fatalf("seeding session: %v", err)
	}

	path := fmt.Sprintf("/api/v1/sessions/%s?actorId=admin", sess.ID)
	if rec := f.do(t, http.MethodDelete, path, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("category admin cannot delete protected sessions, got %d", rec.Code)
	}

	path = fmt.Sprintf("/api/v1/sessions/%s?actorId=super", sess.ID)
	if rec := f.do(t, http.MethodDelete, path, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("super admin delete should be 204, got %d", rec.Code)
	}
	if _, ok := f.registry.Get(sess.ID); ok {
		t.Fatalf("deleted session still live")
	}
}

func TestUpdateUnknownSession(t *testing.T) {
	f := newFixture()
	body := map[string]any{
		"actorId": "admin",
		"mode":    "full-time",
		"region": map[string]any{
			"center":       map[string]any{"latitude": insideLat, "longitude": insideLng},
			"radiusMeters": 100,
		},
	}
	if rec := f.do(t, http.MethodPut, "/api/v1/sessions/nope", body); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListActiveSessions(t *testing.T) {
	f := newFixture()
	if _, err := f.registry.Create(context.Background(), "admin", runningSpec()); err != nil {
		t.Fatalf("seeding session: %v", err)
	}
	upcoming := runningSpec()
	upcoming.Schedule.StartAt = time.Now().UTC().Add(2 * time.Hour)
	if _, err := f.registry.Create(context.Background(), "admin", upcoming); err != nil {
		t.Fatalf("seeding session: %v", err)
	}

	rec := f.do(t, http.MethodGet, "/api/v1/sessions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var active []attendance.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &active); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected only the running session, got %d", len(active))
	}
}

func TestHealth(t *testing.T) {
	f := newFixture()
	if rec := f.do(t, http.MethodGet, "/api/v1/health", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
