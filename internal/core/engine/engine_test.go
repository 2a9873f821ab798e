package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"attendance.service/internal/core/attendance"
	"attendance.service/internal/core/geo"
	"attendance.service/internal/core/grace"
	"attendance.service/internal/ports/repository"
)

type staticSessions []*attendance.Session

func (s staticSessions) Snapshot() []*attendance.Session { return s }

var (
	insideLat, insideLng   = 51.5007, -0.1246
	outsideLat, outsideLng = 51.5107, -0.1246
)

func testRegion() geo.Region {
	return geo.Region{Center: geo.Point{Lat: insideLat, Lng: insideLng}, RadiusMeters: 100}
}

// sessionStart is a Monday.
var sessionStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func onceSession() *attendance.Session {
	return &attendance.Session{
		ID:     "sess-1",
		Region: testRegion(),
		Mode:   attendance.ModeNormal,
		Schedule: &attendance.Schedule{
			Kind:    attendance.ScheduleOnce,
			StartAt: sessionStart,
		},
		Duration:    time.Hour,
		EarlyWindow: 15 * time.Minute,
		LateWindow:  10 * time.Minute,
		OutGrace:    5 * time.Minute,
	}
}

func newEvaluator(sessions ...*attendance.Session) (*Evaluator, *repository.MemoryAttendanceStore) {
	records := repository.NewMemoryAttendanceStore()
	roles := repository.StaticRoles{
		"u1": attendance.RoleUsher,
		"u2": attendance.RoleCategoryAdmin,
	}
	tracker := grace.NewTracker(grace.NewMemoryStore())
	return New(staticSessions(sessions), records, roles, tracker), records
}

func TestPunchInStatusBands(t *testing.T) {
	cases := map[string]struct {
		at     time.Time
		status attendance.Status
	}{
		"before early window":  {sessionStart.Add(-16 * time.Minute), attendance.StatusEarly},
		"early boundary":       {sessionStart.Add(-15 * time.Minute), attendance.StatusOnTime},
		"at start":             {sessionStart, attendance.StatusOnTime},
		"late boundary":        {sessionStart.Add(10 * time.Minute), attendance.StatusOnTime},
		"just past late mark":  {sessionStart.Add(10*time.Minute + time.Second), attendance.StatusLate},
		"last instant of open": {sessionStart.Add(time.Hour), attendance.StatusLate},
	}
	for name, tc := range cases {
		eval, records := newEvaluator(onceSession())
		result, err := eval.SubmitPunch(context.Background(), "u1", insideLat, insideLng, "", tc.at)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if result.Type != attendance.PunchIn || result.Status != tc.status {
			t.Fatalf("%s: expected punch-in with status %s, got %+v", name, tc.status, result)
		}
		if got := len(records.All()); got != 1 {
			t.Fatalf("%s: expected 1 record, got %d", name, got)
		}
	}
}

func TestMemberCannotPunch(t *testing.T) {
	eval, _ := newEvaluator(onceSession())
	_, err := eval.SubmitPunch(context.Background(), "someone", insideLat, insideLng, "", sessionStart)
	if err != attendance.ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestPunchInAfterSessionEnd(t *testing.T) {
	eval, _ := newEvaluator(onceSession())

	// Past the occurrence end but before the sweep instant.
	_, err := eval.SubmitPunch(context.Background(), "u1", insideLat, insideLng, "", sessionStart.Add(time.Hour+time.Second))
	if err != attendance.ErrSessionEnded {
		t.Fatalf("after end: expected ErrSessionEnded, got %v", err)
	}

	// Past the sweep instant the session is no longer a candidate.
	_, err = eval.SubmitPunch(context.Background(), "u1", insideLat, insideLng, "", sessionStart.Add(70*time.Minute+time.Second))
	if err != attendance.ErrNoActiveCheckHere {
		t.Fatalf("after sweep: expected ErrNoActiveCheckHere, got %v", err)
	}
}

func TestWeeklySessionMatchesConfiguredWeekdayOnly(t *testing.T) {
	weekly := onceSession()
	weekly.Schedule = &attendance.Schedule{Kind: attendance.ScheduleWeekly, Weekdays: []time.Weekday{time.Monday}, Hour: 9}
	eval, _ := newEvaluator(weekly)

	tuesday := sessionStart.AddDate(0, 0, 1)
	if _, err := eval.SubmitPunch(context.Background(), "u1", insideLat, insideLng, "", tuesday); err != attendance.ErrNoActiveCheckHere {
		t.Fatalf("wrong weekday: expected ErrNoActiveCheckHere, got %v", err)
	}

	result, err := eval.SubmitPunch(context.Background(), "u1", insideLat, insideLng, "", sessionStart.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("configured weekday: unexpected error: %v", err)
	}
	if result.Status != attendance.StatusOnTime {
		t.Fatalf("configured weekday: expected on-time, got %+v", result)
	}
}

func TestPunchInRequiresBeingInside(t *testing.T) {
	eval, records := newEvaluator(onceSession())
	_, err := eval.SubmitPunch(context.Background(), "u1", outsideLat, outsideLng, "", sessionStart)
	if err != attendance.ErrMustBeInside {
		t.Fatalf("expected ErrMustBeInside, got %v", err)
	}
	if got := len(records.All()); got != 0 {
		t.Fatalf("expected no records, got %d", got)
	}
}

func TestExitGraceFlow(t *testing.T) {
	ctx := context.Background()
	eval, records := newEvaluator(onceSession())

	if _, err := eval.SubmitPunch(ctx, "u1", insideLat, insideLng, "", sessionStart); err != nil {
		t.Fatalf("punch-in failed: %v", err)
	}

	// Punching again while inside cannot be an exit.
	if _, err := eval.SubmitPunch(ctx, "u1", insideLat, insideLng, "", sessionStart.Add(20*time.Minute)); err != attendance.ErrMustLeaveToExit {
		t.Fatalf("inside: expected ErrMustLeaveToExit, got %v", err)
	}

	_, err := eval.SubmitPunch(ctx, "u1", outsideLat, outsideLng, "", sessionStart.Add(30*time.Minute))
	var wait *attendance.WaitError
	if !errors.As(err, &wait) || wait.MinutesLeft != 5 {
		t.Fatalf("first outside observation: expected WaitError(5), got %v", err)
	}

	_, err = eval.SubmitPunch(ctx, "u1", outsideLat, outsideLng, "", sessionStart.Add(34*time.Minute))
	if !errors.As(err, &wait) || wait.MinutesLeft != 1 {
		t.Fatalf("at +4m outside: expected WaitError(1), got %v", err)
	}

	result, err := eval.SubmitPunch(ctx, "u1", outsideLat, outsideLng, "", sessionStart.Add(35*time.Minute))
	if err != nil {
		t.Fatalf("grace elapsed: unexpected error: %v", err)
	}
	if result.Type != attendance.PunchOut {
		t.Fatalf("expected punch-out, got %+v", result)
	}

	// The day is terminal after punch-out.
	if _, err := eval.SubmitPunch(ctx, "u1", insideLat, insideLng, "", sessionStart.Add(40*time.Minute)); err != attendance.ErrUnableToRecordPunch {
		t.Fatalf("after punch-out: expected ErrUnableToRecordPunch, got %v", err)
	}

	all := records.All()
	if len(all) != 2 {
		t.Fatalf("expected exactly 2 records, got %d", len(all))
	}
	if all[0].Type != attendance.PunchIn || all[1].Type != attendance.PunchOut {
		t.Fatalf("unexpected record sequence: %+v", all)
	}
}

func TestReturningInsideResetsExitGrace(t *testing.T) {
	ctx := context.Background()
	eval, _ := newEvaluator(onceSession())

	if _, err := eval.SubmitPunch(ctx, "u1", insideLat, insideLng, "", sessionStart); err != nil {
		t.Fatalf("punch-in failed: %v", err)
	}
	if _, err := eval.SubmitPunch(ctx, "u1", outsideLat, outsideLng, "", sessionStart.Add(30*time.Minute)); err == nil {
		t.Fatalf("expected WaitError")
	}
	if _, err := eval.SubmitPunch(ctx, "u1", insideLat, insideLng, "", sessionStart.Add(32*time.Minute)); err != attendance.ErrMustLeaveToExit {
		t.Fatalf("expected ErrMustLeaveToExit, got %v", err)
	}

	// The earlier outside observation no longer counts.
	_, err := eval.SubmitPunch(ctx, "u1", outsideLat, outsideLng, "", sessionStart.Add(36*time.Minute))
	var wait *attendance.WaitError
	if !errors.As(err, &wait) || wait.MinutesLeft != 5 {
		t.Fatalf("expected a fresh WaitError(5), got %v", err)
	}
}

func TestFullTimeToggle(t *testing.T) {
	ctx := context.Background()
	sess := &attendance.Session{
		ID:     "ft-1",
		Region: testRegion(),
		Mode:   attendance.ModeFullTime,
	}
	eval, records := newEvaluator(sess)

	at := sessionStart
	want := []attendance.PunchType{attendance.PunchIn, attendance.PunchOut, attendance.PunchIn}
	for i, punchType := range want {
		result, err := eval.SubmitPunch(ctx, "u1", insideLat, insideLng, "", at.Add(time.Duration(i)*time.Hour))
		if err != nil {
			t.Fatalf("toggle %d failed: %v", i, err)
		}
		if result.Type != punchType {
			t.Fatalf("toggle %d: expected %s got %s", i, punchType, result.Type)
		}
		if result.Status != attendance.StatusNone {
			t.Fatalf("toggle %d: full-time punches carry no status, got %s", i, result.Status)
		}
	}
	if got := len(records.All()); got != 3 {
		t.Fatalf("expected 3 records, got %d", got)
	}
}

func TestConcurrentDuplicatePunchIn(t *testing.T) {
	ctx := context.Background()
	eval, records := newEvaluator(onceSession())

	const attempts = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	var successes int
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := eval.SubmitPunch(ctx, "u1", insideLat, insideLng, "", sessionStart); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful punch-in, got %d", successes)
	}
	if got := len(records.All()); got != 1 {
		t.Fatalf("expected exactly one record, got %d", got)
	}
}

func TestFirstMatchingSessionWins(t *testing.T) {
	first := onceSession()
	second := onceSession()
	second.ID = "sess-2"
	eval, _ := newEvaluator(first, second)

	result, err := eval.SubmitPunch(context.Background(), "u1", insideLat, insideLng, "", sessionStart)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Record.SessionID != "sess-1" {
		t.Fatalf("expected the first session to govern, got %s", result.Record.SessionID)
	}
}
