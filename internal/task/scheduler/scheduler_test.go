package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"remindd/internal/eventbus"
	"remindd/internal/reminder"
	logx "remindd/pkg/logx"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type delivery struct{ title, message string }

type fakeSink struct {
	mu    sync.Mutex
	got   []delivery
	err   error
	block chan struct{}
}

func (s *fakeSink) Deliver(_ context.Context, title, message string) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, delivery{title, message})
	return s.err
}

func (s *fakeSink) titles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.got))
	for _, d := range s.got {
		out = append(out, d.title)
	}
	return out
}

func at(day, hour, minute int) time.Time {
	return time.Date(2026, time.October, day, hour, minute, 0, 0, time.UTC)
}

func newTestService(now time.Time) (*Service, *fakeClock, *fakeSink) {
	clk := newClock(now)
	sink := &fakeSink{}
	return New(sink, logx.Nop(), WithClock(clk.Now)), clk, sink
}

func TestRegisterRecurringBeforeTimeArmsToday(t *testing.T) {
	t.Parallel()
	s, _, sink := newTestService(at(19, 9, 0))

	reg, err := s.Register(context.Background(), "w", reminder.Daily("Workout", "Go!", "10:00"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !reg.Armed || reg.CaughtUp {
		t.Fatalf("unexpected registration: %+v", reg)
	}
	if !reg.Job.NextRun.Equal(at(19, 10, 0)) {
		t.Fatalf("NextRun = %v, want today 10:00", reg.Job.NextRun)
	}
	if n := len(sink.titles()); n != 0 {
		t.Fatalf("expected no immediate delivery, got %d", n)
	}
}

func TestRegisterRecurringAfterTimeCatchesUp(t *testing.T) {
	t.Parallel()
	s, _, sink := newTestService(at(19, 11, 0))

	reg, err := s.Register(context.Background(), "w", reminder.Daily("Workout", "Go!", "10:00"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !reg.Armed || !reg.CaughtUp || reg.DeliveryErr != nil {
		t.Fatalf("unexpected registration: %+v", reg)
	}
	if want := at(19, 10, 0).Add(24 * time.Hour); !reg.Job.NextRun.Equal(want) {
		t.Fatalf("NextRun = %v, want %v", reg.Job.NextRun, want)
	}
	if got := sink.titles(); len(got) != 1 || got[0] != "Workout" {
		t.Fatalf("deliveries = %v, want exactly one", got)
	}

	// polling the same instant must not deliver again
	if fired := s.RunPending(context.Background()); len(fired) != 0 {
		t.Fatalf("unexpected fire after catch-up: %+v", fired)
	}
}

func TestRegisterRecurringAtExactTimeCatchesUp(t *testing.T) {
	t.Parallel()
	s, _, sink := newTestService(at(19, 10, 0))
	reg, err := s.Register(context.Background(), "w", reminder.Daily("Workout", "Go!", "10:00"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !reg.CaughtUp || len(sink.titles()) != 1 {
		t.Fatalf("scheduled == now should be treated as missed: %+v", reg)
	}
}

func TestRecurringFiresOncePerDay(t *testing.T) {
	t.Parallel()
	s, clk, sink := newTestService(at(19, 8, 0))
	if _, err := s.Register(context.Background(), "w", reminder.Daily("Workout", "Go!", "10:00")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for day := 19; day < 24; day++ {
		for _, hm := range [][2]int{{9, 59}, {10, 0}, {10, 0}, {10, 1}, {18, 30}} {
			clk.Set(at(day, hm[0], hm[1]))
			s.RunPending(context.Background())
		}
		if got := len(sink.titles()); got != day-18 {
			t.Fatalf("after day %d: deliveries = %d, want %d", day, got, day-18)
		}
		if s.Len() != 1 {
			t.Fatalf("recurring job disappeared on day %d", day)
		}
	}
	jobs := s.ListJobs()
	if len(jobs) != 1 || !jobs[0].NextRun.Equal(at(24, 10, 0)) {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
}

func TestRecurringAfterLongSleepFiresOnce(t *testing.T) {
	t.Parallel()
	s, clk, sink := newTestService(at(10, 8, 0))
	if _, err := s.Register(context.Background(), "w", reminder.Daily("Workout", "Go!", "10:00")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	clk.Set(at(14, 12, 0))
	fired := s.RunPending(context.Background())
	if len(fired) != 1 {
		t.Fatalf("fired = %d, want 1", len(fired))
	}
	if !fired[0].Due.Equal(at(10, 10, 0)) || !fired[0].Job.NextRun.Equal(at(15, 10, 0)) {
		t.Fatalf("unexpected fire: %+v", fired[0])
	}
	if s.RunPending(context.Background()) != nil || len(sink.titles()) != 1 {
		t.Fatal("expected no further deliveries")
	}
}

func TestOneShotTodayFutureFiresOnceThenDisappears(t *testing.T) {
	t.Parallel()
	s, clk, sink := newTestService(at(19, 9, 0))
	reg, err := s.Register(context.Background(), "d", reminder.Once("Dentist", "Leave now", "2026-10-19", "15:30"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !reg.Armed || reg.Job.Kind != KindOneShot || !reg.Job.NextRun.Equal(at(19, 15, 30)) {
		t.Fatalf("unexpected registration: %+v", reg)
	}

	clk.Set(at(19, 15, 29))
	if fired := s.RunPending(context.Background()); len(fired) != 0 {
		t.Fatalf("fired early: %+v", fired)
	}
	clk.Set(at(19, 15, 30))
	fired := s.RunPending(context.Background())
	if len(fired) != 1 || !fired[0].Job.Fired || fired[0].Err != nil {
		t.Fatalf("unexpected fire: %+v", fired)
	}
	clk.Advance(time.Hour)
	s.RunPending(context.Background())
	if got := sink.titles(); len(got) != 1 {
		t.Fatalf("deliveries = %v, want exactly one", got)
	}
	if jobs := s.ListJobs(); len(jobs) != 0 {
		t.Fatalf("one-shot job still listed: %+v", jobs)
	}
}

func TestOneShotTodayPastIsDropped(t *testing.T) {
	t.Parallel()
	s, clk, sink := newTestService(at(19, 16, 0))
	reg, err := s.Register(context.Background(), "d", reminder.Once("Dentist", "Leave now", "2026-10-19", "15:30"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if reg.Armed || reg.DropReason == "" {
		t.Fatalf("expected drop, got %+v", reg)
	}
	for i := 0; i < 3; i++ {
		clk.Advance(24 * time.Hour)
		s.RunPending(context.Background())
	}
	if len(sink.titles()) != 0 || s.Len() != 0 {
		t.Fatal("dropped reminder must never deliver")
	}
}

func TestOneShotPastDateIsDropped(t *testing.T) {
	t.Parallel()
	s, _, sink := newTestService(at(19, 8, 0))
	reg, err := s.Register(context.Background(), "d", reminder.Once("Old", "m", "2026-10-18", "23:00"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if reg.Armed || len(sink.titles()) != 0 {
		t.Fatalf("expected silent drop, got %+v", reg)
	}
}

func TestOneShotFutureDateUsesAbsoluteInstant(t *testing.T) {
	t.Parallel()
	s, clk, sink := newTestService(at(19, 20, 0))
	reg, err := s.Register(context.Background(), "d", reminder.Once("Trip", "Pack", "2026-10-23", "07:15"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !reg.Job.NextRun.Equal(at(23, 7, 15)) {
		t.Fatalf("NextRun = %v, want 2026-10-23 07:15", reg.Job.NextRun)
	}
	for clk.Now().Before(at(23, 7, 15)) {
		s.RunPending(context.Background())
		clk.Advance(37 * time.Minute)
	}
	if n := len(sink.titles()); n != 0 {
		t.Fatalf("delivered before target: %d", n)
	}
	clk.Set(at(23, 7, 15))
	s.RunPending(context.Background())
	s.RunPending(context.Background())
	if got := sink.titles(); len(got) != 1 {
		t.Fatalf("deliveries = %v, want one", got)
	}
}

func TestRegisterMalformed(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestService(at(19, 8, 0))
	for _, r := range []reminder.Reminder{
		reminder.Daily("bad time", "m", "25:00"),
		reminder.Once("bad date", "m", "19/10/2026", "10:00"),
		{Title: "no date", Time: "10:00"},
	} {
		if _, err := s.Register(context.Background(), r.Title, r); !errors.Is(err, reminder.ErrMalformedReminder) {
			t.Fatalf("%s: err = %v, want ErrMalformedReminder", r.Title, err)
		}
	}
	if s.Len() != 0 {
		t.Fatal("malformed reminders must not create jobs")
	}
}

func TestRunPendingDeliversInDueOrder(t *testing.T) {
	t.Parallel()
	s, clk, sink := newTestService(at(19, 6, 0))
	ctx := context.Background()
	mustRegister(t, s, "c", reminder.Daily("third", "", "09:00"))
	mustRegister(t, s, "a", reminder.Daily("first", "", "07:00"))
	mustRegister(t, s, "b", reminder.Once("second", "", "2026-10-19", "08:00"))
	mustRegister(t, s, "b2", reminder.Once("second-tie", "", "2026-10-19", "08:00"))

	clk.Set(at(19, 12, 0))
	fired := s.RunPending(ctx)
	want := []string{"first", "second", "second-tie", "third"}
	got := sink.titles()
	if len(got) != len(want) || len(fired) != len(want) {
		t.Fatalf("deliveries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] || fired[i].Job.Title != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestDeliveryFailureStillAdvances(t *testing.T) {
	t.Parallel()
	clk := newClock(at(19, 9, 0))
	sink := &fakeSink{err: errors.New("no display")}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()
	s := New(sink, logx.Nop(), WithClock(clk.Now), WithBus(bus))

	mustRegister(t, s, "w", reminder.Daily("Workout", "Go!", "10:00"))
	clk.Set(at(19, 10, 0))
	fired := s.RunPending(context.Background())
	if len(fired) != 1 || !errors.Is(fired[0].Err, reminder.ErrDeliveryFailed) {
		t.Fatalf("unexpected fire: %+v", fired)
	}
	if s.RunPending(context.Background()) != nil {
		t.Fatal("failed delivery must not be retried")
	}
	if j, ok := s.Job("w"); !ok || !j.NextRun.Equal(at(20, 10, 0)) {
		t.Fatalf("job not advanced: %+v", j)
	}
	snap := s.Snapshot()
	if snap.FiredTotal != 1 || snap.FailedTotal != 1 {
		t.Fatalf("unexpected counters: %+v", snap)
	}

	var types []string
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	if len(types) != 2 || types[0] != eventbus.TypeReminderArmed || types[1] != eventbus.TypeReminderDeliveryFailed {
		t.Fatalf("events = %v", types)
	}
}

func TestRegisterReplacesAndCancelRemoves(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestService(at(19, 6, 0))
	mustRegister(t, s, "x", reminder.Daily("old", "", "07:00"))
	mustRegister(t, s, "x", reminder.Daily("new", "", "08:00"))
	jobs := s.ListJobs()
	if len(jobs) != 1 || jobs[0].Title != "new" {
		t.Fatalf("expected upsert, got %+v", jobs)
	}

	// a dropped re-registration removes the previous job
	mustRegister(t, s, "x", reminder.Once("gone", "", "2026-01-01", "08:00"))
	if s.Len() != 0 {
		t.Fatal("dropped registration should clear the previous job")
	}

	mustRegister(t, s, "y", reminder.Daily("y", "", "07:00"))
	if !s.Cancel("y") || s.Cancel("y") {
		t.Fatal("Cancel should succeed once")
	}
	if s.Reset() != 0 {
		t.Fatal("Reset on empty scheduler should remove nothing")
	}
}

func TestSlowDeliveryDoesNotBlockRegistration(t *testing.T) {
	t.Parallel()
	clk := newClock(at(19, 9, 0))
	sink := &fakeSink{block: make(chan struct{})}
	s := New(sink, logx.Nop(), WithClock(clk.Now))
	mustRegister(t, s, "w", reminder.Daily("Workout", "Go!", "10:00"))
	clk.Set(at(19, 10, 0))

	done := make(chan []Fired)
	go func() { done <- s.RunPending(context.Background()) }()

	// RunPending is now parked inside Deliver; registration must still proceed.
	regDone := make(chan error, 1)
	go func() {
		_, err := s.Register(context.Background(), "n", reminder.Daily("New", "", "23:00"))
		regDone <- err
	}()
	select {
	case err := <-regDone:
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("registration blocked behind delivery")
	}
	close(sink.block)
	if fired := <-done; len(fired) != 1 {
		t.Fatalf("fired = %d, want 1", len(fired))
	}
}

func TestConcurrentRegisterAndPoll(t *testing.T) {
	t.Parallel()
	s, clk, sink := newTestService(at(19, 6, 0))
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			if _, err := s.Register(context.Background(), id, reminder.Once(id, "", "2026-10-19", "07:00")); err != nil {
				t.Errorf("Register: %v", err)
			}
		}(i)
		go func() {
			defer wg.Done()
			s.RunPending(context.Background())
		}()
	}
	wg.Wait()
	clk.Set(at(19, 7, 0))
	s.RunPending(context.Background())
	s.RunPending(context.Background())
	if got := len(sink.titles()); got != 20 {
		t.Fatalf("deliveries = %d, want 20", got)
	}
}

func mustRegister(t *testing.T, s *Service, id string, r reminder.Reminder) Registration {
	t.Helper()
	reg, err := s.Register(context.Background(), id, r)
	if err != nil {
		t.Fatalf("Register(%s): %v", id, err)
	}
	return reg
}

func loadNewYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func TestRecurringFiresOnSpringForwardDay(t *testing.T) {
	t.Parallel()
	ny := loadNewYork(t)
	// 2026-03-08 02:00 EST jumps to 03:00 EDT; 02:30 does not exist that day.
	s, clk, sink := newTestService(time.Date(2026, time.March, 7, 12, 0, 0, 0, ny))

	reg, err := s.Register(context.Background(), "w", reminder.Daily("Night", "", "02:30"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if y, m, d := reg.Job.NextRun.In(ny).Date(); y != 2026 || m != time.March || d != 8 {
		t.Fatalf("next run = %v, want a run on 2026-03-08", reg.Job.NextRun.In(ny))
	}

	clk.Set(time.Date(2026, time.March, 8, 12, 0, 0, 0, ny))
	if fired := s.RunPending(context.Background()); len(fired) != 1 {
		t.Fatalf("fired %d on the spring-forward day, want 1", len(fired))
	}
	j, _ := s.Job("w")
	if got, want := j.NextRun, time.Date(2026, time.March, 9, 2, 30, 0, 0, ny); !got.Equal(want) {
		t.Fatalf("next run = %v, want %v", got.In(ny), want)
	}
	if n := len(sink.titles()); n != 2 {
		t.Fatalf("deliveries = %d, want 2 (catch-up + spring-forward day)", n)
	}
}

func TestRecurringFiresOnceOnFallBackDay(t *testing.T) {
	t.Parallel()
	ny := loadNewYork(t)
	// 2026-11-01 02:00 EDT falls back to 01:00 EST; 01:30 happens twice.
	s, clk, sink := newTestService(time.Date(2026, time.October, 31, 12, 0, 0, 0, ny))
	if _, err := s.Register(context.Background(), "w", reminder.Daily("Night", "", "01:30")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// 01:45 EST, after both 01:30 instants.
	clk.Set(time.Date(2026, time.November, 1, 6, 45, 0, 0, time.UTC))
	if fired := s.RunPending(context.Background()); len(fired) != 1 {
		t.Fatalf("fired %d, want 1", len(fired))
	}
	if fired := s.RunPending(context.Background()); len(fired) != 0 {
		t.Fatalf("repeated wall-clock time fired again: %d", len(fired))
	}
	j, _ := s.Job("w")
	if _, _, d := j.NextRun.In(ny).Date(); d != 2 {
		t.Fatalf("next run = %v, want 2026-11-02", j.NextRun.In(ny))
	}
	if n := len(sink.titles()); n != 2 {
		t.Fatalf("deliveries = %d, want 2", n)
	}
}

func TestArmDefersCatchUpDelivery(t *testing.T) {
	t.Parallel()
	s, _, sink := newTestService(at(19, 12, 0))

	reg, err := s.Arm("w", reminder.Daily("Workout", "Go!", "10:00"))
	if err != nil {
		t.Fatalf("Arm: %v", err)
	}
	if !reg.Armed || !reg.CaughtUp || len(sink.titles()) != 0 {
		t.Fatalf("Arm delivered or did not flag catch-up: %+v, deliveries=%v", reg, sink.titles())
	}
	if _, ok := s.Job("w"); !ok {
		t.Fatal("Arm did not create the job")
	}
	reg = s.CatchUp(context.Background(), reg)
	if reg.DeliveryErr != nil || len(sink.titles()) != 1 {
		t.Fatalf("CatchUp: err=%v deliveries=%v", reg.DeliveryErr, sink.titles())
	}
	// Registrations without catch-up pass through untouched.
	s.CatchUp(context.Background(), Registration{Armed: true})
	if len(sink.titles()) != 1 {
		t.Fatalf("deliveries = %v", sink.titles())
	}
}
