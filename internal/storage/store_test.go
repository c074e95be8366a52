package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"remindd/internal/reminder"
	logx "remindd/pkg/logx"
)

func sampleReminders() []reminder.Reminder {
	return []reminder.Reminder{
		reminder.Daily("Workout", "Go!", "10:00"),
		reminder.Once("Dentist", "Leave now", "2026-10-21", "15:30"),
		{Title: "Ünïcode <b>", Message: "line1\nline2", Time: "07:05", Recurring: true},
	}
}

func openTestStore(t *testing.T, driver, name string) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st, path
}

func TestRoundTripPreservesOrderAndFields(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		driver string
		file   string
	}{
		{DriverJSON, "reminders.json"},
		{DriverSQLite, "reminders.db"},
	} {
		tc := tc
		t.Run(tc.driver, func(t *testing.T) {
			t.Parallel()
			st, path := openTestStore(t, tc.driver, tc.file)
			want := sampleReminders()
			for _, r := range want {
				st.Append(r)
			}
			if err := st.Save(context.Background()); err != nil {
				t.Fatalf("Save: %v", err)
			}

			fresh, err := Open(Config{Driver: tc.driver, Path: path}, logx.Nop())
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer fresh.Close()
			entries, err := fresh.Load(context.Background())
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(entries) != len(want) {
				t.Fatalf("entries = %d, want %d", len(entries), len(want))
			}
			for i, e := range entries {
				if e.Err != nil {
					t.Fatalf("entry %d: %v", i, e.Err)
				}
				if !sameReminder(e.Reminder, want[i]) {
					t.Fatalf("entry %d = %+v, want %+v", i, e.Reminder, want[i])
				}
			}
		})
	}
}

func sameReminder(a, b reminder.Reminder) bool {
	return a.Title == b.Title &&
		a.Message == b.Message &&
		a.Time == b.Time &&
		a.Recurring == b.Recurring &&
		(a.Date == nil) == (b.Date == nil) &&
		a.DateString() == b.DateString()
}

func TestJSONFileFormat(t *testing.T) {
	t.Parallel()
	st, path := openTestStore(t, DriverJSON, "r.json")
	st.Append(reminder.Reminder{ID: "in-memory", Title: "Workout", Message: "Go!", Time: "10:00", Recurring: true})
	if err := st.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := `[
    {
        "title": "Workout",
        "message": "Go!",
        "date": null,
        "time": "10:00",
        "recurring": true
    }
]`
	if string(b) != want {
		t.Fatalf("file =\n%s\nwant\n%s", b, want)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	t.Parallel()
	st, _ := openTestStore(t, DriverJSON, "absent.json")
	entries, err := st.Load(context.Background())
	if err != nil || len(entries) != 0 {
		t.Fatalf("Load = %v, %v; want empty, nil", entries, err)
	}
}

func TestLoadReportsMalformedEntriesIndividually(t *testing.T) {
	t.Parallel()
	st, path := openTestStore(t, DriverJSON, "r.json")
	data := `[
  {"title": "a", "message": "", "date": null, "time": "08:00", "recurring": true, "color": "red"},
  {"title": 7, "message": "", "time": "09:00"},
  null,
  {"title": "c", "message": "", "date": "2026-12-01", "time": "10:00", "recurring": false}
]`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	entries, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("entries = %d, want 4", len(entries))
	}
	for i, wantBad := range []bool{false, true, true, false} {
		gotBad := entries[i].Err != nil
		if gotBad != wantBad {
			t.Fatalf("entry %d err = %v, want malformed=%v", i, entries[i].Err, wantBad)
		}
		if gotBad && !errors.Is(entries[i].Err, reminder.ErrMalformedReminder) {
			t.Fatalf("entry %d err = %v, want ErrMalformedReminder", i, entries[i].Err)
		}
	}
	if entries[3].Reminder.DateString() != "2026-12-01" {
		t.Fatalf("unexpected entry: %+v", entries[3].Reminder)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	t.Parallel()
	st, path := openTestStore(t, DriverJSON, "r.json")
	if err := os.WriteFile(path, []byte(`{"not": "an array"`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Load(context.Background()); !errors.Is(err, reminder.ErrPersistenceIO) {
		t.Fatalf("err = %v, want ErrPersistenceIO", err)
	}
}

func TestSaveFailureLeavesListIntact(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// The target path is an existing directory, so the final rename fails.
	target := filepath.Join(dir, "taken")
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(target, "keep"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	st, err := Open(Config{Path: target}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, r := range sampleReminders() {
		st.Append(r)
	}
	err = st.Save(context.Background())
	if !errors.Is(err, reminder.ErrPersistenceIO) {
		t.Fatalf("err = %v, want ErrPersistenceIO", err)
	}
	if st.Len() != 3 {
		t.Fatalf("list changed after failed save: %d", st.Len())
	}
}

func TestListOperations(t *testing.T) {
	t.Parallel()
	st := NewStore(nil, logx.Nop())
	for i, title := range []string{"a", "b", "c"} {
		r := reminder.Daily(title, "", "10:00")
		r.ID = strings.Repeat(title, i+1)
		st.Append(r)
	}
	if _, ok := st.Remove("bb"); !ok {
		t.Fatal("Remove(bb) = false")
	}
	if _, ok := st.Remove("bb"); ok {
		t.Fatal("second Remove(bb) = true")
	}
	got := st.List()
	if len(got) != 2 || got[0].Title != "a" || got[1].Title != "c" {
		t.Fatalf("List = %+v", got)
	}
	got[0].Title = "mutated"
	if r, _ := st.Get("a"); r.Title != "a" {
		t.Fatal("List must return a copy")
	}
	st.Replace(nil)
	if st.Len() != 0 {
		t.Fatal("Replace(nil) should empty the list")
	}
	if err := st.Save(context.Background()); !errors.Is(err, reminder.ErrPersistenceIO) {
		t.Fatalf("Save without backend err = %v", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestBaselineTracksSaveAndLoad(t *testing.T) {
	t.Parallel()
	st, path := openTestStore(t, DriverJSON, "r.json")
	st.Append(reminder.Daily("a", "", "08:00"))
	if len(st.Baseline()) != 0 {
		t.Fatal("baseline should start empty")
	}
	if err := st.Save(context.Background()); err != nil {
		t.Fatal(err)
	}
	st.Append(reminder.Daily("b", "", "09:00"))
	if b := st.Baseline(); len(b) != 1 || b[0].Title != "a" {
		t.Fatalf("baseline after save = %+v", b)
	}

	data := `[{"title": "x", "message": "", "date": null, "time": "07:00", "recurring": true}, 5]`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if b := st.Baseline(); len(b) != 1 || b[0].Title != "x" {
		t.Fatalf("baseline after load = %+v", b)
	}
	if st.Len() != 2 {
		t.Fatal("Load must not replace the list")
	}
}

func TestWatchSeesExternalWrites(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "reminders.json")
	changed := make(chan struct{}, 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, 50*time.Millisecond, logx.Nop(), func() { changed <- struct{}{} })
	}()
	defer func() {
		cancel()
		<-done
	}()
	time.Sleep(200 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "unrelated.json"), []byte("[]"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("[]"), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestIsBackendFile(t *testing.T) {
	t.Parallel()
	for name, want := range map[string]bool{
		"r.db":         true,
		"r.db-wal":     true,
		"r.db-journal": true,
		"r.db-shm":     false,
		"r.db.tmp":     false,
		"other.db":     false,
	} {
		if got := isBackendFile(name, "r.db"); got != want {
			t.Errorf("isBackendFile(%q) = %v, want %v", name, got, want)
		}
	}
}
