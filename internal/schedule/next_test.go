package schedule

import (
	"testing"
	"time"
)

func TestNextIsStrictlyAfter(t *testing.T) {
	t.Parallel()
	e := mustParse(t, "* * * * *")
	after := time.Date(2026, 3, 10, 14, 7, 42, 0, time.UTC)

	got, ok := e.Next(after, 0)
	if !ok {
		t.Fatal("every-minute expression must always find a next run")
	}
	want := time.Date(2026, 3, 10, 14, 8, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
	if !got.After(after) {
		t.Fatal("Next must be strictly after the reference instant")
	}
}

func TestNextAgreesWithMatches(t *testing.T) {
	t.Parallel()
	e := mustParse(t, "*/20 3 * * *")
	after := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)

	got, ok := e.Next(after, 0)
	if !ok {
		t.Fatal("expected a match within the horizon")
	}
	if !e.Matches(got, 0) {
		t.Fatalf("Next returned %v which Matches rejects", got)
	}
	// Nothing between after+1m and the returned instant may match.
	for cur := after.Add(time.Minute); cur.Before(got); cur = cur.Add(time.Minute) {
		if e.Matches(cur, 0) {
			t.Fatalf("found earlier match at %v", cur)
		}
	}
}

func TestNextWeekdaySkipsWeekend(t *testing.T) {
	t.Parallel()
	e := mustParse(t, "0 9 * * 1-5")
	// 2026-03-14 is a Saturday.
	sat := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	got, ok := e.Next(sat, 0)
	if !ok {
		t.Fatal("expected weekday match within horizon")
	}
	want := time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC) // Monday 09:00
	if !got.Equal(want) {
		t.Fatalf("Next = %v, want Monday %v", got, want)
	}
}

func TestNextBeyondHorizonIsUnknown(t *testing.T) {
	t.Parallel()
	// February 30th never exists; the scan must report "not found" instead of
	// handing back the horizon boundary.
	e := mustParse(t, "0 0 30 2 *")
	_, ok := e.Next(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), 0)
	if ok {
		t.Fatal("expected no match within the horizon")
	}
}

func TestNextHonorsOffset(t *testing.T) {
	t.Parallel()
	e := mustParse(t, "30 8 * * *")
	after := time.Date(2026, 3, 10, 5, 0, 0, 0, time.UTC)

	got, ok := e.Next(after, 180)
	if !ok {
		t.Fatal("expected match within horizon")
	}
	// 08:30 at +180 is 05:30 UTC.
	want := time.Date(2026, 3, 10, 5, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

func TestNextEffectiveSkipsWindow(t *testing.T) {
	t.Parallel()
	e := mustParse(t, "0 * * * *")
	windows := []Window{{Start: "22:00", End: "23:00"}}
	after := time.Date(2026, 3, 10, 21, 30, 0, 0, time.UTC)

	got, ok := e.NextEffective(after, 0, windows)
	if !ok {
		t.Fatal("expected match within horizon")
	}
	// 22:00 is excluded (inclusive start); 23:00 is the exclusive end and is
	// the first allowed candidate.
	want := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("NextEffective = %v, want %v", got, want)
	}
}

func TestNextEffectiveWeekdayScopedWindow(t *testing.T) {
	t.Parallel()
	e := mustParse(t, "0 10 * * *")
	// Window covers 10:00 only on Tuesdays (weekday 2).
	windows := []Window{{Days: []int{2}, Start: "09:00", End: "12:00"}}

	// 2026-03-09 is a Monday; Tuesday's 10:00 run is deferred to Wednesday.
	mon := time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC)
	got, ok := e.NextEffective(mon, 0, windows)
	if !ok {
		t.Fatal("expected match within horizon")
	}
	want := time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("NextEffective = %v, want Wednesday %v", got, want)
	}
}

func TestExcludedOvernightWindow(t *testing.T) {
	t.Parallel()
	// Friday 22:00 through Saturday 06:00.
	windows := []Window{{Days: []int{5}, Start: "22:00", End: "06:00"}}

	// 2026-03-13 is a Friday.
	if !Excluded(time.Date(2026, 3, 13, 23, 0, 0, 0, time.UTC), 0, windows) {
		t.Error("Friday 23:00 should be excluded")
	}
	if !Excluded(time.Date(2026, 3, 14, 5, 0, 0, 0, time.UTC), 0, windows) {
		t.Error("Saturday 05:00 (tail of Friday night) should be excluded")
	}
	if Excluded(time.Date(2026, 3, 14, 7, 0, 0, 0, time.UTC), 0, windows) {
		t.Error("Saturday 07:00 should not be excluded")
	}
	if Excluded(time.Date(2026, 3, 12, 23, 0, 0, 0, time.UTC), 0, windows) {
		t.Error("Thursday 23:00 should not be excluded")
	}
}

func TestWindowValidate(t *testing.T) {
	t.Parallel()
	if err := (Window{Start: "08:00", End: "09:30", Days: []int{0, 6}}).Validate(); err != nil {
		t.Fatalf("valid window rejected: %v", err)
	}
	if err := (Window{Start: "24:00", End: "09:30"}).Validate(); err == nil {
		t.Fatal("expected error for hour 24")
	}
	if err := (Window{Start: "08:00", End: "09:30", Days: []int{7}}).Validate(); err == nil {
		t.Fatal("expected error for weekday 7")
	}
}
