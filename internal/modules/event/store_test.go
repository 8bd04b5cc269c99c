package event

import (
	"context"
	"testing"
	"time"

	"driverbuddy/internal/infra/pgtest"
	"driverbuddy/internal/types"
)

var stopStart = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newStop(vehicle string, driver types.ID, start time.Time) *Event {
	return &Event{
		ID:        types.NewID(),
		DriverID:  types.IDPtr(driver),
		VehicleID: vehicle,
		Type:      TypeStop,
		StartTime: start,
		Position:  types.PointFromFloat(37.7749, -122.4194),
		Metadata:  map[string]any{"speed": 0.0},
		CreatedAt: start,
	}
}

func TestCreateReplayReturnsStoredRow(t *testing.T) {
	ctx := context.Background()
	db := pgtest.Open(t)
	if _, err := db.Exec(ctx, `INSERT INTO drivers (id, name) VALUES ('d1', 'd1')`); err != nil {
		t.Fatal(err)
	}
	store := NewStore(db)

	first := newStop("v1", "d1", stopStart)
	created, err := store.Create(ctx, first)
	if err != nil || !created {
		t.Fatalf("create: created=%v err=%v", created, err)
	}

	replay := newStop("v1", "d1", stopStart)
	created, err = store.Create(ctx, replay)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if created {
		t.Fatal("replay should not insert")
	}
	if replay.ID != first.ID {
		t.Fatalf("replay id = %s, want %s", replay.ID, first.ID)
	}
	if !replay.Position.Lat.Equal(first.Position.Lat) {
		t.Fatalf("lat = %s, want %s", replay.Position.Lat, first.Position.Lat)
	}
	if replay.Metadata["speed"] != 0.0 {
		t.Fatalf("metadata = %v", replay.Metadata)
	}
}

func TestSecondOpenStopConflicts(t *testing.T) {
	ctx := context.Background()
	db := pgtest.Open(t)
	if _, err := db.Exec(ctx, `INSERT INTO drivers (id, name) VALUES ('d1', 'd1')`); err != nil {
		t.Fatal(err)
	}
	store := NewStore(db)

	if _, err := store.Create(ctx, newStop("v1", "d1", stopStart)); err != nil {
		t.Fatal(err)
	}
	_, err := store.Create(ctx, newStop("v1", "d1", stopStart.Add(time.Minute)))
	if err != ErrConflict {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	// Another vehicle is unaffected.
	if created, err := store.Create(ctx, newStop("v2", "d1", stopStart.Add(time.Minute))); err != nil || !created {
		t.Fatalf("other vehicle: created=%v err=%v", created, err)
	}
}

func TestCloseOnce(t *testing.T) {
	ctx := context.Background()
	db := pgtest.Open(t)
	if _, err := db.Exec(ctx, `INSERT INTO drivers (id, name) VALUES ('d1', 'd1')`); err != nil {
		t.Fatal(err)
	}
	store := NewStore(db)

	e := newStop("v1", "d1", stopStart)
	if _, err := store.Create(ctx, e); err != nil {
		t.Fatal(err)
	}
	end := stopStart.Add(5 * time.Minute)
	closed, err := store.Close(ctx, e.ID, end)
	if err != nil || !closed {
		t.Fatalf("close: closed=%v err=%v", closed, err)
	}
	closed, err = store.Close(ctx, e.ID, end.Add(time.Minute))
	if err != nil || closed {
		t.Fatalf("second close: closed=%v err=%v", closed, err)
	}

	got, err := store.Get(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.EndTime == nil || !got.EndTime.Equal(end) {
		t.Fatalf("end time = %v, want %v", got.EndTime, end)
	}
	if got.Open() {
		t.Fatal("closed event reported open")
	}

	// A new stop may open once the previous one ended.
	if created, err := store.Create(ctx, newStop("v1", "d1", end.Add(time.Minute))); err != nil || !created {
		t.Fatalf("next stop: created=%v err=%v", created, err)
	}
}

func TestLatestAndDriverLookups(t *testing.T) {
	ctx := context.Background()
	db := pgtest.Open(t)
	if _, err := db.Exec(ctx, `INSERT INTO drivers (id, name) VALUES ('d1', 'd1')`); err != nil {
		t.Fatal(err)
	}
	store := NewStore(db)

	if _, err := store.Latest(ctx, "v1"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := store.OpenByDriver(ctx, "d1"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	old := newStop("v1", "d1", stopStart)
	if _, err := store.Create(ctx, old); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Close(ctx, old.ID, stopStart.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	open := newStop("v1", "d1", stopStart.Add(time.Hour))
	if _, err := store.Create(ctx, open); err != nil {
		t.Fatal(err)
	}

	latest, err := store.Latest(ctx, "v1")
	if err != nil || latest.ID != open.ID {
		t.Fatalf("latest = %+v, err=%v", latest, err)
	}
	got, err := store.OpenByDriver(ctx, "d1")
	if err != nil || got.ID != open.ID {
		t.Fatalf("open by driver = %+v, err=%v", got, err)
	}
	got, err = store.LatestByDriverSince(ctx, "d1", stopStart.Add(-time.Minute))
	if err != nil || got.ID != open.ID {
		t.Fatalf("latest since = %+v, err=%v", got, err)
	}
	if _, err := store.LatestByDriverSince(ctx, "d1", stopStart.Add(2*time.Hour)); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	db := pgtest.Open(t)
	if _, err := db.Exec(ctx, `INSERT INTO drivers (id, name) VALUES ('d1', 'd1'), ('d2', 'd2')`); err != nil {
		t.Fatal(err)
	}
	store := NewStore(db)

	for i := 0; i < 3; i++ {
		start := stopStart.Add(time.Duration(i) * time.Hour)
		e := newStop("v1", "d1", start)
		if _, err := store.Create(ctx, e); err != nil {
			t.Fatal(err)
		}
		if _, err := store.Close(ctx, e.ID, start.Add(time.Minute)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := store.Create(ctx, newStop("v2", "d2", stopStart)); err != nil {
		t.Fatal(err)
	}

	all, total, err := store.List(ctx, Filter{}.normalized())
	if err != nil {
		t.Fatal(err)
	}
	if total != 4 || len(all) != 4 {
		t.Fatalf("total=%d len=%d, want 4", total, len(all))
	}

	page, total, err := store.List(ctx, Filter{VehicleID: "v1", Page: 2, PageSize: 2}.normalized())
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(page) != 1 {
		t.Fatalf("total=%d len=%d, want 3 and 1", total, len(page))
	}
	if !page[0].StartTime.Equal(stopStart) {
		t.Fatalf("last page start = %v, want oldest %v", page[0].StartTime, stopStart)
	}

	byDriver, total, err := store.List(ctx, Filter{DriverID: "d2", Type: TypeStop}.normalized())
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || byDriver[0].VehicleID != "v2" {
		t.Fatalf("driver filter = %+v total=%d", byDriver, total)
	}
}
