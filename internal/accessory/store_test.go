package accessory

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/gray-logic-cloud/internal/cloud"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	schema := `
		CREATE TABLE accessories (
			device_id     TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			location_id   TEXT NOT NULL DEFAULT '',
			manufacturer  TEXT NOT NULL DEFAULT '',
			components    TEXT NOT NULL DEFAULT '[]',
			registered_at TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}
	return NewSQLiteStore(db)
}

func testRecord(id string) *Record {
	return &Record{
		DeviceID:     id,
		Name:         "Garage Door",
		LocationID:   "loc-1",
		Manufacturer: "Acme",
		Components: []ComponentInfo{
			{ID: "main", Capabilities: []string{"doorControl", "battery"}},
		},
	}
}

func TestSQLiteStore_UpsertAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rec := testRecord("dev-1")
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if rec.RegisteredAt.IsZero() || rec.UpdatedAt.IsZero() {
		t.Error("Upsert() did not set timestamps")
	}

	got, err := store.Get(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "Garage Door" || got.LocationID != "loc-1" || got.Manufacturer != "Acme" {
		t.Errorf("Get() = %+v", got)
	}
	if len(got.Components) != 1 || len(got.Components[0].Capabilities) != 2 {
		t.Errorf("Components = %+v", got.Components)
	}
	if !got.RegisteredAt.Equal(rec.RegisteredAt) {
		t.Errorf("RegisteredAt = %v, want %v", got.RegisteredAt, rec.RegisteredAt)
	}
}

func TestSQLiteStore_UpsertKeepsRegisteredAt(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first := testRecord("dev-1")
	if err := store.Upsert(ctx, first); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	second := testRecord("dev-1")
	second.Name = "Renamed"
	if err := store.Upsert(ctx, second); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}

	got, err := store.Get(ctx, "dev-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "Renamed" {
		t.Errorf("Name = %q, want Renamed", got.Name)
	}
	if !got.RegisteredAt.Equal(first.RegisteredAt) {
		t.Errorf("RegisteredAt changed: %v -> %v", first.RegisteredAt, got.RegisteredAt)
	}
	if !got.UpdatedAt.After(got.RegisteredAt) {
		t.Errorf("UpdatedAt %v not after RegisteredAt %v", got.UpdatedAt, got.RegisteredAt)
	}
}

func TestSQLiteStore_List(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"dev-b", "dev-a", "dev-c"} {
		if err := store.Upsert(ctx, testRecord(id)); err != nil {
			t.Fatalf("Upsert(%s) error = %v", id, err)
		}
	}

	records, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("List() returned %d records, want 3", len(records))
	}
	if records[0].DeviceID != "dev-a" || records[2].DeviceID != "dev-c" {
		t.Errorf("List() order = %s, %s, %s", records[0].DeviceID, records[1].DeviceID, records[2].DeviceID)
	}
}

func TestSQLiteStore_NotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, testRecord("dev-1")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := store.Delete(ctx, "dev-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, "dev-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Delete() error = %v, want ErrNotFound", err)
	}
}

func TestRecordFromDevice(t *testing.T) {
	d := cloud.Device{
		DeviceID:         "dev-1",
		Label:            "Kitchen",
		LocationID:       "loc-1",
		ManufacturerName: "Acme",
		Components: []cloud.Component{
			{ID: "main", Capabilities: []cloud.CapabilityRef{{ID: "switch"}, {ID: "switchLevel"}}},
		},
	}

	rec := RecordFromDevice(d, "Kitchen")
	if rec.DeviceID != "dev-1" || rec.Name != "Kitchen" || rec.LocationID != "loc-1" || rec.Manufacturer != "Acme" {
		t.Errorf("RecordFromDevice() = %+v", rec)
	}
	if len(rec.Components) != 1 || rec.Components[0].Capabilities[1] != "switchLevel" {
		t.Errorf("Components = %+v", rec.Components)
	}
}
