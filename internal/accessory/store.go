package accessory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-cloud/internal/cloud"
)

// Record is a registered accessory as remembered across restarts.
type Record struct {
	DeviceID     string
	Name         string
	LocationID   string
	Manufacturer string
	Components   []ComponentInfo
	RegisteredAt time.Time
	UpdatedAt    time.Time
}

// RecordFromDevice builds a registration record from a discovered device.
func RecordFromDevice(d cloud.Device, name string) Record {
	components := make([]ComponentInfo, 0, len(d.Components))
	for _, c := range d.Components {
		components = append(components, ComponentInfo{ID: c.ID, Capabilities: c.CapabilityIDs()})
	}
	return Record{
		DeviceID:     d.DeviceID,
		Name:         name,
		LocationID:   d.LocationID,
		Manufacturer: d.ManufacturerName,
		Components:   components,
	}
}

// Store persists accessory registrations.
type Store interface {
	// Get returns the record for deviceID, or ErrNotFound.
	Get(ctx context.Context, deviceID string) (*Record, error)

	// List returns all records ordered by device ID.
	List(ctx context.Context) ([]Record, error)

	// Upsert inserts or updates a record. RegisteredAt is kept on update.
	Upsert(ctx context.Context, rec *Record) error

	// Delete removes a record. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, deviceID string) error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store on an open, migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const selectRecord = `
	SELECT device_id, name, location_id, manufacturer, components, registered_at, updated_at
	FROM accessories`

// Get retrieves a record by device ID.
func (s *SQLiteStore) Get(ctx context.Context, deviceID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectRecord+" WHERE device_id = ?", deviceID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying accessory: %w", err)
	}
	return rec, nil
}

// List retrieves all records.
func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, selectRecord+" ORDER BY device_id")
	if err != nil {
		return nil, fmt.Errorf("querying accessories: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning accessory: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating accessories: %w", err)
	}
	return records, nil
}

// Upsert inserts or updates a record and sets its timestamps.
func (s *SQLiteStore) Upsert(ctx context.Context, rec *Record) error {
	componentsJSON, err := json.Marshal(rec.Components)
	if err != nil {
		return fmt.Errorf("marshalling components: %w", err)
	}

	now := time.Now().UTC()
	if rec.RegisteredAt.IsZero() {
		rec.RegisteredAt = now
	}
	rec.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accessories (device_id, name, location_id, manufacturer, components, registered_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			name = excluded.name,
			location_id = excluded.location_id,
			manufacturer = excluded.manufacturer,
			components = excluded.components,
			updated_at = excluded.updated_at`,
		rec.DeviceID,
		rec.Name,
		rec.LocationID,
		rec.Manufacturer,
		string(componentsJSON),
		rec.RegisteredAt.UTC().Format(time.RFC3339Nano),
		rec.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting accessory: %w", err)
	}
	return nil
}

// Delete removes a record by device ID.
func (s *SQLiteStore) Delete(ctx context.Context, deviceID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM accessories WHERE device_id = ?", deviceID)
	if err != nil {
		return fmt.Errorf("deleting accessory: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var componentsJSON, registeredAt, updatedAt string

	if err := row.Scan(
		&rec.DeviceID,
		&rec.Name,
		&rec.LocationID,
		&rec.Manufacturer,
		&componentsJSON,
		&registeredAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(componentsJSON), &rec.Components); err != nil {
		return nil, fmt.Errorf("unmarshalling components: %w", err)
	}
	rec.RegisteredAt, _ = time.Parse(time.RFC3339Nano, registeredAt) //nolint:errcheck // Format is controlled
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)       //nolint:errcheck // Format is controlled
	return &rec, nil
}
