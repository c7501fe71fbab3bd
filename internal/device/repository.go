package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smarteefi-community/smarteefi-bridge/internal/smarteefi"
)

// Repository defines the interface for device mirror persistence.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its vendor identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// GetByObjectID retrieves a device by its MQTT object identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByObjectID(ctx context.Context, objectID string) (*Device, error)

	// List retrieves all devices ordered by object ID.
	List(ctx context.Context) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if a device with the same ID already exists.
	Create(ctx context.Context, device *Device) error

	// Update modifies an existing device.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, device *Device) error

	// Delete removes a device by ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error

	// UpdateStatus updates the raw status bitmask and last seen timestamp.
	// This is optimised for the frequent updates from polling and push.
	UpdateStatus(ctx context.Context, id string, status uint32, seen time.Time) error

	// UpdateAvailability flips the availability flag.
	UpdateAvailability(ctx context.Context, id string, available bool) error

	// Sync reconciles the mirror with a full cloud enumeration inside a
	// single transaction. Devices not present in the input are deleted.
	// Returns the devices that were inserted and the devices that were
	// removed, so discovery can be published and retracted accordingly.
	Sync(ctx context.Context, devices []Device) (added, removed []Device, err error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with the devices
// table migrated.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, serial, smap, object_id, name, type, cloud_id,
	status, available, last_seen, created_at, updated_at`

// GetByID retrieves a device by its vendor identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = ?`

	device, err := scanDevice(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// GetByObjectID retrieves a device by its MQTT object identifier.
func (r *SQLiteRepository) GetByObjectID(ctx context.Context, objectID string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE object_id = ?`

	device, err := scanDevice(r.db.QueryRowContext(ctx, query, objectID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by object id: %w", err)
	}
	return device, nil
}

// List retrieves all devices ordered by object ID.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY object_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDeviceFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device rows: %w", err)
	}
	return devices, nil
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	if err := device.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	device.CreatedAt = now
	device.UpdatedAt = now

	err := insertDevice(ctx, r.db, device)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// Update modifies an existing device.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	if err := device.Validate(); err != nil {
		return err
	}

	device.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE devices
		SET serial = ?, smap = ?, object_id = ?, name = ?, type = ?,
			cloud_id = ?, status = ?, available = ?, last_seen = ?,
			updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		device.Serial, device.Smap, device.ObjectID, device.Name,
		string(device.Type), device.CloudID, device.Status,
		boolToInt(device.Available), formatNullableTime(device.LastSeen),
		formatTime(device.UpdatedAt), device.ID)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	return requireRowAffected(result)
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	return requireRowAffected(result)
}

// UpdateStatus updates the raw status bitmask and last seen timestamp.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status uint32, seen time.Time) error {
	query := `
		UPDATE devices
		SET status = ?, last_seen = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		status, formatTime(seen.UTC()), formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("updating device status: %w", err)
	}
	return requireRowAffected(result)
}

// UpdateAvailability flips the availability flag.
func (r *SQLiteRepository) UpdateAvailability(ctx context.Context, id string, available bool) error {
	query := `
		UPDATE devices
		SET available = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		boolToInt(available), formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("updating device availability: %w", err)
	}
	return requireRowAffected(result)
}

// Sync reconciles the mirror with a full cloud enumeration.
//
// Existing rows keep their status, availability, and timestamps; only the
// identity fields (name, type, cloud ID, object ID) are refreshed. Rows for
// devices absent from the input are deleted.
func (r *SQLiteRepository) Sync(ctx context.Context, devices []Device) (added, removed []Device, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning sync transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	existing, err := listIDs(ctx, tx)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	seen := make(map[string]bool, len(devices))

	for i := range devices {
		d := &devices[i]
		if err := d.Validate(); err != nil {
			return nil, nil, err
		}
		seen[d.ID] = true

		if existing[d.ID] {
			query := `
				UPDATE devices
				SET serial = ?, smap = ?, object_id = ?, name = ?, type = ?,
					cloud_id = ?, updated_at = ?
				WHERE id = ?`
			if _, err := tx.ExecContext(ctx, query,
				d.Serial, d.Smap, d.ObjectID, d.Name, string(d.Type),
				d.CloudID, formatTime(now), d.ID); err != nil {
				return nil, nil, fmt.Errorf("syncing device %s: %w", d.ID, err)
			}
			continue
		}

		d.CreatedAt = now
		d.UpdatedAt = now
		if err := insertDevice(ctx, tx, d); err != nil {
			return nil, nil, fmt.Errorf("inserting device %s: %w", d.ID, err)
		}
		added = append(added, *d)
	}

	for id := range existing {
		if seen[id] {
			continue
		}
		gone, err := scanDevice(tx.QueryRowContext(ctx,
			`SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id))
		if err != nil {
			return nil, nil, fmt.Errorf("loading removed device %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id); err != nil {
			return nil, nil, fmt.Errorf("removing device %s: %w", id, err)
		}
		removed = append(removed, *gone)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing sync transaction: %w", err)
	}
	return added, removed, nil
}

// =============================================================================
// Helpers
// =============================================================================

// execer covers both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertDevice(ctx context.Context, db execer, device *Device) error {
	query := `
		INSERT INTO devices (` + deviceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.ExecContext(ctx, query,
		device.ID, device.Serial, device.Smap, device.ObjectID,
		device.Name, string(device.Type), device.CloudID, device.Status,
		boolToInt(device.Available), formatNullableTime(device.LastSeen),
		formatTime(device.CreatedAt), formatTime(device.UpdatedAt))
	return err
}

func listIDs(ctx context.Context, tx *sql.Tx) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM devices`)
	if err != nil {
		return nil, fmt.Errorf("listing device ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning device id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// rowScanner abstracts over *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row *sql.Row) (*Device, error) {
	return scanDeviceRow(row)
}

func scanDeviceFromRows(rows *sql.Rows) (*Device, error) {
	return scanDeviceRow(rows)
}

func scanDeviceRow(scanner rowScanner) (*Device, error) {
	var (
		d         Device
		typ       string
		available int
		lastSeen  sql.NullString
		createdAt string
		updatedAt string
	)

	err := scanner.Scan(&d.ID, &d.Serial, &d.Smap, &d.ObjectID, &d.Name,
		&typ, &d.CloudID, &d.Status, &available, &lastSeen,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	d.Type = smarteefi.DeviceType(typ)
	d.Available = available != 0

	if lastSeen.Valid {
		t, err := parseTime(lastSeen.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_seen: %w", err)
		}
		d.LastSeen = &t
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &d, nil
}

func requireRowAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
