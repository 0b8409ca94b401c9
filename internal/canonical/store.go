// Package canonical is the durable knowledge layer under search: canonical
// vehicles with write-once aliases, parts with their number namespaces,
// supersession and interchange data, fitments, and search/price history.
// Backed by SQLite so a single file survives restarts.
package canonical

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"partlogic/searchservice/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrAlreadyExist = errors.New("already exists")
)

const timeFormat = time.RFC3339

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open canonical database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := migrateColumns(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// migrateColumns brings databases created before the vehicle-config
// columns existed up to the current shape. CREATE TABLE IF NOT EXISTS
// skips existing tables, so added columns need explicit ALTERs.
func migrateColumns(db *sql.DB) error {
	additions := []struct {
		table, column, ddl string
	}{
		{"vehicle_aliases", "config_id",
			`ALTER TABLE vehicle_aliases ADD COLUMN config_id INTEGER REFERENCES vehicle_configs(id)`},
		{"fitments", "config_id",
			`ALTER TABLE fitments ADD COLUMN config_id INTEGER REFERENCES vehicle_configs(id)`},
		{"search_history", "vehicle_id",
			`ALTER TABLE search_history ADD COLUMN vehicle_id INTEGER REFERENCES vehicles(id)`},
		{"search_history", "config_id",
			`ALTER TABLE search_history ADD COLUMN config_id INTEGER REFERENCES vehicle_configs(id)`},
	}
	for _, add := range additions {
		exists, err := tableHasColumn(db, add.table, add.column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := db.Exec(add.ddl); err != nil {
			return fmt.Errorf("add %s.%s: %w", add.table, add.column, err)
		}
	}
	return nil
}

func tableHasColumn(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var nonAlnumPattern = regexp.MustCompile(`[^A-Z0-9]`)

// NormalizePartNumberValue strips separators and uppercases so the same
// number in different punctuation styles compares equal.
func NormalizePartNumberValue(raw string) string {
	return nonAlnumPattern.ReplaceAllString(strings.ToUpper(strings.TrimSpace(raw)), "")
}

// --- vehicles ---

func (s *Store) CreateVehicle(ctx context.Context, vehicle domain.Vehicle) (domain.Vehicle, error) {
	vehicle.Make = strings.TrimSpace(vehicle.Make)
	vehicle.Model = strings.TrimSpace(vehicle.Model)
	vehicle.Trim = strings.TrimSpace(vehicle.Trim)
	if vehicle.Make == "" || vehicle.Model == "" || vehicle.Year <= 0 {
		return domain.Vehicle{}, errors.New("make, model and year are required")
	}
	if vehicle.CreatedAt.IsZero() {
		vehicle.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO vehicles (make, model, year, trim, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(make, model, year, trim) DO NOTHING`,
		vehicle.Make, vehicle.Model, vehicle.Year, vehicle.Trim, vehicle.CreatedAt.Format(timeFormat))
	if err != nil {
		return domain.Vehicle{}, fmt.Errorf("insert vehicle: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		existing, err := s.FindVehicle(ctx, vehicle.Make, vehicle.Model, vehicle.Year, vehicle.Trim)
		if err != nil {
			return domain.Vehicle{}, err
		}
		return existing, nil
	}
	id, err := result.LastInsertId()
	if err != nil {
		return domain.Vehicle{}, err
	}
	vehicle.ID = id
	return vehicle, nil
}

func (s *Store) GetVehicle(ctx context.Context, id int64) (domain.Vehicle, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, make, model, year, trim, created_at FROM vehicles WHERE id = ?`, id)
	return scanVehicle(row)
}

func (s *Store) FindVehicle(ctx context.Context, make, model string, year int, trim string) (domain.Vehicle, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, make, model, year, trim, created_at FROM vehicles
		 WHERE make = ? COLLATE NOCASE AND model = ? COLLATE NOCASE AND year = ? AND trim = ? COLLATE NOCASE`,
		strings.TrimSpace(make), strings.TrimSpace(model), year, strings.TrimSpace(trim))
	return scanVehicle(row)
}

func (s *Store) ListVehicles(ctx context.Context, limit int) ([]domain.Vehicle, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, make, model, year, trim, created_at FROM vehicles
		 ORDER BY make, model, year LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vehicles := make([]domain.Vehicle, 0)
	for rows.Next() {
		vehicle, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		vehicles = append(vehicles, vehicle)
	}
	return vehicles, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVehicle(row rowScanner) (domain.Vehicle, error) {
	var vehicle domain.Vehicle
	var createdAt string
	err := row.Scan(&vehicle.ID, &vehicle.Make, &vehicle.Model, &vehicle.Year, &vehicle.Trim, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Vehicle{}, ErrNotFound
		}
		return domain.Vehicle{}, err
	}
	vehicle.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return vehicle, nil
}

// --- vehicle configs ---

// CreateVehicleConfig stores one build configuration of a vehicle.
// Re-inserting the same configuration returns the existing row.
func (s *Store) CreateVehicleConfig(ctx context.Context, config domain.VehicleConfig) (domain.VehicleConfig, error) {
	if config.VehicleID <= 0 {
		return domain.VehicleConfig{}, errors.New("vehicle is required")
	}
	config.EngineCode = strings.ToUpper(strings.TrimSpace(config.EngineCode))
	config.TransmissionCode = strings.ToUpper(strings.TrimSpace(config.TransmissionCode))
	config.Drivetrain = strings.ToLower(strings.TrimSpace(config.Drivetrain))
	config.Aspiration = strings.ToLower(strings.TrimSpace(config.Aspiration))
	config.VINPattern = strings.ToUpper(strings.TrimSpace(config.VINPattern))
	if config.CreatedAt.IsZero() {
		config.CreatedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO vehicle_configs
			(vehicle_id, engine_code, displacement_l, aspiration, transmission_code, drivetrain, doors, vin_pattern, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(vehicle_id, engine_code, transmission_code, drivetrain, doors) DO NOTHING`,
		config.VehicleID, config.EngineCode, config.DisplacementL, config.Aspiration,
		config.TransmissionCode, config.Drivetrain, config.Doors, config.VINPattern,
		config.CreatedAt.Format(timeFormat))
	if err != nil {
		return domain.VehicleConfig{}, fmt.Errorf("insert vehicle config: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		row := s.db.QueryRowContext(ctx,
			`SELECT id, vehicle_id, engine_code, displacement_l, aspiration, transmission_code, drivetrain, doors, vin_pattern, created_at
			 FROM vehicle_configs
			 WHERE vehicle_id = ? AND engine_code = ? AND transmission_code = ? AND drivetrain = ? AND doors = ?`,
			config.VehicleID, config.EngineCode, config.TransmissionCode, config.Drivetrain, config.Doors)
		return scanVehicleConfig(row)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return domain.VehicleConfig{}, err
	}
	config.ID = id
	return config, nil
}

func (s *Store) GetVehicleConfig(ctx context.Context, id int64) (domain.VehicleConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, vehicle_id, engine_code, displacement_l, aspiration, transmission_code, drivetrain, doors, vin_pattern, created_at
		 FROM vehicle_configs WHERE id = ?`, id)
	return scanVehicleConfig(row)
}

func (s *Store) ListVehicleConfigs(ctx context.Context, vehicleID int64) ([]domain.VehicleConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vehicle_id, engine_code, displacement_l, aspiration, transmission_code, drivetrain, doors, vin_pattern, created_at
		 FROM vehicle_configs WHERE vehicle_id = ? ORDER BY id ASC`, vehicleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := make([]domain.VehicleConfig, 0)
	for rows.Next() {
		config, err := scanVehicleConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, config)
	}
	return configs, rows.Err()
}

func scanVehicleConfig(row rowScanner) (domain.VehicleConfig, error) {
	var config domain.VehicleConfig
	var createdAt string
	err := row.Scan(&config.ID, &config.VehicleID, &config.EngineCode, &config.DisplacementL,
		&config.Aspiration, &config.TransmissionCode, &config.Drivetrain, &config.Doors,
		&config.VINPattern, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.VehicleConfig{}, ErrNotFound
		}
		return domain.VehicleConfig{}, err
	}
	config.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return config, nil
}

// --- vehicle aliases ---

func (s *Store) GetAlias(ctx context.Context, aliasNorm, sourceDomain string) (domain.VehicleAlias, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, alias_text, alias_norm, source_domain, vehicle_id, config_id, confidence, created_at
		 FROM vehicle_aliases WHERE alias_norm = ? AND source_domain = ?`,
		aliasNorm, sourceDomain)
	return scanAlias(row)
}

func (s *Store) GetAliasByID(ctx context.Context, id int64) (domain.VehicleAlias, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, alias_text, alias_norm, source_domain, vehicle_id, config_id, confidence, created_at
		 FROM vehicle_aliases WHERE id = ?`, id)
	return scanAlias(row)
}

// CreateAlias stores a new alias. The alias text is write-once; a second
// insert for the same (norm, domain) pair returns the existing row.
func (s *Store) CreateAlias(ctx context.Context, alias domain.VehicleAlias) (domain.VehicleAlias, bool, error) {
	if alias.CreatedAt.IsZero() {
		alias.CreatedAt = time.Now().UTC()
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO vehicle_aliases (alias_text, alias_norm, source_domain, vehicle_id, config_id, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(alias_norm, source_domain) DO NOTHING`,
		alias.AliasText, alias.AliasNorm, alias.SourceDomain, nullableID(alias.VehicleID),
		nullableID(alias.ConfigID), alias.Confidence, alias.CreatedAt.Format(timeFormat))
	if err != nil {
		return domain.VehicleAlias{}, false, fmt.Errorf("insert alias: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		existing, err := s.GetAlias(ctx, alias.AliasNorm, alias.SourceDomain)
		return existing, false, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return domain.VehicleAlias{}, false, err
	}
	alias.ID = id
	return alias, true, nil
}

// LinkAlias attaches an alias to a vehicle, optionally narrowed to one
// build configuration. Linking is monotonic: an already-linked alias is
// never relinked.
func (s *Store) LinkAlias(ctx context.Context, aliasID, vehicleID int64, configID *int64, confidence int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE vehicle_aliases SET vehicle_id = ?, config_id = ?, confidence = ?
		 WHERE id = ? AND vehicle_id IS NULL`,
		vehicleID, nullableID(configID), confidence, aliasID)
	if err != nil {
		return fmt.Errorf("link alias: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: alias %d is missing or already linked", ErrAlreadyExist, aliasID)
	}
	return nil
}

// ListUnlinkedAliases returns unresolved aliases, oldest first, so
// reconciliation works through the backlog in arrival order.
func (s *Store) ListUnlinkedAliases(ctx context.Context, limit int) ([]domain.VehicleAlias, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, alias_text, alias_norm, source_domain, vehicle_id, config_id, confidence, created_at
		 FROM vehicle_aliases WHERE vehicle_id IS NULL
		 ORDER BY created_at ASC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	aliases := make([]domain.VehicleAlias, 0)
	for rows.Next() {
		alias, err := scanAlias(rows)
		if err != nil {
			return nil, err
		}
		aliases = append(aliases, alias)
	}
	return aliases, rows.Err()
}

func (s *Store) ListAliases(ctx context.Context, limit int) ([]domain.VehicleAlias, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, alias_text, alias_norm, source_domain, vehicle_id, config_id, confidence, created_at
		 FROM vehicle_aliases ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	aliases := make([]domain.VehicleAlias, 0)
	for rows.Next() {
		alias, err := scanAlias(rows)
		if err != nil {
			return nil, err
		}
		aliases = append(aliases, alias)
	}
	return aliases, rows.Err()
}

func scanAlias(row rowScanner) (domain.VehicleAlias, error) {
	var alias domain.VehicleAlias
	var vehicleID, configID sql.NullInt64
	var createdAt string
	err := row.Scan(&alias.ID, &alias.AliasText, &alias.AliasNorm, &alias.SourceDomain,
		&vehicleID, &configID, &alias.Confidence, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.VehicleAlias{}, ErrNotFound
		}
		return domain.VehicleAlias{}, err
	}
	if vehicleID.Valid {
		value := vehicleID.Int64
		alias.VehicleID = &value
	}
	if configID.Valid {
		value := configID.Int64
		alias.ConfigID = &value
	}
	alias.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return alias, nil
}

// --- parts and part numbers ---

func (s *Store) CreatePart(ctx context.Context, part domain.Part) (domain.Part, error) {
	part.Description = strings.TrimSpace(part.Description)
	if part.Description == "" {
		return domain.Part{}, errors.New("description is required")
	}
	if part.PartType == "" {
		part.PartType = domain.PartTypeAftermarket
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO parts (description, part_type, brand) VALUES (?, ?, ?)`,
		part.Description, part.PartType, strings.TrimSpace(part.Brand))
	if err != nil {
		return domain.Part{}, fmt.Errorf("insert part: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return domain.Part{}, err
	}
	part.ID = id
	return part, nil
}

func (s *Store) AddPartNumber(ctx context.Context, partID int64, namespace, value string) (domain.PartNumber, error) {
	value = strings.TrimSpace(value)
	norm := NormalizePartNumberValue(value)
	if norm == "" {
		return domain.PartNumber{}, errors.New("part number value is required")
	}
	namespace = strings.ToLower(strings.TrimSpace(namespace))

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO part_numbers (part_id, namespace, value, value_norm) VALUES (?, ?, ?, ?)
		 ON CONFLICT(namespace, value_norm) DO NOTHING`,
		partID, namespace, value, norm)
	if err != nil {
		return domain.PartNumber{}, fmt.Errorf("insert part number: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return s.findPartNumber(ctx, namespace, norm)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return domain.PartNumber{}, err
	}
	return domain.PartNumber{ID: id, PartID: partID, Namespace: namespace, Value: value, ValueNorm: norm}, nil
}

func (s *Store) findPartNumber(ctx context.Context, namespace, norm string) (domain.PartNumber, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, part_id, namespace, value, value_norm FROM part_numbers
		 WHERE namespace = ? AND value_norm = ?`, namespace, norm)
	var pn domain.PartNumber
	err := row.Scan(&pn.ID, &pn.PartID, &pn.Namespace, &pn.Value, &pn.ValueNorm)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PartNumber{}, ErrNotFound
	}
	return pn, err
}

// LookupPartNumbers finds every namespace entry for a normalized value.
func (s *Store) LookupPartNumbers(ctx context.Context, value string) ([]domain.PartNumber, error) {
	norm := NormalizePartNumberValue(value)
	if norm == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, part_id, namespace, value, value_norm FROM part_numbers WHERE value_norm = ?`, norm)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	numbers := make([]domain.PartNumber, 0)
	for rows.Next() {
		var pn domain.PartNumber
		if err := rows.Scan(&pn.ID, &pn.PartID, &pn.Namespace, &pn.Value, &pn.ValueNorm); err != nil {
			return nil, err
		}
		numbers = append(numbers, pn)
	}
	return numbers, rows.Err()
}

// --- supersessions and interchange ---

func (s *Store) AddSupersession(ctx context.Context, oldValue, newValue, source string) error {
	oldNorm := NormalizePartNumberValue(oldValue)
	newNorm := NormalizePartNumberValue(newValue)
	if oldNorm == "" || newNorm == "" || oldNorm == newNorm {
		return errors.New("two distinct part numbers are required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO supersessions (old_value_norm, new_value_norm, source) VALUES (?, ?, ?)
		 ON CONFLICT(old_value_norm, new_value_norm) DO NOTHING`,
		oldNorm, newNorm, strings.TrimSpace(source))
	return err
}

func (s *Store) AddInterchangeGroup(ctx context.Context, label, source string, members []string) (int64, error) {
	if len(members) < 2 {
		return 0, errors.New("an interchange group needs at least two members")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO interchange_groups (label, source) VALUES (?, ?)`,
		strings.TrimSpace(label), strings.TrimSpace(source))
	if err != nil {
		return 0, err
	}
	groupID, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	for _, member := range members {
		norm := NormalizePartNumberValue(member)
		if norm == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO interchange_members (group_id, value_norm, value) VALUES (?, ?, ?)
			 ON CONFLICT(group_id, value_norm) DO NOTHING`,
			groupID, norm, strings.TrimSpace(member)); err != nil {
			return 0, err
		}
	}
	return groupID, tx.Commit()
}

// InterchangeFor walks supersession chains forward from the given number
// and collects interchange group members. Chains may contain cycles from
// bad source data; visited tracking keeps the walk finite.
func (s *Store) InterchangeFor(ctx context.Context, partNumber string) (domain.InterchangeInfo, error) {
	norm := NormalizePartNumberValue(partNumber)
	info := domain.InterchangeInfo{PartNumber: strings.TrimSpace(partNumber)}
	if norm == "" {
		return info, nil
	}

	sources := make(map[string]struct{})

	visited := map[string]struct{}{norm: {}}
	frontier := []string{norm}
	for len(frontier) > 0 && len(visited) <= 50 {
		current := frontier[0]
		frontier = frontier[1:]

		rows, err := s.db.QueryContext(ctx,
			`SELECT new_value_norm, source FROM supersessions WHERE old_value_norm = ?`, current)
		if err != nil {
			return info, err
		}
		for rows.Next() {
			var next, source string
			if err := rows.Scan(&next, &source); err != nil {
				rows.Close()
				return info, err
			}
			if source = strings.TrimSpace(source); source != "" {
				sources[source] = struct{}{}
			}
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			info.Supersessions = append(info.Supersessions, next)
			frontier = append(frontier, next)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return info, err
		}
		rows.Close()
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT m.value_norm, g.source FROM interchange_members m
		 JOIN interchange_groups g ON g.id = m.group_id
		 WHERE m.group_id IN (SELECT group_id FROM interchange_members WHERE value_norm = ?)`,
		norm)
	if err != nil {
		return info, err
	}
	defer rows.Close()
	for rows.Next() {
		var member, source string
		if err := rows.Scan(&member, &source); err != nil {
			return info, err
		}
		if source = strings.TrimSpace(source); source != "" {
			sources[source] = struct{}{}
		}
		if member == norm {
			continue
		}
		if _, seen := visited[member]; seen {
			continue
		}
		visited[member] = struct{}{}
		info.GroupMembers = append(info.GroupMembers, member)
	}
	if err := rows.Err(); err != nil {
		return info, err
	}

	for source := range sources {
		info.Sources = append(info.Sources, source)
	}
	sort.Strings(info.Sources)
	return info, nil
}

// --- fitments ---

func (s *Store) AddFitment(ctx context.Context, fitment domain.Fitment) (domain.Fitment, error) {
	if fitment.PartNumberID <= 0 || fitment.VehicleID <= 0 {
		return domain.Fitment{}, errors.New("part number and vehicle are required")
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO fitments (part_number_id, vehicle_id, config_id, qualifiers, confidence, source)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(part_number_id, vehicle_id, qualifiers) DO UPDATE SET
			confidence = MAX(confidence, excluded.confidence)`,
		fitment.PartNumberID, fitment.VehicleID, nullableID(fitment.ConfigID),
		strings.TrimSpace(fitment.Qualifiers), fitment.Confidence, strings.TrimSpace(fitment.Source))
	if err != nil {
		return domain.Fitment{}, fmt.Errorf("insert fitment: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil && id > 0 {
		fitment.ID = id
	}
	return fitment, nil
}

// FitmentsFor returns all stored fitments for a part number value across
// namespaces, optionally restricted to one vehicle.
func (s *Store) FitmentsFor(ctx context.Context, partNumber string, vehicleID int64) ([]domain.Fitment, error) {
	norm := NormalizePartNumberValue(partNumber)
	if norm == "" {
		return nil, nil
	}
	query := `SELECT f.id, f.part_number_id, f.vehicle_id, f.config_id, f.qualifiers, f.confidence, f.source
		 FROM fitments f
		 JOIN part_numbers pn ON pn.id = f.part_number_id
		 WHERE pn.value_norm = ?`
	args := []any{norm}
	if vehicleID > 0 {
		query += ` AND f.vehicle_id = ?`
		args = append(args, vehicleID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fitments := make([]domain.Fitment, 0)
	for rows.Next() {
		var fitment domain.Fitment
		var configID sql.NullInt64
		if err := rows.Scan(&fitment.ID, &fitment.PartNumberID, &fitment.VehicleID, &configID,
			&fitment.Qualifiers, &fitment.Confidence, &fitment.Source); err != nil {
			return nil, err
		}
		if configID.Valid {
			value := configID.Int64
			fitment.ConfigID = &value
		}
		fitments = append(fitments, fitment)
	}
	return fitments, rows.Err()
}

// --- history, snapshots, saved searches ---

func (s *Store) RecordSearch(ctx context.Context, entry domain.SearchHistoryEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_history (query, query_type, result_count, vehicle_id, config_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		strings.TrimSpace(entry.Query), string(entry.QueryType), entry.ResultCount,
		nullableID(entry.VehicleID), nullableID(entry.ConfigID), entry.CreatedAt.Format(timeFormat))
	return err
}

func (s *Store) RecentSearches(ctx context.Context, limit int) ([]domain.SearchHistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, query_type, result_count, vehicle_id, config_id, created_at FROM search_history
		 ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.SearchHistoryEntry, 0)
	for rows.Next() {
		var entry domain.SearchHistoryEntry
		var vehicleID, configID sql.NullInt64
		var queryType, createdAt string
		if err := rows.Scan(&entry.ID, &entry.Query, &queryType, &entry.ResultCount,
			&vehicleID, &configID, &createdAt); err != nil {
			return nil, err
		}
		if vehicleID.Valid {
			value := vehicleID.Int64
			entry.VehicleID = &value
		}
		if configID.Valid {
			value := configID.Int64
			entry.ConfigID = &value
		}
		entry.QueryType = domain.QueryType(queryType)
		entry.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Store) RecordPriceSnapshots(ctx context.Context, snapshots []domain.PriceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO price_snapshots (part_number, brand, source, price, shipping, condition, captured_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, snapshot := range snapshots {
		capturedAt := snapshot.CapturedAt
		if capturedAt.IsZero() {
			capturedAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			NormalizePartNumberValue(snapshot.PartNumber), strings.TrimSpace(snapshot.Brand),
			strings.TrimSpace(snapshot.Source), snapshot.Price, snapshot.Shipping,
			strings.TrimSpace(snapshot.Condition), capturedAt.Format(timeFormat)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) PriceHistory(ctx context.Context, partNumber string, limit int) ([]domain.PriceSnapshot, error) {
	norm := NormalizePartNumberValue(partNumber)
	if norm == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, part_number, brand, source, price, shipping, condition, captured_at
		 FROM price_snapshots WHERE part_number = ?
		 ORDER BY captured_at DESC, id DESC LIMIT ?`, norm, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshots := make([]domain.PriceSnapshot, 0)
	for rows.Next() {
		var snapshot domain.PriceSnapshot
		var capturedAt string
		if err := rows.Scan(&snapshot.ID, &snapshot.PartNumber, &snapshot.Brand, &snapshot.Source,
			&snapshot.Price, &snapshot.Shipping, &snapshot.Condition, &capturedAt); err != nil {
			return nil, err
		}
		snapshot.CapturedAt, _ = time.Parse(timeFormat, capturedAt)
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, rows.Err()
}

func (s *Store) SaveSearch(ctx context.Context, query string, sort domain.SearchSort) (domain.SavedSearch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.SavedSearch{}, errors.New("query is required")
	}
	saved := domain.SavedSearch{
		ID:        uuid.NewString(),
		Query:     query,
		Sort:      sort,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO saved_searches (id, query, sort, created_at) VALUES (?, ?, ?, ?)`,
		saved.ID, saved.Query, string(saved.Sort), saved.CreatedAt.Format(timeFormat))
	if err != nil {
		return domain.SavedSearch{}, fmt.Errorf("insert saved search: %w", err)
	}
	return saved, nil
}

func (s *Store) ListSavedSearches(ctx context.Context) ([]domain.SavedSearch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, sort, created_at FROM saved_searches ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	searches := make([]domain.SavedSearch, 0)
	for rows.Next() {
		var saved domain.SavedSearch
		var sort, createdAt string
		if err := rows.Scan(&saved.ID, &saved.Query, &sort, &createdAt); err != nil {
			return nil, err
		}
		saved.Sort = domain.SearchSort(sort)
		saved.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		searches = append(searches, saved)
	}
	return searches, rows.Err()
}

func (s *Store) DeleteSavedSearch(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM saved_searches WHERE id = ?`, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}
