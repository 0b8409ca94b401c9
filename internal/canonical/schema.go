package canonical

const schema = `
CREATE TABLE IF NOT EXISTS vehicles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	make TEXT NOT NULL,
	model TEXT NOT NULL,
	year INTEGER NOT NULL,
	trim TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	UNIQUE(make, model, year, trim)
);

CREATE TABLE IF NOT EXISTS vehicle_configs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	vehicle_id INTEGER NOT NULL REFERENCES vehicles(id),
	engine_code TEXT NOT NULL DEFAULT '',
	displacement_l REAL NOT NULL DEFAULT 0,
	aspiration TEXT NOT NULL DEFAULT '',
	transmission_code TEXT NOT NULL DEFAULT '',
	drivetrain TEXT NOT NULL DEFAULT '',
	doors INTEGER NOT NULL DEFAULT 0,
	vin_pattern TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	UNIQUE(vehicle_id, engine_code, transmission_code, drivetrain, doors)
);

CREATE TABLE IF NOT EXISTS vehicle_aliases (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	alias_text TEXT NOT NULL,
	alias_norm TEXT NOT NULL,
	source_domain TEXT NOT NULL DEFAULT '',
	vehicle_id INTEGER REFERENCES vehicles(id),
	config_id INTEGER REFERENCES vehicle_configs(id),
	confidence INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	UNIQUE(alias_norm, source_domain)
);

CREATE INDEX IF NOT EXISTS idx_vehicle_aliases_unlinked
	ON vehicle_aliases(created_at) WHERE vehicle_id IS NULL;

CREATE TABLE IF NOT EXISTS parts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	description TEXT NOT NULL,
	part_type TEXT NOT NULL DEFAULT 'aftermarket',
	brand TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS part_numbers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	part_id INTEGER NOT NULL REFERENCES parts(id),
	namespace TEXT NOT NULL DEFAULT '',
	value TEXT NOT NULL,
	value_norm TEXT NOT NULL,
	UNIQUE(namespace, value_norm)
);

CREATE INDEX IF NOT EXISTS idx_part_numbers_norm ON part_numbers(value_norm);

CREATE TABLE IF NOT EXISTS supersessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	old_value_norm TEXT NOT NULL,
	new_value_norm TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	UNIQUE(old_value_norm, new_value_norm)
);

CREATE INDEX IF NOT EXISTS idx_supersessions_old ON supersessions(old_value_norm);

CREATE TABLE IF NOT EXISTS interchange_groups (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	label TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS interchange_members (
	group_id INTEGER NOT NULL REFERENCES interchange_groups(id),
	value_norm TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY(group_id, value_norm)
);

CREATE INDEX IF NOT EXISTS idx_interchange_members_norm ON interchange_members(value_norm);

CREATE TABLE IF NOT EXISTS fitments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	part_number_id INTEGER NOT NULL REFERENCES part_numbers(id),
	vehicle_id INTEGER NOT NULL REFERENCES vehicles(id),
	config_id INTEGER REFERENCES vehicle_configs(id),
	qualifiers TEXT NOT NULL DEFAULT '',
	confidence INTEGER NOT NULL DEFAULT 0,
	source TEXT NOT NULL DEFAULT '',
	UNIQUE(part_number_id, vehicle_id, qualifiers)
);

CREATE TABLE IF NOT EXISTS search_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	query TEXT NOT NULL,
	query_type TEXT NOT NULL DEFAULT '',
	result_count INTEGER NOT NULL DEFAULT 0,
	vehicle_id INTEGER REFERENCES vehicles(id),
	config_id INTEGER REFERENCES vehicle_configs(id),
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS price_snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	part_number TEXT NOT NULL,
	brand TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL,
	price REAL NOT NULL,
	shipping REAL NOT NULL DEFAULT 0,
	condition TEXT NOT NULL DEFAULT '',
	captured_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_snapshots_pn ON price_snapshots(part_number, captured_at);

CREATE TABLE IF NOT EXISTS saved_searches (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	sort TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS price_alerts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	saved_search_id TEXT REFERENCES saved_searches(id) ON DELETE CASCADE,
	part_number TEXT NOT NULL,
	brand TEXT NOT NULL DEFAULT '',
	target_price REAL NOT NULL,
	current_lowest REAL,
	triggered INTEGER NOT NULL DEFAULT 0,
	triggered_at TEXT,
	source TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_alerts_pending
	ON price_alerts(part_number) WHERE triggered = 0;
`
