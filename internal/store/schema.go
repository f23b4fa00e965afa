package store

// schema is shared by SQLite and PostgreSQL, so it sticks to portable types:
// ids and timestamps are TEXT, timestamps in a fixed-width UTC layout that
// sorts chronologically. Nested values (order items, audit items) are JSON TEXT.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS suppliers (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		name TEXT NOT NULL,
		contact_person TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		lat DOUBLE PRECISION,
		lng DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price_cents BIGINT NOT NULL DEFAULT 0,
		stock INTEGER NOT NULL DEFAULT 0,
		reserved INTEGER NOT NULL DEFAULT 0,
		category_id TEXT REFERENCES categories(id),
		supplier_id TEXT REFERENCES suppliers(id),
		CHECK (price_cents >= 0),
		CHECK (stock >= 0),
		CHECK (reserved >= 0),
		CHECK (reserved <= stock)
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		deleted INTEGER NOT NULL DEFAULT 0,
		CHECK (role IN ('admin', 'customer'))
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		customer_id TEXT NOT NULL REFERENCES users(id),
		items TEXT NOT NULL,
		status TEXT NOT NULL,
		claim_id TEXT NOT NULL DEFAULT '',
		CHECK (status IN ('pending', 'completed', 'cancelled'))
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_audit (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		order_id TEXT NOT NULL,
		claim_id TEXT NOT NULL DEFAULT '',
		operation TEXT NOT NULL,
		target_status TEXT NOT NULL,
		applied TEXT NOT NULL,
		remaining TEXT NOT NULL,
		shortfall TEXT NOT NULL DEFAULT '[]',
		cause TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		resolution TEXT NOT NULL DEFAULT '',
		attempts INTEGER NOT NULL DEFAULT 0,
		lease_id TEXT NOT NULL DEFAULT '',
		CHECK (operation IN ('commit', 'release')),
		CHECK (state IN ('open', 'resolved', 'manual'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_category_id ON products(category_id)`,
	`CREATE INDEX IF NOT EXISTS idx_products_supplier_id ON products(supplier_id)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_customer_id ON orders(customer_id)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_audit_state ON ledger_audit(state)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_audit_order_id ON ledger_audit(order_id)`,
}
