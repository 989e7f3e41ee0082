package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaProducts = `
CREATE TABLE IF NOT EXISTS products (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    brand TEXT NOT NULL,
    name TEXT NOT NULL,
    model TEXT,
    category TEXT,
    sku TEXT,
    gtin TEXT,
    msrp REAL NOT NULL DEFAULT 0,
    serial_prefix TEXT,
    image TEXT,
    notes TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_products_tenant ON products(tenant_id);
CREATE INDEX IF NOT EXISTS idx_products_brand ON products(tenant_id, brand);
`

const schemaChecks = `
CREATE TABLE IF NOT EXISTS checks (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    serial_check TEXT,
    image_match TEXT,
    image_verdict TEXT,
    combined_score INTEGER NOT NULL,
    combined_label TEXT NOT NULL,
    allowlisted INTEGER,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checks_tenant ON checks(tenant_id);
CREATE INDEX IF NOT EXISTS idx_checks_timestamp ON checks(tenant_id, timestamp);
`

const schemaBatches = `
CREATE TABLE IF NOT EXISTS batches (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    records INTEGER NOT NULL,
    anomalies INTEGER NOT NULL,
    contamination REAL NOT NULL,
    seed INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_batches_tenant ON batches(tenant_id);
CREATE INDEX IF NOT EXISTS idx_batches_created ON batches(tenant_id, created_at);
`

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    batch_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    invoice_id TEXT NOT NULL,
    invoice_date TEXT,
    supplier TEXT NOT NULL,
    item TEXT,
    quantity REAL,
    unit_price REAL,
    lead_time_days REAL,
    amount REAL,
    anomaly_score REAL NOT NULL,
    is_anomaly INTEGER NOT NULL,
    reason TEXT,
    rule_flags TEXT,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (batch_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_transactions_tenant ON transactions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_transactions_supplier ON transactions(tenant_id, supplier, created_at);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_tenant ON rule_configs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(tenant_id, enabled);
`

const schemaAuditEvents = `
CREATE TABLE IF NOT EXISTS audit_events (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    event TEXT NOT NULL,
    details TEXT,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_events_tenant ON audit_events(tenant_id);
CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(tenant_id, timestamp);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaProducts,
		schemaChecks,
		schemaBatches,
		schemaTransactions,
		schemaRuleConfigs,
		schemaAuditEvents,
	}
}
