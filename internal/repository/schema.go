package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrate creates the settlement tables when they do not exist yet.
// The users, items, disputes and cart_items tables are owned by the profile and catalog
// services; they are created here only so a fresh database is usable in development.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id                TEXT PRIMARY KEY,
	email             TEXT NOT NULL UNIQUE,
	name              TEXT NOT NULL DEFAULT '',
	email_verified    BOOLEAN NOT NULL DEFAULT FALSE,
	banned            BOOLEAN NOT NULL DEFAULT FALSE,
	lifetime_earnings NUMERIC(18,2) NOT NULL DEFAULT 0,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS items (
	id             TEXT PRIMARY KEY,
	seller_id      TEXT NOT NULL REFERENCES users(id),
	title          TEXT NOT NULL,
	price          NUMERIC(18,2) NOT NULL,
	currency       TEXT NOT NULL DEFAULT 'ETB',
	status         TEXT NOT NULL DEFAULT 'PENDING',
	payout_account TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS items_seller_idx ON items (seller_id);

CREATE TABLE IF NOT EXISTS orders (
	id             TEXT PRIMARY KEY,
	buyer_id       TEXT NOT NULL DEFAULT '',
	buyer_email    TEXT NOT NULL DEFAULT '',
	total_amount   NUMERIC(18,2) NOT NULL,
	currency       TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'PENDING',
	provider       TEXT NOT NULL,
	reference      TEXT NOT NULL UNIQUE,
	shipping_info  JSONB,
	payment_method TEXT NOT NULL DEFAULT '',
	cancel_reason  TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	paid_at        TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS orders_buyer_idx ON orders (buyer_id, created_at DESC);
CREATE INDEX IF NOT EXISTS orders_pending_idx ON orders (created_at) WHERE status = 'PENDING';

CREATE TABLE IF NOT EXISTS order_items (
	order_id  TEXT NOT NULL REFERENCES orders(id),
	item_id   TEXT NOT NULL REFERENCES items(id),
	seller_id TEXT NOT NULL,
	title     TEXT NOT NULL DEFAULT '',
	quantity  INT NOT NULL DEFAULT 1,
	price     NUMERIC(18,2) NOT NULL,
	PRIMARY KEY (order_id, item_id)
);
CREATE INDEX IF NOT EXISTS order_items_item_idx ON order_items (item_id);

CREATE TABLE IF NOT EXISTS transactions (
	id         TEXT PRIMARY KEY,
	order_id   TEXT NOT NULL UNIQUE REFERENCES orders(id),
	amount     NUMERIC(18,2) NOT NULL,
	currency   TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'INITIATED',
	provider   TEXT NOT NULL,
	reference  TEXT NOT NULL,
	metadata   JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS seller_payments (
	id         TEXT PRIMARY KEY,
	order_id   TEXT NOT NULL REFERENCES orders(id),
	seller_id  TEXT NOT NULL REFERENCES users(id),
	amount     NUMERIC(18,2) NOT NULL,
	currency   TEXT NOT NULL,
	kind       TEXT NOT NULL DEFAULT 'SELLER_PAYMENT',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (order_id, seller_id)
);

CREATE TABLE IF NOT EXISTS platform_earnings (
	id              TEXT PRIMARY KEY,
	order_id        TEXT NOT NULL UNIQUE REFERENCES orders(id),
	amount          NUMERIC(18,2) NOT NULL,
	commission_rate NUMERIC(6,4) NOT NULL,
	currency        TEXT NOT NULL,
	order_snapshot  JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS withdrawals (
	id           TEXT PRIMARY KEY,
	seller_id    TEXT NOT NULL REFERENCES users(id),
	channel      TEXT NOT NULL,
	account      TEXT NOT NULL,
	account_name TEXT NOT NULL DEFAULT '',
	bank_code    TEXT NOT NULL DEFAULT '',
	amount       NUMERIC(18,2) NOT NULL,
	currency     TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'INITIATED',
	metadata     JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS withdrawals_seller_idx ON withdrawals (seller_id, status);

CREATE TABLE IF NOT EXISTS disputes (
	id         TEXT PRIMARY KEY,
	seller_id  TEXT NOT NULL REFERENCES users(id),
	order_id   TEXT,
	status     TEXT NOT NULL DEFAULT 'OPEN',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS cart_items (
	user_id  TEXT NOT NULL,
	item_id  TEXT NOT NULL,
	added_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, item_id)
);

CREATE TABLE IF NOT EXISTS platform_settings (
	id                      INT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	commission_rate         NUMERIC(6,4) NOT NULL,
	min_withdrawal          NUMERIC(18,2) NOT NULL,
	max_withdrawal          NUMERIC(18,2) NOT NULL,
	order_expire_seconds    BIGINT NOT NULL,
	order_autocancel_seconds BIGINT NOT NULL,
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
