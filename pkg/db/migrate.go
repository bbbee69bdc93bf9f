package db

import (
	"context"
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         BIGSERIAL PRIMARY KEY,
	email      TEXT NOT NULL UNIQUE,
	is_admin   BOOLEAN NOT NULL DEFAULT FALSE,
	balance    NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS categories (
	id   BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS products (
	id             BIGSERIAL PRIMARY KEY,
	name           TEXT NOT NULL,
	price          NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (price >= 0),
	original_price NUMERIC(12,2),
	category_id    BIGINT REFERENCES categories(id),
	status         TEXT NOT NULL DEFAULT 'active',
	download_url   TEXT,
	license_key    TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS coupons (
	id             BIGSERIAL PRIMARY KEY,
	code           TEXT NOT NULL UNIQUE,
	discount_type  TEXT NOT NULL,
	discount_value NUMERIC(12,2) NOT NULL CHECK (discount_value > 0),
	max_uses       INT CHECK (max_uses IS NULL OR max_uses > 0),
	used_count     INT NOT NULL DEFAULT 0 CHECK (used_count >= 0),
	expires_at     TIMESTAMPTZ,
	is_active      BOOLEAN NOT NULL DEFAULT TRUE,
	usable_in_cart BOOLEAN NOT NULL DEFAULT TRUE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS coupon_products (
	coupon_id  BIGINT NOT NULL REFERENCES coupons(id) ON DELETE CASCADE,
	product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	PRIMARY KEY (coupon_id, product_id)
);

CREATE TABLE IF NOT EXISTS bundles (
	id             BIGSERIAL PRIMARY KEY,
	name           TEXT NOT NULL,
	discount_type  TEXT NOT NULL,
	discount_value NUMERIC(12,2) NOT NULL CHECK (discount_value > 0),
	apply_to       TEXT NOT NULL,
	category_id    BIGINT REFERENCES categories(id),
	expires_at     TIMESTAMPTZ,
	is_active      BOOLEAN NOT NULL DEFAULT TRUE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS bundle_products (
	bundle_id  BIGINT NOT NULL REFERENCES bundles(id) ON DELETE CASCADE,
	product_id BIGINT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
	PRIMARY KEY (bundle_id, product_id)
);

CREATE TABLE IF NOT EXISTS orders (
	id              BIGSERIAL PRIMARY KEY,
	order_number    TEXT NOT NULL UNIQUE,
	user_id         BIGINT NOT NULL REFERENCES users(id),
	product_id      BIGINT NOT NULL REFERENCES products(id),
	amount          NUMERIC(12,2) NOT NULL CHECK (amount >= 0),
	original_amount NUMERIC(12,2) NOT NULL CHECK (original_amount >= 0),
	discount_amount NUMERIC(12,2) NOT NULL CHECK (discount_amount >= 0),
	payment_method  TEXT NOT NULL,
	status          TEXT NOT NULL,
	coupon_id       BIGINT REFERENCES coupons(id) ON DELETE SET NULL,
	bundle_id       BIGINT REFERENCES bundles(id) ON DELETE SET NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at    TIMESTAMPTZ,
	CHECK (amount + discount_amount = original_amount)
);

CREATE INDEX IF NOT EXISTS orders_user_id_idx ON orders (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS licenses (
	id           BIGSERIAL PRIMARY KEY,
	order_id     BIGINT NOT NULL UNIQUE REFERENCES orders(id),
	download_url TEXT,
	license_key  TEXT,
	status       TEXT NOT NULL DEFAULT 'active',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate создаёт таблицы, если их ещё нет.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
