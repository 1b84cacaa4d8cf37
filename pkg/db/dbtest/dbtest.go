// Package dbtest opens throwaway SQLite databases shaped like the Postgres schema.
package dbtest

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS plate_queries (
  id TEXT PRIMARY KEY,
  plate TEXT NOT NULL,
  preview TEXT NOT NULL,
  raw_response TEXT NOT NULL,
  cost_cents INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL,
  created_at DATETIME,
  expires_at DATETIME NOT NULL,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  plate_query_id TEXT NOT NULL,
  gateway_payment_id TEXT NOT NULL UNIQUE,
  gateway_customer_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  provider_cost_total_cents INTEGER NOT NULL DEFAULT 0,
  payment_status TEXT NOT NULL,
  paid_at DATETIME,
  public_access_token TEXT NOT NULL UNIQUE,
  pix_qr_code TEXT,
  pix_copy_paste TEXT,
  due_date DATE NOT NULL,
  customer_name TEXT NOT NULL,
  customer_email TEXT NOT NULL,
  customer_phone TEXT NOT NULL,
  customer_cpf TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS enrichments (
  id TEXT PRIMARY KEY,
  plate_query_id TEXT NOT NULL UNIQUE,
  fipe_raw TEXT,
  renainf_raw TEXT,
  fipe_cost_cents INTEGER NOT NULL DEFAULT 0,
  renainf_cost_cents INTEGER NOT NULL DEFAULT 0,
  fipe_error TEXT,
  renainf_error TEXT,
  completed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS customers (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  email TEXT,
  phone TEXT,
  cpf TEXT,
  plate TEXT,
  amount_cents INTEGER NOT NULL DEFAULT 0,
  order_id TEXT,
  gateway_payment_id TEXT UNIQUE,
  gateway_customer_id TEXT,
  utm_source TEXT,
  utm_medium TEXT,
  utm_campaign TEXT,
  utm_term TEXT,
  utm_content TEXT,
  referrer TEXT,
  landing_page TEXT,
  source TEXT NOT NULL,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS vehicle_reports (
  id TEXT PRIMARY KEY,
  plate TEXT NOT NULL,
  status TEXT NOT NULL,
  protocol TEXT,
  report_data TEXT,
  error_message TEXT,
  customer_name TEXT NOT NULL,
  customer_email TEXT NOT NULL,
  customer_phone TEXT NOT NULL,
  customer_cpf TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME,
  completed_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  vehicle_report_id TEXT NOT NULL,
  gateway_payment_id TEXT NOT NULL UNIQUE,
  gateway_customer_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  status TEXT NOT NULL,
  pix_qr_code TEXT,
  pix_copy_paste TEXT,
  due_date DATE NOT NULL,
  paid_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  UNIQUE (event_type, aggregate_id)
);`, `
CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL UNIQUE,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`}

// Open returns an isolated in-memory database with every table created.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := "file:" + name + "_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}
