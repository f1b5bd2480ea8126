// restore-seed loads demo master data and the built-in policy table into DATABASE_URL.
// It is idempotent: existing rows are updated in place.
//
// Usage: go run ./cmd/restore-seed
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	webAdapter "inventory-ledger/internal/adapters/web"
	"inventory-ledger/internal/config"
	"inventory-ledger/internal/core"
	"inventory-ledger/internal/db"
	"inventory-ledger/internal/logger"
)

const seedSQL = `
INSERT INTO companies (code, name) VALUES ('DEMO', 'Demo Trading Co')
ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name;

INSERT INTO warehouses (company_id, code, name)
SELECT c.id, w.code, w.name
FROM companies c
CROSS JOIN (VALUES ('MAIN', 'Main Warehouse'), ('STORE', 'Retail Store')) AS w(code, name)
WHERE c.code = 'DEMO'
ON CONFLICT (company_id, code) DO UPDATE SET name = EXCLUDED.name;

INSERT INTO locations (warehouse_id, code, name)
SELECT w.id, l.code, l.name
FROM warehouses w
JOIN companies c ON c.id = w.company_id AND c.code = 'DEMO'
CROSS JOIN (VALUES ('A-01', 'Aisle A bin 1'), ('B-01', 'Aisle B bin 1')) AS l(code, name)
ON CONFLICT (warehouse_id, code) DO NOTHING;

INSERT INTO uoms (code, name) VALUES ('EA', 'Each'), ('BOX', 'Box of 12'), ('KG', 'Kilogram')
ON CONFLICT (code) DO NOTHING;

INSERT INTO item_categories (company_id, code, name)
SELECT c.id, cat.code, cat.name
FROM companies c
CROSS JOIN (VALUES ('HW', 'Hardware'), ('FOOD', 'Perishables'), ('SVC', 'Services')) AS cat(code, name)
WHERE c.code = 'DEMO'
ON CONFLICT (company_id, code) DO UPDATE SET name = EXCLUDED.name;

INSERT INTO items (company_id, code, name, category_id, item_type, tracking_type, base_uom_id)
SELECT c.id, i.code, i.name, cat.id, i.item_type, i.tracking_type, u.id
FROM companies c
CROSS JOIN (VALUES
    ('WIDGET',  'Steel widget',        'HW',   'STOCK',   'NONE',       'EA'),
    ('BOLT-M8', 'M8 bolt',             'HW',   'STOCK',   'NONE',       'EA'),
    ('FLOUR',   'Wheat flour',         'FOOD', 'STOCK',   'LOT_EXPIRY', 'KG'),
    ('SCANNER', 'Barcode scanner',     'HW',   'STOCK',   'SERIAL',     'EA'),
    ('INSTALL', 'Installation service','SVC',  'SERVICE', 'NONE',       'EA')
) AS i(code, name, cat_code, item_type, tracking_type, uom_code)
JOIN item_categories cat ON cat.company_id = c.id AND cat.code = i.cat_code
JOIN uoms u ON u.code = i.uom_code
WHERE c.code = 'DEMO'
ON CONFLICT (company_id, code) DO UPDATE
  SET name = EXCLUDED.name,
      category_id = EXCLUDED.category_id,
      item_type = EXCLUDED.item_type,
      tracking_type = EXCLUDED.tracking_type;

INSERT INTO item_uom_conversions (item_id, from_uom_id, factor)
SELECT i.id, u.id, 12
FROM items i
JOIN companies c ON c.id = i.company_id AND c.code = 'DEMO'
JOIN uoms u ON u.code = 'BOX'
WHERE i.code IN ('WIDGET', 'BOLT-M8')
ON CONFLICT (item_id, from_uom_id) DO UPDATE SET factor = EXCLUDED.factor;

INSERT INTO lots (item_id, lot_no, expiry_date)
SELECT i.id, 'FL-2026-01', DATE '2026-12-31'
FROM items i
JOIN companies c ON c.id = i.company_id AND c.code = 'DEMO'
WHERE i.code = 'FLOUR'
ON CONFLICT (item_id, lot_no) DO NOTHING;
`

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
		panic(err)
	}
	log := logger.WithComponent("seed")

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect")
	}
	defer pool.Close()

	log.Info().Msg("restoring master data")
	if err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, seedSQL)
		return err
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to restore master data")
	}

	log.Info().Msg("restoring built-in policies")
	store := db.NewStore(pool)
	err = store.InTx(ctx, func(tx core.Tx) error {
		for _, name := range core.DefaultPolicyNames() {
			p := &core.Policy{Scope: core.ScopeGlobal, Name: name, Value: core.DefaultPolicyValue(name)}
			if err := tx.UpsertPolicy(ctx, p); err != nil {
				return err
			}
			log.Debug().Str("policy", name).Bool("value", p.Value).Msg("policy restored")
		}
		return nil
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to restore policies")
	}

	var companyID int
	if err := pool.QueryRow(ctx, "SELECT id FROM companies WHERE code = 'DEMO'").Scan(&companyID); err != nil {
		log.Fatal().Err(err).Msg("failed to read demo company")
	}

	if cfg.JWTSecret != "" {
		token, err := webAdapter.SignToken(cfg.JWTSecret, webAdapter.Claims{
			UserID:    cfg.DefaultActorID,
			CompanyID: companyID,
			Role:      "ADMIN",
		}, 24*time.Hour)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to sign development token")
		}
		fmt.Printf("Development bearer token (24h):\n%s\n", token)
	}

	log.Info().Int("company_id", companyID).Msg("seed data restored")
}
