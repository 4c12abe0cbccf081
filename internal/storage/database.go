package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"streamchat/internal/config"
	"streamchat/internal/models"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the configured database for the given driver.
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// one connection keeps in-memory databases shared and avoids writer contention
		db.SetMaxOpenConns(1)
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
			dbCfg.Username,
			dbCfg.Password,
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.DBName,
			dbCfg.Params,
		)
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS guitars (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL UNIQUE,
				description TEXT NOT NULL,
				shape TEXT NOT NULL,
				price REAL NOT NULL,
				image TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS idx_guitars_price ON guitars(price)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS guitars (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				name VARCHAR(255) NOT NULL UNIQUE,
				description TEXT NOT NULL,
				shape VARCHAR(100) NOT NULL,
				price DECIMAL(10,2) NOT NULL,
				image VARCHAR(512) NOT NULL DEFAULT '',
				PRIMARY KEY (id),
				INDEX idx_guitars_price (price)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}

// Seed fills an empty guitars table with the demo inventory.
func Seed(ctx context.Context, db *sql.DB) error {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM guitars`).Scan(&count); err != nil {
		return fmt.Errorf("count guitars: %w", err)
	}
	if count > 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	for _, g := range DefaultInventory {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO guitars (name, description, shape, price, image) VALUES (?, ?, ?, ?, ?)`,
			g.Name, g.Description, g.Shape, g.Price, g.Image,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("seed guitar %s: %w", g.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return nil
}

var DefaultInventory = []models.Guitar{
	{
		Name:        "Video Game Guitar",
		Description: "A bright solid body with chiptune-inspired inlays, made for players who grew up on 8-bit soundtracks.",
		Shape:       "solid body",
		Price:       699,
		Image:       "/example-guitar-video-games.jpg",
	},
	{
		Name:        "Superhero Strat",
		Description: "A double-cutaway classic with hot single coils and a finish worthy of a comic book cover.",
		Shape:       "double cutaway",
		Price:       899,
		Image:       "/example-guitar-superhero.jpg",
	},
	{
		Name:        "Motherboard Tele",
		Description: "A single-cutaway workhorse with a circuit-board pickguard and a snappy bridge pickup.",
		Shape:       "single cutaway",
		Price:       649,
		Image:       "/example-guitar-motherboard.jpg",
	},
	{
		Name:        "Traveling Dreadnought",
		Description: "A compact acoustic with a solid spruce top that fits in an overhead bin. Good for beginners.",
		Shape:       "acoustic dreadnought",
		Price:       349,
		Image:       "/example-guitar-traveling.jpg",
	},
	{
		Name:        "Flowerly Love Jumbo",
		Description: "A big-bodied acoustic with floral inlays and a warm, room-filling low end.",
		Shape:       "acoustic jumbo",
		Price:       1199,
		Image:       "/example-guitar-flowers.jpg",
	},
	{
		Name:        "Steamer Trunk Hollowbody",
		Description: "A semi-hollow with vintage hardware, suited to jazz, blues and rock rhythm work.",
		Shape:       "semi-hollow",
		Price:       1499,
		Image:       "/example-guitar-steamer-trunk.jpg",
	},
}
