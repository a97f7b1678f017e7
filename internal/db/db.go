package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// OfflineAfter is how long an agent may go without a heartbeat before it is
// reported offline.
const OfflineAfter = time.Minute

type DB struct {
	SQL  *sql.DB
	Path string
}

type Agent struct {
	ID             int64          `json:"id"`
	AgentID        string         `json:"agent_id"`
	Name           string         `json:"name"`
	IP             string         `json:"ip"`
	Status         string         `json:"status"`
	Paused         bool           `json:"paused"`
	Ticks          uint64         `json:"ticks"`
	RootStatus     string         `json:"root_status"`
	TickIntervalMS int64          `json:"tick_interval_ms"`
	Notes          string         `json:"notes"`
	LastSeen       time.Time      `json:"last_seen"`
	LastSeenAgo    string         `json:"last_seen_ago,omitempty"`
	LastScenario   *ScenarioRef   `json:"last_scenario,omitempty"`
	InstallConfig  *InstallConfig `json:"install_config,omitempty"`
}

// AgentStatus is the part of a heartbeat persisted on the agent row.
type AgentStatus struct {
	AgentID        string
	Name           string
	IP             string
	Status         string
	Paused         bool
	Ticks          uint64
	RootStatus     string
	TickIntervalMS int64
}

type InstallConfig struct {
	Address string `json:"address"`
	User    string `json:"user"`
	SSHKey  string `json:"ssh_key"`
}

type ScenarioRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Scenario struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ConfigYAML  string `json:"config_yaml"`
}

// Snapshot is the latest tree and workload stats reported by an agent.
type Snapshot struct {
	AgentID    string          `json:"agent_id"`
	TreeJSON   json.RawMessage `json:"tree"`
	StatsJSON  json.RawMessage `json:"stats"`
	CapturedAt time.Time       `json:"captured_at"`
}

type Job struct {
	ID          int64     `json:"id"`
	CommandID   string    `json:"command_id"`
	Type        string    `json:"type"`
	TargetAgent string    `json:"target_agent"`
	PayloadJSON string    `json:"payload_json"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const defaultInstallConfigKey = "default_install_config"

func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, err
	}
	// modernc SQLite creates new connections per goroutine unless capped; keep it at 1
	// to avoid unexpected SQLITE_BUSY errors since we don't need parallel writers yet.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	return &DB{SQL: db, Path: path}, nil
}

func (d *DB) Close() error {
	return d.SQL.Close()
}

func migrate(db *sql.DB) error {
	ctx := context.Background()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			ip TEXT,
			last_seen TIMESTAMP,
			status TEXT,
			paused INTEGER DEFAULT 0,
			ticks INTEGER DEFAULT 0,
			root_status TEXT,
			tick_interval_ms INTEGER DEFAULT 0,
			notes TEXT,
			last_scenario_id INTEGER,
			ssh_address TEXT,
			ssh_user TEXT,
			ssh_key TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			agent_id TEXT PRIMARY KEY,
			tree_json TEXT,
			stats_json TEXT,
			captured_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS scenarios (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			description TEXT,
			config_yaml TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			command_id TEXT UNIQUE,
			type TEXT NOT NULL,
			target_agent TEXT,
			payload_json TEXT,
			status TEXT,
			error TEXT,
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT
		);`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			log.Printf("migration failed: %v", err)
			return err
		}
	}
	return nil
}

func buildInstallConfig(addr, user, key sql.NullString) *InstallConfig {
	cfg := InstallConfig{Address: addr.String, User: user.String, SSHKey: key.String}
	if cfg.Address == "" && cfg.User == "" && cfg.SSHKey == "" {
		return nil
	}
	return &cfg
}

func (d *DB) GetDefaultInstallConfig(ctx context.Context) (*InstallConfig, error) {
	var val sql.NullString
	err := d.SQL.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, defaultInstallConfigKey).Scan(&val)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if !val.Valid || strings.TrimSpace(val.String) == "" {
		return nil, nil
	}
	var cfg InstallConfig
	if err := json.Unmarshal([]byte(val.String), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (d *DB) SaveDefaultInstallConfig(ctx context.Context, cfg InstallConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = d.SQL.ExecContext(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, defaultInstallConfigKey, string(data))
	return err
}
