package storage

import (
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"recscribe/internal/config"
)

// Open connects to the database configured under dbType and pings it.
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
		db, err = openSQLite(dbCfg)
	case "mysql":
		db, err = sql.Open("mysql", mysqlDSN(dbCfg))
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dbType, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func openSQLite(dbCfg config.DatabaseConfig) (*sql.DB, error) {
	if dbCfg.DSN == "" {
		return nil, fmt.Errorf("sqlite dsn must be provided")
	}
	db, err := sql.Open("sqlite3", dbCfg.DSN)
	if err != nil {
		return nil, err
	}
	// every new connection to :memory: is a fresh empty database
	if strings.Contains(dbCfg.DSN, ":memory:") || strings.Contains(dbCfg.DSN, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// mysqlDSN prefers an explicit DSN and otherwise assembles one from parts.
// DATETIME columns are scanned into time.Time.
func mysqlDSN(dbCfg config.DatabaseConfig) string {
	if dbCfg.DSN != "" {
		return dbCfg.DSN
	}
	mc := mysql.NewConfig()
	mc.User = dbCfg.Username
	mc.Passwd = dbCfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(dbCfg.Host, strconv.Itoa(dbCfg.Port))
	mc.DBName = dbCfg.DBName
	mc.ParseTime = true
	if dbCfg.Params != "" {
		if values, err := url.ParseQuery(dbCfg.Params); err == nil {
			mc.Params = make(map[string]string, len(values))
			for k := range values {
				mc.Params[k] = values.Get(k)
			}
		}
	}
	return mc.FormatDSN()
}

// schemas holds the tables for users, login tokens and the transcript edit log.
var schemas = map[string][]string{
	"sqlite3": {
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_tokens (
			token TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_tokens_user ON user_tokens(user_id)`,
		`CREATE TABLE IF NOT EXISTS edit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			transcript_key TEXT NOT NULL,
			segments INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_edit_log_key ON edit_log(transcript_key)`,
	},
	"mysql": {
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
			username VARCHAR(255) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS user_tokens (
			token VARCHAR(255) NOT NULL PRIMARY KEY,
			user_id BIGINT UNSIGNED NOT NULL,
			created_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL,
			INDEX idx_user_tokens_user (user_id),
			CONSTRAINT fk_user_tokens_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS edit_log (
			id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
			user_id BIGINT UNSIGNED NOT NULL,
			transcript_key VARCHAR(1024) NOT NULL,
			segments INT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (id),
			INDEX idx_edit_log_key (transcript_key(255)),
			CONSTRAINT fk_edit_log_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, driver string) error {
	name := strings.ToLower(driver)
	if name == "sqlite" {
		name = "sqlite3"
	}
	stmts, ok := schemas[name]
	if !ok {
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
