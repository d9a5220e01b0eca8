package repository

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// openPostgres opens the pro blob store through lib/pq.
func openPostgres(cfg domain.RepositoryConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", postgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres database %s:%d: %w", cfg.PostgresHost, cfg.PostgresPort, err)
	}

	return db, nil
}

// postgresDSN builds a key/value connection string, filling defaults for
// unset fields.
func postgresDSN(cfg domain.RepositoryConfig) string {
	host := cfg.PostgresHost
	if host == "" {
		host = "localhost"
	}
	port := cfg.PostgresPort
	if port == 0 {
		port = 5432
	}
	user := cfg.PostgresUser
	if user == "" {
		user = "kestrel"
	}
	dbname := cfg.PostgresDB
	if dbname == "" {
		dbname = "kestrel"
	}
	sslmode := cfg.PostgresSSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s application_name=kestrel connect_timeout=10",
		host, port, user, dbname, sslmode)
	if cfg.PostgresPassword != "" {
		dsn += " password='" + quoteDSN.Replace(cfg.PostgresPassword) + "'"
	}
	return dsn
}

var quoteDSN = strings.NewReplacer(`\`, `\\`, `'`, `\'`)
