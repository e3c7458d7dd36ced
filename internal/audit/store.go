package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Store persists anonymization audit entries to PostgreSQL. Entries record
// request metadata and per-type detection counts, never raw payload text.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Config contains database configuration
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// Entry is a single audit record
type Entry struct {
	ID           int64          `db:"id" json:"id"`
	RequestID    string         `db:"request_id" json:"request_id"`
	ClientIP     string         `db:"client_ip" json:"client_ip"`
	Endpoint     string         `db:"endpoint" json:"endpoint"`
	StatusCode   int            `db:"status_code" json:"status_code"`
	ElapsedMS    float64        `db:"elapsed_ms" json:"elapsed_ms"`
	PayloadBytes int            `db:"payload_bytes" json:"payload_bytes"`
	PIITotal     int            `db:"pii_total" json:"pii_total"`
	PIIByType    map[string]int `db:"-" json:"pii_by_type"`
	ErrorMsg     string         `db:"error_msg" json:"error_msg,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`

	// Raw JSONB column backing PIIByType
	PIIByTypeRaw []byte `db:"pii_by_type" json:"-"`
}

const schema = `
CREATE TABLE IF NOT EXISTS anonymization_audit (
	id            BIGSERIAL PRIMARY KEY,
	request_id    TEXT NOT NULL,
	client_ip     TEXT NOT NULL DEFAULT '',
	endpoint      TEXT NOT NULL DEFAULT '',
	status_code   INT NOT NULL DEFAULT 0,
	elapsed_ms    DOUBLE PRECISION NOT NULL DEFAULT 0,
	payload_bytes INT NOT NULL DEFAULT 0,
	pii_total     INT NOT NULL DEFAULT 0,
	pii_by_type   JSONB NOT NULL DEFAULT '{}',
	error_msg     TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_audit_created_at ON anonymization_audit (created_at);
CREATE INDEX IF NOT EXISTS idx_audit_request_id ON anonymization_audit (request_id);`

// NewStore creates a new audit store instance
func NewStore(config *Config, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	store := &Store{
		db:     db,
		logger: logger,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("Audit store initialized successfully",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return store, nil
}

// initialize checks the database connection and ensures the audit schema
func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}

	return nil
}

// Record inserts a new audit entry
func (s *Store) Record(ctx context.Context, entry *Entry) error {
	byType, err := json.Marshal(entry.PIIByType)
	if err != nil {
		return fmt.Errorf("failed to marshal pii counts: %w", err)
	}

	query := `
		INSERT INTO anonymization_audit
			(request_id, client_ip, endpoint, status_code, elapsed_ms, payload_bytes, pii_total, pii_by_type, error_msg)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	err = s.db.QueryRowContext(ctx, query,
		entry.RequestID,
		entry.ClientIP,
		entry.Endpoint,
		entry.StatusCode,
		entry.ElapsedMS,
		entry.PayloadBytes,
		entry.PIITotal,
		byType,
		entry.ErrorMsg,
	).Scan(&entry.ID, &entry.CreatedAt)

	if err != nil {
		s.logger.Error("Failed to insert audit entry",
			zap.Error(err),
			zap.String("request_id", entry.RequestID))
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	s.logger.Debug("Audit entry recorded",
		zap.Int64("id", entry.ID),
		zap.String("request_id", entry.RequestID),
		zap.Int("pii_total", entry.PIITotal))

	return nil
}

// List returns audit entries newer than since, most recent first
func (s *Store) List(ctx context.Context, since time.Time, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT id, request_id, client_ip, endpoint, status_code, elapsed_ms, payload_bytes, pii_total, pii_by_type, error_msg, created_at
		FROM anonymization_audit
		WHERE created_at >= $1
		ORDER BY created_at DESC
		LIMIT $2`

	var entries []*Entry
	if err := s.db.SelectContext(ctx, &entries, query, since, limit); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}

	for _, e := range entries {
		if len(e.PIIByTypeRaw) > 0 {
			if err := json.Unmarshal(e.PIIByTypeRaw, &e.PIIByType); err != nil {
				s.logger.Warn("Failed to unmarshal pii counts",
					zap.Int64("id", e.ID), zap.Error(err))
			}
		}
	}

	return entries, nil
}

// Stats returns aggregate counts over the audit table
func (s *Store) Stats(ctx context.Context) (total int64, piiTotal int64, err error) {
	query := `SELECT COUNT(*), COALESCE(SUM(pii_total), 0) FROM anonymization_audit`
	if err := s.db.QueryRowContext(ctx, query).Scan(&total, &piiTotal); err != nil {
		return 0, 0, fmt.Errorf("failed to get audit stats: %w", err)
	}
	return total, piiTotal, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL masks credentials in the database URL for logging
func maskDatabaseURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
