package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
)

// ExportRow is the flattened Parquet representation of an audit entry
type ExportRow struct {
	ID           int64   `parquet:"id" json:"id"`
	RequestID    string  `parquet:"request_id" json:"request_id"`
	ClientIP     string  `parquet:"client_ip" json:"client_ip"`
	Endpoint     string  `parquet:"endpoint" json:"endpoint"`
	StatusCode   int32   `parquet:"status_code" json:"status_code"`
	ElapsedMS    float64 `parquet:"elapsed_ms" json:"elapsed_ms"`
	PayloadBytes int32   `parquet:"payload_bytes" json:"payload_bytes"`
	PIITotal     int32   `parquet:"pii_total" json:"pii_total"`
	PIIByType    string  `parquet:"pii_by_type" json:"pii_by_type"`
	ErrorMsg     string  `parquet:"error_msg" json:"error_msg"`
	CreatedAt    int64   `parquet:"created_at_unix_ms" json:"created_at_unix_ms"`
}

// ExportResult summarizes an export run
type ExportResult struct {
	Rows     int           `json:"rows"`
	Path     string        `json:"path"`
	Duration time.Duration `json:"duration"`
}

// Exporter writes audit entries to Parquet files for offline analysis
type Exporter struct {
	store  *Store
	logger *zap.Logger
}

// NewExporter creates a new audit exporter
func NewExporter(store *Store, logger *zap.Logger) *Exporter {
	return &Exporter{store: store, logger: logger}
}

// Export writes entries newer than since to a Parquet file at path
func (e *Exporter) Export(ctx context.Context, path string, since time.Time, limit int) (*ExportResult, error) {
	start := time.Now()

	entries, err := e.store.List(ctx, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit entries: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	writer := parquet.NewGenericWriter[ExportRow](file)

	rows := make([]ExportRow, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, toExportRow(entry))
	}

	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
			return nil, fmt.Errorf("failed to write Parquet rows: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize Parquet file: %w", err)
	}

	result := &ExportResult{
		Rows:     len(rows),
		Path:     path,
		Duration: time.Since(start),
	}

	e.logger.Info("Audit export completed",
		zap.Int("rows", result.Rows),
		zap.String("path", result.Path),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// toExportRow flattens an entry for columnar storage
func toExportRow(entry *Entry) ExportRow {
	byType, err := json.Marshal(entry.PIIByType)
	if err != nil {
		byType = []byte("{}")
	}

	return ExportRow{
		ID:           entry.ID,
		RequestID:    entry.RequestID,
		ClientIP:     entry.ClientIP,
		Endpoint:     entry.Endpoint,
		StatusCode:   int32(entry.StatusCode),
		ElapsedMS:    entry.ElapsedMS,
		PayloadBytes: int32(entry.PayloadBytes),
		PIITotal:     int32(entry.PIITotal),
		PIIByType:    string(byType),
		ErrorMsg:     entry.ErrorMsg,
		CreatedAt:    entry.CreatedAt.UnixMilli(),
	}
}
