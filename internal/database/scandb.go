package database

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nao1215/brokenlink/internal/model"
	"github.com/nao1215/brokenlink/internal/report"
	_ "modernc.org/sqlite" // SQLite driver
)

// FileName is the archive file name inside the data directory.
const FileName = "brokenlink.db"

// timeLayout sorts lexically in chronological order for UTC times.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrScanNotFound is returned when no archived scan has the requested ID.
var ErrScanNotFound = errors.New("scan not found in archive")

// ScanDB stores finished scans in SQLite.
type ScanDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures ScanDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the archive in dbDir.
func Open(dbDir string, opts Options) (*ScanDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	dsn := dbPath + "?mode=rwc"
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	} else {
		if _, err := os.Stat(dbPath); err != nil {
			return nil, fmt.Errorf("database not found at %s: %w", dbPath, err)
		}
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	sdb := &ScanDB{db: db, dbPath: dbPath}
	if err := sdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return sdb, nil
}

// Close closes the database connection.
func (s *ScanDB) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *ScanDB) Path() string {
	return s.dbPath
}

func (s *ScanDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scans (
		scan_id TEXT PRIMARY KEY,
		start_url TEXT NOT NULL,
		start_domain TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		total INTEGER NOT NULL,
		working INTEGER NOT NULL,
		broken INTEGER NOT NULL,
		errors INTEGER NOT NULL,
		pages INTEGER NOT NULL,
		cancelled INTEGER NOT NULL DEFAULT 0,
		report_json TEXT NOT NULL,
		archived_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_scans_start_url ON scans(start_url);
	CREATE INDEX IF NOT EXISTS idx_scans_start_time ON scans(start_time);
	`
	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// SaveScan stores a finished scan under id, replacing an earlier entry with
// the same id.
func (s *ScanDB) SaveScan(ctx context.Context, id string, result *model.ScanResult) error {
	var buf bytes.Buffer
	if _, err := report.NewJSONWriter(&buf).Write(result); err != nil {
		return fmt.Errorf("failed to serialize scan: %w", err)
	}

	query := `
	INSERT OR REPLACE INTO scans
		(scan_id, start_url, start_domain, start_time, end_time, total, working, broken, errors, pages, cancelled, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	st := result.Statistics
	_, err := s.db.ExecContext(ctx, query,
		id,
		result.Config.StartURL,
		result.StartDomain,
		result.StartTime.UTC().Format(timeLayout),
		result.EndTime.UTC().Format(timeLayout),
		st.TotalProcessed,
		st.WorkingCount,
		st.BrokenCount,
		st.ErrorCount,
		st.VisitedPagesCount,
		result.Cancelled,
		buf.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save scan %s: %w", id, err)
	}
	return nil
}

// GetScan returns the archived scan with the given id.
func (s *ScanDB) GetScan(ctx context.Context, id string) (*model.ScanResult, error) {
	var reportJSON string
	err := s.db.QueryRowContext(ctx, `SELECT report_json FROM scans WHERE scan_id = ?`, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrScanNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan %s: %w", id, err)
	}

	result, err := report.ParseJSON(bytes.NewReader([]byte(reportJSON)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse archived scan %s: %w", id, err)
	}
	return result, nil
}

// ScanMetadata summarizes an archived scan without loading its records.
type ScanMetadata struct {
	ID          string
	StartURL    string
	StartDomain string
	StartTime   time.Time
	EndTime     time.Time
	Statistics  model.Statistics
	Cancelled   bool
}

// ListScans returns archived scans, newest first. An empty startURL lists
// every site. A limit of zero or less means no limit.
func (s *ScanDB) ListScans(ctx context.Context, startURL string, limit int) ([]ScanMetadata, error) {
	query := `
	SELECT scan_id, start_url, start_domain, start_time, end_time, total, working, broken, errors, pages, cancelled
	FROM scans
	WHERE (? = '' OR start_url = ?)
	ORDER BY start_time DESC
	`
	args := []any{startURL, startURL}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	var out []ScanMetadata
	for rows.Next() {
		var (
			meta       ScanMetadata
			start, end string
		)
		if err := rows.Scan(&meta.ID, &meta.StartURL, &meta.StartDomain, &start, &end,
			&meta.Statistics.TotalProcessed, &meta.Statistics.WorkingCount, &meta.Statistics.BrokenCount,
			&meta.Statistics.ErrorCount, &meta.Statistics.VisitedPagesCount, &meta.Cancelled); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		meta.StartTime = parseTimestamp(start)
		meta.EndTime = parseTimestamp(end)
		out = append(out, meta)
	}
	return out, rows.Err()
}

// ListScannedSites returns the distinct start URLs in the archive.
func (s *ScanDB) ListScannedSites(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT start_url FROM scans ORDER BY start_url`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []string
	for rows.Next() {
		var site string
		if err := rows.Scan(&site); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// timestampFormats contains the timestamp formats that may be stored.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp returns the zero time when no format matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
