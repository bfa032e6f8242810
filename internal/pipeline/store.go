package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// store wraps the pool with the exact queries the pipeline actor issues.
// Grounded on the SQL in original_source/src/db.rs, translated from sqlx's
// query! macros to pgx's Exec/QueryRow.
type store struct {
	pool *pgxpool.Pool
}

func (s *store) insertAuth(ctx context.Context, ev *AuthEvent) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO auth (id, timestamp, ip, username, auth_type, password, public_key, successful, abuseipdb_data, ipapi_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, ev.Timestamp, ev.IP, ev.Username, string(ev.Type), ev.Password, ev.PublicKey, ev.Successful,
		nullableJSON(ev.AbuseIPDBData), nullableJSON(ev.IPAPIData))
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert auth: %w", err)
	}
	return id, nil
}

func (s *store) insertCommand(ctx context.Context, ev *CommandEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO commands (id, auth_id, timestamp, command) VALUES ($1, $2, $3, $4)`,
		uuid.New(), ev.AuthID, ev.Timestamp, ev.Command)
	if err != nil {
		return fmt.Errorf("insert command: %w", err)
	}
	return nil
}

func (s *store) insertSession(ctx context.Context, ev *SessionEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, auth_id, start_time, end_time, duration_seconds) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), ev.AuthID, ev.Start, ev.End, ev.Duration())
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *store) insertUploadedFile(ctx context.Context, ev *UploadedFileEvent) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO uploaded_files (id, auth_id, timestamp, filename, filepath, file_size, file_hash,
			claimed_mime_type, detected_mime_type, format_mismatch, file_entropy, truncated, binary_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		id, ev.AuthID, ev.Timestamp, ev.Filename, ev.Filepath, ev.FileSize, ev.FileHash,
		ev.ClaimedMIME, ev.DetectedMIME, ev.FormatMismatch, ev.Entropy, ev.Truncated, ev.Data)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert uploaded_file: %w", err)
	}
	return id, nil
}

func (s *store) insertConnTrack(ctx context.Context, ev *ConnTrackEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conn_track (id, timestamp, ip) VALUES ($1, $2, $3)`,
		uuid.New(), ev.Timestamp, ev.IP)
	if err != nil {
		return fmt.Errorf("insert conn_track: %w", err)
	}
	return nil
}

func (s *store) fillCache(ctx context.Context, ev *CacheFillEvent) error {
	switch ev.Source {
	case CacheAbuseIPDB:
		_, err := s.pool.Exec(ctx, `
			INSERT INTO abuse_ip_cache (ip, timestamp, abuse_confidence_score, country_code, is_tor, is_whitelisted, total_reports, response_data)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (ip) DO UPDATE SET
				timestamp = EXCLUDED.timestamp,
				abuse_confidence_score = EXCLUDED.abuse_confidence_score,
				country_code = EXCLUDED.country_code,
				is_tor = EXCLUDED.is_tor,
				is_whitelisted = EXCLUDED.is_whitelisted,
				total_reports = EXCLUDED.total_reports,
				response_data = EXCLUDED.response_data`,
			ev.IP, ev.Timestamp, ev.AbuseConfidenceScore, ev.CountryCode, ev.IsTor, ev.IsWhitelisted, ev.TotalReports, ev.Raw)
		if err != nil {
			return fmt.Errorf("fill abuse_ip_cache: %w", err)
		}
	case CacheIPAPI:
		_, err := s.pool.Exec(ctx, `
			INSERT INTO ipapi_cache (ip, timestamp, country, country_code, region, region_name, city, zip, lat, lon, timezone, isp, org, as_info, response_data)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (ip) DO UPDATE SET
				timestamp = EXCLUDED.timestamp,
				country = EXCLUDED.country,
				country_code = EXCLUDED.country_code,
				region = EXCLUDED.region,
				region_name = EXCLUDED.region_name,
				city = EXCLUDED.city,
				zip = EXCLUDED.zip,
				lat = EXCLUDED.lat,
				lon = EXCLUDED.lon,
				timezone = EXCLUDED.timezone,
				isp = EXCLUDED.isp,
				org = EXCLUDED.org,
				as_info = EXCLUDED.as_info,
				response_data = EXCLUDED.response_data`,
			ev.IP, ev.Timestamp, ev.Country, ev.CountryCode, ev.RegionCode, ev.RegionName, ev.City, ev.Zip,
			ev.Lat, ev.Lon, ev.Timezone, ev.ISP, ev.Org, ev.ASInfo, ev.Raw)
		if err != nil {
			return fmt.Errorf("fill ipapi_cache: %w", err)
		}
	}
	return nil
}

// cleanupExpired deletes cache rows older than ttlHours, mirroring
// original_source/src/db.rs's periodic sweep.
func (s *store) cleanupExpired(ctx context.Context, ttlHours int) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM abuse_ip_cache WHERE timestamp < NOW() - INTERVAL '1 hour' * $1`, ttlHours)
	if err != nil {
		return 0, fmt.Errorf("cleanup abuse_ip_cache: %w", err)
	}
	n := tag.RowsAffected()

	tag2, err := s.pool.Exec(ctx,
		`DELETE FROM ipapi_cache WHERE timestamp < NOW() - INTERVAL '1 hour' * $1`, ttlHours)
	if err != nil {
		return n, fmt.Errorf("cleanup ipapi_cache: %w", err)
	}
	return n + tag2.RowsAffected(), nil
}

// CacheLookupResult is the table-backed (second-tier) cache read IIC
// issues through the pipeline — the pool has a single owner (PP), so even
// reads for internal/intel's benefit are routed through the actor rather
// than opening a second connection.
type CacheLookupResult struct {
	Found     bool
	Timestamp time.Time
	Raw       json.RawMessage

	AbuseConfidenceScore *int
	CountryCode          *string
	IsTor                bool
	IsWhitelisted        *bool
	TotalReports         int

	Country    *string
	RegionCode *string
	RegionName *string
	City       *string
	Zip        *string
	Lat        *float64
	Lon        *float64
	Timezone   *string
	ISP        *string
	Org        *string
	ASInfo     *string
}

func (s *store) lookupCache(ctx context.Context, src CacheSource, ip string, ttlHours int) (*CacheLookupResult, error) {
	switch src {
	case CacheAbuseIPDB:
		row := s.pool.QueryRow(ctx, `
			SELECT timestamp, abuse_confidence_score, country_code, is_tor, is_whitelisted, total_reports, response_data
			FROM abuse_ip_cache
			WHERE ip = $1 AND timestamp > NOW() - INTERVAL '1 hour' * $2`, ip, ttlHours)
		var r CacheLookupResult
		err := row.Scan(&r.Timestamp, &r.AbuseConfidenceScore, &r.CountryCode, &r.IsTor, &r.IsWhitelisted, &r.TotalReports, &r.Raw)
		if err != nil {
			if isNoRows(err) {
				return &CacheLookupResult{Found: false}, nil
			}
			return nil, fmt.Errorf("lookup abuse_ip_cache: %w", err)
		}
		r.Found = true
		return &r, nil
	case CacheIPAPI:
		row := s.pool.QueryRow(ctx, `
			SELECT timestamp, country, country_code, region, region_name, city, zip, lat, lon, timezone, isp, org, as_info, response_data
			FROM ipapi_cache
			WHERE ip = $1 AND timestamp > NOW() - INTERVAL '1 hour' * $2`, ip, ttlHours)
		var r CacheLookupResult
		err := row.Scan(&r.Timestamp, &r.Country, &r.CountryCode, &r.RegionCode, &r.RegionName, &r.City, &r.Zip,
			&r.Lat, &r.Lon, &r.Timezone, &r.ISP, &r.Org, &r.ASInfo, &r.Raw)
		if err != nil {
			if isNoRows(err) {
				return &CacheLookupResult{Found: false}, nil
			}
			return nil, fmt.Errorf("lookup ipapi_cache: %w", err)
		}
		r.Found = true
		return &r, nil
	}
	return &CacheLookupResult{Found: false}, nil
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
