package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Lucy-dot-dot/ssh-honeypot/internal/pipeline"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

const defaultCacheTTLHours = 24

// AbuseIPDBResult is the structured snapshot decorating an Auth row.
// Field names and shapes are grounded on original_source/abuseipdb.rs's
// CheckResponseData.
type AbuseIPDBResult struct {
	IP                   string
	AbuseConfidenceScore *int
	CountryCode          *string
	Domain               *string
	Hostnames            []string
	IsTor                bool
	IsWhitelisted        *bool
	ISP                  *string
	TotalReports         int
	UsageType            *string
	Raw                  json.RawMessage
	Unknown              bool
}

type checkResponseData struct {
	AbuseConfidenceScore *int     `json:"abuseConfidenceScore"`
	CountryCode          *string  `json:"countryCode"`
	Domain               *string  `json:"domain"`
	Hostnames            []string `json:"hostnames"`
	IPAddress            string   `json:"ipAddress"`
	IsTor                bool     `json:"isTor"`
	IsWhitelisted        *bool    `json:"isWhitelisted"`
	ISP                  *string  `json:"isp"`
	TotalReports         int      `json:"totalReports"`
	UsageType            *string  `json:"usageType"`
}

type checkResponse struct {
	Data checkResponseData `json:"data"`
}

// AbuseIPDBClient implements the lookup protocol of spec.md §4.5 for the
// AbuseIPDB upstream.
type AbuseIPDBClient struct {
	apiKey string
	http   *retryablehttp.Client
	mem    *memCache[AbuseIPDBResult]
	sf     singleflight.Group
	rl     *rateLimiter
	pp     pipeline.Sink
	ttl    time.Duration
	log    zerolog.Logger
}

// NewAbuseIPDBClient builds a client. A nil return means the integration
// is disabled (no API key) — callers must check for nil before use, or use
// Lookup which tolerates a nil receiver.
func NewAbuseIPDBClient(apiKey string, pp pipeline.Sink, log zerolog.Logger) *AbuseIPDBClient {
	if apiKey == "" {
		return nil
	}
	hc := retryablehttp.NewClient()
	hc.RetryMax = 0 // spec's 429 policy supersedes the library's generic retry loop
	hc.Logger = nil
	return &AbuseIPDBClient{
		apiKey: apiKey,
		http:   hc,
		mem:    newMemCache[AbuseIPDBResult](),
		rl:     newRateLimiter(),
		pp:     pp,
		ttl:    defaultCacheTTLHours * time.Hour,
		log:    log,
	}
}

// Lookup resolves ip through memory, then the table cache, then the
// upstream API, collapsing concurrent callers for the same ip onto one
// in-flight request. A nil receiver (integration disabled) always returns
// an Unknown sentinel.
func (c *AbuseIPDBClient) Lookup(ctx context.Context, ip string) AbuseIPDBResult {
	if c == nil {
		return AbuseIPDBResult{IP: ip, Unknown: true}
	}
	if v, ok := c.mem.get(ip, c.ttl); ok {
		return v
	}
	v, _, _ := c.sf.Do(ip, func() (interface{}, error) {
		return c.resolve(ctx, ip), nil
	})
	return v.(AbuseIPDBResult)
}

func (c *AbuseIPDBClient) resolve(ctx context.Context, ip string) AbuseIPDBResult {
	if v, ok := c.mem.get(ip, c.ttl); ok {
		return v
	}

	if row, err := c.pp.LookupCache(ctx, pipeline.CacheAbuseIPDB, ip, int(c.ttl.Hours())); err == nil && row != nil && row.Found {
		result := AbuseIPDBResult{
			IP:                   ip,
			AbuseConfidenceScore: row.AbuseConfidenceScore,
			CountryCode:          row.CountryCode,
			IsTor:                row.IsTor,
			IsWhitelisted:        row.IsWhitelisted,
			TotalReports:         row.TotalReports,
			Raw:                  row.Raw,
		}
		c.mem.set(ip, result, row.Timestamp)
		return result
	} else if err != nil {
		c.log.Error().Err(err).Str("ip", ip).Msg("abuseipdb table cache lookup failed")
	}

	if c.rl.blocked(ip) {
		if stale, ok := c.mem.getStale(ip); ok {
			return stale
		}
		return AbuseIPDBResult{IP: ip, Unknown: true}
	}

	result, retryAfter, err := c.fetch(ctx, ip)
	if err != nil {
		c.log.Error().Err(err).Str("ip", ip).Msg("abuseipdb request failed")
		if stale, ok := c.mem.getStale(ip); ok {
			return stale
		}
		return AbuseIPDBResult{IP: ip, Unknown: true}
	}
	if retryAfter > 0 {
		c.rl.setBackoff(ip, retryAfter)
		if stale, ok := c.mem.getStale(ip); ok {
			return stale
		}
		return AbuseIPDBResult{IP: ip, Unknown: true}
	}

	now := time.Now()
	c.mem.set(ip, result, now)
	c.pp.SendCacheFill(pipeline.CacheFillEvent{
		Source:               pipeline.CacheAbuseIPDB,
		IP:                   ip,
		Timestamp:            now,
		Raw:                  result.Raw,
		AbuseConfidenceScore: result.AbuseConfidenceScore,
		CountryCode:          result.CountryCode,
		IsTor:                result.IsTor,
		IsWhitelisted:        result.IsWhitelisted,
		TotalReports:         result.TotalReports,
	})
	return result
}

// fetch performs exactly one HTTP round trip. A positive retryAfter means
// the caller was rate-limited and should back off that long (already
// bounded to 60s by the caller via rateLimiter.setBackoff).
func (c *AbuseIPDBClient) fetch(ctx context.Context, ip string) (AbuseIPDBResult, time.Duration, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, "https://api.abuseipdb.com/api/v2/check", nil)
	if err != nil {
		return AbuseIPDBResult{}, 0, err
	}
	q := req.URL.Query()
	q.Set("ipAddress", ip)
	q.Set("maxAgeInDays", "90")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return AbuseIPDBResult{}, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return AbuseIPDBResult{}, parseRetryAfter(resp.Header.Get("Retry-After"), resp.Header.Get("X-RateLimit-Reset")), nil
	}
	if resp.StatusCode != http.StatusOK {
		return AbuseIPDBResult{}, 0, fmt.Errorf("abuseipdb: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return AbuseIPDBResult{}, 0, fmt.Errorf("reading abuseipdb response: %w", err)
	}
	var parsed checkResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return AbuseIPDBResult{}, 0, fmt.Errorf("parsing abuseipdb response: %w", err)
	}

	d := parsed.Data
	return AbuseIPDBResult{
		IP:                   ip,
		AbuseConfidenceScore: d.AbuseConfidenceScore,
		CountryCode:          d.CountryCode,
		Domain:               d.Domain,
		Hostnames:            d.Hostnames,
		IsTor:                d.IsTor,
		IsWhitelisted:        d.IsWhitelisted,
		ISP:                  d.ISP,
		TotalReports:         d.TotalReports,
		UsageType:            d.UsageType,
		Raw:                  json.RawMessage(body),
	}, 0, nil
}

func parseRetryAfter(retryAfter, resetTimestamp string) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	if resetTimestamp != "" {
		if ts, err := strconv.ParseInt(resetTimestamp, 10, 64); err == nil {
			d := time.Until(time.Unix(ts, 0))
			if d > 0 {
				return d
			}
		}
	}
	return 60 * time.Second
}
