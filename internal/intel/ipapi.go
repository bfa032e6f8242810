package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Lucy-dot-dot/ssh-honeypot/internal/pipeline"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// IPAPIResult is the structured snapshot decorating an Auth row, grounded
// on original_source/ipapi.rs's IpApiResponse.
type IPAPIResult struct {
	IP         string
	Country    *string
	CountryCode *string
	Region     *string
	RegionName *string
	City       *string
	Zip        *string
	Lat        *float64
	Lon        *float64
	Timezone   *string
	ISP        *string
	Org        *string
	AS         *string
	Raw        json.RawMessage
	Unknown    bool
}

type ipapiResponse struct {
	Status      string   `json:"status"`
	Country     *string  `json:"country"`
	CountryCode *string  `json:"countryCode"`
	Region      *string  `json:"region"`
	RegionName  *string  `json:"regionName"`
	City        *string  `json:"city"`
	Zip         *string  `json:"zip"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
	Timezone    *string  `json:"timezone"`
	ISP         *string  `json:"isp"`
	Org         *string  `json:"org"`
	AS          *string  `json:"as"`
}

// IPAPIClient implements the lookup protocol of spec.md §4.5 for the
// ip-api.com upstream. IPAPI has no documented Retry-After header, so a
// 429 is treated as a flat 60s backoff (see original_source/ipapi.rs).
type IPAPIClient struct {
	http *retryablehttp.Client
	mem  *memCache[IPAPIResult]
	sf   singleflight.Group
	rl   *rateLimiter
	pp   pipeline.Sink
	ttl  time.Duration
	log  zerolog.Logger
}

// NewIPAPIClient builds a client, or returns nil if disabled is true.
func NewIPAPIClient(disabled bool, pp pipeline.Sink, log zerolog.Logger) *IPAPIClient {
	if disabled {
		return nil
	}
	hc := retryablehttp.NewClient()
	hc.RetryMax = 0
	hc.Logger = nil
	return &IPAPIClient{
		http: hc,
		mem:  newMemCache[IPAPIResult](),
		rl:   newRateLimiter(),
		pp:   pp,
		ttl:  defaultCacheTTLHours * time.Hour,
		log:  log,
	}
}

func (c *IPAPIClient) Lookup(ctx context.Context, ip string) IPAPIResult {
	if c == nil {
		return IPAPIResult{IP: ip, Unknown: true}
	}
	if v, ok := c.mem.get(ip, c.ttl); ok {
		return v
	}
	v, _, _ := c.sf.Do(ip, func() (interface{}, error) {
		return c.resolve(ctx, ip), nil
	})
	return v.(IPAPIResult)
}

func (c *IPAPIClient) resolve(ctx context.Context, ip string) IPAPIResult {
	if v, ok := c.mem.get(ip, c.ttl); ok {
		return v
	}

	if row, err := c.pp.LookupCache(ctx, pipeline.CacheIPAPI, ip, int(c.ttl.Hours())); err == nil && row != nil && row.Found {
		result := IPAPIResult{
			IP: ip, Country: row.Country, CountryCode: row.CountryCode, Region: row.RegionCode,
			RegionName: row.RegionName, City: row.City, Zip: row.Zip, Lat: row.Lat, Lon: row.Lon,
			Timezone: row.Timezone, ISP: row.ISP, Org: row.Org, AS: row.ASInfo, Raw: row.Raw,
		}
		c.mem.set(ip, result, row.Timestamp)
		return result
	} else if err != nil {
		c.log.Error().Err(err).Str("ip", ip).Msg("ipapi table cache lookup failed")
	}

	if c.rl.blocked(ip) {
		if stale, ok := c.mem.getStale(ip); ok {
			return stale
		}
		return IPAPIResult{IP: ip, Unknown: true}
	}

	result, rateLimited, err := c.fetch(ctx, ip)
	if err != nil {
		c.log.Error().Err(err).Str("ip", ip).Msg("ipapi request failed")
		if stale, ok := c.mem.getStale(ip); ok {
			return stale
		}
		return IPAPIResult{IP: ip, Unknown: true}
	}
	if rateLimited {
		c.rl.setBackoff(ip, 60*time.Second)
		if stale, ok := c.mem.getStale(ip); ok {
			return stale
		}
		return IPAPIResult{IP: ip, Unknown: true}
	}

	now := time.Now()
	c.mem.set(ip, result, now)
	c.pp.SendCacheFill(pipeline.CacheFillEvent{
		Source: pipeline.CacheIPAPI, IP: ip, Timestamp: now, Raw: result.Raw,
		Country: result.Country, CountryCode: result.CountryCode, RegionCode: result.Region, RegionName: result.RegionName,
		City: result.City, Zip: result.Zip, Lat: result.Lat, Lon: result.Lon,
		Timezone: result.Timezone, ISP: result.ISP, Org: result.Org, ASInfo: result.AS,
	})
	return result
}

func (c *IPAPIClient) fetch(ctx context.Context, ip string) (IPAPIResult, bool, error) {
	// Plain HTTP by design — ip-api.com's free tier does not offer TLS.
	url := fmt.Sprintf("http://ip-api.com/json/%s", ip)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return IPAPIResult{}, false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return IPAPIResult{}, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return IPAPIResult{}, true, nil
	}
	if resp.StatusCode != http.StatusOK {
		return IPAPIResult{}, false, fmt.Errorf("ipapi: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return IPAPIResult{}, false, fmt.Errorf("reading ipapi response: %w", err)
	}
	var parsed ipapiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return IPAPIResult{}, false, fmt.Errorf("parsing ipapi response: %w", err)
	}
	if parsed.Status == "fail" {
		return IPAPIResult{}, false, fmt.Errorf("ipapi: lookup failed for %s", ip)
	}

	return IPAPIResult{
		IP: ip, Country: parsed.Country, CountryCode: parsed.CountryCode, Region: parsed.Region,
		RegionName: parsed.RegionName, City: parsed.City, Zip: parsed.Zip, Lat: parsed.Lat, Lon: parsed.Lon,
		Timezone: parsed.Timezone, ISP: parsed.ISP, Org: parsed.Org, AS: parsed.AS, Raw: json.RawMessage(body),
	}, false, nil
}
