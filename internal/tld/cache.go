// Package tld maintains a cached copy of the public suffix list and splits
// hostnames into their enclosing domains.
package tld

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/weppos/publicsuffix-go/publicsuffix"
	"go.uber.org/zap"
	"golang.org/x/net/idna"
)

const (
	// DefaultListURI is where the public suffix list is published.
	DefaultListURI = "https://publicsuffix.org/list/public_suffix_list.dat"

	// DefaultCacheDuration is how long a fetched list is considered fresh.
	DefaultCacheDuration = 7 * 24 * time.Hour

	fetchTimeout = 60 * time.Second
)

// ErrNoList indicates the suffix list could not be fetched and no previously
// cached copy exists to fall back on.
var ErrNoList = errors.New("no public suffix list available")

// Cache lazily fetches the public suffix list and refreshes it once the
// cached copy goes stale. A stale copy keeps serving lookups when a refresh
// fails.
type Cache struct {
	listURI       string
	cacheDuration time.Duration
	httpClient    *http.Client
	logger        *zap.Logger

	mu     sync.Mutex
	list   *publicsuffix.List
	expiry time.Time
}

// NewCache creates a suffix cache. Zero values for listURI and cacheDuration
// select the defaults.
func NewCache(listURI string, cacheDuration time.Duration, logger *zap.Logger) *Cache {
	if listURI == "" {
		listURI = DefaultListURI
	}

	if cacheDuration <= 0 {
		cacheDuration = DefaultCacheDuration
	}

	return &Cache{
		listURI:       listURI,
		cacheDuration: cacheDuration,
		httpClient:    &http.Client{Timeout: fetchTimeout},
		logger:        logger.Named("tld"),
	}
}

// Refresh fetches the suffix list if the cached copy is missing or stale.
func (c *Cache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	fresh := c.list != nil && time.Now().Before(c.expiry)
	c.mu.Unlock()

	if fresh {
		return nil
	}

	c.logger.Debug("Retrieving public suffix list", zap.String("uri", c.listURI))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.listURI, nil)
	if err != nil {
		return err
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch suffix list: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("suffix list fetch returned HTTP %d", res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}

	list, err := publicsuffix.NewListFromString(string(body), nil)
	if err != nil {
		return fmt.Errorf("failed to parse suffix list: %w", err)
	}

	c.mu.Lock()
	c.list = list
	c.expiry = time.Now().Add(c.cacheDuration)
	c.mu.Unlock()

	c.logger.Debug("Cached suffix list", zap.Int("rules", list.Size()))

	return nil
}

// SplitDomain splits a fully-qualified hostname into the hostname and each
// enclosing domain, parent first. For example "foo.bar.example.com" yields
// ["example.com", "bar.example.com", "foo.bar.example.com"]. Public suffixes
// themselves are omitted.
func (c *Cache) SplitDomain(ctx context.Context, domain string) ([]string, error) {
	if err := c.Refresh(ctx); err != nil {
		c.mu.Lock()
		stale := c.list != nil
		c.mu.Unlock()

		if !stale {
			return nil, errors.Join(ErrNoList, err)
		}

		c.logger.Warn("Failed to refresh suffix list, serving stale copy",
			zap.Error(err))
	}

	// The published list carries unicode entries, so decode any punycode
	// labels before matching. A hostname that fails to decode is matched
	// as given.
	if decoded, err := idna.ToUnicode(domain); err == nil {
		domain = decoded
	}

	c.mu.Lock()
	list := c.list
	c.mu.Unlock()

	parts := strings.Split(domain, ".")
	result := make([]string, 0, len(parts))

	for i := len(parts) - 1; i >= 0; i-- {
		suffix := strings.Join(parts[i:], ".")
		if !isPublicSuffix(list, suffix) {
			result = append(result, suffix)
		}
	}

	return result, nil
}

// isPublicSuffix reports whether name exactly matches a normal rule in the
// list. Wildcard and exception rules are deliberately not honoured; only
// literal entries count as suffixes here.
func isPublicSuffix(list *publicsuffix.List, name string) bool {
	rule := list.Find(name, &publicsuffix.FindOptions{DefaultRule: nil})

	return rule != nil && rule.Type == publicsuffix.NormalType && rule.Value == name
}
