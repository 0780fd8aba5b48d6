package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/netip"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ubuygold/puzzlebox/internal/db"
	"github.com/ubuygold/puzzlebox/internal/model"
)

const (
	// APIKeyHeader carries the token on token-gated routes.
	APIKeyHeader = "X-API-Key"
	// APIKeyQuery is the query-string fallback for APIKeyHeader.
	APIKeyQuery = "api_key"

	localContextKey  = "auth.local"
	apiKeyContextKey = "auth.api_key"
)

// OriginMatcher classifies caller addresses as local or remote.
type OriginMatcher struct {
	addrs    []netip.Addr
	prefixes []netip.Prefix
	patterns []*regexp.Regexp
}

// NewOriginMatcher builds a matcher from the local_networks entries. Each
// entry is a literal address, a CIDR block or a regular expression matched
// from the start of the address. Entries that are none of these are skipped
// and reported through log.
func NewOriginMatcher(entries []string, log *slog.Logger) *OriginMatcher {
	m := &OriginMatcher{}
	for _, entry := range entries {
		if addr, err := netip.ParseAddr(entry); err == nil {
			m.addrs = append(m.addrs, addr.Unmap())
			continue
		}
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			m.prefixes = append(m.prefixes, prefix.Masked())
			continue
		}
		re, err := regexp.Compile(entry)
		if err != nil {
			if log != nil {
				log.Warn("Skipping invalid local network pattern", "pattern", entry, "error", err)
			}
			continue
		}
		m.patterns = append(m.patterns, re)
	}
	return m
}

// IsLocal reports whether ip matches any configured entry.
func (m *OriginMatcher) IsLocal(ip string) bool {
	if addr, err := netip.ParseAddr(ip); err == nil {
		addr = addr.Unmap()
		for _, a := range m.addrs {
			if a == addr {
				return true
			}
		}
		for _, p := range m.prefixes {
			if p.Contains(addr) {
				return true
			}
		}
	}
	for _, re := range m.patterns {
		if loc := re.FindStringIndex(ip); loc != nil && loc[0] == 0 {
			return true
		}
	}
	return false
}

// IsLocalRequest reports whether the direct peer of c is local. Forwarded
// headers are ignored.
func (m *OriginMatcher) IsLocalRequest(c *gin.Context) bool {
	if v, ok := c.Get(localContextKey); ok {
		return v.(bool)
	}
	local := m.IsLocal(c.RemoteIP())
	c.Set(localContextKey, local)
	return local
}

// LocalOnly rejects every caller that is not local with 403.
func LocalOnly(m *OriginMatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.IsLocalRequest(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// RequireAPIKey lets local callers through and requires remote callers to
// present an active API key. Missing, unknown and inactive keys all get the
// same 401 response.
func RequireAPIKey(m *OriginMatcher, store db.Service, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.IsLocalRequest(c) {
			c.Next()
			return
		}

		token := c.GetHeader(APIKeyHeader)
		if token == "" {
			token = c.Query(APIKeyQuery)
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		apiKey, err := store.FindActiveAPIKey(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, db.ErrNotFound) {
				log.Error("Failed to look up api key", "error", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "database error"})
				return
			}
			log.Warn("Rejected api key", "key_suffix", model.KeySuffix(token), "ip", c.RemoteIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		if err := store.TouchAPIKey(c.Request.Context(), apiKey.ID, time.Now().UTC()); err != nil {
			log.Error("Failed to update api key usage", "key_id", apiKey.ID, "error", err)
		}
		c.Set(apiKeyContextKey, apiKey)
		c.Next()
	}
}

// APIKeyFromContext returns the key that authorized the request, if any.
func APIKeyFromContext(c *gin.Context) (*model.APIKey, bool) {
	v, ok := c.Get(apiKeyContextKey)
	if !ok {
		return nil, false
	}
	key, ok := v.(*model.APIKey)
	return key, ok
}
