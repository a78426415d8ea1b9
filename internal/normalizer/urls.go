package normalizer

import (
	"net/url"
	"regexp"
	"strings"
)

var nonWebScheme = regexp.MustCompile(`(?i)^(mailto|javascript|data|tel|about|file):`)

// URLNormalizer turns the many URL shapes found on catalog pages into
// absolute http(s) URLs.
type URLNormalizer struct {
	origin        string
	trackingParam string
	sourceToken   string
	attribution   string
}

// NewURLNormalizer creates a normalizer resolving root-relative paths
// against baseURL's origin and rewriting trackingParam=sourceToken to
// trackingParam=attribution.
func NewURLNormalizer(baseURL, trackingParam, sourceToken, attribution string) *URLNormalizer {
	origin := strings.TrimRight(baseURL, "/")
	if u, err := url.Parse(baseURL); err == nil && u.Scheme != "" && u.Host != "" {
		origin = u.Scheme + "://" + u.Host
	}

	return &URLNormalizer{
		origin:        origin,
		trackingParam: trackingParam,
		sourceToken:   sourceToken,
		attribution:   attribution,
	}
}

// Normalize returns the absolute form of raw, or "" when raw is not a
// well-formed http(s) URL. Normalize(Normalize(x)) == Normalize(x).
func (n *URLNormalizer) Normalize(raw string) string {
	s := strings.TrimSpace(raw)

	switch {
	case s == "":
		return ""
	case nonWebScheme.MatchString(s):
		return ""
	case strings.HasPrefix(s, "//"):
		s = "https:" + s
	case strings.HasPrefix(s, "/"):
		s = n.origin + s
	case !strings.Contains(s, "://"):
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return ""
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}

	host := strings.ToLower(u.Hostname())
	if host == "" || (!strings.Contains(host, ".") && host != "localhost") || strings.ContainsAny(host, " <>\"") {
		return ""
	}

	u.Host = strings.ToLower(u.Host)
	u.RawQuery = n.rewriteQuery(u.RawQuery)

	return u.String()
}

// rewriteQuery swaps the tracking value while keeping parameter order.
func (n *URLNormalizer) rewriteQuery(rawQuery string) string {
	if rawQuery == "" || n.trackingParam == "" {
		return rawQuery
	}

	pairs := strings.Split(rawQuery, "&")
	for i, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key != n.trackingParam {
			continue
		}

		decoded, err := url.QueryUnescape(value)
		if err != nil || !strings.EqualFold(decoded, n.sourceToken) {
			continue
		}

		pairs[i] = key + "=" + url.QueryEscape(n.attribution)
	}

	return strings.Join(pairs, "&")
}
