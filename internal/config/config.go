package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/docmirror/internal/citation"
	"github.com/nao1215/docmirror/internal/fetch"
	"github.com/nao1215/docmirror/internal/render"
	"github.com/nao1215/docmirror/internal/report"
	"github.com/nao1215/docmirror/internal/urlscope"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "docmirror"

	// DefaultMaxPages bounds the fetches of one run. A resumed run continues
	// where the previous one stopped, so large sites are mirrored in batches.
	DefaultMaxPages = 200

	// DefaultMaxDepth is the link-following depth from the seeds.
	DefaultMaxDepth = 3

	// DefaultPerHostDelay is the minimum interval between requests to one host.
	DefaultPerHostDelay = 500 * time.Millisecond

	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 45 * time.Second

	// DefaultMaxRetries is the number of retries for 429, 5xx and network errors.
	DefaultMaxRetries = fetch.DefaultMaxRetries

	// DefaultBackoffBase is the first retry delay; later delays double.
	DefaultBackoffBase = fetch.DefaultBackoffBase

	// DefaultMaxRenderChars caps the text variants of non-HTML documents.
	DefaultMaxRenderChars = render.DefaultMaxChars

	// DefaultUserAgent identifies docmirror in HTTP requests.
	DefaultUserAgent = fetch.DefaultUserAgent

	// DefaultMaxBodySize limits the response body size read per request.
	DefaultMaxBodySize = fetch.DefaultMaxBodySize

	// DefaultReportFormat is the report printed after a run.
	DefaultReportFormat = report.FormatText
)

// Config holds all options of one docmirror invocation. It is populated
// from flags and the profile file and passed down explicitly.
type Config struct {
	// OutDir is the export root.
	OutDir string

	// Profile is the name of the profile applied to this run, if any.
	Profile string

	// Seeds are the crawl start URLs.
	Seeds []string

	// SeedHTML are browser-saved pages ingested before crawling.
	SeedHTML []string

	// SeedHTMLDir is a directory searched for browser-saved pages.
	SeedHTMLDir string

	// SeedURL is the page URL assumed for saved pages without a
	// "saved from" comment.
	SeedURL string

	// AllowHostSuffixes lists the hosts (and subdomains) that may be fetched.
	AllowHostSuffixes []string

	// FollowOffsite disables host checks.
	FollowOffsite bool

	// IgnorePatterns and FollowPatterns filter discovered links by path.
	IgnorePatterns []string
	FollowPatterns []string

	// MaxPages bounds fetches per run; 0 means no bound.
	MaxPages int

	// MaxDepth bounds link-following depth.
	MaxDepth int

	// PerHostDelay is the politeness interval between requests to one host.
	PerHostDelay time.Duration

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// MaxRetries and BackoffBase control retries of transient failures.
	MaxRetries  int
	BackoffBase time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	// MaxBodySize limits the bytes read per response; 0 uses the default.
	MaxBodySize int64

	// MaxRenderChars caps non-HTML text variants.
	MaxRenderChars int

	// RespectRobots enables robots.txt checks.
	RespectRobots bool

	// RefreshCache ignores cached responses.
	RefreshCache bool

	// Revalidate sends conditional requests for cached responses.
	Revalidate bool

	// Resume restores the persisted queue of a previous run.
	Resume bool

	// ProxyAddress is an optional SOCKS5 proxy in host:port form.
	ProxyAddress string

	// Cookie and Headers are sent with every request.
	Cookie  string
	Headers map[string]string

	// EndpointRule selects the URLs rendered as API endpoint responses.
	EndpointRule render.EndpointRule

	// CitationFormats lists the citation files written after a crawl.
	CitationFormats []citation.Format

	// ReportFormat is md, json or text.
	ReportFormat string

	// ReportFile receives the report instead of stdout when set.
	ReportFile string

	// MetricsFile receives a Prometheus textfile when set.
	MetricsFile string

	// LogFile receives a rotated copy of the log when set.
	LogFile string

	// Progress shows a progress bar on stderr.
	Progress bool

	// ValidateExport fails the run when the export references missing files.
	ValidateExport bool

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the explicit profile file path, if any.
	ConfigFilePath string

	// DBDir is the directory of the crawl history database.
	DBDir string

	// SaveToDB records runs in the history database.
	SaveToDB bool
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		MaxPages:       DefaultMaxPages,
		MaxDepth:       DefaultMaxDepth,
		PerHostDelay:   DefaultPerHostDelay,
		Timeout:        DefaultTimeout,
		MaxRetries:     DefaultMaxRetries,
		BackoffBase:    DefaultBackoffBase,
		UserAgent:      DefaultUserAgent,
		MaxBodySize:    DefaultMaxBodySize,
		MaxRenderChars: DefaultMaxRenderChars,
		RespectRobots:  true,
		Resume:         true,
		EndpointRule:   render.DefaultEndpointRule,
		ReportFormat:   DefaultReportFormat,
		DBDir:          XDGDataDir(),
		SaveToDB:       true,
	}
}

// XDGDataDir returns the XDG data directory for docmirror.
// On Linux: ~/.local/share/docmirror
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for docmirror.
// On Linux: ~/.config/docmirror
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Scope returns the URL scope described by the configuration.
func (c *Config) Scope() urlscope.Scope {
	return urlscope.Scope{
		AllowHostSuffixes: c.AllowHostSuffixes,
		FollowOffsite:     c.FollowOffsite,
		IgnorePatterns:    c.IgnorePatterns,
		FollowPatterns:    c.FollowPatterns,
	}
}

// AllowSeedHosts allows the hosts of the seed URLs when no host suffix was
// configured, so a plain "crawl --seed URL" stays on the seed's site.
func (c *Config) AllowSeedHosts() {
	if c.FollowOffsite || len(c.AllowHostSuffixes) > 0 {
		return
	}
	for _, seed := range c.Seeds {
		host := urlscope.Hostname(seed)
		if host != "" && !slices.Contains(c.AllowHostSuffixes, host) {
			c.AllowHostSuffixes = append(c.AllowHostSuffixes, host)
		}
	}
}

// ApplyProfile copies the non-zero settings of p into c.
// Flags are applied afterwards so they take precedence.
func (c *Config) ApplyProfile(name string, p Profile) {
	c.Profile = name
	if len(p.Seeds) > 0 {
		c.Seeds = slices.Clone(p.Seeds)
	}
	if p.SeedURL != "" {
		c.SeedURL = p.SeedURL
	}
	if len(p.AllowHostSuffixes) > 0 {
		c.AllowHostSuffixes = slices.Clone(p.AllowHostSuffixes)
	}
	if p.FollowOffsite != nil {
		c.FollowOffsite = *p.FollowOffsite
	}
	if p.RespectRobots != nil {
		c.RespectRobots = *p.RespectRobots
	}
	if p.MaxPages != nil {
		c.MaxPages = *p.MaxPages
	}
	if p.MaxDepth != nil {
		c.MaxDepth = *p.MaxDepth
	}
	if p.PerHostDelay != nil {
		c.PerHostDelay = *p.PerHostDelay
	}
	if p.UserAgent != "" {
		c.UserAgent = p.UserAgent
	}
	if p.Cookie != "" {
		c.Cookie = p.Cookie
	}
	if len(p.Headers) > 0 {
		if c.Headers == nil {
			c.Headers = make(map[string]string, len(p.Headers))
		}
		for k, v := range p.Headers {
			c.Headers[k] = v
		}
	}
	if len(p.IgnorePatterns) > 0 {
		c.IgnorePatterns = slices.Clone(p.IgnorePatterns)
	}
	if len(p.FollowPatterns) > 0 {
		c.FollowPatterns = slices.Clone(p.FollowPatterns)
	}
	if p.Endpoint != nil {
		c.EndpointRule = *p.Endpoint
	}
	for _, f := range p.Citations {
		format := citation.Format(strings.ToLower(f))
		if !slices.Contains(c.CitationFormats, format) {
			c.CitationFormats = append(c.CitationFormats, format)
		}
	}
}

// Validate checks the configuration and returns the first problem found
// as one of the sentinel errors of this package.
func (c *Config) Validate() error {
	if c.OutDir == "" {
		return ErrNoOutDir
	}
	if len(c.Seeds) == 0 && len(c.SeedHTML) == 0 && c.SeedHTMLDir == "" {
		return ErrNoSeeds
	}
	for _, seed := range c.Seeds {
		u, err := url.Parse(seed)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: invalid seed URL %q", ErrNoSeeds, seed)
		}
	}
	if !c.FollowOffsite && len(c.AllowHostSuffixes) == 0 {
		return ErrNoAllowedHosts
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if c.PerHostDelay < 0 {
		return ErrInvalidPerHostDelay
	}
	if c.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	switch c.ReportFormat {
	case report.FormatMarkdown, report.FormatJSON, report.FormatText:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownReportFormat, c.ReportFormat)
	}
	for _, f := range c.CitationFormats {
		switch f {
		case citation.FormatRIS, citation.FormatCSLJSON, citation.FormatBibTeX:
		default:
			return fmt.Errorf("%w: %q", ErrUnknownCitationFormat, f)
		}
	}
	return nil
}
