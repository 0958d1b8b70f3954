package robots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nao1215/docmirror/internal/fsutil"
	"github.com/nao1215/docmirror/internal/model"
)

// Store persists raw robots.txt text under a directory, one file per host.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir (normally <export>/.state/robots).
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the file used for host.
func (s *Store) Path(host string) string {
	name := strings.ReplaceAll(strings.ToLower(host), ":", "_") + ".txt"
	return filepath.Join(s.dir, name)
}

// Load returns the stored text for host. found is false when nothing has
// been stored yet.
func (s *Store) Load(host string) (text string, found bool, err error) {
	data, err := os.ReadFile(s.Path(host))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read robots cache for %s: %w", host, err)
	}
	return string(data), true, nil
}

// Save stores text for host, replacing any previous copy.
func (s *Store) Save(host, text string) error {
	return fsutil.WriteFileAtomic(s.Path(host), []byte(text))
}

// FetchFunc performs a paced GET of a robots.txt URL.
type FetchFunc func(ctx context.Context, rawURL string) (*model.FetchResult, error)

// Resolver answers robots rules per host, consulting memory, then disk,
// then the network. Each host is resolved at most once per process.
type Resolver struct {
	store  *Store
	fetch  FetchFunc
	logger *slog.Logger

	mu    sync.Mutex
	rules map[string]*Rules
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the logger used for fetch failures.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a Resolver backed by store that downloads missing
// robots.txt files with fetch.
func NewResolver(store *Store, fetch FetchFunc, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:  store,
		fetch:  fetch,
		logger: slog.Default(),
		rules:  make(map[string]*Rules),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RulesFor returns the rules for host (host may include a port).
// Non-success responses are stored as an empty file so the host is not
// asked again; transport failures yield empty rules for this process only.
// Only disk errors are returned.
func (r *Resolver) RulesFor(ctx context.Context, host string) (*Rules, error) {
	host = strings.ToLower(host)

	r.mu.Lock()
	cached, ok := r.rules[host]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	text, found, err := r.store.Load(host)
	if err != nil {
		return nil, err
	}
	if !found {
		text, err = r.download(ctx, host)
		if err != nil {
			return nil, err
		}
	}

	rules := Parse(text)
	if rules.Empty() {
		r.logger.Debug("no robots.txt rules apply", "host", host)
	}
	r.mu.Lock()
	r.rules[host] = rules
	r.mu.Unlock()
	return rules, nil
}

// download fetches and persists robots.txt for host.
func (r *Resolver) download(ctx context.Context, host string) (string, error) {
	robotsURL := "https://" + host + "/robots.txt"
	res, err := r.fetch(ctx, robotsURL)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		r.logger.Warn("robots.txt fetch failed, treating host as unrestricted",
			"host", host,
			"error", err,
		)
		return "", nil
	}

	text := ""
	if res.Success() {
		text = string(res.Body)
	} else {
		r.logger.Debug("robots.txt not available",
			"host", host,
			"status", res.StatusCode,
		)
	}
	if err := r.store.Save(host, text); err != nil {
		return "", err
	}
	return text, nil
}
