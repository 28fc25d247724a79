// Package modelstore implements the Model Store (C1): it resolves a
// language pair to a ModelBundle on disk, downloading and verifying files
// as needed. Its download/retry/checksum shape is grounded on
// kawai-network-candle/pkg/candle/download.go's DownloadLibrary (gzip HTTP
// fetch into a version-scoped cache dir, atomic rename into place), extended
// with SHA-256 verification, gofrs/flock for cross-process locking of the
// cache directory, dustin/go-humanize for size logging, and
// golang.org/x/time/rate to throttle concurrent downloads.
package modelstore

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/nmtcore/transengine/internal/xerr"
)

const (
	catalogFileName     = "models.json"
	downloadedFileName  = "flags.json"
	maxDownloadAttempts = 3
	retryBackoff        = 2 * time.Second
)

// BundleFile is one resolved file's raw bytes plus the catalog file name it
// was downloaded as. The name travels alongside the bytes because
// sandbox.SelectPrecision (spec.md §4.3 step 3) keys off the model file's
// name, not its kind.
type BundleFile struct {
	Name string
	Data []byte
}

// Bundle is the ModelBundle of spec.md §3: a mapping from file kind to the
// file's raw bytes and catalog name, for one pair.
type Bundle map[string]BundleFile

// Store is the Model Store.
type Store struct {
	dataDir      string
	catalogURL   string
	artifactsURL string
	offline      bool

	httpClient *http.Client
	limiter    *rate.Limiter

	mu       sync.Mutex
	catalog  *Catalog
	download map[string]bool // downloaded flag, keyed by pair

	logger *log.Entry
}

// Options configures a Store.
type Options struct {
	DataDir      string
	CatalogURL   string
	ArtifactsURL string
	Offline      bool
	HTTPClient   *http.Client
	// DownloadRateLimit caps concurrent download throughput (files/sec);
	// zero disables throttling.
	DownloadRateLimit rate.Limit
}

// New constructs a Store. Call Init before GetModel.
func New(opts Options) *Store {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	limit := opts.DownloadRateLimit
	if limit == 0 {
		limit = rate.Inf
	}
	return &Store{
		dataDir:      opts.DataDir,
		catalogURL:   opts.CatalogURL,
		artifactsURL: opts.ArtifactsURL,
		offline:      opts.Offline,
		httpClient:   client,
		limiter:      rate.NewLimiter(limit, 1),
		download:     make(map[string]bool),
		logger:       log.WithField("component", "modelstore"),
	}
}

// Init ensures the cache directories exist and loads the catalog and the
// downloaded-flags file, per spec.md §4.1.
func (s *Store) Init(ctx context.Context) error {
	if err := os.MkdirAll(s.modelsDir(), 0o755); err != nil {
		return xerr.New(xerr.KindCatalogUnavailable, "", fmt.Errorf("creating models dir: %w", err))
	}

	if err := s.loadDownloadedFlags(); err != nil {
		s.logger.WithError(err).Warn("could not load downloaded flags, starting empty")
	}

	return s.refreshCatalog(ctx, false)
}

func (s *Store) modelsDir() string      { return filepath.Join(s.dataDir, "models") }
func (s *Store) catalogPath() string    { return filepath.Join(s.dataDir, catalogFileName) }
func (s *Store) downloadedPath() string { return filepath.Join(s.dataDir, downloadedFileName) }
func (s *Store) pairDir(pair string) string {
	return filepath.Join(s.modelsDir(), pair)
}

// refreshCatalog implements the refresh policy of spec.md §4.1: refresh
// when forced or when no cached file exists; otherwise read the cache.
func (s *Store) refreshCatalog(ctx context.Context, force bool) error {
	if !force {
		if cached, err := s.readCachedCatalog(); err == nil {
			s.mu.Lock()
			s.catalog = cached
			s.mu.Unlock()
			return nil
		}
	}

	if s.offline {
		if cached, err := s.readCachedCatalog(); err == nil {
			s.mu.Lock()
			s.catalog = cached
			s.mu.Unlock()
			return nil
		}
		return xerr.New(xerr.KindOffline, "", fmt.Errorf("catalog refresh requires network"))
	}

	cat, err := s.fetchCatalog(ctx)
	if err != nil {
		if cached, cerr := s.readCachedCatalog(); cerr == nil {
			s.logger.WithError(err).Warn("catalog fetch failed, using cached copy")
			s.mu.Lock()
			s.catalog = cached
			s.mu.Unlock()
			return nil
		}
		return xerr.New(xerr.KindCatalogUnavailable, "", err)
	}

	s.mu.Lock()
	s.catalog = cat
	s.mu.Unlock()
	return s.writeCachedCatalog(cat)
}

func (s *Store) readCachedCatalog() (*Catalog, error) {
	data, err := os.ReadFile(s.catalogPath())
	if err != nil {
		return nil, err
	}
	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

func (s *Store) writeCachedCatalog(cat *Catalog) error {
	data, err := json.MarshalIndent(cat, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.catalogPath(), data, 0o644)
}

func (s *Store) fetchCatalog(ctx context.Context) (*Catalog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.catalogURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "transengine-modelstore/1.0")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog fetch: HTTP %d", resp.StatusCode)
	}

	body, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}
	var cat Catalog
	if err := json.Unmarshal(body, &cat); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	return &cat, nil
}

func decodeBody(resp *http.Response) ([]byte, error) {
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		return io.ReadAll(gz)
	}
	return io.ReadAll(resp.Body)
}

func (s *Store) loadDownloadedFlags() error {
	data, err := os.ReadFile(s.downloadedPath())
	if err != nil {
		return err
	}
	var flags map[string]bool
	if err := json.Unmarshal(data, &flags); err != nil {
		return err
	}
	s.mu.Lock()
	s.download = flags
	s.mu.Unlock()
	return nil
}

func (s *Store) saveDownloadedFlags() error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.download, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return err
	}
	tmp := s.downloadedPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.downloadedPath())
}

// ListDownloaded returns the set of pair-keys whose downloaded flag is set.
func (s *Store) ListDownloaded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.download))
	for pair, ok := range s.download {
		if ok {
			out = append(out, pair)
		}
	}
	return out
}

// GetModel resolves pair to a verified ModelBundle, downloading any missing
// or mismatched files first, per spec.md §4.1 algorithm.
func (s *Store) GetModel(ctx context.Context, pair string) (Bundle, error) {
	s.mu.Lock()
	cat := s.catalog
	s.mu.Unlock()
	if cat == nil {
		return nil, xerr.New(xerr.KindCatalogUnavailable, pair, fmt.Errorf("catalog not loaded"))
	}

	records := cat.recordsForPair(pair)
	if len(records) == 0 {
		return nil, xerr.New(xerr.KindNoSuchPair, pair, fmt.Errorf("no records for pair %q", pair))
	}

	lock := flock.New(filepath.Join(s.pairDir(pair) + ".lock"))
	if err := os.MkdirAll(s.pairDir(pair), 0o755); err != nil {
		return nil, xerr.New(xerr.KindCatalogUnavailable, pair, err)
	}
	if err := lock.Lock(); err != nil {
		return nil, xerr.New(xerr.KindCatalogUnavailable, pair, fmt.Errorf("acquiring pair lock: %w", err))
	}
	defer lock.Unlock()

	bundle := make(Bundle, len(records))
	for _, rec := range records {
		data, err := s.resolveFile(ctx, rec)
		if err != nil {
			return nil, err
		}
		bundle[rec.FileKind] = BundleFile{Name: rec.Name, Data: data}
	}

	s.mu.Lock()
	s.download[pair] = true
	s.mu.Unlock()
	if err := s.saveDownloadedFlags(); err != nil {
		s.logger.WithError(err).Warn("could not persist downloaded flags")
	}

	return bundle, nil
}

// Verify re-checks every local file for pair against the catalog checksum
// without re-downloading, returning the set of mismatching file kinds. It
// supplements §4.1 with an explicit integrity check operable outside the
// normal GetModel path.
func (s *Store) Verify(pair string) ([]string, error) {
	s.mu.Lock()
	cat := s.catalog
	s.mu.Unlock()
	if cat == nil {
		return nil, xerr.New(xerr.KindCatalogUnavailable, pair, fmt.Errorf("catalog not loaded"))
	}
	records := cat.recordsForPair(pair)
	if len(records) == 0 {
		return nil, xerr.New(xerr.KindNoSuchPair, pair, fmt.Errorf("no records for pair %q", pair))
	}

	var mismatched []string
	for _, rec := range records {
		path := filepath.Join(s.pairDir(pair), rec.Name)
		ok, err := checksumMatches(path, rec.Checksum())
		if err != nil || !ok {
			mismatched = append(mismatched, rec.FileKind)
		}
	}
	return mismatched, nil
}

func (s *Store) resolveFile(ctx context.Context, rec ModelRecord) ([]byte, error) {
	path := filepath.Join(s.pairDir(rec.Pair()), rec.Name)

	if ok, _ := checksumMatches(path, rec.Checksum()); ok {
		return os.ReadFile(path)
	}

	if s.offline {
		return nil, xerr.New(xerr.KindOffline, rec.Pair(), fmt.Errorf("%s missing and offline", rec.Name))
	}

	if err := s.downloadWithRetry(ctx, rec, path); err != nil {
		return nil, err
	}

	return os.ReadFile(path)
}

// downloadWithRetry fetches rec into dest, verifying its checksum after
// every attempt. A checksum mismatch is treated the same as a transport
// failure: the corrupt file is deleted and the attempt is retried, per
// spec.md §6.3 ("mismatches delete the corrupt file and retry").
func (s *Store) downloadWithRetry(ctx context.Context, rec ModelRecord, dest string) error {
	var lastErr error
	var lastWasMismatch bool

	for attempt := 1; attempt <= maxDownloadAttempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return xerr.New(xerr.KindOffline, rec.Pair(), err)
		}

		lastWasMismatch = false
		if err := s.downloadOnce(ctx, rec, dest); err != nil {
			lastErr = err
		} else if ok, err := checksumMatches(dest, rec.Checksum()); err != nil {
			lastErr = err
		} else if !ok {
			os.Remove(dest)
			lastErr = fmt.Errorf("%s failed checksum verification after download", rec.Name)
			lastWasMismatch = true
		} else {
			return nil
		}

		s.logger.WithFields(log.Fields{
			"pair": rec.Pair(), "file": rec.Name, "attempt": attempt,
		}).WithError(lastErr).Warn("model file download attempt failed")

		if attempt == maxDownloadAttempts {
			break
		}
		select {
		case <-time.After(retryBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if lastWasMismatch {
		return xerr.New(xerr.KindChecksumMismatch, rec.Pair(), lastErr)
	}
	return xerr.New(xerr.KindCatalogUnavailable, rec.Pair(),
		fmt.Errorf("downloading %s: exhausted %d attempts: %w", rec.Name, maxDownloadAttempts, lastErr))
}

func (s *Store) downloadOnce(ctx context.Context, rec ModelRecord, dest string) error {
	url := rec.RemoteLocation()
	if url == "" {
		url = s.artifactsURL + "/" + rec.Pair() + "/" + rec.Name
	} else if !strings.Contains(url, "://") {
		url = strings.TrimSuffix(s.artifactsURL, "/") + "/" + strings.TrimPrefix(url, "/")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "transengine-modelstore/1.0")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			out.Close()
			return err
		}
		defer gz.Close()
		reader = gz
	}

	n, err := io.Copy(out, reader)
	out.Close()
	if err != nil {
		os.Remove(tmp)
		return err
	}

	s.logger.WithFields(log.Fields{
		"pair": rec.Pair(), "file": rec.Name, "size": humanize.Bytes(uint64(n)),
	}).Info("downloaded model file")

	return os.Rename(tmp, dest)
}

func checksumMatches(path, want string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	got := hex.EncodeToString(h.Sum(nil))
	return got == want, nil
}
