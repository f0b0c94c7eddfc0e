package presets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dsqprocess/dsqprocess/internal/logging"
	"github.com/dsqprocess/dsqprocess/internal/retry"
)

const (
	// DefaultTTL is how long a remote version check stays valid
	DefaultTTL = 6 * time.Hour
	// FallbackVersion is assumed when the presets release does not exist
	FallbackVersion = "1.0.0"

	userAgent = "DSQProcess"
)

// ErrNoRelease is returned by Update when the presets release does not exist
var ErrNoRelease = errors.New("presets release not found, using local version")

// Metadata is persisted next to the official presets
type Metadata struct {
	Version   string `json:"version"`
	LastCheck int64  `json:"last_check"`
	Hash      string `json:"hash"`
}

type release struct {
	TagName string  `json:"tag_name"`
	Name    *string `json:"name"`
	Assets  []asset `json:"assets"`
}

type asset struct {
	Name               string  `json:"name"`
	BrowserDownloadURL string  `json:"browser_download_url"`
	UpdatedAt          *string `json:"updated_at"`
}

// SyncOptions configures a Syncer
type SyncOptions struct {
	URL    string
	TTL    time.Duration
	Client *http.Client
	Retry  retry.Config
	Logger *logging.Logger
}

// Syncer compares the local official presets with the published release
type Syncer struct {
	store  *Store
	url    string
	ttl    time.Duration
	client *http.Client
	retry  retry.Config
	logger *logging.Logger
	now    func() time.Time
}

// NewSyncer creates a Syncer writing into store's directory
func NewSyncer(store *Store, opts SyncOptions) *Syncer {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	rc := opts.Retry
	if rc == (retry.Config{}) {
		rc = retry.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Syncer{
		store:  store,
		url:    opts.URL,
		ttl:    ttl,
		client: client,
		retry:  rc,
		logger: logger.Component("presets"),
		now:    time.Now,
	}
}

// Metadata returns the persisted metadata, zero valued if absent
func (s *Syncer) Metadata() Metadata {
	var md Metadata
	data, err := os.ReadFile(filepath.Join(s.store.Dir(), MetadataFile))
	if err != nil {
		return md
	}
	_ = json.Unmarshal(data, &md)
	return md
}

func (s *Syncer) saveMetadata(md Metadata) error {
	return writeJSON(filepath.Join(s.store.Dir(), MetadataFile), md)
}

// expired tolerates a clock that moved backwards
func (s *Syncer) expired(lastCheck int64) bool {
	elapsed := s.now().Unix() - lastCheck
	if elapsed < 0 {
		elapsed = 0
	}
	return time.Duration(elapsed)*time.Second > s.ttl
}

// Outdated reports whether the published presets differ from the local ones. Within the TTL
// of the last check it answers false without a request; a failing request also answers false.
func (s *Syncer) Outdated(ctx context.Context) bool {
	md := s.Metadata()
	if !s.expired(md.LastCheck) {
		return false
	}
	return s.ForceCheck(ctx)
}

// ForceCheck queries the release regardless of the TTL and records the check time
func (s *Syncer) ForceCheck(ctx context.Context) bool {
	remote, err := s.remoteVersion(ctx)
	if err != nil {
		s.logger.Warn("presets version check failed", logging.Fields{"err": err})
		return false
	}

	md := s.Metadata()
	outdated := remote != md.Version
	md.LastCheck = s.now().Unix()
	if err := s.saveMetadata(md); err != nil {
		s.logger.Warn("could not save presets metadata", logging.Fields{"err": err})
	}

	s.logger.Debug("presets version checked", logging.Fields{"local": md.Version, "remote": remote, "outdated": outdated})
	return outdated
}

// Update downloads the published presets, validates and stores them, and records the new
// version and content hash.
func (s *Syncer) Update(ctx context.Context) error {
	rel, found, err := s.fetchRelease(ctx)
	if err != nil {
		return err
	}
	if !found {
		return ErrNoRelease
	}

	var presetAsset *asset
	for i := range rel.Assets {
		if rel.Assets[i].Name == OfficialFile {
			presetAsset = &rel.Assets[i]
			break
		}
	}
	if presetAsset == nil {
		return fmt.Errorf("%s not found in release", OfficialFile)
	}

	content, err := s.download(ctx, presetAsset.BrowserDownloadURL)
	if err != nil {
		return err
	}

	var list []Preset
	if err := json.Unmarshal(content, &list); err != nil {
		return fmt.Errorf("downloaded presets are not a preset list: %w", err)
	}

	s.store.mu.Lock()
	err = os.WriteFile(filepath.Join(s.store.Dir(), OfficialFile), content, 0o644)
	s.store.mu.Unlock()
	if err != nil {
		return fmt.Errorf("write %s: %w", OfficialFile, err)
	}

	sum := sha256.Sum256(content)
	md := Metadata{
		Version:   extractVersion(rel),
		LastCheck: s.now().Unix(),
		Hash:      hex.EncodeToString(sum[:]),
	}
	if err := s.saveMetadata(md); err != nil {
		return err
	}

	s.logger.Info("presets updated", logging.Fields{"version": md.Version, "count": len(list)})
	return nil
}

func (s *Syncer) remoteVersion(ctx context.Context) (string, error) {
	rel, found, err := s.fetchRelease(ctx)
	if err != nil {
		return "", err
	}
	if !found {
		return FallbackVersion, nil
	}
	return extractVersion(rel), nil
}

// fetchRelease returns found=false on 404
func (s *Syncer) fetchRelease(ctx context.Context) (*release, bool, error) {
	if s.url == "" {
		return nil, false, errors.New("presets url is not configured")
	}

	var (
		rel   release
		found = true
	)
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		body, status, err := s.get(ctx, s.url)
		if err != nil {
			return err
		}
		switch {
		case status == http.StatusNotFound:
			found = false
			return nil
		case status >= 500:
			return fmt.Errorf("presets release: %d %s", status, http.StatusText(status))
		case status != http.StatusOK:
			return retry.Permanent(fmt.Errorf("presets release: %d %s", status, http.StatusText(status)))
		}
		if err := json.Unmarshal(body, &rel); err != nil {
			return retry.Permanent(fmt.Errorf("decode release: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &rel, found, nil
}

func (s *Syncer) download(ctx context.Context, url string) ([]byte, error) {
	var content []byte
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		body, status, err := s.get(ctx, url)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			err := fmt.Errorf("download presets: %d %s", status, http.StatusText(status))
			if status < 500 {
				return retry.Permanent(err)
			}
			return err
		}
		content = body
		return nil
	})
	return content, err
}

func (s *Syncer) get(ctx context.Context, url string) ([]byte, int, error) {
	return httpGet(ctx, s.client, url)
}

func httpGet(ctx context.Context, client *http.Client, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, retry.Permanent(err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		if !retry.IsRetryable(err) {
			return nil, 0, retry.Permanent(err)
		}
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// extractVersion prefers a vX.Y.Z suffix in the release title, then the presets asset's
// update time, then the tag.
func extractVersion(rel *release) string {
	if rel.Name != nil {
		title := *rel.Name
		if i := strings.LastIndex(title, "v"); i >= 0 {
			cand := strings.TrimSpace(title[i+1:])
			if isDottedTriple(cand) {
				return cand
			}
		}
	}
	for _, a := range rel.Assets {
		if a.Name == OfficialFile && a.UpdatedAt != nil {
			return *a.UpdatedAt
		}
	}
	return rel.TagName
}

func isDottedTriple(s string) bool {
	if strings.Count(s, ".") != 2 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}
