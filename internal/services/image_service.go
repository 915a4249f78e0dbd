package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"wannagonna/internal/cache"
	"wannagonna/internal/metrics"
	"wannagonna/internal/models"
	"wannagonna/internal/store"
)

// ImageCacheKey is the cache key holding resolved badge artwork URLs.
const ImageCacheKey = "badge_image_urls"

// ImageExtensions lists artwork formats in probe order.
var ImageExtensions = []string{".svg", ".png", ".jpg", ".jpeg", ".webp"}

// ImageConfig holds image resolver settings
type ImageConfig struct {
	CacheWindow  time.Duration
	ProbeTimeout time.Duration
	Concurrency  int
}

// DefaultImageConfig returns default image resolver settings
func DefaultImageConfig() *ImageConfig {
	return &ImageConfig{
		CacheWindow:  24 * time.Hour,
		ProbeTimeout: 30 * time.Second,
		Concurrency:  10,
	}
}

// imageCacheEntry is the persisted layout under ImageCacheKey. Timestamp is
// the latest write in milliseconds since the epoch. Written holds the write
// time of each URL; a URL without one falls back to Timestamp.
type imageCacheEntry struct {
	URLs      map[string]string `json:"urls"`
	Timestamp int64             `json:"timestamp"`
	Written   map[string]int64  `json:"written,omitempty"`
}

type imageService struct {
	blob   store.BlobStore
	cache  cache.Cache
	logger *zap.Logger
	config *ImageConfig
	now    func() time.Time

	// mu serialises read-modify-write of the cache entry and guards misses.
	mu     sync.Mutex
	misses map[string]struct{}
}

// NewImageService creates the badge image resolver.
func NewImageService(blob store.BlobStore, c cache.Cache, logger *zap.Logger, config *ImageConfig) ImageService {
	return newImageService(blob, c, logger, config, time.Now)
}

func newImageService(blob store.BlobStore, c cache.Cache, logger *zap.Logger, config *ImageConfig, now func() time.Time) *imageService {
	if config == nil {
		config = DefaultImageConfig()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 10
	}
	if config.CacheWindow <= 0 {
		config.CacheWindow = 24 * time.Hour
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &imageService{
		blob:   blob,
		cache:  c,
		logger: logger,
		config: config,
		now:    now,
		misses: make(map[string]struct{}),
	}
}

// ===============================
// RESOLVE
// ===============================

// ResolveImage returns the cached URL when fresh, nil for a badge already
// known to have no artwork, and otherwise probes each extension in order.
func (s *imageService) ResolveImage(ctx context.Context, badgeID, categoryID string) *string {
	if entry := s.readEntry(ctx); entry != nil {
		if url, ok := entry.URLs[badgeID]; ok {
			metrics.RecordImageLookup("cache")
			return &url
		}
	}

	s.mu.Lock()
	_, missed := s.misses[badgeID]
	s.mu.Unlock()
	if missed {
		metrics.RecordImageLookup("negative")
		return nil
	}

	url, definitive := s.probe(ctx, badgeID, categoryID)
	if url == "" {
		if definitive {
			s.mu.Lock()
			s.misses[badgeID] = struct{}{}
			s.mu.Unlock()
		}
		metrics.RecordImageLookup("none")
		return nil
	}

	metrics.RecordImageLookup("probe")
	s.storeURL(ctx, badgeID, url)
	return &url
}

// probe tries every extension and returns the first URL found. definitive is
// true only when every probe answered NotFound.
func (s *imageService) probe(ctx context.Context, badgeID, categoryID string) (url string, definitive bool) {
	definitive = true
	for _, ext := range ImageExtensions {
		if ctx.Err() != nil {
			return "", false
		}

		path := blobPath(categoryID, badgeID, ext)
		start := time.Now()
		probeCtx, cancel := context.WithTimeout(ctx, s.config.ProbeTimeout)
		found, err := s.blob.DownloadURL(probeCtx, path)
		cancel()

		switch {
		case err == nil:
			metrics.RecordImageProbe("hit", time.Since(start))
			return found, false
		case store.IsNotFound(err):
			metrics.RecordImageProbe("miss", time.Since(start))
		default:
			metrics.RecordImageProbe("error", time.Since(start))
			definitive = false
			s.logger.Warn("Badge image probe failed",
				zap.String("path", path),
				zap.Error(err),
			)
		}
	}
	return "", definitive
}

// ResolveImages resolves a batch in waves of at most concurrency lookups.
// Duplicate badge ids are resolved once. When ctx is cancelled every result
// is reported as nil.
func (s *imageService) ResolveImages(ctx context.Context, refs []models.BadgeRef, concurrency int) map[string]*string {
	if concurrency <= 0 {
		concurrency = s.config.Concurrency
	}

	unique := make([]models.BadgeRef, 0, len(refs))
	result := make(map[string]*string, len(refs))
	for _, ref := range refs {
		if _, seen := result[ref.BadgeID]; seen {
			continue
		}
		result[ref.BadgeID] = nil
		unique = append(unique, ref)
	}

	resolved := make([]*string, len(unique))
	for start := 0; start < len(unique); start += concurrency {
		if ctx.Err() != nil {
			break
		}
		end := min(start+concurrency, len(unique))

		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				resolved[i] = s.ResolveImage(ctx, unique[i].BadgeID, unique[i].CategoryID)
				return nil
			})
		}
		_ = g.Wait()
	}

	if ctx.Err() != nil {
		s.logger.Debug("Badge image batch cancelled", zap.Int("items", len(unique)))
		return result
	}
	for i, ref := range unique {
		result[ref.BadgeID] = resolved[i]
	}
	return result
}

// ===============================
// UPLOAD
// ===============================

// Upload stores badge artwork and replaces any cached URL for the badge.
func (s *imageService) Upload(ctx context.Context, categoryID, badgeID, ext string, data []byte) (string, error) {
	var verrs models.ValidationErrors
	if err := models.IdentifierValidator("categoryId", categoryID); err != nil {
		verrs = append(verrs, *err)
	}
	if err := models.IdentifierValidator("badgeId", badgeID); err != nil {
		verrs = append(verrs, *err)
	}
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if !slices.Contains(ImageExtensions, ext) {
		verrs.Add("ext", fmt.Sprintf("extension must be one of %s", strings.Join(ImageExtensions, ", ")), "invalid_extension", ext)
	}
	if len(data) == 0 {
		verrs.Add("data", "image data is required", "required", nil)
	}
	if verrs.HasErrors() {
		return "", NewFieldValidationError(verrs)
	}

	path := blobPath(categoryID, badgeID, ext)
	if err := s.blob.Put(ctx, path, data); err != nil {
		return "", MapStoreError(err, ErrTypeCatalogMiss, "Failed to store badge image")
	}

	url, err := s.blob.DownloadURL(ctx, path)
	if err != nil {
		s.forget(ctx, badgeID)
		return "", MapStoreError(err, ErrTypeCatalogMiss, "Failed to resolve uploaded badge image")
	}

	s.forget(ctx, badgeID)
	s.storeURL(ctx, badgeID, url)

	s.logger.Info("Badge image uploaded",
		zap.String("path", path),
		zap.Int("bytes", len(data)),
	)
	return url, nil
}

// ===============================
// CACHE
// ===============================

// readEntry returns the cache entry with every URL older than the window
// dropped, or nil when nothing fresh remains.
func (s *imageService) readEntry(ctx context.Context) *imageCacheEntry {
	if s.cache == nil {
		return nil
	}
	var entry imageCacheEntry
	if !cache.GetJSON(ctx, s.cache, ImageCacheKey, &entry) {
		return nil
	}
	if entry.Written == nil {
		entry.Written = make(map[string]int64, len(entry.URLs))
	}
	for id := range entry.URLs {
		written, ok := entry.Written[id]
		if !ok {
			written = entry.Timestamp
			entry.Written[id] = written
		}
		if !s.fresh(written) {
			delete(entry.URLs, id)
			delete(entry.Written, id)
		}
	}
	for id := range entry.Written {
		if _, ok := entry.URLs[id]; !ok {
			delete(entry.Written, id)
		}
	}
	if len(entry.URLs) == 0 {
		return nil
	}
	return &entry
}

func (s *imageService) fresh(writtenMs int64) bool {
	age := s.now().Sub(time.UnixMilli(writtenMs))
	return age >= 0 && age < s.config.CacheWindow
}

// storeURL records badgeID with its own write time. Each URL stays fresh for
// a full window from the moment it was written.
func (s *imageService) storeURL(ctx context.Context, badgeID, url string) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.readEntry(ctx)
	if entry == nil {
		entry = &imageCacheEntry{URLs: make(map[string]string), Written: make(map[string]int64)}
	}
	now := s.now().UnixMilli()
	entry.URLs[badgeID] = url
	entry.Written[badgeID] = now
	entry.Timestamp = now
	s.writeEntry(ctx, entry)
}

// forget drops badgeID from the entry and from the session misses.
func (s *imageService) forget(ctx context.Context, badgeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.misses, badgeID)
	if s.cache == nil {
		return
	}
	entry := s.readEntry(ctx)
	if entry == nil {
		return
	}
	if _, ok := entry.URLs[badgeID]; !ok {
		return
	}
	delete(entry.URLs, badgeID)
	delete(entry.Written, badgeID)
	if len(entry.URLs) == 0 {
		if err := s.cache.Delete(ctx, ImageCacheKey); err != nil {
			s.logger.Warn("Badge image cache delete failed", zap.Error(err))
		}
		return
	}
	s.writeEntry(ctx, entry)
}

// writeEntry persists entry until the window of its latest write closes. A
// full cache evicts the key and retries once; a second failure is dropped.
func (s *imageService) writeEntry(ctx context.Context, entry *imageCacheEntry) {
	ttl := s.config.CacheWindow - s.now().Sub(time.UnixMilli(entry.Timestamp))
	if ttl <= 0 {
		ttl = s.config.CacheWindow
	}

	err := cache.SetJSON(ctx, s.cache, ImageCacheKey, entry, ttl)
	if err == nil {
		return
	}
	if !errors.Is(err, cache.ErrCacheFull) {
		s.logger.Warn("Badge image cache write failed", zap.Error(err))
		return
	}

	s.logger.Info("Badge image cache full, evicting", zap.Int("urls", len(entry.URLs)))
	if err := s.cache.Delete(ctx, ImageCacheKey); err != nil {
		s.logger.Warn("Badge image cache eviction failed", zap.Error(err))
	}
	if err := cache.SetJSON(ctx, s.cache, ImageCacheKey, entry, ttl); err != nil {
		s.logger.Warn("Badge image cache write dropped",
			zap.Error(NewCacheWriteFullError(ImageCacheKey, err)),
		)
	}
}

func blobPath(categoryID, badgeID, ext string) string {
	return "badges/" + categoryID + "/" + badgeID + ext
}
