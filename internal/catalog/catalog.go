// Package catalog persists the list of known workspaces separately from
// workspace content, so enumerating workspaces never touches their folders.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/capsule/internal/keys"
	"github.com/starford/capsule/internal/kvstore"
	"github.com/starford/capsule/internal/legacy"
	"github.com/starford/capsule/internal/models"
)

// Catalog reads and writes the catalog key of a key/value store.
type Catalog struct {
	kv     kvstore.Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Catalog over kv.
func New(kv kvstore.Store, logger *slog.Logger, now func() time.Time) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Catalog{kv: kv, logger: logger, now: now}
}

// Load returns the normalized catalog. When the catalog key is absent it is
// derived from the legacy flat workspace records and persisted at once.
// A catalog that cannot be decoded is treated as absent.
func (c *Catalog) Load(ctx context.Context, snap *legacy.Snapshot) ([]models.CatalogEntry, error) {
	raw, ok, err := c.kv.Get(ctx, keys.CatalogKey)
	if err != nil {
		return nil, fmt.Errorf("catalog: load: %w", err)
	}

	var entries []models.CatalogEntry
	if ok {
		if err := json.Unmarshal(raw, &entries); err != nil {
			c.logger.Warn("catalog: unreadable, rebuilding from legacy records", slog.String("error", err.Error()))
			ok = false
		}
	}
	if !ok {
		entries = entries[:0]
		for _, ws := range snap.WorkspaceList() {
			entries = append(entries, ws.Entry())
		}
	}

	entries = c.normalize(entries)
	if !ok {
		if err := c.Save(ctx, entries); err != nil {
			return nil, err
		}
		c.logger.Info("catalog: bootstrapped", slog.Int("workspaces", len(entries)))
	}
	return entries, nil
}

// Save overwrites the catalog key with the full entry list.
func (c *Catalog) Save(ctx context.Context, entries []models.CatalogEntry) error {
	if entries == nil {
		entries = []models.CatalogEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("catalog: encode: %w", err)
	}
	if err := c.kv.Set(ctx, keys.CatalogKey, data); err != nil {
		return fmt.Errorf("catalog: save: %w", err)
	}
	return nil
}

// normalize drops id-less and duplicate entries, derives missing names from
// the last path segment and backfills missing timestamps.
func (c *Catalog) normalize(in []models.CatalogEntry) []models.CatalogEntry {
	now := c.now()
	seen := make(map[string]struct{}, len(in))
	out := make([]models.CatalogEntry, 0, len(in))
	for _, e := range in {
		if e.ID == "" {
			continue
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		if strings.TrimSpace(e.Name) == "" {
			e.Name = NameFromPath(e.Path)
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if e.UpdatedAt.IsZero() {
			e.UpdatedAt = now
		}
		if e.Tags == nil {
			e.Tags = []string{}
		}
		out = append(out, e)
	}
	return out
}

// NameFromPath returns the last segment of path, ignoring trailing separators.
func NameFromPath(path string) string {
	trimmed := strings.TrimRight(path, `/\`)
	if trimmed == "" {
		return ""
	}
	if i := strings.LastIndexAny(trimmed, `/\`); i >= 0 {
		return trimmed[i+1:]
	}
	return filepath.Base(trimmed)
}
