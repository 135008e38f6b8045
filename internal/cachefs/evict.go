package cachefs

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/orchardfs/orchard/internal/store"
)

// EvictResult summarizes one eviction pass.
type EvictResult struct {
	EntriesRemoved int
	BytesReclaimed int64
}

// totalCachedBytes sums the size of every cache entry currently on disk.
func (c *Cache) totalCachedBytes(ctx context.Context) (int64, error) {
	var total int64

	candidates, err := c.store.ListEvictionCandidates(ctx)
	if err != nil {
		return 0, err
	}

	pinned, err := c.store.ListPinned(ctx)
	if err != nil {
		return 0, err
	}

	for _, e := range candidates {
		total += e.Size
	}

	for _, e := range pinned {
		total += e.Size
	}

	return total, nil
}

// EvictIfNeeded runs an LRU eviction pass when the cache exceeds maxBytes,
// removing unpinned, unopened entries oldest-accessed-first until back
// under the ceiling or candidates are exhausted (spec.md section 4.2:
// "Eviction"). Sparse entries first have their present chunks hole-punched;
// every evicted entry, full or sparse, is then removed outright: its cache
// file, chunk rows, and cache row.
func (c *Cache) EvictIfNeeded(ctx context.Context) (EvictResult, error) {
	var result EvictResult

	total, err := c.totalCachedBytes(ctx)
	if err != nil {
		return result, err
	}

	if total <= c.maxBytes {
		return result, nil
	}

	candidates, err := c.store.ListEvictionCandidates(ctx)
	if err != nil {
		return result, err
	}

	for _, entry := range candidates {
		if total <= c.maxBytes {
			break
		}

		if entry.PresentLocally == store.PresentSparse {
			if err := c.punchAllChunks(ctx, entry.ObjectID, entry.Size); err != nil {
				c.logger.Warn("hole-punch failed during eviction",
					slog.String("object_id", entry.ObjectID), slog.String("error", err.Error()))
			}
		}

		if err := c.Remove(ctx, entry.ObjectID); err != nil {
			c.logger.Warn("evict failed", slog.String("object_id", entry.ObjectID), slog.String("error", err.Error()))
			continue
		}

		total -= entry.Size
		result.EntriesRemoved++
		result.BytesReclaimed += entry.Size
	}

	c.logger.Info("eviction pass complete",
		slog.Int("entries_removed", result.EntriesRemoved), slog.Int64("bytes_reclaimed", result.BytesReclaimed))

	return result, nil
}

// punchAllChunks releases the disk blocks backing every present chunk of a
// sparse cache file without changing its logical size, via the GOOS-specific
// holePunch implementation.
func (c *Cache) punchAllChunks(ctx context.Context, objectID string, size int64) error {
	path := c.PathFor(objectID)

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("cachefs: open %s for hole-punch: %w", objectID, err)
	}
	defer f.Close()

	present, err := c.store.ListPresentChunks(ctx, objectID)
	if err != nil {
		return err
	}

	for _, idx := range present {
		offset := idx * c.chunkSize
		length := c.chunkSize

		if offset+length > size {
			length = size - offset
		}

		if length <= 0 {
			continue
		}

		if err := holePunch(f, offset, length); err != nil {
			return fmt.Errorf("cachefs: hole-punch chunk %d of %s: %w", idx, objectID, err)
		}
	}

	return nil
}
