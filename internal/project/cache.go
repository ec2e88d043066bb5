package project

import (
	"context"
	"fmt"
	"sort"

	"github.com/dyluth/tsb/internal/store"
)

// Cache maps an emitted path without its .js extension to the compiled
// artifact (or, in dev mode, the transformed text).
type Cache map[string][]byte

// Keys returns the cache keys, sorted.
func (c Cache) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Write persists every entry under its key plus ext.
func (c Cache) Write(ctx context.Context, s store.Store, ext string) error {
	for _, key := range c.Keys() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Put(ctx, key+ext, c[key]); err != nil {
			return fmt.Errorf("failed to write artifact %s%s: %w", key, ext, err)
		}
	}
	return nil
}
