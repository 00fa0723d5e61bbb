// Package cache implements the index cache: a persistent per-site-file
// snapshot of discovered descriptor records, stored in a small embedded
// key/value store so repeated resolver invocations skip filesystem scans.
package cache

import (
	"encoding/json"
	"os"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"

	"github.com/hab-env/hab/internal/platform"
)

// SupportedVersion is the highest cache schema version this implementation
// understands. A stored version greater than this is ignored with a
// warning, never an error.
const SupportedVersion = 1

var (
	bucketConfigPaths = []byte("config_paths")
	bucketDistroPaths = []byte("distro_paths")
	bucketMeta        = []byte("meta")
	keyVersion        = []byte("version")
)

// Entry is one cached descriptor record: its platform-agnostic directory
// and descriptor path, plus the arbitrary JSON payload captured at
// generate-cache time.
type Entry struct {
	Dir        string          `json:"dir"`
	Descriptor string          `json:"descriptor"`
	Payload    json.RawMessage `json:"payload"`
}

// Cache wraps a bolt.DB opened for one site file.
type Cache struct {
	db   *bolt.DB
	path string
}

// Open opens (creating if absent) the bolt-backed cache file at path.
func Open(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening cache file %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketConfigPaths, bucketDistroPaths, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Cache{db: db, path: path}, nil
}

// Close releases the underlying bolt.DB file handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// entryKey produces the "dir\x00descriptor" composite key used within each
// bucket, after translating both paths to platform-agnostic posix tokens.
func entryKey(dir, descriptor string) []byte {
	return []byte(platform.ToPosix(dir) + "\x00" + platform.ToPosix(descriptor))
}

func bucketFor(kind string) ([]byte, error) {
	switch kind {
	case "config_paths":
		return bucketConfigPaths, nil
	case "distro_paths":
		return bucketDistroPaths, nil
	default:
		return nil, errors.Errorf("cache: unknown kind %q", kind)
	}
}

// Put stores one descriptor record under the given kind ("config_paths" or
// "distro_paths").
func (c *Cache) Put(kind, dir, descriptor string, payload interface{}) error {
	bucketName, err := bucketFor(kind)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	entry := Entry{Dir: platform.ToPosix(dir), Descriptor: platform.ToPosix(descriptor), Payload: raw}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(entryKey(dir, descriptor), data)
	})
}

// SetVersion records the schema version this cache file was written with.
func (c *Cache) SetVersion(v int) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyVersion, []byte{byte(v)})
	})
}

// Version returns the stored schema version, or 0 if unset.
func (c *Cache) Version() int {
	var v int
	_ = c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketMeta).Get(keyVersion)
		if len(raw) == 1 {
			v = int(raw[0])
		}
		return nil
	})
	return v
}

// All returns every entry stored under kind in this cache file.
func (c *Cache) All(kind string) ([]Entry, error) {
	bucketName, err := bucketFor(kind)
	if err != nil {
		return nil, err
	}
	var out []Entry
	err = c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(_, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

// Index is the O(1) flattened lookup view derived from one or more cache
// files, applied right-to-left across a site's path list so the left-most
// site's entries win on duplicate descriptor paths.
type Index struct {
	entries map[string]Entry // key: posix descriptor path
}

// NewIndex builds an empty flattened index.
func NewIndex() *Index {
	return &Index{entries: map[string]Entry{}}
}

// Merge folds in entries from one cache file's kind; called in
// right-to-left order over the site's path list so that earlier
// (left-most, applied last) calls overwrite later ones.
func (idx *Index) Merge(entries []Entry) {
	for _, e := range entries {
		idx.entries[e.Descriptor] = e
	}
}

// Lookup returns the cached entry for a descriptor path, if any.
func (idx *Index) Lookup(descriptor string) (Entry, bool) {
	e, ok := idx.entries[platform.ToPosix(descriptor)]
	return e, ok
}

// Len returns the number of flattened entries.
func (idx *Index) Len() int { return len(idx.entries) }

// ForDir returns every flattened entry whose originating directory is dir,
// the per-root view finders consult before falling back to a live scan.
func (idx *Index) ForDir(dir string) []Entry {
	want := platform.ToPosix(dir)
	var out []Entry
	for _, e := range idx.entries {
		if e.Dir == want {
			out = append(out, e)
		}
	}
	return out
}

// All returns every flattened entry, in no particular order.
func (idx *Index) All() []Entry {
	out := make([]Entry, 0, len(idx.entries))
	for _, e := range idx.entries {
		out = append(out, e)
	}
	return out
}

// LoadAndFlatten opens each cache file path, given in site order (paths[0]
// is the most-authoritative, left-most site), merges their
// entries in reverse order so paths[0] wins, and returns the flattened
// index. A cache file whose stored version exceeds SupportedVersion is
// skipped with a warning rather than erroring, and a missing cache file is
// simply absent from the index (the cache is optional).
func LoadAndFlatten(paths []string, kind string, warnf func(format string, args ...interface{})) (*Index, error) {
	idx := NewIndex()
	for i := len(paths) - 1; i >= 0; i-- {
		p := paths[i]
		if _, err := os.Stat(p); err != nil {
			// Absent cache file: fall back to live enumeration.
			continue
		}
		c, err := Open(p)
		if err != nil {
			continue
		}
		if v := c.Version(); v > SupportedVersion {
			if warnf != nil {
				warnf("cache file %s has unsupported version %d, ignoring", p, v)
			}
			c.Close()
			continue
		}
		entries, err := c.All(kind)
		c.Close()
		if err != nil {
			return nil, err
		}
		idx.Merge(entries)
	}
	return idx, nil
}
