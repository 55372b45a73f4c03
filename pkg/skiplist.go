package hifi

import (
	"fmt"
	"strings"

	zcsl "github.com/mattkeenan/zerocopyskiplist"
)

// contentEntry is one hashed record placed in a sortedIndex
type contentEntry struct {
	key  string
	Path string
	Hash string
	Size int64
}

// Key returns the content key the entry groups under
func (e *contentEntry) Key() ContentKey {
	return ContentKey{Hash: e.Hash, Size: e.Size}
}

// contentSortKey orders entries by hash, then size, then path. Sizes are
// zero padded so they sort numerically. tag separates copies of one path
// inserted under different contexts.
func contentSortKey(hash string, size int64, path, tag string) string {
	return fmt.Sprintf("%s\x00%020d\x00%s\x00%s", hash, size, path, tag)
}

// sortedIndex keeps content entries ordered by (hash, size, path), each
// tagged with a context string such as InsideContext or SideAContext
type sortedIndex struct {
	skiplist *zcsl.ZeroCopySkiplist[contentEntry, string, string]
}

// newSortedIndex creates an empty index
func newSortedIndex(maxLevels int) *sortedIndex {
	if maxLevels < 8 {
		maxLevels = 16
	}

	getKeyFromItem := func(e *contentEntry) string {
		return e.key
	}
	getItemSize := func(e *contentEntry) int {
		return len(e.key) + len(e.Path) + len(e.Hash) + 8
	}

	return &sortedIndex{
		skiplist: zcsl.MakeZeroCopySkiplist[contentEntry, string, string](
			maxLevels,
			getKeyFromItem,
			getItemSize,
			strings.Compare,
		),
	}
}

// Insert adds rec under context
func (si *sortedIndex) Insert(rec *FileRecord, context string) bool {
	entry := &contentEntry{
		key:  contentSortKey(rec.Hash, rec.Size, rec.Path, context),
		Path: rec.Path,
		Hash: rec.Hash,
		Size: rec.Size,
	}
	return si.skiplist.Insert(entry, context)
}

// ForEach visits entries in order with their context
func (si *sortedIndex) ForEach(callback func(*contentEntry, string) bool) {
	for current := si.skiplist.First(); current != nil; current = current.Next() {
		if !callback(current.Item(), current.Context()) {
			break
		}
	}
}

// ForEachGroup visits runs of entries sharing a ContentKey, in key order
func (si *sortedIndex) ForEachGroup(callback func(key ContentKey, entries []*contentEntry, contexts []string) bool) {
	var (
		entries  []*contentEntry
		contexts []string
	)
	flush := func() bool {
		if len(entries) == 0 {
			return true
		}
		ok := callback(entries[0].Key(), entries, contexts)
		entries, contexts = nil, nil
		return ok
	}

	stopped := false
	si.ForEach(func(e *contentEntry, context string) bool {
		if len(entries) > 0 && entries[0].Key() != e.Key() {
			if !flush() {
				stopped = true
				return false
			}
		}
		entries = append(entries, e)
		contexts = append(contexts, context)
		return true
	})
	if !stopped {
		flush()
	}
}

// Merge adds every entry of other into si
func (si *sortedIndex) Merge(other *sortedIndex) error {
	if other == nil {
		return nil
	}
	return si.skiplist.Merge(other.skiplist, zcsl.MergeTheirs)
}

// Length returns the number of entries
func (si *sortedIndex) Length() int {
	return si.skiplist.Length()
}

// IsEmpty returns true if the index has no entries
func (si *sortedIndex) IsEmpty() bool {
	return si.skiplist.IsEmpty()
}
