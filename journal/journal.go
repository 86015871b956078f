/*
	Package journal records which image files were imported and which images were annotated
	so bulk imports can be re-run without duplicating work.  Entries live in a badger
	key-value store keyed by kind and identifier.
*/
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/janelia-flyem/omerokv/omerokv"
	"github.com/twinj/uuid"
)

// Kind is the class of a journal entry.
type Kind string

const (
	// ImportedFile entries are keyed by "<dataset>/<object key>".
	ImportedFile Kind = "file"

	// AnnotatedImage entries are keyed by image id.
	AnnotatedImage Kind = "kv"
)

// Entry is the value recorded for a key.
type Entry struct {
	Batch    string    `json:"batch"`
	Recorded time.Time `json:"recorded"`
	Ref      uint64    `json:"ref,omitempty"` // id of the object created or annotated
}

// Journal is a badger-backed record of completed import steps.  It is safe for
// concurrent use.
type Journal struct {
	directory string
	batch     string

	mu  sync.RWMutex
	bdp *badger.DB

	stopSyncCh chan struct{}
}

// Open returns a journal persisted at path, creating the directory if needed.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("no path given for import journal")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		omerokv.Infof("Import journal not already at path (%s). Creating directory...\n", path)
		if err := os.MkdirAll(path, 0744); err != nil {
			return nil, fmt.Errorf("can't make directory at %s: %v", path, err)
		}
	}
	opts := badger.DefaultOptions(path).WithLogger(nil)
	opts.NumVersionsToKeep = 1
	opts.SyncWrites = false
	return open(path, opts)
}

// OpenInMemory returns a journal that is discarded on Close.
func OpenInMemory() (*Journal, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	return open("", opts)
}

func open(path string, opts badger.Options) (*Journal, error) {
	bdp, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("unable to open import journal @ %q: %v", path, err)
	}
	j := &Journal{
		directory: path,
		batch:     uuid.NewV4().String(),
		bdp:       bdp,
	}
	if path != "" {
		j.stopSyncCh = make(chan struct{})
		go j.syncPeriodically()
		omerokv.Infof("Opened import journal @ %s, batch %s\n", path, j.batch)
	}
	return j, nil
}

// Periodically sync so an interrupted import loses few journal entries.
func (j *Journal) syncPeriodically() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-j.stopSyncCh:
			return
		case <-ticker.C:
			j.mu.RLock()
			if j.bdp != nil {
				if err := j.bdp.Sync(); err != nil {
					omerokv.Warningf("sync of import journal @ %s: %v\n", j.directory, err)
				}
			}
			j.mu.RUnlock()
		}
	}
}

// Batch returns the id that entries recorded through this handle carry.
func (j *Journal) Batch() string {
	return j.batch
}

func makeKey(kind Kind, id string) []byte {
	return []byte(string(kind) + "/" + id)
}

// FileKey returns the identifier of an imported file within a dataset.
func FileKey(dataset, objectKey string) string {
	return dataset + "/" + objectKey
}

// ImageKey returns the identifier of an annotated image.
func ImageKey(id omerokv.ImageID) string {
	return id.String()
}

// Get returns the entry for a key if present.
func (j *Journal) Get(kind Kind, id string) (entry Entry, found bool, err error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.bdp == nil {
		return Entry{}, false, fmt.Errorf("import journal is closed")
	}
	err = j.bdp.View(func(txn *badger.Txn) error {
		item, err := txn.Get(makeKey(kind, id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		found = true
		return json.Unmarshal(value, &entry)
	})
	return
}

// Seen returns true if the key has been recorded in any batch.
func (j *Journal) Seen(kind Kind, id string) (bool, error) {
	_, found, err := j.Get(kind, id)
	return found, err
}

// Record marks the key as done, with ref the id of the object involved.
func (j *Journal) Record(kind Kind, id string, ref uint64) error {
	value, err := json.Marshal(Entry{Batch: j.batch, Recorded: time.Now(), Ref: ref})
	if err != nil {
		return err
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.bdp == nil {
		return fmt.Errorf("import journal is closed")
	}
	return j.bdp.Update(func(txn *badger.Txn) error {
		return txn.Set(makeKey(kind, id), value)
	})
}

// Count returns the number of entries of a kind.
func (j *Journal) Count(kind Kind) (int, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.bdp == nil {
		return 0, fmt.Errorf("import journal is closed")
	}
	var n int
	err := j.bdp.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // key only
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := makeKey(kind, "")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close flushes and closes the journal.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	if j.stopSyncCh != nil {
		close(j.stopSyncCh)
		j.stopSyncCh = nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.bdp == nil {
		return nil
	}
	err := j.bdp.Close()
	j.bdp = nil
	if j.directory != "" {
		omerokv.Infof("Closed import journal @ %s\n", j.directory)
	}
	return err
}

func (j *Journal) String() string {
	if j.directory == "" {
		return "in-memory import journal"
	}
	return "import journal @ " + strings.TrimSuffix(j.directory, "/")
}
