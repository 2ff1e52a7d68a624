package vecindex

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"

	"github.com/seedwise/kindred/internal/workitem"
)

// ErrCorrupt reports that the persisted index failed an integrity check.
// Clearing the index directory recovers.
var ErrCorrupt = errors.New("persisted index corrupt")

const (
	vectorsFile  = "vectors.bin"
	metadataFile = "metadata.json"
	lockFile     = "index.lock"

	// vectorsMagic opens vectors.bin; bump the digit on format changes.
	vectorsMagic = "KVX1"
)

// Store persists an Index as a file pair under one directory: vectors.bin
// (raw float32 matrix) and metadata.json (ids, work items, sources). A
// separate lock file coordinates processes; the data files get replaced by
// rename, so locking them directly would race.
type Store struct {
	dir string
	flk *flock.Flock
}

// NewStore prepares dir for persistence and initializes the lock.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("index directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory %s: %w", dir, err)
	}
	return &Store{
		dir: dir,
		flk: flock.New(filepath.Join(dir, lockFile)),
	}, nil
}

// Dir returns the directory the store persists into.
func (s *Store) Dir() string {
	return s.dir
}

// metaDocument is the exact on-disk shape of metadata.json.
type metaDocument struct {
	Dimension   int                   `json:"dimension"`
	WorkItemIDs []int                 `json:"work_item_ids"`
	Records     map[string]metaRecord `json:"records"`
	LastUpdated time.Time             `json:"last_updated"`
}

type metaRecord struct {
	WorkItem        workitem.WorkItem `json:"work_item"`
	EmbeddingSource SourceInfo        `json:"embedding_source"`
	InsertedAt      time.Time         `json:"inserted_at"`
}

// Save writes the index atomically under an exclusive lock: both files go to
// temp paths first, then vectors.bin is renamed into place, then
// metadata.json. A crash before the first rename leaves the old pair intact;
// a crash between the renames is caught by Load's cross-file checks.
func (s *Store) Save(x *Index) error {
	if err := s.flk.Lock(); err != nil {
		return fmt.Errorf("lock index for save: %w", err)
	}
	defer func() { _ = s.flk.Unlock() }()

	x.mu.RLock()
	doc := metaDocument{
		Dimension:   x.dim,
		WorkItemIDs: append([]int(nil), x.ids...),
		Records:     make(map[string]metaRecord, len(x.records)),
		LastUpdated: x.lastUpdated,
	}
	for id, rec := range x.records {
		doc.Records[strconv.Itoa(id)] = metaRecord{
			WorkItem:        rec.Item,
			EmbeddingSource: rec.Source,
			InsertedAt:      rec.InsertedAt,
		}
	}
	vectorBytes := encodeVectors(x.dim, x.vectors)
	x.mu.RUnlock()

	metaBytes, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	vectorsPath := filepath.Join(s.dir, vectorsFile)
	metadataPath := filepath.Join(s.dir, metadataFile)
	tmpVectors := vectorsPath + ".tmp"
	tmpMetadata := metadataPath + ".tmp"

	defer func() { _ = os.Remove(tmpVectors) }()
	defer func() { _ = os.Remove(tmpMetadata) }()

	if err := os.WriteFile(tmpVectors, vectorBytes, 0o644); err != nil {
		return fmt.Errorf("write temporary vectors file: %w", err)
	}
	if err := os.WriteFile(tmpMetadata, metaBytes, 0o644); err != nil {
		return fmt.Errorf("write temporary metadata file: %w", err)
	}

	if err := os.Rename(tmpVectors, vectorsPath); err != nil {
		return fmt.Errorf("rename vectors file into place: %w", err)
	}
	if err := os.Rename(tmpMetadata, metadataPath); err != nil {
		return fmt.Errorf("CRITICAL: vectors file %s updated but metadata rename failed: %w - index will load as corrupt until cleared", vectorsPath, err)
	}
	return nil
}

// Load reads the persisted pair under a shared lock and rebuilds the index.
// A fresh directory (neither file present) yields an empty index. Any
// mismatch between the files, or inside either file, returns ErrCorrupt.
func (s *Store) Load() (*Index, error) {
	if err := s.flk.RLock(); err != nil {
		return nil, fmt.Errorf("lock index for load: %w", err)
	}
	defer func() { _ = s.flk.Unlock() }()

	vectorsPath := filepath.Join(s.dir, vectorsFile)
	metadataPath := filepath.Join(s.dir, metadataFile)

	vectorBytes, vErr := os.ReadFile(vectorsPath)
	metaBytes, mErr := os.ReadFile(metadataPath)

	vMissing := errors.Is(vErr, fs.ErrNotExist)
	mMissing := errors.Is(mErr, fs.ErrNotExist)

	switch {
	case vMissing && mMissing:
		return New(0), nil
	case vErr != nil && !vMissing:
		return nil, fmt.Errorf("read vectors file: %w", vErr)
	case mErr != nil && !mMissing:
		return nil, fmt.Errorf("read metadata file: %w", mErr)
	case vMissing != mMissing:
		// One half of the pair survived a crash or got deleted by hand.
		return nil, fmt.Errorf("%w: only one of %s/%s present", ErrCorrupt, vectorsFile, metadataFile)
	}

	var doc metaDocument
	if err := json.Unmarshal(metaBytes, &doc); err != nil {
		return nil, fmt.Errorf("%w: metadata unreadable: %v", ErrCorrupt, err)
	}

	dim, vectors, err := decodeVectors(vectorBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if dim != doc.Dimension {
		return nil, fmt.Errorf("%w: vector dimension %d disagrees with metadata %d", ErrCorrupt, dim, doc.Dimension)
	}
	if len(vectors) != len(doc.WorkItemIDs) {
		return nil, fmt.Errorf("%w: %d vectors for %d work item ids", ErrCorrupt, len(vectors), len(doc.WorkItemIDs))
	}

	x := New(doc.Dimension)
	x.lastUpdated = doc.LastUpdated
	for i, id := range doc.WorkItemIDs {
		rec, ok := doc.Records[strconv.Itoa(id)]
		if !ok {
			return nil, fmt.Errorf("%w: work item %d has a vector but no record", ErrCorrupt, id)
		}
		if _, dup := x.slots[id]; dup {
			return nil, fmt.Errorf("%w: duplicate work item id %d", ErrCorrupt, id)
		}
		x.slots[id] = len(x.ids)
		x.ids = append(x.ids, id)
		x.vectors = append(x.vectors, vectors[i])
		x.records[id] = Record{
			Item:       rec.WorkItem,
			Source:     rec.EmbeddingSource,
			InsertedAt: rec.InsertedAt,
		}
	}
	return x, nil
}

// Clear removes both data files under an exclusive lock.
func (s *Store) Clear() error {
	if err := s.flk.Lock(); err != nil {
		return fmt.Errorf("lock index for clear: %w", err)
	}
	defer func() { _ = s.flk.Unlock() }()

	for _, name := range []string{vectorsFile, metadataFile} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

// encodeVectors lays out vectors.bin: magic, uint32 dimension, uint32 count,
// then count*dimension float32 components, all little-endian.
func encodeVectors(dim int, vectors [][]float32) []byte {
	buf := make([]byte, 0, len(vectorsMagic)+8+len(vectors)*dim*4)
	buf = append(buf, vectorsMagic...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(dim))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(vectors)))
	for _, v := range vectors {
		for _, f := range v {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
		}
	}
	return buf
}

func decodeVectors(data []byte) (int, [][]float32, error) {
	header := len(vectorsMagic) + 8
	if len(data) < header {
		return 0, nil, fmt.Errorf("vectors file truncated at %d bytes", len(data))
	}
	if string(data[:len(vectorsMagic)]) != vectorsMagic {
		return 0, nil, fmt.Errorf("vectors file has wrong magic %q", data[:len(vectorsMagic)])
	}

	dim := int(binary.LittleEndian.Uint32(data[len(vectorsMagic):]))
	count := int(binary.LittleEndian.Uint32(data[len(vectorsMagic)+4:]))

	want := header + count*dim*4
	if len(data) != want {
		return 0, nil, fmt.Errorf("vectors file is %d bytes, header promises %d", len(data), want)
	}

	vectors := make([][]float32, count)
	off := header
	for i := 0; i < count; i++ {
		v := make([]float32, dim)
		for j := 0; j < dim; j++ {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
		vectors[i] = v
	}
	return dim, vectors, nil
}
