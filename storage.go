package tabledb

import (
	"path/filepath"
)

// StorageKind selects where a table keeps its committed rows.
type StorageKind int

const (
	// FileStorage keeps committed rows in the container file table.dat.
	FileStorage StorageKind = iota

	// BoltStorage keeps committed rows in a Bolt database, table.bolt.
	BoltStorage
)

func (k StorageKind) String() string {
	switch k {
	case FileStorage:
		return "file"
	case BoltStorage:
		return "bolt"
	default:
		return "invalid"
	}
}

// ParseStorageKind is the inverse of StorageKind.String.
func ParseStorageKind(s string) (StorageKind, bool) {
	switch s {
	case "file", "":
		return FileStorage, true
	case "bolt":
		return BoltStorage, true
	default:
		return FileStorage, false
	}
}

// storage persists the committed rows of one table as a key→row text map.
// Save always receives the complete map and replaces everything stored
// before.
type storage interface {
	Load() (map[string]string, error)

	// Save returns the number of bytes it wrote.
	Save(rows map[string]string) (int64, error)

	Close() error
}

func openStorage(kind StorageKind, dir string, opt *Options) (storage, error) {
	switch kind {
	case FileStorage:
		return &fileStorage{path: filepath.Join(dir, containerFileName), noSync: opt.NoSync}, nil
	case BoltStorage:
		return openBoltStorage(filepath.Join(dir, boltFileName), opt)
	default:
		panic("invalid storage kind")
	}
}

// storageFileNames lists every file a table directory may hold besides the
// schema file. A table uses exactly one of them.
var storageFileNames = []string{containerFileName, boltFileName}

type fileStorage struct {
	path   string
	noSync bool
}

func (s *fileStorage) Load() (map[string]string, error) {
	return readContainerFile(s.path)
}

func (s *fileStorage) Save(rows map[string]string) (int64, error) {
	n, err := writeContainerFile(s.path, rows, s.noSync)
	return int64(n), err
}

func (s *fileStorage) Close() error {
	return nil
}
