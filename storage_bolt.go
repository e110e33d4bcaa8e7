package tabledb

import (
	"time"
	"unsafe"

	"go.etcd.io/bbolt"
)

const boltFileName = "table.bolt"

var rowsBucket = []byte("rows")

type boltStorage struct {
	bdb *bbolt.DB
}

func openBoltStorage(path string, opt *Options) (storage, error) {
	bopt := *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.NoSync {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
	} else {
		bopt.FreelistType = bbolt.FreelistMapType
	}
	bdb, err := bbolt.Open(path, 0o666, &bopt)
	if err != nil {
		return nil, ioErr(err)
	}
	return &boltStorage{bdb: bdb}, nil
}

func (s *boltStorage) Load() (map[string]string, error) {
	m := make(map[string]string)
	err := s.bdb.View(func(btx *bbolt.Tx) error {
		b := btx.Bucket(rowsBucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if err := validateKey(string(k)); err != nil {
				return dataErrf(v, 0, err, "invalid key %s in %s", hexstr(k), boltFileName)
			}
			m[string(k)] = string(v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Save replaces the rows bucket wholesale within a single Bolt transaction,
// so a failed Save leaves the previous rows intact.
func (s *boltStorage) Save(rows map[string]string) (int64, error) {
	var size int64
	err := s.bdb.Update(func(btx *bbolt.Tx) error {
		err := btx.DeleteBucket(rowsBucket)
		if err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		b, err := btx.CreateBucket(rowsBucket)
		if err != nil {
			return err
		}
		for k, v := range rows {
			if err := b.Put(unsafeBytesFromString(k), []byte(v)); err != nil {
				return err
			}
		}
		size = btx.Size()
		return nil
	})
	if err != nil {
		return 0, ioErr(err)
	}
	return size, nil
}

func (s *boltStorage) Close() error {
	return ioErr(s.bdb.Close())
}

func unsafeBytesFromString(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
