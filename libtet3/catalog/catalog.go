package catalog

import (
	"crypto/sha256"
	"encoding/binary"
	"runtime"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/plan-systems/klog"

	"github.com/tet3systems/go-tet3/libtet3"
	"github.com/tet3systems/go-tet3/tet3"
)

/***

Catalog database format:

	kMeshEntry, digest[32]  => MeshInfo counts (3 varints), MeshDef
	kIdentEntry, uuid[16]   => digest[32]

A mesh is keyed by the content digest of its encoding, so re-adding the same
mesh "in its current form" is a no-op. The identity entry lets a remeshing
run recover the original input mesh later from the uuid it held at copy time.

***/

const (
	kMeshEntry  = byte(0x01)
	kIdentEntry = byte(0x02)
)

// catalog is a db wrapper for a mesh provenance store.
type catalog struct {
	readOnly bool
	db       *badger.DB

	// digest string => tet3.MeshInfo, loaded at open
	mu    sync.Mutex
	index *redblacktree.Tree
}

func OpenCatalog(opts tet3.CatalogOpts) (tet3.Catalog, error) {
	dbOpts := badger.DefaultOptions(opts.DbPathName)
	dbOpts.ReadOnly = opts.ReadOnly
	dbOpts.DetectConflicts = false // not needed so disable for performance
	dbOpts.Logger = nil
	dbOpts.MetricsEnabled = false

	// Badger for windows currently does not support read-only mode
	if runtime.GOOS == "windows" {
		dbOpts.ReadOnly = false
	}

	if len(opts.DbPathName) == 0 {
		if opts.ReadOnly {
			return nil, errors.Wrap(tet3.ErrBadCatalogParam, "DbPathName must be specified for read-only catalog")
		}
		dbOpts.InMemory = true
	}

	cat := &catalog{
		readOnly: opts.ReadOnly,
		index:    redblacktree.NewWithStringComparator(),
	}

	var err error
	cat.db, err = badger.Open(dbOpts)
	if err != nil {
		return nil, err
	}

	if err = cat.loadIndex(); err != nil {
		cat.db.Close()
		return nil, err
	}

	klog.Infof("opened mesh catalog %q: %d meshes", opts.DbPathName, cat.index.Size())
	return cat, nil
}

func (cat *catalog) loadIndex() error {
	return cat.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			PrefetchValues: true,
			PrefetchSize:   100,
			Prefix:         []byte{kMeshEntry},
		})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			digest := string(item.Key()[1:])
			err := item.Value(func(val []byte) error {
				info, _, err := readEntryInfo(val)
				if err != nil {
					return err
				}
				cat.index.Put(digest, info)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (cat *catalog) Close() error {
	if cat.db != nil {
		klog.Infof("closing mesh catalog: %d meshes", cat.index.Size())
		cat.db.Close()
		cat.db = nil
	}
	return nil
}

func (cat *catalog) IsReadOnly() bool {
	return cat.readOnly
}

func (cat *catalog) NumMeshes() int64 {
	cat.mu.Lock()
	defer cat.mu.Unlock()
	return int64(cat.index.Size())
}

// TryAddMesh adds the given mesh if it doesn't already exist (in its current
// form).
//
// If true is returned, m was not present and was added.
func (cat *catalog) TryAddMesh(m tet3.MeshState) bool {
	def, err := m.MarshalOut(nil)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(def)
	info := m.GetInfo()

	cat.mu.Lock()
	defer cat.mu.Unlock()

	if _, found := cat.index.Get(string(digest[:])); found {
		return false
	}

	val := appendEntryInfo(nil, info)
	val = append(val, def...)

	meshKey := append([]byte{kMeshEntry}, digest[:]...)
	uid := m.MeshID()
	identKey := append([]byte{kIdentEntry}, uid[:]...)

	err = cat.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(meshKey, val); err != nil {
			return err
		}
		return txn.Set(identKey, digest[:])
	})
	if err != nil {
		panic(err)
	}

	cat.index.Put(string(digest[:]), info)
	return true
}

// Select pushes every stored mesh matching sel to onHit, then closes it.
func (cat *catalog) Select(sel tet3.MeshSelector, onHit tet3.OnMeshHit) {
	defer close(onHit)

	txn := cat.db.NewTransaction(false)
	defer txn.Discard()

	it := txn.NewIterator(badger.IteratorOptions{
		PrefetchValues: true,
		PrefetchSize:   100,
		Prefix:         []byte{kMeshEntry},
	})
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		err := it.Item().Value(func(val []byte) error {
			info, def, err := readEntryInfo(val)
			if err != nil {
				return err
			}
			if !selectInfo(&sel, info) {
				return nil
			}
			m, err := libtet3.NewMeshFromDef(def)
			if err != nil {
				return err
			}
			onHit <- m
			return nil
		})
		if err != nil {
			panic(err)
		}
	}
}

// FetchByID returns the stored mesh carrying the given identity.
func (cat *catalog) FetchByID(id uuid.UUID) (tet3.MeshState, error) {
	var m tet3.MeshState
	err := cat.db.View(func(txn *badger.Txn) error {
		identKey := append([]byte{kIdentEntry}, id[:]...)
		item, err := txn.Get(identKey)
		if err != nil {
			return err
		}
		var meshKey []byte
		err = item.Value(func(digest []byte) error {
			meshKey = append([]byte{kMeshEntry}, digest...)
			return nil
		})
		if err != nil {
			return err
		}
		item, err = txn.Get(meshKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			_, def, err := readEntryInfo(val)
			if err != nil {
				return err
			}
			m, err = libtet3.NewMeshFromDef(def)
			return err
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, errors.Wrapf(tet3.ErrMeshNotFound, "id %s", id)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func selectInfo(sel *tet3.MeshSelector, info tet3.MeshInfo) bool {
	if info.NumVerts < sel.Min.NumVerts || info.NumCells < sel.Min.NumCells {
		return false
	}
	if sel.Max.NumVerts > 0 && info.NumVerts > sel.Max.NumVerts {
		return false
	}
	if sel.Max.NumCells > 0 && info.NumCells > sel.Max.NumCells {
		return false
	}
	return true
}

func appendEntryInfo(out []byte, info tet3.MeshInfo) []byte {
	out = binary.AppendUvarint(out, uint64(info.NumVerts))
	out = binary.AppendUvarint(out, uint64(info.NumCells))
	out = binary.AppendUvarint(out, uint64(info.NumHullCells))
	return out
}

func readEntryInfo(val []byte) (info tet3.MeshInfo, def []byte, err error) {
	for i, dst := range []*int{&info.NumVerts, &info.NumCells, &info.NumHullCells} {
		v, n := binary.Uvarint(val)
		if n <= 0 {
			return info, nil, errors.Wrapf(tet3.ErrBadEncoding, "catalog entry header field %d", i)
		}
		*dst = int(v)
		val = val[n:]
	}
	return info, val, nil
}
