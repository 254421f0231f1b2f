// Package persistence implements an optional table snapshot: a plain
// encode-to-file dump with no journal, loaded back at startup. Store is
// the narrow, context-scoped contract; FileStore is its one
// implementation.
package persistence

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shmel1k/mcmgr/internal/registry"
)

// Snapshot is the table set written atomically to one base path. The
// session-id table is not part of it.
type Snapshot struct {
	Nodes     []registry.Node
	Balancers []registry.Balancer
	Hosts     []registry.Host
	Contexts  []registry.Context
	Domains   []registry.Domain
}

// Store persists and restores registry snapshots. cmd/mcmgr and the
// tests use *FileStore directly.
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (Snapshot, error)
}

// FileStore writes one gob-encoded snapshot file per base path, mirroring
// the native manager's memory-mapped-file-per-table design collapsed
// into a single file since there is no real shared memory to map.
type FileStore struct {
	basePath string
}

func NewFileStore(basePath string) *FileStore {
	return &FileStore{basePath: basePath}
}

func (f *FileStore) path() string {
	return f.basePath + ".snapshot"
}

func (f *FileStore) Save(_ context.Context, snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(f.path()), 0o755); err != nil {
		return fmt.Errorf("persistence: create base dir: %w", err)
	}
	tmp := f.path() + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("persistence: create snapshot file: %w", err)
	}
	if err := gob.NewEncoder(file).Encode(snap); err != nil {
		_ = file.Close()
		return fmt.Errorf("persistence: encode snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("persistence: close snapshot file: %w", err)
	}
	return os.Rename(tmp, f.path())
}

func (f *FileStore) Load(_ context.Context) (Snapshot, error) {
	var snap Snapshot
	file, err := os.Open(f.path())
	if err != nil {
		if os.IsNotExist(err) {
			return snap, nil
		}
		return snap, fmt.Errorf("persistence: open snapshot file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("persistence: decode snapshot: %w", err)
	}
	return snap, nil
}

// SnapshotFrom walks the node, balancer, host, context and domain tables
// in reg under the node lock, producing a Snapshot suitable for Save.
func SnapshotFrom(reg *registry.Registry) Snapshot {
	reg.LockNodes()
	defer reg.UnlockNodes()
	var snap Snapshot
	reg.EachNode(func(_ int, n registry.Node) { snap.Nodes = append(snap.Nodes, n) })
	for _, id := range reg.BalancerIDs() {
		if b, ok := reg.ReadBalancer(id); ok {
			snap.Balancers = append(snap.Balancers, b)
		}
	}
	reg.EachHost(func(_ int, h registry.Host) { snap.Hosts = append(snap.Hosts, h) })
	reg.EachContext(func(_ int, c registry.Context) { snap.Contexts = append(snap.Contexts, c) })
	for _, id := range reg.DomainIDs() {
		if d, ok := reg.ReadDomain(id); ok {
			snap.Domains = append(snap.Domains, d)
		}
	}
	return snap
}

// Restore replays a loaded Snapshot into reg. Nodes are written back at
// their saved ids, overwriting what is there; balancers, hosts, contexts
// and domains are upserted by their keys and take whatever slot that
// gives them. Called once at startup before the HTTP listener opens.
func Restore(reg *registry.Registry, snap Snapshot) {
	reg.LockNodes()
	defer reg.UnlockNodes()
	for _, b := range snap.Balancers {
		_ = reg.InsertUpdateBalancer(b)
	}
	for _, n := range snap.Nodes {
		_, _ = reg.InsertUpdateNode(n, n.ID, false)
	}
	for _, h := range snap.Hosts {
		_, _ = reg.InsertUpdateHost(h)
	}
	for _, c := range snap.Contexts {
		_, _ = reg.InsertUpdateContext(c)
	}
	for _, d := range snap.Domains {
		_, _ = reg.InsertDomain(d)
	}
}
