// Package p2p provides tree-mirror synchronization for light clients and
// relayers that keep an off-chain copy of the pool's Merkle tree for proof
// generation (SPEC_FULL §4.2, §12).
package p2p

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/nyxlabs/veil/internal/field"
	"github.com/nyxlabs/veil/internal/merkle"
	"github.com/nyxlabs/veil/pkg/types"
)

// Sync errors
var (
	ErrNoSyncPeers = errors.New("no peers available for sync")
	ErrSyncTimeout = errors.New("sync timeout")
	ErrStaleRoot   = errors.New("received root older than local state")
	ErrGapInLeaves = errors.New("received leaf batch does not extend contiguously from local state")
)

// SyncManager keeps a local TreeStore's mirror of the pool's Merkle tree
// caught up by applying the leaves passed to HandleLeaf, in index order.
// It fetches nothing from peers itself; RootSyncMessage only updates the
// sync target.
type SyncManager struct {
	mu sync.RWMutex

	node  *Node
	tree  *merkle.Tree
	store merkle.TreeStore

	syncing      bool
	syncTarget   uint64
	syncProgress uint64
	lastSyncPeer peer.ID

	// pendingLeaves holds leaves received out of order, keyed by index,
	// until the gap before them closes.
	pendingLeaves map[uint64]fr.Element

	requestTimeout time.Duration
}

// SyncConfig holds synchronization configuration.
type SyncConfig struct {
	RequestTimeout time.Duration
}

// DefaultSyncConfig returns default sync configuration.
func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{RequestTimeout: 30 * time.Second}
}

// NewSyncManager creates a sync manager over tree, backed by store.
func NewSyncManager(node *Node, tree *merkle.Tree, store merkle.TreeStore, cfg *SyncConfig) *SyncManager {
	if cfg == nil {
		cfg = DefaultSyncConfig()
	}
	return &SyncManager{
		node:           node,
		tree:           tree,
		store:          store,
		pendingLeaves:  make(map[uint64]fr.Element),
		requestTimeout: cfg.RequestTimeout,
	}
}

// Start picks the known peer with the highest TreeIndex and records it as
// the sync target; it requests no leaves. It returns ErrNoSyncPeers when no
// peer has a TreeIndex above zero.
func (sm *SyncManager) Start(ctx context.Context) error {
	bestPeer, bestIndex := sm.findBestPeer()
	if bestPeer == "" {
		return ErrNoSyncPeers
	}

	localIndex := sm.tree.NextIndex()
	if bestIndex <= localIndex {
		return nil // already caught up
	}

	sm.mu.Lock()
	sm.syncing = true
	sm.syncTarget = bestIndex
	sm.syncProgress = localIndex
	sm.lastSyncPeer = bestPeer
	sm.mu.Unlock()

	return nil
}

// findBestPeer finds the peer with the highest announced tree index.
func (sm *SyncManager) findBestPeer() (peer.ID, uint64) {
	peers := sm.node.Peers()
	if len(peers) == 0 {
		return "", 0
	}

	var bestPeer peer.ID
	var bestIndex uint64
	for _, p := range peers {
		if p.TreeIndex > bestIndex {
			bestIndex = p.TreeIndex
			bestPeer = p.ID
		}
	}
	return bestPeer, bestIndex
}

// HandleRootSync processes an incoming RootSyncMessage, advancing local
// sync progress bookkeeping. It does not itself mutate the tree — leaves
// still arrive (and are applied) individually via HandleLeaf, since the
// pool's state machine, not gossip, is the source of truth for tree
// contents; RootSyncMessage only tells a peer how far ahead the network is.
func (sm *SyncManager) HandleRootSync(msg *RootSyncMessage) error {
	localRoot := sm.tree.Root()
	localRootHash := types.Hash(field.ToBytesLE(localRoot))

	if msg.NextIndex < sm.tree.NextIndex() {
		if msg.CurrentRoot != localRootHash {
			return ErrStaleRoot
		}
		return nil
	}

	sm.mu.Lock()
	sm.syncTarget = msg.NextIndex
	sm.mu.Unlock()
	return nil
}

// HandleLeaf applies a single leaf received from a peer at the given index,
// appending it immediately if it extends the tree contiguously, or holding
// it in pendingLeaves otherwise until the gap closes.
func (sm *SyncManager) HandleLeaf(ctx context.Context, index uint64, leaf fr.Element) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	next := sm.tree.NextIndex()
	if index < next {
		return nil // already have it
	}
	if index > next {
		sm.pendingLeaves[index] = leaf
		return nil
	}

	if _, err := sm.tree.Insert(ctx, leaf); err != nil {
		return err
	}
	sm.syncProgress = sm.tree.NextIndex()

	// Drain any now-contiguous pending leaves.
	for {
		nextIdx := sm.tree.NextIndex()
		pending, ok := sm.pendingLeaves[nextIdx]
		if !ok {
			break
		}
		delete(sm.pendingLeaves, nextIdx)
		if _, err := sm.tree.Insert(ctx, pending); err != nil {
			return err
		}
		sm.syncProgress = sm.tree.NextIndex()
	}
	return nil
}

// IsSyncing returns whether sync is in progress.
func (sm *SyncManager) IsSyncing() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.syncing
}

// Progress returns sync progress as (current, target) leaf indices.
func (sm *SyncManager) Progress() (current, target uint64) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.syncProgress, sm.syncTarget
}

// PendingCount returns the number of leaves buffered awaiting a gap to close.
func (sm *SyncManager) PendingCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.pendingLeaves)
}
