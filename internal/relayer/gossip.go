package relayer

import (
	"sync"
	"time"

	"github.com/nyxlabs/veil/internal/p2p"
	"github.com/nyxlabs/veil/pkg/types"
)

// Directory keeps a Client's candidate set in sync with the network's
// relayer-announcement gossip topic, replacing the original's
// `add_default_relayers` out-of-band placeholder with live discovery
// (SPEC_FULL §12).
type Directory struct {
	mu     sync.Mutex
	client *Client
	seen   map[types.Address]time.Time

	// staleAfter marks a relayer offline once its last announcement is
	// older than this, so a relayer that stopped gossiping without a
	// clean shutdown still drops out of selection.
	staleAfter time.Duration
}

// NewDirectory wraps client with gossip-driven discovery.
func NewDirectory(client *Client) *Directory {
	return &Directory{
		client:     client,
		seen:       make(map[types.Address]time.Time),
		staleAfter: 2 * time.Minute,
	}
}

// HandleAnnouncement processes a RelayerAnnouncement received over the
// network, registering the relayer (or refreshing its liveness) in the
// underlying client. It assumes Transfer and Unshield support — the
// announcement wire format carries only fee and endpoint, not a
// capabilities list, since every relayer in this module's transfer-only
// circuit handles both operations identically.
func (d *Directory) HandleAnnouncement(msg *p2p.RelayerAnnouncement) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seen[msg.Address] = timeNow()

	for i := range d.client.relayers {
		if d.client.relayers[i].Address == msg.Address {
			d.client.relayers[i].FeeBps = msg.FeeBps
			d.client.relayers[i].Endpoint = msg.Endpoint
			d.client.relayers[i].IsOnline = true
			return
		}
	}

	d.client.AddRelayer(RelayerInfo{
		Address:                msg.Address,
		Endpoint:               msg.Endpoint,
		FeeBps:                 msg.FeeBps,
		SupportedOperations:    []OperationType{OperationTransfer, OperationUnshield},
		IsOnline:               true,
		AvgConfirmationSeconds: 5,
	})
}

// Prune marks every relayer whose last announcement is older than
// staleAfter as offline, removing it from SelectRelayer's eligible set
// without discarding its entry (it reappears automatically if it resumes
// gossiping).
func (d *Directory) Prune() {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := timeNow().Add(-d.staleAfter)
	for addr, lastSeen := range d.seen {
		if lastSeen.Before(cutoff) {
			for i := range d.client.relayers {
				if d.client.relayers[i].Address == addr {
					d.client.relayers[i].IsOnline = false
				}
			}
		}
	}
}

// timeNow is a var so tests can stub it.
var timeNow = time.Now
