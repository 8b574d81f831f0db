// Package relayer implements the client-side relayer model: selecting an
// eligible relayer for a spend, estimating its fee, and tracking a
// submitted request's status (SPEC_FULL §2, §12). Relayers are untrusted
// third parties that submit a user's Transfer/Unshield instruction and pay
// the host-chain transaction fee in exchange for the basis-points cut taken
// out of the spend itself; they see only the public inputs and proof, never
// the sender, recipient, or amount a proof hides (SPEC_FULL §9).
//
// Grounded on the original client model (crates/core/src/relayer/mod.rs):
// this is thin selection/estimation policy, not a transport implementation
// (SPEC_FULL Non-goals exclude network-transport depth).
package relayer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nyxlabs/veil/internal/pool"
	"github.com/nyxlabs/veil/internal/zkp"
	"github.com/nyxlabs/veil/pkg/types"
)

// Errors returned by relayer client operations.
var (
	ErrNoRelayersAvailable       = errors.New("relayer: no eligible relayer available")
	ErrFeeTooHigh                = errors.New("relayer: selected relayer's fee exceeds the client's cap")
	ErrNullifierAlreadySubmitted = errors.New("relayer: nullifier was already submitted by this client")
)

// OperationType names the kinds of instruction a relayer can be asked to
// submit on a client's behalf.
type OperationType int

const (
	OperationTransfer OperationType = iota
	OperationUnshield
)

func (op OperationType) String() string {
	switch op {
	case OperationTransfer:
		return "transfer"
	case OperationUnshield:
		return "unshield"
	default:
		return "unknown"
	}
}

// RelayerInfo describes one relayer known to a Client, built either from a
// gossip RelayerAnnouncement (see gossip.go) or added directly by a caller.
type RelayerInfo struct {
	Address                types.Address
	Endpoint               string
	FeeBps                 uint16
	MinAmount              uint64
	SupportedOperations    []OperationType
	IsOnline               bool
	AvgConfirmationSeconds uint32
}

func (r RelayerInfo) supports(op OperationType) bool {
	for _, o := range r.SupportedOperations {
		if o == op {
			return true
		}
	}
	return false
}

// RelayRequest is a client's ask to have a relayer submit a spend
// instruction. NewCommitment is used for Transfer, Recipient/Amount for
// Unshield — mirroring pool.Pool's own Transfer/Unshield signatures.
type RelayRequest struct {
	Operation     OperationType
	Nullifier     types.Hash
	MerkleRoot    types.Hash
	Proof         []byte
	NewCommitment types.Hash
	Recipient     types.Address
	Amount        uint64
	MaxFee        uint64
}

// RelayStatus is the lifecycle state of a submitted RelayRequest.
type RelayStatus int

const (
	StatusPending RelayStatus = iota
	StatusSubmitted
	StatusConfirmed
	StatusFailed
)

// RelayResponse is a relayer's reply to a RelayRequest.
type RelayResponse struct {
	RequestID                   string
	Status                      RelayStatus
	Reason                      string // set when Status == StatusFailed
	Fee                         uint64
	EstimatedConfirmationSecond uint32
}

// Client tracks known relayers and selects among them for outgoing
// requests. It also keeps a local NullifierSet of nullifiers this client has
// already submitted, so a second Submit for the same note fails fast instead
// of round-tripping to a relayer only to be rejected by the pool's marker
// check (pool.Store.CreateMarker remains the sole authoritative double-spend
// mechanism; this is a client-side shortcut only).
type Client struct {
	relayers   []RelayerInfo
	maxFeeBps  uint16
	timeout    time.Duration
	nullifiers *zkp.NullifierSet
}

// NewClient returns a client capped at pool.MaxFeeBps with a 60-second
// request timeout, matching the original's defaults.
func NewClient() *Client {
	return &Client{
		maxFeeBps:  pool.MaxFeeBps,
		timeout:    60 * time.Second,
		nullifiers: zkp.NewNullifierSet(zkp.NewInMemoryNullifierStore(), nil),
	}
}

// NewClientWithSettings returns a client with a custom fee cap and timeout.
func NewClientWithSettings(maxFeeBps uint16, timeout time.Duration) *Client {
	return &Client{
		maxFeeBps:  maxFeeBps,
		timeout:    timeout,
		nullifiers: zkp.NewNullifierSet(zkp.NewInMemoryNullifierStore(), nil),
	}
}

// AddRelayer registers a relayer as a selection candidate.
func (c *Client) AddRelayer(info RelayerInfo) {
	c.relayers = append(c.relayers, info)
}

// Relayers returns the client's current candidate set.
func (c *Client) Relayers() []RelayerInfo {
	return append([]RelayerInfo(nil), c.relayers...)
}

// SelectRelayer picks the best relayer for op: online, supporting the
// operation, with a fee within the client's cap, tie-broken by lowest fee
// then fastest average confirmation time.
func (c *Client) SelectRelayer(op OperationType) (*RelayerInfo, error) {
	var best *RelayerInfo
	for i := range c.relayers {
		r := &c.relayers[i]
		if !r.IsOnline || !r.supports(op) || r.FeeBps > c.maxFeeBps {
			continue
		}
		if best == nil ||
			r.FeeBps < best.FeeBps ||
			(r.FeeBps == best.FeeBps && r.AvgConfirmationSeconds < best.AvgConfirmationSeconds) {
			best = r
		}
	}
	if best == nil {
		return nil, ErrNoRelayersAvailable
	}
	return best, nil
}

// EstimateFee returns (relayerFee, networkFee) for the given operation and
// amount, in the asset's base unit, using the currently selected relayer's
// advertised fee.
func (c *Client) EstimateFee(op OperationType, amount uint64) (relayerFee, networkFee uint64, err error) {
	r, err := c.SelectRelayer(op)
	if err != nil {
		return 0, 0, err
	}
	relayerFee = amount * uint64(r.FeeBps) / 10000

	switch op {
	case OperationTransfer:
		networkFee = 5000
	case OperationUnshield:
		networkFee = 5000
	default:
		networkFee = 5000
	}
	return relayerFee, networkFee, nil
}

// Submitter delivers an encoded InstructionMessage to the network — callers
// pass p2p.Node.BroadcastInstruction (or a stub, in tests) so this package
// never imports internal/p2p directly and stays a pure policy layer.
type Submitter func(data []byte) error

// Submit validates the request's fee against the selected relayer's rate,
// then encodes it and hands it to submit for delivery. It does not itself
// wait for on-chain confirmation — that is surfaced asynchronously via the
// RootSync/status gossip a caller is already subscribed to.
func (c *Client) Submit(ctx context.Context, req RelayRequest, encode func(RelayRequest) ([]byte, error), submit Submitter) (*RelayResponse, error) {
	alreadySubmitted, err := c.nullifiers.IsSpent(ctx, req.Nullifier)
	if err != nil {
		return nil, err
	}
	if alreadySubmitted {
		return nil, ErrNullifierAlreadySubmitted
	}

	relayerFee, _, err := c.EstimateFee(req.Operation, req.Amount)
	if err != nil {
		return nil, err
	}
	if relayerFee > req.MaxFee {
		return nil, fmt.Errorf("%w: fee %d exceeds max_fee %d", ErrFeeTooHigh, relayerFee, req.MaxFee)
	}

	r, err := c.SelectRelayer(req.Operation)
	if err != nil {
		return nil, err
	}

	data, err := encode(req)
	if err != nil {
		return nil, err
	}
	if err := submit(data); err != nil {
		return nil, err
	}

	// Record the nullifier as submitted so a caller retrying the same note
	// (e.g. after a UI double-click) fails locally instead of burning a
	// relayer round trip. txHash/blockHeight are unknown at submit time —
	// this cache only tracks "already handed to a relayer", not on-chain
	// confirmation.
	if err := c.nullifiers.MarkSpent(ctx, req.Nullifier, types.Hash{}, 0); err != nil {
		return nil, err
	}

	return &RelayResponse{
		RequestID:                   fmt.Sprintf("req_%x", req.Nullifier[:8]),
		Status:                      StatusSubmitted,
		Fee:                         relayerFee,
		EstimatedConfirmationSecond: r.AvgConfirmationSeconds,
	}, nil
}

// FeeEstimator computes relayer fees independent of any specific relayer's
// advertised rate — useful for a client estimating cost before a relayer
// set is even known (e.g. display-only UI estimates).
type FeeEstimator struct {
	BaseFeeBps           uint16
	CongestionMultiplier float64

	// MinFee is the floor applied after the percentage fee, covering the
	// relayer's own host-chain transaction cost regardless of spend size.
	MinFee uint64
}

// DefaultFeeEstimator returns an estimator at the pool's default fee rate
// with no congestion adjustment.
func DefaultFeeEstimator() FeeEstimator {
	return FeeEstimator{BaseFeeBps: pool.DefaultFeeBps, CongestionMultiplier: 1.0, MinFee: 5000}
}

// Estimate returns the total fee charged on a spend of amount.
func (e FeeEstimator) Estimate(amount uint64) uint64 {
	baseFee := amount * uint64(e.BaseFeeBps) / 10000
	adjusted := uint64(float64(baseFee) * e.CongestionMultiplier)
	if adjusted < e.MinFee {
		return e.MinFee
	}
	return adjusted
}

// AmountAfterFees returns what a recipient nets after Estimate's fee is
// deducted from amount.
func (e FeeEstimator) AmountAfterFees(amount uint64) uint64 {
	fee := e.Estimate(amount)
	if fee > amount {
		return 0
	}
	return amount - fee
}

// AmountNeededFor returns the gross amount a sender must spend so that the
// recipient nets desired after fees, inverting AmountAfterFees' percentage
// (not minimum-floor) case.
func (e FeeEstimator) AmountNeededFor(desired uint64) uint64 {
	adjustedBps := uint64(float64(e.BaseFeeBps) * e.CongestionMultiplier)
	if adjustedBps >= 10000 {
		return desired
	}
	return desired * 10000 / (10000 - adjustedBps)
}
