package relayer

import (
	"errors"
	"testing"
	"time"

	"github.com/nyxlabs/veil/pkg/types"
)

func TestSelectRelayerNoneAvailable(t *testing.T) {
	c := NewClient()
	if _, err := c.SelectRelayer(OperationTransfer); err != ErrNoRelayersAvailable {
		t.Fatalf("expected ErrNoRelayersAvailable, got %v", err)
	}
}

func TestSelectRelayerSkipsOfflineAndUnsupported(t *testing.T) {
	c := NewClient()
	c.AddRelayer(RelayerInfo{
		Address:             types.Address{1},
		FeeBps:              10,
		SupportedOperations: []OperationType{OperationTransfer},
		IsOnline:            false,
	})
	c.AddRelayer(RelayerInfo{
		Address:             types.Address{2},
		FeeBps:              10,
		SupportedOperations: []OperationType{OperationUnshield},
		IsOnline:            true,
	})

	if _, err := c.SelectRelayer(OperationTransfer); err != ErrNoRelayersAvailable {
		t.Fatalf("expected ErrNoRelayersAvailable, got %v", err)
	}
}

func TestSelectRelayerPrefersLowerFeeThenFasterConfirmation(t *testing.T) {
	c := NewClient()
	c.AddRelayer(RelayerInfo{
		Address:                types.Address{1},
		FeeBps:                 30,
		SupportedOperations:    []OperationType{OperationTransfer},
		IsOnline:               true,
		AvgConfirmationSeconds: 10,
	})
	c.AddRelayer(RelayerInfo{
		Address:                types.Address{2},
		FeeBps:                 10,
		SupportedOperations:    []OperationType{OperationTransfer},
		IsOnline:               true,
		AvgConfirmationSeconds: 20,
	})
	c.AddRelayer(RelayerInfo{
		Address:                types.Address{3},
		FeeBps:                 10,
		SupportedOperations:    []OperationType{OperationTransfer},
		IsOnline:               true,
		AvgConfirmationSeconds: 5,
	})

	best, err := c.SelectRelayer(OperationTransfer)
	if err != nil {
		t.Fatalf("SelectRelayer returned error: %v", err)
	}
	if best.Address != (types.Address{3}) {
		t.Fatalf("expected relayer 3 (lowest fee, fastest confirmation), got %+v", best)
	}
}

func TestSelectRelayerRespectsFeeCap(t *testing.T) {
	c := NewClientWithSettings(20, time.Second)
	c.AddRelayer(RelayerInfo{
		Address:             types.Address{1},
		FeeBps:              30,
		SupportedOperations: []OperationType{OperationTransfer},
		IsOnline:            true,
	})

	if _, err := c.SelectRelayer(OperationTransfer); err != ErrNoRelayersAvailable {
		t.Fatalf("expected the over-cap relayer to be ineligible, got %v", err)
	}
}

func TestEstimateFeeUsesSelectedRelayerRate(t *testing.T) {
	c := NewClient()
	c.AddRelayer(RelayerInfo{
		Address:             types.Address{1},
		FeeBps:              30,
		SupportedOperations: []OperationType{OperationTransfer},
		IsOnline:            true,
	})

	relayerFee, networkFee, err := c.EstimateFee(OperationTransfer, 1_000_000_000)
	if err != nil {
		t.Fatalf("EstimateFee returned error: %v", err)
	}
	if relayerFee != 3_000_000 {
		t.Fatalf("expected relayer fee 3_000_000, got %d", relayerFee)
	}
	if networkFee != 5000 {
		t.Fatalf("expected network fee 5000, got %d", networkFee)
	}
}

func TestSubmitRejectsFeeAboveMaxFee(t *testing.T) {
	c := NewClient()
	c.AddRelayer(RelayerInfo{
		Address:             types.Address{1},
		FeeBps:              30,
		SupportedOperations: []OperationType{OperationTransfer},
		IsOnline:            true,
	})

	req := RelayRequest{
		Operation: OperationTransfer,
		Amount:    1_000_000_000,
		MaxFee:    1, // far below the 3_000_000 the relayer would charge
	}

	_, err := c.Submit(nil, req, func(RelayRequest) ([]byte, error) { return nil, nil }, func([]byte) error { return nil })
	if !errors.Is(err, ErrFeeTooHigh) {
		t.Fatalf("expected ErrFeeTooHigh, got %v", err)
	}
}

func TestSubmitDeliversEncodedRequest(t *testing.T) {
	c := NewClient()
	c.AddRelayer(RelayerInfo{
		Address:             types.Address{1},
		FeeBps:              30,
		SupportedOperations: []OperationType{OperationTransfer},
		IsOnline:            true,
	})

	req := RelayRequest{
		Operation: OperationTransfer,
		Nullifier: types.Hash{0xAB},
		Amount:    1_000_000_000,
		MaxFee:    10_000_000,
	}

	var delivered []byte
	resp, err := c.Submit(nil, req,
		func(r RelayRequest) ([]byte, error) { return []byte{byte(r.Operation)}, nil },
		func(data []byte) error { delivered = data; return nil },
	)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if resp.Status != StatusSubmitted {
		t.Fatalf("expected StatusSubmitted, got %v", resp.Status)
	}
	if len(delivered) != 1 || delivered[0] != byte(OperationTransfer) {
		t.Fatalf("encoded request was not delivered to the submitter, got %v", delivered)
	}
}

func TestSubmitRejectsRepeatNullifier(t *testing.T) {
	c := NewClient()
	c.AddRelayer(RelayerInfo{
		Address:             types.Address{1},
		FeeBps:              30,
		SupportedOperations: []OperationType{OperationTransfer},
		IsOnline:            true,
	})

	req := RelayRequest{
		Operation: OperationTransfer,
		Nullifier: types.Hash{0xCD},
		Amount:    1_000_000_000,
		MaxFee:    10_000_000,
	}
	encode := func(r RelayRequest) ([]byte, error) { return []byte{byte(r.Operation)}, nil }
	submit := func([]byte) error { return nil }

	if _, err := c.Submit(nil, req, encode, submit); err != nil {
		t.Fatalf("first Submit returned error: %v", err)
	}

	if _, err := c.Submit(nil, req, encode, submit); !errors.Is(err, ErrNullifierAlreadySubmitted) {
		t.Fatalf("expected ErrNullifierAlreadySubmitted on resubmit, got %v", err)
	}
}

func TestFeeEstimatorAppliesMinimumFloor(t *testing.T) {
	e := DefaultFeeEstimator()

	if fee := e.Estimate(1_000_000_000); fee != 3_000_000 {
		t.Fatalf("expected 3_000_000, got %d", fee)
	}
	if fee := e.Estimate(1000); fee != e.MinFee {
		t.Fatalf("expected the minimum fee floor %d, got %d", e.MinFee, fee)
	}
}

func TestFeeEstimatorAmountAfterFees(t *testing.T) {
	e := DefaultFeeEstimator()

	received := e.AmountAfterFees(1_000_000_000)
	if received != 997_000_000 {
		t.Fatalf("expected 997_000_000, got %d", received)
	}
}

func TestFeeEstimatorAmountNeededForInvertsAmountAfterFees(t *testing.T) {
	e := DefaultFeeEstimator()

	gross := e.AmountNeededFor(997_000_000)
	netted := e.AmountAfterFees(gross)
	// Integer rounding means this isn't exact, but it should be within a
	// few units of the desired amount.
	diff := int64(netted) - int64(997_000_000)
	if diff < -2 || diff > 2 {
		t.Fatalf("AmountNeededFor/AmountAfterFees did not round-trip closely: got %d, want ~997000000", netted)
	}
}
