// Package p2p provides message serialization for network communication.
package p2p

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/nyxlabs/veil/pkg/types"
)

// Message types
const (
	MsgTypeInstruction uint8 = 0x01
	MsgTypeRelayer     uint8 = 0x02
	MsgTypeRootSync    uint8 = 0x03
	MsgTypeGetRoots    uint8 = 0x10
	MsgTypeStatus      uint8 = 0x20
	MsgTypePing        uint8 = 0x30
	MsgTypePong        uint8 = 0x31
)

// Instruction kinds carried inside an InstructionMessage payload.
const (
	InstructionShield   uint8 = 0x01
	InstructionTransfer uint8 = 0x02
	InstructionUnshield uint8 = 0x03
)

// Message errors
var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooLarge    = errors.New("message too large")
	ErrInvalidChecksum    = errors.New("invalid checksum")
)

// MaxMessageSize is the maximum size of a network message. 256 KB comfortably
// bounds a Groth16 proof (256 bytes) plus envelope ciphertext and framing.
const MaxMessageSize = 256 * 1024

// Message represents a network message.
type Message struct {
	Type    uint8
	Payload []byte
}

// InstructionMessage gossips a client-submitted Shield/Transfer/Unshield
// instruction so any relayer on the network can forward it to the pool
// program, without requiring the submitter to know a relayer's address in
// advance (SPEC_FULL §12 relayer model).
type InstructionMessage struct {
	Kind          uint8
	Root          types.Hash
	Nullifier     types.Hash // zero for Shield
	NewCommitment types.Hash
	Proof         []byte
	Amount        uint64
	Recipient     types.Address // only meaningful for Unshield
}

// RelayerAnnouncement lets a relayer advertise its fee and liveness over the
// relayer gossip topic, the discovery mechanism backing relayer selection
// (SPEC_FULL §12).
type RelayerAnnouncement struct {
	Address  types.Address
	FeeBps   uint16
	Endpoint string
}

// RootSyncMessage carries a pool's current root plus its history window, so
// a light client or new relayer can catch up its local tree mirror without
// replaying every leaf from genesis.
type RootSyncMessage struct {
	CurrentRoot types.Hash
	History     []types.Hash
	NextIndex   uint64
}

// StatusMessage exchanges node status information on connect.
type StatusMessage struct {
	Version     uint32
	NetworkID   uint32
	TreeHeight  uint64
	CurrentRoot types.Hash
	GenesisRoot types.Hash
}

// Encode serializes a message for network transmission.
func (m *Message) Encode(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, m.Type); err != nil {
		return err
	}
	payloadLen := uint32(len(m.Payload))
	if err := binary.Write(w, binary.BigEndian, payloadLen); err != nil {
		return err
	}
	_, err := w.Write(m.Payload)
	return err
}

// Decode deserializes a message from network data.
func (m *Message) Decode(r io.Reader) error {
	if err := binary.Read(r, binary.BigEndian, &m.Type); err != nil {
		return err
	}
	var payloadLen uint32
	if err := binary.Read(r, binary.BigEndian, &payloadLen); err != nil {
		return err
	}
	if payloadLen > MaxMessageSize {
		return ErrMessageTooLarge
	}
	m.Payload = make([]byte, payloadLen)
	_, err := io.ReadFull(r, m.Payload)
	return err
}

// EncodeInstruction serializes an instruction message.
func EncodeInstruction(msg *InstructionMessage) ([]byte, error) {
	buf := make([]byte, 0, 128+len(msg.Proof))
	buf = append(buf, msg.Kind)
	buf = append(buf, msg.Root[:]...)
	buf = append(buf, msg.Nullifier[:]...)
	buf = append(buf, msg.NewCommitment[:]...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(msg.Proof)))
	buf = append(buf, msg.Proof...)
	buf = binary.BigEndian.AppendUint64(buf, msg.Amount)
	buf = append(buf, msg.Recipient[:]...)
	return buf, nil
}

// DecodeInstruction deserializes an instruction message.
func DecodeInstruction(data []byte) (*InstructionMessage, error) {
	const fixed = 1 + types.HashSize*3 + 4
	if len(data) < fixed {
		return nil, errors.New("p2p: instruction message too short")
	}
	msg := &InstructionMessage{Kind: data[0]}
	off := 1
	copy(msg.Root[:], data[off:off+types.HashSize])
	off += types.HashSize
	copy(msg.Nullifier[:], data[off:off+types.HashSize])
	off += types.HashSize
	copy(msg.NewCommitment[:], data[off:off+types.HashSize])
	off += types.HashSize

	proofLen := int(binary.BigEndian.Uint32(data[off : off+4]))
	off += 4
	if len(data) < off+proofLen+8+types.AddressSize {
		return nil, errors.New("p2p: instruction message truncated")
	}
	msg.Proof = append([]byte(nil), data[off:off+proofLen]...)
	off += proofLen

	msg.Amount = binary.BigEndian.Uint64(data[off : off+8])
	off += 8
	copy(msg.Recipient[:], data[off:off+types.AddressSize])

	return msg, nil
}

// EncodeRelayerAnnouncement serializes a relayer announcement.
func EncodeRelayerAnnouncement(a *RelayerAnnouncement) []byte {
	buf := make([]byte, 0, types.AddressSize+2+2+len(a.Endpoint))
	buf = append(buf, a.Address[:]...)
	buf = binary.BigEndian.AppendUint16(buf, a.FeeBps)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(a.Endpoint)))
	buf = append(buf, []byte(a.Endpoint)...)
	return buf
}

// DecodeRelayerAnnouncement deserializes a relayer announcement.
func DecodeRelayerAnnouncement(data []byte) (*RelayerAnnouncement, error) {
	const fixed = types.AddressSize + 2 + 2
	if len(data) < fixed {
		return nil, errors.New("p2p: relayer announcement too short")
	}
	a := &RelayerAnnouncement{}
	off := 0
	copy(a.Address[:], data[off:off+types.AddressSize])
	off += types.AddressSize
	a.FeeBps = binary.BigEndian.Uint16(data[off : off+2])
	off += 2
	endpointLen := int(binary.BigEndian.Uint16(data[off : off+2]))
	off += 2
	if len(data) < off+endpointLen {
		return nil, errors.New("p2p: relayer announcement truncated")
	}
	a.Endpoint = string(data[off : off+endpointLen])
	return a, nil
}

// EncodeRootSync serializes a root-sync message.
func EncodeRootSync(msg *RootSyncMessage) []byte {
	buf := make([]byte, 0, types.HashSize+8+4+len(msg.History)*types.HashSize)
	buf = append(buf, msg.CurrentRoot[:]...)
	buf = binary.BigEndian.AppendUint64(buf, msg.NextIndex)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(msg.History)))
	for _, h := range msg.History {
		buf = append(buf, h[:]...)
	}
	return buf
}

// DecodeRootSync deserializes a root-sync message.
func DecodeRootSync(data []byte) (*RootSyncMessage, error) {
	const fixed = types.HashSize + 8 + 4
	if len(data) < fixed {
		return nil, errors.New("p2p: root sync message too short")
	}
	msg := &RootSyncMessage{}
	off := 0
	copy(msg.CurrentRoot[:], data[off:off+types.HashSize])
	off += types.HashSize
	msg.NextIndex = binary.BigEndian.Uint64(data[off : off+8])
	off += 8
	count := int(binary.BigEndian.Uint32(data[off : off+4]))
	off += 4
	if len(data) < off+count*types.HashSize {
		return nil, errors.New("p2p: root sync message truncated")
	}
	msg.History = make([]types.Hash, count)
	for i := 0; i < count; i++ {
		copy(msg.History[i][:], data[off:off+types.HashSize])
		off += types.HashSize
	}
	return msg, nil
}

// EncodeStatus serializes a status message.
func EncodeStatus(status *StatusMessage) ([]byte, error) {
	buf := make([]byte, 0, 16+types.HashSize*2)
	buf = binary.BigEndian.AppendUint32(buf, status.Version)
	buf = binary.BigEndian.AppendUint32(buf, status.NetworkID)
	buf = binary.BigEndian.AppendUint64(buf, status.TreeHeight)
	buf = append(buf, status.CurrentRoot[:]...)
	buf = append(buf, status.GenesisRoot[:]...)
	return buf, nil
}

// DecodeStatus deserializes a status message.
func DecodeStatus(data []byte) (*StatusMessage, error) {
	want := 16 + types.HashSize*2
	if len(data) < want {
		return nil, errors.New("p2p: status message too short")
	}
	status := &StatusMessage{
		Version:    binary.BigEndian.Uint32(data[0:4]),
		NetworkID:  binary.BigEndian.Uint32(data[4:8]),
		TreeHeight: binary.BigEndian.Uint64(data[8:16]),
	}
	copy(status.CurrentRoot[:], data[16:16+types.HashSize])
	copy(status.GenesisRoot[:], data[16+types.HashSize:16+2*types.HashSize])
	return status, nil
}
