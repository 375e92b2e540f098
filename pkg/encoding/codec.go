// Package encoding implements the canonical, byte-exact wire encoding of
// bridge actions: the same bytes an on-chain verifier re-derives before
// checking a committee signature. A single wrong byte here breaks every
// signature in the system, so this package has no behavior beyond
// deterministic byte assembly.
package encoding

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/certen/bridge-orchestrator/pkg/bridgeaction"
)

// MessagePrefix is prepended to every encoded message before hashing or
// signing. Changing it is a wire-breaking change.
var MessagePrefix = []byte("SUI_BRIDGE_MESSAGE")

// messageVersion is 1 for every variant today; a future variant bump
// would carry its own constant the way the original does.
const messageVersion = 1

// Encode produces the full envelope bytes for an action: message type,
// version, nonce, chain id, and the variant payload. EncodeWithPrefix
// prepends MessagePrefix to these bytes to form what gets hashed and what
// every committee member signs over.
func Encode(a *bridgeaction.Action) ([]byte, error) {
	payload, err := encodePayload(a)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, 2+8+1+len(payload))
	buf = append(buf, byte(a.Type), messageVersion)
	nonceBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(nonceBytes, a.Nonce())
	buf = append(buf, nonceBytes...)
	buf = append(buf, a.ChainID())
	buf = append(buf, payload...)
	return buf, nil
}

// EncodeWithPrefix is Encode with MessagePrefix prepended — the exact
// bytes a committee member signs and an on-chain verifier re-derives.
func EncodeWithPrefix(a *bridgeaction.Action) ([]byte, error) {
	body, err := Encode(a)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(MessagePrefix)+len(body))
	out = append(out, MessagePrefix...)
	out = append(out, body...)
	return out, nil
}

// Digest returns the Keccak256 hash of the prefixed envelope: the
// content-addressed identity of an action used as its WAL key.
func Digest(a *bridgeaction.Action) ([32]byte, error) {
	var digest [32]byte
	bs, err := EncodeWithPrefix(a)
	if err != nil {
		return digest, err
	}
	copy(digest[:], crypto.Keccak256(bs))
	return digest, nil
}

func encodePayload(a *bridgeaction.Action) ([]byte, error) {
	switch a.Type {
	case bridgeaction.ActionTypeTokenTransfer:
		return encodeTokenTransfer(a.TokenTransfer)
	case bridgeaction.ActionTypeBlocklist:
		return encodeBlocklist(a.BlocklistCommittee)
	case bridgeaction.ActionTypeEmergency:
		return encodeEmergency(a.Emergency), nil
	case bridgeaction.ActionTypeLimitUpdate:
		return encodeLimitUpdate(a.LimitUpdate), nil
	case bridgeaction.ActionTypeAssetPrice:
		return encodeAssetPrice(a.AssetPriceUpdate), nil
	case bridgeaction.ActionTypeUpgrade:
		return encodeContractUpgrade(a.ContractUpgrade), nil
	case bridgeaction.ActionTypeAddTokensOnA:
		return encodeAddTokensOnA(a.AddTokensOnA)
	case bridgeaction.ActionTypeAddTokensOnB:
		return encodeAddTokensOnB(a.AddTokensOnB)
	default:
		return nil, fmt.Errorf("encoding: unhandled action type %v", a.Type)
	}
}

func encodeTokenTransfer(t *bridgeaction.TokenTransfer) ([]byte, error) {
	if len(t.SourceAddr) > 255 || len(t.DestAddr) > 255 {
		return nil, fmt.Errorf("encoding: address longer than 255 bytes")
	}
	buf := make([]byte, 0, 2+len(t.SourceAddr)+2+len(t.DestAddr)+1+8)
	buf = append(buf, byte(len(t.SourceAddr)))
	buf = append(buf, t.SourceAddr...)
	buf = append(buf, t.DestChainID)
	buf = append(buf, byte(len(t.DestAddr)))
	buf = append(buf, t.DestAddr...)
	buf = append(buf, t.TokenID)
	amountBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(amountBytes, t.Amount)
	buf = append(buf, amountBytes...)
	return buf, nil
}

func encodeBlocklist(b *bridgeaction.BlocklistCommittee) ([]byte, error) {
	if len(b.Members) > 255 {
		return nil, fmt.Errorf("encoding: blocklist member count overflows a byte")
	}
	buf := make([]byte, 0, 2+20*len(b.Members))
	buf = append(buf, byte(b.Op), byte(len(b.Members)))
	for _, pubKey := range b.Members {
		addr, err := bridgeaction.AuthorityAddress(pubKey)
		if err != nil {
			return nil, fmt.Errorf("encoding: deriving blocklist member address: %w", err)
		}
		buf = append(buf, addr[:]...)
	}
	return buf, nil
}

func encodeEmergency(e *bridgeaction.Emergency) []byte {
	return []byte{byte(e.Op)}
}

func encodeLimitUpdate(l *bridgeaction.LimitUpdate) []byte {
	buf := make([]byte, 0, 9)
	buf = append(buf, l.SendingChainID)
	limitBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(limitBytes, l.NewUSDLimit)
	return append(buf, limitBytes...)
}

func encodeAssetPrice(p *bridgeaction.AssetPriceUpdate) []byte {
	buf := make([]byte, 0, 9)
	buf = append(buf, p.TokenID)
	priceBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(priceBytes, p.NewUSDPrice)
	return append(buf, priceBytes...)
}

// encodeContractUpgrade produces the ABI tuple encoding of
// (address proxy, address new_impl, bytes call_data): two 32-byte padded
// addresses, a 32-byte offset to the bytes field (fixed at 0x60 since
// there are exactly three head slots), the bytes length, and the bytes
// themselves padded to a 32-byte boundary.
func encodeContractUpgrade(u *bridgeaction.ContractUpgrade) []byte {
	buf := make([]byte, 0, 32*3+32+32+roundUp32(len(u.CallData)))
	buf = append(buf, abiPadAddress(u.ProxyAddr)...)
	buf = append(buf, abiPadAddress(u.NewImplAddr)...)
	buf = append(buf, abiPadUint64(0x60)...)
	buf = append(buf, abiPadUint64(uint64(len(u.CallData)))...)
	buf = append(buf, abiPadBytes(u.CallData)...)
	return buf
}

func abiPadAddress(addr [20]byte) []byte {
	out := make([]byte, 32)
	copy(out[12:], addr[:])
	return out
}

func abiPadUint64(v uint64) []byte {
	out := make([]byte, 32)
	binary.BigEndian.PutUint64(out[24:], v)
	return out
}

func abiPadBytes(b []byte) []byte {
	out := make([]byte, roundUp32(len(b)))
	copy(out, b)
	return out
}

func roundUp32(n int) int {
	if n%32 == 0 {
		return n
	}
	return n + (32 - n%32)
}

func encodeAddTokensOnA(a *bridgeaction.AddTokensOnA) ([]byte, error) {
	buf := make([]byte, 0, 1+len(a.TokenIDs)+16+len(a.Prices)*8)
	buf = append(buf, boolByte(a.Native))
	buf = append(buf, bcsEncodeU8Vec(a.TokenIDs)...)
	typeNames, err := bcsEncodeStringVec(a.TypeNames)
	if err != nil {
		return nil, err
	}
	buf = append(buf, typeNames...)
	buf = append(buf, bcsEncodeU64Vec(a.Prices)...)
	return buf, nil
}

func encodeAddTokensOnB(a *bridgeaction.AddTokensOnB) ([]byte, error) {
	if len(a.TokenIDs) > 255 || len(a.TokenAddrs) > 255 || len(a.Decimals) > 255 || len(a.Prices) > 255 {
		return nil, fmt.Errorf("encoding: AddTokensOnB vector longer than 255 elements")
	}
	buf := make([]byte, 0, 1+1+len(a.TokenIDs)+1+20*len(a.TokenAddrs)+1+len(a.Decimals)+1+8*len(a.Prices))
	buf = append(buf, boolByte(a.Native))
	buf = append(buf, byte(len(a.TokenIDs)))
	buf = append(buf, a.TokenIDs...)
	buf = append(buf, byte(len(a.TokenAddrs)))
	for _, addr := range a.TokenAddrs {
		buf = append(buf, addr[:]...)
	}
	buf = append(buf, byte(len(a.Decimals)))
	buf = append(buf, a.Decimals...)
	buf = append(buf, byte(len(a.Prices)))
	for _, p := range a.Prices {
		priceBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(priceBytes, p)
		buf = append(buf, priceBytes...)
	}
	return buf, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
