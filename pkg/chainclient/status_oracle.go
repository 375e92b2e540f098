package chainclient

import (
	"context"
	"fmt"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/certen/bridge-orchestrator/pkg/bridgeaction"
)

// ContractStatusOracle reads an action's status from the bridge
// contract's status view function. It is the default StatusOracle for a
// live EVMClient.
type ContractStatusOracle struct {
	eth      *ethclient.Client
	contract common.Address
}

// NewContractStatusOracle builds a ContractStatusOracle over an already
// dialed client.
func NewContractStatusOracle(eth *ethclient.Client, contract common.Address) *ContractStatusOracle {
	return &ContractStatusOracle{eth: eth, contract: contract}
}

var (
	abiBytes32           = mustABIType("bytes32")
	abiUint8             = mustABIType("uint8")
	actionStatusSelector = crypto.Keccak256([]byte("actionStatus(bytes32)"))[:4]
	actionStatusArgs     = abi.Arguments{{Type: abiBytes32}}
	actionStatusReturns  = abi.Arguments{{Type: abiUint8}}
)

func mustABIType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(fmt.Sprintf("chainclient: bad abi type %q: %v", name, err))
	}
	return t
}

// ActionStatus calls the bridge contract's view function for digest and
// maps its returned status code onto bridgeaction.Status. A call error
// (including the destination node being briefly unreachable) is returned
// to the caller, which is expected to retry — EVMClient.
// GetActionStatusUntilSuccess does exactly that.
func (o *ContractStatusOracle) ActionStatus(ctx context.Context, digest [32]byte) (bridgeaction.Status, error) {
	packedArgs, err := actionStatusArgs.Pack(digest)
	if err != nil {
		return bridgeaction.StatusPending, fmt.Errorf("chainclient: pack actionStatus args: %w", err)
	}
	calldata := append(append([]byte{}, actionStatusSelector...), packedArgs...)

	out, err := o.eth.CallContract(ctx, ethereum.CallMsg{
		To:   &o.contract,
		Data: calldata,
	}, nil)
	if err != nil {
		return bridgeaction.StatusPending, fmt.Errorf("chainclient: call actionStatus: %w", err)
	}

	unpacked, err := actionStatusReturns.Unpack(out)
	if err != nil || len(unpacked) != 1 {
		return bridgeaction.StatusPending, fmt.Errorf("chainclient: unpack actionStatus result: %w", err)
	}
	code, ok := unpacked[0].(uint8)
	if !ok {
		return bridgeaction.StatusPending, fmt.Errorf("chainclient: unexpected actionStatus return type %T", unpacked[0])
	}
	return contractStatusCode(code).toStatus(), nil
}

// contractStatusCode mirrors the bridge contract's on-chain status enum.
type contractStatusCode uint8

const (
	contractStatusPending contractStatusCode = iota
	contractStatusApproved
	contractStatusClaimed
	contractStatusNotFound
)

func (c contractStatusCode) toStatus() bridgeaction.Status {
	switch c {
	case contractStatusApproved:
		return bridgeaction.StatusApproved
	case contractStatusClaimed:
		return bridgeaction.StatusClaimed
	case contractStatusNotFound:
		return bridgeaction.StatusRecordNotFound
	default:
		return bridgeaction.StatusPending
	}
}
