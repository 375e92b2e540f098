package chainclient

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/certen/bridge-orchestrator/pkg/bridgeaction"
	"github.com/certen/bridge-orchestrator/pkg/encoding"
)

// StatusOracle resolves an action's on-chain status. On a live deployment
// this reads a bridge contract's view function; it is split out of
// EVMClient so tests can substitute a scriptable fake without standing up
// a node.
type StatusOracle interface {
	ActionStatus(ctx context.Context, digest [32]byte) (bridgeaction.Status, error)
}

// EVMClient is the concrete DestinationChainClient for an EVM-compatible
// destination chain. It wraps go-ethereum's ethclient.Client the way the
// rest of this module's third-party dependencies are wired: directly,
// with no adapter layer beyond what's needed to satisfy the interface.
//
// Gas object is reinterpreted for the EVM mapping as the orchestrator's
// own account: id is the hex address, version is the account nonce, and
// digest is unused (kept for interface symmetry with chains that key gas
// by object reference rather than by account).
type EVMClient struct {
	eth            *ethclient.Client
	oracle         StatusOracle
	bridgeContract common.Address
	orchestratorKey *ecdsa.PrivateKey
	chainID         *big.Int
	statusPollEvery time.Duration
}

// EVMClientConfig configures an EVMClient.
type EVMClientConfig struct {
	RPCURL          string
	BridgeContract  common.Address
	OrchestratorKey *ecdsa.PrivateKey
	ChainID         *big.Int
	StatusPollEvery time.Duration
}

// NewEVMClient dials rpcURL and returns a ready EVMClient.
func NewEVMClient(ctx context.Context, cfg EVMClientConfig, oracle StatusOracle) (*EVMClient, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chainclient: dial evm rpc: %w", err)
	}
	pollEvery := cfg.StatusPollEvery
	if pollEvery == 0 {
		pollEvery = 2 * time.Second
	}
	return &EVMClient{
		eth:             eth,
		oracle:          oracle,
		bridgeContract:  cfg.BridgeContract,
		orchestratorKey: cfg.OrchestratorKey,
		chainID:         cfg.ChainID,
		statusPollEvery: pollEvery,
	}, nil
}

// GetActionStatusUntilSuccess retries transport errors internally,
// backing off on a fixed poll interval, and only returns once a status
// was actually read.
func (c *EVMClient) GetActionStatusUntilSuccess(ctx context.Context, action *bridgeaction.Action) (bridgeaction.Status, error) {
	digest, err := encoding.Digest(action)
	if err != nil {
		return bridgeaction.StatusPending, fmt.Errorf("chainclient: digest action: %w", err)
	}

	ticker := time.NewTicker(c.statusPollEvery)
	defer ticker.Stop()
	for {
		status, err := c.oracle.ActionStatus(ctx, digest)
		if err == nil {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return bridgeaction.StatusPending, ctx.Err()
		case <-ticker.C:
		}
	}
}

// GetGasObject reads the orchestrator account's current nonce and
// confirms the supplied address is the orchestrator's own.
func (c *EVMClient) GetGasObject(ctx context.Context, id string) (*GasObject, error) {
	addr := common.HexToAddress(id)
	orchestratorAddr := crypto.PubkeyToAddress(c.orchestratorKey.PublicKey)
	if addr != orchestratorAddr {
		return nil, ErrGasObjectNotOwned
	}

	nonce, err := c.eth.PendingNonceAt(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("chainclient: read account nonce: %w", err)
	}

	var owner [20]byte
	copy(owner[:], addr.Bytes())
	return &GasObject{
		ID:      id,
		Version: nonce,
		Owner:   owner,
	}, nil
}

// BuildTransaction ABI-encodes a call into the bridge contract's
// "submitCertifiedAction" entry point: the certified action's envelope
// bytes plus the signatures backing it.
func (c *EVMClient) BuildTransaction(ctx context.Context, orchestratorAddr [20]byte, gas *GasObject, cert *bridgeaction.VerifiedCertificate) ([]byte, error) {
	envelope, err := encoding.EncodeWithPrefix(cert.Action())
	if err != nil {
		return nil, fmt.Errorf("chainclient: encode certified action: %w", err)
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chainclient: suggest gas price: %w", err)
	}

	calldata := encodeSubmitCertifiedAction(envelope, cert.Certificate().Signatures)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    gas.Version,
		To:       &c.bridgeContract,
		Value:    big.NewInt(0),
		Gas:      3_000_000,
		GasPrice: gasPrice,
		Data:     calldata,
	})

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("chainclient: marshal unsigned tx: %w", err)
	}
	return raw, nil
}

// SignTransaction signs raw transaction bytes under this chain's EIP-155
// signer scope, using the orchestrator key.
func (c *EVMClient) SignTransaction(ctx context.Context, raw []byte) (*SignedTransaction, error) {
	var tx types.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("chainclient: unmarshal unsigned tx: %w", err)
	}

	signer := types.NewEIP155Signer(c.chainID)
	signed, err := types.SignTx(&tx, signer, c.orchestratorKey)
	if err != nil {
		return nil, fmt.Errorf("chainclient: sign tx: %w", err)
	}

	signedRaw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("chainclient: marshal signed tx: %w", err)
	}
	return &SignedTransaction{Raw: signedRaw}, nil
}

// ExecuteTransactionWithEffects submits a signed transaction and waits
// for its receipt, translating a reverted transaction into EffectsFailure
// rather than an error — only a submission-time problem is an error.
func (c *EVMClient) ExecuteTransactionWithEffects(ctx context.Context, signed *SignedTransaction) (*Effects, error) {
	var tx types.Transaction
	if err := tx.UnmarshalBinary(signed.Raw); err != nil {
		return nil, fmt.Errorf("chainclient: unmarshal signed tx: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, &tx); err != nil {
		return nil, fmt.Errorf("chainclient: submit tx: %w", err)
	}

	receipt, err := c.waitForReceipt(ctx, tx.Hash())
	if err != nil {
		return nil, fmt.Errorf("chainclient: await receipt: %w", err)
	}

	effects := &Effects{TxHash: [32]byte(receipt.TxHash)}
	if receipt.Status == types.ReceiptStatusSuccessful {
		effects.Status = EffectsSuccess
	} else {
		effects.Status = EffectsFailure
		effects.Error = "transaction reverted"
	}
	return effects, nil
}

func (c *EVMClient) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.statusPollEvery)
	defer ticker.Stop()
	for {
		receipt, err := c.eth.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if err != ethereum.NotFound {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// submitCertifiedActionSelector is the 4-byte selector for
// submitCertifiedAction(bytes,bytes[]).
var submitCertifiedActionSelector = crypto.Keccak256([]byte("submitCertifiedAction(bytes,bytes[])"))[:4]

var (
	abiBytes, _    = abi.NewType("bytes", "", nil)
	abiBytesArray, _ = abi.NewType("bytes[]", "", nil)
	submitCertifiedActionArgs = abi.Arguments{
		{Type: abiBytes},
		{Type: abiBytesArray},
	}
)

// encodeSubmitCertifiedAction ABI-encodes the envelope and the raw
// signature bytes (committee signing order is not contract-visible; the
// contract re-derives each signer from its signature) behind the
// submitCertifiedAction selector.
func encodeSubmitCertifiedAction(envelope []byte, signatures map[string][]byte) []byte {
	sigs := make([][]byte, 0, len(signatures))
	for _, sig := range signatures {
		sigs = append(sigs, sig)
	}
	packed, err := submitCertifiedActionArgs.Pack(envelope, sigs)
	if err != nil {
		// Arguments are well-typed byte slices; packing cannot fail.
		panic(fmt.Sprintf("chainclient: pack submitCertifiedAction args: %v", err))
	}
	calldata := append([]byte{}, submitCertifiedActionSelector...)
	return append(calldata, packed...)
}
