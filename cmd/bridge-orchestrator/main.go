package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/certen/bridge-orchestrator/pkg/aggregator"
	"github.com/certen/bridge-orchestrator/pkg/bridgeaction"
	"github.com/certen/bridge-orchestrator/pkg/chainclient"
	"github.com/certen/bridge-orchestrator/pkg/config"
	"github.com/certen/bridge-orchestrator/pkg/executor"
	"github.com/certen/bridge-orchestrator/pkg/metrics"
	"github.com/certen/bridge-orchestrator/pkg/orchestrator"
	"github.com/certen/bridge-orchestrator/pkg/wal"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		rosterPath = flag.String("roster", "", "Path to the committee roster YAML file")
		showHelp   = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *showHelp || *rosterPath == "" {
		printHelp()
		return
	}

	cfg, err := config.Load(*rosterPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	committee, err := cfg.Committee()
	if err != nil {
		log.Fatalf("failed to build committee from roster: %v", err)
	}

	orchestratorKey, err := loadOrchestratorKey(cfg.OrchestratorKeyPath)
	if err != nil {
		log.Fatalf("failed to load orchestrator key: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := wal.NewStore(mustOpenWAL(cfg.WALDir))
	m := metrics.New()
	agg := aggregator.New(committee, cfg.SigningRequestTimeout, log.New(os.Stdout, "[aggregator] ", log.LstdFlags))

	chainClient := mustDialChainClient(ctx, cfg, orchestratorKey)

	pipeline := executor.New(store, agg, chainClient, m, executor.Config{
		OrchestratorAddr: addressBytes(crypto.PubkeyToAddress(orchestratorKey.PublicKey)),
		GasObjectID:      cfg.GasObjectID,
		QueueCapacity:    cfg.QueueCapacity,
	}, log.New(os.Stdout, "[executor] ", log.LstdFlags))

	entry := orchestrator.New(store, pipeline)

	if err := pipeline.ReplayPending(ctx); err != nil {
		log.Fatalf("failed to replay pending WAL entries: %v", err)
	}

	go pipeline.RunSigningLoop(ctx)
	go pipeline.RunExecutionLoop(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/v1/submit", submitHandler(entry))

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	go func() {
		log.Printf("bridge-orchestrator listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("shutting down bridge-orchestrator...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http server shutdown error: %v", err)
	}
	log.Printf("bridge-orchestrator stopped")
}

func printHelp() {
	fmt.Println("bridge-orchestrator -roster <path-to-roster.yaml>")
	fmt.Println()
	fmt.Println("Environment variables (see pkg/config for the full list):")
	fmt.Println("  LISTEN_ADDR, METRICS_ADDR, WAL_DIR, QUEUE_CAPACITY,")
	fmt.Println("  ORCHESTRATOR_KEY_PATH, GAS_OBJECT_ID, DESTINATION_RPC_URL,")
	fmt.Println("  DESTINATION_CHAIN_ID, BRIDGE_CONTRACT_ADDRESS")
}

func mustOpenWAL(dir string) wal.KV {
	if dir == "" {
		return wal.NewMemDB()
	}
	kv, err := wal.NewGoLevelDB("bridge-orchestrator-wal", dir)
	if err != nil {
		log.Fatalf("failed to open WAL at %s: %v", dir, err)
	}
	return kv
}

func mustDialChainClient(ctx context.Context, cfg *config.Config, key *ecdsa.PrivateKey) chainclient.DestinationChainClient {
	bridgeContract := common.HexToAddress(cfg.BridgeContractAddress)

	dialCtx, dialCancel := context.WithTimeout(ctx, 30*time.Second)
	defer dialCancel()

	oracleDialClient, err := ethDial(dialCtx, cfg.DestinationRPCURL)
	if err != nil {
		log.Fatalf("failed to dial destination chain for status oracle: %v", err)
	}
	oracle := chainclient.NewContractStatusOracle(oracleDialClient, bridgeContract)

	client, err := chainclient.NewEVMClient(dialCtx, chainclient.EVMClientConfig{
		RPCURL:          cfg.DestinationRPCURL,
		BridgeContract:  bridgeContract,
		OrchestratorKey: key,
		ChainID:         big.NewInt(cfg.DestinationChainID),
	}, oracle)
	if err != nil {
		log.Fatalf("failed to dial destination chain: %v", err)
	}
	return client
}

func ethDial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	return ethclient.DialContext(ctx, rpcURL)
}

// loadOrchestratorKey reads the orchestrator's hex-encoded secp256k1
// signing key from disk using go-ethereum's key file convention.
func loadOrchestratorKey(path string) (*ecdsa.PrivateKey, error) {
	return crypto.LoadECDSA(path)
}

func addressBytes(addr common.Address) [20]byte {
	var out [20]byte
	copy(out[:], addr.Bytes())
	return out
}

// submitTokenTransferRequest is the JSON body accepted by /v1/submit. A
// source-chain event watcher (out of scope here, per
// pkg/chainclient's package doc) is expected to translate whatever it
// observes into this shape and POST it.
type submitTokenTransferRequest struct {
	Nonce            uint64 `json:"nonce"`
	SourceChainID    uint8  `json:"source_chain_id"`
	DestChainID      uint8  `json:"dest_chain_id"`
	SourceAddr       []byte `json:"source_addr"`
	DestAddr         []byte `json:"dest_addr"`
	TokenID          uint8  `json:"token_id"`
	Amount           uint64 `json:"amount"`
	SourceTxID       []byte `json:"source_tx_id"`
	SourceEventIndex uint16 `json:"source_event_index"`
}

func submitHandler(entry *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req submitTokenTransferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return
		}

		action := &bridgeaction.Action{
			Type: bridgeaction.ActionTypeTokenTransfer,
			TokenTransfer: &bridgeaction.TokenTransfer{
				Direction:        bridgeaction.DirectionAToB,
				Nonce:            req.Nonce,
				SourceChainID:    req.SourceChainID,
				DestChainID:      req.DestChainID,
				SourceAddr:       req.SourceAddr,
				DestAddr:         req.DestAddr,
				TokenID:          req.TokenID,
				Amount:           req.Amount,
				SourceTxID:       req.SourceTxID,
				SourceEventIndex: req.SourceEventIndex,
			},
		}

		if err := entry.Submit(r.Context(), action); err != nil {
			http.Error(w, fmt.Sprintf("submit failed: %v", err), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}
