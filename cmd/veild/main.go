// Veil Daemon - main entry point for a shielded-pool relayer/light-client
// node: connects to Postgres, loads the Groth16 verifying key, opens the
// relayer gossip network, and serves instructions submitted by clients.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	pubsub "github.com/libp2p/go-libp2p-pubsub"

	"github.com/nyxlabs/veil/internal/field"
	"github.com/nyxlabs/veil/internal/p2p"
	"github.com/nyxlabs/veil/internal/pool"
	"github.com/nyxlabs/veil/internal/proof"
	"github.com/nyxlabs/veil/internal/relayer"
	"github.com/nyxlabs/veil/internal/storage"
	"github.com/nyxlabs/veil/pkg/types"
)

const (
	version = "0.1.0"
	banner  = `
 __     __   _ _
 \ \   / /__(_) |
  \ \ / / _ \ | |
   \ V /  __/ | |
    \_/ \___|_|_|

  Veil Daemon v%s
  Shielded transfers over a Groth16 note pool
`
)

// Config holds node configuration.
type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	// Network
	ListenAddr string
	RPCAddr    string

	// Pool
	FeeBps         uint
	SignatureMode  bool
	VerifyingKeyIn string

	// Logging
	LogLevel string
	LogFile  string

	// Data
	DataDir string
}

func main() {
	cfg := parseFlags()

	fmt.Printf(banner, version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.DBHost, "db-host", "localhost", "PostgreSQL host")
	flag.IntVar(&cfg.DBPort, "db-port", 5432, "PostgreSQL port")
	flag.StringVar(&cfg.DBUser, "db-user", "veil", "PostgreSQL user")
	flag.StringVar(&cfg.DBPassword, "db-password", "", "PostgreSQL password")
	flag.StringVar(&cfg.DBName, "db-name", "veil", "PostgreSQL database name")

	flag.StringVar(&cfg.ListenAddr, "listen", "/ip4/0.0.0.0/tcp/9000", "P2P listen address")
	flag.StringVar(&cfg.RPCAddr, "rpc", "127.0.0.1:9001", "RPC server address")

	flag.UintVar(&cfg.FeeBps, "fee-bps", pool.DefaultFeeBps, "relayer fee in basis points")
	flag.BoolVar(&cfg.SignatureMode, "signature-mode", false, "start without a Groth16 verifying key; does not itself enable 96-byte signature proofs in the pool state (test/devnet only)")
	flag.StringVar(&cfg.VerifyingKeyIn, "vk", "", "path to the Groth16 verifying key (required unless -signature-mode)")

	flag.StringVar(&cfg.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFile, "log-file", "", "log file path (empty for stdout)")

	flag.StringVar(&cfg.DataDir, "data-dir", "./data", "data directory")

	flag.Parse()

	return cfg
}

func run(ctx context.Context, cfg *Config) error {
	fmt.Println("Initializing veil node...")

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	fmt.Println("Connecting to database...")
	dbConfig := &storage.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  "disable",
		MaxConns: 20,
	}

	store, err := storage.NewPostgresStore(ctx, dbConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	fmt.Println("Database connected.")

	var vk proof.VerifyingKey
	if cfg.VerifyingKeyIn != "" {
		vkBytes, err := os.ReadFile(cfg.VerifyingKeyIn)
		if err != nil {
			return fmt.Errorf("failed to read verifying key: %w", err)
		}
		vk, err = proof.VerifyingKeyFromBytes(vkBytes)
		if err != nil {
			return fmt.Errorf("failed to decode verifying key: %w", err)
		}
	} else if !cfg.SignatureMode {
		return fmt.Errorf("a verifying key (-vk) is required unless -signature-mode is set")
	}

	fmt.Println("Opening pool...")
	p := pool.New(store, vk)
	existing, err := store.LoadPool(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pool state: %w", err)
	}
	if existing == nil {
		var authority types.Address
		if err := p.Initialize(ctx, authority, 0, uint16(cfg.FeeBps)); err != nil {
			return fmt.Errorf("failed to initialize pool: %w", err)
		}
		fmt.Println("Pool initialized.")
	}

	fmt.Println("Starting P2P network...")
	node, err := p2p.NewNode(ctx, &p2p.Config{
		ListenAddrs: []string{cfg.ListenAddr},
		MaxPeers:    50,
		EnableMDNS:  true,
	})
	if err != nil {
		return fmt.Errorf("failed to start P2P node: %w", err)
	}
	defer node.Close()
	node.Start()
	fmt.Printf("P2P node listening as %s\n", node.ID())

	node.SetInstructionHandler(func(hctx context.Context, msg *pubsub.Message) error {
		return handleInstruction(hctx, p, msg.Data)
	})

	relayerDirectory := relayer.NewDirectory(relayer.NewClient())
	node.SetRelayerHandler(func(_ context.Context, msg *pubsub.Message) error {
		announcement, err := p2p.DecodeRelayerAnnouncement(msg.Data)
		if err != nil {
			return err
		}
		relayerDirectory.HandleAnnouncement(announcement)
		return nil
	})

	// TODO: RPC server for direct client submission.

	fmt.Println("Veil node started successfully!")
	fmt.Println("Press Ctrl+C to stop.")

	<-ctx.Done()

	fmt.Println("Node stopped.")
	return nil
}

func handleInstruction(ctx context.Context, p *pool.Pool, data []byte) error {
	msg, err := p2p.DecodeInstruction(data)
	if err != nil {
		return err
	}

	root := fieldFromHash(msg.Root)
	nullifier := fieldFromHash(msg.Nullifier)
	newCommitment := fieldFromHash(msg.NewCommitment)

	switch msg.Kind {
	case p2p.InstructionShield:
		_, err := p.Shield(ctx, newCommitment, msg.Amount)
		return err
	case p2p.InstructionTransfer:
		_, err := p.Transfer(ctx, root, nullifier, newCommitment, msg.Proof)
		return err
	case p2p.InstructionUnshield:
		_, err := p.Unshield(ctx, root, nullifier, msg.Recipient, msg.Amount, msg.Proof)
		return err
	default:
		return fmt.Errorf("unknown instruction kind: 0x%02x", msg.Kind)
	}
}

func fieldFromHash(h types.Hash) fr.Element {
	return field.FromLEBytesModOrder(h[:])
}
