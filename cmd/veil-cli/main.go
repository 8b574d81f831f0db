// Veil CLI - command-line interface for wallet and note operations over
// the shielded pool.
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/nyxlabs/veil/internal/zkp"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "version":
		fmt.Printf("veil-cli v%s\n", version)

	case "help":
		printUsage()

	case "status":
		cmdStatus()

	case "wallet":
		if len(os.Args) < 3 {
			fmt.Println("Usage: veil-cli wallet <subcommand>")
			fmt.Println("Subcommands: new")
			os.Exit(1)
		}
		cmdWallet(os.Args[2:])

	case "note":
		if len(os.Args) < 3 {
			fmt.Println("Usage: veil-cli note <subcommand>")
			fmt.Println("Subcommands: new, commitment, nullifier")
			os.Exit(1)
		}
		cmdNote(os.Args[2:])

	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("veil-cli - command-line interface for the veil shielded pool")
	fmt.Println()
	fmt.Println("Usage: veil-cli <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  version   Show version information")
	fmt.Println("  help      Show this help message")
	fmt.Println("  status    Show node status")
	fmt.Println("  wallet    Wallet operations (new)")
	fmt.Println("  note      Note operations (new, commitment, nullifier)")
}

func cmdStatus() {
	fmt.Println("Connecting to veil node...")
	// TODO: connect over RPC and fetch live pool status instead of stubbing it.
	fmt.Println("Node Status:")
	fmt.Println("  Version:    0.1.0")
	fmt.Println("  Tree depth: 20")
	fmt.Println("  Peers:      0")
}

func cmdWallet(args []string) {
	if len(args) == 0 {
		return
	}

	switch args[0] {
	case "new":
		secret, err := zkp.RandomSecret()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to generate secret: %v\n", err)
			os.Exit(1)
		}
		sk, err := zkp.DeriveSpendingKey(secret[:])
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to derive spending key: %v\n", err)
			os.Exit(1)
		}
		skBytes := sk.Bytes()
		fmt.Println("New wallet generated.")
		fmt.Printf("  Secret (keep this offline): %s\n", hex.EncodeToString(secret[:]))
		fmt.Printf("  Spending key:               %s\n", hex.EncodeToString(skBytes[:]))

	default:
		fmt.Printf("Unknown wallet command: %s\n", args[0])
	}
}

func cmdNote(args []string) {
	if len(args) == 0 {
		return
	}

	switch args[0] {
	case "new":
		fs := newFlagSet("note new")
		secretHex := fs.String("secret", "", "32-byte hex-encoded secret")
		value := fs.Uint64("value", 0, "note value")
		asset := fs.Uint64("asset", 0, "asset id")
		fs.Parse(args[1:])

		secret, err := decodeHex32(*secretHex)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -secret: %v\n", err)
			os.Exit(1)
		}
		sk, err := zkp.DeriveSpendingKey(secret[:])
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to derive spending key: %v\n", err)
			os.Exit(1)
		}
		blinding, err := zkp.RandomBlinding()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to draw blinding factor: %v\n", err)
			os.Exit(1)
		}

		note := zkp.Note{
			SpendingKey: sk,
			Value:       *value,
			Blinding:    blinding,
			Asset:       *asset,
		}
		commitment := zkp.CommitmentBytes(note.Commitment())
		fmt.Println("Note created.")
		fmt.Printf("  Value:      %d\n", note.Value)
		fmt.Printf("  Asset:      %d\n", note.Asset)
		fmt.Printf("  Commitment: %s\n", hex.EncodeToString(commitment[:]))
		fmt.Println("  Remember the blinding factor, value, and asset — only the commitment is public.")

	case "commitment":
		fs := newFlagSet("note commitment")
		secretHex := fs.String("secret", "", "32-byte hex-encoded secret")
		value := fs.Uint64("value", 0, "note value")
		blindingHex := fs.String("blinding", "", "32-byte hex-encoded blinding factor")
		asset := fs.Uint64("asset", 0, "asset id")
		fs.Parse(args[1:])

		sk, blinding, err := loadNoteSecrets(*secretHex, *blindingHex)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		c := zkp.Commitment(sk.Element(), *value, blinding, *asset)
		cb := zkp.CommitmentBytes(c)
		fmt.Println(hex.EncodeToString(cb[:]))

	case "nullifier":
		fs := newFlagSet("note nullifier")
		secretHex := fs.String("secret", "", "32-byte hex-encoded secret")
		index := fs.Uint64("index", 0, "leaf index the note was committed at")
		fs.Parse(args[1:])

		secret, err := decodeHex32(*secretHex)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -secret: %v\n", err)
			os.Exit(1)
		}
		sk, err := zkp.DeriveSpendingKey(secret[:])
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to derive spending key: %v\n", err)
			os.Exit(1)
		}
		nf := zkp.NullifierBytes(zkp.Nullifier(sk.Element(), *index))
		fmt.Println(hex.EncodeToString(nf[:]))

	default:
		fmt.Printf("Unknown note command: %s\n", args[0])
	}
}
