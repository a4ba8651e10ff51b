// stampd: a single-program ledger node for the stamp program.
//
// stampd keeps stamp program state in a local account store, executes
// signed transactions submitted over JSON-RPC, journals every processed
// transaction, and can optionally mirror account updates from an
// upstream node's geyser feed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/GotokHQ/stamp/internal/types"
	"github.com/GotokHQ/stamp/pkg/accounts"
	"github.com/GotokHQ/stamp/pkg/journal"
	"github.com/GotokHQ/stamp/pkg/rpc"
	"github.com/GotokHQ/stamp/pkg/runtime"
	"github.com/GotokHQ/stamp/pkg/runtime/system"
	"github.com/GotokHQ/stamp/pkg/runtime/token"
	"github.com/GotokHQ/stamp/pkg/stamp"
	"github.com/GotokHQ/stamp/pkg/watch"
)

// Version information
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

// Configuration flags
var (
	dataDir       = flag.String("data-dir", "/var/lib/stampd", "Data directory for account store and journal")
	rpcAddr       = flag.String("rpc-addr", ":8899", "RPC server listen address")
	programID     = flag.String("program-id", "", "Stamp program address (defaults to the deployed program)")
	snapshotPath  = flag.String("snapshot", "", "Snapshot file to restore on startup")
	snapshotEvery = flag.Duration("snapshot-interval", 0, "Interval between automatic snapshots (0 = disabled)")
	watchEndpoint = flag.String("watch-endpoint", "", "Upstream geyser gRPC endpoint to mirror (empty = disabled)")
	watchToken    = flag.String("watch-token", "", "Authentication token for the geyser endpoint")
	watchTLS      = flag.Bool("watch-tls", true, "Use TLS for the geyser connection")
	logRequests   = flag.Bool("log-requests", false, "Log JSON-RPC requests")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("stampd %s (%s)\n", Version, GitCommit)
		os.Exit(0)
	}

	// Setup logging
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("Starting stampd %s", Version)

	program := stamp.DefaultProgramID
	if *programID != "" {
		var err error
		program, err = types.PubkeyFromBase58(*programID)
		if err != nil {
			log.Fatalf("Invalid program id %q: %v", *programID, err)
		}
	}
	log.Printf("Stamp program: %s", program)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	// Open the account store
	store, err := accounts.Open(accounts.DefaultConfig(filepath.Join(*dataDir, "accounts")))
	if err != nil {
		log.Fatalf("Failed to open account store: %v", err)
	}
	defer store.Close()

	if *snapshotPath != "" {
		slot, err := accounts.LoadSnapshot(store, *snapshotPath)
		if err != nil {
			log.Fatalf("Failed to load snapshot %s: %v", *snapshotPath, err)
		}
		log.Printf("Restored snapshot at slot %d", slot)
	}
	log.Printf("Account store at slot %d", store.Slot())

	// Open the transaction journal
	jrnl, err := journal.Open(journal.Config{Path: filepath.Join(*dataDir, "journal.db")})
	if err != nil {
		log.Fatalf("Failed to open journal: %v", err)
	}
	defer jrnl.Close()

	// Build the runtime
	rt := runtime.New(runtime.DefaultRent())
	rt.Register(system.ProgramID, system.New())
	rt.Register(token.ProgramID, token.New())
	rt.Register(program, stamp.NewProcessor())

	// Start the RPC server
	rpcConfig := rpc.DefaultConfig()
	rpcConfig.Addr = *rpcAddr
	rpcConfig.LogRequests = *logRequests
	server := rpc.New(rpcConfig, rt, program, store, jrnl)

	rpcErr := make(chan error, 1)
	go func() {
		log.Printf("RPC server listening on %s", *rpcAddr)
		rpcErr <- server.Start(ctx)
	}()

	// Mirror account updates from an upstream node if configured
	if *watchEndpoint != "" {
		if err := startWatcher(ctx, store, program); err != nil {
			log.Fatalf("Failed to start watcher: %v", err)
		}
	}

	// Periodic snapshots
	if *snapshotEvery > 0 {
		go snapshotLoop(ctx, store)
	}

	select {
	case <-ctx.Done():
	case err := <-rpcErr:
		if err != nil {
			log.Fatalf("RPC server failed: %v", err)
		}
	}

	log.Println("Shutdown complete")
}

// startWatcher mirrors stamp account updates from the upstream geyser
// feed into the local store.
func startWatcher(ctx context.Context, store *accounts.Store, program types.Pubkey) error {
	cfg := watch.DefaultConfig()
	cfg.Endpoint = *watchEndpoint
	cfg.Owner = program.String()
	cfg.Token = *watchToken
	cfg.UseTLS = *watchTLS
	cfg.OnConnect = func() {
		log.Printf("Watcher connected to %s", *watchEndpoint)
	}
	cfg.OnDisconnect = func(err error) {
		log.Printf("Watcher disconnected: %v", err)
	}
	cfg.OnReconnect = func(attempt int) {
		log.Printf("Watcher reconnected after %d attempts", attempt)
	}

	client, err := watch.NewClient(cfg)
	if err != nil {
		return err
	}
	if err := client.Connect(ctx); err != nil {
		return err
	}

	go func() {
		defer client.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-client.Accounts():
				if !ok {
					return
				}
				if update.Owner != program {
					continue
				}
				err := store.SetAccount(update.Pubkey, &accounts.Account{
					Lamports:   update.Lamports,
					Data:       update.Data,
					Owner:      update.Owner,
					Executable: update.Executable,
					RentEpoch:  update.RentEpoch,
				})
				if err != nil {
					log.Printf("Failed to mirror account %s: %v", update.Pubkey, err)
				}
			case slot, ok := <-client.Slots():
				if !ok {
					return
				}
				if slot.Status == watch.SlotFinalized && slot.Slot > store.Slot() {
					if err := store.SetSlot(slot.Slot); err != nil {
						log.Printf("Failed to advance slot: %v", err)
					}
				}
			}
		}
	}()

	return nil
}

// snapshotLoop writes periodic snapshots of the account store.
func snapshotLoop(ctx context.Context, store *accounts.Store) {
	ticker := time.NewTicker(*snapshotEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			path := filepath.Join(*dataDir, "snapshots",
				fmt.Sprintf("accounts-%d.stsn", store.Slot()))
			start := time.Now()
			if err := accounts.WriteSnapshot(store, path); err != nil {
				log.Printf("Snapshot failed: %v", err)
				continue
			}
			log.Printf("Snapshot written to %s in %v", path, time.Since(start))
		}
	}
}
