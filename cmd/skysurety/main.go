package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/avianet/skysurety/internal/app"
	"github.com/avianet/skysurety/internal/config"
	"github.com/avianet/skysurety/internal/crypto"
	"github.com/avianet/skysurety/internal/store"
	"github.com/avianet/skysurety/pkg/db/pebble"
	"github.com/avianet/skysurety/pkg/log"
)

// Genesis declares the identities the ledger starts from: the owner, the
// bootstrap airline and the orchestrator identities allowed to call in.
type Genesis struct {
	Owner                crypto.Identity   `json:"owner"`
	BootstrapAirline     crypto.Identity   `json:"bootstrap_airline"`
	BootstrapAirlineName string            `json:"bootstrap_airline_name"`
	AuthorizedCallers    []crypto.Identity `json:"authorized_callers"`
}

func loadGenesis(filename string) (Genesis, error) {
	jsonData, err := os.ReadFile(filename)
	if err != nil {
		return Genesis{}, fmt.Errorf("error reading file: %w", err)
	}

	var genesis Genesis
	if err := json.Unmarshal(jsonData, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("error unmarshaling JSON: %w", err)
	}
	return genesis, nil
}

// main starts a ledger node.
// go run main.go -genesis genesis.json
func main() {
	genesisPath := flag.String("genesis", "genesis.json", "path to the genesis file")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	level, err := log.ParseLogLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse log level: %v\n", err)
		os.Exit(1)
	}
	loggerType := log.ConsoleLogger
	if cfg.Log.Format == "json" {
		loggerType = log.JSONLogger
	}
	log.Init(log.Options{LogLevel: level, Type: loggerType})

	genesis, err := loadGenesis(*genesisPath)
	if err != nil {
		log.Root.Fatal().Err(err).Msg("load genesis")
	}

	kv, err := pebble.NewKVStore(cfg.DBPath)
	if err != nil {
		log.Root.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open store")
	}
	defer kv.Close()

	ledger, err := app.Restore(app.Options{
		Params:               cfg.Params,
		Owner:                genesis.Owner,
		BootstrapAirline:     genesis.BootstrapAirline,
		BootstrapAirlineName: genesis.BootstrapAirlineName,
		State:                store.NewState(kv),
	})
	if err != nil {
		log.Root.Fatal().Err(err).Msg("restore state")
	}
	for _, caller := range genesis.AuthorizedCallers {
		if err := ledger.AuthorizeCaller(genesis.Owner, caller); err != nil {
			log.Root.Fatal().Err(err).Msg("authorize caller")
		}
	}

	log.Root.Info().
		Int("airlines", ledger.RegisteredAirlines()).
		Uint64("escrow", ledger.EscrowBalance()).
		Bool("operational", ledger.IsOperational()).
		Msg("skysurety node ready")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Root.Info().Msg("shutting down")
}
