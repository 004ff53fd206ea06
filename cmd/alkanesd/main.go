package main

// alkanesd is the indexer process: it indexes a directory of serialized
// Bitcoin blocks against the Extcall Machine and, separately, serves the
// read-only view surface over HTTP.

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/wire"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/kungfuflex/alkanes/core"
	"github.com/kungfuflex/alkanes/pkg/config"
)

func main() {
	root := &cobra.Command{
		Use:   "alkanesd",
		Short: "ALKANES metaprotocol indexer",
	}
	root.PersistentFlags().String("network", "mainnet", "network overlay to load from cmd/config")
	root.AddCommand(indexCmd(), serveCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func configureLogging(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.WithError(err).Warn("could not open log file, logging to stderr")
			return
		}
		log.SetOutput(f)
	}
}

func networkParams(cfg *config.Config) core.NetworkParams {
	return core.NetworkParams{
		ActivationHeight: cfg.Network.ActivationHeight,
		ReservedIDs:      cfg.Network.ReservedIDs,
		MaxCodeBytes:     cfg.Storage.MaxCodeBytes,
		MaxCallDepth:     cfg.Storage.MaxStackDepth,
	}
}

func fuelSchedule(cfg *config.Config) core.FuelSchedule {
	return core.FuelSchedule{
		BudgetPerVByte: cfg.Fuel.BudgetPerVByte,
		BudgetFloor:    cfg.Fuel.BudgetFloor,
		PerMessageCap:  cfg.Fuel.PerMessageCap,
		CarryOverMax:   cfg.Fuel.CarryOverMax,
		WeightPerByte:  cfg.Fuel.WeightPerByte,
	}
}

// loadGenesisContracts reads "<tx>.wasm" under dir for every tx in
// cfg.Network.ReservedIDs, skipping any reserved id with no matching file.
// A network with no genesis bytecode on disk yet is a valid, supported
// configuration: InstallGenesis then has nothing to install.
func loadGenesisContracts(cfg *config.Config, dir string) ([]core.ReservedContract, error) {
	out := make([]core.ReservedContract, 0, len(cfg.Network.ReservedIDs))
	for _, tx := range cfg.Network.ReservedIDs {
		path := filepath.Join(dir, fmt.Sprintf("%d.wasm", tx))
		raw, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read genesis bytecode for reserved id %d: %w", tx, err)
		}
		out = append(out, core.ReservedContract{Tx: tx, Bytecode: raw})
	}
	return out, nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	network, _ := cmd.Flags().GetString("network")
	return config.Load(network)
}

func indexCmd() *cobra.Command {
	var blocksDir string
	var genesisDir string
	var startHeight uint64
	cmd := &cobra.Command{
		Use:   "index",
		Short: "index every serialized block under --blocks in height order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			configureLogging(cfg)

			store := core.NewMemoryStore()
			engine := wasmer.NewEngine()
			vm := core.NewWasmVM(engine)
			machine := core.NewMachine(vm, cfg.Storage.MaxCodeBytes, cfg.Storage.MaxStackDepth)
			ledger := core.NewInMemoryProtorunesLedger()
			reserved, err := loadGenesisContracts(cfg, genesisDir)
			if err != nil {
				return fmt.Errorf("load genesis contracts: %w", err)
			}
			ix := core.NewIndexer(store, networkParams(cfg), fuelSchedule(cfg), machine, ledger, reserved, cfg.Storage.TraceEnabled, 0)

			heights, err := discoverBlockFiles(blocksDir)
			if err != nil {
				return fmt.Errorf("discover blocks: %w", err)
			}
			for _, hb := range heights {
				if hb.height < startHeight {
					continue
				}
				block, err := readBlockFile(hb.path)
				if err != nil {
					return fmt.Errorf("read block %d: %w", hb.height, err)
				}
				if err := ix.ProcessBlock(block, hb.height); err != nil {
					return fmt.Errorf("process block %d: %w", hb.height, err)
				}
				log.WithField("height", hb.height).Info("indexed block")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&blocksDir, "blocks", "./blocks", "directory of height-named serialized blocks")
	cmd.Flags().StringVar(&genesisDir, "genesis", "./genesis", "directory of \"<tx>.wasm\" reserved contract bytecode")
	cmd.Flags().Uint64Var(&startHeight, "from", 0, "lowest height to process")
	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serve the read-only view surface over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			configureLogging(cfg)

			store := core.NewMemoryStore()
			engine := wasmer.NewEngine()
			vm := core.NewWasmVM(engine)
			machine := core.NewMachine(vm, cfg.Storage.MaxCodeBytes, cfg.Storage.MaxStackDepth)
			ledger := core.NewInMemoryProtorunesLedger()
			view := core.NewViewSurface(store, networkParams(cfg), machine, ledger, cfg.View.StaticFuel)

			addr := cfg.View.ListenAddr
			if addr == "" {
				addr = "127.0.0.1:8090"
			}
			log.WithField("addr", addr).Info("view surface listening")
			return http.ListenAndServe(addr, view.Router())
		},
	}
	return cmd
}

type heightedBlock struct {
	height uint64
	path   string
}

// discoverBlockFiles lists blocksDir for files named "<height>.blk",
// sorted ascending by height.
func discoverBlockFiles(blocksDir string) ([]heightedBlock, error) {
	entries, err := os.ReadDir(blocksDir)
	if err != nil {
		return nil, err
	}
	out := make([]heightedBlock, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".blk") {
			continue
		}
		h, err := strconv.ParseUint(strings.TrimSuffix(name, ".blk"), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, heightedBlock{height: h, path: filepath.Join(blocksDir, name)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].height < out[j].height })
	return out, nil
}

func readBlockFile(path string) (*wire.MsgBlock, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	block := &wire.MsgBlock{}
	if err := block.Deserialize(f); err != nil {
		return nil, err
	}
	return block, nil
}
