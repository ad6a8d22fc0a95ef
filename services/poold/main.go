package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"dollarpool/config"
	"dollarpool/core/state"
	"dollarpool/native/amo"
	nativeoracle "dollarpool/native/oracle"
	"dollarpool/native/pool"
	"dollarpool/observability"
	"dollarpool/observability/logging"
	telemetry "dollarpool/observability/otel"
	sconfig "dollarpool/services/poold/config"
	"dollarpool/services/poold/oracle"
	"dollarpool/services/poold/server"
	"dollarpool/services/poold/storage"
	kvstore "dollarpool/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/poold/config.yaml", "path to the poold configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("POOL_ENV"))
	logger := logging.Setup("poold", env)
	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "poold",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := sconfig.Load(cfgPath)
	if err != nil {
		log.Fatalf("poold: load config: %v", err)
	}
	genesis, err := config.Load(cfg.GenesisPath)
	if err != nil {
		log.Fatalf("poold: load genesis: %v", err)
	}

	db, err := kvstore.NewLevelDB(cfg.StatePath)
	if err != nil {
		log.Fatalf("poold: open state database: %v", err)
	}
	defer db.Close()
	manager := state.NewManager(db)

	eth, err := ethclient.Dial(cfg.EthEndpoint)
	if err != nil {
		log.Fatalf("poold: dial eth endpoint: %v", err)
	}
	defer eth.Close()

	engine, ledger, err := bootstrap(manager, genesis, eth)
	if err != nil {
		log.Fatalf("poold: bootstrap pool state: %v", err)
	}

	dsn, err := storage.FileDSN(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("poold: resolve storage DSN: %v", err)
	}
	store, err := storage.Open(dsn)
	if err != nil {
		log.Fatalf("poold: open storage: %v", err)
	}
	defer store.Close()

	metrics := observability.Pool()
	mgr, err := oracle.New(engine, store, cfg.Refresh.Interval.Duration, cfg.Refresh.Timeout.Duration,
		oracle.WithLogger(logger), oracle.WithMetrics(metrics), oracle.WithBorrowLedger(ledger))
	if err != nil {
		log.Fatalf("poold: oracle manager: %v", err)
	}

	srv, err := server.New(server.Config{ListenAddress: cfg.ListenAddress}, engine, ledger, store, logger)
	if err != nil {
		log.Fatalf("poold: server: %v", err)
	}
	srv.SetMetrics(metrics)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := mgr.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("poold: oracle manager exited: %v", err)
			stop()
		}
	}()

	if err := srv.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("poold: http server error: %v", err)
		os.Exit(1)
	}
}

// bootstrap wires the engine, seeds genesis state on first start and is a
// no-op against an already-initialised state database.
func bootstrap(manager *state.Manager, genesis *config.Genesis, eth nativeoracle.ContractCaller) (*pool.Engine, *amo.Ledger, error) {
	registerToken := func(addr common.Address, symbol, name string, decimals uint8) error {
		err := manager.RegisterToken(addr, symbol, name, decimals)
		if errors.Is(err, state.ErrTokenExists) {
			return nil
		}
		return err
	}
	poolAccount := genesis.PoolAccount()
	if err := registerToken(genesis.DollarAddress(), "DOLLAR", "Dollar", 18); err != nil {
		return nil, nil, err
	}
	if err := registerToken(genesis.GovernanceAddress(), "GOV", "Governance", 18); err != nil {
		return nil, nil, err
	}
	if err := manager.SetMinter(genesis.DollarAddress(), poolAccount); err != nil {
		return nil, nil, err
	}
	if err := manager.SetMinter(genesis.GovernanceAddress(), poolAccount); err != nil {
		return nil, nil, err
	}
	for _, entry := range genesis.Collaterals {
		if err := registerToken(common.HexToAddress(entry.Token), entry.Symbol, entry.Name, entry.Decimals); err != nil {
			return nil, nil, err
		}
	}

	adapter := nativeoracle.NewAdapter()
	adapter.RegisterFeed(common.HexToAddress(genesis.EthUsdFeed), nativeoracle.NewFeedClient(eth, common.HexToAddress(genesis.EthUsdFeed)))
	adapter.RegisterFeed(common.HexToAddress(genesis.StableUsdFeed), nativeoracle.NewFeedClient(eth, common.HexToAddress(genesis.StableUsdFeed)))
	adapter.RegisterPool(common.HexToAddress(genesis.GovernanceEthPool), nativeoracle.NewPoolClient(eth, common.HexToAddress(genesis.GovernanceEthPool)))
	adapter.RegisterPool(common.HexToAddress(genesis.StableDollarPool), nativeoracle.NewPoolClient(eth, common.HexToAddress(genesis.StableDollarPool)))
	for _, entry := range genesis.Collaterals {
		feed := common.HexToAddress(entry.PriceFeed)
		adapter.RegisterFeed(feed, nativeoracle.NewFeedClient(eth, feed))
	}

	engine := pool.New()
	engine.SetState(manager)
	engine.SetTokens(manager)
	engine.SetPriceSource(adapter)

	owner := genesis.OwnerAddress()
	err := engine.Initialize(&pool.Settings{
		Owner:                 owner,
		PoolAddress:           poolAccount,
		DollarToken:           genesis.DollarAddress(),
		GovernanceToken:       genesis.GovernanceAddress(),
		CollateralRatio:       genesis.Ratio(),
		MintPriceThreshold:    genesis.MintThreshold(),
		RedeemPriceThreshold:  genesis.RedeemThreshold(),
		RedemptionDelayBlocks: genesis.RedemptionDelayBlocks,
		EthUsdFeed:            common.HexToAddress(genesis.EthUsdFeed),
		EthUsdStaleness:       genesis.EthUsdStaleness,
		StableUsdFeed:         common.HexToAddress(genesis.StableUsdFeed),
		StableUsdStaleness:    genesis.StableUsdStaleness,
		GovernanceEthPool:     common.HexToAddress(genesis.GovernanceEthPool),
		StableDollarPool:      common.HexToAddress(genesis.StableDollarPool),
	})
	switch {
	case err == nil:
		if err := seedCollaterals(engine, genesis, owner); err != nil {
			return nil, nil, err
		}
	case errors.Is(err, pool.ErrAlreadyInitialised):
		// Restart against an existing state database.
	default:
		return nil, nil, err
	}

	ledger := amo.NewLedger(owner, owner, poolAccount, firstCollateral(genesis))
	ledger.SetState(manager)
	ledger.SetTokens(manager)
	ledger.SetPool(engine)
	return engine, ledger, nil
}

func firstCollateral(genesis *config.Genesis) common.Address {
	if len(genesis.Collaterals) == 0 {
		return common.Address{}
	}
	return common.HexToAddress(genesis.Collaterals[0].Token)
}

// seedCollaterals registers every genesis collateral and lifts the circuit
// breakers on the enabled ones.
func seedCollaterals(engine *pool.Engine, genesis *config.Genesis, owner common.Address) error {
	for _, entry := range genesis.Collaterals {
		var ceiling *big.Int
		if strings.TrimSpace(entry.PoolCeiling) != "" {
			ceiling = config.Amount(entry.PoolCeiling)
		}
		index, err := engine.AddCollateralToken(owner, common.HexToAddress(entry.Token), common.HexToAddress(entry.PriceFeed), ceiling)
		if err != nil {
			return err
		}
		if err := engine.SetCollateralPriceFeed(owner, index, common.HexToAddress(entry.PriceFeed), entry.FeedStaleness); err != nil {
			return err
		}
		if err := engine.SetFees(owner, index, config.Amount(entry.MintingFee), config.Amount(entry.RedemptionFee)); err != nil {
			return err
		}
		if !entry.Enabled {
			continue
		}
		if err := engine.ToggleCollateral(owner, index); err != nil {
			return err
		}
		for _, toggle := range []pool.Toggle{pool.ToggleMint, pool.ToggleRedeem, pool.ToggleBorrow} {
			if err := engine.ToggleMintRedeemBorrow(owner, index, toggle); err != nil {
				return err
			}
		}
	}
	return nil
}
