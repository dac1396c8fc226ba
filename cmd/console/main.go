package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/metaswap/metaswap-go/assets"
	"github.com/metaswap/metaswap-go/cmd/console/config"
	"github.com/metaswap/metaswap-go/curves/wadmath"
	"github.com/metaswap/metaswap-go/pairs"
	"github.com/metaswap/metaswap-go/registry"
)

// --- VISUAL CONSTANTS ---
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"
)

var (
	lpAddr     = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	traderAddr = common.HexToAddress("0x00000000000000000000000000000000000000e2")
)

// header prints a styled section header
func header(title string) {
	fmt.Println("\n" + Bold + Cyan + ":: " + title + " ::" + Reset)
}

func main() {
	// --- 1. SETUP LOGGING (To File) ---
	logFile, err := os.OpenFile("console.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		panic(fmt.Sprintf("Failed to open log file: %v", err))
	}
	defer logFile.Close()

	rootLogHandler := slog.NewJSONHandler(logFile, nil)
	rootLogger := slog.New(rootLogHandler)

	closeApp := func() {
		fmt.Println("\n" + Red + "Fatal error occurred. Check console.log for details." + Reset)
		os.Exit(1)
	}

	// --- 2. CONFIG & CONTEXT ---
	prometheusRegistry := prometheus.DefaultRegisterer
	cfg, err := loadConfig()
	if err != nil {
		rootLogger.Error("Failed to load configuration", "error", err)
		closeApp()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 3. BOOTSTRAP THE EXCHANGE ---
	ledger := assets.NewMemLedger()
	collection := assets.NewMemCollection(common.HexToAddress("0x00000000000000000000000000000000000000cc"))

	factory, err := registry.NewFactory(registry.FactoryConfig{
		Address: cfg.FactoryAddress,
		Owner:   cfg.OwnerAddress,
		Ledger:  ledger,
		Logger:  &slogAdapter{rootLogger.With("component", "factory")},
		Metrics: registry.NewMetrics(prometheusRegistry),
		Pairs:   pairs.NewMetrics(prometheusRegistry),
	})
	if err != nil {
		rootLogger.Error("Failed to initialize factory", "error", err)
		closeApp()
	}

	if cfg.ProtocolFee != nil {
		if err := factory.SetProtocolFee(cfg.OwnerAddress, cfg.ProtocolFee); err != nil {
			rootLogger.Error("Failed to set protocol fee", "error", err)
			closeApp()
		}
	}
	if cfg.ProtocolFeeRecipient != (common.Address{}) {
		if err := factory.SetProtocolFeeRecipient(cfg.OwnerAddress, cfg.ProtocolFeeRecipient); err != nil {
			rootLogger.Error("Failed to set protocol fee recipient", "error", err)
			closeApp()
		}
	}

	fmt.Println(Green + "Starting MetaSwap Console..." + Reset)
	fmt.Println("Logs are being written to 'console.log'")

	// --- 4. RUN THE SCRIPTED SESSION ---
	if err := runSession(ctx, factory, ledger, collection, cfg); err != nil {
		rootLogger.Error("Demo session failed", "error", err)
		closeApp()
	}

	fmt.Println("\n" + Yellow + "Session complete." + Reset)
}

// runSession creates one pool per pricing curve, trades against each and
// prints the resulting pool states.
func runSession(ctx context.Context, factory *registry.Factory, ledger *assets.MemLedger, collection *assets.MemCollection, cfg *config.ConsoleConfig) error {
	if err := ledger.Mint(lpAddr, ether(1000)); err != nil {
		return err
	}
	if err := ledger.Mint(traderAddr, ether(1000)); err != nil {
		return err
	}
	collection.SetApprovalForAll(lpAddr, factory.Address(), true)

	tradeFee := cfg.TradeFee
	if tradeFee == nil {
		tradeFee = wad("0.05")
	}

	// One pool per curve: an item pool selling on the linear curve, a
	// currency pool buying on the exponential curve, and a two-sided trade
	// pool on the constant product curve.
	header("CREATING POOLS")

	linearPool, err := factory.CreatePair(lpAddr, registry.CreatePairParams{
		Collection:       collection,
		ItemIDs:          collection.Mint(lpAddr, 5),
		SpotPrice:        ether(1),
		Delta:            wad("0.5"),
		RewardsRecipient: lpAddr,
		CurveName:        "linear",
		Role:             pairs.RoleItem,
	})
	if err != nil {
		return fmt.Errorf("linear pool: %w", err)
	}
	fmt.Printf(" %slinear%s item pool at %s\n", Cyan, Reset, linearPool.Address())

	expPool, err := factory.CreatePair(lpAddr, registry.CreatePairParams{
		Collection:       collection,
		CurrencyAmount:   ether(50),
		SpotPrice:        ether(2),
		Delta:            wad("0.25"),
		RewardsRecipient: lpAddr,
		CurveName:        "exponential",
		Role:             pairs.RoleCurrency,
	})
	if err != nil {
		return fmt.Errorf("exponential pool: %w", err)
	}
	fmt.Printf(" %sexponential%s currency pool at %s\n", Cyan, Reset, expPool.Address())

	cpPool, err := factory.CreatePair(lpAddr, registry.CreatePairParams{
		Collection:     collection,
		ItemIDs:        collection.Mint(lpAddr, 10),
		CurrencyAmount: ether(10),
		SpotPrice:      ether(11),
		Delta:          ether(10),
		TradeFee:       tradeFee,
		CurveName:      "constant-product",
		Role:           pairs.RoleTrade,
	})
	if err != nil {
		return fmt.Errorf("constant product pool: %w", err)
	}
	fmt.Printf(" %sconstant-product%s trade pool at %s\n", Cyan, Reset, cpPool.Address())

	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Buy two items out of the linear pool, selection left to the pool.
	header("TRADING")

	input, err := linearPool.BuyAnyItems(traderAddr, 2, ether(10), ether(10), traderAddr)
	if err != nil {
		return fmt.Errorf("buy from linear pool: %w", err)
	}
	bought := collection.OwnedBy(traderAddr)
	fmt.Printf(" bought 2 items from the linear pool for %s\n", fmtWad(input))

	// Sell one of them into the exponential currency pool.
	collection.SetApprovalForAll(traderAddr, expPool.Address(), true)
	output, err := expPool.SellItems(traderAddr, bought[:1], big.NewInt(0), traderAddr)
	if err != nil {
		return fmt.Errorf("sell into exponential pool: %w", err)
	}
	fmt.Printf(" sold 1 item into the exponential pool for %s\n", fmtWad(output))

	// Round trip against the trade pool: its fee makes the trip lossy.
	ids := cpPool.ItemIDs()[:2]
	input, err = cpPool.BuySpecificItems(traderAddr, ids, ether(20), ether(20), traderAddr)
	if err != nil {
		return fmt.Errorf("buy from trade pool: %w", err)
	}
	collection.SetApprovalForAll(traderAddr, cpPool.Address(), true)
	output, err = cpPool.SellItems(traderAddr, ids, big.NewInt(0), traderAddr)
	if err != nil {
		return fmt.Errorf("sell into trade pool: %w", err)
	}
	fmt.Printf(" trade pool round trip: paid %s, got back %s\n", fmtWad(input), fmtWad(output))

	if ctx.Err() != nil {
		return ctx.Err()
	}

	printPoolStates(factory, ledger)
	return nil
}

func printPoolStates(factory *registry.Factory, ledger *assets.MemLedger) {
	header("POOL STATES")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tROLE\tCURVE\tSPOT\tDELTA\tITEMS\tRESERVE\t")
	fmt.Fprintln(w, "-------\t----\t-----\t----\t-----\t-----\t-------\t")
	for _, p := range factory.Pairs() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t\n",
			p.Address(), p.Role(), p.Curve().Name(),
			fmtWad(p.SpotPrice()), fmtWad(p.Delta()),
			len(p.ItemIDs()), fmtWad(p.CurrencyReserve()),
		)
	}
	w.Flush()

	info := factory.GetFactoryInfo()
	fmt.Printf("\n%sProtocol fee revenue:%s %s at %s\n",
		Bold, Reset, fmtWad(ledger.BalanceOf(info.ProtocolFeeRecipient)), info.ProtocolFeeRecipient)
}

// --- HELPERS ---

// slogAdapter narrows *slog.Logger to the pairs.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), wadmath.WAD)
}

func wad(s string) *big.Int {
	f, ok := new(big.Float).SetString(s)
	if !ok {
		panic("invalid wad literal: " + s)
	}
	out, _ := new(big.Float).Mul(f, new(big.Float).SetInt(wadmath.WAD)).Int(nil)
	return out
}

// fmtWad renders a wad amount as a short decimal.
func fmtWad(v *big.Int) string {
	f := new(big.Float).Quo(new(big.Float).SetInt(v), new(big.Float).SetInt(wadmath.WAD))
	return f.Text('f', 4)
}

func loadConfig() (*config.ConsoleConfig, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadConfig(*configPath)
}
