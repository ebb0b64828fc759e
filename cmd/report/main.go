// Command report prints an offline performance summary from the paper-trading
// database: capital figures, per-strategy statistics, aggregate metrics, and
// close-reason distribution. It never mutates the database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"gammaTradeBot/internal/adapters/logger"
	"gammaTradeBot/internal/adapters/sqlite"
	"gammaTradeBot/internal/backtest"
	"gammaTradeBot/internal/domain"
	"gammaTradeBot/internal/ledger"
)

func main() {
	dbPath := flag.String("db", "./data/gamma_trade_bot.db", "Path to the trading database")
	lastN := flag.Int("last", 10, "Number of recent trades to list")
	flag.Parse()

	if err := run(*dbPath, *lastN); err != nil {
		fmt.Fprintf(os.Stderr, "report failed: %v\n", err)
		os.Exit(1)
	}
}

func run(dbPath string, lastN int) error {
	log := logger.NewStdLogger(logger.LevelError) // keep report output clean
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: dbPath, Logger: log})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer repo.Close()

	ctx := context.Background()
	capitalLedger, err := ledger.New(repo, repo, repo)
	if err != nil {
		return err
	}

	starting, err := capitalLedger.StartingCapital(ctx)
	if err != nil {
		return fmt.Errorf("reading starting capital: %w", err)
	}
	available, err := capitalLedger.AvailableCapital(ctx)
	if err != nil {
		return fmt.Errorf("computing available capital: %w", err)
	}
	deployed, err := capitalLedger.DeployedCapital(ctx)
	if err != nil {
		return fmt.Errorf("computing deployed capital: %w", err)
	}
	equity, err := capitalLedger.Equity(ctx)
	if err != nil {
		return fmt.Errorf("computing equity: %w", err)
	}

	trades, err := repo.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("loading closed trades: %w", err)
	}
	open, err := repo.FindOpen(ctx)
	if err != nil {
		return fmt.Errorf("loading open positions: %w", err)
	}

	fmt.Println("=== Capital ===")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Starting capital:\t$%.2f\n", starting)
	fmt.Fprintf(w, "Equity:\t$%.2f\n", equity)
	fmt.Fprintf(w, "Available:\t$%.2f\n", available)
	fmt.Fprintf(w, "Deployed:\t$%.2f (%d open)\n", deployed, len(open))
	w.Flush()

	metrics := backtest.ComputeMetrics(trades, starting)
	fmt.Println("\n=== Performance ===")
	w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Closed trades:\t%d\n", metrics.TotalTrades)
	fmt.Fprintf(w, "Win rate:\t%.1f%% (%dW / %dL)\n", metrics.WinRate*100, metrics.WinningTrades, metrics.LosingTrades)
	fmt.Fprintf(w, "Total P&L:\t$%.2f\n", metrics.TotalPnL)
	fmt.Fprintf(w, "Avg win / loss:\t$%.2f / $%.2f\n", metrics.AverageWin, metrics.AverageLoss)
	fmt.Fprintf(w, "Expectancy:\t$%.2f per trade\n", metrics.Expectancy)
	fmt.Fprintf(w, "Profit factor:\t%.2f\n", metrics.ProfitFactor)
	fmt.Fprintf(w, "Sharpe (per trade):\t%.2f\n", metrics.SharpeRatio)
	fmt.Fprintf(w, "Max drawdown:\t%.1f%%\n", metrics.MaxDrawdown*100)
	fmt.Fprintf(w, "Max win / loss streak:\t%d / %d\n", metrics.MaxConsecutiveWins, metrics.MaxConsecutiveLosses)
	fmt.Fprintf(w, "Avg hold:\t%s\n", metrics.AverageHoldDuration.Round(time.Minute))
	w.Flush()

	printStrategyStats(ctx, repo, trades)
	printCloseReasons(trades)
	printRecentTrades(trades, lastN)
	return nil
}

func printStrategyStats(ctx context.Context, repo *sqlite.Repository, trades []*domain.ClosedTrade) {
	stats, err := repo.GetAll(ctx)
	if err != nil || len(stats) == 0 {
		return
	}

	fmt.Println("\n=== Strategies ===")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STRATEGY\tTRADES\tWIN RATE\tAVG WIN\tAVG LOSS\tEXPECTANCY\tTOTAL P&L")
	for _, s := range stats {
		fmt.Fprintf(w, "%s\t%d\t%.1f%%\t$%.2f\t$%.2f\t$%.2f\t$%.2f\n",
			s.Strategy, s.Trades, s.WinRate*100, s.AvgWin, s.AvgLoss, s.Expectancy, s.TotalPnL)

		// Cross-check the incrementally maintained row against a full rebuild.
		rebuilt := backtest.RebuildStats(s.Strategy, trades)
		if rebuilt.Trades != s.Trades {
			fmt.Fprintf(w, "\t^ stats row has %d trades but history has %d, consider a rebuild\n", s.Trades, rebuilt.Trades)
		}
	}
	w.Flush()
}

func printCloseReasons(trades []*domain.ClosedTrade) {
	if len(trades) == 0 {
		return
	}
	counts := make(map[domain.CloseReason]int)
	pnl := make(map[domain.CloseReason]float64)
	for _, t := range trades {
		counts[t.CloseReason]++
		pnl[t.CloseReason] += t.RealizedPnL
	}
	reasons := make([]domain.CloseReason, 0, len(counts))
	for r := range counts {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool { return counts[reasons[i]] > counts[reasons[j]] })

	fmt.Println("\n=== Close Reasons ===")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REASON\tCOUNT\tTOTAL P&L")
	for _, r := range reasons {
		fmt.Fprintf(w, "%s\t%d\t$%.2f\n", r, counts[r], pnl[r])
	}
	w.Flush()
}

func printRecentTrades(trades []*domain.ClosedTrade, n int) {
	if len(trades) == 0 || n <= 0 {
		return
	}
	start := len(trades) - n
	if start < 0 {
		start = 0
	}

	fmt.Printf("\n=== Last %d Trades ===\n", len(trades)-start)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EXIT TIME\tSYMBOL\tCONTRACT\tQTY\tENTRY\tEXIT\tP&L\tREASON")
	for _, t := range trades[start:] {
		fmt.Fprintf(w, "%s\t%s\t%g %s %s\t%d\t$%.2f\t$%.2f\t$%.2f\t%s\n",
			t.ExitTime.Format("2006-01-02 15:04"), t.Symbol,
			t.Strike, t.OptionType, t.Expiration.Format("01/02"),
			t.Contracts, t.EntryPrice, t.ExitPrice, t.RealizedPnL, t.CloseReason)
	}
	w.Flush()
}
