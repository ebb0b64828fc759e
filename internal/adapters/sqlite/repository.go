package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gammaTradeBot/internal/domain"
	"gammaTradeBot/internal/ports"

	"github.com/mattn/go-sqlite3" // SQLite driver, also used for constraint error mapping
)

const startingCapitalKey = "starting_capital"

// Repository implements the persistence ports (positions, trades, stats,
// capital config, audit log) using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required for SQLite repository", ports.ErrConfiguration)
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/gamma_trade_bot.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite database ready", map[string]interface{}{"path": dbPath})

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS open_positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		strategy TEXT NOT NULL,
		action TEXT NOT NULL,
		option_type TEXT NOT NULL,
		strike REAL NOT NULL,
		expiration TIMESTAMP NOT NULL,
		contracts INTEGER NOT NULL CHECK (contracts > 0),
		entry_price REAL NOT NULL CHECK (entry_price > 0),
		entry_bid REAL NOT NULL,
		entry_ask REAL NOT NULL,
		entry_spot REAL NOT NULL,
		entry_commission REAL NOT NULL DEFAULT 0,
		delta REAL NOT NULL DEFAULT 0,
		gamma REAL NOT NULL DEFAULT 0,
		theta REAL NOT NULL DEFAULT 0,
		vega REAL NOT NULL DEFAULT 0,
		implied_vol REAL NOT NULL DEFAULT 0,
		entry_net_gex REAL NOT NULL DEFAULT 0,
		entry_flip_point REAL NOT NULL DEFAULT 0,
		confidence REAL NOT NULL,
		thesis TEXT NOT NULL DEFAULT '',
		profit_target_pct REAL NOT NULL,
		stop_loss_pct REAL NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		entry_date TEXT NOT NULL,
		current_price REAL NOT NULL DEFAULT 0,
		current_spot REAL NOT NULL DEFAULT 0,
		unrealized_pnl REAL NOT NULL DEFAULT 0,
		unrealized_pnl_pct REAL NOT NULL DEFAULT 0
	);
	-- Storage-layer source of truth for the same-day duplicate guard.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_open_positions_contract
		ON open_positions (symbol, strike, option_type, expiration, entry_date);

	CREATE TABLE IF NOT EXISTS closed_trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		position_id INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		strategy TEXT NOT NULL,
		action TEXT NOT NULL,
		option_type TEXT NOT NULL,
		strike REAL NOT NULL,
		expiration TIMESTAMP NOT NULL,
		contracts INTEGER NOT NULL,
		entry_price REAL NOT NULL,
		entry_spot REAL NOT NULL,
		entry_commission REAL NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		entry_date TEXT NOT NULL,
		confidence REAL NOT NULL,
		exit_price REAL NOT NULL,
		exit_spot REAL NOT NULL,
		exit_commission REAL NOT NULL,
		exit_time TIMESTAMP NOT NULL,
		exit_date TEXT NOT NULL,
		close_reason TEXT NOT NULL,
		exit_detail TEXT NOT NULL DEFAULT '',
		realized_pnl REAL NOT NULL,
		hold_seconds INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_closed_trades_strategy ON closed_trades (strategy, exit_time);
	CREATE INDEX IF NOT EXISTS idx_closed_trades_exit_date ON closed_trades (exit_date);

	CREATE TABLE IF NOT EXISTS strategy_stats (
		strategy TEXT PRIMARY KEY,
		trades INTEGER NOT NULL,
		wins INTEGER NOT NULL,
		losses INTEGER NOT NULL,
		win_rate REAL NOT NULL,
		avg_win REAL NOT NULL,
		avg_loss REAL NOT NULL,
		expectancy REAL NOT NULL,
		total_pnl REAL NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS capital_config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log (created_at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// --- PositionRepository Implementation ---

// Create saves a new open position and returns its assigned ID. A UNIQUE
// index violation on the contract key is mapped to ports.ErrDuplicateTrade.
func (r *Repository) Create(ctx context.Context, pos *domain.OpenPosition) (int64, error) {
	const query = `
	INSERT INTO open_positions (
		symbol, strategy, action, option_type, strike, expiration, contracts,
		entry_price, entry_bid, entry_ask, entry_spot, entry_commission,
		delta, gamma, theta, vega, implied_vol,
		entry_net_gex, entry_flip_point, confidence, thesis,
		profit_target_pct, stop_loss_pct, entry_time, entry_date,
		current_price, current_spot, unrealized_pnl, unrealized_pnl_pct)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		pos.Symbol, pos.Strategy, pos.Action, pos.OptionType, pos.Strike, pos.Expiration, pos.Contracts,
		pos.EntryPrice, pos.EntryBid, pos.EntryAsk, pos.EntrySpot, pos.EntryCommission,
		pos.EntryGreeks.Delta, pos.EntryGreeks.Gamma, pos.EntryGreeks.Theta, pos.EntryGreeks.Vega, pos.EntryIV,
		pos.EntryNetGEX, pos.EntryFlipPoint, pos.Confidence, pos.Thesis,
		pos.ProfitTargetPct, pos.StopLossPct, pos.EntryTime, pos.EntryDate(),
		pos.CurrentPrice, pos.CurrentSpot, pos.UnrealizedPnL, pos.UnrealizedPnLPct)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s %g %s %s on %s", ports.ErrDuplicateTrade,
				pos.Symbol, pos.Strike, pos.OptionType, pos.Expiration.Format("2006-01-02"), pos.EntryDate())
		}
		return 0, fmt.Errorf("failed to insert open position for %s: %w", pos.Symbol, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for position %s: %w", pos.Symbol, err)
	}
	pos.ID = id
	r.logger.Debug(ctx, "Open position created", map[string]interface{}{"positionID": id, "symbol": pos.Symbol})
	return id, nil
}

// UpdateMark persists the refreshed mark-to-market fields.
func (r *Repository) UpdateMark(ctx context.Context, pos *domain.OpenPosition) error {
	const query = `
	UPDATE open_positions
	SET current_price = ?, current_spot = ?, unrealized_pnl = ?, unrealized_pnl_pct = ?
	WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		pos.CurrentPrice, pos.CurrentSpot, pos.UnrealizedPnL, pos.UnrealizedPnLPct, pos.ID)
	if err != nil {
		return fmt.Errorf("failed to update marks for position ID %d: %w", pos.ID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for position ID %d: %w", pos.ID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("position ID %d not found for mark update: %w", pos.ID, ports.ErrNotFound)
	}
	return nil
}

const openPositionColumns = `
	id, symbol, strategy, action, option_type, strike, expiration, contracts,
	entry_price, entry_bid, entry_ask, entry_spot, entry_commission,
	delta, gamma, theta, vega, implied_vol,
	entry_net_gex, entry_flip_point, confidence, thesis,
	profit_target_pct, stop_loss_pct, entry_time,
	current_price, current_spot, unrealized_pnl, unrealized_pnl_pct`

// FindOpen retrieves all open positions, ordered by entry time ascending.
func (r *Repository) FindOpen(ctx context.Context) ([]*domain.OpenPosition, error) {
	query := `SELECT` + openPositionColumns + ` FROM open_positions ORDER BY entry_time ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query open positions: %w", err)
	}
	defer rows.Close()

	positions := make([]*domain.OpenPosition, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan open position: %w", err)
		}
		positions = append(positions, pos)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating open position rows: %w", err)
	}
	return positions, nil
}

// FindOpenByContract retrieves the open position matching the duplicate-guard key, if any.
func (r *Repository) FindOpenByContract(ctx context.Context, symbol string, strike float64, optType domain.OptionType, expiration time.Time, entryDate string) (*domain.OpenPosition, error) {
	query := `SELECT` + openPositionColumns + `
	FROM open_positions
	WHERE symbol = ? AND strike = ? AND option_type = ? AND expiration = ? AND entry_date = ?`

	row := r.db.QueryRowContext(ctx, query, symbol, strike, optType, expiration, entryDate)
	pos, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query open position by contract: %w", err)
	}
	return pos, nil
}

// OpenNotional returns the summed entry cost basis of all open positions.
func (r *Repository) OpenNotional(ctx context.Context) (float64, error) {
	const query = `
	SELECT COALESCE(SUM(entry_price * contracts * 100 + entry_commission), 0)
	FROM open_positions`
	var total float64
	if err := r.db.QueryRowContext(ctx, query).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum open notional: %w", err)
	}
	return total, nil
}

// CountOpenedToday counts open positions entered on the given UTC date.
func (r *Repository) CountOpenedToday(ctx context.Context, entryDate string) (int, error) {
	const query = `SELECT COUNT(*) FROM open_positions WHERE entry_date = ?`
	var count int
	if err := r.db.QueryRowContext(ctx, query, entryDate).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count positions opened on %s: %w", entryDate, err)
	}
	return count, nil
}

// --- TradeRepository Implementation ---

// RecordClose atomically inserts the closed trade and deletes the open
// position. Either both happen or neither.
func (r *Repository) RecordClose(ctx context.Context, positionID int64, trade *domain.ClosedTrade) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin close transaction: %v", ports.ErrPersistenceFailure, err)
	}
	defer tx.Rollback() // no-op after commit

	const insert = `
	INSERT INTO closed_trades (
		position_id, symbol, strategy, action, option_type, strike, expiration, contracts,
		entry_price, entry_spot, entry_commission, entry_time, entry_date, confidence,
		exit_price, exit_spot, exit_commission, exit_time, exit_date,
		close_reason, exit_detail, realized_pnl, hold_seconds)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := tx.ExecContext(ctx, insert,
		trade.PositionID, trade.Symbol, trade.Strategy, trade.Action, trade.OptionType,
		trade.Strike, trade.Expiration, trade.Contracts,
		trade.EntryPrice, trade.EntrySpot, trade.EntryCommission, trade.EntryTime,
		trade.EntryTime.UTC().Format(domain.EntryDateLayout), trade.Confidence,
		trade.ExitPrice, trade.ExitSpot, trade.ExitCommission, trade.ExitTime,
		trade.ExitTime.UTC().Format(domain.EntryDateLayout),
		trade.CloseReason, trade.ExitDetail, trade.RealizedPnL, int64(trade.HoldDuration.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("%w: insert closed trade for position %d: %v", ports.ErrPersistenceFailure, positionID, err)
	}

	del, err := tx.ExecContext(ctx, `DELETE FROM open_positions WHERE id = ?`, positionID)
	if err != nil {
		return 0, fmt.Errorf("%w: delete open position %d: %v", ports.ErrPersistenceFailure, positionID, err)
	}
	deleted, err := del.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected for position %d: %v", ports.ErrPersistenceFailure, positionID, err)
	}
	if deleted == 0 {
		// Position vanished underneath us; roll the whole close back.
		return 0, fmt.Errorf("%w: position %d not found, %v", ports.ErrTransactionRolledBack, positionID, ports.ErrNotFound)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: last insert ID for closed trade: %v", ports.ErrPersistenceFailure, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit close transaction for position %d: %v", ports.ErrPersistenceFailure, positionID, err)
	}
	trade.ID = id
	r.logger.Debug(ctx, "Closed trade recorded", map[string]interface{}{"tradeID": id, "positionID": positionID, "pnl": trade.RealizedPnL})
	return id, nil
}

const closedTradeColumns = `
	id, position_id, symbol, strategy, action, option_type, strike, expiration, contracts,
	entry_price, entry_spot, entry_commission, entry_time, confidence,
	exit_price, exit_spot, exit_commission, exit_time,
	close_reason, exit_detail, realized_pnl, hold_seconds`

// FindAll retrieves all closed trades, ordered by exit time ascending.
func (r *Repository) FindAll(ctx context.Context) ([]*domain.ClosedTrade, error) {
	query := `SELECT` + closedTradeColumns + ` FROM closed_trades ORDER BY exit_time ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query closed trades: %w", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// FindByStrategy retrieves the most recent closed trades for a strategy label.
func (r *Repository) FindByStrategy(ctx context.Context, strategy string, limit int) ([]*domain.ClosedTrade, error) {
	query := `SELECT` + closedTradeColumns + `
	FROM closed_trades WHERE strategy = ? ORDER BY exit_time DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, strategy, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query closed trades for %s: %w", strategy, err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// RealizedPnL returns the summed realized P&L of all closed trades.
func (r *Repository) RealizedPnL(ctx context.Context) (float64, error) {
	const query = `SELECT COALESCE(SUM(realized_pnl), 0) FROM closed_trades`
	var total float64
	if err := r.db.QueryRowContext(ctx, query).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum realized pnl: %w", err)
	}
	return total, nil
}

// CountEnteredToday counts closed trades entered on the given UTC date.
func (r *Repository) CountEnteredToday(ctx context.Context, entryDate string) (int, error) {
	const query = `SELECT COUNT(*) FROM closed_trades WHERE entry_date = ?`
	var count int
	if err := r.db.QueryRowContext(ctx, query, entryDate).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count trades entered on %s: %w", entryDate, err)
	}
	return count, nil
}

// PnLClosedToday returns the summed realized P&L of trades closed on the given UTC date.
func (r *Repository) PnLClosedToday(ctx context.Context, exitDate string) (float64, error) {
	const query = `SELECT COALESCE(SUM(realized_pnl), 0) FROM closed_trades WHERE exit_date = ?`
	var total float64
	if err := r.db.QueryRowContext(ctx, query, exitDate).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum pnl closed on %s: %w", exitDate, err)
	}
	return total, nil
}

// --- StatsRepository Implementation ---

// Get retrieves stats for an exact strategy label. Returns nil, nil on miss.
func (r *Repository) Get(ctx context.Context, strategy string) (*domain.StrategyStats, error) {
	const query = `
	SELECT strategy, trades, wins, losses, win_rate, avg_win, avg_loss, expectancy, total_pnl, updated_at
	FROM strategy_stats WHERE strategy = ?`

	s := &domain.StrategyStats{}
	err := r.db.QueryRowContext(ctx, query, strategy).Scan(
		&s.Strategy, &s.Trades, &s.Wins, &s.Losses, &s.WinRate,
		&s.AvgWin, &s.AvgLoss, &s.Expectancy, &s.TotalPnL, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query stats for %s: %w", strategy, err)
	}
	return s, nil
}

// GetAll retrieves all stored strategy stats.
func (r *Repository) GetAll(ctx context.Context) ([]*domain.StrategyStats, error) {
	const query = `
	SELECT strategy, trades, wins, losses, win_rate, avg_win, avg_loss, expectancy, total_pnl, updated_at
	FROM strategy_stats ORDER BY strategy`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategy stats: %w", err)
	}
	defer rows.Close()

	all := make([]*domain.StrategyStats, 0)
	for rows.Next() {
		s := &domain.StrategyStats{}
		if err := rows.Scan(&s.Strategy, &s.Trades, &s.Wins, &s.Losses, &s.WinRate,
			&s.AvgWin, &s.AvgLoss, &s.Expectancy, &s.TotalPnL, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan strategy stats: %w", err)
		}
		all = append(all, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating strategy stats rows: %w", err)
	}
	return all, nil
}

// Upsert inserts or replaces the stats row for the label.
func (r *Repository) Upsert(ctx context.Context, stats *domain.StrategyStats) error {
	const query = `
	INSERT INTO strategy_stats (strategy, trades, wins, losses, win_rate, avg_win, avg_loss, expectancy, total_pnl, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(strategy) DO UPDATE SET
		trades = excluded.trades,
		wins = excluded.wins,
		losses = excluded.losses,
		win_rate = excluded.win_rate,
		avg_win = excluded.avg_win,
		avg_loss = excluded.avg_loss,
		expectancy = excluded.expectancy,
		total_pnl = excluded.total_pnl,
		updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		stats.Strategy, stats.Trades, stats.Wins, stats.Losses, stats.WinRate,
		stats.AvgWin, stats.AvgLoss, stats.Expectancy, stats.TotalPnL, stats.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert stats for %s: %w", stats.Strategy, err)
	}
	return nil
}

// --- CapitalConfigRepository Implementation ---

// StartingCapital returns the immutable starting capital baseline.
func (r *Repository) StartingCapital(ctx context.Context) (float64, error) {
	const query = `SELECT value FROM capital_config WHERE key = ?`
	var value string
	err := r.db.QueryRowContext(ctx, query, startingCapitalKey).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("starting capital not seeded: %w", ports.ErrNotFound)
		}
		return 0, fmt.Errorf("failed to read starting capital: %w", err)
	}
	amount, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid starting capital value %q: %w", value, err)
	}
	return amount, nil
}

// SetStartingCapital seeds the baseline if not already present. The baseline
// is immutable: a second call with a different value is ignored.
func (r *Repository) SetStartingCapital(ctx context.Context, amount float64) error {
	const query = `INSERT INTO capital_config (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, startingCapitalKey, strconv.FormatFloat(amount, 'f', -1, 64))
	if err != nil {
		return fmt.Errorf("failed to seed starting capital: %w", err)
	}
	return nil
}

// --- AuditLogRepository Implementation ---

// Append writes an audit event. The log is append-only.
func (r *Repository) Append(ctx context.Context, event *domain.AuditEvent) error {
	const query = `INSERT INTO audit_log (id, event_type, payload, created_at) VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, event.ID, event.Type, event.Payload, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit event %s: %w", event.ID, err)
	}
	return nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(s scanner) (*domain.OpenPosition, error) {
	p := &domain.OpenPosition{}
	var action, optType string
	err := s.Scan(
		&p.ID, &p.Symbol, &p.Strategy, &action, &optType, &p.Strike, &p.Expiration, &p.Contracts,
		&p.EntryPrice, &p.EntryBid, &p.EntryAsk, &p.EntrySpot, &p.EntryCommission,
		&p.EntryGreeks.Delta, &p.EntryGreeks.Gamma, &p.EntryGreeks.Theta, &p.EntryGreeks.Vega, &p.EntryIV,
		&p.EntryNetGEX, &p.EntryFlipPoint, &p.Confidence, &p.Thesis,
		&p.ProfitTargetPct, &p.StopLossPct, &p.EntryTime,
		&p.CurrentPrice, &p.CurrentSpot, &p.UnrealizedPnL, &p.UnrealizedPnLPct)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	p.Action = domain.TradeAction(action)
	p.OptionType = domain.OptionType(optType)
	return p, nil
}

func scanTrade(s scanner) (*domain.ClosedTrade, error) {
	t := &domain.ClosedTrade{}
	var action, optType, reason string
	var holdSeconds int64
	err := s.Scan(
		&t.ID, &t.PositionID, &t.Symbol, &t.Strategy, &action, &optType, &t.Strike, &t.Expiration, &t.Contracts,
		&t.EntryPrice, &t.EntrySpot, &t.EntryCommission, &t.EntryTime, &t.Confidence,
		&t.ExitPrice, &t.ExitSpot, &t.ExitCommission, &t.ExitTime,
		&reason, &t.ExitDetail, &t.RealizedPnL, &holdSeconds)
	if err != nil {
		return nil, err
	}
	t.Action = domain.TradeAction(action)
	t.OptionType = domain.OptionType(optType)
	t.CloseReason = domain.CloseReason(reason)
	t.HoldDuration = time.Duration(holdSeconds) * time.Second
	return t, nil
}

func collectTrades(rows *sql.Rows) ([]*domain.ClosedTrade, error) {
	trades := make([]*domain.ClosedTrade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan closed trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating closed trade rows: %w", err)
	}
	return trades, nil
}
