package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeovahfialho/stock-tracker/internal/config"
	"github.com/jeovahfialho/stock-tracker/internal/service"
	"github.com/jeovahfialho/stock-tracker/internal/storage/cache"
	"github.com/jeovahfialho/stock-tracker/internal/storage/postgres"
	"github.com/jeovahfialho/stock-tracker/internal/stream/redisstream"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "stock-tracker",
		Short: "Stock Position Tracker CLI",
		Long: `CLI for the stock position tracker.
Inserts trades, inspects positions and replays stored trades
through the aggregation pipeline.`,
	}

	var tradeCmd = &cobra.Command{
		Use:   "trade",
		Short: "Insert a buy or sell trade",
		RunE: func(cmd *cobra.Command, args []string) error {
			stock, _ := cmd.Flags().GetString("stock")
			operation, _ := cmd.Flags().GetString("operation")
			quantity, _ := cmd.Flags().GetInt64("quantity")
			amountStr, _ := cmd.Flags().GetString("amount")
			coin, _ := cmd.Flags().GetString("coin")
			date, _ := cmd.Flags().GetString("date")
			return insertTrade(stock, operation, quantity, amountStr, coin, date)
		},
	}

	tradeCmd.Flags().StringP("stock", "s", "", "Stock symbol (required)")
	tradeCmd.Flags().StringP("operation", "o", "", "BUY or SELL (required)")
	tradeCmd.Flags().Int64P("quantity", "q", 0, "Traded quantity (required)")
	tradeCmd.Flags().StringP("amount", "a", "", "Capital moved by the trade (required)")
	tradeCmd.Flags().StringP("coin", "c", "USD", "Settlement currency")
	tradeCmd.Flags().StringP("date", "d", "", "Trade timestamp (RFC3339, default: now)")
	_ = tradeCmd.MarkFlagRequired("stock")
	_ = tradeCmd.MarkFlagRequired("operation")
	_ = tradeCmd.MarkFlagRequired("quantity")
	_ = tradeCmd.MarkFlagRequired("amount")

	var positionCmd = &cobra.Command{
		Use:   "position [stock]",
		Short: "Show totals, average and mean price for a stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return showPosition(args[0])
		},
	}

	var replayCmd = &cobra.Command{
		Use:   "replay",
		Short: "Republish stored trades to rebuild aggregates",
		RunE: func(cmd *cobra.Command, args []string) error {
			stock, _ := cmd.Flags().GetString("stock")
			return replayTrades(stock)
		},
	}

	replayCmd.Flags().StringP("stock", "s", "", "Replay only this stock (default: all)")

	var migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create the record tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate()
		},
	}

	var healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Check store and stream connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkHealth()
		},
	}

	rootCmd.AddCommand(tradeCmd, positionCmd, replayCmd, migrateCmd, healthCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func connect() (*config.Config, *postgres.DB, *cache.RedisCache, error) {
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := postgres.NewDB(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	cacheService, err := cache.NewRedisCache(cfg)
	if err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return cfg, db, cacheService, nil
}

func insertTrade(stock, operation string, quantity int64, amountStr, coin, date string) error {
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", amountStr, err)
	}

	cfg, db, cacheService, err := connect()
	if err != nil {
		return err
	}
	defer db.Close()
	defer cacheService.Close()

	publisher := redisstream.NewPublisher(cacheService.Client(), cfg.StreamName)
	trades := service.NewTradeService(postgres.NewStore(db), publisher, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	requestID, err := trades.Insert(ctx, service.InsertTradeRequest{
		Stock:     stock,
		Operation: operation,
		Quantity:  quantity,
		Amount:    amount,
		Coin:      coin,
		Date:      date,
	})
	if err != nil {
		return err
	}

	fmt.Printf("✅ trade accepted: %s\n", requestID)
	return nil
}

func showPosition(stock string) error {
	cfg, db, cacheService, err := connect()
	if err != nil {
		return err
	}
	defer db.Close()
	defer cacheService.Close()

	positions := service.NewPositionService(postgres.NewStore(db), cacheService, cfg.CacheTTL, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	position, err := positions.GetPosition(ctx, stock)
	if err != nil {
		return err
	}

	fmt.Printf("📊 Position for %s\n", position.Stock)
	if position.Total != nil {
		fmt.Printf("  quantity: %d\n", position.Total.Quantity)
		fmt.Printf("  amount:   %s %s\n", position.Total.Amount, position.Total.Coin)
	}
	if position.Average != nil {
		fmt.Printf("  average:  %s %s\n", position.Average.Average, position.Average.Coin)
	}
	if position.MeanPrice != nil {
		fmt.Printf("  mean:     %s\n", position.MeanPrice.Value)
	}

	return nil
}

func replayTrades(stock string) error {
	cfg, db, cacheService, err := connect()
	if err != nil {
		return err
	}
	defer db.Close()
	defer cacheService.Close()

	publisher := redisstream.NewPublisher(cacheService.Client(), cfg.StreamName)
	trades := service.NewTradeService(postgres.NewStore(db), publisher, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	count, err := trades.Replay(ctx, stock)
	if err != nil {
		return err
	}

	fmt.Printf("🔁 republished %d trades\n", count)
	return nil
}

func migrate() error {
	_, db, cacheService, err := connect()
	if err != nil {
		return err
	}
	defer db.Close()
	defer cacheService.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}

	fmt.Println("✅ schema ready")
	return nil
}

func checkHealth() error {
	_, db, cacheService, err := connect()
	if err != nil {
		return err
	}
	defer db.Close()
	defer cacheService.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	fmt.Println("✅ PostgreSQL ok")

	if err := cacheService.HealthCheck(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	fmt.Println("✅ Redis ok")

	return nil
}
