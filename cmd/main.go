package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"stopguardian/cmd/guardian"
	"stopguardian/src/model"
)

var Version string

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.InfoLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using process environment")
	}
	SetupLogger()

	app := cli.NewApp()
	app.Name = "Stop Loss Guardian"
	app.Usage = "Monitors open positions and screams when one has no stop loss"
	app.Version = Version

	app.Commands = []cli.Command{
		monitorCMD,
		sizeCMD,
		setStopCMD,
		ackCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	monitorCMD = cli.Command{
		Name:        "monitor",
		Usage:       "run the monitoring loop",
		Action:      monitorAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the stop loss monitoring service until interrupted`,
	}
	sizeCMD = cli.Command{
		Name:      "size",
		Usage:     "calculate position size for a trade",
		Action:    sizeAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "symbol", Usage: "stock symbol"},
			cli.StringFlag{Name: "entry", Usage: "planned entry price"},
			cli.StringFlag{Name: "stop", Usage: "stop loss price"},
		},
		Description: `Size a prospective trade against live account equity`,
	}
	setStopCMD = cli.Command{
		Name:      "set-stop",
		Usage:     "record a manual stop loss for an open position",
		Action:    setStopAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "symbol", Usage: "stock symbol"},
			cli.StringFlag{Name: "price", Usage: "stop loss price"},
			cli.StringFlag{Name: "type", Usage: "stop type", Value: model.StopLossTypeManual},
		},
		Description: `Record a stop loss and reset alerting for the symbol`,
	}
	ackCMD = cli.Command{
		Name:      "ack",
		Usage:     "acknowledge an alert for a symbol",
		Action:    ackAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "symbol", Usage: "stock symbol"},
			cli.StringFlag{Name: "reason", Usage: "why the alert is being silenced"},
		},
		Description: `Silence further alerts for a symbol`,
	}
)

func monitorAction(_ *cli.Context) error {
	logger.Info("Starting Stop Loss Guardian CMD")

	runner := &guardian.Runner{}
	err := runner.Start()
	if err != nil {
		logger.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func sizeAction(c *cli.Context) error {
	symbol := strings.ToUpper(c.String("symbol"))
	if symbol == "" {
		return fmt.Errorf("--symbol is required")
	}
	entry, err := decimal.NewFromString(c.String("entry"))
	if err != nil {
		return fmt.Errorf("invalid --entry: %w", err)
	}
	stop, err := decimal.NewFromString(c.String("stop"))
	if err != nil {
		return fmt.Errorf("invalid --stop: %w", err)
	}

	ctx := context.Background()
	g, cleanup, err := guardian.Bootstrap(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	recommendation, err := g.CheckPositionSize(ctx, symbol, entry, stop)
	if err != nil {
		return err
	}

	fmt.Println(recommendation)
	return nil
}

func setStopAction(c *cli.Context) error {
	symbol := strings.ToUpper(c.String("symbol"))
	if symbol == "" {
		return fmt.Errorf("--symbol is required")
	}
	price, err := decimal.NewFromString(c.String("price"))
	if err != nil {
		return fmt.Errorf("invalid --price: %w", err)
	}
	if !price.IsPositive() {
		return fmt.Errorf("--price must be positive")
	}

	ctx := context.Background()
	g, cleanup, err := guardian.Bootstrap(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	return g.SetStopLoss(ctx, symbol, price, c.String("type"))
}

func ackAction(c *cli.Context) error {
	symbol := strings.ToUpper(c.String("symbol"))
	if symbol == "" {
		return fmt.Errorf("--symbol is required")
	}

	ctx := context.Background()
	g, cleanup, err := guardian.Bootstrap(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	return g.AcknowledgeAlert(ctx, symbol, c.String("reason"))
}
