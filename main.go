package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tradegate/config"
	"tradegate/internal/gateway"
	"tradegate/internal/models"
	"tradegate/internal/parser"
	"tradegate/internal/stream"
	"tradegate/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Tradegate.Name,
		"version": cfg.Tradegate.Version,
	}).Info("starting tradegate")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch {
		logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	p, err := parser.New(parser.Variant(cfg.Stream.Parser))
	if err != nil {
		log.WithError(err).Error("Failed to create message parser")
		os.Exit(1)
	}

	streamer := stream.New(cfg.Stream, p)

	mlog := log.WithComponent("market_data")
	streamer.SetTradeCallback(func(ev *models.TradeEvent) {
		mlog.WithFields(logger.Fields{
			"symbol": ev.Symbol,
			"price":  ev.Price,
			"qty":    ev.Quantity,
		}).Debug("trade")
	})
	streamer.SetDepthCallback(func(ev *models.OrderBookEvent) {
		mlog.WithFields(logger.Fields{
			"symbol":   ev.Symbol,
			"snapshot": ev.IsSnapshot,
			"bids":     len(ev.Bids),
			"asks":     len(ev.Asks),
		}).Debug("depth")
	})
	streamer.SetTickerCallback(func(ev *models.TickerEvent) {
		mlog.WithFields(logger.Fields{
			"symbol":     ev.Symbol,
			"last_price": ev.LastPrice,
		}).Debug("ticker")
	})
	streamer.SetExecutionCallback(func(ev *models.ExecutionEvent) {
		mlog.WithFields(logger.Fields{
			"symbol":   ev.Symbol,
			"order_id": ev.OrderID,
			"price":    ev.ExecPrice,
			"qty":      ev.ExecQty,
		}).Info("execution")
	})

	var gw *gateway.OrderGateway
	if cfg.Gateway.Enabled {
		gw = gateway.New(cfg.Gateway)
		glog := log.WithComponent("order_updates")
		gw.SetOrderUpdateCallback(func(raw string) {
			glog.WithFields(logger.Fields{"frame": raw}).Debug("order update")
		})
		if err := gw.Connect(ctx); err != nil {
			log.WithError(err).Error("Failed to connect order gateway")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("order gateway disabled; market data only")
	}

	if err := streamer.Start(ctx); err != nil {
		log.WithError(err).Error("Failed to start market stream")
		if gw != nil {
			gw.Stop()
		}
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	cancel()
	streamer.Stop()
	if gw != nil {
		gw.Stop()
	}
	log.WithComponent("main").Info("tradegate stopped")
}
