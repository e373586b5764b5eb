package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	adactor "github.com/gnowmil/peacefair-energy/internal/adapter/actor"
	"github.com/gnowmil/peacefair-energy/internal/adapter/storage"
	"github.com/gnowmil/peacefair-energy/internal/config"
	"github.com/gnowmil/peacefair-energy/internal/core/actor"
	"github.com/gnowmil/peacefair-energy/internal/server"
	"github.com/gnowmil/peacefair-energy/internal/util/actorutil"
	"github.com/gnowmil/peacefair-energy/pkg/pzem"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	logger.Info("starting bridge", zap.String("version", versioninfo.Short()))

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	// baseline store
	store, err := storage.NewFileBaselineStore(afero.NewOsFs(), cfg.StorageDir)
	if err != nil {
		panic(err)
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterActor(*cfg, store, meterClientProvider(logger), mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => PEACEFAIR_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("PEACEFAIR_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("peacefair")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check bounds
	if len(cfg.Devices) == 0 {
		return nil, errors.New("at least one device must be configured")
	}
	for i := range cfg.Devices {
		dev := &cfg.Devices[i]
		if dev.Protocol != config.ProtocolRTUOverTCP && dev.Protocol != config.ProtocolRTUOverUDP {
			return nil, fmt.Errorf("config param devices[%d].protocol must be %q or %q", i,
				config.ProtocolRTUOverTCP, config.ProtocolRTUOverUDP)
		}
		if dev.Host == "" {
			return nil, fmt.Errorf("config param devices[%d].host is required", i)
		}
		if dev.Port == 0 {
			dev.Port = 9000
		}
		if dev.UnitId == 0 {
			dev.UnitId = 1
		}
		if dev.UnitId > 0xFF {
			return nil, fmt.Errorf("config param devices[%d].unit_id should be <= 255", i)
		}
		if dev.TimeoutMillis == 0 {
			dev.TimeoutMillis = 2000
		}
		if dev.PollIntervalMillis == 0 {
			dev.PollIntervalMillis = 15000
		}
		if dev.PollIntervalMillis < 1000 {
			return nil, fmt.Errorf("config param devices[%d].poll_interval_millis should be >= 1000", i)
		}
	}
	if err := checkSeason("tariff.summer", cfg.Tariff.Summer); err != nil {
		return nil, err
	}
	if err := checkSeason("tariff.non_summer", cfg.Tariff.NonSummer); err != nil {
		return nil, err
	}
	for _, m := range cfg.Tariff.SummerMonths {
		if m < 1 || m > 12 {
			return nil, errors.New("config param tariff.summer_months entries must be in 1..12")
		}
	}

	return &cfg, nil
}

func checkSeason(name string, season config.SeasonConfig) error {
	if season.Tier1Limit <= 0 || season.Tier2Limit <= 0 {
		return fmt.Errorf("config params %s.tier1_limit and %s.tier2_limit should be > 0", name, name)
	}
	if season.Tier1Limit > season.Tier2Limit {
		return fmt.Errorf("config param %s.tier1_limit should be <= %s.tier2_limit", name, name)
	}
	if season.Tier1Price < 0 || season.Tier2Price < 0 || season.Tier3Price < 0 {
		return fmt.Errorf("config params %s.tier*_price should be >= 0", name)
	}
	return nil
}

func meterClientProvider(logger *zap.Logger) actor.MeterClientProvider {
	return func(devCfg config.DeviceConfig) (pzem.MeterClient, error) {
		endpoint, err := devCfg.Endpoint()
		if err != nil {
			return nil, err
		}
		return pzem.NewClient(endpoint, logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func() *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "peacefair")
	viper.SetDefault("mqtt.currency", "CNY")
	viper.SetDefault("storage_dir", "./data")
	viper.SetDefault("tariff.summer_months", []int{6, 7, 8, 9})
	viper.SetDefault("tariff.summer.tier1_limit", 260)
	viper.SetDefault("tariff.summer.tier2_limit", 600)
	viper.SetDefault("tariff.summer.tier1_price", 0.5)
	viper.SetDefault("tariff.summer.tier2_price", 0.6)
	viper.SetDefault("tariff.summer.tier3_price", 0.7)
	viper.SetDefault("tariff.non_summer.tier1_limit", 200)
	viper.SetDefault("tariff.non_summer.tier2_limit", 400)
	viper.SetDefault("tariff.non_summer.tier1_price", 0.45)
	viper.SetDefault("tariff.non_summer.tier2_price", 0.55)
	viper.SetDefault("tariff.non_summer.tier3_price", 0.65)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
