// Gray Logic Charger Bridge
//
// Connects a Shure SBRC/SBC battery charger to the Gray Logic MQTT bus:
//   - Retained per-bay, per-module and charger state
//   - Commands and read requests over MQTT and the HTTP API
//   - Optional bay history, InfluxDB metrics and a Modbus register mirror
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nerrad567/gray-logic-charger/internal/api"
	"github.com/nerrad567/gray-logic-charger/internal/bridges/sbrc"
	"github.com/nerrad567/gray-logic-charger/internal/history"
	"github.com/nerrad567/gray-logic-charger/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-charger/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-charger/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-charger/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-charger/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-charger/internal/modbusmirror"
	"github.com/nerrad567/gray-logic-charger/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

const (
	// chargerRetryMax caps the delay between initial connection attempts.
	chargerRetryMax = time.Minute

	// historyRetention is how long bay history is kept.
	historyRetention = 90 * 24 * time.Hour
	historyPruneTick = 6 * time.Hour
)

func main() {
	configFlag := flag.String("config", "", "path to config.yaml (overrides GRAYLOGIC_CONFIG)")
	flag.Parse()

	// A missing .env file is normal in production.
	_ = godotenv.Load() //nolint:errcheck // Optional file

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, getConfigPath(*configFlag)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: Path to the YAML configuration
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting Gray Logic charger bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)

	model, err := sbrc.LookupModel(cfg.Charger.ModelID)
	if err != nil {
		return fmt.Errorf("charger model: %w", err)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	bridgeID := cfg.Charger.BridgeID
	bayHistory := history.NewBayHistory(db.DB, bridgeID)
	bayHistory.SetLogger(log)
	commandAudit := history.NewCommandAudit(db.DB, bridgeID)

	mqttClient, err := connectMQTT(cfg, bridgeID)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	charger, err := connectCharger(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing charger connection")
		if closeErr := charger.Close(); closeErr != nil {
			log.Error("error closing charger", "error", closeErr)
		}
	}()

	hub := api.NewHub(cfg.WebSocket, log)
	sinks := []sbrc.ChangeSink{hub, bayHistory}

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		sinks = append(sinks, influxdb.NewSink(influxClient, bridgeID))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	if cfg.Modbus.Enabled {
		mirror, mirrorErr := startModbusMirror(cfg, model.ActiveBays(cfg.Charger.ModuleCount), charger.Store(), log)
		if mirrorErr != nil {
			return mirrorErr
		}
		defer func() {
			if closeErr := mirror.Close(); closeErr != nil {
				log.Error("error closing Modbus mirror", "error", closeErr)
			}
		}()
		sinks = append(sinks, mirror)
	}

	bridge, err := sbrc.NewBridge(sbrc.BridgeOptions{
		Config: sbrc.BridgeConfig{
			ID:              bridgeID,
			Version:         version,
			Address:         cfg.ChargerAddress(),
			Model:           model,
			ModuleCount:     cfg.Charger.ModuleCount,
			HealthInterval:  time.Duration(cfg.Charger.HealthInterval) * time.Second,
			Discovery:       cfg.HomeAssistant.Discovery,
			DiscoveryPrefix: cfg.HomeAssistant.DiscoveryPrefix,
		},
		MQTTClient: mqtt.NewBridgeAdapter(mqttClient),
		Charger:    charger,
		Logger:     log,
		Sinks:      sinks,
		Recorder:   commandAudit,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer bridge.Stop()

	// The retained LWT says offline after a broker outage until the next
	// publish, so correct it straight away.
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
		if pubErr := bridge.PublishHealth(); pubErr != nil {
			log.Warn("republishing health failed", "error", pubErr)
		}
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:       cfg.API,
			WS:           cfg.WebSocket,
			Security:     cfg.Security,
			Logger:       log,
			Bridge:       bridge,
			Hub:          hub,
			BayHistory:   bayHistory,
			CommandAudit: commandAudit,
			DB:           db,
			MQTT:         mqttClient,
			Version:      version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	go pruneHistory(ctx, bayHistory, log)

	if err := healthCheck(ctx, db, mqttClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal",
		"bridge_id", bridgeID,
		"model", model.ID,
		"bays", model.ActiveBays(cfg.Charger.ModuleCount),
	)

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path. The flag wins over
// GRAYLOGIC_CONFIG, which wins over the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectMQTT connects to the broker with the bridge's offline health
// message registered as the Last Will.
func connectMQTT(cfg *config.Config, bridgeID string) (*mqtt.Client, error) {
	lwt, err := json.Marshal(sbrc.NewLWTMessage(bridgeID))
	if err != nil {
		return nil, fmt.Errorf("encoding LWT: %w", err)
	}
	client, err := mqtt.Connect(cfg.MQTT, mqtt.Will{Topic: sbrc.HealthTopic(), Payload: lwt})
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	return client, nil
}

// connectCharger dials the charger, retrying with backoff until it answers
// or ctx is cancelled. Once connected the client reconnects by itself.
func connectCharger(ctx context.Context, cfg *config.Config, log *logging.Logger) (*sbrc.Client, error) {
	clientCfg := sbrc.ClientConfig{
		Address:           cfg.ChargerAddress(),
		ConnectTimeout:    time.Duration(cfg.Charger.ConnectTimeout) * time.Second,
		ReadTimeout:       time.Duration(cfg.Charger.ReadTimeout) * time.Second,
		ReconnectInterval: time.Duration(cfg.Charger.ReconnectInterval) * time.Second,
	}

	if _, err := sbrc.ParseAddress(clientCfg.Address); err != nil {
		return nil, fmt.Errorf("charger address: %w", err)
	}

	backoff := clientCfg.ReconnectInterval
	if backoff <= 0 {
		backoff = time.Second
	}
	for {
		client, err := sbrc.Connect(ctx, clientCfg)
		if err == nil {
			client.SetLogger(log)
			log.Info("charger connected", "address", clientCfg.Address)
			return client, nil
		}
		log.Warn("charger unreachable, retrying", "address", clientCfg.Address, "retry_in", backoff, "error", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connecting to charger: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, chargerRetryMax)
	}
}

// startModbusMirror connects the register writer and pushes the current
// store so the PLC sees a full image before the first change.
func startModbusMirror(cfg *config.Config, activeBays int, store *sbrc.Store, log *logging.Logger) (*modbusmirror.Mirror, error) {
	writer, err := modbusmirror.NewEndpointClient(cfg.Modbus.Endpoint, time.Duration(cfg.Modbus.Timeout)*time.Second)
	if err != nil {
		return nil, fmt.Errorf("creating Modbus client: %w", err)
	}

	mirror, err := modbusmirror.New(modbusmirror.Config{
		UnitID:      uint8(cfg.Modbus.UnitID),       //nolint:gosec // Validated 0-247 by config
		BaseAddress: uint16(cfg.Modbus.BaseAddress), //nolint:gosec // Validated 0-65535 by config
		BayStride:   uint16(cfg.Modbus.BayStride),   //nolint:gosec // Validated 0-65535 by config
		ActiveBays:  activeBays,
	}, writer)
	if err != nil {
		_ = writer.Close() //nolint:errcheck // Cleanup on failure
		return nil, fmt.Errorf("creating Modbus mirror: %w", err)
	}
	mirror.SetLogger(log)

	if err := mirror.Sync(store); err != nil {
		// The PLC may come up later; changes keep flowing.
		log.Warn("initial Modbus sync failed", "endpoint", cfg.Modbus.Endpoint, "error", err)
	}
	log.Info("Modbus mirror started",
		"endpoint", cfg.Modbus.Endpoint,
		"unit_id", cfg.Modbus.UnitID,
		"base_address", cfg.Modbus.BaseAddress,
	)
	return mirror, nil
}

// pruneHistory deletes old bay history periodically until ctx is done.
func pruneHistory(ctx context.Context, bays *history.BayHistory, log *logging.Logger) {
	ticker := time.NewTicker(historyPruneTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := bays.Prune(ctx, historyRetention)
			if err != nil {
				log.Error("pruning bay history", "error", err)
				continue
			}
			if n > 0 {
				log.Info("pruned bay history", "rows", n)
			}
		}
	}
}

// healthCheck verifies infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	return nil
}
