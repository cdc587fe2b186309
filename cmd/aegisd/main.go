package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"Aegis-Engine/internal/api"
	"Aegis-Engine/internal/config"
	"Aegis-Engine/internal/engine"
	"Aegis-Engine/internal/eventbus"
	"Aegis-Engine/internal/journal"
	"Aegis-Engine/internal/observability/alerting"
	"Aegis-Engine/pkg/logger"
)

// main 是 Aegis 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("aegisd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("AEGIS_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "aegis.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	var store journal.Store
	switch cfg.Journal.Driver {
	case "", "memory":
		store = journal.NewMemoryStore(cfg.Journal.MemoryLimit)
	case "mysql":
		mysqlStore, err := journal.NewMySQLStore(cfg.Journal.DSN)
		if err != nil {
			return err
		}
		store = mysqlStore
	default:
		return fmt.Errorf("未知的流水驱动: %s", cfg.Journal.Driver)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("关闭流水存储失败: %v", err)
		}
	}()

	var bus eventbus.Publisher
	var memoryBus *eventbus.MemoryBus
	switch cfg.EventBus.Driver {
	case "", "memory":
		memoryBus = eventbus.NewMemoryBus(0)
		bus = memoryBus
	case "redis":
		redisBus, err := eventbus.NewRedisBus(eventbus.RedisConfig{
			Address:  cfg.EventBus.Redis.Address,
			Password: cfg.EventBus.Redis.Password,
			DB:       cfg.EventBus.Redis.DB,
			Stream:   cfg.EventBus.Redis.Stream,
			Limit:    int64(cfg.EventBus.Redis.Limit),
		})
		if err != nil {
			return err
		}
		bus = redisBus
	case "rabbitmq":
		rabbitBus, err := eventbus.NewRabbitMQBus(eventbus.RabbitMQConfig{
			URL:      cfg.EventBus.RabbitMQ.URL,
			Exchange: cfg.EventBus.RabbitMQ.Exchange,
			Durable:  cfg.EventBus.RabbitMQ.Durable,
		})
		if err != nil {
			return err
		}
		bus = rabbitBus
	default:
		return fmt.Errorf("未知的事件通道驱动: %s", cfg.EventBus.Driver)
	}
	defer func() {
		if err := bus.Close(); err != nil {
			log.Printf("关闭事件通道失败: %v", err)
		}
	}()

	notifiers := []alerting.Notifier{alerting.LogNotifier{}}
	if cfg.Alerting.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.Alerting.WebhookURL})
	}
	alerts := alerting.NewFanout(notifiers...)

	eng := engine.New(cfg, store, bus, alerts)
	ready, err := eng.Initialize(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	if ready {
		eng.Start()
	}

	server := api.NewServer(cfg.Server.Address, eng, store, memoryBus)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
