package main

import (
	"context"

	"github.com/campusvolt/prepaid-engine/internal/config"
	"github.com/campusvolt/prepaid-engine/internal/db"
	"github.com/campusvolt/prepaid-engine/internal/mq"
	"github.com/campusvolt/prepaid-engine/internal/repository"
	"github.com/campusvolt/prepaid-engine/internal/service"
	"github.com/campusvolt/prepaid-engine/internal/store"
	"github.com/campusvolt/prepaid-engine/internal/telemetry"
	"github.com/campusvolt/prepaid-engine/internal/validator"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// startEngine wires the background pieces: the consumption simulator ticker
// and the command consumer carrying the external period-reset trigger.
func startEngine(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	logger *zap.Logger,
	simulator *service.Simulator,
	commands *service.CommandService,
) (*mq.Consumer, error) {
	ctx, cancel := context.WithCancel(context.Background())

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:       conn,
		Queue:            cfg.RabbitMQ.CommandQueue,
		DLQQueue:         cfg.RabbitMQ.CommandDLQQueue,
		Exchange:         cfg.RabbitMQ.CommandExchange,
		RoutingKey:       cfg.RabbitMQ.CommandRoutingKey,
		PrefetchCount:    cfg.RabbitMQ.PrefetchCount,
		Logger:           logger,
		MessageProcessor: commands.ProcessMessage,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			logger.Info("starting engine",
				zap.String("command_queue", cfg.RabbitMQ.CommandQueue),
				zap.Duration("tick_interval", cfg.Simulator.Interval))
			if err := consumer.Start(ctx); err != nil {
				return err
			}
			go simulator.Run(ctx)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			if err := consumer.Close(); err != nil {
				logger.Error("failed to close consumer", zap.Error(err))
				return err
			}
			logger.Info("engine stopped gracefully")
			return nil
		},
	})

	return consumer, nil
}

// ProvideStore selects the configured store backend
func ProvideStore(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (store.Store, error) {
	if cfg.StoreBackend == config.BackendMemory {
		logger.Warn("using in-memory store; state is lost on restart")
		return store.NewMemory(), nil
	}
	pool, err := db.NewPool(lc, logger, cfg.Database.URL, int32(cfg.Database.MaxConns))
	if err != nil {
		return nil, err
	}
	return repository.NewRepository(pool), nil
}

// ProvideValidator creates the input validator
func ProvideValidator(cfg *config.Config) *validator.Validator {
	return validator.NewValidator(cfg.Topup.MaxAmount)
}

// ProvideTelemetryGenerator creates the synthetic telemetry source
func ProvideTelemetryGenerator(cfg *config.Config) *telemetry.Generator {
	return telemetry.NewGenerator(
		cfg.Simulator.MinVoltage,
		cfg.Simulator.MaxVoltage,
		cfg.Simulator.MaxCurrent,
		cfg.Simulator.Seed,
	)
}

// ProvideMQConnection creates the RabbitMQ connection
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}

// ProvidePublisher creates the meter event publisher
func ProvidePublisher(conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (*mq.Publisher, error) {
	return mq.NewPublisher(conn, cfg.RabbitMQ.EventsExchange, logger)
}

// ProvideTopupService creates the topup service
func ProvideTopupService(st store.Store, publisher *mq.Publisher, validate *validator.Validator, cfg *config.Config, logger *zap.Logger) *service.TopupService {
	return service.NewTopupService(st, publisher, validate, cfg.RabbitMQ.EventsRoutingKey, logger)
}

// ProvideLedgerService creates the token ledger service
func ProvideLedgerService(st store.Store, publisher *mq.Publisher, validate *validator.Validator, cfg *config.Config, logger *zap.Logger) *service.LedgerService {
	return service.NewLedgerService(st, publisher, validate, cfg.RabbitMQ.EventsRoutingKey, logger)
}

// ProvideMeterService creates the meter lifecycle service
func ProvideMeterService(st store.Store, validate *validator.Validator, cfg *config.Config, logger *zap.Logger) *service.MeterService {
	return service.NewMeterService(st, validate, cfg.Meter.DefaultLowThresholdKwh, logger)
}

// ProvideCommandService creates the command dispatcher
func ProvideCommandService(meters *service.MeterService, logger *zap.Logger) *service.CommandService {
	return service.NewCommandService(meters, logger)
}

// ProvideSimulator creates the consumption simulator
func ProvideSimulator(st store.Store, publisher *mq.Publisher, gen *telemetry.Generator, cfg *config.Config, logger *zap.Logger) *service.Simulator {
	return service.NewSimulator(
		st,
		publisher,
		gen,
		cfg.Simulator.ConsumptionPerTick,
		cfg.Simulator.Interval,
		cfg.RabbitMQ.EventsRoutingKey,
		logger,
	)
}
