package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/CargoDesk/config"
	backofficeapi "github.com/BearBump/CargoDesk/internal/api/backoffice_api"
	"github.com/BearBump/CargoDesk/internal/broker/kafka"
	"github.com/BearBump/CargoDesk/internal/cache/rediscache"
	"github.com/BearBump/CargoDesk/internal/services/reconcile"
	"github.com/BearBump/CargoDesk/internal/services/settings"
	"github.com/BearBump/CargoDesk/internal/services/trackings"
	"github.com/BearBump/CargoDesk/internal/services/users"
	"github.com/BearBump/CargoDesk/internal/storage/pgstore"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type cargoAPIApp struct {
	ctx     context.Context
	cancel  context.CancelFunc
	opts    cargoAPIOpts
	api     *backofficeapi.BackofficeAPI
	checks  map[string]readinessCheck
	closers []func()
}

func mustBootstrapCargoAPI() *cargoAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("config parse error: %v", err))
	}
	defaults, err := settingsDefaults(cfg.CargoDesk)
	if err != nil {
		panic(err)
	}

	grpcAddr := cfg.CargoDesk.GRPCAddr
	if grpcAddr == "" {
		grpcAddr = ":50051"
	}
	httpAddr := cfg.CargoDesk.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	groupTTL := time.Duration(cfg.CargoDesk.GroupCacheTTLSeconds) * time.Second
	if groupTTL <= 0 {
		groupTTL = 2 * time.Minute
	}
	settingsTTL := time.Duration(cfg.CargoDesk.SettingsCacheTTLSeconds) * time.Second
	if settingsTTL <= 0 {
		settingsTTL = 10 * time.Minute
	}

	st := mustOpenPostgresWithRetry(cfg.PostgresConnString(), 60*time.Second)
	rc := rediscache.New(cfg.RedisAddr())
	producer := kafka.NewProducer(cfg.KafkaBrokers(), cfg.EventsTopic())

	settingsSvc := settings.New(st.ShippingRates(), st.BaseAddresses(), st, rc, settingsTTL, defaults)
	engine := reconcile.New(st, reconcile.WithLogger(slog.Default()))
	trackingSvc := trackings.New(st, engine, settingsSvc, producer, rc, groupTTL)
	userSvc := users.New(st, producer, markFormat(cfg.CargoDesk))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &cargoAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: cargoAPIOpts{
			grpcAddr:     grpcAddr,
			httpAddr:     httpAddr,
			grpcDialAddr: grpcAddr,
			swaggerPath:  swaggerPath,
		},
		api: backofficeapi.New(trackingSvc, userSvc, settingsSvc, st),
		checks: map[string]readinessCheck{
			"postgres": st.Ping,
			"redis":    rc.Ping,
		},
		closers: []func(){
			func() { _ = producer.Close() },
			func() { _ = rc.Close() },
			st.Close,
		},
	}
}

// settingsDefaults parses the configured fallback values.
func settingsDefaults(c config.CargoDeskConfig) (settings.Defaults, error) {
	parse := func(name, v, def string) (decimal.Decimal, error) {
		if v == "" {
			v = def
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "cargodesk.%s", name)
		}
		return d, nil
	}

	var (
		out settings.Defaults
		err error
	)
	if out.NormalGoodsRate, err = parse("default_normal_goods_rate", c.DefaultNormalGoodsRate, "250"); err != nil {
		return out, err
	}
	if out.SpecialGoodsRate, err = parse("default_special_goods_rate", c.DefaultSpecialGoodsRate, "300"); err != nil {
		return out, err
	}
	if out.USDToGHS, err = parse("default_usd_to_ghs", c.DefaultUSDToGHS, "12.0"); err != nil {
		return out, err
	}
	out.BaseAddress = c.DefaultBaseAddress
	return out, nil
}

func markFormat(c config.CargoDeskConfig) users.MarkFormat {
	f := users.MarkFormat{Prefix: c.MarkPrefix, Code: c.MarkCode}
	if f.Prefix == "" {
		f.Prefix = "M856"
	}
	if f.Code == "" {
		f.Code = "FIM"
	}
	return f
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgstore.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgstore.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *cargoAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for _, c := range a.closers {
		c()
	}
}

func (a *cargoAPIApp) Run() error {
	return runCargoAPI(a.ctx, a.opts, a.api, a.checks)
}
