// Package app assembles the console from a Config: logger, cache store,
// gateway, localization and the console tasks.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdslog "log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/text/language"

	"github.com/unkn0wn-root/entcache"
	c "github.com/unkn0wn-root/entcache/codec"
	"github.com/unkn0wn-root/entcache/config"
	"github.com/unkn0wn-root/entcache/console"
	"github.com/unkn0wn-root/entcache/gateway"
	gen "github.com/unkn0wn-root/entcache/genstore"
	asynchook "github.com/unkn0wn-root/entcache/hooks/async"
	"github.com/unkn0wn-root/entcache/i18n"
	logrusadapter "github.com/unkn0wn-root/entcache/log/logrus"
	slogadapter "github.com/unkn0wn-root/entcache/log/slog"
	zapadapter "github.com/unkn0wn-root/entcache/log/zap"
	"github.com/unkn0wn-root/entcache/mutation"
	"github.com/unkn0wn-root/entcache/notify"
	"github.com/unkn0wn-root/entcache/promhooks"
	pr "github.com/unkn0wn-root/entcache/provider"
	bigcacheprovider "github.com/unkn0wn-root/entcache/provider/bigcache"
	redisprovider "github.com/unkn0wn-root/entcache/provider/redis"
	ristrettoprovider "github.com/unkn0wn-root/entcache/provider/ristretto"
	"github.com/unkn0wn-root/entcache/sloghooks"
)

type App struct {
	Console  *console.Console
	Store    entcache.Store
	Toasts   *notify.Recorder
	Registry *prometheus.Registry // nil unless metrics are enabled
	Log      entcache.Logger

	closers []func(context.Context) error
}

// Options carry what does not come from the config file.
type Options struct {
	Out io.Writer // log output
	// Notifier receives toasts next to the in-memory recorder.
	Notifier notify.Notifier
	// Gateway replaces the HTTP gateway, e.g. in tests.
	Gateway func(inval gateway.Invalidator, log entcache.Logger) (mutation.Sender, error)
}

func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	a := &App{Toasts: &notify.Recorder{}}
	if err := a.build(ctx, cfg, opts); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg config.Config, opts Options) (err error) {
	a.Log, err = newLogger(cfg.Log, opts.Out)
	if err != nil {
		return err
	}

	hooks, err := a.hooks(cfg, opts.Out)
	if err != nil {
		return err
	}

	var rdb goredis.UniversalClient
	if cfg.Cache.Provider == "redis" || cfg.Cache.GenStore == "redis" {
		rdb = goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })
	}

	prov, err := newProvider(ctx, cfg, rdb, a.Log)
	if err != nil {
		return err
	}
	codec, err := c.ForSnapshots(cfg.Cache.Codec)
	if err != nil {
		return err
	}
	if cfg.Cache.MaxDecodeBytes > 0 {
		codec = c.LimitCodec[c.Snapshot]{Inner: codec, MaxDecode: cfg.Cache.MaxDecodeBytes}
	}

	var gs gen.GenStore
	if cfg.Cache.GenStore == "redis" {
		gs = gen.NewRedisGenStoreWithTTL(rdb, cfg.Cache.Namespace, 0)
	}

	a.Store, err = entcache.New(entcache.Options{
		Namespace: cfg.Cache.Namespace,
		Provider:  prov,
		Codec:     codec,
		Logger:    a.Log,
		Hooks:     hooks,
		EntityTTL: cfg.Cache.EntityTTL,
		QueryTTL:  cfg.Cache.QueryTTL,
		Disabled:  cfg.Cache.Disabled,
		GenStore:  gs,
	})
	if err != nil {
		_ = prov.Close(ctx)
		return err
	}
	// the store closes its provider and genstore
	a.closers = append([]func(context.Context) error{a.Store.Close}, a.closers...)

	var send mutation.Sender
	if opts.Gateway != nil {
		send, err = opts.Gateway(a.Store, a.Log)
	} else {
		send, err = gateway.New(gateway.Config{
			Endpoint:    cfg.API.Endpoint,
			APIKey:      cfg.API.Key,
			Timeout:     cfg.API.Timeout,
			Invalidator: a.Store,
			Logger:      a.Log,
		})
	}
	if err != nil {
		return err
	}

	bundle, err := loadBundle(cfg.Catalog)
	if err != nil {
		return err
	}
	catalog := bundle.Catalog(cfg.Locale)

	a.Console, err = console.New(console.Deps{
		Store:    a.Store,
		Gateway:  send,
		Notifier: notify.Multi{a.Toasts, notify.LogNotifier{Log: a.Log, T: catalog}, opts.Notifier},
		Catalog:  catalog,
		Logger:   a.Log,
	})
	if err != nil {
		return err
	}
	return nil
}

func (a *App) hooks(cfg config.Config, out io.Writer) (entcache.Hooks, error) {
	var hs entcache.MultiHooks
	if cfg.Metrics.Enabled {
		a.Registry = prometheus.NewRegistry()
		ph, err := promhooks.New(a.Registry)
		if err != nil {
			return nil, err
		}
		hs = append(hs, ph)
	}
	if cfg.Log.Hooks {
		l := stdslog.New(stdslog.NewJSONHandler(out, &stdslog.HandlerOptions{Level: slogLevel(cfg.Log.Level)}))
		async := asynchook.New(sloghooks.New(l, sloghooks.Options{SelfHealEvery: 10, PatchSkippedEvery: 10}), 1, 1024)
		a.closers = append(a.closers, func(context.Context) error { async.Close(); return nil })
		hs = append(hs, async)
	}
	if len(hs) == 0 {
		return nil, nil
	}
	return hs, nil
}

func newProvider(ctx context.Context, cfg config.Config, rdb goredis.UniversalClient, log entcache.Logger) (pr.Provider, error) {
	switch cfg.Cache.Provider {
	case "ristretto":
		rc := ristrettoprovider.DefaultConfig()
		if r := cfg.Cache.Ristretto; r.NumCounters > 0 && r.MaxCost > 0 && r.BufferItems > 0 {
			rc.NumCounters, rc.MaxCost, rc.BufferItems = r.NumCounters, r.MaxCost, r.BufferItems
		}
		return ristrettoprovider.New(rc)
	case "bigcache":
		b := cfg.Cache.BigCache
		life := cfg.Cache.EntityTTL
		if life <= 0 {
			life = 10 * time.Minute
		}
		return bigcacheprovider.New(ctx, bigcacheprovider.Config{
			LifeWindow:         life,
			Shards:             b.Shards,
			HardMaxCacheSizeMB: b.HardMaxMB,
			MaxEntrySize:       b.MaxEntryKB << 10,
			OnRemove: func(key, reason string) {
				log.Debug("snapshot dropped by provider", entcache.Fields{"key": key, "reason": reason})
			},
		})
	case "redis":
		return redisprovider.New(redisprovider.Config{Client: rdb, KeyPrefix: cfg.Redis.KeyPrefix})
	default:
		return nil, fmt.Errorf("app: unknown provider %q", cfg.Cache.Provider)
	}
}

func loadBundle(dir string) (*i18n.Bundle, error) {
	if dir == "" {
		return i18n.Default()
	}
	return i18n.LoadDir(dir, language.English)
}

func newLogger(cfg config.LogConfig, out io.Writer) (entcache.Logger, error) {
	switch cfg.Backend {
	case "none":
		return entcache.NopLogger{}, nil
	case "zap":
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		core := zapcore.NewCore(enc, zapcore.AddSync(out), lvl)
		return zapadapter.New(zap.New(core), "console"), nil
	case "logrus":
		l := logrus.New()
		l.SetOutput(out)
		l.SetFormatter(&logrus.JSONFormatter{})
		lvl, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		l.SetLevel(lvl)
		return logrusadapter.New(l, "console"), nil
	case "slog":
		h := stdslog.NewJSONHandler(out, &stdslog.HandlerOptions{Level: slogLevel(cfg.Level)})
		return slogadapter.Logger{L: stdslog.New(h)}, nil
	default:
		return nil, fmt.Errorf("app: unknown log backend %q", cfg.Backend)
	}
}

func slogLevel(s string) stdslog.Level {
	var l stdslog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return stdslog.LevelInfo
	}
	return l
}

// Close releases the store, hook workers and clients, last opened first.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for _, cl := range a.closers {
		if err := cl(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
