// Package app wires the bot: configuration, storage, the conversation
// flows, the deferred delivery loop, and the Telegram runtime options.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/greetly/greetly/core/bootstrap"
	corecmd "github.com/greetly/greetly/core/cmd"
	coretelegram "github.com/greetly/greetly/core/telegram"
	"github.com/greetly/greetly/core/telegram/middleware"
	"github.com/greetly/greetly/core/telegram/router"
	"github.com/greetly/greetly/internal/assets"
	"github.com/greetly/greetly/internal/delivery"
	"github.com/greetly/greetly/internal/flow"
	"github.com/greetly/greetly/internal/flow/adminflow"
	"github.com/greetly/greetly/internal/flow/cardflow"
	"github.com/greetly/greetly/internal/flow/ideaflow"
	"github.com/greetly/greetly/internal/flow/letterflow"
	"github.com/greetly/greetly/internal/flow/psychflow"
	"github.com/greetly/greetly/internal/flow/subflow"
	"github.com/greetly/greetly/internal/gen"
	"github.com/greetly/greetly/internal/paygate"
	"github.com/greetly/greetly/internal/quota"
	"github.com/greetly/greetly/internal/render"
	"github.com/greetly/greetly/internal/sched"
	"github.com/greetly/greetly/internal/subs"
	"github.com/greetly/greetly/internal/users"
)

// App holds the fully wired bot.
type App struct {
	cfg *Config
	db  *sqlx.DB

	courier     *lateCourier
	mux         *flow.Mux
	enricher    *gen.Enricher
	scheduler   *sched.Scheduler
	broadcaster *sched.Broadcaster

	users    users.Repo
	subs     *subs.Service
	subsRepo subs.Repo
	quota    *quota.Gate
	gen      gen.Generator

	registry *coretelegram.Registry
}

// lateCourier delegates to the Telegram courier once the bot exists. Flow
// handlers only run after the bot has started, so the inner courier is
// always bound by then.
type lateCourier struct {
	mu    sync.RWMutex
	inner delivery.Courier
}

func (l *lateCourier) bind(c delivery.Courier) {
	l.mu.Lock()
	l.inner = c
	l.mu.Unlock()
}

func (l *lateCourier) get() delivery.Courier {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.inner
}

func (l *lateCourier) Send(ctx context.Context, chatID int64, msg delivery.Message) (delivery.Ref, error) {
	return l.get().Send(ctx, chatID, msg)
}

func (l *lateCourier) Edit(ctx context.Context, ref delivery.Ref, msg delivery.Message) error {
	return l.get().Edit(ctx, ref, msg)
}

func (l *lateCourier) Delete(ctx context.Context, ref delivery.Ref) error {
	return l.get().Delete(ctx, ref)
}

// New builds the application from loaded configuration and an open
// database handle.
func New(cfg *Config, db *sqlx.DB) (*App, error) {
	a := &App{
		cfg:      cfg,
		db:       db,
		courier:  &lateCourier{},
		enricher: gen.NewEnricher(),
		users:    users.NewSQLRepo(db),
		quota:    quota.NewGate(quota.NewSQLRepo(db)),
		gen:      gen.NewOpenAI(cfg.OpenAI),
		registry: coretelegram.NewRegistry(),
	}
	a.subsRepo = subs.NewSQLRepo(db)
	a.subs = subs.NewService(a.subsRepo)

	var cloud assets.CloudSync = assets.NopSync{}
	if cfg.Assets.RemoteDir != "" {
		cloud = &assets.MirrorSync{LocalDir: cfg.Assets.Dir, RemoteDir: cfg.Assets.RemoteDir}
	}
	assetSvc := assets.NewService(assets.NewSQLRepo(db), cloud)

	gateway := paygate.NewHTTPGateway(cfg.Payment)
	renderer := render.NewCommandRenderer(cfg.Render)

	a.scheduler = sched.New(sched.Options{
		Repo:       sched.NewSQLRepo(db),
		Courier:    a.courier,
		Alerter:    &sched.AdminAlerter{Courier: a.courier, ChatID: cfg.Core.Telegram.AdminID},
		Interval:   time.Duration(cfg.Scheduler.IntervalSeconds) * time.Second,
		RetryDelay: time.Duration(cfg.Scheduler.RetryDelaySeconds) * time.Second,
	})
	a.broadcaster = sched.NewBroadcaster(a.courier,
		cfg.Broadcast.BatchSize,
		time.Duration(cfg.Broadcast.BatchDelayMS)*time.Millisecond,
	)

	a.mux = flow.NewMux(flow.Options{
		Store:    flow.NewSQLStore(db),
		Courier:  a.courier,
		OnCancel: a.enricher.Cancel,
	})

	defs := []*flow.Definition{
		cardflow.New(cardflow.Deps{
			Assets:   assetSvc.Repo,
			Renderer: renderer,
			Gen:      a.gen,
			Subs:     a.subs,
			Gateway:  gateway,
			Enricher: a.enricher,
			Gens:     a.mux,
			Price:    cfg.Pricing.Card,
		}),
		ideaflow.New(ideaflow.Deps{Gen: a.gen}),
		psychflow.New(psychflow.Deps{
			Gen:           a.gen,
			Quota:         a.quota,
			Subs:          a.subs,
			FreeLimit:     cfg.Limits.FreeMessages,
			SubscribeFlow: subflow.Name,
		}),
		subflow.New(subflow.Deps{
			Subs:    a.subs,
			Quota:   a.quota,
			Gateway: gateway,
		}),
		letterflow.New(letterflow.Deps{
			Scheduler: a.scheduler,
			Gateway:   gateway,
			Price:     cfg.Pricing.Letter,
		}),
		adminflow.New(adminflow.Deps{
			Assets:      assetSvc,
			Users:       a.users,
			Broadcaster: a.broadcaster,
			Scheduler:   a.scheduler,
		}),
	}
	for _, def := range defs {
		if err := a.mux.Register(def); err != nil {
			return nil, err
		}
	}

	if err := a.registerHandlers(); err != nil {
		return nil, err
	}
	return a, nil
}

// TelegramRunOptions assembles the runtime wiring for the core runner.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	core := a.cfg.CoreConfig()

	routes := router.CommandRoutes(a.registry, middleware.AdminOptions{AdminID: core.Telegram.AdminID})
	routes = append(routes, router.CallbackRoute(a.registry, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(a.mux, a.registry, router.TextOptions{})...)

	middlewares := coretelegram.DefaultMiddlewares(core, nil)
	middlewares = append(middlewares, coretelegram.Middleware{
		Name: "track_users",
		Use:  a.trackUsers,
	})

	return coretelegram.RunOptions{
		Config:      core,
		Registry:    a.registry,
		Middlewares: middlewares,
		Routes:      routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			a.courier.bind(delivery.NewTelebotCourier(rt.Bot))
			go a.scheduler.Run(ctx)
			return nil
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			a.enricher.Shutdown()
			return nil
		},
	}, nil
}

// Bootstrap is the corecmd glue: load infra, then build the app.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg := carrier.(*Config)

	res, err := bootstrap.Run(bootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}
	return New(cfg, res.DB)
}
