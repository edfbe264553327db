package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/avoronov/journal-bot/internal/analytics"
	"github.com/avoronov/journal-bot/internal/config"
	"github.com/avoronov/journal-bot/internal/questions"
	"github.com/avoronov/journal-bot/internal/scheduler"
	"github.com/avoronov/journal-bot/internal/session"
	"github.com/avoronov/journal-bot/internal/store"
	"github.com/avoronov/journal-bot/internal/telegram"
)

type App struct {
	cfg     config.Config
	log     *zap.Logger
	bot     *tgbotapi.BotAPI
	httpSrv *http.Server

	repo     store.Repo
	bank     *questions.Bank
	router   *telegram.Router
	sessions *session.Manager
	sched    *scheduler.Scheduler
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	return &App{cfg: cfg, log: log, bot: bot, httpSrv: srv}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting journal-bot",
		zap.String("http", a.cfg.HTTPAddr),
		zap.String("default_tz", a.cfg.DefaultTZ),
	)

	// Open SQLite and run migrations.
	repo, err := store.OpenSQLite(ctx, a.cfg.DBPath)
	if err != nil {
		a.log.Error("open sqlite failed", zap.Error(err))
		return err
	}
	a.repo = repo
	a.log.Info("sqlite ready")

	bank, err := questions.Load()
	if err != nil {
		a.log.Error("load question bank failed", zap.Error(err))
		_ = repo.Close()
		return err
	}
	a.bank = bank
	a.log.Info("question bank loaded", zap.Int("questions", bank.Len()))

	// Wire router <-> session manager <-> scheduler. The router is the
	// manager's sink, so it is built first and attached last.
	a.router = telegram.NewRouter(a.bot, a.log, a.repo, a.bank, telegram.Defaults{
		TZ:              a.cfg.DefaultTZ,
		ScheduleMinutes: a.cfg.ScheduleMinutes(),
	})
	a.sessions = session.NewManager(a.repo, a.bank, a.router, a.log, a.cfg.SessionStaleAfter)
	a.sched = scheduler.New(a.repo, a.sessions, a.log)
	a.router.Attach(a.sessions, a.sched, analytics.New(a.repo, a.bank))

	// Re-arm persisted schedules; missed fires are not back-filled.
	if err := a.sched.Reload(ctx); err != nil {
		a.log.Error("scheduler reload failed", zap.Error(err))
		_ = repo.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go a.sessions.RunSweeper(ctx, a.cfg.SweepInterval)

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updCh := a.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")
			a.shutdown()
			return nil

		case upd := <-updCh:
			a.router.HandleUpdate(ctx, upd)
		}
	}
}

func (a *App) shutdown() {
	a.sched.Shutdown()

	// Create a short-lived shutdown context and cancel it immediately after use.
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err := a.httpSrv.Shutdown(shCtx)
	cancel()
	if err != nil {
		a.log.Warn("http server shutdown error", zap.Error(err))
	}

	if a.repo != nil {
		_ = a.repo.Close()
	}
}
