package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/d2avids/helper-bot/internal/bot"
	"github.com/d2avids/helper-bot/internal/clock"
	"github.com/d2avids/helper-bot/internal/config"
	"github.com/d2avids/helper-bot/internal/db"
	"github.com/d2avids/helper-bot/internal/dialog"
	"github.com/d2avids/helper-bot/internal/logging"
	"github.com/d2avids/helper-bot/internal/match"
	"github.com/d2avids/helper-bot/internal/repo"
	"github.com/d2avids/helper-bot/internal/sched"
)

// schedulerAdapter прячет sched за интерфейсом ядра.
type schedulerAdapter struct{ s *sched.Scheduler }

func (a schedulerAdapter) Schedule(ctx context.Context, at time.Time, ref match.CheckRef) error {
	return a.s.Schedule(ctx, at, ref.RequesterTelegramID, ref.HelperID)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool, cfg.MigrationsDir, logger); err != nil {
		logger.Fatal("migrations", zap.Error(err))
	}

	dialogs, err := dialog.NewRedis(cfg.Redis, cfg.DialogTTL)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer dialogs.Close()

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		logger.Fatal("bot init", zap.Error(err))
	}
	botAPI.Debug = false

	clk := clock.Offset{Hours: cfg.TimezoneOffset}
	scheduler := sched.New(repo.NewChecks(pool), clk, cfg.SchedPollEvery, logger)
	notifier := bot.NewNotifier(botAPI, cfg.ModeratorChatID, logger)
	svc := match.NewService(repo.NewRunner(pool), schedulerAdapter{scheduler}, notifier, cfg.ConfirmDelay, logger)
	h := bot.NewHandler(botAPI, svc, notifier, dialogs, logger)

	// Graceful shutdown
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	// Отложенные проверки: воркер переживает рестарт за счёт стора.
	go scheduler.Run(ctx, func(ctx context.Context, c sched.Check) error {
		return svc.RunDeferredCheck(ctx, match.CheckRef{
			RequesterTelegramID: c.RequesterTelegramID,
			HelperID:            c.HelperID,
		})
	})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := botAPI.GetUpdatesChan(u)

	logger.Info("bot started", zap.String("username", botAPI.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown")
			return
		case upd := <-updates:
			h.HandleUpdate(ctx, upd)
		}
	}
}
