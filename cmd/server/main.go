package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/cs-chat-backend/internal/config"
	"github.com/DoyleJ11/cs-chat-backend/internal/httpapi"
	"github.com/DoyleJ11/cs-chat-backend/internal/hub"
	"github.com/DoyleJ11/cs-chat-backend/internal/room"
	"github.com/DoyleJ11/cs-chat-backend/internal/store"
	"github.com/DoyleJ11/cs-chat-backend/internal/ws"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := cfg.Logger()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.NewHub(ctx, room.Options{
		CSTimeout: cfg.CSTimeout,
		Messages:  st,
		Log:       log,
	})
	if err := seedRooms(ctx, st, cfg.DefaultRooms, log); err != nil {
		return err
	}
	n, err := hub.LoadRooms(ctx, h, st)
	if err != nil {
		return err
	}
	log.Info("rooms loaded", zap.Int("count", n))

	// Build the router *with* the hub injected
	handler := httpapi.SetupRoutes(httpapi.Deps{
		Hub:          h,
		Store:        st,
		Log:          log,
		HistoryLimit: cfg.HistoryLimit,
		WS: ws.Options{
			Log:     log,
			BufSize: cfg.ClientBuffer,
			Origins: cfg.Origins,
		},
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Rooms stop with ctx; only HTTP needs draining
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(cfg *config.AppConfig, log *zap.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, history is kept in memory only")
		return store.NewMemoryStore(), nil
	}
	return store.OpenPostgres(cfg.DatabaseURL, log)
}

// seedRooms makes sure the configured default rooms exist. Their id is
// derived from the name by roomID; a name whose id is already taken by an
// earlier entry is skipped.
func seedRooms(ctx context.Context, st store.Store, names []string, log *zap.Logger) error {
	seen := make(map[string]string, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		id := roomID(name)
		if prev, ok := seen[id]; ok {
			log.Warn("default room skipped, id already in use",
				zap.String("room", id), zap.String("name", name), zap.String("taken_by", prev))
			continue
		}
		seen[id] = name

		r := store.Room{ID: id, Name: name, CreatedAt: time.Now().UTC()}
		err := st.CreateRoom(ctx, r)
		if errors.Is(err, store.ErrRoomExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed room %s: %w", name, err)
		}
		log.Info("default room created", zap.String("room", id), zap.String("name", name))
	}
	return nil
}
