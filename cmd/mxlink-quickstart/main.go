package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/alexjbarnes/mxlink/accountconfig"
	"github.com/alexjbarnes/mxlink/blobcodec"
	"github.com/alexjbarnes/mxlink/internal/config"
	"github.com/alexjbarnes/mxlink/internal/logging"
	"github.com/alexjbarnes/mxlink/internal/server"
	"github.com/alexjbarnes/mxlink/mxlink"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

var Version = "dev"

const (
	profileEventType = "org.mxlink.quickstart.profile"
	roomEventType    = "org.mxlink.quickstart.room"
)

// profile is stored once per account.
type profile struct {
	FirstStart time.Time `json:"first_start"`
	Starts     int       `json:"starts"`
}

// roomSettings is stored per room and recreated on every join.
type roomSettings struct {
	JoinedAt  time.Time `json:"joined_at"`
	Reactions int       `json:"reactions"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)
	logger.Info("mxlink quickstart starting",
		slog.String("version", Version),
		slog.String("homeserver", cfg.Homeserver),
		slog.String("invite_policy", cfg.InvitePolicy),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	link, err := mxlink.Init(ctx, cfg.InitConfig(logger, reg, nil))
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	defer link.Close()

	codec := blobcodec.New(cfg.SessionEncryptionKey())

	if err := recordStart(ctx, link, codec, logger); err != nil {
		return err
	}

	rooms := accountconfig.NewRoomManager(link.Client(), codec,
		accountconfig.PayloadCarrier{Type: roomEventType},
		func(context.Context, string) (roomSettings, error) {
			return roomSettings{JoinedAt: time.Now().UTC()}, nil
		},
		cfg.RoomCacheSize,
		accountconfig.WithLogger(logger),
	)

	var policy atomic.Value
	policy.Store(cfg.InvitePolicy)

	registerHandlers(link, rooms, &policy, logger)

	health := &server.Health{}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		health.SetReady(link.UserID())
		defer health.SetNotReady()

		err := link.Start(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	})

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return runHTTP(gctx, cfg.MetricsAddr, server.NewMux(server.MuxConfig{
				Gatherer: reg,
				Health:   health,
				Logger:   logger,
			}), logger)
		})
	}

	if path := config.FilePath(); path != "" {
		g.Go(func() error {
			err := config.Watch(gctx, path,
				func(c *config.Config) {
					if old := policy.Swap(c.InvitePolicy); old != c.InvitePolicy {
						logger.Info("invite policy changed", slog.String("invite_policy", c.InvitePolicy))
					}
				},
				func(err error) {
					logger.Warn("config reload failed", slog.String("error", err.Error()))
				},
			)
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return err
		})
	}

	return g.Wait()
}

// recordStart bumps the account-wide start counter.
func recordStart(ctx context.Context, link *mxlink.Link, codec *blobcodec.Codec, logger *slog.Logger) error {
	profiles := accountconfig.NewGlobalManager(link.Client(), codec,
		accountconfig.PayloadCarrier{Type: profileEventType},
		func(context.Context) (profile, error) {
			return profile{FirstStart: time.Now().UTC()}, nil
		},
		accountconfig.WithLogger(logger),
	)

	p, err := profiles.GetOrCreate(ctx)
	if err != nil {
		return fmt.Errorf("loading profile: %w", err)
	}

	p.Starts++

	if err := profiles.Persist(ctx, p); err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}

	logger.Info("profile loaded",
		slog.Int("starts", p.Starts),
		slog.Time("first_start", p.FirstStart),
	)

	return nil
}

func registerHandlers(link *mxlink.Link, rooms *accountconfig.RoomManager[roomSettings], policy *atomic.Value, logger *slog.Logger) {
	link.OnInvitation(func(_ context.Context, inv mxlink.Invitation) (mxlink.InvitationDecision, error) {
		logger.Info("invited",
			slog.String("room_id", inv.RoomID),
			slog.String("inviter", inv.Inviter),
		)

		switch policy.Load() {
		case config.InvitePolicyJoin:
			return mxlink.InvitationJoin, nil
		case config.InvitePolicyReject:
			return mxlink.InvitationReject, nil
		default:
			return mxlink.InvitationIgnore, nil
		}
	})

	link.OnJoined(func(ctx context.Context, evt mxlink.Event) error {
		typing := link.StartTyping(ctx, evt.RoomID)
		defer typing.Release()

		settings, err := rooms.CreateNew(ctx, evt.RoomID)
		if err != nil {
			return fmt.Errorf("resetting room settings: %w", err)
		}

		logger.Info("joined room",
			slog.String("room_id", evt.RoomID),
			slog.Time("joined_at", settings.JoinedAt),
		)

		return nil
	})

	link.OnBeingLastMember(func(ctx context.Context, evt mxlink.Event) error {
		logger.Info("alone in room, leaving", slog.String("room_id", evt.RoomID))
		return link.Client().LeaveRoom(ctx, evt.RoomID)
	})

	link.OnActionableReaction(func(ctx context.Context, evt mxlink.Event, r mxlink.Reaction) error {
		settings, err := rooms.GetOrCreate(ctx, evt.RoomID)
		if err != nil {
			return err
		}

		settings.Reactions++

		if err := rooms.Persist(ctx, evt.RoomID, settings); err != nil {
			return err
		}

		logger.Info("reaction",
			slog.String("room_id", evt.RoomID),
			slog.String("sender", evt.Sender()),
			slog.String("target", r.RelatesTo),
			slog.String("key", r.Key),
			slog.Int("total", settings.Reactions),
		)

		return nil
	})
}

// runHTTP serves mux on addr until ctx is done.
func runHTTP(ctx context.Context, addr string, mux http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.Info("metrics server listening", slog.String("addr", addr))

	// Shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server error: %w", err)
	}

	return nil
}
