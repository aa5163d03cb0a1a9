package main

import (
    "context"
    "log"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/soundclash/soundclash-server/internal/battle"
    appcfg "github.com/soundclash/soundclash-server/internal/config"
    "github.com/soundclash/soundclash-server/internal/dispatch"
    "github.com/soundclash/soundclash-server/internal/gatewayfast"
    "github.com/soundclash/soundclash-server/internal/notify"
    "github.com/soundclash/soundclash-server/internal/obslog"
    "github.com/soundclash/soundclash-server/internal/player"
    "github.com/soundclash/soundclash-server/internal/queue"
    "github.com/soundclash/soundclash-server/internal/soundcat"
    "github.com/soundclash/soundclash-server/pkg/clashdto"
)

func main() {
    cfg, err := appcfg.Load()
    if err != nil {
        log.Fatalf("config error: %v", err)
    }
    if err := obslog.InitFromEnv(); err != nil {
        log.Fatalf("log init error: %v", err)
    }

    opts, err := redis.ParseURL(cfg.RedisURL)
    if err != nil {
        log.Fatalf("redis url error: %v", err)
    }
    rdb := redis.NewClient(opts)
    if err := rdb.Ping(context.Background()).Err(); err != nil {
        log.Fatalf("redis ping error: %v", err)
    }

    headers := func() map[string]string {
        h := map[string]string{}
        if cfg.GatewayAPIKey != "" {
            h["X-Api-Key"] = cfg.GatewayAPIKey
        }
        return h
    }
    client := gatewayfast.NewClient(cfg.GatewayBaseURL, gatewayfast.WithHeaderProvider(headers))
    ws := gatewayfast.NewWebSocket(cfg.GatewayWSURL, 5, time.Second)
    ws.SetHeaderProvider(headers)
    ws.OnStateChange(func(state gatewayfast.WebSocketState) {
        obslog.L().Info("gateway_ws_state", zap.String("state", string(state)))
    })
    egress := gatewayfast.NewEgress(cfg.EgressMode, client, ws, obslog.L())
    notifier := notify.NewGatewayNotifier(egress)

    sounds, err := soundcat.New(cfg.SoundOverrideDir)
    if err != nil {
        log.Fatalf("sound catalog error: %v", err)
    }

    battleOpts := []battle.Option{battle.WithNotifier(notifier)}
    if cfg.EnforceDeadlines {
        battleOpts = append(battleOpts, battle.WithDeadlinePolicy(battle.StrictDeadlines{}))
    }
    battles, err := battle.NewManager(rdb, battleOpts...)
    if err != nil {
        log.Fatalf("battle manager init error: %v", err)
    }

    players := player.NewStore(rdb)
    battles.AttachRewarder(players)

    var repo *battle.Repository
    if cfg.DatabaseURL != "" {
        repo, err = battle.NewRepository(cfg.DatabaseURL)
        if err != nil {
            log.Fatalf("battle repo init error: %v", err)
        }
        battles.AttachRepository(repo)
    }

    mq, err := queue.NewRedisQueue(rdb)
    if err != nil {
        log.Fatalf("match queue init error: %v", err)
    }

    d := dispatch.New(mq, battles, players, sounds)
    ws.OnAction(func(msg *clashdto.ActionMessage) {
        // keep the WS read loop free
        go func() {
            ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
            defer cancel()
            res := d.Handle(ctx, msg)
            if res == nil {
                return
            }
            if err := egress.SendResult(ctx, *res); err != nil {
                obslog.L().Warn("ack_send_error", zap.String("action", res.Action), zap.Error(err))
            }
        }()
    })

    cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    if err := ws.Connect(cctx); err != nil {
        cancel()
        log.Fatalf("gateway ws connect error: %v", err)
    }
    cancel()
    obslog.L().Info("clash_server_started", zap.String("egress_mode", cfg.EgressMode), zap.Bool("enforce_deadlines", cfg.EnforceDeadlines))

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
    <-sigCh

    _ = ws.Close(context.Background())
    _ = rdb.Close()
    if repo != nil {
        _ = repo.Close()
    }
}
