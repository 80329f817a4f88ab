package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spacewar/game"
	"spacewar/server"
)

// SpaceWar 入口：启动 HTTP + WebSocket 服务，并初始化房间管理器
func main() {
	envFile := flag.String("env", ".env", "optional dotenv file")
	addr := flag.String("addr", "", "server listen address, e.g. :8080 (overrides SPACEWAR_ADDR)")
	logFile := flag.String("log", "", "log file path (overrides SPACEWAR_LOG_FILE)")
	verbose := flag.Bool("v", false, "also log to stderr")
	flag.Parse()

	cfg, err := server.LoadConfig(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}
	if *verbose {
		cfg.Log.Stderr = true
	}

	// 使用第三方 zap 日志库写入日志文件（带滚动）
	if err := server.InitLogger(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer server.SyncLogger()
	game.SetLogger(server.Log.Named("game"))

	rm := server.NewRoomManager(cfg.Room)
	// 先预创建一个默认房间，便于快速试跑
	_ = rm.GetOrCreateRoom(cfg.DefaultRoom)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.NewRouter(rm, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		server.Log.Infof("SpaceWar listening on %s; open http://localhost%v/", cfg.Addr, cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			server.Log.Fatalf("listen: %v", err)
		}
	}()

	// 优雅退出（Ctrl+C）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	server.Log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		server.Log.Warnw("http shutdown", "err", err)
	}
	rm.Shutdown()
}
