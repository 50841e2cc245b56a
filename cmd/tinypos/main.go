package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/talkincode/tinypos/config"
	"github.com/talkincode/tinypos/internal/app"
	"github.com/talkincode/tinypos/internal/posapi"
	"github.com/talkincode/tinypos/internal/webserver"
)

var (
	h        = flag.Bool("h", false, "help usage")
	showVer  = flag.Bool("v", false, "show version")
	conffile = flag.String("c", "", "config file")
	initdb   = flag.Bool("initdb", false, "drop and recreate the database, then exit")
	initcfg  = flag.Bool("initcfg", false, "write a default config file, then exit")
)

var (
	BuildVersion string
	ReleaseDate  string
)

func printVersion() {
	fmt.Printf("tinypos version %s (%s)\n", BuildVersion, ReleaseDate)
}

func main() {
	flag.Parse()

	if *h {
		flag.Usage()
		return
	}
	if *showVer {
		printVersion()
		return
	}

	appConfig := config.LoadConfig(*conffile)
	if err := appConfig.InitDirs(); err != nil {
		fmt.Fprintf(os.Stderr, "init dirs: %v\n", err)
		os.Exit(1)
	}

	if *initcfg {
		if err := writeDefaultConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "write config: %v\n", err)
			os.Exit(1)
		}
		return
	}

	application := app.NewApplication(appConfig)
	application.Init(appConfig)
	defer application.Release()

	if *initdb {
		application.InitDb()
		zap.S().Info("database initialized")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	webserver.Init(application)
	posapi.Init()

	go application.BootOffline(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- webserver.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		zap.S().Errorf("web server stopped: %v", err)
	case sig := <-sigCh:
		zap.S().Infof("received signal %s, shutting down", sig)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := webserver.Shutdown(shutdownCtx); err != nil {
			zap.S().Errorf("shutdown error: %v", err)
		}
	}
}

func writeDefaultConfig() error {
	path := "/etc/tinypos.yml"
	if v := os.Getenv("TINYPOS_CONFIG"); v != "" {
		path = v
	}
	data, err := config.DefaultAppConfigYaml()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
