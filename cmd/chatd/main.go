package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/fx"

	"github.com/avelar/chatd/internal/config"
	"github.com/avelar/chatd/internal/daemon"
)

func main() {
	configFlag := flag.String("config", "", "path to config.toml (default <data_dir>/config.toml)")
	flag.Parse()

	path := *configFlag
	if path == "" {
		path = filepath.Join(config.BaseDir(), "config.toml")
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config %s: %v\n", path, err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(cfg),
	)

	app.Run()
}
