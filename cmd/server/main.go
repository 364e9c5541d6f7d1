// Package main is the entry point for the w4on2 API server
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/james-see/w4on2/pkg/api"
)

func main() {
	port := flag.Int("port", 8080, "Server port")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	slog.Info("starting w4on2 API server", "port", *port)
	slog.Info("swagger docs available", "url", fmt.Sprintf("http://localhost:%d/swagger/index.html", *port))

	if err := api.StartServer(*port); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
