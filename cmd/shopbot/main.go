package main

import (
	"errors"
	"log"

	"github.com/CaDiBob/simple-telegram-store/core/cmd"
	"github.com/CaDiBob/simple-telegram-store/internal/app"

	"github.com/joho/godotenv"
)

var errUnexpectedConfig = errors.New("shopbot: unexpected config type")

func main() {
	// Local development convenience; production relies on real env vars.
	_ = godotenv.Load()

	err := cmd.Run(cmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (cmd.ConfigCarrier, error) {
			return app.LoadConfig(path)
		},
		Bootstrap: func(carrier cmd.ConfigCarrier) (cmd.TelegramApp, error) {
			cfg, ok := carrier.(*app.Config)
			if !ok {
				return nil, errUnexpectedConfig
			}
			return app.New(cfg)
		},
	})
	if err != nil {
		log.Fatalf("shopbot: %v", err)
	}
}
