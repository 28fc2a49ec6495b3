package main

import (
	"log"

	"github.com/joho/godotenv"

	corecmd "github.com/greetly/greetly/core/cmd"
	"github.com/greetly/greetly/internal/app"
)

func main() {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return app.Load(path)
		},
		Bootstrap: app.Bootstrap,
	})
	if err != nil {
		log.Fatalf("greetly: %v", err)
	}
}
