package main

import (
	"github.com/joho/godotenv"

	"github.com/mutgate-project/mutgate/internal/cli"
)

func main() {
	// MUTGATE_* config overrides may come from a local .env file.
	_ = godotenv.Load()
	cli.Execute()
}
