package main

import (
	// Load .env before anything reads the environment; the SMTP password
	// arrives this way rather than through the config file.
	_ "github.com/joho/godotenv/autoload"

	"github.com/coffer-fs/coffer/internal/cli"
	"github.com/coffer-fs/coffer/internal/util"
)

func main() {
	if err := cli.Execute(); err != nil {
		util.HandleError(err, "")
	}
}
