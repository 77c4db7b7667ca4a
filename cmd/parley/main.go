package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"parley/cmd/internal/app"
)

func main() {
	// Best effort: a missing .env is fine outside development.
	_ = godotenv.Load()

	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "parley: %v\n", err)
		os.Exit(1)
	}
}
