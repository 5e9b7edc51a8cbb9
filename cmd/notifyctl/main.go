// Command notifyctl is the operator CLI of the notification engine.
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/go-notify-engine/internal/config"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}
	if err := rootCommand(config.Load(), os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
