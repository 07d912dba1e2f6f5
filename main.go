package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mdobak/go-xerrors"

	"rep-detection/utils"
)

func main() {
	if err := utils.CreateFolder("data"); err != nil {
		logger := utils.GetLogger()
		err := xerrors.New(err)
		ctx := context.Background()
		logger.ErrorContext(ctx, "Failed to create data dir.", slog.Any("error", err))
	}

	if len(os.Args) < 2 {
		fmt.Println("Expected 'serve' subcommand")
		os.Exit(1)
	}
	_ = godotenv.Load()

	switch os.Args[1] {
	case "serve":
		serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
		protocol := serveCmd.String("proto", "http", "Protocol to use (http or https)")
		port := serveCmd.String("p", "5000", "Port to use")
		serveCmd.Parse(os.Args[2:])
		serve(*protocol, *port)
	default:
		fmt.Println("Expected 'serve' subcommand")
		os.Exit(1)
	}
}
