package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/dmitrijs2005/applock/internal/flagx"
	"github.com/dmitrijs2005/applock/internal/server"
	"github.com/dmitrijs2005/applock/internal/server/config"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer app.Close()

	if principal := mintFlag(os.Args[1:]); principal != "" {
		pair, err := app.Mint(ctx, principal)
		if err != nil {
			log.Fatalf("mint: %v", err)
		}
		fmt.Printf("APPLOCK_ACCESS_TOKEN=%s\nAPPLOCK_REFRESH_TOKEN=%s\n", pair.AccessToken, pair.RefreshToken)
		return
	}

	app.Run(ctx)
}

// mintFlag returns the principal given with -mint, if any.
func mintFlag(args []string) string {
	var principal string

	fs := flag.NewFlagSet("mint", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&principal, "mint", "", "issue a session for the principal and exit")
	_ = fs.Parse(flagx.FilterArgs(args, []string{"-mint"}))

	return principal
}
