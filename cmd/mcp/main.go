package main

import (
	"context"
	"flag"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urmzd/centrald/pkg/db"
	centraldmcp "github.com/urmzd/centrald/pkg/mcp"
)

func main() {
	// Logging goes to stderr; stdout is the MCP transport
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	dbPath := flag.String("db", "", "Path to database file (default: ~/.config/centrald/centrald.db)")
	apiAddr := flag.String("api", "", "centrald HTTP API address (default: from the active profile)")
	protoAddr := flag.String("addr", "", "centrald protocol address (default: from the active profile)")
	login := flag.String("login", os.Getenv("CENTRALD_LOGIN"), "Client login for power commands")
	flag.Parse()

	ctx := context.Background()

	database, err := db.Open(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}()

	log.Info().Str("path", database.Path()).Msg("Database opened")

	if err := database.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	cfg, err := database.ActiveConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if *apiAddr == "" {
		*apiAddr = dialable(cfg.APIAddress())
	}
	if *protoAddr == "" {
		*protoAddr = dialable(cfg.ProtocolAddress())
	}

	// Power commands need client credentials; without them the tool is hidden
	var power centraldmcp.PowerSwitch
	if *login != "" {
		power = &centraldmcp.PeerSwitch{
			Addr:     *protoAddr,
			Login:    *login,
			Password: os.Getenv("CENTRALD_PASSWORD"),
		}
	}

	mcpServer := centraldmcp.NewServer(centraldmcp.NewAPIClient(*apiAddr), database.Messages(), power)

	log.Info().
		Str("api", *apiAddr).
		Str("addr", *protoAddr).
		Bool("power", power != nil).
		Msg("Starting MCP server on stdio")

	if err := mcpServer.ServeStdio(); err != nil {
		log.Fatal().Err(err).Msg("MCP server failed")
	}
}
