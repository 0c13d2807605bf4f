package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/reelscout/reelscout/internal/api"
	"github.com/reelscout/reelscout/internal/config"
	"github.com/reelscout/reelscout/internal/engine"
	"github.com/reelscout/reelscout/internal/indexer/types"
	"github.com/reelscout/reelscout/internal/logger"
)

const usage = `usage: reelscout [-config file] [-env file] <command> [flags]

commands:
  serve             run the HTTP API
  scrape            run one scrape and print the ranked results as JSON
  refresh-updated   refresh cached metadata changed upstream since -since
`

func main() {
	configPath := flag.String("config", "", "Path to config file")
	envFile := flag.String("env", ".env", "Optional dotenv file loaded before the config")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Paths.Logs,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
		Console:    os.Stderr,
	})
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(cfg, log.Logger)
	if err != nil {
		log.Error().Err(err).Msg("failed to start engine")
		log.Close()
		os.Exit(1)
	}
	defer eng.Close()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "serve":
		err = serve(ctx, eng, cfg, log)
	case "scrape":
		err = scrape(ctx, eng, args)
	case "refresh-updated":
		err = refreshUpdated(ctx, eng, args, log)
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		log.Error().Err(err).Str("command", cmd).Msg("command failed")
		eng.Close()
		log.Close()
		os.Exit(1)
	}
}

func serve(ctx context.Context, eng *engine.Engine, cfg *config.Config, log *logger.Logger) error {
	server := api.NewServer(eng, cfg.Server, log.FilePath(), log.Logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Server.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info().Msg("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func scrape(ctx context.Context, eng *engine.Engine, args []string) error {
	set := flag.NewFlagSet("scrape", flag.ContinueOnError)
	var q types.Query
	var contentType string
	set.StringVar(&q.IMDbID, "imdb", "", "IMDb id")
	set.StringVar(&q.Title, "title", "", "Title, looked up from metadata when empty")
	set.IntVar(&q.Year, "year", 0, "Release year")
	set.StringVar(&contentType, "type", "movie", "movie or episode")
	set.IntVar(&q.Season, "season", 0, "Season number")
	set.IntVar(&q.Episode, "episode", 0, "Episode number")
	set.BoolVar(&q.Multi, "multi", false, "Accept season packs")
	set.StringVar(&q.TranslatedTitle, "translated-title", "", "Language-specific title")
	set.StringVar(&q.Version, "version", config.DefaultVersion, "Version profile")
	limit := set.Int("limit", 0, "Print at most this many results (0 = all)")
	if err := set.Parse(args); err != nil {
		return err
	}
	q.ContentType = types.ContentType(strings.ToLower(contentType))

	resp, err := eng.Scrape(ctx, q)
	if err != nil {
		return err
	}
	if *limit > 0 && len(resp.Results) > *limit {
		resp.Results = resp.Results[:*limit]
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func refreshUpdated(ctx context.Context, eng *engine.Engine, args []string, log *logger.Logger) error {
	set := flag.NewFlagSet("refresh-updated", flag.ContinueOnError)
	since := set.Duration("since", 24*time.Hour, "Look back this far for upstream updates")
	if err := set.Parse(args); err != nil {
		return err
	}

	n, err := eng.RefreshUpdated(ctx, time.Now().Add(-*since))
	if err != nil {
		return err
	}
	log.Info().Int("refreshed", n).Dur("since", *since).Msg("refresh complete")
	return nil
}
