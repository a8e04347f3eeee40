package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"sheet-rag/internal/config"
	"sheet-rag/internal/embedding"
	"sheet-rag/internal/helper"
	"sheet-rag/internal/llmservice"
	"sheet-rag/internal/session"
	"sheet-rag/internal/tui"
	"sheet-rag/internal/web"
)

const (
	configFilePath = "./configs/config.yaml"
)

func main() {
	configPath := flag.String("config", configFilePath, "Path to the config file")
	filePath := flag.String("file", "", "Path to the spreadsheet to ingest")
	query := flag.String("query", "", "Question to answer from the spreadsheet given with -file")
	serve := flag.Bool("serve", false, "Serve the web UI")
	interactive := flag.Bool("tui", false, "Start the terminal UI")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		// logger is not configured yet
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	setupLogger(cfg.App.LogLevel)
	log.Debug().Interface("config", redacted(cfg)).Msg("Loaded config")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := newDependencies(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing models")
	}

	switch {
	case *serve:
		serveWeb(ctx, cfg, deps)
	case *interactive:
		runTUI(ctx, deps, *filePath)
	case *filePath != "" && *query != "":
		answerOnce(ctx, deps, *filePath, *query)
	default:
		log.Fatal().Msg("Please provide -serve, -tui, or a document file using the -file flag together with a query using the -query flag")
	}
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
}

// redacted hides API keys from debug output.
func redacted(cfg *config.Config) config.Config {
	c := *cfg
	if c.EmbedLLM.Key != "" {
		c.EmbedLLM.Key = "***"
	}
	if c.InferenceLLM.Key != "" {
		c.InferenceLLM.Key = "***"
	}
	return c
}

func newDependencies(cfg *config.Config) (session.Dependencies, error) {
	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		return session.Dependencies{}, err
	}
	llm, err := llmservice.NewLLM(&cfg.InferenceLLM)
	if err != nil {
		return session.Dependencies{}, err
	}
	return session.Dependencies{Config: cfg, Embedder: embedder, LLM: llm}, nil
}

func serveWeb(ctx context.Context, cfg *config.Config, deps session.Dependencies) {
	if err := helper.CreateFolder(cfg.App.TempDir); err != nil {
		log.Fatal().Err(err).Msg("Error creating folder")
	}

	manager := session.NewManager(deps, time.Duration(cfg.App.SessionIdleMinutes)*time.Minute)
	defer manager.Close()

	if err := web.NewServer(cfg, manager).ListenAndServe(ctx); err != nil {
		log.Error().Err(err).Msg("Web server stopped")
	}
}

func runTUI(ctx context.Context, deps session.Dependencies, filePath string) {
	sess := newLocalSession(deps)
	defer sess.Close()

	if filePath != "" {
		if err := sess.Ingest(ctx, filePath); err != nil {
			log.Error().Msg(session.IngestMessage(err))
		}
	}
	if err := tui.Run(ctx, sess); err != nil {
		log.Error().Err(err).Msg("Terminal UI stopped")
	}
}

func answerOnce(ctx context.Context, deps session.Dependencies, filePath, query string) {
	sess := newLocalSession(deps)
	defer sess.Close()

	if err := sess.Ingest(ctx, filePath); err != nil {
		log.Error().Msg(session.IngestMessage(err))
		return
	}

	response, err := sess.Query(ctx, query)
	if err != nil {
		log.Error().Err(err).Msg("Error during querying")
		return
	}

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", query)

	log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", response.Source)

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", response.Content)
}

func newLocalSession(deps session.Dependencies) *session.Session {
	id, err := helper.GenerateUUID()
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating session")
	}
	return session.New(id, deps)
}
