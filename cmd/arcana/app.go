package main

import (
	"github.com/rs/zerolog"

	"github.com/chris/arcana/config"
	"github.com/chris/arcana/internal/db"
	"github.com/chris/arcana/internal/llm"
	"github.com/chris/arcana/internal/logger"
	"github.com/chris/arcana/internal/oracle"
	"github.com/chris/arcana/internal/practice"
	"github.com/chris/arcana/internal/prompt"
	"github.com/chris/arcana/internal/tarot"
)

// app is everything a command needs, built from config.
type app struct {
	cfg     *config.Config
	db      *db.DB
	oracle  *oracle.Oracle
	svc     *practice.Service
	console *practice.Console
	log     zerolog.Logger
}

func newApp(component string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(component)

	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	client, err := llm.NewClient(llm.ProviderConfig{
		Provider:  cfg.LLMProvider,
		APIKey:    cfg.APIKey(),
		AuthToken: cfg.AnthropicToken,
		Model:     cfg.LLMModel,
		BaseURL:   cfg.OllamaBaseURL,
	})
	if err != nil {
		database.Close()
		return nil, err
	}

	local := tarot.Standard()
	var (
		deck   tarot.Source         = local
		lookup prompt.MeaningLookup = local
	)
	if cfg.RemoteDeck {
		remote := tarot.NewRemoteDeck(cfg.RemoteDeckURL, local, logger.New("tarot"))
		deck, lookup = remote, remote
	}

	o := oracle.New(client, lookup, logger.New("oracle"))
	o.Timeout = cfg.OracleTimeout
	o.MaxTokens = cfg.OracleMaxTokens
	o.PromptBudget = cfg.PromptBudget

	svc := practice.New(database, o, deck, logger.New("practice"))
	svc.DefaultZone = cfg.DefaultTimezone

	return &app{
		cfg:     cfg,
		db:      database,
		oracle:  o,
		svc:     svc,
		console: practice.NewConsole(svc),
		log:     log,
	}, nil
}

func (a *app) user() string {
	if userFlag != "" {
		return userFlag
	}
	return a.cfg.UserID
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn().Err(err).Msg("closing database")
	}
}
