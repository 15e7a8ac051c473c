package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"

	"pdf-chat/internal/chromemdb"
	"pdf-chat/internal/config"
	"pdf-chat/internal/db"
	"pdf-chat/internal/embedding"
	"pdf-chat/internal/helper"
	"pdf-chat/internal/llmservice"
	"pdf-chat/internal/models"
	"pdf-chat/internal/parser"
	"pdf-chat/internal/rag"
	"pdf-chat/internal/session"
)

const configFilePath = "./configs/config.yaml"

type options struct {
	configPath string
	filePath   string
	query      string
	exportPath string
	asJSON     bool
	debug      bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", configFilePath, "Path to the config file")
	flag.StringVar(&opts.filePath, "file", "", "Path to the document to chat with")
	flag.StringVar(&opts.query, "query", "", "Answer a single question and exit")
	flag.StringVar(&opts.exportPath, "export", "", "Export the built index to this file (chromem backend only)")
	flag.BoolVar(&opts.asJSON, "json", false, "Print the answer as JSON")
	flag.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, opts)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("Exiting")
		os.Exit(1)
	}
}

// run returns instead of exiting so the index and database are always released
func run(ctx context.Context, opts options) error {
	if opts.query != "" && opts.filePath == "" {
		return errors.New("please provide a document using the -file flag together with -query")
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	setupLogger(cfg.Log.Level, opts.debug)
	log.Debug().Interface("config", cfg.RAG).Msg("Loaded config")

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		return fmt.Errorf("invalid config: %d errors", len(errs))
	}

	sess, cleanup, err := newSession(ctx, cfg)
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}
	defer cleanup()
	defer func() {
		if err := sess.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Error releasing index")
		}
	}()

	if opts.filePath != "" {
		if err := processDocument(ctx, sess, opts.filePath); err != nil {
			if opts.query != "" {
				return fmt.Errorf("error processing document: %w", err)
			}
			color.Red("Error processing document: %v\n", err)
		}
		if opts.exportPath != "" {
			exportIndex(sess, opts.exportPath, cfg.RAG.EncryptionKey)
		}
	}

	if opts.query != "" {
		res, err := sess.Ask(ctx, opts.query)
		if err != nil {
			return fmt.Errorf("error answering question: %w", err)
		}
		if opts.asJSON {
			helper.PrettyPrint(res)
			return nil
		}
		printAnswer(res)
		return nil
	}

	chat(ctx, sess)
	return nil
}

func setupLogger(level string, debug bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if debug {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
}

// newSession wires ingestion, the configured index backend and the chat model
func newSession(ctx context.Context, cfg *config.Config) (*session.Session, func(), error) {
	ingestor, err := parser.NewIngestor(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return nil, nil, err
	}

	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		return nil, nil, err
	}

	generator, err := llmservice.NewClient(&cfg.LLM)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {}
	var builder session.IndexBuilder
	switch cfg.RAG.IndexBackend {
	case config.BackendPgvector:
		sqldb, err := db.ConnectDB(&cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("error connecting to database: %w", err)
		}
		bunDB := db.NewDB(sqldb, cfg.Database.Debug)
		if err := db.InitDB(ctx, bunDB); err != nil {
			bunDB.Close()
			return nil, nil, err
		}
		cleanup = func() { bunDB.Close() }
		builder = db.NewBuilder(bunDB, embedder)
	default:
		builder = chromemdb.NewBuilder(embedder)
	}

	sess := session.New(ingestor, builder, generator,
		rag.WithTopK(cfg.RAG.TopK),
		rag.WithHistoryWindow(cfg.RAG.HistoryWindow),
	)
	return sess, cleanup, nil
}

func processDocument(ctx context.Context, sess *session.Session, filePath string) error {
	var chunks int
	err := withSpinner("Processing "+filePath+"...", func() error {
		var err error
		chunks, err = sess.Process(ctx, filePath)
		return err
	})
	if err != nil {
		if errors.Is(err, models.ErrEmptyCorpus) {
			return fmt.Errorf("no text could be extracted from %s", filePath)
		}
		return err
	}
	color.Green("✓ Processed %s into %d chunks\n", sess.Document(), chunks)
	return nil
}

func exportIndex(sess *session.Session, path, encryptionKey string) {
	m, ok := sess.Store().(*chromemdb.VectorDBManager)
	if !ok {
		color.Yellow("Export is only available for the chromem backend\n")
		return
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := helper.CreateFolder(dir); err != nil {
			color.Red("Error creating %s: %v\n", dir, err)
			return
		}
	}
	if err := m.Export(path, encryptionKey); err != nil {
		color.Red("Error exporting index: %v\n", err)
		return
	}
	color.Green("✓ Exported index to %s\n", path)
}

func chat(ctx context.Context, sess *session.Session) {
	color.Cyan("\nChat with your document. Commands: 'open <file>', 'clear', 'history', 'exit'")
	if sess.Document() == "" {
		color.Yellow("No document loaded yet, use 'open <file>'\n")
	}

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()

	for ctx.Err() == nil {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch {
		case input == "":
			continue
		case strings.EqualFold(input, "exit"):
			return
		case strings.EqualFold(input, "clear"):
			sess.Clear()
			color.Yellow("Conversation cleared\n")
			continue
		case strings.EqualFold(input, "history"):
			printTranscript(sess.Transcript())
			continue
		case strings.HasPrefix(input, "open "):
			if err := processDocument(ctx, sess, strings.TrimSpace(strings.TrimPrefix(input, "open "))); err != nil {
				color.Red("Error processing document: %v\n", err)
			}
			continue
		}

		var res *models.AnswerResult
		err := withSpinner("Thinking...", func() error {
			var err error
			res, err = sess.Ask(ctx, input)
			return err
		})
		if err != nil {
			if errors.Is(err, session.ErrNotProcessed) {
				color.Yellow("Please open a document first\n")
				continue
			}
			color.Red("Error: %v\n", err)
			continue
		}
		printAnswer(res)
	}
}

func printAnswer(res *models.AnswerResult) {
	assistant := color.New(color.FgCyan).PrintfFunc()
	assistant("Assistant: %s\n", res.Answer)
	printSources(res.Sources)
}

func printSources(sources []models.Source) {
	if len(sources) == 0 {
		return
	}
	color.Blue("\nSources:")
	for _, s := range sources {
		fmt.Printf("  %s\n    %s...\n", color.New(color.Bold).Sprintf("Page %d:", s.Page), s.Text)
	}
}

func printTranscript(messages []session.Message) {
	if len(messages) == 0 {
		color.Yellow("No conversation yet\n")
		return
	}
	for _, m := range messages {
		if m.Role == models.RoleHuman {
			color.Green("You: %s\n", m.Content)
			continue
		}
		color.Cyan("Assistant: %s\n", m.Content)
	}
}

// withSpinner shows a spinner on stderr until fn returns
func withSpinner(description string, fn func() error) error {
	spinner := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = spinner.Add(1)
			}
		}
	}()

	err := fn()
	close(done)
	_ = spinner.Finish()
	return err
}
