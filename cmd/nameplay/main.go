package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/NamePlay/internal/api"
	"github.com/BTreeMap/NamePlay/internal/flow"
	"github.com/BTreeMap/NamePlay/internal/genai"
	"github.com/BTreeMap/NamePlay/internal/leaderboard"
	"github.com/BTreeMap/NamePlay/internal/lockfile"
	"github.com/BTreeMap/NamePlay/internal/nameapi"
	"github.com/BTreeMap/NamePlay/internal/namegen"
	"github.com/BTreeMap/NamePlay/internal/share"
	"github.com/BTreeMap/NamePlay/internal/store"
	"github.com/BTreeMap/NamePlay/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for NamePlay state data
	DefaultStateDir = "/var/lib/nameplay"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "nameplay.db"
	// DefaultLogLevel is used when neither -log-level nor NAMEPLAY_LOG_LEVEL is set
	DefaultLogLevel = "info"
)

// Subcommands
const (
	cmdServe   = "serve"
	cmdChat    = "chat"
	cmdRanking = "ranking"
)

func main() {
	initializeLogger(DefaultLogLevel)

	config := loadEnvironmentConfig()

	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}
	initializeLogger(*flags.logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flags); err != nil {
		slog.Error("NamePlay failed to run", "command", flags.command, "error", err)
		os.Exit(1)
	}
	slog.Debug("NamePlay exited successfully", "command", flags.command)
}

// Config holds environment configuration
type Config struct {
	APIURL         string
	APIAddr        string
	PageSize       int
	OpenAIKey      string
	OpenAIModel    string
	GenAIDebug     bool
	DatabaseURL    string
	StateDir       string
	FeedbackSQLite bool
	TwilioSID      string
	TwilioToken    string
	TwilioFrom     string
	TypingDelay    time.Duration
	SessionTTL     time.Duration
	LogLevel       string
}

// Flags holds command line flag values
type Flags struct {
	apiURL         *string
	apiAddr        *string
	pageSize       *int
	openaiKey      *string
	openaiModel    *string
	genaiDebug     *bool
	dbDSN          *string
	stateDir       *string
	feedbackSQLite *bool
	twilioSID      *string
	twilioToken    *string
	twilioFrom     *string
	typingDelay    *time.Duration
	sessionTTL     *time.Duration
	logLevel       *string

	command string
}

// initializeLogger installs a text handler at the given level.
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

// parseLogLevel maps debug/info/warn/error onto slog levels, defaulting to info.
func parseLogLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		APIURL:         os.Getenv("NAMEPLAY_API_URL"),
		APIAddr:        os.Getenv("API_ADDR"),
		PageSize:       util.ParseIntEnv("NAMEPLAY_PAGE_SIZE", leaderboard.DefaultPageSize),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    os.Getenv("OPENAI_MODEL"),
		GenAIDebug:     util.ParseBoolEnv("NAMEPLAY_GENAI_DEBUG", false),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StateDir:       os.Getenv("NAMEPLAY_STATE_DIR"),
		FeedbackSQLite: util.ParseBoolEnv("NAMEPLAY_FEEDBACK_SQLITE", false),
		TwilioSID:      os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:    os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:     os.Getenv("TWILIO_FROM_NUMBER"),
		TypingDelay:    util.ParseDurationEnv("NAMEPLAY_TYPING_DELAY", flow.DefaultDelays().Typing),
		SessionTTL:     util.ParseDurationEnv("NAMEPLAY_SESSION_TTL", api.DefaultSessionTTL),
		LogLevel:       os.Getenv("NAMEPLAY_LOG_LEVEL"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No NAMEPLAY_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.APIAddr == "" {
		config.APIAddr = api.DefaultAddr
	}
	if config.LogLevel == "" {
		config.LogLevel = DefaultLogLevel
	}

	slog.Debug("environment variables loaded",
		"NAMEPLAY_API_URL", config.APIURL,
		"API_ADDR", config.APIAddr,
		"NAMEPLAY_PAGE_SIZE", config.PageSize,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"NAMEPLAY_STATE_DIR", config.StateDir,
		"NAMEPLAY_FEEDBACK_SQLITE", config.FeedbackSQLite,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioSID != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults.
// The first positional argument selects the subcommand and defaults to serve.
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Flags, error) {
	flags := Flags{
		apiURL:         fs.String("api-url", config.APIURL, "base URL of the name service (overrides $NAMEPLAY_API_URL)"),
		apiAddr:        fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		pageSize:       fs.Int("page-size", config.PageSize, "leaderboard page size (overrides $NAMEPLAY_PAGE_SIZE)"),
		openaiKey:      fs.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel:    fs.String("openai-model", config.OpenAIModel, "OpenAI model (overrides $OPENAI_MODEL)"),
		genaiDebug:     fs.Bool("genai-debug", config.GenAIDebug, "write OpenAI calls to the state directory (overrides $NAMEPLAY_GENAI_DEBUG)"),
		dbDSN:          fs.String("db-dsn", config.DatabaseURL, "feedback database DSN (overrides $DATABASE_URL)"),
		stateDir:       fs.String("state-dir", config.StateDir, "state directory for NamePlay data (overrides $NAMEPLAY_STATE_DIR)"),
		feedbackSQLite: fs.Bool("feedback-sqlite", config.FeedbackSQLite, "keep feedback in SQLite under the state directory (overrides $NAMEPLAY_FEEDBACK_SQLITE)"),
		twilioSID:      fs.String("twilio-account-sid", config.TwilioSID, "Twilio account SID (overrides $TWILIO_ACCOUNT_SID)"),
		twilioToken:    fs.String("twilio-auth-token", config.TwilioToken, "Twilio auth token (overrides $TWILIO_AUTH_TOKEN)"),
		twilioFrom:     fs.String("twilio-from", config.TwilioFrom, "Twilio sender number (overrides $TWILIO_FROM_NUMBER)"),
		typingDelay:    fs.Duration("typing-delay", config.TypingDelay, "pause before each chat step (overrides $NAMEPLAY_TYPING_DELAY)"),
		sessionTTL:     fs.Duration("session-ttl", config.SessionTTL, "idle session lifetime (overrides $NAMEPLAY_SESSION_TTL)"),
		logLevel:       fs.String("log-level", config.LogLevel, "debug, info, warn or error (overrides $NAMEPLAY_LOG_LEVEL)"),
	}

	if err := fs.Parse(args); err != nil {
		return flags, err
	}

	flags.command = cmdServe
	if fs.NArg() > 0 {
		flags.command = fs.Arg(0)
	}
	switch flags.command {
	case cmdServe, cmdChat, cmdRanking:
	default:
		return flags, fmt.Errorf("unknown command %q, expected %s, %s or %s", flags.command, cmdServe, cmdChat, cmdRanking)
	}

	slog.Debug("flags parsed",
		"command", flags.command,
		"apiURL", *flags.apiURL,
		"apiAddr", *flags.apiAddr,
		"pageSize", *flags.pageSize,
		"openaiKeySet", *flags.openaiKey != "",
		"dbDSN_set", *flags.dbDSN != "",
		"stateDir", *flags.stateDir,
		"feedbackSQLite", *flags.feedbackSQLite,
		"typingDelay", *flags.typingDelay)

	return flags, nil
}

// run wires the modules and dispatches the subcommand.
func run(ctx context.Context, flags Flags) error {
	st, err := store.New(buildStoreOptions(flags)...)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	names, err := nameapi.NewClient(buildNameAPIOptions(flags)...)
	if err != nil {
		return fmt.Errorf("failed to create name service client: %w", err)
	}
	generator, err := buildGenerator(flags, names)
	if err != nil {
		return err
	}
	sharer := share.NewSharer(buildShareSender(flags), st)

	slog.Info("Bootstrapping NamePlay with configured modules", "command", flags.command, "name_service", names.BaseURL(), "share_enabled", sharer.Enabled())

	switch flags.command {
	case cmdChat:
		return runChat(ctx, os.Stdin, os.Stdout, generator, st, sharer, buildDelays(flags))
	case cmdRanking:
		return runRanking(ctx, os.Stdin, os.Stdout, names, *flags.pageSize)
	default:
		if dir, ok := sqliteStateDir(flags); ok {
			lock, err := lockfile.Acquire(dir)
			if err != nil {
				return err
			}
			defer lock.Release()
		}
		server := api.NewServer(generator, names, st, sharer, buildAPIOptions(flags)...)
		return server.Start(ctx)
	}
}

// sqliteStateDir returns the directory of a file-backed SQLite store, if one is configured.
func sqliteStateDir(flags Flags) (string, bool) {
	var o store.Opts
	for _, opt := range buildStoreOptions(flags) {
		opt(&o)
	}
	if o.Driver != "sqlite3" || o.DSN == "" || o.DSN == ":memory:" {
		return "", false
	}
	return filepath.Dir(o.DSN), true
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	switch {
	case *flags.dbDSN != "":
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql", "dsn_set", true)
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	case *flags.feedbackSQLite:
		path := filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("SQLite feedback requested, using state directory", "db_path", path)
		storeOpts = append(storeOpts, store.WithSQLiteDSN(path))
	default:
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildNameAPIOptions constructs name service client options
func buildNameAPIOptions(flags Flags) []nameapi.Option {
	var opts []nameapi.Option
	if *flags.apiURL != "" {
		opts = append(opts, nameapi.WithBaseURL(*flags.apiURL))
	}
	return opts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.openaiModel))
	}
	if *flags.genaiDebug {
		genaiOpts = append(genaiOpts, genai.WithDebugMode(true, *flags.stateDir))
	}
	return genaiOpts
}

// buildGenerator picks the name source. An explicit name service URL wins;
// otherwise an OpenAI key selects direct generation.
func buildGenerator(flags Flags, names *nameapi.Client) (*namegen.Aggregator, error) {
	if *flags.apiURL == "" && *flags.openaiKey != "" {
		client, err := genai.NewClient(buildGenAIOptions(flags)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create GenAI client: %w", err)
		}
		slog.Debug("Using OpenAI for name generation")
		return namegen.NewAggregator(client), nil
	}
	slog.Debug("Using name service for name generation", "base_url", names.BaseURL())
	return namegen.NewAggregator(names), nil
}

// buildShareOptions constructs Twilio configuration options
func buildShareOptions(flags Flags) []share.Option {
	var opts []share.Option
	if *flags.twilioSID != "" {
		opts = append(opts, share.WithAccountSID(*flags.twilioSID))
	}
	if *flags.twilioToken != "" {
		opts = append(opts, share.WithAuthToken(*flags.twilioToken))
	}
	if *flags.twilioFrom != "" {
		opts = append(opts, share.WithFromNumber(*flags.twilioFrom))
	}
	return opts
}

// buildShareSender returns the SMS sender, or nil when Twilio is not configured.
func buildShareSender(flags Flags) share.Sender {
	if *flags.twilioSID == "" && *flags.twilioToken == "" {
		return nil
	}
	client, err := share.NewTwilioClient(buildShareOptions(flags)...)
	if err != nil {
		slog.Warn("Twilio configuration incomplete, sharing by SMS disabled", "error", err)
		return nil
	}
	return client
}

// buildDelays applies the configured typing delay to every step.
func buildDelays(flags Flags) flow.Delays {
	d := *flags.typingDelay
	return flow.Delays{Greeting: d, Typing: d, Confirm: d, Result: d}
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.pageSize > 0 {
		apiOpts = append(apiOpts, api.WithPageSize(*flags.pageSize))
	}
	if *flags.sessionTTL > 0 {
		apiOpts = append(apiOpts, api.WithSessionTTL(*flags.sessionTTL))
	}
	apiOpts = append(apiOpts, api.WithDelays(buildDelays(flags)))
	return apiOpts
}
