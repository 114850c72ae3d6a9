package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BTreeMap/FastCab/internal/api"
	"github.com/BTreeMap/FastCab/internal/flow"
	"github.com/BTreeMap/FastCab/internal/genai"
	"github.com/BTreeMap/FastCab/internal/intent"
	"github.com/BTreeMap/FastCab/internal/lockfile"
	"github.com/BTreeMap/FastCab/internal/messaging"
	"github.com/BTreeMap/FastCab/internal/ratelimit"
	"github.com/BTreeMap/FastCab/internal/store"
	"github.com/BTreeMap/FastCab/internal/twiliowhatsapp"
	"github.com/BTreeMap/FastCab/internal/util"
	"github.com/BTreeMap/FastCab/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for FastCab state data
	DefaultStateDir = "/var/lib/fastcab"
	// DefaultAppDBFileName is the default SQLite database for users, sessions and bookings
	DefaultAppDBFileName = "fastcab.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow device database
	DefaultWhatsAppDBFileName = whatsapp.DefaultDBFile
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		var lockErr *lockfile.LockError
		if errors.As(err, &lockErr) {
			slog.Error("FastCab is already running", "error", lockErr)
		} else {
			slog.Error("Failed to lock state directory", "error", err)
		}
		os.Exit(1)
	}
	defer lock.Release()

	waOpts := buildWhatsAppOptions(flags)
	twilioOpts := buildTwilioOptions(config)
	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags, config)
	apiOpts := buildAPIOptions(flags, config)

	slog.Info("Bootstrapping FastCab with configured modules")
	slog.Debug("Module options counts", "whatsapp", len(waOpts), "twilio", len(twilioOpts), "store", len(storeOpts),
		"genai", len(genaiOpts), "api", len(apiOpts))
	if err := api.Run(waOpts, twilioOpts, storeOpts, genaiOpts, apiOpts...); err != nil {
		slog.Error("FastCab failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("FastCab exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir         string
	WhatsAppDBDSN    string
	ApplicationDBDSN string
	OpenAIKey        string
	OpenAIModel      string
	APIAddr          string
	Transport        string
	JoinCode         string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	RedisAddr        string
	Delays           flow.Delays
	SessionTTL       time.Duration
	RateLimit        int
}

// Flags holds command line flag values
type Flags struct {
	qrOutput  *string
	numeric   *bool
	stateDir  *string
	dbDSN     *string
	waDSN     *string
	openaiKey *string
	apiAddr   *string
	transport *string
	joinCode  *string
	redisAddr *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	defaults := flow.DefaultDelays()
	config := Config{
		StateDir:         os.Getenv("FASTCAB_STATE_DIR"),
		WhatsAppDBDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		ApplicationDBDSN: os.Getenv("DATABASE_URL"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      os.Getenv("OPENAI_MODEL"),
		APIAddr:          os.Getenv("API_ADDR"),
		Transport:        os.Getenv("FASTCAB_TRANSPORT"),
		JoinCode:         os.Getenv("FASTCAB_JOIN_CODE"),
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber: os.Getenv("TWILIO_FROM_NUMBER"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		Delays: flow.Delays{
			DriverArrival: util.ParseDurationEnv("FASTCAB_DRIVER_ARRIVAL_DELAY", defaults.DriverArrival),
			TripStart:     util.ParseDurationEnv("FASTCAB_TRIP_START_DELAY", defaults.TripStart),
			TripDuration:  util.ParseDurationEnv("FASTCAB_TRIP_DURATION", defaults.TripDuration),
		},
		SessionTTL: util.ParseDurationEnv("FASTCAB_SESSION_TTL", flow.DefaultSessionTTL),
		RateLimit:  util.ParseIntEnv("FASTCAB_RATE_LIMIT", ratelimit.DefaultLimit),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No FASTCAB_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.Transport == "" {
		config.Transport = messaging.TransportTwilio
	}
	if config.JoinCode == "" {
		config.JoinCode = intent.DefaultJoinCode
	}
	if config.WhatsAppDBDSN == "" {
		config.WhatsAppDBDSN = defaultWhatsAppDSN(config.StateDir)
	}
	if config.ApplicationDBDSN == "" {
		config.ApplicationDBDSN = filepath.Join(config.StateDir, DefaultAppDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.ApplicationDBDSN)
	}

	slog.Debug("environment variables loaded",
		"FASTCAB_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", os.Getenv("DATABASE_URL") != "",
		"FASTCAB_TRANSPORT", config.Transport,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioAccountSID != "",
		"REDIS_ADDR", config.RedisAddr,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"FASTCAB_RATE_LIMIT", config.RateLimit)

	return config
}

func defaultWhatsAppDSN(stateDir string) string {
	return "file:" + filepath.Join(stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	return parseFlags(flag.CommandLine, os.Args[1:], config)
}

func parseFlags(fs *flag.FlagSet, args []string, config Config) Flags {
	flags := Flags{
		qrOutput:  fs.String("qr-output", "", "path to write the whatsmeow login QR code"),
		numeric:   fs.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:  fs.String("state-dir", config.StateDir, "state directory for FastCab data (overrides $FASTCAB_STATE_DIR)"),
		dbDSN:     fs.String("db-dsn", config.ApplicationDBDSN, "application database DSN (overrides $DATABASE_URL)"),
		waDSN:     fs.String("whatsapp-db-dsn", config.WhatsAppDBDSN, "whatsmeow device store DSN (overrides $WHATSAPP_DB_DSN)"),
		openaiKey: fs.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:   fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		transport: fs.String("transport", config.Transport, "outbound WhatsApp transport: twilio or whatsmeow (overrides $FASTCAB_TRANSPORT)"),
		joinCode:  fs.String("join-code", config.JoinCode, "sandbox join keyword (overrides $FASTCAB_JOIN_CODE)"),
		redisAddr: fs.String("redis-addr", config.RedisAddr, "Redis address for shared rate limiting (overrides $REDIS_ADDR)"),
	}
	if err := fs.Parse(args); err != nil {
		slog.Warn("flag parsing failed", "error", err)
	}

	// Database paths follow a state directory given on the command line.
	if *flags.stateDir != config.StateDir {
		if *flags.dbDSN == filepath.Join(config.StateDir, DefaultAppDBFileName) {
			*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultAppDBFileName)
		}
		if *flags.waDSN == defaultWhatsAppDSN(config.StateDir) {
			*flags.waDSN = defaultWhatsAppDSN(*flags.stateDir)
		}
		slog.Debug("Updated database paths based on state directory", "state_dir", *flags.stateDir)
	}

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"transport", *flags.transport)
	return flags
}

// buildWhatsAppOptions constructs whatsmeow configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.waDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.waDSN))
	}
	return waOpts
}

// buildTwilioOptions constructs Twilio REST configuration options
func buildTwilioOptions(config Config) []twiliowhatsapp.Option {
	var opts []twiliowhatsapp.Option
	if config.TwilioAccountSID != "" {
		opts = append(opts, twiliowhatsapp.WithAccountSID(config.TwilioAccountSID))
	}
	if config.TwilioAuthToken != "" {
		opts = append(opts, twiliowhatsapp.WithAuthToken(config.TwilioAuthToken))
	}
	if config.TwilioFromNumber != "" {
		opts = append(opts, twiliowhatsapp.WithFromNumber(config.TwilioFromNumber))
	}
	return opts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	dsn := *flags.dbDSN
	if dsn == "" {
		slog.Debug("No database DSN provided, will use in-memory store")
		return nil
	}
	if store.DetectDSNType(dsn) == store.DriverPostgres {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		return []store.Option{store.WithPostgresDSN(dsn)}
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return []store.Option{store.WithSQLiteDSN(dsn)}
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags, config Config) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if config.OpenAIModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(config.OpenAIModel))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags, config Config) []api.Option {
	apiOpts := []api.Option{
		api.WithTransport(*flags.transport),
		api.WithJoinCode(*flags.joinCode),
		api.WithDelays(config.Delays),
		api.WithSessionTTL(config.SessionTTL),
		api.WithRateLimit(config.RateLimit),
	}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.redisAddr != "" {
		apiOpts = append(apiOpts, api.WithRedisAddr(*flags.redisAddr))
	}
	return apiOpts
}
