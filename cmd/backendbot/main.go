package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/GTaccount22/BackendBot/internal/api"
	"github.com/GTaccount22/BackendBot/internal/console"
	"github.com/GTaccount22/BackendBot/internal/dialogue"
	"github.com/GTaccount22/BackendBot/internal/genai"
	"github.com/GTaccount22/BackendBot/internal/messaging"
	"github.com/GTaccount22/BackendBot/internal/models"
	"github.com/GTaccount22/BackendBot/internal/scheduler"
	"github.com/GTaccount22/BackendBot/internal/store"
	"github.com/GTaccount22/BackendBot/internal/util"
	"github.com/GTaccount22/BackendBot/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for BackendBot state data
	DefaultStateDir = "/var/lib/backendbot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "backendbot.db"
	// DefaultWhatsAppDBFileName holds the whatsmeow device session
	DefaultWhatsAppDBFileName = "whatsapp.db"
)

// Supported message channel values for $CHANNEL / -channel.
const (
	ChannelWhatsmeow = "whatsmeow"
	ChannelMeta      = "meta"
	ChannelTwilio    = "twilio"
)

// defaultCatalog seeds the service menu on first run with an empty catalog.
var defaultCatalog = []models.Service{
	{Name: "Corte de cabello", Price: 15.00, Description: "Corte y peinado"},
	{Name: "Manicure", Price: 12.00, Description: "Manicure completa"},
	{Name: "Masaje relajante", Price: 30.00, Description: "Sesión de 45 minutos"},
}

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping BackendBot with configured modules")
	if err := run(flags); err != nil {
		slog.Error("BackendBot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("BackendBot exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL   string
	StateDir      string
	Channel       string
	VerifyToken   string
	MetaToken     string
	MetaPhoneID   string
	MetaAppID     string
	MetaAppSecret string
	TwilioSID     string
	TwilioToken   string
	TwilioFrom    string
	OpenAIKey     string
	APIAddr       string
	OpenHour      int
	CloseHour     int
	RemindersOn   bool
	SeedCatalogOn bool
}

// Flags holds command line flag values
type Flags struct {
	qrOutput    *string
	numeric     *bool
	stateDir    *string
	dbDSN       *string
	channel     *string
	verifyToken *string
	openaiKey   *string
	apiAddr     *string
	openHour    *int
	closeHour   *int
	config      Config
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

	config := Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StateDir:      os.Getenv("BACKENDBOT_STATE_DIR"),
		Channel:       os.Getenv("CHANNEL"),
		VerifyToken:   os.Getenv("VERIFY_TOKEN"),
		MetaToken:     os.Getenv("META_TEMP_TOKEN"),
		MetaPhoneID:   os.Getenv("META_PHONE_NUMBER_ID"),
		MetaAppID:     os.Getenv("META_APP_ID"),
		MetaAppSecret: os.Getenv("META_APP_SECRET"),
		TwilioSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:    os.Getenv("TWILIO_FROM_NUMBER"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		APIAddr:       os.Getenv("API_ADDR"),
		OpenHour:      util.ParseIntEnv("BUSINESS_OPEN_HOUR", dialogue.DefaultOpenHour),
		CloseHour:     util.ParseIntEnv("BUSINESS_CLOSE_HOUR", dialogue.DefaultCloseHour),
		RemindersOn:   util.ParseBoolEnv("REMINDERS_ENABLED", true),
		SeedCatalogOn: util.ParseBoolEnv("SEED_CATALOG", true),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No BACKENDBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.Channel == "" {
		config.Channel = ChannelWhatsmeow
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"BACKENDBOT_STATE_DIR", config.StateDir,
		"CHANNEL", config.Channel,
		"VERIFY_TOKEN_SET", config.VerifyToken != "",
		"META_TEMP_TOKEN_SET", config.MetaToken != "",
		"META_APP_ID_SET", config.MetaAppID != "",
		"TWILIO_ACCOUNT_SID_SET", config.TwilioSID != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"open_hour", config.OpenHour,
		"close_hour", config.CloseHour)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:    flag.String("qr-output", "", "path to write login QR code"),
		numeric:     flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for BackendBot data (overrides $BACKENDBOT_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "database DSN (overrides $DATABASE_URL)"),
		channel:     flag.String("channel", config.Channel, "message channel: whatsmeow, meta or twilio (overrides $CHANNEL)"),
		verifyToken: flag.String("verify-token", config.VerifyToken, "Meta webhook verification token (overrides $VERIFY_TOKEN)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:     flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		openHour:    flag.Int("open-hour", config.OpenHour, "first bookable hour (overrides $BUSINESS_OPEN_HOUR)"),
		closeHour:   flag.Int("close-hour", config.CloseHour, "first non-bookable hour (overrides $BUSINESS_CLOSE_HOUR)"),
		config:      config,
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"channel", *flags.channel,
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// buildStore opens the store backend matching the DSN shape.
func buildStore(flags Flags) (store.Store, error) {
	dsn := *flags.dbDSN
	if dsn == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// buildMessagingService constructs the configured message channel. The
// returned Cloud and Twilio services are non-nil only when they are the
// active channel, so the API can mount the matching webhook.
func buildMessagingService(ctx context.Context, flags Flags) (messaging.Service, *messaging.CloudAPIService, *messaging.TwilioService, error) {
	switch *flags.channel {
	case ChannelMeta:
		token := flags.config.MetaToken
		// With app credentials configured, trade the short-lived token for a
		// long-lived one before the channel comes up, so sends do not start
		// dying mid-run when the temp token expires.
		if flags.config.MetaAppID != "" && flags.config.MetaAppSecret != "" {
			longLived, lifetime, err := messaging.ExchangeLongLivedToken(ctx, nil, "",
				flags.config.MetaAppID, flags.config.MetaAppSecret, token)
			if err != nil {
				return nil, nil, nil, err
			}
			slog.Info("Exchanged Meta token for long-lived token", "lifetime", lifetime)
			token = longLived
		}
		svc, err := messaging.NewCloudAPIService(
			messaging.WithAccessToken(token),
			messaging.WithPhoneNumberID(flags.config.MetaPhoneID),
		)
		if err != nil {
			return nil, nil, nil, err
		}
		return svc, svc, nil, nil
	case ChannelTwilio:
		svc, err := messaging.NewTwilioService(
			messaging.WithAccountSID(flags.config.TwilioSID),
			messaging.WithAuthToken(flags.config.TwilioToken),
			messaging.WithFromWhats(flags.config.TwilioFrom),
		)
		if err != nil {
			return nil, nil, nil, err
		}
		return svc, nil, svc, nil
	default:
		waOpts := []whatsapp.Option{
			whatsapp.WithDBDSN(filepath.Join(*flags.stateDir, DefaultWhatsAppDBFileName)),
		}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, nil, nil, err
		}
		return messaging.NewWhatsAppService(client), nil, nil, nil
	}
}

// run wires the modules together and blocks until shutdown.
func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	if flags.config.SeedCatalogOn {
		if err := st.SeedServices(defaultCatalog); err != nil {
			return err
		}
	}

	msgService, cloudSvc, twilioSvc, err := buildMessagingService(ctx, flags)
	if err != nil {
		return err
	}

	hub := console.NewHub()
	defer hub.Close()

	interp := dialogue.NewInterpreter(dialogue.WithBusinessHours(*flags.openHour, *flags.closeHour))
	engine := dialogue.NewEngine(st, msgService,
		dialogue.WithInterpreter(interp),
		dialogue.WithNotifier(hub),
	)

	if err := msgService.Start(ctx); err != nil {
		return err
	}
	defer msgService.Stop()

	dispatcher := dialogue.NewDispatcher(engine)
	dispatcher.Start(ctx, msgService.Responses())

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if flags.config.RemindersOn {
		sweep := scheduler.NewReminderSweep(st, msgService)
		if err := sweep.Register(sched); err != nil {
			return err
		}
		slog.Info("Booking reminder sweep scheduled", "cron", scheduler.ReminderCronExpr)
	}

	apiOpts := []api.Option{
		api.WithConsoleHub(hub),
	}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.verifyToken != "" {
		apiOpts = append(apiOpts, api.WithVerifyToken(*flags.verifyToken))
	}
	if cloudSvc != nil {
		apiOpts = append(apiOpts, api.WithCloudService(cloudSvc))
	}
	if twilioSvc != nil {
		apiOpts = append(apiOpts, api.WithTwilioService(twilioSvc))
	}
	if *flags.openaiKey != "" {
		gaClient, err := genai.NewClient(genai.WithAPIKey(*flags.openaiKey))
		if err != nil {
			slog.Warn("GenAI client unavailable, reply suggestions disabled", "error", err)
		} else {
			apiOpts = append(apiOpts, api.WithGenAIClient(gaClient))
		}
	}

	server := api.NewServer(st, engine, apiOpts...)
	return server.Run(ctx)
}
