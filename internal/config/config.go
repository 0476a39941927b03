package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the gateway process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Media     MediaConfig
	Telephony TelephonyConfig
	Session   SessionConfig
	AI        AIConfig
	Recall    RecallConfig
	Workflow  WorkflowConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit. Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

// MediaConfig configures the media room credential issuer.
type MediaConfig struct {
	// APIKey identifies this gateway to the media room provider; it becomes
	// the token issuer claim.
	APIKey string

	// APISecret signs join tokens. Read once at startup, never mutated.
	APISecret string

	// TokenTTL is the fixed credential lifetime.
	TokenTTL time.Duration
}

type TelephonyConfig struct {
	AccountSID string
	AuthToken  string

	// StreamURL is the public wss endpoint callers' media is directed to in
	// the call-control response.
	StreamURL string

	// MaxConcurrentCalls caps inbound calls across gateway instances.
	// Zero disables the cap.
	MaxConcurrentCalls int
}

type SessionConfig struct {
	// AttachTimeout bounds how long a session may wait for its first
	// transport attach before the registry fails it.
	AttachTimeout time.Duration
	SweepInterval time.Duration
}

// AIConfig configures the external LLM completion collaborator.
// Endpoint may be empty outside production; the process then falls back to a
// canned responder suitable for local development.
type AIConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// RecallConfig configures the long-term memory/graph store collaborator.
type RecallConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// WorkflowConfig configures the workflow-orchestration collaborator that
// receives post-call work.
type WorkflowConfig struct {
	Endpoint string
	Timeout  time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Media.APIKey = strings.TrimSpace(os.Getenv("LIVEKIT_API_KEY"))
	c.Media.APISecret = os.Getenv("LIVEKIT_API_SECRET")
	c.Media.TokenTTL = mustDuration("LIVEKIT_TOKEN_TTL")

	c.Telephony.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Telephony.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Telephony.StreamURL = strings.TrimSpace(os.Getenv("TELEPHONY_STREAM_URL"))
	{
		n, err := optionalInt("TELEPHONY_MAX_CONCURRENT_CALLS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Telephony.MaxConcurrentCalls = n
	}

	c.Session.AttachTimeout = mustDuration("SESSION_ATTACH_TIMEOUT")
	c.Session.SweepInterval = mustDuration("SESSION_SWEEP_INTERVAL")

	c.AI.Endpoint = strings.TrimSpace(os.Getenv("AI_ENDPOINT"))
	c.AI.APIKey = os.Getenv("AI_API_KEY")
	c.AI.Model = strings.TrimSpace(os.Getenv("AI_MODEL"))
	c.AI.Timeout = mustDuration("AI_TIMEOUT")

	c.Recall.Endpoint = strings.TrimSpace(os.Getenv("MEMORY_ENDPOINT"))
	c.Recall.APIKey = os.Getenv("MEMORY_API_KEY")
	c.Recall.Timeout = mustDuration("MEMORY_TIMEOUT")

	c.Workflow.Endpoint = strings.TrimSpace(os.Getenv("WORKFLOW_ENDPOINT"))
	c.Workflow.Timeout = mustDuration("WORKFLOW_TIMEOUT")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and applies env-dependent defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Media.APIKey == "" {
		errs = append(errs, errors.New("LIVEKIT_API_KEY is required"))
	}
	if c.Media.APISecret == "" {
		errs = append(errs, errors.New("LIVEKIT_API_SECRET is required"))
	}
	if c.Media.TokenTTL <= 0 {
		c.Media.TokenTTL = time.Hour
	}

	if c.Telephony.StreamURL == "" {
		errs = append(errs, errors.New("TELEPHONY_STREAM_URL is required"))
	} else if !strings.HasPrefix(c.Telephony.StreamURL, "wss://") && !strings.HasPrefix(c.Telephony.StreamURL, "ws://") {
		errs = append(errs, fmt.Errorf("TELEPHONY_STREAM_URL must be a ws(s) URL, got %q", c.Telephony.StreamURL))
	}
	if c.Telephony.MaxConcurrentCalls < 0 {
		errs = append(errs, fmt.Errorf("TELEPHONY_MAX_CONCURRENT_CALLS must be >= 0, got %d", c.Telephony.MaxConcurrentCalls))
	}
	if c.IsProduction() {
		if c.Telephony.AccountSID == "" {
			errs = append(errs, errors.New("TWILIO_ACCOUNT_SID is required in production"))
		}
		if c.Telephony.AuthToken == "" {
			errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required in production"))
		}
		if c.AI.Endpoint == "" {
			errs = append(errs, errors.New("AI_ENDPOINT is required in production"))
		}
	}

	if c.Session.AttachTimeout <= 0 {
		c.Session.AttachTimeout = 30 * time.Second
	}
	if c.Session.SweepInterval <= 0 {
		c.Session.SweepInterval = 5 * time.Second
	}

	if c.AI.Timeout <= 0 {
		c.AI.Timeout = 10 * time.Second
	}
	if c.Recall.Timeout <= 0 {
		c.Recall.Timeout = 5 * time.Second
	}
	if c.Workflow.Timeout <= 0 {
		c.Workflow.Timeout = 10 * time.Second
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
