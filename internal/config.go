package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/staykeep/internal/blob"
	"github.com/starford/staykeep/internal/identity"
	"github.com/starford/staykeep/internal/store"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Database  DatabaseConfig    `yaml:"database"`
	Auth      AuthConfig        `yaml:"auth"`
	Blob      BlobConfig        `yaml:"blob"`
	Scheduler SchedulerConfig   `yaml:"scheduler"`
	Client    ClientConfig      `yaml:"client"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Blob.Validate(); err != nil {
		return err
	}
	if err := c.Scheduler.Validate(); err != nil {
		return err
	}
	return c.Client.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
	CORS     CORSConfig `yaml:"cors"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// CORSConfig lists the browser origins allowed to call the API. Empty
// disables CORS handling.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig selects the entity store backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Validate validates the database configuration.
func (c *DatabaseConfig) Validate() error {
	if c.Driver == "" {
		c.Driver = store.DriverSQLite
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(store.DriverSQLite, store.DriverPostgres)),
		validation.Field(&c.DSN, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): every caller acts as the local owner.
//   - "token": a static bearer token; Token must be non-empty.
//   - "jwt": HS256 bearer tokens signed with JWTSecret.
type AuthConfig struct {
	Mode      string `yaml:"mode"`
	Token     string `yaml:"token"`
	JWTSecret string `yaml:"jwt_secret"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = identity.ModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required,
			validation.In(identity.ModeDisabled, identity.ModeToken, identity.ModeJWT)),
	); err != nil {
		return err
	}
	if c.Mode == identity.ModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", identity.ModeToken)
	}
	if c.Mode == identity.ModeJWT && len(c.JWTSecret) < 32 {
		return fmt.Errorf("auth: mode is %q but jwt_secret is shorter than 32 bytes", identity.ModeJWT)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode != identity.ModeDisabled
}

// BlobConfig selects where uploaded photos are stored.
type BlobConfig struct {
	Driver string       `yaml:"driver"`
	FS     FSBlobConfig `yaml:"fs"`
	S3     S3BlobConfig `yaml:"s3"`
}

// FSBlobConfig stores photos on local disk, served under BaseURL.
type FSBlobConfig struct {
	Root    string `yaml:"root"`
	BaseURL string `yaml:"base_url"`
}

// S3BlobConfig stores photos in an S3-compatible bucket.
type S3BlobConfig struct {
	Bucket        string `yaml:"bucket"`
	Region        string `yaml:"region"`
	Endpoint      string `yaml:"endpoint"`
	PathStyle     bool   `yaml:"path_style"`
	PublicBaseURL string `yaml:"public_base_url"`
}

// Validate validates the blob configuration.
func (c *BlobConfig) Validate() error {
	if c.Driver == "" {
		c.Driver = blob.DriverFS
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.In(blob.DriverFS, blob.DriverS3)),
	); err != nil {
		return err
	}
	switch c.Driver {
	case blob.DriverS3:
		return validation.ValidateStruct(&c.S3,
			validation.Field(&c.S3.Bucket, validation.Required),
			validation.Field(&c.S3.Endpoint, is.URL),
			validation.Field(&c.S3.PublicBaseURL, is.URL),
		)
	default:
		return validation.ValidateStruct(&c.FS,
			validation.Field(&c.FS.Root, validation.Required),
			validation.Field(&c.FS.BaseURL, validation.Required),
		)
	}
}

// SchedulerConfig controls the due-inspection reminders.
type SchedulerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Spec    string `yaml:"spec"`
}

// Validate validates the scheduler configuration.
func (c *SchedulerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Spec, validation.When(c.Enabled, validation.Required)),
	)
}

// ClientConfig is used by the commands that talk to a running server.
type ClientConfig struct {
	ServerURL      string        `yaml:"server_url"`
	Token          string        `yaml:"token"`
	StateFile      string        `yaml:"state_file"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Validate validates the client configuration.
func (c *ClientConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ServerURL, validation.Required, is.URL),
		validation.Field(&c.StateFile, validation.Required),
		validation.Field(&c.RequestTimeout, validation.Min(time.Duration(0))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Database: DatabaseConfig{
			Driver: store.DriverSQLite,
			DSN:    "./staykeep.db",
		},
		Auth: AuthConfig{
			Mode: identity.ModeDisabled,
		},
		Blob: BlobConfig{
			Driver: blob.DriverFS,
			FS: FSBlobConfig{
				Root:    "./uploads",
				BaseURL: "/files",
			},
		},
		Scheduler: SchedulerConfig{
			Enabled: true,
			Spec:    "@hourly",
		},
		Client: ClientConfig{
			ServerURL:      "http://localhost:8080",
			StateFile:      "./staykeep-state.json",
			RequestTimeout: 10 * time.Second,
		},
	}
}
