// Package config loads service settings from the environment. A .env file
// in the working directory is read first when present.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every setting of the service and the CLI.
type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	PublicURL   string `envconfig:"PUBLIC_URL" default:"http://localhost:8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	AuthEnabled bool   `envconfig:"AUTH_ENABLED" default:"false"`

	// Inference
	Backend        string        `envconfig:"TRYON_BACKEND" default:"gradio"`
	GradioSpace    string        `envconfig:"GRADIO_SPACE" default:"Kwai-Kolors/Kolors-Virtual-Try-On"`
	GradioEndpoint string        `envconfig:"GRADIO_ENDPOINT" default:"/tryon"`
	HFToken        string        `envconfig:"HF_TOKEN"`
	HFAPIURL       string        `envconfig:"HF_API_URL" default:"https://huggingface.co"`
	IntParam       int           `envconfig:"TRYON_INT_PARAM" default:"0"`
	BoolParam      bool          `envconfig:"TRYON_BOOL_PARAM" default:"true"`
	MaxAttempts    int           `envconfig:"POLL_MAX_ATTEMPTS" default:"30"`
	PollInterval   time.Duration `envconfig:"POLL_INTERVAL" default:"2s"`
	GeminiAPIKey   string        `envconfig:"GEMINI_API_KEY"`
	GeminiModel    string        `envconfig:"GEMINI_MODEL" default:"gemini-3-pro-image-preview"`

	// Object storage
	ObjectStore    string `envconfig:"OBJECT_STORE" default:"local"`
	LocalStoreDir  string `envconfig:"LOCAL_STORE_DIR" default:"data"`
	AWSRegion      string `envconfig:"AWS_REGION" default:"ap-south-1"`
	AWSBucketName  string `envconfig:"AWS_BUCKET_NAME"`
	S3Prefix       string `envconfig:"S3_PREFIX"`
	MinioEndpoint  string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	MinioAccessKey string `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	MinioSecretKey string `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	MinioBucket    string `envconfig:"MINIO_BUCKET" default:"tryon"`
	MinioUseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`

	// History and accounts
	MongoURI           string `envconfig:"MONGO_URI"`
	DBName             string `envconfig:"DB_NAME" default:"fitly"`
	JWTSecret          string `envconfig:"JWT_SECRET"`
	GoogleClientID     string `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `envconfig:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `envconfig:"GOOGLE_REDIRECT_URL" default:"http://localhost:8080/auth/google/callback"`

	// Notifications
	SendGridAPIKey string `envconfig:"SENDGRID_API_KEY"`
	OperatorEmail  string `envconfig:"OPERATOR_EMAIL"`

	// Stream viewer
	StreamEnabled    bool   `envconfig:"STREAM_ENABLED" default:"false"`
	StreamURL        string `envconfig:"STREAM_URL" default:"https://dlhd.sx/embed/stream-62.php"`
	StreamUserAgent  string `envconfig:"STREAM_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/58.0.3029.110 Safari/537.36"`
	StreamDriver     string `envconfig:"STREAM_DRIVER" default:"chromedp"`
	ChromeDriverPath string `envconfig:"CHROMEDRIVER_PATH" default:"/usr/local/bin/chromedriver"`
}

// LoadConfig loads environment variables, reading .env first if it
// exists.
func LoadConfig() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated settings and the values they require.
func (c *Config) Validate() error {
	switch c.Backend {
	case "gradio":
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("TRYON_BACKEND=gemini requires GEMINI_API_KEY")
		}
	default:
		return fmt.Errorf("unknown TRYON_BACKEND %q", c.Backend)
	}

	switch c.ObjectStore {
	case "local", "minio":
	case "s3":
		if c.AWSBucketName == "" {
			return fmt.Errorf("OBJECT_STORE=s3 requires AWS_BUCKET_NAME")
		}
	default:
		return fmt.Errorf("unknown OBJECT_STORE %q", c.ObjectStore)
	}

	switch c.StreamDriver {
	case "chromedp", "selenium":
	default:
		return fmt.Errorf("unknown STREAM_DRIVER %q", c.StreamDriver)
	}

	if c.MaxAttempts < 1 {
		return fmt.Errorf("POLL_MAX_ATTEMPTS must be positive")
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("POLL_INTERVAL must not be negative")
	}
	if c.AuthEnabled && c.JWTSecret == "" {
		return fmt.Errorf("AUTH_ENABLED requires JWT_SECRET")
	}
	return nil
}
