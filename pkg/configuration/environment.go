package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/iota-uz/utils/fs"
	"github.com/sirupsen/logrus"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/iota-uz/taskflow/pkg/logging"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

// LoadEnv loads the given env files from the working directory. When none of
// them exist there, it retries from the nearest ancestor containing go.mod so
// tests run from package directories still pick up the repo-root .env.
func LoadEnv(envFiles []string) (int, error) {
	existing := existingFiles(envFiles)
	if len(existing) == 0 {
		if root, ok := findModuleRoot(); ok {
			rooted := make([]string, 0, len(envFiles))
			for _, file := range envFiles {
				rooted = append(rooted, filepath.Join(root, file))
			}
			existing = existingFiles(rooted)
		}
	}

	if len(existing) == 0 {
		return 0, nil
	}

	return len(existing), godotenv.Load(existing...)
}

func existingFiles(files []string) []string {
	out := make([]string, 0, len(files))
	for _, file := range files {
		if fs.FileExists(file) {
			out = append(out, file)
		}
	}
	return out
}

func findModuleRoot() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if fs.FileExists(filepath.Join(dir, "go.mod")) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"taskflow"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

type Configuration struct {
	Database   DatabaseOptions
	Prometheus PrometheusOptions

	ServerPort       int    `env:"PORT" envDefault:"3200"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH" envDefault:"./logs/app.log"`
	PageSize         int    `env:"PAGE_SIZE" envDefault:"25"`
	MaxPageSize      int    `env:"MAX_PAGE_SIZE" envDefault:"100"`

	logger   *logrus.Logger
	logClose func() error
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.LogPath), 0o755); err != nil {
		return err
	}
	closer, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		return err
	}
	c.logClose = closer.Close
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}

	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logClose != nil {
		if err := c.logClose(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
