package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/kazz187/taskforest/pkg/storage"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3000"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
	APIKey   string `envconfig:"API_KEY"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".taskforest/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"taskforest/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
	// SQLite settings (used when Type == "sqlite")
	SQLitePath string `envconfig:"SQLITE_PATH" default:".taskforest/taskforest.db"`
}

type VAPIDEnv struct {
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDContact    string `envconfig:"VAPID_CONTACT" default:"mailto:admin@example.com"`
}

type ExpoEnv struct {
	ExpoPushURL     string `envconfig:"EXPO_PUSH_URL" default:"https://exp.host/--/api/v2/push/send"`
	ExpoAccessToken string `envconfig:"EXPO_ACCESS_TOKEN"`
}

type ReminderEnv struct {
	// Seconds until due; each value is the upper bound of one reminder window.
	Windows     []int64       `envconfig:"REMINDER_WINDOWS" default:"3600,86400,172800"`
	WindowsFile string        `envconfig:"REMINDER_WINDOWS_FILE"`
	Interval    time.Duration `envconfig:"REMINDER_INTERVAL" default:"1m"`
	Concurrency int           `envconfig:"REMINDER_CONCURRENCY" default:"8"`
	Disabled    bool          `envconfig:"REMINDER_DISABLED" default:"false"`
}

type OptimizerEnv struct {
	OptimizerURL     string        `envconfig:"OPTIMIZER_URL"`
	OptimizerTimeout time.Duration `envconfig:"OPTIMIZER_TIMEOUT" default:"30s"`
}

type CalendarEnv struct {
	GoogleCalendarID      string `envconfig:"GOOGLE_CALENDAR_ID"`
	GoogleCredentialsFile string `envconfig:"GOOGLE_CREDENTIALS_FILE"`
	GoogleAccessToken     string `envconfig:"GOOGLE_ACCESS_TOKEN"`
}

type Env struct {
	BaseEnv
	StorageEnv
	VAPIDEnv
	ExpoEnv
	ReminderEnv
	OptimizerEnv
	CalendarEnv
}

const namespace = "TASKFOREST"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}

func (e *StorageEnv) Options() storage.Options {
	return storage.Options{
		Type:       storage.Type(e.Type),
		BaseDir:    e.BaseDir,
		S3Bucket:   e.S3Bucket,
		S3Prefix:   e.S3Prefix,
		S3Region:   e.S3Region,
		SQLitePath: e.SQLitePath,
	}
}

func (e *CalendarEnv) Enabled() bool {
	return e.GoogleCalendarID != "" && (e.GoogleCredentialsFile != "" || e.GoogleAccessToken != "")
}

func BaseEnvFromEnv(env *Env) *BaseEnv {
	return &env.BaseEnv
}

func StorageEnvFromEnv(env *Env) *StorageEnv {
	return &env.StorageEnv
}

func VAPIDEnvFromEnv(env *Env) *VAPIDEnv {
	return &env.VAPIDEnv
}

func ExpoEnvFromEnv(env *Env) *ExpoEnv {
	return &env.ExpoEnv
}

func ReminderEnvFromEnv(env *Env) *ReminderEnv {
	return &env.ReminderEnv
}

func OptimizerEnvFromEnv(env *Env) *OptimizerEnv {
	return &env.OptimizerEnv
}

func CalendarEnvFromEnv(env *Env) *CalendarEnv {
	return &env.CalendarEnv
}
