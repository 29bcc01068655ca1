package configuration

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"growth-automation/infrastructure/logger"

	"github.com/spf13/viper"
)

type Config struct {
	Database    Database            `json:"database"`
	App         App                 `json:"app"`
	Pubsub      Pubsub              `json:"pubsub"`
	ServiceBus  ServiceBus          `json:"serviceBus"`
	RedisClient RedisClient         `json:"redisClient"`
	Slack       Slack               `json:"slack"`
	Providers   map[string]Provider `json:"providers"`
	Scheduler   Scheduler           `json:"scheduler"`
	Optimizer   Optimizer           `json:"optimizer"`
	Credentials Credentials         `json:"credentials"`
}

type App struct {
	Port        int    `json:"port"`
	SecretKey   string `json:"secretKey"`
	TLSEnabled  bool   `json:"tlsEnabled"`
	TLSCertFile string `json:"tlsCertFile"`
	TLSKeyFile  string `json:"tlsKeyFile"`
	// ConfirmationURL receives the browser after a completed authorization.
	ConfirmationURL string   `json:"confirmationURL"`
	AllowedOrigins  []string `json:"allowedOrigins"`
}

type Database struct {
	Psql  Db `json:"psql"`
	MySql Db `json:"mysql"`
	Mongo Db `json:"mongo"`
	Mssql Db `json:"mssql"`
}

type Db struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type Pubsub struct {
	ProjectID string `json:"projectID"`
	Topic     string `json:"topic"`
}

type ServiceBus struct {
	Namespace string `json:"namespace"`
	Topic     string `json:"topic"`
}

type RedisClient struct {
	Host         string `json:"host"`
	Port         string `json:"port"`
	Password     string `json:"password"`
	DatabaseName string `json:"databaseName"`
	Username     string `json:"username"`
}

type Slack struct {
	Token   string `json:"token"`
	Channel string `json:"channel"`
}

// Provider holds the OAuth client and API endpoints of one platform.
type Provider struct {
	ClientID     string   `json:"clientId"`
	ClientSecret string   `json:"clientSecret"`
	RedirectURI  string   `json:"redirectURI"`
	Scopes       []string `json:"scopes"`
	AuthURL      string   `json:"authURL"`
	TokenURL     string   `json:"tokenURL"`
	RevokeURL    string   `json:"revokeURL"`
	APIBaseURL   string   `json:"apiBaseURL"`
	UploadURL    string   `json:"uploadURL"`
	// Server is the instance URL for federated platforms.
	Server      string `json:"server"`
	MaxCaption  int    `json:"maxCaption"`
	MaxHashtags int    `json:"maxHashtags"`
	// KeepRefreshToken set to false treats a refresh response without a refresh token as final.
	KeepRefreshToken *bool `json:"keepRefreshToken"`
}

func (p Provider) Configured() bool {
	return p.ClientID != "" && p.ClientSecret != "" && p.RedirectURI != ""
}

type Scheduler struct {
	TickInterval   time.Duration            `json:"tickInterval"`
	BatchSize      int                      `json:"batchSize"`
	Workers        int                      `json:"workers"`
	LeaseTimeout   time.Duration            `json:"leaseTimeout"`
	MaxAttempts    int                      `json:"maxAttempts"`
	MaxRetries     int                      `json:"maxRetries"`
	BaseBackoff    time.Duration            `json:"baseBackoff"`
	MaxBackoff     time.Duration            `json:"maxBackoff"`
	PublishTimeout time.Duration            `json:"publishTimeout"`
	Timezone       string                   `json:"timezone"`
	PreferredTimes []string                 `json:"preferredTimes"`
	MinSpacing     map[string]time.Duration `json:"minSpacing"`
}

type Optimizer struct {
	Interval               time.Duration `json:"interval"`
	LearningSpendThreshold float64       `json:"learningSpendThreshold"`
	LearningDays           int           `json:"learningDays"`
	MaxIncrease            float64       `json:"maxIncrease"`
	MinDailyBudget         float64       `json:"minDailyBudget"`
	WindowDays             int           `json:"windowDays"`
	Workers                int           `json:"workers"`
}

type Credentials struct {
	EncryptionKey       string        `json:"encryptionKey"`
	RefreshMargin       time.Duration `json:"refreshMargin"`
	StateTTL            time.Duration `json:"stateTTL"`
	ProviderConcurrency int64         `json:"providerConcurrency"`
	CallTimeout         time.Duration `json:"callTimeout"`
}

var C Config

func init() {
	LoadEnvFiles("config.env", ".env")
	LoadConfig()
	initDatabase(&C)
	initApp(&C)
	initProviders(&C)
	initSecrets(&C)
}

func LoadConfig() {
	name := getConfig()
	viper.SetConfigName(name)
	viper.SetConfigType("json")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../")
	viper.AddConfigPath("../../")
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.GetLogger().Warn("Config file not found")
		} else {
			logger.GetLogger().WithField("error", err).Error("Error reading config file")
		}
	}

	logger.GetLogger().WithField("config", name).Info("Config set up successfully")
	if err := viper.Unmarshal(&C); err != nil {
		logger.GetLogger().WithField("error", err).Error("Viper unable to decode into struct")
	}
}

func setDefaults() {
	viper.SetDefault("app.port", 10001)
	viper.SetDefault("app.confirmationURL", "http://localhost:4200/connections")
	viper.SetDefault("app.allowedOrigins", []string{"http://localhost:4200", "https://localhost:4200"})

	viper.SetDefault("scheduler.tickInterval", "1m")
	viper.SetDefault("scheduler.batchSize", 50)
	viper.SetDefault("scheduler.workers", 8)
	viper.SetDefault("scheduler.leaseTimeout", "10m")
	viper.SetDefault("scheduler.maxAttempts", 3)
	viper.SetDefault("scheduler.maxRetries", 3)
	viper.SetDefault("scheduler.baseBackoff", "2s")
	viper.SetDefault("scheduler.maxBackoff", "30s")
	viper.SetDefault("scheduler.publishTimeout", "2m")
	viper.SetDefault("scheduler.timezone", "UTC")
	viper.SetDefault("scheduler.preferredTimes", []string{"09:00", "13:00", "17:00"})
	viper.SetDefault("scheduler.minSpacing", map[string]string{
		"facebook":  "30m",
		"instagram": "1h",
		"tiktok":    "1h",
		"twitter":   "15m",
		"linkedin":  "2h",
		"youtube":   "4h",
		"mastodon":  "10m",
	})

	viper.SetDefault("optimizer.interval", "1h")
	viper.SetDefault("optimizer.learningSpendThreshold", 50)
	viper.SetDefault("optimizer.learningDays", 3)
	viper.SetDefault("optimizer.maxIncrease", 100)
	viper.SetDefault("optimizer.minDailyBudget", 10)
	viper.SetDefault("optimizer.windowDays", 7)
	viper.SetDefault("optimizer.workers", 4)

	viper.SetDefault("credentials.refreshMargin", "2m")
	viper.SetDefault("credentials.stateTTL", "10m")
	viper.SetDefault("credentials.providerConcurrency", 16)
	viper.SetDefault("credentials.callTimeout", "30s")

	viper.SetDefault("pubsub.topic", "growth-events")
	viper.SetDefault("serviceBus.topic", "growth-events")
}

func getConfig() string {
	name := "config"
	env := os.Getenv("ENV")
	if env != "" {
		name = fmt.Sprintf("%s-%s", name, env)
	}
	return name
}

func initDatabase(C *Config) {
	C.Database.Psql.Name = getConfigValue(C.Database.Psql.Name, "DB_NAME", "growth")
	C.Database.Psql.Host = getConfigValue(C.Database.Psql.Host, "DB_HOST", "localhost")
	C.Database.Psql.Port = getConfigValue(C.Database.Psql.Port, "DB_PORT", "5432")
	C.Database.Psql.User = getConfigValue(C.Database.Psql.User, "DB_USER", "postgres")
	C.Database.Psql.Password = getConfigValue(C.Database.Psql.Password, "DB_PASSWORD", "")

	C.Database.MySql.Name = getConfigValue(C.Database.MySql.Name, "MYSQL_DB_NAME", "growth")
	C.Database.MySql.Host = getConfigValue(C.Database.MySql.Host, "MYSQL_HOST", "localhost")
	C.Database.MySql.Port = getConfigValue(C.Database.MySql.Port, "MYSQL_PORT", "3306")
	C.Database.MySql.User = getConfigValue(C.Database.MySql.User, "MYSQL_USER", "root")
	C.Database.MySql.Password = getConfigValue(C.Database.MySql.Password, "MYSQL_PASSWORD", "")

	// Azure SQL in production
	C.Database.Mssql.Name = getConfigValue(C.Database.Mssql.Name, "MSSQL_DB_NAME", "")
	C.Database.Mssql.Host = getConfigValue(C.Database.Mssql.Host, "MSSQL_HOST", "localhost")
	C.Database.Mssql.Port = getConfigValue(C.Database.Mssql.Port, "MSSQL_PORT", "1433")
	C.Database.Mssql.User = getConfigValue(C.Database.Mssql.User, "MSSQL_USER", "sa")
	C.Database.Mssql.Password = getConfigValue(C.Database.Mssql.Password, "MSSQL_PASSWORD", "")

	C.Database.Mongo.Host = getConfigValue(C.Database.Mongo.Host, "MONGO_HOST", "")
	C.Database.Mongo.Port = getConfigValue(C.Database.Mongo.Port, "MONGO_PORT", "27017")
	C.Database.Mongo.Name = getConfigValue(C.Database.Mongo.Name, "MONGO_DB_NAME", "growth")

	C.RedisClient.Host = getConfigValue(C.RedisClient.Host, "REDIS_HOST", "localhost")
	C.RedisClient.Port = getConfigValue(C.RedisClient.Port, "REDIS_PORT", "6379")
	C.RedisClient.Password = getConfigValue(C.RedisClient.Password, "REDIS_PASSWORD", "")
}

func initApp(C *Config) {
	// SECRET_KEY from environment wins over the config file
	if v := os.Getenv("SECRET_KEY"); v != "" {
		C.App.SecretKey = v
	}
	// APP_PORT -> PORT -> config -> 10001
	if v := os.Getenv("APP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			C.App.Port = p
		}
	} else if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			C.App.Port = p
		}
	}
	if C.App.Port == 0 {
		C.App.Port = 10001
	}
	if v := os.Getenv("TLS_ENABLED"); v != "" {
		switch v {
		case "1", "true", "TRUE", "True":
			C.App.TLSEnabled = true
		case "0", "false", "FALSE", "False":
			C.App.TLSEnabled = false
		}
	}
	if C.App.TLSCertFile == "" {
		C.App.TLSCertFile = os.Getenv("TLS_CERT_FILE")
	}
	if C.App.TLSKeyFile == "" {
		C.App.TLSKeyFile = os.Getenv("TLS_KEY_FILE")
	}
	if C.App.TLSEnabled {
		logger.GetLogger().WithFields(map[string]interface{}{"cert": C.App.TLSCertFile, "key": C.App.TLSKeyFile}).Info("TLS enabled via configuration")
	}
	if C.App.SecretKey == "" {
		logger.GetLogger().Warn("App.SecretKey not set; JWT authentication will fail. Provide SECRET_KEY via environment.")
	}
}

func initSecrets(C *Config) {
	C.Credentials.EncryptionKey = getConfigValue(C.Credentials.EncryptionKey, "ENCRYPTION_KEY", "")
	if C.Credentials.EncryptionKey == "" {
		logger.GetLogger().Warn("Credentials.EncryptionKey not set; platform connections cannot be stored. Provide ENCRYPTION_KEY (64 hex chars).")
	}
	C.Slack.Token = getConfigValue(C.Slack.Token, "SLACK_TOKEN", "")
	C.Slack.Channel = getConfigValue(C.Slack.Channel, "SLACK_CHANNEL", "")
	C.Pubsub.ProjectID = getConfigValue(C.Pubsub.ProjectID, "PUBSUB_PROJECT_ID", "")
	C.ServiceBus.Namespace = getConfigValue(C.ServiceBus.Namespace, "SERVICEBUS_NAMESPACE", "")
}
