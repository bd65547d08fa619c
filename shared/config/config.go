package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Config struct {
	Env         string
	ServiceName string
	HTTPPort    int
	LogLevel    string
	ConfigPath  string

	DatabaseURL      string
	DBMaxConns       int
	DBMinConns       int
	DBConnMaxIdleSec int
	DBConnMaxLifeSec int

	BatchSize            int
	MaxConcurrency       int
	ProcessingTimeoutSec int
	PollIntervalSec      int
	DedupWindowDays      int

	InsightServiceURL string
	InsightTimeoutMS  int
	InsightRetryMax   int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers  []string
	KafkaClientID string
	KafkaTopic    string
	KafkaRetryMax int
	KafkaWriteMS  int

	InfluxURL       string
	InfluxToken     string
	InfluxOrg       string
	InfluxBucket    string
	InfluxTimeoutMS int

	OtelEnabled     bool
	OtelEndpoint    string
	OtelInsecure    bool
	OtelSampleRatio float64

	ProcessingTimeout time.Duration
	PollInterval      time.Duration
}

func Load(serviceNameDefault string, httpPortDefault int) (Config, []Problem) {
	envRaw := strings.TrimSpace(os.Getenv("ENV"))
	cfg := Config{
		Env:                  envRaw,
		ServiceName:          serviceNameDefault,
		HTTPPort:             httpPortDefault,
		LogLevel:             "info",
		ConfigPath:           strings.TrimSpace(os.Getenv("CONFIG_PATH")),
		DatabaseURL:          strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:           10,
		DBMinConns:           1,
		DBConnMaxIdleSec:     300,
		DBConnMaxLifeSec:     1800,
		BatchSize:            50,
		MaxConcurrency:       5,
		ProcessingTimeoutSec: 30,
		PollIntervalSec:      60,
		DedupWindowDays:      7,
		InsightServiceURL:    strings.TrimSpace(os.Getenv("INSIGHT_SERVICE_URL")),
		InsightTimeoutMS:     30000,
		InsightRetryMax:      2,
		RedisAddr:            "",
		RedisPassword:        "",
		RedisDB:              0,
		KafkaBrokers:         nil,
		KafkaClientID:        "",
		KafkaTopic:           "insight.events",
		KafkaRetryMax:        5,
		KafkaWriteMS:         5000,
		InfluxURL:            "",
		InfluxToken:          "",
		InfluxOrg:            "",
		InfluxBucket:         "",
		InfluxTimeoutMS:      5000,
		OtelEnabled:          false,
		OtelEndpoint:         "",
		OtelInsecure:         true,
		OtelSampleRatio:      1.0,
	}

	problems := make([]Problem, 0, 4)

	if fileData, fileProblems, ok := loadConfigFile(cfg.ConfigPath); ok {
		problems = append(problems, fileProblems...)
		applyConfigMap(&cfg, fileData, &problems)
	} else {
		problems = append(problems, fileProblems...)
	}

	applyEnv(&cfg, &problems)

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		problems = append(problems, Problem{Field: "HTTP_PORT", Message: "HTTP_PORT must be 1-65535"})
		cfg.HTTPPort = httpPortDefault
	}
	if cfg.BatchSize <= 0 {
		problems = append(problems, Problem{Field: "BATCH_SIZE", Message: "BATCH_SIZE must be > 0"})
		cfg.BatchSize = 50
	}
	if cfg.MaxConcurrency <= 0 {
		problems = append(problems, Problem{Field: "MAX_CONCURRENCY", Message: "MAX_CONCURRENCY must be > 0"})
		cfg.MaxConcurrency = 5
	}
	if cfg.ProcessingTimeoutSec <= 0 {
		problems = append(problems, Problem{Field: "PROCESSING_TIMEOUT_SECONDS", Message: "PROCESSING_TIMEOUT_SECONDS must be > 0"})
		cfg.ProcessingTimeoutSec = 30
	}
	if cfg.PollIntervalSec <= 0 {
		problems = append(problems, Problem{Field: "POLL_INTERVAL_SECONDS", Message: "POLL_INTERVAL_SECONDS must be > 0"})
		cfg.PollIntervalSec = 60
	}
	if cfg.DedupWindowDays <= 0 {
		problems = append(problems, Problem{Field: "DEDUP_WINDOW_DAYS", Message: "DEDUP_WINDOW_DAYS must be > 0"})
		cfg.DedupWindowDays = 7
	}
	if cfg.InsightTimeoutMS <= 0 {
		problems = append(problems, Problem{Field: "INSIGHT_TIMEOUT_MS", Message: "INSIGHT_TIMEOUT_MS must be > 0"})
		cfg.InsightTimeoutMS = 30000
	}
	if cfg.InsightRetryMax < 0 {
		problems = append(problems, Problem{Field: "INSIGHT_RETRY_MAX", Message: "INSIGHT_RETRY_MAX must be >= 0"})
		cfg.InsightRetryMax = 2
	}
	if cfg.OtelSampleRatio < 0 || cfg.OtelSampleRatio > 1 {
		problems = append(problems, Problem{Field: "OTEL_SAMPLE_RATIO", Message: "OTEL_SAMPLE_RATIO must be in [0,1]"})
		cfg.OtelSampleRatio = 1.0
	}

	cfg.ProcessingTimeout = time.Duration(cfg.ProcessingTimeoutSec) * time.Second
	cfg.PollInterval = time.Duration(cfg.PollIntervalSec) * time.Second

	return cfg, problems
}

func loadConfigFile(path string) (map[string]any, []Problem, bool) {
	if strings.TrimSpace(path) == "" {
		return nil, nil, false
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, []Problem{{Field: "CONFIG_PATH", Message: "config file not readable: " + path}}, false
	}
	data := map[string]any{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, []Problem{{Field: "CONFIG_PATH", Message: "config file is not valid JSON: " + path}}, false
	}
	return data, nil, true
}

func applyEnv(cfg *Config, problems *[]Problem) {
	setString(&cfg.Env, "ENV")
	setString(&cfg.ServiceName, "SERVICE_NAME")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setInt(&cfg.HTTPPort, "HTTP_PORT", problems)
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setInt(&cfg.DBMaxConns, "DB_MAX_CONNS", problems)
	setInt(&cfg.DBMinConns, "DB_MIN_CONNS", problems)
	setInt(&cfg.DBConnMaxIdleSec, "DB_CONN_MAX_IDLE_SECONDS", problems)
	setInt(&cfg.DBConnMaxLifeSec, "DB_CONN_MAX_LIFE_SECONDS", problems)
	setInt(&cfg.BatchSize, "BATCH_SIZE", problems)
	setInt(&cfg.MaxConcurrency, "MAX_CONCURRENCY", problems)
	setInt(&cfg.ProcessingTimeoutSec, "PROCESSING_TIMEOUT_SECONDS", problems)
	setInt(&cfg.PollIntervalSec, "POLL_INTERVAL_SECONDS", problems)
	setInt(&cfg.DedupWindowDays, "DEDUP_WINDOW_DAYS", problems)
	setString(&cfg.InsightServiceURL, "INSIGHT_SERVICE_URL")
	setInt(&cfg.InsightTimeoutMS, "INSIGHT_TIMEOUT_MS", problems)
	setInt(&cfg.InsightRetryMax, "INSIGHT_RETRY_MAX", problems)
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setInt(&cfg.RedisDB, "REDIS_DB", problems)
	if raw := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); raw != "" {
		cfg.KafkaBrokers = parseCSV(raw)
	}
	setString(&cfg.KafkaClientID, "KAFKA_CLIENT_ID")
	setString(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setInt(&cfg.KafkaRetryMax, "KAFKA_RETRY_MAX", problems)
	setInt(&cfg.KafkaWriteMS, "KAFKA_WRITE_MS", problems)
	setString(&cfg.InfluxURL, "INFLUX_URL")
	setString(&cfg.InfluxToken, "INFLUX_TOKEN")
	setString(&cfg.InfluxOrg, "INFLUX_ORG")
	setString(&cfg.InfluxBucket, "INFLUX_BUCKET")
	setInt(&cfg.InfluxTimeoutMS, "INFLUX_TIMEOUT_MS", problems)
	setBool(&cfg.OtelEnabled, "OTEL_ENABLED", problems)
	setString(&cfg.OtelEndpoint, "OTEL_ENDPOINT")
	setBool(&cfg.OtelInsecure, "OTEL_INSECURE", problems)
	setFloat(&cfg.OtelSampleRatio, "OTEL_SAMPLE_RATIO", problems)
}

func applyConfigMap(cfg *Config, raw map[string]any, problems *[]Problem) {
	for key, value := range raw {
		switch key {
		case "ENV":
			mapString(&cfg.Env, value)
		case "SERVICE_NAME":
			mapString(&cfg.ServiceName, value)
		case "LOG_LEVEL":
			mapString(&cfg.LogLevel, value)
		case "HTTP_PORT":
			mapInt(&cfg.HTTPPort, key, value, problems)
		case "DATABASE_URL":
			mapString(&cfg.DatabaseURL, value)
		case "DB_MAX_CONNS":
			mapInt(&cfg.DBMaxConns, key, value, problems)
		case "DB_MIN_CONNS":
			mapInt(&cfg.DBMinConns, key, value, problems)
		case "BATCH_SIZE":
			mapInt(&cfg.BatchSize, key, value, problems)
		case "MAX_CONCURRENCY":
			mapInt(&cfg.MaxConcurrency, key, value, problems)
		case "PROCESSING_TIMEOUT_SECONDS":
			mapInt(&cfg.ProcessingTimeoutSec, key, value, problems)
		case "POLL_INTERVAL_SECONDS":
			mapInt(&cfg.PollIntervalSec, key, value, problems)
		case "DEDUP_WINDOW_DAYS":
			mapInt(&cfg.DedupWindowDays, key, value, problems)
		case "INSIGHT_SERVICE_URL":
			mapString(&cfg.InsightServiceURL, value)
		case "INSIGHT_TIMEOUT_MS":
			mapInt(&cfg.InsightTimeoutMS, key, value, problems)
		case "INSIGHT_RETRY_MAX":
			mapInt(&cfg.InsightRetryMax, key, value, problems)
		case "REDIS_ADDR":
			mapString(&cfg.RedisAddr, value)
		case "REDIS_PASSWORD":
			mapString(&cfg.RedisPassword, value)
		case "KAFKA_BROKERS":
			if list, ok := value.([]any); ok {
				cfg.KafkaBrokers = parseAnyCSV(list)
			} else if s, ok := value.(string); ok {
				cfg.KafkaBrokers = parseCSV(s)
			}
		case "KAFKA_CLIENT_ID":
			mapString(&cfg.KafkaClientID, value)
		case "KAFKA_TOPIC":
			mapString(&cfg.KafkaTopic, value)
		case "INFLUX_URL":
			mapString(&cfg.InfluxURL, value)
		case "INFLUX_TOKEN":
			mapString(&cfg.InfluxToken, value)
		case "INFLUX_ORG":
			mapString(&cfg.InfluxOrg, value)
		case "INFLUX_BUCKET":
			mapString(&cfg.InfluxBucket, value)
		case "OTEL_ENABLED":
			if b, ok := value.(bool); ok {
				cfg.OtelEnabled = b
			}
		case "OTEL_ENDPOINT":
			mapString(&cfg.OtelEndpoint, value)
		}
	}
}

func setString(dst *string, key string) {
	if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
		*dst = raw
	}
}

func setInt(dst *int, key string, problems *[]Problem) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*problems = append(*problems, Problem{Field: key, Message: key + " must be an integer"})
		return
	}
	*dst = v
}

func setBool(dst *bool, key string, problems *[]Problem) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	v, err := strconv.ParseBool(strings.ToLower(raw))
	if err != nil {
		*problems = append(*problems, Problem{Field: key, Message: key + " must be a boolean"})
		return
	}
	*dst = v
}

func setFloat(dst *float64, key string, problems *[]Problem) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*problems = append(*problems, Problem{Field: key, Message: key + " must be a number"})
		return
	}
	*dst = v
}

func mapString(dst *string, value any) {
	if s, ok := value.(string); ok && strings.TrimSpace(s) != "" {
		*dst = strings.TrimSpace(s)
	}
}

func mapInt(dst *int, key string, value any, problems *[]Problem) {
	switch v := value.(type) {
	case float64:
		*dst = int(v)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			*problems = append(*problems, Problem{Field: key, Message: key + " must be an integer"})
			return
		}
		*dst = parsed
	default:
		*problems = append(*problems, Problem{Field: key, Message: key + " must be an integer"})
	}
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func parseAnyCSV(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
