package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig       `toml:"app" yaml:"app"`
	Log       LogConfig       `toml:"log" yaml:"log"`
	Auth      AuthConfig      `toml:"auth" yaml:"auth"`
	Runtime   RuntimeConfig   `toml:"runtime" yaml:"runtime"`
	Index     IndexConfig     `toml:"index" yaml:"index"`
	Corpus    CorpusConfig    `toml:"corpus" yaml:"corpus"`
	Retrieval RetrievalConfig `toml:"retrieval" yaml:"retrieval"`
	Answer    AnswerConfig    `toml:"answer" yaml:"answer"`
	LLM       LLMConfig       `toml:"llm" yaml:"llm"`
	Memory    MemoryConfig    `toml:"memory" yaml:"memory"`
	MySQL     MySQLConfig     `toml:"mysql" yaml:"mysql"`
	Redis     RedisConfig     `toml:"redis" yaml:"redis"`
	RabbitMQ  RabbitMQConfig  `toml:"rabbitmq" yaml:"rabbitmq"`
}

type AppConfig struct {
	Name    string `toml:"name" yaml:"name"`
	Env     string `toml:"env" yaml:"env"`
	Host    string `toml:"host" yaml:"host"`
	Port    int    `toml:"port" yaml:"port"`
	GinMode string `toml:"gin_mode" yaml:"gin_mode"`
}

type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
	File   string `toml:"file" yaml:"file"`
}

type AuthConfig struct {
	JWTSecret       string `toml:"jwt_secret" yaml:"jwt_secret"`
	JWTExpireMinute int    `toml:"jwt_expire_minute" yaml:"jwt_expire_minute"`
}

// RuntimeConfig points at the agent runtime (Llama Stack compatible API).
type RuntimeConfig struct {
	BaseURL        string `toml:"base_url" yaml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
}

type IndexConfig struct {
	VectorDBID         string `toml:"vector_db_id" yaml:"vector_db_id"`
	EmbeddingModel     string `toml:"embedding_model" yaml:"embedding_model"`
	EmbeddingDimension int    `toml:"embedding_dimension" yaml:"embedding_dimension"`
	ProviderID         string `toml:"provider_id" yaml:"provider_id"`
	ChunkSizeTokens    int    `toml:"chunk_size_tokens" yaml:"chunk_size_tokens"`
	ListingTopK        int    `toml:"listing_top_k" yaml:"listing_top_k"`
}

type CorpusConfig struct {
	DocsDir         string   `toml:"docs_dir" yaml:"docs_dir"`
	Extensions      []string `toml:"extensions" yaml:"extensions"`
	EnablePDF       bool     `toml:"enable_pdf" yaml:"enable_pdf"`
	Watch           bool     `toml:"watch" yaml:"watch"`
	WatchDebounceMS int      `toml:"watch_debounce_ms" yaml:"watch_debounce_ms"`
}

type RetrievalConfig struct {
	TopK         int    `toml:"top_k" yaml:"top_k"`
	Instructions string `toml:"instructions" yaml:"instructions"`
}

type AnswerConfig struct {
	Engine            string   `toml:"engine" yaml:"engine"`
	Model             string   `toml:"model" yaml:"model"`
	Instructions      string   `toml:"instructions" yaml:"instructions"`
	Preamble          string   `toml:"preamble" yaml:"preamble"`
	ToolGroups        []string `toml:"tool_groups" yaml:"tool_groups"`
	WithRetrievalTool bool     `toml:"with_retrieval_tool" yaml:"with_retrieval_tool"`
}

// LLMConfig is used when answer.engine is "openai".
type LLMConfig struct {
	BaseURL string `toml:"base_url" yaml:"base_url"`
	APIKey  string `toml:"api_key" yaml:"api_key"`
	Model   string `toml:"model" yaml:"model"`
}

type MemoryConfig struct {
	Backend         string `toml:"backend" yaml:"backend"`
	DefaultThread   string `toml:"default_thread" yaml:"default_thread"`
	MaxHistoryTurns int    `toml:"max_history_turns" yaml:"max_history_turns"`
	SQLitePath      string `toml:"sqlite_path" yaml:"sqlite_path"`
}

type MySQLConfig struct {
	Host     string `toml:"host" yaml:"host"`
	Port     int    `toml:"port" yaml:"port"`
	User     string `toml:"user" yaml:"user"`
	Password string `toml:"password" yaml:"password"`
	DB       string `toml:"db" yaml:"db"`
	Params   string `toml:"params" yaml:"params"`
}

// RedisConfig enables the history cache when Addr is set.
type RedisConfig struct {
	Addr              string `toml:"addr" yaml:"addr"`
	Password          string `toml:"password" yaml:"password"`
	DB                int    `toml:"db" yaml:"db"`
	HistoryTTLSeconds int    `toml:"history_ttl_seconds" yaml:"history_ttl_seconds"`
}

// RabbitMQConfig enables queued ingestion when URL is set.
type RabbitMQConfig struct {
	URL         string `toml:"url" yaml:"url"`
	IngestQueue string `toml:"ingest_queue" yaml:"ingest_queue"`
}

const (
	MemoryBackendSQLite = "sqlite"
	MemoryBackendMySQL  = "mysql"

	AnswerEngineAgent  = "agent"
	AnswerEngineOpenAI = "openai"
)

// Load reads CONFIG_FILE (default configs/config.toml) on top of the defaults,
// then applies .env and environment overrides.
func Load() (*Config, error) {
	return LoadFile(getEnv("CONFIG_FILE", "configs/config.toml"))
}

func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("load .env failed: %w", err)
		}
	}

	cfg := defaultConfig()
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	overrideByEnv(cfg)
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file failed: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return fmt.Errorf("decode yaml config failed: %w", err)
		}
	default:
		if _, err := toml.Decode(string(raw), cfg); err != nil {
			return fmt.Errorf("decode config file failed: %w", err)
		}
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.App.Host, c.App.Port)
}

func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		c.MySQL.User,
		c.MySQL.Password,
		c.MySQL.Host,
		c.MySQL.Port,
		c.MySQL.DB,
		c.MySQL.Params,
	)
}

// CorpusRoot is the directory scanned for the configured index: <docs_dir>/<vector_db_id>.
func (c *Config) CorpusRoot() string {
	return filepath.Join(c.Corpus.DocsDir, c.Index.VectorDBID)
}

// Validate reports every missing required key at once.
func (c *Config) Validate() error {
	var missing []string
	require := func(ok bool, key string) {
		if !ok {
			missing = append(missing, key)
		}
	}

	require(strings.TrimSpace(c.Runtime.BaseURL) != "", "runtime.base_url")
	require(strings.TrimSpace(c.Index.VectorDBID) != "", "index.vector_db_id")
	require(strings.TrimSpace(c.Index.EmbeddingModel) != "", "index.embedding_model")
	require(c.Index.EmbeddingDimension > 0, "index.embedding_dimension")
	require(c.Index.ChunkSizeTokens > 0, "index.chunk_size_tokens")
	require(strings.TrimSpace(c.Corpus.DocsDir) != "", "corpus.docs_dir")
	require(strings.TrimSpace(c.Memory.DefaultThread) != "", "memory.default_thread")

	switch c.Answer.Engine {
	case AnswerEngineAgent:
		require(strings.TrimSpace(c.Answer.Model) != "", "answer.model")
	case AnswerEngineOpenAI:
		require(strings.TrimSpace(c.LLM.BaseURL) != "", "llm.base_url")
		require(strings.TrimSpace(c.LLM.APIKey) != "", "llm.api_key")
		require(strings.TrimSpace(c.LLM.Model) != "", "llm.model")
	default:
		missing = append(missing, fmt.Sprintf("answer.engine (unknown %q)", c.Answer.Engine))
	}
	// Retrieval always runs through an agent turn, so the runtime needs a model.
	require(strings.TrimSpace(c.Answer.Model) != "", "answer.model")

	switch c.Memory.Backend {
	case MemoryBackendSQLite:
		require(strings.TrimSpace(c.Memory.SQLitePath) != "", "memory.sqlite_path")
	case MemoryBackendMySQL:
		require(strings.TrimSpace(c.MySQL.Host) != "", "mysql.host")
		require(strings.TrimSpace(c.MySQL.DB) != "", "mysql.db")
	default:
		missing = append(missing, fmt.Sprintf("memory.backend (unknown %q)", c.Memory.Backend))
	}

	if c.RabbitMQ.URL != "" {
		require(strings.TrimSpace(c.RabbitMQ.IngestQueue) != "", "rabbitmq.ingest_queue")
	}

	if len(missing) > 0 {
		return fmt.Errorf("invalid config, missing or invalid keys: %s", dedupe(missing))
	}
	return nil
}

func dedupe(keys []string) string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return strings.Join(out, ", ")
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:    "chai",
			Env:     "dev",
			Host:    "0.0.0.0",
			Port:    8080,
			GinMode: "debug",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Auth: AuthConfig{
			JWTExpireMinute: 720,
		},
		Runtime: RuntimeConfig{
			BaseURL:        "http://localhost:8321",
			TimeoutSeconds: 120,
		},
		Index: IndexConfig{
			VectorDBID:         "demo",
			EmbeddingModel:     "all-MiniLM-L6-v2",
			EmbeddingDimension: 384,
			ProviderID:         "faiss",
			ChunkSizeTokens:    512,
			ListingTopK:        1000,
		},
		Corpus: CorpusConfig{
			DocsDir:         "docs",
			Extensions:      []string{".md", ".txt", ".adoc", ".jsonl"},
			EnablePDF:       true,
			WatchDebounceMS: 2000,
		},
		Retrieval: RetrievalConfig{
			TopK:         5,
			Instructions: "Use the RAG tool to retrieve helpful ChRIS-related context.",
		},
		Answer: AnswerConfig{
			Engine:       AnswerEngineAgent,
			Model:        "llama3.2:3b",
			Instructions: "Respond using retrieved context only. No assumptions.",
			Preamble: "You are an expert assistant for the ChRIS platform.\n" +
				"Use only the provided documentation context to answer the question clearly and accurately.",
		},
		Memory: MemoryConfig{
			Backend:         MemoryBackendSQLite,
			DefaultThread:   "chat_memory",
			MaxHistoryTurns: 20,
			SQLitePath:      ".chai/memory.db",
		},
		MySQL: MySQLConfig{
			Host:   "127.0.0.1",
			Port:   3306,
			User:   "root",
			DB:     "chai",
			Params: "parseTime=true&loc=UTC&charset=utf8mb4",
		},
		Redis: RedisConfig{
			HistoryTTLSeconds: 60,
		},
		RabbitMQ: RabbitMQConfig{
			IngestQueue: "chai.ingest.reconcile",
		},
	}
}

func overrideByEnv(cfg *Config) {
	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.Host = getEnv("APP_HOST", cfg.App.Host)
	cfg.App.Port = getEnvAsInt("APP_PORT", cfg.App.Port)
	cfg.App.GinMode = getEnv("GIN_MODE", cfg.App.GinMode)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.JWTExpireMinute = getEnvAsInt("JWT_EXPIRE_MINUTE", cfg.Auth.JWTExpireMinute)

	cfg.Runtime.BaseURL = getEnv("RUNTIME_BASE_URL", cfg.Runtime.BaseURL)
	cfg.Runtime.TimeoutSeconds = getEnvAsInt("RUNTIME_TIMEOUT_SECONDS", cfg.Runtime.TimeoutSeconds)

	cfg.Index.VectorDBID = getEnv("INDEX_VECTOR_DB_ID", cfg.Index.VectorDBID)
	cfg.Index.EmbeddingModel = getEnv("INDEX_EMBEDDING_MODEL", cfg.Index.EmbeddingModel)
	cfg.Index.EmbeddingDimension = getEnvAsInt("INDEX_EMBEDDING_DIMENSION", cfg.Index.EmbeddingDimension)
	cfg.Index.ProviderID = getEnv("INDEX_PROVIDER_ID", cfg.Index.ProviderID)
	cfg.Index.ChunkSizeTokens = getEnvAsInt("INDEX_CHUNK_SIZE_TOKENS", cfg.Index.ChunkSizeTokens)
	cfg.Index.ListingTopK = getEnvAsInt("INDEX_LISTING_TOP_K", cfg.Index.ListingTopK)

	cfg.Corpus.DocsDir = getEnv("CORPUS_DOCS_DIR", cfg.Corpus.DocsDir)
	cfg.Corpus.Extensions = getEnvAsList("CORPUS_EXTENSIONS", cfg.Corpus.Extensions)
	cfg.Corpus.EnablePDF = getEnvAsBool("CORPUS_ENABLE_PDF", cfg.Corpus.EnablePDF)
	cfg.Corpus.Watch = getEnvAsBool("CORPUS_WATCH", cfg.Corpus.Watch)
	cfg.Corpus.WatchDebounceMS = getEnvAsInt("CORPUS_WATCH_DEBOUNCE_MS", cfg.Corpus.WatchDebounceMS)

	cfg.Retrieval.TopK = getEnvAsInt("RETRIEVAL_TOP_K", cfg.Retrieval.TopK)
	cfg.Retrieval.Instructions = getEnv("RETRIEVAL_INSTRUCTIONS", cfg.Retrieval.Instructions)

	cfg.Answer.Engine = getEnv("ANSWER_ENGINE", cfg.Answer.Engine)
	cfg.Answer.Model = getEnv("ANSWER_MODEL", cfg.Answer.Model)
	cfg.Answer.Instructions = getEnv("ANSWER_INSTRUCTIONS", cfg.Answer.Instructions)
	cfg.Answer.Preamble = getEnv("ANSWER_PREAMBLE", cfg.Answer.Preamble)
	cfg.Answer.ToolGroups = getEnvAsList("ANSWER_TOOL_GROUPS", cfg.Answer.ToolGroups)
	cfg.Answer.WithRetrievalTool = getEnvAsBool("ANSWER_WITH_RETRIEVAL_TOOL", cfg.Answer.WithRetrievalTool)

	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = getEnv("LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)

	cfg.Memory.Backend = getEnv("MEMORY_BACKEND", cfg.Memory.Backend)
	cfg.Memory.DefaultThread = getEnv("MEMORY_DEFAULT_THREAD", cfg.Memory.DefaultThread)
	cfg.Memory.MaxHistoryTurns = getEnvAsInt("MEMORY_MAX_HISTORY_TURNS", cfg.Memory.MaxHistoryTurns)
	cfg.Memory.SQLitePath = getEnv("MEMORY_SQLITE_PATH", cfg.Memory.SQLitePath)

	cfg.MySQL.Host = getEnv("MYSQL_HOST", cfg.MySQL.Host)
	cfg.MySQL.Port = getEnvAsInt("MYSQL_PORT", cfg.MySQL.Port)
	cfg.MySQL.User = getEnv("MYSQL_USER", cfg.MySQL.User)
	cfg.MySQL.Password = getEnv("MYSQL_PASSWORD", cfg.MySQL.Password)
	cfg.MySQL.DB = getEnv("MYSQL_DB", cfg.MySQL.DB)
	cfg.MySQL.Params = getEnv("MYSQL_PARAMS", cfg.MySQL.Params)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.HistoryTTLSeconds = getEnvAsInt("REDIS_HISTORY_TTL_SECONDS", cfg.Redis.HistoryTTLSeconds)

	cfg.RabbitMQ.URL = getEnv("RABBITMQ_URL", cfg.RabbitMQ.URL)
	cfg.RabbitMQ.IngestQueue = getEnv("RABBITMQ_INGEST_QUEUE", cfg.RabbitMQ.IngestQueue)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvAsList splits a comma separated value; an empty value keeps the fallback.
func getEnvAsList(key string, fallback []string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
