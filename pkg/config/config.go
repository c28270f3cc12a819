package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Logger      LoggerConfig
	Storage     StorageConfig
	Embedding   EmbeddingConfig
	Rerank      RerankConfig
	LLM         LLMConfig
	GigaChat    GigaChatConfig
	VectorIndex VectorIndexConfig
	Cache       CacheConfig
	Ingest      IngestConfig
	Retrieval   RetrievalConfig
	Chat        ChatConfig
}

type LoggerConfig struct {
	Level  string
	Format string // json or console
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	DBName      string
	SSLMode     string
	MaxConns    int32
	AutoMigrate bool
}

// JWTConfig only carries what is needed to verify bearer tokens; issuance
// lives in the identity service.
type JWTConfig struct {
	SecretKey string
	Issuer    string
}

type StorageConfig struct {
	Dir string
}

type EmbeddingConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	BatchSize   int
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Timeout     time.Duration
}

type RerankConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type LLMConfig struct {
	Provider      string // openai or gigachat
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	StreamTimeout time.Duration
}

type GigaChatConfig struct {
	APIKey             string
	Scope              string
	InsecureSkipVerify bool
}

type VectorIndexConfig struct {
	Backend  string // chroma or memory
	URL      string
	Tenant   string
	Database string
	APIKey   string
	Timeout  time.Duration
}

type CacheConfig struct {
	Enabled bool
	Dir     string // empty keeps the cache in memory
	TTL     time.Duration
}

type IngestConfig struct {
	ChunkSize      int
	ChunkOverlap   int
	ChunkStrategy  string
	ParseStrategy  string
	EmbeddingModel string
	Workers        int
	RunTimeout     time.Duration
}

type RetrievalConfig struct {
	TopK int
}

type ChatConfig struct {
	MaxTurns       int
	DefaultModel   string
	TitleModel     string
	MaxTokens      int
	AutoTitle      bool
	TitleWorkers   int
	TitleMaxLength int
}

func Load() (*Config, error) {
	// .env is optional; plain environment variables work the same (Docker/K8s)
	for _, envFile := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	embeddingKey := getEnv("EMBEDDING_API_KEY", getEnv("SILICONFLOW_API_KEY", ""))

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getSeconds("SERVER_READ_TIMEOUT", 30),
			WriteTimeout: getSeconds("SERVER_WRITE_TIMEOUT", 0),
		},
		Database: DatabaseConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnv("DB_PORT", "5432"),
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", "postgres"),
			DBName:      getEnv("DB_NAME", "kb_rag"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			MaxConns:    int32(getInt("DB_MAX_CONNS", 10)),
			AutoMigrate: getBool("DB_AUTO_MIGRATE", false),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET_KEY", "your-secret-key-change-in-production"),
			Issuer:    getEnv("JWT_ISSUER", ""),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Storage: StorageConfig{
			Dir: getEnv("STORAGE_DIR", "uploads"),
		},
		Embedding: EmbeddingConfig{
			BaseURL:     getEnv("EMBEDDING_BASE_URL", "https://api.siliconflow.cn/v1"),
			APIKey:      embeddingKey,
			Model:       getEnv("EMBEDDING_MODEL_DEFAULT", "BAAI/bge-m3"),
			BatchSize:   getInt("EMBEDDING_BATCH_SIZE", 32),
			MaxAttempts: getInt("EMBEDDING_MAX_ATTEMPTS", 5),
			BaseDelay:   getDuration("EMBEDDING_RETRY_BASE_DELAY", time.Second),
			MaxDelay:    getDuration("EMBEDDING_RETRY_MAX_DELAY", 10*time.Second),
			Timeout:     getSeconds("EMBEDDING_TIMEOUT", 60),
		},
		Rerank: RerankConfig{
			BaseURL: getEnv("RERANK_BASE_URL", "https://api.siliconflow.cn/v1"),
			APIKey:  getEnv("RERANK_API_KEY", embeddingKey),
			Model:   getEnv("RERANK_MODEL", "BAAI/bge-reranker-v2-m3"),
			Timeout: getSeconds("RERANK_TIMEOUT", 120),
		},
		LLM: LLMConfig{
			Provider:      getEnv("LLM_PROVIDER", "openai"),
			BaseURL:       getEnv("LLM_API_BASE", "https://api.siliconflow.cn/v1"),
			APIKey:        getEnv("LLM_API_KEY", embeddingKey),
			Timeout:       getSeconds("LLM_TIMEOUT", 60),
			StreamTimeout: getSeconds("LLM_STREAM_TIMEOUT", 600),
		},
		GigaChat: GigaChatConfig{
			APIKey:             getEnv("GIGACHAT_API_KEY", ""),
			Scope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			InsecureSkipVerify: getBool("GIGACHAT_INSECURE_SKIP_VERIFY", false),
		},
		VectorIndex: VectorIndexConfig{
			Backend:  getEnv("VECTOR_BACKEND", "chroma"),
			URL:      getEnv("CHROMA_URL", "http://localhost:8000"),
			Tenant:   getEnv("CHROMA_TENANT", "default_tenant"),
			Database: getEnv("CHROMA_DATABASE", "default_database"),
			APIKey:   getEnv("CHROMA_API_KEY", ""),
			Timeout:  getSeconds("CHROMA_TIMEOUT", 30),
		},
		Cache: CacheConfig{
			Enabled: getBool("CACHE_ENABLED", true),
			Dir:     getEnv("CACHE_DIR", ""),
			TTL:     getDuration("CACHE_TTL", 24*time.Hour),
		},
		Ingest: IngestConfig{
			ChunkSize:      getInt("CHUNK_SIZE_DEFAULT", 1000),
			ChunkOverlap:   getInt("CHUNK_OVERLAP_DEFAULT", 200),
			ChunkStrategy:  getEnv("CHUNK_STRATEGY_DEFAULT", "recursive"),
			ParseStrategy:  getEnv("PARSE_STRATEGY_DEFAULT", "auto"),
			EmbeddingModel: getEnv("EMBEDDING_MODEL_DEFAULT", "BAAI/bge-m3"),
			Workers:        getInt("INGEST_WORKERS", 4),
			RunTimeout:     getDuration("INGEST_RUN_TIMEOUT", 30*time.Minute),
		},
		Retrieval: RetrievalConfig{
			TopK: getInt("RAG_TOP_K", 5),
		},
		Chat: ChatConfig{
			MaxTurns:       getInt("LLM_MAX_TURNS", 10),
			DefaultModel:   getEnv("LLM_DEFAULT_MODEL", "Qwen/Qwen2.5-7B-Instruct"),
			TitleModel:     getEnv("LLM_TITLE_MODEL", ""),
			MaxTokens:      getInt("LLM_MAX_TOKENS", 1024),
			AutoTitle:      getBool("TITLE_AUTO_GENERATE", true),
			TitleWorkers:   getInt("TITLE_WORKERS", 2),
			TitleMaxLength: getInt("TITLE_MAX_LENGTH_CHARS", 40),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getInt(key, defaultValue)) * time.Second
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return d
}
