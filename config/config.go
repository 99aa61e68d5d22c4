package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MaxWorkers     int
	JobCount       int
	Ratelimit      int
	RatelimitBurst int
	Port           string
	NatsURL        string
	NatsQueue      string

	Environment string

	BetterStackUploadURL   string
	BetterStackSourceToken string

	// toolchain
	GppPath    string
	CppFlags   []string
	PythonPath string
	NodePath   string

	// execution limits
	WorkspaceRoot  string
	RunTimeout     time.Duration
	CompileTimeout time.Duration
	MaxOutputBytes int
	MaxCodeLength  int
	MaxStdinLength int
	MaxTestCases   int

	// "local" runs directly on the host, "docker" wraps the run phase in a container
	Sandbox         string
	DockerBin       string
	SandboxImage    string
	SandboxMemoryMB int
	SandboxPids     int
	SandboxGrace    time.Duration

	RedisURL      string
	RedisPassword string
	RedisDB       int
	ResultTTL     time.Duration
}

func LoadConfig() Config {
	err := godotenv.Load(".env")
	if err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	return Config{
		MaxWorkers:     getEnvInt("MAX_WORKERS", 4),
		JobCount:       getEnvInt("JOB_COUNT", 64),
		Ratelimit:      getEnvInt("RATELIMIT", 5),
		RatelimitBurst: getEnvInt("RATELIMIT_BURST", 10),
		Port:           getEnv("PORT", "8080"),
		NatsURL:        getEnv("NATSURL", ""),
		NatsQueue:      getEnv("NATS_QUEUE", "arenaengine"),
		Environment:    getEnv("ENVIRONMENT", "production"),

		BetterStackUploadURL:   getEnv("BETTERSTACKUPLOADURL", ""),
		BetterStackSourceToken: getEnv("BETTERSTACKSOURCETOKEN", ""),

		GppPath:    getEnv("GPP_PATH", "/usr/bin/g++"),
		CppFlags:   strings.Fields(getEnv("CPP_FLAGS", "-O2 -std=c++17")),
		PythonPath: getEnv("PYTHON_PATH", "/usr/bin/python3"),
		NodePath:   getEnv("NODE_PATH", "/usr/bin/node"),

		WorkspaceRoot:  getEnv("WORKSPACE_ROOT", filepath.Join(os.TempDir(), "arenaengine")),
		RunTimeout:     getEnvDuration("RUN_TIMEOUT", 2000*time.Millisecond),
		CompileTimeout: getEnvDuration("COMPILE_TIMEOUT", 10*time.Second),
		MaxOutputBytes: getEnvInt("MAX_OUTPUT_BYTES", 1<<20),
		MaxCodeLength:  getEnvInt("MAX_CODE_LENGTH", 64*1024),
		MaxStdinLength: getEnvInt("MAX_STDIN_LENGTH", 1<<20),
		MaxTestCases:   getEnvInt("MAX_TEST_CASES", 50),

		Sandbox:         getEnv("SANDBOX", "local"),
		DockerBin:       getEnv("DOCKER_BIN", "docker"),
		SandboxImage:    getEnv("SANDBOX_IMAGE", "arenaengine/runner:latest"),
		SandboxMemoryMB: getEnvInt("SANDBOX_MEMORY_MB", 256),
		SandboxPids:     getEnvInt("SANDBOX_PIDS", 64),
		SandboxGrace:    getEnvDuration("SANDBOX_STARTUP_GRACE", time.Second),

		RedisURL:      getEnv("REDISURL", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		ResultTTL:     getEnvDuration("RESULT_TTL", time.Hour),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("2s", "1500ms") or a bare
// integer, which is read as milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
