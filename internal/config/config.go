package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port string

	// Auth
	TexdeskAPIKey string

	// Document store
	StorageDir        string
	MaxUploadBytes    int64
	AllowedExtensions []string

	// PDF compilation
	CompilerBinary        string
	CompilerPasses        int
	CompilerPassTimeout   time.Duration
	CompilerLogTail       int
	CompilerMaxConcurrent int
	ScratchDir            string
	PDFFilename           string

	// Preview
	PreviewPollInterval time.Duration
	RenderTimeout       time.Duration
	MathMacros          map[string]string

	// Homework assistant
	AnthropicAPIKey           string
	AnthropicModel            string
	AssistantEnabled          bool
	AssistantMaxContextTokens int

	// Job state
	JobTTL time.Duration
}

// DefaultMathMacros are the number-set shorthands seeded into every renderer.
func DefaultMathMacros() map[string]string {
	return map[string]string{
		`\R`: `\mathbb{R}`,
		`\N`: `\mathbb{N}`,
		`\Z`: `\mathbb{Z}`,
		`\Q`: `\mathbb{Q}`,
		`\C`: `\mathbb{C}`,
	}
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		TexdeskAPIKey: os.Getenv("TEXDESK_API_KEY"),

		StorageDir:        envOr("STORAGE_DIR", "./storage"),
		MaxUploadBytes:    envInt64("MAX_UPLOAD_BYTES", 10485760), // 10MB
		AllowedExtensions: envList("ALLOWED_EXTENSIONS", []string{".tex"}),

		CompilerBinary:        envOr("COMPILER_BINARY", "pdflatex"),
		CompilerPasses:        envInt("COMPILER_PASSES", 2),
		CompilerPassTimeout:   envDuration("COMPILER_PASS_TIMEOUT", 30*time.Second),
		CompilerLogTail:       envInt("COMPILER_LOG_TAIL", 1000),
		CompilerMaxConcurrent: envInt("COMPILER_MAX_CONCURRENT", 2),
		ScratchDir:            os.Getenv("SCRATCH_DIR"),
		PDFFilename:           envOr("PDF_FILENAME", "homework.pdf"),

		PreviewPollInterval: envDuration("PREVIEW_POLL_INTERVAL", 2*time.Second),
		RenderTimeout:       envDuration("RENDER_TIMEOUT", 10*time.Second),
		MathMacros:          DefaultMathMacros(),

		AnthropicAPIKey:           os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:            envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
		AssistantEnabled:          envBool("ASSISTANT_ENABLED", true),
		AssistantMaxContextTokens: envInt("ASSISTANT_MAX_CONTEXT_TOKENS", 6000),

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),
	}

	cfg.applyDefaults()
	return cfg
}

// applyDefaults clamps out-of-range values back to their defaults.
func (c *Config) applyDefaults() {
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 10485760
	}
	if len(c.AllowedExtensions) == 0 {
		c.AllowedExtensions = []string{".tex"}
	}
	if c.CompilerPasses <= 0 {
		c.CompilerPasses = 2
	}
	if c.CompilerPassTimeout <= 0 {
		c.CompilerPassTimeout = 30 * time.Second
	}
	if c.CompilerLogTail <= 0 {
		c.CompilerLogTail = 1000
	}
	if c.CompilerMaxConcurrent <= 0 {
		c.CompilerMaxConcurrent = 2
	}
	if c.PDFFilename == "" {
		c.PDFFilename = "homework.pdf"
	}
	if c.PreviewPollInterval <= 0 {
		c.PreviewPollInterval = 2 * time.Second
	}
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = 10 * time.Second
	}
	if c.MathMacros == nil {
		c.MathMacros = DefaultMathMacros()
	}
	if c.AssistantMaxContextTokens <= 0 {
		c.AssistantMaxContextTokens = 6000
	}
	if c.JobTTL <= 0 {
		c.JobTTL = 1 * time.Hour
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.StorageDir) == "" {
		return fmt.Errorf("STORAGE_DIR is required")
	}
	if c.CompilerBinary == "" {
		return fmt.Errorf("COMPILER_BINARY is required")
	}
	for _, ext := range c.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("ALLOWED_EXTENSIONS entry %q must start with a dot", ext)
		}
	}
	if c.AssistantEnabled && c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when the assistant is enabled")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
