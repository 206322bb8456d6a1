package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// MaxFileSize limits the YAML overlay to 1MB.
var MaxFileSize = 1 << 20

var ErrFileTooLarge = errors.New("config: file exceeds maximum size")

// fileConfig mirrors Config for the YAML overlay. Pointer fields distinguish
// "absent" from the zero value so only keys present in the file override env.
type fileConfig struct {
	Port          *string `yaml:"port"`
	TexdeskAPIKey *string `yaml:"api_key"`

	Storage struct {
		Dir               *string  `yaml:"dir"`
		MaxUploadBytes    *int64   `yaml:"max_upload_bytes"`
		AllowedExtensions []string `yaml:"allowed_extensions"`
	} `yaml:"storage"`

	Compiler struct {
		Binary        *string        `yaml:"binary"`
		Passes        *int           `yaml:"passes"`
		PassTimeout   *time.Duration `yaml:"pass_timeout"`
		LogTail       *int           `yaml:"log_tail"`
		MaxConcurrent *int           `yaml:"max_concurrent"`
		ScratchDir    *string        `yaml:"scratch_dir"`
		PDFFilename   *string        `yaml:"pdf_filename"`
	} `yaml:"compiler"`

	Preview struct {
		PollInterval  *time.Duration    `yaml:"poll_interval"`
		RenderTimeout *time.Duration    `yaml:"render_timeout"`
		Macros        map[string]string `yaml:"macros"`
	} `yaml:"preview"`

	Assistant struct {
		Enabled          *bool   `yaml:"enabled"`
		Model            *string `yaml:"model"`
		MaxContextTokens *int    `yaml:"max_context_tokens"`
	} `yaml:"assistant"`

	JobTTL *time.Duration `yaml:"job_ttl"`
}

// LoadFile loads env configuration and overlays the YAML file at path.
// Unknown keys are rejected. An empty path behaves like Load.
func LoadFile(path string) (Config, error) {
	cfg := Load()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := cfg.overlay(data); err != nil {
		return cfg, fmt.Errorf("config file %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) overlay(data []byte) error {
	if len(data) > MaxFileSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, len(data), MaxFileSize)
	}
	if len(data) == 0 {
		return nil
	}

	var fc fileConfig
	if err := yaml.UnmarshalWithOptions(data, &fc, yaml.Strict()); err != nil {
		return err
	}

	setString(&c.Port, fc.Port)
	setString(&c.TexdeskAPIKey, fc.TexdeskAPIKey)

	setString(&c.StorageDir, fc.Storage.Dir)
	if fc.Storage.MaxUploadBytes != nil {
		c.MaxUploadBytes = *fc.Storage.MaxUploadBytes
	}
	if len(fc.Storage.AllowedExtensions) > 0 {
		c.AllowedExtensions = fc.Storage.AllowedExtensions
	}

	setString(&c.CompilerBinary, fc.Compiler.Binary)
	setInt(&c.CompilerPasses, fc.Compiler.Passes)
	setDuration(&c.CompilerPassTimeout, fc.Compiler.PassTimeout)
	setInt(&c.CompilerLogTail, fc.Compiler.LogTail)
	setInt(&c.CompilerMaxConcurrent, fc.Compiler.MaxConcurrent)
	setString(&c.ScratchDir, fc.Compiler.ScratchDir)
	setString(&c.PDFFilename, fc.Compiler.PDFFilename)

	setDuration(&c.PreviewPollInterval, fc.Preview.PollInterval)
	setDuration(&c.RenderTimeout, fc.Preview.RenderTimeout)
	for name, expansion := range fc.Preview.Macros {
		if c.MathMacros == nil {
			c.MathMacros = DefaultMathMacros()
		}
		c.MathMacros[name] = expansion
	}

	if fc.Assistant.Enabled != nil {
		c.AssistantEnabled = *fc.Assistant.Enabled
	}
	setString(&c.AnthropicModel, fc.Assistant.Model)
	setInt(&c.AssistantMaxContextTokens, fc.Assistant.MaxContextTokens)

	setDuration(&c.JobTTL, fc.JobTTL)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *time.Duration) {
	if v != nil {
		*dst = *v
	}
}
