package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
}

// NewWizard creates a new configuration wizard
func NewWizard() *Wizard {
	return &Wizard{
		reader: bufio.NewReader(os.Stdin),
	}
}

// Run runs the interactive configuration wizard
func (w *Wizard) Run() (*Config, error) {
	fmt.Println("=== Run Supervisor Configuration Wizard ===")
	fmt.Println()

	cfg := DefaultConfig()
	validator := NewValidator()

	// API Keys
	fmt.Println("API Keys (at least one is required):")
	fmt.Println()

	// Anthropic API Key
	for {
		fmt.Print("Anthropic API Key (press Enter to skip): ")
		key, err := w.readLine()
		if err != nil {
			return nil, err
		}

		if key == "" {
			break
		}

		if err := validator.ValidateAPIKey(key, "anthropic"); err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		cfg.Providers = append(cfg.Providers, ProviderProfile{Provider: "anthropic", APIKey: key, Priority: 0})
		break
	}

	// OpenAI API Key
	for {
		fmt.Print("OpenAI API Key (press Enter to skip): ")
		key, err := w.readLine()
		if err != nil {
			return nil, err
		}

		if key == "" {
			break
		}

		if err := validator.ValidateAPIKey(key, "openai"); err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		cfg.Providers = append(cfg.Providers, ProviderProfile{Provider: "openai", APIKey: key, Priority: 1})
		break
	}

	// Check if at least one API key is provided
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("at least one API key is required")
	}

	fmt.Println()

	// Routing
	fmt.Println("Routing:")
	fmt.Println()
	fmt.Println("Model class options:")
	fmt.Println("  default      - Any registered model (default)")
	fmt.Println("  frontier     - Highest-capability models")
	fmt.Println("  fast         - Low-latency models")
	fmt.Println("  long_context - Large context windows")
	fmt.Println("  cheap        - Lowest-cost models")
	fmt.Print("Default model class [default]: ")
	class, err := w.readLine()
	if err != nil {
		return nil, err
	}

	if class != "" {
		if err := validator.ValidateModelClass(class); err != nil {
			fmt.Printf("Warning: %v, using default\n", err)
		} else {
			cfg.Routing.DefaultClass = class
		}
	}

	fmt.Println()

	// Tool name policy
	fmt.Println("Tool name policy:")
	fmt.Println("  sanitize - Rewrite illegal tool names for the provider (default)")
	fmt.Println("  strict   - Refuse runs with invalid or colliding tool names")
	fmt.Print("Tool name policy [sanitize]: ")
	policy, err := w.readLine()
	if err != nil {
		return nil, err
	}

	if policy != "" {
		if err := validator.ValidateToolNamePolicy(policy); err != nil {
			fmt.Printf("Warning: %v, using default (sanitize)\n", err)
		} else {
			cfg.ToolNamePolicy = policy
		}
	}

	fmt.Println()

	// Log Level
	fmt.Println("Logging:")
	fmt.Print("Log level (debug/info/warn/error) [info]: ")
	level, err := w.readLine()
	if err != nil {
		return nil, err
	}

	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			fmt.Printf("Warning: %v, using default (info)\n", err)
		} else {
			cfg.Logging.Level = level
		}
	}

	fmt.Println()
	fmt.Println("Configuration complete!")

	return cfg, nil
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
