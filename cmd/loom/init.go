package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var initForce bool

// starterConfig is the template rendered into a new .loom.yaml. The
// permissions block is what the gateway loads as its rule table; the rest is
// project-level config merged over the global file.
type starterConfig struct {
	Anthropic struct {
		Model string `yaml:"model"`
	} `yaml:"anthropic"`
	Dispatch struct {
		MaxWorkers int  `yaml:"max_workers"`
		FailFast   bool `yaml:"fail_fast"`
	} `yaml:"dispatch"`
	Permissions struct {
		Mode  string   `yaml:"mode"`
		Allow []string `yaml:"allow"`
		Deny  []string `yaml:"deny"`
	} `yaml:"permissions"`
}

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Create a starter .loom.yaml in the target directory",
	Long: `Init writes a commented starter .loom.yaml with a permissions block the
gateway enforces on every tool call. Edit the allow and deny lists to fit
the project before running tasks against it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targetDir := "."
		if len(args) > 0 {
			targetDir = args[0]
		}
		absPath, err := filepath.Abs(targetDir)
		if err != nil {
			return fmt.Errorf("resolve path: %w", err)
		}
		if err := os.MkdirAll(absPath, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", absPath, err)
		}

		fmt.Printf("Initializing loom in %s...\n\n", absPath)

		configPath := filepath.Join(absPath, ".loom.yaml")
		if _, err := os.Stat(configPath); err == nil && !initForce {
			printStatus("⚠", ".loom.yaml already exists (use --force to overwrite)", color.FgYellow)
			return nil
		}

		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			printStatus("⚠", "ANTHROPIC_API_KEY not set (you can set it later)", color.FgYellow)
		} else {
			printStatus("✓", "ANTHROPIC_API_KEY is set", color.FgGreen)
		}

		if err := writeStarterConfig(configPath); err != nil {
			return err
		}
		printStatus("✓", "Created .loom.yaml", color.FgGreen)

		fmt.Printf("\n%s loom initialization complete!\n\n", color.GreenString("✓"))
		fmt.Println("Next steps:")
		fmt.Println("  1. Review the permissions block in .loom.yaml")
		fmt.Println("  2. Run a task:")
		fmt.Println("     loom run \"describe what you want done\"")
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing .loom.yaml")
}

func writeStarterConfig(path string) error {
	var cfg starterConfig
	cfg.Anthropic.Model = "claude-sonnet-4-20250514"
	cfg.Dispatch.MaxWorkers = 4
	cfg.Dispatch.FailFast = false
	cfg.Permissions.Mode = "default"
	cfg.Permissions.Allow = []string{
		"Read",
		"Glob",
		"ListDir",
		"MemoryGet",
		"MemorySet",
		"Bash:git status",
		"Bash:git diff*",
	}
	cfg.Permissions.Deny = []string{
		"Read:.env",
		"Read:secrets/**",
		"Bash:rm -rf*",
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("render config template: %w", err)
	}

	header := []byte(`# loom project configuration.
# The permissions block is enforced by the tool gateway: deny rules always
# win, allow rules skip the approval prompt, everything else asks.
`)
	if err := os.WriteFile(path, append(header, out...), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func printStatus(symbol, message string, attr color.Attribute) {
	c := color.New(attr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
