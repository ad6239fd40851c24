package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"scribe/client/completion"
	"scribe/config"
	"scribe/engine"
	"scribe/logger"
	"scribe/provider"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	logLevel   string
)

// rootCmd relays stdio to the daemon, starting it when needed. Neovim spawns
// this as its rpc job.
var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Inline writing suggestions for Neovim",
	Long: `scribe suggests continuations and corrections while you write.

Run without arguments to relay an editor's msgpack-rpc channel to the scribe
daemon, starting the daemon when it is not running.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runClient()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultPath("scribe.yaml"), "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (trace, debug, info, warn, error)")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(correctCmd)
	rootCmd.AddCommand(actionCmd)
}

// defaultPath returns name inside the directory holding the executable
func defaultPath(name string) string {
	execPath, err := os.Executable()
	if err != nil {
		log.Fatalf("error getting executable path: %v", err)
	}
	return filepath.Join(filepath.Dir(execPath), name)
}

func getSocketPath() string {
	return defaultPath("scribe.sock")
}

func getPidPath() string {
	return defaultPath("scribe.pid")
}

// setupLogger logs to a file next to the executable.
// Caller must defer logger.Close()
func setupLogger(level string) *logger.LimitedLogger {
	logPath := defaultPath("scribe.log")
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening file: %v", err)
	}

	limitedLogger := logger.NewLimitedLogger(f, logger.ParseLogLevel(level))
	log.SetOutput(limitedLogger)
	return limitedLogger
}

func isDaemonRunning() (bool, int) {
	data, err := os.ReadFile(getPidPath())
	if err != nil {
		return false, 0
	}

	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return false, 0
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, 0
	}

	// On Unix, Signal(0) checks if process exists
	err = process.Signal(syscall.Signal(0))
	return err == nil, pid
}

// loadConfig loads the config file and applies the --log-level flag
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

func newProvider(cfg *config.Config) *provider.Provider {
	pc := cfg.ProviderConfig()
	client := completion.NewClient(pc.Endpoint, pc.APIKey, pc.Model, pc.CompletionTimeout)
	client.Compression = pc.Compression
	return provider.NewProvider(pc, client)
}

// engineConfig maps the file config onto the engine settings
func engineConfig(cfg *config.Config) engine.EngineConfig {
	ec := engine.DefaultEngineConfig()
	ec.Debounce = cfg.Debounce()
	ec.CompletionTimeout = time.Duration(cfg.CompletionTimeoutMs) * time.Millisecond
	ec.MinContextChars = cfg.MinContextChars
	ec.NextParagraphChars = cfg.NextParagraphChars
	ec.EnableContinuations = cfg.EnableContinuations
	ec.EnableReplacements = cfg.EnableReplacements
	ec.UseAutocorrecting = cfg.UseAutocorrecting
	return ec
}

func runClient() error {
	client := NewClient()

	if err := client.EnsureDaemonRunning(); err != nil {
		return fmt.Errorf("error ensuring daemon is running: %w", err)
	}

	if err := client.Connect(); err != nil {
		return fmt.Errorf("error connecting to daemon: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
