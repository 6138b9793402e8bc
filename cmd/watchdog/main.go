package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http/cookiejar"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/net/publicsuffix"

	"github.com/docutag/watchdog"
	"github.com/docutag/watchdog/config"
	"github.com/docutag/watchdog/models"
	"github.com/docutag/watchdog/settings"
)

var (
	formatFlag   string
	settingsFlag string
	verboseFlag  bool
)

// rootCmd is the top-level command.
var rootCmd = &cobra.Command{
	Use:   "watchdog",
	Short: "Flag abusive and adult content on social pages",
	Long: "WatchDog extracts the visible text of YouTube, Instagram, X and generic pages, " +
		"scores it against a weighted lexicon or a remote classifier, and reports a verdict.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verboseFlag || cmd.Name() == "serve" {
			level = slog.LevelInfo
		}
		// Setup structured logging with JSON output
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "text", "Output format: json or text")
	rootCmd.PersistentFlags().StringVar(&settingsFlag, "settings", "", "Settings file (default: $WATCHDOG_SETTINGS_FILE or .env)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log at info level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads process configuration
func loadConfig() *config.Cfg {
	cfg, err := config.Load()
	if err != nil {
		exitErr("load config", err)
	}
	if settingsFlag != "" {
		cfg.SettingsFile = settingsFlag
	}
	return cfg
}

// analyzerConfig maps process configuration onto the pipeline
func analyzerConfig(cfg *config.Cfg) watchdog.Config {
	ac := watchdog.DefaultConfig()
	ac.HTTPTimeout = cfg.HTTPTimeout
	ac.CaptionBaseURL = cfg.CaptionBaseURL
	ac.RemoteTimeout = cfg.RemoteTimeout
	return ac
}

// newCLIAnalyzer builds an analyzer whose settings come from the settings
// file and environment, re-read on every scan.
func newCLIAnalyzer(cfg *config.Cfg) *watchdog.Analyzer {
	ac := analyzerConfig(cfg)
	// Consent and session cookies set by the page carry over to caption requests
	if jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List}); err == nil {
		ac.CookieJar = jar
	}
	return watchdog.New(ac, settings.NewEnvStore(cfg.SettingsFile), nil)
}

// statusLine is the one-line human verdict
func statusLine(result *models.AnalysisResult) string {
	switch {
	case result.Status == models.StatusSkipped:
		return "Disabled"
	case result.Status == models.StatusNoContent:
		return "No content"
	case result.Flagged:
		return "Flagged (18+)"
	default:
		return "Clear"
	}
}

func printResult(result *models.AnalysisResult, err error) {
	if formatFlag == "json" {
		b, _ := json.Marshal(watchdog.Respond(result, err))
		fmt.Println(string(b))
		return
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	fmt.Println(statusLine(result))
	if result.Flagged {
		fmt.Printf("  label:  %s\n", result.Label)
		if len(result.TopTerms) > 0 {
			fmt.Printf("  terms:  %v\n", result.TopTerms)
		}
	}
	if result.Route != "" {
		fmt.Printf("  route:  %s\n", result.Route)
	}
	if result.Preview != "" {
		fmt.Printf("  sample: %s\n", result.Preview)
	}
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
