package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/atikulmunna/eveflow/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	v       = viper.New()
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "eveflow",
	Short: "eveflow: live Suricata EVE log viewer",
	Long: `eveflow follows a Suricata EVE JSON log, normalizes each event into a
record, and serves the newest records over a query API and a WebSocket
push channel for live dashboards.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "eveflow:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	config.SetDefaults(v)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file (default: ./.eveflow.yaml or $HOME/.eveflow.yaml)")
	pf.StringP("eve-path", "f", "", "path or glob of the EVE JSON log")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: json, console")

	// Flags only override the file and environment when set.
	cobra.CheckErr(v.BindPFlag("eve_path", pf.Lookup("eve-path")))
	cobra.CheckErr(v.BindPFlag("log.level", pf.Lookup("log-level")))
	cobra.CheckErr(v.BindPFlag("log.format", pf.Lookup("log-format")))
}

func initConfig() {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.SetConfigName(".eveflow")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("EVEFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing default config file is fine; a broken or explicit one is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			cobra.CheckErr(fmt.Errorf("read config: %w", err))
		}
	}
}

// loadConfig decodes and validates the merged flags, env and file.
func loadConfig() (config.Config, error) {
	return config.Load(v)
}
