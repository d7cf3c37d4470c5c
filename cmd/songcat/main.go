package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/suno-catalog/internal/util"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "songcat",
		Short: "Suno song catalog - ingest, migrate and serve a SQLite song catalog",
		Long: `songcat loads a corpus of Suno song records (one JSON document per song)
into a single SQLite table, evolves that table through versioned migrations,
builds language and model summaries, and serves catalog searches with
locally cached media.`,
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			util.SetVerbose(viper.GetBool("verbose"))
			util.SetQuiet(viper.GetBool("quiet"))
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/songcat.yaml)")
	rootCmd.PersistentFlags().String("db", util.DefaultDBPath, "catalog database file")
	rootCmd.PersistentFlags().String("media-root", util.DefaultMediaRoot, "local media cache directory")
	rootCmd.PersistentFlags().String("languages", util.DefaultLanguagesFile, "language code reference file (CSV with alpha2,English)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")

	// Bind flags to viper
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("media-root", rootCmd.PersistentFlags().Lookup("media-root"))
	viper.BindPFlag("languages", rootCmd.PersistentFlags().Lookup("languages"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("songcat")
		viper.SetConfigType("yaml")
	}

	// SONGCAT_DB, SONGCAT_MEDIA_ROOT, ...
	viper.SetEnvPrefix("SONGCAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
