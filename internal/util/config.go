package util

import (
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

// Defaults for the keys shared by every command
const (
	DefaultDBPath        = "suno.db"
	DefaultMediaRoot     = "media"
	DefaultLanguagesFile = "language-codes.csv"
)

// DBPath returns the configured database path
func DBPath() string {
	return stringOr("db", DefaultDBPath)
}

// MediaRoot returns the configured local media cache directory
func MediaRoot() string {
	return filepath.Clean(stringOr("media-root", DefaultMediaRoot))
}

// LanguagesFile returns the configured language reference file
func LanguagesFile() string {
	return stringOr("languages", DefaultLanguagesFile)
}

func stringOr(key, def string) string {
	if v := viper.GetString(key); v != "" {
		return v
	}
	return def
}

// FormatBytes renders a byte count for humans (e.g. "4.2 MB")
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// FormatCount renders an integer with thousands separators
func FormatCount(n int) string {
	return humanize.Comma(int64(n))
}
