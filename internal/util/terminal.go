package util

import (
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// IsTerminal checks if the given file descriptor is a terminal
func IsTerminal(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

// NewProgressBar returns a progress bar for total items (-1 if unknown),
// or nil when stdout is not a terminal or output is quiet.
// Callers fall back to periodic log lines when it returns nil.
func NewProgressBar(total int64, description, unit string) *progressbar.ProgressBar {
	if !IsTerminal(os.Stdout.Fd()) || IsQuiet() {
		return nil
	}

	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString(unit),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}
