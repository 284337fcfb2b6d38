package file

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// EnsureDirectories creates every directory in dirs that does not exist yet.
func EnsureDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			err = fmt.Errorf("error creating directory %s: %w", dir, err)
			log.Error().Err(err).Send()
			return err
		}
		log.Debug().Str("path", dir).Msg("directory ready")
	}

	return nil
}

// DailyLogPath returns the log file path for the day of now, e.g. logs/bot_20260102.log.
func DailyLogPath(dir string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("bot_%s.log", now.Format("20060102")))
}

// OpenDailyLog opens the day's log file in append mode.
func OpenDailyLog(dir string, now time.Time) (*os.File, error) {
	path := DailyLogPath(dir, now)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("error opening log file %s: %w", path, err)
	}

	return f, nil
}
