package journal

import "fmt"

// Config selects the journal file. An empty path disables journaling;
// a positive MaxSizeMB enables rotation.
type Config struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

func (c Config) Enabled() bool { return c.Path != "" }

func (c Config) Validate() error {
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return fmt.Errorf("journal: rotation limits must not be negative")
	}
	return nil
}

// Open returns the store described by c.
func Open(c Config) (Store, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("journal: no path configured")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.MaxSizeMB > 0 {
		return NewRotatingStore(c.Path, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays, c.Compress)
	}
	return NewJSONLStore(c.Path)
}
