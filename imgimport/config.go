package imgimport

import "strings"

// DefaultExtensions are the image file extensions imported if none are configured.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".tif", ".tiff", ".ome.tif", ".ome.tiff"}

// Config is the [import] section of the TOML configuration.
type Config struct {
	Source     string   // bucket URL, e.g. file:///data/sample or gs://bucket/prefix
	Workers    int      // concurrent uploads, 1 if unset
	Journal    string   // path of the import journal, in-memory if empty
	Extensions []string // image file extensions, DefaultExtensions if empty
}

func (c Config) workers() int {
	if c.Workers <= 0 {
		return 1
	}
	return c.Workers
}

func (c Config) isImage(key string) bool {
	exts := c.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	lower := strings.ToLower(key)
	for _, ext := range exts {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}
