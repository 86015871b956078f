package server

const (
	// DefaultWebAddress is the default address of the emulated store's web server.
	DefaultWebAddress = "localhost:4080"

	// DefaultTokenHours is how long a session token stays valid if not configured.
	DefaultTokenHours = 12
)

// Config is the [devserver] section of the TOML configuration.
type Config struct {
	HTTPAddress string            `toml:"httpAddress"`
	SecretKey   string            `toml:"secret_key"`
	TokenHours  int               `toml:"token_hours"`
	Users       map[string]string // user -> password
	CorsDomains []string          `toml:"cors_domains"`

	// BlockListFile lists users and source IPs to refuse, see LoadBlockListFile.
	BlockListFile string `toml:"blocklist"`
}

func (c Config) address() string {
	if c.HTTPAddress == "" {
		return DefaultWebAddress
	}
	return c.HTTPAddress
}

func (c Config) tokenHours() int {
	if c.TokenHours <= 0 {
		return DefaultTokenHours
	}
	return c.TokenHours
}
