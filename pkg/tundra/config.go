package tundra

// TagConfig overrides the delimiters of one configurable tag kind.
type TagConfig struct {
	Kind  string `json:"kind"`
	Open  string `json:"open"`
	Close string `json:"close"`
}

// Config holds all configuration options for an Engine.
type Config struct {
	// BaseDir is the directory template names, parents and required files are read from.
	BaseDir string `json:"base_dir"`

	// Extension is appended to template names that have none, e.g. "html".
	Extension string `json:"extension"`

	// Encoding is the character encoding of template files, as understood by the
	// WHATWG encoding index ("utf-8", "latin1", "windows-1252", ...).
	Encoding string `json:"encoding"`

	// Scoping makes context fields reachable only through the `data` name.
	// When false, every context field is also a bare name in expressions.
	Scoping bool `json:"scoping"`

	// CacheEnabled controls whether compiled programs are memoized by template identity.
	CacheEnabled bool `json:"cache_enabled"`

	// Tags lists delimiter overrides applied on engine creation, in order.
	Tags []TagConfig `json:"tags"`
}

// DefaultConfig returns a Config with the default delimiters, UTF-8 files read
// from the working directory, no scoping and the cache enabled.
func DefaultConfig() *Config {
	return &Config{
		BaseDir:      ".",
		Extension:    "",
		Encoding:     "utf-8",
		Scoping:      false,
		CacheEnabled: true,
		Tags:         []TagConfig{},
	}
}
