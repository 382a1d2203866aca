package config

// GenesisAllocation credits an address when a fresh database is opened.
type GenesisAllocation struct {
	Address  string `toml:"Address"`
	Lamports uint64 `toml:"Lamports"`
}

// Clock controls slot production.
type Clock struct {
	SlotDurationMs int64 `toml:"SlotDurationMs"`
}

// RPC configures the JSON-RPC listener.
type RPC struct {
	ListenAddress string `toml:"ListenAddress"`
	// AuthToken guards admin methods when no JWT secret is configured.
	AuthToken string `toml:"AuthToken"`
	JWTSecret string `toml:"JWTSecret"`
	JWTIssuer string `toml:"JWTIssuer"`

	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
	DuplicateTTLSecs   int     `toml:"DuplicateTTLSeconds"`
	MaxBodyBytes       int64   `toml:"MaxBodyBytes"`

	ReadHeaderTimeoutSecs int      `toml:"ReadHeaderTimeout"`
	WriteTimeoutSecs      int      `toml:"WriteTimeout"`
	IdleTimeoutSecs       int      `toml:"IdleTimeout"`
	TrustedProxies        []string `toml:"TrustedProxies"`
}

// Faucet bounds the development airdrop.
type Faucet struct {
	MaxAirdropLamports uint64 `toml:"MaxAirdropLamports"`
}

// Logging mirrors logging.Options.
type Logging struct {
	Format     string `toml:"Format"`
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Endpoint    string            `toml:"Endpoint"`
	Insecure    bool              `toml:"Insecure"`
	Headers     map[string]string `toml:"Headers"`
	Traces      bool              `toml:"Traces"`
	Metrics     bool              `toml:"Metrics"`
	SampleRatio float64           `toml:"SampleRatio"`
}

// Indexer configures the read-model database. An empty driver disables it.
type Indexer struct {
	Driver    string `toml:"Driver"`
	DSN       string `toml:"DSN"`
	QueueSize int    `toml:"QueueSize"`
}
