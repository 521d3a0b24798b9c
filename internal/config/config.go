package config

import (
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:":8000"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"/app/data/mudgate.db"`
	LogPath      string `envconfig:"LOG_PATH" default:""`

	// Backend (MUD server) connection settings
	BackendHost    string        `envconfig:"BACKEND_HOST" default:"127.0.0.1"`
	BackendPort    int           `envconfig:"BACKEND_PORT" default:"4000"`
	ConnectTimeout time.Duration `envconfig:"CONNECT_TIMEOUT" default:"10s"`

	// Credential derivation. Secret is required: without it every restart
	// would produce different backend passwords and lock users out.
	Secret        string `envconfig:"SECRET"`
	AccountPrefix string `envconfig:"ACCOUNT_PREFIX" default:"discord_"`

	// Login automaton settings
	AutoCreateAccounts bool   `envconfig:"AUTO_CREATE_ACCOUNTS" default:"true"`
	ConnectTemplate    string `envconfig:"CONNECT_TEMPLATE" default:"connect {account} {password}"`
	CreateTemplate     string `envconfig:"CREATE_TEMPLATE" default:"create {account} {password}"`
	PhrasesPath        string `envconfig:"PHRASES_PATH" default:""`

	// Output chunking
	ChunkMaxSize  int `envconfig:"CHUNK_MAX_SIZE" default:"1800"`
	ChunkMaxCount int `envconfig:"CHUNK_MAX_COUNT" default:"8"`

	// Visibility policy
	DMOnly         bool `envconfig:"DM_ONLY" default:"true"`
	WarnPublicPlay bool `envconfig:"WARN_PUBLIC_PLAY" default:"true"`

	// Optional in-character nickname command sent after account creation,
	// e.g. "@icname {name}". Empty disables it.
	NickCommandTemplate string `envconfig:"NICK_COMMAND_TEMPLATE" default:""`

	// AdminToken protects the /api/v1 surface. Empty disables auth,
	// for deployments where the admin port is not exposed.
	AdminToken string `envconfig:"ADMIN_TOKEN" default:""`

	// Session resource settings
	IdleTimeout  time.Duration `envconfig:"IDLE_TIMEOUT" default:"1h"`
	QuietWindow  time.Duration `envconfig:"QUIET_WINDOW" default:"250ms"`
	OutputBuffer int           `envconfig:"OUTPUT_BUFFER" default:"16"`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("MUDGATE", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}

// Validate checks settings that must fail at startup rather than be
// discovered mid-session.
func (s *Settings) Validate() error {
	if s.Secret == "" {
		return fmt.Errorf("MUDGATE_SECRET is required (used to derive stable backend passwords)")
	}
	if s.BackendHost == "" {
		return fmt.Errorf("MUDGATE_BACKEND_HOST must not be empty")
	}
	if s.BackendPort <= 0 || s.BackendPort > 65535 {
		return fmt.Errorf("MUDGATE_BACKEND_PORT %d out of range", s.BackendPort)
	}
	if s.ChunkMaxSize <= 0 {
		return fmt.Errorf("MUDGATE_CHUNK_MAX_SIZE must be positive")
	}
	if s.ChunkMaxCount <= 0 {
		return fmt.Errorf("MUDGATE_CHUNK_MAX_COUNT must be positive")
	}
	return nil
}
