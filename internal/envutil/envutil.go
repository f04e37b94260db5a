package envutil

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Runtime holds process settings that come from the environment rather
// than the config file
type Runtime struct {
	Env       string `env:"PINGDAILY_ENV" envDefault:"production"`
	LogLevel  string `env:"LOG_LEVEL"     envDefault:"INFO"`
	LogFormat string `env:"LOG_FORMAT"    envDefault:"text"`
}

// Load parses the runtime settings from the environment
func Load() (Runtime, error) {
	var rt Runtime
	if err := env.Parse(&rt); err != nil {
		return Runtime{}, fmt.Errorf("parse env: %w", err)
	}
	return rt, nil
}

// IsDev reports whether the runtime is in development mode
func (r Runtime) IsDev() bool {
	e := strings.ToLower(r.Env)
	return e == "development" || e == "dev"
}

// IsDev checks if we're running in development mode
// where security requirements can be relaxed for testing
func IsDev() bool {
	rt, err := Load()
	if err != nil {
		return false
	}
	return rt.IsDev()
}
