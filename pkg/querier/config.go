package querier

import (
	"fmt"
	"log/slog"

	"github.com/dwwaite/gdelt-lake/pkg/duck"
	"github.com/dwwaite/gdelt-lake/pkg/schema"
)

type Config struct {
	Logger *slog.Logger
	DB     duck.DB
	Schema *schema.Schema
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if cfg.DB == nil {
		return fmt.Errorf("database is required")
	}
	if cfg.Schema == nil {
		return fmt.Errorf("schema is required")
	}
	return nil
}
