package server

import (
	"errors"
	"net"
	"time"

	"github.com/dwwaite/gdelt-lake/pkg/querier"
)

type Config struct {
	HTTPListener      net.Listener
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	QuerierConfig     querier.Config
}

func (cfg *Config) Validate() error {
	if cfg.HTTPListener == nil {
		return errors.New("http listener is required")
	}
	if err := cfg.QuerierConfig.Validate(); err != nil {
		return err
	}
	return nil
}
