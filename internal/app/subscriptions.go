package app

import (
	"github.com/dshills/depurador/internal/config"
	"github.com/dshills/depurador/internal/logging"
	"github.com/dshills/depurador/internal/server"
)

// subscribe wires config changes into running components. Settings that
// are only read at startup are reported as needing a restart.
func subscribe(cfg *config.Config, logger *logging.Logger, srv *server.Server) []*config.Subscription {
	log := logger.WithComponent("app")

	level := cfg.SubscribePath("logging.level", func(ch config.Change) {
		s, _ := ch.NewValue.(string)
		if ch.Type == config.ChangeDelete {
			s = "info"
		}
		logger.SetLevel(logging.ParseLevel(s))
		log.Info("log level set to %s", logging.ParseLevel(s))
	})

	policy := cfg.SubscribePath("server.unknown_commands", func(ch config.Change) {
		s, _ := ch.NewValue.(string)
		p, err := server.ParseUnknownCommandPolicy(s)
		if err != nil {
			log.Warn("ignoring unknown_commands change: %v", err)
			return
		}
		srv.SetUnknownCommandPolicy(p)
	})

	restart := cfg.Subscribe(func(ch config.Change) {
		switch ch.Path {
		case "logging.level", "server.unknown_commands":
			return
		}
		log.Warn("%s changed to %v; restart to apply", ch.Path, ch.NewValue)
	})

	return []*config.Subscription{level, policy, restart}
}
