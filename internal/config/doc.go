// Package config provides the configuration system for depurador.
//
// Configuration is organized in layers with higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  4. Command Line Flags      │  ← Highest priority
//	├─────────────────────────────┤
//	│  3. Environment Variables   │  ← DEPURADOR_SERVER_PORT, ...
//	├─────────────────────────────┤
//	│  2. Config File             │  ← depurador.toml / depurador.yaml
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │  ← Lowest priority
//	└─────────────────────────────┘
//
// Layers are nested maps merged key by key. Settings are addressed with
// dot-separated paths such as "server.port" or "logging.level".
//
// # Basic Usage
//
//	cfg := config.New(config.WithFile("depurador.toml"))
//	if err := cfg.Load(ctx); err != nil {
//		return err
//	}
//	defer cfg.Close()
//
//	srv := cfg.Server()
//	fmt.Println(srv.Port)
//
// # Live Reload
//
// When watching is enabled the config file is monitored with fsnotify.
// A change reloads the file layer and notifies subscribers once per
// effective setting that changed:
//
//	cfg.SubscribePath("logging.level", func(c config.Change) {
//		logger.SetLevel(logging.ParseLevel(c.NewValue.(string)))
//	})
package config
