package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch re-reads path whenever it changes and hands the new configuration to
// onChange. Invalid edits are logged and ignored so the running process
// keeps its last good settings. Only fields that are safe to swap at runtime
// should be applied by onChange.
func Watch(path string, logger *slog.Logger, onChange func(*Config)) error {
	v := newViper(path)
	found, err := readConfigFile(v)
	if err != nil {
		return err
	}
	if !found {
		logger.Info("no configuration file to watch", "path", path)
		return nil
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			logger.Warn("ignoring invalid configuration change", "file", e.Name, "error", err)
			return
		}
		logger.Info("configuration reloaded", "file", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}
