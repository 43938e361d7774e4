package main

import (
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-json"

	"github.com/chronnie/h2"
)

// fileConfig is the JSON shape of the server's config file, overlaying
// h2.DefaultConfig() and adding process-level knobs the core engine
// doesn't need to know about.
type fileConfig struct {
	Addr                 string `json:"addr"`
	MetricsAddr          string `json:"metrics_addr"`
	MaxConcurrentConns   int    `json:"max_concurrent_conns"`
	MaxConcurrentStreams uint32 `json:"max_concurrent_streams"`
	InitialWindowSize    uint32 `json:"initial_window_size"`
	EnableServerPush     bool   `json:"enable_server_push"`
}

func defaultFileConfig() fileConfig {
	base := h2.DefaultConfig()
	return fileConfig{
		Addr:                 ":8443",
		MetricsAddr:          ":9090",
		MaxConcurrentConns:   1024,
		MaxConcurrentStreams: base.MaxConcurrentStreams,
		InitialWindowSize:    base.InitialWindowSize,
		EnableServerPush:     base.EnableServerPush,
	}
}

func (fc fileConfig) toEngineConfig() h2.Config {
	cfg := h2.DefaultConfig()
	cfg.MaxConcurrentStreams = fc.MaxConcurrentStreams
	cfg.InitialWindowSize = fc.InitialWindowSize
	cfg.EnableServerPush = fc.EnableServerPush
	return cfg
}

// configStore holds the live config plus its file path, guarded by a
// mutex since fsnotify delivers reloads from its own goroutine.
type configStore struct {
	mu   sync.RWMutex
	path string
	cur  fileConfig
}

func loadConfigStore(path string) (*configStore, error) {
	cs := &configStore{path: path, cur: defaultFileConfig()}
	if path == "" {
		return cs, nil
	}
	if err := cs.reload(); err != nil {
		return nil, err
	}
	return cs, nil
}

func (cs *configStore) reload() error {
	b, err := os.ReadFile(cs.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	fc := defaultFileConfig()
	if err := json.Unmarshal(b, &fc); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.cur = fc
	cs.mu.Unlock()
	return nil
}

func (cs *configStore) get() fileConfig {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.cur
}

// watch reloads the config whenever its file is written, logging (but
// not dying on) reload failures so a bad edit doesn't take the server
// down.
func (cs *configStore) watch() error {
	if cs.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(cs.path); err != nil {
		watcher.Close()
		return err
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := cs.reload(); err != nil {
					h2.LogError(&h2.Logger, err, "config_reload")
				} else {
					h2.Logger.Info().Str("path", cs.path).Msg("config reloaded")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				h2.LogError(&h2.Logger, err, "config_watch")
			}
		}
	}()
	return nil
}
