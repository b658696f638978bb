package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader loads configuration from a YAML file with environment expansion
// and optional reload-on-change.
type Loader struct {
	path     string
	onChange func(*Config) error
	stopChan chan struct{}
}

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	// Path to the YAML config file.
	Path string

	// Watch reloads the file on change and invokes OnChange.
	Watch bool

	// OnChange is called with the freshly loaded config.
	OnChange func(*Config) error
}

// NewLoader creates a config loader.
func NewLoader(opts LoaderOptions) (*Loader, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	l := &Loader{
		path:     opts.Path,
		onChange: opts.OnChange,
		stopChan: make(chan struct{}),
	}
	if opts.Watch {
		if err := l.watch(); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Load reads, expands and unmarshals the config file, then applies
// defaults and validates.
func (l *Loader) Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(l.path), kyaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", l.path, err)
	}

	// Expand ${ENV_VAR} references in the raw tree, then reload the
	// expanded tree so typed values survive substitution.
	expanded, ok := ExpandEnvVarsInData(k.Raw()).(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("config root must be a mapping")
	}

	k = koanf.New(".")
	if err := k.Load(confmap.Provider(expanded, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to apply expanded config: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// watch reloads the config when the file changes. Editors replace files
// rather than writing in place, so the parent directory is watched and
// events are debounced.
func (l *Loader) watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	go func() {
		defer watcher.Close()

		var debounce *time.Timer
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(l.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(250*time.Millisecond, l.reload)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("Config watcher error", "error", err)

			case <-l.stopChan:
				return
			}
		}
	}()

	return nil
}

func (l *Loader) reload() {
	cfg, err := l.Load()
	if err != nil {
		slog.Warn("Config reload failed, keeping previous configuration", "error", err)
		return
	}
	slog.Info("Configuration reloaded", "path", l.path)
	if l.onChange != nil {
		if err := l.onChange(cfg); err != nil {
			slog.Warn("Config change handler failed", "error", err)
		}
	}
}

// Stop terminates the watch goroutine.
func (l *Loader) Stop() {
	close(l.stopChan)
}
