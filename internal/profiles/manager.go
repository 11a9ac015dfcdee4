package profiles

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kadirbelkuyu/fbadapter/internal/config"
)

const defaultDir = "configs"

var unsafeAliasChars = regexp.MustCompile(`[^a-zA-Z0-9-_]+`)

// Profile is a saved connection configuration.
type Profile struct {
	Name     string
	Path     string
	Type     string
	Target   string
	Modified time.Time
}

// Manager keeps connection profiles as YAML files in one directory.
type Manager struct {
	dir string
}

func NewManager(dir string) *Manager {
	if strings.TrimSpace(dir) == "" {
		dir = defaultDir
	}
	return &Manager{dir: dir}
}

func (m *Manager) Directory() string {
	return m.dir
}

// List returns the profiles sorted by name, keeping only dbType when it is
// set. Unreadable files are skipped.
func (m *Manager) List(dbType string) ([]Profile, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles directory: %w", err)
	}

	var list []Profile
	for _, entry := range entries {
		if entry.IsDir() || !isProfileFile(entry.Name()) {
			continue
		}
		path := filepath.Join(m.dir, entry.Name())
		cfg, err := config.LoadConfig(path)
		if err != nil || (dbType != "" && cfg.Database.Type != dbType) {
			continue
		}

		p := newProfile(path, cfg)
		if info, err := entry.Info(); err == nil {
			p.Modified = info.ModTime()
		}
		list = append(list, p)
	}

	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func newProfile(path string, cfg *config.Config) Profile {
	base := filepath.Base(path)
	return Profile{
		Name:   strings.TrimSuffix(base, filepath.Ext(base)),
		Path:   path,
		Type:   cfg.Database.Type,
		Target: fmt.Sprintf("%s:%d/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.Database),
	}
}

// Save writes cfg under alias, replacing a profile of the same name. A blank
// alias is taken from the database file name.
func (m *Manager) Save(alias string, cfg *config.Config) (Profile, error) {
	if cfg == nil {
		return Profile{}, fmt.Errorf("config cannot be nil")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to encode profile: %w", err)
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return Profile{}, fmt.Errorf("failed to create profiles directory: %w", err)
	}

	path := filepath.Join(m.dir, fileName(aliasFor(alias, cfg)))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return Profile{}, fmt.Errorf("failed to write profile: %w", err)
	}

	p := newProfile(path, cfg)
	p.Modified = time.Now()
	return p, nil
}

func aliasFor(alias string, cfg *config.Config) string {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		db := filepath.Base(cfg.Database.Database)
		alias = strings.TrimSuffix(db, filepath.Ext(db))
	}
	alias = strings.Trim(unsafeAliasChars.ReplaceAllString(alias, "_"), "_")
	if alias == "" {
		return fmt.Sprintf("%s-%s", cfg.Database.Type, time.Now().Format("20060102_150405"))
	}
	return alias
}

// Load reads a profile by alias.
func (m *Manager) Load(alias string) (*config.Config, error) {
	path, err := m.path(alias)
	if err != nil {
		return nil, err
	}
	return config.LoadConfig(path)
}

// Resolve accepts either a config file path or a profile alias.
func (m *Manager) Resolve(ref string) (*config.Config, error) {
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		return config.LoadConfig(ref)
	}
	return m.Load(ref)
}

func (m *Manager) Delete(alias string) error {
	path, err := m.path(alias)
	if err != nil {
		return err
	}

	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("profile not found: %s", alias)
	}
	return err
}

func (m *Manager) path(alias string) (string, error) {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return "", fmt.Errorf("profile alias cannot be empty")
	}
	if strings.ContainsRune(alias, os.PathSeparator) {
		return alias, nil
	}
	return filepath.Join(m.dir, fileName(alias)), nil
}

func isProfileFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func fileName(alias string) string {
	if isProfileFile(alias) {
		return alias
	}
	return alias + ".yaml"
}
