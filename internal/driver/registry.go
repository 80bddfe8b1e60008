package driver

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"teklif/internal/logger"
	"teklif/internal/types"
)

var rlog = logger.ForComponent("drivers")

// Snapshot is an immutable view of the loaded profiles.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Profiles map[types.ProviderID]*Profile
}

// ChangeListener fires after a successful reload.
type ChangeListener func(Snapshot)

// Registry loads every *.yaml profile in a directory and hot-reloads on
// change, so selector fixes for a flaky portal never need a rebuild.
type Registry struct {
	dir     string
	watcher *fsnotify.Watcher

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRegistry reads the profile directory and starts watching it.
func NewRegistry(dir string) (*Registry, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("driver registry requires a profile directory")
	}
	r := &Registry{dir: dir}
	if err := r.reload(); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("profile watcher failed: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s failed: %w", dir, err)
	}
	r.watcher = watcher
	go r.watch()
	return r, nil
}

// Subscribe registers a listener for profile reloads.
func (r *Registry) Subscribe(fn ChangeListener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Snapshot returns the current profile set.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// Driver returns the profile for one provider.
func (r *Registry) Driver(id types.ProviderID) (Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.snapshot.Profiles[id]
	return p, ok
}

// Providers lists the loaded provider ids in stable order.
func (r *Registry) Providers() []types.ProviderID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ProviderID, 0, len(r.snapshot.Profiles))
	for id := range r.snapshot.Profiles {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close stops the directory watcher.
func (r *Registry) Close() error {
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}

func (r *Registry) watch() {
	for {
		select {
		case evt, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := r.reload(); err != nil {
				rlog.Errorf("profile reload failed (%s): %v", evt.Name, err)
				continue
			}
			r.notify()
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			rlog.Warnf("profile watcher error: %v", err)
		}
	}
}

func (r *Registry) reload() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("reading profile dir %s failed: %w", r.dir, err)
	}
	profiles := make(map[types.ProviderID]*Profile)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(r.dir, entry.Name())
		profile, err := loadProfileFile(path)
		if err != nil {
			return err
		}
		if _, dup := profiles[profile.Provider()]; dup {
			return fmt.Errorf("duplicate profile id %q in %s", profile.ID, entry.Name())
		}
		profiles[profile.Provider()] = profile
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Profiles: profiles,
	}
	r.mu.Unlock()
	rlog.Infof("loaded %d profiles from %s", len(profiles), r.dir)
	return nil
}

func (r *Registry) notify() {
	r.mu.RLock()
	snap := r.snapshot
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go fn(snap)
	}
}

func loadProfileFile(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile %s failed: %w", path, err)
	}
	// Strict decoding: a typo in a selector key silently breaking a portal
	// is far worse than a load error.
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var profile Profile
	if err := dec.Decode(&profile); err != nil {
		return nil, fmt.Errorf("parsing profile %s failed: %w", path, err)
	}
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s invalid: %w", path, err)
	}
	return &profile, nil
}
