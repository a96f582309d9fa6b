package sites

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Registry resolves origins to controls hosts, combining the built-in sites
// with JavaScript adapters loaded from disk. Adapters may not shadow a
// built-in host name.
type Registry struct {
	mu    sync.RWMutex
	hosts map[Kind]ControlsHost
	names map[string]Kind
}

// NewRegistry returns a registry with the built-in sites.
func NewRegistry() *Registry {
	r := &Registry{
		hosts: make(map[Kind]ControlsHost),
		names: make(map[string]Kind),
	}
	for _, b := range builtins {
		r.hosts[b.kind] = b
		for _, h := range b.hosts {
			r.names[h] = b.kind
		}
	}
	return r
}

// Register adds a controls host reachable under the given host names.
func (r *Registry) Register(host ControlsHost, hostnames ...string) error {
	if host == nil || host.Kind() == KindUnknown {
		return errors.New("sites: host must have a kind")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.hosts[host.Kind()]; exists {
		return fmt.Errorf("sites: kind %q already registered", host.Kind())
	}
	for _, h := range hostnames {
		h = strings.ToLower(strings.TrimSpace(h))
		if existing, ok := r.names[h]; ok {
			return fmt.Errorf("sites: host %s already served by %q", h, existing)
		}
	}
	r.hosts[host.Kind()] = host
	for _, h := range hostnames {
		r.names[strings.ToLower(strings.TrimSpace(h))] = host.Kind()
	}
	return nil
}

// LoadAdapters registers every *.js adapter in dir. A missing directory is not
// an error. Broken adapters are logged and skipped; the count of loaded
// adapters is returned.
func (r *Registry) LoadAdapters(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("sites: read adapters dir: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".js" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		adapter, err := LoadAdapter(path)
		if err != nil {
			log.Printf("[Sites] skipping adapter %s: %v", path, err)
			continue
		}
		if err := r.Register(adapter, adapter.Hosts()...); err != nil {
			log.Printf("[Sites] skipping adapter %s: %v", path, err)
			continue
		}
		log.Printf("[Sites] loaded adapter %s (%s)", adapter.Kind(), path)
		loaded++
	}
	return loaded, nil
}

// Resolve returns the site kind and controls host for an origin.
func (r *Registry) Resolve(origin string) (Kind, ControlsHost, error) {
	host, err := Hostname(origin)
	if err != nil {
		return KindUnknown, nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	kind, ok := r.names[host]
	if !ok {
		return KindUnknown, nil, fmt.Errorf("%w: %s", ErrUnknownSite, host)
	}
	return kind, r.hosts[kind], nil
}

// Host returns the controls host for kind.
func (r *Registry) Host(kind Kind) (ControlsHost, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hosts[kind]
	return h, ok
}

// Kinds lists registered site kinds in sorted order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Kind, 0, len(r.hosts))
	for k := range r.hosts {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
