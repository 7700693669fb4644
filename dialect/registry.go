package dialect

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	providersMu sync.RWMutex
	providers   = map[string]func() Provider{
		"postgres": func() Provider { return Postgres() },
		"sqlite":   func() Provider { return SQLite() },
		"mysql":    func() Provider { return MySQL() },
	}
	aliases = map[string]string{
		"pg":         "postgres",
		"postgresql": "postgres",
		"pgx":        "postgres",
		"sqlite3":    "sqlite",
		"mariadb":    "mysql",
	}
)

// Register installs a provider factory under name, replacing any previous one.
func Register(name string, factory func() Provider) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[strings.ToLower(name)] = factory
}

// Get builds a fresh provider by name or alias.
func Get(name string) (Provider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if a, ok := aliases[key]; ok {
		key = a
	}
	providersMu.RLock()
	factory, ok := providers[key]
	providersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: dialect %q", ErrUnsupported, name)
	}
	return factory(), nil
}

// Names lists the registered provider names in order.
func Names() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()
	names := make([]string, 0, len(providers))
	for n := range providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
