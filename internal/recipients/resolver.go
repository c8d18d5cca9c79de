// Package recipients resolves alert recipient classes to email addresses
// from a static directory.
package recipients

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/good-yellow-bee/staleguard/internal/alerting"
)

// Directory is the static recipient configuration.
type Directory struct {
	// Owners maps an entity owner name to the owner's project manager address.
	Owners map[string]string `yaml:"owners"`
	// ProjectManagers are used when the owner is not in Owners.
	ProjectManagers []string `yaml:"project_managers"`
	// Controllers are the financial controllers.
	Controllers []string `yaml:"controllers"`
}

// Validate checks that every configured address parses.
func (d *Directory) Validate() error {
	for owner, addr := range d.Owners {
		if _, err := mail.ParseAddress(addr); err != nil {
			return fmt.Errorf("invalid address for owner %q: %w", owner, err)
		}
	}
	for _, addr := range d.ProjectManagers {
		if _, err := mail.ParseAddress(addr); err != nil {
			return fmt.Errorf("invalid project manager address %q: %w", addr, err)
		}
	}
	for _, addr := range d.Controllers {
		if _, err := mail.ParseAddress(addr); err != nil {
			return fmt.Errorf("invalid controller address %q: %w", addr, err)
		}
	}
	return nil
}

// Resolver maps a recipient class and owner to addresses.
type Resolver struct {
	owners          map[string]string
	projectManagers []string
	controllers     []string
}

// NewResolver creates a resolver over the directory. Owner names are
// matched case-insensitively.
func NewResolver(d Directory) *Resolver {
	owners := make(map[string]string, len(d.Owners))
	for name, addr := range d.Owners {
		owners[normalize(name)] = addr
	}
	return &Resolver{
		owners:          owners,
		projectManagers: d.ProjectManagers,
		controllers:     d.Controllers,
	}
}

// Resolve returns the deduplicated addresses for a class, in stable order.
// Blank entries are dropped. The result may be empty.
func (r *Resolver) Resolve(class alerting.RecipientClass, owner string) []string {
	var candidates []string
	switch class {
	case alerting.RecipientProjectManager:
		candidates = r.projectManagersFor(owner)
	case alerting.RecipientController:
		candidates = r.controllers
	case alerting.RecipientAll:
		candidates = append(append([]string{}, r.projectManagersFor(owner)...), r.controllers...)
	}
	return dedupe(candidates)
}

func (r *Resolver) projectManagersFor(owner string) []string {
	if addr, ok := r.owners[normalize(owner)]; ok && strings.TrimSpace(addr) != "" {
		return []string{addr}
	}
	return r.projectManagers
}

func dedupe(addrs []string) []string {
	seen := make(map[string]struct{}, len(addrs))
	result := make([]string, 0, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		key := strings.ToLower(a)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, a)
	}
	return result
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
