package monitor

import (
	"slices"
	"strings"
	"sync"

	"github.com/genricoloni/playerwatch/internal/domain"
	"github.com/samber/lo"
)

// Registry holds the currently attached players.
// The watcher is the only writer; any number of goroutines may read.
type Registry struct {
	mu      sync.RWMutex
	players map[domain.PlayerIdentity]*Player
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{players: make(map[domain.PlayerIdentity]*Player)}
}

// Snapshot returns the attached players sorted by bus name.
// The lock is released before the caller touches any handle.
func (r *Registry) Snapshot() []*Player {
	r.mu.RLock()
	players := lo.Values(r.players)
	r.mu.RUnlock()

	slices.SortFunc(players, func(a, b *Player) int {
		return strings.Compare(a.identity.Bus, b.identity.Bus)
	})
	return players
}

// Get returns the player with the given identity
func (r *Registry) Get(id domain.PlayerIdentity) (*Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.players[id]
	return p, ok
}

// Find returns the first player (by bus name) whose short or bus name matches name
func (r *Registry) Find(name string) (*Player, bool) {
	return lo.Find(r.Snapshot(), func(p *Player) bool {
		return p.identity.MatchesEither(name)
	})
}

// Len returns the number of attached players
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// insert adds or replaces the player for its identity
func (r *Registry) insert(p *Player) {
	r.mu.Lock()
	r.players[p.identity] = p
	r.mu.Unlock()
}

// remove deletes the player, a missing identity is a no-op
func (r *Registry) remove(id domain.PlayerIdentity) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[id]
	if ok {
		delete(r.players, id)
	}
	return p, ok
}
