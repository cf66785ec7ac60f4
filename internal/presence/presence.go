package presence

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"babelchat/internal/types"

	"github.com/google/uuid"
)

var (
	ErrEmptyName    = errors.New("username required")
	ErrNameTaken    = errors.New("username taken")
	ErrAlreadyNamed = errors.New("username already set")
)

// Registry binds live connections to unique display names. All
// operations are serialized on a single mutex so that two concurrent
// claims for the same name can never both succeed.
type Registry struct {
	mu    sync.Mutex
	users map[uuid.UUID]types.User
	names map[string]uuid.UUID
	// order preserves claim order for user lists
	order []string
}

func NewRegistry() *Registry {
	return &Registry{
		users: make(map[uuid.UUID]types.User),
		names: make(map[string]uuid.UUID),
	}
}

// Claim records the name and preferred language for connID. The name is
// trimmed before any check. A connection claims a name exactly once.
func (r *Registry) Claim(connID uuid.UUID, name, lang string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[connID]; ok {
		return ErrAlreadyNamed
	}
	if _, ok := r.names[name]; ok {
		return ErrNameTaken
	}

	r.users[connID] = types.User{
		Username: name,
		Language: strings.ToLower(strings.TrimSpace(lang)),
	}
	r.names[name] = connID
	r.order = append(r.order, name)

	return nil
}

// Release drops the binding for connID if one exists. It is safe to call
// for connections that never claimed a name.
func (r *Registry) Release(connID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[connID]
	if !ok {
		return
	}

	delete(r.users, connID)
	delete(r.names, user.Username)
	if i := slices.Index(r.order, user.Username); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
}

func (r *Registry) Lookup(connID uuid.UUID) (types.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[connID]
	return user, ok
}

// Names returns the currently claimed display names in claim order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.order)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.users)
}
