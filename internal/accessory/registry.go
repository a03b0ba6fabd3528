package accessory

import (
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrNotFound  = errors.New("accessory not found")
	ErrDuplicate = errors.New("accessory already registered")
)

type Registry struct {
	mu          sync.RWMutex
	accessories []*Accessory
	byName      map[string]*Accessory
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]*Accessory{}}
}

func (r *Registry) Add(a *Accessory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, found := r.byName[a.Name()]; found {
		return errors.Wrapf(ErrDuplicate, "%s", a.Name())
	}

	r.byName[a.Name()] = a
	r.accessories = append(r.accessories, a)
	return nil
}

func (r *Registry) Get(name string) (*Accessory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, found := r.byName[name]
	if !found {
		return nil, errors.Wrapf(ErrNotFound, "%s", name)
	}
	return a, nil
}

// All returns accessories in registration order.
func (r *Registry) All() []*Accessory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]*Accessory(nil), r.accessories...)
}
