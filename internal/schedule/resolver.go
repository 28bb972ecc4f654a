// Package schedule provides the store's collaborator contracts for the
// pieces spec.md treats as external: class loading of job types and
// next-fire-time arithmetic for the cron and simple trigger variants. Each
// contract ships one concrete, swappable implementation so the store is
// independently testable (spec §1, §9's "Dynamic job class loading" note).
package schedule

import (
	"fmt"

	"github.com/quartzdb/jobstore/internal/types"
)

// JobFactory produces a runnable job instance for a resolved class name.
// The store never calls it; it exists purely so a façade built on this
// package has a place to plug in class loading, matching the ClassResolver
// interface design note in spec §9.
type JobFactory func() (any, error)

// ClassResolver maps a job-class name to a JobFactory.
type ClassResolver interface {
	Resolve(className string) (JobFactory, error)
}

// MapResolver is a ClassResolver backed by a static registry, sufficient for
// tests and for embedders that know their job classes at startup.
type MapResolver struct {
	factories map[string]JobFactory
}

// NewMapResolver returns an empty MapResolver.
func NewMapResolver() *MapResolver {
	return &MapResolver{factories: make(map[string]JobFactory)}
}

// Register associates className with factory.
func (r *MapResolver) Register(className string, factory JobFactory) {
	r.factories[className] = factory
}

// Resolve implements ClassResolver.
func (r *MapResolver) Resolve(className string) (JobFactory, error) {
	factory, ok := r.factories[className]
	if !ok {
		return nil, fmt.Errorf("%w: unknown job class %q", types.ErrClassLoad, className)
	}
	return factory, nil
}
