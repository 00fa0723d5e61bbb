package main

import "github.com/hab-env/hab"

// resolverRegistry is the process-wide named-instance convenience registry:
// the first Get with a name builds the resolver, later Gets return the
// existing instance and ignore the new constructor arguments. It is owned
// by this process, not by the hab package, so embedders that need distinct
// configurations simply use distinct names (or their own registry).
type resolverRegistry struct {
	byName map[string]*hab.Resolver
}

func newResolverRegistry() *resolverRegistry {
	return &resolverRegistry{byName: map[string]*hab.Resolver{}}
}

func (r *resolverRegistry) Get(name string, build func() (*hab.Resolver, error)) (*hab.Resolver, error) {
	if res, ok := r.byName[name]; ok {
		return res, nil
	}
	res, err := build()
	if err != nil {
		return nil, err
	}
	r.byName[name] = res
	return res, nil
}
