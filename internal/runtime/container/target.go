package container

// Target installs services into a container.
type Target struct {
	c *Container
}

// AddService starts building the installation of svc under name.
func (t *Target) AddService(name string, svc Service) *ServiceBuilder {
	return &ServiceBuilder{target: t, name: name, svc: svc}
}

// ServiceBuilder collects dependencies before installation.
type ServiceBuilder struct {
	target *Target
	name   string
	svc    Service
	deps   []string
}

// AddDependency declares that the service must not start before names
// are up. The dependencies may be installed later.
func (b *ServiceBuilder) AddDependency(names ...string) *ServiceBuilder {
	b.deps = append(b.deps, names...)
	return b
}

// Install hands the service to the container, which starts it once its
// dependencies are up.
func (b *ServiceBuilder) Install() error {
	return b.target.c.install(b.name, b.svc, b.deps)
}
