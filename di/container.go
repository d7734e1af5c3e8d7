package di

import (
	"fmt"
	"reflect"
	"sync"
)

// Container is the dependency injection container the engine boot sequence
// uses to wire configuration, logger, metrics, storage, scheduler and the
// LOB relay singleton together
type Container struct {
	mu        sync.RWMutex
	services  map[reflect.Type]interface{}
	factories map[reflect.Type]interface{}
}

// NewContainer creates a new DI container
func NewContainer() *Container {
	return &Container{
		services:  make(map[reflect.Type]interface{}),
		factories: make(map[reflect.Type]interface{}),
	}
}

// Register registers a service instance to the container. The instance is
// stored under its concrete type, pointer included, so resolving into a
// *T target finds a registered *T.
func (c *Container) Register(service interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := reflect.TypeOf(service)
	if _, exists := c.services[t]; exists {
		return fmt.Errorf("service already registered for type: %v", t)
	}

	c.services[t] = service
	return nil
}

// RegisterFactory registers a factory function; the service is built on
// first resolve
func (c *Container) RegisterFactory(factory interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := reflect.TypeOf(factory)
	if t.Kind() != reflect.Func {
		return fmt.Errorf("factory must be a function")
	}

	if t.NumOut() != 1 && t.NumOut() != 2 {
		return fmt.Errorf("factory must return exactly one or two values (service, error)")
	}

	serviceType := t.Out(0)
	if _, exists := c.factories[serviceType]; exists {
		return fmt.Errorf("factory already registered for type: %v", serviceType)
	}

	c.factories[serviceType] = factory
	return nil
}

// Resolve resolves a service from the container into the target pointer
func (c *Container) Resolve(target interface{}) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	targetValue := reflect.ValueOf(target)
	if targetValue.Kind() != reflect.Ptr {
		return fmt.Errorf("target must be a pointer")
	}

	targetType := targetValue.Elem().Type()

	if service, exists := c.services[targetType]; exists {
		targetValue.Elem().Set(reflect.ValueOf(service))
		return nil
	}

	if factory, exists := c.factories[targetType]; exists {
		results := reflect.ValueOf(factory).Call(nil)
		if len(results) == 2 && !results[1].IsNil() {
			return results[1].Interface().(error)
		}
		targetValue.Elem().Set(results[0])
		return nil
	}

	return fmt.Errorf("no service registered for type: %v", targetType)
}
