package dispatch

import (
	"fmt"
	"reflect"
	"sync"
)

// method binds a selector to a signature and the entry point implementing it.
type method struct {
	selector  Selector
	signature *Signature
	entry     entryPoint

	planOnce sync.Once
	plan     callPlan
	planErr  error
}

// callPlan prepares the call plan on first use, a plan is kept for the
// lifetime of the method.
func (m *method) callPlan() (callPlan, error) {
	m.planOnce.Do(func() {
		m.plan, m.planErr = m.entry.bridge().prepareCall(m.signature, m.entry)
	})
	return m.plan, m.planErr
}

// class holds the methods known for one Go type.
type class struct {
	goType reflect.Type

	mu      sync.RWMutex
	name    string
	methods map[Selector]*method
}

func (e *engine) newClass(name string, goType reflect.Type) *class {
	c := &class{
		name:    name,
		goType:  goType,
		methods: map[Selector]*method{},
	}

	for i := 0; i < goType.NumMethod(); i++ {
		goMethod := goType.Method(i)
		entry, err := newGoEntryFromValue(goMethod.Name, goMethod.Func)
		if err != nil {
			e.logger.V(1).Info("skipping method", "class", name, "method", goMethod.Name, "reason", err.Error())
			continue
		}
		sig, err := signatureForFunc(goMethod.Type)
		if err != nil {
			e.logger.V(1).Info("skipping method", "class", name, "method", goMethod.Name, "reason", err.Error())
			continue
		}
		c.methods[Selector(goMethod.Name)] = &method{
			selector:  Selector(goMethod.Name),
			signature: sig,
			entry:     entry,
		}
	}

	return c
}

// lookup finds the method for sel. Go methods are always exported, so a
// selector starting with a lower case letter also matches the method named
// after its upper-cased form.
func (c *class) lookup(sel Selector) (*method, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if m, ok := c.methods[sel]; ok {
		return m, true
	}
	m, ok := c.methods[sel.exported()]
	return m, ok
}

// Name returns the registered name of the class, or its Go type name.
func (c *class) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

func (c *class) setName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
}

func (c *class) add(m *method) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.methods[m.selector] = m
}

// classFor returns the class for the dynamic type of target, deriving it on
// first use.
func (e *engine) classFor(target any) (*class, error) {
	if target == nil {
		return nil, ErrNoTarget
	}

	goType := reflect.TypeOf(target)

	e.mu.RLock()
	c, ok := e.classesByType[goType]
	e.mu.RUnlock()
	if ok {
		return c, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok = e.classesByType[goType]; ok {
		return c, nil
	}
	c = e.newClass(goType.String(), goType)
	e.classesByType[goType] = c
	return c, nil
}

func (e *engine) lookupMethod(target any, sel Selector) (*method, error) {
	c, err := e.classFor(target)
	if err != nil {
		return nil, err
	}
	m, ok := c.lookup(sel)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not implement %s", ErrMethodNotImplemented, c.Name(), sel)
	}
	return m, nil
}

func (e *engine) registeredClass(name string) (*class, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.classesByName[name]
	if !ok {
		return nil, fmt.Errorf("class %s is not registered", name)
	}
	return c, nil
}
