package interpreter

// Environment is one lexical scope. Lookups walk the parent chain up to the
// global scope.
type Environment struct {
	vars   map[string]Value
	parent *Environment
}

// NewEnvironment creates a global scope
func NewEnvironment() *Environment {
	return &Environment{vars: make(map[string]Value)}
}

// NewEnclosedEnvironment creates a child scope of parent
func NewEnclosedEnvironment(parent *Environment) *Environment {
	return &Environment{vars: make(map[string]Value), parent: parent}
}

// Define binds name in this scope, replacing any binding it already holds
func (e *Environment) Define(name string, v Value) {
	e.vars[name] = v
}

// Get resolves name through the scope chain
func (e *Environment) Get(name string) (Value, bool) {
	for env := e; env != nil; env = env.parent {
		if v, ok := env.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Assign rebinds name in the nearest scope that defines it. It reports
// false when no scope does.
func (e *Environment) Assign(name string, v Value) bool {
	for env := e; env != nil; env = env.parent {
		if _, ok := env.vars[name]; ok {
			env.vars[name] = v
			return true
		}
	}
	return false
}

// Parent returns the enclosing scope, nil for the global scope
func (e *Environment) Parent() *Environment { return e.parent }
