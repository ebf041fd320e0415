package tmpl

// Context is the evaluation environment handed to Render and EvalBool. It is
// an ordered map in the sense that callers build it incrementally (variant
// values, then context block, then platform constants); iteration order
// never affects the result of rendering or hashing (see variant package).
type Context struct {
	vars map[string]any
	env  map[string]string
}

// NewContext creates an empty evaluation context.
func NewContext() *Context {
	return &Context{vars: map[string]any{}, env: map[string]string{}}
}

// Set assigns a top-level variable.
func (c *Context) Set(name string, value any) *Context {
	c.vars[name] = value
	return c
}

// SetEnv assigns a variable under the `env.*` namespace, mirroring the
// recipe's `env.SOME_VAR` lookups.
func (c *Context) SetEnv(name, value string) *Context {
	c.env[name] = value
	return c
}

// SetPlatform installs the fixed platform/host/build-platform constants that
// every evaluation context carries.
func (c *Context) SetPlatform(targetPlatform, hostPlatform, buildPlatform string) *Context {
	c.vars["target_platform"] = targetPlatform
	c.vars["host_platform"] = hostPlatform
	c.vars["build_platform"] = buildPlatform
	return c
}

// Lookup returns the value bound to name and whether it was found. env.X is
// resolved through the env sub-object.
func (c *Context) Lookup(name string) (any, bool) {
	if name == "env" {
		return c.env, true
	}
	v, ok := c.vars[name]
	return v, ok
}

// Merge returns a copy of c with extra layered on top (extra wins on
// conflicts).
func (c *Context) Merge(extra map[string]any) *Context {
	n := &Context{vars: make(map[string]any, len(c.vars)+len(extra)), env: c.env}
	for k, v := range c.vars {
		n.vars[k] = v
	}
	for k, v := range extra {
		n.vars[k] = v
	}
	return n
}

// toExprEnv flattens the context into the map expr.Compile validates
// identifiers against.
func (c *Context) toExprEnv() map[string]any {
	env := make(map[string]any, len(c.vars)+2)
	for k, v := range c.vars {
		env[k] = v
	}
	env["env"] = c.env
	return env
}
