package redkv

// Middleware wraps a CommandHandler, observing or rewriting the command
// on the way in and the Value on the way out. It decides whether to
// call next at all, which is what lets a middleware short-circuit the
// chain (an auth check failing, a rate limiter tripping).
type Middleware interface {
	Handle(conn *Connection, cmd *Command, next CommandHandler) Value
}

// MiddlewareFunc adapts a function to Middleware.
type MiddlewareFunc func(conn *Connection, cmd *Command, next CommandHandler) Value

func (f MiddlewareFunc) Handle(conn *Connection, cmd *Command, next CommandHandler) Value {
	return f(conn, cmd, next)
}

// MiddlewareChain runs a sequence of Middleware around a terminal
// CommandHandler. Middlewares added first run outermost: the first
// added is the first to see the request and the last to see the
// response.
type MiddlewareChain struct {
	middlewares []Middleware
}

// NewMiddlewareChain returns an empty chain.
func NewMiddlewareChain() *MiddlewareChain {
	return &MiddlewareChain{}
}

// Add appends a middleware to the chain.
func (c *MiddlewareChain) Add(m Middleware) {
	c.middlewares = append(c.middlewares, m)
}

// Execute runs the chain around handler. Wrapping proceeds from the
// last-added middleware inward, so that after wrapping, invoking the
// result runs the first-added middleware first.
func (c *MiddlewareChain) Execute(conn *Connection, cmd *Command, handler CommandHandler) Value {
	wrapped := handler
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		mw := c.middlewares[i]
		next := wrapped
		wrapped = CommandHandlerFunc(func(conn *Connection, cmd *Command) Value {
			return mw.Handle(conn, cmd, next)
		})
	}
	return wrapped.Handle(conn, cmd)
}
