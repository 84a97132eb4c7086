package http

import "github.com/labstack/echo/v4"

// Handler defines HTTP route registration interface.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

// RouteGroup registers routes relative to a shared prefix.
type RouteGroup interface {
	Register(g *echo.Group)
}

type mount struct {
	prefix string
	groups []RouteGroup
}

// Mount returns a Handler that registers every group under prefix.
func Mount(prefix string, groups ...RouteGroup) Handler {
	return &mount{prefix: prefix, groups: groups}
}

func (m *mount) RegisterRoutes(e *echo.Echo) {
	g := e.Group(m.prefix)
	for _, rg := range m.groups {
		rg.Register(g)
	}
}
