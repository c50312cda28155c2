// Package router assembles the gin engine: versioned API groups under
// /api/{version} and unversioned operational endpoints at the root.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RouteRegistrar mounts its routes onto a gin group
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

type endpoint struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// Router collects registrars and probes until Setup mounts them
type Router struct {
	engine   *gin.Engine
	version  string
	mounts   []RouteRegistrar
	rootGETs []endpoint
}

type RouterOption func(*Router)

// WithAPIVersion replaces the default "v1" path segment
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) { r.version = version }
}

func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine, version: "v1"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register queues a group for /api/{version}
func (r *Router) Register(reg RouteRegistrar) *Router {
	r.mounts = append(r.mounts, reg)
	return r
}

// Operational queues an unversioned GET, e.g. health probes and /metrics
func (r *Router) Operational(path string, h gin.HandlerFunc) *Router {
	r.rootGETs = append(r.rootGETs, endpoint{http.MethodGet, path, []gin.HandlerFunc{h}})
	return r
}

// Setup mounts everything queued so far. Call it once.
func (r *Router) Setup() {
	for _, e := range r.rootGETs {
		r.engine.Handle(e.method, e.path, e.handlers...)
	}
	api := r.engine.Group("/api/" + r.version)
	for _, reg := range r.mounts {
		reg.RegisterRoutes(api)
	}
}

// DomainGroup is a declarative route tree for one API area. Middleware added
// with Use applies to the group's own endpoints and to every nested group.
type DomainGroup struct {
	name      string
	prefix    string
	mw        []gin.HandlerFunc
	endpoints []endpoint
	children  []*DomainGroup
}

func NewDomainGroup(name, prefix string) *DomainGroup {
	return &DomainGroup{name: name, prefix: prefix}
}

func (g *DomainGroup) Name() string   { return g.name }
func (g *DomainGroup) Prefix() string { return g.prefix }

func (g *DomainGroup) Use(mw ...gin.HandlerFunc) *DomainGroup {
	g.mw = append(g.mw, mw...)
	return g
}

func (g *DomainGroup) add(method, path string, hs []gin.HandlerFunc) *DomainGroup {
	g.endpoints = append(g.endpoints, endpoint{method, path, hs})
	return g
}

func (g *DomainGroup) GET(path string, hs ...gin.HandlerFunc) *DomainGroup {
	return g.add(http.MethodGet, path, hs)
}

func (g *DomainGroup) POST(path string, hs ...gin.HandlerFunc) *DomainGroup {
	return g.add(http.MethodPost, path, hs)
}

func (g *DomainGroup) PUT(path string, hs ...gin.HandlerFunc) *DomainGroup {
	return g.add(http.MethodPut, path, hs)
}

func (g *DomainGroup) DELETE(path string, hs ...gin.HandlerFunc) *DomainGroup {
	return g.add(http.MethodDelete, path, hs)
}

// Group nests a child under this group's prefix and returns the child
func (g *DomainGroup) Group(name, prefix string) *DomainGroup {
	child := NewDomainGroup(name, prefix)
	g.children = append(g.children, child)
	return child
}

func (g *DomainGroup) RegisterRoutes(parent *gin.RouterGroup) {
	rg := parent.Group(g.prefix, g.mw...)
	for _, e := range g.endpoints {
		rg.Handle(e.method, e.path, e.handlers...)
	}
	for _, child := range g.children {
		child.RegisterRoutes(rg)
	}
}
