// Package restapi surfaces a profile manager over HTTP with gin.
package restapi

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/sharedcode/profiles"
)

// HTTPVerb enumerates supported HTTP operations.
type HTTPVerb int

const (
	// Unknown represents an unspecified HTTP verb.
	Unknown HTTPVerb = iota
	// GET lists or retrieves resources.
	GET
	// DELETE removes resources.
	DELETE
	// POST creates resources or runs an action on them.
	POST
	// PUT replaces resources.
	PUT
)

// RestMethod describes a REST route handler.
type RestMethod struct {
	Verb    HTTPVerb
	Path    string
	Handler gin.HandlerFunc
}

// Methods returns the routes serving mgr.
func Methods[T any, M any](mgr *profiles.Manager[T, M]) []RestMethod {
	h := &handlers[T, M]{mgr: mgr}
	return []RestMethod{
		{Verb: GET, Path: "/profiles", Handler: h.getLoaded},
		{Verb: GET, Path: "/profiles/:key", Handler: h.view},
		{Verb: POST, Path: "/profiles/:key/load", Handler: h.load},
		{Verb: PUT, Path: "/profiles/:key", Handler: h.replace},
		{Verb: POST, Path: "/profiles/:key/save", Handler: h.save},
		{Verb: DELETE, Path: "/profiles/:key", Handler: h.unload},
		{Verb: DELETE, Path: "/profiles/:key/data", Handler: h.delete},
		{Verb: GET, Path: "/profiles/:key/session", Handler: h.session},
	}
}

// Register mounts the routes of mgr on router, each behind verify when it is not nil.
func Register[T any, M any](router gin.IRouter, mgr *profiles.Manager[T, M], verify gin.HandlerFunc) error {
	for _, rm := range Methods(mgr) {
		chain := []gin.HandlerFunc{rm.Handler}
		if verify != nil {
			chain = []gin.HandlerFunc{verify, rm.Handler}
		}
		switch rm.Verb {
		case GET:
			router.GET(rm.Path, chain...)
		case DELETE:
			router.DELETE(rm.Path, chain...)
		case POST:
			router.POST(rm.Path, chain...)
		case PUT:
			router.PUT(rm.Path, chain...)
		default:
			return fmt.Errorf("HTTP verb %d not supported", rm.Verb)
		}
	}
	return nil
}
