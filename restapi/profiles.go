package restapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sharedcode/profiles"
)

// ProfileResponse is the JSON body of a profile.
type ProfileResponse[T any, M any] struct {
	Key      string `json:"key"`
	Data     T      `json:"data"`
	Metadata M      `json:"metadata"`
	ViewOnly bool   `json:"view_only"`
}

type handlers[T any, M any] struct {
	mgr *profiles.Manager[T, M]
}

func respond[T any, M any](c *gin.Context, p *profiles.Profile[T, M]) {
	data, meta := p.Snapshot()
	c.IndentedJSON(http.StatusOK, ProfileResponse[T, M]{
		Key:      p.Key,
		Data:     data,
		Metadata: meta,
		ViewOnly: p.ViewOnly(),
	})
}

func message(c *gin.Context, status int, format string, args ...any) {
	c.IndentedJSON(status, gin.H{"message": fmt.Sprintf(format, args...)})
}

// fail maps a manager error to its HTTP status.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status = http.StatusGatewayTimeout
	case profiles.CodeOf(err) == profiles.ManagerClosed:
		status = http.StatusServiceUnavailable
	case profiles.CodeOf(err) == profiles.ValidationFailed:
		status = http.StatusUnprocessableEntity
	case profiles.CodeOf(err) == profiles.SessionLost:
		status = http.StatusGone
	case profiles.CodeOf(err) == profiles.PayloadCorrupted:
		status = http.StatusUnprocessableEntity
	}
	message(c, status, "%v", err)
}

// getLoaded godoc
// @Summary Lists the keys of the loaded profiles
// @Tags Profiles
// @Produce json
// @Success 200 {object} []string
// @Router /profiles [get]
// @Security Bearer
func (h *handlers[T, M]) getLoaded(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, h.mgr.Keys())
}

// view godoc
// @Summary Returns a profile, the loaded one or a read-only snapshot
// @Tags Profiles
// @Produce json
// @Param key path string true "Profile key"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /profiles/{key} [get]
// @Security Bearer
func (h *handlers[T, M]) view(c *gin.Context) {
	key := c.Param("key")
	p, err := h.mgr.View(c.Request.Context(), key)
	if err != nil {
		fail(c, err)
		return
	}
	if p == nil {
		message(c, http.StatusNotFound, "profile %s not found", key)
		return
	}
	respond(c, p)
}

// load godoc
// @Summary Loads a profile for exclusive use, waiting while another process holds it
// @Tags Profiles
// @Produce json
// @Param key path string true "Profile key"
// @Success 200 {object} map[string]any
// @Failure 504 {object} map[string]any
// @Router /profiles/{key}/load [post]
// @Security Bearer
func (h *handlers[T, M]) load(c *gin.Context) {
	p, err := h.mgr.Load(c.Request.Context(), c.Param("key"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, p)
}

// replace godoc
// @Summary Replaces the data of a loaded profile
// @Tags Profiles
// @Accept json
// @Produce json
// @Param key path string true "Profile key"
// @Success 200 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /profiles/{key} [put]
// @Security Bearer
func (h *handlers[T, M]) replace(c *gin.Context) {
	key := c.Param("key")
	var data T
	if err := c.ShouldBindJSON(&data); err != nil {
		message(c, http.StatusBadRequest, "invalid profile data: %v", err)
		return
	}
	p, ok := h.mgr.Loaded(key)
	if !ok {
		message(c, http.StatusConflict, "profile %s is not loaded", key)
		return
	}
	p.Mutate(func(d *T) { *d = data })
	respond(c, p)
}

// save godoc
// @Summary Persists a loaded profile
// @Tags Profiles
// @Produce json
// @Param key path string true "Profile key"
// @Success 200 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Failure 422 {object} map[string]any
// @Router /profiles/{key}/save [post]
// @Security Bearer
func (h *handlers[T, M]) save(c *gin.Context) {
	key := c.Param("key")
	ok, err := h.mgr.Save(c.Request.Context(), key)
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		message(c, http.StatusConflict, "profile %s is not loaded", key)
		return
	}
	message(c, http.StatusOK, "profile %s saved", key)
}

// unload godoc
// @Summary Saves and releases a loaded profile
// @Tags Profiles
// @Produce json
// @Param key path string true "Profile key"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Failure 422 {object} map[string]any
// @Router /profiles/{key} [delete]
// @Security Bearer
func (h *handlers[T, M]) unload(c *gin.Context) {
	key := c.Param("key")
	ok, err := h.mgr.Unload(c.Request.Context(), key)
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		message(c, http.StatusNotFound, "profile %s is not loaded", key)
		return
	}
	message(c, http.StatusOK, "profile %s unloaded", key)
}

// delete godoc
// @Summary Removes the stored record of a loaded profile and releases its session
// @Tags Profiles
// @Produce json
// @Param key path string true "Profile key"
// @Success 200 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Failure 410 {object} map[string]any
// @Router /profiles/{key}/data [delete]
// @Security Bearer
func (h *handlers[T, M]) delete(c *gin.Context) {
	key := c.Param("key")
	ok, err := h.mgr.Delete(c.Request.Context(), key)
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		message(c, http.StatusConflict, "profile %s is not loaded", key)
		return
	}
	message(c, http.StatusOK, "profile %s deleted", key)
}

// session godoc
// @Summary Reports whether a profile is loaded here and whether any process holds its session
// @Tags Profiles
// @Produce json
// @Param key path string true "Profile key"
// @Success 200 {object} profiles.SessionStatus
// @Router /profiles/{key}/session [get]
// @Security Bearer
func (h *handlers[T, M]) session(c *gin.Context) {
	st, err := h.mgr.SessionStatus(c.Request.Context(), c.Param("key"))
	if err != nil {
		fail(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, st)
}
