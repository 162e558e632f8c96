package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-tawk-backend/internal/domain"
	"github.com/tbourn/go-tawk-backend/internal/search"
	"github.com/tbourn/go-tawk-backend/internal/services"
	"github.com/tbourn/go-tawk-backend/internal/utils"
)

const maxStrangerResults = 50

// ProfilesResponse wraps a list of public profiles.
type ProfilesResponse struct {
	Users []domain.Profile `json:"users"`
}

// GetUser godoc
// @ID          getUser
// @Summary     Get a user
// @Description Returns the profile and presence status of a user.
// @Tags        Users
// @Produce     json
//
// @Param       id  path  string  true  "User ID"
//
// @Success     200  {object}  domain.User
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id} [get]
func (h *Handlers) GetUser(c *gin.Context) {
	u, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	u.ConnectionRef = nil
	ok(c, http.StatusOK, u)
}

// UpdateUser godoc
// @ID          updateUser
// @Summary     Edit own profile
// @Description Only the owner may edit a profile; absent fields are left unchanged.
// @Tags        Users
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Calling user ID"  example(alice)
// @Param       id         path    string                 true  "User ID"
// @Param       body       body    services.ProfilePatch  true  "Fields to change"
//
// @Success     200  {object}  domain.User
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing caller"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /users/{id} [patch]
func (h *Handlers) UpdateUser(c *gin.Context) {
	uid, okSelf := self(c)
	if !okSelf {
		return
	}
	var patch services.ProfilePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid profile document")
		return
	}
	u, err := h.users.Update(c.Request.Context(), uid, patch)
	if err != nil {
		failErr(c, err)
		return
	}
	u.ConnectionRef = nil
	ok(c, http.StatusOK, u)
}

// ListStrangers godoc
// @ID          listStrangers
// @Summary     List people to befriend
// @Description Verified users who are neither the caller nor already friends.
// @Description With q the list is narrowed to name matches, best first.
// @Tags        Users
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Calling user ID"  example(alice)
// @Param       id         path    string  true   "User ID"
// @Param       q          query   string  false  "Name query"
// @Param       limit      query   int     false  "Max matches when q is set"  minimum(1) maximum(50) default(50)
//
// @Success     200  {object}  handlers.ProfilesResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing caller"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id}/strangers [get]
func (h *Handlers) ListStrangers(c *gin.Context) {
	uid, okSelf := self(c)
	if !okSelf {
		return
	}
	out, err := h.users.ListStrangers(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		limit := utils.AtoiDefault(c.Query("limit"), maxStrangerResults)
		if limit <= 0 || limit > maxStrangerResults {
			limit = maxStrangerResults
		}
		hits := search.NewProfileIndex(out).TopK(q, limit)
		out = make([]domain.Profile, 0, len(hits))
		for _, r := range hits {
			out = append(out, r.Profile)
		}
	}
	ok(c, http.StatusOK, ProfilesResponse{Users: nonNil(out)})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
