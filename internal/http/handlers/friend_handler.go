package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-tawk-backend/internal/domain"
)

// FriendRequestsResponse lists pending requests addressed to the caller.
type FriendRequestsResponse struct {
	Requests []domain.FriendRequest `json:"requests"`
}

// ListFriends godoc
// @ID          listFriends
// @Summary     List a user's friends
// @Description Friend lists are public.
// @Tags        Friends
// @Produce     json
//
// @Param       id  path  string  true  "User ID"
//
// @Success     200  {object}  handlers.ProfilesResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id}/friends [get]
func (h *Handlers) ListFriends(c *gin.Context) {
	out, err := h.friends.ListFriends(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ProfilesResponse{Users: nonNil(out)})
}

// ListFriendRequests godoc
// @ID          listFriendRequests
// @Summary     List pending friend requests
// @Tags        Friends
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Calling user ID"  example(alice)
// @Param       id         path    string  true  "User ID"
//
// @Success     200  {object}  handlers.FriendRequestsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing caller"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id}/friend-requests [get]
func (h *Handlers) ListFriendRequests(c *gin.Context) {
	uid, okSelf := self(c)
	if !okSelf {
		return
	}
	out, err := h.friends.ListPending(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, FriendRequestsResponse{Requests: nonNil(out)})
}

// SendFriendRequest godoc
// @ID          sendFriendRequest
// @Summary     Send a friend request
// @Description The recipient is notified over the socket if online.
// @Tags        Friends
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Calling user ID"  example(alice)
// @Param       body       body    handlers.TargetRequest  true  "Recipient"
//
// @Success     201  {object}  domain.FriendRequest
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing caller"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already friends or requested"
// @Router      /friend-requests [post]
func (h *Handlers) SendFriendRequest(c *gin.Context) {
	uid, okID := actor(c)
	if !okID {
		return
	}
	to, okTo := bindTo(c)
	if !okTo {
		return
	}
	r, err := h.friends.SendRequest(c.Request.Context(), uid, to)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, r)
}

// AcceptFriendRequest godoc
// @ID          acceptFriendRequest
// @Summary     Accept a friend request
// @Description Only the recipient can see, and so accept, a request.
// @Tags        Friends
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Calling user ID"  example(alice)
// @Param       id         path    string  true  "Friend request ID"
//
// @Success     200  {object}  domain.FriendRequest
// @Failure     401  {object}  handlers.ErrorResponse  "Missing caller"
// @Failure     404  {object}  handlers.ErrorResponse  "Request not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /friend-requests/{id}/accept [post]
func (h *Handlers) AcceptFriendRequest(c *gin.Context) {
	uid, okID := actor(c)
	if !okID {
		return
	}
	r, err := h.friends.AcceptRequest(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// RejectFriendRequest godoc
// @ID          rejectFriendRequest
// @Summary     Reject a friend request
// @Tags        Friends
//
// @Param       X-User-ID  header  string  true  "Calling user ID"  example(alice)
// @Param       id         path    string  true  "Friend request ID"
//
// @Success     204  "Rejected"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing caller"
// @Failure     404  {object}  handlers.ErrorResponse  "Request not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /friend-requests/{id} [delete]
func (h *Handlers) RejectFriendRequest(c *gin.Context) {
	uid, okID := actor(c)
	if !okID {
		return
	}
	if err := h.friends.RejectRequest(c.Request.Context(), c.Param("id"), uid); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
