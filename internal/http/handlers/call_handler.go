package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-tawk-backend/internal/domain"
	"github.com/tbourn/go-tawk-backend/internal/utils"
)

const (
	defaultCallLimit = 50
	maxCallLimit     = 200
)

// CallsResponse lists call records, newest first.
type CallsResponse struct {
	Calls []domain.CallRecord `json:"calls"`
}

// ListCalls godoc
// @ID          listCalls
// @Summary     List call history
// @Description Call records of the caller, newest first.
// @Tags        Calls
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Calling user ID"  example(alice)
// @Param       id         path    string  true   "User ID"
// @Param       limit      query   int     false  "Max records"  minimum(1) maximum(200) default(50)
//
// @Success     200  {object}  handlers.CallsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing caller"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id}/calls [get]
func (h *Handlers) ListCalls(c *gin.Context) {
	uid, okSelf := self(c)
	if !okSelf {
		return
	}
	limit := utils.AtoiDefault(c.Query("limit"), defaultCallLimit)
	if limit < 1 {
		limit = defaultCallLimit
	}
	if limit > maxCallLimit {
		limit = maxCallLimit
	}
	out, err := h.calls.ListCalls(c.Request.Context(), uid, limit)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, CallsResponse{Calls: nonNil(out)})
}
