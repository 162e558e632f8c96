package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-tawk-backend/internal/domain"
	"github.com/tbourn/go-tawk-backend/internal/repo"
	"github.com/tbourn/go-tawk-backend/internal/utils"
)

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ConversationsResponse lists the caller's conversations.
type ConversationsResponse struct {
	Conversations []domain.Conversation `json:"conversations"`
}

// ListMessagesResponse contains a page of messages, oldest first.
type ListMessagesResponse struct {
	ConversationID string           `json:"conversation_id"`
	Messages       []domain.Message `json:"messages"`
	Pagination     Pagination       `json:"pagination"`
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List direct conversations
// @Tags        Conversations
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Calling user ID"  example(alice)
// @Param       id         path    string  true  "User ID"
//
// @Success     200  {object}  handlers.ConversationsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing caller"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id}/conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	uid, okSelf := self(c)
	if !okSelf {
		return
	}
	out, err := h.convs.ListForUser(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ConversationsResponse{Conversations: nonNil(out)})
}

// StartConversation godoc
// @ID          startConversation
// @Summary     Find or create a direct conversation
// @Description Returns the existing conversation of the pair or creates an empty one.
// @Tags        Conversations
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Calling user ID"  example(alice)
// @Param       body       body    handlers.TargetRequest  true  "Other participant"
//
// @Success     200  {object}  domain.Conversation
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing caller"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /conversations [post]
func (h *Handlers) StartConversation(c *gin.Context) {
	uid, okID := actor(c)
	if !okID {
		return
	}
	to, okTo := bindTo(c)
	if !okTo {
		return
	}
	conv, err := h.convs.FindOrCreate(c.Request.Context(), uid, to)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, conv)
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages in a conversation
// @Description Only participants may read. Responses carry a weak ETag derived
// @Description from the message count and the newest timestamp.
// @Tags        Conversations
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Calling user ID"  example(alice)
// @Param       id         path    string  true   "Conversation ID"
// @Param       page       query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Param       If-None-Match  header  string  false  "ETag of a previous response"
//
// @Success     200  {object}  handlers.ListMessagesResponse
// @Success     304  "Not modified"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing caller"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /conversations/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	uid, okID := actor(c)
	if !okID {
		return
	}
	cid := c.Param("id")

	conv, err := h.convs.Get(ctx, cid)
	if err != nil {
		failErr(c, err)
		return
	}
	if !conv.Has(uid) {
		// Non-participants learn nothing about the conversation.
		fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		return
	}

	page, pageSize := utils.ParsePage(c.Query("page"), c.Query("page_size"))

	if h.db != nil {
		if count, latest, err := repo.MessagesStats(ctx, h.db, cid); err == nil {
			var ts int64
			if latest != nil {
				ts = latest.UnixNano()
			}
			etag := fmt.Sprintf(`W/"messages:%s:%d:%d:%d:%d"`, cid, count, ts, page, pageSize)
			c.Header("ETag", etag)
			if c.GetHeader("If-None-Match") == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.convs.ListMessagesPage(ctx, cid, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListMessagesResponse{
		ConversationID: cid,
		Messages:       nonNil(items),
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
