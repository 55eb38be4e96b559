package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Psyodrz/SkillSynergy-sub001/internal/service"
)

type ConversationHandler interface {
	GetHistory(c *gin.Context)
	GetSummary(c *gin.Context)
	GetPeerStatus(c *gin.Context)
	GetOnlineUsers(c *gin.Context)
}

type conversationHandler struct {
	service service.ConversationService
}

func NewConversationHandler(service service.ConversationService) ConversationHandler {
	return &conversationHandler{
		service: service,
	}
}

// GetHistory returns a page of the conversation between the requesting
// user and a peer, oldest first.
func (h *conversationHandler) GetHistory(c *gin.Context) {
	selfID := c.Query("userId")
	peerID := c.Param("peerId")
	if selfID == "" || peerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and peerId are required"})
		return
	}

	page := c.DefaultQuery("page", "1")
	pageNumber, err := strconv.ParseInt(page, 10, 64)
	if err != nil || pageNumber < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page number"})
		return
	}

	result, err := h.service.History(c.Request.Context(), selfID, peerID, pageNumber)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": result})
}

// GetSummary returns the inbox row for one peer: last message preview
// plus unread count.
func (h *conversationHandler) GetSummary(c *gin.Context) {
	selfID := c.Query("userId")
	peerID := c.Param("peerId")
	if selfID == "" || peerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and peerId are required"})
		return
	}

	summary, err := h.service.Summary(c.Request.Context(), selfID, peerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get summary"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation": summary})
}

// GetPeerStatus returns online/last-seen for any user.
func (h *conversationHandler) GetPeerStatus(c *gin.Context) {
	userID := c.Param("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	status, err := h.service.PeerStatus(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": status})
}

// GetOnlineUsers lists the currently attached users, excluding the
// requester when userId is given.
func (h *conversationHandler) GetOnlineUsers(c *gin.Context) {
	selfID := c.Query("userId")

	c.JSON(http.StatusOK, gin.H{
		"users": h.service.OnlineUsers(selfID),
	})
}
