package approuters

import (
	"github.com/gin-gonic/gin"

	"github.com/Psyodrz/SkillSynergy-sub001/internal/configuration"
)

func ConversationRouters(router *gin.Engine, container *configuration.Container) {
	conversationRoute := router.Group("/ss/api/conversations")
	{
		conversationRoute.GET("/:peerId/messages", container.ConversationHandler.GetHistory)
		conversationRoute.GET("/:peerId/summary", container.ConversationHandler.GetSummary)
	}

	presenceRoute := router.Group("/ss/api/presence")
	{
		presenceRoute.GET("/online", container.ConversationHandler.GetOnlineUsers)
		presenceRoute.GET("/:userId", container.ConversationHandler.GetPeerStatus)
	}
}
