package approuters

import (
	"github.com/gin-gonic/gin"

	"github.com/Psyodrz/SkillSynergy-sub001/internal/configuration"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/handler"
	"github.com/Psyodrz/SkillSynergy-sub001/internal/hub"
)

// MonitorRouters sets up monitoring API routes
func MonitorRouters(router *gin.Engine, container *configuration.Container) {
	monitorService := hub.NewMonitorService(container.Hub)
	monitorHandler := handler.NewMonitorHandler(monitorService)

	monitorGroup := router.Group("/ss/api/monitor")
	{
		monitorGroup.GET("/stats", monitorHandler.GetHubStats)
	}
}
