package server

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the task API on rg.
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	tasks := rg.Group("/tasks")
	{
		tasks.POST("", handlers.HandleSubmit)
		tasks.GET("", handlers.HandleList)
		tasks.GET("/:id", handlers.HandleGet)
	}

	rg.GET("/graph", handlers.HandleGraph)
}
