package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	_ "github.com/urmzd/centrald/docs"
	"github.com/urmzd/centrald/pkg/api/handlers"
	"github.com/urmzd/centrald/pkg/db"
)

// Router holds the Gin engine and dependencies
type Router struct {
	engine   *gin.Engine
	coord    handlers.Coordinator
	messages db.MessageStore
}

// NewRouter creates a new API router
func NewRouter(coord handlers.Coordinator, messages db.MessageStore) *Router {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	SetupMiddleware(engine)

	router := &Router{
		engine:   engine,
		coord:    coord,
		messages: messages,
	}

	router.setupRoutes()

	return router
}

// setupRoutes configures all API routes
func (r *Router) setupRoutes() {
	// Swagger UI
	r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.engine.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})

	healthHandler := handlers.NewHealthHandler(r.coord)
	r.engine.GET("/health", healthHandler.Health)

	v1 := r.engine.Group("/api/v1")
	{
		v1.GET("/health", healthHandler.Health)

		stateHandler := handlers.NewStateHandler(r.coord)
		v1.GET("/state", stateHandler.GetState)

		sessionsHandler := handlers.NewSessionsHandler(r.coord)
		sessions := v1.Group("/sessions")
		{
			sessions.GET("", sessionsHandler.ListSessions)
			sessions.GET("/:id", sessionsHandler.GetSession)
		}

		if r.messages != nil {
			messagesHandler := handlers.NewMessagesHandler(r.messages)
			v1.GET("/messages", messagesHandler.ListMessages)
		}

		eventsHandler := handlers.NewEventsHandler(r.coord)
		v1.GET("/events", eventsHandler.Events)
	}
}

// Handler exposes the engine for http.Server and tests.
func (r *Router) Handler() http.Handler {
	return r.engine
}
