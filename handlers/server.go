package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/speedrun-hq/solver/db"
	solverhttp "github.com/speedrun-hq/solver/http"
	"github.com/speedrun-hq/solver/services"
)

const (
	requestTimeout   = 10 * time.Second
	defaultListLimit = 50
	maxListLimit     = 500
)

// Dependencies carries the services the API exposes.
type Dependencies struct {
	Database db.Database
	Metrics  *services.MetricsService
}

// Config configures the API server.
type Config struct {
	Addr           string
	AllowedOrigins string
	Logger         zerolog.Logger
	LogRequests    bool
	Dependencies   Dependencies
}

// New builds the solver's status API server.
func New(cfg Config) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(solverhttp.CORS(cfg.AllowedOrigins))
	router.Use(solverhttp.Timeout(requestTimeout, cfg.Logger))

	if cfg.LogRequests {
		router.Use(solverhttp.Zerolog(cfg.Logger))
	}

	h := &handler{deps: cfg.Dependencies}

	router.GET("/health", h.health)

	if cfg.Dependencies.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Dependencies.Metrics.Handler()))
	}

	v1 := router.Group("/api/v1")
	{
		orders := v1.Group("/orders")
		{
			orders.GET("", h.listOrders)
			orders.GET("/:id", h.getOrder)
		}
	}

	return &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}
}

type handler struct {
	deps Dependencies
}

func (h *handler) health(c *gin.Context) {
	if err := h.deps.Database.Ping(); err != nil {
		solverhttp.Err(c, http.StatusServiceUnavailable, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) listOrders(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			solverhttp.ErrBadRequest(c, errInvalidLimit)
			return
		}
		limit = parsed
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	orders, err := h.deps.Database.ListOrders(c.Request.Context(), limit)
	if err != nil {
		solverhttp.Err(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *handler) getOrder(c *gin.Context) {
	order, err := h.deps.Database.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		solverhttp.ErrNotFound(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}
