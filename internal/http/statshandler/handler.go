package statshandler

import (
	"net/http"

	"roomrelay/internal/relay"

	"github.com/gin-gonic/gin"
)

// StatsSource is satisfied by *relay.Sessions and *relay.Registry.
type StatsSource interface {
	Stats() relay.Stats
}

type Handler struct {
	src StatsSource
}

func New(src StatsSource) *Handler { return &Handler{src: src} }

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/health", h.health)
	r.GET("/stats", h.stats)
}

// @Summary		Health check
// @Tags			Ops
// @Success		200	{object}	HealthResponse
// @Router			/health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Message: "Server is running"})
}

// @Summary		Connection statistics
// @Description	Live connections, populated rooms and connected identities of this instance.
// @Tags			Ops
// @Success		200	{object}	StatsResponse
// @Router			/stats [get]
func (h *Handler) stats(c *gin.Context) {
	st := h.src.Stats()
	c.JSON(http.StatusOK, StatsResponse{
		ActiveConnections: st.Connections,
		ActiveRooms:       len(st.Rooms),
		Rooms:             st.Rooms,
		Users:             st.Users,
	})
}
