package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the album and artist routes. Mutations go through
// auth; reads are public.
func RegisterRoutes(router gin.IRouter, handler *Handler, auth gin.HandlerFunc) {
	albumGroup := router.Group("/api/albums")
	{
		albumGroup.GET("/:id/cover", handler.GetAlbumCover)
		albumGroup.PUT("/:id/cover", auth, handler.SetAlbumCover)
	}

	artistGroup := router.Group("/api/artists")
	{
		artistGroup.GET("/:id/songs", handler.GetArtistSongs)
	}
}
