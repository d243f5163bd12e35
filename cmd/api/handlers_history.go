package main

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/smashers-ai/smashers/internal/storage"
	"github.com/smashers-ai/smashers/pkg/models"
)

func (api *API) listHistory(c *gin.Context) {
	store := api.histories(userID(c))

	if raw := c.Query("summaries"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid summaries limit"})
			return
		}
		summaries, err := store.Summaries(c.Request.Context(), limit)
		if err != nil {
			api.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"summaries": summaries})
		return
	}

	entries, err := store.List(c.Request.Context())
	if err != nil {
		api.respondError(c, err)
		return
	}
	if entries == nil {
		entries = []*models.HistoryEntry{}
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

func (api *API) getHistory(c *gin.Context) {
	entry, err := api.histories(userID(c)).Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (api *API) deleteHistory(c *gin.Context) {
	if err := api.histories(userID(c)).Delete(c.Request.Context(), c.Param("id")); err != nil {
		api.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (api *API) clearHistory(c *gin.Context) {
	uid := userID(c)
	if err := api.histories(uid).Clear(c.Request.Context()); err != nil {
		api.respondError(c, err)
		return
	}
	if err := api.sources.DeleteAll(c.Request.Context(), storage.ClipPrefix(uid)); err != nil {
		api.logger.WithError(err).WithUserID(uid).Warn("Failed to delete stored clips")
	}
	c.Status(http.StatusNoContent)
}

func (api *API) exportHistory(c *gin.Context) {
	data, err := api.histories(userID(c)).Export(c.Request.Context())
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="smashers-history.json"`)
	c.Data(http.StatusOK, "application/json", data)
}

func (api *API) getProfile(c *gin.Context) {
	profile, err := api.profiles.Get(c.Request.Context(), userID(c))
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"profile":    profile,
		"avatar_url": profile.AvatarURL(),
	})
}

func (api *API) updateProfile(c *gin.Context) {
	var update models.ProfileUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile, err := api.profiles.Update(c.Request.Context(), userID(c), update)
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"profile":    profile,
		"avatar_url": profile.AvatarURL(),
	})
}

func (api *API) resetProfile(c *gin.Context) {
	profile, err := api.profiles.Reset(c.Request.Context(), userID(c))
	if err != nil {
		api.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"profile":    profile,
		"avatar_url": profile.AvatarURL(),
	})
}
