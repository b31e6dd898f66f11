package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

// actorFrom reads the acting principal from the request. Requests
// without an X-Actor header act as the system principal.
func actorFrom(c *gin.Context) string {
	actor := strings.TrimSpace(c.GetHeader("X-Actor"))
	if actor == "" {
		return "system"
	}
	return actor
}

func (s *Server) authorize(c *gin.Context, object, action string) bool {
	slug := c.Param("slug")
	space, err := s.spaces.Open(c.Request.Context(), slug)
	if err != nil {
		AbortWithError(c, err)
		return false
	}
	if err := s.authzSvc.Authorize(c.Request.Context(), space, actorFrom(c), object, action); err != nil {
		AbortWithError(c, err)
		return false
	}
	return true
}

func (s *Server) listBoards(c *gin.Context) {
	if !s.authorize(c, "boards", "view") {
		return
	}
	boards, err := s.boardSvc.List(c.Request.Context(), c.Param("slug"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"boards": boards})
}

type createBoardRequest struct {
	Name  string `json:"name" binding:"required"`
	Color string `json:"color"`
}

func (s *Server) createBoard(c *gin.Context) {
	if !s.authorize(c, "boards", "create") {
		return
	}
	var req createBoardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("name", "required", "name is required"))
		return
	}
	created, err := s.boardSvc.Create(c.Request.Context(), c.Param("slug"), req.Name, req.Color)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) deleteBoard(c *gin.Context) {
	if !s.authorize(c, "boards", "delete") {
		return
	}
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid", "invalid board id"))
		return
	}
	if err := s.boardSvc.Delete(c.Request.Context(), c.Param("slug"), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id.String()})
}
