package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	apperrors "github.com/ngoclaw/ngoclaw/bridge/pkg/errors"
)

// respondError 将错误映射为 HTTP 状态码
func respondError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	switch {
	case errors.Is(err, entity.ErrSlaveNotFound):
		status = http.StatusNotFound
	case errors.Is(err, entity.ErrInvalidSlaveChatUID),
		errors.Is(err, entity.ErrInvalidMasterMessageUID),
		errors.Is(err, entity.ErrInvalidChannelID):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
