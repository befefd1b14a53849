package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ngoclaw/ngoclaw/bridge/internal/application/usecase"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"go.uber.org/zap"
)

// LinkService 绑定管理接口
type LinkService interface {
	Link(ctx context.Context, master entity.MasterChatUID, slave entity.SlaveChatUID) (*usecase.LinkView, error)
	Unlink(ctx context.Context, master entity.MasterChatUID, slave entity.SlaveChatUID) (int64, error)
	Links(ctx context.Context, master entity.MasterChatUID) ([]usecase.LinkView, error)
	All(ctx context.Context) ([]usecase.LinkView, error)
	Chats(ctx context.Context, channelID string) ([]*entity.ChatInfo, error)
}

// LinkHandler 会话绑定 API
type LinkHandler struct {
	links  LinkService
	logger *zap.Logger
}

// NewLinkHandler 创建绑定处理器
func NewLinkHandler(links LinkService, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{links: links, logger: logger}
}

// LinkRequest 绑定请求
type LinkRequest struct {
	Master string `json:"master" binding:"required"`
	Slave  string `json:"slave" binding:"required"`
}

// List 列出绑定
// GET /api/v1/links?master=<chat>
func (h *LinkHandler) List(c *gin.Context) {
	var (
		views []usecase.LinkView
		err   error
	)
	if master := c.Query("master"); master != "" {
		views, err = h.links.Links(c.Request.Context(), entity.MasterChatUID(master))
	} else {
		views, err = h.links.All(c.Request.Context())
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"links": views, "count": len(views)})
}

// Create 创建绑定
// POST /api/v1/links
func (h *LinkHandler) Create(c *gin.Context) {
	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	view, err := h.links.Link(c.Request.Context(), entity.MasterChatUID(req.Master), entity.SlaveChatUID(req.Slave))
	if err != nil {
		h.logger.Warn("Link failed", zap.String("master_chat", req.Master), zap.String("slave_chat", req.Slave), zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// Delete 解除绑定
// DELETE /api/v1/links?master=<chat>[&slave=<channel.chat>]
func (h *LinkHandler) Delete(c *gin.Context) {
	master := c.Query("master")
	if master == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "master is required"})
		return
	}
	n, err := h.links.Unlink(c.Request.Context(), entity.MasterChatUID(master), entity.SlaveChatUID(c.Query("slave")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": n})
}

// ChatResponse 从会话缓存信息
type ChatResponse struct {
	UID       string `json:"uid"`
	Name      string `json:"name"`
	Alias     string `json:"alias,omitempty"`
	Type      string `json:"type"`
	UpdatedAt int64  `json:"updated_at"`
}

// Chats 列出从通道已知会话
// GET /api/v1/chats/:channel
func (h *LinkHandler) Chats(c *gin.Context) {
	infos, err := h.links.Chats(c.Request.Context(), c.Param("channel"))
	if err != nil {
		respondError(c, err)
		return
	}
	chats := make([]ChatResponse, 0, len(infos))
	for _, info := range infos {
		chats = append(chats, ChatResponse{
			UID:       string(info.SlaveUID()),
			Name:      info.Name,
			Alias:     info.Alias,
			Type:      string(info.Type),
			UpdatedAt: info.UpdatedAt.Unix(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats, "count": len(chats)})
}
