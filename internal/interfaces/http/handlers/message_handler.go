package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/entity"
	"github.com/ngoclaw/ngoclaw/bridge/internal/domain/repository"
	"go.uber.org/zap"
)

// MessageHandler 关联日志查询 API
type MessageHandler struct {
	log    repository.MessageLogRepository
	logger *zap.Logger
}

// NewMessageHandler 创建日志查询处理器
func NewMessageHandler(log repository.MessageLogRepository, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{log: log, logger: logger}
}

// RecordResponse 关联记录
type RecordResponse struct {
	MasterMsgID     string    `json:"master_msg_id"`
	MasterMsgIDAlt  string    `json:"master_msg_id_alt,omitempty"`
	SlaveMessageID  string    `json:"slave_message_id"`
	SlaveOrigin     string    `json:"slave_origin"`
	SlaveOriginName string    `json:"slave_origin_name,omitempty"`
	SlaveMember     string    `json:"slave_member,omitempty"`
	SlaveMemberName string    `json:"slave_member_name,omitempty"`
	Type            string    `json:"type"`
	Direction       string    `json:"direction"`
	Text            string    `json:"text"`
	MIME            string    `json:"mime,omitempty"`
	Pending         bool      `json:"pending"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewRecordResponse 转换关联记录
func NewRecordResponse(r *entity.MessageRecord) RecordResponse {
	return RecordResponse{
		MasterMsgID:     string(r.MasterMsgID),
		MasterMsgIDAlt:  string(r.MasterMsgIDAlt),
		SlaveMessageID:  r.SlaveMessageID,
		SlaveOrigin:     string(r.SlaveOriginUID),
		SlaveOriginName: r.SlaveOriginDisplayName,
		SlaveMember:     r.SlaveMemberUID,
		SlaveMemberName: r.SlaveMemberDisplayName,
		Type:            string(r.MessageType),
		Direction:       string(r.Direction),
		Text:            r.Text,
		MIME:            r.MIME,
		Pending:         r.IsPending() || r.MasterMsgID.IsPending(),
		CreatedAt:       r.CreatedAt,
	}
}

// Get 按主消息 ID 查询
// GET /api/v1/messages/:id
func (h *MessageHandler) Get(c *gin.Context) {
	id := entity.MasterMessageUID(c.Param("id"))
	if _, _, err := id.Split(); err != nil {
		respondError(c, err)
		return
	}
	record, err := h.log.GetByMaster(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	c.JSON(http.StatusOK, NewRecordResponse(record))
}

// Recent 主会话最近的从会话
// GET /api/v1/recent/:master?limit=5
func (h *MessageHandler) Recent(c *gin.Context) {
	limit := repository.DefaultRecentChatsLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	chats, err := h.log.RecentSlaveChats(c.Request.Context(), entity.MasterChatUID(c.Param("master")), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats, "count": len(chats)})
}
