package ws

import (
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"chat-direct/auth"
	"chat-direct/errors"
	"chat-direct/services"
	"chat-direct/sink"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Handler wires the HTTP surface: auth endpoints, the websocket upgrade
// and the REST reads (conversations, paginated messages, search, history).
type Handler struct {
	log         *slog.Logger
	authService services.IAuthService
	chatService services.IChatService
	tokens      *auth.TokenManager
	bufferSize  int
	sinkTimeout time.Duration
}

func NewHandler(log *slog.Logger, authService services.IAuthService, chatService services.IChatService,
	tokens *auth.TokenManager, bufferSize int, sinkTimeout time.Duration) *Handler {
	return &Handler{
		log:         log,
		authService: authService,
		chatService: chatService,
		tokens:      tokens,
		bufferSize:  bufferSize,
		sinkTimeout: sinkTimeout,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.POST("/auth/register", h.register)
	router.POST("/auth/login", h.login)

	authorized := router.Group("/", auth.Middleware(h.tokens))
	authorized.GET("/ws", h.serveWS)
	authorized.GET("/conversations", h.listConversations)
	authorized.GET("/conversations/:id/messages", h.listMessages)
	authorized.GET("/conversations/:id/search", h.searchMessages)
	authorized.GET("/messages/:id/history", h.messageHistory)
}

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) register(c *gin.Context) {
	var body credentialsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, err := h.authService.Register(body.Email, body.Password)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token})
}

func (h *Handler) login(c *gin.Context) {
	var body credentialsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, err := h.authService.Login(body.Email, body.Password)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// serveWS upgrades the connection and blocks in the client loop until the
// socket closes. One live connection per user; a second upgrade
// supersedes the first.
func (h *Handler) serveWS(c *gin.Context) {
	userID := c.MustGet(auth.UserIDKey).(uuid.UUID)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "user", userID, "error", err)
		return
	}

	s := sink.NewChannelSink(h.log, h.bufferSize, h.sinkTimeout)
	client := NewClient(h.log, conn, userID, h.chatService, s)
	client.Run(c.Request.Context())
}

func (h *Handler) listConversations(c *gin.Context) {
	userID := c.MustGet(auth.UserIDKey).(uuid.UUID)
	conversations, err := h.chatService.Conversations(userID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

func (h *Handler) listMessages(c *gin.Context) {
	userID := c.MustGet(auth.UserIDKey).(uuid.UUID)
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	var cursor *string
	if raw := c.Query("cursor"); raw != "" {
		cursor = lo.ToPtr(raw)
	}

	messages, next, err := h.chatService.Messages(userID, conversationID, cursor)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "cursor": next})
}

func (h *Handler) searchMessages(c *gin.Context) {
	userID := c.MustGet(auth.UserIDKey).(uuid.UUID)
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter q"})
		return
	}

	messages, err := h.chatService.Search(c.Request.Context(), userID, conversationID, query)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *Handler) messageHistory(c *gin.Context) {
	userID := c.MustGet(auth.UserIDKey).(uuid.UUID)
	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	history, err := h.chatService.History(userID, messageID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// renderError maps the error taxonomy onto HTTP statuses. Unknown errors
// stay opaque to the client.
func (h *Handler) renderError(c *gin.Context, err error) {
	switch {
	case stderrors.Is(err, errors.ErrValidation),
		stderrors.Is(err, errors.ErrInvalidPassword),
		stderrors.Is(err, errors.ErrEmptyContent),
		stderrors.Is(err, errors.ErrSelfConversation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case stderrors.Is(err, errors.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case stderrors.Is(err, errors.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case stderrors.Is(err, errors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case stderrors.Is(err, errors.ErrUserAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.log.Error("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
