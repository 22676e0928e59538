package telegram

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// UpdateHandler consumes one admitted transport update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update Update)
}

// Webhook is the inbound HTTP surface. Business failures never produce a
// non-200 response; giving the transport a retryable status would only cause
// a redelivery storm. Only a secret mismatch (401) and a malformed body (400)
// are rejected.
type Webhook struct {
	secret  string
	handler UpdateHandler
	logger  *zap.Logger

	inflight sync.WaitGroup
}

func NewWebhook(secret string, handler UpdateHandler, logger *zap.Logger) *Webhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Webhook{secret: secret, handler: handler, logger: logger}
}

// Register mounts the webhook and the health endpoint on the router.
func (w *Webhook) Register(router *gin.Engine, path string) {
	router.POST(path, w.handle)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
}

func (w *Webhook) handle(c *gin.Context) {
	if w.secret != "" && c.GetHeader(secretTokenHeader) != w.secret {
		w.logger.Warn("webhook secret token mismatch", zap.String("remote", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false})
		return
	}

	var update Update
	if err := c.ShouldBindJSON(&update); err != nil {
		w.logger.Warn("malformed webhook body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"ok": false})
		return
	}

	// Processing involves oracle calls measured in seconds; acknowledge the
	// transport immediately and handle the update on its own goroutine.
	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()
		w.handler.HandleUpdate(context.Background(), update)
	}()

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Drain blocks until every in-flight update has been handled, or the context
// expires. Called during shutdown after the listener stops accepting.
func (w *Webhook) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
