package quotehttp

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"teklif/internal/logger"
	"teklif/internal/types"
)

// Router exposes quote submission and polling.
type Router struct {
	quotes QuoteService
}

func NewRouter(quotes QuoteService) *Router {
	return &Router{quotes: quotes}
}

// Register mounts the quote routes under the given group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.POST("/quotes", r.handleSubmit)
	group.GET("/quotes", r.handleListRecent)
	group.GET("/quotes/:id", r.handleStatus)
}

type submitRequest struct {
	Branch         string         `json:"branch" binding:"required"`
	Providers      []string       `json:"providers"`
	IdempotencyKey string         `json:"idempotency_key"`
	CustomerData   map[string]any `json:"customer_data" binding:"required"`
}

func (r *Router) handleSubmit(c *gin.Context) {
	var body submitRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		logger.Warnf("[api] quote submit bind failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	branch, err := types.ParseBranch(body.Branch)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	providers := make([]types.ProviderID, 0, len(body.Providers))
	for _, p := range body.Providers {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		providers = append(providers, types.ProviderID(p))
	}

	id, err := r.quotes.Submit(types.QuoteRequest{
		Branch:         branch,
		Providers:      providers,
		IdempotencyKey: strings.TrimSpace(body.IdempotencyKey),
		CustomerData:   body.CustomerData,
	})
	if err != nil {
		logger.Warnf("[api] quote submit rejected ip=%s branch=%s err=%v", c.ClientIP(), branch, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] quote submitted ip=%s branch=%s providers=%d id=%s", c.ClientIP(), branch, len(providers), id)
	c.JSON(http.StatusAccepted, gin.H{"request_id": id, "status": string(types.StatusRunning)})
}

func (r *Router) handleStatus(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request id required"})
		return
	}
	res, err := r.quotes.GetStatus(id)
	if err != nil {
		var notFound *types.NotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		logger.Errorf("[api] quote status failed ip=%s id=%s err=%v", c.ClientIP(), id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (r *Router) handleListRecent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	c.JSON(http.StatusOK, gin.H{"requests": r.quotes.ListRecent(limit)})
}
