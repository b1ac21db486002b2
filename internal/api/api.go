// Package api exposes the REST surface: auth, user profile, game result
// settlement, the rating screen and the tree garden.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/greenworld/greenworld/internal/account"
	"github.com/greenworld/greenworld/internal/domain"
	"github.com/greenworld/greenworld/internal/errors"
	"github.com/greenworld/greenworld/internal/event"
	"github.com/greenworld/greenworld/internal/rating"
	"github.com/greenworld/greenworld/internal/result"
	"github.com/greenworld/greenworld/internal/trees"
)

const userKey = "api.user"

type Config struct {
	Router   *gin.Engine
	EventBus *event.Bus

	Account *account.Service
	Result  *result.Service
	Rating  *rating.Service
	Trees   *trees.Service

	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	account *account.Service
	result  *result.Service
	rating  *rating.Service
	trees   *trees.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		account: c.Account,
		result:  c.Result,
		rating:  c.Rating,
		trees:   c.Trees,
		redis:   c.Redis,
		prefix:  c.PubsubPrefix,
	}

	r := c.Router
	r.POST("/auth/register", a.register)
	r.POST("/auth/login", a.login)

	auth := r.Group("/", a.authenticate)
	auth.GET("/users/me", a.me)
	auth.POST("/games/result", a.submitResult)
	auth.GET("/rating", a.getRating)
	auth.GET("/trees", a.listTrees)
	auth.POST("/trees/:slot/buy", a.buyTree)
	auth.POST("/trees/:slot/upgrade", a.upgradeTree)

	c.EventBus.Subscribe(domain.EventNameRatingUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishRatingUpdated(ctx, e.(domain.EventRatingUpdated))
	})

	return a
}

func (a *API) authenticate(c *gin.Context) {
	h := c.GetHeader("Authorization")
	tok, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || tok == "" {
		abort(c, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("missing bearer token")))
		return
	}

	u, err := a.account.Authenticate(c.Request.Context(), tok)
	if err != nil {
		abort(c, err)
		return
	}

	c.Set(userKey, u)
	c.Next()
}

func currentUser(c *gin.Context) *domain.User {
	return c.MustGet(userKey).(*domain.User)
}

type userResponse struct {
	UserID   int64  `json:"user_id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Coins    int64  `json:"coins"`
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{
		UserID:   u.UserID,
		FullName: u.FullName,
		Email:    u.Email,
		Coins:    u.Coins,
	}
}

func (a *API) register(c *gin.Context) {
	var req struct {
		FullName string `json:"full_name"`
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err),
			errors.WithMessagef("invalid register request")))
		return
	}

	u, err := a.account.Register(c.Request.Context(), account.RegisterRequest{
		FullName: req.FullName,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, toUserResponse(u))
}

func (a *API) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err),
			errors.WithMessagef("invalid login request")))
		return
	}

	resp, err := a.account.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": resp.AccessToken,
		"user":         toUserResponse(&resp.User),
	})
}

func (a *API) me(c *gin.Context) {
	c.JSON(http.StatusOK, toUserResponse(currentUser(c)))
}

func (a *API) submitResult(c *gin.Context) {
	var req struct {
		ResultID    string `json:"result_id" binding:"required"`
		Game        string `json:"game"`
		Score       int    `json:"score"`
		DurationSec int    `json:"duration_sec"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err),
			errors.WithMessagef("invalid result request")))
		return
	}

	resp, err := a.result.SubmitResult(c.Request.Context(), result.SubmitResultRequest{
		ResultID:    req.ResultID,
		User:        *currentUser(c),
		Game:        req.Game,
		Score:       req.Score,
		DurationSec: req.DurationSec,
		SubmitTime:  time.Now(),
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"awarded": resp.Awarded,
		"coins":   resp.Coins,
	})
}

func (a *API) getRating(c *gin.Context) {
	r, err := a.rating.GetRating(c.Request.Context(), rating.GetRatingRequest{})
	if err != nil {
		abort(c, err)
		return
	}

	entries := make([]gin.H, 0, len(r.Entries))
	for _, e := range r.Entries {
		entries = append(entries, gin.H{
			"email": e.Email,
			"coins": e.Coins,
		})
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

type treeResponse struct {
	SlotID string `json:"slot_id"`
	Level  int    `json:"level"`
}

func (a *API) listTrees(c *gin.Context) {
	ts, err := a.trees.List(c.Request.Context(), currentUser(c).UserID)
	if err != nil {
		abort(c, err)
		return
	}

	out := make([]treeResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, treeResponse{SlotID: t.SlotID, Level: t.Level})
	}

	c.JSON(http.StatusOK, gin.H{"trees": out})
}

func (a *API) buyTree(c *gin.Context) {
	t, err := a.trees.Buy(c.Request.Context(), currentUser(c).UserID, c.Param("slot"))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, treeResponse{SlotID: t.SlotID, Level: t.Level})
}

func (a *API) upgradeTree(c *gin.Context) {
	t, err := a.trees.Upgrade(c.Request.Context(), currentUser(c).UserID, c.Param("slot"))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, treeResponse{SlotID: t.SlotID, Level: t.Level})
}

func abort(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{
		"code":    e.Code.String(),
		"message": e.Message,
	})
}
