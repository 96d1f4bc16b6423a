// Package ratings provides the REST API handlers for add-on ratings.
package ratings

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/addon-ratings/internal/auth"
	"github.com/aimd54/addon-ratings/internal/models"
	ratingsvc "github.com/aimd54/addon-ratings/internal/service/ratings"
	"github.com/aimd54/addon-ratings/pkg/logger"
)

// Service is the rating application service.
type Service interface {
	List(ctx context.Context, actor ratingsvc.Actor, q ratingsvc.ListQuery) (*ratingsvc.ListResult, error)
	Get(ctx context.Context, actor ratingsvc.Actor, id uint) (*ratingsvc.View, error)
	Create(ctx context.Context, actor ratingsvc.Actor, in ratingsvc.CreateInput) (*models.Rating, error)
	Update(ctx context.Context, actor ratingsvc.Actor, id uint, in ratingsvc.UpdateInput) (*models.Rating, error)
	Delete(ctx context.Context, actor ratingsvc.Actor, id uint) error
	Undelete(ctx context.Context, actor ratingsvc.Actor, id uint) (*models.Rating, error)
	Approve(ctx context.Context, actor ratingsvc.Actor, id uint) (*models.Rating, error)
	Reply(ctx context.Context, actor ratingsvc.Actor, id uint, body string) (*models.Rating, bool, error)
	Flag(ctx context.Context, actor ratingsvc.Actor, id uint, in ratingsvc.FlagInput) (*models.RatingFlag, error)
	Vote(ctx context.Context, actor ratingsvc.Actor, id uint, vote int) (models.VoteCounts, error)
	ModerationQueue(ctx context.Context, actor ratingsvc.Actor, page, pageSize int) ([]ratingsvc.QueueItem, int64, error)
	AddDeniedWord(ctx context.Context, actor ratingsvc.Actor, word string, moderation bool) (*models.DeniedRatingWord, error)
	RemoveDeniedWord(ctx context.Context, actor ratingsvc.Actor, word string) error
}

// Handler handles rating API requests.
type Handler struct {
	service Service
	log     *logger.Logger
}

// NewHandler creates a new rating handler.
func NewHandler(service Service, log *logger.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// Register mounts the rating routes on an /api/v1 group.
func (h *Handler) Register(api *gin.RouterGroup) {
	api.GET("/ratings", h.ListRatings)
	api.POST("/ratings", h.CreateRating)
	api.GET("/ratings/:id", h.GetRating)
	api.PATCH("/ratings/:id", h.UpdateRating)
	api.DELETE("/ratings/:id", h.DeleteRating)
	api.POST("/ratings/:id/reply", h.ReplyToRating)
	api.POST("/ratings/:id/flag", h.FlagRating)
	api.POST("/ratings/:id/vote", h.VoteOnRating)
	api.POST("/ratings/:id/undelete", h.UndeleteRating)
	api.POST("/ratings/:id/approve", h.ApproveRating)
	api.GET("/moderation/ratings", h.ModerationQueue)
	api.POST("/admin/denied-words", h.AddDeniedWord)
	api.DELETE("/admin/denied-words/:word", h.RemoveDeniedWord)
}

// actor builds the acting identity from the authenticated user and client addresses.
func actor(c *gin.Context) ratingsvc.Actor {
	a := ratingsvc.Actor{User: auth.CurrentUser(c), IP: c.ClientIP()}
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		for _, hop := range strings.Split(fwd, ",") {
			if hop = strings.TrimSpace(hop); hop != "" {
				a.ForwardedFor = append(a.ForwardedFor, hop)
			}
		}
	}
	return a
}

// ListRatings lists ratings of an add-on or a user.
// GET /api/v1/ratings?addon=42&filter=without_empty_body&page=1.
func (h *Handler) ListRatings(c *gin.Context) {
	q, err := parseListQuery(c)
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	res, err := h.service.List(c.Request.Context(), actor(c), q)
	if err != nil {
		h.errorResponse(c, err)
		return
	}

	results := make([]ratingJSON, 0, len(res.Items))
	for i := range res.Items {
		results = append(results, renderView(&res.Items[i]))
	}
	body := gin.H{
		"count":     res.Total,
		"page":      res.Page,
		"page_size": res.PageSize,
		"results":   results,
	}
	if res.Grouped != nil {
		grouped := make(map[string]int, len(res.Grouped))
		for _, g := range res.Grouped {
			grouped[strconv.Itoa(g.Score)] = g.Count
		}
		body["grouped_ratings"] = grouped
	}
	if res.CanReply != nil {
		body["can_reply"] = *res.CanReply
	}
	c.JSON(http.StatusOK, body)
}

// GetRating returns one rating.
// GET /api/v1/ratings/:id.
func (h *Handler) GetRating(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	view, err := h.service.Get(c.Request.Context(), actor(c), id)
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, renderView(view))
}

type createRequest struct {
	Addon   uint    `json:"addon"`
	Version *uint   `json:"version"`
	Score   *int    `json:"score"`
	Body    *string `json:"body"`
}

// CreateRating posts a new rating.
// POST /api/v1/ratings.
func (h *Handler) CreateRating(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, malformed(err))
		return
	}
	if req.Addon == 0 {
		h.errorResponse(c, &ratingsvc.ValidationError{Fields: map[string]string{"addon": "This field is required."}})
		return
	}
	rating, err := h.service.Create(c.Request.Context(), actor(c), ratingsvc.CreateInput{
		AddonID:   req.Addon,
		VersionID: req.Version,
		Score:     req.Score,
		Body:      req.Body,
	})
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusCreated, renderRating(rating))
}

type updateRequest struct {
	Addon   *uint   `json:"addon"`
	Version *uint   `json:"version"`
	Score   *int    `json:"score"`
	Body    *string `json:"body"`
}

// UpdateRating edits the score or body of a rating.
// PATCH /api/v1/ratings/:id.
func (h *Handler) UpdateRating(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, malformed(err))
		return
	}
	rating, err := h.service.Update(c.Request.Context(), actor(c), id, ratingsvc.UpdateInput{
		AddonID:   req.Addon,
		VersionID: req.Version,
		Score:     req.Score,
		Body:      req.Body,
	})
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, renderRating(rating))
}

// DeleteRating soft-deletes a rating.
// DELETE /api/v1/ratings/:id.
func (h *Handler) DeleteRating(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	if err := h.service.Delete(c.Request.Context(), actor(c), id); err != nil {
		h.errorResponse(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UndeleteRating restores a soft-deleted rating.
// POST /api/v1/ratings/:id/undelete.
func (h *Handler) UndeleteRating(c *gin.Context) {
	h.transition(c, h.service.Undelete)
}

// ApproveRating clears a rating from the moderation queue.
// POST /api/v1/ratings/:id/approve.
func (h *Handler) ApproveRating(c *gin.Context) {
	h.transition(c, h.service.Approve)
}

func (h *Handler) transition(c *gin.Context, fn func(context.Context, ratingsvc.Actor, uint) (*models.Rating, error)) {
	id, err := parseID(c)
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	rating, err := fn(c.Request.Context(), actor(c), id)
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, renderRating(rating))
}

type replyRequest struct {
	Body string `json:"body"`
}

// ReplyToRating creates or edits the developer reply to a rating.
// POST /api/v1/ratings/:id/reply.
func (h *Handler) ReplyToRating(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, malformed(err))
		return
	}
	reply, created, err := h.service.Reply(c.Request.Context(), actor(c), id, req.Body)
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, renderRating(reply))
}

type flagRequest struct {
	Flag string `json:"flag"`
	Note string `json:"note"`
}

// FlagRating flags a rating for moderation.
// POST /api/v1/ratings/:id/flag.
func (h *Handler) FlagRating(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	var req flagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, malformed(err))
		return
	}
	flag, err := h.service.Flag(c.Request.Context(), actor(c), id, ratingsvc.FlagInput{Reason: req.Flag, Note: req.Note})
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"msg": "Thanks; this review has been flagged for reviewer approval.", "flag": flag.Flag, "note": flag.Note})
}

type voteRequest struct {
	Vote int `json:"vote"`
}

// VoteOnRating records a helpful/not helpful vote.
// POST /api/v1/ratings/:id/vote.
func (h *Handler) VoteOnRating(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, malformed(err))
		return
	}
	counts, err := h.service.Vote(c.Request.Context(), actor(c), id, req.Vote)
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"votes": counts})
}

// ModerationQueue lists ratings waiting for a moderator.
// GET /api/v1/moderation/ratings?page=1&page_size=25.
func (h *Handler) ModerationQueue(c *gin.Context) {
	page, err := queryInt(c, "page")
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	size, err := queryInt(c, "page_size")
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	items, total, err := h.service.ModerationQueue(c.Request.Context(), actor(c), page, size)
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	results := make([]ratingJSON, 0, len(items))
	for _, item := range items {
		r := renderRating(item.Rating)
		r.Flags = renderFlags(item.Flags)
		results = append(results, r)
	}
	c.JSON(http.StatusOK, gin.H{"count": total, "results": results})
}

type deniedWordRequest struct {
	Word       string `json:"word"`
	Moderation bool   `json:"moderation"`
}

// AddDeniedWord adds a denied word or domain.
// POST /api/v1/admin/denied-words.
func (h *Handler) AddDeniedWord(c *gin.Context) {
	var req deniedWordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, malformed(err))
		return
	}
	word, err := h.service.AddDeniedWord(c.Request.Context(), actor(c), req.Word, req.Moderation)
	if err != nil {
		h.errorResponse(c, err)
		return
	}
	h.log.Info().Str("word", word.Word).Bool("moderation", word.Moderation).Msg("Denied word saved")
	c.JSON(http.StatusCreated, word)
}

// RemoveDeniedWord deletes a denied word.
// DELETE /api/v1/admin/denied-words/:word.
func (h *Handler) RemoveDeniedWord(c *gin.Context) {
	word := c.Param("word")
	if err := h.service.RemoveDeniedWord(c.Request.Context(), actor(c), word); err != nil {
		h.errorResponse(c, err)
		return
	}
	h.log.Info().Str("word", word).Msg("Denied word removed")
	c.Status(http.StatusNoContent)
}

// Helper functions

func parseID(c *gin.Context) (uint, error) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		return 0, ratingsvc.ErrNotFound
	}
	return uint(id), nil
}

func badParam(name, value string) error {
	return &ratingsvc.ValidationError{Fields: map[string]string{name: fmt.Sprintf("Invalid value: %s", value)}}
}

func malformed(err error) error {
	return &ratingsvc.ValidationError{Fields: map[string]string{"non_field_errors": "Malformed request body: " + err.Error()}}
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, badParam(name, raw)
	}
	return n, nil
}

func queryUint(c *gin.Context, name string) (*uint, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil, badParam(name, raw)
	}
	v := uint(n)
	return &v, nil
}

func queryUints(c *gin.Context, name string) ([]uint, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	var out []uint
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return nil, badParam(name, raw)
		}
		out = append(out, uint(n))
	}
	return out, nil
}

func parseListQuery(c *gin.Context) (ratingsvc.ListQuery, error) {
	var (
		q   ratingsvc.ListQuery
		err error
	)
	if q.AddonID, err = queryUint(c, "addon"); err != nil {
		return q, err
	}
	if q.UserID, err = queryUint(c, "user"); err != nil {
		return q, err
	}
	if q.VersionID, err = queryUint(c, "version"); err != nil {
		return q, err
	}
	if q.ShowFlagsFor, err = queryUint(c, "show_flags_for"); err != nil {
		return q, err
	}
	if q.ExcludeIDs, err = queryUints(c, "exclude_ratings"); err != nil {
		return q, err
	}
	scores, err := queryUints(c, "score")
	if err != nil {
		return q, err
	}
	for _, s := range scores {
		if s < 1 || s > 5 {
			return q, badParam("score", c.Query("score"))
		}
		q.Scores = append(q.Scores, int(s))
	}
	for _, f := range strings.Split(c.Query("filter"), ",") {
		switch strings.TrimSpace(f) {
		case "with_deleted":
			q.WithDeleted = true
		case "without_empty_body":
			q.WithoutEmptyBody = true
		case "with_yours":
			q.WithYours = true
		}
	}
	switch c.Query("show_grouped_ratings") {
	case "1", "true", "True":
		q.ShowGrouped = true
	}
	if q.Page, err = queryInt(c, "page"); err != nil {
		return q, err
	}
	if q.PageSize, err = queryInt(c, "page_size"); err != nil {
		return q, err
	}
	return q, nil
}
