package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/visiovate/Test-Backend/internal/calendar"
	"github.com/visiovate/Test-Backend/internal/service"
)

func (h *Handler) listMessages(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	msgs, err := h.Messages.List(c.Request.Context(), p, id, q.Limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	out := make([]messageResponse, 0, len(msgs))
	for i := range msgs {
		out = append(out, toMessageResponse(&msgs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

func (h *Handler) sendMessage(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	msg, err := h.Messages.Send(c.Request.Context(), p, id, req.Message)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": toMessageResponse(msg)})
}

func (h *Handler) createReview(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req createReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	r, err := h.Reviews.Create(c.Request.Context(), p, id, req.Rating, req.Comment)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"review": toReviewResponse(r)})
}

func (h *Handler) providerReviews(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	items, total, err := h.Reviews.ListByProvider(c.Request.Context(), id, q.Page, q.Limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	out := make([]reviewResponse, 0, len(items))
	for i := range items {
		out = append(out, toReviewResponse(&items[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"reviews":    out,
		"pagination": pagination{Page: max(q.Page, 1), Limit: pageLimit(q.Limit), Total: total},
	})
}

func (h *Handler) searchProviders(c *gin.Context) {
	var q searchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	start := -1
	if q.Time != "" {
		start, _ = calendar.ParseClock(q.Time)
	}

	page, err := h.Search.Search(c.Request.Context(), service.SearchQuery{
		Date:            q.Date,
		StartMinute:     start,
		DurationMinutes: q.Duration,
		Service:         q.Service,
		City:            q.City,
		MinRating:       q.MinRating,
		MaxRate:         q.MaxRate,
		Page:            q.Page,
		Limit:           q.Limit,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	out := make([]providerMatchResponse, 0, len(page.Items))
	for _, m := range page.Items {
		out = append(out, toProviderMatch(m, ""))
	}
	c.JSON(http.StatusOK, gin.H{
		"providers": out,
		"pagination": gin.H{
			"page":    page.Page,
			"limit":   page.PageSize,
			"total":   page.Total,
			"hasNext": page.HasNext,
		},
	})
}

func (h *Handler) listNotifications(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var q listNotificationsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	page, err := h.Notifications.List(c.Request.Context(), p.Type, p.ID, q.Unread, q.Page, q.Limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	out := make([]notificationResponse, 0, len(page.Items))
	for i := range page.Items {
		out = append(out, toNotificationResponse(&page.Items[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"notifications": out,
		"unread":        page.Unread,
		"pagination":    pagination{Page: page.Page, Limit: page.Limit, Total: page.Total},
	})
}

func (h *Handler) markNotificationRead(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.Notifications.MarkRead(c.Request.Context(), id, p.Type, p.ID); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"read": true})
}

func (h *Handler) markAllNotificationsRead(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	n, err := h.Notifications.MarkAllRead(c.Request.Context(), p.Type, p.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func pageLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}
