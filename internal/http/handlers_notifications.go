package http

import (
	"strings"

	"github.com/gin-gonic/gin"

	"spese-report/internal/core"
)

type notificationPage struct {
	Notifications []core.Notification `json:"notifications"`
	UnreadCount   int                 `json:"unreadCount"`
	Limit         int                 `json:"limit"`
	HasMore       bool                `json:"hasMore"`
}

func (s *Server) handleListNotifications(c *gin.Context) {
	ctx := c.Request.Context()
	limit := ParseLimit(c)
	kind := sanitizeInput(c.Query("type"))
	// One extra row tells us whether another page exists.
	list, err := s.notifications.ListNotifications(ctx, userID(c), kind, limit+1)
	if err != nil {
		s.respondError(c, err)
		return
	}
	unread, err := s.notifications.CountUnread(ctx, userID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}

	page := notificationPage{Limit: limit, UnreadCount: unread, Notifications: []core.Notification{}}
	if len(list) > limit {
		page.HasMore = true
		list = list[:limit]
	}
	if len(list) > 0 {
		page.Notifications = list
	}
	NewResponse().Data(page).Write(c)
}

func (s *Server) handleMarkRead(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		s.respondError(c, errBadRequest)
		return
	}
	if err := s.notifications.MarkNotificationRead(c.Request.Context(), userID(c), id); err != nil {
		s.respondError(c, err)
		return
	}
	NewResponse().Message("Notification marked as read").Write(c)
}

func (s *Server) handleUnreadCount(c *gin.Context) {
	unread, err := s.notifications.CountUnread(c.Request.Context(), userID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	NewResponse().Data(gin.H{"unreadCount": unread}).Write(c)
}

func (s *Server) handleMarkAllRead(c *gin.Context) {
	updated, err := s.notifications.MarkAllNotificationsRead(c.Request.Context(), userID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	NewResponse().Data(gin.H{"updated": updated}).Message("All notifications marked as read").Write(c)
}

func (s *Server) handleDeleteNotification(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		s.respondError(c, errBadRequest)
		return
	}
	if err := s.notifications.DeleteNotification(c.Request.Context(), userID(c), id); err != nil {
		s.respondError(c, err)
		return
	}
	NewResponse().Message("Notification deleted").Write(c)
}
