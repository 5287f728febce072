package gateway

import (
	"context"
	"errors"

	"github.com/nextlevelbuilder/govoice/internal/store"
	"github.com/nextlevelbuilder/govoice/pkg/protocol"
)

// buildUserInfo assembles the recent-activity snapshot for client_ready.
// Every sub-query degrades independently: a failed lookup logs and leaves
// its field at the zero value rather than failing the handshake.
func (o *Orchestrator) buildUserInfo(ctx context.Context, user *store.User) protocol.UserInfo {
	info := protocol.UserInfo{
		LastInteractionDate: user.Stats.LastActive,
		UserStats: protocol.UserStats{
			TotalMeals:    user.Stats.TotalMeals,
			TotalSessions: user.Stats.TotalSessions,
		},
	}

	if n, err := o.stores.Conversations.CountByUser(ctx, user.ID); err == nil {
		info.TotalConversations = n
	} else {
		o.log.Warn("userinfo.conversations_failed", "user_id", user.ID, "error", err)
	}

	if n, err := o.stores.Sessions.CountByUser(ctx, user.ID); err == nil {
		info.TotalSessions = n
	} else {
		o.log.Warn("userinfo.sessions_failed", "user_id", user.ID, "error", err)
	}

	if last, err := o.stores.Sessions.LastByUser(ctx, user.ID); err == nil {
		info.LastSessionDate = &last.StartTime
	} else if !errors.Is(err, store.ErrNotFound) {
		o.log.Warn("userinfo.last_session_failed", "user_id", user.ID, "error", err)
	}

	if avg, err := o.stores.Sessions.AverageEngagement(ctx, user.ID); err == nil {
		info.AverageEngagement = avg
	} else {
		o.log.Warn("userinfo.engagement_failed", "user_id", user.ID, "error", err)
	}

	if meal, err := o.stores.FoodEntries.LastByUser(ctx, user.ID); err == nil {
		info.LastMealType = meal.MealType
		info.LastMealDate = &meal.Date
	} else if !errors.Is(err, store.ErrNotFound) {
		o.log.Warn("userinfo.last_meal_failed", "user_id", user.ID, "error", err)
	}

	// The session being opened right now already counts, so a first-timer
	// sits at exactly one session and no conversations.
	info.HasInteractedBefore = info.TotalConversations > 0 || info.TotalSessions > 1
	return info
}
