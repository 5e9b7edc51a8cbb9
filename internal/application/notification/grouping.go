package notification

import (
	"sort"

	"github.com/go-notify-engine/internal/domain"
)

// GroupPage collapses a page of rows (ordered createdAt desc, id desc) into display groups.
//
// Display fields come from the most recent row of each group on the page. RecipientCount and
// target classification come from stats, which must be whole-group aggregates so the result
// does not depend on where the page window falls. A key missing from stats counts as zero.
func GroupPage(rows []domain.Notification, stats map[string]domain.GroupStats) []domain.NotificationGroup {
	reps := make(map[string]*domain.Notification, len(rows))
	order := make([]string, 0, len(rows))
	for i := range rows {
		n := &rows[i]
		cur, ok := reps[n.GroupKey]
		if !ok {
			order = append(order, n.GroupKey)
			reps[n.GroupKey] = n
			continue
		}
		if newer(n, cur) {
			reps[n.GroupKey] = n
		}
	}

	groups := make([]domain.NotificationGroup, 0, len(order))
	for _, key := range order {
		rep := reps[key]
		st := stats[key]
		groups = append(groups, domain.NotificationGroup{
			GroupKey:            key,
			ID:                  rep.ID,
			Type:                rep.Type,
			Title:               rep.Title,
			Message:             rep.Message,
			CreatedAt:           rep.CreatedAt,
			ScheduledFor:        rep.ScheduledFor,
			DeliveredAt:         rep.DeliveredAt,
			OrganizationID:      rep.OrganizationID,
			RecipientCount:      st.Recipients,
			Target:              ResolveTarget(rep, st),
			SingleReadDismissal: rep.SingleReadDismissal,
		})
	}
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return groups
}

// ResolveTarget classifies a group. Organization addressing wins over per-user rows
// under the same key; a group with no organization and no user recipients is system-wide.
func ResolveTarget(rep *domain.Notification, st domain.GroupStats) domain.Target {
	switch {
	case rep.OrganizationID != nil || st.OrganizationRows > 0:
		return domain.TargetOrganization
	case st.Recipients > 0:
		return domain.TargetUser
	default:
		return domain.TargetSystem
	}
}

// HasMore reports whether groups remain after page (1-indexed) of size pageSize.
// distinctGroups is the count of distinct group keys in the whole table, not the row count.
func HasMore(distinctGroups int64, page, pageSize int) bool {
	return distinctGroups > int64(page)*int64(pageSize)
}

// GroupKeys returns the distinct group keys of rows in first-seen order.
func GroupKeys(rows []domain.Notification) []string {
	seen := make(map[string]struct{}, len(rows))
	keys := make([]string, 0, len(rows))
	for i := range rows {
		k := rows[i].GroupKey
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

func newer(a, b *domain.Notification) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
