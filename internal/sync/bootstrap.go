package sync

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matheus3301/imsync/internal/model"
	"github.com/matheus3301/imsync/internal/store"
)

// warmStart fills the directory from the cached snapshot and reselects the
// last active room, without touching the network.
func (c *Coordinator) warmStart() {
	if c.db == nil {
		return
	}
	cached, err := c.db.LoadRooms()
	if err != nil {
		c.logger.Warn("failed to load cached rooms", zap.Error(err))
		return
	}
	if len(cached) == 0 {
		return
	}
	c.rooms.Replace(cached)
	if id, err := c.db.GetCheckpoint(store.KeySelectedRoom); err == nil && id != "" {
		if _, err := c.rooms.Select(id); err == nil {
			c.publishSelected()
		}
	}
	c.logger.Info("restored cached rooms", zap.Int("rooms", len(cached)))
	c.publishRooms()
}

// Bootstrap loads the joined rooms, reconciles them with the conversation
// list, enriches members with profile data and persists the snapshot. The
// active room, or the last one remembered, is then (re)loaded.
func (c *Coordinator) Bootstrap(ctx context.Context) error {
	start := time.Now()
	groups, err := c.msg.JoinedGroups(ctx)
	if err != nil {
		return &model.FetchError{Op: "joined groups", Err: err}
	}
	convs, err := c.msg.Conversations(ctx)
	if err != nil {
		return &model.FetchError{Op: "conversations", Err: err}
	}

	prevSelected, hadSelection := c.rooms.Selected()
	c.rooms.Replace(groups)
	matched := c.rooms.Reconcile(convs)
	c.publishRooms()

	ids := make([]string, len(groups))
	for i, g := range groups {
		ids[i] = g.GroupID
	}
	if err := c.enrich(ctx, ids); err != nil {
		return fmt.Errorf("enrich members: %w", err)
	}
	c.publishRooms()
	c.persist()

	c.logger.Info("bootstrap complete",
		zap.Int("rooms", len(groups)),
		zap.Int("conversations", len(convs)),
		zap.Int("matched", matched),
		zap.Duration("took", time.Since(start)),
	)
	if c.db != nil {
		if err := c.db.SetCheckpoint(store.KeyLastBootstrap, strconv.FormatInt(time.Now().UnixMilli(), 10)); err != nil {
			c.logger.Warn("failed to save checkpoint", zap.Error(err))
		}
	}

	target := ""
	if hadSelection {
		target = prevSelected.GroupID
	} else if c.db != nil {
		target, _ = c.db.GetCheckpoint(store.KeySelectedRoom)
	}
	if target == "" {
		return nil
	}
	if _, ok := c.rooms.Get(target); !ok {
		c.rooms.ClearSelection()
		return nil
	}
	if _, err := c.SelectRoom(ctx, target); err != nil {
		c.logger.Warn("failed to reload active room", zap.String("group_id", target), zap.Error(err))
	}
	return nil
}

// enrich fetches the member lists of groupIDs concurrently, joins them with
// profile data and stores them on the rooms. A room whose member list fails
// to load keeps its previous members.
func (c *Coordinator) enrich(ctx context.Context, groupIDs []string) error {
	lists := make([][]model.Member, len(groupIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.EnrichWorkers)
	for i, id := range groupIDs {
		i, id := i, id
		g.Go(func() error {
			members, err := c.msg.GroupMembers(gctx, id)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.logger.Warn("failed to load members", zap.String("group_id", id), zap.Error(err))
				return nil
			}
			lists[i] = c.withoutAdmin(members)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var userIDs []string
	seen := make(map[string]bool)
	for _, members := range lists {
		for _, m := range members {
			if !seen[m.UserID] {
				seen[m.UserID] = true
				userIDs = append(userIDs, m.UserID)
			}
		}
	}
	profiles, online := c.lookupProfiles(ctx, userIDs)

	for i, members := range lists {
		if members == nil {
			continue
		}
		for j := range members {
			m := &members[j]
			if p, ok := profiles[m.UserID]; ok {
				m.Email = p.Email
				m.Phone = p.Phone
				if p.Role != "" {
					m.Role = p.Role
				}
				if m.Nickname == "" {
					m.Nickname = p.Nickname
				}
			}
			m.Online = online[m.UserID]
		}
		c.rooms.SetMembers(groupIDs[i], members)
	}
	return nil
}

func (c *Coordinator) withoutAdmin(members []model.Member) []model.Member {
	out := make([]model.Member, 0, len(members))
	for _, m := range members {
		if c.opts.AdminUserID != "" && m.UserID == c.opts.AdminUserID {
			continue
		}
		out = append(out, m)
	}
	return out
}

// lookupProfiles returns profiles and online flags by user id. Directory
// failures degrade to members without profile data.
func (c *Coordinator) lookupProfiles(ctx context.Context, userIDs []string) (map[string]model.UserInfo, map[string]bool) {
	profiles := make(map[string]model.UserInfo)
	online := make(map[string]bool)
	if c.profiles == nil || len(userIDs) == 0 {
		return profiles, online
	}
	infos, err := c.profiles.UserInfos(ctx, userIDs)
	if err != nil {
		c.logger.Warn("profile lookup failed", zap.Int("users", len(userIDs)), zap.Error(err))
	}
	for _, u := range infos {
		profiles[u.UserID] = u
	}
	ids, err := c.profiles.OnlineUsers(ctx, userIDs)
	if err != nil {
		c.logger.Warn("online status lookup failed", zap.Error(err))
	}
	for _, id := range ids {
		online[id] = true
	}
	return profiles, online
}

// persist saves the room snapshot.
func (c *Coordinator) persist() {
	if c.db == nil {
		return
	}
	if err := c.db.SaveRooms(c.rooms.Rooms()); err != nil {
		c.logger.Warn("failed to save room snapshot", zap.Error(err))
	}
}
