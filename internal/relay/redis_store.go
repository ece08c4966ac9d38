package relay

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/isqad/livelook-meet/internal/core"
)

const roomTTL = 24 * time.Hour

func roomKey(roomID string) string {
	return "room:" + roomID + ":participants"
}

func participantKey(id core.ParticipantID) string {
	return "participant:" + string(id)
}

// RedisRoomStore shares room membership between relay nodes
type RedisRoomStore struct {
	rdb *redis.Client
}

func NewRedisRoomStore(rdb *redis.Client) *RedisRoomStore {
	return &RedisRoomStore{rdb: rdb}
}

func (s *RedisRoomStore) Add(ctx context.Context, m Member) error {
	current, err := s.Get(ctx, m.ID)
	if err != nil || current != nil {
		return err
	}

	// a stale id left by an expired hash is dropped before the push
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, participantKey(m.ID), "room", m.RoomID, "display_name", m.DisplayName)
		pipe.Expire(ctx, participantKey(m.ID), roomTTL)
		pipe.LRem(ctx, roomKey(m.RoomID), 0, string(m.ID))
		pipe.RPush(ctx, roomKey(m.RoomID), string(m.ID))
		pipe.Expire(ctx, roomKey(m.RoomID), roomTTL)
		return nil
	})
	return err
}

func (s *RedisRoomStore) Remove(ctx context.Context, id core.ParticipantID) (*Member, error) {
	m, err := s.Get(ctx, id)
	if err != nil || m == nil {
		return nil, err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, roomKey(m.RoomID), 0, string(id))
		pipe.Del(ctx, participantKey(id))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (s *RedisRoomStore) Get(ctx context.Context, id core.ParticipantID) (*Member, error) {
	fields, err := s.rdb.HGetAll(ctx, participantKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	return &Member{
		ID:          id,
		RoomID:      fields["room"],
		DisplayName: fields["display_name"],
	}, nil
}

// Members skips ids whose participant hash already expired
func (s *RedisRoomStore) Members(ctx context.Context, roomID string) ([]Member, error) {
	ids, err := s.rdb.LRange(ctx, roomKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Member{}, nil
	}

	cmds := make([]*redis.StringStringMapCmd, len(ids))
	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, participantKey(core.ParticipantID(id)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	members := make([]Member, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 || fields["room"] != roomID {
			continue
		}
		members = append(members, Member{
			ID:          core.ParticipantID(ids[i]),
			RoomID:      roomID,
			DisplayName: fields["display_name"],
		})
	}

	return members, nil
}
