package rpc

import (
	"encoding/json"

	"github.com/isqad/livelook-meet/internal/core"
)

type JoinRoomParams struct {
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName"`
}

type JoinRoomRpc struct {
	jsonRpcHead
	Params JoinRoomParams `json:"params"`
}

func NewJoinRoomRpc(roomID string, displayName string) *JoinRoomRpc {
	return &JoinRoomRpc{
		jsonRpcHead: head(JoinRoomMethod),
		Params: JoinRoomParams{
			RoomID:      roomID,
			DisplayName: displayName,
		},
	}
}

func (r JoinRoomRpc) GetMethod() Method {
	return r.Method
}

func (r JoinRoomRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

type JoinedParams struct {
	ParticipantID core.ParticipantID `json:"participantId"`
	RoomID        string             `json:"roomId"`
}

// JoinedRpc tells a joining client the id the relay assigned to it
type JoinedRpc struct {
	jsonRpcHead
	Params JoinedParams `json:"params"`
}

func NewJoinedRpc(id core.ParticipantID, roomID string) *JoinedRpc {
	return &JoinedRpc{
		jsonRpcHead: head(JoinedMethod),
		Params: JoinedParams{
			ParticipantID: id,
			RoomID:        roomID,
		},
	}
}

func (r JoinedRpc) GetMethod() Method {
	return r.Method
}

func (r JoinedRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}
