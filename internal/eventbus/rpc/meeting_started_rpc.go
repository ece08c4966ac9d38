package rpc

import "encoding/json"

type MeetingStartedParams struct {
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName"`
}

type MeetingStartedRpc struct {
	jsonRpcHead
	Params MeetingStartedParams `json:"params"`
}

func NewMeetingStartedRpc(roomID string, displayName string) *MeetingStartedRpc {
	return &MeetingStartedRpc{
		jsonRpcHead: head(MeetingStartedMethod),
		Params: MeetingStartedParams{
			RoomID:      roomID,
			DisplayName: displayName,
		},
	}
}

func (r MeetingStartedRpc) GetMethod() Method {
	return r.Method
}

func (r MeetingStartedRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}
