package rpc

import "encoding/json"

type LeaveRoomRpc struct {
	jsonRpcHead
	Params struct{} `json:"params"`
}

func NewLeaveRoomRpc() *LeaveRoomRpc {
	return &LeaveRoomRpc{
		jsonRpcHead: head(LeaveRoomMethod),
	}
}

func (r LeaveRoomRpc) GetMethod() Method {
	return r.Method
}

func (r LeaveRoomRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}
