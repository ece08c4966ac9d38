package rpc

import (
	"encoding/json"

	"github.com/isqad/livelook-meet/internal/core"
)

type ParticipantInfo struct {
	ID          core.ParticipantID `json:"id"`
	DisplayName string             `json:"displayName"`
}

type ExistingParticipantsParams struct {
	Participants []ParticipantInfo `json:"participants"`
}

type ExistingParticipantsRpc struct {
	jsonRpcHead
	Params ExistingParticipantsParams `json:"params"`
}

func NewExistingParticipantsRpc(participants []ParticipantInfo) *ExistingParticipantsRpc {
	if participants == nil {
		participants = []ParticipantInfo{}
	}
	return &ExistingParticipantsRpc{
		jsonRpcHead: head(ExistingParticipantsMethod),
		Params: ExistingParticipantsParams{
			Participants: participants,
		},
	}
}

func (r ExistingParticipantsRpc) GetMethod() Method {
	return r.Method
}

func (r ExistingParticipantsRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

type UserJoinedParams struct {
	ParticipantID core.ParticipantID `json:"participantId"`
	DisplayName   string             `json:"displayName"`
}

type UserJoinedRpc struct {
	jsonRpcHead
	Params UserJoinedParams `json:"params"`
}

func NewUserJoinedRpc(id core.ParticipantID, displayName string) *UserJoinedRpc {
	return &UserJoinedRpc{
		jsonRpcHead: head(UserJoinedMethod),
		Params: UserJoinedParams{
			ParticipantID: id,
			DisplayName:   displayName,
		},
	}
}

func (r UserJoinedRpc) GetMethod() Method {
	return r.Method
}

func (r UserJoinedRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

type UserLeftParams struct {
	ParticipantID core.ParticipantID `json:"participantId"`
}

type UserLeftRpc struct {
	jsonRpcHead
	Params UserLeftParams `json:"params"`
}

func NewUserLeftRpc(id core.ParticipantID) *UserLeftRpc {
	return &UserLeftRpc{
		jsonRpcHead: head(UserLeftMethod),
		Params: UserLeftParams{
			ParticipantID: id,
		},
	}
}

func (r UserLeftRpc) GetMethod() Method {
	return r.Method
}

func (r UserLeftRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}
