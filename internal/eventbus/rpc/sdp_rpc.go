package rpc

import (
	"encoding/json"

	"github.com/pion/webrtc/v3"

	"github.com/isqad/livelook-meet/internal/core"
)

type SDPParams struct {
	SDP               webrtc.SessionDescription `json:"sdp"`
	TargetParticipant core.ParticipantID        `json:"targetParticipantId"`
	FromParticipant   core.ParticipantID        `json:"fromParticipantId,omitempty"`
	FromDisplayName   string                    `json:"fromDisplayName,omitempty"`
}

// SDPRpc carries an offer or an answer
type SDPRpc struct {
	jsonRpcHead
	Params SDPParams `json:"params"`
}

func NewOfferRpc(sdp webrtc.SessionDescription, target core.ParticipantID) *SDPRpc {
	return &SDPRpc{
		jsonRpcHead: head(OfferMethod),
		Params: SDPParams{
			SDP:               sdp,
			TargetParticipant: target,
		},
	}
}

func NewAnswerRpc(sdp webrtc.SessionDescription, target core.ParticipantID) *SDPRpc {
	return &SDPRpc{
		jsonRpcHead: head(AnswerMethod),
		Params: SDPParams{
			SDP:               sdp,
			TargetParticipant: target,
		},
	}
}

func (r SDPRpc) GetMethod() Method {
	return r.Method
}

func (r SDPRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

func (r *SDPRpc) Target() core.ParticipantID {
	return r.Params.TargetParticipant
}

func (r *SDPRpc) Stamp(from core.ParticipantID, displayName string) {
	r.Params.FromParticipant = from
	if r.Method == OfferMethod {
		r.Params.FromDisplayName = displayName
	}
}
