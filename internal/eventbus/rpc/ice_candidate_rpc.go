package rpc

import (
	"encoding/json"

	"github.com/pion/webrtc/v3"

	"github.com/isqad/livelook-meet/internal/core"
)

type ICECandidateParams struct {
	Candidate         webrtc.ICECandidateInit `json:"candidate"`
	TargetParticipant core.ParticipantID      `json:"targetParticipantId"`
	FromParticipant   core.ParticipantID      `json:"fromParticipantId,omitempty"`
}

// ICE candidate RPC
type ICECandidateRpc struct {
	jsonRpcHead
	Params ICECandidateParams `json:"params"`
}

func NewICECandidateRpc(candidate webrtc.ICECandidateInit, target core.ParticipantID) *ICECandidateRpc {
	return &ICECandidateRpc{
		jsonRpcHead: head(ICECandidateMethod),
		Params: ICECandidateParams{
			Candidate:         candidate,
			TargetParticipant: target,
		},
	}
}

func (r ICECandidateRpc) GetMethod() Method {
	return r.Method
}

func (r ICECandidateRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

func (r *ICECandidateRpc) Target() core.ParticipantID {
	return r.Params.TargetParticipant
}

func (r *ICECandidateRpc) Stamp(from core.ParticipantID, _ string) {
	r.Params.FromParticipant = from
}

// IsEmpty reports an end-of-candidates marker, which the relay drops
func (r *ICECandidateRpc) IsEmpty() bool {
	return r.Params.Candidate.Candidate == ""
}
