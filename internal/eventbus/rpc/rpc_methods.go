package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/isqad/livelook-meet/internal/core"
)

const jsonRpcVersion = "2.0"

type Method string

const (
	JoinRoomMethod             Method = "join-room"
	JoinedMethod               Method = "joined"
	ExistingParticipantsMethod Method = "existing-participants"
	UserJoinedMethod           Method = "user-joined"
	OfferMethod                Method = "offer"
	AnswerMethod               Method = "answer"
	ICECandidateMethod         Method = "ice-candidate"
	LeaveRoomMethod            Method = "leave-room"
	UserLeftMethod             Method = "user-left"
	MeetingStartedMethod       Method = "meeting-started"
)

var (
	ErrUnknownRpcType = errors.New("unknown RPC type")
	ErrMalformedRpc   = errors.New("malformed RPC")
)

type Rpc interface {
	GetMethod() Method
	ToJSON() ([]byte, error)
}

// Targeted is a message one participant addresses to another through the relay
type Targeted interface {
	Rpc
	Target() core.ParticipantID
	// Stamp overwrites the sender fields with the identity the relay knows
	Stamp(from core.ParticipantID, displayName string)
}

type jsonRpcHead struct {
	Version string `json:"jsonrpc"`
	Method  Method `json:"method"`
}

func head(m Method) jsonRpcHead {
	return jsonRpcHead{
		Version: jsonRpcVersion,
		Method:  m,
	}
}

type jsonRpc struct {
	jsonRpcHead
	Params json.RawMessage `json:"params"`
}

func RpcFromReader(reader io.Reader) (Rpc, error) {
	rpc := &jsonRpc{}

	if err := json.NewDecoder(reader).Decode(rpc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRpc, err)
	}
	if rpc.Version != jsonRpcVersion {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrMalformedRpc, rpc.Version)
	}

	var msg Rpc
	var params interface{}

	switch rpc.Method {
	case JoinRoomMethod:
		r := NewJoinRoomRpc("", "")
		msg, params = r, &r.Params
	case JoinedMethod:
		r := NewJoinedRpc("", "")
		msg, params = r, &r.Params
	case ExistingParticipantsMethod:
		r := NewExistingParticipantsRpc(nil)
		msg, params = r, &r.Params
	case UserJoinedMethod:
		r := NewUserJoinedRpc("", "")
		msg, params = r, &r.Params
	case OfferMethod:
		r := &SDPRpc{jsonRpcHead: head(OfferMethod)}
		msg, params = r, &r.Params
	case AnswerMethod:
		r := &SDPRpc{jsonRpcHead: head(AnswerMethod)}
		msg, params = r, &r.Params
	case ICECandidateMethod:
		r := &ICECandidateRpc{jsonRpcHead: head(ICECandidateMethod)}
		msg, params = r, &r.Params
	case LeaveRoomMethod:
		return NewLeaveRoomRpc(), nil
	case UserLeftMethod:
		r := NewUserLeftRpc("")
		msg, params = r, &r.Params
	case MeetingStartedMethod:
		r := NewMeetingStartedRpc("", "")
		msg, params = r, &r.Params
	default:
		return nil, ErrUnknownRpcType
	}

	if len(rpc.Params) == 0 || string(rpc.Params) == "null" {
		return nil, fmt.Errorf("%w: %s without params", ErrMalformedRpc, rpc.Method)
	}
	if err := json.Unmarshal(rpc.Params, params); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRpc, err)
	}

	return msg, nil
}
