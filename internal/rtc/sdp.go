package rtc

import (
	"errors"
	"fmt"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v3"
)

var (
	errUnexpectedSDPType = errors.New("unexpected SDP type")
	errMalformedSDP      = errors.New("malformed SDP")
	errNoMediaSections   = errors.New("SDP has no media sections")
	errMediaMismatch     = errors.New("answer media sections do not match the offer")
)

// validateDescription parses the remote description before pion sees it, so a
// broken peer fails the negotiation with a readable error
func validateDescription(desc webrtc.SessionDescription, expected webrtc.SDPType) (*sdp.SessionDescription, error) {
	if desc.Type != expected {
		return nil, fmt.Errorf("%w: got %s, want %s", errUnexpectedSDPType, desc.Type, expected)
	}

	parsed := &sdp.SessionDescription{}
	if err := parsed.Unmarshal([]byte(desc.SDP)); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedSDP, err)
	}
	if len(parsed.MediaDescriptions) == 0 {
		return nil, errNoMediaSections
	}

	return parsed, nil
}

func validateAnswer(answer webrtc.SessionDescription, offer *webrtc.SessionDescription) error {
	parsed, err := validateDescription(answer, webrtc.SDPTypeAnswer)
	if err != nil {
		return err
	}
	if offer == nil {
		return nil
	}

	local := &sdp.SessionDescription{}
	if err := local.Unmarshal([]byte(offer.SDP)); err != nil {
		return fmt.Errorf("%w: local offer: %v", errMalformedSDP, err)
	}
	if len(local.MediaDescriptions) != len(parsed.MediaDescriptions) {
		return fmt.Errorf("%w: answer %v, offer %v", errMediaMismatch, mediaKinds(parsed), mediaKinds(local))
	}

	return nil
}

// mediaKinds lists the m= lines in order
func mediaKinds(desc *sdp.SessionDescription) []string {
	kinds := make([]string, 0, len(desc.MediaDescriptions))
	for _, m := range desc.MediaDescriptions {
		kinds = append(kinds, m.MediaName.Media)
	}
	return kinds
}
