package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Seat routing.
	ErrSeatTaken   = "E_SEAT_TAKEN"
	ErrSeatUnknown = "E_SEAT_UNKNOWN"
	ErrSpectator   = "E_SPECTATOR"

	// Input layer.
	ErrBadAction = "E_BAD_ACTION"
	ErrBadKey    = "E_BAD_KEY"
	ErrAgentDone = "E_AGENT_DONE"
	ErrClosed    = "E_CLOSED"
	ErrInternal  = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrSeatTaken:       {},
	ErrSeatUnknown:     {},
	ErrSpectator:       {},
	ErrBadAction:       {},
	ErrBadKey:          {},
	ErrAgentDone:       {},
	ErrClosed:          {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
