package gameerrors

import "errors"

// Game sentinel errors. Shared by the balloon, ws and api packages to avoid circular imports.
var (
	ErrAlreadyActive   = errors.New("a game is already active for this player")
	ErrWrongFee        = errors.New("entry fee does not match")
	ErrNoActiveGame    = errors.New("no active game for this player")
	ErrRoundExhausted  = errors.New("all rounds have been played")
	ErrPumpCapReached  = errors.New("pump limit reached for this round")
	ErrNothingToBank   = errors.New("nothing to bank this round")
	ErrInvalidPlayer   = errors.New("invalid player id")
	ErrUnauthenticated = errors.New("player not identified")
	ErrRateLimited     = errors.New("too many actions")
)

// Wire codes sent to clients in error messages.
const (
	CodeAlreadyActive   = "already_active"
	CodeWrongFee        = "wrong_fee"
	CodeNoActiveGame    = "no_active_game"
	CodeRoundExhausted  = "round_exhausted"
	CodePumpCapReached  = "pump_cap_reached"
	CodeNothingToBank   = "nothing_to_bank"
	CodeInvalidPlayer   = "invalid_player"
	CodeUnauthenticated = "unauthenticated"
	CodeRateLimited     = "rate_limited"
	CodeBadRequest      = "bad_request"
	CodeInternal        = "internal"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrAlreadyActive, CodeAlreadyActive},
	{ErrWrongFee, CodeWrongFee},
	{ErrNoActiveGame, CodeNoActiveGame},
	{ErrRoundExhausted, CodeRoundExhausted},
	{ErrPumpCapReached, CodePumpCapReached},
	{ErrNothingToBank, CodeNothingToBank},
	{ErrInvalidPlayer, CodeInvalidPlayer},
	{ErrUnauthenticated, CodeUnauthenticated},
	{ErrRateLimited, CodeRateLimited},
}

// Code returns the wire code for err, or CodeInternal if err is not one of the sentinels above.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// IsRejection reports whether err is an expected precondition failure rather than an internal fault.
func IsRejection(err error) bool {
	return Code(err) != CodeInternal
}
