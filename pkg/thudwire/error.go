package thudwire

// Rejection and failure codes surfaced to clients. OracleUnavailable is an
// infrastructure fault, not a game-rule rejection; clients may retry it.
const (
	CodeParseError        = "parse_error"
	CodeIllegalMove       = "illegal_move"
	CodeOracleUnavailable = "oracle_unavailable"
	CodeSessionNotFound   = "session_not_found"
	CodeBadRequest        = "bad_request"
	CodeInternalError     = "internal_error"
)
