package http

import "time"

// Request headers
const (
	// HeaderExtensionToken carries the token issued by POST /pair.
	HeaderExtensionToken = "X-Bridge-Extension"
	// HeaderVaultSession carries the session returned by unlock.
	HeaderVaultSession = "X-Vault-Session"
	// HeaderUI carries the per-process UI token on /api calls. The host
	// hands it to the approval page in the URL fragment.
	HeaderUI = "X-Bridge-UI"
)

// Query parameters of /relay/ws; browsers cannot set headers on websockets.
const (
	QueryTab    = "tab"
	QueryOrigin = "origin"
	QueryToken  = "token"
)

const (
	HTTPErrorInvalidJSONText  = "invalid JSON"
	HTTPErrorForbiddenText    = "forbidden"
	HTTPErrorForbiddenHost    = "forbidden host"
	HTTPErrorForbiddenOrigin  = "forbidden origin"
	HTTPErrorUnauthorizedText = "unauthorized"
	HTTPErrorNotFoundText     = "not found"
	HTTPErrorInternalText     = "internal error"

	PairingErrorMissingPairIDOrCodeText = "missing pair_id or code"
)

const (
	ctxKeySession = "vaultSession"

	qrDefaultSize = 256
	qrMaxSize     = 1024

	corsMaxAge = 10 * time.Minute
)
