package vault

import "errors"

var (
	// ErrLocked is returned when a session is missing, expired or revoked.
	ErrLocked = errors.New("vault is locked or no password is set")

	// ErrWrongPassword means a vault exists and the password does not open it.
	ErrWrongPassword = errors.New("wrong password")

	ErrInvalidKey          = errors.New("invalid private key")
	ErrInvalidMnemonic     = errors.New("invalid mnemonic")
	ErrInvalidAccountCount = errors.New("invalid account count")
	ErrInvalidName         = errors.New("invalid account name")
	ErrAccountNotFound     = errors.New("account not found")
	ErrWalletNotFound      = errors.New("mnemonic wallet not found")
	ErrNoAccountSelected   = errors.New("no account selected")
)
