package constants

const (
	AppName = "wallet-bridge"

	SchemaV1      = 1
	FilePerm      = 0o600
	DirectoryPerm = 0o700

	NativeAddr = "0x0000000000000000000000000000000000000000"

	// AAD for the sealed account list (must match on decrypt).
	AccountsAAD = "wallet-bridge:vault:accounts:v1"

	// AAD for the sealed mnemonic wallet list.
	MnemonicsAAD = "wallet-bridge:vault:mnemonics:v1"

	// AAD for the password verifier envelope.
	VerifierAAD = "wallet-bridge:vault:verifier:v1"

	StoreDirName  = "store"
	BadgerDirName = "badger"
)

// KeyValueStore key space.
const (
	KeyPasswordVerifier  = "vault/verifier"
	KeyAccountsBlob      = "vault/accounts"
	KeyMnemonicsBlob     = "vault/mnemonics"
	KeyCurrentAccount    = "wallet/current-account"
	KeyChains            = "chains/list"
	KeyCurrentChainID    = "chains/current"
	KeyWatchedTokens     = "assets/watched"
	KeyPermissionsLedger = "permissions/origins"
)

const (
	StorageBackendBadger = "badger"
	StorageBackendFile   = "file"
	StorageBackendMemory = "memory"
)
