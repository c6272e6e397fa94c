package common

import ethcrypto "github.com/ethereum/go-ethereum/crypto"

// ModuleAddress derives the deterministic ledger address owned by a native
// module. Module accounts have no known private key; only module code can move
// funds or assets held by them.
func ModuleAddress(module string) [20]byte {
	hash := ethcrypto.Keccak256([]byte("deedvault/module/" + module))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}
