package ethauth

import (
	"errors"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ChallengePrefix is the fixed part of the message users sign
const ChallengePrefix = "I am signing my one-time nonce: "

var (
	errSignatureLength   = errors.New("signature must be 65 bytes")
	errSignatureRecovery = errors.New("invalid recovery id")
)

// ChallengeMessage builds the canonical message for nonce
func ChallengeMessage(nonce int64) string {
	return ChallengePrefix + strconv.FormatInt(nonce, 10)
}

// RecoverAddress returns the checksummed address that produced signature
// over message using the personal_sign convention, which prefixes the
// message with "\x19Ethereum Signed Message:\n" and its length before
// hashing with keccak256.
func RecoverAddress(message, signature string) (string, error) {
	sig, err := decodeSignature(signature)
	if err != nil {
		return "", err
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", err
	}

	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

func decodeSignature(signature string) ([]byte, error) {
	raw := strings.TrimSpace(signature)
	if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") {
		raw = "0x" + raw
	}

	sig, err := hexutil.Decode(raw)
	if err != nil {
		return nil, err
	}

	if len(sig) != crypto.SignatureLength {
		return nil, errSignatureLength
	}

	// wallets emit v as 27/28, go-ethereum expects 0/1
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	if sig[crypto.RecoveryIDOffset] > 1 {
		return nil, errSignatureRecovery
	}

	return sig, nil
}

// SignatureVerifier checks that a signature over the user's current nonce
// was produced by the user's address. It has no side effects.
type SignatureVerifier struct {
	logger Logger
}

// NewSignatureVerifier returns a verifier
func NewSignatureVerifier() *SignatureVerifier {
	return &SignatureVerifier{logger: defLogger{}}
}

// WithLogger sets the logger
func (v *SignatureVerifier) WithLogger(logger Logger) *SignatureVerifier {
	if logger != nil {
		v.logger = logger
	}
	return v
}

// Verify checks signature against the user's current nonce and stored
// address, returning the recovered address on success.
func (v *SignatureVerifier) Verify(user *User, signature string) (string, error) {
	if user == nil {
		return "", errInvalidSignature()
	}
	return v.VerifyChallenge(user.Nonce, user.EthereumAddress, signature)
}

// VerifyChallenge is the pure form of Verify. Malformed signatures and
// address mismatches yield the same error.
func (v *SignatureVerifier) VerifyChallenge(nonce int64, address, signature string) (string, error) {
	recovered, err := RecoverAddress(ChallengeMessage(nonce), signature)
	if err != nil {
		v.logger.Debug("signature recovery failed", "error", err)
		return "", errInvalidSignature()
	}

	if NormalizeAddress(recovered) != NormalizeAddress(address) {
		return "", errInvalidSignature()
	}

	return NormalizeAddress(recovered), nil
}
