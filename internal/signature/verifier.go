package signature

import (
	goerr "errors"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rarimo/duo-svc/internal/address"
	"gitlab.com/distributed_lab/logan/v3"
)

const (
	// envelopePrefix marks signatures produced by wallets wrapping the raw
	// 65-byte signature into a one-byte typed envelope.
	envelopePrefix = 0xa1
	hashLength     = 32
)

var (
	ErrMalformedSignature = goerr.New("malformed signature")
	ErrRecovery           = goerr.New("failed to recover signer")
	ErrSignatureMismatch  = goerr.New("signature does not belong to the expected signer")
)

// Verifier checks that a signature over a payload hash was produced by the expected signer.
type Verifier interface {
	Verify(expected string, hash string, signature string) error
}

// EcdsaVerifier recovers secp256k1 signers from signatures over 32-byte hashes.
type EcdsaVerifier struct {
	log *logan.Entry
}

var _ Verifier = &EcdsaVerifier{}

func NewVerifier(log *logan.Entry) *EcdsaVerifier {
	return &EcdsaVerifier{log: log}
}

// StripEnvelope decodes the hex signature dropping the optional envelope prefix.
func StripEnvelope(signature string) ([]byte, error) {
	if !strings.HasPrefix(signature, "0x") && !strings.HasPrefix(signature, "0X") {
		return nil, ErrMalformedSignature
	}

	raw, err := hexutil.Decode("0x" + signature[2:])
	if err != nil {
		return nil, ErrMalformedSignature
	}

	if len(raw) == crypto.SignatureLength+1 && raw[0] == envelopePrefix {
		return raw[1:], nil
	}

	return raw, nil
}

// RecoverSigner recovers the address that signed exactly the given hash.
func RecoverSigner(hash []byte, raw []byte) (string, error) {
	if len(hash) != hashLength || len(raw) != crypto.SignatureLength {
		return "", ErrRecovery
	}

	sig := make([]byte, crypto.SignatureLength)
	copy(sig, raw)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return "", ErrRecovery
	}

	return address.Normalize(crypto.PubkeyToAddress(*pub).Hex()), nil
}

func (v *EcdsaVerifier) Verify(expected string, hash string, signature string) error {
	digest, err := hexutil.Decode(hash)
	if err != nil || len(digest) != hashLength {
		v.log.WithError(err).Debug("failed to decode payload hash")
		return ErrRecovery
	}

	raw, err := StripEnvelope(signature)
	if err != nil {
		v.log.Debug("failed to decode signature")
		return err
	}

	signer, err := RecoverSigner(digest, raw)
	if err != nil {
		v.log.Debug("failed to recover signature pub key")
		return err
	}

	if !address.Equal(signer, expected) {
		v.log.WithFields(logan.F{
			"expected":  address.Normalize(expected),
			"recovered": signer,
		}).Debug("recovered signer differs from expected")
		return ErrSignatureMismatch
	}

	return nil
}
