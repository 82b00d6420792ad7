package flashbots

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const flashbotsXHeader = "X-Flashbots-Signature"

// signingTransport adds the relay authentication header to every request.
// The header is "<address>:<signature>" where the signature covers the
// hex encoded keccak256 of the request body.
type signingTransport struct {
	key     *ecdsa.PrivateKey
	address common.Address
	next    http.RoundTripper
}

func newSigningTransport(key *ecdsa.PrivateKey, next http.RoundTripper) *signingTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &signingTransport{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		next:    next,
	}
}

func (t *signingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var payload []byte
	if req.Body != nil {
		var err error
		payload, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
	}

	header, err := SignPayload(payload, t.key)
	if err != nil {
		return nil, err
	}

	// RoundTrip must not modify the caller's request
	signed := req.Clone(req.Context())
	signed.Body = io.NopCloser(bytes.NewReader(payload))
	signed.ContentLength = int64(len(payload))
	signed.Header.Set(flashbotsXHeader, header)

	return t.next.RoundTrip(signed)
}

// SignPayload returns the X-Flashbots-Signature header value for payload
func SignPayload(payload []byte, key *ecdsa.PrivateKey) (string, error) {
	signature, err := crypto.Sign(
		accounts.TextHash([]byte(hexutil.Encode(crypto.Keccak256(payload)))),
		key,
	)
	if err != nil {
		return "", fmt.Errorf("failed to sign request: %w", err)
	}

	return fmt.Sprintf("%s:%s",
		crypto.PubkeyToAddress(key.PublicKey).Hex(),
		hexutil.Encode(signature),
	), nil
}

// VerifySignature checks a header produced by SignPayload and returns the signer
func VerifySignature(payload []byte, header string) (common.Address, error) {
	addr, sig, ok := strings.Cut(header, ":")
	if !ok || !common.IsHexAddress(addr) {
		return common.Address{}, fmt.Errorf("malformed signature header")
	}

	sigBytes, err := hexutil.Decode(sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("malformed signature: %w", err)
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(hexutil.Encode(crypto.Keccak256(payload)))), sigBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}

	recovered := crypto.PubkeyToAddress(*pub)
	if recovered != common.HexToAddress(addr) {
		return common.Address{}, fmt.Errorf("signature does not match %s", addr)
	}
	return recovered, nil
}
