// Package handshake builds and verifies the hello payloads that authenticate
// peers to each other. A hello carries the sender's public key and a
// signature, by that key, over the sender's signatory. Verifying the
// signature is what advances a peer to the authenticated state.
package handshake

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"

	"github.com/cygnusnet/ow/wire"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/renproject/id"
)

// Hello builds the payload that authenticates the local peer to a remote: the
// local public key, and a signature over the local signatory.
func Hello(privKey *ecdsa.PrivateKey) (wire.HelloV1, error) {
	signatory := id.NewSignatory(privKey.PublicKey)
	signature, err := crypto.Sign(signatory[:], privKey)
	if err != nil {
		return wire.HelloV1{}, fmt.Errorf("signing signatory: %v", err)
	}
	return wire.HelloV1{
		PubKey:    crypto.FromECDSAPub(&privKey.PublicKey),
		Signature: signature,
	}, nil
}

// VerifyHello checks that a hello payload carries a valid signature over the
// signatory of its claimed public key, and returns that signatory.
func VerifyHello(hello wire.HelloV1) (id.Signatory, error) {
	pubKey, err := crypto.UnmarshalPubkey(hello.PubKey)
	if err != nil {
		return id.Signatory{}, fmt.Errorf("unmarshaling public key: %v", err)
	}
	signatory := id.NewSignatory(*pubKey)

	recovered, err := crypto.SigToPub(signatory[:], hello.Signature)
	if err != nil {
		return id.Signatory{}, fmt.Errorf("recovering public key: %v", err)
	}
	if !bytes.Equal(crypto.FromECDSAPub(recovered), hello.PubKey) {
		return id.Signatory{}, fmt.Errorf("signature does not match public key")
	}
	return signatory, nil
}
