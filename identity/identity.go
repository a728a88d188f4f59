// Package identity provides the peer identities used to address and seal
// signaling messages. A peer is identified by the public half of a nacl box
// keypair; keys are rendered in base58 wherever they cross a wire or a
// config file.
package identity

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/nacl/box"
)

const (
	// KeySize is the size of a key in bytes.
	KeySize = 32
	// NonceSize is the size of a sealing nonce in bytes.
	NonceSize = 24
)

type (
	// Key is a public or private key.
	Key [KeySize]byte
	// A KeyPair is a public, private key pair.
	KeyPair struct {
		Public, Private Key
	}
	// Nonce is a number used once.
	Nonce = [NonceSize]byte
)

// NewKey parses a key from its base58 form.
func NewKey(str string) (key Key, err error) {
	bs, err := base58.Decode(str)
	if err != nil {
		return key, err
	}
	if len(bs) != KeySize {
		return key, errors.New("invalid key")
	}
	copy(key[:], bs)
	return key, nil
}

// Valid reports whether the key is set.
func (key Key) Valid() bool {
	return [KeySize]byte(key) != [KeySize]byte{}
}

func (key Key) String() string {
	return base58.Encode(key[:])
}

func (key Key) MarshalJSON() ([]byte, error) {
	return json.Marshal(key.String())
}

func (key *Key) UnmarshalJSON(data []byte) error {
	var raw string
	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}
	*key, err = NewKey(raw)
	return err
}

func (key Key) MarshalYAML() (interface{}, error) {
	return key.String(), nil
}

func (key *Key) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var str string
	err := unmarshal(&str)
	if err != nil {
		return err
	}
	*key, err = NewKey(str)
	return err
}

// New generates a keypair.
func New() KeyPair {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}
	return KeyPair{Public: *pub, Private: *priv}
}

// Seal encrypts and authenticates data for the peer holding the private
// half of peerPublicKey. The nonce is prepended to the sealed payload.
func (pair *KeyPair) Seal(peerPublicKey Key, data []byte) []byte {
	nonce := newNonce()
	peerKey := [KeySize]byte(peerPublicKey)
	privateKey := [KeySize]byte(pair.Private)
	sealed := box.Seal(nil, data, &nonce, &peerKey, &privateKey)

	out := make([]byte, 0, NonceSize+len(sealed))
	out = append(out, nonce[:]...)
	out = append(out, sealed...)
	return out
}

// Open authenticates and decrypts a payload produced by the peer's Seal.
func (pair *KeyPair) Open(peerPublicKey Key, data []byte) ([]byte, error) {
	if len(data) < NonceSize {
		return nil, errors.New("invalid message")
	}
	var nonce Nonce
	copy(nonce[:], data)
	peerKey := [KeySize]byte(peerPublicKey)
	privateKey := [KeySize]byte(pair.Private)
	opened, ok := box.Open(nil, data[NonceSize:], &nonce, &peerKey, &privateKey)
	if !ok {
		return nil, errors.New("invalid message")
	}
	return opened, nil
}

func newNonce() Nonce {
	var nonce Nonce
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		panic(err)
	}
	return nonce
}
