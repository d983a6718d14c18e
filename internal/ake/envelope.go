package ake

import "encoding/binary"

// packEnvelope builds the opaque, per-principal envelope blob: the
// client's static AKE public key in the clear (the server
// needs it for the 3DH login computation but never learns the matching
// private key) followed by the sealed ciphertext the client alone can
// open. The two-byte length prefix lets unpackEnvelope split them back
// out without needing a second stored column.
func packEnvelope(clientPublicKey, sealedCiphertext []byte) []byte {
	out := make([]byte, 2+len(clientPublicKey)+len(sealedCiphertext))
	binary.BigEndian.PutUint16(out[:2], uint16(len(clientPublicKey)))
	copy(out[2:], clientPublicKey)
	copy(out[2+len(clientPublicKey):], sealedCiphertext)
	return out
}

func unpackEnvelope(blob []byte) (clientPublicKey, sealedCiphertext []byte, err error) {
	if len(blob) < 2 {
		return nil, nil, errEnvelopeTooShort
	}
	n := int(binary.BigEndian.Uint16(blob[:2]))
	if len(blob) < 2+n {
		return nil, nil, errEnvelopeTooShort
	}
	return blob[2 : 2+n], blob[2+n:], nil
}
