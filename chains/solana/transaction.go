package solana

import (
	"bytes"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/chinmay1088/odyssey-core/chains"
)

// Transaction is an unsigned blockhash-scoped transfer.
type Transaction struct {
	Instructions    []solana.Instruction
	FeePayer        solana.PublicKey
	RecentBlockhash solana.Hash
}

// NewTransferTransaction creates a single-instruction native transfer paid
// for by from.
func NewTransferTransaction(from, to solana.PublicKey, lamports uint64, recentBlockhash solana.Hash) *Transaction {
	instruction := system.NewTransferInstruction(
		lamports,
		from,
		to,
	).Build()
	return &Transaction{
		Instructions:    []solana.Instruction{instruction},
		FeePayer:        from,
		RecentBlockhash: recentBlockhash,
	}
}

// Sign builds the wire transaction and signs it with signer, which must be
// the fee payer.
func (tx *Transaction) Sign(signer solana.PrivateKey) (*solana.Transaction, error) {
	if tx.RecentBlockhash.IsZero() {
		return nil, errors.New("blockhash is empty")
	}
	if !signer.PublicKey().Equals(tx.FeePayer) {
		return nil, errors.Wrap(chains.ErrInvalidAddress, "signer is not the fee payer")
	}

	stx, err := solana.NewTransaction(
		tx.Instructions,
		tx.RecentBlockhash,
		solana.TransactionPayer(tx.FeePayer),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create transaction")
	}

	_, err = stx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(tx.FeePayer) {
			return &signer
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign transaction")
	}
	return stx, nil
}

// ParseAddress parses a base58 account address
func ParseAddress(address string) (solana.PublicKey, error) {
	pubKey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return solana.PublicKey{}, errors.Wrapf(chains.ErrInvalidAddress, "invalid Solana address (%s): %v", address, err)
	}
	return pubKey, nil
}

// ParsePrivateKey decodes a base58 64-byte ed25519 secret key into a fresh
// buffer. The caller owns the buffer and must clear it.
func ParsePrivateKey(key []byte) (solana.PrivateKey, error) {
	raw, err := base58.Decode(string(bytes.TrimSpace(key)))
	if err != nil {
		return nil, errors.Wrap(chains.ErrKeyDecryptionFailed, "private key is not valid base58")
	}
	if len(raw) != 64 {
		clear(raw)
		return nil, errors.Wrapf(chains.ErrKeyDecryptionFailed, "private key must be 64 bytes, got %d", len(raw))
	}
	return solana.PrivateKey(raw), nil
}
