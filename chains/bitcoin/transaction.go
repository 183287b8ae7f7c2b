package bitcoin

import (
	"bytes"
	"encoding/hex"
	"math"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"

	"github.com/chinmay1088/odyssey-core/chains"
)

const (
	// DustThreshold is the largest change value that is forfeited to the fee
	// instead of getting its own output.
	DustThreshold int64 = 546

	// DefaultFee is used when the caller gives no fee rate.
	DefaultFee int64 = 10000

	// legacy size heuristic: bytes per input, per output, and overhead
	inputSize    = 148
	outputSize   = 34
	overheadSize = 10

	txVersion = 2
)

// UTXO represents an unspent transaction output
type UTXO struct {
	TxID  string
	Vout  uint32
	Value int64 // satoshis
}

// Transaction is an unsigned or signed transfer. Until Sign succeeds the
// partially signed packet holds the inputs with their witness UTXOs.
type Transaction struct {
	Packet     *psbt.Packet
	Inputs     []UTXO
	TotalInput int64
	Amount     int64
	Fee        int64 // includes forfeited dust change
	Change     int64 // zero when no change output
	FeeRate    float64

	signed *wire.MsgTx
}

// EstimateFee returns the fee for spending numInputs at feeRate sat/byte
// using the legacy (non-segwit) size heuristic, rounded up.
func EstimateFee(numInputs int, feeRate float64) int64 {
	size := float64(numInputs*inputSize + outputSize + overheadSize)
	return int64(math.Ceil(size * feeRate))
}

// BuildTransaction spends every UTXO in utxos, paying amount to to and the
// remainder minus fee back to change. The change output is only added when it
// is above the dust threshold.
func BuildTransaction(utxos []UTXO, pkScript []byte, to, change btcutil.Address, amount, fee int64) (*Transaction, error) {
	if len(utxos) == 0 {
		return nil, chains.ErrNoFundsAvailable
	}
	if amount <= 0 {
		return nil, errors.Wrapf(chains.ErrInvalidAmount, "amount %d sats", amount)
	}
	if fee < 0 {
		return nil, errors.Wrapf(chains.ErrInvalidAmount, "fee %d sats", fee)
	}

	var total int64
	outpoints := make([]*wire.OutPoint, 0, len(utxos))
	for _, u := range utxos {
		prevHash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, chains.Wrap(chains.ErrMalformedResponse, errors.Wrapf(err, "invalid previous transaction hash %q", u.TxID))
		}
		outpoints = append(outpoints, wire.NewOutPoint(prevHash, u.Vout))
		total += u.Value
	}

	if total < amount || total-amount < fee {
		return nil, errors.Wrapf(chains.ErrInsufficientFunds, "have %d sats, need amount %d + fee %d", total, amount, fee)
	}

	toScript, err := txscript.PayToAddrScript(to)
	if err != nil {
		return nil, errors.Wrapf(chains.ErrInvalidAddress, "failed to create output script: %v", err)
	}
	outputs := []*wire.TxOut{wire.NewTxOut(amount, toScript)}

	tx := &Transaction{
		Inputs:     utxos,
		TotalInput: total,
		Amount:     amount,
		Fee:        fee,
	}

	if rest := total - amount - fee; rest > DustThreshold {
		changeScript, err := txscript.PayToAddrScript(change)
		if err != nil {
			return nil, errors.Wrapf(chains.ErrInvalidAddress, "failed to create change script: %v", err)
		}
		outputs = append(outputs, wire.NewTxOut(rest, changeScript))
		tx.Change = rest
	} else {
		tx.Fee += rest
	}

	sequences := make([]uint32, len(outpoints))
	for i := range sequences {
		sequences[i] = wire.MaxTxInSequenceNum
	}
	packet, err := psbt.New(outpoints, outputs, txVersion, 0, sequences)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create psbt")
	}

	updater, err := psbt.NewUpdater(packet)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create psbt updater")
	}
	for i, u := range utxos {
		if err := updater.AddInWitnessUtxo(wire.NewTxOut(u.Value, pkScript), i); err != nil {
			return nil, errors.Wrapf(err, "failed to add witness utxo to input %d", i)
		}
		if err := updater.AddInSighashType(txscript.SigHashAll, i); err != nil {
			return nil, errors.Wrapf(err, "failed to set sighash type on input %d", i)
		}
	}

	tx.Packet = packet
	return tx, nil
}

// Outputs returns the transaction outputs
func (tx *Transaction) Outputs() []*wire.TxOut {
	return tx.Packet.UnsignedTx.TxOut
}

// Sign signs every input independently with privateKey (P2WPKH), finalizes
// the packet and extracts the network transaction.
func (tx *Transaction) Sign(privateKey *btcec.PrivateKey) error {
	unsigned := tx.Packet.UnsignedTx

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, in := range unsigned.TxIn {
		fetcher.AddPrevOut(in.PreviousOutPoint, tx.Packet.Inputs[i].WitnessUtxo)
	}
	hashes := txscript.NewTxSigHashes(unsigned, fetcher)

	updater, err := psbt.NewUpdater(tx.Packet)
	if err != nil {
		return errors.Wrap(err, "failed to create psbt updater")
	}

	pubKey := privateKey.PubKey().SerializeCompressed()
	for i := range unsigned.TxIn {
		prev := tx.Packet.Inputs[i].WitnessUtxo
		sig, err := txscript.RawTxInWitnessSignature(unsigned, hashes, i, prev.Value, prev.PkScript, txscript.SigHashAll, privateKey)
		if err != nil {
			return errors.Wrapf(err, "failed to sign input %d", i)
		}
		outcome, err := updater.Sign(i, sig, pubKey, nil, nil)
		if err != nil {
			return errors.Wrapf(err, "failed to add signature to input %d", i)
		}
		if outcome == psbt.SignInvalid {
			return errors.Errorf("signature for input %d rejected", i)
		}
	}

	if err := psbt.MaybeFinalizeAll(tx.Packet); err != nil {
		return errors.Wrap(err, "failed to finalize psbt")
	}
	signed, err := psbt.Extract(tx.Packet)
	if err != nil {
		return errors.Wrap(err, "failed to extract transaction")
	}
	tx.signed = signed
	return nil
}

// Signed reports whether Sign has completed
func (tx *Transaction) Signed() bool {
	return tx.signed != nil
}

// TxID returns the canonical transaction id. Witness data does not affect it,
// so it is stable from construction onwards.
func (tx *Transaction) TxID() string {
	if tx.signed != nil {
		return tx.signed.TxHash().String()
	}
	return tx.Packet.UnsignedTx.TxHash().String()
}

// Serialize serializes the signed transaction to hex
func (tx *Transaction) Serialize() (string, error) {
	if tx.signed == nil {
		return "", errors.New("transaction is not signed")
	}
	var buf bytes.Buffer
	if err := tx.signed.Serialize(&buf); err != nil {
		return "", errors.Wrap(err, "failed to serialize transaction")
	}
	return hex.EncodeToString(buf.Bytes()), nil
}
