package bitcoin

import (
	"encoding/hex"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chinmay1088/odyssey-core/chains"
)

type testWallet struct {
	priv     *btcec.PrivateKey
	addr     btcutil.Address
	pkScript []byte
}

func newTestWallet(t *testing.T) testWallet {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	addr, err := CreateP2WPKHAddress(priv.PubKey(), &chaincfg.MainNetParams)
	require.NoError(t, err)
	pkScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)
	return testWallet{priv: priv, addr: addr, pkScript: pkScript}
}

func txid(c byte) string {
	return strings.Repeat(string(c), 64)
}

func TestEstimateFee(t *testing.T) {
	assert.Equal(t, int64(192), EstimateFee(1, 1))     // 148+34+10
	assert.Equal(t, int64(340), EstimateFee(2, 1))     // 296+44
	assert.Equal(t, int64(3400), EstimateFee(2, 10))   // exact
	assert.Equal(t, int64(288), EstimateFee(1, 1.5))   // exact
	assert.Equal(t, int64(327), EstimateFee(1, 1.7))   // 326.4 rounded up
	assert.Equal(t, int64(20), EstimateFee(1, 0.1001)) // 19.2192 rounded up
}

func TestBuildTransaction_ChangeAboveDust(t *testing.T) {
	from := newTestWallet(t)
	to := newTestWallet(t)

	utxos := []UTXO{
		{TxID: txid('a'), Vout: 0, Value: 60000},
		{TxID: txid('b'), Vout: 1, Value: 40000},
	}
	tx, err := BuildTransaction(utxos, from.pkScript, to.addr, from.addr, 50000, 10000)
	require.NoError(t, err)

	outs := tx.Outputs()
	require.Len(t, outs, 2)
	assert.Equal(t, int64(50000), outs[0].Value)
	assert.Equal(t, int64(40000), outs[1].Value)
	assert.Equal(t, from.pkScript, outs[1].PkScript)
	assert.Equal(t, int64(40000), tx.Change)
	assert.Equal(t, int64(10000), tx.Fee)
	assert.Len(t, tx.Packet.UnsignedTx.TxIn, 2, "every UTXO is spent")
}

func TestBuildTransaction_DustChangeForfeited(t *testing.T) {
	from := newTestWallet(t)
	to := newTestWallet(t)

	utxos := []UTXO{{TxID: txid('a'), Vout: 0, Value: 50500}}
	tx, err := BuildTransaction(utxos, from.pkScript, to.addr, from.addr, 50000, 400)
	require.NoError(t, err)

	require.Len(t, tx.Outputs(), 1)
	assert.Equal(t, int64(50000), tx.Outputs()[0].Value)
	assert.Equal(t, int64(0), tx.Change)
	assert.Equal(t, int64(500), tx.Fee, "100 sats of change go to the fee")
}

func TestBuildTransaction_ChangeExactlyDust(t *testing.T) {
	from := newTestWallet(t)
	to := newTestWallet(t)

	utxos := []UTXO{{TxID: txid('a'), Vout: 0, Value: 50000 + 1000 + DustThreshold}}
	tx, err := BuildTransaction(utxos, from.pkScript, to.addr, from.addr, 50000, 1000)
	require.NoError(t, err)
	assert.Len(t, tx.Outputs(), 1)

	utxos[0].Value++
	tx, err = BuildTransaction(utxos, from.pkScript, to.addr, from.addr, 50000, 1000)
	require.NoError(t, err)
	assert.Len(t, tx.Outputs(), 2)
	assert.Equal(t, DustThreshold+1, tx.Change)
}

func TestBuildTransaction_Failures(t *testing.T) {
	from := newTestWallet(t)
	to := newTestWallet(t)

	_, err := BuildTransaction(nil, from.pkScript, to.addr, from.addr, 1000, 100)
	assert.True(t, errors.Is(err, chains.ErrNoFundsAvailable))

	utxos := []UTXO{{TxID: txid('a'), Vout: 0, Value: 50000}}
	_, err = BuildTransaction(utxos, from.pkScript, to.addr, from.addr, 50000, 1)
	assert.True(t, errors.Is(err, chains.ErrInsufficientFunds))

	_, err = BuildTransaction(utxos, from.pkScript, to.addr, from.addr, 1000, math.MinInt64)
	assert.True(t, errors.Is(err, chains.ErrInvalidAmount))

	_, err = BuildTransaction(utxos, from.pkScript, to.addr, from.addr, 1000, math.MaxInt64)
	assert.True(t, errors.Is(err, chains.ErrInsufficientFunds))

	_, err = BuildTransaction([]UTXO{{TxID: "zz", Value: 1 << 20}}, from.pkScript, to.addr, from.addr, 1000, 100)
	assert.True(t, errors.Is(err, chains.ErrMalformedResponse))
}

func TestSign_ProducesValidWitnesses(t *testing.T) {
	from := newTestWallet(t)
	to := newTestWallet(t)

	utxos := []UTXO{
		{TxID: txid('a'), Vout: 0, Value: 70000},
		{TxID: txid('b'), Vout: 2, Value: 30000},
		{TxID: txid('c'), Vout: 1, Value: 5000},
	}
	tx, err := BuildTransaction(utxos, from.pkScript, to.addr, from.addr, 80000, EstimateFee(3, 2))
	require.NoError(t, err)

	unsignedID := tx.TxID()
	require.False(t, tx.Signed())
	_, err = tx.Serialize()
	require.Error(t, err)

	require.NoError(t, tx.Sign(from.priv))
	require.True(t, tx.Signed())
	assert.Equal(t, unsignedID, tx.TxID(), "witness data must not change the txid")

	rawHex, err := tx.Serialize()
	require.NoError(t, err)
	assert.NotEmpty(t, rawHex)

	signed := tx.signed
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, in := range signed.TxIn {
		fetcher.AddPrevOut(in.PreviousOutPoint, tx.Packet.Inputs[i].WitnessUtxo)
	}
	hashes := txscript.NewTxSigHashes(signed, fetcher)

	for i, in := range signed.TxIn {
		require.Len(t, in.Witness, 2, "input %d", i)
		vm, err := txscript.NewEngine(from.pkScript, signed, i, txscript.StandardVerifyFlags, nil, hashes, utxos[i].Value, fetcher)
		require.NoError(t, err)
		assert.NoError(t, vm.Execute(), "input %d", i)
	}
}

func TestParsePrivateKey(t *testing.T) {
	w := newTestWallet(t)

	wif, err := btcutil.NewWIF(w.priv, &chaincfg.MainNetParams, true)
	require.NoError(t, err)
	got, err := ParsePrivateKey([]byte(wif.String()))
	require.NoError(t, err)
	assert.Equal(t, w.priv.Serialize(), got.Serialize())

	hexKey := []byte(" " + hex.EncodeToString(w.priv.Serialize()) + "\n")
	got, err = ParsePrivateKey(hexKey)
	require.NoError(t, err)
	assert.Equal(t, w.priv.Serialize(), got.Serialize())

	_, err = ParsePrivateKey([]byte("not a key"))
	assert.True(t, errors.Is(err, chains.ErrKeyDecryptionFailed))
	assert.NotContains(t, err.Error(), "not a key")
}

func TestParseAddress_WrongNetwork(t *testing.T) {
	w := newTestWallet(t)
	_, err := ParseAddress(w.addr.EncodeAddress(), &chaincfg.TestNet3Params)
	assert.True(t, errors.Is(err, chains.ErrInvalidAddress))

	_, err = ParseAddress("bc1qnotanaddress", &chaincfg.MainNetParams)
	assert.True(t, errors.Is(err, chains.ErrInvalidAddress))
}
