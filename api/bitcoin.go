package api

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/pkg/errors"

	"github.com/chinmay1088/odyssey-core/chains"
)

// GetBitcoinUTXOs fetches the unspent outputs of address from an Esplora index
func (c *Client) GetBitcoinUTXOs(ctx context.Context, index, address string) ([]BitcoinUTXO, error) {
	url := fmt.Sprintf("%s/address/%s/utxo", strings.TrimRight(index, "/"), address)

	var utxos []BitcoinUTXO
	if err := c.getJSON(ctx, url, &utxos); err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == 400 {
			return nil, errors.Wrapf(chains.ErrInvalidAddress, "index rejected %s: %s", address, httpErr.Body)
		}
		return nil, errors.Wrap(err, "failed to fetch UTXOs")
	}
	return utxos, nil
}

// GetBitcoinTxStatus fetches the confirmation status of txid from an Esplora
// index. found is false when the index has never seen the transaction.
func (c *Client) GetBitcoinTxStatus(ctx context.Context, index, txid string) (status TxStatus, found bool, err error) {
	url := fmt.Sprintf("%s/tx/%s/status", strings.TrimRight(index, "/"), txid)

	if err := c.getJSON(ctx, url, &status); err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && (httpErr.StatusCode == 404 || httpErr.StatusCode == 400) {
			return TxStatus{}, false, nil
		}
		return TxStatus{}, false, errors.Wrap(err, "failed to fetch transaction status")
	}
	return status, true, nil
}

// GetBitcoinTipHeight returns the index's best block height
func (c *Client) GetBitcoinTipHeight(ctx context.Context, index string) (uint64, error) {
	text, err := c.getText(ctx, strings.TrimRight(index, "/")+"/blocks/tip/height")
	if err != nil {
		return 0, err
	}
	height, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, chains.Wrap(chains.ErrMalformedResponse, errors.Wrapf(err, "tip height %q", text))
	}
	return height, nil
}

// GetBitcoinFeeEstimate returns the half-hour fee rate in sat/vB
func (c *Client) GetBitcoinFeeEstimate(ctx context.Context, index string) (int64, error) {
	var fees FeeRecommendation
	if err := c.getJSON(ctx, strings.TrimRight(index, "/")+"/v1/fees/recommended", &fees); err != nil {
		return 0, errors.Wrap(err, "failed to fetch fee estimate")
	}
	if fees.HalfHourFee <= 0 {
		return 0, chains.Wrap(chains.ErrMalformedResponse, errors.New("fee estimate missing halfHourFee"))
	}
	return fees.HalfHourFee, nil
}

// GetBitcoinBlockCount returns the node's block count
func (c *Client) GetBitcoinBlockCount(ctx context.Context, node string) (uint64, error) {
	var count int64
	if err := c.Call(ctx, node, "getblockcount", nil, &count); err != nil {
		return 0, err
	}
	if count < 0 {
		return 0, chains.Wrap(chains.ErrMalformedResponse, errors.Errorf("negative block count %d", count))
	}
	return uint64(count), nil
}

// SendBitcoinTransaction submits a hex-encoded signed transaction and returns
// the txid reported by the node
func (c *Client) SendBitcoinTransaction(ctx context.Context, node, rawHex string) (string, error) {
	var txid string
	if err := c.Call(ctx, node, "sendrawtransaction", []interface{}{rawHex}, &txid); err != nil {
		return "", err
	}
	return txid, nil
}

// GetBitcoinRawTransaction fetches the verbose form of txid from the node
func (c *Client) GetBitcoinRawTransaction(ctx context.Context, node, txid string) (*btcjson.TxRawResult, error) {
	var tx btcjson.TxRawResult
	if err := c.Call(ctx, node, "getrawtransaction", []interface{}{txid, true}, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetBitcoinBlockHeader fetches the verbose header of the block with hash
func (c *Client) GetBitcoinBlockHeader(ctx context.Context, node, hash string) (*btcjson.GetBlockHeaderVerboseResult, error) {
	var header btcjson.GetBlockHeaderVerboseResult
	if err := c.Call(ctx, node, "getblockheader", []interface{}{hash, true}, &header); err != nil {
		return nil, err
	}
	return &header, nil
}

// IsBitcoinNotFound reports whether err is the node's "no such transaction"
// answer.
func IsBitcoinNotFound(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == int(btcjson.ErrRPCNoTxInfo)
}

// IsBitcoinAlreadyKnown reports whether err means the node already has the
// transaction, in its mempool or in a block.
func IsBitcoinAlreadyKnown(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	if rpcErr.Code == int(btcjson.ErrRPCVerifyAlreadyInChain) {
		return true
	}
	msg := strings.ToLower(rpcErr.Message)
	return strings.Contains(msg, "already in block chain") ||
		strings.Contains(msg, "txn-already-known") ||
		strings.Contains(msg, "txn-already-in-mempool")
}

// BitcoinNodeProber probes a bitcoind endpoint with getblockcount
func (c *Client) BitcoinNodeProber() func(ctx context.Context, endpoint string) (uint64, error) {
	return func(ctx context.Context, endpoint string) (uint64, error) {
		return c.GetBitcoinBlockCount(ctx, endpoint)
	}
}

// BitcoinIndexProber probes an Esplora index with its tip height
func (c *Client) BitcoinIndexProber() func(ctx context.Context, endpoint string) (uint64, error) {
	return func(ctx context.Context, endpoint string) (uint64, error) {
		return c.GetBitcoinTipHeight(ctx, endpoint)
	}
}
