package server

import (
	"context"
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/chinmay1088/odyssey-core/chains"
	"github.com/chinmay1088/odyssey-core/crypto"
	"github.com/chinmay1088/odyssey-core/dispatch"
)

type transferOptions struct {
	FeeRate              *float64 `json:"feeRate"`
	EstimateFeeRate      bool     `json:"estimateFeeRate"`
	GasPrice             string   `json:"gasPrice"`
	MaxFeePerGas         string   `json:"maxFeePerGas"`
	MaxPriorityFeePerGas string   `json:"maxPriorityFeePerGas"`
	GasLimit             *uint64  `json:"gasLimit"`
}

type transferRequest struct {
	From    string          `json:"from" binding:"required"`
	To      string          `json:"to" binding:"required"`
	Amount  string          `json:"amount" binding:"required"`
	Key     string          `json:"key" binding:"required"`
	KeyMode string          `json:"keyMode"`
	Options transferOptions `json:"options"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type balanceResponse struct {
	Chain   string `json:"chain"`
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type transferResponse struct {
	*chains.Result
	Warning string `json:"warning,omitempty"`
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// readyz is ready when every chain has a healthy endpoint.
func (s *Server) readyz(c *gin.Context) {
	for chain, h := range s.backend.GetHealth() {
		if !h.Healthy {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "chain": chain})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.backend.GetHealth())
}

func (s *Server) getBalance(c *gin.Context) {
	chain, address := c.Param("chain"), c.Param("address")
	bal, err := s.backend.GetBalance(c.Request.Context(), chain, address)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, balanceResponse{Chain: chain, Address: address, Balance: bal.String()})
}

func (s *Server) postTransfer(c *gin.Context) {
	var body transferRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	mode, err := crypto.ParseKeyMode(body.KeyMode)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	opts, err := body.Options.sendOptions()
	if err != nil {
		writeError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.SendTimeout)
	defer cancel()
	res, err := s.backend.Send(ctx, dispatch.SendRequest{
		Chain:   c.Param("chain"),
		From:    body.From,
		To:      body.To,
		Amount:  body.Amount,
		Key:     body.Key,
		KeyMode: mode,
		Options: opts,
	})

	switch {
	case err != nil && res != nil:
		// broadcast, but the wait was cut short
		c.JSON(http.StatusAccepted, transferResponse{Result: res, Warning: err.Error()})
	case err != nil:
		writeError(c, err)
	case res.Status == chains.StatusPending:
		c.JSON(http.StatusAccepted, transferResponse{Result: res})
	default:
		c.JSON(http.StatusOK, transferResponse{Result: res})
	}
}

func (s *Server) getTransaction(c *gin.Context) {
	res, err := s.backend.GetStatus(c.Request.Context(), c.Param("chain"), c.Param("ref"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (o transferOptions) sendOptions() (chains.SendOptions, error) {
	opts := chains.SendOptions{
		FeeRate:         o.FeeRate,
		EstimateFeeRate: o.EstimateFeeRate,
		GasLimit:        o.GasLimit,
	}
	var err error
	if opts.GasPrice, err = parseWei("gasPrice", o.GasPrice); err != nil {
		return opts, err
	}
	if opts.MaxFeePerGas, err = parseWei("maxFeePerGas", o.MaxFeePerGas); err != nil {
		return opts, err
	}
	if opts.MaxPriorityFeePerGas, err = parseWei("maxPriorityFeePerGas", o.MaxPriorityFeePerGas); err != nil {
		return opts, err
	}
	return opts, nil
}

// parseWei parses a base-10 wei amount. Empty means unset.
func parseWei(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, errors.Wrapf(chains.ErrInvalidAmount, "%s must be a non-negative integer in wei", field)
	}
	return v, nil
}

// statusFor maps a taxonomy kind to an HTTP status.
func statusFor(err error) int {
	switch chains.Kind(err) {
	case chains.ErrUnsupportedChain, chains.ErrInvalidAddress, chains.ErrInvalidAmount:
		return http.StatusBadRequest
	case chains.ErrKeyDecryptionFailed:
		return http.StatusUnauthorized
	case chains.ErrNoFundsAvailable, chains.ErrInsufficientFunds:
		return http.StatusUnprocessableEntity
	case chains.ErrAllEndpointsUnhealthy:
		return http.StatusServiceUnavailable
	case chains.ErrTimeout:
		return http.StatusGatewayTimeout
	case chains.ErrBroadcastRejected, chains.ErrMalformedResponse:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	resp := errorResponse{Error: err.Error()}
	if kind := chains.Kind(err); kind != nil {
		resp.Kind = kind.Error()
	}
	c.JSON(statusFor(err), resp)
}
