// Package biblepay provides the BiblePay Core client used by the pool.
// It wraps btcd's RPC client for the daemon's JSON-RPC interface. The
// pool-specific commands (subsidy, biblehash, hexblocktocoinbase, pinfo)
// are routed through the daemon's "exec" command, which is how BiblePay
// Core exposes them.
package biblepay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/rpcclient"
	"github.com/shopspring/decimal"

	"github.com/purepool/purepool/pkg/circuit"
	"github.com/purepool/purepool/pkg/errors"
	"github.com/purepool/purepool/pkg/retry"
)

// RPCClient provides a high-level interface to BiblePay Core's JSON-RPC
// API for one network. All calls go through a circuit breaker and retry
// with backoff, since the daemon is a single external point of failure
// for the whole submission path.
type RPCClient struct {
	client         *rpcclient.Client
	network        string
	circuitBreaker *circuit.Breaker
	retryConfig    *retry.Config
}

// NewRPCClient creates an RPC client for one network's BiblePay Core
// daemon. HTTP POST mode without TLS matches how the daemon is deployed
// next to the pool.
func NewRPCClient(network, host string, port int, username, password string) (*RPCClient, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         fmt.Sprintf("%s:%d", host, port),
		User:         username,
		Pass:         password,
		HTTPPostMode: true,
		DisableTLS:   true,
	}

	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeChain, "rpc_client_creation",
			"failed to create BiblePay RPC client").
			WithContext("network", network).
			WithContext("host", host).
			WithContext("port", port)
	}

	cbConfig := &circuit.Config{
		MaxFailures:     3,
		SuccessRequired: 2,
		Timeout:         10 * time.Second,
		ResetTimeout:    30 * time.Second,
	}

	return &RPCClient{
		client:         client,
		network:        network,
		circuitBreaker: circuit.New(cbConfig),
		retryConfig:    retry.NetworkConfig(),
	}, nil
}

// Close gracefully shuts down the RPC client.
func (c *RPCClient) Close() {
	c.client.Shutdown()
}

// Network returns the network this client talks to.
func (c *RPCClient) Network() string {
	return c.network
}

// exec invokes one of the daemon's "exec" subcommands and unmarshals the
// result into out.
func (c *RPCClient) exec(out any, subcommand string, args ...string) error {
	params := make([]json.RawMessage, 0, len(args)+1)

	raw, err := json.Marshal(subcommand)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "exec_"+subcommand, "failed to marshal subcommand")
	}
	params = append(params, raw)

	for _, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "exec_"+subcommand, "failed to marshal argument")
		}
		params = append(params, raw)
	}

	result, err := c.client.RawRequest("exec", params)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeChain, "exec_"+subcommand,
			"BiblePay exec command failed").
			WithContext("network", c.network)
	}

	if err := json.Unmarshal(result, out); err != nil {
		return errors.Wrap(err, errors.ErrorTypeChain, "exec_"+subcommand,
			"failed to decode BiblePay exec result").
			WithContext("network", c.network)
	}

	return nil
}

// Subsidy queries the block reward and recipient for one height. Returns
// ErrBlockNotFound once the walk runs past the chain tip.
func (c *RPCClient) Subsidy(ctx context.Context, height int64) (*SubsidyInfo, error) {
	return circuit.ExecuteWithResult(ctx, c.circuitBreaker, func() (*SubsidyInfo, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() (*SubsidyInfo, error) {
			var envelope struct {
				SubsidyInfo
				Error string `json:"error"`
			}

			if err := c.exec(&envelope, "subsidy", fmt.Sprintf("%d", height)); err != nil {
				return nil, err
			}

			if envelope.Error == "block not found" {
				return nil, ErrBlockNotFound
			}
			if envelope.Error != "" {
				return nil, errors.New(errors.ErrorTypeChain, "subsidy",
					"unexpected daemon message: "+envelope.Error).
					WithContext("height", height)
			}

			info := envelope.SubsidyInfo
			return &info, nil
		})
	})
}

// BibleHash asks the daemon to recompute the proof hash for the given
// block parameters. The pool never computes this hash itself; the chain
// is the authority on its own hash function.
func (c *RPCClient) BibleHash(ctx context.Context, blockHash, blockTime, prevBlockTime, prevHeight, nonce string) (string, error) {
	return circuit.ExecuteWithResult(ctx, c.circuitBreaker, func() (string, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() (string, error) {
			var result struct {
				BibleHash string `json:"BibleHash"`
			}

			if err := c.exec(&result, "biblehash", blockHash, blockTime, prevBlockTime, prevHeight, nonce); err != nil {
				return "", err
			}

			if result.BibleHash == "" {
				return "", errors.New(errors.ErrorTypeChain, "biblehash",
					"daemon returned no BibleHash field")
			}

			return result.BibleHash, nil
		})
	})
}

// HexBlockToCoinbase decodes a submitted block/transaction hex pair into
// its coinbase payout information. Decode failures are reported as chain
// errors for the validator to map.
func (c *RPCClient) HexBlockToCoinbase(ctx context.Context, blockHex, txHex string) (*CoinbaseInfo, error) {
	return circuit.ExecuteWithResult(ctx, c.circuitBreaker, func() (*CoinbaseInfo, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() (*CoinbaseInfo, error) {
			info := &CoinbaseInfo{}
			if err := c.exec(info, "hexblocktocoinbase", blockHex, txHex); err != nil {
				return nil, err
			}
			return info, nil
		})
	})
}

// PoolInfo returns the daemon's current acceptance window: the maximum
// nonce it accepts and the current chain height.
func (c *RPCClient) PoolInfo(ctx context.Context) (*MiningInfo, error) {
	return circuit.ExecuteWithResult(ctx, c.circuitBreaker, func() (*MiningInfo, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() (*MiningInfo, error) {
			info := &MiningInfo{}
			if err := c.exec(info, "pinfo"); err != nil {
				return nil, err
			}
			return info, nil
		})
	})
}

// WalletBalance returns the pool wallet's spendable and immature balance.
func (c *RPCClient) WalletBalance(ctx context.Context) (*WalletInfo, error) {
	return circuit.ExecuteWithResult(ctx, c.circuitBreaker, func() (*WalletInfo, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() (*WalletInfo, error) {
			result, err := c.client.RawRequest("getwalletinfo", nil)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeChain, "get_wallet_info",
					"failed to query wallet info").
					WithContext("network", c.network)
			}

			info := &WalletInfo{}
			if err := json.Unmarshal(result, info); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeChain, "get_wallet_info",
					"failed to decode wallet info")
			}

			return info, nil
		})
	})
}

// SendToAddress sends coins to a miner's payout address and returns the
// chain transaction id. The network fee is subtracted from the amount,
// the pool never pays the fee for a payout. Sends are not retried; a
// failed send is recorded and picked up by the next payout run instead,
// since a blind retry could double-pay.
func (c *RPCClient) SendToAddress(ctx context.Context, address string, amount decimal.Decimal, comment string) (string, error) {
	return circuit.ExecuteWithResult(ctx, c.circuitBreaker, func() (string, error) {
		params := make([]json.RawMessage, 0, 5)
		for _, v := range []any{address, amount, comment, "", true} {
			raw, err := json.Marshal(v)
			if err != nil {
				return "", errors.Wrap(err, errors.ErrorTypeInternal, "send_to_address",
					"failed to marshal parameter")
			}
			params = append(params, raw)
		}

		result, err := c.client.RawRequest("sendtoaddress", params)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeChain, "send_to_address",
				"failed to send payout").
				WithContext("network", c.network).
				WithContext("address", address).
				WithContext("amount", amount.String())
		}

		var txID string
		if err := json.Unmarshal(result, &txID); err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeChain, "send_to_address",
				"failed to decode transaction id")
		}

		return txID, nil
	})
}

// Ping tests the connection to the daemon.
func (c *RPCClient) Ping(ctx context.Context) error {
	return c.circuitBreaker.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			if _, err := c.client.RawRequest("getblockcount", nil); err != nil {
				return errors.Wrap(err, errors.ErrorTypeNetwork, "ping",
					"BiblePay Core connectivity check failed").
					WithContext("network", c.network)
			}
			return nil
		})
	})
}
