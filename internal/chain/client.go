package chain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"settlement/internal/keyvault"
)

var (
	ErrInvalidSkeleton     = errors.New("transaction skeleton contains nothing to sign")
	ErrUpstreamUnavailable = errors.New("blockchain api unreachable")
)

// BroadcastError carries the provider's rejection body so a failed send can
// be reconciled by hand.
type BroadcastError struct {
	StatusCode int
	Body       string
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("broadcast rejected (status %d): %s", e.StatusCode, e.Body)
}

// Client talks to a BlockCypher-style HTTP API: address generation, unsigned
// transaction skeletons and signed broadcast.
type Client struct {
	http  *resty.Client
	token string
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	http := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &Client{http: http, token: token}
}

func networkPath(currency string) (string, error) {
	switch currency {
	case "BTC":
		return "btc/main", nil
	case "LTC":
		return "ltc/main", nil
	}
	return "", errors.Errorf("no network for currency %q", currency)
}

type generatedAddress struct {
	Address string `json:"address"`
	Private string `json:"private"`
}

// NewAddress asks the provider to generate a keypair. The private key is
// returned in plaintext and must be handed to the key vault immediately.
func (c *Client) NewAddress(ctx context.Context, currency string) (string, string, error) {
	network, err := networkPath(currency)
	if err != nil {
		return "", "", err
	}
	var generated generatedAddress
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token", c.token).
		SetResult(&generated).
		Post("/" + network + "/addrs")
	if err != nil {
		return "", "", errors.Wrap(ErrUpstreamUnavailable, err.Error())
	}
	if resp.IsError() {
		return "", "", errors.Wrapf(ErrUpstreamUnavailable, "address generation failed: %s", resp.Status())
	}
	if generated.Address == "" || generated.Private == "" {
		return "", "", errors.Wrap(ErrUpstreamUnavailable, "address generation returned empty keypair")
	}
	return generated.Address, generated.Private, nil
}

// TxSkeleton is the provider's unsigned transaction: the tx object to echo
// back on send plus the hashes to sign.
type TxSkeleton struct {
	Tx     json.RawMessage `json:"tx"`
	ToSign []string        `json:"tosign"`
	Errors []struct {
		Error string `json:"error"`
	} `json:"errors"`
}

type newTxRequest struct {
	Inputs  []txEndpoint `json:"inputs"`
	Outputs []txEndpoint `json:"outputs"`
}

type txEndpoint struct {
	Addresses []string `json:"addresses"`
	Value     int64    `json:"value,omitempty"`
}

// NewTransaction builds an unsigned skeleton paying amountUnits (satoshi or
// litoshi) from one address to another.
func (c *Client) NewTransaction(ctx context.Context, currency, from, to string, amountUnits int64) (*TxSkeleton, error) {
	network, err := networkPath(currency)
	if err != nil {
		return nil, err
	}
	body := newTxRequest{
		Inputs:  []txEndpoint{{Addresses: []string{from}}},
		Outputs: []txEndpoint{{Addresses: []string{to}, Value: amountUnits}},
	}
	var skeleton TxSkeleton
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token", c.token).
		SetBody(body).
		SetResult(&skeleton).
		Post("/" + network + "/txs/new")
	if err != nil {
		return nil, errors.Wrap(ErrUpstreamUnavailable, err.Error())
	}
	if resp.IsError() {
		return nil, errors.Wrapf(ErrUpstreamUnavailable, "skeleton build failed: %s %s", resp.Status(), resp.String())
	}
	if len(skeleton.Errors) > 0 {
		return nil, errors.Wrap(ErrInvalidSkeleton, skeleton.Errors[0].Error)
	}
	if len(skeleton.ToSign) == 0 && len(skeleton.Tx) == 0 {
		return nil, ErrInvalidSkeleton
	}
	return &skeleton, nil
}

type sendRequest struct {
	Tx         json.RawMessage `json:"tx"`
	ToSign     []string        `json:"tosign"`
	Signatures []string        `json:"signatures"`
	Pubkeys    []string        `json:"pubkeys"`
}

type sendResponse struct {
	Tx struct {
		Hash string `json:"hash"`
	} `json:"tx"`
}

// Send signs every tosign hash with key and submits the result. Key material
// never leaves the process; only signatures and the compressed public key go
// over the wire.
func (c *Client) Send(ctx context.Context, currency string, skeleton *TxSkeleton, key keyvault.PrivateKey) (string, error) {
	network, err := networkPath(currency)
	if err != nil {
		return "", err
	}
	if skeleton == nil || len(skeleton.ToSign) == 0 {
		return "", ErrInvalidSkeleton
	}
	pubkey := hex.EncodeToString(key.PubKeyCompressed())
	body := sendRequest{
		Tx:     skeleton.Tx,
		ToSign: skeleton.ToSign,
	}
	for _, toSign := range skeleton.ToSign {
		hash, err := hex.DecodeString(toSign)
		if err != nil {
			return "", errors.Wrapf(ErrInvalidSkeleton, "tosign %q is not hex", toSign)
		}
		body.Signatures = append(body.Signatures, hex.EncodeToString(key.Sign(hash)))
		body.Pubkeys = append(body.Pubkeys, pubkey)
	}

	var result sendResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token", c.token).
		SetBody(body).
		SetResult(&result).
		Post("/" + network + "/txs/send")
	if err != nil {
		return "", errors.Wrap(ErrUpstreamUnavailable, err.Error())
	}
	if resp.IsError() {
		return "", &BroadcastError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	if result.Tx.Hash == "" {
		return "", &BroadcastError{StatusCode: resp.StatusCode(), Body: "missing transaction hash in response"}
	}
	logrus.WithFields(logrus.Fields{
		"currency": currency,
		"tx_hash":  result.Tx.Hash,
	}).Info("broadcast accepted")
	return result.Tx.Hash, nil
}
