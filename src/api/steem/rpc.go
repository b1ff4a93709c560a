package steem

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/utopian-io/utopian-api/src/webclient"
)

// ---------- tiny JSON-RPC helpers ----------

type rpcReq struct {
	Jsonrpc string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResp struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Client talks to a steem node's condenser API over HTTP.
type Client struct {
	url    string
	http   *http.Client
	nextID uint64
}

func NewClient(url string) *Client {
	return &Client{
		url:  url,
		http: webclient.NewDefault(30 * time.Second),
	}
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	req := rpcReq{
		Jsonrpc: "2.0",
		ID:      atomic.AddUint64(&c.nextID, 1),
		Method:  method,
		Params:  params,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}

	status, body, err := webclient.DoWithRetry(ctx, 3, 2*time.Second, func() (int, []byte, error) {
		hr, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
		if err != nil {
			return 0, nil, err
		}
		hr.Header.Set("Content-Type", "application/json")
		resp, err := c.http.Do(hr)
		if err != nil {
			return 0, nil, err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		return resp.StatusCode, b, err
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &webclient.StatusError{Status: status}
	}

	var rsp rpcResp
	if err := json.Unmarshal(body, &rsp); err != nil {
		return err
	}
	if rsp.Error != nil {
		return fmt.Errorf("RPC %d: %s", rsp.Error.Code, rsp.Error.Message)
	}
	if out == nil || len(rsp.Result) == 0 || string(rsp.Result) == "null" {
		return nil
	}
	return json.Unmarshal(rsp.Result, out)
}

// ---------- condenser types ----------

// RawOperation is the ["name", {...}] tuple as it appears in blocks.
type RawOperation struct {
	Name    string
	Payload json.RawMessage
}

func (o *RawOperation) UnmarshalJSON(b []byte) error {
	var tup [2]json.RawMessage
	if err := json.Unmarshal(b, &tup); err != nil {
		return err
	}
	if err := json.Unmarshal(tup[0], &o.Name); err != nil {
		return err
	}
	o.Payload = tup[1]
	return nil
}

type BlockTransaction struct {
	TransactionID string         `json:"transaction_id"`
	Operations    []RawOperation `json:"operations"`
}

type Block struct {
	Previous     string             `json:"previous"`
	Timestamp    string             `json:"timestamp"`
	Transactions []BlockTransaction `json:"transactions"`
}

type Account struct {
	Name string `json:"name"`
}

type DynamicGlobalProperties struct {
	HeadBlockNumber uint32 `json:"head_block_number"`
	HeadBlockID     string `json:"head_block_id"`
	Time            string `json:"time"`
}

type BroadcastResult struct {
	ID       string `json:"id"`
	BlockNum uint32 `json:"block_num"`
	TrxNum   uint32 `json:"trx_num"`
	Expired  bool   `json:"expired"`
}

// GetBlock fetches a block by number; a nil block means the node does not
// have it.
func (c *Client) GetBlock(ctx context.Context, num uint32) (*Block, error) {
	var block *Block
	if err := c.call(ctx, "condenser_api.get_block", []interface{}{num}, &block); err != nil {
		return nil, err
	}
	return block, nil
}

// GetAccounts resolves existing accounts by name.
func (c *Client) GetAccounts(ctx context.Context, names []string) ([]Account, error) {
	var accounts []Account
	if err := c.call(ctx, "condenser_api.get_accounts", []interface{}{names}, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (c *Client) GetDynamicGlobalProperties(ctx context.Context) (*DynamicGlobalProperties, error) {
	var props DynamicGlobalProperties
	if err := c.call(ctx, "condenser_api.get_dynamic_global_properties", []interface{}{}, &props); err != nil {
		return nil, err
	}
	return &props, nil
}

// BroadcastTransactionSynchronous submits a signed transaction and waits
// for its inclusion.
func (c *Client) BroadcastTransactionSynchronous(ctx context.Context, tx *Transaction) (*BroadcastResult, error) {
	var res BroadcastResult
	if err := c.call(ctx, "condenser_api.broadcast_transaction_synchronous", []interface{}{tx}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
