package steem

import (
	"context"
	"fmt"
	"time"
)

// ProvisionerConfig carries the creator material explicitly; the network
// mode decides which creator signs and against which chain id.
type ProvisionerConfig struct {
	Testnet bool

	// mainnet
	Creator    string
	CreatorWIF string

	// testnet: the key derives from the creator login
	TestnetCreator  string
	TestnetPassword string
}

// Provisioner creates claimed accounts on behalf of platform users.
type Provisioner struct {
	client  *Client
	creator string
	key     *PrivateKey
	prefix  string
	chainID [32]byte
}

func NewProvisioner(client *Client, cfg ProvisionerConfig) (*Provisioner, error) {
	if cfg.Testnet {
		if cfg.TestnetCreator == "" || cfg.TestnetPassword == "" {
			return nil, fmt.Errorf("testnet creator material missing")
		}
		return &Provisioner{
			client:  client,
			creator: cfg.TestnetCreator,
			key:     PrivateKeyFromLogin(cfg.TestnetCreator, "active", cfg.TestnetPassword),
			prefix:  PrefixTestnet,
			chainID: ChainIDTestnet,
		}, nil
	}

	key, err := PrivateKeyFromWIF(cfg.CreatorWIF)
	if err != nil {
		return nil, fmt.Errorf("creator key: %w", err)
	}
	if cfg.Creator == "" {
		return nil, fmt.Errorf("creator account missing")
	}
	return &Provisioner{
		client:  client,
		creator: cfg.Creator,
		key:     key,
		prefix:  PrefixMainnet,
		chainID: ChainIDMainnet,
	}, nil
}

// rewritePrefixes swaps key prefixes in an authority for the active
// network, so STM keys submitted by the client work on a testnet.
func (p *Provisioner) rewritePrefixes(a Authority) (Authority, error) {
	if p.prefix == PrefixMainnet {
		return a, nil
	}
	out := a
	out.KeyAuths = make([]KeyAuth, len(a.KeyAuths))
	for i, ka := range a.KeyAuths {
		key, err := SwapPrefix(ka.Key, p.prefix)
		if err != nil {
			return Authority{}, err
		}
		out.KeyAuths[i] = KeyAuth{Key: key, Weight: ka.Weight}
	}
	return out, nil
}

// CreateClaimedAccount builds, signs and broadcasts the account creation
// and returns the transaction id once the node reports inclusion.
func (p *Provisioner) CreateClaimedAccount(ctx context.Context, username string, owner, active, posting Authority, memoKey string) (string, error) {
	var err error
	if owner, err = p.rewritePrefixes(owner); err != nil {
		return "", err
	}
	if active, err = p.rewritePrefixes(active); err != nil {
		return "", err
	}
	if posting, err = p.rewritePrefixes(posting); err != nil {
		return "", err
	}
	if p.prefix != PrefixMainnet {
		if memoKey, err = SwapPrefix(memoKey, p.prefix); err != nil {
			return "", err
		}
	}

	props, err := p.client.GetDynamicGlobalProperties(ctx)
	if err != nil {
		return "", err
	}
	refNum, refPrefix, err := refBlock(props.HeadBlockNumber, props.HeadBlockID)
	if err != nil {
		return "", err
	}

	// Expiration is anchored to node time, not local clocks.
	headTime, err := time.Parse(TimeFormat, props.Time)
	if err != nil {
		return "", fmt.Errorf("head time: %w", err)
	}

	tx := &Transaction{
		RefBlockNum:    refNum,
		RefBlockPrefix: refPrefix,
		Expiration:     headTime.Add(time.Minute).Format(TimeFormat),
		Operations: []Operation{{
			Name: "create_claimed_account",
			Payload: CreateClaimedAccount{
				Creator:        p.creator,
				NewAccountName: username,
				Owner:          owner,
				Active:         active,
				Posting:        posting,
				MemoKey:        memoKey,
				JSONMetadata:   "",
				Extensions:     []interface{}{},
			},
		}},
		Extensions: []string{},
		Signatures: []string{},
	}

	if err := tx.Sign(p.key, p.chainID); err != nil {
		return "", err
	}

	res, err := p.client.BroadcastTransactionSynchronous(ctx, tx)
	if err != nil {
		return "", err
	}
	return res.ID, nil
}
