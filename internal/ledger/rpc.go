package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// orao VRF request accounts keep the fulfilled flag directly after the
// 8-byte discriminator, 32-byte seed and 8-byte randomness prefix.
const vrfFulfilledOffset = 48

// RPCClient implements Client against a Solana JSON-RPC endpoint. Pure
// I/O: no mirror state, no business decisions.
type RPCClient struct {
	rpc       *rpc.Client
	programID solana.PublicKey
	signer    solana.PrivateKey
	timeout   time.Duration

	mu     sync.RWMutex
	config *GameConfig
}

// NewRPCClient builds a ledger client. signerKeyPath is the crank
// authority keypair in solana-keygen JSON format.
func NewRPCClient(endpoint, programID, signerKeyPath string, timeout time.Duration) (*RPCClient, error) {
	program, err := solana.PublicKeyFromBase58(programID)
	if err != nil {
		return nil, fmt.Errorf("parse program id: %w", err)
	}
	signer, err := solana.PrivateKeyFromSolanaKeygenFile(signerKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load signer keypair: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RPCClient{
		rpc:       rpc.New(endpoint),
		programID: program,
		signer:    signer,
		timeout:   timeout,
	}, nil
}

func (c *RPCClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

func (c *RPCClient) fetchAccountData(ctx context.Context, address solana.PublicKey) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	res, err := c.rpc.GetAccountInfo(ctx, address)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if res == nil || res.Value == nil {
		return nil, ErrNotFound
	}
	return res.Value.Data.GetBinary(), nil
}

// FetchConfig reads and caches the global config account. The config is
// written once at program initialization, so the cache never expires.
func (c *RPCClient) FetchConfig(ctx context.Context) (GameConfig, error) {
	c.mu.RLock()
	cached := c.config
	c.mu.RUnlock()
	if cached != nil {
		return *cached, nil
	}

	addr, err := configPDA(c.programID)
	if err != nil {
		return GameConfig{}, fmt.Errorf("derive config pda: %w", err)
	}
	data, err := c.fetchAccountData(ctx, addr)
	if err != nil {
		return GameConfig{}, fmt.Errorf("fetch config account: %w", err)
	}
	cfg, err := DecodeConfig(data)
	if err != nil {
		return GameConfig{}, err
	}

	c.mu.Lock()
	c.config = &cfg
	c.mu.Unlock()
	return cfg, nil
}

// FetchCurrentRoundID reads the global round counter.
func (c *RPCClient) FetchCurrentRoundID(ctx context.Context) (uint64, error) {
	addr, err := counterPDA(c.programID)
	if err != nil {
		return 0, fmt.Errorf("derive counter pda: %w", err)
	}
	data, err := c.fetchAccountData(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("fetch counter account: %w", err)
	}
	return DecodeCounter(data)
}

// FetchRound reads one round account. Returns ErrNotFound when the round
// PDA does not exist (not yet created, or closed after settlement).
func (c *RPCClient) FetchRound(ctx context.Context, roundID uint64) (RoundAccount, error) {
	addr, err := roundPDA(c.programID, roundID)
	if err != nil {
		return RoundAccount{}, fmt.Errorf("derive round pda: %w", err)
	}
	data, err := c.fetchAccountData(ctx, addr)
	if err != nil {
		return RoundAccount{}, err
	}
	return DecodeRound(data)
}

// FetchBetEntries reads bet PDAs 0..betCount-1 for a round. Missing
// entries are skipped rather than failing the batch.
func (c *RPCClient) FetchBetEntries(ctx context.Context, roundID uint64, betCount uint32) ([]BetAccount, error) {
	bets := make([]BetAccount, 0, betCount)
	for i := uint32(0); i < betCount; i++ {
		addr, err := betPDA(c.programID, roundID, i)
		if err != nil {
			return nil, fmt.Errorf("derive bet pda %d: %w", i, err)
		}
		data, err := c.fetchAccountData(ctx, addr)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("fetch bet entry %d: %w", i, err)
		}
		bet, err := DecodeBetEntry(data)
		if err != nil {
			return nil, fmt.Errorf("decode bet entry %d: %w", i, err)
		}
		bets = append(bets, bet)
	}
	return bets, nil
}

// FetchRecentSignatures lists transaction signatures touching the program,
// newest first, stopping at untilSignature when set.
func (c *RPCClient) FetchRecentSignatures(ctx context.Context, untilSignature string, limit int) ([]SignatureInfo, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	opts := &rpc.GetSignaturesForAddressOpts{
		Commitment: rpc.CommitmentConfirmed,
	}
	if limit > 0 {
		opts.Limit = &limit
	}
	if untilSignature != "" {
		until, err := solana.SignatureFromBase58(untilSignature)
		if err != nil {
			return nil, fmt.Errorf("parse cursor signature: %w", err)
		}
		opts.Until = until
	}

	sigs, err := c.rpc.GetSignaturesForAddressWithOpts(ctx, c.programID, opts)
	if err != nil {
		return nil, err
	}

	out := make([]SignatureInfo, 0, len(sigs))
	for _, sig := range sigs {
		info := SignatureInfo{
			Signature: sig.Signature.String(),
			Slot:      sig.Slot,
			Failed:    sig.Err != nil,
		}
		if sig.BlockTime != nil {
			info.BlockTime = int64(*sig.BlockTime)
		}
		out = append(out, info)
	}
	return out, nil
}

// FetchTransactionLogs fetches one confirmed transaction's log messages.
func (c *RPCClient) FetchTransactionLogs(ctx context.Context, signature string) (TransactionLogs, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return TransactionLogs{}, fmt.Errorf("parse signature: %w", err)
	}

	maxVersion := uint64(0)
	res, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return TransactionLogs{}, ErrNotFound
		}
		return TransactionLogs{}, err
	}

	logs := TransactionLogs{
		Signature: signature,
		Slot:      res.Slot,
	}
	if res.BlockTime != nil {
		logs.BlockTime = int64(*res.BlockTime)
	}
	if res.Meta != nil {
		logs.Logs = res.Meta.LogMessages
	}
	return logs, nil
}

// RandomnessFulfilled reads the VRF request account fulfilled flag.
func (c *RPCClient) RandomnessFulfilled(ctx context.Context, vrfRequest string) (bool, error) {
	addr, err := solana.PublicKeyFromBase58(vrfRequest)
	if err != nil {
		return false, fmt.Errorf("parse vrf request: %w", err)
	}
	data, err := c.fetchAccountData(ctx, addr)
	if err != nil {
		return false, err
	}
	if len(data) <= vrfFulfilledOffset {
		return false, fmt.Errorf("vrf request account too short: %d bytes", len(data))
	}
	return data[vrfFulfilledOffset] != 0, nil
}

// SubmitCloseBetting submits close_betting_window, attaching every bet
// entry PDA so the program can detect the single-wager refund case.
func (c *RPCClient) SubmitCloseBetting(ctx context.Context, roundID uint64, betCount uint32) (TxResult, error) {
	configAddr, err := configPDA(c.programID)
	if err != nil {
		return TxResult{}, err
	}
	counterAddr, err := counterPDA(c.programID)
	if err != nil {
		return TxResult{}, err
	}
	roundAddr, err := roundPDA(c.programID, roundID)
	if err != nil {
		return TxResult{}, err
	}

	accounts := solana.AccountMetaSlice{
		solana.Meta(counterAddr),
		solana.Meta(roundAddr).WRITE(),
		solana.Meta(configAddr).WRITE(),
		solana.Meta(c.signer.PublicKey()).SIGNER().WRITE(),
	}
	for i := uint32(0); i < betCount; i++ {
		betAddr, err := betPDA(c.programID, roundID, i)
		if err != nil {
			return TxResult{}, fmt.Errorf("derive bet pda %d: %w", i, err)
		}
		accounts = append(accounts, solana.Meta(betAddr))
	}

	return c.submit(ctx, InstructionDiscriminator(instructionCloseBettingWindow), accounts)
}

// SubmitSelectWinner submits select_winner_and_payout with every bettor
// wallet attached so the program can pay the winner directly before
// falling back to unclaimed accounting.
func (c *RPCClient) SubmitSelectWinner(ctx context.Context, roundID uint64, bettorWallets []string) (TxResult, error) {
	cfg, err := c.FetchConfig(ctx)
	if err != nil {
		return TxResult{}, err
	}
	round, err := c.FetchRound(ctx, roundID)
	if err != nil {
		return TxResult{}, err
	}

	configAddr, err := configPDA(c.programID)
	if err != nil {
		return TxResult{}, err
	}
	counterAddr, err := counterPDA(c.programID)
	if err != nil {
		return TxResult{}, err
	}
	roundAddr, err := roundPDA(c.programID, roundID)
	if err != nil {
		return TxResult{}, err
	}
	vaultAddr, err := vaultPDA(c.programID)
	if err != nil {
		return TxResult{}, err
	}
	treasury, err := solana.PublicKeyFromBase58(cfg.Treasury)
	if err != nil {
		return TxResult{}, fmt.Errorf("parse treasury: %w", err)
	}
	vrfRequest, err := solana.PublicKeyFromBase58(round.VRFRequest)
	if err != nil {
		return TxResult{}, fmt.Errorf("parse vrf request: %w", err)
	}

	accounts := solana.AccountMetaSlice{
		solana.Meta(counterAddr).WRITE(),
		solana.Meta(roundAddr).WRITE(),
		solana.Meta(configAddr).WRITE(),
		solana.Meta(vaultAddr).WRITE(),
		solana.Meta(c.signer.PublicKey()).SIGNER().WRITE(),
		solana.Meta(vrfRequest),
		solana.Meta(treasury).WRITE(),
		solana.Meta(solana.SystemProgramID),
	}
	for _, wallet := range bettorWallets {
		addr, err := solana.PublicKeyFromBase58(wallet)
		if err != nil {
			return TxResult{}, fmt.Errorf("parse bettor wallet %s: %w", wallet, err)
		}
		accounts = append(accounts, solana.Meta(addr).WRITE())
	}

	return c.submit(ctx, InstructionDiscriminator(instructionSelectWinnerAndPayout), accounts)
}

func (c *RPCClient) submit(ctx context.Context, data []byte, accounts solana.AccountMetaSlice) (TxResult, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	recent, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return TxResult{}, fmt.Errorf("get blockhash: %w", err)
	}

	inst := solana.NewInstruction(c.programID, accounts, data)
	tx, err := solana.NewTransaction(
		[]solana.Instruction{inst},
		recent.Value.Blockhash,
		solana.TransactionPayer(c.signer.PublicKey()),
	)
	if err != nil {
		return TxResult{}, fmt.Errorf("build transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(c.signer.PublicKey()) {
			return &c.signer
		}
		return nil
	})
	if err != nil {
		return TxResult{}, fmt.Errorf("sign transaction: %w", err)
	}

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return TxResult{}, err
	}
	return TxResult{Signature: sig.String()}, nil
}

// HealthCheck probes the RPC node.
func (c *RPCClient) HealthCheck(ctx context.Context) (HealthStatus, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	out, err := c.rpc.GetHealth(ctx)
	if err != nil {
		return HealthStatus{}, err
	}
	height, err := c.rpc.GetBlockHeight(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return HealthStatus{}, err
	}
	return HealthStatus{
		Healthy:     out == rpc.HealthOk,
		BlockHeight: height,
	}, nil
}
