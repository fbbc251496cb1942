package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Anchor account/instruction/event names of the ledger program.
const (
	accountGameConfig  = "GameConfig"
	accountGameCounter = "GameCounter"
	accountGameRound   = "GameRound"
	accountBetEntry    = "BetEntry"

	instructionCloseBettingWindow    = "close_betting_window"
	instructionSelectWinnerAndPayout = "select_winner_and_payout"
)

// PDA seeds of the ledger program.
var (
	seedGameConfig  = []byte("game_config")
	seedGameCounter = []byte("game_counter")
	seedGameRound   = []byte("game_round")
	seedBetEntry    = []byte("bet")
	seedVault       = []byte("vault")
)

// AccountDiscriminator returns the 8-byte Anchor discriminator prefixed to
// account data of the named type.
func AccountDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("account:" + name))
	return sum[:8]
}

// InstructionDiscriminator returns the 8-byte Anchor discriminator for a
// global instruction.
func InstructionDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("global:" + name))
	return sum[:8]
}

// EventDiscriminator returns the 8-byte Anchor discriminator prefixed to
// emitted event payloads.
func EventDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("event:" + name))
	return sum[:8]
}

func leUint64(v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return buf[:]
}

func leUint32(v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return buf[:]
}

func configPDA(programID solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{seedGameConfig}, programID)
	return addr, err
}

func counterPDA(programID solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{seedGameCounter}, programID)
	return addr, err
}

func roundPDA(programID solana.PublicKey, roundID uint64) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{seedGameRound, leUint64(roundID)}, programID)
	return addr, err
}

func betPDA(programID solana.PublicKey, roundID uint64, betIndex uint32) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{seedBetEntry, leUint64(roundID), leUint32(betIndex)}, programID)
	return addr, err
}

func vaultPDA(programID solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{seedVault}, programID)
	return addr, err
}

func checkDiscriminator(data []byte, name string) ([]byte, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("account data too short for %s: %d bytes", name, len(data))
	}
	if !bytes.Equal(data[:8], AccountDiscriminator(name)) {
		return nil, fmt.Errorf("account discriminator mismatch: expected %s", name)
	}
	return data[8:], nil
}

// DecodeConfig borsh-decodes a GameConfig account.
func DecodeConfig(data []byte) (GameConfig, error) {
	payload, err := checkDiscriminator(data, accountGameConfig)
	if err != nil {
		return GameConfig{}, err
	}

	dec := bin.NewBorshDecoder(payload)
	var cfg GameConfig

	authority, err := readPubkey(dec)
	if err != nil {
		return GameConfig{}, fmt.Errorf("decode authority: %w", err)
	}
	cfg.Authority = authority

	treasury, err := readPubkey(dec)
	if err != nil {
		return GameConfig{}, fmt.Errorf("decode treasury: %w", err)
	}
	cfg.Treasury = treasury

	if cfg.HouseFeeBasisPoints, err = dec.ReadUint16(bin.LE); err != nil {
		return GameConfig{}, fmt.Errorf("decode house fee: %w", err)
	}
	if cfg.MinBetLamports, err = dec.ReadUint64(bin.LE); err != nil {
		return GameConfig{}, fmt.Errorf("decode min bet: %w", err)
	}
	if cfg.MaxBetLamports, err = dec.ReadUint64(bin.LE); err != nil {
		return GameConfig{}, fmt.Errorf("decode max bet: %w", err)
	}
	if cfg.WaitingPhaseDuration, err = dec.ReadUint64(bin.LE); err != nil {
		return GameConfig{}, fmt.Errorf("decode waiting duration: %w", err)
	}
	if cfg.ResolvingPhaseDuration, err = dec.ReadUint64(bin.LE); err != nil {
		return GameConfig{}, fmt.Errorf("decode resolving duration: %w", err)
	}

	return cfg, nil
}

// DecodeCounter borsh-decodes the GameCounter account and returns the
// current round id.
func DecodeCounter(data []byte) (uint64, error) {
	payload, err := checkDiscriminator(data, accountGameCounter)
	if err != nil {
		return 0, err
	}
	dec := bin.NewBorshDecoder(payload)
	id, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return 0, fmt.Errorf("decode current round id: %w", err)
	}
	return id, nil
}

// DecodeRound borsh-decodes a GameRound account.
func DecodeRound(data []byte) (RoundAccount, error) {
	payload, err := checkDiscriminator(data, accountGameRound)
	if err != nil {
		return RoundAccount{}, err
	}

	dec := bin.NewBorshDecoder(payload)
	var round RoundAccount

	if round.RoundID, err = dec.ReadUint64(bin.LE); err != nil {
		return RoundAccount{}, fmt.Errorf("decode round id: %w", err)
	}
	if round.Status, err = dec.ReadUint8(); err != nil {
		return RoundAccount{}, fmt.Errorf("decode status: %w", err)
	}
	if round.StartTime, err = dec.ReadInt64(bin.LE); err != nil {
		return RoundAccount{}, fmt.Errorf("decode start time: %w", err)
	}
	if round.BettingCloseTime, err = dec.ReadInt64(bin.LE); err != nil {
		return RoundAccount{}, fmt.Errorf("decode betting close time: %w", err)
	}
	if round.BetCount, err = dec.ReadUint32(bin.LE); err != nil {
		return RoundAccount{}, fmt.Errorf("decode bet count: %w", err)
	}
	if round.TotalPot, err = dec.ReadUint64(bin.LE); err != nil {
		return RoundAccount{}, fmt.Errorf("decode total pot: %w", err)
	}
	if round.Winner, err = readPubkey(dec); err != nil {
		return RoundAccount{}, fmt.Errorf("decode winner: %w", err)
	}
	if round.WinningBetIndex, err = dec.ReadUint32(bin.LE); err != nil {
		return RoundAccount{}, fmt.Errorf("decode winning bet index: %w", err)
	}
	if round.VRFRequest, err = readPubkey(dec); err != nil {
		return RoundAccount{}, fmt.Errorf("decode vrf request: %w", err)
	}
	seed, err := dec.ReadNBytes(32)
	if err != nil {
		return RoundAccount{}, fmt.Errorf("decode vrf seed: %w", err)
	}
	copy(round.VRFSeed[:], seed)
	if round.RandomnessFulfilled, err = dec.ReadBool(); err != nil {
		return RoundAccount{}, fmt.Errorf("decode randomness flag: %w", err)
	}
	if round.WinnerPrizeUnclaimed, err = dec.ReadUint64(bin.LE); err != nil {
		return RoundAccount{}, fmt.Errorf("decode winner prize unclaimed: %w", err)
	}
	if round.HouseFeeUnclaimed, err = dec.ReadUint64(bin.LE); err != nil {
		return RoundAccount{}, fmt.Errorf("decode house fee unclaimed: %w", err)
	}

	return round, nil
}

// DecodeBetEntry borsh-decodes a BetEntry account.
func DecodeBetEntry(data []byte) (BetAccount, error) {
	payload, err := checkDiscriminator(data, accountBetEntry)
	if err != nil {
		return BetAccount{}, err
	}

	dec := bin.NewBorshDecoder(payload)
	var bet BetAccount

	if bet.RoundID, err = dec.ReadUint64(bin.LE); err != nil {
		return BetAccount{}, fmt.Errorf("decode round id: %w", err)
	}
	if bet.BetIndex, err = dec.ReadUint32(bin.LE); err != nil {
		return BetAccount{}, fmt.Errorf("decode bet index: %w", err)
	}
	if bet.Wallet, err = readPubkey(dec); err != nil {
		return BetAccount{}, fmt.Errorf("decode wallet: %w", err)
	}
	if bet.Amount, err = dec.ReadUint64(bin.LE); err != nil {
		return BetAccount{}, fmt.Errorf("decode amount: %w", err)
	}
	if bet.PlacedAt, err = dec.ReadInt64(bin.LE); err != nil {
		return BetAccount{}, fmt.Errorf("decode placed at: %w", err)
	}
	if bet.PayoutCollected, err = dec.ReadBool(); err != nil {
		return BetAccount{}, fmt.Errorf("decode payout collected: %w", err)
	}

	return bet, nil
}

func readPubkey(dec *bin.Decoder) (string, error) {
	raw, err := dec.ReadNBytes(32)
	if err != nil {
		return "", err
	}
	return solana.PublicKeyFromBytes(raw).String(), nil
}
