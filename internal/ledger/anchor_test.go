package ledger

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
)

type accountBuilder struct {
	buf bytes.Buffer
}

func newAccount(name string) *accountBuilder {
	b := &accountBuilder{}
	b.buf.Write(AccountDiscriminator(name))
	return b
}

func (b *accountBuilder) u8(v uint8) *accountBuilder   { b.buf.WriteByte(v); return b }
func (b *accountBuilder) boolean(v bool) *accountBuilder {
	if v {
		return b.u8(1)
	}
	return b.u8(0)
}

func (b *accountBuilder) u16(v uint16) *accountBuilder {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	b.buf.Write(tmp[:])
	return b
}

func (b *accountBuilder) u32(v uint32) *accountBuilder {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.buf.Write(tmp[:])
	return b
}

func (b *accountBuilder) u64(v uint64) *accountBuilder {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.buf.Write(tmp[:])
	return b
}

func (b *accountBuilder) i64(v int64) *accountBuilder { return b.u64(uint64(v)) }

func (b *accountBuilder) pubkey(key solana.PublicKey) *accountBuilder {
	b.buf.Write(key.Bytes())
	return b
}

func (b *accountBuilder) bytes() []byte { return b.buf.Bytes() }

func testKey(seed byte) solana.PublicKey {
	var raw [32]byte
	for i := range raw {
		raw[i] = seed
	}
	return solana.PublicKeyFromBytes(raw[:])
}

func TestDiscriminatorsAreDistinct(t *testing.T) {
	seen := map[string]string{}
	add := func(label string, disc []byte) {
		if len(disc) != 8 {
			t.Fatalf("%s discriminator length = %d, want 8", label, len(disc))
		}
		if prev, dup := seen[string(disc)]; dup {
			t.Fatalf("%s collides with %s", label, prev)
		}
		seen[string(disc)] = label
	}

	for _, name := range []string{accountGameConfig, accountGameCounter, accountGameRound, accountBetEntry} {
		add("account:"+name, AccountDiscriminator(name))
	}
	for _, name := range []string{instructionCloseBettingWindow, instructionSelectWinnerAndPayout} {
		add("global:"+name, InstructionDiscriminator(name))
	}
	for _, name := range []string{"GameInitialized", "BetPlaced", "GameLocked", "WinnerSelected", "GameReset"} {
		add("event:"+name, EventDiscriminator(name))
	}
}

func TestDecodeConfig(t *testing.T) {
	authority := testKey(1)
	treasury := testKey(2)
	data := newAccount(accountGameConfig).
		pubkey(authority).
		pubkey(treasury).
		u16(500).
		u64(10_000_000).
		u64(1_000_000_000).
		u64(120).
		u64(60).
		bytes()

	cfg, err := DecodeConfig(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Authority != authority.String() || cfg.Treasury != treasury.String() {
		t.Fatalf("key mismatch: %+v", cfg)
	}
	if cfg.HouseFeeBasisPoints != 500 {
		t.Fatalf("fee bps = %d, want 500", cfg.HouseFeeBasisPoints)
	}
	if cfg.MinBetLamports != 10_000_000 || cfg.MaxBetLamports != 1_000_000_000 {
		t.Fatalf("bet bounds mismatch: %+v", cfg)
	}
}

func TestDecodeCounter(t *testing.T) {
	data := newAccount(accountGameCounter).u64(42).bytes()
	id, err := DecodeCounter(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if id != 42 {
		t.Fatalf("round id = %d, want 42", id)
	}
}

func TestDecodeRound(t *testing.T) {
	winner := testKey(3)
	vrfRequest := testKey(4)
	data := newAccount(accountGameRound).
		u64(7).
		u8(3).
		i64(1_700_000_000).
		i64(1_700_000_120).
		u32(5).
		u64(500_000_000).
		pubkey(winner).
		u32(2).
		pubkey(vrfRequest).
		pubkey(testKey(5)). // vrf seed
		boolean(true).
		u64(475_000_000).
		u64(25_000_000).
		bytes()

	round, err := DecodeRound(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if round.RoundID != 7 || round.Status != 3 {
		t.Fatalf("identity mismatch: %+v", round)
	}
	if round.StartTime != 1_700_000_000 || round.BettingCloseTime != 1_700_000_120 {
		t.Fatalf("window mismatch: %+v", round)
	}
	if round.BetCount != 5 || round.TotalPot != 500_000_000 {
		t.Fatalf("pot mismatch: %+v", round)
	}
	if round.Winner != winner.String() || round.WinningBetIndex != 2 {
		t.Fatalf("winner mismatch: %+v", round)
	}
	if round.VRFRequest != vrfRequest.String() || !round.RandomnessFulfilled {
		t.Fatalf("vrf mismatch: %+v", round)
	}
	if round.WinnerPrizeUnclaimed != 475_000_000 || round.HouseFeeUnclaimed != 25_000_000 {
		t.Fatalf("unclaimed mismatch: %+v", round)
	}
}

func TestDecodeBetEntry(t *testing.T) {
	wallet := testKey(6)
	data := newAccount(accountBetEntry).
		u64(7).
		u32(1).
		pubkey(wallet).
		u64(100_000_000).
		i64(1_700_000_030).
		boolean(false).
		bytes()

	bet, err := DecodeBetEntry(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if bet.RoundID != 7 || bet.BetIndex != 1 {
		t.Fatalf("identity mismatch: %+v", bet)
	}
	if bet.Wallet != wallet.String() || bet.Amount != 100_000_000 {
		t.Fatalf("stake mismatch: %+v", bet)
	}
	if bet.PayoutCollected {
		t.Fatalf("fresh bet should not be collected")
	}
}

func TestDecodeRejectsWrongDiscriminator(t *testing.T) {
	data := newAccount(accountGameConfig).u64(1).bytes()
	if _, err := DecodeCounter(data); err == nil {
		t.Fatalf("expected discriminator mismatch")
	}
	if _, err := DecodeRound([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected short-data error")
	}
}

func TestIsStalePhase(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"custom program error: InvalidGameStatus", true},
		{"Error Code: GameAlreadySettled", true},
		{"Error Code: BettingClosed", true},
		{"rpc timeout", false},
		{"", false},
	}
	for _, tc := range cases {
		var err error
		if tc.msg != "" {
			err = errString(tc.msg)
		}
		if got := IsStalePhase(err); got != tc.want {
			t.Fatalf("IsStalePhase(%q) = %v, want %v", tc.msg, got, tc.want)
		}
	}
}

type errString string

func (e errString) Error() string { return string(e) }
