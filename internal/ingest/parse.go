package ingest

import (
	"bytes"
	"encoding/base64"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"wagermirror/internal/ledger"
	"wagermirror/internal/model"
)

// Anchor emits events as base64 payloads behind this log prefix.
const programDataPrefix = "Program data: "

// ParseEvents extracts the program's events from transaction log lines.
// Payloads whose discriminator does not match a known event come back as
// Unrecognized with the raw bytes kept, never dropped.
func ParseEvents(logs []string) []model.ParsedEvent {
	var events []model.ParsedEvent
	for _, line := range logs {
		if !strings.HasPrefix(line, programDataPrefix) {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(line, programDataPrefix))
		if err != nil || len(raw) < 8 {
			events = append(events, model.ParsedEvent{
				Name: model.EventUnrecognized,
				Raw:  []byte(line),
			})
			continue
		}
		events = append(events, decodeEvent(raw))
	}
	return events
}

func decodeEvent(raw []byte) model.ParsedEvent {
	disc, payload := raw[:8], raw[8:]

	switch {
	case bytes.Equal(disc, ledger.EventDiscriminator(model.EventGameInitialized)):
		return decodeGameInitialized(raw, payload)
	case bytes.Equal(disc, ledger.EventDiscriminator(model.EventBetPlaced)):
		return decodeBetPlaced(raw, payload)
	case bytes.Equal(disc, ledger.EventDiscriminator(model.EventGameLocked)):
		return decodeGameLocked(raw, payload)
	case bytes.Equal(disc, ledger.EventDiscriminator(model.EventWinnerSelected)):
		return decodeWinnerSelected(raw, payload)
	case bytes.Equal(disc, ledger.EventDiscriminator(model.EventGameReset)):
		return decodeGameReset(raw, payload)
	default:
		return model.ParsedEvent{Name: model.EventUnrecognized, Raw: raw}
	}
}

func unrecognized(raw []byte) model.ParsedEvent {
	return model.ParsedEvent{Name: model.EventUnrecognized, Raw: raw}
}

func decodeGameInitialized(raw, payload []byte) model.ParsedEvent {
	dec := bin.NewBorshDecoder(payload)
	var data model.GameInitializedData
	var err error
	if data.RoundID, err = dec.ReadUint64(bin.LE); err != nil {
		return unrecognized(raw)
	}
	if data.StartTime, err = dec.ReadInt64(bin.LE); err != nil {
		return unrecognized(raw)
	}
	if data.BettingCloseTime, err = dec.ReadInt64(bin.LE); err != nil {
		return unrecognized(raw)
	}
	return model.ParsedEvent{
		Name:    model.EventGameInitialized,
		RoundID: &data.RoundID,
		Decoded: data,
		Raw:     raw,
	}
}

func decodeBetPlaced(raw, payload []byte) model.ParsedEvent {
	dec := bin.NewBorshDecoder(payload)
	var data model.BetPlacedData
	var err error
	if data.RoundID, err = dec.ReadUint64(bin.LE); err != nil {
		return unrecognized(raw)
	}
	if data.Player, err = readPubkey(dec); err != nil {
		return unrecognized(raw)
	}
	if data.Amount, err = dec.ReadUint64(bin.LE); err != nil {
		return unrecognized(raw)
	}
	if data.BetCount, err = dec.ReadUint8(); err != nil {
		return unrecognized(raw)
	}
	if data.TotalPot, err = dec.ReadUint64(bin.LE); err != nil {
		return unrecognized(raw)
	}
	if data.BettingCloseTime, err = dec.ReadInt64(bin.LE); err != nil {
		return unrecognized(raw)
	}
	if data.IsFirstBet, err = dec.ReadBool(); err != nil {
		return unrecognized(raw)
	}
	return model.ParsedEvent{
		Name:    model.EventBetPlaced,
		RoundID: &data.RoundID,
		Decoded: data,
		Raw:     raw,
	}
}

func decodeGameLocked(raw, payload []byte) model.ParsedEvent {
	dec := bin.NewBorshDecoder(payload)
	var data model.GameLockedData
	var err error
	if data.RoundID, err = dec.ReadUint64(bin.LE); err != nil {
		return unrecognized(raw)
	}
	if data.FinalBetCount, err = dec.ReadUint8(); err != nil {
		return unrecognized(raw)
	}
	if data.TotalPot, err = dec.ReadUint64(bin.LE); err != nil {
		return unrecognized(raw)
	}
	if data.VRFRequest, err = readPubkey(dec); err != nil {
		return unrecognized(raw)
	}
	return model.ParsedEvent{
		Name:    model.EventGameLocked,
		RoundID: &data.RoundID,
		Decoded: data,
		Raw:     raw,
	}
}

func decodeWinnerSelected(raw, payload []byte) model.ParsedEvent {
	dec := bin.NewBorshDecoder(payload)
	var data model.WinnerSelectedData
	var err error
	if data.RoundID, err = dec.ReadUint64(bin.LE); err != nil {
		return unrecognized(raw)
	}
	if data.Winner, err = readPubkey(dec); err != nil {
		return unrecognized(raw)
	}
	if data.WinningBetIndex, err = dec.ReadUint32(bin.LE); err != nil {
		return unrecognized(raw)
	}
	if data.TotalPot, err = dec.ReadUint64(bin.LE); err != nil {
		return unrecognized(raw)
	}
	if data.HouseFee, err = dec.ReadUint64(bin.LE); err != nil {
		return unrecognized(raw)
	}
	if data.WinnerPayout, err = dec.ReadUint64(bin.LE); err != nil {
		return unrecognized(raw)
	}
	return model.ParsedEvent{
		Name:    model.EventWinnerSelected,
		RoundID: &data.RoundID,
		Decoded: data,
		Raw:     raw,
	}
}

func decodeGameReset(raw, payload []byte) model.ParsedEvent {
	dec := bin.NewBorshDecoder(payload)
	var data model.GameResetData
	var err error
	if data.OldRoundID, err = dec.ReadUint64(bin.LE); err != nil {
		return unrecognized(raw)
	}
	if data.NewRoundID, err = dec.ReadUint64(bin.LE); err != nil {
		return unrecognized(raw)
	}
	return model.ParsedEvent{
		Name:    model.EventGameReset,
		RoundID: &data.OldRoundID,
		Decoded: data,
		Raw:     raw,
	}
}

func readPubkey(dec *bin.Decoder) (string, error) {
	raw, err := dec.ReadNBytes(32)
	if err != nil {
		return "", err
	}
	return solana.PublicKeyFromBytes(raw).String(), nil
}

// phaseForEvent maps an event to the round phase it materializes, when it
// does. GameReset carries no phase: the next round does not exist yet.
func phaseForEvent(name string) (model.Status, bool) {
	switch name {
	case model.EventGameInitialized, model.EventBetPlaced:
		return model.StatusWaiting, true
	case model.EventGameLocked:
		return model.StatusAwaitingWinnerRandomness, true
	case model.EventWinnerSelected:
		return model.StatusFinished, true
	default:
		return 0, false
	}
}
