package model

import "testing"

func TestStatusOrderFollowsLifecycle(t *testing.T) {
	order := []Status{StatusIdle, StatusWaiting, StatusAwaitingWinnerRandomness, StatusFinished}
	for i := 1; i < len(order); i++ {
		if order[i-1] >= order[i] {
			t.Fatalf("status %v should order before %v", order[i-1], order[i])
		}
	}
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		StatusIdle:                     "idle",
		StatusWaiting:                  "waiting",
		StatusAwaitingWinnerRandomness: "awaiting_winner_randomness",
		StatusFinished:                 "finished",
		Status(42):                     "unknown",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Fatalf("Status(%d).String() = %q, want %q", status, got, want)
		}
	}
}

func TestStatusValid(t *testing.T) {
	if !StatusFinished.Valid() {
		t.Fatalf("finished should be valid")
	}
	if Status(4).Valid() {
		t.Fatalf("out-of-range status should be invalid")
	}
}
