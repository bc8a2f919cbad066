package games_test

import (
	"errors"
	"testing"

	"casino-core/internal/service/games"
	appErr "casino-core/pkg/errors"
)

// scripted replays a fixed sequence of draws.
type scripted struct {
	ints   []int
	floats []float64
}

func (s *scripted) Intn(n int) int {
	if len(s.ints) == 0 {
		return 0
	}
	v := s.ints[0] % n
	s.ints = s.ints[1:]
	return v
}

func (s *scripted) Float64() float64 {
	if len(s.floats) == 0 {
		return 0
	}
	v := s.floats[0]
	s.floats = s.floats[1:]
	return v
}

func TestParse(t *testing.T) {
	if g, err := games.Parse("  Dice "); err != nil || g != games.Dice {
		t.Fatalf("expected dice, got %q err=%v", g, err)
	}
	if _, err := games.Parse("poker"); !errors.Is(err, appErr.ErrUnknownGame) {
		t.Fatalf("expected unknown game, got: %v", err)
	}
}

func TestDiceEvenMoneyMultiplier(t *testing.T) {
	// 5% edge on a 1/2 chance pays 1.90x.
	src := &scripted{ints: []int{1}} // die shows 2
	out, err := games.Resolve(games.Dice, games.Params{Choice: "even"}, 500, src)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !out.Won || out.MultiplierX100 != 190 {
		t.Fatalf("expected win at 190, got won=%v mult=%d", out.Won, out.MultiplierX100)
	}
}

func TestDiceExactMultiplier(t *testing.T) {
	// 5% edge on a 1/6 chance pays 5.70x.
	src := &scripted{ints: []int{2}} // die shows 3
	out, err := games.Resolve(games.Dice, games.Params{Choice: "exact_3"}, 500, src)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !out.Won || out.MultiplierX100 != 570 {
		t.Fatalf("expected win at 570, got won=%v mult=%d", out.Won, out.MultiplierX100)
	}
}

// The payout is tuned so that summing over every die face returns exactly
// 1 - edge of the stake.
func TestDiceExpectedValue(t *testing.T) {
	edgeBP := int64(500)
	var totalPayoutX100 int64
	for face := 0; face < 6; face++ {
		src := &scripted{ints: []int{face}}
		out, err := games.Resolve(games.Dice, games.Params{Choice: "high"}, edgeBP, src)
		if err != nil {
			t.Fatalf("resolve failed: %v", err)
		}
		totalPayoutX100 += out.MultiplierX100
	}
	// 3 winning faces of 6 at 1.90 -> EV = 570/600 = 0.95 per unit staked.
	if totalPayoutX100 != 570 {
		t.Fatalf("expected total payout 570 across faces, got %d", totalPayoutX100)
	}
}

func TestDiceLoss(t *testing.T) {
	src := &scripted{ints: []int{0}} // die shows 1
	out, err := games.Resolve(games.Dice, games.Params{Choice: "even"}, 500, src)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if out.Won || out.MultiplierX100 != 0 {
		t.Fatalf("expected loss with zero multiplier, got won=%v mult=%d", out.Won, out.MultiplierX100)
	}
}

func TestDiceInvalidChoice(t *testing.T) {
	for _, choice := range []string{"", "exact_7", "exact_x", "banana"} {
		src := &scripted{ints: []int{0}}
		if _, err := games.Resolve(games.Dice, games.Params{Choice: choice}, 500, src); !errors.Is(err, appErr.ErrInvalidChoice) {
			t.Fatalf("choice %q: expected invalid choice, got: %v", choice, err)
		}
	}
}

func TestFootballOutcomes(t *testing.T) {
	// Values 3..5 are goals. Goal at 3/5 pays (1-0.05)*5/3 = 1.58.
	src := &scripted{ints: []int{2}} // value 3, goal
	out, err := games.Resolve(games.Football, games.Params{Choice: "goal"}, 500, src)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !out.Won || out.MultiplierX100 != 158 {
		t.Fatalf("expected win at 158, got won=%v mult=%d", out.Won, out.MultiplierX100)
	}

	// Miss at 2/5 pays (1-0.05)*5/2 = 2.37.
	src = &scripted{ints: []int{0}} // value 1, miss
	out, err = games.Resolve(games.Football, games.Params{Choice: "miss"}, 500, src)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !out.Won || out.MultiplierX100 != 237 {
		t.Fatalf("expected win at 237, got won=%v mult=%d", out.Won, out.MultiplierX100)
	}
}

func TestBasketballOutcomes(t *testing.T) {
	// Values 4..5 score. Score at 2/5 pays 2.37, miss at 3/5 pays 1.58.
	src := &scripted{ints: []int{3}} // value 4, score
	out, err := games.Resolve(games.Basketball, games.Params{Choice: "score"}, 500, src)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !out.Won || out.MultiplierX100 != 237 {
		t.Fatalf("expected win at 237, got won=%v mult=%d", out.Won, out.MultiplierX100)
	}
}

func TestSlotsJackpot(t *testing.T) {
	// 18% edge: jackpot probability (1-0.18)/10, fixed x10 payout.
	src := &scripted{floats: []float64{0.01}}
	out, err := games.Resolve(games.Slots, games.Params{}, 1800, src)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !out.Won || out.MultiplierX100 != 1000 {
		t.Fatalf("expected jackpot at 1000, got won=%v mult=%d", out.Won, out.MultiplierX100)
	}
	reels, ok := out.Details["reels"].([]int)
	if !ok || reels[0] != 7 || reels[1] != 7 || reels[2] != 7 {
		t.Fatalf("expected triple sevens, got %v", out.Details["reels"])
	}
}

func TestSlotsMissNeverShowsJackpotLine(t *testing.T) {
	// First reel draw would be 7-7-7; the re-roll loop must reject it.
	src := &scripted{
		floats: []float64{0.99},
		ints:   []int{7, 7, 7, 1, 2, 3},
	}
	out, err := games.Resolve(games.Slots, games.Params{}, 1800, src)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if out.Won {
		t.Fatalf("expected loss")
	}
	reels := out.Details["reels"].([]int)
	if reels[0] == 7 && reels[1] == 7 && reels[2] == 7 {
		t.Fatalf("losing spin displayed the jackpot line")
	}
}

func TestRouletteStraight(t *testing.T) {
	// 5% edge scales the 36x straight payout to 35.15.
	src := &scripted{ints: []int{17}}
	out, err := games.Resolve(games.Roulette, games.Params{Choice: "straight", Number: 17}, 500, src)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !out.Won || out.MultiplierX100 != 3515 {
		t.Fatalf("expected win at 3515, got won=%v mult=%d", out.Won, out.MultiplierX100)
	}
}

func TestRouletteZeroBeatsOutsideBets(t *testing.T) {
	for _, choice := range []string{"red", "black", "even", "odd", "low", "high"} {
		src := &scripted{ints: []int{0}}
		out, err := games.Resolve(games.Roulette, games.Params{Choice: choice}, 500, src)
		if err != nil {
			t.Fatalf("choice %q: resolve failed: %v", choice, err)
		}
		if out.Won {
			t.Fatalf("choice %q: zero must lose every outside bet", choice)
		}
	}
}

func TestRouletteDozenAndColumn(t *testing.T) {
	// Pocket 14: second dozen, second column.
	src := &scripted{ints: []int{14}}
	out, err := games.Resolve(games.Roulette, games.Params{Choice: "dozen", Number: 2}, 500, src)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !out.Won {
		t.Fatalf("expected pocket 14 in second dozen")
	}

	src = &scripted{ints: []int{14}}
	out, err = games.Resolve(games.Roulette, games.Params{Choice: "column", Number: 2}, 500, src)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !out.Won {
		t.Fatalf("expected pocket 14 in second column")
	}
}

func TestRouletteInvalidChoices(t *testing.T) {
	cases := []games.Params{
		{Choice: "straight", Number: 37},
		{Choice: "straight", Number: -1},
		{Choice: "dozen", Number: 0},
		{Choice: "column", Number: 4},
		{Choice: "split"},
	}
	for _, p := range cases {
		src := &scripted{ints: []int{5}}
		if _, err := games.Resolve(games.Roulette, p, 500, src); !errors.Is(err, appErr.ErrInvalidChoice) {
			t.Fatalf("params %+v: expected invalid choice, got: %v", p, err)
		}
	}
}

func TestResolveRejectsStatefulGames(t *testing.T) {
	for _, g := range []games.Game{games.Mines, games.Crash} {
		if _, err := games.Resolve(g, games.Params{}, 500, &scripted{}); !errors.Is(err, appErr.ErrUnknownGame) {
			t.Fatalf("%s: expected rejection, got: %v", g, err)
		}
	}
}
