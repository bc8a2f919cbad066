package games

import (
	"fmt"
	"strconv"
	"strings"

	appErr "casino-core/pkg/errors"
	"casino-core/pkg/utils/random"
)

type Game string

const (
	Dice       Game = "dice"
	Football   Game = "football"
	Basketball Game = "basketball"
	Slots      Game = "slots"
	Mines      Game = "mines"
	Crash      Game = "crash"
	Roulette   Game = "roulette"
)

func Parse(s string) (Game, error) {
	switch Game(strings.ToLower(strings.TrimSpace(s))) {
	case Dice:
		return Dice, nil
	case Football:
		return Football, nil
	case Basketball:
		return Basketball, nil
	case Slots:
		return Slots, nil
	case Mines:
		return Mines, nil
	case Crash:
		return Crash, nil
	case Roulette:
		return Roulette, nil
	}
	return "", fmt.Errorf("%w: %q", appErr.ErrUnknownGame, s)
}

// Params carries the player's pick for games that need one.
type Params struct {
	Choice string `json:"choice,omitempty"` // dice: even/odd/low/high/exact_N; football: goal/miss;
	// basketball: score/miss; roulette: straight/red/black/even/odd/low/high/dozen_N/column_N
	Number int `json:"number,omitempty"` // roulette straight pocket, dozen or column index
	Mines  int `json:"mines,omitempty"` // mines: hazard count
}

// Outcome of a resolved instant bet. MultiplierX100 is the payout multiplier
// in hundredths; payout = stake * MultiplierX100 / 100.
type Outcome struct {
	Won            bool
	MultiplierX100 int64
	Details        map[string]interface{}
}

const jackpotMultiplierX100 = 1000 // slots pay x10 on the jackpot line only

// Resolve computes win/loss and payout multiplier for one instant bet.
// Pure aside from the random source; edgeBP is the house edge snapshot in
// basis points. For every game the multiplier is derived so the expected
// return equals 1 - edge: a win probability of num/den pays
// (1 - edge) * den/num, fixed to hundredths.
func Resolve(game Game, p Params, edgeBP int64, src random.Source) (Outcome, error) {
	switch game {
	case Dice:
		return resolveDice(p, edgeBP, src)
	case Football:
		return resolveFootball(p, edgeBP, src)
	case Basketball:
		return resolveBasketball(p, edgeBP, src)
	case Slots:
		return resolveSlots(edgeBP, src)
	case Roulette:
		return resolveRoulette(p, edgeBP, src)
	case Mines, Crash:
		// Stateful games, owned by their session/round engines.
		return Outcome{}, fmt.Errorf("%w: %s is not an instant game", appErr.ErrUnknownGame, game)
	}
	return Outcome{}, fmt.Errorf("%w: %q", appErr.ErrUnknownGame, game)
}

// multiplierX100 returns the payout multiplier in hundredths for a win
// probability of num/den at the given edge. Integer arithmetic, rounded down
// so realized EV never exceeds the target.
func multiplierX100(edgeBP, num, den int64) int64 {
	return (10000 - edgeBP) * den / (100 * num)
}

func resolveDice(p Params, edgeBP int64, src random.Source) (Outcome, error) {
	value := src.Intn(6) + 1
	choice := strings.ToLower(p.Choice)

	var won bool
	var mult int64
	switch {
	case choice == "even":
		won, mult = value%2 == 0, multiplierX100(edgeBP, 1, 2)
	case choice == "odd":
		won, mult = value%2 == 1, multiplierX100(edgeBP, 1, 2)
	case choice == "low":
		won, mult = value <= 3, multiplierX100(edgeBP, 1, 2)
	case choice == "high":
		won, mult = value >= 4, multiplierX100(edgeBP, 1, 2)
	case strings.HasPrefix(choice, "exact_"):
		target, err := strconv.Atoi(strings.TrimPrefix(choice, "exact_"))
		if err != nil || target < 1 || target > 6 {
			return Outcome{}, appErr.ErrInvalidChoice
		}
		won, mult = value == target, multiplierX100(edgeBP, 1, 6)
	default:
		return Outcome{}, appErr.ErrInvalidChoice
	}

	return outcome(won, mult, map[string]interface{}{"dice": value, "choice": choice}), nil
}

func resolveFootball(p Params, edgeBP int64, src random.Source) (Outcome, error) {
	value := src.Intn(5) + 1
	goal := value >= 3 // values 3..5 are goal animations

	var won bool
	var mult int64
	switch strings.ToLower(p.Choice) {
	case "goal":
		won, mult = goal, multiplierX100(edgeBP, 3, 5)
	case "miss":
		won, mult = !goal, multiplierX100(edgeBP, 2, 5)
	default:
		return Outcome{}, appErr.ErrInvalidChoice
	}
	return outcome(won, mult, map[string]interface{}{"value": value, "goal": goal}), nil
}

func resolveBasketball(p Params, edgeBP int64, src random.Source) (Outcome, error) {
	value := src.Intn(5) + 1
	score := value >= 4 // values 4..5 land the shot

	var won bool
	var mult int64
	switch strings.ToLower(p.Choice) {
	case "score":
		won, mult = score, multiplierX100(edgeBP, 2, 5)
	case "miss":
		won, mult = !score, multiplierX100(edgeBP, 3, 5)
	default:
		return Outcome{}, appErr.ErrInvalidChoice
	}
	return outcome(won, mult, map[string]interface{}{"value": value, "score": score}), nil
}

// resolveSlots pays only the jackpot line, at a fixed x10. The jackpot
// probability is tuned to the edge: q = (1 - edge) / 10.
func resolveSlots(edgeBP int64, src random.Source) (Outcome, error) {
	q := float64(10000-edgeBP) / 100000.0
	won := src.Float64() < q

	reels := []int{7, 7, 7}
	if !won {
		// Any combination except triple sevens.
		for {
			reels = []int{src.Intn(8), src.Intn(8), src.Intn(8)}
			if !(reels[0] == 7 && reels[1] == 7 && reels[2] == 7) {
				break
			}
		}
	}
	return outcome(won, jackpotMultiplierX100, map[string]interface{}{"reels": reels}), nil
}

var rouletteRed = map[int]bool{
	1: true, 3: true, 5: true, 7: true, 9: true, 12: true, 14: true, 16: true,
	18: true, 19: true, 21: true, 23: true, 25: true, 27: true, 30: true,
	32: true, 34: true, 36: true,
}

// resolveRoulette spins a European single-zero wheel. Base table multipliers
// (36 straight, 3 dozen/column, 2 even-money) are scaled so the expected
// return is 1 - edge instead of the table's natural 36/37.
func resolveRoulette(p Params, edgeBP int64, src random.Source) (Outcome, error) {
	pocket := src.Intn(37)

	// scaled = base * 37/36 * (1 - edge), in hundredths
	scaled := func(base int64) int64 {
		return base * 37 * (10000 - edgeBP) / (36 * 100)
	}

	var won bool
	var mult int64
	switch strings.ToLower(p.Choice) {
	case "straight":
		if p.Number < 0 || p.Number > 36 {
			return Outcome{}, appErr.ErrInvalidChoice
		}
		won, mult = pocket == p.Number, scaled(36)
	case "red":
		won, mult = rouletteRed[pocket], scaled(2)
	case "black":
		won, mult = pocket != 0 && !rouletteRed[pocket], scaled(2)
	case "even":
		won, mult = pocket != 0 && pocket%2 == 0, scaled(2)
	case "odd":
		won, mult = pocket%2 == 1, scaled(2)
	case "low":
		won, mult = pocket >= 1 && pocket <= 18, scaled(2)
	case "high":
		won, mult = pocket >= 19, scaled(2)
	case "dozen":
		if p.Number < 1 || p.Number > 3 {
			return Outcome{}, appErr.ErrInvalidChoice
		}
		won, mult = pocket != 0 && (pocket-1)/12 == p.Number-1, scaled(3)
	case "column":
		if p.Number < 1 || p.Number > 3 {
			return Outcome{}, appErr.ErrInvalidChoice
		}
		won, mult = pocket != 0 && (pocket-1)%3 == p.Number-1, scaled(3)
	default:
		return Outcome{}, appErr.ErrInvalidChoice
	}

	return outcome(won, mult, map[string]interface{}{"pocket": pocket, "choice": p.Choice}), nil
}

func outcome(won bool, mult int64, details map[string]interface{}) Outcome {
	o := Outcome{Won: won, Details: details}
	if won {
		o.MultiplierX100 = mult
	}
	return o
}
