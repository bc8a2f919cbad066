package crash

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"casino-core/internal/model"
	"casino-core/internal/service/bet"
	appErr "casino-core/pkg/errors"
	"casino-core/pkg/logger"
	"casino-core/pkg/utils/random"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const historyKey = "crash:history"

type Config struct {
	EdgeBP        int64
	BettingWindow time.Duration
	TickInterval  time.Duration
	Cooldown      time.Duration
	GrowthRate    float64 // exponent of the multiplier curve, per second
	MaxX100       int64
	HistorySize   int
}

// Event is a round-state change emitted to subscribers. Data only; the
// transport layer renders it.
type Event struct {
	Type           string `json:"type"` // betting_open, round_start, tick, crash, settled
	RoundID        int64  `json:"roundId"`
	MultiplierX100 int64  `json:"multiplierX100,omitempty"`
	CrashX100      int64  `json:"crashX100,omitempty"` // only on crash/settled
	BettingEndsAt  int64  `json:"bettingEndsAt,omitempty"`
}

type StateView struct {
	RoundID        int64  `json:"roundId"`
	Status         string `json:"status"`
	MultiplierX100 int64  `json:"multiplierX100"`
	BettingEndsAt  int64  `json:"bettingEndsAt,omitempty"`
	Participants   int    `json:"participants"`
}

type JoinResult struct {
	BetID   int64 `json:"betId"`
	RoundID int64 `json:"roundId"`
	Balance int64 `json:"balance"`
}

type CashOutResult struct {
	BetID          int64 `json:"betId"`
	RoundID        int64 `json:"roundId"`
	MultiplierX100 int64 `json:"multiplierX100"`
	Payout         int64 `json:"payout"`
}

type participant struct {
	bet         *model.Bet
	cashoutX100 int64 // 0 until a cash-out is accepted
}

type joinReq struct {
	accountID int64
	stake     int64
	reply     chan joinReply
}

type joinReply struct {
	res *JoinResult
	err error
}

type cashoutReq struct {
	accountID int64
	roundID   int64 // 0 means current round
	reply     chan cashoutReply
}

type cashoutReply struct {
	res *CashOutResult
	err error
}

// Engine runs the continuous crash game: one round at a time, driven by a
// single controller goroutine that owns all round state. Bettors talk to it
// over channels; there is no shared mutable round state outside the loop.
type Engine struct {
	db   *gorm.DB
	rdb  *redis.Client
	bets *bet.Service
	cfg  Config
	src  random.Source

	// Overridable draw, used by tests to pin the crash point.
	drawCrash func() int64

	joinCh    chan joinReq
	cashoutCh chan cashoutReq
	stateCh   chan chan StateView

	subMu   sync.Mutex
	subs    map[int64]chan Event
	nextSub int64
}

func NewEngine(db *gorm.DB, rdb *redis.Client, bets *bet.Service, cfg Config) *Engine {
	e := &Engine{
		db:        db,
		rdb:       rdb,
		bets:      bets,
		cfg:       cfg,
		src:       random.NewSource(),
		joinCh:    make(chan joinReq),
		cashoutCh: make(chan cashoutReq),
		stateCh:   make(chan chan StateView),
		subs:      make(map[int64]chan Event),
	}
	e.drawCrash = e.defaultDrawCrash
	return e
}

// Start launches the controller loop. It runs rounds until ctx is done.
func (e *Engine) Start(ctx context.Context) {
	go e.run(ctx)
}

// Join places a crash bet during the betting window. The stake is debited
// immediately, not reserved.
func (e *Engine) Join(ctx context.Context, accountID, stake int64) (*JoinResult, error) {
	if err := e.bets.ValidateStake(stake); err != nil {
		return nil, err
	}
	req := joinReq{accountID: accountID, stake: stake, reply: make(chan joinReply, 1)}
	select {
	case e.joinCh <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.res, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CashOut locks in the multiplier at the instant the controller accepts the
// request. The recorded value is the server's, never the client's.
func (e *Engine) CashOut(ctx context.Context, accountID, roundID int64) (*CashOutResult, error) {
	req := cashoutReq{accountID: accountID, roundID: roundID, reply: make(chan cashoutReply, 1)}
	select {
	case e.cashoutCh <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.res, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// State snapshots the current round for display.
func (e *Engine) State(ctx context.Context) (StateView, error) {
	reply := make(chan StateView, 1)
	select {
	case e.stateCh <- reply:
	case <-ctx.Done():
		return StateView{}, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return StateView{}, ctx.Err()
	}
}

// History returns the most recent crash points, newest first.
func (e *Engine) History(ctx context.Context) ([]int64, error) {
	if e.rdb == nil {
		return nil, nil
	}
	raw, err := e.rdb.LRange(ctx, historyKey, 0, int64(e.cfg.HistorySize)-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(raw))
	for _, s := range raw {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *Engine) Subscribe() (int64, <-chan Event) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.nextSub++
	id := e.nextSub
	ch := make(chan Event, 16)
	e.subs[id] = ch
	return id, ch
}

func (e *Engine) Unsubscribe(id int64) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	if ch, ok := e.subs[id]; ok {
		delete(e.subs, id)
		close(ch)
	}
}

func (e *Engine) broadcast(ev Event) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for id, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			logger.Log.Warn("crash subscriber channel full", zap.Int64("subscriber", id))
		}
	}
}

func (e *Engine) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := e.runRound(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Log.Error("crash round aborted", zap.Error(err))
			e.sleep(ctx, e.cfg.Cooldown)
		}
	}
}

// runRound drives one full betting-window -> running -> crashed -> settled
// cycle.
func (e *Engine) runRound(ctx context.Context) error {
	round := &model.CrashRound{Status: model.RoundStatusBetting, StartedAt: time.Now()}
	if err := e.db.WithContext(ctx).Create(round).Error; err != nil {
		return err
	}

	participants := make(map[int64]*participant) // by account id

	bettingEnds := time.Now().Add(e.cfg.BettingWindow)
	e.broadcast(Event{Type: "betting_open", RoundID: round.ID, BettingEndsAt: bettingEnds.UnixMilli()})

	if err := e.bettingPhase(ctx, round, participants, bettingEnds); err != nil {
		return err
	}

	// The crash point is drawn once, held server-side, never exposed until
	// the round ends.
	crashX100 := e.drawCrash()
	startedAt := time.Now()
	crashAt := startedAt.Add(e.durationToReach(crashX100))

	err := e.db.WithContext(ctx).Model(round).
		Updates(map[string]interface{}{"status": model.RoundStatusRunning, "crash_x100": crashX100}).Error
	if err != nil {
		return err
	}
	round.Status = model.RoundStatusRunning
	round.CrashX100 = crashX100
	e.broadcast(Event{Type: "round_start", RoundID: round.ID, MultiplierX100: 100})

	if err := e.runningPhase(ctx, round, participants, startedAt, crashAt); err != nil {
		return err
	}

	e.broadcast(Event{Type: "crash", RoundID: round.ID, CrashX100: crashX100})
	round.Status = model.RoundStatusCrashed

	// Resolution must be durable for every participant before the next
	// round may open. Transient storage failures are retried, not dropped.
	e.settleRound(ctx, round, participants)
	e.broadcast(Event{Type: "settled", RoundID: round.ID, CrashX100: crashX100})

	e.pushHistory(ctx, crashX100)
	e.cooldownPhase(ctx)
	return ctx.Err()
}

func (e *Engine) bettingPhase(ctx context.Context, round *model.CrashRound, participants map[int64]*participant, until time.Time) error {
	timer := time.NewTimer(time.Until(until))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case req := <-e.joinCh:
			req.reply <- e.acceptJoin(ctx, round, participants, req)
		case req := <-e.cashoutCh:
			req.reply <- cashoutReply{err: fmt.Errorf("%w: round not running", appErr.ErrRoundNotActive)}
		case reply := <-e.stateCh:
			reply <- StateView{
				RoundID:       round.ID,
				Status:        round.Status,
				BettingEndsAt: until.UnixMilli(),
				Participants:  len(participants),
			}
		}
	}
}

func (e *Engine) acceptJoin(ctx context.Context, round *model.CrashRound, participants map[int64]*participant, req joinReq) joinReply {
	if _, ok := participants[req.accountID]; ok {
		return joinReply{err: fmt.Errorf("%w: already in this round", appErr.ErrDuplicateEffect)}
	}

	var b *model.Bet
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		b, err = e.bets.OpenTx(tx, req.accountID, "crash", req.stake, e.cfg.EdgeBP, &round.ID)
		return err
	})
	if err != nil {
		return joinReply{err: err}
	}

	participants[req.accountID] = &participant{bet: b}

	var acct model.Account
	res := &JoinResult{BetID: b.ID, RoundID: round.ID}
	if err := e.db.WithContext(ctx).First(&acct, req.accountID).Error; err == nil {
		res.Balance = acct.Balance
	}
	return joinReply{res: res}
}

func (e *Engine) runningPhase(ctx context.Context, round *model.CrashRound, participants map[int64]*participant, startedAt, crashAt time.Time) error {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if !now.Before(crashAt) {
				return nil
			}
			e.broadcast(Event{
				Type:           "tick",
				RoundID:        round.ID,
				MultiplierX100: e.multiplierAt(startedAt, now, round.CrashX100),
			})
		case req := <-e.cashoutCh:
			req.reply <- e.acceptCashout(round, participants, req, startedAt, crashAt)
			if !time.Now().Before(crashAt) {
				return nil
			}
		case req := <-e.joinCh:
			req.reply <- joinReply{err: fmt.Errorf("%w: betting window closed", appErr.ErrRoundNotActive)}
		case reply := <-e.stateCh:
			reply <- StateView{
				RoundID:        round.ID,
				Status:         round.Status,
				MultiplierX100: e.multiplierAt(startedAt, time.Now(), round.CrashX100),
				Participants:   len(participants),
			}
		}
	}
}

// acceptCashout records the multiplier at the instant the request is
// accepted. The boundary is inclusive for the cashing-out player: a request
// landing exactly at the crash instant still wins; anything later is
// rejected as too late.
func (e *Engine) acceptCashout(round *model.CrashRound, participants map[int64]*participant, req cashoutReq, startedAt, crashAt time.Time) cashoutReply {
	if req.roundID != 0 && req.roundID != round.ID {
		return cashoutReply{err: fmt.Errorf("%w: stale round", appErr.ErrRoundNotActive)}
	}

	p, ok := participants[req.accountID]
	if !ok {
		return cashoutReply{err: appErr.ErrBetNotFound}
	}
	if p.cashoutX100 != 0 {
		return cashoutReply{err: fmt.Errorf("%w: already cashed out", appErr.ErrDuplicateEffect)}
	}

	now := time.Now()
	if now.After(crashAt) {
		return cashoutReply{err: fmt.Errorf("%w: too late, round crashed", appErr.ErrRoundNotActive)}
	}

	p.cashoutX100 = e.multiplierAt(startedAt, now, round.CrashX100)
	return cashoutReply{res: &CashOutResult{
		BetID:          p.bet.ID,
		RoundID:        round.ID,
		MultiplierX100: p.cashoutX100,
		Payout:         p.bet.Stake * p.cashoutX100 / 100,
	}}
}

// settleRound persists every participant's resolution, retrying each one
// until durable. Partial resolution is never observable: the round row flips
// to settled only after all bets are resolved.
func (e *Engine) settleRound(ctx context.Context, round *model.CrashRound, participants map[int64]*participant) {
	for _, p := range participants {
		e.retryUntilDurable(ctx, fmt.Sprintf("bet %d", p.bet.ID), func() error {
			return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				if p.cashoutX100 > 0 {
					return e.bets.SettleWinTx(tx, p.bet, p.cashoutX100)
				}
				return e.bets.SettleLossTx(tx, p.bet)
			})
		})
	}

	e.retryUntilDurable(ctx, "round", func() error {
		now := time.Now()
		return e.db.WithContext(ctx).Model(round).
			Updates(map[string]interface{}{"status": model.RoundStatusSettled, "settled_at": now}).Error
	})
	round.Status = model.RoundStatusSettled
}

func (e *Engine) retryUntilDurable(ctx context.Context, what string, op func() error) {
	backoff := 100 * time.Millisecond
	for {
		err := op()
		if err == nil || err == appErr.ErrDuplicateEffect {
			return
		}
		logger.Log.Error("crash settlement failed, retrying",
			zap.String("what", what), zap.Error(err))
		if !e.sleep(ctx, backoff) {
			return
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
}

// cooldownPhase keeps draining requests between rounds so callers get a
// prompt rejection instead of a blocked send.
func (e *Engine) cooldownPhase(ctx context.Context) {
	timer := time.NewTimer(e.cfg.Cooldown)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case req := <-e.joinCh:
			req.reply <- joinReply{err: fmt.Errorf("%w: next round not open yet", appErr.ErrRoundNotActive)}
		case req := <-e.cashoutCh:
			req.reply <- cashoutReply{err: fmt.Errorf("%w: round over", appErr.ErrRoundNotActive)}
		case reply := <-e.stateCh:
			reply <- StateView{Status: "cooldown"}
		}
	}
}

// multiplierAt evaluates the deterministic growth curve
// floor(100 * exp(rate * elapsed)) and clamps it to the crash point, which
// is the highest value any accepted cash-out can record.
func (e *Engine) multiplierAt(startedAt, now time.Time, crashX100 int64) int64 {
	elapsed := now.Sub(startedAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	// Clamp in float space: converting an out-of-range value (large elapsed
	// makes exp overflow to +Inf) to int64 is undefined.
	curve := 100 * math.Exp(e.cfg.GrowthRate*elapsed)
	if crashX100 > 0 && curve >= float64(crashX100) {
		return crashX100
	}
	if e.cfg.MaxX100 > 0 && curve >= float64(e.cfg.MaxX100) {
		return e.cfg.MaxX100
	}
	mult := int64(math.Floor(curve))
	if mult < 100 {
		mult = 100
	}
	return mult
}

// durationToReach inverts the curve: the elapsed time at which the
// multiplier equals the crash point.
func (e *Engine) durationToReach(crashX100 int64) time.Duration {
	seconds := math.Log(float64(crashX100)/100.0) / e.cfg.GrowthRate
	if seconds < 0 {
		seconds = 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// defaultDrawCrash samples the crash point so that for any fixed cash-out
// target x, P(crash >= x) ~= (1-edge)/x: the expected return of every
// strategy is 1-edge. Heavy tail, low multipliers common.
func (e *Engine) defaultDrawCrash() int64 {
	u := e.src.Float64()
	crash := int64(math.Floor(float64(10000-e.cfg.EdgeBP) / 100.0 / (1.0 - u)))
	if crash < 100 {
		crash = 100
	}
	if crash > e.cfg.MaxX100 {
		crash = e.cfg.MaxX100
	}
	return crash
}

func (e *Engine) pushHistory(ctx context.Context, crashX100 int64) {
	if e.rdb == nil {
		return
	}
	pipe := e.rdb.Pipeline()
	pipe.LPush(ctx, historyKey, strconv.FormatInt(crashX100, 10))
	pipe.LTrim(ctx, historyKey, 0, int64(e.cfg.HistorySize)-1)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Log.Warn("failed to record crash history", zap.Error(err))
	}
}

// sleep waits for d unless ctx ends first. Reports whether the full wait
// elapsed.
func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
