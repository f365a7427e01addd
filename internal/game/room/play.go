package room

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/cory-johannsen/smuggle/internal/game/gameerr"
	"github.com/cory-johannsen/smuggle/internal/game/match"
	"github.com/cory-johannsen/smuggle/internal/game/round"
	"github.com/cory-johannsen/smuggle/internal/game/timer"
	"github.com/cory-johannsen/smuggle/internal/protocol"
)

// Declare records the smuggler's amount for the current round.
//
// Precondition: playerID is the current round's smuggler; amount >= 0 and within
// Settings.MaxDeclaration when set, and never above round.MaxAmount.
// Postcondition: The round settles once the decision is also present.
func (r *Room) Declare(ctx context.Context, playerID int64, amount round.Money) error {
	return r.do(ctx, func() error {
		if err := r.checkAmount("declaration", amount); err != nil {
			return err
		}
		return r.act(func(rd *round.Round) error { return rd.Declare(playerID, amount) })
	})
}

// DecidePass records a PASS decision for the current round.
//
// Precondition: playerID is the current round's inspector.
func (r *Room) DecidePass(ctx context.Context, playerID int64) error {
	return r.do(ctx, func() error {
		return r.act(func(rd *round.Round) error { return rd.DecidePass(playerID) })
	})
}

// DecideInspection records an INSPECTION decision with threshold for the current round.
//
// Precondition: playerID is the current round's inspector; threshold >= 0 and within
// Settings.MaxDeclaration when set.
func (r *Room) DecideInspection(ctx context.Context, playerID int64, threshold round.Money) error {
	return r.do(ctx, func() error {
		if err := r.checkAmount("threshold", threshold); err != nil {
			return err
		}
		return r.act(func(rd *round.Round) error { return rd.DecideInspection(playerID, threshold) })
	})
}

func (r *Room) checkAmount(what string, v round.Money) error {
	if v < 0 {
		return gameerr.Argumentf("%s must not be negative, got %d", what, v)
	}
	limit := r.settings.MaxDeclaration
	if limit <= 0 || limit > round.MaxAmount {
		limit = round.MaxAmount
	}
	if v > limit {
		return gameerr.Argumentf("%s %d exceeds the limit of %d", what, v, limit)
	}
	return nil
}

// act applies a write to the current round and settles it when both facts are in.
func (r *Room) act(write func(*round.Round) error) error {
	g, ok := r.slot.Load().CurrentGame()
	if !ok {
		return gameerr.Statef("room %q has no game in progress", r.name)
	}
	rd, ok := g.CurrentRound()
	if !ok || rd.Phase() == round.PhaseSettled {
		return gameerr.Statef("room %q has no open round", r.name)
	}
	if err := write(rd); err != nil {
		return err
	}
	if rd.Resolvable() {
		if r.selection != nil {
			r.selection.Cancel()
		}
		r.settle(g, rd, false)
	}
	return nil
}

func (r *Room) startGame() {
	id, err := r.nextID()
	if err != nil {
		r.fault(err)
		return
	}
	g, err := match.NewGame(id, r.id, r.players, r.deps.Now())
	if err != nil {
		r.logger.Error("building game", zap.Error(err))
		r.resetReady()
		r.broadcastState()
		return
	}
	slot, err := match.NewActiveSlot(g)
	if err != nil {
		r.logger.Error("building active slot", zap.Error(err))
		r.resetReady()
		r.broadcastState()
		return
	}
	r.slot.Store(slot)
	r.deps.Publisher.GameStarted(g.ID(), r.id)
	r.logger.Info("game started", zap.Uint64("game_id", g.ID()), zap.Int64s("players", r.players))

	r.broadcast(protocol.MustEnvelope(protocol.GameStarted, protocol.GameStartedPayload{
		RoomID:  protocol.FormatID(r.id),
		GameID:  protocol.FormatID(g.ID()),
		Players: append([]int64(nil), r.players...),
		Rounds:  r.settings.RoundsPerGame,
	}))
	r.startRound(g, 1)
}

func (r *Room) startRound(g *match.Game, n int) {
	id, err := r.nextID()
	if err != nil {
		r.fault(err)
		return
	}
	rd, err := round.New(id, n, g.SmugglerFor(n), g.InspectorFor(n))
	if err != nil {
		r.logger.Error("building round", zap.Int("round", n), zap.Error(err))
		return
	}
	if err := g.AddRound(rd); err != nil {
		r.logger.Error("adding round", zap.Int("round", n), zap.Error(err))
		return
	}

	roundID := rd.ID()
	r.selection = timer.Start(r.deps.Now(), r.settings.SelectionWindow, func() {
		r.enqueue(func() { r.expire(roundID) })
	})
	window := r.selection.Snapshot()

	for _, p := range g.Participants() {
		r.deps.Notifier.Notify(p.PlayerID, protocol.MustEnvelope(protocol.RoundStarted, protocol.RoundStartedPayload{
			RoomID:   protocol.FormatID(r.id),
			GameID:   protocol.FormatID(g.ID()),
			RoundID:  protocol.FormatID(roundID),
			Number:   n,
			Role:     g.RoleIn(p.PlayerID, n).String(),
			Deadline: window.Deadline(),
			WindowMs: window.Duration.Milliseconds(),
		}))
	}
}

// expire resolves roundID after its selection window closed.
func (r *Room) expire(roundID uint64) {
	g, ok := r.slot.Load().CurrentGame()
	if !ok {
		return
	}
	rd, ok := g.CurrentRound()
	if !ok || rd.ID() != roundID || rd.Phase() == round.PhaseSettled {
		r.logger.Debug("ignoring stale selection expiry", zap.Uint64("round_id", roundID))
		return
	}
	r.logger.Info("selection window expired",
		zap.Int("round", rd.Number()),
		zap.String("phase", rd.Phase().String()),
		zap.String("policy", string(r.settings.TimeoutPolicy)),
	)

	if r.settings.TimeoutPolicy == TimeoutVoid {
		if _, err := rd.SettleVoid(); err != nil {
			r.logger.Error("voiding round", zap.Error(err))
			return
		}
		r.finishRound(g, rd, true)
		return
	}
	rd.ForceDefaults()
	r.settle(g, rd, true)
}

// settle runs the policy on a resolvable round; a failing policy voids the round.
func (r *Room) settle(g *match.Game, rd *round.Round, forced bool) {
	if _, err := rd.Settle(r.deps.Policy); err != nil {
		r.logger.Error("settlement policy failed, voiding round", zap.Int("round", rd.Number()), zap.Error(err))
		if _, verr := rd.SettleVoid(); verr != nil {
			r.logger.Error("voiding round", zap.Error(verr))
			return
		}
	}
	r.finishRound(g, rd, forced)
}

func (r *Room) finishRound(g *match.Game, rd *round.Round, forced bool) {
	r.selection = nil
	s, _ := rd.Settlement()
	g.ApplySettlement(rd)

	r.broadcast(protocol.MustEnvelope(protocol.RoundSettled, protocol.RoundSettledPayload{
		RoomID:         protocol.FormatID(r.id),
		RoundID:        protocol.FormatID(rd.ID()),
		Number:         rd.Number(),
		SmugglerID:     rd.Smuggle().SmugglerID(),
		InspectorID:    rd.Inspection().InspectorID(),
		Amount:         int64(rd.Smuggle().Amount()),
		Decision:       rd.Inspection().Decision().String(),
		Threshold:      int64(rd.Inspection().Threshold()),
		SmugglerDelta:  int64(s.SmugglerDelta),
		InspectorDelta: int64(s.InspectorDelta),
		Outcome:        s.Outcome,
		Forced:         forced,
		Balances:       wireBalances(g.Balances()),
	}))

	if g.RoundCount() >= r.settings.RoundsPerGame {
		r.endGame(ReasonCompleted)
		return
	}
	r.startRound(g, rd.Number()+1)
}

// endGame swaps the slot back to empty and resets readiness. No-op without a game.
func (r *Room) endGame(reason string) {
	g, ok := r.slot.Load().CurrentGame()
	if !ok {
		return
	}
	if r.selection != nil {
		r.selection.Cancel()
		r.selection = nil
	}
	r.slot.Store(match.EmptySlot())
	r.resetReady()
	r.deps.Publisher.GameEnded(g.ID(), r.id)
	r.logger.Info("game ended", zap.Uint64("game_id", g.ID()), zap.String("reason", reason))

	r.broadcast(protocol.MustEnvelope(protocol.GameEnded, protocol.GameEndedPayload{
		RoomID:   protocol.FormatID(r.id),
		GameID:   protocol.FormatID(g.ID()),
		Reason:   reason,
		Balances: wireBalances(g.Balances()),
	}))
}

func wireBalances(in map[int64]round.Money) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[strconv.FormatInt(k, 10)] = int64(v)
	}
	return out
}
