package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-holding-engine/internal/model"
)

//go:embed scripts/claim_seats.lua
var claimSeatsLua string

//go:embed scripts/release_holding.lua
var releaseHoldingLua string

//go:embed scripts/confirm_holding.lua
var confirmHoldingLua string

//go:embed scripts/revert_confirm.lua
var revertConfirmLua string

// OrphanGrace is how long Sweep waits after a confirmation before treating
// CONFIRMED rows without a ledger entry as abandoned.
const OrphanGrace = time.Minute

var (
	claimSeatsScript     = redis.NewScript(claimSeatsLua)
	releaseHoldingScript = redis.NewScript(releaseHoldingLua)
	confirmHoldingScript = redis.NewScript(confirmHoldingLua)
	revertConfirmScript  = redis.NewScript(revertConfirmLua)
)

// RedisOccupancyStore keeps occupancy rows in Redis hashes.  Claims,
// releases and confirmations are Lua scripts and run atomically inside
// Redis.  Confirmed sales are appended to the SQL ledger after the rows are
// flipped; a failed append restores the rows to HOLDING.  Rows left
// CONFIRMED without a ledger entry, by a process that died between the two
// steps, are released by Sweep once the holding has expired and
// OrphanGrace has passed since the confirmation.
//
// Keys:
//
//	occ:{perf}:{date}:{time}:{seat}  one hash per occupancy row
//	slot:{perf}:{date}:{time}        set of seat ids with a row
//	holding:{id}                     holding index hash
//	user:holdings:{user}             set of the user's holding ids
type RedisOccupancyStore struct {
	client *redis.Client
	ledger *ReservationRepo
	prefix string
	log    *zap.Logger
}

// NewRedisOccupancyStore returns a store on client that appends confirmed
// reservations to ledger.  prefix namespaces every key; it may be empty.
func NewRedisOccupancyStore(client *redis.Client, ledger *ReservationRepo, prefix string, log *zap.Logger) *RedisOccupancyStore {
	if log == nil {
		log = zap.NewNop()
	}
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &RedisOccupancyStore{client: client, ledger: ledger, prefix: prefix, log: log}
}

func (s *RedisOccupancyStore) seatKey(slot model.Slot, seatID string) string {
	return s.prefix + "occ:" + slot.Key() + ":" + seatID
}

func (s *RedisOccupancyStore) slotKey(slot model.Slot) string {
	return s.prefix + "slot:" + slot.Key()
}

func (s *RedisOccupancyStore) holdingKey(id string) string {
	return s.prefix + "holding:" + id
}

func (s *RedisOccupancyStore) userKey(userID string) string {
	return s.prefix + "user:holdings:" + userID
}

// holdingIndex is the decoded holding:{id} hash.
type holdingIndex struct {
	ID        string
	UserID    string
	Slot      model.Slot
	SeatIDs   []string
	ExpiresMs int64
}

func (s *RedisOccupancyStore) readIndex(ctx context.Context, holdingID string) (*holdingIndex, error) {
	m, err := s.client.HGetAll(ctx, s.holdingKey(holdingID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read holding index: %w", err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	exp, _ := strconv.ParseInt(m["expires_ms"], 10, 64)
	idx := &holdingIndex{
		ID:        holdingID,
		UserID:    m["user_id"],
		Slot:      model.Slot{PerformanceID: m["performance_id"], Date: m["date"], Time: m["time"]},
		ExpiresMs: exp,
	}
	if m["seats"] != "" {
		idx.SeatIDs = strings.Split(m["seats"], ",")
	}
	return idx, nil
}

func rowFromHash(m map[string]string) model.OccupancyRow {
	price, _ := strconv.ParseInt(m["price"], 10, 64)
	created, _ := strconv.ParseInt(m["created_ms"], 10, 64)
	expires, _ := strconv.ParseInt(m["expires_ms"], 10, 64)
	return model.OccupancyRow{
		Slot:          model.Slot{PerformanceID: m["performance_id"], Date: m["date"], Time: m["time"]},
		SeatID:        m["seat_id"],
		Status:        model.OccupancyStatus(m["status"]),
		HoldingID:     m["holding_id"],
		ReservationID: m["reservation_id"],
		UserID:        m["user_id"],
		Grade:         m["grade"],
		Price:         price,
		CreatedAt:     fromMillis(created),
		ExpiresAt:     fromMillis(expires),
	}
}

// readRows loads the hashes at keys in one MULTI/EXEC round trip.  Missing
// keys are skipped.
func (s *RedisOccupancyStore) readRows(ctx context.Context, keys []string) ([]model.OccupancyRow, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	pipe := s.client.TxPipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.HGetAll(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("read occupancy: %w", err)
	}
	rows := make([]model.OccupancyRow, 0, len(keys))
	for _, c := range cmds {
		m := c.Val()
		if len(m) == 0 {
			continue
		}
		rows = append(rows, rowFromHash(m))
	}
	return rows, nil
}

// TryClaim writes one HOLDING row per seat of h, or none.  Expired rows do
// not conflict and are overwritten.
func (s *RedisOccupancyStore) TryClaim(ctx context.Context, h *model.Holding, now time.Time) ([]string, error) {
	if len(h.Seats) == 0 {
		return nil, nil
	}
	slot := h.Slot()
	keys := []string{s.holdingKey(h.ID), s.userKey(h.UserID), s.slotKey(slot)}
	args := []interface{}{
		toMillis(now), toMillis(h.ExpiresAt), toMillis(h.CreatedAt), h.ID, h.UserID,
		slot.PerformanceID, slot.Date, slot.Time, strings.Join(h.SeatIDs(), ","),
	}
	for _, st := range h.Seats {
		keys = append(keys, s.seatKey(slot, st.ID))
		args = append(args, st.ID, st.Grade, st.Price)
	}
	values, err := claimSeatsScript.Run(ctx, s.client, keys, args...).Slice()
	if err != nil {
		return nil, fmt.Errorf("claim seats: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("claim seats: empty script result")
	}
	if ok, _ := values[0].(int64); ok == 1 {
		return nil, nil
	}
	conflicts := make([]string, 0, len(values)-1)
	for _, v := range values[1:] {
		if id, ok := v.(string); ok {
			conflicts = append(conflicts, id)
		}
	}
	return conflicts, nil
}

// ReadSlot returns the live rows of a showing.
func (s *RedisOccupancyStore) ReadSlot(ctx context.Context, slot model.Slot, now time.Time) ([]model.OccupancyRow, error) {
	seatIDs, err := s.client.SMembers(ctx, s.slotKey(slot)).Result()
	if err != nil {
		return nil, fmt.Errorf("read slot: %w", err)
	}
	keys := make([]string, 0, len(seatIDs))
	for _, id := range seatIDs {
		keys = append(keys, s.seatKey(slot, id))
	}
	rows, err := s.readRows(ctx, keys)
	if err != nil {
		return nil, err
	}
	live := rows[:0]
	for _, r := range rows {
		if r.Live(now) {
			live = append(live, r)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].SeatID < live[j].SeatID })
	return live, nil
}

// HoldingRows returns the unexpired HOLDING rows still owned by holdingID.
func (s *RedisOccupancyStore) HoldingRows(ctx context.Context, holdingID string, now time.Time) ([]model.OccupancyRow, error) {
	idx, err := s.readIndex(ctx, holdingID)
	if err != nil || idx == nil {
		return nil, err
	}
	keys := make([]string, 0, len(idx.SeatIDs))
	for _, id := range idx.SeatIDs {
		keys = append(keys, s.seatKey(idx.Slot, id))
	}
	rows, err := s.readRows(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, r := range rows {
		if r.HoldingID == holdingID && r.Status == model.OccupancyHolding && r.Live(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

// UserHoldingIDs returns the user's holdings whose index has not expired.
// Stale set members are pruned.
func (s *RedisOccupancyStore) UserHoldingIDs(ctx context.Context, userID string, now time.Time) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list user holdings: %w", err)
	}
	sort.Strings(ids)
	var active []string
	for _, id := range ids {
		idx, err := s.readIndex(ctx, id)
		if err != nil {
			return nil, err
		}
		if idx == nil {
			if err := s.client.SRem(ctx, s.userKey(userID), id).Err(); err != nil {
				s.log.Warn("prune user holding", zap.String("holding_id", id), zap.Error(err))
			}
			continue
		}
		if idx.ExpiresMs > toMillis(now) {
			active = append(active, id)
		}
	}
	return active, nil
}

// DeleteHolding removes the holding's HOLDING rows and index entries in one
// script and returns how many rows were still live.
func (s *RedisOccupancyStore) DeleteHolding(ctx context.Context, holdingID string, now time.Time) (int, error) {
	idx, err := s.readIndex(ctx, holdingID)
	if err != nil || idx == nil {
		return 0, err
	}
	return s.release(ctx, idx, now)
}

func (s *RedisOccupancyStore) release(ctx context.Context, idx *holdingIndex, now time.Time) (int, error) {
	keys := []string{s.holdingKey(idx.ID), s.userKey(idx.UserID), s.slotKey(idx.Slot)}
	args := []interface{}{toMillis(now), idx.ID}
	for _, id := range idx.SeatIDs {
		keys = append(keys, s.seatKey(idx.Slot, id))
		args = append(args, id)
	}
	n, err := releaseHoldingScript.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return 0, fmt.Errorf("release holding: %w", err)
	}
	return n, nil
}

// ConfirmHolding flips the holding's rows to CONFIRMED, then appends res to
// the ledger.  When the append fails the rows are restored to HOLDING and
// the ledger error is returned.
func (s *RedisOccupancyStore) ConfirmHolding(ctx context.Context, holdingID string, res *model.Reservation, now time.Time) error {
	idx, err := s.readIndex(ctx, holdingID)
	if err != nil {
		return err
	}
	if idx == nil || len(idx.SeatIDs) != len(res.Seats) {
		return ErrGuardFailed
	}
	keys := make([]string, 0, len(idx.SeatIDs))
	for _, id := range idx.SeatIDs {
		keys = append(keys, s.seatKey(idx.Slot, id))
	}
	ok, err := confirmHoldingScript.Run(ctx, s.client, keys, toMillis(now), holdingID, res.ID).Int()
	if err != nil {
		return fmt.Errorf("confirm holding: %w", err)
	}
	if ok != 1 {
		return ErrGuardFailed
	}

	if err := s.ledger.Create(ctx, res); err != nil {
		// The request context may already be cancelled; the revert must still run.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if n, rerr := revertConfirmScript.Run(rctx, s.client, keys, res.ID, idx.ExpiresMs).Int(); rerr != nil || n != len(keys) {
			s.log.Error("revert confirmed seats",
				zap.String("holding_id", holdingID),
				zap.String("reservation_id", res.ID),
				zap.Int("restored", n),
				zap.Error(errors.Join(err, rerr)))
		}
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.holdingKey(holdingID))
	pipe.SRem(ctx, s.userKey(idx.UserID), holdingID)
	if _, err := pipe.Exec(ctx); err != nil {
		// Rows are confirmed; a stale index is pruned by Sweep.
		s.log.Warn("drop confirmed holding index", zap.String("holding_id", holdingID), zap.Error(err))
	}
	return nil
}

// Sweep releases every holding whose index expired at or before now and
// returns the number of holdings removed.
func (s *RedisOccupancyStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	pattern := s.holdingKey("*")
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return removed, fmt.Errorf("scan holdings: %w", err)
		}
		for _, k := range keys {
			id := strings.TrimPrefix(k, s.holdingKey(""))
			idx, err := s.readIndex(ctx, id)
			if err != nil {
				return removed, err
			}
			if idx == nil || idx.ExpiresMs > toMillis(now) {
				continue
			}
			settled, err := s.reconcileConfirmed(ctx, idx, now)
			if err != nil {
				return removed, err
			}
			if !settled {
				continue
			}
			if _, err := s.release(ctx, idx, now); err != nil {
				return removed, err
			}
			removed++
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// reconcileConfirmed looks for rows of an expired holding that are CONFIRMED
// into a reservation the ledger does not have.  Such rows older than
// OrphanGrace are restored to HOLDING with the expired deadline so release
// drops them.  It returns false while a confirmation may still be in flight.
func (s *RedisOccupancyStore) reconcileConfirmed(ctx context.Context, idx *holdingIndex, now time.Time) (bool, error) {
	if len(idx.SeatIDs) == 0 {
		return true, nil
	}
	keys := make([]string, len(idx.SeatIDs))
	pipe := s.client.Pipeline()
	cmds := make([]*redis.SliceCmd, len(idx.SeatIDs))
	for i, id := range idx.SeatIDs {
		keys[i] = s.seatKey(idx.Slot, id)
		cmds[i] = pipe.HMGet(ctx, keys[i], "holding_id", "status", "reservation_id", "confirmed_ms")
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("read confirmed rows: %w", err)
	}

	confirmedAt := map[string]int64{}
	for _, c := range cmds {
		v := c.Val()
		if len(v) < 4 || hashField(v[0]) != idx.ID || hashField(v[1]) != string(model.OccupancyConfirmed) {
			continue
		}
		ms, _ := strconv.ParseInt(hashField(v[3]), 10, 64)
		if ms > confirmedAt[hashField(v[2])] {
			confirmedAt[hashField(v[2])] = ms
		}
	}

	for resID, ms := range confirmedAt {
		_, err := s.ledger.GetByID(ctx, resID)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return false, err
		}
		if now.Before(fromMillis(ms).Add(OrphanGrace)) {
			return false, nil
		}
		n, err := revertConfirmScript.Run(ctx, s.client, keys, resID, idx.ExpiresMs).Int()
		if err != nil {
			return false, fmt.Errorf("revert orphaned confirmation: %w", err)
		}
		s.log.Warn("released seats confirmed without a ledger entry",
			zap.String("holding_id", idx.ID),
			zap.String("reservation_id", resID),
			zap.Int("seats", n))
	}
	return true, nil
}

func hashField(v any) string {
	s, _ := v.(string)
	return s
}

// Ping checks the Redis connection.
func (s *RedisOccupancyStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
