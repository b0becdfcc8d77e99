package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/psycle-labs/psycle/internal/domain"
)

// Week registry keys.
const (
	weekKeyCurrent = "current_week"
	weekKeyLast    = "last_week"
)

// ─── Week Identity ──────────────────────────────────────────────────────────

// CurrentWeekID returns the authoritative current week id.
func (d *DB) CurrentWeekID() (string, error) {
	return d.weekValue(weekKeyCurrent)
}

// LastWeekID returns the authoritative previous week id.
func (d *DB) LastWeekID() (string, error) {
	return d.weekValue(weekKeyLast)
}

func (d *DB) weekValue(key string) (string, error) {
	var value string
	err := d.db.QueryRow(`SELECT value FROM week_registry WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", domain.ErrWeekUnavailable
	}
	return value, err
}

// SetWeeks records the current and previous week ids (sync path).
func (d *DB) SetWeeks(currentWeekID, lastWeekID string) error {
	for key, value := range map[string]string{
		weekKeyCurrent: currentWeekID,
		weekKeyLast:    lastWeekID,
	} {
		_, err := d.db.Exec(
			`INSERT INTO week_registry (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
			key, value,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// ─── Leagues ────────────────────────────────────────────────────────────────

// ListLeagues returns the leagues of one week+tier, oldest first.
func (d *DB) ListLeagues(weekID string, tier int) ([]domain.LeagueRecord, error) {
	rows, err := d.db.Query(
		`SELECT id, week_id, tier, created_at FROM leagues
		 WHERE week_id = ? AND tier = ? ORDER BY created_at, id`,
		weekID, tier,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leagues []domain.LeagueRecord
	for rows.Next() {
		rec, err := scanLeague(rows)
		if err != nil {
			return nil, err
		}
		leagues = append(leagues, rec)
	}
	return leagues, rows.Err()
}

// CreateLeague inserts a new league row and returns it.
func (d *DB) CreateLeague(weekID string, tier int) (domain.LeagueRecord, error) {
	rec := domain.LeagueRecord{
		ID:        uuid.New().String(),
		WeekID:    weekID,
		Tier:      tier,
		CreatedAt: time.Now().UTC(),
	}
	_, err := d.db.Exec(
		`INSERT INTO leagues (id, week_id, tier, created_at) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.WeekID, rec.Tier, rec.CreatedAt.Unix(),
	)
	if err != nil {
		return domain.LeagueRecord{}, fmt.Errorf("create league: %w", err)
	}
	return rec, nil
}

// GetLeague resolves one league row by id.
func (d *DB) GetLeague(leagueID string) (domain.LeagueRecord, error) {
	row := d.db.QueryRow(
		`SELECT id, week_id, tier, created_at FROM leagues WHERE id = ?`, leagueID,
	)
	rec, err := scanLeague(row)
	if err == sql.ErrNoRows {
		return domain.LeagueRecord{}, domain.ErrLeagueNotFound
	}
	return rec, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLeague(row rowScanner) (domain.LeagueRecord, error) {
	var rec domain.LeagueRecord
	var createdAt int64
	if err := row.Scan(&rec.ID, &rec.WeekID, &rec.Tier, &createdAt); err != nil {
		return domain.LeagueRecord{}, err
	}
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	return rec, nil
}

// ─── Membership ─────────────────────────────────────────────────────────────

// ListMembers returns a league's members ordered by weekly XP descending,
// insertion order preserved on ties.
func (d *DB) ListMembers(leagueID string) ([]domain.MemberRecord, error) {
	rows, err := d.db.Query(
		`SELECT league_id, user_id, week_id, weekly_xp, final_rank, promoted, demoted, created_at
		 FROM league_members WHERE league_id = ?
		 ORDER BY weekly_xp DESC, created_at, user_id`,
		leagueID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []domain.MemberRecord
	for rows.Next() {
		var m domain.MemberRecord
		var weekID string
		var createdAt int64
		if err := rows.Scan(&m.LeagueID, &m.UserID, &weekID, &m.WeeklyXP,
			&m.FinalRank, &m.Promoted, &m.Demoted, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = time.Unix(createdAt, 0).UTC()
		members = append(members, m)
	}
	return members, rows.Err()
}

// InsertMember adds a membership row. The unique (user_id, week_id) index
// turns a concurrent double-join into domain.ErrMemberConflict.
func (d *DB) InsertMember(leagueID, userID string) error {
	league, err := d.GetLeague(leagueID)
	if err != nil {
		return err
	}
	_, err = d.db.Exec(
		`INSERT INTO league_members (league_id, user_id, week_id, created_at)
		 VALUES (?, ?, ?, ?)`,
		leagueID, userID, league.WeekID, time.Now().UTC().Unix(),
	)
	if err != nil && isUniqueViolation(err) {
		return domain.ErrMemberConflict
	}
	return err
}

// MembershipFor resolves the user's league membership for a week.
func (d *DB) MembershipFor(userID, weekID string) (*domain.MemberRecord, error) {
	row := d.db.QueryRow(
		`SELECT league_id, user_id, weekly_xp, final_rank, promoted, demoted, created_at
		 FROM league_members WHERE user_id = ? AND week_id = ?`,
		userID, weekID,
	)
	var m domain.MemberRecord
	var createdAt int64
	err := row.Scan(&m.LeagueID, &m.UserID, &m.WeeklyXP,
		&m.FinalRank, &m.Promoted, &m.Demoted, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &m, nil
}

// AddWeeklyXP atomically increments a member's weekly XP.
func (d *DB) AddWeeklyXP(leagueID, userID string, xp int) error {
	_, err := d.db.Exec(
		`UPDATE league_members SET weekly_xp = weekly_xp + ?
		 WHERE league_id = ? AND user_id = ?`,
		xp, leagueID, userID,
	)
	return err
}

// UpdateMemberResult stores the settled rank and movement flags.
func (d *DB) UpdateMemberResult(leagueID, userID string, finalRank int, promoted, demoted bool) error {
	_, err := d.db.Exec(
		`UPDATE league_members SET final_rank = ?, promoted = ?, demoted = ?
		 WHERE league_id = ? AND user_id = ?`,
		finalRank, promoted, demoted, leagueID, userID,
	)
	return err
}

// ─── Lifetime XP ────────────────────────────────────────────────────────────

// TotalXP returns each user's lifetime XP. Users with no row map to 0.
func (d *DB) TotalXP(userIDs []string) (map[string]int, error) {
	totals := make(map[string]int, len(userIDs))
	for _, id := range userIDs {
		totals[id] = 0
		var xp int
		err := d.db.QueryRow(`SELECT total_xp FROM leaderboard WHERE user_id = ?`, id).Scan(&xp)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		totals[id] = xp
	}
	return totals, nil
}

// SetTotalXP records a user's lifetime XP.
func (d *DB) SetTotalXP(userID string, xp int) error {
	_, err := d.db.Exec(
		`INSERT INTO leaderboard (user_id, total_xp) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET total_xp=excluded.total_xp`,
		userID, xp,
	)
	return err
}

// ─── Pending Rewards ────────────────────────────────────────────────────────

// UpsertPendingReward stores an end-of-week reward, idempotent on (user, week).
func (d *DB) UpsertPendingReward(reward domain.PendingReward) error {
	if reward.ID == "" {
		reward.ID = uuid.New().String()
	}
	badges, err := json.Marshal(reward.Badges)
	if err != nil {
		return err
	}
	_, err = d.db.Exec(
		`INSERT INTO pending_rewards (id, user_id, week_id, gems, badges, claimed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, week_id) DO UPDATE SET
		   gems=excluded.gems, badges=excluded.badges`,
		reward.ID, reward.UserID, reward.WeekID, reward.Gems, string(badges),
		reward.Claimed, time.Now().UTC().Unix(),
	)
	return err
}

// PendingRewardFor returns the newest unclaimed reward for a user.
func (d *DB) PendingRewardFor(userID string) (*domain.PendingReward, error) {
	row := d.db.QueryRow(
		`SELECT id, user_id, week_id, gems, badges, claimed FROM pending_rewards
		 WHERE user_id = ? AND claimed = 0
		 ORDER BY created_at DESC LIMIT 1`,
		userID,
	)
	reward, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reward, nil
}

// ClaimPendingReward marks a reward claimed exactly once.
func (d *DB) ClaimPendingReward(rewardID string) (domain.PendingReward, error) {
	res, err := d.db.Exec(
		`UPDATE pending_rewards SET claimed = 1 WHERE id = ? AND claimed = 0`,
		rewardID,
	)
	if err != nil {
		return domain.PendingReward{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.PendingReward{}, err
	}
	if n == 0 {
		return domain.PendingReward{}, domain.ErrRewardNotFound
	}

	row := d.db.QueryRow(
		`SELECT id, user_id, week_id, gems, badges, claimed FROM pending_rewards WHERE id = ?`,
		rewardID,
	)
	return scanReward(row)
}

func scanReward(row rowScanner) (domain.PendingReward, error) {
	var reward domain.PendingReward
	var badges string
	if err := row.Scan(&reward.ID, &reward.UserID, &reward.WeekID,
		&reward.Gems, &badges, &reward.Claimed); err != nil {
		return domain.PendingReward{}, err
	}
	if err := json.Unmarshal([]byte(badges), &reward.Badges); err != nil {
		reward.Badges = nil
	}
	return reward, nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
