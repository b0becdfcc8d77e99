// Package postgres implements the production ranking authority on
// PostgreSQL. It mirrors the sqlite ranking store schema; deployments pick
// one or the other through configuration.
package postgres

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/psycle-labs/psycle/internal/domain"
)

// Store wraps a PostgreSQL connection implementing domain.RankingStore.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL and ensures the ranking schema.
func Open(dbURL string) (*Store, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

// Close cleanly shuts down the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks authority connectivity.
func (s *Store) Ping() error {
	return s.db.Ping()
}

func (s *Store) ensureSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS week_registry (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS leagues (
			id         TEXT PRIMARY KEY,
			week_id    TEXT NOT NULL,
			tier       INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_leagues_week_tier ON leagues(week_id, tier)`,
		`CREATE TABLE IF NOT EXISTS league_members (
			league_id  TEXT NOT NULL REFERENCES leagues(id),
			user_id    TEXT NOT NULL,
			week_id    TEXT NOT NULL,
			weekly_xp  INTEGER NOT NULL DEFAULT 0,
			final_rank INTEGER NOT NULL DEFAULT 0,
			promoted   BOOLEAN NOT NULL DEFAULT FALSE,
			demoted    BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (league_id, user_id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_members_user_week ON league_members(user_id, week_id)`,
		`CREATE TABLE IF NOT EXISTS leaderboard (
			user_id  TEXT PRIMARY KEY,
			total_xp INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS pending_rewards (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			week_id    TEXT NOT NULL,
			gems       INTEGER NOT NULL,
			badges     TEXT NOT NULL DEFAULT '[]',
			claimed    BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (user_id, week_id)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// ─── Week Identity ──────────────────────────────────────────────────────────

func (s *Store) CurrentWeekID() (string, error) {
	return s.weekValue("current_week")
}

func (s *Store) LastWeekID() (string, error) {
	return s.weekValue("last_week")
}

func (s *Store) weekValue(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM week_registry WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", domain.ErrWeekUnavailable
	}
	return value, err
}

// SetWeeks records the current and previous week ids.
func (s *Store) SetWeeks(currentWeekID, lastWeekID string) error {
	for key, value := range map[string]string{
		"current_week": currentWeekID,
		"last_week":    lastWeekID,
	} {
		_, err := s.db.Exec(
			`INSERT INTO week_registry (key, value) VALUES ($1, $2)
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
			key, value,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// ─── Leagues ────────────────────────────────────────────────────────────────

func (s *Store) ListLeagues(weekID string, tier int) ([]domain.LeagueRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, week_id, tier, created_at FROM leagues
		 WHERE week_id = $1 AND tier = $2 ORDER BY created_at, id`,
		weekID, tier,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leagues []domain.LeagueRecord
	for rows.Next() {
		var rec domain.LeagueRecord
		if err := rows.Scan(&rec.ID, &rec.WeekID, &rec.Tier, &rec.CreatedAt); err != nil {
			return nil, err
		}
		leagues = append(leagues, rec)
	}
	return leagues, rows.Err()
}

func (s *Store) CreateLeague(weekID string, tier int) (domain.LeagueRecord, error) {
	rec := domain.LeagueRecord{
		ID:        uuid.New().String(),
		WeekID:    weekID,
		Tier:      tier,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO leagues (id, week_id, tier, created_at) VALUES ($1, $2, $3, $4)`,
		rec.ID, rec.WeekID, rec.Tier, rec.CreatedAt,
	)
	if err != nil {
		return domain.LeagueRecord{}, fmt.Errorf("create league: %w", err)
	}
	return rec, nil
}

func (s *Store) GetLeague(leagueID string) (domain.LeagueRecord, error) {
	var rec domain.LeagueRecord
	err := s.db.QueryRow(
		`SELECT id, week_id, tier, created_at FROM leagues WHERE id = $1`, leagueID,
	).Scan(&rec.ID, &rec.WeekID, &rec.Tier, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.LeagueRecord{}, domain.ErrLeagueNotFound
	}
	return rec, err
}

// ─── Membership ─────────────────────────────────────────────────────────────

func (s *Store) ListMembers(leagueID string) ([]domain.MemberRecord, error) {
	rows, err := s.db.Query(
		`SELECT league_id, user_id, weekly_xp, final_rank, promoted, demoted, created_at
		 FROM league_members WHERE league_id = $1
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
		if err := rows.Scan(&m.LeagueID, &m.UserID, &m.WeeklyXP,
			&m.FinalRank, &m.Promoted, &m.Demoted, &m.CreatedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *Store) InsertMember(leagueID, userID string) error {
	league, err := s.GetLeague(leagueID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO league_members (league_id, user_id, week_id)
		 VALUES ($1, $2, $3)`,
		leagueID, userID, league.WeekID,
	)
	if isUniqueViolation(err) {
		return domain.ErrMemberConflict
	}
	return err
}

func (s *Store) MembershipFor(userID, weekID string) (*domain.MemberRecord, error) {
	var m domain.MemberRecord
	err := s.db.QueryRow(
		`SELECT league_id, user_id, weekly_xp, final_rank, promoted, demoted, created_at
		 FROM league_members WHERE user_id = $1 AND week_id = $2`,
		userID, weekID,
	).Scan(&m.LeagueID, &m.UserID, &m.WeeklyXP,
		&m.FinalRank, &m.Promoted, &m.Demoted, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) AddWeeklyXP(leagueID, userID string, xp int) error {
	_, err := s.db.Exec(
		`UPDATE league_members SET weekly_xp = weekly_xp + $1
		 WHERE league_id = $2 AND user_id = $3`,
		xp, leagueID, userID,
	)
	return err
}

func (s *Store) UpdateMemberResult(leagueID, userID string, finalRank int, promoted, demoted bool) error {
	_, err := s.db.Exec(
		`UPDATE league_members SET final_rank = $1, promoted = $2, demoted = $3
		 WHERE league_id = $4 AND user_id = $5`,
		finalRank, promoted, demoted, leagueID, userID,
	)
	return err
}

// ─── Lifetime XP ────────────────────────────────────────────────────────────

// TotalXP returns each user's lifetime XP in one round trip. Users with no
// leaderboard row map to 0.
func (s *Store) TotalXP(userIDs []string) (map[string]int, error) {
	totals := make(map[string]int, len(userIDs))
	for _, id := range userIDs {
		totals[id] = 0
	}
	if len(userIDs) == 0 {
		return totals, nil
	}

	rows, err := s.db.Query(
		`SELECT user_id, total_xp FROM leaderboard WHERE user_id = ANY($1)`,
		pq.Array(userIDs),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var xp int
		if err := rows.Scan(&id, &xp); err != nil {
			return nil, err
		}
		totals[id] = xp
	}
	return totals, rows.Err()
}

func (s *Store) SetTotalXP(userID string, xp int) error {
	_, err := s.db.Exec(
		`INSERT INTO leaderboard (user_id, total_xp) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET total_xp = EXCLUDED.total_xp`,
		userID, xp,
	)
	return err
}

// ─── Pending Rewards ────────────────────────────────────────────────────────

func (s *Store) UpsertPendingReward(reward domain.PendingReward) error {
	if reward.ID == "" {
		reward.ID = uuid.New().String()
	}
	badges, err := json.Marshal(reward.Badges)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO pending_rewards (id, user_id, week_id, gems, badges, claimed)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, week_id) DO UPDATE SET
		   gems = EXCLUDED.gems, badges = EXCLUDED.badges`,
		reward.ID, reward.UserID, reward.WeekID, reward.Gems, string(badges), reward.Claimed,
	)
	return err
}

func (s *Store) PendingRewardFor(userID string) (*domain.PendingReward, error) {
	var reward domain.PendingReward
	var badges string
	err := s.db.QueryRow(
		`SELECT id, user_id, week_id, gems, badges, claimed FROM pending_rewards
		 WHERE user_id = $1 AND claimed = FALSE
		 ORDER BY created_at DESC LIMIT 1`,
		userID,
	).Scan(&reward.ID, &reward.UserID, &reward.WeekID, &reward.Gems, &badges, &reward.Claimed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(badges), &reward.Badges); err != nil {
		reward.Badges = nil
	}
	return &reward, nil
}

func (s *Store) ClaimPendingReward(rewardID string) (domain.PendingReward, error) {
	var reward domain.PendingReward
	var badges string
	err := s.db.QueryRow(
		`UPDATE pending_rewards SET claimed = TRUE
		 WHERE id = $1 AND claimed = FALSE
		 RETURNING id, user_id, week_id, gems, badges, claimed`,
		rewardID,
	).Scan(&reward.ID, &reward.UserID, &reward.WeekID, &reward.Gems, &badges, &reward.Claimed)
	if err == sql.ErrNoRows {
		return domain.PendingReward{}, domain.ErrRewardNotFound
	}
	if err != nil {
		return domain.PendingReward{}, err
	}
	if err := json.Unmarshal([]byte(badges), &reward.Badges); err != nil {
		reward.Badges = nil
	}
	return reward, nil
}
