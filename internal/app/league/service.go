// Package league implements weekly league matchmaking, ranking, boundary
// tracking and end-of-week settlement against the ranking authority.
package league

import (
	"log"
	"math"
	"time"

	"github.com/psycle-labs/psycle/internal/domain"
)

// MatchConfig tunes cohort matchmaking.
type MatchConfig struct {
	LeagueSize            int
	GapWeight             float64
	VarianceWeight        float64
	MinMembersForVariance int
}

// DefaultMatchConfig returns the standard matchmaking shape: cohorts of 30,
// gap-dominated scoring with a mild variance penalty.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		LeagueSize:            30,
		GapWeight:             1.0,
		VarianceWeight:        0.35,
		MinMembersForVariance: 3,
	}
}

// Service manages league membership and settlement.
type Service struct {
	ranking domain.RankingStore
	sink    domain.EventSink
	match   MatchConfig
	rewards domain.LeagueRewardPolicy
	logger  *log.Logger
}

// NewService creates a league service.
func NewService(ranking domain.RankingStore, sink domain.EventSink, match MatchConfig) *Service {
	if sink == nil {
		sink = domain.NopSink{}
	}
	return &Service{
		ranking: ranking,
		sink:    sink,
		match:   match,
		rewards: domain.DefaultLeagueRewardPolicy(),
		logger:  log.New(log.Writer(), "[league] ", log.LstdFlags),
	}
}

// currentWeek resolves the authoritative week id, falling back to the local
// ISO week when the authority is unreachable.
func (s *Service) currentWeek(now time.Time) string {
	weekID, err := s.ranking.CurrentWeekID()
	if err != nil {
		weekID = domain.ISOWeekID(now)
		s.logger.Printf("week authority unavailable, using local %s: %v", weekID, err)
	}
	return weekID
}

// ─── Joining ────────────────────────────────────────────────────────────────

// EnsureJoined places the user in a league for the current week, creating
// one when every candidate cohort is full. Joining is idempotent; a
// concurrent double-join resolves by re-reading the winning membership.
func (s *Service) EnsureJoined(userID string, now time.Time) (domain.LeagueInfo, error) {
	weekID := s.currentWeek(now)

	member, err := s.ranking.MembershipFor(userID, weekID)
	if err != nil {
		return domain.LeagueInfo{}, err
	}
	if member != nil {
		return s.leagueInfo(member.LeagueID, userID)
	}

	tier, err := s.startingTier(userID)
	if err != nil {
		return domain.LeagueInfo{}, err
	}

	league, err := s.pickLeague(userID, weekID, tier)
	if err != nil {
		return domain.LeagueInfo{}, err
	}

	if err := s.ranking.InsertMember(league.ID, userID); err != nil {
		if err == domain.ErrMemberConflict {
			member, err = s.ranking.MembershipFor(userID, weekID)
			if err != nil {
				return domain.LeagueInfo{}, err
			}
			if member != nil {
				return s.leagueInfo(member.LeagueID, userID)
			}
		}
		return domain.LeagueInfo{}, err
	}

	s.sink.Emit("league_joined", map[string]any{"league_id": league.ID, "tier": league.Tier})
	return s.leagueInfo(league.ID, userID)
}

// startingTier carries last week's movement into this week's placement.
// Fresh users start at Bronze.
func (s *Service) startingTier(userID string) (int, error) {
	lastWeek, err := s.ranking.LastWeekID()
	if err != nil {
		if err == domain.ErrWeekUnavailable {
			return domain.MinTier, nil
		}
		return 0, err
	}

	member, err := s.ranking.MembershipFor(userID, lastWeek)
	if err != nil {
		return 0, err
	}
	if member == nil {
		return domain.MinTier, nil
	}

	league, err := s.ranking.GetLeague(member.LeagueID)
	if err != nil {
		return 0, err
	}
	tier := league.Tier
	if member.Promoted {
		tier++
	}
	if member.Demoted {
		tier--
	}
	return domain.ClampTier(tier), nil
}

// candidate is a joinable league with its matchmaking score.
type candidate struct {
	league  domain.LeagueRecord
	score   float64
	members int
}

// pickLeague selects the best-fitting non-full cohort at the tier, or spins
// up a fresh one. Fit is the lifetime-XP gap between the user and the
// cohort average, penalized by cohort spread; lower is better.
func (s *Service) pickLeague(userID, weekID string, tier int) (domain.LeagueRecord, error) {
	leagues, err := s.ranking.ListLeagues(weekID, tier)
	if err != nil {
		return domain.LeagueRecord{}, err
	}

	myTotals, err := s.ranking.TotalXP([]string{userID})
	if err != nil {
		return domain.LeagueRecord{}, err
	}
	myXP := float64(myTotals[userID])

	var best *candidate
	for _, league := range leagues {
		members, err := s.ranking.ListMembers(league.ID)
		if err != nil {
			return domain.LeagueRecord{}, err
		}
		if len(members) >= s.match.LeagueSize {
			continue
		}

		c := candidate{
			league:  league,
			members: len(members),
			score:   s.scoreLeague(myXP, members),
		}
		if best == nil || c.beats(*best) {
			chosen := c
			best = &chosen
		}
	}

	if best != nil {
		return best.league, nil
	}
	return s.ranking.CreateLeague(weekID, tier)
}

// beats applies the selection order: lower score, then fuller cohort, then
// older cohort.
func (c candidate) beats(other candidate) bool {
	if c.score != other.score {
		return c.score < other.score
	}
	if c.members != other.members {
		return c.members > other.members
	}
	return c.league.CreatedAt.Before(other.league.CreatedAt)
}

// scoreLeague computes the matchmaking score of one cohort for a user with
// lifetime XP myXP. An empty cohort scores the bare gap to zero.
func (s *Service) scoreLeague(myXP float64, members []domain.MemberRecord) float64 {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	totals, err := s.ranking.TotalXP(ids)
	if err != nil {
		totals = map[string]int{}
	}

	var sum float64
	for _, id := range ids {
		sum += float64(totals[id])
	}
	var avg float64
	if len(ids) > 0 {
		avg = sum / float64(len(ids))
	}

	denom := math.Max(math.Max(avg, myXP), 1)
	score := s.match.GapWeight * math.Abs(avg-myXP) / denom

	if len(ids) >= s.match.MinMembersForVariance {
		var variance float64
		for _, id := range ids {
			d := float64(totals[id]) - avg
			variance += d * d
		}
		stddev := math.Sqrt(variance / float64(len(ids)))
		score += s.match.VarianceWeight * stddev / denom
	}
	return score
}

// ─── Ranked View ────────────────────────────────────────────────────────────

// MyLeague returns the user's ranked league snapshot for the current week.
// ErrLeagueNotFound when the user has not joined yet.
func (s *Service) MyLeague(userID string, now time.Time) (domain.LeagueInfo, error) {
	weekID := s.currentWeek(now)

	member, err := s.ranking.MembershipFor(userID, weekID)
	if err != nil {
		return domain.LeagueInfo{}, err
	}
	if member == nil {
		return domain.LeagueInfo{}, domain.ErrLeagueNotFound
	}
	return s.leagueInfo(member.LeagueID, userID)
}

func (s *Service) leagueInfo(leagueID, userID string) (domain.LeagueInfo, error) {
	league, err := s.ranking.GetLeague(leagueID)
	if err != nil {
		return domain.LeagueInfo{}, err
	}
	records, err := s.ranking.ListMembers(leagueID)
	if err != nil {
		return domain.LeagueInfo{}, err
	}

	members := make([]domain.LeagueMember, 0, len(records))
	for _, r := range records {
		members = append(members, domain.LeagueMember{UserID: r.UserID, WeeklyXP: r.WeeklyXP})
	}
	ranked := domain.RankMembers(members)

	info := domain.LeagueInfo{
		LeagueID:      league.ID,
		WeekID:        league.WeekID,
		Tier:          league.Tier,
		TierName:      domain.TierName(league.Tier),
		Members:       ranked,
		PromotionZone: domain.PromotionZoneSize(len(ranked)),
		DemotionZone:  domain.DemotionZoneStart(len(ranked)),
	}
	for _, m := range ranked {
		if m.UserID == userID {
			info.MyRank = m.Rank
		}
	}
	return info, nil
}

// Boundary returns the XP gap between the user and the nearest meaningful
// league edge, nil when already inside the promotion zone.
func (s *Service) Boundary(userID string, now time.Time) (*domain.LeagueBoundaryStatus, error) {
	info, err := s.MyLeague(userID, now)
	if err != nil {
		return nil, err
	}
	return domain.ComputeBoundaryStatus(info, userID), nil
}

// ─── XP Flow ────────────────────────────────────────────────────────────────

// AddWeeklyXP credits earned XP to the user's current cohort, joining one
// first when needed. Negative amounts are a contract violation.
func (s *Service) AddWeeklyXP(userID string, xp int, now time.Time) error {
	if xp < 0 {
		return domain.ErrInvalidXPAmount
	}
	weekID := s.currentWeek(now)

	member, err := s.ranking.MembershipFor(userID, weekID)
	if err != nil {
		return err
	}
	if member == nil {
		if _, err := s.EnsureJoined(userID, now); err != nil {
			return err
		}
		member, err = s.ranking.MembershipFor(userID, weekID)
		if err != nil {
			return err
		}
		if member == nil {
			return domain.ErrLeagueNotFound
		}
	}
	return s.ranking.AddWeeklyXP(member.LeagueID, userID, xp)
}

// SyncTotalXP publishes the user's lifetime XP to the ranking authority for
// matchmaking.
func (s *Service) SyncTotalXP(userID string, totalXP int) error {
	return s.ranking.SetTotalXP(userID, totalXP)
}

// ─── Settlement ─────────────────────────────────────────────────────────────

// SettlementSummary reports one settlement run.
type SettlementSummary struct {
	WeekID   string `json:"week_id"`
	Leagues  int    `json:"leagues"`
	Members  int    `json:"members"`
	Promoted int    `json:"promoted"`
	Demoted  int    `json:"demoted"`
}

// SettleWeek settles every league of the previous week: final ranks,
// movement flags and pending rewards. Safe to rerun; reward upserts are
// idempotent per (user, week).
func (s *Service) SettleWeek(now time.Time) (SettlementSummary, error) {
	weekID, err := s.ranking.LastWeekID()
	if err != nil {
		return SettlementSummary{}, err
	}

	summary := SettlementSummary{WeekID: weekID}
	for tier := domain.MinTier; tier <= domain.MaxTier; tier++ {
		leagues, err := s.ranking.ListLeagues(weekID, tier)
		if err != nil {
			return summary, err
		}
		for _, league := range leagues {
			if err := s.settleLeague(league, &summary); err != nil {
				return summary, err
			}
			summary.Leagues++
		}
	}

	s.sink.Emit("week_settled", map[string]any{
		"week_id": summary.WeekID,
		"leagues": summary.Leagues,
		"members": summary.Members,
	})
	return summary, nil
}

func (s *Service) settleLeague(league domain.LeagueRecord, summary *SettlementSummary) error {
	records, err := s.ranking.ListMembers(league.ID)
	if err != nil {
		return err
	}
	members := make([]domain.LeagueMember, 0, len(records))
	for _, r := range records {
		members = append(members, domain.LeagueMember{UserID: r.UserID, WeeklyXP: r.WeeklyXP})
	}

	for _, outcome := range domain.SettleOutcomes(members, league.Tier, s.rewards) {
		err := s.ranking.UpdateMemberResult(league.ID, outcome.UserID,
			outcome.FinalRank, outcome.Promoted, outcome.Demoted)
		if err != nil {
			return err
		}
		err = s.ranking.UpsertPendingReward(domain.PendingReward{
			UserID: outcome.UserID,
			WeekID: league.WeekID,
			Gems:   outcome.Gems,
			Badges: outcome.Badges,
		})
		if err != nil {
			return err
		}

		summary.Members++
		if outcome.Promoted {
			summary.Promoted++
		}
		if outcome.Demoted {
			summary.Demoted++
		}
	}
	return nil
}

// ─── Rewards ────────────────────────────────────────────────────────────────

// PendingReward returns the user's newest unclaimed settlement reward, nil
// when there is none.
func (s *Service) PendingReward(userID string) (*domain.PendingReward, error) {
	return s.ranking.PendingRewardFor(userID)
}

// ClaimReward claims a settlement reward exactly once.
func (s *Service) ClaimReward(rewardID string) (domain.PendingReward, error) {
	reward, err := s.ranking.ClaimPendingReward(rewardID)
	if err != nil {
		return domain.PendingReward{}, err
	}
	s.sink.Emit("reward_claimed", map[string]any{"reward_id": reward.ID, "gems": reward.Gems})
	return reward, nil
}
