package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/psycle-labs/psycle/internal/app/quest"
	"github.com/psycle-labs/psycle/internal/domain"
	"github.com/psycle-labs/psycle/internal/infra/metrics"
)

// ─── Events ─────────────────────────────────────────────────────────────────

type recordEventRequest struct {
	Type     domain.QuestEventType `json:"type"`
	LessonID string                `json:"lesson_id,omitempty"`
	XP       int                   `json:"xp"`
}

type recordEventResponse struct {
	Quests  quest.RecordResult   `json:"quests"`
	Streak  *domain.StreakUpdate `json:"streak,omitempty"`
	Boost   quest.BoostResult    `json:"boost"`
	TotalXP int                  `json:"total_xp"`
	TodayXP int                  `json:"today_xp"`
}

// handleRecordEvent is the single ingestion point for gameplay events. One
// event fans out to quest progress, the matching streak, the boost ticket
// and the weekly league score.
func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	var req recordEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.XP < 0 {
		writeError(w, http.StatusBadRequest, domain.ErrInvalidXPAmount.Error())
		return
	}
	now := s.now()

	quests, err := s.quests.RecordEvent(domain.QuestEvent{Type: req.Type, LessonID: req.LessonID}, now)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownEventType) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	metrics.EventsRecorded.WithLabelValues(string(req.Type)).Inc()

	resp := recordEventResponse{Quests: quests}

	switch req.Type {
	case domain.EventLessonComplete:
		update, err := s.streaks.RecordStudy(now)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Streak = &update
	case domain.EventJournalSubmit:
		update, err := s.streaks.RecordAction(now)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Streak = &update
	}

	if req.XP > 0 {
		boost, err := s.quests.ApplyBoost(req.XP, now)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Boost = boost

		earned := req.XP + boost.BonusXP
		data, err := s.streaks.AddXP(earned, now)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.TotalXP = data.TotalXP
		resp.TodayXP = data.TodayXP

		// League credit is best-effort: the ranking authority being down
		// must not lose the local XP write. Failed writes go on the retry
		// queue when one is wired.
		if err := s.leagues.AddWeeklyXP(s.userID, earned, now); err == nil {
			_ = s.leagues.SyncTotalXP(s.userID, data.TotalXP)
		} else if s.retry != nil {
			userID, totalXP := s.userID, data.TotalXP
			s.retry.Enqueue("league_weekly_xp", func() error {
				// Resolve the week at retry time: a backoff can cross a
				// week boundary and the credit belongs to the current one.
				if err := s.leagues.AddWeeklyXP(userID, earned, s.now()); err != nil {
					return err
				}
				return s.leagues.SyncTotalXP(userID, totalXP)
			})
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLevel(w http.ResponseWriter, r *http.Request) {
	data, err := s.streaks.Status(s.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, domain.LevelStatusFor(data.TotalXP))
}

// ─── Quests ─────────────────────────────────────────────────────────────────

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	board, err := s.quests.Board(s.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *Server) handleClaimQuest(w http.ResponseWriter, r *http.Request) {
	result, err := s.quests.ClaimQuest(chi.URLParam(r, "id"), s.now())
	if err != nil {
		if errors.Is(err, domain.ErrUnknownQuest) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleClaimBundle(w http.ResponseWriter, r *http.Request) {
	period := domain.QuestPeriod(chi.URLParam(r, "period"))
	result, err := s.quests.ClaimBundle(period, s.now())
	if err != nil {
		if errors.Is(err, domain.ErrUnknownPeriod) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if result.FreezeGranted {
		if _, err := s.streaks.AddFreezes(1, s.now()); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAutoClaim(w http.ResponseWriter, r *http.Request) {
	result, err := s.quests.AutoClaim(s.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, b := range result.Bundles {
		if b.FreezeGranted {
			if _, err := s.streaks.AddFreezes(1, s.now()); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
	}
	writeJSON(w, http.StatusOK, result)
}

// ─── Streaks ────────────────────────────────────────────────────────────────

func (s *Server) handleStreakStatus(w http.ResponseWriter, r *http.Request) {
	data, err := s.streaks.Status(s.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleStudyRisk(w http.ResponseWriter, r *http.Request) {
	risk, err := s.streaks.StudyRisk(s.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, risk)
}

type addFreezesRequest struct {
	Count int `json:"count"`
}

func (s *Server) handleAddFreezes(w http.ResponseWriter, r *http.Request) {
	var req addFreezesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Count <= 0 {
		writeError(w, http.StatusBadRequest, "count must be positive")
		return
	}
	balance, err := s.streaks.AddFreezes(req.Count, s.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"freezes_remaining": balance})
}

func (s *Server) handleUseFreeze(w http.ResponseWriter, r *http.Request) {
	used, balance, err := s.streaks.UseFreeze(s.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"used":              used,
		"freezes_remaining": balance,
	})
}

func (s *Server) handleRecoveryStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.streaks.RecoveryMission(s.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type recoveryClaimRequest struct {
	PreviousLastActionDate string `json:"previous_last_action_date"`
	PreviousStreak         int    `json:"previous_streak"`
}

func (s *Server) handleRecoveryClaim(w http.ResponseWriter, r *http.Request) {
	var req recoveryClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	result, err := s.streaks.ClaimRecovery(req.PreviousLastActionDate, req.PreviousStreak, s.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGuardStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.streaks.StreakGuard(s.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleGuardSave(w http.ResponseWriter, r *http.Request) {
	result, err := s.streaks.SaveGuard(s.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ─── Leagues ────────────────────────────────────────────────────────────────

func (s *Server) handleMyLeague(w http.ResponseWriter, r *http.Request) {
	info, err := s.leagues.MyLeague(s.userID, s.now())
	if err != nil {
		if errors.Is(err, domain.ErrLeagueNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleJoinLeague(w http.ResponseWriter, r *http.Request) {
	info, err := s.leagues.EnsureJoined(s.userID, s.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleBoundary(w http.ResponseWriter, r *http.Request) {
	status, err := s.leagues.Boundary(s.userID, s.now())
	if err != nil {
		if errors.Is(err, domain.ErrLeagueNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"boundary": status})
}

func (s *Server) handleSettleWeek(w http.ResponseWriter, r *http.Request) {
	summary, err := s.leagues.SettleWeek(s.now())
	if err != nil {
		if errors.Is(err, domain.ErrWeekUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handlePendingReward(w http.ResponseWriter, r *http.Request) {
	reward, err := s.leagues.PendingReward(s.userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reward": reward})
}

type claimRewardRequest struct {
	RewardID string `json:"reward_id"`
}

func (s *Server) handleClaimReward(w http.ResponseWriter, r *http.Request) {
	var req claimRewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	reward, err := s.leagues.ClaimReward(req.RewardID)
	if err != nil {
		if errors.Is(err, domain.ErrRewardNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reward)
}

// ─── Experiments ────────────────────────────────────────────────────────────

func (s *Server) handleAssignment(w http.ResponseWriter, r *http.Request) {
	assignment := s.experiments.Assignment(s.userID, chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, assignment)
}

func (s *Server) handleExposure(w http.ResponseWriter, r *http.Request) {
	assignment := s.experiments.RecordExposure(s.userID, chi.URLParam(r, "id"), s.now())
	writeJSON(w, http.StatusOK, assignment)
}
