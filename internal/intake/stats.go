package intake

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/purepool/purepool/internal/database"
	"github.com/purepool/purepool/internal/database/postgres"
	"github.com/purepool/purepool/pkg/log"
)

// StatsHandler serves operator-facing miner statistics as JSON. This is
// not part of the mining client protocol.
type StatsHandler struct {
	db     *database.Manager
	logger *log.Logger
}

// NewStatsHandler creates the stats handler.
func NewStatsHandler(db *database.Manager, logger *log.Logger) *StatsHandler {
	return &StatsHandler{db: db, logger: logger.WithComponent("stats")}
}

type minerStatsResponse struct {
	Address         string  `json:"address"`
	Balance         string  `json:"balance"`
	Rating          int     `json:"rating"`
	PercentRatio    string  `json:"percent_ratio"`
	Enabled         bool    `json:"enabled"`
	Hashrate        float64 `json:"hashrate"`
	Solutions24h    int64   `json:"solutions_24h"`
	Rejected24h     int64   `json:"rejected_24h"`
	AcceptedPercent float64 `json:"accepted_percent"`
}

// ServeHTTP answers GET /stats/miner?network=main&address=B...
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	network := r.URL.Query().Get("network")
	address := r.URL.Query().Get("address")
	if network == "" || address == "" {
		http.Error(w, "network and address are required", http.StatusBadRequest)
		return
	}

	stats, err := h.db.GetMinerWithStats(r.Context(), network, address)
	if err != nil {
		if errors.Is(err, postgres.ErrMinerNotFound) {
			http.Error(w, "miner not found", http.StatusNotFound)
			return
		}
		h.logger.WithError(err).Error("failed to load miner stats", "network", network)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := &minerStatsResponse{
		Address:         stats.Miner.Address,
		Balance:         stats.Miner.Balance.String(),
		Rating:          stats.Miner.Rating,
		PercentRatio:    stats.Miner.PercentRatio.String(),
		Enabled:         stats.Miner.Enabled,
		Hashrate:        stats.Hashrate,
		Solutions24h:    stats.SolutionStats.Accepted,
		Rejected24h:     stats.SolutionStats.Rejected,
		AcceptedPercent: stats.SolutionStats.AcceptedPercent,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.WithError(err).Error("failed to encode stats response")
	}
}
