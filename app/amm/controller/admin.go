package controller

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/canopy-network/liquidityx/pkg/accounting"
	"github.com/canopy-network/liquidityx/pkg/market"
	"github.com/canopy-network/liquidityx/pkg/offers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const defaultListLimit = 100

func queryLimit(r *http.Request) int {
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n <= 1000 {
		return n
	}
	return defaultListLimit
}

// HandlePendingCharges lists charges never submitted and charges whose submission failed fatally.
func (c *Controller) HandlePendingCharges(w http.ResponseWriter, r *http.Request) {
	pending, failed, err := c.App.Ledger.Pending(r.Context(), queryLimit(r))
	if err != nil {
		c.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": pending, "failed": failed})
}

// HandleResubmit replays a charge with its original channel, sequence and memo.
func (c *Controller) HandleResubmit(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		c.writeError(w, r, fmt.Errorf("%w: charge id", accounting.ErrValidation), 0)
		return
	}
	c.App.Logger.Info("manual resubmit", zap.Int64("charge_id", id), zap.String("user", c.currentUser(r)))

	res, err := c.App.Ledger.ResubmitByID(r.Context(), id)
	c.writeSettlement(w, r, res, err)
}

func (c *Controller) market(w http.ResponseWriter, r *http.Request) (market.Market, bool) {
	id := mux.Vars(r)["id"]
	m, ok := c.App.Markets.ByID(id)
	if !ok {
		c.writeError(w, r, fmt.Errorf("%w: market %s", accounting.ErrNotFound, id), 0)
	}
	return m, ok
}

// HandlePlan returns the offer changes a rebalance of the market would submit.
func (c *Controller) HandlePlan(w http.ResponseWriter, r *http.Request) {
	m, ok := c.market(w, r)
	if !ok {
		return
	}
	plan, err := c.App.Rebalancer.Plan(r.Context(), m)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// HandleRebalance enqueues a rebalance trigger subject to the usual debounce.
func (c *Controller) HandleRebalance(w http.ResponseWriter, r *http.Request) {
	m, ok := c.market(w, r)
	if !ok {
		return
	}
	decision := c.App.Scheduler.Enqueue(m)
	c.App.Logger.Info("manual rebalance",
		zap.String("market", m.ID),
		zap.String("decision", string(decision)),
		zap.String("user", c.currentUser(r)))
	writeJSON(w, http.StatusAccepted, map[string]string{"market": m.ID, "decision": string(decision)})
}

// HandleEvents returns the latest settlement notifications from the Redis journal.
// ?kind=rebalance reads the rebalance journal instead.
func (c *Controller) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if c.App.RedisClient == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "redis disabled"})
		return
	}
	channel := accounting.SettlementChannel
	if r.URL.Query().Get("kind") == "rebalance" {
		channel = offers.RebalanceChannel
	}
	entries, err := c.App.RedisClient.Journal(r.Context(), channel, int64(queryLimit(r)))
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{"id": e.ID, "payload": e.Values["payload"]})
	}
	writeJSON(w, http.StatusOK, out)
}
