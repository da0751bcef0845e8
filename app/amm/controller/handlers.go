package controller

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/canopy-network/liquidityx/pkg/accounting"
)

type accountRequest struct {
	Account string `json:"account" validate:"required,max=69"`
	// Memo is accepted from older clients and ignored; the account id is the deposit memo.
	Memo    string `json:"memo,omitempty" validate:"max=64"`
}

// decode reads a JSON body into dst and validates its struct tags.
func (c *Controller) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", accounting.ErrValidation, err)
	}
	if err := c.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", accounting.ErrValidation, err)
	}
	return nil
}

// HandleAccount finds or creates the depositor account whose id is the deposit memo.
func (c *Controller) HandleAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := c.decode(w, r, &req); err != nil {
		c.writeError(w, r, err, 0)
		return
	}
	account, created, err := c.App.Ledger.Account(r.Context(), req.Account)
	if err != nil {
		c.writeError(w, r, err, 0)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, account)
}

func (c *Controller) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	var req accounting.DepositRequest
	if err := c.decode(w, r, &req); err != nil {
		c.writeError(w, r, err, 0)
		return
	}
	res, err := c.App.Ledger.Deposit(r.Context(), req)
	c.writeSettlement(w, r, res, err)
}

func (c *Controller) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req accounting.WithdrawRequest
	if err := c.decode(w, r, &req); err != nil {
		c.writeError(w, r, err, 0)
		return
	}
	res, err := c.App.Ledger.Withdraw(r.Context(), req)
	c.writeSettlement(w, r, res, err)
}

func (c *Controller) writeSettlement(w http.ResponseWriter, r *http.Request, res *accounting.Result, err error) {
	if err != nil {
		var chargeID int64
		if res != nil && res.Charge != nil {
			chargeID = res.Charge.ID
		}
		c.writeError(w, r, err, chargeID)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (c *Controller) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := c.App.Ledger.Stats(r.Context(), r.URL.Query().Get("account"))
	if err != nil {
		c.writeError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": stats})
}
