package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/bookmate/bookmate/internal/app/domain/reconciliation"
	"github.com/bookmate/bookmate/internal/app/services/books"
	"github.com/bookmate/bookmate/internal/appsscript"
	apperrors "github.com/bookmate/bookmate/internal/errors"
	"github.com/bookmate/bookmate/internal/httputil"
	"github.com/bookmate/bookmate/internal/money"
)

func refresh(r *http.Request) bool {
	switch strings.ToLower(r.URL.Query().Get("refresh")) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.BadRequest(name + " must be an integer")
	}
	return n, nil
}

func (h *handler) period(r *http.Request) (int, time.Month, error) {
	year, err := queryInt(r, "year")
	if err != nil {
		return 0, 0, err
	}
	month, err := queryInt(r, "month")
	if err != nil {
		return 0, 0, err
	}
	return h.app.Books.Period(year, month)
}

// --- P&L ---------------------------------------------------------------------

func (h *handler) pnl(w http.ResponseWriter, r *http.Request) {
	report, err := h.app.Books.PnL(r.Context(), tenantID(r), refresh(r))
	if err != nil {
		h.fail(w, r, string(appsscript.ActionGetPnL), err)
		return
	}
	httputil.WriteData(w, http.StatusOK, report)
}

func (h *handler) propertyPerson(w http.ResponseWriter, r *http.Request) {
	period, err := appsscript.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		h.fail(w, r, "", apperrors.BadRequest(err.Error()))
		return
	}
	shares, err := h.app.Books.PropertyPersonDetails(r.Context(), tenantID(r), period, refresh(r))
	if err != nil {
		h.fail(w, r, string(appsscript.ActionGetPropertyPersonDetails), err)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]interface{}{"period": period, "items": shares})
}

func (h *handler) overheads(w http.ResponseWriter, r *http.Request) {
	period, err := appsscript.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		h.fail(w, r, "", apperrors.BadRequest(err.Error()))
		return
	}
	shares, err := h.app.Books.OverheadDetails(r.Context(), tenantID(r), period, refresh(r))
	if err != nil {
		h.fail(w, r, string(appsscript.ActionGetOverheadExpensesDetails), err)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]interface{}{"period": period, "items": shares})
}

func (h *handler) computedPnL(w http.ResponseWriter, r *http.Request) {
	year, month, err := h.period(r)
	if err != nil {
		h.fail(w, r, "", err)
		return
	}
	computed, err := h.app.Books.ComputePnL(r.Context(), tenantID(r), year, month)
	if err != nil {
		h.fail(w, r, "sheets.read", err)
		return
	}
	httputil.WriteData(w, http.StatusOK, computed)
}

func (h *handler) verifyPnL(w http.ResponseWriter, r *http.Request) {
	year, month, err := h.period(r)
	if err != nil {
		h.fail(w, r, "", err)
		return
	}
	result, err := h.app.Books.VerifyPnL(r.Context(), tenantID(r), year, month)
	if err != nil {
		h.fail(w, r, string(appsscript.ActionGetPnL), err)
		return
	}
	httputil.WriteData(w, http.StatusOK, result)
}

// --- Inbox -------------------------------------------------------------------

func (h *handler) inbox(w http.ResponseWriter, r *http.Request) {
	entries, err := h.app.Books.Inbox(r.Context(), tenantID(r), refresh(r))
	if err != nil {
		h.fail(w, r, string(appsscript.ActionGetInbox), err)
		return
	}
	httputil.WriteData(w, http.StatusOK, entries)
}

func (h *handler) deleteEntry(w http.ResponseWriter, r *http.Request) {
	row, err := strconv.Atoi(mux.Vars(r)["row"])
	if err != nil {
		h.fail(w, r, "", apperrors.BadRequest("row must be an integer"))
		return
	}
	if err := h.app.Books.DeleteEntry(r.Context(), tenantID(r), row); err != nil {
		h.fail(w, r, string(appsscript.ActionDeleteEntry), err)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]interface{}{"deleted": row})
}

// --- Balances ----------------------------------------------------------------

type balanceRequest struct {
	BankName  string       `json:"bankName"`
	Balance   money.Amount `json:"balance"`
	Note      string       `json:"note"`
	Timestamp *time.Time   `json:"timestamp"`
}

func (h *handler) saveBalance(w http.ResponseWriter, r *http.Request) {
	var req balanceRequest
	if err := httputil.DecodeJSON(r.Body, &req); err != nil {
		h.fail(w, r, "", apperrors.BadRequest(err.Error()))
		return
	}
	in := books.BalanceInput{BankName: req.BankName, Balance: req.Balance.Decimal, Note: req.Note}
	if req.Timestamp != nil {
		in.TakenAt = *req.Timestamp
	}
	snap, err := h.app.Books.SaveBalance(r.Context(), tenantID(r), in)
	if err != nil {
		h.fail(w, r, string(appsscript.ActionBalancesAppend), err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, snap)
}

func (h *handler) balanceSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.app.Books.BalanceSummary(r.Context(), tenantID(r), refresh(r))
	if err != nil {
		h.fail(w, r, string(appsscript.ActionBalanceGetSummary), err)
		return
	}
	httputil.WriteData(w, http.StatusOK, summary)
}

func (h *handler) latestBalances(w http.ResponseWriter, r *http.Request) {
	latest, err := h.app.Books.LatestBalances(r.Context(), tenantID(r), refresh(r))
	if err != nil {
		h.fail(w, r, string(appsscript.ActionBalancesGetLatest), err)
		return
	}
	httputil.WriteData(w, http.StatusOK, latest)
}

func (h *handler) snapshots(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, r, "", err)
		return
	}
	snaps, err := h.app.Books.Snapshots(r.Context(), tenantID(r), limit)
	if err != nil {
		h.fail(w, r, "", err)
		return
	}
	httputil.WriteData(w, http.StatusOK, snaps)
}

// --- Accounts, categories, named ranges --------------------------------------

func (h *handler) syncAccounts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Accounts []appsscript.AccountOpening `json:"accounts"`
	}
	if err := httputil.DecodeJSON(r.Body, &req); err != nil {
		h.fail(w, r, "", apperrors.BadRequest(err.Error()))
		return
	}
	synced, err := h.app.Books.SyncAccounts(r.Context(), tenantID(r), req.Accounts)
	if err != nil {
		h.fail(w, r, string(appsscript.ActionAccountsSync), err)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]interface{}{"synced": synced})
}

func (h *handler) categories(w http.ResponseWriter, r *http.Request) {
	lists, err := h.app.Books.Categories(r.Context(), tenantID(r), refresh(r))
	if err != nil {
		h.fail(w, r, "sheets.read", err)
		return
	}
	httputil.WriteData(w, http.StatusOK, lists)
}

func (h *handler) namedRanges(w http.ResponseWriter, r *http.Request) {
	ranges, err := h.app.Books.NamedRanges(r.Context(), tenantID(r), refresh(r))
	if err != nil {
		h.fail(w, r, string(appsscript.ActionListNamedRanges), err)
		return
	}
	httputil.WriteData(w, http.StatusOK, ranges)
}

// --- Workbook ----------------------------------------------------------------

func (h *handler) workbookHealth(w http.ResponseWriter, r *http.Request) {
	report, err := h.app.Books.WorkbookHealth(r.Context(), tenantID(r))
	if err != nil {
		h.fail(w, r, "sheets.read", err)
		return
	}
	httputil.WriteData(w, http.StatusOK, report)
}

func (h *handler) repairWorkbook(w http.ResponseWriter, r *http.Request) {
	repaired, err := h.app.Books.RepairWorkbook(r.Context(), tenantID(r))
	if err != nil {
		h.fail(w, r, "sheets.write", err)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]interface{}{"repaired": repaired})
}

// --- Reconciliation ----------------------------------------------------------

func (h *handler) runReconcile(w http.ResponseWriter, r *http.Request) {
	run, err := h.app.Reconcile.Run(r.Context(), tenantID(r), reconciliation.TriggerManual)
	if err != nil {
		h.fail(w, r, "", err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, run)
}

func (h *handler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, r, "", err)
		return
	}
	runs, err := h.app.Reconcile.Runs(r.Context(), tenantID(r), limit)
	if err != nil {
		h.fail(w, r, "", err)
		return
	}
	httputil.WriteData(w, http.StatusOK, runs)
}

func (h *handler) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.app.Reconcile.GetRun(r.Context(), tenantID(r), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, "", err)
		return
	}
	httputil.WriteData(w, http.StatusOK, run)
}

// --- Audit -------------------------------------------------------------------

func (h *handler) auditLog(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.fail(w, r, "", err)
		return
	}
	entries, err := h.app.Books.AuditLog(r.Context(), tenantID(r), limit)
	if err != nil {
		h.fail(w, r, "", err)
		return
	}
	httputil.WriteData(w, http.StatusOK, entries)
}
