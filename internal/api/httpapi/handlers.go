package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/BearBump/TripBox/internal/models"
	"github.com/BearBump/TripBox/internal/services/view"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

func (a *API) listBookings(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, errMissingToken)
		return
	}
	filter, ok := view.ParseFilter(r.URL.Query().Get("kind"))
	if !ok {
		writeError(w, http.StatusBadRequest, errors.Errorf("unknown kind %q", r.URL.Query().Get("kind")))
		return
	}

	page, err := a.bookings.List(r.Context(), token, filter)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) listBookingOutcomes(w http.ResponseWriter, r *http.Request) {
	if a.outcomes == nil {
		writeError(w, http.StatusNotImplemented, errNoLedger)
		return
	}
	kind := models.ParseKind(chi.URLParam(r, "kind"))
	if !kind.Known() {
		writeError(w, http.StatusBadRequest, errors.Errorf("unknown kind %q", chi.URLParam(r, "kind")))
		return
	}
	out, err := a.outcomes.ListForBooking(r.Context(), kind, chi.URLParam(r, "bookingID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (a *API) openPayment(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, errMissingToken)
		return
	}
	var in models.PaymentCreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode body"))
		return
	}

	snap, err := a.payments.Open(r.Context(), token, in)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (a *API) attachPayment(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, errMissingToken)
		return
	}
	snap, err := a.payments.Attach(r.Context(), token, chi.URLParam(r, "paymentID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) getPayment(w http.ResponseWriter, r *http.Request) {
	snap, err := a.payments.Get(chi.URLParam(r, "paymentID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) refreshPayment(w http.ResponseWriter, r *http.Request) {
	snap, err := a.payments.Refresh(r.Context(), chi.URLParam(r, "paymentID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) qrUnavailable(w http.ResponseWriter, r *http.Request) {
	snap, err := a.payments.MarkQRUnavailable(chi.URLParam(r, "paymentID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) closePayment(w http.ResponseWriter, r *http.Request) {
	if !a.payments.Close(chi.URLParam(r, "paymentID")) {
		writeError(w, http.StatusNotFound, errSessionGone)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getOutcome(w http.ResponseWriter, r *http.Request) {
	if a.outcomes == nil {
		writeError(w, http.StatusNotImplemented, errNoLedger)
		return
	}
	o, err := a.outcomes.Get(r.Context(), chi.URLParam(r, "paymentID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
