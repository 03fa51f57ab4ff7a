package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jamiecoded/slotsure/internal/appointment"
	redisclient "github.com/jamiecoded/slotsure/internal/redis"
)

type CancelAppointmentResponse struct {
	Appointment AppointmentResponse `json:"appointment"`
	Proposal    *ProposalResponse   `json:"recovery_proposal,omitempty"`
}

func clinicFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	clinicID, ok := GetClinicID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no clinic in session")
		return uuid.Nil, false
	}
	return clinicID, true
}

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, ok := clinicFromRequest(w, r)
		if !ok {
			return
		}

		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.PatientName == "" {
			writeError(w, http.StatusBadRequest, "invalid_patient_name", "patient_name is required")
			return
		}
		if req.AppointmentTime.IsZero() {
			writeError(w, http.StatusBadRequest, "invalid_appointment_time", "appointment_time is required")
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), clinicID, appointment.CreateAppointmentInput{
			PatientName:     req.PatientName,
			PatientEmail:    optional(req.PatientEmail),
			Service:         optional(req.Service),
			AppointmentTime: req.AppointmentTime,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, ok := clinicFromRequest(w, r)
		if !ok {
			return
		}

		appts, err := svc.ListAppointments(r.Context(), clinicID)
		if err != nil && appts == nil {
			handleServiceError(w, err)
			return
		}
		// A failed at-risk escalation leaves its record unchanged in the
		// listing; the engine already logged it.

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func transitionAppointmentHandler(svc *appointment.Service, action appointment.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, ok := clinicFromRequest(w, r)
		if !ok {
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		switch action {
		case appointment.ActionCancel:
			appt, proposal, err := svc.CancelAppointment(r.Context(), clinicID, id)
			if err != nil {
				handleServiceError(w, err)
				return
			}
			resp := CancelAppointmentResponse{Appointment: toAppointmentResponse(appt)}
			if proposal != nil {
				p := toProposalResponse(proposal)
				resp.Proposal = &p
			}
			writeJSON(w, http.StatusOK, resp)

		case appointment.ActionConfirm:
			appt, err := svc.ConfirmAppointment(r.Context(), clinicID, id)
			if err != nil {
				handleServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, toAppointmentResponse(appt))

		case appointment.ActionComplete:
			appt, err := svc.CompleteAppointment(r.Context(), clinicID, id)
			if err != nil {
				handleServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, toAppointmentResponse(appt))

		default:
			writeError(w, http.StatusBadRequest, "invalid_action", "unknown action")
		}
	}
}

func listWaitlistHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, ok := clinicFromRequest(w, r)
		if !ok {
			return
		}

		entries, err := svc.ListWaitlist(r.Context(), clinicID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]WaitlistEntryResponse, 0, len(entries))
		for i := range entries {
			resp = append(resp, toWaitlistResponse(&entries[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func addWaitlistHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, ok := clinicFromRequest(w, r)
		if !ok {
			return
		}

		var req AddWaitlistRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.PatientName == "" {
			writeError(w, http.StatusBadRequest, "invalid_patient_name", "patient_name is required")
			return
		}
		if req.DesiredTime.IsZero() {
			writeError(w, http.StatusBadRequest, "invalid_desired_time", "desired_time is required")
			return
		}

		entry, err := svc.AddWaitlistEntry(r.Context(), clinicID, appointment.AddWaitlistInput{
			PatientName:  req.PatientName,
			PatientEmail: optional(req.PatientEmail),
			DesiredTime:  req.DesiredTime,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toWaitlistResponse(entry))
	}
}

func removeWaitlistHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, ok := clinicFromRequest(w, r)
		if !ok {
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_waitlist_id", "id must be a valid UUID")
			return
		}

		if err := svc.RemoveWaitlistEntry(r.Context(), clinicID, id); err != nil {
			handleServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func recoveryProposalHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, ok := clinicFromRequest(w, r)
		if !ok {
			return
		}

		proposal, found := svc.RecoveryProposal(clinicID)
		if !found {
			writeError(w, http.StatusNotFound, "no_proposal", "no recovery proposal pending")
			return
		}

		writeJSON(w, http.StatusOK, toProposalResponse(proposal))
	}
}

func promoteHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, ok := clinicFromRequest(w, r)
		if !ok {
			return
		}

		promoted, err := svc.ApprovePromotion(r.Context(), clinicID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(promoted))
	}
}

func discardProposalHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, ok := clinicFromRequest(w, r)
		if !ok {
			return
		}

		svc.DiscardProposal(clinicID)
		w.WriteHeader(http.StatusNoContent)
	}
}

func resolveTokenHandler(gw *appointment.ConfirmationGateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := gw.Resolve(r.Context(), chi.URLParam(r, "token"))
		if err != nil {
			handlePublicError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toConfirmationResponse(appt))
	}
}

func tokenActionHandler(gw *appointment.ConfirmationGateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TokenActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := gw.Act(r.Context(), chi.URLParam(r, "token"), appointment.Action(req.Action))
		if err != nil {
			handlePublicError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toConfirmationResponse(appt))
	}
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", "this time slot is already booked, pick another time")
	case errors.Is(err, appointment.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, appointment.ErrPartialPromotion):
		writeError(w, http.StatusBadGateway, "promotion_partial_failure", err.Error())
	case errors.Is(err, appointment.ErrNoProposal):
		writeError(w, http.StatusNotFound, "no_proposal", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", "appointment not found")
	case errors.Is(err, appointment.ErrWaitlistEntryNotFound):
		writeError(w, http.StatusNotFound, "waitlist_entry_not_found", "waitlist entry not found")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "operation failed, it is safe to retry")
	}
}

// handlePublicError keeps the token surface uniform: every unresolvable
// token is the same 404, no matter why it failed to resolve.
func handlePublicError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrTokenNotFound):
		writeError(w, http.StatusNotFound, "not_found", "invalid or expired link")
	case errors.Is(err, appointment.ErrNotPermitted):
		writeError(w, http.StatusForbidden, "not_permitted", "this action is not available for the appointment")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "operation failed, it is safe to retry")
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
