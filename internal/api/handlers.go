package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-core/internal/appointment"
)

const dateLayout = "2006-01-02"

// query collects typed query parameters and remembers the first bad one.
type query struct {
	r   *http.Request
	bad string
}

func (q *query) uuidParam(name string) *uuid.UUID {
	raw := q.r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		q.fail(name)
		return nil
	}
	return &id
}

func (q *query) timeParam(name string) *time.Time {
	raw := q.r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		q.fail(name)
		return nil
	}
	return &t
}

func (q *query) intParam(name string) int {
	raw := q.r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		q.fail(name)
		return 0
	}
	return n
}

func (q *query) strParam(name string) string {
	return q.r.URL.Query().Get(name)
}

func (q *query) fail(name string) {
	if q.bad == "" {
		q.bad = name
	}
}

// ok writes a 400 for the first bad parameter.
func (q *query) ok(w http.ResponseWriter) bool {
	if q.bad == "" {
		return true
	}
	writeError(w, http.StatusBadRequest, "invalid_"+q.bad, "query parameter "+q.bad+" is malformed")
	return false
}

// availableSlotsHandler serves the free grid for a day. Slots earlier than
// the server clock are left out because Book would reject them, so today
// returns only upcoming slots and past dates return none.
func availableSlotsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		raw := r.URL.Query().Get("date")
		date, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.AvailableSlots(r.Context(), actorFrom(r.Context()), doctorID, date)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, SlotsResponse{DoctorID: doctorID, Date: raw, Slots: slots})
	}
}

func bookAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.Book(r.Context(), actorFrom(r.Context()), appointment.BookRequest{
			DoctorID:    req.DoctorID,
			PatientID:   req.PatientID,
			ScheduledAt: req.ScheduledAt,
			Duration:    time.Duration(req.DurationMinutes) * time.Minute,
			Reason:      req.Reason,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := &query{r: r}
		f := appointment.ListFilter{
			DoctorID:  q.uuidParam("doctor_id"),
			PatientID: q.uuidParam("patient_id"),
			From:      q.timeParam("from"),
			To:        q.timeParam("to"),
			Limit:     q.intParam("limit"),
			Offset:    q.intParam("offset"),
		}
		if s := q.strParam("status"); s != "" {
			status := appointment.AppointmentStatus(s)
			if !status.Valid() {
				q.fail("status")
			}
			f.Status = &status
		}
		if !q.ok(w) {
			return
		}

		list, err := svc.List(r.Context(), actorFrom(r.Context()), f)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(list))
		for i := range list {
			resp = append(resp, toAppointmentResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), actorFrom(r.Context()), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req RescheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.Reschedule(r.Context(), actorFrom(r.Context()), id, req.ScheduledAt)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.Cancel(r.Context(), actorFrom(r.Context()), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func advanceAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req AdvanceRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.Advance(r.Context(), actorFrom(r.Context()), id, appointment.AppointmentStatus(req.Status))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func updateNotesHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		var req NotesRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.UpdateNotes(r.Context(), actorFrom(r.Context()), id, req.Notes)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func appointmentDocumentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		file, err := svc.Document(r.Context(), actorFrom(r.Context()), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeFile(w, file)
	}
}
