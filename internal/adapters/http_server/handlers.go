package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"tour_booking/internal/app"
	"tour_booking/internal/domain"
)

const maxBodyBytes = 1 << 20

type Handlers struct {
	Tours    *app.TourQueryService
	Bookings *app.BookingService
	Reviews  *app.ReviewService
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Get("/v1/tours/{id}", h.getTour)

	s.mux.Route("/v1/bookings", func(r chi.Router) {
		r.Use(Identity)
		r.Post("/", h.createBooking)
		r.Get("/", h.listBookings)
		r.Get("/{id}", h.getBooking)
		r.Put("/{id}", h.updateBooking)
		r.Post("/{id}/cancel", h.cancelBooking)
		r.Post("/{id}/confirm", h.confirmBooking)
		r.Post("/{id}/review", h.submitReview)
		r.Put("/{id}/review", h.editReview)
	})
}

// ---- DTOs ----

// bookingDTO renders calendar dates as YYYY-MM-DD.
type bookingDTO struct {
	domain.Booking
	StartDate                string `json:"start_date"`
	EndDate                  string `json:"end_date"`
	FreeCancellationDeadline string `json:"free_cancellation_deadline"`
}

func toDTO(b domain.Booking) bookingDTO {
	return bookingDTO{
		Booking:                  b,
		StartDate:                b.StartDate.Format(domain.DateLayout),
		EndDate:                  b.EndDate().Format(domain.DateLayout),
		FreeCancellationDeadline: b.FreeCancellationDeadline.Format(domain.DateLayout),
	}
}

type listResponse struct {
	Items []bookingDTO `json:"items"`
	Count int          `json:"count"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type cancelResponse struct {
	Booking       bookingDTO   `json:"booking"`
	Fee           domain.Money `json:"fee"`
	Refund        domain.Money `json:"refund"`
	SeatsReleased int          `json:"seats_released"`
}

type confirmResponse struct {
	Message string     `json:"message"`
	Booking bookingDTO `json:"booking"`
}

// ---- handlers ----

func (h *Handlers) getTour(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Tours.GetTour(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, r, err)
		return
	}

	etag, body := calcETagAndBody(resp)
	// If client already has this version, short-circuit.
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write getTour body")
	}
}

func (h *Handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	var cmd app.CreateBookingCmd
	if !decode(w, r, &cmd, false) {
		return
	}
	b, err := h.Bookings.Create(r.Context(), RequesterFrom(r.Context()), cmd)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/bookings/"+b.ID)
	writeJSON(w, http.StatusCreated, toDTO(b))
}

func (h *Handlers) listBookings(w http.ResponseWriter, r *http.Request) {
	bs, err := h.Bookings.List(r.Context(), RequesterFrom(r.Context()))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	out := listResponse{Items: make([]bookingDTO, 0, len(bs)), Count: len(bs)}
	for _, b := range bs {
		out.Items = append(out.Items, toDTO(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) getBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Bookings.View(r.Context(), RequesterFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTO(b))
}

func (h *Handlers) updateBooking(w http.ResponseWriter, r *http.Request) {
	var cmd app.UpdateBookingCmd
	if !decode(w, r, &cmd, false) {
		return
	}
	b, err := h.Bookings.Update(r.Context(), RequesterFrom(r.Context()), chi.URLParam(r, "id"), cmd)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTO(b))
}

func (h *Handlers) cancelBooking(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !decode(w, r, &req, true) {
		return
	}
	res, err := h.Bookings.Cancel(r.Context(), RequesterFrom(r.Context()), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{
		Booking:       toDTO(res.Booking),
		Fee:           res.Fee,
		Refund:        res.Refund,
		SeatsReleased: res.SeatsReleased,
	})
}

func (h *Handlers) confirmBooking(w http.ResponseWriter, r *http.Request) {
	res, err := h.Bookings.Confirm(r.Context(), RequesterFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{Message: res.Message, Booking: toDTO(res.Booking)})
}

func (h *Handlers) submitReview(w http.ResponseWriter, r *http.Request) {
	var cmd app.ReviewCmd
	if !decode(w, r, &cmd, false) {
		return
	}
	rv, err := h.Reviews.Submit(r.Context(), RequesterFrom(r.Context()), chi.URLParam(r, "id"), cmd)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rv)
}

func (h *Handlers) editReview(w http.ResponseWriter, r *http.Request) {
	var cmd app.ReviewCmd
	if !decode(w, r, &cmd, false) {
		return
	}
	rv, err := h.Reviews.Edit(r.Context(), RequesterFrom(r.Context()), chi.URLParam(r, "id"), cmd)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rv)
}

// ---- helpers ----

// decode reads a JSON body into dst. An empty body is accepted when optional.
func decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		writeProblem(w, http.StatusBadRequest, "Invalid body", err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// writeErr maps an error kind to its status class. Internal details stay in the log.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := kind.Status()
	detail := err.Error()
	var de *domain.Error
	if errors.As(err, &de) && de.Msg != "" {
		detail = de.Msg
	}
	if kind == domain.KindInternal {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		detail = "internal error"
	}
	writeProblem(w, status, http.StatusText(status), detail)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}
