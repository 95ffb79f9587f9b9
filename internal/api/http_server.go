package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/roomstay-booking-go/internal/application"
	"github.com/RodolfoDevApp/roomstay-booking-go/internal/domain"
)

const actorHeader = "X-Actor-ID"

// Server is the HTTP adapter over the booking and horizon services.
type Server struct {
	bookings *application.BookingService
	horizon  *application.HorizonService
	logger   *zap.Logger
}

func NewServer(
	bookings *application.BookingService,
	horizon *application.HorizonService,
	logger *zap.Logger,
) *Server {
	return &Server{bookings: bookings, horizon: horizon, logger: logger}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), actorMiddleware())

	r.GET("/health", s.handleHealth)
	r.GET("/swagger.json", s.handleSwaggerJson)

	api := r.Group("/api")
	api.GET("/availability", s.handleCheckAvailability)

	api.GET("/bookings", s.handleListBookings)
	api.POST("/bookings", s.handleCreateBooking)
	api.GET("/bookings/:id", s.handleGetBooking)
	api.PATCH("/bookings/:id", s.handleModifyBooking)
	api.POST("/bookings/:id/cancel", s.handleCancelBooking)
	api.POST("/bookings/:id/check-in", s.handleCheckIn)
	api.POST("/bookings/:id/check-out", s.handleCheckOut)
	api.POST("/bookings/:id/payments", s.handleRecordPayment)

	api.POST("/resource-types/:id/horizon", s.handleGenerateHorizon)
	api.DELETE("/resource-types/:id", s.handleDeleteResourceType)
	api.GET("/resource-types/:id/capacity", s.handleListCapacity)
	api.PUT("/resource-types/:id/prices", s.handleSetPrice)

	api.GET("/customers/:id", s.handleGetCustomer)

	api.GET("/audit", s.handleListAudit)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// actorMiddleware attributes audit entries to the caller named in X-Actor-ID.
func actorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor := c.GetHeader(actorHeader); actor != "" {
			c.Request = c.Request.WithContext(domain.WithActor(c.Request.Context(), actor))
		}
		c.Next()
	}
}

// GET /health
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

// GET /swagger.json
func (s *Server) handleSwaggerJson(c *gin.Context) {
	c.Data(http.StatusOK, "application/json", []byte(openAPISpec))
}

// GET /api/availability?resourceTypeId=&checkIn=&checkOut=&quantity=
func (s *Server) handleCheckAvailability(c *gin.Context) {
	rtID, err := strconv.ParseInt(c.Query("resourceTypeId"), 10, 64)
	if err != nil {
		badRequest(c, "resourceTypeId is invalid")
		return
	}
	checkIn, checkOut, ok := parseSpan(c, c.Query("checkIn"), c.Query("checkOut"))
	if !ok {
		return
	}
	qty, err := strconv.Atoi(c.DefaultQuery("quantity", "1"))
	if err != nil {
		badRequest(c, "quantity is invalid")
		return
	}

	res, err := s.bookings.CheckAvailability(c.Request.Context(), rtID, checkIn, checkOut, qty)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAvailabilityResponse(res))
}

// POST /api/bookings
func (s *Server) handleCreateBooking(c *gin.Context) {
	var in createBookingRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	checkIn, checkOut, ok := parseSpan(c, in.CheckIn, in.CheckOut)
	if !ok {
		return
	}

	lines := make([]domain.LineRequest, 0, len(in.Lines))
	for _, l := range in.Lines {
		lines = append(lines, domain.LineRequest{ResourceTypeID: l.ResourceTypeID, Quantity: l.Quantity})
	}

	b, err := s.bookings.Create(c.Request.Context(), domain.CreateBookingInput{
		Customer: domain.CustomerInfo{
			Name:          in.Customer.Name,
			Email:         in.Customer.Email,
			Phone:         in.Customer.Phone,
			Address:       in.Customer.Address,
			IDProofType:   in.Customer.IDProofType,
			IDProofNumber: in.Customer.IDProofNumber,
		},
		Lines:       lines,
		CheckIn:     checkIn,
		CheckOut:    checkOut,
		AmountPaid:  in.AmountPaid,
		Notes:       in.Notes,
		ManualTotal: in.TotalAmount,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toBookingResponse(b))
}

// GET /api/bookings/:id
func (s *Server) handleGetBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	b, err := s.bookings.GetBooking(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

// PATCH /api/bookings/:id
func (s *Server) handleModifyBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var in modifyBookingRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}

	mod := domain.ModifyBookingInput{
		BookingID:         id,
		LineItemID:        in.LineItemID,
		NewResourceTypeID: in.ResourceTypeID,
		NewQuantity:       in.Quantity,
	}
	if in.CheckIn != nil {
		d, err := domain.ParseDate(*in.CheckIn)
		if err != nil {
			badRequest(c, "checkIn must be YYYY-MM-DD")
			return
		}
		mod.NewCheckIn = &d
	}
	if in.CheckOut != nil {
		d, err := domain.ParseDate(*in.CheckOut)
		if err != nil {
			badRequest(c, "checkOut must be YYYY-MM-DD")
			return
		}
		mod.NewCheckOut = &d
	}

	b, err := s.bookings.Modify(c.Request.Context(), mod)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

// POST /api/bookings/:id/cancel
func (s *Server) handleCancelBooking(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var in cancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	b, err := s.bookings.Cancel(c.Request.Context(), id, in.Reason)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

// POST /api/bookings/:id/check-in
func (s *Server) handleCheckIn(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	b, err := s.bookings.CheckIn(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

// POST /api/bookings/:id/check-out
func (s *Server) handleCheckOut(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	b, err := s.bookings.CheckOut(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

// POST /api/bookings/:id/payments
func (s *Server) handleRecordPayment(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var in paymentRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	b, err := s.bookings.RecordPayment(c.Request.Context(), id, in.Amount)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

// POST /api/resource-types/:id/horizon
func (s *Server) handleGenerateHorizon(c *gin.Context) {
	rtID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "resource type id is invalid")
		return
	}
	var in horizonRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	ctx := c.Request.Context()
	var created int
	if in.From != "" || in.To != "" {
		from, to, ok := parseSpan(c, in.From, in.To)
		if !ok {
			return
		}
		created, err = s.horizon.GenerateHorizonRange(ctx, rtID, from, to, in.Price)
	} else {
		created, err = s.horizon.GenerateHorizon(ctx, rtID, in.DaysAhead)
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, horizonResponse{ResourceTypeID: rtID, RecordsCreated: created})
}

// DELETE /api/resource-types/:id
func (s *Server) handleDeleteResourceType(c *gin.Context) {
	rtID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "resource type id is invalid")
		return
	}
	if err := s.horizon.DeleteResourceType(c.Request.Context(), rtID); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/bookings?status=&customerId=&stayOn=&limit=&offset=
func (s *Server) handleListBookings(c *gin.Context) {
	f := domain.BookingFilter{Limit: 50}
	if v := c.Query("status"); v != "" {
		st := domain.BookingStatus(v)
		f.Status = &st
	}
	if v := c.Query("customerId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			badRequest(c, "customerId is invalid")
			return
		}
		f.CustomerID = &id
	}
	if v := c.Query("stayOn"); v != "" {
		d, err := domain.ParseDate(v)
		if err != nil {
			badRequest(c, "stayOn must be YYYY-MM-DD")
			return
		}
		f.StayOn = &d
	}
	var ok bool
	if f.Limit, f.Offset, ok = paging(c, f.Limit); !ok {
		return
	}

	bookings, err := s.bookings.ListBookings(c.Request.Context(), f)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, toBookingResponse(b))
	}
	c.JSON(http.StatusOK, out)
}

// GET /api/customers/:id
func (s *Server) handleGetCustomer(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "customer id is invalid")
		return
	}
	cust, err := s.bookings.GetCustomer(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCustomerResponse(cust))
}

// GET /api/resource-types/:id/capacity?from=&to=
func (s *Server) handleListCapacity(c *gin.Context) {
	rtID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "resource type id is invalid")
		return
	}
	from, to, ok := parseSpan(c, c.Query("from"), c.Query("to"))
	if !ok {
		return
	}
	recs, err := s.horizon.ListCapacity(c.Request.Context(), rtID, from, to)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCapacityResponse(rtID, from, to, recs))
}

// PUT /api/resource-types/:id/prices
func (s *Server) handleSetPrice(c *gin.Context) {
	rtID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "resource type id is invalid")
		return
	}
	var in priceRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	from, to, ok := parseSpan(c, in.From, in.To)
	if !ok {
		return
	}
	if err := s.horizon.SetPrice(c.Request.Context(), rtID, from, to, in.Price); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/audit?entityType=&entityId=&actorId=&action=&limit=&offset=
func (s *Server) handleListAudit(c *gin.Context) {
	f := domain.AuditFilter{Limit: 50}
	if v := c.Query("entityType"); v != "" {
		et := domain.EntityType(v)
		f.EntityType = &et
	}
	if v := c.Query("entityId"); v != "" {
		f.EntityID = &v
	}
	if v := c.Query("actorId"); v != "" {
		f.ActorID = &v
	}
	if v := c.Query("action"); v != "" {
		a := domain.AuditAction(v)
		f.Action = &a
	}
	var ok bool
	if f.Limit, f.Offset, ok = paging(c, f.Limit); !ok {
		return
	}

	entries, err := s.bookings.ListAuditEntries(c.Request.Context(), f)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toAuditEntryResponse(e))
	}
	c.JSON(http.StatusOK, out)
}

func paging(c *gin.Context, limit int) (int, int, bool) {
	offset := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(c, "limit must be a positive integer")
			return 0, 0, false
		}
		limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(c, "offset must be a non-negative integer")
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

func bookingID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "booking id is invalid")
		return uuid.Nil, false
	}
	return id, true
}

func parseSpan(c *gin.Context, in, out string) (time.Time, time.Time, bool) {
	checkIn, err := domain.ParseDate(in)
	if err != nil {
		badRequest(c, "check-in must be YYYY-MM-DD")
		return time.Time{}, time.Time{}, false
	}
	checkOut, err := domain.ParseDate(out)
	if err != nil {
		badRequest(c, "check-out must be YYYY-MM-DD")
		return time.Time{}, time.Time{}, false
	}
	return checkIn, checkOut, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: msg, Code: "VALIDATION"})
}

// writeError maps domain errors to status codes. Invariant violations are
// bookkeeping bugs: logged at Error and never shown in detail to the caller.
func (s *Server) writeError(c *gin.Context, err error) {
	resp := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	var unavailable *domain.CapacityUnavailableError
	var missing *domain.CapacityRecordMissingError
	switch {
	case errors.Is(err, domain.ErrInvariantViolation):
		s.logger.Error("invariant violation", zap.Error(err), zap.String("path", c.FullPath()))
		resp = errorResponse{Error: "internal error", Code: "INVARIANT_VIOLATION"}
	case errors.As(err, &unavailable):
		status, resp.Code = http.StatusConflict, "CAPACITY_UNAVAILABLE"
		date := domain.FormatDate(unavailable.Date)
		resp.ResourceTypeID = &unavailable.ResourceTypeID
		resp.Date = &date
		resp.Requested = &unavailable.Requested
		resp.Available = &unavailable.Available
	case errors.As(err, &missing):
		status, resp.Code = http.StatusConflict, "CAPACITY_RECORD_MISSING"
		resp.ResourceTypeID = &missing.ResourceTypeID
		for _, d := range missing.Dates {
			resp.MissingDates = append(resp.MissingDates, domain.FormatDate(d))
		}
	case errors.Is(err, domain.ErrValidation):
		status, resp.Code = http.StatusBadRequest, "VALIDATION"
	case errors.Is(err, domain.ErrInvalidDateRange):
		status, resp.Code = http.StatusBadRequest, "INVALID_DATE_RANGE"
	case errors.Is(err, domain.ErrResourceTypeNotFound):
		status, resp.Code = http.StatusNotFound, "RESOURCE_TYPE_NOT_FOUND"
	case errors.Is(err, domain.ErrBookingNotFound):
		status, resp.Code = http.StatusNotFound, "BOOKING_NOT_FOUND"
	case errors.Is(err, domain.ErrCustomerNotFound):
		status, resp.Code = http.StatusNotFound, "CUSTOMER_NOT_FOUND"
	case errors.Is(err, domain.ErrAlreadyCancelled):
		status, resp.Code = http.StatusConflict, "ALREADY_CANCELLED"
	case errors.Is(err, domain.ErrBookingNotModifiable):
		status, resp.Code = http.StatusConflict, "BOOKING_NOT_MODIFIABLE"
	case errors.Is(err, domain.ErrResourceTypeInUse):
		status, resp.Code = http.StatusConflict, "RESOURCE_TYPE_IN_USE"
	default:
		s.logger.Error("request failed", zap.Error(err), zap.String("path", c.FullPath()))
		resp = errorResponse{Error: "internal error", Code: "INTERNAL"}
	}
	c.JSON(status, resp)
}
