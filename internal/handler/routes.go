package handler

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the pitch API under api. writeMiddleware wraps the
// booking creation endpoint only.
func RegisterRoutes(api gin.IRouter, pitch *PitchHandler, booking *BookingHandler, writeMiddleware ...gin.HandlerFunc) {
	p := api.Group("/pitch/:id")
	{
		p.GET("/constraints", pitch.GetConstraints)
		p.GET("/timeslots", pitch.GetTimeslots)
		p.PUT("/schedule", pitch.UpdateSchedule)

		create := append(append([]gin.HandlerFunc{}, writeMiddleware...), booking.CreateBooking)
		p.POST("/bookings", create...)
		p.GET("/bookings", booking.ListBookings)
		p.GET("/bookings/:bookingId", booking.GetBooking)
		p.POST("/bookings/:bookingId/cancel", booking.CancelBooking)
		p.PATCH("/bookings/:bookingId/status", booking.UpdateStatus)
	}
}
