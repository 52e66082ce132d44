package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bookingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_bookings_total",
		Help: "Booking attempts grouped by outcome.",
	}, []string{"result"})

	arrivalConfirmations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arrival_confirmations_total",
		Help: "Arrival confirmation attempts grouped by outcome.",
	}, []string{"result"})
)
