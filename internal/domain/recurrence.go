package domain

import "time"

// Frequency of a recurring booking
type Frequency string

const (
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
)

// RecurrenceInterval is the step between occurrences
type RecurrenceInterval string

const (
	IntervalOneWeek    RecurrenceInterval = "ONE_WEEK"
	IntervalTwoWeeks   RecurrenceInterval = "TWO_WEEKS"
	IntervalThreeWeeks RecurrenceInterval = "THREE_WEEKS"
	IntervalOneMonth   RecurrenceInterval = "ONE_MONTH"
	IntervalTwoMonths  RecurrenceInterval = "TWO_MONTHS"
)

// Step returns the interval length in weeks (weekly) or months (monthly)
// and whether it is valid for freq.
func (i RecurrenceInterval) Step(freq Frequency) (int, bool) {
	switch freq {
	case FrequencyWeekly:
		switch i {
		case IntervalOneWeek:
			return 1, true
		case IntervalTwoWeeks:
			return 2, true
		case IntervalThreeWeeks:
			return 3, true
		}
	case FrequencyMonthly:
		switch i {
		case IntervalOneMonth:
			return 1, true
		case IntervalTwoMonths:
			return 2, true
		}
	}
	return 0, false
}

// PaymentMode decides how a series is charged
type PaymentMode string

const (
	// PaymentModeOneTime charges the whole series upfront
	PaymentModeOneTime PaymentMode = "ONE_TIME"
	// PaymentModePerInstance charges each occurrence separately
	PaymentModePerInstance PaymentMode = "PER_INSTANCE"
)

// RecurringOptions are the recurrence parameters of a booking request
type RecurringOptions struct {
	Frequency       Frequency          `json:"frequency"`
	Interval        RecurrenceInterval `json:"interval"`
	OccurrenceCount int                `json:"occurrenceCount"`
	EndsAt          *time.Time         `json:"endsAt,omitempty"`
	PaymentMode     PaymentMode        `json:"paymentMode"`
}

// RecurrenceGroup links the bookings created from one recurring request
type RecurrenceGroup struct {
	ID              string             `json:"id"`
	VenueID         string             `json:"venueId"`
	Frequency       Frequency          `json:"frequency"`
	Interval        RecurrenceInterval `json:"interval"`
	OccurrenceCount int                `json:"occurrenceCount"`
	EndDate         time.Time          `json:"endDate"`
	PaymentMode     PaymentMode        `json:"paymentMode"`
	TotalAmount     float64            `json:"totalAmount"`
	CreatedAt       time.Time          `json:"createdAt"`
}
