package events

type Subject string

const (
	SubjectTourCreated         Subject = "tour:created"
	SubjectTourUpdated         Subject = "tour:updated"
	SubjectTourDeleted         Subject = "tour:deleted"
	SubjectBookingMade         Subject = "booking:made"
	SubjectBookingCancelled    Subject = "booking:cancelled"
	SubjectBookingCompleted    Subject = "booking:completed"
	SubjectExpirationCompleted Subject = "expiration:completed"
	SubjectPaymentMade         Subject = "payment:made"
	SubjectReviewCreated       Subject = "review:created"
	SubjectReviewUpdated       Subject = "review:updated"
	SubjectReviewDeleted       Subject = "review:deleted"
	SubjectUserBanned          Subject = "user:banned"
	SubjectUserUnbanned        Subject = "user:unbanned"
)

var (
	TourCreatedTopic         = Topic[TourCreated]{Subject: SubjectTourCreated}
	TourUpdatedTopic         = Topic[TourUpdated]{Subject: SubjectTourUpdated}
	TourDeletedTopic         = Topic[TourDeleted]{Subject: SubjectTourDeleted}
	BookingMadeTopic         = Topic[BookingMade]{Subject: SubjectBookingMade}
	BookingCancelledTopic    = Topic[BookingCancelled]{Subject: SubjectBookingCancelled}
	BookingCompletedTopic    = Topic[BookingCompleted]{Subject: SubjectBookingCompleted}
	ExpirationCompletedTopic = Topic[ExpirationCompleted]{Subject: SubjectExpirationCompleted}
	PaymentMadeTopic         = Topic[PaymentMade]{Subject: SubjectPaymentMade}
	ReviewCreatedTopic       = Topic[ReviewCreated]{Subject: SubjectReviewCreated}
	ReviewUpdatedTopic       = Topic[ReviewUpdated]{Subject: SubjectReviewUpdated}
	ReviewDeletedTopic       = Topic[ReviewDeleted]{Subject: SubjectReviewDeleted}
	UserBannedTopic          = Topic[UserBanned]{Subject: SubjectUserBanned}
	UserUnbannedTopic        = Topic[UserBanned]{Subject: SubjectUserUnbanned}
)
