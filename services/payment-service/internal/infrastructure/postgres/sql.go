package postgres

const (
	insertPaymentSQL = `
INSERT INTO payments (id, booking_id, user_id, charge_id, amount, currency, sequence, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	selectPaymentCols = `SELECT id, booking_id, user_id, charge_id, amount, currency, sequence, created_at FROM payments`

	getPaymentSQL          = selectPaymentCols + ` WHERE id = $1`
	getPaymentByBookingSQL = selectPaymentCols + ` WHERE booking_id = $1`
	listPaymentsByUserSQL  = selectPaymentCols + ` WHERE user_id = $1 ORDER BY created_at DESC`
	listPaymentsSQL        = selectPaymentCols + ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	getBookingSQL = `
SELECT id, user_id, tour_id, price, status, expiration, sequence, deleted
FROM bookings WHERE id = $1`

	insertBookingSQL = `
INSERT INTO bookings (id, user_id, tour_id, price, status, expiration, sequence)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO NOTHING`

	updateBookingSQL = `
UPDATE bookings
SET user_id = $3, tour_id = $4, price = $5, status = $6, expiration = $7, sequence = $8
WHERE id = $1 AND sequence = $2 AND NOT deleted`

	deleteBookingSQL = `
UPDATE bookings SET deleted = TRUE, sequence = $2 + 1
WHERE id = $1 AND sequence = $2 AND NOT deleted`
)
