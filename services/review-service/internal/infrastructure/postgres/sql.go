package postgres

const (
	insertReviewSQL = `
INSERT INTO reviews (id, tour_id, user_id, rating, title, body, sequence, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	selectReviewCols = `SELECT id, tour_id, user_id, rating, title, body, sequence, created_at, updated_at FROM reviews`

	getReviewSQL         = selectReviewCols + ` WHERE id = $1`
	listReviewsByTourSQL = selectReviewCols + ` WHERE tour_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	updateReviewSQL = `
UPDATE reviews
SET rating = $3, title = $4, body = $5, sequence = $6, updated_at = $7
WHERE id = $1 AND sequence = $2`

	deleteReviewSQL = `DELETE FROM reviews WHERE id = $1 AND sequence = $2`

	getTourSQL = `SELECT id, name, sequence, deleted FROM tours WHERE id = $1`

	insertTourSQL = `
INSERT INTO tours (id, name, sequence)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO NOTHING`

	updateTourSQL = `
UPDATE tours SET name = $3, sequence = $4
WHERE id = $1 AND sequence = $2 AND NOT deleted`

	deleteTourSQL = `
UPDATE tours SET deleted = TRUE, sequence = $2 + 1
WHERE id = $1 AND sequence = $2 AND NOT deleted`
)
