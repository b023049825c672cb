package visitors

const (
	queryCreate = `
		INSERT INTO visitors (
			id, fingerprint_hash, first_seen_at, last_seen_at, visit_count, first_touch, device
		)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6::jsonb, $7::jsonb)
	`

	queryGet = `
		SELECT id, COALESCE(fingerprint_hash, ''), first_seen_at, last_seen_at, visit_count,
		       first_touch, device, COALESCE(email_hash, '')
		FROM visitors
		WHERE id = $1
	`

	queryRecordVisit = `
		UPDATE visitors
		SET last_seen_at = $2,
		    visit_count = visit_count + 1
		WHERE id = $1
	`

	querySetEmailHash = `
		UPDATE visitors
		SET email_hash = $2
		WHERE id = $1
	`

	queryFindByEmailHash = `
		SELECT id
		FROM visitors
		WHERE email_hash = $1
		ORDER BY last_seen_at DESC
	`
)
