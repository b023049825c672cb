package touches

const (
	touchColumns = `
		id, visitor_id, COALESCE(context_id, ''), type,
		utm_source, utm_medium, utm_campaign, utm_term, utm_content,
		gclid, fbclid, msclkid, dclid, promo_code,
		COALESCE(referrer, ''), COALESCE(referrer_domain, ''),
		COALESCE(landing_page, ''), page_url, touch_data, created_at
	`

	queryInsert = `
		INSERT INTO touches (
			id, visitor_id, context_id, type,
			utm_source, utm_medium, utm_campaign, utm_term, utm_content,
			gclid, fbclid, msclkid, dclid, promo_code,
			referrer, referrer_domain, landing_page, page_url, touch_data, created_at
		)
		VALUES (
			$1, $2, NULLIF($3, ''), $4,
			$5, $6, $7, $8, $9,
			$10, $11, $12, $13, $14,
			NULLIF($15, ''), NULLIF($16, ''), NULLIF($17, ''), $18, $19::jsonb, $20
		)
	`

	queryListForVisitor = `
		SELECT ` + touchColumns + `
		FROM touches
		WHERE visitor_id = $1 AND created_at <= $2
		ORDER BY created_at ASC, id ASC
	`

	// $1 context ('' = any), $2/$3 window (NULL = unbounded)
	queryListConversions = `
		SELECT ` + touchColumns + `
		FROM touches
		WHERE type = 'form_complete'
		  AND ($1 = '' OR context_id = $1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at <= $3)
		ORDER BY created_at ASC, id ASC
	`

	queryListInRange = `
		SELECT ` + touchColumns + `
		FROM touches
		WHERE ($1 = '' OR context_id = $1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at <= $3)
		ORDER BY created_at ASC, id ASC
	`

	queryDeleteOlderThan = `
		DELETE FROM touches
		WHERE created_at < $1
	`
)
