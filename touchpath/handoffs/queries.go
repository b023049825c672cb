package handoffs

const (
	handoffColumns = `
		id::text, token, visitor_id, COALESCE(context_id, ''), destination_url, redirect_url,
		COALESCE(account_number, ''), attribution_snapshot, status, completion_data,
		created_at, completed_at, expired_at
	`

	queryCreate = `
		INSERT INTO handoffs (
			id, token, visitor_id, context_id, destination_url, redirect_url,
			account_number, attribution_snapshot, status, created_at
		)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), $8::jsonb, $9, $10)
	`

	queryGetByToken = `
		SELECT` + handoffColumns + `
		FROM handoffs
		WHERE token = $1
	`

	queryComplete = `
		UPDATE handoffs
		SET status = 'completed',
		    completion_data = $2::jsonb,
		    completed_at = $3
		WHERE token = $1
		  AND status = 'redirected'
	`

	queryExpireBefore = `
		UPDATE handoffs
		SET status = 'expired',
		    expired_at = $2
		WHERE status = 'redirected'
		  AND created_at < $1
	`

	queryFindRecentByAccount = `
		SELECT` + handoffColumns + `
		FROM handoffs
		WHERE status = 'redirected'
		  AND account_number = $2
		  AND ($1 = '' OR context_id = $1)
		  AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT 1
	`

	queryFindRecentByVisitors = `
		SELECT` + handoffColumns + `
		FROM handoffs
		WHERE status = 'redirected'
		  AND visitor_id = ANY($2)
		  AND ($1 = '' OR context_id = $1)
		ORDER BY created_at DESC
		LIMIT 1
	`

	queryStats = `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'redirected'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'expired')
		FROM handoffs
		WHERE ($1 = '' OR context_id = $1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at <= $3)
	`

	queryInsertCompletion = `
		INSERT INTO completions (
			id, context_id, account_number, email_hash, handoff_token,
			external_id, source, received_at
		)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8)
	`

	queryLinkCompletion = `
		UPDATE completions
		SET handoff_id = $2,
		    match_strategy = $3,
		    matched_at = $4,
		    attempts = attempts + 1
		WHERE id = $1
	`

	queryRecordAttempt = `
		UPDATE completions
		SET attempts = attempts + 1
		WHERE id = $1
	`

	queryListUnmatched = `
		SELECT id::text, COALESCE(context_id, ''), COALESCE(account_number, ''), COALESCE(email_hash, ''),
		       COALESCE(handoff_token, ''), COALESCE(external_id, ''), COALESCE(source, ''),
		       received_at, attempts
		FROM completions
		WHERE handoff_id IS NULL
		ORDER BY received_at ASC
		LIMIT $1
	`
)
