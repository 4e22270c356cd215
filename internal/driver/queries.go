package driver

const (
	sqliteSchema = `
		CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			category TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			fields TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			superseded_by TEXT,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_items_status ON items(status);
		CREATE TABLE IF NOT EXISTS decision_records (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			user TEXT NOT NULL,
			entry_id TEXT NOT NULL,
			action TEXT NOT NULL,
			target_id TEXT,
			notes TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_decision_records_entry ON decision_records(entry_id);
	`

	sqliteSelectItems = `SELECT id, category, title, body, fields, status, superseded_by, updated_at FROM items`

	sqliteUpsertItem = `
		INSERT INTO items (id, category, title, body, fields, status, superseded_by, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category = excluded.category,
			title = excluded.title,
			body = excluded.body,
			fields = excluded.fields,
			status = excluded.status,
			superseded_by = excluded.superseded_by,
			updated_at = excluded.updated_at
	`

	sqliteInsertRecord = `
		INSERT INTO decision_records (timestamp, user, entry_id, action, target_id, notes)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	sqliteSelectRecords = `SELECT timestamp, user, entry_id, action, target_id, notes FROM decision_records ORDER BY seq`

	cypherItemIndices = `CREATE INDEX ON :Item(id);`
	cypherStatusIndex = `CREATE INDEX ON :Item(status);`
	cypherRecordIndex = `CREATE INDEX ON :Decision(entry_id);`

	cypherSeedItems = `
		UNWIND $items AS it
		MERGE (i:Item {id: it.id})
		SET i.category = it.category,
			i.title = it.title,
			i.body = it.body,
			i.fields = it.fields,
			i.status = it.status,
			i.superseded_by = it.superseded_by,
			i.updated_at = it.updated_at
	`

	cypherItemFields = `i.id AS id, i.category AS category, i.title AS title, i.body AS body,
		i.fields AS fields, i.status AS status, i.superseded_by AS superseded_by, i.updated_at AS updated_at`

	cypherAllItems = `MATCH (i:Item) RETURN ` + cypherItemFields + ` ORDER BY i.id`

	cypherItemsByID = `MATCH (i:Item) WHERE i.id IN $ids RETURN ` + cypherItemFields

	cypherApply = `
		MATCH (i:Item {id: $id})
		WITH i, (size($from) = 0 OR i.status IN $from) AS eligible
		FOREACH (_ IN CASE WHEN eligible AND $to <> '' THEN [1] ELSE [] END |
			SET i.status = $to,
				i.superseded_by = CASE WHEN $target = '' THEN i.superseded_by ELSE $target END,
				i.updated_at = $now)
		FOREACH (_ IN CASE WHEN eligible THEN [1] ELSE [] END |
			CREATE (d:Decision {
				timestamp: $timestamp,
				user: $user,
				entry_id: $id,
				action: $action,
				target_id: $record_target,
				notes: $notes
			})-[:FOR]->(i))
		RETURN eligible
	`

	cypherRecords = `
		MATCH (d:Decision)
		RETURN d.timestamp AS timestamp, d.user AS user, d.entry_id AS entry_id,
			d.action AS action, d.target_id AS target_id, d.notes AS notes
		ORDER BY d.timestamp, d.entry_id
	`
)
